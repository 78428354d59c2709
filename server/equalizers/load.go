// Package equalizers implements the load-balancing strategies attached to
// compounds. Each strategy rewrites the viewport, range, usage, zoom or
// frame rate of the compounds below it once per frame, from the timing
// statistics reported for earlier frames.
package equalizers

import (
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/common/stats"
	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/resources"
)

// loadData is the measured load of one leaf for one frame.
type loadData struct {
	channel      *resources.Channel
	taskID       uint32
	destTaskID   uint32
	vp           fabric.Viewport
	rng          fabric.Range
	time         int64
	assembleTime int64
}

func (d loadData) isEmpty() bool { return !d.vp.HasArea() || !d.rng.HasData() }

type loadFrame struct {
	frame uint32
	items []loadData
}

func (f loadFrame) isComplete() bool {
	for _, item := range f.items {
		if item.time < 0 {
			return false
		}
	}
	return true
}

// splitNode is a node of the static binary tree the load equalizer splits
// along. Leaves reference one child compound.
type splitNode struct {
	left     *splitNode
	right    *splitNode
	compound *compound.Compound
	mode     fabric.DecompositionMode

	resources    float32
	split        float32
	time         int64
	boundaryf    float32
	boundary2i   fabric.Vector2i
	resistancef  float32
	resistance2i fabric.Vector2i
	maxSize      fabric.Vector2i
}

func (n *splitNode) isLeaf() bool { return n.compound != nil }

// copyConstraints takes the size, boundary and resistance limits of from.
func (n *splitNode) copyConstraints(from *splitNode) {
	n.maxSize = from.maxSize
	n.boundary2i = from.boundary2i
	n.boundaryf = from.boundaryf
	n.resistance2i = from.resistance2i
	n.resistancef = from.resistancef
}

// mergeConstraints combines the limits of both children: sizes add along
// the split axis and take the minimum across it, boundaries and
// resistances take the maximum.
func (n *splitNode) mergeConstraints() {
	left, right := n.left, n.right
	if left.resources == 0 {
		n.copyConstraints(right)
		return
	}
	if right.resources == 0 {
		n.copyConstraints(left)
		return
	}

	switch n.mode {
	case fabric.ModeVertical:
		n.maxSize.X = left.maxSize.X + right.maxSize.X
		n.maxSize.Y = minI32(left.maxSize.Y, right.maxSize.Y)
	case fabric.ModeHorizontal:
		n.maxSize.X = minI32(left.maxSize.X, right.maxSize.X)
		n.maxSize.Y = left.maxSize.Y + right.maxSize.Y
	default:
		n.maxSize = left.maxSize
	}
	n.boundary2i.X = maxI32(left.boundary2i.X, right.boundary2i.X)
	n.boundary2i.Y = maxI32(left.boundary2i.Y, right.boundary2i.Y)
	n.boundaryf = max32(left.boundaryf, right.boundaryf)
	n.resistance2i.X = maxI32(left.resistance2i.X, right.resistance2i.X)
	n.resistance2i.Y = maxI32(left.resistance2i.Y, right.resistance2i.Y)
	n.resistancef = max32(left.resistancef, right.resistancef)
}

// buildSplitTree partitions children in halves, right half rounded up.
func buildSplitTree(children []*compound.Compound, mode fabric.DecompositionMode) *splitNode {
	node := &splitNode{split: .5, mode: mode}
	if len(children) == 1 {
		node.compound = children[0]
		return node
	}
	middle := len(children) / 2
	node.left = buildSplitTree(children[:middle], mode)
	node.right = buildSplitTree(children[middle:], mode)
	return node
}

func (n *splitNode) eachLeaf(fn func(leaf *splitNode)) {
	if n == nil {
		return
	}
	if n.isLeaf() {
		fn(n)
		return
	}
	n.left.eachLeaf(fn)
	n.right.eachLeaf(fn)
}

// LoadEqualizer balances the children of its compound by splitting the
// viewport (2D) or data range (DB) so that each child gets a share of the
// last measured frame time proportional to its usage.
type LoadEqualizer struct {
	compound.Base

	tree    *splitNode
	history []loadFrame
	stat    stats.StatsReceiver
}

func NewLoadEqualizer(p compound.Params) *LoadEqualizer {
	return &LoadEqualizer{Base: compound.NewBase(p), stat: stats.NilStatsReceiver()}
}

func (e *LoadEqualizer) Type() string { return "load" }

// SetStatsReceiver publishes the root split and balanced load to stat.
func (e *LoadEqualizer) SetStatsReceiver(stat stats.StatsReceiver) { e.stat = stat }

func (e *LoadEqualizer) Attach(c *compound.Compound) {
	e.clearTree()
	e.Base.Attach(c)
}

func (e *LoadEqualizer) NotifyChildAdded(c *compound.Compound, child *compound.Compound) {
	e.clearTree()
}

func (e *LoadEqualizer) NotifyChildRemove(c *compound.Compound, child *compound.Compound) {
	e.clearTree()
}

func (e *LoadEqualizer) clearTree() {
	e.tree.eachLeaf(func(leaf *splitNode) {
		if ch := leaf.compound.Channel(); ch != nil {
			ch.RemoveListener(e)
		}
	})
	e.tree = nil
	e.history = nil
}

func (e *LoadEqualizer) NotifyUpdatePre(c *compound.Compound, frame uint32) {
	if e.tree == nil {
		children := c.Children()
		switch len(children) {
		case 0:
			return
		case 1:
			if e.Mode == fabric.ModeDB {
				children[0].SetRange(fabric.FullRange)
			} else {
				children[0].SetViewport(fabric.FullViewport)
			}
			return
		}
		mode := e.Mode
		if mode == fabric.Mode2D {
			mode = fabric.ModeVertical
		}
		e.tree = buildSplitTree(children, mode)
		e.tree.eachLeaf(func(leaf *splitNode) {
			if ch := leaf.compound.Channel(); ch != nil {
				ch.AddListener(e)
			}
		})
		log.WithFields(log.Fields{
			"compound": c.String(),
			"mode":     e.Mode,
			"children": len(children),
		}).Debug("Built load equalizer tree")
	}

	e.checkHistory()
	if !e.IsActive() || !c.IsActive() {
		return
	}

	if e.Damping < 1 {
		e.history = append(e.history, loadFrame{frame: frame})
	}
	e.update(e.tree, fabric.FullViewport)
	e.computeSplit()
}

// checkHistory drops every sample older than the youngest complete frame
// and keeps one synthetic sample when nothing was measured yet.
func (e *LoadEqualizer) checkHistory() {
	var useFrame uint32
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].isComplete() {
			useFrame = e.history[i].frame
			break
		}
	}
	for len(e.history) > 0 && e.history[0].frame < useFrame {
		e.history = e.history[1:]
	}
	if len(e.history) == 0 {
		e.history = []loadFrame{{items: []loadData{{
			vp:   fabric.FullViewport,
			rng:  fabric.FullRange,
			time: 1,
		}}}}
	}
}

// samples are the non-empty items of the oldest frame kept, the youngest
// complete one.
func (e *LoadEqualizer) samples() []loadData {
	var out []loadData
	for _, item := range e.history[0].items {
		if !item.isEmpty() {
			out = append(out, item)
		}
	}
	return out
}

func (e *LoadEqualizer) totalTime() int64 {
	var total int64
	for _, item := range e.samples() {
		total += item.time
	}
	return total
}

func (e *LoadEqualizer) assembleTime() int64 {
	if e.Damping >= 1 {
		return 0
	}
	for _, item := range e.history[0].items {
		if item.assembleTime > 0 {
			return item.assembleTime
		}
	}
	return 0
}

// update computes resources and constraints bottom-up. 2D nodes pick the
// longer pixel axis of the region they cover.
func (e *LoadEqualizer) update(node *splitNode, vp fabric.Viewport) {
	if node.isLeaf() {
		e.updateLeaf(node)
		return
	}

	if e.Mode == fabric.Mode2D {
		if ch := e.Compound().Channel(); ch != nil {
			pvp := ch.PixelViewport().Apply(vp)
			if pvp.W > pvp.H {
				node.mode = fabric.ModeVertical
			} else {
				node.mode = fabric.ModeHorizontal
			}
		}
	}

	leftVP, rightVP := vp, vp
	switch node.mode {
	case fabric.ModeVertical:
		leftVP.W = vp.W * .5
		rightVP.X = leftVP.XEnd()
		rightVP.W = vp.XEnd() - rightVP.X
	case fabric.ModeHorizontal:
		leftVP.H = vp.H * .5
		rightVP.Y = leftVP.YEnd()
		rightVP.H = vp.YEnd() - rightVP.Y
	}
	e.update(node.left, leftVP)
	e.update(node.right, rightVP)

	node.resources = node.left.resources + node.right.resources
	node.mergeConstraints()
}

func (e *LoadEqualizer) updateLeaf(node *splitNode) {
	c := node.compound
	node.resources = 0
	if c.IsActive() {
		node.resources = c.Usage()
	}
	if ch := c.Channel(); ch != nil {
		pvp := ch.PixelViewport()
		node.maxSize = fabric.Vector2i{X: pvp.W, Y: pvp.H}
	}
	node.boundary2i = e.Boundary2i
	node.boundaryf = e.Boundaryf
	node.resistance2i = e.Resistance2i
	node.resistancef = e.Resistancef

	if !c.HasDestinationChannel() {
		return
	}

	// the destination channel also assembles: give it less to draw
	var nResources float32
	for _, child := range e.Compound().Children() {
		if child.IsActive() {
			nResources += child.Usage()
		}
	}
	if e.AssembleOnlyLimit <= nResources-node.resources {
		node.resources = 0
		return
	}

	time := float32(e.totalTime())
	assemble := float32(e.assembleTime())
	if time == 0 || assemble == 0 || nResources <= node.resources {
		return
	}
	timePerResource := time / (nResources - node.resources)
	renderTime := timePerResource * node.resources
	clamped := min32(assemble, renderTime)
	newTimePerResource := (time + clamped) / nResources
	node.resources -= clamped / newTimePerResource
	if node.resources < 0 {
		node.resources = 0
	}
}

// sortedSamples holds the samples ordered along each split dimension.
type sortedSamples struct {
	byX, byY, byRange []loadData
}

func sortSamples(items []loadData) sortedSamples {
	sorted := sortedSamples{
		byX:     append([]loadData(nil), items...),
		byY:     append([]loadData(nil), items...),
		byRange: append([]loadData(nil), items...),
	}
	sort.SliceStable(sorted.byX, func(i, j int) bool { return sorted.byX[i].vp.X < sorted.byX[j].vp.X })
	sort.SliceStable(sorted.byY, func(i, j int) bool { return sorted.byY[i].vp.Y < sorted.byY[j].vp.Y })
	sort.SliceStable(sorted.byRange, func(i, j int) bool {
		return sorted.byRange[i].rng.Start < sorted.byRange[j].rng.Start
	})
	return sorted
}

func (e *LoadEqualizer) computeSplit() {
	items := e.samples()
	var total int64
	for _, item := range items {
		total += item.time
	}
	e.stat.Histogram(stats.EqualizerLoadHistogram_ms).Update(total)

	if e.tree.resources <= 0 {
		return
	}
	e.computeNode(e.tree, float32(total), sortSamples(items), fabric.FullViewport, fabric.FullRange)
	e.stat.GaugeFloat(stats.EqualizerSplitGauge).Update(float64(e.tree.split))
}

func (e *LoadEqualizer) computeNode(node *splitNode, time float32, sorted sortedSamples,
	vp fabric.Viewport, rng fabric.Range) {
	if node.isLeaf() {
		e.assign(node.compound, vp, rng)
		return
	}

	leftTime := time * node.left.resources / node.resources
	budget := min32(leftTime, time)
	pvp := e.Compound().InheritPVP()

	switch node.mode {
	case fabric.ModeVertical:
		split := scanViewport(sorted.byX, budget, vp, xAxis)
		split = damp(split, node.split, e.Damping)
		split = constrainViewport(node, split, node.split, vp.X, vp.XEnd(), float32(pvp.W), xAxis)
		node.split = split

		left := vp
		left.W = split - vp.X
		e.computeNode(node.left, leftTime, sorted, left, rng)

		right := vp
		right.X = left.XEnd()
		right.W = vp.XEnd() - right.X
		for right.XEnd() < vp.XEnd() {
			right.W += fabric.Epsilon
		}
		e.computeNode(node.right, time-leftTime, sorted, right, rng)

	case fabric.ModeHorizontal:
		split := scanViewport(sorted.byY, budget, vp, yAxis)
		split = damp(split, node.split, e.Damping)
		split = constrainViewport(node, split, node.split, vp.Y, vp.YEnd(), float32(pvp.H), yAxis)
		node.split = split

		bottom := vp
		bottom.H = split - vp.Y
		e.computeNode(node.left, leftTime, sorted, bottom, rng)

		top := vp
		top.Y = bottom.YEnd()
		top.H = vp.YEnd() - top.Y
		for top.YEnd() < vp.YEnd() {
			top.H += fabric.Epsilon
		}
		e.computeNode(node.right, time-leftTime, sorted, top, rng)

	case fabric.ModeDB:
		split := scanRange(sorted.byRange, budget, rng)
		split = damp(split, node.split, e.Damping)
		split = constrainRange(node, split, node.split, rng)
		node.split = split

		e.computeNode(node.left, leftTime, sorted, vp, fabric.Range{Start: rng.Start, End: split})
		e.computeNode(node.right, time-leftTime, sorted, vp, fabric.Range{Start: split, End: rng.End})
	}
}

// damp blends split with previous. A damping of one or more disables it.
func damp(split, previous, damping float32) float32 {
	if damping >= 1 {
		return split
	}
	return (1-damping)*split + damping*previous
}

type axis int

const (
	xAxis axis = iota
	yAxis
)

// span returns start and end of vp along a and across it.
func span(vp fabric.Viewport, a axis) (start, end, perpStart, perpEnd float32) {
	if a == xAxis {
		return vp.X, vp.XEnd(), vp.Y, vp.YEnd()
	}
	return vp.Y, vp.YEnd(), vp.X, vp.XEnd()
}

// scanViewport walks the samples sorted along a until the accumulated
// time inside vp reaches budget, and returns that position.
func scanViewport(sorted []loadData, budget float32, vp fabric.Viewport, a axis) float32 {
	pos, end, vpPerpStart, vpPerpEnd := span(vp, a)
	working := append([]loadData(nil), sorted...)

	for budget > fabric.Epsilon && pos < end {
		kept := working[:0]
		for _, data := range working {
			if _, dataEnd, _, _ := span(data.vp, a); dataEnd > pos {
				kept = append(kept, data)
			}
		}
		working = kept
		if len(working) == 0 {
			break
		}

		// next discontinuity in the samples
		next := float32(1)
		for _, data := range working {
			start, dataEnd, _, _ := span(data.vp, a)
			if start > pos && start < next {
				next = start
			}
			if dataEnd > pos && dataEnd < next {
				next = dataEnd
			}
		}
		width := next - pos

		var current float32
		for _, data := range working {
			start, dataEnd, perpStart, perpEnd := span(data.vp, a)
			if start >= next {
				break
			}
			perp := perpEnd - perpStart
			contrib := perp
			if perpStart < vpPerpStart {
				contrib -= vpPerpStart - perpStart
			}
			if perpEnd > vpPerpEnd {
				contrib -= perpEnd - vpPerpEnd
			}
			if contrib > 0 {
				share := (width / (dataEnd - start)) * (contrib / perp)
				current += float32(data.time) * share
			}
		}

		if current >= budget {
			pos += width * budget / current
			budget = 0
		} else {
			budget -= current
			pos = next
		}
	}
	return pos
}

// scanRange is scanViewport for data ranges.
func scanRange(sorted []loadData, budget float32, rng fabric.Range) float32 {
	pos := rng.Start
	working := append([]loadData(nil), sorted...)

	for budget > fabric.Epsilon && pos < rng.End {
		kept := working[:0]
		for _, data := range working {
			if data.rng.End > pos {
				kept = append(kept, data)
			}
		}
		working = kept
		if len(working) == 0 {
			break
		}

		next := float32(1)
		for _, data := range working {
			next = min32(next, data.rng.End)
		}
		size := next - pos

		var current float32
		for _, data := range working {
			if data.rng.Start >= next {
				break
			}
			current += float32(data.time) * size / data.rng.Size()
		}

		if current >= budget {
			pos += size * budget / current
			budget = 0
		} else {
			budget -= current
			pos = next
		}
	}
	return pos
}

// constrainViewport collapses the split for children without resources,
// bounds it by the maximum size of each child, snaps it to the boundary
// and keeps previous for moves smaller than the resistance.
func constrainViewport(node *splitNode, split, previous, start, end, pixels float32, a axis) float32 {
	boundaryPx, resistancePx := node.boundary2i.X, node.resistance2i.X
	maxLeftPx, maxRightPx := node.left.maxSize.X, node.right.maxSize.X
	if a == yAxis {
		boundaryPx, resistancePx = node.boundary2i.Y, node.resistance2i.Y
		maxLeftPx, maxRightPx = node.left.maxSize.Y, node.right.maxSize.Y
	}
	var boundary float32
	if pixels > 0 {
		boundary = float32(boundaryPx) / pixels
	}

	switch {
	case node.left.resources == 0:
		split = start
	case node.right.resources == 0:
		split = end
	case boundary > 0:
		maxLeft := float32(maxLeftPx) / pixels
		maxRight := float32(maxRightPx) / pixels
		if end-split > maxRight {
			split = end - maxRight
		} else if split-start > maxLeft {
			split = start + maxLeft
		}
		if split-start < boundary {
			split = start + boundary
		}
		if end-split < boundary {
			split = end - boundary
		}
		split = float32(uint32(split/boundary+.5)) * boundary
	}
	split = max32(split, start)
	split = min32(split, end)

	moved := float32(math.Abs(float64(pixels*split - pixels*previous)))
	if int32(moved) < resistancePx {
		return previous
	}
	return split
}

func constrainRange(node *splitNode, split, previous float32, rng fabric.Range) float32 {
	boundary := node.boundaryf
	if node.left.resources == 0 {
		split = rng.Start
	} else if node.right.resources == 0 {
		split = rng.End
	}
	if boundary > 0 {
		split = float32(uint32(split/boundary+.5)) * boundary
		if split-rng.Start < boundary {
			split = rng.Start
		}
		if rng.End-split < boundary {
			split = rng.End
		}
	}

	if float32(math.Abs(float64(split-previous))) < node.resistancef {
		return previous
	}
	return split
}

// assign applies the result to a leaf and records a pending sample for it.
func (e *LoadEqualizer) assign(c *compound.Compound, vp fabric.Viewport, rng fabric.Range) {
	c.SetViewport(vp)
	c.SetRange(rng)
	log.WithFields(log.Fields{
		"compound": c.String(),
		"viewport": vp,
		"range":    rng,
	}).Debug("Load equalizer assignment")

	if e.Damping >= 1 {
		return
	}
	data := loadData{
		channel: c.Channel(),
		taskID:  c.TaskID(),
		vp:      vp,
		rng:     rng,
		time:    -1,
	}
	if root := e.Compound(); root.Channel() == data.channel {
		data.destTaskID = root.TaskID()
	}
	if data.isEmpty() {
		data.time = 0
	}
	last := &e.history[len(e.history)-1]
	last.items = append(last.items, data)
}

// NotifyLoadData fills the pending sample of channel for frame.
func (e *LoadEqualizer) NotifyLoadData(ch *resources.Channel, frame uint32, statistics []fabric.Statistic,
	region fabric.Viewport) {
	for i := range e.history {
		if e.history[i].frame != frame {
			continue
		}
		items := e.history[i].items
		for j := range items {
			data := &items[j]
			if data.channel != ch {
				continue
			}
			e.parseLoad(data, statistics, region)
			return
		}
	}
}

func (e *LoadEqualizer) parseLoad(data *loadData, statistics []fabric.Statistic, region fabric.Viewport) {
	if !data.vp.HasArea() {
		return
	}
	start, end := int64(math.MaxInt64), int64(0)
	var transmit int64
	loadSeen := false

	for _, stat := range statistics {
		if data.destTaskID != 0 && stat.Task == data.destTaskID {
			switch stat.Type {
			case fabric.StatChannelAssemble:
				data.assembleTime += stat.Duration()
			case fabric.StatChannelFrameWaitReady:
				data.assembleTime -= stat.Duration()
			}
		}
		if stat.Task != data.taskID || loadSeen {
			continue
		}

		switch stat.Type {
		case fabric.StatChannelClear, fabric.StatChannelDraw, fabric.StatChannelReadback:
			start = minI64(start, stat.StartTime)
			end = maxI64(end, stat.EndTime)
		case fabric.StatChannelAsyncReadback, fabric.StatChannelFrameTransmit:
			transmit += stat.Duration()
		case fabric.StatChannelFrameWaitSendToken:
			transmit -= stat.Duration()
		case fabric.StatChannelAssemble:
			// later stats belong to compositing
			loadSeen = true
		}
	}

	if start == math.MaxInt64 {
		return
	}
	if region.HasArea() {
		data.vp = data.vp.Apply(region)
	}
	data.time = maxI64(maxI64(end-start, 1), transmit)
	data.assembleTime = maxI64(data.assembleTime, 0)
	e.stat.Histogram(stats.ChannelLoadHistogram_ms, data.channel.Name()).Update(data.time)
}
