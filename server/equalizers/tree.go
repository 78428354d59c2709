package equalizers

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/resources"
)

// TreeEqualizer balances the children of its compound along the same
// binary split tree as the LoadEqualizer, but adjusts each split from the
// time both halves took in the last reported frame instead of scanning
// the spatial distribution of the load. Splits follow the measured time
// every frame, resistance does not apply.
type TreeEqualizer struct {
	compound.Base

	tree *splitNode
}

func NewTreeEqualizer(p compound.Params) *TreeEqualizer {
	return &TreeEqualizer{Base: compound.NewBase(p)}
}

func (e *TreeEqualizer) Type() string { return "tree" }

func (e *TreeEqualizer) Attach(c *compound.Compound) {
	e.clearTree()
	e.Base.Attach(c)
}

func (e *TreeEqualizer) NotifyChildAdded(c *compound.Compound, child *compound.Compound) {
	e.clearTree()
}

func (e *TreeEqualizer) NotifyChildRemove(c *compound.Compound, child *compound.Compound) {
	e.clearTree()
}

func (e *TreeEqualizer) clearTree() {
	e.tree.eachLeaf(func(leaf *splitNode) {
		if ch := leaf.compound.Channel(); ch != nil {
			ch.RemoveListener(e)
		}
	})
	e.tree = nil
}

func (e *TreeEqualizer) NotifyUpdatePre(c *compound.Compound, frame uint32) {
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
		e.tree = buildSplitTree(children, e.Mode)
		e.initModes(e.tree, fabric.ModeVertical)
		e.tree.eachLeaf(func(leaf *splitNode) {
			if ch := leaf.compound.Channel(); ch != nil {
				ch.AddListener(e)
			}
		})
	}

	if !e.IsActive() || !c.IsActive() {
		return
	}
	e.update(e.tree)
	e.split(e.tree)
	e.assign(e.tree, fabric.FullViewport, fabric.FullRange)
}

// initModes alternates the split axis per level in 2D mode.
func (e *TreeEqualizer) initModes(node *splitNode, mode fabric.DecompositionMode) {
	if node.isLeaf() {
		return
	}
	if e.Mode == fabric.Mode2D {
		node.mode = mode
		if mode == fabric.ModeVertical {
			mode = fabric.ModeHorizontal
		} else {
			mode = fabric.ModeVertical
		}
	}
	e.initModes(node.left, mode)
	e.initModes(node.right, mode)
}

func (e *TreeEqualizer) update(node *splitNode) {
	if node.isLeaf() {
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
		return
	}

	e.update(node.left)
	e.update(node.right)
	node.resources = node.left.resources + node.right.resources
	node.mergeConstraints()

	switch {
	case node.left.resources == 0:
		node.time = node.right.time
	case node.right.resources == 0:
		node.time = node.left.time
	default:
		node.time = node.left.time + node.right.time
	}
}

// split moves each relative split so that the left half would have taken
// its share of the total time at the last measured speed.
func (e *TreeEqualizer) split(node *splitNode) {
	if node.isLeaf() {
		return
	}

	var split float32
	switch {
	case node.left.resources == 0:
		split = 0
	case node.right.resources == 0:
		split = 1
	case node.time == 0:
		split = node.split
	default:
		leftTime := float32(node.left.time)
		rightTime := float32(node.right.time)
		target := float32(node.time) * node.left.resources / node.resources
		if leftTime >= target {
			split = target / leftTime * node.split
		} else {
			split = node.split + (target-leftTime)/rightTime*(1-node.split)
		}
	}
	node.split = damp(split, node.split, e.Damping)

	e.split(node.left)
	e.split(node.right)
}

func (e *TreeEqualizer) assign(node *splitNode, vp fabric.Viewport, rng fabric.Range) {
	if node.isLeaf() {
		node.compound.SetViewport(vp)
		node.compound.SetRange(rng)
		log.WithFields(log.Fields{
			"compound": node.compound.String(),
			"viewport": vp,
			"range":    rng,
		}).Debug("Tree equalizer assignment")
		return
	}

	pvp := e.Compound().InheritPVP()
	switch node.mode {
	case fabric.ModeVertical:
		abs := vp.X + vp.W*node.split
		abs = constrainViewport(node, abs, abs, vp.X, vp.XEnd(), float32(pvp.W), xAxis)
		if vp.W > 0 {
			node.split = (abs - vp.X) / vp.W
		}

		left := vp
		left.W = abs - vp.X
		e.assign(node.left, left, rng)

		right := vp
		right.X = left.XEnd()
		right.W = vp.XEnd() - right.X
		for right.XEnd() < vp.XEnd() {
			right.W += fabric.Epsilon
		}
		e.assign(node.right, right, rng)

	case fabric.ModeHorizontal:
		abs := vp.Y + vp.H*node.split
		abs = constrainViewport(node, abs, abs, vp.Y, vp.YEnd(), float32(pvp.H), yAxis)
		if vp.H > 0 {
			node.split = (abs - vp.Y) / vp.H
		}

		bottom := vp
		bottom.H = abs - vp.Y
		e.assign(node.left, bottom, rng)

		top := vp
		top.Y = bottom.YEnd()
		top.H = vp.YEnd() - top.Y
		for top.YEnd() < vp.YEnd() {
			top.H += fabric.Epsilon
		}
		e.assign(node.right, top, rng)

	case fabric.ModeDB:
		abs := rng.Start + rng.Size()*node.split
		abs = constrainRange(node, abs, abs, rng)
		if rng.Size() > 0 {
			node.split = (abs - rng.Start) / rng.Size()
		}

		e.assign(node.left, vp, fabric.Range{Start: rng.Start, End: abs})
		e.assign(node.right, vp, fabric.Range{Start: abs, End: rng.End})
	}
}

// NotifyLoadData records the draw time of the leaf rendering on channel.
func (e *TreeEqualizer) NotifyLoadData(ch *resources.Channel, frame uint32, statistics []fabric.Statistic,
	region fabric.Viewport) {
	var leaf *splitNode
	e.tree.eachLeaf(func(n *splitNode) {
		if n.compound.Channel() == ch {
			leaf = n
		}
	})
	if leaf == nil {
		return
	}

	taskID := leaf.compound.TaskID()
	start, end := int64(math.MaxInt64), int64(0)
	var transmit int64
	for _, stat := range statistics {
		if stat.Task != taskID {
			continue
		}
		switch stat.Type {
		case fabric.StatChannelClear, fabric.StatChannelDraw, fabric.StatChannelReadback:
			start = minI64(start, stat.StartTime)
			end = maxI64(end, stat.EndTime)
		case fabric.StatChannelAsyncReadback, fabric.StatChannelFrameTransmit:
			transmit += stat.Duration()
		}
	}
	if start == math.MaxInt64 {
		return
	}
	leaf.time = maxI64(maxI64(end-start, 1), transmit)
}
