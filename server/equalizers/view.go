package equalizers

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/resources"
)

// minUsage is the smallest share of a pipe handed to one leaf.
const minUsage = float32(.1)

type viewLoad struct {
	frame      uint32
	missing    int
	nResources int
	time       int64
}

var noLoad = viewLoad{time: 1}

// viewListener collects the load of all leaves of one child of the view
// equalizer. Loads are kept newest first.
type viewListener struct {
	loads    []viewLoad
	taskIDs  map[*resources.Channel]uint32
	channels []*resources.Channel
}

func newViewListener() *viewListener {
	return &viewListener{taskIDs: map[*resources.Channel]uint32{}}
}

// subscribe refreshes the task IDs of the active leaves below child and
// listens to their channels.
func (l *viewListener) subscribe(child *compound.Compound) {
	for k := range l.taskIDs {
		delete(l.taskIDs, k)
	}
	child.Accept(compound.VisitorFunc(func(c *compound.Compound) fabric.VisitorResult {
		if !c.IsActive() {
			return fabric.Prune
		}
		if !c.IsLeaf() {
			return fabric.Continue
		}
		ch := c.Channel()
		if ch == nil {
			return fabric.Continue
		}
		l.taskIDs[ch] = c.TaskID()
		for _, known := range l.channels {
			if known == ch {
				return fabric.Continue
			}
		}
		l.channels = append(l.channels, ch)
		ch.AddListener(l)
		return fabric.Continue
	}))
}

func (l *viewListener) clear() {
	for _, ch := range l.channels {
		ch.RemoveListener(l)
	}
	l.channels = nil
	l.loads = nil
}

func (l *viewListener) newLoad(frame uint32, nResources int) {
	load := viewLoad{frame: frame, missing: nResources, nResources: nResources}
	l.loads = append([]viewLoad{load}, l.loads...)
}

// youngestLoad is the newest complete frame not after frame, 0 if none.
func (l *viewListener) youngestLoad(frame uint32) uint32 {
	for _, load := range l.loads {
		if load.missing == 0 && load.frame <= frame {
			return load.frame
		}
	}
	return 0
}

// useLoad returns the load of frame and forgets every older one.
func (l *viewListener) useLoad(frame uint32) viewLoad {
	for i, load := range l.loads {
		if load.frame != frame {
			continue
		}
		l.loads = l.loads[:i+1]
		if l.loads[i].time == 0 {
			l.loads[i].time = 1
		}
		return l.loads[i]
	}
	return noLoad
}

func (l *viewListener) NotifyLoadData(ch *resources.Channel, frame uint32, statistics []fabric.Statistic,
	region fabric.Viewport) {
	var load *viewLoad
	for i := range l.loads {
		if l.loads[i].frame == frame {
			load = &l.loads[i]
			break
		}
	}
	taskID, ok := l.taskIDs[ch]
	if load == nil || !ok || load.missing == 0 {
		return
	}

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

	load.time += maxI64(end-start, transmit)
	load.missing--
	if load.missing == 0 && load.nResources > 0 {
		n := float64(load.nResources)
		load.time = int64(float64(load.time) / n * math.Sqrt(n))
	}
}

// ViewEqualizer distributes the pipes of a cluster between its children,
// typically one per view, by setting the usage of their leaves
// proportionally to the time each view took to render.
type ViewEqualizer struct {
	compound.Base

	listeners []*viewListener
	nPipes    int
}

func NewViewEqualizer(p compound.Params) *ViewEqualizer {
	return &ViewEqualizer{Base: compound.NewBase(p)}
}

func (e *ViewEqualizer) Type() string { return "view" }

func (e *ViewEqualizer) Attach(c *compound.Compound) {
	e.clearListeners()
	e.Base.Attach(c)
}

func (e *ViewEqualizer) NotifyChildAdded(c *compound.Compound, child *compound.Compound) {
	e.clearListeners()
}

func (e *ViewEqualizer) NotifyChildRemove(c *compound.Compound, child *compound.Compound) {
	e.clearListeners()
}

func (e *ViewEqualizer) clearListeners() {
	for _, l := range e.listeners {
		l.clear()
	}
	e.listeners = nil
}

func (e *ViewEqualizer) NotifyUpdatePre(c *compound.Compound, frame uint32) {
	e.updateListeners(c)
	e.updateResources(c)
	e.update(c, frame)
}

func (e *ViewEqualizer) updateListeners(c *compound.Compound) {
	children := c.Children()
	if len(e.listeners) != len(children) {
		e.clearListeners()
		for range children {
			e.listeners = append(e.listeners, newViewListener())
		}
	}
	for i, child := range children {
		e.listeners[i].subscribe(child)
	}
}

// updateResources counts the distinct pipes active leaves render on.
func (e *ViewEqualizer) updateResources(c *compound.Compound) {
	pipes := map[*resources.Pipe]bool{}
	c.Accept(compound.VisitorFunc(func(c *compound.Compound) fabric.VisitorResult {
		if !c.IsActive() {
			return fabric.Prune
		}
		if c.IsLeaf() && c.Channel() != nil {
			pipes[c.Channel().Pipe()] = true
		}
		return fabric.Continue
	}))
	e.nPipes = len(pipes)
}

// inputFrame finds the newest frame every active child has complete load
// data for.
func (e *ViewEqualizer) inputFrame(c *compound.Compound) uint32 {
	frame := uint32(math.MaxUint32)
	for changed := true; changed; {
		changed = false
		for i, child := range c.Children() {
			if !child.IsActive() {
				continue
			}
			if youngest := e.listeners[i].youngestLoad(frame); youngest < frame {
				frame = youngest
				changed = true
			}
		}
	}
	if frame == math.MaxUint32 {
		return 0
	}
	return frame
}

type viewAssignment struct {
	child     *compound.Compound
	listener  *viewListener
	pipe      *resources.Pipe
	resources float32
	channels  int
}

func (e *ViewEqualizer) update(c *compound.Compound, frame uint32) {
	children := c.Children()
	input := e.inputFrame(c)

	var totalTime int64
	loads := make([]viewLoad, len(children))
	for i := range children {
		loads[i] = e.listeners[i].useLoad(input)
		totalTime += loads[i].time
	}

	if !e.IsActive() || !c.IsActive() || e.nPipes == 0 {
		return
	}
	if totalTime == 0 {
		totalTime = 1
	}
	resourceTime := float32(totalTime) / float32(e.nPipes)
	usage := pipeUsage{}

	var assignments []*viewAssignment
	for i, child := range children {
		if !child.IsActive() {
			continue
		}
		a := &viewAssignment{
			child:     child,
			listener:  e.listeners[i],
			resources: float32(loads[i].time) / resourceTime,
		}
		if ch := child.Channel(); ch != nil {
			a.pipe = ch.Pipe()
		}
		assignments = append(assignments, a)
	}

	for _, a := range assignments {
		a.assignSelf(usage)
	}
	for _, a := range assignments {
		a.assignPrevious(usage)
	}
	for _, a := range assignments {
		if a.resources > minUsage || a.channels == 0 {
			a.assignNew(usage)
		}
	}

	for _, a := range assignments {
		log.WithFields(log.Fields{
			"compound":  a.child.String(),
			"frame":     frame,
			"input":     input,
			"channels":  a.channels,
			"leftovers": a.resources,
		}).Debug("View equalizer assignment")
		a.listener.newLoad(frame, a.channels)
	}
}

type pipeUsage map[*resources.Pipe]float32

// take returns the share of pipe a leaf needing want gets, 0 if the pipe
// is fully used, and books it.
func (u pipeUsage) take(pipe *resources.Pipe, want float32) float32 {
	used := u[pipe]
	switch {
	case used >= 1:
		return 0
	case used > 0:
		u[pipe] = 1
		return max32(1-used, minUsage)
	}
	use := min32(1, want)
	u[pipe] = use
	return use
}

func (a *viewAssignment) use(c *compound.Compound, share float32) {
	c.SetUsage(share)
	if share > 0 {
		a.resources -= share
		a.channels++
	}
}

// assignSelf gives the first active leaf on the child's own pipe its share.
func (a *viewAssignment) assignSelf(usage pipeUsage) {
	a.child.Accept(compound.VisitorFunc(func(c *compound.Compound) fabric.VisitorResult {
		if !c.IsActive() {
			return fabric.Prune
		}
		if !c.IsLeaf() || c.Channel() == nil || c.Channel().Pipe() != a.pipe {
			return fabric.Continue
		}
		a.use(c, usage.take(a.pipe, a.resources))
		return fabric.Terminate
	}))
}

// assignPrevious keeps leaves on other pipes that were used last frame,
// when resources are left and their pipe is still free.
func (a *viewAssignment) assignPrevious(usage pipeUsage) {
	a.child.Accept(compound.VisitorFunc(func(c *compound.Compound) fabric.VisitorResult {
		if !c.IsActive() {
			return fabric.Prune
		}
		if !c.IsLeaf() || c.Channel() == nil || c.Usage() == 0 {
			return fabric.Continue
		}
		pipe := c.Channel().Pipe()
		if pipe == a.pipe {
			return fabric.Continue
		}
		c.SetUsage(0)
		if a.resources <= minUsage || usage[pipe] > 0 {
			return fabric.Continue
		}
		share := min32(1, a.resources)
		if share+minUsage > 1 {
			share = 1
		}
		usage[pipe] = share
		a.use(c, share)
		return fabric.Continue
	}))
}

// assignNew hands the remaining resources to unused leaves. Without any
// channel assigned, the first active leaf gets at least a full resource.
func (a *viewAssignment) assignNew(usage pipeUsage) {
	var fallback *compound.Compound
	a.child.Accept(compound.VisitorFunc(func(c *compound.Compound) fabric.VisitorResult {
		if !c.IsActive() {
			return fabric.Prune
		}
		if !c.IsLeaf() || c.Channel() == nil {
			return fabric.Continue
		}
		if fallback == nil {
			fallback = c
		}
		if c.Usage() != 0 {
			return fabric.Continue
		}
		share := usage.take(c.Channel().Pipe(), a.resources)
		if share == 0 {
			return fabric.Continue
		}
		a.use(c, share)
		if a.resources <= minUsage {
			return fabric.Terminate
		}
		return fabric.Continue
	}))

	if a.channels == 0 && fallback != nil {
		fallback.SetUsage(max32(a.resources, 1))
		a.resources = 0
		a.channels = 1
	}
}
