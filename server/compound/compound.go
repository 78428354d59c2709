// Package compound implements the task decomposition tree: compounds bound
// to channels, the per-frame inheritance of their rendering parameters and
// the frusta derived from walls, views and segments.
package compound

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/frames"
	"github.com/twitter/equalizer/server/resources"
)

// ID addresses a compound in its Tree.
type ID int

// NoParent is the parent of root compounds.
const NoParent ID = -1

// Undefined marks an unset period or phase.
const Undefined = math.MaxUint32

var invalidPVP = fabric.PixelViewport{W: -1, H: -1}

// Data is the set of parameters a compound renders with. The configured
// copy holds explicit overrides; the inherited copy is recomputed every
// frame from the root down.
type Data struct {
	Channel  *resources.Channel
	VP       fabric.Viewport
	PVP      fabric.PixelViewport
	Overdraw fabric.Vector4i
	Range    fabric.Range
	Pixel    fabric.Pixel
	SubPixel fabric.SubPixel
	Zoom     fabric.Zoom
	Period   uint32
	Phase    uint32
	MaxFPS   float32
	Eyes     fabric.Eye
	Tasks    fabric.Task
	Buffers  fabric.Buffer

	Frustum    fabric.FrustumData
	HasFrustum bool

	StereoMode    fabric.StereoMode
	AnaglyphLeft  fabric.ColorMask
	AnaglyphRight fabric.ColorMask

	// Configured: activation count per eye. Inherited: 1 if the eye
	// renders this frame.
	Active [3]int
}

func newData() Data {
	return Data{
		VP:         fabric.FullViewport,
		PVP:        invalidPVP,
		Range:      fabric.FullRange,
		Pixel:      fabric.PixelAll,
		SubPixel:   fabric.SubPixelAll,
		Zoom:       fabric.ZoomNone,
		Period:     Undefined,
		Phase:      Undefined,
		MaxFPS:     fabric.DefaultMaxFPS,
		Eyes:       fabric.EyeUndefined,
		Tasks:      fabric.TaskDefault,
		Buffers:    fabric.BufferUndefined,
		StereoMode: fabric.StereoUndefined,
	}
}

// Listener receives the lifecycle notifications of a compound.
type Listener interface {
	NotifyUpdatePre(c *Compound, frame uint32)
	NotifyChildAdded(c *Compound, child *Compound)
	NotifyChildRemove(c *Compound, child *Compound)
}

var ErrDoubleAttach = errors.New("equalizer already attached to compound")

// Compound is one node of the decomposition tree. Children are owned by
// their parent; the parent link and channel are borrowed references.
type Compound struct {
	tree     *Tree
	id       ID
	parent   ID
	children []ID
	name     string

	data    Data
	inherit Data
	frustum resources.FrustumSetting
	usage   float32
	taskID  uint32

	// view version the frustum was last derived from
	viewVersion uint32

	equalizers   []Equalizer
	listeners    []Listener
	swapBarrier  string
	inputFrames  []*frames.Frame
	outputFrames []*frames.Frame
	inputQueues  []*frames.TileQueue
	outputQueues []*frames.TileQueue
}

func (c *Compound) ID() ID                  { return c.id }
func (c *Compound) Tree() *Tree             { return c.tree }
func (c *Compound) Name() string            { return c.name }
func (c *Compound) SetName(name string)     { c.name = name }
func (c *Compound) IsRoot() bool            { return c.parent == NoParent }
func (c *Compound) IsLeaf() bool            { return len(c.children) == 0 }
func (c *Compound) TaskID() uint32          { return c.taskID }
func (c *Compound) SetTaskID(id uint32)     { c.taskID = id }
func (c *Compound) Usage() float32          { return c.usage }
func (c *Compound) SetUsage(usage float32)  { c.usage = usage }
func (c *Compound) Equalizers() []Equalizer { return c.equalizers }
func (c *Compound) Listeners() []Listener   { return c.listeners }
func (c *Compound) Data() Data              { return c.data }
func (c *Compound) Inherit() Data           { return c.inherit }

func (c *Compound) Frustum() resources.FrustumSetting { return c.frustum }

func (c *Compound) String() string {
	if c.name != "" {
		return c.name
	}
	return fmt.Sprintf("compound %d", c.id)
}

func (c *Compound) fields() log.Fields { return log.Fields{"compound": c.String()} }

// Parent returns nil for a root.
func (c *Compound) Parent() *Compound {
	if c.parent == NoParent {
		return nil
	}
	return c.tree.Get(c.parent)
}

func (c *Compound) Root() *Compound {
	root := c
	for p := root.Parent(); p != nil; p = root.Parent() {
		root = p
	}
	return root
}

func (c *Compound) Children() []*Compound {
	out := make([]*Compound, 0, len(c.children))
	for _, id := range c.children {
		out = append(out, c.tree.Get(id))
	}
	return out
}

// AddChild creates a compound below c.
func (c *Compound) AddChild(name string) *Compound {
	child := c.tree.alloc(name, c.id)
	c.children = append(c.children, child.id)
	for _, l := range c.listeners {
		l.NotifyChildAdded(c, child)
	}
	return child
}

// Channel is the channel c renders to: its own or the nearest ancestor's.
func (c *Compound) Channel() *resources.Channel {
	for cur := c; cur != nil; cur = cur.Parent() {
		if cur.data.Channel != nil {
			return cur.data.Channel
		}
	}
	return nil
}

// OwnChannel is the channel configured on c itself.
func (c *Compound) OwnChannel() *resources.Channel { return c.data.Channel }

// SetChannel binds c to channel. A destination picks up the swap barrier
// of the segment it displays.
func (c *Compound) SetChannel(channel *resources.Channel) {
	c.data.Channel = channel
	if !c.IsDestination() || channel.Segment() == nil {
		return
	}
	if name := channel.Segment().SwapBarrier(); name != "" {
		c.SetSwapBarrier(name)
	}
}

func (c *Compound) Window() *resources.Window {
	if ch := c.Channel(); ch != nil {
		return ch.Window()
	}
	return nil
}

func (c *Compound) Node() *resources.Node {
	if ch := c.Channel(); ch != nil {
		return ch.Node()
	}
	return nil
}

// IsDestination tells whether c is the topmost compound rendering to its
// channel.
func (c *Compound) IsDestination() bool {
	if c.Channel() == nil {
		return false
	}
	for p := c.Parent(); p != nil; p = p.Parent() {
		if p.Channel() != nil {
			return false
		}
	}
	return true
}

// HasDestinationChannel tells whether c renders directly into the channel
// it inherits its output from.
func (c *Compound) HasDestinationChannel() bool {
	ch := c.Channel()
	return ch != nil && ch == c.inherit.Channel
}

func (c *Compound) Viewport() fabric.Viewport         { return c.data.VP }
func (c *Compound) SetViewport(vp fabric.Viewport)    { c.data.VP = vp }
func (c *Compound) Range() fabric.Range               { return c.data.Range }
func (c *Compound) SetRange(r fabric.Range)           { c.data.Range = r }
func (c *Compound) Pixel() fabric.Pixel               { return c.data.Pixel }
func (c *Compound) SetPixel(p fabric.Pixel)           { c.data.Pixel = p }
func (c *Compound) SubPixel() fabric.SubPixel         { return c.data.SubPixel }
func (c *Compound) SetSubPixel(s fabric.SubPixel)     { c.data.SubPixel = s }
func (c *Compound) Zoom() fabric.Zoom                 { return c.data.Zoom }
func (c *Compound) SetZoom(z fabric.Zoom)             { c.data.Zoom = z }
func (c *Compound) Period() uint32                    { return c.data.Period }
func (c *Compound) SetPeriod(period uint32)           { c.data.Period = period }
func (c *Compound) Phase() uint32                     { return c.data.Phase }
func (c *Compound) SetPhase(phase uint32)             { c.data.Phase = phase }
func (c *Compound) MaxFPS() float32                   { return c.data.MaxFPS }
func (c *Compound) SetMaxFPS(fps float32)             { c.data.MaxFPS = fps }
func (c *Compound) Eyes() fabric.Eye                  { return c.data.Eyes }
func (c *Compound) SetEyes(eyes fabric.Eye)           { c.data.Eyes = eyes }
func (c *Compound) EnableEye(eye fabric.Eye)          { c.data.Eyes |= eye }
func (c *Compound) Tasks() fabric.Task                { return c.data.Tasks }
func (c *Compound) SetTasks(tasks fabric.Task)        { c.data.Tasks = tasks }
func (c *Compound) Buffers() fabric.Buffer            { return c.data.Buffers }
func (c *Compound) SetBuffers(b fabric.Buffer)        { c.data.Buffers = b }
func (c *Compound) SetStereoMode(m fabric.StereoMode) { c.data.StereoMode = m }

func (c *Compound) SetAnaglyphMasks(left, right fabric.ColorMask) {
	c.data.AnaglyphLeft = left
	c.data.AnaglyphRight = right
}

// SetWall sets the frustum of c explicitly.
func (c *Compound) SetWall(wall fabric.Wall) {
	c.frustum.SetWall(wall)
	c.data.Frustum = fabric.NewFrustumData(wall)
	c.data.HasFrustum = true
}

func (c *Compound) SetProjection(p fabric.Projection) {
	c.frustum.SetProjection(p)
	c.data.Frustum = fabric.NewFrustumData(p.ToWall())
	c.data.HasFrustum = true
}

func (c *Compound) InheritChannel() *resources.Channel   { return c.inherit.Channel }
func (c *Compound) InheritPVP() fabric.PixelViewport     { return c.inherit.PVP }
func (c *Compound) InheritViewport() fabric.Viewport     { return c.inherit.VP }
func (c *Compound) InheritRange() fabric.Range           { return c.inherit.Range }
func (c *Compound) InheritZoom() fabric.Zoom             { return c.inherit.Zoom }
func (c *Compound) InheritTasks() fabric.Task            { return c.inherit.Tasks }
func (c *Compound) InheritEyes() fabric.Eye              { return c.inherit.Eyes }
func (c *Compound) InheritPeriod() uint32                { return c.inherit.Period }
func (c *Compound) InheritMaxFPS() float32               { return c.inherit.MaxFPS }
func (c *Compound) InheritBuffers() fabric.Buffer        { return c.inherit.Buffers }
func (c *Compound) InheritStereoMode() fabric.StereoMode { return c.inherit.StereoMode }
func (c *Compound) TestInheritTask(t fabric.Task) bool   { return c.inherit.Tasks&t != 0 }
func (c *Compound) UnsetInheritTask(t fabric.Task)       { c.inherit.Tasks &^= t }

// AnaglyphMask is the color mask of eye in anaglyph stereo.
func (c *Compound) AnaglyphMask(eye fabric.Eye) fabric.ColorMask {
	switch eye {
	case fabric.EyeLeft:
		return c.inherit.AnaglyphLeft
	case fabric.EyeRight:
		return c.inherit.AnaglyphRight
	}
	return fabric.ColorMaskAll
}

func (c *Compound) IsInheritActive(eye fabric.Eye) bool {
	return c.inherit.Active[fabric.EyeIndex(eye)] != 0
}

// IsLastInheritEye tells whether no later eye pass is active.
func (c *Compound) IsLastInheritEye(eye fabric.Eye) bool {
	for i := fabric.EyeIndex(eye) + 1; i < len(c.inherit.Active); i++ {
		if c.inherit.Active[i] != 0 {
			return false
		}
	}
	return true
}

// IsActive tells whether c renders anything this frame. Compounds above
// the channels are active while one of their children is.
func (c *Compound) IsActive() bool {
	if c.Channel() == nil {
		for _, child := range c.Children() {
			if child.IsActive() {
				return true
			}
		}
		return false
	}
	active := false
	for _, a := range c.inherit.Active {
		active = active || a != 0
	}
	if !active {
		return false
	}
	ch := c.Channel()
	return ch == nil || ch.IsRunning()
}

// ActiveCount is how often eye was activated on c.
func (c *Compound) ActiveCount(eye fabric.Eye) int { return c.data.Active[fabric.EyeIndex(eye)] }

// Activate enables eyes on c and activates the channels below it.
func (c *Compound) Activate(eyes fabric.Eye) {
	for i, eye := range fabric.EachEye {
		if eyes&eye == 0 {
			continue
		}
		c.data.Active[i]++
		if c.Channel() == nil {
			continue
		}
		c.Accept(channelActivator{activate: true})
	}
}

// Deactivate reverts Activate.
func (c *Compound) Deactivate(eyes fabric.Eye) {
	for i, eye := range fabric.EachEye {
		if eyes&eye == 0 || c.data.Active[i] == 0 {
			continue
		}
		c.data.Active[i]--
		if c.Channel() == nil {
			continue
		}
		c.Accept(channelActivator{activate: false})
	}
}

type channelActivator struct{ activate bool }

func (a channelActivator) visit(c *Compound) fabric.VisitorResult {
	if ch := c.OwnChannel(); ch != nil {
		if a.activate {
			ch.Activate()
		} else {
			ch.Deactivate()
		}
	}
	return fabric.Continue
}

func (a channelActivator) VisitPre(c *Compound) fabric.VisitorResult  { return a.visit(c) }
func (a channelActivator) VisitLeaf(c *Compound) fabric.VisitorResult { return a.visit(c) }
func (a channelActivator) VisitPost(c *Compound) fabric.VisitorResult { return fabric.Continue }

// AddEqualizer attaches eq to c, detaching it from its previous compound.
func (c *Compound) AddEqualizer(eq Equalizer) error {
	if old := eq.Compound(); old != nil {
		if old == c {
			return errors.Wrapf(ErrDoubleAttach, "compound %s", c)
		}
		old.RemoveEqualizer(eq)
	}
	c.equalizers = append(c.equalizers, eq)
	c.listeners = append(c.listeners, eq)
	eq.Attach(c)
	return nil
}

func (c *Compound) RemoveEqualizer(eq Equalizer) bool {
	for i, cand := range c.equalizers {
		if cand == eq {
			c.equalizers = append(c.equalizers[:i], c.equalizers[i+1:]...)
			c.RemoveListener(eq)
			eq.Attach(nil)
			return true
		}
	}
	return false
}

func (c *Compound) AddListener(l Listener) { c.listeners = append(c.listeners, l) }

func (c *Compound) RemoveListener(l Listener) bool {
	for i, cand := range c.listeners {
		if cand == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// FireUpdatePre notifies the listeners before c is updated for frame.
func (c *Compound) FireUpdatePre(frame uint32) {
	listeners := append([]Listener(nil), c.listeners...)
	for _, l := range listeners {
		l.NotifyUpdatePre(c, frame)
	}
}

// SwapBarrier is the name of the swap barrier of c, empty if none.
func (c *Compound) SwapBarrier() string { return c.swapBarrier }

// SetSwapBarrier joins c to the named barrier. An empty name uses the
// default barrier of the root compound.
func (c *Compound) SetSwapBarrier(name string) {
	if name == "" {
		prefix := c.tree.defaults.SwapBarrierPrefix
		if root := c.Root().name; root != "" {
			name = prefix + "." + root
		} else {
			name = prefix
		}
	}
	c.swapBarrier = name
}

func (c *Compound) ClearSwapBarrier() { c.swapBarrier = "" }

func (c *Compound) InputFrames() []*frames.Frame      { return c.inputFrames }
func (c *Compound) OutputFrames() []*frames.Frame     { return c.outputFrames }
func (c *Compound) InputQueues() []*frames.TileQueue  { return c.inputQueues }
func (c *Compound) OutputQueues() []*frames.TileQueue { return c.outputQueues }
func (c *Compound) HasTiles() bool                    { return len(c.inputQueues) > 0 }

func (c *Compound) AddInputFrame(f *frames.Frame) {
	if f.Name() == "" {
		f.SetName(c.defaultName(c.tree.defaults.OutputFramePrefix))
	}
	c.inputFrames = append(c.inputFrames, f)
}

func (c *Compound) AddOutputFrame(f *frames.Frame) {
	if f.Name() == "" {
		f.SetName(c.defaultName(c.tree.defaults.OutputFramePrefix))
	}
	c.outputFrames = append(c.outputFrames, f)
}

func (c *Compound) AddInputQueue(q *frames.TileQueue) {
	if q.Name() == "" {
		q.SetName(c.defaultName("queue"))
	}
	c.inputQueues = append(c.inputQueues, q)
}

func (c *Compound) AddOutputQueue(q *frames.TileQueue) {
	if q.Name() == "" {
		q.SetName(c.defaultName("queue"))
	}
	c.outputQueues = append(c.outputQueues, q)
}

func (c *Compound) RemoveInputQueue(q *frames.TileQueue) bool {
	var ok bool
	c.inputQueues, ok = removeQueue(c.inputQueues, q)
	return ok
}

func (c *Compound) RemoveOutputQueue(q *frames.TileQueue) bool {
	var ok bool
	c.outputQueues, ok = removeQueue(c.outputQueues, q)
	return ok
}

func removeQueue(queues []*frames.TileQueue, q *frames.TileQueue) ([]*frames.TileQueue, bool) {
	for i, cand := range queues {
		if cand == q {
			return append(queues[:i], queues[i+1:]...), true
		}
	}
	return queues, false
}

// defaultName derives a payload name from the nearest named compound or
// channel.
func (c *Compound) defaultName(prefix string) string {
	for cur := c; cur != nil; cur = cur.Parent() {
		if cur.name != "" {
			return prefix + "." + cur.name
		}
		if ch := cur.Channel(); ch != nil && ch.Name() != "" {
			return prefix + "." + ch.Name()
		}
	}
	return prefix
}

// SetLatency propagates a latency change to the payloads of c.
func (c *Compound) SetLatency(latency uint32) {
	for _, f := range c.outputFrames {
		f.SetLatency(latency)
	}
	for _, f := range c.inputFrames {
		f.SetLatency(latency)
	}
	for _, q := range c.outputQueues {
		q.SetLatency(latency)
	}
	for _, q := range c.inputQueues {
		q.SetLatency(latency)
	}
}

// Flush releases every payload of c.
func (c *Compound) Flush() {
	for _, f := range c.outputFrames {
		f.Flush()
	}
	for _, f := range c.inputFrames {
		f.UnsetData()
	}
	for _, q := range c.outputQueues {
		q.Flush()
	}
	for _, q := range c.inputQueues {
		q.UnsetData()
	}
}

// release withdraws the payloads of c from their session.
func (c *Compound) release() {
	for _, f := range c.outputFrames {
		f.Deregister()
	}
	for _, f := range c.inputFrames {
		f.Deregister()
	}
	for _, q := range c.outputQueues {
		q.Deregister()
	}
	for _, q := range c.inputQueues {
		q.Deregister()
	}
	for len(c.equalizers) > 0 {
		c.RemoveEqualizer(c.equalizers[0])
	}
}
