package resources

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/fabric"
)

// NoCompound marks a channel no compound draws to this frame.
const NoCompound = -1

// ChannelListener receives the load statistics a render client reports for
// one frame of a channel.
type ChannelListener interface {
	NotifyLoadData(c *Channel, frame uint32, stats []fabric.Statistic, region fabric.Viewport)
}

// ChannelUpdater emits the task commands of one running channel for one
// frame and tells whether any task was generated.
type ChannelUpdater interface {
	UpdateChannel(c *Channel, frameID string, frame uint32) bool
}

// Channel is a render surface inside a window. Destination channels also
// carry the view and segment they display; both are borrowed references
// cleared when the owner goes away.
type Channel struct {
	resource
	index    int
	window   *Window
	vp       fabric.Viewport
	pvp      fabric.PixelViewport
	fixedPVP bool
	maxSize  fabric.Vector2i
	overdraw fabric.Vector4i
	near     float32
	far      float32

	view    *View
	segment *Segment

	listeners        []ChannelListener
	lastDrawCompound int
}

func newChannel(w *Window, index int, name string) *Channel {
	c := &Channel{
		resource: newResource("channel", name, fmt.Sprintf("%s.%d", w.path, index),
			fabric.OpChannelConfigInit, fabric.OpChannelConfigExit),
		index:            index,
		window:           w,
		vp:               fabric.FullViewport,
		near:             fabric.DefaultFrustum.Near,
		far:              fabric.DefaultFrustum.Far,
		lastDrawCompound: NoCompound,
	}
	c.node = w.node
	return c
}

func (c *Channel) Index() int                    { return c.index }
func (c *Channel) Window() *Window               { return c.window }
func (c *Channel) Pipe() *Pipe                   { return c.window.pipe }
func (c *Channel) Node() *Node                   { return c.node }
func (c *Channel) Viewport() fabric.Viewport     { return c.vp }
func (c *Channel) MaxSize() fabric.Vector2i      { return c.maxSize }
func (c *Channel) SetMaxSize(s fabric.Vector2i)  { c.maxSize = s }
func (c *Channel) Overdraw() fabric.Vector4i     { return c.overdraw }
func (c *Channel) SetOverdraw(o fabric.Vector4i) { c.overdraw = o }
func (c *Channel) NearFar() (float32, float32)   { return c.near, c.far }
func (c *Channel) SetNearFar(near, far float32)  { c.near, c.far = near, far }
func (c *Channel) View() *View                   { return c.view }
func (c *Channel) Segment() *Segment             { return c.segment }
func (c *Channel) IsDestination() bool           { return c.view != nil && c.segment != nil }
func (c *Channel) LastDrawCompound() int         { return c.lastDrawCompound }
func (c *Channel) SetLastDrawCompound(id int)    { c.lastDrawCompound = id }
func (c *Channel) SetPendingDelete(del bool)     { c.setPendingDelete(del) }

// SetViewport places the channel relative to its window.
func (c *Channel) SetViewport(vp fabric.Viewport) {
	c.vp = vp
	c.fixedPVP = false
}

// SetPixelViewport pins the channel to an absolute region of its window.
func (c *Channel) SetPixelViewport(pvp fabric.PixelViewport) {
	c.pvp = pvp
	c.fixedPVP = true
}

// PixelViewport is the channel's region in window coordinates.
func (c *Channel) PixelViewport() fabric.PixelViewport {
	if c.fixedPVP {
		return c.pvp
	}
	wpvp := c.window.pvp
	return fabric.PixelViewport{W: wpvp.W, H: wpvp.H}.Apply(c.vp)
}

// SetOutput binds a destination channel to the view and segment it shows.
func (c *Channel) SetOutput(view *View, segment *Segment) {
	c.view = view
	c.segment = segment
}

// ClearOutput drops the view and segment references.
func (c *Channel) ClearOutput() {
	c.view = nil
	c.segment = nil
}

// Activate marks the channel as used by an active compound or layout. The
// count propagates up to the window, pipe and node.
func (c *Channel) Activate() {
	c.active++
	c.window.activate()
}

func (c *Channel) Deactivate() {
	if c.active == 0 {
		log.WithFields(c.fields()).Warn("Deactivating inactive channel")
		return
	}
	c.active--
	c.window.deactivate()
}

func (c *Channel) ConfigInit(initID string, frame uint32)  { c.configInit(initID, frame) }
func (c *Channel) SyncConfigInit(ctx context.Context) bool { return c.syncConfigInit(ctx) }
func (c *Channel) ConfigExit()                             { c.configExit() }
func (c *Channel) SyncConfigExit(ctx context.Context) bool { return c.syncConfigExit(ctx) }

// AddTasks records tasks the channel executes this frame.
func (c *Channel) AddTasks(tasks fabric.Task) {
	c.tasks |= tasks
	c.window.AddTasks(tasks)
}

// ResetFrame forgets the tasks and last draw compound of the previous
// frame.
func (c *Channel) ResetFrame() {
	c.tasks = fabric.TaskNone
	c.lastDrawCompound = NoCompound
}

// Send emits a command addressed to this channel.
func (c *Channel) Send(cmd fabric.Command) {
	cmd.Entity = c.path
	c.send(cmd)
}

func (c *Channel) AddListener(l ChannelListener) {
	c.listeners = append(c.listeners, l)
}

func (c *Channel) RemoveListener(l ChannelListener) bool {
	for i, cand := range c.listeners {
		if cand == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Channel) Listeners() int { return len(c.listeners) }

// ProcessStatistics forwards the statistics of frame to every listener.
func (c *Channel) ProcessStatistics(frame uint32, stats []fabric.Statistic, region fabric.Viewport) {
	listeners := append([]ChannelListener(nil), c.listeners...)
	for _, l := range listeners {
		l.NotifyLoadData(c, frame, stats, region)
	}
}

func (c *Channel) update(frameID string, frame uint32, updater ChannelUpdater) bool {
	if !c.IsRunning() {
		return false
	}
	c.Send(fabric.Command{Op: fabric.OpChannelFrameStart, Frame: frame, FrameID: frameID})
	updated := false
	if updater != nil {
		updated = updater.UpdateChannel(c, frameID, frame)
	}
	c.Send(fabric.Command{Op: fabric.OpChannelFrameFinish, Frame: frame, FrameID: frameID})
	return updated
}
