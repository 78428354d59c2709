package resources

import (
	"fmt"
	"math"

	"golang.org/x/net/context"

	"github.com/twitter/equalizer/fabric"
)

// WindowHints are the drawable capabilities requested for a window.
type WindowHints struct {
	Stereo       fabric.IAttr
	Doublebuffer fabric.IAttr
	FBO          bool
}

// Window is one drawable of a pipe.
type Window struct {
	resource
	index           int
	pipe            *Pipe
	pvp             fabric.PixelViewport
	hints           WindowHints
	channels        []*Channel
	lastDrawChannel *Channel
	maxFPS          float32
	swapFinish      bool
	barriers        []*SwapBarrier
}

func newWindow(pipe *Pipe, index int, name string, pvp fabric.PixelViewport) *Window {
	w := &Window{
		resource: newResource("window", name, fmt.Sprintf("%s.%d", pipe.path, index),
			fabric.OpWindowConfigInit, fabric.OpWindowConfigExit),
		index:  index,
		pipe:   pipe,
		pvp:    pvp,
		maxFPS: math.MaxFloat32,
		hints:  WindowHints{Stereo: fabric.Auto, Doublebuffer: fabric.Auto},
	}
	w.node = pipe.node
	return w
}

func (w *Window) Index() int                                { return w.index }
func (w *Window) Pipe() *Pipe                               { return w.pipe }
func (w *Window) Node() *Node                               { return w.node }
func (w *Window) Channels() []*Channel                      { return w.channels }
func (w *Window) PixelViewport() fabric.PixelViewport       { return w.pvp }
func (w *Window) SetPixelViewport(pvp fabric.PixelViewport) { w.pvp = pvp }
func (w *Window) Hints() WindowHints                        { return w.hints }
func (w *Window) SetHints(h WindowHints)                    { w.hints = h }
func (w *Window) LastDrawChannel() *Channel                 { return w.lastDrawChannel }
func (w *Window) SetLastDrawChannel(c *Channel)             { w.lastDrawChannel = c }
func (w *Window) MaxFPS() float32                           { return w.maxFPS }
func (w *Window) SwapBarriers() []*SwapBarrier              { return w.barriers }
func (w *Window) SetPendingDelete(del bool)                 { w.setPendingDelete(del) }

// IsQuadBuffered tells whether the window renders hardware stereo.
func (w *Window) IsQuadBuffered() bool {
	return w.hints.Stereo == fabric.On && !w.hints.FBO
}

// IsDoubleBuffered is true unless double buffering was turned off or the
// window renders into an FBO.
func (w *Window) IsDoubleBuffered() bool {
	return w.hints.Doublebuffer != fabric.Off && !w.hints.FBO
}

// AddChannel appends a channel covering vp of the window.
func (w *Window) AddChannel(name string, vp fabric.Viewport) *Channel {
	c := newChannel(w, len(w.channels), name)
	c.vp = vp
	w.channels = append(w.channels, c)
	return c
}

func (w *Window) RemoveChannel(c *Channel) bool {
	for i, cand := range w.channels {
		if cand == c {
			w.channels = append(w.channels[:i], w.channels[i+1:]...)
			return true
		}
	}
	return false
}

func (w *Window) activate() {
	w.active++
	w.pipe.activate()
}

func (w *Window) deactivate() {
	if w.active > 0 {
		w.active--
		w.pipe.deactivate()
	}
}

func (w *Window) ConfigInit(initID string, frame uint32)  { w.configInit(initID, frame) }
func (w *Window) SyncConfigInit(ctx context.Context) bool { return w.syncConfigInit(ctx) }
func (w *Window) ConfigExit()                             { w.configExit() }
func (w *Window) SyncConfigExit(ctx context.Context) bool { return w.syncConfigExit(ctx) }

// AddTasks records tasks executed on this window this frame.
func (w *Window) AddTasks(tasks fabric.Task) {
	w.tasks |= tasks
	w.pipe.AddTasks(tasks)
}

func (w *Window) resetTasks() { w.tasks = fabric.TaskNone }

// LimitMaxFPS lowers the frame rate the window swaps at for the next frame.
func (w *Window) LimitMaxFPS(fps float32) {
	if fps < w.maxFPS {
		w.maxFPS = fps
	}
}

// JoinSwapBarrier adds the window to barrier and returns it. A nil barrier
// creates a new one named name.
func (w *Window) JoinSwapBarrier(barrier *SwapBarrier, name string) *SwapBarrier {
	w.swapFinish = true
	if barrier == nil {
		barrier = NewSwapBarrier(name)
	}
	for _, b := range w.barriers {
		if b == barrier {
			return barrier
		}
	}
	barrier.join(w)
	w.barriers = append(w.barriers, barrier)
	return barrier
}

// ResetSwapBarriers leaves every barrier joined for the last frame.
func (w *Window) ResetSwapBarriers() {
	w.barriers = nil
	w.swapFinish = false
}

func (w *Window) updateDraw(frameID string, frame uint32, updater ChannelUpdater) {
	if !w.IsRunning() {
		return
	}
	w.send(fabric.Command{Op: fabric.OpWindowFrameStart, Entity: w.path, Frame: frame, FrameID: frameID})

	for _, c := range w.channels {
		c.update(frameID, frame, updater)
	}

	if w.lastDrawChannel == nil {
		w.send(fabric.Command{Op: fabric.OpWindowFrameDrawFinish, Entity: w.path, Frame: frame, FrameID: frameID})
	}
	w.lastDrawChannel = nil
}

func (w *Window) updatePost(frameID string, frame uint32) {
	if !w.IsRunning() {
		return
	}
	if w.maxFPS < math.MaxFloat32 {
		w.send(fabric.Command{
			Op:           fabric.OpWindowThrottleFramerate,
			Entity:       w.path,
			Frame:        frame,
			MinFrameTime: 1000 / w.maxFPS,
		})
		w.maxFPS = math.MaxFloat32
	}
	for _, b := range w.barriers {
		if b.Height() < 2 {
			continue
		}
		w.send(fabric.Command{
			Op:          fabric.OpWindowBarrier,
			Entity:      w.path,
			Frame:       frame,
			BarrierID:   b.ID(),
			BarrierSize: b.Height(),
		})
	}
	w.send(fabric.Command{
		Op:      fabric.OpWindowFrameFinish,
		Entity:  w.path,
		Frame:   frame,
		FrameID: frameID,
		Finish:  w.swapFinish,
	})
}
