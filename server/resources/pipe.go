package resources

import (
	"fmt"

	"golang.org/x/net/context"

	"github.com/twitter/equalizer/fabric"
)

// Pipe is one GPU of a node.
type Pipe struct {
	resource
	index          int
	device         uint32
	threaded       bool
	windows        []*Window
	lastDrawWindow *Window
}

func newPipe(node *Node, index int, name string) *Pipe {
	p := &Pipe{
		resource: newResource("pipe", name, fmt.Sprintf("%s.%d", node.path, index),
			fabric.OpPipeConfigInit, fabric.OpPipeConfigExit),
		index:    index,
		threaded: true,
	}
	p.node = node
	return p
}

func (p *Pipe) Index() int                  { return p.index }
func (p *Pipe) Node() *Node                 { return p.node }
func (p *Pipe) Windows() []*Window          { return p.windows }
func (p *Pipe) Device() uint32              { return p.device }
func (p *Pipe) SetDevice(device uint32)     { p.device = device }
func (p *Pipe) IsThreaded() bool            { return p.threaded }
func (p *Pipe) SetThreaded(threaded bool)   { p.threaded = threaded }
func (p *Pipe) LastDrawWindow() *Window     { return p.lastDrawWindow }
func (p *Pipe) SetLastDrawWindow(w *Window) { p.lastDrawWindow = w }
func (p *Pipe) SetPendingDelete(del bool)   { p.setPendingDelete(del) }

// AddWindow appends a window with the next index.
func (p *Pipe) AddWindow(name string, pvp fabric.PixelViewport) *Window {
	w := newWindow(p, len(p.windows), name, pvp)
	p.windows = append(p.windows, w)
	return w
}

func (p *Pipe) RemoveWindow(w *Window) bool {
	for i, cand := range p.windows {
		if cand == w {
			p.windows = append(p.windows[:i], p.windows[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pipe) activate() {
	p.active++
	p.node.activate()
}

func (p *Pipe) deactivate() {
	if p.active > 0 {
		p.active--
		p.node.deactivate()
	}
}

func (p *Pipe) ConfigInit(initID string, frame uint32)  { p.configInit(initID, frame) }
func (p *Pipe) SyncConfigInit(ctx context.Context) bool { return p.syncConfigInit(ctx) }
func (p *Pipe) ConfigExit()                             { p.configExit() }
func (p *Pipe) SyncConfigExit(ctx context.Context) bool { return p.syncConfigExit(ctx) }

// AddTasks records tasks executed on this pipe this frame.
func (p *Pipe) AddTasks(tasks fabric.Task) {
	p.tasks |= tasks
	p.node.AddTasks(tasks)
}

func (p *Pipe) resetTasks() { p.tasks = fabric.TaskNone }

func (p *Pipe) update(frameID string, frame uint32, updater ChannelUpdater) {
	if !p.IsRunning() {
		return
	}
	p.send(fabric.Command{Op: fabric.OpPipeFrameStartClock, Entity: p.path, Frame: frame})
	p.send(fabric.Command{Op: fabric.OpPipeFrameStart, Entity: p.path, Frame: frame, FrameID: frameID})

	for _, w := range p.windows {
		w.updateDraw(frameID, frame, updater)
	}
	for _, w := range p.windows {
		w.updatePost(frameID, frame)
	}

	if p.lastDrawWindow == nil {
		p.send(fabric.Command{Op: fabric.OpPipeFrameDrawFinish, Entity: p.path, Frame: frame, FrameID: frameID})
	}
	p.lastDrawWindow = nil

	p.send(fabric.Command{Op: fabric.OpPipeFrameFinish, Entity: p.path, Frame: frame, FrameID: frameID})
}
