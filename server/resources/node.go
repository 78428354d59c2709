package resources

import (
	"strconv"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/fabric"
)

// ThreadModel selects how far a node's render threads may run ahead of
// the frames they drew.
type ThreadModel int

const (
	ThreadModelUndefined ThreadModel = iota
	ThreadModelAsync
	ThreadModelDrawSync
	ThreadModelLocalSync
)

// Node is one render client process. It owns its pipes and is the only
// entity that talks to the transport.
type Node struct {
	resource
	index       int
	sender      Sender
	pipes       []*Pipe
	threadModel ThreadModel
	latency     uint32

	// frame number -> frame id for frames not yet released to the client.
	frameIDs      *lru.Cache
	finishedFrame uint32
	flushedFrame  uint32
	lastDrawPipe  *Pipe
	connected     bool
}

// NewNode creates a node addressed by name on the transport. latency sizes
// the table of unreleased frame ids.
func NewNode(index int, name string, sender Sender, latency uint32) (*Node, error) {
	frameIDs, err := lru.New(frameIDCapacity(latency))
	if err != nil {
		return nil, errors.Wrapf(err, "node %s", name)
	}
	n := &Node{
		resource: newResource("node", name, strconv.Itoa(index), fabric.OpNodeConfigInit, fabric.OpNodeConfigExit),
		index:    index,
		sender:   sender,
		latency:  latency,
		frameIDs: frameIDs,
	}
	n.node = n
	return n, nil
}

// A node holds at most latency+1 unreleased frames between update and
// flush.
func frameIDCapacity(latency uint32) int { return int(latency) + 2 }

func (n *Node) Index() int                    { return n.index }
func (n *Node) Pipes() []*Pipe                { return n.pipes }
func (n *Node) FinishedFrame() uint32         { return n.finishedFrame }
func (n *Node) FlushedFrame() uint32          { return n.flushedFrame }
func (n *Node) IsConnected() bool             { return n.connected }
func (n *Node) SetConnected(connected bool)   { n.connected = connected }
func (n *Node) ThreadModel() ThreadModel      { return n.threadModel }
func (n *Node) SetThreadModel(tm ThreadModel) { n.threadModel = tm }
func (n *Node) LastDrawPipe() *Pipe           { return n.lastDrawPipe }
func (n *Node) SetLastDrawPipe(p *Pipe)       { n.lastDrawPipe = p }
func (n *Node) SetPendingDelete(del bool)     { n.setPendingDelete(del) }
func (n *Node) PendingFrames() int            { return n.frameIDs.Len() }

// AddPipe appends a pipe with the next index.
func (n *Node) AddPipe(name string) *Pipe {
	p := newPipe(n, len(n.pipes), name)
	n.pipes = append(n.pipes, p)
	return p
}

// RemovePipe detaches a stopped pipe.
func (n *Node) RemovePipe(p *Pipe) bool {
	for i, cand := range n.pipes {
		if cand == p {
			n.pipes = append(n.pipes[:i], n.pipes[i+1:]...)
			return true
		}
	}
	return false
}

// SetLatency resizes the frame id table.
func (n *Node) SetLatency(latency uint32) {
	n.latency = latency
	if evicted := n.frameIDs.Resize(frameIDCapacity(latency)); evicted > 0 {
		log.WithFields(n.fields()).Warnf("Dropped %d unreleased frame ids on latency change", evicted)
	}
}

func (n *Node) activate() { n.active++ }

func (n *Node) deactivate() {
	if n.active > 0 {
		n.active--
	}
}

// send delivers cmd to the render client. A transport failure marks a
// running node FAILED.
func (n *Node) send(cmd fabric.Command) {
	if n.sender == nil {
		return
	}
	if err := n.sender.Send(n.name, cmd); err != nil {
		err = errors.Wrapf(err, "sending %s to node %s", cmd.Op, n.name)
		log.WithFields(n.fields()).Warnf("%v", err)
		n.lastErr = err.Error()
		if n.State() == StateRunning {
			n.monitor.Set(StateFailed)
		}
	}
}

// Send is used by the compound layer to emit channel task commands.
func (n *Node) Send(cmd fabric.Command) { n.send(cmd) }

// ConfigInit starts initialization of the node. Frame accounting restarts
// at the config's last finished frame.
func (n *Node) ConfigInit(initID string, finishedFrame uint32) {
	n.flushedFrame = finishedFrame
	n.finishedFrame = finishedFrame
	n.frameIDs.Purge()
	n.configInit(initID, finishedFrame)
}

func (n *Node) SyncConfigInit(ctx context.Context) bool { return n.syncConfigInit(ctx) }
func (n *Node) ConfigExit()                             { n.configExit() }

func (n *Node) SyncConfigExit(ctx context.Context) bool {
	success := n.syncConfigExit(ctx)
	n.frameIDs.Purge()
	return success
}

// SyncLaunch waits until the transport reported the node connected. A node
// that never connects goes to FAILED.
func (n *Node) SyncLaunch(ctx context.Context, connected <-chan error) bool {
	select {
	case err := <-connected:
		if err == nil {
			n.connected = true
			return true
		}
		n.lastErr = err.Error()
	case <-ctx.Done():
		n.lastErr = "launch timed out"
	}
	log.WithFields(n.fields()).Warnf("Launch failed: %s", n.lastErr)
	n.monitor.Set(StateFailed)
	return false
}

// Update emits the per-frame commands of this node and its pipes, then
// releases the frames the client may finish. updater generates the task
// commands of each running channel.
func (n *Node) Update(frameID string, frame uint32, updater ChannelUpdater) {
	if !n.IsRunning() {
		return
	}
	n.frameIDs.Add(frame, frameID)
	n.send(fabric.Command{Op: fabric.OpNodeFrameStart, Entity: n.path, Frame: frame, FrameID: frameID})

	for _, p := range n.pipes {
		p.update(frameID, frame, updater)
	}

	if n.lastDrawPipe == nil {
		n.send(fabric.Command{Op: fabric.OpNodeFrameDrawFinish, Entity: n.path, Frame: frame, FrameID: frameID})
	}
	n.lastDrawPipe = nil

	n.send(fabric.Command{Op: fabric.OpNodeFrameTasksFinish, Entity: n.path, Frame: frame, FrameID: frameID})
	n.finish(frame)
}

// FinishLatency is how many frames the node may lag behind the frames it
// was sent.
func (n *Node) FinishLatency() uint32 {
	switch n.threadModel {
	case ThreadModelUndefined, ThreadModelDrawSync:
		// the draw sync for frame+1 is not released before frame is drawn
		if n.tasks.Has(fabric.TaskDraw) && n.latency > 1 {
			return 1
		}
	case ThreadModelLocalSync:
		if n.tasks != fabric.TaskNone {
			return 0
		}
	}
	return n.latency
}

func (n *Node) finish(frame uint32) {
	for _, p := range n.pipes {
		if p.threaded && p.IsRunning() {
			latency := n.FinishLatency()
			if frame > latency {
				n.FlushFrames(frame - latency)
			}
			return
		}
	}
	// only unthreaded pipes: all local tasks are done
	n.FlushFrames(frame)
}

// FlushFrames releases every frame up to and including frame.
func (n *Node) FlushFrames(frame uint32) {
	for n.flushedFrame < frame {
		n.flushedFrame++
		id, ok := n.frameIDs.Get(n.flushedFrame)
		if !ok {
			continue
		}
		n.send(fabric.Command{
			Op:      fabric.OpNodeFrameFinish,
			Entity:  n.path,
			Frame:   n.flushedFrame,
			FrameID: id.(string),
		})
		n.frameIDs.Remove(n.flushedFrame)
	}
}

// FrameFinished records a frame finish reported by the client.
func (n *Node) FrameFinished(frame uint32) {
	if frame > n.finishedFrame {
		n.finishedFrame = frame
	}
}

// AddTasks records tasks executed on this node this frame.
func (n *Node) AddTasks(tasks fabric.Task) { n.tasks |= tasks }

func (n *Node) resetTasks() { n.tasks = fabric.TaskNone }

// Disconnected fails the node and every entity below it.
func (n *Node) Disconnected() {
	n.connected = false
	n.resource.Disconnected()
	n.eachChild(func(e Entity) { e.Disconnected() })
}

// Fail marks the node and every running entity below it FAILED, keeping
// the connection. Used when the client stopped finishing frames.
func (n *Node) Fail(reason string) {
	fail := func(e Entity) {
		if !e.IsRunning() {
			return
		}
		if err := e.Monitor().Set(StateFailed); err != nil {
			log.WithFields(n.fields()).Warnf("%v", err)
		}
	}
	fail(n)
	n.eachChild(fail)
	n.lastErr = reason
}

// eachChild calls fn on the pipes, windows and channels of the node.
func (n *Node) eachChild(fn func(e Entity)) {
	for _, p := range n.pipes {
		fn(p)
		for _, w := range p.windows {
			fn(w)
			for _, c := range w.channels {
				fn(c)
			}
		}
	}
}
