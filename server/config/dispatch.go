package config

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/common/stats"
	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/resources"
)

// replyHandler processes one reply opcode. async runs on the goroutine
// reading the transport and may only touch state monitors; main runs on
// the control goroutine.
type replyHandler struct {
	async func(c *Config, r fabric.Reply)
	main  func(c *Config, r fabric.Reply) error
}

var replyHandlers = map[fabric.Opcode]replyHandler{
	fabric.OpConfigInitReply:        {async: (*Config).handleStateReply},
	fabric.OpConfigExitReply:        {async: (*Config).handleStateReply},
	fabric.OpDisconnect:             {async: (*Config).resolveDisconnect, main: (*Config).handleDisconnect},
	fabric.OpFrameFinishReply:       {main: (*Config).handleFrameFinish},
	fabric.OpChannelFrameStatistics: {main: (*Config).handleStatistics},
}

// Route handles the asynchronous part of r and queues it for the control
// goroutine if it has one. It is called by the reply pump, never by the
// control goroutine, so that a blocked sync can still be resolved.
func (c *Config) Route(r fabric.Reply) {
	c.stat.Counter(stats.TransportReplyCounter).Inc(1)
	h, ok := replyHandlers[r.Op]
	if !ok {
		log.WithFields(log.Fields{"config": c.name, "op": r.Op, "node": r.Node}).Warn("Unhandled reply")
		return
	}
	if h.async != nil {
		h.async(c, r)
	}
	if h.main != nil {
		c.replies.push(r)
	}
}

// Ready is signalled when replies are queued for the control goroutine.
func (c *Config) Ready() <-chan struct{} { return c.replies.ready }

// ProcessReplies applies every queued reply and returns how many there were.
func (c *Config) ProcessReplies() int {
	replies := c.replies.drain()
	for _, r := range replies {
		if err := c.HandleReply(r); err != nil {
			log.WithFields(log.Fields{"config": c.name, "op": r.Op, "node": r.Node}).Warnf("%v", err)
		}
	}
	return len(replies)
}

// HandleReply applies the control goroutine part of r.
func (c *Config) HandleReply(r fabric.Reply) error {
	h, ok := replyHandlers[r.Op]
	if !ok || h.main == nil {
		return errors.Errorf("no handler for %s", r.Op)
	}
	return h.main(c, r)
}

// WaitFrameFinished processes replies until every running node finished
// frame.
func (c *Config) WaitFrameFinished(ctx context.Context, frame uint32) error {
	for {
		c.notifyNodeFrameFinished(frame)
		if c.finishedFrame >= frame {
			return nil
		}
		select {
		case <-c.replies.ready:
			c.ProcessReplies()
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for frame %d, finished %d", frame, c.finishedFrame)
		}
	}
}

func (c *Config) handleStateReply(r fabric.Reply) {
	e := c.index.entity(r.Entity)
	if e == nil {
		log.WithFields(log.Fields{"config": c.name, "entity": r.Entity, "op": r.Op}).Warn("Reply for unknown entity")
		return
	}
	e.HandleReply(r.Op, r.Success, r.Error)
}

// resolveDisconnect unblocks syncs waiting on entities of the lost node.
func (c *Config) resolveDisconnect(r fabric.Reply) {
	for _, e := range c.index.nodeEntities(r.Node) {
		e.Monitor().Resolve(resources.StateInitializing, resources.StateInitFailed)
		e.Monitor().Resolve(resources.StateExiting, resources.StateExitFailed)
	}
}

func (c *Config) handleDisconnect(r fabric.Reply) error {
	node := c.topo.FindNode(r.Node)
	if node == nil {
		return errors.Errorf("disconnect of unknown node %s", r.Node)
	}
	if !node.IsConnected() {
		return nil
	}
	log.WithFields(log.Fields{"config": c.name, "node": r.Node}).Warn("Node disconnected")
	node.Disconnected()
	c.stat.Counter(stats.NodeFailedCounter).Inc(1)
	c.notifyNodeFrameFinished(c.currentFrame)
	return nil
}

func (c *Config) handleFrameFinish(r fabric.Reply) error {
	node := c.topo.FindNode(r.Node)
	if node == nil {
		return errors.Errorf("frame finish from unknown node %s", r.Node)
	}
	node.FrameFinished(r.Frame)
	c.notifyNodeFrameFinished(r.Frame)
	return nil
}

func (c *Config) handleStatistics(r fabric.Reply) error {
	e := c.index.entity(r.Entity)
	ch, ok := e.(*resources.Channel)
	if !ok {
		return errors.Errorf("statistics for unknown channel %s on node %s", r.Entity, r.Node)
	}
	var start, end int64
	for i, s := range r.Statistics {
		if i == 0 || s.StartTime < start {
			start = s.StartTime
		}
		if s.EndTime > end {
			end = s.EndTime
		}
	}
	c.stat.Histogram(stats.ChannelLoadHistogram_ms).Update(end - start)
	ch.ProcessStatistics(r.Frame, r.Statistics, r.Region)
	return nil
}

// replyQueue hands replies from the reply pump to the control goroutine
// without ever blocking the pump.
type replyQueue struct {
	mu      sync.Mutex
	pending []fabric.Reply
	ready   chan struct{}
}

func newReplyQueue() *replyQueue {
	return &replyQueue{ready: make(chan struct{}, 1)}
}

func (q *replyQueue) push(r fabric.Reply) {
	q.mu.Lock()
	q.pending = append(q.pending, r)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drain also takes the pending ready token, so Ready only fires again for
// replies pushed after this call.
func (q *replyQueue) drain() []fabric.Reply {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.ready:
	default:
	}
	out := q.pending
	q.pending = nil
	return out
}

// entityIndex resolves reply addresses to entities. It is rebuilt by the
// control goroutine whenever the topology changes and read by the pump.
type entityIndex struct {
	mu     sync.RWMutex
	byPath map[string]resources.Entity
	byNode map[string][]resources.Entity
}

func newEntityIndex() *entityIndex {
	return &entityIndex{
		byPath: make(map[string]resources.Entity),
		byNode: make(map[string][]resources.Entity),
	}
}

type indexVisitor struct {
	resources.NopVisitor
	node   string
	byPath map[string]resources.Entity
	byNode map[string][]resources.Entity
}

func (v *indexVisitor) add(e resources.Entity) {
	v.byPath[e.Path()] = e
	v.byNode[v.node] = append(v.byNode[v.node], e)
}

func (v *indexVisitor) VisitPreNode(n *resources.Node) fabric.VisitorResult {
	v.node = n.Name()
	v.add(n)
	return fabric.Continue
}

func (v *indexVisitor) VisitPrePipe(p *resources.Pipe) fabric.VisitorResult {
	v.add(p)
	return fabric.Continue
}

func (v *indexVisitor) VisitPreWindow(w *resources.Window) fabric.VisitorResult {
	v.add(w)
	return fabric.Continue
}

func (v *indexVisitor) VisitChannel(ch *resources.Channel) fabric.VisitorResult {
	v.add(ch)
	return fabric.Continue
}

func (x *entityIndex) rebuild(topo *resources.Topology) {
	v := &indexVisitor{
		byPath: make(map[string]resources.Entity),
		byNode: make(map[string][]resources.Entity),
	}
	for _, n := range topo.Nodes() {
		n.Accept(v)
	}
	x.mu.Lock()
	x.byPath = v.byPath
	x.byNode = v.byNode
	x.mu.Unlock()
}

func (x *entityIndex) entity(path string) resources.Entity {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.byPath[path]
}

func (x *entityIndex) nodeEntities(node string) []resources.Entity {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.byNode[node]
}
