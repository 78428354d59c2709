// Package inmemory simulates render client processes inside the server
// process. Every node acknowledges lifecycle commands, finishes released
// frames and reports draw statistics proportional to the area it rendered.
package inmemory

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/transport"
)

// DefaultDrawCost is the simulated time, in ms, to draw a full channel.
const DefaultDrawCost = 16

type pendingStats struct {
	frame  uint32
	stats  []fabric.Statistic
	region fabric.Viewport
}

// Transport is a transport.Transport whose clients are simulated.
type Transport struct {
	mu          sync.Mutex
	connected   map[string]bool
	unreachable map[string]bool
	failInit    map[string]bool
	drawCost    map[string]float32
	commands    map[string][]fabric.Command
	stats       map[string]*pendingStats
	clock       int64

	queue  []fabric.Reply
	notify chan struct{}
	out    chan fabric.Reply
	done   chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport creates a transport and starts its reply pump.
func NewTransport() *Transport {
	t := &Transport{
		connected:   make(map[string]bool),
		unreachable: make(map[string]bool),
		failInit:    make(map[string]bool),
		drawCost:    make(map[string]float32),
		commands:    make(map[string][]fabric.Command),
		stats:       make(map[string]*pendingStats),
		notify:      make(chan struct{}, 1),
		out:         make(chan fabric.Reply),
		done:        make(chan struct{}),
	}
	go t.pump()
	return t
}

// Close stops the reply pump.
func (t *Transport) Close() { close(t.done) }

// SetUnreachable makes Connect to node fail.
func (t *Transport) SetUnreachable(node string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unreachable[node] = true
}

// FailInit makes the init of the entity at path fail.
func (t *Transport) FailInit(node, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failInit[node+"/"+path] = true
}

// SetDrawCost sets the simulated full-channel draw time of a channel.
func (t *Transport) SetDrawCost(node, channel string, ms float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drawCost[node+"/"+channel] = ms
}

// Commands returns what was sent to node so far.
func (t *Transport) Commands(node string) []fabric.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]fabric.Command(nil), t.commands[node]...)
}

func (t *Transport) Connect(ctx context.Context, node string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unreachable[node] {
		return errors.Errorf("node %s unreachable", node)
	}
	t.connected[node] = true
	return nil
}

func (t *Transport) Disconnect(node string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected[node] {
		return errors.Errorf("node %s not connected", node)
	}
	delete(t.connected, node)
	t.pushLocked(fabric.Reply{Op: fabric.OpDisconnect, Node: node})
	return nil
}

func (t *Transport) Replies() <-chan fabric.Reply { return t.out }

func (t *Transport) Send(node string, cmd fabric.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected[node] {
		return errors.Errorf("node %s not connected", node)
	}
	t.commands[node] = append(t.commands[node], cmd)
	log.WithFields(log.Fields{"node": node, "op": cmd.Op, "entity": cmd.Entity}).Debug("Simulated client received")

	switch cmd.Op {
	case fabric.OpNodeConfigInit, fabric.OpPipeConfigInit, fabric.OpWindowConfigInit, fabric.OpChannelConfigInit:
		reply := fabric.Reply{Op: fabric.OpConfigInitReply, Node: node, Entity: cmd.Entity, Success: true}
		if t.failInit[node+"/"+cmd.Entity] {
			reply.Success = false
			reply.Error = "simulated init failure"
		}
		t.pushLocked(reply)
	case fabric.OpNodeConfigExit, fabric.OpPipeConfigExit, fabric.OpWindowConfigExit, fabric.OpChannelConfigExit:
		t.pushLocked(fabric.Reply{Op: fabric.OpConfigExitReply, Node: node, Entity: cmd.Entity, Success: true})
	case fabric.OpNodeFrameFinish:
		t.pushLocked(fabric.Reply{Op: fabric.OpFrameFinishReply, Node: node, Entity: cmd.Entity, Frame: cmd.Frame})
	case fabric.OpChannelFrameStart:
		t.stats[node+"/"+cmd.Entity] = &pendingStats{frame: cmd.Frame}
	case fabric.OpChannelFrameClear, fabric.OpChannelFrameDraw, fabric.OpChannelFrameAssemble,
		fabric.OpChannelFrameReadback:
		t.recordLocked(node, cmd)
	case fabric.OpChannelFrameFinish:
		key := node + "/" + cmd.Entity
		if p := t.stats[key]; p != nil && len(p.stats) > 0 {
			t.pushLocked(fabric.Reply{
				Op:         fabric.OpChannelFrameStatistics,
				Node:       node,
				Entity:     cmd.Entity,
				Frame:      p.frame,
				Statistics: p.stats,
				Region:     p.region,
			})
		}
		delete(t.stats, key)
	}
	return nil
}

// recordLocked advances the simulated clock by the cost of a task.
func (t *Transport) recordLocked(node string, cmd fabric.Command) {
	p := t.stats[node+"/"+cmd.Entity]
	if p == nil || cmd.Context == nil {
		return
	}
	ctx := cmd.Context
	cost, ok := t.drawCost[node+"/"+cmd.Entity]
	if !ok {
		cost = DefaultDrawCost
	}

	var statType fabric.StatisticType
	duration := int64(1)
	switch cmd.Op {
	case fabric.OpChannelFrameClear:
		statType = fabric.StatChannelClear
	case fabric.OpChannelFrameDraw:
		statType = fabric.StatChannelDraw
		duration = int64(cost*ctx.VP.W*ctx.VP.H*ctx.Range.Size() + .5)
		if duration < 1 {
			duration = 1
		}
		p.region = unionRegion(p.region, ctx.VP)
	case fabric.OpChannelFrameAssemble:
		statType = fabric.StatChannelAssemble
	case fabric.OpChannelFrameReadback:
		statType = fabric.StatChannelReadback
	}
	start := t.clock
	t.clock += duration
	p.stats = append(p.stats, fabric.Statistic{
		Type:      statType,
		Task:      ctx.TaskID,
		Frame:     p.frame,
		StartTime: start,
		EndTime:   t.clock,
		Resource:  strings.Join([]string{node, cmd.Entity}, "/"),
	})
}

func unionRegion(a, b fabric.Viewport) fabric.Viewport {
	if !a.HasArea() {
		return b
	}
	x := minf(a.X, b.X)
	y := minf(a.Y, b.Y)
	return fabric.Viewport{X: x, Y: y, W: maxf(a.XEnd(), b.XEnd()) - x, H: maxf(a.YEnd(), b.YEnd()) - y}
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func (t *Transport) pushLocked(r fabric.Reply) {
	t.queue = append(t.queue, r)
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// pump forwards queued replies so Send never blocks on a slow reader.
func (t *Transport) pump() {
	for {
		t.mu.Lock()
		var next *fabric.Reply
		if len(t.queue) > 0 {
			r := t.queue[0]
			t.queue = t.queue[1:]
			next = &r
		}
		t.mu.Unlock()

		if next == nil {
			select {
			case <-t.notify:
				continue
			case <-t.done:
				return
			}
		}
		select {
		case t.out <- *next:
		case <-t.done:
			return
		}
	}
}
