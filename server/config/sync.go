package config

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/resources"
)

// updateVisitor starts the entities an active compound needs and stops the
// ones no compound uses anymore. Parents initialize before their children
// and exit after them.
type updateVisitor struct {
	resources.NopVisitor
	initID string
	frame  uint32
	// finished is the frame nodes resume counting from
	finished uint32
}

func (v *updateVisitor) pre(e resources.Entity, frame uint32) fabric.VisitorResult {
	if e.IsActive() && e.Monitor().Get().State == resources.StateStopped {
		e.ConfigInit(v.initID, frame)
	}
	return fabric.Continue
}

func (v *updateVisitor) post(e resources.Entity) fabric.VisitorResult {
	if !e.IsActive() && e.IsRunning() {
		e.ConfigExit()
	}
	return fabric.Continue
}

func (v *updateVisitor) VisitPreNode(n *resources.Node) fabric.VisitorResult {
	if !n.IsConnected() {
		return fabric.Prune
	}
	return v.pre(n, v.finished)
}

func (v *updateVisitor) VisitPrePipe(p *resources.Pipe) fabric.VisitorResult {
	return v.pre(p, v.frame)
}

func (v *updateVisitor) VisitPreWindow(w *resources.Window) fabric.VisitorResult {
	return v.pre(w, v.frame)
}

func (v *updateVisitor) VisitChannel(ch *resources.Channel) fabric.VisitorResult {
	v.pre(ch, v.frame)
	return v.post(ch)
}

func (v *updateVisitor) VisitPostWindow(w *resources.Window) fabric.VisitorResult { return v.post(w) }
func (v *updateVisitor) VisitPostPipe(p *resources.Pipe) fabric.VisitorResult     { return v.post(p) }
func (v *updateVisitor) VisitPostNode(n *resources.Node) fabric.VisitorResult     { return v.post(n) }

// SyncResult summarizes one sync pass over the topology.
type SyncResult struct {
	// Failed is set if an entity failed to initialize or exit.
	Failed bool
	// NeedsSync is set if a failed init started an exit that has to be
	// synced by another pass.
	NeedsSync       bool
	RunningChannels int
	Err             error
}

// syncVisitor waits for the pending init and exit replies, children before
// their parents.
type syncVisitor struct {
	resources.NopVisitor
	ctx    context.Context
	result SyncResult
}

// pre stops failed entities no compound wants anymore. Nothing below a
// stopped or failed entity has a pending reply, so its children are skipped.
func (v *syncVisitor) pre(e resources.Entity) fabric.VisitorResult {
	state := e.Monitor().Get().State
	if !e.IsActive() && state == resources.StateFailed {
		if err := e.Monitor().Set(resources.StateStopped); err != nil {
			log.WithFields(log.Fields{"entity": e.Path()}).Warnf("%v", err)
		}
	}
	if state == resources.StateStopped || state == resources.StateFailed {
		return fabric.Prune
	}
	return fabric.Continue
}

func (v *syncVisitor) fail(e resources.Entity, what string) {
	v.result.Failed = true
	v.result.Err = multierror.Append(v.result.Err, errors.Errorf("%s %s (%s) failed", what, e.Path(), e.Name()))
}

func (v *syncVisitor) sync(e resources.Entity) fabric.VisitorResult {
	switch e.Monitor().Get().State {
	case resources.StateInitializing, resources.StateInitSuccess, resources.StateInitFailed:
		if !e.SyncConfigInit(v.ctx) {
			v.fail(e, "init of")
			v.result.NeedsSync = true
		}
	case resources.StateExiting, resources.StateExitSuccess, resources.StateExitFailed:
		if !e.SyncConfigExit(v.ctx) {
			v.fail(e, "exit of")
		}
	}
	return fabric.Continue
}

func (v *syncVisitor) VisitPreNode(n *resources.Node) fabric.VisitorResult      { return v.pre(n) }
func (v *syncVisitor) VisitPrePipe(p *resources.Pipe) fabric.VisitorResult      { return v.pre(p) }
func (v *syncVisitor) VisitPreWindow(w *resources.Window) fabric.VisitorResult  { return v.pre(w) }
func (v *syncVisitor) VisitPostWindow(w *resources.Window) fabric.VisitorResult { return v.sync(w) }
func (v *syncVisitor) VisitPostPipe(p *resources.Pipe) fabric.VisitorResult     { return v.sync(p) }
func (v *syncVisitor) VisitPostNode(n *resources.Node) fabric.VisitorResult     { return v.sync(n) }

func (v *syncVisitor) VisitChannel(ch *resources.Channel) fabric.VisitorResult {
	v.pre(ch)
	v.sync(ch)
	if ch.IsRunning() {
		v.result.RunningChannels++
	}
	return fabric.Continue
}

// syncTopology runs one sync pass over every node.
func (c *Config) syncTopology(ctx context.Context) SyncResult {
	v := &syncVisitor{ctx: ctx}
	for _, n := range c.topo.Nodes() {
		n.Accept(v)
	}
	return v.result
}

// pendingDeletes collects the stopped entities marked for removal.
type pendingDeletes struct {
	resources.NopVisitor
	removals []func() bool
}

func removable(e resources.Entity) bool {
	return e.Monitor().Get().PendingDelete && e.Monitor().Get().State == resources.StateStopped
}

func (v *pendingDeletes) VisitChannel(ch *resources.Channel) fabric.VisitorResult {
	if removable(ch) {
		v.removals = append(v.removals, func() bool { return ch.Window().RemoveChannel(ch) })
	}
	return fabric.Continue
}

func (v *pendingDeletes) VisitPostWindow(w *resources.Window) fabric.VisitorResult {
	if removable(w) {
		v.removals = append(v.removals, func() bool { return w.Pipe().RemoveWindow(w) })
	}
	return fabric.Continue
}

func (v *pendingDeletes) VisitPostPipe(p *resources.Pipe) fabric.VisitorResult {
	if removable(p) {
		v.removals = append(v.removals, func() bool { return p.Node().RemovePipe(p) })
	}
	return fabric.Continue
}

// removeDeleted drops the stopped entities marked for removal and reports
// whether the topology changed.
func (c *Config) removeDeleted() bool {
	v := &pendingDeletes{}
	var nodes []*resources.Node
	for _, n := range c.topo.Nodes() {
		n.Accept(v)
		if removable(n) && !n.IsConnected() {
			nodes = append(nodes, n)
		}
	}
	changed := false
	for _, remove := range v.removals {
		changed = remove() || changed
	}
	for _, n := range nodes {
		changed = c.topo.RemoveNode(n) || changed
	}
	return changed
}
