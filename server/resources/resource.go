package resources

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/fabric"
)

// Sender delivers a command to the render client process of a node.
type Sender interface {
	Send(node string, cmd fabric.Command) error
}

// Entity is the part of Node, Pipe, Window and Channel shared by the
// lifecycle visitors and the reply dispatcher.
type Entity interface {
	Name() string
	Path() string
	Monitor() *StateMonitor
	IsActive() bool
	IsRunning() bool

	ConfigInit(initID string, frame uint32)
	SyncConfigInit(ctx context.Context) bool
	ConfigExit()
	SyncConfigExit(ctx context.Context) bool

	// HandleReply resolves a pending INITIALIZING or EXITING state.
	HandleReply(op fabric.Opcode, success bool, reason string)
	// Disconnected resolves any state to its failed variant.
	Disconnected()
}

// resource holds the lifecycle state common to every cluster entity.
type resource struct {
	name    string
	path    string
	kind    string
	initOp  fabric.Opcode
	exitOp  fabric.Opcode
	node    *Node
	monitor *StateMonitor
	active  int
	tasks   fabric.Task
	lastErr string
}

func newResource(kind, name, path string, initOp, exitOp fabric.Opcode) resource {
	return resource{
		name:    name,
		path:    path,
		kind:    kind,
		initOp:  initOp,
		exitOp:  exitOp,
		monitor: NewStateMonitor(kind + " " + path),
	}
}

func (r *resource) Name() string              { return r.name }
func (r *resource) Path() string              { return r.path }
func (r *resource) Monitor() *StateMonitor    { return r.monitor }
func (r *resource) State() State              { return r.monitor.Get().State }
func (r *resource) IsActive() bool            { return r.active > 0 }
func (r *resource) IsRunning() bool           { return r.State() == StateRunning }
func (r *resource) Tasks() fabric.Task        { return r.tasks }
func (r *resource) LastError() string         { return r.lastErr }
func (r *resource) IsStopped() bool           { return r.State() == StateStopped }
func (r *resource) fields() log.Fields        { return log.Fields{r.kind: r.path, "name": r.name} }
func (r *resource) send(cmd fabric.Command)   { r.node.send(cmd) }
func (r *resource) setPendingDelete(del bool) { r.monitor.SetPendingDelete(del) }
func (r *resource) IsPendingDelete() bool     { return r.monitor.Get().PendingDelete }

func (r *resource) configInit(initID string, frame uint32) {
	if err := r.monitor.Set(StateInitializing); err != nil {
		log.WithFields(r.fields()).Warnf("Cannot initialize: %v", err)
		return
	}
	r.lastErr = ""
	r.send(fabric.Command{Op: r.initOp, Entity: r.path, Frame: frame, FrameID: initID})
}

// syncConfigInit blocks until the init reply arrived. A failed init is
// rolled back by issuing the exit immediately.
func (r *resource) syncConfigInit(ctx context.Context) bool {
	state, err := r.monitor.WaitNE(ctx, StateInitializing)
	if err != nil {
		r.monitor.Resolve(StateInitializing, StateInitFailed)
		r.lastErr = "init timed out"
		state = r.State()
	}
	if state == StateInitSuccess {
		if err := r.monitor.Set(StateRunning); err != nil {
			log.WithFields(r.fields()).Warnf("%v", err)
			return false
		}
		return true
	}
	log.WithFields(r.fields()).WithField("state", state).Warnf("Init failed: %s", r.lastErr)
	r.configExit()
	return false
}

func (r *resource) configExit() {
	if r.State() == StateExiting {
		return
	}
	if err := r.monitor.Set(StateExiting); err != nil {
		log.WithFields(r.fields()).Warnf("Cannot exit: %v", err)
		return
	}
	r.send(fabric.Command{Op: r.exitOp, Entity: r.path})
}

// syncConfigExit blocks until the exit reply arrived. The entity ends up
// STOPPED, or FAILED if it is still wanted by an active compound.
func (r *resource) syncConfigExit(ctx context.Context) bool {
	state, err := r.monitor.WaitNE(ctx, StateExiting)
	if err != nil {
		r.monitor.Resolve(StateExiting, StateExitFailed)
		r.lastErr = "exit timed out"
		state = r.State()
	}
	success := state == StateExitSuccess
	next := StateStopped
	if r.IsActive() {
		next = StateFailed
	}
	if err := r.monitor.Set(next); err != nil {
		log.WithFields(r.fields()).Warnf("%v", err)
	}
	r.tasks = fabric.TaskNone
	if !success {
		log.WithFields(r.fields()).Warnf("Exit failed: %s", r.lastErr)
	}
	return success
}

func (r *resource) HandleReply(op fabric.Opcode, success bool, reason string) {
	if !success {
		r.lastErr = reason
	}
	switch op {
	case fabric.OpConfigInitReply:
		to := StateInitFailed
		if success {
			to = StateInitSuccess
		}
		if !r.monitor.Resolve(StateInitializing, to) {
			log.WithFields(r.fields()).Infof("Ignoring late init reply in %s", r.State())
		}
	case fabric.OpConfigExitReply:
		to := StateExitFailed
		if success {
			to = StateExitSuccess
		}
		if !r.monitor.Resolve(StateExiting, to) {
			log.WithFields(r.fields()).Infof("Ignoring late exit reply in %s", r.State())
		}
	}
}

func (r *resource) Disconnected() {
	r.lastErr = "disconnected"
	switch r.State() {
	case StateInitializing:
		r.monitor.Resolve(StateInitializing, StateInitFailed)
	case StateExiting:
		r.monitor.Resolve(StateExiting, StateExitFailed)
	case StateRunning:
		if err := r.monitor.Set(StateFailed); err != nil {
			log.WithFields(r.fields()).Warnf("%v", err)
		}
	}
}
