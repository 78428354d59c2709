package resources

import (
	"fmt"
	"sync"

	"golang.org/x/net/context"
)

// State is the primary run-state of a Node, Pipe, Window or Channel.
type State int

const (
	StateStopped State = iota
	StateInitializing
	StateInitSuccess
	StateInitFailed
	StateRunning
	StateExiting
	StateExitSuccess
	StateExitFailed
	StateFailed
)

var stateNames = []string{
	"STOPPED", "INITIALIZING", "INIT_SUCCESS", "INIT_FAILED", "RUNNING",
	"EXITING", "EXIT_SUCCESS", "EXIT_FAILED", "FAILED",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// legalTransitions lists, per state, the states it may move to.
// INITIALIZING and EXITING are left only through a sync call that observes
// the reply; disconnects resolve them to the failed variant. STOPPED may go
// straight to FAILED when a node cannot be launched.
var legalTransitions = map[State][]State{
	StateStopped:      {StateInitializing, StateFailed},
	StateInitializing: {StateInitSuccess, StateInitFailed},
	StateInitSuccess:  {StateRunning, StateExiting},
	StateInitFailed:   {StateExiting},
	StateRunning:      {StateExiting, StateFailed},
	StateExiting:      {StateExitSuccess, StateExitFailed},
	StateExitSuccess:  {StateStopped, StateFailed},
	StateExitFailed:   {StateStopped, StateFailed},
	StateFailed:       {StateStopped},
}

// CanTransition tells whether from -> to is a legal run-state change.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned when a run-state change is not allowed.
type TransitionError struct {
	Entity string
	From   State
	To     State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: illegal run-state transition %s -> %s", e.Entity, e.From, e.To)
}

// RunState combines the primary state with the orthogonal pending-delete
// flag.
type RunState struct {
	State         State
	PendingDelete bool
}

func (r RunState) String() string {
	if r.PendingDelete {
		return r.State.String() + "|DELETE"
	}
	return r.State.String()
}

// IsActive is true for every state but STOPPED and FAILED.
func (r RunState) IsActive() bool {
	return r.State != StateStopped && r.State != StateFailed
}

// StateMonitor guards a RunState shared between the control goroutine and
// the reply path, and lets the control goroutine block until it changes.
type StateMonitor struct {
	entity  string
	mu      sync.Mutex
	state   RunState
	changed chan struct{}
}

func NewStateMonitor(entity string) *StateMonitor {
	return &StateMonitor{entity: entity, changed: make(chan struct{})}
}

func (m *StateMonitor) Get() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set moves to s, rejecting transitions not in the transition table.
func (m *StateMonitor) Set(s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.state.State, s) {
		return &TransitionError{Entity: m.entity, From: m.state.State, To: s}
	}
	m.setLocked(s)
	return nil
}

// Resolve moves from the transient state `from` to `to` if the monitor is
// still in `from`. Reply handlers use it so a late reply never overrides a
// state the control goroutine already moved past.
func (m *StateMonitor) Resolve(from, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.State != from || !CanTransition(from, to) {
		return false
	}
	m.setLocked(to)
	return true
}

func (m *StateMonitor) setLocked(s State) {
	if m.state.State == s {
		return
	}
	m.state.State = s
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *StateMonitor) SetPendingDelete(pending bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.PendingDelete = pending
}

// WaitNE blocks until the state differs from s or ctx is done.
func (m *StateMonitor) WaitNE(ctx context.Context, s State) (State, error) {
	for {
		m.mu.Lock()
		cur := m.state.State
		ch := m.changed
		m.mu.Unlock()
		if cur != s {
			return cur, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return cur, ctx.Err()
		}
	}
}
