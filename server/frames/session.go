package frames

import (
	"fmt"
	"sync"
)

// Session is the distribution substrate frames and tile queues publish
// their payloads through. Registered objects are addressed by ID; a commit
// makes a version visible to every bound consumer.
type Session interface {
	Register(id string)
	Deregister(id string)
	Bind(consumer, producer string)
	Commit(id string, version uint32)
}

// EventKind names one Session call recorded by a Registry.
type EventKind int

const (
	EventRegister EventKind = iota
	EventDeregister
	EventBind
	EventCommit
)

func (k EventKind) String() string {
	switch k {
	case EventRegister:
		return "register"
	case EventDeregister:
		return "deregister"
	case EventBind:
		return "bind"
	case EventCommit:
		return "commit"
	}
	return "unknown"
}

// Event is one recorded Session call. Peer is the producer of a bind.
type Event struct {
	Kind    EventKind
	ID      string
	Peer    string
	Version uint32
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %s %d", e.Kind, e.ID, e.Peer, e.Version)
}

// Registry is the in-process Session. It tracks the live objects and their
// committed versions and, when tracing, every call in order.
type Registry struct {
	mu      sync.Mutex
	objects map[string]uint32
	tracing bool
	trace   []Event
}

func NewRegistry() *Registry {
	return &Registry{objects: map[string]uint32{}}
}

// NewTraceRegistry returns a Registry that records every call.
func NewTraceRegistry() *Registry {
	r := NewRegistry()
	r.tracing = true
	return r
}

func (r *Registry) Register(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[id] = 0
	r.record(Event{Kind: EventRegister, ID: id})
}

func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects, id)
	r.record(Event{Kind: EventDeregister, ID: id})
}

func (r *Registry) Bind(consumer, producer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Event{Kind: EventBind, ID: consumer, Peer: producer})
}

func (r *Registry) Commit(id string, version uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[id]; ok {
		r.objects[id] = version
	}
	r.record(Event{Kind: EventCommit, ID: id, Version: version})
}

func (r *Registry) record(e Event) {
	if r.tracing {
		r.trace = append(r.trace, e)
	}
}

// Live is the number of registered objects.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

// Version returns the last committed version of id.
func (r *Registry) Version(id string) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.objects[id]
	return v, ok
}

// Trace returns a copy of the recorded calls.
func (r *Registry) Trace() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.trace...)
}

// ResetTrace forgets the recorded calls.
func (r *Registry) ResetTrace() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace = nil
}
