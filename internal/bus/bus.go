// Package bus dispatches named events to script-registered listeners.
//
// Delivery is never reentrant: emitting posts a dispatch task onto the
// owning instance's execution queue, so handlers always run on the script
// thread of their instance, one event at a time, in the FIFO order events
// arrived at that instance. Local events reach only the originating
// instance; Broadcast reaches every attached instance with at least one
// subscriber, the originator included, exactly once per subscriber.
//
// The bus has no special-cased event names - lifecycle events (load, unload,
// connection notifications, backend events) flow through the same Emit and
// Broadcast as script-originated ones.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Diesmo/scripthost/internal/value"
)

// Poster accepts tasks for an instance's single-threaded execution queue.
// Satisfied by *runq.Queue.
type Poster interface {
	Post(func()) bool
}

// Origin identifies where an event came from.
type Origin struct {
	Script   string // Empty for backend- or host-originated events.
	Instance string
}

// Event is a named notification with a serializable payload.
type Event struct {
	Name      string
	Payload   value.Value
	Origin    Origin
	Broadcast bool

	// OwnerOnly, when set, restricts delivery to subscriptions held by that
	// owner. Connection notifications use it so one script's socket traffic
	// is not visible to sibling scripts in the same instance.
	OwnerOnly string
}

// Handler is a script callback for one event subscription.
type Handler func(ev Event)

// subscription stays in registration order for its (instance, event) pair.
// The removed flag lets teardown take effect mid-dispatch: a dispatch task
// iterates a snapshot taken at emit time and skips entries removed since.
type subscription struct {
	owner   string
	handler Handler
	removed atomic.Bool
}

type instanceReg struct {
	queue Poster

	mu   sync.Mutex
	subs map[string][]*subscription
}

// Bus is the process-wide event dispatcher. One Bus serves every instance;
// it is created at host startup and shared by reference.
type Bus struct {
	mu        sync.RWMutex
	instances map[string]*instanceReg
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{instances: make(map[string]*instanceReg)}
}

// Attach registers an instance's execution queue with the bus. Events for
// the instance are posted there until Detach.
func (b *Bus) Attach(instanceID string, q Poster) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.instances[instanceID] = &instanceReg{
		queue: q,
		subs:  make(map[string][]*subscription),
	}
}

// Detach removes an instance and all its subscriptions. Dispatches already
// posted to the instance's queue still run if the queue drains them.
func (b *Bus) Detach(instanceID string) {
	b.mu.Lock()
	reg := b.instances[instanceID]
	delete(b.instances, instanceID)
	b.mu.Unlock()

	if reg == nil {
		return
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, subs := range reg.subs {
		for _, s := range subs {
			s.removed.Store(true)
		}
	}
	reg.subs = make(map[string][]*subscription)
}

// Subscribe appends a listener for event on the given instance, owned by the
// script context named owner. Multiple subscriptions for the same event
// coexist and fire in registration order. Subscribing on an unknown instance
// is a no-op (the instance has stopped).
//
// There is no explicit unsubscribe: subscriptions live until DropOwner.
func (b *Bus) Subscribe(instanceID, owner, event string, h Handler) {
	b.mu.RLock()
	reg := b.instances[instanceID]
	b.mu.RUnlock()
	if reg == nil || h == nil {
		return
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.subs[event] = append(reg.subs[event], &subscription{owner: owner, handler: h})
}

// DropOwner removes every subscription held by owner on the instance.
// Safe to call concurrently with an in-flight dispatch: entries not yet
// invoked in that dispatch are skipped.
func (b *Bus) DropOwner(instanceID, owner string) {
	b.mu.RLock()
	reg := b.instances[instanceID]
	b.mu.RUnlock()
	if reg == nil {
		return
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for event, subs := range reg.subs {
		kept := subs[:0]
		for _, s := range subs {
			if s.owner == owner {
				s.removed.Store(true)
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(reg.subs, event)
		} else {
			reg.subs[event] = kept
		}
	}
}

// Emit delivers the event to subscribers within the named instance only.
// The subscriber list is snapshotted now; subscriptions added during the
// dispatch are not invoked in this pass. The dispatch itself runs later on
// the instance's queue.
func (b *Bus) Emit(instanceID string, ev Event) {
	b.mu.RLock()
	reg := b.instances[instanceID]
	b.mu.RUnlock()
	if reg == nil {
		return
	}
	reg.dispatch(ev, nil)
}

// EmitGuarded is Emit with a liveness check evaluated on the instance's
// queue thread immediately before handlers run. If guard returns false the
// whole dispatch is suppressed. The session manager uses this to guarantee
// that a closed connection produces no further events: close runs on the
// queue, so any dispatch task executing after it observes the closed state.
func (b *Bus) EmitGuarded(instanceID string, ev Event, guard func() bool) {
	b.mu.RLock()
	reg := b.instances[instanceID]
	b.mu.RUnlock()
	if reg == nil {
		return
	}
	reg.dispatch(ev, guard)
}

// Broadcast delivers the event to every attached instance with at least one
// subscriber for it, including the originator, exactly once per subscriber.
// Ordering across instances is unspecified; within one instance, broadcast
// and local events share the queue's FIFO order.
func (b *Bus) Broadcast(ev Event) {
	ev.Broadcast = true

	b.mu.RLock()
	regs := make([]*instanceReg, 0, len(b.instances))
	for _, reg := range b.instances {
		regs = append(regs, reg)
	}
	b.mu.RUnlock()

	for _, reg := range regs {
		reg.dispatch(ev, nil)
	}
}

func (r *instanceReg) dispatch(ev Event, guard func() bool) {
	r.mu.Lock()
	subs := r.subs[ev.Name]
	if len(subs) == 0 {
		r.mu.Unlock()
		return
	}
	snapshot := make([]*subscription, len(subs))
	copy(snapshot, subs)
	r.mu.Unlock()

	r.queue.Post(func() {
		if guard != nil && !guard() {
			return
		}
		for _, s := range snapshot {
			if s.removed.Load() {
				continue
			}
			if ev.OwnerOnly != "" && s.owner != ev.OwnerOnly {
				continue
			}
			invoke(s, ev)
		}
	})
}

// invoke runs one handler, isolating failures: a panicking subscriber is
// logged and the rest of the chain still fires.
func invoke(s *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler failed",
				"event", ev.Name,
				"owner", s.owner,
				"panic", r,
			)
		}
	}()
	s.handler(ev)
}
