// Package host ties the runtime together: the process-scoped Host owns the
// scoped store, the event bus, the session manager, and every instance.
//
// The Host is created once at startup, shared by reference, and torn down at
// shutdown - shared state is explicit here, never a hidden singleton.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Diesmo/scripthost/internal/bus"
	"github.com/Diesmo/scripthost/internal/capability"
	"github.com/Diesmo/scripthost/internal/session"
	"github.com/Diesmo/scripthost/internal/store"
	"github.com/Diesmo/scripthost/internal/value"
)

// Backend is the kind of chat/voice network an instance connects to.
// Extensible: adapters register new kinds by convention, the host only
// matches them against manifest declarations.
type Backend string

const (
	BackendTS3     Backend = "ts3"
	BackendDiscord Backend = "discord"
)

// Options configures a Host.
type Options struct {
	Store          *store.Store
	Table          *capability.Table
	Grants         capability.Grants
	ConnectTimeout time.Duration
}

// Host is the process-scoped runtime context.
type Host struct {
	store    *store.Store
	bus      *bus.Bus
	sessions *session.Manager
	table    *capability.Table
	grants   capability.Grants

	mu        sync.Mutex
	instances map[string]*Instance
	closed    bool
}

// New creates a Host. The capability table may still be empty at this point;
// module registration happens against the same table before any script
// loads.
func New(opts Options) *Host {
	b := bus.New()
	return &Host{
		store:     opts.Store,
		bus:       b,
		sessions:  session.NewManager(b, opts.ConnectTimeout),
		table:     opts.Table,
		grants:    opts.Grants,
		instances: make(map[string]*Instance),
	}
}

// Store returns the scoped store shared by all scripts.
func (h *Host) Store() *store.Store { return h.store }

// Bus returns the process-wide event bus.
func (h *Host) Bus() *bus.Bus { return h.bus }

// Sessions returns the connection manager.
func (h *Host) Sessions() *session.Manager { return h.sessions }

// Table returns the capability table.
func (h *Host) Table() *capability.Table { return h.table }

// QueueOf returns the execution queue of a running instance, or nil.
// Module factories use it to route connection completions.
func (h *Host) QueueOf(instanceID string) session.Poster {
	h.mu.Lock()
	defer h.mu.Unlock()
	if inst, ok := h.instances[instanceID]; ok {
		return inst.queue
	}
	return nil
}

// StartInstance creates an instance, attaches it to the bus, and starts its
// execution queue.
func (h *Host) StartInstance(id string, backend Backend, logLevel int) (*Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("host: already closed")
	}
	if _, exists := h.instances[id]; exists {
		return nil, fmt.Errorf("host: instance %q already running", id)
	}

	inst := newInstance(h, id, backend, logLevel)
	h.instances[id] = inst
	h.bus.Attach(id, inst.queue)
	inst.start()

	slog.Info("instance started", "instance", id, "backend", backend)
	return inst, nil
}

// Instance returns a running instance by id.
func (h *Host) Instance(id string) (*Instance, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[id]
	return inst, ok
}

// StopInstance unloads the instance's scripts and stops its queue.
func (h *Host) StopInstance(ctx context.Context, id string) error {
	h.mu.Lock()
	inst, ok := h.instances[id]
	delete(h.instances, id)
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("host: unknown instance %q", id)
	}
	return inst.stop(ctx)
}

// EmitBackendEvent lets a backend protocol adapter inject a raw domain event
// (client joined, message received) into one instance. It flows through the
// same dispatch path as script-originated events.
func (h *Host) EmitBackendEvent(instanceID, name string, payload value.Value) {
	h.bus.Emit(instanceID, bus.Event{
		Name:    name,
		Payload: payload,
		Origin:  bus.Origin{Instance: instanceID},
	})
}

// Close stops every instance, shuts connections down, and releases the
// store. The host cannot be restarted.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	insts := make([]*Instance, 0, len(h.instances))
	for _, inst := range h.instances {
		insts = append(insts, inst)
	}
	h.instances = make(map[string]*Instance)
	h.mu.Unlock()

	var firstErr error
	for _, inst := range insts {
		if err := inst.stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	h.sessions.Shutdown()

	if err := h.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
