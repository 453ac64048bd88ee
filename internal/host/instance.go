package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Diesmo/scripthost/internal/bus"
	"github.com/Diesmo/scripthost/internal/capability"
	"github.com/Diesmo/scripthost/internal/manifest"
	"github.com/Diesmo/scripthost/internal/runq"
	"github.com/Diesmo/scripthost/internal/value"
)

// Instance is one running connection context to a backend network, hosting
// zero or more script contexts. All of their callbacks share the instance's
// single execution queue.
type Instance struct {
	id       string
	backend  Backend
	logLevel atomic.Int32
	host     *Host

	queue   *runq.Queue
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	scripts map[string]*ScriptContext
}

func newInstance(h *Host, id string, backend Backend, logLevel int) *Instance {
	inst := &Instance{
		id:      id,
		backend: backend,
		host:    h,
		queue:   runq.New(),
		done:    make(chan struct{}),
		scripts: make(map[string]*ScriptContext),
	}
	inst.logLevel.Store(int32(logLevel))
	return inst
}

// ID returns the instance identity.
func (inst *Instance) ID() string { return inst.id }

// Backend returns the backend kind the instance connects to.
func (inst *Instance) Backend() Backend { return inst.backend }

// Running reports whether the execution queue is draining.
func (inst *Instance) Running() bool { return inst.running.Load() }

// LogLevel returns the instance's log verbosity.
func (inst *Instance) LogLevel() int { return int(inst.logLevel.Load()) }

// SetLogLevel updates the instance's log verbosity.
func (inst *Instance) SetLogLevel(level int) { inst.logLevel.Store(int32(level)) }

func (inst *Instance) start() {
	ctx, cancel := context.WithCancel(context.Background())
	inst.cancel = cancel
	inst.running.Store(true)

	go func() {
		defer close(inst.done)
		inst.queue.Run(ctx)
	}()
}

// stop unloads every script, detaches from the bus, and drains the queue.
func (inst *Instance) stop(ctx context.Context) error {
	if !inst.running.CompareAndSwap(true, false) {
		return nil
	}

	inst.mu.Lock()
	names := make([]string, 0, len(inst.scripts))
	for name := range inst.scripts {
		names = append(names, name)
	}
	inst.mu.Unlock()

	for _, name := range names {
		inst.UnloadScript(name)
	}

	// Let pending tasks (unload dispatches, teardowns) drain, then stop.
	inst.queue.Post(func() { inst.queue.Close() })

	select {
	case <-inst.done:
	case <-ctx.Done():
		inst.cancel()
		<-inst.done
	}

	inst.host.bus.Detach(inst.id)
	slog.Info("instance stopped", "instance", inst.id)
	return nil
}

// LoadScript loads one script into the instance.
//
// The capability check runs first and the whole load fails on a declared
// privileged module without a grant - no subscriptions, store handles, or
// connections come into existence for a refused script. On success the
// program entry runs as the first task on the queue, followed by the `load`
// lifecycle event.
func (inst *Instance) LoadScript(m *manifest.Manifest, prog Program) (*ScriptContext, error) {
	if !inst.running.Load() {
		return nil, fmt.Errorf("instance %q is not running", inst.id)
	}
	if !m.SupportsBackend(string(inst.backend)) {
		return nil, fmt.Errorf("script %q does not support backend %q", m.Name, inst.backend)
	}

	if err := capability.CheckRequired(inst.host.table, inst.host.grants, m.Name, m.Requires); err != nil {
		return nil, err
	}

	inst.mu.Lock()
	if _, exists := inst.scripts[m.Name]; exists {
		inst.mu.Unlock()
		return nil, fmt.Errorf("script %q already loaded in instance %q", m.Name, inst.id)
	}
	sc := newScriptContext(inst, m)
	inst.scripts[m.Name] = sc
	inst.mu.Unlock()

	if prog != nil {
		inst.queue.Post(func() {
			if err := prog(sc); err != nil {
				slog.Error("script entry failed", "script", m.Name, "instance", inst.id, "error", err)
			}
		})
	}

	inst.host.bus.Emit(inst.id, bus.Event{
		Name:    "load",
		Payload: value.Object{"script": value.String(m.Name)},
		Origin:  bus.Origin{Script: m.Name, Instance: inst.id},
	})

	slog.Info("script loaded", "script", m.Name, "instance", inst.id)
	return sc, nil
}

// Script returns a loaded script context by name.
func (inst *Instance) Script(name string) (*ScriptContext, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	sc, ok := inst.scripts[name]
	return sc, ok
}

// UnloadScript tears one script down: the `unload` lifecycle event fires
// first (so the script can observe it), then a queued teardown task drops
// its subscriptions and closes its connections. Listeners stop firing
// strictly after that teardown task runs, never before.
func (inst *Instance) UnloadScript(name string) {
	inst.mu.Lock()
	sc, ok := inst.scripts[name]
	delete(inst.scripts, name)
	inst.mu.Unlock()

	if !ok {
		return
	}

	inst.host.bus.Emit(inst.id, bus.Event{
		Name:    "unload",
		Payload: value.Object{"script": value.String(name)},
		Origin:  bus.Origin{Script: name, Instance: inst.id},
	})

	inst.queue.Post(func() {
		inst.host.bus.DropOwner(inst.id, name)
		inst.host.sessions.CloseOwner(sc.sessionOwner())
		slog.Info("script unloaded", "script", name, "instance", inst.id)
	})
}
