package modules

import (
	"github.com/Diesmo/scripthost/internal/bus"
	"github.com/Diesmo/scripthost/internal/capability"
	"github.com/Diesmo/scripthost/internal/value"
)

// Event is the script-facing event module: subscribe to named events and
// emit them locally or across every instance.
type Event struct {
	owner capability.Owner
	bus   *bus.Bus
}

// ModuleName implements capability.Module.
func (*Event) ModuleName() string { return "event" }

// On registers a listener for name. Listeners for the same name fire in
// registration order and live until the script is unloaded; there is no
// explicit off.
func (e *Event) On(name string, h func(ev bus.Event)) {
	e.bus.Subscribe(e.owner.Instance, e.owner.Script, name, bus.Handler(h))
}

// Emit delivers the event to listeners within this instance only. The
// payload must be serializable; the handlers run later on this instance's
// queue, never re-entrantly inside Emit.
func (e *Event) Emit(name string, payload any) error {
	v, err := value.FromGo(payload)
	if err != nil {
		return err
	}
	e.bus.Emit(e.owner.Instance, bus.Event{
		Name:    name,
		Payload: v,
		Origin:  bus.Origin{Script: e.owner.Script, Instance: e.owner.Instance},
	})
	return nil
}

// Broadcast delivers the event to listeners in every running instance,
// including this one, exactly once per listener.
func (e *Event) Broadcast(name string, payload any) error {
	v, err := value.FromGo(payload)
	if err != nil {
		return err
	}
	e.bus.Broadcast(bus.Event{
		Name:    name,
		Payload: v,
		Origin:  bus.Origin{Script: e.owner.Script, Instance: e.owner.Instance},
	})
	return nil
}
