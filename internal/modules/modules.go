// Package modules implements the built-in modules scripts resolve through
// the capability registry: engine, store, event, net, ws, and db.
//
// Each module is its own Go type selected by the one string lookup at
// require time; past that point scripts hold a typed handle, not a name.
// Handles are constructed per script context and cached by the resolver, so
// module-local state (open connections, subscriptions) is shared across
// repeated require calls within one context.
package modules

import (
	"github.com/Diesmo/scripthost/internal/bus"
	"github.com/Diesmo/scripthost/internal/capability"
	"github.com/Diesmo/scripthost/internal/session"
	"github.com/Diesmo/scripthost/internal/store"
)

// Services are the host-owned collaborators modules are built on.
type Services struct {
	Store    *store.Store
	Bus      *bus.Bus
	Sessions *session.Manager

	// QueueOf returns the execution queue of a running instance, or nil.
	QueueOf func(instanceID string) session.Poster

	// BackendOf returns the backend kind of a running instance.
	BackendOf func(instanceID string) (string, bool)
}

// Register installs every built-in module into the table. The net, ws, and
// db modules are privileged: scripts need a grant to resolve them.
func Register(table *capability.Table, svc Services) {
	table.Register(capability.Def{
		Name: "engine",
		Factory: func(owner capability.Owner) capability.Module {
			return &Engine{owner: owner, svc: svc}
		},
	})
	table.Register(capability.Def{
		Name: "store",
		Factory: func(owner capability.Owner) capability.Module {
			return &Store{owner: owner, st: svc.Store}
		},
	})
	table.Register(capability.Def{
		Name: "event",
		Factory: func(owner capability.Owner) capability.Module {
			return &Event{owner: owner, bus: svc.Bus}
		},
	})
	table.Register(capability.Def{
		Name:       "net",
		Privileged: true,
		Factory: func(owner capability.Owner) capability.Module {
			return &Net{conns: newConns(owner, svc, session.KindStream)}
		},
	})
	table.Register(capability.Def{
		Name:       "ws",
		Privileged: true,
		Factory: func(owner capability.Owner) capability.Module {
			return &WS{conns: newConns(owner, svc, session.KindWebsocket)}
		},
	})
	table.Register(capability.Def{
		Name:       "db",
		Privileged: true,
		Factory: func(owner capability.Owner) capability.Module {
			return &DB{conns: newConns(owner, svc, session.KindDatabase)}
		},
	})
}

// conns is the shared shape of the connection-backed modules: an owner, the
// session manager, and the kind the module speaks.
type conns struct {
	owner capability.Owner
	svc   Services
	kind  session.Kind
}

func newConns(owner capability.Owner, svc Services, kind session.Kind) conns {
	return conns{owner: owner, svc: svc, kind: kind}
}

func (c conns) open(p session.Params, onResult session.OpenResult) (string, error) {
	owner := session.Owner{Script: c.owner.Script, Instance: c.owner.Instance}
	q := c.svc.QueueOf(c.owner.Instance)
	if q == nil {
		return "", &session.ConnError{Code: session.ErrCodeNotOpen, ID: ""}
	}
	return c.svc.Sessions.Open(owner, q, c.kind, p, onResult)
}
