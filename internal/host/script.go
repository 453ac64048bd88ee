package host

import (
	"github.com/Diesmo/scripthost/internal/capability"
	"github.com/Diesmo/scripthost/internal/manifest"
	"github.com/Diesmo/scripthost/internal/session"
)

// Program is the executable side of a script: a callback invoked on the
// instance's queue once the script context exists. The scripting-language
// frontend compiles down to one of these; tests and embedders pass Go
// closures directly.
type Program func(sc *ScriptContext) error

// ScriptContext is one loaded script's runtime state within one instance.
// Its identity is (script name, instance); everything the script owns -
// resolved module handles, event subscriptions, connections - is keyed by
// that identity and released on unload.
type ScriptContext struct {
	manifest *manifest.Manifest
	instance *Instance
	resolver *capability.Resolver
}

func newScriptContext(inst *Instance, m *manifest.Manifest) *ScriptContext {
	owner := capability.Owner{Script: m.Name, Instance: inst.id}
	return &ScriptContext{
		manifest: m,
		instance: inst,
		resolver: capability.NewResolver(inst.host.table, inst.host.grants, owner),
	}
}

// Name returns the script's name.
func (sc *ScriptContext) Name() string { return sc.manifest.Name }

// Manifest returns the script's manifest.
func (sc *ScriptContext) Manifest() *manifest.Manifest { return sc.manifest }

// Instance returns the instance the script is loaded into.
func (sc *ScriptContext) Instance() *Instance { return sc.instance }

// Require resolves a module handle, the runtime counterpart of the script's
// require call. Repeated calls for one name return the same handle. An
// ungranted privileged module yields a capability error value the script can
// recover from - the context itself stays alive.
func (sc *ScriptContext) Require(name string) (capability.Module, error) {
	return sc.resolver.Resolve(name)
}

func (sc *ScriptContext) sessionOwner() session.Owner {
	return session.Owner{Script: sc.manifest.Name, Instance: sc.instance.id}
}
