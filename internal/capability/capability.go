// Package capability gates which built-in modules a script may use.
//
// Modules are registered once in a static Table. Privileged modules require
// a per-script grant from host configuration. A script's declared
// requirements are checked before any of its code runs - a declared
// privileged module without a grant fails the whole load. Runtime requests
// for undeclared privileged modules return a recoverable error value to the
// script instead.
package capability

import (
	"errors"
	"fmt"
	"sync"
)

// Module is a resolved handle to a built-in module. Concrete module types
// live in internal/modules; scripts interact with them through whatever API
// each module exposes.
type Module interface {
	ModuleName() string
}

// Owner identifies the script context a module handle is bound to.
type Owner struct {
	Script   string
	Instance string
}

// Factory constructs a module handle bound to one script context. Called at
// most once per (script context, module) - repeated resolution returns the
// cached handle, so module-local state such as open connections is shared
// across require calls.
type Factory func(owner Owner) Module

// Def declares one module in the table.
type Def struct {
	Name       string
	Privileged bool
	Factory    Factory
}

// Table is the static module registry, built once at host startup.
type Table struct {
	defs map[string]Def
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{defs: make(map[string]Def)}
}

// Register adds a module definition.
// Panics on a duplicate name - that is a programmer error, not a runtime
// condition.
func (t *Table) Register(def Def) {
	if _, exists := t.defs[def.Name]; exists {
		panic(fmt.Sprintf("module %q already registered", def.Name))
	}
	if def.Factory == nil {
		panic(fmt.Sprintf("module %q registered without factory", def.Name))
	}
	t.defs[def.Name] = def
}

// Lookup returns the definition for name.
func (t *Table) Lookup(name string) (Def, bool) {
	def, ok := t.defs[name]
	return def, ok
}

// Names returns all registered module names (unordered).
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.defs))
	for name := range t.defs {
		names = append(names, name)
	}
	return names
}

// Grants maps script names to the privileged modules host configuration
// allows them. Produced once at startup and read-only afterwards.
type Grants map[string][]string

// Allows reports whether script holds a grant for module.
func (g Grants) Allows(script, module string) bool {
	for _, m := range g[script] {
		if m == module {
			return true
		}
	}
	return false
}

// ErrorCode categorizes capability failures.
type ErrorCode string

const (
	// ErrCodeUnknownModule indicates a module name not present in the table.
	ErrCodeUnknownModule ErrorCode = "UNKNOWN_MODULE"

	// ErrCodePrivilegeDenied indicates a privileged module without a grant.
	ErrCodePrivilegeDenied ErrorCode = "PRIVILEGE_DENIED"
)

// Error is returned when module resolution is refused. At load time (for
// declared requirements) it aborts the whole load; at runtime it is an
// ordinary error value the script can recover from.
type Error struct {
	Code   ErrorCode
	Script string
	Module string
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeUnknownModule:
		return fmt.Sprintf("%s: script %q requires unknown module %q", e.Code, e.Script, e.Module)
	case ErrCodePrivilegeDenied:
		return fmt.Sprintf("%s: script %q lacks grant for privileged module %q", e.Code, e.Script, e.Module)
	}
	return fmt.Sprintf("%s: script %q module %q", e.Code, e.Script, e.Module)
}

// IsPrivilegeDenied reports whether err is a privilege refusal.
// Uses errors.As to handle wrapped errors.
func IsPrivilegeDenied(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == ErrCodePrivilegeDenied
}

// CheckRequired validates a script's declared required modules against the
// table and its grants. Any unknown module or ungranted privileged module
// fails the check - the caller must abort the load before running script
// code (all-or-nothing).
func CheckRequired(t *Table, grants Grants, script string, required []string) error {
	for _, name := range required {
		def, ok := t.Lookup(name)
		if !ok {
			return &Error{Code: ErrCodeUnknownModule, Script: script, Module: name}
		}
		if def.Privileged && !grants.Allows(script, name) {
			return &Error{Code: ErrCodePrivilegeDenied, Script: script, Module: name}
		}
	}
	return nil
}

// Resolver resolves module handles for one script context.
// Resolution is idempotent: the first Resolve for a name constructs the
// handle, later ones return the same instance.
type Resolver struct {
	table  *Table
	grants Grants
	owner  Owner

	mu      sync.Mutex
	handles map[string]Module
}

// NewResolver creates a resolver bound to one script context.
func NewResolver(table *Table, grants Grants, owner Owner) *Resolver {
	return &Resolver{
		table:   table,
		grants:  grants,
		owner:   owner,
		handles: make(map[string]Module),
	}
}

// Resolve returns the handle for name, constructing it on first use.
// Privileged modules without a grant return a capability Error; the script
// context stays alive and may handle the error.
func (r *Resolver) Resolve(name string) (Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[name]; ok {
		return h, nil
	}

	def, ok := r.table.Lookup(name)
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownModule, Script: r.owner.Script, Module: name}
	}
	if def.Privileged && !r.grants.Allows(r.owner.Script, name) {
		return nil, &Error{Code: ErrCodePrivilegeDenied, Script: r.owner.Script, Module: name}
	}

	h := def.Factory(r.owner)
	r.handles[name] = h
	return h, nil
}
