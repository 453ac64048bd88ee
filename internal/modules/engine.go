package modules

import (
	"log/slog"

	"github.com/Diesmo/scripthost/internal/capability"
)

// Engine exposes the script's own runtime context: which instance it runs
// in, on what backend, and a structured log sink tagged with its identity.
type Engine struct {
	owner capability.Owner
	svc   Services
}

// ModuleName implements capability.Module.
func (*Engine) ModuleName() string { return "engine" }

// ScriptName returns the name of the owning script.
func (e *Engine) ScriptName() string { return e.owner.Script }

// InstanceID returns the id of the instance the script is loaded into.
func (e *Engine) InstanceID() string { return e.owner.Instance }

// Backend returns the backend kind of the owning instance.
func (e *Engine) Backend() string {
	if e.svc.BackendOf == nil {
		return ""
	}
	kind, _ := e.svc.BackendOf(e.owner.Instance)
	return kind
}

// Log writes a script-attributed log line.
func (e *Engine) Log(msg string) {
	slog.Info(msg, "script", e.owner.Script, "instance", e.owner.Instance)
}
