// Package manifest loads script manifests from CUE files.
//
// A manifest is consumed once at script-load time: its required-module list
// feeds the capability check, its autorun flag tells the host to load the
// script at startup, and its variable schema and command strings populate
// the configuration surface.
package manifest

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Var is one declared script variable.
type Var struct {
	Name    string `json:"name" validate:"required"`
	Type    string `json:"type" validate:"required,oneof=string number bool password track channel"`
	Title   string `json:"title,omitempty"`
	Default any    `json:"default,omitempty"`
}

// Manifest describes one script to the host.
type Manifest struct {
	// Name must not contain "@": script names are joined with instance
	// ids into store and session owner keys, and "@" is the separator.
	Name        string   `json:"name" validate:"required,excludes=@"`
	Version     string   `json:"version" validate:"required"`
	Author      string   `json:"author,omitempty"`
	Description string   `json:"description,omitempty"`
	Autorun     bool     `json:"autorun,omitempty"`
	Hidden      bool     `json:"hidden,omitempty"`
	Backends    []string `json:"backends,omitempty" validate:"dive,oneof=ts3 discord"`
	Requires    []string `json:"requires,omitempty" validate:"dive,required"`
	Vars        []Var    `json:"vars,omitempty" validate:"dive"`
	Commands    []string `json:"commands,omitempty" validate:"dive,required"`
}

var validate = validator.New()

// Validate checks structural constraints that CUE compilation does not:
// required fields, known backend kinds, known variable types.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("manifest %q: %w", m.Name, err)
	}
	return nil
}

// SupportsBackend reports whether the script runs on the given backend kind.
// An empty Backends list means every backend.
func (m *Manifest) SupportsBackend(kind string) bool {
	if len(m.Backends) == 0 {
		return true
	}
	for _, b := range m.Backends {
		if b == kind {
			return true
		}
	}
	return false
}
