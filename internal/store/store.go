package store

import (
	"context"
	"fmt"

	"github.com/Diesmo/scripthost/internal/value"
)

// Scope is the visibility tier of a stored entry.
type Scope string

const (
	// ScopeInstance entries belong to one script loaded into one instance.
	ScopeInstance Scope = "instance"
	// ScopeScript entries are shared by all instances of one script.
	ScopeScript Scope = "script"
	// ScopeGlobal entries are shared by every script and instance.
	ScopeGlobal Scope = "global"
)

// Selector addresses one scope tier plus its owner. Build selectors with
// Instance, Script, or Global rather than by hand.
type Selector struct {
	Scope Scope
	Owner string
}

// Instance selects the per-(script, instance) tier.
func Instance(script, instance string) Selector {
	return Selector{Scope: ScopeInstance, Owner: script + "@" + instance}
}

// Script selects the per-script tier shared across instances.
func Script(script string) Selector {
	return Selector{Scope: ScopeScript, Owner: script}
}

// Global selects the process-wide tier.
func Global() Selector {
	return Selector{Scope: ScopeGlobal, Owner: ""}
}

// ValidationError reports a value that cannot be stored: cyclic, carrying a
// non-serializable Go type, or an empty key.
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: %s", e.Message)
	}
	return fmt.Sprintf("store: key %q: %s", e.Key, e.Message)
}

// Backend is the durable layer beneath the store. Implementations must make
// each single-key operation atomic and Keys/All snapshot-consistent.
type Backend interface {
	Put(ctx context.Context, sel Selector, key string, data []byte) error
	Get(ctx context.Context, sel Selector, key string) ([]byte, bool, error)
	Delete(ctx context.Context, sel Selector, key string) error
	Keys(ctx context.Context, sel Selector) ([]string, error)
	All(ctx context.Context, sel Selector) (map[string][]byte, error)
	Close() error
}

// Store is the scoped key/value API handed to script-facing modules.
// Safe for concurrent use from any number of script contexts.
type Store struct {
	backend Backend
}

// New wraps a backend in the scoped store API.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Set overwrites the entry for key atomically. The value must be a finite
// serializable tree; anything else returns a ValidationError and leaves the
// entry unchanged.
func (s *Store) Set(ctx context.Context, sel Selector, key string, v value.Value) error {
	if key == "" {
		return &ValidationError{Message: "empty key"}
	}
	if v == nil {
		return &ValidationError{Key: key, Message: "value is untyped nil; use value.Null to store null"}
	}

	data, err := value.Encode(v)
	if err != nil {
		return &ValidationError{Key: key, Message: err.Error()}
	}
	return s.backend.Put(ctx, sel, key, data)
}

// Get returns the stored value for key. The second result reports presence:
// a stored null yields (value.Null{}, true, nil), an absent key
// (nil, false, nil).
func (s *Store) Get(ctx context.Context, sel Selector, key string) (value.Value, bool, error) {
	data, ok, err := s.backend.Get(ctx, sel, key)
	if err != nil || !ok {
		return nil, false, err
	}
	v, err := value.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("store: corrupt entry %q: %w", key, err)
	}
	return v, true, nil
}

// Unset removes the entry for key. Unsetting an absent key is a no-op.
func (s *Store) Unset(ctx context.Context, sel Selector, key string) error {
	return s.backend.Delete(ctx, sel, key)
}

// Keys returns the keys present for the selector at a single point in time.
func (s *Store) Keys(ctx context.Context, sel Selector) ([]string, error) {
	return s.backend.Keys(ctx, sel)
}

// All returns every entry for the selector as one consistent snapshot.
func (s *Store) All(ctx context.Context, sel Selector) (map[string]value.Value, error) {
	raw, err := s.backend.All(ctx, sel)
	if err != nil {
		return nil, err
	}
	out := make(map[string]value.Value, len(raw))
	for k, data := range raw {
		v, err := value.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("store: corrupt entry %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Close releases the backing storage.
func (s *Store) Close() error {
	return s.backend.Close()
}
