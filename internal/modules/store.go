package modules

import (
	"context"

	"github.com/Diesmo/scripthost/internal/capability"
	"github.com/Diesmo/scripthost/internal/store"
	"github.com/Diesmo/scripthost/internal/value"
)

// Store is the script-facing key/value module. The plain methods operate on
// script scope (shared by all instances of the script); the Instance and
// Global variants select the narrower and wider tiers.
type Store struct {
	owner capability.Owner
	st    *store.Store
}

// ModuleName implements capability.Module.
func (*Store) ModuleName() string { return "store" }

func (s *Store) scriptSel() store.Selector   { return store.Script(s.owner.Script) }
func (s *Store) instanceSel() store.Selector { return store.Instance(s.owner.Script, s.owner.Instance) }
func (s *Store) globalSel() store.Selector   { return store.Global() }

// Set writes a script-scope entry. The value may be any serializable Go
// data; cyclic or unsupported values return a ValidationError.
func (s *Store) Set(key string, v any) error { return s.set(s.scriptSel(), key, v) }

// Get reads a script-scope entry. ok is false when the key is absent.
func (s *Store) Get(key string) (value.Value, bool, error) { return s.get(s.scriptSel(), key) }

// Unset removes a script-scope entry.
func (s *Store) Unset(key string) error { return s.unset(s.scriptSel(), key) }

// Keys lists script-scope keys.
func (s *Store) Keys() ([]string, error) { return s.st.Keys(context.Background(), s.scriptSel()) }

// All snapshots every script-scope entry.
func (s *Store) All() (map[string]value.Value, error) {
	return s.st.All(context.Background(), s.scriptSel())
}

// SetInstance writes an entry visible only to this script in this instance.
func (s *Store) SetInstance(key string, v any) error { return s.set(s.instanceSel(), key, v) }

// GetInstance reads an instance-scope entry.
func (s *Store) GetInstance(key string) (value.Value, bool, error) {
	return s.get(s.instanceSel(), key)
}

// UnsetInstance removes an instance-scope entry.
func (s *Store) UnsetInstance(key string) error { return s.unset(s.instanceSel(), key) }

// KeysInstance lists instance-scope keys.
func (s *Store) KeysInstance() ([]string, error) {
	return s.st.Keys(context.Background(), s.instanceSel())
}

// AllInstance snapshots every instance-scope entry.
func (s *Store) AllInstance() (map[string]value.Value, error) {
	return s.st.All(context.Background(), s.instanceSel())
}

// SetGlobal writes an entry shared by every script and instance.
func (s *Store) SetGlobal(key string, v any) error { return s.set(s.globalSel(), key, v) }

// GetGlobal reads a global entry.
func (s *Store) GetGlobal(key string) (value.Value, bool, error) { return s.get(s.globalSel(), key) }

// UnsetGlobal removes a global entry.
func (s *Store) UnsetGlobal(key string) error { return s.unset(s.globalSel(), key) }

// KeysGlobal lists global keys.
func (s *Store) KeysGlobal() ([]string, error) {
	return s.st.Keys(context.Background(), s.globalSel())
}

// AllGlobal snapshots every global entry.
func (s *Store) AllGlobal() (map[string]value.Value, error) {
	return s.st.All(context.Background(), s.globalSel())
}

func (s *Store) set(sel store.Selector, key string, v any) error {
	val, err := value.FromGo(v)
	if err != nil {
		return &store.ValidationError{Key: key, Message: err.Error()}
	}
	return s.st.Set(context.Background(), sel, key, val)
}

func (s *Store) get(sel store.Selector, key string) (value.Value, bool, error) {
	return s.st.Get(context.Background(), sel, key)
}

func (s *Store) unset(sel store.Selector, key string) error {
	return s.st.Unset(context.Background(), sel, key)
}
