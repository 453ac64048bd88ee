package store

import (
	"context"
	"slices"
	"sync"
)

// Memory is an ephemeral Backend for tests and ad-hoc hosts that do not need
// entries to survive restart. A single RWMutex guards the map; operations
// copy on the way in and out, so Keys and All are true snapshots.
type Memory struct {
	mu      sync.RWMutex
	entries map[Selector]map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[Selector]map[string][]byte)}
}

// Put implements Backend.
func (m *Memory) Put(_ context.Context, sel Selector, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.entries[sel]
	if !ok {
		bucket = make(map[string][]byte)
		m.entries[sel] = bucket
	}
	bucket[key] = slices.Clone(data)
	return nil
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, sel Selector, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.entries[sel][key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(data), true, nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, sel Selector, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries[sel], key)
	return nil
}

// Keys implements Backend.
func (m *Memory) Keys(_ context.Context, sel Selector) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries[sel]))
	for k := range m.entries[sel] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// All implements Backend.
func (m *Memory) All(_ context.Context, sel Selector) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(m.entries[sel]))
	for k, v := range m.entries[sel] {
		out[k] = slices.Clone(v)
	}
	return out, nil
}

// Close implements Backend.
func (m *Memory) Close() error {
	return nil
}
