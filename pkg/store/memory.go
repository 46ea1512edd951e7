package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/matzehuels/netcut/pkg/shape"
)

// MemoryStore is an in-process [Store]. The zero value is not usable; use
// [NewMemoryStore].
type MemoryStore struct {
	mu      sync.RWMutex
	tensors map[string]Tensor
}

// NewMemoryStore returns a store holding copies of the given tensors.
func NewMemoryStore(tensors map[string]Tensor) *MemoryStore {
	m := &MemoryStore{tensors: make(map[string]Tensor, len(tensors))}
	for k, v := range tensors {
		m.tensors[k] = v.Clone()
	}
	return m
}

// Put stores a copy of t under name, replacing any previous value.
func (m *MemoryStore) Put(name string, t Tensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tensors[name] = t.Clone()
}

// Len returns the number of tensors held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tensors)
}

// Names lists the held tensor names in lexical order.
func (m *MemoryStore) Names(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.tensors)), nil
}

// Get returns a copy of the named tensor.
func (m *MemoryStore) Get(ctx context.Context, name string) (Tensor, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tensors[name]
	if !ok {
		return Tensor{}, false, nil
	}
	return t.Clone(), true, nil
}

// Info returns the shape of the named tensor.
func (m *MemoryStore) Info(ctx context.Context, name string) (shape.Shape, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tensors[name]
	if !ok {
		return shape.Shape{}, false, nil
	}
	return t.Shape(), true, nil
}

// Delete removes name. Absent names are ignored.
func (m *MemoryStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tensors, name)
	return nil
}

// DeleteAll removes every name under a single lock.
func (m *MemoryStore) DeleteAll(ctx context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		delete(m.tensors, name)
	}
	return nil
}

// Snapshot returns copies of all held tensors.
func (m *MemoryStore) Snapshot() map[string]Tensor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Tensor, len(m.tensors))
	for k, v := range m.tensors {
		out[k] = v.Clone()
	}
	return out
}

// Ensure MemoryStore implements Store and BatchDeleter.
var (
	_ Store        = (*MemoryStore)(nil)
	_ BatchDeleter = (*MemoryStore)(nil)
)
