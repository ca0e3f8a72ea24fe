package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the encoded record in memory. Records go through the
// same JSON encoding as the durable stores.
type MemoryStore struct {
	mu      sync.Mutex
	data    []byte
	profile string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profile: Options{}.withDefaults().Profile}
}

// Load decodes the held record.
func (m *MemoryStore) Load(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return DefaultState()
	}
	st, err := decode(m.data)
	if err != nil {
		return DefaultState()
	}
	return st
}

// Save encodes and holds the record.
func (m *MemoryStore) Save(ctx context.Context, st State) error {
	data, err := encode(st, m.profile)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

// Clear drops the record.
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
