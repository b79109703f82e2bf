package statestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory state store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	closed  bool
}

// NewMemoryStore creates a new in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, flow string, state State) error {
	if err := validate(state); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.records[flow] = Record{Flow: flow, State: state, UpdatedAt: time.Now().UTC()}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, flow string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrStoreClosed
	}
	r, ok := m.records[flow]
	if !ok {
		return "", ErrNotFound
	}
	return r.State, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) (map[string]State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	out := make(map[string]State, len(m.records))
	for flow, r := range m.records {
		out[flow] = r.State
	}
	return out, nil
}

// Record returns the full record for flow, including its update time.
func (m *MemoryStore) Record(flow string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[flow]
	return r, ok
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, flow string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.records, flow)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of recorded flows.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
