package store

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Record)}
}

func (m *MemoryStore) Create(_ context.Context, rec Record) error {
	id, ok := rec.ID()
	if !ok {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[id]; exists {
		return ErrDuplicateID
	}
	m.docs[id] = rec.Clone()
	m.order = append(m.order, id)
	return nil
}

// List returns records in insertion order.
func (m *MemoryStore) List(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.order)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]Record, 0, n)
	for _, id := range m.order[:n] {
		result = append(result, m.docs[id].Clone())
	}
	return result, nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }
