package journal

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps entries for the life of the process.
type Memory struct {
	mu    sync.RWMutex
	items map[uint32]Entry
}

func NewMemory() *Memory {
	return &Memory{items: make(map[uint32]Entry)}
}

func (m *Memory) Put(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[e.TensorID] = e
	return nil
}

func (m *Memory) Get(_ context.Context, tensorID uint32) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[tensorID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.items))
	for _, e := range m.items {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TensorID < out[j].TensorID
	})
	return out, nil
}
