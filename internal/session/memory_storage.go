package session

import (
	"context"
	"sync"
)

// MemoryStorage is a process-local Storage for single-instance deployments
// and tests.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]map[string]string)}
}

func (m *MemoryStorage) GetAll(_ context.Context, browserID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data[browserID]))
	for k, v := range m.data[browserID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStorage) SetAll(_ context.Context, browserID string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	area, ok := m.data[browserID]
	if !ok {
		area = make(map[string]string, len(values))
		m.data[browserID] = area
	}
	for k, v := range values {
		area[k] = v
	}
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, browserID string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	area := m.data[browserID]
	for _, k := range keys {
		delete(area, k)
	}
	if len(area) == 0 {
		delete(m.data, browserID)
	}
	return nil
}
