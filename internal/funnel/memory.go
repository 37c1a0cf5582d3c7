package funnel

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps states in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (m *MemoryStore) Get(_ context.Context, phone string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[phone]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, s State) error {
	m.mu.Lock()
	m.states[s.Phone] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, phone string) error {
	m.mu.Lock()
	delete(m.states, phone)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]State, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
