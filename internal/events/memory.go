package events

import (
	"context"
	"sync"
)

// DefaultMemoryCapacity bounds how many ids the memory store remembers.
const DefaultMemoryCapacity = 5000

// MemoryProcessedStore keeps the most recent ids in process memory. The
// oldest id is forgotten once capacity is reached.
type MemoryProcessedStore struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
}

func NewMemoryProcessedStore(capacity int) *MemoryProcessedStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryProcessedStore{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	key := provider + ":" + eventID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
	return true, nil
}

// Len reports how many ids are remembered.
func (s *MemoryProcessedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

var _ ProcessedStore = (*MemoryProcessedStore)(nil)
