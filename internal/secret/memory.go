package secret

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used in tests and as a fallback when no
// OS keyring is available.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	byCat  map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		byCat:  make(map[string]string),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	s.byCat[key] = category
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	delete(s.byCat, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.values))
	for key := range s.values {
		records = append(records, Record{Key: key, Category: s.byCat[key]})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (s *MemoryStore) IsAvailable() bool { return true }
