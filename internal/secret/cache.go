package secret

import (
	"context"
	"sync"
)

// CachingStore memoizes reads against a slower backing store. The cache is
// invalidated on every write to the store, never on a timer: a credential
// save must be visible to the very next read, and the acceptable staleness
// window is exactly "until the next credential write".
type CachingStore struct {
	backing Store

	mu    sync.RWMutex
	cache map[string]string
	miss  map[string]bool
}

// NewCachingStore wraps a backing store with a read-through cache.
func NewCachingStore(backing Store) *CachingStore {
	return &CachingStore{
		backing: backing,
		cache:   make(map[string]string),
		miss:    make(map[string]bool),
	}
}

func (s *CachingStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	if s.miss[key] {
		s.mu.RUnlock()
		return "", ErrNotFound
	}
	s.mu.RUnlock()

	value, err := s.backing.Get(ctx, key)
	if err != nil {
		if err == ErrNotFound {
			s.mu.Lock()
			s.miss[key] = true
			s.mu.Unlock()
		}
		return "", err
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return value, nil
}

func (s *CachingStore) Set(ctx context.Context, key, value, category string) error {
	if err := s.backing.Set(ctx, key, value, category); err != nil {
		return err
	}
	s.invalidate(key)
	return nil
}

func (s *CachingStore) Delete(ctx context.Context, key string) error {
	if err := s.backing.Delete(ctx, key); err != nil {
		return err
	}
	s.invalidate(key)
	return nil
}

func (s *CachingStore) List(ctx context.Context) ([]Record, error) {
	return s.backing.List(ctx)
}

func (s *CachingStore) IsAvailable() bool { return s.backing.IsAvailable() }

func (s *CachingStore) invalidate(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	delete(s.miss, key)
	s.mu.Unlock()
}
