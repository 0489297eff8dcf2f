package credentials

import (
	"context"
	"sync"
)

// MemoryStore keeps the pair in process memory. Values do not survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	pair Pair
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Access(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.AccessToken, nil
}

func (s *MemoryStore) Refresh(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.RefreshToken, nil
}

func (s *MemoryStore) SetPair(_ context.Context, p Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.AccessToken != "" {
		s.pair.AccessToken = p.AccessToken
	}
	if p.RefreshToken != "" {
		s.pair.RefreshToken = p.RefreshToken
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.pair = Pair{}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}
