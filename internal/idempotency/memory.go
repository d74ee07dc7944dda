package idempotency

import (
	"context"
	"sync"
)

// Disabled accepts every key without remembering it.
type Disabled struct{}

func (Disabled) Reserve(ctx context.Context, key, reference string) (string, error) {
	return "", nil
}

func (Disabled) Release(ctx context.Context, key, reference string) error {
	return nil
}

// MemoryStore keeps key bindings in process memory for single-instance runs.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]string)}
}

func (s *MemoryStore) Reserve(ctx context.Context, key, reference string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.keys[key]; ok {
		return existing, nil
	}
	s.keys[key] = reference
	return "", nil
}

func (s *MemoryStore) Release(ctx context.Context, key, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[key] == reference {
		delete(s.keys, key)
	}
	return nil
}
