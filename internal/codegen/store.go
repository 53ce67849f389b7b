package codegen

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: make(map[string]struct{})}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[code]; taken {
		return false, nil
	}
	s.codes[code] = struct{}{}
	return true, nil
}

// IsReserved implements Store.
func (s *MemoryStore) IsReserved(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, taken := s.codes[code]
	return taken, nil
}
