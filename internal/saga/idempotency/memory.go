// internal/saga/idempotency/memory.go
package idempotency

import (
	"context"
	"sync"

	"mercado/internal/saga"
)

// MemoryStore 是 Guard 的进程内实现，测试用。
type MemoryStore struct {
	mu        sync.Mutex
	processed map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{processed: make(map[string]struct{})}
}

func (s *MemoryStore) ShouldProcess(_ context.Context, correlationID string, kind saga.EventKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[correlationID+"|"+string(kind)]
	return !ok, nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, correlationID string, kind saga.EventKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := correlationID + "|" + string(kind)
	if _, ok := s.processed[k]; ok {
		return saga.ErrDuplicateEvent
	}
	s.processed[k] = struct{}{}
	return nil
}

func (s *MemoryStore) WasProcessed(_ context.Context, correlationID string, kind saga.EventKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[correlationID+"|"+string(kind)]
	return ok, nil
}
