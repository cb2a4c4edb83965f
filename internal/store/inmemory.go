package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps kiosk state in process memory. Used in tests and when
// the kiosk runs without a data path; state does not survive a restart.
type InMemoryStore struct {
	mu         sync.RWMutex
	permission *PermissionRecord
	calls      []CallRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) LoadPermission(_ context.Context) (PermissionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.permission == nil {
		return PermissionRecord{}, false, nil
	}
	return *s.permission, true, nil
}

func (s *InMemoryStore) SavePermission(_ context.Context, rec PermissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	s.permission = &rec
	return nil
}

func (s *InMemoryStore) AppendCall(_ context.Context, rec CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.calls = append(s.calls, rec)
	return nil
}

func (s *InMemoryStore) RecentCalls(_ context.Context, limit int) ([]CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.calls) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(s.calls) {
		limit = len(s.calls)
	}
	// Newest first.
	out := make([]CallRecord, 0, limit)
	for i := len(s.calls) - 1; i >= len(s.calls)-limit; i-- {
		out = append(out, s.calls[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
