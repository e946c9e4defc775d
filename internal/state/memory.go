package state

import (
	"context"
	"sync"

	"scratcha-console/client/internal/session/domain"
)

// MemoryStore is an in-memory Store used by tests and ephemeral sessions.
type MemoryStore struct {
	mu   sync.RWMutex
	sess *domain.Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored session, if any.
func (m *MemoryStore) Load(ctx context.Context) (*domain.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return nil, false, nil
	}
	cp := *m.sess
	return &cp, true, nil
}

// Save stores a copy of s.
func (m *MemoryStore) Save(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sess = &cp
	return nil
}

// Clear drops the stored session.
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	return nil
}
