package supabase

import (
	"context"
	"sync"

	"github.com/framez/framez-core/internal/core/domain"
)

// MemorySessionStore keeps the session for the lifetime of the process. It
// is used when no Redis instance is configured.
type MemorySessionStore struct {
	mu      sync.Mutex
	session *domain.Session
}

// NewMemorySessionStore returns an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (m *MemorySessionStore) Load(_ context.Context) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone(), nil
}

func (m *MemorySessionStore) Save(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s.Clone()
	return nil
}

func (m *MemorySessionStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
