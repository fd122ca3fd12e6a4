package supabase

import (
	"context"
	"sync"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
)

// MemoryStorage keeps the session for the life of the process only
type MemoryStorage struct {
	mu      sync.Mutex
	session *models.Session
}

// NewMemoryStorage creates an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) LoadSession(_ context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSession(m.session), nil
}

func (m *MemoryStorage) SaveSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = cloneSession(session)
	return nil
}

func (m *MemoryStorage) ClearSession(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
