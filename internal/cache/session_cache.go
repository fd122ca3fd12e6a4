package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
)

const sessionKey = "auth:session"

// SessionCache persists the remote auth session so a restarted process can
// resume it. It implements supabase.SessionStorage.
type SessionCache struct {
	store Store
}

// NewSessionCache creates a SessionCache over store
func NewSessionCache(store Store) *SessionCache {
	return &SessionCache{store: store}
}

func (c *SessionCache) LoadSession(ctx context.Context) (*models.Session, error) {
	data, err := c.store.Get(ctx, sessionKey)
	if errors.Is(err, ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (c *SessionCache) SaveSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return c.ClearSession(ctx)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return c.store.Set(ctx, sessionKey, data)
}

func (c *SessionCache) ClearSession(ctx context.Context) error {
	return c.store.Delete(ctx, sessionKey)
}
