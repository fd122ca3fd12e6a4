package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
	"go.uber.org/zap"
)

const identityKey = "identity"

// IdentityCache persists the last known identity in a single slot
type IdentityCache struct {
	store Store
}

// NewIdentityCache creates an IdentityCache over store
func NewIdentityCache(store Store) *IdentityCache {
	return &IdentityCache{store: store}
}

// Read returns the cached identity. Failures are logged and reported as a miss.
func (c *IdentityCache) Read(ctx context.Context) (*models.Identity, bool) {
	data, err := c.store.Get(ctx, identityKey)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			logger.Warn("Failed to read cached identity", zap.Error(err))
		}
		metrics.CacheMisses.WithLabelValues("identity").Inc()
		return nil, false
	}

	var identity models.Identity
	if err := json.Unmarshal(data, &identity); err != nil || identity.ID == "" {
		logger.Warn("Discarding undecodable cached identity", zap.Error(err))
		metrics.CacheMisses.WithLabelValues("identity").Inc()
		return nil, false
	}

	metrics.CacheHits.WithLabelValues("identity").Inc()
	return &identity, true
}

// Write stores identity; a nil identity clears the slot
func (c *IdentityCache) Write(ctx context.Context, identity *models.Identity) {
	if identity == nil {
		c.Clear(ctx)
		return
	}

	data, err := json.Marshal(identity)
	if err != nil {
		logger.Error("Failed to encode identity", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, identityKey, data); err != nil {
		logger.Warn("Failed to write cached identity", zap.String("user_id", identity.ID), zap.Error(err))
		return
	}
	metrics.CacheWrites.WithLabelValues("identity").Inc()
}

// Clear empties the slot
func (c *IdentityCache) Clear(ctx context.Context) {
	if err := c.store.Delete(ctx, identityKey); err != nil {
		logger.Warn("Failed to clear cached identity", zap.Error(err))
	}
}
