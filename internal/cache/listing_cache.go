package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultDuration is how long a listing entry is considered fresh
	DefaultDuration = time.Hour

	filtersKey = "filters"
)

// ListingCache stores listing pages and filter options with their write time.
// Reads never fail: storage or decoding problems are logged and reported as a miss.
type ListingCache struct {
	store    Store
	duration time.Duration
	now      func() time.Time
}

// NewListingCache creates a ListingCache. A zero duration means DefaultDuration
// and a nil clock means time.Now.
func NewListingCache(store Store, duration time.Duration, now func() time.Time) *ListingCache {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if now == nil {
		now = time.Now
	}
	return &ListingCache{store: store, duration: duration, now: now}
}

// Read returns the entry stored under key
func (c *ListingCache) Read(ctx context.Context, key string) (*models.CachedListing, bool) {
	var entry models.CachedListing
	if !c.load(ctx, "listing", key, &entry) {
		return nil, false
	}
	return &entry, true
}

// Write replaces the entry under key. Empty row sets are ignored so a
// transiently empty response never erases a good page.
func (c *ListingCache) Write(ctx context.Context, key string, rows []models.TeacherSummary, total int) {
	if len(rows) == 0 {
		logger.Debug("Skipping cache write of empty listing", zap.String("key", key))
		return
	}
	c.save(ctx, "listing", key, models.CachedListing{
		Rows:       rows,
		TotalCount: total,
		WrittenAt:  c.now().UnixMilli(),
	})
}

// Delete drops the entry under key
func (c *ListingCache) Delete(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		logger.Warn("Failed to delete listing cache entry", zap.String("key", key), zap.Error(err))
	}
}

// IsStale reports whether entry is older than the cache duration
func (c *ListingCache) IsStale(entry *models.CachedListing) bool {
	if entry == nil {
		return true
	}
	return c.expired(entry.WrittenAt)
}

// ReadFilters returns the cached filter options
func (c *ListingCache) ReadFilters(ctx context.Context) (*models.CachedFilters, bool) {
	var entry models.CachedFilters
	if !c.load(ctx, "filters", filtersKey, &entry) {
		return nil, false
	}
	return &entry, true
}

// WriteFilters replaces the cached filter options unless opts is empty
func (c *ListingCache) WriteFilters(ctx context.Context, opts models.FilterOptions) {
	if opts.Empty() {
		return
	}
	c.save(ctx, "filters", filtersKey, models.CachedFilters{
		Options:   opts,
		WrittenAt: c.now().UnixMilli(),
	})
}

// DeleteFilters drops the cached filter options
func (c *ListingCache) DeleteFilters(ctx context.Context) {
	c.Delete(ctx, filtersKey)
}

// FiltersStale reports whether entry is older than the cache duration
func (c *ListingCache) FiltersStale(entry *models.CachedFilters) bool {
	if entry == nil {
		return true
	}
	return c.expired(entry.WrittenAt)
}

func (c *ListingCache) expired(writtenAtMillis int64) bool {
	return c.now().Sub(time.UnixMilli(writtenAtMillis)) > c.duration
}

func (c *ListingCache) load(ctx context.Context, name, key string, dest any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			logger.Warn("Failed to read cache entry", zap.String("cache", name), zap.String("key", key), zap.Error(err))
		}
		metrics.CacheMisses.WithLabelValues(name).Inc()
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		logger.Warn("Discarding undecodable cache entry", zap.String("cache", name), zap.String("key", key), zap.Error(err))
		metrics.CacheMisses.WithLabelValues(name).Inc()
		return false
	}

	metrics.CacheHits.WithLabelValues(name).Inc()
	return true
}

func (c *ListingCache) save(ctx context.Context, name, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		logger.Error("Failed to encode cache entry", zap.String("cache", name), zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, data); err != nil {
		logger.Warn("Failed to write cache entry", zap.String("cache", name), zap.String("key", key), zap.Error(err))
		return
	}
	metrics.CacheWrites.WithLabelValues(name).Inc()
}
