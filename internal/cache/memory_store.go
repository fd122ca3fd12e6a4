package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = 10 * time.Minute

// MemoryStore keeps entries in process memory. Staleness is judged by the
// readers from the entry timestamp, so items never expire here.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: gocache.New(gocache.NoExpiration, memoryCleanupInterval)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	data, found := m.cache.Get(key)
	if !found {
		return nil, ErrMiss
	}
	value, ok := data.([]byte)
	if !ok {
		m.cache.Delete(key)
		return nil, ErrMiss
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.cache.Set(key, append([]byte(nil), value...), gocache.NoExpiration)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *MemoryStore) Close() error {
	m.cache.Flush()
	return nil
}
