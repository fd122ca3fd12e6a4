package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/calificaprofe/calificaprofe-api/config"
)

// ErrMiss is returned by Store.Get when the key holds no value
var ErrMiss = errors.New("cache miss")

// Store is the durable key/value storage behind the local caches.
// Values are opaque JSON documents; writes are last-writer-wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// NewStore opens the backend selected by CACHE_DRIVER
func NewStore(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Driver {
	case config.CacheDriverSQLite:
		store, err = NewSQLiteStore(cfg.SQLitePath)
	case config.CacheDriverRedis:
		store, err = NewRedisStore(ctx, cfg.RedisURL)
	case config.CacheDriverMemory, "":
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.KeyPrefix != "" {
		store = &prefixedStore{Store: store, prefix: cfg.KeyPrefix}
	}
	return store, nil
}

// prefixedStore namespaces every key, so several installs can share one redis
type prefixedStore struct {
	Store
	prefix string
}

func (p *prefixedStore) Get(ctx context.Context, key string) ([]byte, error) {
	return p.Store.Get(ctx, p.prefix+key)
}

func (p *prefixedStore) Set(ctx context.Context, key string, value []byte) error {
	return p.Store.Set(ctx, p.prefix+key, value)
}

func (p *prefixedStore) Delete(ctx context.Context, key string) error {
	return p.Store.Delete(ctx, p.prefix+key)
}
