package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"harbormast/internal/log"
)

const (
	DefaultDetailExpiration = 10 * time.Minute
	DefaultCleanupInterval  = 30 * time.Minute
)

// DetailCache stores single-item lookups (artifact details, scan
// reports) where stale fallback is not needed.
type DetailCache[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}

// InMemoryDetailCache is the go-cache backed implementation.
type InMemoryDetailCache[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache
}

// NewInMemoryDetailCache initializes the in-memory detail cache.
// useCase names the cache in log lines.
func NewInMemoryDetailCache[K ~string, V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *InMemoryDetailCache[K, V] {
	return &InMemoryDetailCache[K, V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get retrieves an item from the cache by its key.
func (c *InMemoryDetailCache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zero V

	value, found := c.cache.Get(string(key))
	if !found {
		return zero, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value",
			"useCase", c.useCase, "key", key)
		return zero, false
	}

	log.Debug(log.CatCache, "detail cache hit", "useCase", c.useCase, "key", key)
	return v, true
}

// Set stores a value with the given TTL.
func (c *InMemoryDetailCache[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	c.cache.Set(string(key), value, ttl)
}

// Delete removes values by key.
func (c *InMemoryDetailCache[K, V]) Delete(ctx context.Context, keys ...K) error {
	for _, key := range keys {
		c.cache.Delete(string(key))
	}
	return nil
}

// Flush removes every value.
func (c *InMemoryDetailCache[K, V]) Flush(ctx context.Context) error {
	c.cache.Flush()
	return nil
}
