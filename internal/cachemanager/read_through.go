package cachemanager

import (
	"context"
	"time"
)

// ReadThrough wraps a DetailCache with a fetch function, filling the
// cache on miss.
type ReadThrough[K ~string, V any, I any] struct {
	cache           DetailCache[K, V]
	fn              func(ctx context.Context, input I) (V, error)
	shouldSkipCache bool
}

// NewReadThrough builds a read-through view over cache using fn to
// resolve misses. shouldSkipCache bypasses the cache entirely, which is
// useful in tests and for forced refreshes.
func NewReadThrough[K ~string, V any, I any](
	cache DetailCache[K, V],
	fn func(ctx context.Context, input I) (V, error),
	shouldSkipCache bool,
) *ReadThrough[K, V, I] {
	return &ReadThrough[K, V, I]{
		cache:           cache,
		fn:              fn,
		shouldSkipCache: shouldSkipCache,
	}
}

// Get returns the cached value for key or resolves it through fn,
// caching the result with the given TTL.
func (r *ReadThrough[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx, input)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, ttl)
	return value, nil
}
