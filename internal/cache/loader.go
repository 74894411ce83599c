package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader layers single-flight computation on top of a Cache so that
// concurrent misses for the same key collapse into one upstream call. This
// bounds the load a cold cache can place on external field sources.
type Loader struct {
	cache Cache
	group singleflight.Group
}

// NewLoader wraps a cache with single-flight semantics.
func NewLoader(c Cache) *Loader {
	return &Loader{cache: c}
}

// Cache exposes the underlying cache for direct invalidation.
func (l *Loader) Cache() Cache {
	return l.cache
}

// GetOrCompute returns the cached value for key, computing and caching it via
// fn on a miss. Only one fn runs per key at a time; other callers share its
// result. A fn error is returned uncached.
func (l *Loader) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok := l.cache.Get(ctx, key); ok {
		return v, nil
	}

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		// Another flight may have filled the cache while we queued.
		if v, ok := l.cache.Get(ctx, key); ok {
			return v, nil
		}
		computed, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		l.cache.Set(ctx, key, computed, ttl)
		return computed, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate removes a single key.
func (l *Loader) Invalidate(ctx context.Context, key string) {
	l.cache.Delete(ctx, key)
}
