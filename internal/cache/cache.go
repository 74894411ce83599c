// Package cache provides the TTL cache used to bound the cost of score
// recomputation and external lookups. The cache is a performance layer, not
// a correctness dependency: every operation degrades silently and callers
// fall through to direct recomputation.
package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// Cache is a key-value store with per-key expiry. Values are opaque bytes;
// callers serialize with encoding/json.
type Cache interface {
	// Get returns the value for key, or false when absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value under key for the given TTL. A non-positive TTL means
	// the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Delete removes key if present.
	Delete(ctx context.Context, key string)
	// Keys returns the live keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) []string
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache. Expiry is checked lazily on read: no
// background timer is scheduled per key, so key cardinality never grows the
// timer set. An amortized sweep on write keeps dead entries from
// accumulating indefinitely.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	writes  int

	// now is injectable for TTL tests.
	now func() time.Time
}

var _ Cache = (*Memory)(nil)

// sweepEvery is the write count between full expired-entry sweeps.
const sweepEvery = 1024

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		c.mu.Lock()
		// Re-check under the write lock; a writer may have refreshed it.
		if e, ok = c.entries[key]; ok && c.expired(e) {
			delete(c.entries, key)
			ok = false
		}
		c.mu.Unlock()
		if !ok {
			return nil, false
		}
	}
	return e.value, true
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = entry{value: value, expiresAt: expiresAt}

	c.writes++
	if c.writes >= sweepEvery {
		c.writes = 0
		for k, e := range c.entries {
			if c.expired(e) {
				delete(c.entries, k)
			}
		}
	}
}

func (c *Memory) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Memory) Keys(_ context.Context, pattern string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var keys []string
	for k, e := range c.entries {
		if c.expired(e) {
			continue
		}
		if ok, err := path.Match(pattern, k); err == nil && ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *Memory) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}
