// Package cache provides the in-process TTL result cache used by the
// dashboard service. Entries are immutable once written; updates replace the
// whole entry.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Stats tracks cache effectiveness for the admin surface.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Keys      int   `json:"keys"`
}

// Cache is a thread-safe TTL cache with per-key single-flight computation.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	flight  singleflight.Group

	hits      int64
	misses    int64
	evictions int64

	done     chan struct{}
	stopOnce sync.Once
}

// New returns an empty cache and starts a background sweep that drops
// expired entries every cleanupInterval. Call Stop to end the sweep when
// the cache is no longer needed.
func New() *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Stop ends the background cleanup goroutine. The cache stays usable;
// expired entries are then only dropped lazily on access. Safe to call
// more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

const cleanupInterval = time.Minute

// GetOrCompute returns the cached value for key when present and fresh.
// Otherwise it runs compute, with at most one in-flight compute per key:
// concurrent callers for the same key share the winner's result instead of
// hitting the backend N times. Errors from compute are returned and never
// cached. The bool reports whether the value was served from cache.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, compute func() (any, error)) (any, bool, error) {
	if v, ok := c.get(key); ok {
		return v, true, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// A concurrent winner may have populated the key while this caller
		// waited on the flight; check again before computing. The outer
		// lookup already counted this request, so peek without counting.
		if v, ok := c.peek(key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}

// Forget drops one key.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// FlushAll resets the cache, e.g. after a rollup refresh made every cached
// historical result stale.
func (c *Cache) FlushAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Stats returns a snapshot of hit/miss counters and the live key count.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Keys: len(c.entries)}
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.count(&c.misses)
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// replaced the entry with a fresh one.
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
			c.evictions++
		}
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	c.count(&c.hits)
	return e.value, true
}

// peek is get without touching the hit/miss counters, for internal
// re-checks that belong to an already-counted request.
func (c *Cache) peek(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *Cache) count(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, key)
					c.evictions++
				}
			}
			c.mu.Unlock()
		}
	}
}
