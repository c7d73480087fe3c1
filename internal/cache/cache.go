// Package cache provides a process-wide TTL cache for expensive,
// slowly-changing system facts (CPU model name, core counts, GPU identity).
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value   any
	err     error
	expires time.Time
	done    chan struct{} // closed once the supplier has finished
}

func (e *entry) live(now time.Time) bool {
	select {
	case <-e.done:
	default:
		return false // still computing
	}
	return e.err == nil && now.Before(e.expires)
}

// Cache is a thread-safe key/value store with per-key time-to-live.
// A read after expiry triggers recomputation by the supplier; concurrent
// callers for the same key block for the single in-flight result.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// GetOrCompute returns the cached value for key if it is still live,
// otherwise invokes supplier, stores the result with a fresh expiry, and
// returns it. At most one supplier runs per key at a time; supplier errors
// are returned to all waiters and not cached.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, supplier func() (any, error)) (any, error) {
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		select {
		case <-e.done:
			if e.live(now) {
				c.mu.Unlock()
				return e.value, nil
			}
			// Expired or errored: fall through and recompute.
		default:
			// Another caller is computing; wait outside the lock.
			c.mu.Unlock()
			<-e.done
			if e.err != nil {
				return nil, e.err
			}
			return e.value, nil
		}
	}

	e := &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	e.value, e.err = supplier()
	e.expires = time.Now().Add(ttl)
	close(e.done)

	if e.err != nil {
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, e.err
	}
	return e.value, nil
}

// Invalidate drops the entry for key so the next access recomputes it.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, including expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Value is a typed wrapper around Cache.GetOrCompute. A cached value of the
// wrong type counts as a miss: the entry is invalidated and recomputed
// through the cache, so the correctly-typed result is stored for later
// callers.
func Value[T any](c *Cache, key string, ttl time.Duration, supplier func() (T, error)) (T, error) {
	wrapped := func() (any, error) { return supplier() }

	v, err := c.GetOrCompute(key, ttl, wrapped)
	if err == nil {
		if t, ok := v.(T); ok {
			return t, nil
		}
		c.Invalidate(key)
		v, err = c.GetOrCompute(key, ttl, wrapped)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}
