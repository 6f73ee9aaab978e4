// Package cache provides the in-memory store behind the read-through
// decorators. Entries live until they are deleted or the cache is cleared.
// Every cache keeps Statistics; Prometheus metrics are optional.
package cache

import (
	"sync"
)

// Cache is a thread-safe map with hit/miss accounting.
type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]V
	stats   *Statistics
	metrics *cacheMetrics // nil unless WithMetrics was given
}

// New creates an empty cache. It fails only when metric registration fails.
func New[V any](opts ...Option) (*Cache[V], error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var metrics *cacheMetrics
	if o.registerer != nil && o.component != "" {
		var err error
		metrics, err = newCacheMetrics(o.registerer, o.component)
		if err != nil {
			return nil, err
		}
	}

	return &Cache[V]{
		items:   make(map[string]V),
		stats:   NewStatistics(),
		metrics: metrics,
	}, nil
}

// Get retrieves a value by key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	value, exists := c.items[key]
	c.mu.RUnlock()

	if exists {
		c.stats.Hit()
		if c.metrics != nil {
			c.metrics.recordHit()
		}
	} else {
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
	}
	return value, exists
}

// Set stores value under key, replacing any previous entry.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.items[key] = value
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}
}

// Delete removes the given keys and returns how many were present.
func (c *Cache[V]) Delete(keys ...string) int {
	c.mu.Lock()
	removed := 0
	for _, key := range keys {
		if _, ok := c.items[key]; ok {
			delete(c.items, key)
			removed++
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if removed > 0 {
		c.stats.Delete(removed)
		if c.metrics != nil {
			c.metrics.recordDelete(removed)
			c.metrics.updateSize(size)
		}
	}
	return removed
}

// Clear removes all entries from the cache.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]V)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
}

// Size returns the current number of entries in the cache.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns the live statistics of the cache.
func (c *Cache[V]) Stats() *Statistics {
	return c.stats
}
