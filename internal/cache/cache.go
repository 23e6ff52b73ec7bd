// Package cache provides the per-tenant TTL cache fronting the rule
// catalogs. The store stays the source of truth; entries only short-circuit
// repeated reads between admin mutations and are dropped on invalidation.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value   T
	expires time.Time
}

// Tenant is a TTL cache keyed by (tenant, key).
type Tenant[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]map[string]entry[T]
}

// New creates a cache with the given TTL. A non-positive TTL defaults to
// one minute.
func New[T any](ttl time.Duration) *Tenant[T] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Tenant[T]{
		ttl:     ttl,
		entries: make(map[string]map[string]entry[T]),
	}
}

// Get returns a copy of the cached value, if present and unexpired.
func (c *Tenant[T]) Get(tenant, key string) (*T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[tenant][key]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	value := e.value
	return &value, true
}

// Put stores a value under (tenant, key).
func (c *Tenant[T]) Put(tenant, key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[tenant] == nil {
		c.entries[tenant] = make(map[string]entry[T])
	}
	c.entries[tenant][key] = entry[T]{value: value, expires: time.Now().Add(c.ttl)}
}

// Drop removes one entry, or the whole tenant when key is empty.
func (c *Tenant[T]) Drop(tenant, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key == "" {
		delete(c.entries, tenant)
		return
	}
	delete(c.entries[tenant], key)
}
