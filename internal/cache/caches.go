// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package cache

import (
	"sync"
	"time"

	"github.com/curbwatch/curbwatch/internal/metrics"
	"github.com/curbwatch/curbwatch/internal/models"
)

// Cache name labels used for Prometheus metrics.
const (
	ResponseCacheName = "response"
	ModelCacheName    = "model"
)

// Default sizing for the two service caches. Overridable via config.
const (
	DefaultResponseTTL      = 60 * time.Second
	DefaultResponseCapacity = 512
	DefaultModelTTL         = 15 * time.Minute
	DefaultModelCapacity    = 128
)

// Metered wraps an LRU and reports hits, misses, evictions, and entry
// counts to Prometheus under a per-cache name label.
type Metered[V any] struct {
	name string
	lru  *LRU[V]

	mu            sync.Mutex
	lastEvictions int64
}

// NewMetered creates a named, metrics-reporting cache.
func NewMetered[V any](name string, capacity int, ttl time.Duration) *Metered[V] {
	return &Metered[V]{
		name: name,
		lru:  NewLRU[V](capacity, ttl),
	}
}

// NewResponseCache creates the cache for rendered endpoint payloads.
// Entries are keyed by the full response key, so any change to the
// filter scope, resolved window, or endpoint parameters misses.
func NewResponseCache(capacity int, ttl time.Duration) *Metered[models.CachedResponse] {
	if capacity <= 0 {
		capacity = DefaultResponseCapacity
	}
	if ttl <= 0 {
		ttl = DefaultResponseTTL
	}
	return NewMetered[models.CachedResponse](ResponseCacheName, capacity, ttl)
}

// NewModelCache creates the cache for fitted model artifacts such as
// forecast parameters and risk rate tables. Artifact types vary per
// endpoint, so values are stored untyped and asserted at the use site.
func NewModelCache(capacity int, ttl time.Duration) *Metered[interface{}] {
	if capacity <= 0 {
		capacity = DefaultModelCapacity
	}
	if ttl <= 0 {
		ttl = DefaultModelTTL
	}
	return NewMetered[interface{}](ModelCacheName, capacity, ttl)
}

// Name returns the metrics label for this cache.
func (c *Metered[V]) Name() string {
	return c.name
}

// Get retrieves a value and records the hit or miss.
func (c *Metered[V]) Get(key string) (V, bool) {
	value, found := c.lru.Get(key)
	if found {
		metrics.RecordCacheHit(c.name)
	} else {
		metrics.RecordCacheMiss(c.name)
	}
	return value, found
}

// Set stores a value under the cache's default TTL.
func (c *Metered[V]) Set(key string, value V) {
	c.lru.Set(key, value)
}

// SetWithTTL stores a value with a per-entry TTL.
func (c *Metered[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.lru.SetWithTTL(key, value, ttl)
}

// Remove deletes a key. Returns true if the key was present.
func (c *Metered[V]) Remove(key string) bool {
	return c.lru.Remove(key)
}

// InvalidatePrefix removes every entry whose key starts with prefix
// and returns the number removed.
func (c *Metered[V]) InvalidatePrefix(prefix string) int {
	return c.lru.InvalidatePrefix(prefix)
}

// CleanupExpired removes expired entries, publishes updated metrics,
// and returns the number removed.
func (c *Metered[V]) CleanupExpired() int {
	removed := c.lru.CleanupExpired()
	c.SyncMetrics()
	return removed
}

// Purge removes all entries.
func (c *Metered[V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of entries currently stored.
func (c *Metered[V]) Len() int {
	return c.lru.Len()
}

// Stats returns a snapshot of the underlying cache counters.
func (c *Metered[V]) Stats() Stats {
	return c.lru.Stats()
}

// SyncMetrics publishes the current entry count and any eviction
// growth since the previous sync. Called periodically by the janitor
// so evictions that happen inside Get and Set still reach Prometheus.
func (c *Metered[V]) SyncMetrics() {
	st := c.lru.Stats()
	metrics.SetCacheEntries(c.name, st.Keys)

	c.mu.Lock()
	delta := st.Evictions - c.lastEvictions
	c.lastEvictions = st.Evictions
	c.mu.Unlock()

	if delta > 0 {
		metrics.CacheEvictions.WithLabelValues(c.name).Add(float64(delta))
	}
}
