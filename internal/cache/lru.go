// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package cache

import (
	"strings"
	"sync"
	"time"
)

// entry is a node in the LRU doubly-linked list.
type entry[V any] struct {
	key       string
	value     V
	createdAt time.Time
	ttl       time.Duration // per-entry override; 0 means the cache default
	prev      *entry[V]
	next      *entry[V]
}

// LRU is a thread-safe cache with least-recently-used eviction and
// TTL expiry. The TTL given at construction applies to every entry
// unless SetWithTTL overrides it; a TTL of zero or less disables
// expiry.
//
// An entry is expired strictly after its TTL has elapsed: an entry
// written at T with TTL D is still valid at exactly T+D and expires
// at any later instant. Expired entries are removed lazily on Get
// and eagerly on Set and CleanupExpired.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry[V]

	// Sentinel nodes avoid nil checks during list manipulation
	head *entry[V]
	tail *entry[V]

	hits      int64
	misses    int64
	evictions int64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Keys      int   `json:"keys"`
}

// NewLRU creates an LRU cache holding at most capacity entries, each
// valid for ttl after being written. Capacity must be positive; values
// below 1 are clamped to a small default. ttl <= 0 means entries never
// expire and are only removed by capacity pressure or invalidation.
func NewLRU[V any](capacity int, ttl time.Duration) *LRU[V] {
	if capacity <= 0 {
		capacity = 128
	}

	c := &LRU[V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry[V], capacity),
		head:     &entry[V]{},
		tail:     &entry[V]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Get retrieves a value and marks it most recently used.
// Returns the zero value and false on a miss or an expired entry;
// an expired entry is removed and counted as both an eviction and
// a miss.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V

	e, exists := c.items[key]
	if !exists {
		c.misses++
		return zero, false
	}

	if c.expired(e, time.Now()) {
		c.removeEntry(e)
		c.evictions++
		c.misses++
		return zero, false
	}

	c.moveToFront(e)
	c.hits++
	return e.value, true
}

// Contains reports whether a live entry exists for key without
// updating recency or hit/miss counters.
func (c *LRU[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.items[key]
	return exists && !c.expired(e, time.Now())
}

// Set stores a value under the cache's default TTL, resetting its TTL
// clock. Before inserting a new key it drops any expired entries, then
// evicts from the least recently used end until the new entry fits.
// Both removals count as evictions.
func (c *LRU[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores a value that expires after its own ttl instead of
// the cache default. A ttl of zero or less falls back to the default.
func (c *LRU[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl < 0 {
		ttl = 0
	}

	now := time.Now()
	c.removeExpired(now, key)

	if e, exists := c.items[key]; exists {
		e.value = value
		e.createdAt = now
		e.ttl = ttl
		c.moveToFront(e)
		return
	}

	for len(c.items) >= c.capacity {
		c.evictOldest()
	}

	e := &entry[V]{
		key:       key,
		value:     value,
		createdAt: now,
		ttl:       ttl,
	}
	c.items[key] = e
	c.addToFront(e)
}

// Remove deletes a key. Returns true if the key was present.
// The removal is not counted as an eviction.
func (c *LRU[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.items[key]
	if !exists {
		return false
	}
	c.removeEntry(e)
	return true
}

// InvalidatePrefix removes every entry whose key starts with prefix
// and returns the number removed. Invalidations are deliberate drops,
// not capacity or TTL pressure, so they are not counted as evictions.
func (c *LRU[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeEntry(e)
			removed++
		}
	}
	return removed
}

// CleanupExpired removes all expired entries and returns the number
// removed. Removals are counted as evictions.
func (c *LRU[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	// Walk from the LRU end; expired entries cluster there but a
	// recently touched stale entry can sit anywhere, so scan fully.
	for e := c.tail.prev; e != c.head; {
		prev := e.prev
		if c.expired(e, now) {
			c.removeEntry(e)
			c.evictions++
			removed++
		}
		e = prev
	}
	return removed
}

// Purge removes all entries and does not touch the counters.
func (c *LRU[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*entry[V], c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// Len returns the number of entries currently stored, including any
// that have expired but not yet been removed.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the hit, miss, and eviction counters
// along with the current key count.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Keys:      len(c.items),
	}
}

// Internal methods (must be called with lock held)

// expired reports whether e's TTL has strictly elapsed at now. An
// entry-level TTL takes precedence over the cache default.
func (c *LRU[V]) expired(e *entry[V], now time.Time) bool {
	ttl := c.ttl
	if e.ttl > 0 {
		ttl = e.ttl
	}
	if ttl <= 0 {
		return false
	}
	return now.Sub(e.createdAt) > ttl
}

// removeExpired drops all expired entries except exclude, which is
// about to be overwritten by the caller.
func (c *LRU[V]) removeExpired(now time.Time, exclude string) {
	for e := c.tail.prev; e != c.head; {
		prev := e.prev
		if e.key != exclude && c.expired(e, now) {
			c.removeEntry(e)
			c.evictions++
		}
		e = prev
	}
}

// evictOldest removes the entry at the LRU end of the list.
func (c *LRU[V]) evictOldest() {
	e := c.tail.prev
	if e == c.head {
		return
	}
	c.removeEntry(e)
	c.evictions++
}

// removeEntry unlinks e from the list and deletes it from the map.
func (c *LRU[V]) removeEntry(e *entry[V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
	delete(c.items, e.key)
}

// addToFront inserts e as the most recently used entry.
func (c *LRU[V]) addToFront(e *entry[V]) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

// moveToFront relinks an existing entry as most recently used.
func (c *LRU[V]) moveToFront(e *entry[V]) {
	if c.head.next == e {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	c.addToFront(e)
}
