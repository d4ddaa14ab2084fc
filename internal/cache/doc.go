// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

/*
Package cache provides thread-safe in-memory caching with TTL expiry
and least-recently-used eviction.

The analytics endpoints are read-heavy and their inputs canonicalize
well, so short-lived caching absorbs most repeat traffic without ever
serving stale windows: every cache key already encodes the filter
scope and the resolved time window, which means new data shifting the
window anchor changes the key instead of poisoning an old entry.

# Overview

The package has two layers:

  - LRU[V]: the generic core. Doubly-linked recency list plus map
    lookup, strict TTL expiry, and hit/miss/eviction counters.
  - Metered[V]: a named wrapper that reports the core's counters to
    Prometheus under a per-cache label.

Two caches are wired into the service:

  - Response cache ("response"): rendered endpoint payloads together
    with the time-window metadata they were computed under. Short TTL
    (60s default), since entries are cheap to recompute and the key
    space churns with the data.
  - Model cache ("model"): fitted model artifacts such as forecast
    parameters and per-slot risk rates. Longer TTL (15m default),
    since fitting dominates those endpoints' latency.

# Expiry Semantics

An entry written at T with TTL D is valid through exactly T+D and
expired at any later instant. Expired entries are dropped lazily when
Get touches them and eagerly on Set and CleanupExpired. A TTL of zero
or less disables expiry entirely; such entries leave only under
capacity pressure or explicit invalidation.

Evictions are counted for TTL expiry and capacity pressure. Remove,
InvalidatePrefix, and Purge are deliberate drops and do not count.

# Usage Example

	import "github.com/curbwatch/curbwatch/internal/cache"

	responses := cache.NewResponseCache(512, time.Minute)

	if cached, ok := responses.Get(key); ok {
		// Replay cached.Data with cached.TimeWindow.
	}

	responses.Set(key, models.CachedResponse{
		Data:       payload,
		TimeWindow: window,
	})

	// Drop every cached entry for one endpoint.
	responses.InvalidatePrefix("resp:stats:")

# Thread Safety

All operations on LRU and Metered are safe for concurrent use. The
core serializes on a single mutex; operations are O(1) except prefix
invalidation and expiry sweeps, which scan.
*/
package cache
