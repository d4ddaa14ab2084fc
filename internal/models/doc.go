// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

/*
Package models defines data structures for the Curbwatch application.

This package contains the data models shared across packages: the violation
event schema, API request/response structures, and the response metadata
contract. It serves as the single source of truth for wire-visible shapes.

Key Components:

  - Violation: Core database model for the append-only violations table
  - ViolationReport: Inbound ingest payload (HTTP and NATS)
  - APIResponse: Standardized API response wrapper
  - Metadata / TimeWindowMeta / CacheMeta: The observability contract every
    analytics response carries
  - CachedResponse: Unit stored in the response cache

Model Categories:

1. Database Models:
  - Violation: One geocoded violation event; rows are never updated

2. API Request/Response Models:
  - APIResponse: Standard response wrapper
  - APIError: Error details with machine-readable codes
  - RateLimitError: 429 payload with retry_after_seconds

3. Metadata Models:
  - Metadata: Timestamp, query time, window resolution, cache disposition
  - TimeWindowMeta: How the effective window was resolved (anchored vs
    absolute), always in UTC
  - CacheMeta: Hit flag, truncated key hash, TTL

Usage Example:

	resp := models.APIResponse{
	    Status: "success",
	    Data:   statsResult,
	    Metadata: models.Metadata{
	        Timestamp:  time.Now().UTC(),
	        TimeWindow: &windowMeta,
	    },
	}

All timestamps in this package are UTC. JSON field names are snake_case and
stable: clients key on them.
*/
package models
