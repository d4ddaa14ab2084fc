// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package models

import (
	"time"
)

// APIResponse represents a standardized API response wrapper used by all HTTP endpoints.
// It provides consistent structure for both successful and error responses, with metadata
// for observability and caching information.
//
// Status field values:
//   - "success": Request completed successfully, see Data field
//   - "error": Request failed, see Error field for details
//
// Fields:
//   - Status: Response status ("success" or "error")
//   - Data: Response payload (any JSON-serializable type)
//   - Metadata: Query execution metadata (timing, time window, cache state)
//   - Error: Error details (populated only when Status is "error")
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"total": 100, "top_types": [...]},
//	  "metadata": {
//	    "timestamp": "2026-08-20T12:00:00Z",
//	    "query_time_ms": 45,
//	    "time_window": {...},
//	    "response_cache": {"hit": false, "key_hash": "a1b2c3d4e5f6", "ttl_seconds": 60}
//	  }
//	}
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "INVALID_PARAMETER",
//	    "message": "bbox must contain exactly 4 coordinates",
//	    "details": {"parameter": "bbox"}
//	  },
//	  "metadata": {"timestamp": "2026-08-20T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability and performance tracking.
//
// Fields:
//   - Timestamp: Server time when response was generated (RFC3339 format)
//   - QueryTimeMS: Total compute time in milliseconds (0 if served from cache)
//   - TimeWindow: Resolved time window the response was computed against
//   - ResponseCache: Response cache disposition for this request
//   - ModelCache: Model artifact cache disposition (prediction endpoints only)
//
// The time window block is the contract that makes anchored responses
// explainable: identical data and identical filters always produce identical
// window fields, regardless of when the request arrives.
type Metadata struct {
	Timestamp     time.Time       `json:"timestamp"`
	QueryTimeMS   int64           `json:"query_time_ms,omitempty"`
	TimeWindow    *TimeWindowMeta `json:"time_window,omitempty"`
	ResponseCache *CacheMeta      `json:"response_cache,omitempty"`
	ModelCache    *CacheMeta      `json:"model_cache,omitempty"`
}

// TimeWindowMeta describes how the effective query window was resolved.
//
// Fields:
//   - DataMinTS/DataMaxTS: Observed data extent under the non-time filters
//     (null when the filtered scope holds no rows)
//   - AnchorTS: The timestamp window resolution anchored to, always the
//     observed data maximum (null when the scope is empty)
//   - EffectiveWindow: The window actually applied to the query
//   - WindowSource: "anchored" when derived from the data extent,
//     "absolute" when taken verbatim from request parameters
//   - Timezone: Always "UTC"
//   - Message: Present only when the filtered scope holds no data
type TimeWindowMeta struct {
	DataMinTS       *time.Time      `json:"data_min_ts"`
	DataMaxTS       *time.Time      `json:"data_max_ts"`
	AnchorTS        *time.Time      `json:"anchor_ts"`
	EffectiveWindow EffectiveWindow `json:"effective_window"`
	WindowSource    string          `json:"window_source"`
	Timezone        string          `json:"timezone"`
	Message         string          `json:"message,omitempty"`
}

// EffectiveWindow is the resolved [start, end] range applied to a query.
// Hotspot responses carry two sub-ranges instead of a single span: the
// recent window and the baseline window it is compared against.
type EffectiveWindow struct {
	StartTS  *time.Time   `json:"start_ts,omitempty"`
	EndTS    *time.Time   `json:"end_ts,omitempty"`
	Recent   *WindowRange `json:"recent,omitempty"`
	Baseline *WindowRange `json:"baseline,omitempty"`
}

// WindowRange is a closed timestamp range.
type WindowRange struct {
	StartTS *time.Time `json:"start_ts"`
	EndTS   *time.Time `json:"end_ts"`
}

// CacheMeta reports the cache disposition for a single request.
//
// Fields:
//   - Hit: Whether the entry was served from cache
//   - KeyHash: Truncated SHA-256 of the cache key (12 hex chars), safe to log
//   - TTLSeconds: Configured TTL of the cache the entry lives in
type CacheMeta struct {
	Hit        bool   `json:"hit"`
	KeyHash    string `json:"key_hash"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// APIError represents an error response with structured error details.
//
// Common error codes:
//   - INVALID_PARAMETER: Input parameter failed validation
//   - TOO_MANY_REQUESTS: Rate limit exceeded for the client and endpoint group
//   - COMPUTE_FAILURE: Downstream compute or query execution failed
//   - NOT_FOUND: Resource doesn't exist
//   - INTERNAL_ERROR: Unexpected server failure
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RateLimitError is the data payload returned with HTTP 429 responses.
// The Retry-After header carries the same value as RetryAfterSeconds.
type RateLimitError struct {
	Detail            string `json:"detail"`
	Group             string `json:"group"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// CachedResponse is the unit stored in the response cache: the computed
// data payload together with the window metadata it was computed under.
// On a cache hit the stored window metadata is replayed verbatim; only the
// envelope timestamp and cache disposition are regenerated.
type CachedResponse struct {
	Data       interface{}    `json:"data"`
	TimeWindow TimeWindowMeta `json:"time_window"`
}
