// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package implements application instrumentation using the Prometheus client
library, exposing metrics for monitoring performance, errors, and system health.

# Overview

The package provides metrics for:
  - HTTP request latency and throughput
  - DuckDB query performance
  - Response and model cache efficiency
  - Rate limiter decisions per endpoint group
  - Compute pipeline duration and circuit breaker state
  - Violation ingest throughput (NATS/Watermill)

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

API Metrics:
  - api_requests_total: Total API requests (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
  - api_active_requests: Active requests (gauge)

Database Metrics:
  - duckdb_query_duration_seconds: Query execution time (histogram)
    Labels: operation, table
  - duckdb_query_errors_total: Failed queries (counter)
    Labels: operation, table, error_type

Cache Metrics:
  - cache_hits_total, cache_misses_total, cache_evictions_total (counters)
    Labels: cache ("response" or "model")
  - cache_entries: Current entry count (gauge)
    Labels: cache

Rate Limiter Metrics:
  - rate_limit_decisions_total: Allow/block decisions (counter)
    Labels: group, outcome

Compute Metrics:
  - compute_duration_seconds: Analytics compute duration (histogram)
    Labels: endpoint
  - compute_errors_total: Failed computes (counter)
    Labels: endpoint
  - requests_coalesced_total: Requests folded into an identical in-flight
    compute (counter)
    Labels: endpoint
  - circuit_breaker_state: Current state, 0=closed 1=half-open 2=open (gauge)
    Labels: name
  - circuit_breaker_state_transitions_total: State changes (counter)
    Labels: name, from_state, to_state

Ingest Metrics:
  - ingest_events_published_total, ingest_events_consumed_total,
    ingest_events_appended_total, ingest_events_deduplicated_total (counters)
  - ingest_events_rejected_total: Events rejected before append (counter)
    Labels: reason
  - ingest_batch_flush_duration_seconds, ingest_batch_size (histograms)

# Usage

Metrics are package-level collectors registered via promauto. Record through
the helper functions:

	start := time.Now()
	rows, err := db.Query(ctx, query)
	metrics.RecordDBQuery("select", "violations", time.Since(start), err)

# Cardinality

Label values must stay low-cardinality. Endpoint labels use the route
pattern, never the raw URL; error types are truncated to 50 characters.
*/
package metrics
