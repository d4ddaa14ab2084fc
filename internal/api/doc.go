// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

// Package api exposes the HTTP surface: six analytics query endpoints,
// the violation ingest endpoint, health, metrics, and debug routes.
//
// Every query endpoint goes through the same pipeline:
//
//	rate limiter -> filter parsing -> window resolution -> response
//	cache -> singleflight -> model cache -> circuit breaker -> compute
//
// Responses share one envelope: {status, data, metadata, error?}. The
// metadata block carries the resolved time window, the cache
// disposition for the response (and for prediction endpoints, the
// model artifact), and the compute duration. Identical filters against
// identical data always produce identical window metadata, so cached
// and freshly computed responses are indistinguishable apart from
// query_time_ms and the cache flags.
//
// Only successful outcomes enter the response cache. Parameter errors
// map to 400 INVALID_PARAMETER, exhausted budgets to 429 with a
// Retry-After header, and compute or store failures to 502
// COMPUTE_FAILURE.
package api
