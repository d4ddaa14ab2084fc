// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Database query performance (DuckDB)
// - API endpoint latency and throughput
// - Response and model cache efficiency
// - Rate limiter decisions
// - Compute pipeline performance and circuit breaker state
// - Violation ingest (NATS/Watermill)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets, // 0.005s, 0.01s, 0.025s, 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2.5s, 5s, 10s
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}, // Optimized for API latency
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"}, // "response", "model"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions (TTL expiry or LRU pressure)",
		},
		[]string{"cache"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache"},
	)

	// Rate Limiter Metrics
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Total number of rate limiter decisions",
		},
		[]string{"group", "outcome"}, // outcome: "allowed", "blocked"
	)

	// Compute Pipeline Metrics
	ComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compute_duration_seconds",
			Help:    "Duration of analytics compute operations in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"endpoint"},
	)

	ComputeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compute_errors_total",
			Help: "Total number of failed analytics compute operations",
		},
		[]string{"endpoint"},
	)

	RequestsCoalesced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_coalesced_total",
			Help: "Total number of requests coalesced into an in-flight identical compute",
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Violation Ingest Metrics (NATS/Watermill)
	IngestEventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_events_published_total",
			Help: "Total number of violation events published to NATS",
		},
	)

	IngestEventsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_events_consumed_total",
			Help: "Total number of violation events consumed from NATS",
		},
	)

	IngestEventsAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_events_appended_total",
			Help: "Total number of violation events appended to the violations table",
		},
	)

	IngestEventsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_events_deduplicated_total",
			Help: "Total number of violation events skipped as duplicates",
		},
	)

	IngestEventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_rejected_total",
			Help: "Total number of violation events rejected before append",
		},
		[]string{"reason"}, // "validation", "parse", "throttled"
	)

	IngestBatchFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_flush_duration_seconds",
			Help:    "Duration of violation batch flush operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_size",
			Help:    "Number of violation events in each batch flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCacheHit records a cache hit for the named cache
func RecordCacheHit(cache string) {
	CacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss for the named cache
func RecordCacheMiss(cache string) {
	CacheMisses.WithLabelValues(cache).Inc()
}

// RecordCacheEviction records an eviction for the named cache
func RecordCacheEviction(cache string) {
	CacheEvictions.WithLabelValues(cache).Inc()
}

// SetCacheEntries updates the entry count gauge for the named cache
func SetCacheEntries(cache string, count int) {
	CacheEntries.WithLabelValues(cache).Set(float64(count))
}

// RecordRateLimitDecision records an allow or block decision for a group
func RecordRateLimitDecision(group string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "blocked"
	}
	RateLimitDecisions.WithLabelValues(group, outcome).Inc()
}

// RecordCompute records a compute operation and its outcome
func RecordCompute(endpoint string, duration time.Duration, err error) {
	ComputeDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if err != nil {
		ComputeErrors.WithLabelValues(endpoint).Inc()
	}
}

// RecordCoalescedRequest records a request served by an in-flight compute
func RecordCoalescedRequest(endpoint string) {
	RequestsCoalesced.WithLabelValues(endpoint).Inc()
}

// SetCircuitBreakerState updates the state gauge for a breaker
func SetCircuitBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordCircuitBreakerTransition records a breaker state transition
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordIngestPublish records a violation event published to NATS
func RecordIngestPublish() {
	IngestEventsPublished.Inc()
}

// RecordIngestConsume records a violation event consumed from NATS
func RecordIngestConsume() {
	IngestEventsConsumed.Inc()
}

// RecordIngestAppended records violation events appended to storage
func RecordIngestAppended(count int) {
	IngestEventsAppended.Add(float64(count))
}

// RecordIngestDeduplicated records a duplicate violation event skipped
func RecordIngestDeduplicated() {
	IngestEventsDeduplicated.Inc()
}

// RecordIngestRejected records a violation event rejected before append
func RecordIngestRejected(reason string) {
	IngestEventsRejected.WithLabelValues(reason).Inc()
}

// RecordIngestBatchFlush records a batch flush operation
func RecordIngestBatchFlush(duration time.Duration, batchSize int) {
	IngestBatchFlushDuration.Observe(duration.Seconds())
	IngestBatchSize.Observe(float64(batchSize))
}

// SetAppInfo records application version information
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

// UpdateUptime updates the uptime gauge from the given start time
func UpdateUptime(start time.Time) {
	AppUptime.Set(time.Since(start).Seconds())
}
