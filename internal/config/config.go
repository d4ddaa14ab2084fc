// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package config

import (
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file, and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values for every setting
//  2. Config File: optional YAML file (config.yaml) for persistent settings
//  3. Environment Variables: override any setting
//
// Configuration Categories:
//
//  1. Infrastructure:
//     - Database: DuckDB configuration (path, memory, threads)
//     - Server: HTTP server configuration (port, host, timeout, environment)
//     - NATS: event ingest with Watermill/NATS JetStream (optional)
//
//  2. Request Handling:
//     - API: CORS and HTTP ceiling settings
//     - RateLimit: per-group fixed-window budgets
//     - Cache: response and model cache sizing
//
//  3. Ingest:
//     - Ingest: batch limits, dedup window, admission throttle
//
//  4. Observability:
//     - Logging: log level and output format
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	API       APIConfig       `koanf:"api"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Cache     CacheConfig     `koanf:"cache"`
	NATS      NATSConfig      `koanf:"nats"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int           `koanf:"port"`
	Host           string        `koanf:"host"`
	Timeout        time.Duration `koanf:"timeout"`
	Environment    string        `koanf:"environment"`     // "development", "staging", "production"
	DebugEndpoints bool          `koanf:"debug_endpoints"` // Expose /internal/* diagnostics
}

// IsProduction reports whether the server runs in production mode.
// Production mode refuses to trust X-Forwarded-For for client identity.
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = use runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// APIConfig holds HTTP surface settings shared by all endpoints.
type APIConfig struct {
	CORSOrigins []string `koanf:"cors_origins"`

	// Ceiling is the raw per-IP request cap enforced before any
	// endpoint-group budget. Protects against floods that would
	// otherwise churn limiter state.
	CeilingRequests int           `koanf:"ceiling_requests"`
	CeilingWindow   time.Duration `koanf:"ceiling_window"`
	CeilingDisabled bool          `koanf:"ceiling_disabled"`

	SlowRequestThreshold time.Duration `koanf:"slow_request_threshold"`
}

// RateLimitConfig holds per-group fixed-window budgets.
type RateLimitConfig struct {
	Window       time.Duration `koanf:"window"`
	StatsLimit   int           `koanf:"stats_limit"`
	PredictLimit int           `koanf:"predict_limit"`
	IngestLimit  int           `koanf:"ingest_limit"`
	DefaultLimit int           `koanf:"default_limit"`
	Disabled     bool          `koanf:"disabled"`
}

// CacheConfig holds response and model cache sizing.
type CacheConfig struct {
	ResponseTTL        time.Duration `koanf:"response_ttl"`
	ResponseMaxEntries int           `koanf:"response_max_entries"`
	ModelTTL           time.Duration `koanf:"model_ttl"`
	ModelMaxEntries    int           `koanf:"model_max_entries"`
	JanitorInterval    time.Duration `koanf:"janitor_interval"`
}

// NATSConfig holds event transport settings for the ingest path.
type NATSConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	EmbeddedServer   bool          `koanf:"embedded_server"`
	StoreDir         string        `koanf:"store_dir"`
	MaxMemory        int64         `koanf:"max_memory"`
	MaxStore         int64         `koanf:"max_store"`
	StreamRetention  time.Duration `koanf:"stream_retention"`
	BatchSize        int           `koanf:"batch_size"`
	FlushInterval    time.Duration `koanf:"flush_interval"`
	SubscribersCount int           `koanf:"subscribers_count"`
	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
}

// IngestConfig holds validation and admission settings for report intake.
type IngestConfig struct {
	MaxBatchRecords int `koanf:"max_batch_records"`

	// Admission throttle for the POST endpoint, enforced before
	// validation so floods cannot burn CPU on bad payloads.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`

	// Duplicate suppression window keyed by report ID.
	DedupTTL      time.Duration `koanf:"dedup_ttl"`
	DedupCapacity int           `koanf:"dedup_capacity"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
