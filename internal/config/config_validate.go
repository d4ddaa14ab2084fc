// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks the configuration for invalid or inconsistent values.
// Returns the first error found.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateAPI(); err != nil {
		return err
	}

	if err := c.validateRateLimit(); err != nil {
		return err
	}

	if err := c.validateCache(); err != nil {
		return err
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	if err := c.validateIngest(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validEnvironments lists accepted values for server.environment.
var validEnvironments = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
}

// validateServer validates HTTP server settings.
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.Timeout < time.Second {
		return fmt.Errorf("HTTP_TIMEOUT must be at least 1s, got %v", c.Server.Timeout)
	}

	if !validEnvironments[c.Server.Environment] {
		return fmt.Errorf("ENVIRONMENT must be one of development, staging, production; got %q", c.Server.Environment)
	}

	return nil
}

// validateDatabase validates DuckDB settings.
func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH must not be empty")
	}

	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative, got %d", c.Database.Threads)
	}

	return nil
}

// validateAPI validates the HTTP surface settings.
func (c *Config) validateAPI() error {
	if !c.API.CeilingDisabled && c.API.CeilingRequests < 1 {
		return fmt.Errorf("HTTP_CEILING_REQUESTS must be at least 1, got %d", c.API.CeilingRequests)
	}

	if !c.API.CeilingDisabled && c.API.CeilingWindow < time.Second {
		return fmt.Errorf("HTTP_CEILING_WINDOW must be at least 1s, got %v", c.API.CeilingWindow)
	}

	for _, origin := range c.API.CORSOrigins {
		if origin == "*" {
			if c.Server.IsProduction() {
				return fmt.Errorf("CORS_ORIGINS must not contain a wildcard in production")
			}
			continue
		}
		if _, err := url.Parse(origin); err != nil {
			return fmt.Errorf("CORS_ORIGINS contains an invalid origin %q: %w", origin, err)
		}
	}

	return nil
}

// validateRateLimit validates per-group budget settings.
// A limit of zero or less is allowed and disables the group's budget.
func (c *Config) validateRateLimit() error {
	if c.RateLimit.Disabled {
		return nil
	}

	if c.RateLimit.Window < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s, got %v", c.RateLimit.Window)
	}

	return nil
}

// Cache limit constants
const (
	cacheMaxEntries = 1 << 20
	cacheMaxTTL     = 24 * time.Hour
)

// validateCache validates cache sizing settings.
func (c *Config) validateCache() error {
	if c.Cache.ResponseMaxEntries < 1 || c.Cache.ResponseMaxEntries > cacheMaxEntries {
		return fmt.Errorf("CACHE_RESPONSE_ENTRIES must be between 1 and %d", cacheMaxEntries)
	}
	if c.Cache.ModelMaxEntries < 1 || c.Cache.ModelMaxEntries > cacheMaxEntries {
		return fmt.Errorf("CACHE_MODEL_ENTRIES must be between 1 and %d", cacheMaxEntries)
	}

	if c.Cache.ResponseTTL <= 0 || c.Cache.ResponseTTL > cacheMaxTTL {
		return fmt.Errorf("CACHE_RESPONSE_TTL must be between 1s and 24h, got %v", c.Cache.ResponseTTL)
	}
	if c.Cache.ModelTTL <= 0 || c.Cache.ModelTTL > cacheMaxTTL {
		return fmt.Errorf("CACHE_MODEL_TTL must be between 1s and 24h, got %v", c.Cache.ModelTTL)
	}

	if c.Cache.JanitorInterval < time.Second {
		return fmt.Errorf("CACHE_JANITOR_INTERVAL must be at least 1s, got %v", c.Cache.JanitorInterval)
	}

	return nil
}

// NATS limit constants
const (
	natsMinMemory      = 64 * 1024 * 1024  // 64MB
	natsMinStore       = 100 * 1024 * 1024 // 100MB
	natsMinRetention   = time.Hour
	natsMaxRetention   = 365 * 24 * time.Hour
	natsMaxBatchSize   = 10000
	natsMaxSubscribers = 32
	natsMinFlush       = 100 * time.Millisecond
	natsMaxFlush       = time.Hour
)

// validateNATS validates event transport settings when enabled.
func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}

	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}

	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR must be set when the embedded server is enabled")
	}

	if c.NATS.MaxMemory < natsMinMemory {
		return fmt.Errorf("NATS_MAX_MEMORY must be at least 64MB (67108864 bytes)")
	}
	if c.NATS.MaxStore < natsMinStore {
		return fmt.Errorf("NATS_MAX_STORE must be at least 100MB (104857600 bytes)")
	}

	if c.NATS.StreamRetention < natsMinRetention || c.NATS.StreamRetention > natsMaxRetention {
		return fmt.Errorf("NATS_RETENTION must be between 1h and 8760h")
	}

	if c.NATS.BatchSize < 1 || c.NATS.BatchSize > natsMaxBatchSize {
		return fmt.Errorf("NATS_BATCH_SIZE must be between 1 and 10000")
	}

	if c.NATS.FlushInterval < natsMinFlush || c.NATS.FlushInterval > natsMaxFlush {
		return fmt.Errorf("NATS_FLUSH_INTERVAL must be between 100ms and 1h")
	}

	if c.NATS.SubscribersCount < 1 || c.NATS.SubscribersCount > natsMaxSubscribers {
		return fmt.Errorf("NATS_SUBSCRIBERS must be between 1 and 32")
	}

	return nil
}

// validateNATSURL checks the basic shape of a nats:// URL.
func validateNATSURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if parsed.Scheme != "nats" && parsed.Scheme != "tls" {
		return fmt.Errorf("scheme must be nats or tls, got %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("host must not be empty")
	}

	return nil
}

// validateIngest validates intake admission settings.
func (c *Config) validateIngest() error {
	if c.Ingest.MaxBatchRecords < 1 || c.Ingest.MaxBatchRecords > 10000 {
		return fmt.Errorf("INGEST_MAX_BATCH must be between 1 and 10000")
	}

	if c.Ingest.RatePerSecond <= 0 {
		return fmt.Errorf("INGEST_RATE must be positive, got %f", c.Ingest.RatePerSecond)
	}

	if c.Ingest.Burst < 1 {
		return fmt.Errorf("INGEST_BURST must be at least 1, got %d", c.Ingest.Burst)
	}

	if c.Ingest.DedupTTL < time.Second {
		return fmt.Errorf("INGEST_DEDUP_TTL must be at least 1s, got %v", c.Ingest.DedupTTL)
	}

	if c.Ingest.DedupCapacity < 1 {
		return fmt.Errorf("INGEST_DEDUP_CAPACITY must be at least 1, got %d", c.Ingest.DedupCapacity)
	}

	return nil
}

// validLogLevels lists accepted logging levels.
var validLogLevels = map[string]bool{
	"trace":    true,
	"debug":    true,
	"info":     true,
	"warn":     true,
	"warning":  true,
	"error":    true,
	"fatal":    true,
	"disabled": true,
}

// validateLogging validates log output settings.
func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if !validLogLevels[level] {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, disabled; got %q", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}

	return nil
}
