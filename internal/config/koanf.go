// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/curbwatch/config.yaml",
	"/etc/curbwatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every field populated. These
// defaults are applied first, then overridden by file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8321,
			Host:           "0.0.0.0",
			Timeout:        30 * time.Second,
			Environment:    "development",
			DebugEndpoints: false,
		},
		Database: DatabaseConfig{
			Path:                   "/data/curbwatch.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		API: APIConfig{
			CORSOrigins:          []string{},
			CeilingRequests:      300,
			CeilingWindow:        time.Minute,
			CeilingDisabled:      false,
			SlowRequestThreshold: 300 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Window:       time.Minute,
			StatsLimit:   60,
			PredictLimit: 30,
			IngestLimit:  120,
			DefaultLimit: 60,
			Disabled:     false,
		},
		Cache: CacheConfig{
			ResponseTTL:        60 * time.Second,
			ResponseMaxEntries: 512,
			ModelTTL:           15 * time.Minute,
			ModelMaxEntries:    128,
			JanitorInterval:    time.Minute,
		},
		NATS: NATSConfig{
			Enabled:          true,
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   true,
			StoreDir:         "/data/nats/jetstream",
			MaxMemory:        1 << 30,  // 1GB
			MaxStore:         10 << 30, // 10GB
			StreamRetention:  7 * 24 * time.Hour,
			BatchSize:        500,
			FlushInterval:    2 * time.Second,
			SubscribersCount: 2,
			DurableName:      "violation-appender",
			QueueGroup:       "appenders",
		},
		Ingest: IngestConfig{
			MaxBatchRecords: 500,
			RatePerSecond:   200,
			Burst:           400,
			DedupTTL:        10 * time.Minute,
			DedupCapacity:   50000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in values
//  2. Config File: optional YAML config file (if it exists)
//  3. Environment Variables: override any setting
//
// Precedence is ENV > File > Defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env values for slice fields
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when supplied via environment variables.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields converts comma-separated string values to slices
// for known slice fields. Env vars arrive as plain strings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML or defaults)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config
// paths. Unmapped variables return empty string and are skipped, so
// unrelated environment noise never pollutes the config.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - DUCKDB_PATH -> database.path
//   - RATE_LIMIT_PREDICT -> rate_limit.predict_limit
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_port":       "server.port",
		"http_host":       "server.host",
		"http_timeout":    "server.timeout",
		"environment":     "server.environment",
		"debug_endpoints": "server.debug_endpoints",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// API mappings
		"cors_origins":           "api.cors_origins",
		"http_ceiling_requests":  "api.ceiling_requests",
		"http_ceiling_window":    "api.ceiling_window",
		"http_ceiling_disabled":  "api.ceiling_disabled",
		"slow_request_threshold": "api.slow_request_threshold",

		// Rate limit mappings
		"rate_limit_window":  "rate_limit.window",
		"rate_limit_stats":   "rate_limit.stats_limit",
		"rate_limit_predict": "rate_limit.predict_limit",
		"rate_limit_ingest":  "rate_limit.ingest_limit",
		"rate_limit_default": "rate_limit.default_limit",
		"disable_rate_limit": "rate_limit.disabled",

		// Cache mappings
		"cache_response_ttl":     "cache.response_ttl",
		"cache_response_entries": "cache.response_max_entries",
		"cache_model_ttl":        "cache.model_ttl",
		"cache_model_entries":    "cache.model_max_entries",
		"cache_janitor_interval": "cache.janitor_interval",

		// NATS mappings
		"nats_enabled":        "nats.enabled",
		"nats_url":            "nats.url",
		"nats_embedded":       "nats.embedded_server",
		"nats_store_dir":      "nats.store_dir",
		"nats_max_memory":     "nats.max_memory",
		"nats_max_store":      "nats.max_store",
		"nats_retention":      "nats.stream_retention",
		"nats_batch_size":     "nats.batch_size",
		"nats_flush_interval": "nats.flush_interval",
		"nats_subscribers":    "nats.subscribers_count",
		"nats_durable_name":   "nats.durable_name",
		"nats_queue_group":    "nats.queue_group",

		// Ingest mappings
		"ingest_max_batch":      "ingest.max_batch_records",
		"ingest_rate":           "ingest.rate_per_second",
		"ingest_burst":          "ingest.burst",
		"ingest_dedup_ttl":      "ingest.dedup_ttl",
		"ingest_dedup_capacity": "ingest.dedup_capacity",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}

// WatchConfigFile sets up a file watcher for hot-reload capability.
// The caller is responsible for mutex protection when swapping
// configuration during reloads.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
