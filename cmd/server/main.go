// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

// Package main is the entry point for the Curbwatch server.
//
// Curbwatch ingests geotagged curb violation reports and serves
// aggregate analytics over them: totals, time series, trend and anomaly
// detection, short-horizon forecasts, spatial hotspot grids, and
// per-hour risk predictions.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered settings from defaults, YAML, and env (Koanf v2)
//  2. Database: DuckDB storage for violation events and analytics queries
//  3. Caches: response and model caches with TTL and LRU eviction
//  4. Rate limiter: per-client, per-endpoint-group fixed windows
//  5. Ingest (optional): embedded NATS JetStream with a batching consumer
//  6. HTTP API: chi router with the analytics and ingest endpoints
//  7. Supervisor tree: suture-managed lifecycle for all of the above
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (SERVER_PORT, DATABASE_PATH, NATS_ENABLED, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Ingest Modes
//
// With NATS_ENABLED=true (default) violation batches are published to an
// embedded JetStream stream and appended to DuckDB by a batching
// consumer, decoupling write bursts from storage latency. With
// NATS_ENABLED=false batches are appended directly in the request path.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM:
//   - Stops accepting new connections and drains in-flight requests
//   - Stops the ingest consumer after flushing pending batches
//   - Checkpoints and closes the DuckDB database
//
// # Example Usage
//
// Development, direct append mode, debug endpoints on:
//
//	export NATS_ENABLED=false
//	export SERVER_DEBUG_ENDPOINTS=true
//	export LOGGING_FORMAT=console
//	./curbwatch
//
// Production with streamed ingest:
//
//	export SERVER_ENVIRONMENT=production
//	export DATABASE_PATH=/data/curbwatch.duckdb
//	export NATS_STORE_DIR=/data/nats/jetstream
//	export API_CORS_ORIGINS=https://dashboard.example.com
//	./curbwatch
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/curbwatch/curbwatch/internal/api"
	"github.com/curbwatch/curbwatch/internal/cache"
	"github.com/curbwatch/curbwatch/internal/config"
	"github.com/curbwatch/curbwatch/internal/database"
	"github.com/curbwatch/curbwatch/internal/ingest"
	"github.com/curbwatch/curbwatch/internal/logging"
	"github.com/curbwatch/curbwatch/internal/metrics"
	"github.com/curbwatch/curbwatch/internal/middleware"
	"github.com/curbwatch/curbwatch/internal/ratelimit"
	"github.com/curbwatch/curbwatch/internal/supervisor"
	"github.com/curbwatch/curbwatch/internal/supervisor/services"
)

func main() {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		// Config is not available yet, so this uses the default logger.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", api.Version).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Curbwatch")

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("debug_endpoints", cfg.Server.DebugEndpoints).
		Msg("Configuration loaded")

	metrics.SetAppInfo(api.Version)

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	responseCache := cache.NewResponseCache(cfg.Cache.ResponseMaxEntries, cfg.Cache.ResponseTTL)
	modelCache := cache.NewModelCache(cfg.Cache.ModelMaxEntries, cfg.Cache.ModelTTL)

	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Window: cfg.RateLimit.Window,
		Limits: map[string]int{
			ratelimit.GroupStats:   cfg.RateLimit.StatsLimit,
			ratelimit.GroupPredict: cfg.RateLimit.PredictLimit,
			ratelimit.GroupIngest:  cfg.RateLimit.IngestLimit,
		},
		DefaultLimit: cfg.RateLimit.DefaultLimit,
		Disabled:     cfg.RateLimit.Disabled,
	})
	if cfg.RateLimit.Disabled {
		logging.Warn().Msg("Rate limiting is DISABLED (RATE_LIMIT_DISABLED=true)")
	}

	// Ingest transport. Init returns nil components when NATS is off,
	// which switches the POST handler to direct appends.
	components, err := ingest.Init(cfg, db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize ingest components")
	}

	pipeline := api.NewPipeline(api.PipelineConfig{
		Store:          db,
		ResponseCache:  responseCache,
		ModelCache:     modelCache,
		Limiter:        limiter,
		ResponseTTL:    cfg.Cache.ResponseTTL,
		ModelTTL:       cfg.Cache.ModelTTL,
		TrustForwarded: !cfg.Server.IsProduction(),
	})

	handlers := api.NewHandlers(api.HandlersConfig{
		Pipeline:            pipeline,
		IngestComponents:    components,
		Inserter:            db,
		Pinger:              db,
		IngestRatePerSecond: cfg.Ingest.RatePerSecond,
		IngestBurst:         cfg.Ingest.Burst,
		MaxBatchRecords:     cfg.Ingest.MaxBatchRecords,
	})

	mwConfig := api.DefaultMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.API.CORSOrigins
	mwConfig.CeilingRequests = cfg.API.CeilingRequests
	mwConfig.CeilingWindow = cfg.API.CeilingWindow
	mwConfig.CeilingDisabled = cfg.API.CeilingDisabled

	router := api.NewRouter(api.RouterConfig{
		Handlers:       handlers,
		Middleware:     api.NewMiddleware(mwConfig),
		PerfMonitor:    middleware.NewPerformanceMonitor(1000, cfg.API.SlowRequestThreshold),
		DebugEndpoints: cfg.Server.DebugEndpoints,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Supervision events flow through the slog adapter into zerolog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddMaintenanceService(services.NewJanitorService(services.JanitorConfig{
		Interval:  cfg.Cache.JanitorInterval,
		Targets:   []services.SweepTarget{responseCache, modelCache, limiter},
		StartTime: startTime,
	}))

	if components != nil {
		tree.AddIngestService(services.NewIngestService(components, 10*time.Second))
		logging.Info().Msg("Ingest components added to supervisor tree")
	}

	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the error channel until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	// Fold the write-ahead log into the database file so the next start
	// does not replay it.
	checkpointCtx, checkpointCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer checkpointCancel()
	if err := db.Checkpoint(checkpointCtx); err != nil {
		logging.Warn().Err(err).Msg("Final checkpoint failed")
	}

	logging.Info().Msg("Application stopped gracefully")
}
