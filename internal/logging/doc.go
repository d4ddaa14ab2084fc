// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

// Package logging provides centralized zerolog-based structured logging for
// Curbwatch.
//
// This package implements a unified logging layer using zerolog, providing
// zero-allocation structured JSON logging for production and human-readable
// console output for development. All components log through the
// package-level helpers so output format and level are controlled in one
// place.
//
// # Quick Start
//
//	import "github.com/curbwatch/curbwatch/internal/logging"
//
//	// Initialize at application startup
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	// Log messages with structured fields
//	logging.Info().Str("component", "api").Msg("server starting")
//	logging.Error().Err(err).Int("code", 502).Msg("compute failed")
//
// # Log Levels
//
// Supported log levels (from most to least verbose):
//
//	trace  - Very detailed diagnostic information
//	debug  - Detailed diagnostic information
//	info   - General operational information (default)
//	warn   - Warning conditions that should be addressed
//	error  - Error conditions requiring attention
//	fatal  - Fatal errors that terminate the program
//
// # Structured Logging
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")  // Correct
//	logging.Info().Str("key", "value")                 // WRONG - log not emitted
//
// Create component-specific loggers with default fields:
//
//	apiLogger := logging.With().Str("component", "api").Logger()
//	apiLogger.Info().Msg("router mounted")
//
// # Context-Aware Logging
//
// Request IDs assigned by the HTTP middleware and correlation IDs assigned
// by the ingest publisher travel through context:
//
//	logger := logging.RequestLogger(ctx)
//	logger.Info().Msg("processing request")
//
// The ingest pipeline uses EventLogger, which picks up both IDs from
// context automatically.
//
// # slog Adapter
//
// NewSlogLogger returns an slog.Logger backed by the global zerolog logger,
// for libraries that require slog (the Suture supervision tree uses this).
//
// # Output Formats
//
// JSON Format (Production):
//
//	{"level":"info","time":"2026-01-03T10:30:00Z","message":"server starting","port":8080}
//
// Console Format (Development):
//
//	10:30:00 INF server starting port=8080
//
// # Thread Safety
//
// All exported functions are safe for concurrent use. The global logger is
// protected by sync.RWMutex for configuration changes.
//
// # Testing
//
// Create test loggers that capture output:
//
//	var buf bytes.Buffer
//	logger := logging.NewTestLogger(&buf)
//	logger.Info().Msg("test message")
//	output := buf.String()
package logging
