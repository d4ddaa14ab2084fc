// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

// Package middleware provides HTTP middleware shared by all routes:
// request ID propagation, Prometheus instrumentation, access logging
// with slow-request detection, and response compression.
//
// All middleware uses the standard func(http.Handler) http.Handler
// shape so it composes with chi's Use chain in any order. The intended
// order is request ID first (so every later log line carries it), then
// instrumentation, then logging, with compression innermost.
package middleware
