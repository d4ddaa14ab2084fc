// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

/*
Package services provides suture.Service wrappers for Curbwatch components.

Each wrapper adapts a component's native lifecycle to suture's blocking
Serve(ctx) contract:

  - HTTPService: http.Server's ListenAndServe/Shutdown pair
  - IngestService: the NATS component group's Start/Shutdown pair
  - JanitorService: a ticker loop sweeping expired cache entries and
    stale limiter buckets, and refreshing the uptime gauge

Wrappers depend on small local interfaces rather than the concrete
component packages, so they can be tested with in-memory fakes and never
participate in import cycles.
*/
package services
