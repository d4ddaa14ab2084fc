// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

/*
Package supervisor provides process supervision for Curbwatch using suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of every long-running component in the server. Crashed services
are restarted with exponential backoff, and failures in one layer never
cascade into another.

# Overview

Services are organized into three layers:

	RootSupervisor ("curbwatch")
	├── MaintenanceSupervisor ("maintenance-layer")
	│   └── JanitorService (cache and limiter sweeps, uptime gauge)
	├── IngestSupervisor ("ingest-layer")
	│   └── IngestService (NATS stream consumer, if enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPService

This hierarchy ensures that:
  - A stalled ingest consumer doesn't affect API availability
  - Cache maintenance failures never touch the request path
  - Each layer restarts independently with its own failure counter

# Usage

Basic setup in main.go:

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))
	tree.AddMaintenanceService(services.NewJanitorService(janitorCfg))
	if components != nil {
	    tree.AddIngestService(services.NewIngestService(components, 10*time.Second))
	}

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor tree exited")
	}

Supervision events (starts, failures, backoff) flow through sutureslog into
the shared zerolog output, so service crashes show up in the same stream as
request logs.

Concrete service wrappers live in the services subpackage. Each wrapper
adapts a component's native lifecycle (ListenAndServe, Start/Shutdown,
ticker loop) to suture's blocking Serve(ctx) contract.
*/
package supervisor
