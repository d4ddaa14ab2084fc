// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

// Package ingest moves accepted violation reports from the HTTP intake
// into DuckDB through NATS JetStream, using Watermill for transport
// plumbing.
//
// # Architecture
//
// Reports that pass validation are published to a JetStream-backed
// topic; a durable subscriber drains the topic into a batch appender,
// which is the only ingest-path writer to the violations table:
//
//	POST /api/v1/violations
//	        │ validate, assign IDs
//	        ▼
//	┌───────────────────┐
//	│  NATS JetStream   │  stream VIOLATIONS, subject violations.reported
//	│ (embedded server) │
//	└─────────┬─────────┘
//	          │ durable queue-group subscriber
//	          ▼
//	┌───────────────────┐
//	│     Appender      │  batch on size or interval
//	└─────────┬─────────┘
//	          ▼
//	       DuckDB
//
// Decoupling intake from storage keeps POST latency flat while DuckDB
// absorbs writes in batches, and the stream retains reports across a
// crash between accept and append. When the transport is disabled by
// configuration the intake writes straight to storage and this package
// stays idle.
//
// # Deduplication
//
// A report ID can arrive more than once: client retries, JetStream
// redelivery after a missed ack, or the same feed submitted twice.
// Three layers suppress duplicates, cheapest first:
//
//  1. JetStream duplicate window: the violation ID rides as
//     Nats-Msg-Id, so resubmits inside the window never land in the
//     stream.
//  2. Consumer LRU: a TTL-bounded window of recently appended IDs
//     catches redeliveries without touching the database.
//  3. Storage check: the insert skips IDs already present, which
//     backstops anything older than both windows.
//
// # Lifecycle
//
// Components wires the pieces from configuration and owns startup and
// shutdown ordering. Shutdown stops the consume loop before closing
// the appender so the final flush sees every acked message, and stops
// the embedded server last.
package ingest
