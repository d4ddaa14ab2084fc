// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package services

import (
	"context"
	"fmt"
	"time"
)

// IngestRunner matches the ingest component group's lifecycle.
// Satisfied by *ingest.Components.
type IngestRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
}

// IngestService runs the NATS ingest components under supervision:
// the embedded server, JetStream publisher, and the consumer that
// appends violation batches to storage. If the consumer crashes, suture
// restarts the whole group so the stream subscription is rebuilt from
// the last acknowledged message.
type IngestService struct {
	components      IngestRunner
	shutdownTimeout time.Duration
	name            string
}

// NewIngestService wraps the ingest components as a supervised service.
// Zero or negative shutdownTimeout falls back to 10 seconds.
func NewIngestService(components IngestRunner, shutdownTimeout time.Duration) *IngestService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &IngestService{
		components:      components,
		shutdownTimeout: shutdownTimeout,
		name:            "ingest-components",
	}
}

// Serve implements suture.Service. A Start failure is returned
// immediately so suture applies its backoff policy; otherwise the
// method blocks until cancellation and then shuts the components down
// with a fresh timeout-bounded context.
func (s *IngestService) Serve(ctx context.Context) error {
	if err := s.components.Start(ctx); err != nil {
		return fmt.Errorf("ingest components start failed: %w", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.components.Shutdown(shutdownCtx)

	return ctx.Err()
}

// String implements fmt.Stringer; suture uses it to identify the
// service in supervision logs.
func (s *IngestService) String() string {
	return s.name
}
