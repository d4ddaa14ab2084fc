// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package api

import (
	"net/http"
	"time"

	"github.com/curbwatch/curbwatch/internal/models"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Health serves GET /health: overall status with dependency detail.
// The response is 200 even when degraded; readiness gating belongs to
// HealthReady.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := NewResponder(w, r)
	ctx := r.Context()

	dbConnected := h.pinger != nil && h.pinger.Ping(ctx) == nil

	mode := "direct"
	var streamState string
	if h.ingest.IsRunning() {
		mode = "streamed"
		streamState = h.ingest.Stats().StreamState
	}

	status := "healthy"
	if !dbConnected {
		status = "degraded"
	} else if mode == "streamed" && streamState != "ready" {
		status = "degraded"
	}

	resp.Success(models.HealthStatus{
		Status:            status,
		Mode:              mode,
		Version:           Version,
		DatabaseConnected: dbConnected,
		StreamState:       streamState,
		Uptime:            time.Since(h.startTime).Seconds(),
	}, models.Metadata{})
}

// HealthLive serves GET /health/live: 200 whenever the process is up,
// regardless of dependencies.
func (h *Handlers) HealthLive(w http.ResponseWriter, r *http.Request) {
	resp := NewResponder(w, r)
	resp.Success(map[string]interface{}{
		"alive":          true,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	}, models.Metadata{})
}

// HealthReady serves GET /health/ready: 200 only when the service can
// answer queries, 503 otherwise.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := NewResponder(w, r)

	dbConnected := h.pinger != nil && h.pinger.Ping(r.Context()) == nil

	ready := models.ReadyStatus{
		DatabaseConnected: dbConnected,
		ReadyToServe:      dbConnected,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if !dbConnected {
		resp.writeJSON(http.StatusServiceUnavailable, models.APIResponse{
			Status:   StatusError,
			Data:     ready,
			Metadata: models.Metadata{Timestamp: time.Now().UTC()},
			Error: &models.APIError{
				Code:    ErrCodeNotReady,
				Message: "storage is unreachable",
			},
		})
		return
	}
	resp.Success(ready, models.Metadata{})
}

// DebugCaches serves GET /internal/debug/caches: cache counters plus
// limiter counters. Mounted only when debug endpoints are enabled.
func (h *Handlers) DebugCaches(w http.ResponseWriter, r *http.Request) {
	resp := NewResponder(w, r)
	resp.Success(map[string]interface{}{
		"response":     h.pipeline.responseCache.Stats(),
		"model":        h.pipeline.modelCache.Stats(),
		"rate_limiter": h.pipeline.limiter.SnapshotState(),
	}, models.Metadata{})
}

// DebugIngest serves GET /internal/debug/ingest: pipeline counters and
// stream state. Mounted only when debug endpoints are enabled.
func (h *Handlers) DebugIngest(w http.ResponseWriter, r *http.Request) {
	resp := NewResponder(w, r)
	resp.Success(map[string]interface{}{
		"enabled": h.ingest != nil,
		"running": h.ingest.IsRunning(),
		"stats":   h.ingest.Stats(),
	}, models.Metadata{})
}
