// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package models

// HealthStatus is the health check response.
type HealthStatus struct {
	Status            string  `json:"status"` // "healthy" or "degraded"
	Mode              string  `json:"mode"`   // "direct" (append to storage) or "streamed" (NATS)
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected"`
	StreamState       string  `json:"stream_state,omitempty"`
	Uptime            float64 `json:"uptime_seconds"`
}

// ReadyStatus is the readiness probe response.
type ReadyStatus struct {
	DatabaseConnected bool    `json:"database_connected"`
	ReadyToServe      bool    `json:"ready_to_serve"`
	Uptime            float64 `json:"uptime_seconds"`
}
