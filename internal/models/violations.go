// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Violation represents a single geocoded violation event in the append-only
// violations table.
//
// Rows are immutable once written: corrections arrive as new events, never
// as updates. OccurredAt is the civic timestamp of the violation itself;
// IngestedAt is when the row landed in storage. All timestamps are UTC.
//
// Key Fields:
//   - ID: Unique identifier (UUID, assigned at ingest when absent)
//   - OccurredAt: When the violation occurred (drives all time-window queries)
//   - ViolationType: Normalized lowercase category (e.g., "double_parking")
//   - Latitude/Longitude: WGS84 coordinates of the event
type Violation struct {
	ID            string    `json:"id"`
	OccurredAt    time.Time `json:"occurred_at"`
	ViolationType string    `json:"violation_type"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// ViolationReport is the inbound payload accepted by POST /api/v1/violations
// and carried on the NATS ingest topic. Validation tags are enforced by the
// ingest validator before anything is published or appended.
//
// ID is optional; a UUID is assigned when absent. OccurredAt must parse as
// RFC3339 and is converted to UTC before storage.
type ViolationReport struct {
	ID            string    `json:"id,omitempty" validate:"omitempty,max=64"`
	OccurredAt    time.Time `json:"occurred_at" validate:"required"`
	ViolationType string    `json:"violation_type" validate:"required,min=1,max=100"`
	Latitude      *float64  `json:"latitude" validate:"required,latitude"`
	Longitude     *float64  `json:"longitude" validate:"required,longitude"`
}

// ToViolation converts a validated report into a storable violation row.
// Missing IDs are assigned, the category is normalized to trimmed lowercase,
// and both timestamps are forced to UTC.
func (r *ViolationReport) ToViolation(now time.Time) Violation {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = uuid.New().String()
	}
	var lat, lon float64
	if r.Latitude != nil {
		lat = *r.Latitude
	}
	if r.Longitude != nil {
		lon = *r.Longitude
	}
	return Violation{
		ID:            id,
		OccurredAt:    r.OccurredAt.UTC(),
		ViolationType: strings.ToLower(strings.TrimSpace(r.ViolationType)),
		Latitude:      lat,
		Longitude:     lon,
		IngestedAt:    now.UTC(),
	}
}

// IngestResult summarizes the outcome of a batch submission to
// POST /api/v1/violations.
type IngestResult struct {
	Accepted int                 `json:"accepted"`
	Rejected int                 `json:"rejected"`
	Errors   []IngestRecordError `json:"errors,omitempty"`
}

// IngestRecordError pinpoints a rejected record within a submitted batch.
type IngestRecordError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}
