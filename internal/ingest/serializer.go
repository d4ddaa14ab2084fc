// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package ingest

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/curbwatch/curbwatch/internal/models"
)

// Serializer handles violation encoding/decoding for NATS messages.
// Both directions validate: publishers must not emit rows the appender
// would refuse, and the appender must not trust foreign producers.
type Serializer struct{}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal converts a violation to JSON bytes.
func (s *Serializer) Marshal(v *models.Violation) ([]byte, error) {
	if err := validateViolation(v); err != nil {
		return nil, fmt.Errorf("validate violation: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal violation: %w", err)
	}

	return data, nil
}

// Unmarshal converts JSON bytes to a violation.
func (s *Serializer) Unmarshal(data []byte) (*models.Violation, error) {
	var v models.Violation
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal violation: %w", err)
	}

	if err := validateViolation(&v); err != nil {
		return nil, fmt.Errorf("validate violation: %w", err)
	}

	return &v, nil
}

// validateViolation checks the invariants every row on the wire must
// hold. Full payload validation happens at the HTTP boundary; this is
// the storage contract only.
func validateViolation(v *models.Violation) error {
	if v == nil {
		return fmt.Errorf("violation required")
	}
	if v.ID == "" {
		return fmt.Errorf("violation id required")
	}
	if v.ViolationType == "" {
		return fmt.Errorf("violation type required")
	}
	if v.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at required")
	}
	if v.Latitude < -90 || v.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", v.Latitude)
	}
	if v.Longitude < -180 || v.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", v.Longitude)
	}
	return nil
}
