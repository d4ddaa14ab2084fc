// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/curbwatch/curbwatch/internal/logging"
	"github.com/curbwatch/curbwatch/internal/models"
	"github.com/curbwatch/curbwatch/internal/query"
	"github.com/curbwatch/curbwatch/internal/ratelimit"
	"github.com/curbwatch/curbwatch/internal/validation"
)

// maxIngestBodyBytes caps the request body before decoding.
const maxIngestBodyBytes = 4 << 20

// SubmitViolations serves POST /api/v1/violations. Reports are
// validated one by one; valid ones are published to the ingest stream
// (or appended directly when the stream is off) and the rest are
// reported back with per-record reasons. The response is 202 even when
// every record is rejected, so clients learn the reasons instead of
// retrying the batch blind.
func (h *Handlers) SubmitViolations(w http.ResponseWriter, r *http.Request) {
	resp := NewResponder(w, r)

	clientID := ratelimit.ClientID(r, h.pipeline.trustForwarded)
	if d := h.pipeline.limiter.Check(clientID, ratelimit.GroupIngest); !d.Allowed {
		resp.RateLimited(d)
		return
	}

	// The token bucket paces total write volume across all clients.
	if !h.ingestBucket.Allow() {
		resp.RateLimited(ratelimit.Decision{
			Group:             ratelimit.GroupIngest,
			RetryAfterSeconds: 1,
		})
		return
	}

	var reports []models.ViolationReport
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBodyBytes))
	if err := dec.Decode(&reports); err != nil {
		resp.InvalidParameter(query.NewInvalidParameter("body", "must be a JSON array of violation reports"))
		return
	}

	if len(reports) > h.maxBatchRecords {
		resp.InvalidParameter(query.NewInvalidParameter("records",
			"batch exceeds the maximum of %d records", h.maxBatchRecords))
		return
	}

	now := time.Now().UTC()
	result := models.IngestResult{}
	violations := make([]models.Violation, 0, len(reports))

	for i := range reports {
		if verr := validation.ValidateStruct(&reports[i]); verr != nil {
			result.Rejected++
			result.Errors = append(result.Errors, models.IngestRecordError{
				Index:  i,
				Reason: recordReason(verr),
			})
			continue
		}
		violations = append(violations, reports[i].ToViolation(now))
	}
	result.Accepted = len(violations)

	if len(violations) > 0 {
		if err := h.dispatch(r, violations); err != nil {
			logging.Error().Err(err).
				Int("records", len(violations)).
				Msg("Violation batch dispatch failed")
			resp.InternalError("failed to store violation reports")
			return
		}
	}

	logging.Info().
		Int("accepted", result.Accepted).
		Int("rejected", result.Rejected).
		Bool("streamed", h.publisher != nil).
		Msg("Violation batch accepted")

	resp.Accepted(result)
}

// dispatch routes a validated batch to the stream when available,
// otherwise straight to storage.
func (h *Handlers) dispatch(r *http.Request, violations []models.Violation) error {
	ctx := r.Context()
	if h.publisher != nil {
		if err := h.publisher.PublishViolations(ctx, violations); err != nil {
			return fmt.Errorf("publish batch: %w", err)
		}
		return nil
	}
	if _, _, err := h.inserter.InsertViolations(ctx, violations); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// recordReason flattens a validation error into one line for the batch
// error list.
func recordReason(verr *validation.RequestValidationError) string {
	fields := verr.Errors()
	if len(fields) == 0 {
		return "invalid record"
	}
	// The first failing field is enough to correct the record.
	return fmt.Sprintf("%s: %s", fields[0].Field(), fields[0].Error())
}
