// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/curbwatch/curbwatch/internal/logging"
	"github.com/curbwatch/curbwatch/internal/models"
	"github.com/curbwatch/curbwatch/internal/query"
	"github.com/curbwatch/curbwatch/internal/ratelimit"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes for API responses.
const (
	ErrCodeInvalidParameter = "INVALID_PARAMETER"
	ErrCodeTooManyRequests  = "TOO_MANY_REQUESTS"
	ErrCodeComputeFailure   = "COMPUTE_FAILURE"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeNotReady         = "NOT_READY"
)

// Responder writes the standard response envelope.
type Responder struct {
	w http.ResponseWriter
	r *http.Request
}

// NewResponder creates a responder for one request.
func NewResponder(w http.ResponseWriter, r *http.Request) *Responder {
	return &Responder{w: w, r: r}
}

// Success writes a 200 response. The metadata timestamp is stamped
// here so callers only fill the query-specific fields.
func (rw *Responder) Success(data interface{}, meta models.Metadata) {
	meta.Timestamp = time.Now().UTC()
	rw.writeJSON(http.StatusOK, models.APIResponse{
		Status:   StatusSuccess,
		Data:     data,
		Metadata: meta,
	})
}

// Accepted writes a 202 response for asynchronous ingest admission.
func (rw *Responder) Accepted(data interface{}) {
	rw.writeJSON(http.StatusAccepted, models.APIResponse{
		Status:   StatusSuccess,
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// Error writes an error envelope with the given status and code.
func (rw *Responder) Error(statusCode int, code, message string, details map[string]interface{}) {
	rw.writeJSON(statusCode, models.APIResponse{
		Status: StatusError,
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// InvalidParameter writes a 400 for a rejected request parameter.
func (rw *Responder) InvalidParameter(err *query.InvalidParameterError) {
	var details map[string]interface{}
	if err.Param != "" {
		details = map[string]interface{}{"parameter": err.Param}
	}
	rw.Error(http.StatusBadRequest, ErrCodeInvalidParameter, err.Error(), details)
}

// ComputeFailure writes a 502 when the compute layer or its store
// failed. The cause is logged, never sent to the client.
func (rw *Responder) ComputeFailure(endpoint string) {
	rw.Error(http.StatusBadGateway, ErrCodeComputeFailure,
		"analytics computation failed", map[string]interface{}{"endpoint": endpoint})
}

// RateLimited writes a 429 with Retry-After guidance. The data payload
// mirrors the header so clients parsing only the body still back off.
func (rw *Responder) RateLimited(d ratelimit.Decision) {
	detail := fmt.Sprintf("rate limit exceeded for group %q: %d requests per window", d.Group, d.Limit)
	rw.w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
	rw.writeJSON(http.StatusTooManyRequests, models.APIResponse{
		Status: StatusError,
		Data: models.RateLimitError{
			Detail:            detail,
			Group:             d.Group,
			RetryAfterSeconds: d.RetryAfterSeconds,
		},
		Error: &models.APIError{
			Code:    ErrCodeTooManyRequests,
			Message: detail,
		},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// NotFound writes a 404.
func (rw *Responder) NotFound(message string) {
	rw.Error(http.StatusNotFound, ErrCodeNotFound, message, nil)
}

// MethodNotAllowed writes a 405.
func (rw *Responder) MethodNotAllowed() {
	rw.Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed", nil)
}

// InternalError writes a 500.
func (rw *Responder) InternalError(message string) {
	rw.Error(http.StatusInternalServerError, ErrCodeInternalError, message, nil)
}

// writeJSON encodes the envelope with proper headers.
func (rw *Responder) writeJSON(statusCode int, response models.APIResponse) {
	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.WriteHeader(statusCode)

	if err := json.NewEncoder(rw.w).Encode(response); err != nil {
		logging.Error().Err(err).
			Str("request_id", logging.RequestIDFromContext(rw.r.Context())).
			Msg("Failed to encode JSON response")
	}
}
