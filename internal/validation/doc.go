// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library in a thread-safe
// singleton with human-readable error translation. Its main consumer is the
// ingest path, which validates every inbound violation report before the
// record is published or appended; configuration structs use the same
// validator at startup.
//
// # Quick Start
//
//	report := models.ViolationReport{...}
//	if verr := validation.ValidateStruct(&report); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
//	    return
//	}
//
// # Validation Tags In Use
//
//   - required: field must be present and non-zero
//   - omitempty: remaining tags apply only when the field is set
//   - min=n / max=n: length bounds for strings, value bounds for numbers
//   - gte=n / lte=n: numeric range bounds
//   - oneof=a b: enumerated values
//   - latitude / longitude: WGS84 coordinate ranges
//
// Coordinates on ingest payloads are pointer fields so that a genuine zero
// coordinate (0, 0 is in the Gulf of Guinea, not absent) passes required
// while a missing field fails it.
//
// # Error Types
//
// ValidateStruct returns *RequestValidationError, an aggregate of per-field
// ValidationError values. ToAPIError converts the aggregate into the
// VALIDATION_ERROR wire shape: a single failing field produces a flat
// message with field/tag/value details, multiple failures a combined
// message plus a details.fields list.
//
// # Thread Safety
//
// The singleton validator is initialized once and is safe for concurrent
// use. It caches struct reflection data, so repeated validation of the
// same type is cheap.
package validation
