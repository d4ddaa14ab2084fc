// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package query

import (
	"fmt"
)

// InvalidParameterError reports a request parameter that failed parsing or
// validation. The pipeline maps it to HTTP 400 with code INVALID_PARAMETER.
type InvalidParameterError struct {
	// Param is the offending query parameter name.
	Param string
	// Message is a human-readable description of the constraint violated.
	Message string
}

func (e *InvalidParameterError) Error() string {
	if e.Param == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Param, e.Message)
}

// NewInvalidParameter constructs an InvalidParameterError for a parameter.
func NewInvalidParameter(param, format string, args ...interface{}) *InvalidParameterError {
	return &InvalidParameterError{
		Param:   param,
		Message: fmt.Sprintf(format, args...),
	}
}

// ComputeFailureError wraps a failure from the compute layer (query
// execution, model fit). The pipeline maps it to HTTP 502 with code
// COMPUTE_FAILURE and never caches the response.
type ComputeFailureError struct {
	// Endpoint is the analytics endpoint whose compute failed.
	Endpoint string
	// Err is the underlying failure.
	Err error
}

func (e *ComputeFailureError) Error() string {
	return fmt.Sprintf("compute failed for %s: %v", e.Endpoint, e.Err)
}

func (e *ComputeFailureError) Unwrap() error {
	return e.Err
}

// NewComputeFailure wraps err as a compute failure for the given endpoint.
func NewComputeFailure(endpoint string, err error) *ComputeFailureError {
	return &ComputeFailureError{Endpoint: endpoint, Err: err}
}
