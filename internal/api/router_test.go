// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/curbwatch/curbwatch/internal/models"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}

type fakeInserter struct {
	mu         sync.Mutex
	violations []models.Violation
	duplicates int
	err        error
	calls      int
}

func (f *fakeInserter) InsertViolations(ctx context.Context, violations []models.Violation) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, 0, f.err
	}
	f.violations = append(f.violations, violations...)
	return len(violations) - f.duplicates, f.duplicates, nil
}

func (f *fakeInserter) stored() []models.Violation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Violation, len(f.violations))
	copy(out, f.violations)
	return out
}

// routerOptions configures newTestRouter. Zero value gives a healthy
// server with debug endpoints off.
type routerOptions struct {
	pingErr  error
	inserter *fakeInserter
	debug    bool
}

func newTestRouter(store Store, opts routerOptions) http.Handler {
	inserter := opts.inserter
	if inserter == nil {
		inserter = &fakeInserter{}
	}
	handlers := NewHandlers(HandlersConfig{
		Pipeline:            newTestPipeline(store, nil),
		Inserter:            inserter,
		Pinger:              &fakePinger{err: opts.pingErr},
		IngestRatePerSecond: 1000,
		IngestBurst:         1000,
		MaxBatchRecords:     10,
	})
	router := NewRouter(RouterConfig{
		Handlers:       handlers,
		DebugEndpoints: opts.debug,
	})
	return router.Setup()
}

func doRequest(handler http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(method, target, nil)
	handler.ServeHTTP(w, r)
	return w
}

func TestRouter_QueryEndpoints(t *testing.T) {
	t.Parallel()

	handler := newTestRouter(populatedStore(), routerOptions{})

	tests := []struct {
		name    string
		target  string
		wantKey string
	}{
		{"stats", "/api/v1/stats", "total"},
		{"timeseries", "/api/v1/timeseries", "series"},
		{"trends", "/api/v1/trends", "trends"},
		{"forecast", "/api/v1/forecast", "forecast"},
		{"hotspots", "/api/v1/hotspots", "cells"},
		{"predict", "/api/v1/predict", "predictions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(handler, http.MethodGet, tt.target)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
			}

			response := decodeEnvelope(t, w)
			if response.Status != StatusSuccess {
				t.Fatalf("Expected success, got %q", response.Status)
			}
			data, ok := response.Data.(map[string]interface{})
			if !ok {
				t.Fatalf("Expected object payload, got %T", response.Data)
			}
			if _, ok := data[tt.wantKey]; !ok {
				t.Errorf("Expected payload key %q, got keys %v", tt.wantKey, payloadKeys(data))
			}
			if response.Metadata.TimeWindow == nil {
				t.Error("Expected time window metadata")
			}
			if response.Metadata.ResponseCache == nil {
				t.Error("Expected response cache metadata")
			}
		})
	}
}

func payloadKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	return keys
}

func TestRouter_GranularitySelectsDailyBuckets(t *testing.T) {
	t.Parallel()

	handler := newTestRouter(populatedStore(), routerOptions{})

	w := doRequest(handler, http.MethodGet, "/api/v1/timeseries?granularity=day")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	response := decodeEnvelope(t, w)
	data := response.Data.(map[string]interface{})
	if data["granularity"] != "day" {
		t.Errorf("Expected granularity day, got %v", data["granularity"])
	}
}

func TestRouter_ModelCacheMetadataOnPredictiveEndpoints(t *testing.T) {
	t.Parallel()

	handler := newTestRouter(populatedStore(), routerOptions{})

	w := doRequest(handler, http.MethodGet, "/api/v1/forecast")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	response := decodeEnvelope(t, w)
	if response.Metadata.ModelCache == nil {
		t.Fatal("Expected model cache metadata on forecast")
	}

	w = doRequest(handler, http.MethodGet, "/api/v1/stats")
	response = decodeEnvelope(t, w)
	if response.Metadata.ModelCache != nil {
		t.Error("Expected no model cache metadata on stats")
	}
}

func TestRouter_KnobValidation(t *testing.T) {
	t.Parallel()

	handler := newTestRouter(populatedStore(), routerOptions{})

	tests := []struct {
		name      string
		target    string
		wantParam string
	}{
		{"forecast model enum", "/api/v1/forecast?model=arima", "model"},
		{"forecast alpha range", "/api/v1/forecast?alpha=1.5", "alpha"},
		{"forecast horizon range", "/api/v1/forecast?horizon=500", "horizon"},
		{"forecast window range", "/api/v1/forecast?window=0", "window"},
		{"trends window range", "/api/v1/trends?window=999", "window"},
		{"trends anomaly threshold", "/api/v1/trends?anomaly_z=0.5", "anomaly_z"},
		{"hotspots cell size", "/api/v1/hotspots?cell_m=10", "cell_m"},
		{"hotspots recent days", "/api/v1/hotspots?recent_days=0", "recent_days"},
		{"hotspots limit", "/api/v1/hotspots?limit=999999", "limit"},
		{"predict horizon", "/api/v1/predict?horizon=0", "horizon"},
		{"timeseries history cap", "/api/v1/timeseries?limit_history=0", "limit_history"},
		{"shared granularity enum", "/api/v1/stats?granularity=weekly", "granularity"},
		{"shared bbox arity", "/api/v1/stats?bbox=1,2,3", "bbox"},
		{"shared hour range", "/api/v1/stats?hour_start=24", "hour_start"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(handler, http.MethodGet, tt.target)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d: %s", w.Code, w.Body.String())
			}
			response := decodeEnvelope(t, w)
			if response.Error == nil || response.Error.Code != ErrCodeInvalidParameter {
				t.Fatalf("Expected INVALID_PARAMETER, got %+v", response.Error)
			}
			if got := response.Error.Details["parameter"]; got != tt.wantParam {
				t.Errorf("Expected parameter %q, got %v", tt.wantParam, got)
			}
		})
	}
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()

	handler := newTestRouter(populatedStore(), routerOptions{})

	w := doRequest(handler, http.MethodGet, "/api/v1/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	response := decodeEnvelope(t, w)
	if response.Error == nil || response.Error.Code != ErrCodeNotFound {
		t.Fatalf("Expected NOT_FOUND, got %+v", response.Error)
	}

	w = doRequest(handler, http.MethodDelete, "/api/v1/stats")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected status 405, got %d", w.Code)
	}
	response = decodeEnvelope(t, w)
	if response.Error == nil || response.Error.Code != ErrCodeMethodNotAllowed {
		t.Fatalf("Expected METHOD_NOT_ALLOWED, got %+v", response.Error)
	}
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	handler := newTestRouter(populatedStore(), routerOptions{})

	w := doRequest(handler, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	response := decodeEnvelope(t, w)
	data := response.Data.(map[string]interface{})
	if data["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", data["status"])
	}
	if data["mode"] != "direct" {
		t.Errorf("Expected direct mode, got %v", data["mode"])
	}
	if data["database_connected"] != true {
		t.Errorf("Expected database_connected true, got %v", data["database_connected"])
	}
}

func TestRouter_HealthDegradedStays200(t *testing.T) {
	t.Parallel()

	handler := newTestRouter(populatedStore(), routerOptions{pingErr: context.DeadlineExceeded})

	w := doRequest(handler, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	response := decodeEnvelope(t, w)
	data := response.Data.(map[string]interface{})
	if data["status"] != "degraded" {
		t.Errorf("Expected degraded, got %v", data["status"])
	}
}

func TestRouter_ReadinessGates(t *testing.T) {
	t.Parallel()

	healthy := newTestRouter(populatedStore(), routerOptions{})
	w := doRequest(healthy, http.MethodGet, "/health/ready")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	unhealthy := newTestRouter(populatedStore(), routerOptions{pingErr: context.DeadlineExceeded})
	w = doRequest(unhealthy, http.MethodGet, "/health/ready")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}
	response := decodeEnvelope(t, w)
	if response.Error == nil || response.Error.Code != ErrCodeNotReady {
		t.Fatalf("Expected NOT_READY, got %+v", response.Error)
	}

	w = doRequest(unhealthy, http.MethodGet, "/health/live")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected liveness 200 regardless of dependencies, got %d", w.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()

	handler := newTestRouter(populatedStore(), routerOptions{})

	w := doRequest(handler, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "app_uptime_seconds") {
		t.Error("Expected app metrics in exposition")
	}
}

func TestRouter_DebugEndpointsGated(t *testing.T) {
	t.Parallel()

	open := newTestRouter(populatedStore(), routerOptions{debug: true})
	for _, target := range []string{"/internal/debug/caches", "/internal/debug/ingest", "/internal/debug/perf"} {
		w := doRequest(open, http.MethodGet, target)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", target, w.Code)
		}
	}

	closed := newTestRouter(populatedStore(), routerOptions{debug: false})
	for _, target := range []string{"/internal/debug/caches", "/internal/debug/ingest", "/internal/debug/perf"} {
		w := doRequest(closed, http.MethodGet, target)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", target, w.Code)
		}
	}
}

func TestRouter_DebugCachesPayload(t *testing.T) {
	t.Parallel()

	handler := newTestRouter(populatedStore(), routerOptions{debug: true})

	// Populate both limiter and cache counters.
	if w := doRequest(handler, http.MethodGet, "/api/v1/stats"); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w := doRequest(handler, http.MethodGet, "/internal/debug/caches")
	response := decodeEnvelope(t, w)
	data, ok := response.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected object payload, got %T", response.Data)
	}
	for _, key := range []string{"response", "model", "rate_limiter"} {
		if _, ok := data[key]; !ok {
			t.Errorf("Expected %q block in debug payload", key)
		}
	}
}
