// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/curbwatch/curbwatch/internal/middleware"
	"github.com/curbwatch/curbwatch/internal/models"
)

// Router assembles the HTTP surface on a Chi router.
type Router struct {
	handlers   *Handlers
	middleware *Middleware
	perfMon    *middleware.PerformanceMonitor
	debug      bool
}

// RouterConfig wires the router.
type RouterConfig struct {
	Handlers   *Handlers
	Middleware *Middleware

	// PerfMonitor records per-endpoint latency for the access log and
	// the perf debug endpoint. A default monitor is created when nil.
	PerfMonitor *middleware.PerformanceMonitor

	// DebugEndpoints mounts /internal/debug/* when true. Production
	// configs leave it off.
	DebugEndpoints bool
}

// NewRouter creates the router.
func NewRouter(cfg RouterConfig) *Router {
	perfMon := cfg.PerfMonitor
	if perfMon == nil {
		perfMon = middleware.NewPerformanceMonitor(0, 0)
	}
	mw := cfg.Middleware
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	return &Router{
		handlers:   cfg.Handlers,
		middleware: mw,
		perfMon:    perfMon,
		debug:      cfg.DebugEndpoints,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	// Applied to ALL routes in order
	r.Use(middleware.RequestID)        // X-Request-ID plus logging context
	r.Use(chimiddleware.RealIP)        // Extract real IP from X-Forwarded-For
	r.Use(router.perfMon.Middleware)   // Access log and latency window
	r.Use(chimiddleware.Recoverer)     // Recover from panics
	r.Use(router.middleware.CORS())    // CORS must be global to handle OPTIONS preflight
	r.Use(router.middleware.Ceiling()) // Coarse per-IP request ceiling

	// ========================
	// Health Endpoints
	// ========================
	r.Route("/health", func(r chi.Router) {
		r.Get("/", router.handlers.Health)
		r.Get("/live", router.handlers.HealthLive)
		r.Get("/ready", router.handlers.HealthReady)
	})

	// ========================
	// Query and Ingest Endpoints
	// ========================
	// The domain rate limiter runs inside the handlers, keyed by
	// endpoint group, so it is not part of this chain.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)

		r.Get("/stats", router.handlers.Stats)
		r.Get("/timeseries", router.handlers.Timeseries)
		r.Get("/trends", router.handlers.Trends)
		r.Get("/forecast", router.handlers.Forecast)
		r.Get("/hotspots", router.handlers.Hotspots)
		r.Get("/predict", router.handlers.Predict)

		r.Post("/violations", router.handlers.SubmitViolations)
	})

	// ========================
	// Observability
	// ========================
	r.Handle("/metrics", promhttp.Handler())

	// ========================
	// Debug Endpoints
	// ========================
	if router.debug {
		r.Route("/internal/debug", func(r chi.Router) {
			r.Get("/caches", router.handlers.DebugCaches)
			r.Get("/ingest", router.handlers.DebugIngest)
			r.Get("/perf", func(w http.ResponseWriter, req *http.Request) {
				NewResponder(w, req).Success(router.perfMon.GetStats(), models.Metadata{})
			})
		})
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponder(w, req).NotFound("resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponder(w, req).MethodNotAllowed()
	})

	return r
}
