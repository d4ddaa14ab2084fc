// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/curbwatch/curbwatch/internal/compute"
	"github.com/curbwatch/curbwatch/internal/database"
	"github.com/curbwatch/curbwatch/internal/ingest"
	"github.com/curbwatch/curbwatch/internal/models"
	"github.com/curbwatch/curbwatch/internal/query"
	"github.com/curbwatch/curbwatch/internal/ratelimit"
	"github.com/curbwatch/curbwatch/internal/timewindow"
)

// Endpoint names, used for metrics labels, cache keys, and error
// payloads.
const (
	EndpointStats      = "stats"
	EndpointTimeseries = "timeseries"
	EndpointTrends     = "trends"
	EndpointForecast   = "forecast"
	EndpointHotspots   = "hotspots"
	EndpointPredict    = "predict"
	EndpointViolations = "violations"
)

// violationPublisher pushes accepted reports onto the ingest stream.
// *ingest.Publisher satisfies it.
type violationPublisher interface {
	PublishViolations(ctx context.Context, violations []models.Violation) error
}

// violationInserter appends rows directly, bypassing the stream.
// *database.DB satisfies it.
type violationInserter interface {
	InsertViolations(ctx context.Context, violations []models.Violation) (int, int, error)
}

// Pinger reports storage connectivity for health probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers owns the HTTP endpoints: the six query endpoints share the
// pipeline, ingest has its own submission path.
type Handlers struct {
	pipeline *Pipeline

	// Ingest path. publisher is nil when the stream is disabled, in
	// which case inserter receives batches directly.
	publisher       violationPublisher
	inserter        violationInserter
	ingestBucket    *rate.Limiter
	maxBatchRecords int

	// Health and debug surface.
	pinger    Pinger
	ingest    *ingest.Components
	startTime time.Time
}

// HandlersConfig wires the endpoint handlers.
type HandlersConfig struct {
	Pipeline *Pipeline

	// IngestComponents may be nil (stream disabled); the handler then
	// appends straight to Inserter.
	IngestComponents *ingest.Components
	Inserter         violationInserter
	Pinger           Pinger

	// IngestRatePerSecond and IngestBurst shape the global ingest
	// token bucket. Zero values fall back to the ingest defaults.
	IngestRatePerSecond float64
	IngestBurst         int
	MaxBatchRecords     int
}

// NewHandlers creates the endpoint handlers.
func NewHandlers(cfg HandlersConfig) *Handlers {
	ratePerSec := cfg.IngestRatePerSecond
	if ratePerSec <= 0 {
		ratePerSec = 50
	}
	burst := cfg.IngestBurst
	if burst <= 0 {
		burst = 200
	}
	maxBatch := cfg.MaxBatchRecords
	if maxBatch <= 0 {
		maxBatch = 500
	}

	h := &Handlers{
		pipeline:        cfg.Pipeline,
		inserter:        cfg.Inserter,
		ingestBucket:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		maxBatchRecords: maxBatch,
		pinger:          cfg.Pinger,
		ingest:          cfg.IngestComponents,
		startTime:       time.Now(),
	}
	// A nil *ingest.Components wrapped in the interface would be
	// non-nil; only assign when a live publisher exists.
	if p := cfg.IngestComponents.Publisher(); p != nil {
		h.publisher = p
	}
	return h
}

// Stats serves GET /api/v1/stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Execute(w, r, EndpointStats, ratelimit.GroupStats, func(p *query.Params, values url.Values) (*queryJob, error) {
		return &queryJob{
			run: func(ctx context.Context, scope database.Scope, win timewindow.Window, _ interface{}) (*computeOutput, error) {
				result, err := compute.Stats(ctx, h.pipeline.store, scope, win)
				if err != nil {
					return nil, err
				}
				return &computeOutput{data: result}, nil
			},
		}, nil
	})
}

// Timeseries serves GET /api/v1/timeseries.
func (h *Handlers) Timeseries(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Execute(w, r, EndpointTimeseries, ratelimit.GroupStats, func(p *query.Params, values url.Values) (*queryJob, error) {
		req := compute.DefaultTimeseriesRequest()
		if p.Granularity != "" {
			req.Granularity = p.Granularity
		}
		var err error
		if req.LimitHistory, err = query.GetIntParam(values, "limit_history", req.LimitHistory, 1, 5000); err != nil {
			return nil, err
		}
		return &queryJob{
			extras: req.CacheExtras(),
			run: func(ctx context.Context, scope database.Scope, win timewindow.Window, _ interface{}) (*computeOutput, error) {
				result, err := compute.Timeseries(ctx, h.pipeline.store, scope, win, req)
				if err != nil {
					return nil, err
				}
				return &computeOutput{data: result}, nil
			},
		}, nil
	})
}

// Trends serves GET /api/v1/trends.
func (h *Handlers) Trends(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Execute(w, r, EndpointTrends, ratelimit.GroupStats, func(p *query.Params, values url.Values) (*queryJob, error) {
		req := compute.DefaultTrendsRequest()
		if p.Granularity != "" {
			req.Granularity = p.Granularity
		}
		var err error
		if req.Window, err = query.GetIntParam(values, "window", req.Window, 3, 180); err != nil {
			return nil, err
		}
		if req.AnomalyZ, err = query.GetFloatParam(values, "anomaly_z", req.AnomalyZ, 1, 6); err != nil {
			return nil, err
		}
		if req.LimitHistory, err = query.GetIntParam(values, "limit_history", req.LimitHistory, 1, 5000); err != nil {
			return nil, err
		}
		return &queryJob{
			extras: req.CacheExtras(),
			run: func(ctx context.Context, scope database.Scope, win timewindow.Window, _ interface{}) (*computeOutput, error) {
				result, err := compute.Trends(ctx, h.pipeline.store, scope, win, req)
				if err != nil {
					return nil, err
				}
				return &computeOutput{data: result}, nil
			},
		}, nil
	})
}

// Forecast serves GET /api/v1/forecast.
func (h *Handlers) Forecast(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Execute(w, r, EndpointForecast, ratelimit.GroupStats, func(p *query.Params, values url.Values) (*queryJob, error) {
		req := compute.DefaultForecastRequest()
		if p.Granularity != "" {
			req.Granularity = p.Granularity
		}
		var err error
		if req.Model, err = query.GetEnumParam(values, "model", req.Model, compute.ModelNaive, compute.ModelMA, compute.ModelEWM); err != nil {
			return nil, err
		}
		if req.Window, err = query.GetIntParam(values, "window", req.Window, 1, 500); err != nil {
			return nil, err
		}
		if req.Alpha, err = query.GetFloatParam(values, "alpha", req.Alpha, 0, 1); err != nil {
			return nil, err
		}
		if req.Horizon, err = query.GetIntParam(values, "horizon", req.Horizon, 1, 365); err != nil {
			return nil, err
		}
		if req.LimitHistory, err = query.GetIntParam(values, "limit_history", req.LimitHistory, 1, 5000); err != nil {
			return nil, err
		}
		return &queryJob{
			extras:        req.CacheExtras(),
			useModelCache: true,
			run: func(ctx context.Context, scope database.Scope, win timewindow.Window, cached interface{}) (*computeOutput, error) {
				artifact, _ := cached.(*compute.ForecastModel)
				result, fitted, err := compute.Forecast(ctx, h.pipeline.store, scope, win, req, artifact)
				if err != nil {
					return nil, err
				}
				out := &computeOutput{data: result}
				if fitted != nil {
					out.artifact = fitted
				}
				return out, nil
			},
		}, nil
	})
}

// Hotspots serves GET /api/v1/hotspots.
func (h *Handlers) Hotspots(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Execute(w, r, EndpointHotspots, ratelimit.GroupStats, func(p *query.Params, values url.Values) (*queryJob, error) {
		req := compute.DefaultHotspotsRequest()
		var err error
		if req.CellM, err = query.GetIntParam(values, "cell_m", req.CellM, 50, 2000); err != nil {
			return nil, err
		}
		if req.RecentDays, err = query.GetIntParam(values, "recent_days", req.RecentDays, 1, 90); err != nil {
			return nil, err
		}
		if req.BaselineDays, err = query.GetIntParam(values, "baseline_days", req.BaselineDays, 1, 365); err != nil {
			return nil, err
		}
		if req.Limit, err = query.GetIntParam(values, "limit", req.Limit, 1, 10000); err != nil {
			return nil, err
		}
		return &queryJob{
			extras: req.CacheExtras(),
			// A lone end bound fixes the comparison anchor instead of
			// widening the window.
			endAloneAbsolute: true,
			run: func(ctx context.Context, scope database.Scope, win timewindow.Window, _ interface{}) (*computeOutput, error) {
				result, windowMeta, err := compute.Hotspots(ctx, h.pipeline.store, scope, win, req)
				if err != nil {
					return nil, err
				}
				return &computeOutput{data: result, windowMeta: windowMeta}, nil
			},
		}, nil
	})
}

// Predict serves GET /api/v1/predict.
func (h *Handlers) Predict(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Execute(w, r, EndpointPredict, ratelimit.GroupPredict, func(p *query.Params, values url.Values) (*queryJob, error) {
		req := compute.DefaultPredictRequest()
		if p.Granularity != "" {
			req.Granularity = p.Granularity
		}
		var err error
		if req.Horizon, err = query.GetIntParam(values, "horizon", req.Horizon, 1, 365); err != nil {
			return nil, err
		}
		if req.LimitHistory, err = query.GetIntParam(values, "limit_history", req.LimitHistory, 1, 5000); err != nil {
			return nil, err
		}
		return &queryJob{
			extras:        req.CacheExtras(),
			useModelCache: true,
			run: func(ctx context.Context, scope database.Scope, win timewindow.Window, cached interface{}) (*computeOutput, error) {
				artifact, _ := cached.(*compute.RiskModel)
				result, fitted, err := compute.Predict(ctx, h.pipeline.store, scope, win, req, artifact)
				if err != nil {
					return nil, err
				}
				out := &computeOutput{data: result}
				if fitted != nil {
					out.artifact = fitted
				}
				return out, nil
			},
		}, nil
	})
}
