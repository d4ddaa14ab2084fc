// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/curbwatch/curbwatch/internal/cache"
	"github.com/curbwatch/curbwatch/internal/compute"
	"github.com/curbwatch/curbwatch/internal/database"
	"github.com/curbwatch/curbwatch/internal/logging"
	"github.com/curbwatch/curbwatch/internal/metrics"
	"github.com/curbwatch/curbwatch/internal/models"
	"github.com/curbwatch/curbwatch/internal/query"
	"github.com/curbwatch/curbwatch/internal/ratelimit"
	"github.com/curbwatch/curbwatch/internal/timewindow"
)

// computeTimeout bounds one compute flight. The flight context is
// detached from the originating request so a canceled first caller
// cannot fail coalesced followers.
const computeTimeout = 30 * time.Second

// Store is the data surface the query pipeline runs against.
// *database.DB satisfies it; tests substitute fakes.
type Store interface {
	compute.Store
	DataTimeRange(ctx context.Context, scope database.Scope) (*time.Time, *time.Time, error)
}

// computeOutput is what one compute closure produces.
type computeOutput struct {
	// data is the response payload.
	data interface{}

	// windowMeta overrides the resolved window's metadata. Hotspots set
	// it to carry the recent and baseline sub-ranges; nil means derive
	// from the resolved window.
	windowMeta *models.TimeWindowMeta

	// artifact, when non-nil, is stored in the model cache after a
	// successful compute.
	artifact interface{}
}

// queryJob is one endpoint invocation prepared by its handler: the
// cache key material plus the typed compute closure.
type queryJob struct {
	// extras is the endpoint-specific cache key material.
	extras map[string]string

	// endAloneAbsolute marks endpoints where a lone end bound pins an
	// absolute window instead of anchoring.
	endAloneAbsolute bool

	// useModelCache enables the artifact cache lookup around compute.
	useModelCache bool

	// run executes the computation. artifact is the cached model
	// artifact, nil on a model cache miss or for non-model endpoints.
	run func(ctx context.Context, scope database.Scope, win timewindow.Window, artifact interface{}) (*computeOutput, error)
}

// buildFunc parses endpoint-specific knobs into a queryJob. Parameter
// errors abort the request with 400 before any store access.
type buildFunc func(p *query.Params, values url.Values) (*queryJob, error)

// flightResult is the outcome of one deduplicated compute flight,
// shared by every coalesced caller.
type flightResult struct {
	data        interface{}
	windowMeta  models.TimeWindowMeta
	modelMeta   *models.CacheMeta
	queryTimeMS int64
}

// Pipeline executes query endpoints: rate limiting, filter parsing,
// window resolution, caching, stampede control, and the circuit
// breaker around compute. No lock is held across compute or store
// I/O; cache mutexes guard only their own bookkeeping.
type Pipeline struct {
	store          Store
	responseCache  *cache.Metered[models.CachedResponse]
	modelCache     *cache.Metered[interface{}]
	limiter        *ratelimit.Limiter
	breaker        *gobreaker.CircuitBreaker[interface{}]
	flights        singleflight.Group
	responseTTL    time.Duration
	modelTTL       time.Duration
	trustForwarded bool
}

// PipelineConfig wires the pipeline's collaborators.
type PipelineConfig struct {
	Store         Store
	ResponseCache *cache.Metered[models.CachedResponse]
	ModelCache    *cache.Metered[interface{}]
	Limiter       *ratelimit.Limiter
	ResponseTTL   time.Duration
	ModelTTL      time.Duration

	// TrustForwarded lets X-Forwarded-For identify clients for rate
	// limiting. Off in production, where the header is spoofable.
	TrustForwarded bool
}

// NewPipeline creates the query pipeline with a shared compute breaker.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	responseTTL := cfg.ResponseTTL
	if responseTTL <= 0 {
		responseTTL = cache.DefaultResponseTTL
	}
	modelTTL := cfg.ModelTTL
	if modelTTL <= 0 {
		modelTTL = cache.DefaultModelTTL
	}

	return &Pipeline{
		store:          cfg.Store,
		responseCache:  cfg.ResponseCache,
		modelCache:     cfg.ModelCache,
		limiter:        cfg.Limiter,
		breaker:        newComputeBreaker(),
		responseTTL:    responseTTL,
		modelTTL:       modelTTL,
		trustForwarded: cfg.TrustForwarded,
	}
}

// newComputeBreaker builds the breaker shared by all query endpoints.
// It opens when at least 60% of 10+ requests in the interval failed,
// and probes with up to 3 requests after the timeout.
func newComputeBreaker() *gobreaker.CircuitBreaker[interface{}] {
	settings := gobreaker.Settings{
		Name:        "compute",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String())
			metrics.SetCircuitBreakerState(name, breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Compute breaker state change")
		},
	}
	return gobreaker.NewCircuitBreaker[interface{}](settings)
}

// breakerStateValue maps a breaker state to its gauge value.
func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Execute runs one query endpoint through the full pipeline.
func (p *Pipeline) Execute(w http.ResponseWriter, r *http.Request, endpoint, group string, build buildFunc) {
	resp := NewResponder(w, r)

	clientID := ratelimit.ClientID(r, p.trustForwarded)
	if d := p.limiter.Check(clientID, group); !d.Allowed {
		resp.RateLimited(d)
		return
	}

	values := r.URL.Query()
	params, err := query.ParseFilters(values)
	if err != nil {
		p.respondError(resp, endpoint, err)
		return
	}

	job, err := build(params, values)
	if err != nil {
		p.respondError(resp, endpoint, err)
		return
	}

	ctx := r.Context()
	scope := database.ScopeFromParams(params)

	// The data extent is computed on the non-time filters, so the
	// anchor reflects the filtered data, not the requested window.
	minT, maxT, err := p.store.DataTimeRange(ctx, scope)
	if err != nil {
		p.respondError(resp, endpoint, query.NewComputeFailure(endpoint, err))
		return
	}

	win := timewindow.Resolve(
		timewindow.Extent{Min: minT, Max: maxT},
		timewindow.Request{
			Start:            params.Start,
			End:              params.End,
			EndAloneAbsolute: job.endAloneAbsolute,
		},
	)

	respKey := query.ResponseKey(endpoint, params, win.Anchor, win.Start, win.End, job.extras)

	if cached, ok := p.responseCache.Get(respKey); ok {
		w.Header().Set("X-Cache", "HIT")
		windowMeta := cached.TimeWindow
		resp.Success(cached.Data, models.Metadata{
			TimeWindow:    &windowMeta,
			ResponseCache: p.cacheMeta(respKey, true, p.responseTTL),
		})
		return
	}
	w.Header().Set("X-Cache", "MISS")

	result, err, shared := p.flights.Do(respKey, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		return p.computeFlight(flightCtx, endpoint, params, scope, win, job, respKey)
	})
	if shared {
		metrics.RecordCoalescedRequest(endpoint)
	}
	if err != nil {
		p.respondError(resp, endpoint, err)
		return
	}

	fr := result.(*flightResult)
	resp.Success(fr.data, models.Metadata{
		QueryTimeMS:   fr.queryTimeMS,
		TimeWindow:    &fr.windowMeta,
		ResponseCache: p.cacheMeta(respKey, false, p.responseTTL),
		ModelCache:    fr.modelMeta,
	})
}

// computeFlight performs the cache-miss work: model artifact lookup,
// breaker-guarded compute, and cache population on success.
func (p *Pipeline) computeFlight(ctx context.Context, endpoint string, params *query.Params, scope database.Scope, win timewindow.Window, job *queryJob, respKey string) (*flightResult, error) {
	var artifact interface{}
	var modelMeta *models.CacheMeta
	var modelKey string

	if job.useModelCache {
		modelKey = query.ModelKey(endpoint, params, win.Anchor, win.Start, win.End, job.extras)
		cachedArtifact, hit := p.modelCache.Get(modelKey)
		if hit {
			artifact = cachedArtifact
		}
		modelMeta = p.cacheMeta(modelKey, hit, p.modelTTL)
	}

	started := time.Now()
	raw, err := p.breaker.Execute(func() (interface{}, error) {
		out, runErr := job.run(ctx, scope, win, artifact)
		if runErr != nil {
			return nil, runErr
		}
		return out, nil
	})
	elapsed := time.Since(started)
	metrics.RecordCompute(endpoint, elapsed, err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, query.NewComputeFailure(endpoint, err)
		}
		var cf *query.ComputeFailureError
		if errors.As(err, &cf) {
			return nil, err
		}
		return nil, query.NewComputeFailure(endpoint, err)
	}

	out := raw.(*computeOutput)

	if job.useModelCache && out.artifact != nil {
		p.modelCache.Set(modelKey, out.artifact)
	}

	windowMeta := out.windowMeta
	if windowMeta == nil {
		windowMeta = win.Meta()
	}

	p.responseCache.Set(respKey, models.CachedResponse{
		Data:       out.data,
		TimeWindow: *windowMeta,
	})

	return &flightResult{
		data:        out.data,
		windowMeta:  *windowMeta,
		modelMeta:   modelMeta,
		queryTimeMS: elapsed.Milliseconds(),
	}, nil
}

// respondError maps pipeline errors to the HTTP taxonomy.
func (p *Pipeline) respondError(resp *Responder, endpoint string, err error) {
	var invalid *query.InvalidParameterError
	if errors.As(err, &invalid) {
		resp.InvalidParameter(invalid)
		return
	}

	var cf *query.ComputeFailureError
	if errors.As(err, &cf) {
		logging.Error().Err(cf.Err).Str("endpoint", endpoint).Msg("Compute failed")
		resp.ComputeFailure(endpoint)
		return
	}

	logging.Error().Err(err).Str("endpoint", endpoint).Msg("Unhandled pipeline error")
	resp.InternalError("unexpected error")
}

// cacheMeta builds the cache disposition block for one cache lookup.
func (p *Pipeline) cacheMeta(key string, hit bool, ttl time.Duration) *models.CacheMeta {
	return &models.CacheMeta{
		Hit:        hit,
		KeyHash:    query.ShortHash(key),
		TTLSeconds: int(ttl.Seconds()),
	}
}
