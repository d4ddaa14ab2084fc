// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package compute

import (
	"context"
	"strconv"
	"time"

	"github.com/curbwatch/curbwatch/internal/database"
	"github.com/curbwatch/curbwatch/internal/timewindow"
)

// TimeseriesRequest carries the knobs of the timeseries endpoint.
type TimeseriesRequest struct {
	// Granularity is the bucket width, "hour" or "day".
	Granularity string

	// LimitHistory caps the number of returned buckets, keeping the most
	// recent ones.
	LimitHistory int
}

// DefaultTimeseriesRequest returns the endpoint defaults.
func DefaultTimeseriesRequest() TimeseriesRequest {
	return TimeseriesRequest{Granularity: GranularityHour, LimitHistory: 500}
}

// CacheExtras returns the endpoint-specific cache key material.
func (r TimeseriesRequest) CacheExtras() map[string]string {
	return map[string]string{
		"limit_history": strconv.Itoa(r.LimitHistory),
	}
}

// SeriesMeta counts the buckets in a series payload.
type SeriesMeta struct {
	Points int `json:"points"`
}

// TimeseriesResult is the timeseries endpoint payload.
type TimeseriesResult struct {
	Granularity string        `json:"granularity"`
	Series      []SeriesPoint `json:"series"`
	Meta        SeriesMeta    `json:"meta"`
}

// Timeseries returns the continuous bucketed count series for a scope.
func Timeseries(ctx context.Context, store Store, scope database.Scope, win timewindow.Window, req TimeseriesRequest) (*TimeseriesResult, error) {
	if win.Empty {
		return &TimeseriesResult{Granularity: req.Granularity, Series: []SeriesPoint{}}, nil
	}

	series, err := historySeries(ctx, store, scope, req.Granularity, req.LimitHistory)
	if err != nil {
		return nil, err
	}

	return &TimeseriesResult{
		Granularity: req.Granularity,
		Series:      series,
		Meta:        SeriesMeta{Points: len(series)},
	}, nil
}

// historySeries extracts the bucketed count series for a scope. Buckets
// missing from the store get an explicit zero so consumers always see a
// gap-free series; only the most recent limitHistory buckets are kept.
func historySeries(ctx context.Context, store Store, scope database.Scope, granularity string, limitHistory int) ([]SeriesPoint, error) {
	rows, err := store.TimeBuckets(ctx, scope, granularity)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []SeriesPoint{}, nil
	}

	counts := make(map[int64]int64, len(rows))
	for _, row := range rows {
		counts[row.Bucket.Unix()] = row.Count
	}

	step := stepFor(granularity)
	first := rows[0].Bucket.UTC()
	last := rows[len(rows)-1].Bucket.UTC()

	// Buckets older than the history limit can never be returned, so the
	// fill walk starts at the oldest bucket that survives it.
	start := first
	if limitHistory > 0 {
		if s := last.Add(-time.Duration(limitHistory-1) * step); s.After(start) {
			start = s
		}
	}

	series := make([]SeriesPoint, 0, int(last.Sub(start)/step)+1)
	for ts := start; !ts.After(last); ts = ts.Add(step) {
		series = append(series, SeriesPoint{TS: ts, Count: counts[ts.Unix()]})
	}
	return series, nil
}
