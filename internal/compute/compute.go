// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package compute

import (
	"context"
	"math"
	"time"

	"github.com/curbwatch/curbwatch/internal/database"
)

// Granularity values accepted by the bucketed endpoints.
const (
	GranularityHour = "hour"
	GranularityDay  = "day"
)

// metersPerDegree is the approximate ground length of one degree of
// latitude in WGS84, used to convert metric cell sizes to grid degrees.
const metersPerDegree = 111320.0

// Store is the read-only event store surface the computations run against.
// *database.DB satisfies it; tests substitute fakes.
type Store interface {
	Totals(ctx context.Context, scope database.Scope) (database.TotalsRow, error)
	TopTypes(ctx context.Context, scope database.Scope, limit int) ([]database.TypeCount, error)
	TimeBuckets(ctx context.Context, scope database.Scope, interval string) ([]database.TimeBucket, error)
	HourOfDayCounts(ctx context.Context, scope database.Scope) ([]database.HourCount, error)
	GridCellCounts(ctx context.Context, scope database.Scope, sizeDeg float64) ([]database.GridCell, error)
	RecentActivity(ctx context.Context, scope database.Scope) (database.ActivityRow, error)
}

// SeriesPoint is one bucket of a violation-count time series.
type SeriesPoint struct {
	TS    time.Time `json:"ts"`
	Count int64     `json:"count"`
}

// stepFor returns the bucket width for a granularity. Buckets are UTC, so
// a day is always exactly 24 hours.
func stepFor(granularity string) time.Duration {
	if granularity == GranularityDay {
		return 24 * time.Hour
	}
	return time.Hour
}

// DefaultHorizon returns the forecast horizon used when the request does
// not carry one: one day of hourly buckets, or one week of daily buckets.
func DefaultHorizon(granularity string) int {
	if granularity == GranularityDay {
		return 7
	}
	return 24
}

// roundTo rounds v to the given number of decimal places, half away from
// zero.
func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// mean returns the arithmetic mean of counts, or 0 for an empty slice.
func mean(counts []int64) float64 {
	if len(counts) == 0 {
		return 0
	}
	var sum int64
	for _, c := range counts {
		sum += c
	}
	return float64(sum) / float64(len(counts))
}

// pstdev returns the population standard deviation of counts, or 0 when
// fewer than two values are present.
func pstdev(counts []int64) float64 {
	if len(counts) < 2 {
		return 0
	}
	m := mean(counts)
	var ss float64
	for _, c := range counts {
		d := float64(c) - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(counts)))
}

// seriesCounts extracts the count column from a series.
func seriesCounts(series []SeriesPoint) []int64 {
	counts := make([]int64, len(series))
	for i, p := range series {
		counts[i] = p.Count
	}
	return counts
}
