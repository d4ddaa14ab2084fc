// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package compute

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/curbwatch/curbwatch/internal/database"
	"github.com/curbwatch/curbwatch/internal/timewindow"
)

// flatSlopeThreshold is the absolute per-bucket slope below which a trend
// is reported as flat.
const flatSlopeThreshold = 0.05

// TrendsRequest carries the knobs of the trends endpoint.
type TrendsRequest struct {
	Granularity string

	// Window is the bucket count of the recent period; the previous
	// period of the same length is the comparison baseline.
	Window int

	// AnomalyZ is the z-score threshold for anomaly detection.
	AnomalyZ float64

	LimitHistory int
}

// DefaultTrendsRequest returns the endpoint defaults.
func DefaultTrendsRequest() TrendsRequest {
	return TrendsRequest{Granularity: GranularityDay, Window: 14, AnomalyZ: 2.5, LimitHistory: 500}
}

// CacheExtras returns the endpoint-specific cache key material.
func (r TrendsRequest) CacheExtras() map[string]string {
	return map[string]string{
		"window":        strconv.Itoa(r.Window),
		"anomaly_z":     strconv.FormatFloat(r.AnomalyZ, 'f', -1, 64),
		"limit_history": strconv.Itoa(r.LimitHistory),
	}
}

// Anomaly is one bucket whose count deviates from the reference window by
// at least the requested z-score.
type Anomaly struct {
	TS    time.Time `json:"ts"`
	Count int64     `json:"count"`
	Z     float64   `json:"z"`
}

// TrendsMetrics is the trend block of the payload.
//
// RecentMean and PrevMean compare the last Window buckets against the
// Window buckets before them. Slope is the linear fit over the recent
// buckets; Volatility their population standard deviation. PrevMeanZero
// marks the degenerate comparison where the previous period had no
// events, in which case PctChange is pinned to 100.
type TrendsMetrics struct {
	Window           int       `json:"window"`
	RecentMean       float64   `json:"recent_mean"`
	PrevMean         float64   `json:"prev_mean"`
	PctChange        float64   `json:"pct_change"`
	Slope            float64   `json:"slope"`
	TrendDirection   string    `json:"trend_direction"`
	Volatility       float64   `json:"volatility"`
	Anomalies        []Anomaly `json:"anomalies"`
	InsufficientData bool      `json:"insufficient_data"`
	PointsUsed       int       `json:"points_used"`
	PrevMeanZero     bool      `json:"prev_mean_zero,omitempty"`
}

// HistoryMeta counts the history buckets a computation consumed.
type HistoryMeta struct {
	HistoryPoints int `json:"history_points"`
}

// TrendsResult is the trends endpoint payload.
type TrendsResult struct {
	Granularity string        `json:"granularity"`
	Trends      TrendsMetrics `json:"trends"`
	Meta        HistoryMeta   `json:"meta"`
}

// Trends computes the trend metrics for a scope's count series.
func Trends(ctx context.Context, store Store, scope database.Scope, win timewindow.Window, req TrendsRequest) (*TrendsResult, error) {
	if win.Empty {
		return &TrendsResult{
			Granularity: req.Granularity,
			Trends:      insufficientTrends(req.Window, 0),
		}, nil
	}

	history, err := historySeries(ctx, store, scope, req.Granularity, req.LimitHistory)
	if err != nil {
		return nil, err
	}

	return &TrendsResult{
		Granularity: req.Granularity,
		Trends:      trendMetrics(history, req.Window, req.AnomalyZ),
		Meta:        HistoryMeta{HistoryPoints: len(history)},
	}, nil
}

// trendMetrics computes the trend block from a gap-free series. Only the
// last 2*window buckets participate; series shorter than window report
// insufficient data.
func trendMetrics(history []SeriesPoint, window int, anomalyZ float64) TrendsMetrics {
	n := len(history)
	if n < window {
		return insufficientTrends(window, n)
	}

	counts := seriesCounts(history)
	use := counts
	if n >= 2*window {
		use = counts[n-2*window:]
	}

	recent := use[len(use)-window:]
	var prev []int64
	switch {
	case len(use) >= 2*window:
		prev = use[len(use)-2*window : len(use)-window]
	case len(use) > window:
		prev = use[:len(use)-window]
	}

	recentMean := mean(recent)
	prevMean := mean(prev)

	prevMeanZero := prevMean == 0 && recentMean > 0
	var pctChange float64
	if prevMeanZero {
		pctChange = 100.0
	} else {
		pctChange = (recentMean - prevMean) / math.Max(prevMean, 1e-9) * 100.0
	}

	slope := linearSlope(recent)
	direction := "flat"
	if slope > flatSlopeThreshold {
		direction = "up"
	} else if slope < -flatSlopeThreshold {
		direction = "down"
	}

	pointsUsed := 2 * window
	if n < pointsUsed {
		pointsUsed = n
	}

	return TrendsMetrics{
		Window:           window,
		RecentMean:       roundTo(recentMean, 4),
		PrevMean:         roundTo(prevMean, 4),
		PctChange:        roundTo(pctChange, 4),
		Slope:            roundTo(slope, 6),
		TrendDirection:   direction,
		Volatility:       roundTo(pstdev(recent), 4),
		Anomalies:        detectAnomalies(history, counts, use, window, anomalyZ),
		PointsUsed:       pointsUsed,
		PrevMeanZero:     prevMeanZero,
	}
}

func insufficientTrends(window, pointsUsed int) TrendsMetrics {
	return TrendsMetrics{
		Window:           window,
		TrendDirection:   "flat",
		Anomalies:        []Anomaly{},
		InsufficientData: true,
		PointsUsed:       pointsUsed,
	}
}

// linearSlope fits y = a + b*x over x = 0..n-1 and returns b, the mean
// count change per bucket.
func linearSlope(counts []int64) float64 {
	n := len(counts)
	if n < 2 {
		return 0
	}
	meanX := float64(n-1) / 2
	meanY := mean(counts)
	var cov, varX float64
	for i, c := range counts {
		dx := float64(i) - meanX
		cov += dx * (float64(c) - meanY)
		varX += dx * dx
	}
	if varX == 0 {
		return 0
	}
	return cov / varX
}

// detectAnomalies z-scores the last min(window, 10) buckets against the
// mean and deviation of the reference window and returns those meeting
// the threshold.
func detectAnomalies(history []SeriesPoint, counts, use []int64, window int, anomalyZ float64) []Anomaly {
	anomalies := []Anomaly{}

	ref := use
	if len(use) >= window {
		ref = use[len(use)-window:]
	}
	if len(ref) < 2 {
		return anomalies
	}
	refMean := mean(ref)
	refStd := pstdev(ref)
	if refStd == 0 {
		return anomalies
	}

	tail := window
	if tail > 10 {
		tail = 10
	}
	n := len(counts)
	for j := 0; j < tail; j++ {
		idx := n - tail + j
		if idx < 0 {
			continue
		}
		z := (float64(counts[idx]) - refMean) / refStd
		if math.Abs(z) >= anomalyZ {
			anomalies = append(anomalies, Anomaly{
				TS:    history[idx].TS,
				Count: counts[idx],
				Z:     roundTo(z, 4),
			})
		}
	}
	return anomalies
}
