// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package compute

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/curbwatch/curbwatch/internal/database"
	"github.com/curbwatch/curbwatch/internal/timewindow"
)

// riskModelName identifies the seasonal-rate model in payloads.
const riskModelName = "seasonal_rates"

// Data sufficiency guard: the fit is refused when the scope saw fewer
// than minSufficientEvents events, or events on fewer than
// minSufficientDays distinct days, within sufficiencyDays of the anchor.
const (
	sufficiencyDays     = 90
	minSufficientEvents = 30
	minSufficientDays   = 10
)

// minTrainPoints is the minimum history length the fit accepts.
const minTrainPoints = 30

// smoothingWeight is the pseudo-observation mass mixed into each seasonal
// factor at the global rate. Sparse cells (an hour of a weekday seen only
// once or twice) shrink toward 1 instead of producing extreme factors.
const smoothingWeight = 3.0

// PredictRequest carries the knobs of the predict endpoint.
type PredictRequest struct {
	Granularity string

	// Horizon is the number of future buckets to score. Zero means the
	// granularity default (24 hourly, 7 daily).
	Horizon int

	LimitHistory int
}

// DefaultPredictRequest returns the endpoint defaults.
func DefaultPredictRequest() PredictRequest {
	return PredictRequest{Granularity: GranularityHour, LimitHistory: 500}
}

// CacheExtras returns the endpoint-specific cache key material.
func (r PredictRequest) CacheExtras() map[string]string {
	return map[string]string{
		"horizon":       strconv.Itoa(r.Horizon),
		"limit_history": strconv.Itoa(r.LimitHistory),
	}
}

// RiskModel is the fitted seasonal-rate artifact: a global mean bucket
// rate with multiplicative day-of-week and hour-of-day factors.
//
// The expected count for a bucket is
//
//	expected = global * dowFactor[dow] * hourFactor[hour]
//
// where each factor is the shrunk bucket-mean of its cell over the global
// mean (see shrunkFactor). Daily series carry identity hour factors.
type RiskModel struct {
	Granularity string
	Global      float64
	DowFactors  [7]float64
	HourFactors [24]float64

	TrainPoints   int
	HistoryPoints int
	LastTS        time.Time
	Backtest      BacktestResult

	// Insufficient marks a history shorter than minTrainPoints.
	Insufficient bool
	// DataQuality is set when the sufficiency guard refused the fit.
	DataQuality *DataQuality
}

// DataQuality flags a scope whose recent activity is too thin for a
// trustworthy fit.
type DataQuality struct {
	Status             string `json:"status"`
	Reason             string `json:"reason"`
	TotalEventsLast90d int64  `json:"total_events_last_90d"`
	NonzeroDaysLast90d int64  `json:"nonzero_days_last_90d"`
	Recommendation     string `json:"recommendation"`
}

// BacktestResult reports the model's error on the series tail.
type BacktestResult struct {
	TestPoints int     `json:"test_points"`
	MAE        float64 `json:"mae"`
	MAPE       float64 `json:"mape"`
}

// PredictedPoint is one scored future bucket.
type PredictedPoint struct {
	TS              time.Time `json:"ts"`
	Expected        float64   `json:"expected"`
	ExpectedRounded int64     `json:"expected_rounded"`
}

// PredictModelInfo describes the model block of the payload.
type PredictModelInfo struct {
	Name             string   `json:"name"`
	Features         []string `json:"features"`
	TrainPoints      int      `json:"train_points"`
	InsufficientData bool     `json:"insufficient_data"`
}

// PredictMeta counts the buckets on each side of the projection.
type PredictMeta struct {
	HistoryPoints  int `json:"history_points"`
	ForecastPoints int `json:"forecast_points"`
}

// PredictResult is the predict endpoint payload. Model and Backtest are
// absent when the sufficiency guard refused the fit; DataQuality is
// present only in that case.
type PredictResult struct {
	Granularity string            `json:"granularity"`
	Model       *PredictModelInfo `json:"model,omitempty"`
	Backtest    *BacktestResult   `json:"backtest,omitempty"`
	DataQuality *DataQuality      `json:"data_quality,omitempty"`
	Predictions []PredictedPoint  `json:"predictions"`
	Meta        PredictMeta       `json:"meta"`
}

// Predict fits the seasonal-rate model over the scope's history and
// scores the next req.Horizon buckets. A non-nil artifact from a
// previous fit over the same key is reused instead of re-extracting and
// re-fitting.
func Predict(ctx context.Context, store Store, scope database.Scope, win timewindow.Window, req PredictRequest, artifact *RiskModel) (*PredictResult, *RiskModel, error) {
	if req.Horizon <= 0 {
		req.Horizon = DefaultHorizon(req.Granularity)
	}

	model := artifact
	if model == nil {
		m, err := fitRiskModel(ctx, store, scope, win, req)
		if err != nil {
			return nil, nil, err
		}
		model = m
	}

	result := &PredictResult{
		Granularity: req.Granularity,
		Predictions: []PredictedPoint{},
		Meta:        PredictMeta{HistoryPoints: model.HistoryPoints},
	}

	if model.DataQuality != nil {
		result.DataQuality = model.DataQuality
		return result, model, nil
	}

	result.Model = &PredictModelInfo{
		Name:             riskModelName,
		Features:         model.features(),
		TrainPoints:      model.TrainPoints,
		InsufficientData: model.Insufficient,
	}
	if model.Insufficient {
		return result, model, nil
	}

	result.Backtest = &model.Backtest
	result.Predictions = model.predictFuture(req.Granularity, req.Horizon)
	result.Meta.ForecastPoints = len(result.Predictions)
	return result, model, nil
}

// fitRiskModel runs the sufficiency guard, extracts the history and fits
// the seasonal factors.
func fitRiskModel(ctx context.Context, store Store, scope database.Scope, win timewindow.Window, req PredictRequest) (*RiskModel, error) {
	model := &RiskModel{Granularity: req.Granularity}

	if win.Empty || win.Anchor == nil {
		model.DataQuality = insufficientDataQuality(0, 0)
		return model, nil
	}

	anchor := *win.Anchor
	activityScope := scope.WithWindow(anchor.Add(-dayLength(sufficiencyDays)), anchor)
	activity, err := store.RecentActivity(ctx, activityScope)
	if err != nil {
		return nil, err
	}
	if dq := insufficientDataQuality(activity.TotalEvents, activity.NonzeroDays); dq != nil {
		model.DataQuality = dq
		return model, nil
	}

	history, err := historySeries(ctx, store, scope, req.Granularity, req.LimitHistory)
	if err != nil {
		return nil, err
	}
	model.HistoryPoints = len(history)
	model.TrainPoints = len(history)

	if len(history) < minTrainPoints {
		model.Insufficient = true
		return model, nil
	}

	model.LastTS = history[len(history)-1].TS
	model.fit(history)
	model.Backtest = model.backtest(history)
	return model, nil
}

// insufficientDataQuality returns the guard block when recent activity is
// below the thresholds, nil otherwise.
func insufficientDataQuality(totalEvents, nonzeroDays int64) *DataQuality {
	if totalEvents >= minSufficientEvents && nonzeroDays >= minSufficientDays {
		return nil
	}
	return &DataQuality{
		Status: "insufficient_data",
		Reason: fmt.Sprintf(
			"Low recent activity: %d events, %d nonzero days in last %d days. Thresholds: >= %d events, >= %d nonzero days.",
			totalEvents, nonzeroDays, sufficiencyDays, minSufficientEvents, minSufficientDays),
		TotalEventsLast90d: totalEvents,
		NonzeroDaysLast90d: nonzeroDays,
		Recommendation:     "Zoom out or choose a larger area for a more reliable forecast.",
	}
}

func (m *RiskModel) features() []string {
	if m.Granularity == GranularityHour {
		return []string{"dow", "hour"}
	}
	return []string{"dow"}
}

// fit estimates the global rate and the seasonal factors from a gap-free
// series.
func (m *RiskModel) fit(history []SeriesPoint) {
	m.Global = mean(seriesCounts(history))

	// A zero global rate would divide out in shrunkFactor; all factors
	// stay at identity and every expectation is zero.
	if m.Global == 0 {
		for i := range m.DowFactors {
			m.DowFactors[i] = 1
		}
		for i := range m.HourFactors {
			m.HourFactors[i] = 1
		}
		return
	}

	var dowSum, dowN [7]float64
	var hourSum, hourN [24]float64
	for _, p := range history {
		d := dayOfWeek(p.TS)
		dowSum[d] += float64(p.Count)
		dowN[d]++
		if m.Granularity == GranularityHour {
			h := p.TS.Hour()
			hourSum[h] += float64(p.Count)
			hourN[h]++
		}
	}

	for i := range m.DowFactors {
		m.DowFactors[i] = shrunkFactor(dowSum[i], dowN[i], m.Global)
	}
	for i := range m.HourFactors {
		if m.Granularity == GranularityHour {
			m.HourFactors[i] = shrunkFactor(hourSum[i], hourN[i], m.Global)
		} else {
			m.HourFactors[i] = 1
		}
	}
}

// shrunkFactor is the cell's mean rate over the global rate, with
// smoothingWeight pseudo-observations at the global rate mixed in. An
// unobserved cell gets exactly 1.
func shrunkFactor(sum, n, global float64) float64 {
	rate := (sum + smoothingWeight*global) / (n + smoothingWeight)
	return rate / global
}

// Expected returns the model's expected count for a bucket timestamp.
func (m *RiskModel) Expected(ts time.Time) float64 {
	e := m.Global * m.DowFactors[dayOfWeek(ts)]
	if m.Granularity == GranularityHour {
		e *= m.HourFactors[ts.Hour()]
	}
	if e < 0 {
		return 0
	}
	return e
}

// backtest evaluates the fitted model on the series tail: the last 20%
// of points, at least 5. MAPE uses max(actual, 1) as the denominator.
func (m *RiskModel) backtest(history []SeriesPoint) BacktestResult {
	n := len(history)
	testSize := n / 5
	if testSize < 5 {
		testSize = 5
	}
	if n < testSize+1 {
		return BacktestResult{}
	}

	var absErrSum, pctErrSum float64
	for _, p := range history[n-testSize:] {
		diff := math.Abs(m.Expected(p.TS) - float64(p.Count))
		absErrSum += diff
		denom := float64(p.Count)
		if denom < 1 {
			denom = 1
		}
		pctErrSum += diff / denom
	}
	return BacktestResult{
		TestPoints: testSize,
		MAE:        roundTo(absErrSum/float64(testSize), 4),
		MAPE:       roundTo(pctErrSum/float64(testSize)*100.0, 4),
	}
}

// predictFuture scores the horizon buckets after the last trained
// timestamp.
func (m *RiskModel) predictFuture(granularity string, horizon int) []PredictedPoint {
	step := stepFor(granularity)
	out := make([]PredictedPoint, 0, horizon)
	for i := 1; i <= horizon; i++ {
		ts := m.LastTS.Add(time.Duration(i) * step)
		expected := m.Expected(ts)
		rounded := int64(math.Round(expected))
		if rounded < 0 {
			rounded = 0
		}
		out = append(out, PredictedPoint{
			TS:              ts,
			Expected:        roundTo(expected, 4),
			ExpectedRounded: rounded,
		})
	}
	return out
}

// dayOfWeek maps a timestamp to 0=Monday .. 6=Sunday.
func dayOfWeek(ts time.Time) int {
	return (int(ts.Weekday()) + 6) % 7
}
