// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package compute

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/curbwatch/curbwatch/internal/database"
)

// mondaySpikeCounts builds five full weeks of daily counts starting on a
// Monday: 7 events every Monday, none otherwise.
func mondaySpikeCounts() []int64 {
	counts := make([]int64, 35)
	for i := range counts {
		if i%7 == 0 {
			counts[i] = 7
		}
	}
	return counts
}

func TestDefaultPredictRequest(t *testing.T) {
	t.Parallel()

	got := DefaultPredictRequest()
	want := PredictRequest{Granularity: GranularityHour, LimitHistory: 500}
	if got != want {
		t.Errorf("DefaultPredictRequest() = %+v, want %+v", got, want)
	}
}

func TestDayOfWeek(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ts   time.Time
		want int
	}{
		{name: "monday", ts: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), want: 0},
		{name: "wednesday", ts: time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC), want: 2},
		{name: "saturday", ts: time.Date(2026, 6, 6, 0, 0, 0, 0, time.UTC), want: 5},
		{name: "sunday", ts: time.Date(2026, 6, 7, 23, 0, 0, 0, time.UTC), want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := dayOfWeek(tt.ts); got != tt.want {
				t.Errorf("dayOfWeek(%v) = %d, want %d", tt.ts, got, tt.want)
			}
		})
	}
}

func TestShrunkFactor(t *testing.T) {
	t.Parallel()

	// Mean rate 2 over global 1, shrunk by three pseudo-observations:
	// (10 + 3*1) / (5 + 3) = 1.625.
	if got := shrunkFactor(10, 5, 1); got != 1.625 {
		t.Errorf("shrunkFactor(10, 5, 1) = %v, want 1.625", got)
	}
	// An unobserved cell is exactly the global rate.
	if got := shrunkFactor(0, 0, 2.5); got != 1 {
		t.Errorf("shrunkFactor(0, 0, 2.5) = %v, want 1", got)
	}
}

func TestInsufficientDataQuality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		events      int64
		days        int64
		wantRefusal bool
	}{
		{name: "thresholds met exactly", events: 30, days: 10, wantRefusal: false},
		{name: "ample activity", events: 500, days: 60, wantRefusal: false},
		{name: "one event short", events: 29, days: 10, wantRefusal: true},
		{name: "one day short", events: 30, days: 9, wantRefusal: true},
		{name: "no activity", events: 0, days: 0, wantRefusal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := insufficientDataQuality(tt.events, tt.days)
			if !tt.wantRefusal {
				if got != nil {
					t.Fatalf("insufficientDataQuality(%d, %d) = %+v, want nil", tt.events, tt.days, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("insufficientDataQuality(%d, %d) = nil, want refusal", tt.events, tt.days)
			}
			if got.Status != "insufficient_data" {
				t.Errorf("Status = %q, want %q", got.Status, "insufficient_data")
			}
			if got.TotalEventsLast90d != tt.events || got.NonzeroDaysLast90d != tt.days {
				t.Errorf("counts = %d/%d, want %d/%d",
					got.TotalEventsLast90d, got.NonzeroDaysLast90d, tt.events, tt.days)
			}
		})
	}
}

func TestInsufficientDataQuality_Reason(t *testing.T) {
	t.Parallel()

	got := insufficientDataQuality(10, 3)
	if got == nil {
		t.Fatal("insufficientDataQuality(10, 3) = nil, want refusal")
	}
	wantReason := "Low recent activity: 10 events, 3 nonzero days in last 90 days. Thresholds: >= 30 events, >= 10 nonzero days."
	if got.Reason != wantReason {
		t.Errorf("Reason = %q, want %q", got.Reason, wantReason)
	}
	if got.Recommendation != "Zoom out or choose a larger area for a more reliable forecast." {
		t.Errorf("Recommendation = %q", got.Recommendation)
	}
}

func TestRiskModel_FitUniform(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		granularity string
		step        time.Duration
		points      int
		count       int64
		wantGlobal  float64
	}{
		{name: "daily", granularity: GranularityDay, step: 24 * time.Hour, points: 35, count: 2, wantGlobal: 2},
		{name: "hourly", granularity: GranularityHour, step: time.Hour, points: 48, count: 3, wantGlobal: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			counts := make([]int64, tt.points)
			for i := range counts {
				counts[i] = tt.count
			}
			model := &RiskModel{Granularity: tt.granularity}
			model.fit(mkSeries(base, tt.step, counts...))

			if model.Global != tt.wantGlobal {
				t.Errorf("Global = %v, want %v", model.Global, tt.wantGlobal)
			}
			for d, f := range model.DowFactors {
				if f != 1 {
					t.Errorf("DowFactors[%d] = %v, want 1", d, f)
				}
			}
			for h, f := range model.HourFactors {
				if f != 1 {
					t.Errorf("HourFactors[%d] = %v, want 1", h, f)
				}
			}
			if got := model.Expected(base); got != tt.wantGlobal {
				t.Errorf("Expected(base) = %v, want %v", got, tt.wantGlobal)
			}
		})
	}
}

func TestRiskModel_FitSeasonal(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	model := &RiskModel{Granularity: GranularityDay}
	model.fit(mkSeries(base, 24*time.Hour, mondaySpikeCounts()...))

	if model.Global != 1 {
		t.Fatalf("Global = %v, want 1", model.Global)
	}
	// Monday: (35 + 3*1) / (5 + 3) = 4.75. Other days: 3/8 = 0.375.
	if model.DowFactors[0] != 4.75 {
		t.Errorf("DowFactors[monday] = %v, want 4.75", model.DowFactors[0])
	}
	for d := 1; d < 7; d++ {
		if model.DowFactors[d] != 0.375 {
			t.Errorf("DowFactors[%d] = %v, want 0.375", d, model.DowFactors[d])
		}
	}

	monday := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	tuesday := monday.Add(24 * time.Hour)
	if got := model.Expected(monday); got != 4.75 {
		t.Errorf("Expected(monday) = %v, want 4.75", got)
	}
	if got := model.Expected(tuesday); got != 0.375 {
		t.Errorf("Expected(tuesday) = %v, want 0.375", got)
	}
}

func TestRiskModel_FitZeroSeries(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	model := &RiskModel{Granularity: GranularityDay}
	model.fit(mkSeries(base, 24*time.Hour, make([]int64, 35)...))

	if model.Global != 0 {
		t.Fatalf("Global = %v, want 0", model.Global)
	}
	for d, f := range model.DowFactors {
		if f != 1 {
			t.Errorf("DowFactors[%d] = %v, want 1", d, f)
		}
	}
	if got := model.Expected(base); got != 0 {
		t.Errorf("Expected(base) = %v, want 0", got)
	}
}

func TestRiskModel_Backtest(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	history := mkSeries(base, 24*time.Hour, mondaySpikeCounts()...)
	model := &RiskModel{Granularity: GranularityDay}
	model.fit(history)

	got := model.backtest(history)
	// The last seven days hold one Monday (error 2.25) and six zero days
	// (error 0.375 each): MAE 4.5/7, MAPE mean of 2.25/7 and 0.375/1.
	want := BacktestResult{TestPoints: 7, MAE: 0.6429, MAPE: 36.7347}
	if got != want {
		t.Errorf("backtest() = %+v, want %+v", got, want)
	}
}

func TestRiskModel_BacktestShortSeries(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	history := mkSeries(base, 24*time.Hour, 1, 2, 3, 4, 5)
	model := &RiskModel{Granularity: GranularityDay}
	model.fit(history)

	if got := model.backtest(history); got != (BacktestResult{}) {
		t.Errorf("backtest() = %+v, want zero result for five points", got)
	}
}

func TestPredict_FullPipeline(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	lastDay := base.Add(34 * 24 * time.Hour)
	store := &mockStore{
		activity: database.ActivityRow{TotalEvents: 35, NonzeroDays: 35},
		buckets:  mkBuckets(base, 24*time.Hour, mondaySpikeCounts()...),
	}
	win := anchoredWindow(base, lastDay)
	req := PredictRequest{Granularity: GranularityDay, Horizon: 3, LimitHistory: 500}

	got, model, err := Predict(context.Background(), store, database.Scope{}, win, req, nil)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if store.activityCalls != 1 || store.bucketsCalls != 1 {
		t.Errorf("store calls = %d/%d, want 1/1", store.activityCalls, store.bucketsCalls)
	}

	if got.DataQuality != nil {
		t.Fatalf("DataQuality = %+v, want nil", got.DataQuality)
	}
	if got.Model == nil {
		t.Fatal("Model is nil")
	}
	wantModel := PredictModelInfo{Name: "seasonal_rates", Features: []string{"dow"}, TrainPoints: 35}
	if !reflect.DeepEqual(*got.Model, wantModel) {
		t.Errorf("Model = %+v, want %+v", *got.Model, wantModel)
	}
	if got.Backtest == nil || *got.Backtest != (BacktestResult{TestPoints: 7, MAE: 0.6429, MAPE: 36.7347}) {
		t.Errorf("Backtest = %+v, want seven-point tail errors", got.Backtest)
	}

	// The day after the last trained Sunday is a Monday.
	wantPredictions := []PredictedPoint{
		{TS: lastDay.Add(24 * time.Hour), Expected: 4.75, ExpectedRounded: 5},
		{TS: lastDay.Add(48 * time.Hour), Expected: 0.375, ExpectedRounded: 0},
		{TS: lastDay.Add(72 * time.Hour), Expected: 0.375, ExpectedRounded: 0},
	}
	if !reflect.DeepEqual(got.Predictions, wantPredictions) {
		t.Errorf("Predictions = %+v, want %+v", got.Predictions, wantPredictions)
	}
	if got.Meta.HistoryPoints != 35 || got.Meta.ForecastPoints != 3 {
		t.Errorf("Meta = %+v, want {35 3}", got.Meta)
	}

	if model == nil {
		t.Fatal("artifact is nil")
	}
	if !model.LastTS.Equal(lastDay) {
		t.Errorf("artifact LastTS = %v, want %v", model.LastTS, lastDay)
	}
}

func TestPredict_SufficiencyGuard(t *testing.T) {
	t.Parallel()

	dataMin := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	anchor := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	store := &mockStore{activity: database.ActivityRow{TotalEvents: 10, NonzeroDays: 3}}
	req := PredictRequest{Granularity: GranularityHour, LimitHistory: 500}

	got, model, err := Predict(context.Background(), store, database.Scope{}, anchoredWindow(dataMin, anchor), req, nil)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if store.activityCalls != 1 {
		t.Errorf("activityCalls = %d, want 1", store.activityCalls)
	}
	if store.bucketsCalls != 0 {
		t.Errorf("bucketsCalls = %d, want 0 after refusal", store.bucketsCalls)
	}
	// Activity is measured over the 90 days before the anchor.
	assertScopeWindow(t, "activity", store.activityScopes[0], anchor.Add(-90*24*time.Hour), anchor)

	if got.DataQuality == nil {
		t.Fatal("DataQuality is nil, want refusal block")
	}
	if got.DataQuality.TotalEventsLast90d != 10 || got.DataQuality.NonzeroDaysLast90d != 3 {
		t.Errorf("DataQuality counts = %d/%d, want 10/3",
			got.DataQuality.TotalEventsLast90d, got.DataQuality.NonzeroDaysLast90d)
	}
	if got.Model != nil || got.Backtest != nil {
		t.Errorf("Model/Backtest = %+v/%+v, want nil/nil", got.Model, got.Backtest)
	}
	if got.Predictions == nil || len(got.Predictions) != 0 {
		t.Errorf("Predictions = %v, want empty slice", got.Predictions)
	}

	// The refusal is part of the artifact so it caches like a fit.
	if model == nil || model.DataQuality == nil {
		t.Errorf("artifact = %+v, want cached refusal", model)
	}
}

func TestPredict_InsufficientHistory(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &mockStore{
		activity: database.ActivityRow{TotalEvents: 100, NonzeroDays: 20},
		buckets:  mkBuckets(base, 24*time.Hour, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10),
	}
	req := PredictRequest{Granularity: GranularityDay, LimitHistory: 500}

	got, _, err := Predict(context.Background(), store, database.Scope{}, anchoredWindow(base, base.Add(9*24*time.Hour)), req, nil)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if got.Model == nil || !got.Model.InsufficientData {
		t.Fatalf("Model = %+v, want insufficient-data flag", got.Model)
	}
	if got.Model.TrainPoints != 10 {
		t.Errorf("TrainPoints = %d, want 10", got.Model.TrainPoints)
	}
	if got.Backtest != nil {
		t.Errorf("Backtest = %+v, want nil", got.Backtest)
	}
	if len(got.Predictions) != 0 {
		t.Errorf("Predictions len = %d, want 0", len(got.Predictions))
	}
}

func TestPredict_ReusesArtifact(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &mockStore{}
	artifact := &RiskModel{
		Granularity:   GranularityHour,
		Global:        2,
		TrainPoints:   40,
		HistoryPoints: 40,
		LastTS:        base,
		Backtest:      BacktestResult{TestPoints: 8, MAE: 0.5, MAPE: 25},
	}
	for i := range artifact.DowFactors {
		artifact.DowFactors[i] = 1
	}
	for i := range artifact.HourFactors {
		artifact.HourFactors[i] = 1
	}
	req := PredictRequest{Granularity: GranularityHour, Horizon: 2, LimitHistory: 500}

	got, model, err := Predict(context.Background(), store, database.Scope{}, anchoredWindow(base.Add(-time.Hour), base), req, artifact)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if store.activityCalls != 0 || store.bucketsCalls != 0 {
		t.Errorf("store calls = %d/%d, want 0/0 when reusing artifact",
			store.activityCalls, store.bucketsCalls)
	}
	if model != artifact {
		t.Error("returned artifact is not the provided one")
	}
	if got.Model == nil || got.Model.TrainPoints != 40 {
		t.Fatalf("Model = %+v, want artifact train points", got.Model)
	}
	if !reflect.DeepEqual(got.Model.Features, []string{"dow", "hour"}) {
		t.Errorf("Features = %v, want [dow hour]", got.Model.Features)
	}
	if got.Backtest == nil || got.Backtest.TestPoints != 8 {
		t.Errorf("Backtest = %+v, want artifact backtest", got.Backtest)
	}

	wantPredictions := []PredictedPoint{
		{TS: base.Add(time.Hour), Expected: 2, ExpectedRounded: 2},
		{TS: base.Add(2 * time.Hour), Expected: 2, ExpectedRounded: 2},
	}
	if !reflect.DeepEqual(got.Predictions, wantPredictions) {
		t.Errorf("Predictions = %+v, want %+v", got.Predictions, wantPredictions)
	}
}

func TestPredict_EmptyWindow(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	req := PredictRequest{Granularity: GranularityHour, LimitHistory: 500}

	got, model, err := Predict(context.Background(), store, database.Scope{}, emptyWindow(), req, nil)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if store.activityCalls != 0 || store.bucketsCalls != 0 {
		t.Errorf("store calls = %d/%d, want 0/0", store.activityCalls, store.bucketsCalls)
	}
	if got.DataQuality == nil {
		t.Fatal("DataQuality is nil, want refusal block")
	}
	if got.DataQuality.TotalEventsLast90d != 0 || got.DataQuality.NonzeroDaysLast90d != 0 {
		t.Errorf("DataQuality counts = %d/%d, want 0/0",
			got.DataQuality.TotalEventsLast90d, got.DataQuality.NonzeroDaysLast90d)
	}
	if model == nil || model.DataQuality == nil {
		t.Errorf("artifact = %+v, want cached refusal", model)
	}
}

func TestPredict_DefaultHorizon(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	artifact := &RiskModel{Granularity: GranularityHour, Global: 1, LastTS: base, TrainPoints: 40, HistoryPoints: 40}
	for i := range artifact.DowFactors {
		artifact.DowFactors[i] = 1
	}
	for i := range artifact.HourFactors {
		artifact.HourFactors[i] = 1
	}
	req := PredictRequest{Granularity: GranularityHour, LimitHistory: 500}

	got, _, err := Predict(context.Background(), &mockStore{}, database.Scope{}, anchoredWindow(base.Add(-time.Hour), base), req, artifact)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if len(got.Predictions) != 24 {
		t.Errorf("Predictions len = %d, want 24", len(got.Predictions))
	}
	if got.Meta.ForecastPoints != 24 {
		t.Errorf("Meta.ForecastPoints = %d, want 24", got.Meta.ForecastPoints)
	}
}

func TestPredict_StoreErrors(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	wantErr := errors.New("query failed")

	tests := []struct {
		name  string
		store *mockStore
	}{
		{name: "activity error", store: &mockStore{activityErr: wantErr}},
		{
			name: "buckets error",
			store: &mockStore{
				activity:   database.ActivityRow{TotalEvents: 100, NonzeroDays: 20},
				bucketsErr: wantErr,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := Predict(context.Background(), tt.store, database.Scope{}, anchoredWindow(base, base.Add(24*time.Hour)), PredictRequest{Granularity: GranularityDay, LimitHistory: 500}, nil)
			if !errors.Is(err, wantErr) {
				t.Fatalf("Predict() error = %v, want %v", err, wantErr)
			}
		})
	}
}
