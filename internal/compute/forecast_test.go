// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package compute

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/curbwatch/curbwatch/internal/database"
)

func TestDefaultForecastRequest(t *testing.T) {
	t.Parallel()

	got := DefaultForecastRequest()
	want := ForecastRequest{
		Granularity:  GranularityHour,
		Model:        ModelMA,
		Window:       6,
		Alpha:        0.3,
		LimitHistory: 500,
	}
	if got != want {
		t.Errorf("DefaultForecastRequest() = %+v, want %+v", got, want)
	}
}

func TestFitForecast(t *testing.T) {
	t.Parallel()

	counts := []int64{1, 2, 3, 4, 5, 7}

	tests := []struct {
		name    string
		counts  []int64
		model   string
		window  int
		alpha   float64
		want    float64
		wantErr bool
	}{
		{name: "naive takes the last count", counts: counts, model: ModelNaive, want: 7},
		{name: "ma averages the window tail", counts: counts, model: ModelMA, window: 4, want: 4.75},
		{name: "ma clamps window to series length", counts: counts, model: ModelMA, window: 10, want: 22.0 / 6.0},
		{name: "ewm folds over the full series", counts: counts, model: ModelEWM, alpha: 0.5, want: 5.53125},
		{name: "empty series fits zero", counts: nil, model: ModelMA, window: 4, want: 0},
		{name: "unknown model", counts: counts, model: "arima", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := fitForecast(tt.counts, tt.model, tt.window, tt.alpha)
			if tt.wantErr {
				if err == nil {
					t.Fatal("fitForecast() error = nil, want error")
				}
				if !strings.Contains(err.Error(), "unsupported forecast model") {
					t.Errorf("fitForecast() error = %v, want unsupported model error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("fitForecast() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("fitForecast() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForecast_ProjectsFromHistory(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &mockStore{buckets: mkBuckets(base, time.Hour, 1, 2, 3, 4, 5, 7)}
	win := anchoredWindow(base, base.Add(5*time.Hour))
	req := ForecastRequest{
		Granularity:  GranularityHour,
		Model:        ModelMA,
		Window:       4,
		Alpha:        0.3,
		Horizon:      3,
		LimitHistory: 500,
	}

	got, model, err := Forecast(context.Background(), store, database.Scope{}, win, req, nil)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}

	wantInfo := ForecastModelInfo{Name: ModelMA, Window: 4, Alpha: 0.3, Horizon: 3}
	if got.Model != wantInfo {
		t.Errorf("Model = %+v, want %+v", got.Model, wantInfo)
	}
	if len(got.History) != 6 {
		t.Fatalf("History len = %d, want 6", len(got.History))
	}

	// Mean of the last four counts is 4.75, rounding to 5 per bucket.
	wantForecast := []SeriesPoint{
		{TS: base.Add(6 * time.Hour), Count: 5},
		{TS: base.Add(7 * time.Hour), Count: 5},
		{TS: base.Add(8 * time.Hour), Count: 5},
	}
	if !reflect.DeepEqual(got.Forecast, wantForecast) {
		t.Errorf("Forecast = %+v, want %+v", got.Forecast, wantForecast)
	}
	if got.Meta.HistoryPoints != 6 || got.Meta.ForecastPoints != 3 {
		t.Errorf("Meta = %+v, want {6 3}", got.Meta)
	}

	if model == nil {
		t.Fatal("artifact is nil, want fitted model")
	}
	if model.Fitted != 4.75 {
		t.Errorf("artifact Fitted = %v, want 4.75", model.Fitted)
	}
	if len(model.History) != 6 {
		t.Errorf("artifact History len = %d, want 6", len(model.History))
	}
}

func TestForecast_DefaultHorizon(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		granularity string
		step        time.Duration
		wantPoints  int
	}{
		{name: "hourly defaults to a day", granularity: GranularityHour, step: time.Hour, wantPoints: 24},
		{name: "daily defaults to a week", granularity: GranularityDay, step: 24 * time.Hour, wantPoints: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &mockStore{buckets: mkBuckets(base, tt.step, 2, 4, 6)}
			req := ForecastRequest{
				Granularity:  tt.granularity,
				Model:        ModelNaive,
				Window:       6,
				Alpha:        0.3,
				LimitHistory: 500,
			}

			got, _, err := Forecast(context.Background(), store, database.Scope{}, anchoredWindow(base, base.Add(2*tt.step)), req, nil)
			if err != nil {
				t.Fatalf("Forecast() error = %v", err)
			}
			if len(got.Forecast) != tt.wantPoints {
				t.Errorf("Forecast len = %d, want %d", len(got.Forecast), tt.wantPoints)
			}
			if got.Model.Horizon != tt.wantPoints {
				t.Errorf("Model.Horizon = %d, want %d", got.Model.Horizon, tt.wantPoints)
			}
			last := got.Forecast[len(got.Forecast)-1]
			wantLast := base.Add(time.Duration(2+tt.wantPoints) * tt.step)
			if !last.TS.Equal(wantLast) {
				t.Errorf("last forecast TS = %v, want %v", last.TS, wantLast)
			}
		})
	}
}

func TestForecast_EmptyWindow(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	req := DefaultForecastRequest()

	got, model, err := Forecast(context.Background(), store, database.Scope{}, emptyWindow(), req, nil)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}

	if store.bucketsCalls != 0 {
		t.Errorf("bucketsCalls = %d, want 0", store.bucketsCalls)
	}
	if model != nil {
		t.Errorf("artifact = %+v, want nil", model)
	}
	if got.History == nil || len(got.History) != 0 {
		t.Errorf("History = %v, want empty slice", got.History)
	}
	if got.Forecast == nil || len(got.Forecast) != 0 {
		t.Errorf("Forecast = %v, want empty slice", got.Forecast)
	}
	if got.Model.Horizon != 24 {
		t.Errorf("Model.Horizon = %d, want 24", got.Model.Horizon)
	}
}

func TestForecast_EmptyScopeHistory(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &mockStore{}

	got, model, err := Forecast(context.Background(), store, database.Scope{}, anchoredWindow(base, base.Add(time.Hour)), DefaultForecastRequest(), nil)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}

	if len(got.History) != 0 || len(got.Forecast) != 0 {
		t.Errorf("History/Forecast len = %d/%d, want 0/0", len(got.History), len(got.Forecast))
	}
	if got.Meta.HistoryPoints != 0 || got.Meta.ForecastPoints != 0 {
		t.Errorf("Meta = %+v, want {0 0}", got.Meta)
	}
	if model == nil || model.Fitted != 0 {
		t.Errorf("artifact = %+v, want fitted zero model", model)
	}
}

func TestForecast_ReusesArtifact(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &mockStore{}
	artifact := &ForecastModel{
		Name:    ModelNaive,
		Fitted:  2.0,
		History: mkSeries(base, time.Hour, 1, 3, 2),
	}
	req := ForecastRequest{
		Granularity:  GranularityHour,
		Model:        ModelNaive,
		Horizon:      2,
		LimitHistory: 500,
	}

	got, model, err := Forecast(context.Background(), store, database.Scope{}, anchoredWindow(base, base.Add(2*time.Hour)), req, artifact)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}

	if store.bucketsCalls != 0 {
		t.Errorf("bucketsCalls = %d, want 0 when reusing artifact", store.bucketsCalls)
	}
	if model != artifact {
		t.Error("returned artifact is not the provided one")
	}
	wantForecast := []SeriesPoint{
		{TS: base.Add(3 * time.Hour), Count: 2},
		{TS: base.Add(4 * time.Hour), Count: 2},
	}
	if !reflect.DeepEqual(got.Forecast, wantForecast) {
		t.Errorf("Forecast = %+v, want %+v", got.Forecast, wantForecast)
	}
	if got.Meta.HistoryPoints != 3 {
		t.Errorf("Meta.HistoryPoints = %d, want 3", got.Meta.HistoryPoints)
	}
}

func TestForecast_UnsupportedModel(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &mockStore{buckets: mkBuckets(base, time.Hour, 1, 2)}
	req := ForecastRequest{Granularity: GranularityHour, Model: "prophet", LimitHistory: 500}

	_, _, err := Forecast(context.Background(), store, database.Scope{}, anchoredWindow(base, base.Add(time.Hour)), req, nil)
	if err == nil {
		t.Fatal("Forecast() error = nil, want unsupported model error")
	}
}

func TestForecast_StoreError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("time_buckets failed")
	store := &mockStore{bucketsErr: wantErr}
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := Forecast(context.Background(), store, database.Scope{}, anchoredWindow(base, base.Add(time.Hour)), DefaultForecastRequest(), nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Forecast() error = %v, want %v", err, wantErr)
	}
}
