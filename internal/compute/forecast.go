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

// Forecast model names.
const (
	// ModelNaive projects the last observed count.
	ModelNaive = "naive"
	// ModelMA projects the mean of the last window counts.
	ModelMA = "ma"
	// ModelEWM projects an exponentially weighted mean of the full series.
	ModelEWM = "ewm"
)

// ForecastRequest carries the knobs of the forecast endpoint.
type ForecastRequest struct {
	Granularity string

	// Model selects the projection: "naive", "ma" or "ewm".
	Model string

	// Window is the lookback length for the ma model.
	Window int

	// Alpha is the smoothing factor for the ewm model, 0 to 1.
	Alpha float64

	// Horizon is the number of future buckets to project. Zero means the
	// granularity default (24 hourly, 7 daily).
	Horizon int

	LimitHistory int
}

// DefaultForecastRequest returns the endpoint defaults.
func DefaultForecastRequest() ForecastRequest {
	return ForecastRequest{
		Granularity:  GranularityHour,
		Model:        ModelMA,
		Window:       6,
		Alpha:        0.3,
		LimitHistory: 500,
	}
}

// CacheExtras returns the endpoint-specific cache key material.
func (r ForecastRequest) CacheExtras() map[string]string {
	return map[string]string{
		"model":         r.Model,
		"window":        strconv.Itoa(r.Window),
		"alpha":         strconv.FormatFloat(r.Alpha, 'f', -1, 64),
		"horizon":       strconv.Itoa(r.Horizon),
		"limit_history": strconv.Itoa(r.LimitHistory),
	}
}

// ForecastModel is the fitted forecast artifact. It carries the extracted
// history alongside the projected level, so a cached artifact rebuilds
// the full payload without a store round trip.
type ForecastModel struct {
	Name    string
	Window  int
	Alpha   float64
	Fitted  float64
	History []SeriesPoint
}

// ForecastModelInfo describes the model block of the payload.
type ForecastModelInfo struct {
	Name    string  `json:"name"`
	Window  int     `json:"window"`
	Alpha   float64 `json:"alpha"`
	Horizon int     `json:"horizon"`
}

// ForecastMeta counts the buckets on each side of the projection.
type ForecastMeta struct {
	HistoryPoints  int `json:"history_points"`
	ForecastPoints int `json:"forecast_points"`
}

// ForecastResult is the forecast endpoint payload.
type ForecastResult struct {
	Granularity string            `json:"granularity"`
	Model       ForecastModelInfo `json:"model"`
	History     []SeriesPoint     `json:"history"`
	Forecast    []SeriesPoint     `json:"forecast"`
	Meta        ForecastMeta      `json:"meta"`
}

// Forecast returns the scope's history plus a deterministic projection of
// the next req.Horizon buckets. A non-nil artifact from a previous fit
// over the same key is reused instead of re-extracting and re-fitting.
func Forecast(ctx context.Context, store Store, scope database.Scope, win timewindow.Window, req ForecastRequest, artifact *ForecastModel) (*ForecastResult, *ForecastModel, error) {
	if req.Horizon <= 0 {
		req.Horizon = DefaultHorizon(req.Granularity)
	}
	info := ForecastModelInfo{Name: req.Model, Window: req.Window, Alpha: req.Alpha, Horizon: req.Horizon}

	if win.Empty {
		return &ForecastResult{
			Granularity: req.Granularity,
			Model:       info,
			History:     []SeriesPoint{},
			Forecast:    []SeriesPoint{},
		}, nil, nil
	}

	model := artifact
	if model == nil {
		history, err := historySeries(ctx, store, scope, req.Granularity, req.LimitHistory)
		if err != nil {
			return nil, nil, err
		}
		fitted, err := fitForecast(seriesCounts(history), req.Model, req.Window, req.Alpha)
		if err != nil {
			return nil, nil, err
		}
		model = &ForecastModel{
			Name:    req.Model,
			Window:  req.Window,
			Alpha:   req.Alpha,
			Fitted:  fitted,
			History: history,
		}
	}

	forecast := projectForecast(model, req.Granularity, req.Horizon)
	return &ForecastResult{
		Granularity: req.Granularity,
		Model:       info,
		History:     model.History,
		Forecast:    forecast,
		Meta: ForecastMeta{
			HistoryPoints:  len(model.History),
			ForecastPoints: len(forecast),
		},
	}, model, nil
}

// fitForecast returns the level the chosen model projects forward.
func fitForecast(counts []int64, model string, window int, alpha float64) (float64, error) {
	if len(counts) == 0 {
		return 0, nil
	}
	switch model {
	case ModelNaive:
		return float64(counts[len(counts)-1]), nil
	case ModelMA:
		n := window
		if n > len(counts) {
			n = len(counts)
		}
		return mean(counts[len(counts)-n:]), nil
	case ModelEWM:
		ewm := float64(counts[0])
		for _, c := range counts[1:] {
			ewm = alpha*float64(c) + (1.0-alpha)*ewm
		}
		return ewm, nil
	}
	return 0, fmt.Errorf("unsupported forecast model: %s", model)
}

// projectForecast repeats the fitted level over the next horizon buckets,
// rounded and clamped to a non-negative count.
func projectForecast(model *ForecastModel, granularity string, horizon int) []SeriesPoint {
	if len(model.History) == 0 || horizon <= 0 {
		return []SeriesPoint{}
	}

	predicted := int64(math.Round(model.Fitted))
	if predicted < 0 {
		predicted = 0
	}

	step := stepFor(granularity)
	last := model.History[len(model.History)-1].TS
	out := make([]SeriesPoint, 0, horizon)
	for i := 1; i <= horizon; i++ {
		out = append(out, SeriesPoint{TS: last.Add(time.Duration(i) * step), Count: predicted})
	}
	return out
}
