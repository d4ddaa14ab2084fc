// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package compute

import (
	"context"
	"time"

	"github.com/curbwatch/curbwatch/internal/database"
	"github.com/curbwatch/curbwatch/internal/timewindow"
)

// StatsResult is the stats endpoint payload: scope totals, the top
// violation types and the hour-of-day histogram. ByHour always holds 24
// entries, hour 0 through 23.
type StatsResult struct {
	Total    int64                `json:"total"`
	MinTime  *time.Time           `json:"min_time"`
	MaxTime  *time.Time           `json:"max_time"`
	TopTypes []database.TypeCount `json:"top_types"`
	ByHour   []database.HourCount `json:"by_hour"`
}

// Stats aggregates totals, top types and the hour histogram for a scope.
// A scope matching zero events yields the zero-valued payload without
// further store queries.
func Stats(ctx context.Context, store Store, scope database.Scope, win timewindow.Window) (*StatsResult, error) {
	if win.Empty {
		return emptyStats(), nil
	}

	totals, err := store.Totals(ctx, scope)
	if err != nil {
		return nil, err
	}
	// Time or hour filters can empty a scope whose extent is non-empty.
	if totals.Total == 0 {
		return emptyStats(), nil
	}

	topTypes, err := store.TopTypes(ctx, scope, 0)
	if err != nil {
		return nil, err
	}
	byHour, err := store.HourOfDayCounts(ctx, scope)
	if err != nil {
		return nil, err
	}

	return &StatsResult{
		Total:    totals.Total,
		MinTime:  totals.MinTime,
		MaxTime:  totals.MaxTime,
		TopTypes: topTypes,
		ByHour:   byHour,
	}, nil
}

func emptyStats() *StatsResult {
	byHour := make([]database.HourCount, 24)
	for h := range byHour {
		byHour[h].Hour = h
	}
	return &StatsResult{TopTypes: []database.TypeCount{}, ByHour: byHour}
}
