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

func TestDefaultTimeseriesRequest(t *testing.T) {
	t.Parallel()

	got := DefaultTimeseriesRequest()
	want := TimeseriesRequest{Granularity: GranularityHour, LimitHistory: 500}
	if got != want {
		t.Errorf("DefaultTimeseriesRequest() = %+v, want %+v", got, want)
	}
}

func TestTimeseries(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rows []database.TimeBucket
		req  TimeseriesRequest
		want []SeriesPoint
	}{
		{
			name: "fills gaps with zero buckets",
			rows: []database.TimeBucket{
				{Bucket: base, Count: 2},
				{Bucket: base.Add(3 * time.Hour), Count: 1},
			},
			req: TimeseriesRequest{Granularity: GranularityHour, LimitHistory: 500},
			want: []SeriesPoint{
				{TS: base, Count: 2},
				{TS: base.Add(time.Hour), Count: 0},
				{TS: base.Add(2 * time.Hour), Count: 0},
				{TS: base.Add(3 * time.Hour), Count: 1},
			},
		},
		{
			name: "keeps only the most recent buckets",
			rows: []database.TimeBucket{
				{Bucket: base, Count: 1},
				{Bucket: base.Add(5 * time.Hour), Count: 6},
			},
			req: TimeseriesRequest{Granularity: GranularityHour, LimitHistory: 3},
			want: []SeriesPoint{
				{TS: base.Add(3 * time.Hour), Count: 0},
				{TS: base.Add(4 * time.Hour), Count: 0},
				{TS: base.Add(5 * time.Hour), Count: 6},
			},
		},
		{
			name: "daily buckets step a full day",
			rows: []database.TimeBucket{
				{Bucket: base, Count: 4},
				{Bucket: base.Add(48 * time.Hour), Count: 2},
			},
			req: TimeseriesRequest{Granularity: GranularityDay, LimitHistory: 500},
			want: []SeriesPoint{
				{TS: base, Count: 4},
				{TS: base.Add(24 * time.Hour), Count: 0},
				{TS: base.Add(48 * time.Hour), Count: 2},
			},
		},
		{
			name: "single bucket",
			rows: []database.TimeBucket{{Bucket: base, Count: 9}},
			req:  TimeseriesRequest{Granularity: GranularityHour, LimitHistory: 500},
			want: []SeriesPoint{{TS: base, Count: 9}},
		},
		{
			name: "no rows",
			rows: nil,
			req:  TimeseriesRequest{Granularity: GranularityHour, LimitHistory: 500},
			want: []SeriesPoint{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &mockStore{buckets: tt.rows}
			win := anchoredWindow(base, base.Add(72*time.Hour))

			got, err := Timeseries(context.Background(), store, database.Scope{}, win, tt.req)
			if err != nil {
				t.Fatalf("Timeseries() error = %v", err)
			}

			if got.Granularity != tt.req.Granularity {
				t.Errorf("Granularity = %q, want %q", got.Granularity, tt.req.Granularity)
			}
			if !reflect.DeepEqual(got.Series, tt.want) {
				t.Errorf("Series = %+v, want %+v", got.Series, tt.want)
			}
			if got.Meta.Points != len(tt.want) {
				t.Errorf("Meta.Points = %d, want %d", got.Meta.Points, len(tt.want))
			}
			if got.Series == nil {
				t.Error("Series is nil, want empty slice")
			}
		})
	}
}

func TestTimeseries_EmptyWindow(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	req := TimeseriesRequest{Granularity: GranularityDay, LimitHistory: 500}

	got, err := Timeseries(context.Background(), store, database.Scope{}, emptyWindow(), req)
	if err != nil {
		t.Fatalf("Timeseries() error = %v", err)
	}

	if store.bucketsCalls != 0 {
		t.Errorf("bucketsCalls = %d, want 0", store.bucketsCalls)
	}
	if got.Granularity != GranularityDay {
		t.Errorf("Granularity = %q, want %q", got.Granularity, GranularityDay)
	}
	if got.Series == nil || len(got.Series) != 0 {
		t.Errorf("Series = %v, want empty slice", got.Series)
	}
	if got.Meta.Points != 0 {
		t.Errorf("Meta.Points = %d, want 0", got.Meta.Points)
	}
}

func TestTimeseries_StoreError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("time_buckets failed")
	store := &mockStore{bucketsErr: wantErr}
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := Timeseries(context.Background(), store, database.Scope{}, anchoredWindow(base, base.Add(time.Hour)), DefaultTimeseriesRequest())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Timeseries() error = %v, want %v", err, wantErr)
	}
}
