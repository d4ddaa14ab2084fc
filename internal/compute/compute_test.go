// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package compute

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/curbwatch/curbwatch/internal/database"
	"github.com/curbwatch/curbwatch/internal/timewindow"
)

// mockStore implements Store with canned rows, per-method call counters
// and recorded scopes, so tests can assert both payloads and the exact
// store traffic a computation generates.
type mockStore struct {
	totals      database.TotalsRow
	totalsErr   error
	topTypes    []database.TypeCount
	topTypesErr error
	buckets     []database.TimeBucket
	bucketsErr  error
	hours       []database.HourCount
	hoursErr    error
	gridResults [][]database.GridCell
	gridErr     error
	activity    database.ActivityRow
	activityErr error

	totalsCalls    int
	topTypesCalls  int
	topTypeLimits  []int
	bucketsCalls   int
	hoursCalls     int
	gridCalls      int
	gridScopes     []database.Scope
	gridSizes      []float64
	activityCalls  int
	activityScopes []database.Scope
}

func (m *mockStore) Totals(ctx context.Context, scope database.Scope) (database.TotalsRow, error) {
	m.totalsCalls++
	return m.totals, m.totalsErr
}

func (m *mockStore) TopTypes(ctx context.Context, scope database.Scope, limit int) ([]database.TypeCount, error) {
	m.topTypesCalls++
	m.topTypeLimits = append(m.topTypeLimits, limit)
	return m.topTypes, m.topTypesErr
}

func (m *mockStore) TimeBuckets(ctx context.Context, scope database.Scope, interval string) ([]database.TimeBucket, error) {
	m.bucketsCalls++
	return m.buckets, m.bucketsErr
}

func (m *mockStore) HourOfDayCounts(ctx context.Context, scope database.Scope) ([]database.HourCount, error) {
	m.hoursCalls++
	return m.hours, m.hoursErr
}

// GridCellCounts pops the next canned result. The first call serves the
// recent scan, the second the baseline scan.
func (m *mockStore) GridCellCounts(ctx context.Context, scope database.Scope, sizeDeg float64) ([]database.GridCell, error) {
	m.gridCalls++
	m.gridScopes = append(m.gridScopes, scope)
	m.gridSizes = append(m.gridSizes, sizeDeg)
	if m.gridErr != nil {
		return nil, m.gridErr
	}
	if len(m.gridResults) == 0 {
		return nil, nil
	}
	out := m.gridResults[0]
	m.gridResults = m.gridResults[1:]
	return out, nil
}

func (m *mockStore) RecentActivity(ctx context.Context, scope database.Scope) (database.ActivityRow, error) {
	m.activityCalls++
	m.activityScopes = append(m.activityScopes, scope)
	return m.activity, m.activityErr
}

// anchoredWindow builds a resolved window anchored at max over the data
// extent [min, max].
func anchoredWindow(min, max time.Time) timewindow.Window {
	return timewindow.Window{
		DataMin: &min,
		DataMax: &max,
		Anchor:  &max,
		Start:   &min,
		End:     &max,
		Source:  timewindow.SourceAnchored,
	}
}

// emptyWindow builds the resolved window of a scope with no data.
func emptyWindow() timewindow.Window {
	return timewindow.Window{
		Source:  timewindow.SourceAnchored,
		Empty:   true,
		Message: timewindow.NoDataMessage,
	}
}

// mkSeries builds a gap-free series starting at start with the given
// counts.
func mkSeries(start time.Time, step time.Duration, counts ...int64) []SeriesPoint {
	out := make([]SeriesPoint, len(counts))
	for i, c := range counts {
		out[i] = SeriesPoint{TS: start.Add(time.Duration(i) * step), Count: c}
	}
	return out
}

// mkBuckets builds contiguous store rows starting at start with the
// given counts.
func mkBuckets(start time.Time, step time.Duration, counts ...int64) []database.TimeBucket {
	out := make([]database.TimeBucket, len(counts))
	for i, c := range counts {
		out[i] = database.TimeBucket{Bucket: start.Add(time.Duration(i) * step), Count: c}
	}
	return out
}

func TestStepFor(t *testing.T) {
	t.Parallel()

	if got := stepFor(GranularityHour); got != time.Hour {
		t.Errorf("stepFor(hour) = %v, want %v", got, time.Hour)
	}
	if got := stepFor(GranularityDay); got != 24*time.Hour {
		t.Errorf("stepFor(day) = %v, want %v", got, 24*time.Hour)
	}
	if got := stepFor(""); got != time.Hour {
		t.Errorf("stepFor(\"\") = %v, want %v", got, time.Hour)
	}
}

func TestDefaultHorizon(t *testing.T) {
	t.Parallel()

	if got := DefaultHorizon(GranularityHour); got != 24 {
		t.Errorf("DefaultHorizon(hour) = %d, want 24", got)
	}
	if got := DefaultHorizon(GranularityDay); got != 7 {
		t.Errorf("DefaultHorizon(day) = %d, want 7", got)
	}
}

func TestRoundTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		v      float64
		places int
		want   float64
	}{
		{name: "truncating", v: 1.23456, places: 4, want: 1.2346},
		{name: "half rounds away from zero", v: 2.5, places: 0, want: 3},
		{name: "negative half rounds away from zero", v: -2.5, places: 0, want: -3},
		{name: "already exact", v: 1.25, places: 2, want: 1.25},
		{name: "six places", v: 285714285.7142857, places: 6, want: 285714285.714286},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := roundTo(tt.v, tt.places); got != tt.want {
				t.Errorf("roundTo(%v, %d) = %v, want %v", tt.v, tt.places, got, tt.want)
			}
		})
	}
}

func TestMean(t *testing.T) {
	t.Parallel()

	if got := mean(nil); got != 0 {
		t.Errorf("mean(nil) = %v, want 0", got)
	}
	if got := mean([]int64{1, 2, 3}); got != 2 {
		t.Errorf("mean([1 2 3]) = %v, want 2", got)
	}
	if got := mean([]int64{1, 2}); got != 1.5 {
		t.Errorf("mean([1 2]) = %v, want 1.5", got)
	}
}

func TestPstdev(t *testing.T) {
	t.Parallel()

	if got := pstdev(nil); got != 0 {
		t.Errorf("pstdev(nil) = %v, want 0", got)
	}
	if got := pstdev([]int64{7}); got != 0 {
		t.Errorf("pstdev([7]) = %v, want 0", got)
	}
	if got := pstdev([]int64{2, 2, 2}); got != 0 {
		t.Errorf("pstdev([2 2 2]) = %v, want 0", got)
	}
	// Population deviation of [4 5 6] is sqrt(2/3).
	want := math.Sqrt(2.0 / 3.0)
	if got := pstdev([]int64{4, 5, 6}); math.Abs(got-want) > 1e-12 {
		t.Errorf("pstdev([4 5 6]) = %v, want %v", got, want)
	}
}

func TestSeriesCounts(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	series := mkSeries(base, time.Hour, 3, 0, 7)
	got := seriesCounts(series)
	want := []int64{3, 0, 7}
	if len(got) != len(want) {
		t.Fatalf("seriesCounts len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("seriesCounts[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRequestCacheExtras(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		extras map[string]string
		want   map[string]string
	}{
		{
			name:   "timeseries",
			extras: TimeseriesRequest{Granularity: GranularityHour, LimitHistory: 500}.CacheExtras(),
			want:   map[string]string{"limit_history": "500"},
		},
		{
			name:   "forecast",
			extras: ForecastRequest{Model: ModelEWM, Window: 6, Alpha: 0.25, Horizon: 24, LimitHistory: 100}.CacheExtras(),
			want: map[string]string{
				"model":         "ewm",
				"window":        "6",
				"alpha":         "0.25",
				"horizon":       "24",
				"limit_history": "100",
			},
		},
		{
			name:   "trends",
			extras: TrendsRequest{Window: 14, AnomalyZ: 2.5, LimitHistory: 500}.CacheExtras(),
			want: map[string]string{
				"window":        "14",
				"anomaly_z":     "2.5",
				"limit_history": "500",
			},
		},
		{
			name:   "hotspots",
			extras: HotspotsRequest{CellM: 250, RecentDays: 7, BaselineDays: 30, Limit: 3000}.CacheExtras(),
			want: map[string]string{
				"cell_m":        "250",
				"recent_days":   "7",
				"baseline_days": "30",
				"limit":         "3000",
			},
		},
		{
			name:   "predict",
			extras: PredictRequest{Horizon: 7, LimitHistory: 500}.CacheExtras(),
			want:   map[string]string{"horizon": "7", "limit_history": "500"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if len(tt.extras) != len(tt.want) {
				t.Fatalf("extras = %v, want %v", tt.extras, tt.want)
			}
			for k, v := range tt.want {
				if tt.extras[k] != v {
					t.Errorf("extras[%q] = %q, want %q", k, tt.extras[k], v)
				}
			}
		})
	}
}
