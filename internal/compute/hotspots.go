// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package compute

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/curbwatch/curbwatch/internal/database"
	"github.com/curbwatch/curbwatch/internal/models"
	"github.com/curbwatch/curbwatch/internal/timewindow"
)

// HotspotsRequest carries the knobs of the hotspot grid endpoint.
type HotspotsRequest struct {
	// CellM is the grid cell edge length in meters, converted to degrees
	// at the equator-latitude approximation.
	CellM int

	// RecentDays and BaselineDays are the lengths of the two compared
	// windows, counted back from the window anchor.
	RecentDays   int
	BaselineDays int

	// Limit caps the number of returned cells, keeping the highest
	// ratios.
	Limit int
}

// DefaultHotspotsRequest returns the endpoint defaults.
func DefaultHotspotsRequest() HotspotsRequest {
	return HotspotsRequest{CellM: 250, RecentDays: 7, BaselineDays: 30, Limit: 3000}
}

// CacheExtras returns the endpoint-specific cache key material.
func (r HotspotsRequest) CacheExtras() map[string]string {
	return map[string]string{
		"cell_m":        strconv.Itoa(r.CellM),
		"recent_days":   strconv.Itoa(r.RecentDays),
		"baseline_days": strconv.Itoa(r.BaselineDays),
		"limit":         strconv.Itoa(r.Limit),
	}
}

// HotspotCell is one scored grid cell. Centroid is [lon, lat].
type HotspotCell struct {
	Centroid      [2]float64 `json:"centroid"`
	RecentCount   int64      `json:"recent_count"`
	BaselineCount int64      `json:"baseline_count"`
	Ratio         float64    `json:"ratio"`
	Score         float64    `json:"score"`
	RiskLevel     string     `json:"risk_level"`
}

// HotspotsMeta echoes the grid parameters and the returned cell count.
type HotspotsMeta struct {
	CellM        int     `json:"cell_m"`
	GridSizeDeg  float64 `json:"grid_size_deg"`
	RecentDays   int     `json:"recent_days"`
	BaselineDays int     `json:"baseline_days"`
	Points       int     `json:"points"`
}

// HotspotsResult is the hotspot grid endpoint payload.
type HotspotsResult struct {
	Cells []HotspotCell `json:"cells"`
	Meta  HotspotsMeta  `json:"meta"`
}

// Hotspots scores grid cells by their recent versus baseline daily rate.
//
// The recent window is the RecentDays before the window anchor, the
// baseline the BaselineDays before that; both starts are clamped to the
// request's own start bound and to the observed data minimum. Cells are
// ranked by rate ratio, truncated to Limit, then min-max scaled to a
// 0-100 score over the kept set (all zero when the kept ratios are
// uniform). Risk levels: high at score >= 70, medium at >= 40, else low.
//
// The returned window metadata replaces the plain effective window with
// the recent/baseline sub-ranges actually compared.
func Hotspots(ctx context.Context, store Store, scope database.Scope, win timewindow.Window, req HotspotsRequest) (*HotspotsResult, *models.TimeWindowMeta, error) {
	gridSizeDeg := float64(req.CellM) / metersPerDegree
	meta := HotspotsMeta{
		CellM:        req.CellM,
		GridSizeDeg:  roundTo(gridSizeDeg, 8),
		RecentDays:   req.RecentDays,
		BaselineDays: req.BaselineDays,
	}

	if win.Empty || win.End == nil {
		return &HotspotsResult{Cells: []HotspotCell{}, Meta: meta}, win.Meta(), nil
	}

	anchorEnd := *win.End
	recentStart := anchorEnd.Add(-dayLength(req.RecentDays))
	baselineEnd := recentStart
	baselineStart := baselineEnd.Add(-dayLength(req.BaselineDays))

	if scope.Start != nil {
		recentStart = laterTime(recentStart, *scope.Start)
		baselineStart = laterTime(baselineStart, *scope.Start)
	}
	if win.DataMin != nil {
		recentStart = laterTime(recentStart, *win.DataMin)
		baselineStart = laterTime(baselineStart, *win.DataMin)
	}

	recent, err := store.GridCellCounts(ctx, scope.WithWindow(recentStart, anchorEnd), gridSizeDeg)
	if err != nil {
		return nil, nil, err
	}
	baseline, err := store.GridCellCounts(ctx, scope.WithWindow(baselineStart, baselineEnd), gridSizeDeg)
	if err != nil {
		return nil, nil, err
	}

	cells := scoreCells(mergeCells(recent, baseline), req)
	meta.Points = len(cells)

	wm := win.Meta()
	wm.EffectiveWindow = models.EffectiveWindow{
		StartTS:  &baselineStart,
		EndTS:    &anchorEnd,
		Recent:   &models.WindowRange{StartTS: &recentStart, EndTS: &anchorEnd},
		Baseline: &models.WindowRange{StartTS: &baselineStart, EndTS: &baselineEnd},
	}

	return &HotspotsResult{Cells: cells, Meta: meta}, wm, nil
}

// mergedCell joins one grid cell's counts from the two window scans.
type mergedCell struct {
	lon, lat         float64
	recent, baseline int64
	ratio            float64
}

// mergeCells joins the recent and baseline scans on the snapped cell
// coordinates. A cell present in only one scan keeps a zero count for the
// other side. Both scans snap with the same grid size, so equal cells
// carry bit-identical coordinates.
func mergeCells(recent, baseline []database.GridCell) []mergedCell {
	type cellKey struct{ lon, lat float64 }

	byKey := make(map[cellKey]*mergedCell, len(recent)+len(baseline))
	for _, c := range recent {
		byKey[cellKey{c.CellLon, c.CellLat}] = &mergedCell{lon: c.CellLon, lat: c.CellLat, recent: c.Count}
	}
	for _, c := range baseline {
		k := cellKey{c.CellLon, c.CellLat}
		if m, ok := byKey[k]; ok {
			m.baseline = c.Count
		} else {
			byKey[k] = &mergedCell{lon: c.CellLon, lat: c.CellLat, baseline: c.Count}
		}
	}

	merged := make([]mergedCell, 0, len(byKey))
	for _, m := range byKey {
		merged = append(merged, *m)
	}
	return merged
}

// scoreCells ranks merged cells by recent-versus-baseline daily rate and
// scores the kept set.
func scoreCells(merged []mergedCell, req HotspotsRequest) []HotspotCell {
	if len(merged) == 0 {
		return []HotspotCell{}
	}

	recentDays := req.RecentDays
	if recentDays < 1 {
		recentDays = 1
	}
	baselineDays := req.BaselineDays
	if baselineDays < 1 {
		baselineDays = 1
	}

	for i := range merged {
		recentRate := float64(merged[i].recent) / float64(recentDays)
		baselineRate := float64(merged[i].baseline) / float64(baselineDays)
		merged[i].ratio = recentRate / (baselineRate + 1e-9)
	}

	// Ratio descending with a coordinate tie-break keeps the ordering,
	// and therefore the cached payload, deterministic.
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].ratio != merged[j].ratio {
			return merged[i].ratio > merged[j].ratio
		}
		if merged[i].lon != merged[j].lon {
			return merged[i].lon < merged[j].lon
		}
		return merged[i].lat < merged[j].lat
	})
	if req.Limit > 0 && len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}

	maxRatio := merged[0].ratio
	minRatio := merged[len(merged)-1].ratio
	span := maxRatio - minRatio

	cells := make([]HotspotCell, 0, len(merged))
	for _, m := range merged {
		score := 0.0
		if span != 0 {
			score = 100.0 * (m.ratio - minRatio) / span
		}
		level := "low"
		switch {
		case score >= 70:
			level = "high"
		case score >= 40:
			level = "medium"
		}
		cells = append(cells, HotspotCell{
			Centroid:      [2]float64{roundTo(m.lon, 6), roundTo(m.lat, 6)},
			RecentCount:   m.recent,
			BaselineCount: m.baseline,
			Ratio:         roundTo(m.ratio, 6),
			Score:         roundTo(score, 2),
			RiskLevel:     level,
		})
	}
	return cells
}

func dayLength(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func laterTime(t, bound time.Time) time.Time {
	if bound.After(t) {
		return bound
	}
	return t
}
