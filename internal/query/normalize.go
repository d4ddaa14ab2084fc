// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package query

import (
	"math"
	"sort"
	"strings"
)

// coordPrecision is the decimal precision bounding boxes are rounded to.
// Five decimal places is about 1.1 m at the equator, below the positional
// accuracy of the source data, so rounding collapses cache keys without
// changing results.
const coordPrecision = 1e5

// RoundCoord rounds a coordinate to 5 decimal places, half away from zero.
func RoundCoord(v float64) float64 {
	r := math.Round(v*coordPrecision) / coordPrecision
	if r == 0 {
		r = 0 // collapse negative zero
	}
	return r
}

// NormalizeBBox validates and rounds a bounding box. Coordinates must be
// finite, lie within WGS84 bounds, and satisfy min < max on both axes
// after rounding.
func NormalizeBBox(minLon, minLat, maxLon, maxLat float64) (*BBox, error) {
	for _, v := range []float64{minLon, minLat, maxLon, maxLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, NewInvalidParameter("bbox", "coordinates must be finite")
		}
	}

	b := &BBox{
		MinLon: RoundCoord(minLon),
		MinLat: RoundCoord(minLat),
		MaxLon: RoundCoord(maxLon),
		MaxLat: RoundCoord(maxLat),
	}

	if b.MinLon < -180 || b.MaxLon > 180 {
		return nil, NewInvalidParameter("bbox", "longitude must be between -180 and 180")
	}
	if b.MinLat < -90 || b.MaxLat > 90 {
		return nil, NewInvalidParameter("bbox", "latitude must be between -90 and 90")
	}
	if b.MinLon >= b.MaxLon {
		return nil, NewInvalidParameter("bbox", "min_lon must be less than max_lon")
	}
	if b.MinLat >= b.MaxLat {
		return nil, NewInvalidParameter("bbox", "min_lat must be less than max_lat")
	}

	return b, nil
}

// NormalizeCategories canonicalizes a violation category list: entries are
// trimmed, lowercased, deduplicated and sorted; empties are dropped.
// Returns nil when nothing remains.
func NormalizeCategories(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))

	for _, c := range raw {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}

	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
