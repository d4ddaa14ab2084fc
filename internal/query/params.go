// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

// Package query normalizes request parameters into a canonical filter scope
// and derives deterministic cache signatures from it.
//
// Every analytics request passes through ParseFilters before touching
// storage or caches. Normalization guarantees that two requests meaning the
// same thing (bbox coordinates differing below 5-decimal precision,
// categories in different order or casing) produce byte-identical canonical
// parameters, and therefore identical cache keys.
package query

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BBox is a normalized bounding box in WGS84 coordinates, rounded to 5
// decimal places (about 1.1 m at the equator).
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Params is the canonical filter scope for one analytics request. All
// fields are normalized: bbox rounded, categories lowercased and sorted,
// timestamps in UTC.
type Params struct {
	// BBox restricts events to a bounding box; nil means no spatial filter.
	BBox *BBox

	// Categories restricts events to the listed violation types. Always
	// trimmed, lowercased, deduplicated and sorted; empty means no filter.
	Categories []string

	// HourStart and HourEnd restrict events by hour of day (0-23).
	// HourStart > HourEnd wraps around midnight. A single bound matches
	// that exact hour.
	HourStart *int
	HourEnd   *int

	// Start and End are absolute time bounds in UTC; either may be nil.
	Start *time.Time
	End   *time.Time

	// Granularity is the bucketing unit for endpoints that aggregate over
	// time: "hour" or "day". Empty when the endpoint takes none.
	Granularity string
}

// HasTimeFilter reports whether the request carried any absolute time bound.
func (p *Params) HasTimeFilter() bool {
	return p.Start != nil || p.End != nil
}

// ParseFilters parses and normalizes the shared filter parameters from a
// query string. Unknown parameters are ignored; endpoint-specific knobs are
// parsed by their handlers.
//
// Recognized parameters:
//
//	bbox             "min_lon,min_lat,max_lon,max_lat"
//	violation_types  comma-separated category list
//	hour_start       integer 0-23
//	hour_end         integer 0-23
//	start            RFC3339 timestamp
//	end              RFC3339 timestamp
//	granularity      "hour" or "day"
func ParseFilters(values url.Values) (*Params, error) {
	p := &Params{}

	if err := parseBBoxParam(values, p); err != nil {
		return nil, err
	}
	parseCategoriesParam(values, p)
	if err := parseHourParams(values, p); err != nil {
		return nil, err
	}
	if err := parseTimeParams(values, p); err != nil {
		return nil, err
	}
	if err := parseGranularityParam(values, p); err != nil {
		return nil, err
	}

	return p, nil
}

// parseBBoxParam parses the bbox parameter into a normalized BBox.
func parseBBoxParam(values url.Values, p *Params) error {
	raw := strings.TrimSpace(values.Get("bbox"))
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return NewInvalidParameter("bbox", "must contain exactly 4 comma-separated coordinates")
	}

	coords := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return NewInvalidParameter("bbox", "coordinate %d is not a number", i+1)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewInvalidParameter("bbox", "coordinate %d must be finite", i+1)
		}
		coords[i] = v
	}

	bbox, err := NormalizeBBox(coords[0], coords[1], coords[2], coords[3])
	if err != nil {
		return err
	}
	p.BBox = bbox
	return nil
}

// parseCategoriesParam parses the comma-separated violation_types list.
func parseCategoriesParam(values url.Values, p *Params) {
	raw := values.Get("violation_types")
	if raw == "" {
		return
	}
	p.Categories = NormalizeCategories(strings.Split(raw, ","))
}

// parseHourParams parses hour_start and hour_end.
func parseHourParams(values url.Values, p *Params) error {
	for _, name := range []string{"hour_start", "hour_end"} {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			continue
		}
		h, err := strconv.Atoi(raw)
		if err != nil {
			return NewInvalidParameter(name, "must be an integer")
		}
		if h < 0 || h > 23 {
			return NewInvalidParameter(name, "must be between 0 and 23")
		}
		hour := h
		if name == "hour_start" {
			p.HourStart = &hour
		} else {
			p.HourEnd = &hour
		}
	}
	return nil
}

// parseTimeParams parses the absolute start and end bounds.
func parseTimeParams(values url.Values, p *Params) error {
	for _, name := range []string{"start", "end"} {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return NewInvalidParameter(name, "must be an RFC3339 timestamp")
		}
		utc := ts.UTC()
		if name == "start" {
			p.Start = &utc
		} else {
			p.End = &utc
		}
	}

	if p.Start != nil && p.End != nil && p.Start.After(*p.End) {
		return NewInvalidParameter("start", "start must be <= end")
	}
	return nil
}

// parseGranularityParam validates the optional granularity parameter.
func parseGranularityParam(values url.Values, p *Params) error {
	raw := strings.TrimSpace(values.Get("granularity"))
	if raw == "" {
		return nil
	}
	if raw != "hour" && raw != "day" {
		return NewInvalidParameter("granularity", "must be 'hour' or 'day'")
	}
	p.Granularity = raw
	return nil
}

// GetIntParam returns a bounded integer parameter, or its default when
// absent. Values outside [minVal, maxVal] are rejected.
func GetIntParam(values url.Values, name string, def, minVal, maxVal int) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewInvalidParameter(name, "must be an integer")
	}
	if v < minVal || v > maxVal {
		return 0, NewInvalidParameter(name, "must be between %d and %d", minVal, maxVal)
	}
	return v, nil
}

// GetFloatParam returns a bounded float parameter, or its default when
// absent.
func GetFloatParam(values url.Values, name string, def, minVal, maxVal float64) (float64, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, NewInvalidParameter(name, "must be a finite number")
	}
	if v < minVal || v > maxVal {
		return 0, NewInvalidParameter(name, "must be between %g and %g", minVal, maxVal)
	}
	return v, nil
}

// GetEnumParam returns a string parameter constrained to allowed values,
// or its default when absent.
func GetEnumParam(values url.Values, name, def string, allowed ...string) (string, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return def, nil
	}
	for _, a := range allowed {
		if raw == a {
			return raw, nil
		}
	}
	sort.Strings(allowed)
	return "", NewInvalidParameter(name, "must be one of: %s", strings.Join(allowed, ", "))
}
