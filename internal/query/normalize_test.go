// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package query

import (
	"math"
	"reflect"
	"testing"
)

func TestRoundCoord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input float64
		want  float64
	}{
		{"already exact", 40.71234, 40.71234},
		{"rounds down", 40.712344, 40.71234},
		{"rounds up", 40.712346, 40.71235},
		{"half rounds away from zero", 40.712345, 40.71235},
		{"negative half rounds away from zero", -40.712345, -40.71235},
		{"negative rounds toward more negative", -73.995555, -73.99556},
		{"zero", 0, 0},
		{"collapses negative zero", -0.0000001, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := RoundCoord(tt.input)
			if got != tt.want {
				t.Errorf("RoundCoord(%v) = %v, want %v", tt.input, got, tt.want)
			}
			if got == 0 && math.Signbit(got) {
				t.Errorf("RoundCoord(%v) returned negative zero", tt.input)
			}
		})
	}
}

func TestNormalizeBBox(t *testing.T) {
	t.Parallel()

	b, err := NormalizeBBox(-74.005678, 40.712344, -73.995551, 40.722349)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := BBox{MinLon: -74.00568, MinLat: 40.71234, MaxLon: -73.99555, MaxLat: 40.72235}
	if *b != want {
		t.Errorf("NormalizeBBox = %+v, want %+v", *b, want)
	}
}

func TestNormalizeBBoxRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                           string
		minLon, minLat, maxLon, maxLat float64
	}{
		{"NaN coordinate", math.NaN(), 40, -73, 41},
		{"infinite coordinate", -74, math.Inf(1), -73, 41},
		{"longitude out of range", -190, 40, -73, 41},
		{"latitude out of range", -74, 40, -73, 95},
		{"min_lon not less than max_lon", -73, 40, -74, 41},
		{"min_lat equal to max_lat", -74, 40, -73, 40},
		{"degenerate after rounding", -74.000001, 40, -74.000002, 41},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NormalizeBBox(tt.minLon, tt.minLat, tt.maxLon, tt.maxLat); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNormalizeBBoxCollapsesNearbyKeys(t *testing.T) {
	t.Parallel()

	// Two boxes differing below 5-decimal precision must normalize equal.
	a, err := NormalizeBBox(-74.0056781, 40.7123441, -73.9955511, 40.7223491)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := NormalizeBBox(-74.0056779, 40.7123439, -73.9955509, 40.7223489)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *a != *b {
		t.Errorf("expected equal normalized boxes, got %+v and %+v", *a, *b)
	}
}

func TestNormalizeCategories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "trims lowercases dedupes sorts",
			input: []string{" Double_Parking ", "BLOCKED_HYDRANT", "double_parking", "bus_lane"},
			want:  []string{"blocked_hydrant", "bus_lane", "double_parking"},
		},
		{
			name:  "drops empties",
			input: []string{"", "  ", "idling"},
			want:  []string{"idling"},
		},
		{
			name:  "all empty yields nil",
			input: []string{"", " "},
			want:  nil,
		},
		{
			name:  "nil input yields nil",
			input: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizeCategories(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeCategories(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
