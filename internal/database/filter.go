// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package database

import (
	"fmt"
	"time"

	"github.com/curbwatch/curbwatch/internal/query"
)

// Scope contains the filter parameters shared by every violations query.
// All fields are optional and combine using AND logic. Category values
// use OR logic within the field (IN clause).
//
// Time bounds are inclusive on both ends. The hour filter matches the hour
// of day each violation occurred; when HourStart > HourEnd the range wraps
// across midnight (22 -> 2 matches hours 22, 23, 0, 1, 2), and a single
// bound matches that exact hour.
//
// SQL Generation:
// Scope generates parameterized WHERE clauses via buildScopeConditions():
//
//	WHERE 1=1 AND occurred_at >= ? AND occurred_at <= ?
//	  AND longitude BETWEEN ? AND ? AND latitude BETWEEN ? AND ?
//	  AND LOWER(violation_type) IN (?, ?)
//	  AND EXTRACT(HOUR FROM occurred_at) BETWEEN ? AND ?
//
// Scope is immutable after creation and safe for concurrent read access.
type Scope struct {
	Start      *time.Time
	End        *time.Time
	BBox       *query.BBox
	Categories []string
	HourStart  *int
	HourEnd    *int
}

// ScopeFromParams converts normalized request parameters into a query scope.
// The category slice is copied so later mutation of the params cannot leak
// into a scope already handed to a query.
func ScopeFromParams(p *query.Params) Scope {
	s := Scope{
		Start:     p.Start,
		End:       p.End,
		BBox:      p.BBox,
		HourStart: p.HourStart,
		HourEnd:   p.HourEnd,
	}
	if len(p.Categories) > 0 {
		s.Categories = append([]string(nil), p.Categories...)
	}
	return s
}

// WithoutTime returns a copy of the scope with the time bounds cleared.
// The data extent behind window anchoring is always computed on the
// non-time scope so that time filters narrow the window, not the anchor.
func (s Scope) WithoutTime() Scope {
	s.Start = nil
	s.End = nil
	return s
}

// WithWindow returns a copy of the scope bounded to [start, end]
func (s Scope) WithWindow(start, end time.Time) Scope {
	s.Start = &start
	s.End = &end
	return s
}

// buildScopeConditions builds WHERE clause conditions and args from a Scope.
// Returns (whereClauses, args) that can be used to build parameterized queries.
func buildScopeConditions(s Scope) ([]string, []interface{}) {
	whereClauses := []string{}
	args := []interface{}{}

	if s.Start != nil {
		whereClauses = append(whereClauses, "occurred_at >= ?")
		args = append(args, *s.Start)
	}

	if s.End != nil {
		whereClauses = append(whereClauses, "occurred_at <= ?")
		args = append(args, *s.End)
	}

	if s.BBox != nil {
		whereClauses = append(whereClauses, "longitude BETWEEN ? AND ?")
		args = append(args, s.BBox.MinLon, s.BBox.MaxLon)
		whereClauses = append(whereClauses, "latitude BETWEEN ? AND ?")
		args = append(args, s.BBox.MinLat, s.BBox.MaxLat)
	}

	if len(s.Categories) > 0 {
		placeholders := make([]string, len(s.Categories))
		for i, c := range s.Categories {
			placeholders[i] = "?"
			args = append(args, c)
		}
		whereClauses = append(whereClauses, fmt.Sprintf("LOWER(violation_type) IN (%s)", join(placeholders, ", ")))
	}

	switch {
	case s.HourStart != nil && s.HourEnd != nil:
		hs, he := *s.HourStart, *s.HourEnd
		if hs <= he {
			whereClauses = append(whereClauses, "EXTRACT(HOUR FROM occurred_at) BETWEEN ? AND ?")
		} else {
			// Wrap across midnight (e.g. 22 -> 2 means 22, 23, 0, 1, 2)
			whereClauses = append(whereClauses, "(EXTRACT(HOUR FROM occurred_at) >= ? OR EXTRACT(HOUR FROM occurred_at) <= ?)")
		}
		args = append(args, hs, he)
	case s.HourStart != nil:
		whereClauses = append(whereClauses, "EXTRACT(HOUR FROM occurred_at) = ?")
		args = append(args, *s.HourStart)
	case s.HourEnd != nil:
		whereClauses = append(whereClauses, "EXTRACT(HOUR FROM occurred_at) = ?")
		args = append(args, *s.HourEnd)
	}

	return whereClauses, args
}

// buildScopeWhereClause builds a WHERE clause string with "1=1" base for safe
// AND concatenation, plus the matching query arguments.
//
// Example:
//
//	whereClause, args := buildScopeWhereClause(scope)
//	query := fmt.Sprintf("SELECT COUNT(*) FROM violations WHERE %s", whereClause)
//	rows, err := db.conn.QueryContext(ctx, query, args...)
func buildScopeWhereClause(s Scope) (string, []interface{}) {
	clauses, args := buildScopeConditions(s)

	if len(clauses) == 0 {
		return "1=1", args
	}

	return "1=1 AND " + join(clauses, " AND "), args
}

// join is a helper function to join strings with a separator
func join(strs []string, sep string) string {
	result := ""
	for i, s := range strs {
		if i > 0 {
			result += sep
		}
		result += s
	}
	return result
}
