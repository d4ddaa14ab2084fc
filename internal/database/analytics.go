// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/curbwatch/curbwatch/internal/metrics"
)

// defaultTopTypesLimit caps the top-types aggregate when no limit is given
const defaultTopTypesLimit = 10

// TypeCount is one row of the top violation types aggregate
type TypeCount struct {
	ViolationType string `json:"violation_type"`
	Count         int64  `json:"count"`
}

// HourCount is the violation count for one hour of day (0-23)
type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// TimeBucket is one DATE_TRUNC aggregation row. Bucket is the truncated
// UTC timestamp of the hour or day the counts fall into.
type TimeBucket struct {
	Bucket time.Time
	Count  int64
}

// GridCell is one snapped-grid aggregation row. CellLon and CellLat are the
// cell centroid in degrees, produced by rounding each coordinate to the
// nearest multiple of the grid size.
type GridCell struct {
	CellLon float64
	CellLat float64
	Count   int64
}

// TotalsRow carries COUNT(*) plus the time extent of the matching rows.
// MinTime and MaxTime are nil when no rows match.
type TotalsRow struct {
	Total   int64
	MinTime *time.Time
	MaxTime *time.Time
}

// ActivityRow summarizes recent event volume for model sufficiency checks
type ActivityRow struct {
	TotalEvents int64
	NonzeroDays int64
}

// DataTimeRange returns MIN(occurred_at) and MAX(occurred_at) for the
// non-time portion of the given scope. Time bounds are stripped before
// querying so that the anchor reflects the full data extent of the filter
// scope rather than the requested window. Both results are nil when no
// rows match.
func (db *DB) DataTimeRange(ctx context.Context, scope Scope) (*time.Time, *time.Time, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	where, args := buildScopeWhereClause(scope.WithoutTime())
	query := fmt.Sprintf(`SELECT MIN(occurred_at), MAX(occurred_at) FROM violations WHERE %s`, where)

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	queryStart := time.Now()
	var minTS, maxTS *time.Time
	err = stmt.QueryRowContext(ctx, args...).Scan(&minTS, &maxTS)
	metrics.RecordDBQuery("data_time_range", "violations", time.Since(queryStart), err)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query data time range: %w", err)
	}

	return minTS, maxTS, nil
}

// Totals returns COUNT(*), MIN(occurred_at) and MAX(occurred_at) for the
// full scope in a single scan.
func (db *DB) Totals(ctx context.Context, scope Scope) (TotalsRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	where, args := buildScopeWhereClause(scope)
	query := fmt.Sprintf(`SELECT COUNT(*), MIN(occurred_at), MAX(occurred_at) FROM violations WHERE %s`, where)

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return TotalsRow{}, err
	}

	queryStart := time.Now()
	var row TotalsRow
	err = stmt.QueryRowContext(ctx, args...).Scan(&row.Total, &row.MinTime, &row.MaxTime)
	metrics.RecordDBQuery("totals", "violations", time.Since(queryStart), err)
	if err != nil {
		return TotalsRow{}, fmt.Errorf("failed to query totals: %w", err)
	}

	return row, nil
}

// TopTypes returns the most frequent violation types within the scope,
// ordered by count descending with the type name as tie-break. A limit
// of zero or less falls back to the default of 10.
func (db *DB) TopTypes(ctx context.Context, scope Scope, limit int) ([]TypeCount, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = defaultTopTypesLimit
	}

	where, args := buildScopeWhereClause(scope)
	query := fmt.Sprintf(`
	SELECT violation_type, COUNT(*) AS cnt
	FROM violations
	WHERE %s
	GROUP BY violation_type
	ORDER BY cnt DESC, violation_type ASC
	LIMIT ?`, where)
	args = append(args, limit)

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return nil, err
	}

	queryStart := time.Now()
	rows, err := stmt.QueryContext(ctx, args...)
	metrics.RecordDBQuery("top_types", "violations", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query top types: %w", err)
	}
	defer rows.Close()

	var result []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.ViolationType, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		result = append(result, tc)
	}
	return result, rows.Err()
}

// buildTimeBucketSQL validates the interval and returns the corresponding
// DuckDB DATE_TRUNC expression for time bucketing.
func buildTimeBucketSQL(interval string) (string, error) {
	switch interval {
	case "hour":
		return "DATE_TRUNC('hour', occurred_at)", nil
	case "day":
		return "DATE_TRUNC('day', occurred_at)", nil
	default:
		return "", fmt.Errorf("invalid interval: must be hour or day")
	}
}

// TimeBuckets returns violation counts grouped into hour or day buckets,
// ordered by bucket ascending. Buckets with no violations are absent;
// gap filling is the caller's concern.
func (db *DB) TimeBuckets(ctx context.Context, scope Scope, interval string) ([]TimeBucket, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	bucketSQL, err := buildTimeBucketSQL(interval)
	if err != nil {
		return nil, err
	}

	where, args := buildScopeWhereClause(scope)
	query := fmt.Sprintf(`
	SELECT %s AS time_bucket, COUNT(*) AS cnt
	FROM violations
	WHERE %s
	GROUP BY time_bucket
	ORDER BY time_bucket`, bucketSQL, where)

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return nil, err
	}

	queryStart := time.Now()
	rows, err := stmt.QueryContext(ctx, args...)
	metrics.RecordDBQuery("time_buckets", "violations", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query time buckets: %w", err)
	}
	defer rows.Close()

	var result []TimeBucket
	for rows.Next() {
		var tb TimeBucket
		if err := rows.Scan(&tb.Bucket, &tb.Count); err != nil {
			return nil, fmt.Errorf("failed to scan time bucket: %w", err)
		}
		result = append(result, tb)
	}
	return result, rows.Err()
}

// HourOfDayCounts returns violation counts per hour of day. The result
// always has 24 entries; hours with no violations have count 0.
func (db *DB) HourOfDayCounts(ctx context.Context, scope Scope) ([]HourCount, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	where, args := buildScopeWhereClause(scope)
	query := fmt.Sprintf(`
	SELECT EXTRACT(HOUR FROM occurred_at) AS hour_of_day, COUNT(*) AS cnt
	FROM violations
	WHERE %s
	GROUP BY hour_of_day
	ORDER BY hour_of_day`, where)

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return nil, err
	}

	queryStart := time.Now()
	rows, err := stmt.QueryContext(ctx, args...)
	metrics.RecordDBQuery("hour_of_day", "violations", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query hour of day counts: %w", err)
	}
	defer rows.Close()

	byHour := make(map[int]int64, 24)
	for rows.Next() {
		var hour, count int64
		if err := rows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("failed to scan hour count: %w", err)
		}
		byHour[int(hour)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Fill all 24 hours; missing hours get count 0
	result := make([]HourCount, 24)
	for h := 0; h < 24; h++ {
		result[h] = HourCount{Hour: h, Count: byHour[h]}
	}
	return result, nil
}

// GridCellCounts returns violation counts per square grid cell. Each
// coordinate is snapped to the nearest multiple of sizeDeg (degrees), so a
// cell's centroid identifies it. Results are ordered by count descending.
func (db *DB) GridCellCounts(ctx context.Context, scope Scope, sizeDeg float64) ([]GridCell, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if sizeDeg <= 0 {
		return nil, fmt.Errorf("grid size must be positive, got %v", sizeDeg)
	}

	where, scopeArgs := buildScopeWhereClause(scope)
	query := fmt.Sprintf(`
	SELECT ROUND(longitude / ?) * ? AS cell_lon, ROUND(latitude / ?) * ? AS cell_lat, COUNT(*) AS cnt
	FROM violations
	WHERE %s
	GROUP BY cell_lon, cell_lat
	ORDER BY cnt DESC`, where)

	// Placeholders bind in SQL text order: the four grid-size args in the
	// SELECT list come before the scope args in the WHERE clause.
	args := append([]interface{}{sizeDeg, sizeDeg, sizeDeg, sizeDeg}, scopeArgs...)

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return nil, err
	}

	queryStart := time.Now()
	rows, err := stmt.QueryContext(ctx, args...)
	metrics.RecordDBQuery("grid_cells", "violations", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query grid cells: %w", err)
	}
	defer rows.Close()

	var result []GridCell
	for rows.Next() {
		var gc GridCell
		if err := rows.Scan(&gc.CellLon, &gc.CellLat, &gc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan grid cell: %w", err)
		}
		result = append(result, gc)
	}
	return result, rows.Err()
}

// RecentActivity returns the total event count and the number of distinct
// days with at least one event within the scope. Callers bound the scope
// to the sufficiency window (for example the 90 days up to the anchor).
func (db *DB) RecentActivity(ctx context.Context, scope Scope) (ActivityRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	where, args := buildScopeWhereClause(scope)
	query := fmt.Sprintf(`
	SELECT COUNT(*), COUNT(DISTINCT DATE_TRUNC('day', occurred_at))
	FROM violations
	WHERE %s`, where)

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return ActivityRow{}, err
	}

	queryStart := time.Now()
	var row ActivityRow
	err = stmt.QueryRowContext(ctx, args...).Scan(&row.TotalEvents, &row.NonzeroDays)
	metrics.RecordDBQuery("recent_activity", "violations", time.Since(queryStart), err)
	if err != nil {
		return ActivityRow{}, fmt.Errorf("failed to query recent activity: %w", err)
	}

	return row, nil
}
