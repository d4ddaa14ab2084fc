// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// getTableCreationQueries returns the table creation SQL statements.
//
// The violations table is the single fact table. Coordinates are stored as
// plain DOUBLE columns in WGS84; grid aggregation snaps them in SQL, so no
// geometry column or spatial extension is needed. The VARCHAR primary key
// carries the client-supplied or generated event ID and backs the
// ON CONFLICT DO NOTHING idempotent insert path.
func getTableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS violations (
			id VARCHAR PRIMARY KEY,
			occurred_at TIMESTAMP NOT NULL,
			violation_type VARCHAR NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			ingested_at TIMESTAMP NOT NULL
		);`,
	}
}

// createIndexes creates all database indexes
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range getIndexQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}

	return nil
}

// getIndexQueries returns index creation SQL statements
func getIndexQueries() []string {
	return []string{
		// Every analytics query filters or buckets on occurred_at
		`CREATE INDEX IF NOT EXISTS idx_violations_occurred_at ON violations(occurred_at);`,
		// Category filter (LOWER(violation_type) IN ...)
		`CREATE INDEX IF NOT EXISTS idx_violations_type ON violations(violation_type);`,
		// Bounding-box filter and grid snapping
		`CREATE INDEX IF NOT EXISTS idx_violations_coords ON violations(longitude, latitude);`,
	}
}
