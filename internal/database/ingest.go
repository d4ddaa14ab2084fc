// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/curbwatch/curbwatch/internal/logging"
	"github.com/curbwatch/curbwatch/internal/metrics"
	"github.com/curbwatch/curbwatch/internal/models"
)

// InsertViolations persists a batch of violations in a single transaction.
// Rows whose ID already exists are skipped via ON CONFLICT DO NOTHING and
// reported as duplicates, which makes redelivery from the message broker
// idempotent. Returns the number of rows actually inserted and the number
// of duplicates skipped.
func (db *DB) InsertViolations(ctx context.Context, violations []models.Violation) (inserted int, duplicates int, err error) {
	if len(violations) == 0 {
		return 0, 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	queryStart := time.Now()
	defer func() {
		metrics.RecordDBQuery("insert_batch", "violations", time.Since(queryStart), err)
	}()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Ensure transaction is finalized
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().
					Err(rbErr).
					AnErr("original_error", err).
					Msg("Transaction rollback failed")
			}
		}
	}()

	// Prepare statement within transaction for efficiency
	query := `INSERT INTO violations (
		id, occurred_at, violation_type, latitude, longitude, ingested_at
	) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("Failed to close prepared statement")
		}
	}()

	inserted = 0
	duplicates = 0

	for i := range violations {
		v := violations[i]

		// Ensure ID and IngestedAt are set
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if v.IngestedAt.IsZero() {
			v.IngestedAt = time.Now().UTC()
		}

		result, execErr := stmt.ExecContext(ctx,
			v.ID, v.OccurredAt, v.ViolationType, v.Latitude, v.Longitude, v.IngestedAt)
		if execErr != nil {
			err = fmt.Errorf("failed to insert violation %d (id=%s): %w", i, v.ID, execErr)
			return 0, 0, err
		}

		// Check if row was actually inserted (affected rows > 0)
		rowsAffected, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			err = fmt.Errorf("failed to get rows affected for violation %d: %w", i, rowsErr)
			return 0, 0, err
		}

		if rowsAffected > 0 {
			inserted++
		} else {
			duplicates++
			logging.Debug().
				Str("id", v.ID).
				Str("violation_type", v.ViolationType).
				Msg("Batch duplicate detected")
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	logging.Debug().
		Int("inserted", inserted).
		Int("duplicates", duplicates).
		Int("batch_size", len(violations)).
		Msg("Violation batch persisted")

	return inserted, duplicates, nil
}
