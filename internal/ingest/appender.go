// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/curbwatch/curbwatch/internal/logging"
	"github.com/curbwatch/curbwatch/internal/metrics"
	"github.com/curbwatch/curbwatch/internal/models"
)

// flushTimeout bounds a single flush transaction. Flushes run on
// detached contexts so shutdown of the caller cannot abandon buffered
// rows mid-insert.
const flushTimeout = 30 * time.Second

// ViolationStore is the persistence interface the appender writes to.
// The DuckDB database implements it; tests substitute mocks.
type ViolationStore interface {
	// InsertViolations inserts a batch, skipping rows whose ID already
	// exists, and reports how many rows were inserted and skipped.
	InsertViolations(ctx context.Context, violations []models.Violation) (inserted int, duplicates int, err error)
}

// AppenderStats holds runtime statistics for monitoring.
type AppenderStats struct {
	EventsReceived int64         // Total events received via Append
	EventsFlushed  int64         // Total events handed to the store
	RowsInserted   int64         // Rows actually written
	DuplicateRows  int64         // Rows the store skipped as already present
	FlushCount     int64         // Number of flush operations
	ErrorCount     int64         // Number of failed flushes
	LastFlushTime  time.Time     // Time of last successful flush
	LastError      string        // Last error message
	BufferSize     int           // Current buffer size
	AvgFlushTime   time.Duration // Average flush duration
}

// Appender buffers incoming violations and writes them to the store in
// batches, either when the batch size is reached or the flush interval
// elapses. On flush failure the unflushed rows are retained for retry.
//
// Flushes are serialized through flushMu so timer-based and
// batch-triggered flushes cannot interleave inserts.
type Appender struct {
	store  ViolationStore
	config AppenderConfig
	events *logging.EventLogger

	mu     sync.Mutex
	buffer []models.Violation

	// Serializes flush operations to keep insert order stable.
	flushMu sync.Mutex

	closed   atomic.Bool
	started  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}
	flushWg  sync.WaitGroup // In-flight async flushes, drained on shutdown

	eventsReceived atomic.Int64
	eventsFlushed  atomic.Int64
	rowsInserted   atomic.Int64
	duplicateRows  atomic.Int64
	flushCount     atomic.Int64
	errorCount     atomic.Int64
	lastFlushTime  atomic.Value // stores time.Time
	lastError      atomic.Value // stores string
	totalFlushTime atomic.Int64 // nanoseconds for averaging
}

// NewAppender creates an Appender over the given store.
// Returns an error if the store is nil or the configuration is invalid.
func NewAppender(store ViolationStore, cfg AppenderConfig) (*Appender, error) {
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive")
	}

	a := &Appender{
		store:    store,
		config:   cfg,
		events:   logging.NewEventLogger(),
		buffer:   make([]models.Violation, 0, cfg.BatchSize),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	a.lastFlushTime.Store(time.Time{})
	a.lastError.Store("")

	return a, nil
}

// Start begins the periodic flush timer. Must be called to enable
// interval-based flushing. Idempotent.
func (a *Appender) Start(ctx context.Context) error {
	if a.closed.Load() {
		return fmt.Errorf("appender is closed")
	}
	if a.started.Swap(true) {
		return nil // Already started
	}

	go a.flushLoop(ctx)
	return nil
}

// Append adds a violation to the buffer. Returns an error if the
// appender is closed. Reaching the batch size triggers an async flush.
func (a *Appender) Append(ctx context.Context, v models.Violation) error {
	if a.closed.Load() {
		return fmt.Errorf("appender is closed")
	}

	a.mu.Lock()
	a.buffer = append(a.buffer, v)
	bufferSize := len(a.buffer)
	a.eventsReceived.Add(1)
	needsFlush := bufferSize >= a.config.BatchSize
	a.mu.Unlock()

	logging.Trace().
		Str("event_id", v.ID).
		Str("violation_type", v.ViolationType).
		Int("buffer_size", bufferSize).
		Int("batch_size", a.config.BatchSize).
		Msg("violation buffered")

	if needsFlush {
		a.flushWg.Add(1)
		go func() {
			defer a.flushWg.Done()
			// Detached context: the caller's context may be canceled as
			// soon as its message handler returns, but the flush must
			// still land the rows.
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()
			a.doFlush(flushCtx)
		}()
	}

	return nil
}

// Flush synchronously flushes all buffered violations, waiting for any
// in-flight async flushes first.
func (a *Appender) Flush(ctx context.Context) error {
	a.flushWg.Wait()
	return a.doFlushSync(ctx)
}

// Close stops the appender and flushes pending violations. Idempotent.
func (a *Appender) Close() error {
	if a.closed.Swap(true) {
		return nil // Already closed
	}

	if a.started.Load() {
		close(a.stopChan)
		<-a.doneChan
	}

	a.flushWg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	return a.doFlushSync(ctx)
}

// Stats returns current runtime statistics.
func (a *Appender) Stats() AppenderStats {
	a.mu.Lock()
	bufferSize := len(a.buffer)
	a.mu.Unlock()

	var avgFlushTime time.Duration
	if count := a.flushCount.Load(); count > 0 {
		avgFlushTime = time.Duration(a.totalFlushTime.Load() / count)
	}

	var lastFlushTime time.Time
	if t, ok := a.lastFlushTime.Load().(time.Time); ok {
		lastFlushTime = t
	}
	var lastError string
	if e, ok := a.lastError.Load().(string); ok {
		lastError = e
	}

	return AppenderStats{
		EventsReceived: a.eventsReceived.Load(),
		EventsFlushed:  a.eventsFlushed.Load(),
		RowsInserted:   a.rowsInserted.Load(),
		DuplicateRows:  a.duplicateRows.Load(),
		FlushCount:     a.flushCount.Load(),
		ErrorCount:     a.errorCount.Load(),
		LastFlushTime:  lastFlushTime,
		LastError:      lastError,
		BufferSize:     bufferSize,
		AvgFlushTime:   avgFlushTime,
	}
}

// flushLoop runs the periodic flush timer. The parent context controls
// shutdown only; each flush gets a fresh detached context so a slow
// insert is never cut short by supervisor cancellation.
func (a *Appender) flushLoop(ctx context.Context) {
	defer close(a.doneChan)

	ticker := time.NewTicker(a.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		case <-ticker.C:
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			a.doFlush(flushCtx)
			cancel()
		}
	}
}

// doFlush performs an async flush. The error is recorded in stats and
// logged but not returned.
func (a *Appender) doFlush(ctx context.Context) {
	if err := a.doFlushSync(ctx); err != nil {
		a.lastError.Store(err.Error())
		logging.Debug().Err(err).Msg("async flush error")
	}
}

// doFlushSync flushes the buffer in chunks of BatchSize. Returns nil
// if the buffer is empty or every chunk lands. On error the unflushed
// tail is restored to the buffer for retry.
//
// Chunking keeps each insert transaction bounded; a backlog that piled
// up during a store outage is not replayed as one giant batch.
func (a *Appender) doFlushSync(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return nil
	}

	// Take ownership of the buffer
	violations := a.buffer
	a.buffer = make([]models.Violation, 0, a.config.BatchSize)
	a.mu.Unlock()

	logging.Debug().
		Int("count", len(violations)).
		Int("batch_size", a.config.BatchSize).
		Msg("flushing violations to store")

	totalFlushed := 0
	totalInserted := 0
	totalDuplicates := 0
	totalStart := time.Now()

	for start := 0; start < len(violations); start += a.config.BatchSize {
		end := start + a.config.BatchSize
		if end > len(violations) {
			end = len(violations)
		}
		chunk := violations[start:end]

		chunkStart := time.Now()
		inserted, duplicates, err := a.store.InsertViolations(ctx, chunk)
		chunkElapsed := time.Since(chunkStart)

		if err != nil {
			// Restore only unflushed rows for retry
			unflushed := violations[start:]
			a.mu.Lock()
			a.buffer = append(unflushed, a.buffer...)
			a.mu.Unlock()

			a.errorCount.Add(1)
			a.lastError.Store(err.Error())
			if totalFlushed > 0 {
				a.eventsFlushed.Add(int64(totalFlushed))
				a.rowsInserted.Add(int64(totalInserted))
				a.duplicateRows.Add(int64(totalDuplicates))
				a.flushCount.Add(1)
			}
			return fmt.Errorf("flush violations (chunk %d-%d): %w", start, end, err)
		}

		totalFlushed += len(chunk)
		totalInserted += inserted
		totalDuplicates += duplicates

		metrics.RecordIngestBatchFlush(chunkElapsed, len(chunk))
	}

	totalElapsed := time.Since(totalStart)
	a.events.LogBatchFlush(ctx, totalFlushed, totalElapsed.Milliseconds())

	a.eventsFlushed.Add(int64(totalFlushed))
	a.rowsInserted.Add(int64(totalInserted))
	a.duplicateRows.Add(int64(totalDuplicates))
	a.flushCount.Add(1)
	a.totalFlushTime.Add(totalElapsed.Nanoseconds())
	a.lastFlushTime.Store(time.Now())
	a.lastError.Store("")

	metrics.RecordIngestAppended(totalInserted)

	return nil
}
