// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/curbwatch/curbwatch/internal/models"
)

// mockViolationStore implements ViolationStore for testing.
type mockViolationStore struct {
	mu           sync.Mutex
	violations   []models.Violation
	insertErr    error
	insertCalls  int
	batchSizes   []int
	flushSignals chan struct{}

	// IDs reported as duplicates instead of inserted
	duplicateIDs map[string]bool
}

func newMockViolationStore() *mockViolationStore {
	return &mockViolationStore{
		violations:   make([]models.Violation, 0),
		batchSizes:   make([]int, 0),
		flushSignals: make(chan struct{}, 100),
		duplicateIDs: make(map[string]bool),
	}
}

func (m *mockViolationStore) InsertViolations(ctx context.Context, violations []models.Violation) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insertCalls++
	m.batchSizes = append(m.batchSizes, len(violations))

	if m.insertErr != nil {
		return 0, 0, m.insertErr
	}

	inserted, duplicates := 0, 0
	for _, v := range violations {
		if m.duplicateIDs[v.ID] {
			duplicates++
			continue
		}
		m.violations = append(m.violations, v)
		inserted++
	}

	select {
	case m.flushSignals <- struct{}{}:
	default:
	}
	return inserted, duplicates, nil
}

func (m *mockViolationStore) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErr = err
}

func (m *mockViolationStore) markDuplicate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicateIDs[id] = true
}

func (m *mockViolationStore) stored() []models.Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]models.Violation, len(m.violations))
	copy(copied, m.violations)
	return copied
}

func (m *mockViolationStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertCalls
}

func (m *mockViolationStore) waitForFlush(timeout time.Duration) bool {
	select {
	case <-m.flushSignals:
		return true
	case <-time.After(timeout):
		return false
	}
}

func testViolation(i int) models.Violation {
	return models.Violation{
		ID:            fmt.Sprintf("v-%04d", i),
		OccurredAt:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
		ViolationType: "double_parking",
		Latitude:      40.7128,
		Longitude:     -74.006,
		IngestedAt:    time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestNewAppender(t *testing.T) {
	store := newMockViolationStore()
	cfg := AppenderConfig{BatchSize: 100, FlushInterval: time.Second}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}
	if appender == nil {
		t.Fatal("NewAppender() returned nil")
	}

	stats := appender.Stats()
	if stats.EventsReceived != 0 {
		t.Errorf("Stats().EventsReceived = %d, want 0", stats.EventsReceived)
	}
	if stats.EventsFlushed != 0 {
		t.Errorf("Stats().EventsFlushed = %d, want 0", stats.EventsFlushed)
	}
	if stats.FlushCount != 0 {
		t.Errorf("Stats().FlushCount = %d, want 0", stats.FlushCount)
	}
}

func TestNewAppender_InvalidConfig(t *testing.T) {
	store := newMockViolationStore()

	tests := []struct {
		name    string
		cfg     AppenderConfig
		wantErr string
	}{
		{
			name:    "nil store",
			cfg:     AppenderConfig{BatchSize: 100, FlushInterval: time.Second},
			wantErr: "store required",
		},
		{
			name:    "zero batch size",
			cfg:     AppenderConfig{BatchSize: 0, FlushInterval: time.Second},
			wantErr: "batch size must be positive",
		},
		{
			name:    "negative batch size",
			cfg:     AppenderConfig{BatchSize: -1, FlushInterval: time.Second},
			wantErr: "batch size must be positive",
		},
		{
			name:    "zero flush interval",
			cfg:     AppenderConfig{BatchSize: 100, FlushInterval: 0},
			wantErr: "flush interval must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var st ViolationStore
			if tt.name != "nil store" {
				st = store
			}
			_, err := NewAppender(st, tt.cfg)
			if err == nil {
				t.Fatal("NewAppender() error = nil, want error")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("NewAppender() error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestAppender_Append_Buffers(t *testing.T) {
	store := newMockViolationStore()
	cfg := AppenderConfig{
		BatchSize:     10, // Won't trigger with just 1 event
		FlushInterval: time.Hour,
	}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	if err := appender.Append(context.Background(), testViolation(1)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	stats := appender.Stats()
	if stats.EventsReceived != 1 {
		t.Errorf("Stats().EventsReceived = %d, want 1", stats.EventsReceived)
	}
	if stats.EventsFlushed != 0 {
		t.Errorf("Stats().EventsFlushed = %d, want 0 (not flushed yet)", stats.EventsFlushed)
	}
	if stats.BufferSize != 1 {
		t.Errorf("Stats().BufferSize = %d, want 1", stats.BufferSize)
	}
}

func TestAppender_Append_BatchTrigger(t *testing.T) {
	store := newMockViolationStore()
	cfg := AppenderConfig{
		BatchSize:     5,
		FlushInterval: time.Hour, // Won't trigger
	}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := appender.Append(ctx, testViolation(i)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if !store.waitForFlush(time.Second) {
		t.Fatal("flush not triggered within timeout")
	}

	// Stats are updated after InsertViolations returns; give the flush
	// goroutine time to finish.
	time.Sleep(100 * time.Millisecond)

	if got := len(store.stored()); got != 5 {
		t.Errorf("store rows = %d, want 5", got)
	}

	stats := appender.Stats()
	if stats.EventsFlushed != 5 {
		t.Errorf("Stats().EventsFlushed = %d, want 5", stats.EventsFlushed)
	}
	if stats.RowsInserted != 5 {
		t.Errorf("Stats().RowsInserted = %d, want 5", stats.RowsInserted)
	}
	if stats.FlushCount != 1 {
		t.Errorf("Stats().FlushCount = %d, want 1", stats.FlushCount)
	}
	if stats.BufferSize != 0 {
		t.Errorf("Stats().BufferSize = %d, want 0", stats.BufferSize)
	}
}

func TestAppender_Append_IntervalTrigger(t *testing.T) {
	store := newMockViolationStore()
	cfg := AppenderConfig{
		BatchSize:     1000, // Won't trigger
		FlushInterval: 100 * time.Millisecond,
	}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}
	defer appender.Close()

	ctx := context.Background()
	if err := appender.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := appender.Append(ctx, testViolation(i)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if !store.waitForFlush(500 * time.Millisecond) {
		t.Fatal("interval flush not triggered within timeout")
	}

	time.Sleep(100 * time.Millisecond)

	if got := len(store.stored()); got != 3 {
		t.Errorf("store rows = %d, want 3", got)
	}

	stats := appender.Stats()
	if stats.EventsFlushed != 3 {
		t.Errorf("Stats().EventsFlushed = %d, want 3", stats.EventsFlushed)
	}
}

func TestAppender_Close_FlushesPending(t *testing.T) {
	store := newMockViolationStore()
	cfg := AppenderConfig{
		BatchSize:     100, // Won't trigger
		FlushInterval: time.Hour,
	}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := appender.Append(ctx, testViolation(i)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if len(store.stored()) != 0 {
		t.Fatal("rows should not be flushed before Close")
	}

	if err := appender.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := len(store.stored()); got != 5 {
		t.Errorf("store rows = %d, want 5", got)
	}

	stats := appender.Stats()
	if stats.EventsFlushed != 5 {
		t.Errorf("Stats().EventsFlushed = %d, want 5", stats.EventsFlushed)
	}
}

func TestAppender_Close_Idempotent(t *testing.T) {
	store := newMockViolationStore()
	cfg := AppenderConfig{BatchSize: 100, FlushInterval: time.Second}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	_ = appender.Append(context.Background(), testViolation(1))

	for i := 0; i < 3; i++ {
		if err := appender.Close(); err != nil {
			t.Errorf("Close() call %d error = %v", i+1, err)
		}
	}

	if got := len(store.stored()); got != 1 {
		t.Errorf("store rows = %d, want 1", got)
	}
}

func TestAppender_Append_AfterClose(t *testing.T) {
	store := newMockViolationStore()
	cfg := AppenderConfig{BatchSize: 100, FlushInterval: time.Second}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	_ = appender.Close()

	err = appender.Append(context.Background(), testViolation(1))
	if err == nil {
		t.Fatal("Append() after Close() should error")
	}
	if err.Error() != "appender is closed" {
		t.Errorf("Append() error = %q, want %q", err.Error(), "appender is closed")
	}
}

func TestAppender_Flush_StoreError(t *testing.T) {
	store := newMockViolationStore()
	cfg := AppenderConfig{
		BatchSize:     2,
		FlushInterval: time.Hour,
	}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	store.setError(errors.New("database connection failed"))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_ = appender.Append(ctx, testViolation(i))
	}

	time.Sleep(100 * time.Millisecond)

	stats := appender.Stats()
	if stats.ErrorCount != 1 {
		t.Errorf("Stats().ErrorCount = %d, want 1", stats.ErrorCount)
	}
	if stats.LastError == "" {
		t.Error("Stats().LastError should be set")
	}

	// Rows are retained in the buffer for retry
	if stats.BufferSize != 2 {
		t.Errorf("Stats().BufferSize = %d, want 2 (retained after error)", stats.BufferSize)
	}

	// Clearing the error lets a later flush drain the retained rows
	store.setError(nil)
	if err := appender.Flush(ctx); err != nil {
		t.Fatalf("Flush() after recovery error = %v", err)
	}
	if got := len(store.stored()); got != 2 {
		t.Errorf("store rows after recovery = %d, want 2", got)
	}
}

func TestAppender_Flush_Manual(t *testing.T) {
	store := newMockViolationStore()
	cfg := AppenderConfig{
		BatchSize:     1000, // Won't trigger
		FlushInterval: time.Hour,
	}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = appender.Append(ctx, testViolation(i))
	}

	if err := appender.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if got := len(store.stored()); got != 5 {
		t.Errorf("store rows = %d, want 5", got)
	}

	stats := appender.Stats()
	if stats.BufferSize != 0 {
		t.Errorf("Stats().BufferSize = %d, want 0", stats.BufferSize)
	}
}

func TestAppender_CountsStoreDuplicates(t *testing.T) {
	store := newMockViolationStore()
	store.markDuplicate("v-0001")
	store.markDuplicate("v-0003")
	cfg := AppenderConfig{BatchSize: 100, FlushInterval: time.Hour}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = appender.Append(ctx, testViolation(i))
	}

	if err := appender.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	stats := appender.Stats()
	if stats.EventsFlushed != 5 {
		t.Errorf("Stats().EventsFlushed = %d, want 5", stats.EventsFlushed)
	}
	if stats.RowsInserted != 3 {
		t.Errorf("Stats().RowsInserted = %d, want 3", stats.RowsInserted)
	}
	if stats.DuplicateRows != 2 {
		t.Errorf("Stats().DuplicateRows = %d, want 2", stats.DuplicateRows)
	}
	if got := len(store.stored()); got != 3 {
		t.Errorf("store rows = %d, want 3", got)
	}
}

func TestAppender_FlushChunksLargeBuffer(t *testing.T) {
	store := newMockViolationStore()
	cfg := AppenderConfig{
		BatchSize:     4,
		FlushInterval: time.Hour,
	}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	// Fill the buffer beyond one batch without letting async flushes
	// drain it, then flush manually and verify chunk boundaries.
	appender.mu.Lock()
	for i := 0; i < 10; i++ {
		appender.buffer = append(appender.buffer, testViolation(i))
	}
	appender.mu.Unlock()

	if err := appender.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	store.mu.Lock()
	batches := append([]int(nil), store.batchSizes...)
	store.mu.Unlock()

	want := []int{4, 4, 2}
	if len(batches) != len(want) {
		t.Fatalf("insert batches = %v, want %v", batches, want)
	}
	for i := range want {
		if batches[i] != want[i] {
			t.Errorf("batch %d size = %d, want %d", i, batches[i], want[i])
		}
	}
}

func TestAppender_ConcurrentAppend(t *testing.T) {
	store := newMockViolationStore()
	cfg := AppenderConfig{
		BatchSize:     50,
		FlushInterval: time.Hour,
	}

	appender, err := NewAppender(store, cfg)
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}

	ctx := context.Background()
	const numGoroutines = 10
	const eventsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for g := 0; g < numGoroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < eventsPerGoroutine; i++ {
				if err := appender.Append(ctx, testViolation(id*1000+i)); err != nil {
					t.Errorf("Append() error = %v", err)
				}
			}
		}(g)
	}

	wg.Wait()

	if err := appender.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	totalEvents := numGoroutines * eventsPerGoroutine
	if got := len(store.stored()); got != totalEvents {
		t.Errorf("store rows = %d, want %d", got, totalEvents)
	}

	stats := appender.Stats()
	if stats.EventsReceived != int64(totalEvents) {
		t.Errorf("Stats().EventsReceived = %d, want %d", stats.EventsReceived, totalEvents)
	}
	if stats.EventsFlushed != int64(totalEvents) {
		t.Errorf("Stats().EventsFlushed = %d, want %d", stats.EventsFlushed, totalEvents)
	}
}
