// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package services

import (
	"context"
	"time"

	"github.com/curbwatch/curbwatch/internal/logging"
	"github.com/curbwatch/curbwatch/internal/metrics"
)

// SweepTarget is anything the janitor can ask to drop its expired
// entries. Satisfied by *cache.Metered[V] and *ratelimit.Limiter.
type SweepTarget interface {
	CleanupExpired() int
	Name() string
}

// JanitorConfig configures the maintenance loop.
type JanitorConfig struct {
	// Interval between sweeps. Default: 1m.
	Interval time.Duration

	// Targets to sweep for expired entries each tick.
	Targets []SweepTarget

	// StartTime anchors the uptime gauge. Default: now.
	StartTime time.Time
}

// JanitorService periodically evicts expired entries from its sweep
// targets and refreshes the uptime gauge. Cache entries and limiter
// buckets are otherwise only reclaimed lazily on access, so without
// the sweep an idle process would pin stale state in memory.
type JanitorService struct {
	interval  time.Duration
	targets   []SweepTarget
	startTime time.Time
	name      string
}

// NewJanitorService creates the maintenance loop service.
func NewJanitorService(cfg JanitorConfig) *JanitorService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	return &JanitorService{
		interval:  cfg.Interval,
		targets:   cfg.Targets,
		startTime: cfg.StartTime,
		name:      "cache-janitor",
	}
}

// Serve implements suture.Service. It sweeps on a fixed ticker until
// the context is canceled.
func (j *JanitorService) Serve(ctx context.Context) error {
	metrics.UpdateUptime(j.startTime)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweep()
			metrics.UpdateUptime(j.startTime)
		}
	}
}

func (j *JanitorService) sweep() {
	for _, t := range j.targets {
		if removed := t.CleanupExpired(); removed > 0 {
			logging.Debug().
				Str("target", t.Name()).
				Int("removed", removed).
				Msg("Evicted expired entries")
		}
	}
}

// String implements fmt.Stringer; suture uses it to identify the
// service in supervision logs.
func (j *JanitorService) String() string {
	return j.name
}
