// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

// Package ratelimit implements fixed-window request limiting per
// client and endpoint group.
//
// Endpoint groups share a budget: every analytics endpoint in the
// "stats" group draws from one counter per client, while the more
// expensive "predict" group gets a tighter budget. The window is
// fixed, not sliding: the first request in a window starts the clock
// and the counter resets when the window elapses.
//
// This limiter is the domain layer on top of the go-chi/httprate
// ceiling middleware: httprate caps raw request volume per IP while
// this package enforces per-group budgets and produces Retry-After
// guidance for 429 responses.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/curbwatch/curbwatch/internal/metrics"
)

// Endpoint groups understood by the default configuration.
const (
	GroupStats   = "stats"
	GroupPredict = "predict"
	GroupIngest  = "ingest"
)

// Default budgets (requests per window).
const (
	DefaultWindow       = time.Minute
	DefaultLimit        = 60
	DefaultStatsLimit   = 60
	DefaultPredictLimit = 30
	DefaultIngestLimit  = 120
)

// Config controls limiter behavior. A nil or zero-valued field falls
// back to the package default.
type Config struct {
	// Window is the fixed window length.
	Window time.Duration

	// Limits maps an endpoint group to its per-window budget.
	// A limit of zero or less disables limiting for that group.
	Limits map[string]int

	// DefaultLimit applies to groups absent from Limits.
	DefaultLimit int

	// Disabled turns the limiter into a pass-through.
	Disabled bool
}

// DefaultConfig returns the stock budgets.
func DefaultConfig() *Config {
	return &Config{
		Window: DefaultWindow,
		Limits: map[string]int{
			GroupStats:   DefaultStatsLimit,
			GroupPredict: DefaultPredictLimit,
			GroupIngest:  DefaultIngestLimit,
		},
		DefaultLimit: DefaultLimit,
	}
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed           bool
	Group             string
	Limit             int
	RetryAfterSeconds int
}

// windowEntry tracks one client's consumption within the current window.
type windowEntry struct {
	windowStart time.Time
	count       int
}

// GroupCounters holds per-group decision counters.
type GroupCounters struct {
	Allowed int64 `json:"allowed"`
	Blocked int64 `json:"blocked"`
}

// Snapshot is a point-in-time view of limiter state for diagnostics.
type Snapshot struct {
	Groups         map[string]GroupCounters `json:"groups"`
	TrackedClients int                      `json:"tracked_clients"`
}

// Limiter enforces fixed-window budgets keyed by (client, group).
type Limiter struct {
	mu           sync.Mutex
	window       time.Duration
	limits       map[string]int
	defaultLimit int
	disabled     bool

	entries   map[string]*windowEntry
	lastPurge time.Time

	allowed map[string]int64
	blocked map[string]int64
}

// NewLimiter creates a limiter from cfg. Passing nil uses DefaultConfig.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit == 0 {
		defaultLimit = DefaultLimit
	}

	limits := make(map[string]int, len(cfg.Limits))
	for group, limit := range cfg.Limits {
		limits[group] = limit
	}

	return &Limiter{
		window:       window,
		limits:       limits,
		defaultLimit: defaultLimit,
		disabled:     cfg.Disabled,
		entries:      make(map[string]*windowEntry),
		lastPurge:    time.Now(),
		allowed:      make(map[string]int64),
		blocked:      make(map[string]int64),
	}
}

// Check consumes one request from clientID's budget for group and
// reports whether it is allowed. Blocked decisions carry the number
// of seconds until the window resets, never less than one.
func (l *Limiter) Check(clientID, group string) Decision {
	limit := l.limitFor(group)

	if l.disabled || limit <= 0 {
		return Decision{Allowed: true, Group: group, Limit: limit}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.maybePurge(now)

	key := clientID + "|" + group
	e, exists := l.entries[key]

	if !exists || now.Sub(e.windowStart) >= l.window {
		l.entries[key] = &windowEntry{windowStart: now, count: 1}
		l.allowed[group]++
		metrics.RecordRateLimitDecision(group, true)
		return Decision{Allowed: true, Group: group, Limit: limit}
	}

	e.count++
	if e.count <= limit {
		l.allowed[group]++
		metrics.RecordRateLimitDecision(group, true)
		return Decision{Allowed: true, Group: group, Limit: limit}
	}

	l.blocked[group]++
	metrics.RecordRateLimitDecision(group, false)

	retry := int((l.window - now.Sub(e.windowStart)).Seconds())
	if retry < 1 {
		retry = 1
	}
	return Decision{
		Allowed:           false,
		Group:             group,
		Limit:             limit,
		RetryAfterSeconds: retry,
	}
}

// SnapshotState returns decision counters per group and the number of
// tracked (client, group) pairs.
func (l *Limiter) SnapshotState() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	groups := make(map[string]GroupCounters, len(l.allowed)+len(l.blocked))
	for group, n := range l.allowed {
		c := groups[group]
		c.Allowed = n
		groups[group] = c
	}
	for group, n := range l.blocked {
		c := groups[group]
		c.Blocked = n
		groups[group] = c
	}

	return Snapshot{
		Groups:         groups,
		TrackedClients: len(l.entries),
	}
}

// CleanupExpired drops every entry whose window ended at least one
// full window ago and reports how many were removed. The maintenance
// janitor calls this on its sweep interval; Check also purges
// opportunistically so the map stays bounded without the janitor.
func (l *Limiter) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.purgeStale(time.Now())
}

// Name identifies the limiter in janitor sweep logs.
func (l *Limiter) Name() string {
	return "ratelimit"
}

// limitFor resolves the budget for a group.
func (l *Limiter) limitFor(group string) int {
	if limit, ok := l.limits[group]; ok {
		return limit
	}
	return l.defaultLimit
}

// purgeStale drops entries whose window ended at least one full window
// ago. Must be called with lock held.
func (l *Limiter) purgeStale(now time.Time) int {
	removed := 0
	for key, e := range l.entries {
		if now.Sub(e.windowStart) >= 2*l.window {
			delete(l.entries, key)
			removed++
		}
	}
	l.lastPurge = now
	return removed
}

// maybePurge runs the stale scan at most once per two windows.
// Must be called with lock held.
func (l *Limiter) maybePurge(now time.Time) {
	if now.Sub(l.lastPurge) < 2*l.window {
		return
	}
	l.purgeStale(now)
}

// ClientID extracts the client identity for limiter keys. When
// trustForwarded is set, the first hop of X-Forwarded-For wins;
// otherwise only the connection's remote address is believed, since
// forwarded headers are caller-controlled.
func ClientID(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if i := strings.Index(fwd, ","); i >= 0 {
				fwd = fwd[:i]
			}
			if ip := strings.TrimSpace(fwd); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
