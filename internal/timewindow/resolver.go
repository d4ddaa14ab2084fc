// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

// Package timewindow resolves the effective query window for analytics
// requests.
//
// The service anchors relative windows to the data's own maximum timestamp
// instead of the wall clock. Identical data plus identical filters always
// resolve to an identical window, which is what makes downstream response
// caching sound: a cached entry can never mean something different from a
// fresh compute.
//
// Resolution is a pure function. The caller fetches the data extent (the
// MIN/MAX of occurred_at under the request's non-time filters) and passes
// it in; nothing here reads the clock or touches storage.
package timewindow

import (
	"time"

	"github.com/curbwatch/curbwatch/internal/models"
)

// Window source values reported in response metadata.
const (
	// SourceAnchored marks windows derived from the observed data maximum.
	SourceAnchored = "anchored"
	// SourceAbsolute marks windows taken verbatim from request parameters.
	SourceAbsolute = "absolute"
)

// NoDataMessage is surfaced in response metadata when the filtered scope
// holds no rows. An empty scope is a valid outcome, not an error.
const NoDataMessage = "No data for the given filter scope."

// Extent is the observed time extent of the data under a request's
// non-time filters. Both fields are nil when the scope holds no rows.
type Extent struct {
	Min *time.Time
	Max *time.Time
}

// Request describes the time-related inputs of one resolution.
//
// Start and End are the request's absolute bounds, either may be nil.
// Span, when positive, asks for a trailing window of that length ending at
// the anchor. EndAloneAbsolute opts into treating a lone End bound as an
// absolute window end rather than an anchoring hint; the hotspot endpoint
// uses this so that a pinned end date yields reproducible comparisons.
type Request struct {
	Start            *time.Time
	End              *time.Time
	Span             time.Duration
	EndAloneAbsolute bool
}

// Window is the outcome of a resolution.
//
// DataMin and DataMax mirror the extent the resolution saw. Anchor is the
// timestamp relative windows hang from (always DataMax when data exists).
// Start and End bound the effective window; either may be nil when the
// scope is empty or unbounded on that side. Empty marks a no-data scope,
// with Message carrying the client-facing explanation.
type Window struct {
	DataMin *time.Time
	DataMax *time.Time
	Anchor  *time.Time
	Start   *time.Time
	End     *time.Time
	Source  string
	Empty   bool
	Message string
}

// Resolve computes the effective window for one request. All returned
// timestamps are UTC.
//
// Resolution rules:
//   - Empty scope: Empty is set with NoDataMessage. Bounds given by the
//     request are echoed back (Source "absolute" when both are present);
//     nothing is invented for the missing sides.
//   - Both bounds present: the window is absolute, used verbatim.
//   - Lone End with EndAloneAbsolute: absolute window ending at End.
//   - Otherwise: anchored. The window ends at the data maximum; it starts
//     at Start, or at the span-derived trailing start, or at the data
//     minimum, whichever is latest.
func Resolve(extent Extent, req Request) Window {
	w := Window{
		DataMin: utcPtr(extent.Min),
		DataMax: utcPtr(extent.Max),
		Source:  SourceAnchored,
	}

	start := utcPtr(req.Start)
	end := utcPtr(req.End)

	if w.DataMax == nil {
		w.Empty = true
		w.Message = NoDataMessage
		if start != nil && end != nil {
			w.Start = start
			w.End = end
			w.Source = SourceAbsolute
		}
		return w
	}

	w.Anchor = w.DataMax

	if start != nil && end != nil {
		w.Start = start
		w.End = end
		w.Source = SourceAbsolute
		return w
	}

	if req.EndAloneAbsolute && end != nil {
		w.End = end
		w.Start = start
		w.Source = SourceAbsolute
		return w
	}

	// Anchored: the window ends at the data maximum.
	w.End = w.DataMax

	if req.Span > 0 {
		s := w.End.Add(-req.Span)
		s = laterOf(s, w.DataMin)
		s = laterOf(s, start)
		w.Start = &s
		return w
	}

	if start != nil {
		w.Start = start
		return w
	}
	w.Start = w.DataMin
	return w
}

// Meta converts a resolved window into the response metadata block.
func (w Window) Meta() *models.TimeWindowMeta {
	return &models.TimeWindowMeta{
		DataMinTS: w.DataMin,
		DataMaxTS: w.DataMax,
		AnchorTS:  w.Anchor,
		EffectiveWindow: models.EffectiveWindow{
			StartTS: w.Start,
			EndTS:   w.End,
		},
		WindowSource: w.Source,
		Timezone:     "UTC",
		Message:      w.Message,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func laterOf(t time.Time, bound *time.Time) time.Time {
	if bound != nil && bound.After(t) {
		return *bound
	}
	return t
}
