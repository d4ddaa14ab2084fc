// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package query

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Schema versions baked into every signature. Bumping a version invalidates
// all existing keys of that kind after a deploy that changes the canonical
// format or the cached payload shape.
const (
	filterSchemaVersion   = "v1"
	responseSchemaVersion = "v1"
	modelSchemaVersion    = "v1"
)

// FilterSignature returns the canonical string form of a filter scope.
// Absent fields contribute an empty value, never a missing part, so the
// part count is fixed and the string is unambiguous.
func FilterSignature(p *Params) string {
	parts := []string{
		"fv=" + filterSchemaVersion,
		"bbox=" + formatBBox(p.BBox),
		"vt=" + strings.Join(p.Categories, ","),
		"h_start=" + formatIntPtr(p.HourStart),
		"h_end=" + formatIntPtr(p.HourEnd),
		"start=" + formatTimePtr(p.Start),
		"end=" + formatTimePtr(p.End),
	}
	return strings.Join(parts, "|")
}

// ResponseKey derives the response cache key for one request: endpoint,
// filter scope, resolved window and endpoint-specific knobs, hashed with
// SHA-256. The anchor timestamp participates so that new data arriving
// (which moves the anchor) naturally produces a different key.
//
// The returned key has the form "resp:<endpoint>:<64 hex chars>".
func ResponseKey(endpoint string, p *Params, anchor, winStart, winEnd *time.Time, extras map[string]string) string {
	return buildKey("resp", "rv="+responseSchemaVersion, endpoint, p, anchor, winStart, winEnd, extras)
}

// ModelKey derives the model artifact cache key for one request. It hashes
// the same material as ResponseKey under a separate prefix and schema
// version, so response and artifact entries never collide and can be
// invalidated independently by prefix.
//
// The returned key has the form "model:<endpoint>:<64 hex chars>".
func ModelKey(endpoint string, p *Params, anchor, winStart, winEnd *time.Time, extras map[string]string) string {
	return buildKey("model", "mv="+modelSchemaVersion, endpoint, p, anchor, winStart, winEnd, extras)
}

func buildKey(prefix, version, endpoint string, p *Params, anchor, winStart, winEnd *time.Time, extras map[string]string) string {
	parts := []string{
		prefix,
		"ep=" + endpoint,
		version,
		FilterSignature(p),
		"gran=" + p.Granularity,
		"anchor=" + formatTimePtr(anchor),
		"win_start=" + formatTimePtr(winStart),
		"win_end=" + formatTimePtr(winEnd),
	}

	if len(extras) > 0 {
		keys := make([]string, 0, len(extras))
		for k := range extras {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+"="+extras[k])
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return prefix + ":" + endpoint + ":" + hex.EncodeToString(sum[:])
}

// ShortHash returns the first 12 hex characters of the SHA-256 of a cache
// key. It identifies the key in logs and response metadata without leaking
// the full key material.
func ShortHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

func formatBBox(b *BBox) string {
	if b == nil {
		return ""
	}
	return formatCoord(b.MinLon) + "," + formatCoord(b.MinLat) + "," +
		formatCoord(b.MaxLon) + "," + formatCoord(b.MaxLat)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
