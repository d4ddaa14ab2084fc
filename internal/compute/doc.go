// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

// Package compute implements the analytics computations behind the query
// endpoints: stats, time series, trends, forecasts, hotspot grids and the
// seasonal-rate risk model.
//
// Every computation is deterministic in its inputs. Time windows arrive
// pre-resolved from the caller; nothing in this package reads the wall
// clock, so a given (scope, window, request) triple always produces the
// same payload. That property is what makes the response cache sound.
//
// Expensive fits (forecast, risk model) produce a reusable artifact
// alongside the payload. Callers may hand a previously cached artifact
// back in; the computation then rebuilds the payload without touching the
// store.
package compute
