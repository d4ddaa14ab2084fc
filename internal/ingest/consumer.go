// Curbwatch - Geospatial Violation Analytics Service
// Copyright 2026 The Curbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/curbwatch/curbwatch

package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/curbwatch/curbwatch/internal/cache"
	"github.com/curbwatch/curbwatch/internal/logging"
	"github.com/curbwatch/curbwatch/internal/metrics"
)

// ConsumerStats holds runtime statistics for monitoring.
type ConsumerStats struct {
	EventsConsumed    int64     // Total messages received from the stream
	EventsAppended    int64     // Messages handed to the appender
	ParseErrors       int64     // Payloads dropped as malformed
	DuplicatesSkipped int64     // Messages skipped by the dedup window
	LastEventTime     time.Time // Time of last received message
}

// Consumer turns stream messages into appender writes. Malformed
// payloads are acked and dropped since redelivery cannot fix them;
// append failures are nacked for redelivery.
//
// A TTL-bounded LRU keyed by report ID suppresses redeliveries and
// client resubmits before they reach the store. The store's own ID
// check backstops anything that slips past the window.
type Consumer struct {
	serializer *Serializer
	appender   *Appender
	dedup      *cache.LRU[struct{}]
	events     *logging.EventLogger

	eventsConsumed    atomic.Int64
	eventsAppended    atomic.Int64
	parseErrors       atomic.Int64
	duplicatesSkipped atomic.Int64
	lastEventTime     atomic.Value // stores time.Time
}

// NewConsumer creates a consumer feeding the given appender.
func NewConsumer(appender *Appender, cfg ConsumerConfig) (*Consumer, error) {
	if appender == nil {
		return nil, fmt.Errorf("appender required")
	}
	if cfg.DedupTTL <= 0 {
		return nil, fmt.Errorf("dedup TTL must be positive")
	}

	c := &Consumer{
		serializer: NewSerializer(),
		appender:   appender,
		dedup:      cache.NewLRU[struct{}](cfg.DedupCapacity, cfg.DedupTTL),
		events:     logging.NewEventLogger(),
	}
	c.lastEventTime.Store(time.Time{})

	return c, nil
}

// Handle processes a single stream message. It is the function wired
// into MessageHandler.Handle: a nil return acks, an error nacks.
func (c *Consumer) Handle(ctx context.Context, msg *message.Message) error {
	start := time.Now()
	c.eventsConsumed.Add(1)
	c.lastEventTime.Store(start)
	metrics.RecordIngestConsume()

	v, err := c.serializer.Unmarshal(msg.Payload)
	if err != nil {
		c.parseErrors.Add(1)
		metrics.RecordIngestRejected("parse_error")
		c.events.LogEventFailed(ctx, msg.UUID, err)
		// Ack: a malformed payload will not improve on redelivery
		return nil
	}

	c.events.LogEventReceived(ctx, v.ID, msg.Metadata.Get("source"))

	if c.dedup.Contains(v.ID) {
		c.duplicatesSkipped.Add(1)
		metrics.RecordIngestDeduplicated()
		c.events.LogDuplicate(ctx, v.ID, "seen within dedup window")
		return nil
	}

	if err := c.appender.Append(ctx, *v); err != nil {
		c.events.LogEventFailed(ctx, v.ID, err)
		return err
	}

	c.dedup.Set(v.ID, struct{}{})
	c.eventsAppended.Add(1)
	c.events.LogEventProcessed(ctx, v.ID, time.Since(start).Milliseconds())
	return nil
}

// Stats returns current runtime statistics.
func (c *Consumer) Stats() ConsumerStats {
	var lastTime time.Time
	if t, ok := c.lastEventTime.Load().(time.Time); ok {
		lastTime = t
	}
	return ConsumerStats{
		EventsConsumed:    c.eventsConsumed.Load(),
		EventsAppended:    c.eventsAppended.Load(),
		ParseErrors:       c.parseErrors.Load(),
		DuplicatesSkipped: c.duplicatesSkipped.Load(),
		LastEventTime:     lastTime,
	}
}

// DedupLen returns the current dedup window entry count.
func (c *Consumer) DedupLen() int {
	return c.dedup.Len()
}
