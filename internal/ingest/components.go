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
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/curbwatch/curbwatch/internal/config"
	"github.com/curbwatch/curbwatch/internal/logging"
)

// streamProbeTimeout bounds the stream health probe in Stats.
const streamProbeTimeout = 2 * time.Second

// Stats aggregates runtime counters across the ingest pipeline.
type Stats struct {
	Appender    AppenderStats `json:"appender"`
	Consumer    ConsumerStats `json:"consumer"`
	DedupKeys   int           `json:"dedup_keys"`
	StreamState string        `json:"stream_state"`
}

// Components holds the ingest pipeline for lifecycle management:
// embedded NATS server, stream, publisher, subscriber, batch appender,
// and the consume loop gluing the last two together.
type Components struct {
	server     *EmbeddedServer
	natsConn   *natsgo.Conn
	stream     *StreamInitializer
	publisher  *Publisher
	subscriber *Subscriber
	appender   *Appender
	consumer   *Consumer

	consumeCancel context.CancelFunc
	consumeDone   chan struct{}

	mu      sync.Mutex
	running bool
}

// Init builds all ingest components when NATS is enabled. Returns
// (nil, nil) when cfg.NATS.Enabled is false; callers treat a nil
// Components as "direct append mode".
func Init(cfg *config.Config, store ViolationStore) (*Components, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("ingest transport disabled, violations append directly")
		return nil, nil
	}

	logging.Info().Msg("initializing ingest transport")

	c := &Components{}
	wmLogger := NewWatermillLogger()

	var natsURL string
	if cfg.NATS.EmbeddedServer {
		serverCfg := DefaultServerConfig()
		serverCfg.StoreDir = cfg.NATS.StoreDir
		serverCfg.JetStreamMaxMem = cfg.NATS.MaxMemory
		serverCfg.JetStreamMaxStore = cfg.NATS.MaxStore

		server, err := NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, err
		}
		c.server = server
		natsURL = server.ClientURL()
		logging.Info().Str("url", natsURL).Msg("embedded NATS server started")
	} else {
		natsURL = cfg.NATS.URL
		logging.Info().Str("url", natsURL).Msg("using external NATS server")
	}

	nc, err := natsgo.Connect(natsURL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		c.Shutdown(context.Background())
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	c.natsConn = nc

	js, err := jetstream.New(nc)
	if err != nil {
		c.Shutdown(context.Background())
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := DefaultStreamConfig()
	streamCfg.MaxAge = cfg.NATS.StreamRetention

	stream, err := NewStreamInitializer(js, &streamCfg)
	if err != nil {
		c.Shutdown(context.Background())
		return nil, fmt.Errorf("create stream initializer: %w", err)
	}
	c.stream = stream

	ctx := context.Background()
	s, err := stream.EnsureStream(ctx)
	if err != nil {
		c.Shutdown(context.Background())
		return nil, fmt.Errorf("ensure stream exists: %w", err)
	}
	info := s.CachedInfo()
	logging.Info().
		Str("name", info.Config.Name).
		Strs("subjects", info.Config.Subjects).
		Dur("max_age", info.Config.MaxAge).
		Msg("JetStream stream ready")

	publisher, err := NewPublisher(DefaultPublisherConfig(natsURL), wmLogger)
	if err != nil {
		c.Shutdown(context.Background())
		return nil, err
	}
	publisher.SetCircuitBreaker(NewCircuitBreaker(DefaultCircuitBreakerConfig("ingest_publisher")))
	c.publisher = publisher

	appender, err := NewAppender(store, AppenderConfig{
		BatchSize:     cfg.NATS.BatchSize,
		FlushInterval: cfg.NATS.FlushInterval,
	})
	if err != nil {
		c.Shutdown(context.Background())
		return nil, fmt.Errorf("create appender: %w", err)
	}
	c.appender = appender

	consumer, err := NewConsumer(appender, ConsumerConfig{
		DedupTTL:      cfg.Ingest.DedupTTL,
		DedupCapacity: cfg.Ingest.DedupCapacity,
	})
	if err != nil {
		c.Shutdown(context.Background())
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer

	subscriberCfg := DefaultSubscriberConfig(natsURL)
	subscriberCfg.DurableName = cfg.NATS.DurableName
	subscriberCfg.QueueGroup = cfg.NATS.QueueGroup
	subscriberCfg.SubscribersCount = cfg.NATS.SubscribersCount
	subscriberCfg.StreamName = streamCfg.Name

	subscriber, err := NewSubscriber(&subscriberCfg, wmLogger)
	if err != nil {
		c.Shutdown(context.Background())
		return nil, fmt.Errorf("create subscriber: %w", err)
	}
	c.subscriber = subscriber

	logging.Info().
		Int("batch_size", cfg.NATS.BatchSize).
		Dur("flush_interval", cfg.NATS.FlushInterval).
		Dur("dedup_ttl", cfg.Ingest.DedupTTL).
		Msg("ingest transport initialized")

	return c, nil
}

// Start begins batch flushing and the consume loop. The context bounds
// the consume loop lifetime; Shutdown also stops it.
func (c *Components) Start(ctx context.Context) error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	if err := c.appender.Start(ctx); err != nil {
		return fmt.Errorf("start appender: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	c.consumeCancel = cancel
	c.consumeDone = make(chan struct{})

	events := logging.NewEventLogger()
	events.LogSubscriptionStarted(TopicViolationReported, c.subscriber.config.QueueGroup)

	go func() {
		defer close(c.consumeDone)
		handler := c.subscriber.NewMessageHandler(TopicViolationReported).Handle(c.consumer.Handle)
		if err := handler.Run(consumeCtx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("ingest consume loop stopped")
		}
	}()

	logging.Info().Msg("ingest pipeline started")
	return nil
}

// Shutdown stops the pipeline in dependency order: consume loop first,
// then the appender (final flush), subscriber, publisher, connection,
// and the embedded server last.
func (c *Components) Shutdown(ctx context.Context) {
	if c == nil {
		return
	}

	c.mu.Lock()
	running := c.running
	c.running = false
	c.mu.Unlock()

	if running {
		logging.Info().Msg("shutting down ingest pipeline")
	}

	if c.consumeCancel != nil {
		c.consumeCancel()
		select {
		case <-c.consumeDone:
		case <-ctx.Done():
		}
		logging.NewEventLogger().LogSubscriptionStopped(TopicViolationReported)
	}

	if c.appender != nil {
		if err := c.appender.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing appender")
		}
	}

	if c.subscriber != nil {
		if err := c.subscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing subscriber")
		}
	}

	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing publisher")
		}
	}

	if c.natsConn != nil {
		c.natsConn.Close()
	}

	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("error shutting down NATS server")
		}
	}

	if running {
		stats := c.Stats()
		logging.Info().
			Int64("events_consumed", stats.Consumer.EventsConsumed).
			Int64("rows_inserted", stats.Appender.RowsInserted).
			Int64("duplicates_skipped", stats.Consumer.DuplicatesSkipped).
			Msg("ingest pipeline stopped")
	}
}

// IsRunning reports whether the pipeline is active.
func (c *Components) IsRunning() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Publisher returns the violation publisher for the HTTP intake.
// Returns nil when the transport is disabled.
func (c *Components) Publisher() *Publisher {
	if c == nil {
		return nil
	}
	return c.publisher
}

// Stats returns aggregated pipeline counters for diagnostics.
func (c *Components) Stats() Stats {
	if c == nil {
		return Stats{}
	}

	s := Stats{}
	if c.appender != nil {
		s.Appender = c.appender.Stats()
	}
	if c.consumer != nil {
		s.Consumer = c.consumer.Stats()
		s.DedupKeys = c.consumer.DedupLen()
	}
	if c.stream != nil {
		ctx, cancel := context.WithTimeout(context.Background(), streamProbeTimeout)
		defer cancel()
		if c.stream.IsHealthy(ctx) {
			s.StreamState = "ready"
		} else {
			s.StreamState = "unavailable"
		}
	}
	return s
}
