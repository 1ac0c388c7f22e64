// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/mediarelay/internal/logging"
)

// ActivatedHandler consumes activation events.
type ActivatedHandler func(ctx context.Context, e *UserActivated) error

// Bus is a single-process publisher plus router.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger watermill.LoggerAdapter

	mu      sync.Mutex
	started bool
}

// NewBus creates a bus. Handlers must be registered before Serve.
func NewBus() (*Bus, error) {
	logger := logging.NewWatermillAdapter()
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      2,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
			Logger:          logger,
		}.Middleware,
	)

	return &Bus{pubsub: pubsub, router: router, logger: logger}, nil
}

// OnActivated registers a consumer of TopicUserActivated.
func (b *Bus) OnActivated(name string, h ActivatedHandler) {
	b.router.AddConsumerHandler(name, TopicUserActivated, b.pubsub, func(msg *message.Message) error {
		e, err := decode(msg.Payload)
		if err != nil {
			// Undecodable payloads will never succeed.
			b.logger.Error("Dropping malformed event", err, watermill.LogFields{"uuid": msg.UUID})
			return nil
		}
		return h(msg.Context(), e)
	})
}

// PublishActivated publishes e, filling in the event id.
func (b *Bus) PublishActivated(_ context.Context, e UserActivated) error {
	if e.EventID == "" {
		e.EventID = watermill.NewUUID()
	}
	data, err := encode(&e)
	if err != nil {
		return err
	}
	msg := message.NewMessage(e.EventID, data)
	msg.Metadata.Set("user_id", e.UserID)
	if err := b.pubsub.Publish(TopicUserActivated, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicUserActivated, err)
	}
	return nil
}

// Running is closed once handlers are subscribed.
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// Serve runs the router until ctx is done. A watermill router cannot be
// rerun, so a second Serve asks the supervisor not to restart the bus.
func (b *Bus) Serve(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return fmt.Errorf("event bus already started: %w", suture.ErrDoNotRestart)
	}
	b.started = true
	b.mu.Unlock()

	if err := b.router.Run(ctx); err != nil {
		return fmt.Errorf("event router: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (b *Bus) String() string { return "event-bus" }

// Close stops the router and the pub/sub.
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubsub.Close()
}
