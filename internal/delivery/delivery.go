// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package delivery sends one media item to one chat with the relay's retry
// semantics, shared by the sync executor and the backlog push.
//
// A flood wait is not a failure: the sender sleeps for the requested time
// plus a margin and tries again, without limit. Any other error is retried
// up to MaxAttempts times with a fixed delay, after which ErrExhausted is
// returned. A permission error is returned at once since retrying cannot
// fix it.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/mediarelay/internal/config"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/metrics"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/platform"
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("delivery: attempts exhausted")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier runs an operation under the flood-wait and retry rules.
type Retrier struct {
	MaxAttempts int
	RetryDelay  time.Duration
	FloodMargin time.Duration
	Sleep       SleepFunc
}

// Do runs fn until it succeeds, fails permanently, or runs out of
// attempts. Flood waits do not consume attempts.
func (r Retrier) Do(ctx context.Context, op string, fn func() error) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	attempts := max(r.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if fw, ok := platform.AsFloodWait(err); ok {
			metrics.FloodWaits.Inc()
			logging.Ctx(ctx).Warn().Str("op", op).Dur("wait", fw.Wait).Msg("Flood wait, sleeping")
			if err := sleep(ctx, fw.Wait+r.FloodMargin); err != nil {
				return err
			}
			continue
		}
		if errors.Is(err, platform.ErrMissingPermission) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
		logging.Ctx(ctx).Debug().Err(err).Str("op", op).Int("attempt", attempt).Msg("Attempt failed")
		if attempt == attempts {
			break
		}
		attempt++
		if err := sleep(ctx, r.RetryDelay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

// Option configures a Deliverer.
type Option func(*Deliverer)

// WithSleep replaces the sleep used between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(d *Deliverer) { d.retry.Sleep = fn }
}

// Deliverer sends media items.
type Deliverer struct {
	client platform.Client
	retry  Retrier
}

// New creates a Deliverer from the sync settings.
func New(client platform.Client, cfg config.SyncConfig, opts ...Option) *Deliverer {
	d := &Deliverer{
		client: client,
		retry: Retrier{
			MaxAttempts: cfg.MaxAttempts,
			RetryDelay:  cfg.RetryDelay,
			FloodMargin: cfg.FloodMargin,
			Sleep:       Sleep,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver sends item to chatID with caption.
func (d *Deliverer) Deliver(ctx context.Context, chatID string, item *models.MediaItem, caption string) error {
	return d.retry.Do(ctx, "deliver", func() error {
		_, err := platform.SendMedia(ctx, d.client, chatID, item.Type, item.FileID, caption)
		return err
	})
}

// Caption credits the owner of item.
func Caption(item *models.MediaItem) string {
	credit := "📤 Shared by " + item.OwnerAlias
	if item.OwnerPremium {
		credit += " ⭐"
	}
	if item.Caption == "" {
		return credit
	}
	return item.Caption + "\n\n" + credit
}
