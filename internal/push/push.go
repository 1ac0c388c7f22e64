// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package push sends a newly activated user's backlog to every eligible
// recipient. Unlike a confirmed sync it keeps no plan and no checkpoint:
// there is one deliverer call per item and recipient, nothing is deferred,
// and a failed send is logged and skipped. Deliver itself retries transient
// errors and honors flood waits.
package push

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/config"
	"github.com/tomtom215/mediarelay/internal/delivery"
	"github.com/tomtom215/mediarelay/internal/events"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/metrics"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/platform"
	"github.com/tomtom215/mediarelay/internal/registry"
	"github.com/tomtom215/mediarelay/internal/store"
)

// Deliverer sends one item.
type Deliverer interface {
	Deliver(ctx context.Context, chatID string, item *models.MediaItem, caption string) error
}

// Notifier sends status text to a user.
type Notifier interface {
	SendText(ctx context.Context, chatID, text string, buttons ...platform.Button) (int, error)
}

// Result counts what one push did.
type Result struct {
	Recipients int
	Sent       int
	Skipped    int
	Capped     int
	Failed     int
}

// Pusher distributes backlogs.
type Pusher struct {
	store         *store.Store
	registry      *registry.Registry
	deliverer     Deliverer
	notifier      Notifier
	maxSyncNormal int
	limiter       *rate.Limiter
	logger        zerolog.Logger
}

// New creates a Pusher.
func New(st *store.Store, reg *registry.Registry, d Deliverer, n Notifier, cfg config.SyncConfig) *Pusher {
	return &Pusher{
		store:         st,
		registry:      reg,
		deliverer:     d,
		notifier:      n,
		maxSyncNormal: cfg.MaxSyncNormal,
		limiter:       rate.NewLimiter(rate.Every(cfg.ItemDelay), 1),
		logger:        logging.WithComponent("push"),
	}
}

// Subscribe registers the pusher on the activation topic.
func (p *Pusher) Subscribe(bus *events.Bus) {
	bus.OnActivated("backlog-push", func(ctx context.Context, e *events.UserActivated) error {
		p.Push(ctx, e.UserID)
		return nil
	})
}

type recipient struct {
	premium bool
	synced  models.IDSet
	owned   models.IDSet
}

// Push sends userID's deliverable media to every eligible recipient.
func (p *Pusher) Push(ctx context.Context, userID string) Result {
	var res Result
	items := p.registry.OwnedBy(userID)
	recipients := p.recipients(userID)
	res.Recipients = len(recipients)
	if len(items) == 0 || len(recipients) == 0 {
		return res
	}

	notified := make(map[string]bool)
	blocked := make(map[string]bool)

	for _, item := range items {
		sighted := make(map[string]bool, len(item.DuplicateSightings))
		for _, s := range item.DuplicateSightings {
			sighted[s.UserID] = true
		}
		caption := delivery.Caption(item)

		for _, rid := range recipients {
			if ctx.Err() != nil {
				return res
			}
			if blocked[rid] {
				continue
			}
			r, ok := p.recipient(rid)
			if !ok {
				continue
			}
			if r.synced.Has(item.ID) || r.owned.Has(item.ID) || sighted[rid] {
				res.Skipped++
				metrics.RecordDelivery("push", "skipped")
				continue
			}
			if !r.premium && r.synced.Len() >= p.maxSyncNormal {
				res.Capped++
				metrics.RecordDelivery("push", "capped")
				if !notified[rid] {
					notified[rid] = true
					p.notify(ctx, rid)
				}
				continue
			}

			err := p.deliverer.Deliver(ctx, rid, item, caption)
			if err != nil {
				res.Failed++
				metrics.RecordDelivery("push", "failed")
				if errors.Is(err, platform.ErrMissingPermission) {
					blocked[rid] = true
				}
				p.logger.Warn().Err(err).
					Str("media_id", item.ID).
					Str("recipient_id", rid).
					Msg("Backlog push delivery failed")
				continue
			}
			res.Sent++
			metrics.RecordDelivery("push", "sent")
			if !r.premium {
				if _, err := p.registry.MarkSynced(rid, item.ID); err != nil {
					p.logger.Warn().Err(err).Str("recipient_id", rid).Str("media_id", item.ID).Msg("Failed to mark pushed media synced")
				}
			}
			_ = p.limiter.Wait(ctx)
		}
	}

	p.logger.Info().
		Str("user_id", userID).
		Int("items", len(items)).
		Int("recipients", res.Recipients).
		Int("sent", res.Sent).
		Int("skipped", res.Skipped).
		Int("capped", res.Capped).
		Int("failed", res.Failed).
		Msg("Backlog push finished")
	return res
}

func (p *Pusher) recipients(exclude string) []string {
	var out []string
	_ = p.store.View(func(tx *store.Tx) error {
		for id, u := range tx.Users() {
			if id != exclude && activity.Eligible(u) {
				out = append(out, id)
			}
		}
		return nil
	})
	sort.Strings(out)
	return out
}

// recipient re-reads the recipient so quota counts include sends made by
// concurrent syncs.
func (p *Pusher) recipient(id string) (recipient, bool) {
	var r recipient
	var ok bool
	_ = p.store.View(func(tx *store.Tx) error {
		u := tx.User(id)
		if u == nil || !activity.Eligible(u) {
			return nil
		}
		ok = true
		r = recipient{premium: u.Premium, synced: u.SyncedMedia.Clone(), owned: u.MediaIDs.Clone()}
		return nil
	})
	return r, ok
}

func (p *Pusher) notify(ctx context.Context, userID string) {
	if p.notifier == nil {
		return
	}
	text := fmt.Sprintf("⚠️ You have reached the limit of %d synced files, so new uploads from other members "+
		"were not sent to you.\n\nUpgrade to premium for unlimited media.", p.maxSyncNormal)
	if _, err := p.notifier.SendText(ctx, userID, text); err != nil {
		p.logger.Warn().Err(err).Str("recipient_id", userID).Msg("Failed to send limit notice")
	}
}
