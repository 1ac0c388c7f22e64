// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package executor drains confirmed sync plans.
//
// The user's PendingSync list is the durable remaining work. A run removes
// delivered refs from an in-memory copy and writes it back at checkpoints,
// on deferral and on every exit path, so an interrupted run resumes where
// it stopped. Before each delivery the stored operation id is compared to
// the one the run was started for; a mismatch means the plan was replaced
// and the run stops without touching the new plan.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/mediarelay/internal/config"
	"github.com/tomtom215/mediarelay/internal/delivery"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/metrics"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/platform"
	"github.com/tomtom215/mediarelay/internal/registry"
	"github.com/tomtom215/mediarelay/internal/store"
)

var (
	ErrAlreadyRunning = errors.New("executor: sync already running for user")
	ErrSuperseded     = errors.New("executor: plan superseded")
	ErrQuotaExhausted = errors.New("executor: sync quota exhausted")
	ErrNoPlan         = errors.New("executor: no confirmed plan")
)

// Deliverer sends one item.
type Deliverer interface {
	Deliver(ctx context.Context, chatID string, item *models.MediaItem, caption string) error
}

// Notifier sends status text to a user.
type Notifier interface {
	SendText(ctx context.Context, chatID, text string, buttons ...platform.Button) (int, error)
}

// Report summarizes one run.
type Report struct {
	Delivered int
	Skipped   int
	Deferred  int
	Dropped   int
	Elapsed   time.Duration
}

// Executor runs confirmed plans, at most one per user.
type Executor struct {
	store     *store.Store
	registry  *registry.Registry
	deliverer Deliverer
	notifier  Notifier
	cfg       config.SyncConfig
	logger    zerolog.Logger

	mu      sync.Mutex
	running map[string]struct{}
	runs    map[uint64]context.CancelFunc
	nextRun uint64
	wg      sync.WaitGroup
}

// New creates an Executor.
func New(st *store.Store, reg *registry.Registry, d Deliverer, n Notifier, cfg config.SyncConfig) *Executor {
	return &Executor{
		store:     st,
		registry:  reg,
		deliverer: d,
		notifier:  n,
		cfg:       cfg,
		logger:    logging.WithComponent("executor"),
		running:   make(map[string]struct{}),
		runs:      make(map[uint64]context.CancelFunc),
	}
}

func (e *Executor) acquire(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.running[userID]; busy {
		return false
	}
	e.running[userID] = struct{}{}
	return true
}

func (e *Executor) release(userID string) {
	e.mu.Lock()
	delete(e.running, userID)
	e.mu.Unlock()
}

// Running reports whether a run is in progress for userID.
func (e *Executor) Running(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[userID]
	return ok
}

// Start runs the plan in the background. The run keeps ctx's values but
// not its cancellation: it ends when the plan is drained or when Stop is
// called, never because the caller returned.
func (e *Executor) Start(ctx context.Context, userID, opID string) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.mu.Lock()
	e.nextRun++
	id := e.nextRun
	e.runs[id] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.runs, id)
			e.mu.Unlock()
			cancel()
		}()

		report, err := e.Run(runCtx, userID, opID)
		event := e.logger.Info()
		if err != nil && !errors.Is(err, context.Canceled) {
			event = e.logger.Warn().Err(err)
		}
		event.Str("user_id", userID).
			Str("operation_id", opID).
			Int("delivered", report.Delivered).
			Int("skipped", report.Skipped).
			Int("deferred", report.Deferred).
			Int("dropped", report.Dropped).
			Dur("elapsed", report.Elapsed).
			Msg("Sync run finished")
	}()
}

// Stop cancels every started run. Each one checkpoints its remaining list
// before returning, so ResumeConfirmed can pick it up again.
func (e *Executor) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cancel := range e.runs {
		cancel()
	}
}

// Wait blocks until every started run has returned.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Run drains the confirmed plan opID for userID.
func (e *Executor) Run(ctx context.Context, userID, opID string) (Report, error) {
	if !e.acquire(userID) {
		return Report{}, ErrAlreadyRunning
	}
	defer e.release(userID)

	started := time.Now()
	var report Report
	finish := func(err error) (Report, error) {
		report.Elapsed = time.Since(started)
		return report, err
	}

	remaining, err := e.load(userID, opID)
	if err != nil {
		return finish(err)
	}

	limiter := rate.NewLimiter(rate.Every(e.cfg.ItemDelay), 1)
	deferrals := make(map[models.MediaRef]int)
	sinceCheckpoint := 0

	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			e.checkpoint(userID, opID, remaining)
			return finish(err)
		}

		st, err := e.state(userID, opID)
		if err != nil {
			return finish(err)
		}

		ref := remaining[0]
		item, ok := e.registry.ResolveRef(ref)
		if !ok || (!st.premium && st.synced.Has(item.ID)) {
			remaining = remaining[1:]
			report.Skipped++
			metrics.RecordDelivery("sync", "skipped")
			continue
		}
		if !st.premium && st.synced.Len() >= e.cfg.MaxSyncNormal {
			e.abandon(userID, opID)
			e.notify(ctx, userID, quotaText(report, e.cfg.MaxSyncNormal))
			return finish(ErrQuotaExhausted)
		}

		err = e.deliverer.Deliver(ctx, userID, item, delivery.Caption(item))
		switch {
		case err == nil:
			if !st.premium {
				if _, err := e.registry.MarkSynced(userID, item.ID); err != nil && !errors.Is(err, registry.ErrOwnMedia) {
					e.logger.Warn().Err(err).Str("user_id", userID).Str("media_id", item.ID).Msg("Failed to mark media synced")
				}
			}
			remaining = remaining[1:]
			report.Delivered++
			metrics.RecordDelivery("sync", "sent")
			sinceCheckpoint++
			if sinceCheckpoint >= e.cfg.CheckpointEvery {
				e.checkpoint(userID, opID, remaining)
				sinceCheckpoint = 0
			}
			// A cancelled wait is picked up at the top of the loop.
			_ = limiter.Wait(ctx)

		case errors.Is(err, delivery.ErrExhausted):
			remaining = remaining[1:]
			if deferrals[ref] >= e.cfg.MaxDeferrals {
				report.Dropped++
				metrics.RecordDelivery("sync", "dropped")
				e.logger.Warn().Err(err).
					Str("user_id", userID).
					Str("media_id", item.ID).
					Int("deferrals", deferrals[ref]).
					Msg("Dropping undeliverable item from sync")
			} else {
				deferrals[ref]++
				report.Deferred++
				metrics.RecordDelivery("sync", "deferred")
				remaining = append(remaining, ref)
			}
			e.checkpoint(userID, opID, remaining)

		case errors.Is(err, platform.ErrMissingPermission):
			// The user blocked the bot; resuming would fail the same way.
			e.abandon(userID, opID)
			return finish(fmt.Errorf("deliver %s: %w", item.ID, err))

		default:
			e.checkpoint(userID, opID, remaining)
			return finish(fmt.Errorf("deliver %s: %w", item.ID, err))
		}
	}

	if err := e.complete(userID, opID); err != nil {
		return finish(err)
	}
	report.Elapsed = time.Since(started)
	metrics.SyncDuration.Observe(report.Elapsed.Seconds())
	e.notify(ctx, userID, summaryText(report))
	return report, nil
}

type userState struct {
	premium bool
	synced  models.IDSet
}

func (e *Executor) load(userID, opID string) ([]models.MediaRef, error) {
	var out []models.MediaRef
	err := e.store.View(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil || !u.SyncConfirmed {
			return ErrNoPlan
		}
		if u.SyncOperationID != opID {
			return ErrSuperseded
		}
		out = append([]models.MediaRef(nil), u.PendingSync...)
		return nil
	})
	return out, err
}

func (e *Executor) state(userID, opID string) (userState, error) {
	var st userState
	err := e.store.View(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil || u.SyncOperationID != opID {
			return ErrSuperseded
		}
		st.premium = u.Premium
		st.synced = u.SyncedMedia.Clone()
		return nil
	})
	return st, err
}

// checkpoint persists remaining if opID is still the stored plan.
func (e *Executor) checkpoint(userID, opID string, remaining []models.MediaRef) {
	err := e.store.Update(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil || u.SyncOperationID != opID {
			return nil
		}
		u.PendingSync = append([]models.MediaRef(nil), remaining...)
		tx.MarkDirty(store.DocUsers)
		return nil
	})
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to checkpoint sync progress")
	}
}

func (e *Executor) complete(userID, opID string) error {
	return e.store.Update(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil || u.SyncOperationID != opID {
			return ErrSuperseded
		}
		u.ClearPlan()
		u.SyncAttempts = 0
		tx.MarkDirty(store.DocUsers)
		return nil
	})
}

func (e *Executor) abandon(userID, opID string) {
	if err := e.complete(userID, opID); err != nil && !errors.Is(err, ErrSuperseded) {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to clear sync plan")
	}
}

func (e *Executor) notify(ctx context.Context, userID, text string) {
	if e.notifier == nil {
		return
	}
	if _, err := e.notifier.SendText(ctx, userID, text); err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to send sync status")
	}
}

func summaryText(r Report) string {
	text := fmt.Sprintf("✅ Sync completed!\n\n📦 Files synced: %d\n⏱️ Time: %ds", r.Delivered, int(r.Elapsed.Seconds()))
	if r.Skipped > 0 {
		text += fmt.Sprintf("\n🗑️ No longer available: %d", r.Skipped)
	}
	if r.Dropped > 0 {
		text += fmt.Sprintf("\n⚠️ Could not be delivered: %d", r.Dropped)
	}
	return text
}

func quotaText(r Report, limit int) string {
	return fmt.Sprintf("⚠️ Sync stopped after %d files: you have reached the limit of %d synced files.\n\n"+
		"Upgrade to premium for unlimited syncing.", r.Delivered, limit)
}
