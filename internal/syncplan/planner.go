// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package syncplan turns a /syncmedia request into a stored, confirmable
// plan of media references.
//
// A plan lives on the user record (PendingSync, SyncOperationID) until it is
// confirmed and drained by the executor, rejected, or replaced. The
// operation id embedded in the confirmation buttons must match the stored
// one, so a button from a superseded plan can never start a delivery.
package syncplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/config"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/metrics"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/registry"
	"github.com/tomtom215/mediarelay/internal/store"
)

var (
	ErrUnknownUser      = errors.New("syncplan: unknown user")
	ErrNotActive        = errors.New("syncplan: user is not active")
	ErrBusy             = errors.New("syncplan: pending plan must be replaced")
	ErrStalePlanCleared = errors.New("syncplan: previous plan cleared, request again")
	ErrSyncInProgress   = errors.New("syncplan: confirmed sync still running")
	ErrNothingToSync    = errors.New("syncplan: nothing to sync")
	ErrNoPendingPlan    = errors.New("syncplan: no pending plan")
	ErrExpired          = errors.New("syncplan: plan superseded or expired")
)

// LimitReachedError is returned when a non-premium user's quota is used up
// while candidates remain.
type LimitReachedError struct {
	Total int
	Limit int
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("syncplan: sync limit of %d reached, %d items available", e.Limit, e.Total)
}

// Plan is a stored sync plan.
type Plan struct {
	UserID      string
	OperationID string
	Items       []models.MediaRef
	RequestedAt time.Time
	Premium     bool
	// Available counts candidates before the quota cut.
	Available int
	// Confirmed is set once the user has confirmed the plan.
	Confirmed bool
}

// Planner creates and resolves plans.
type Planner struct {
	store              *store.Store
	policy             activity.Policy
	maxSyncNormal      int
	maxReplaceAttempts int
}

// New creates a Planner.
func New(st *store.Store, policy activity.Policy, cfg config.SyncConfig) *Planner {
	return &Planner{
		store:              st,
		policy:             policy,
		maxSyncNormal:      cfg.MaxSyncNormal,
		maxReplaceAttempts: cfg.MaxReplaceAttempts,
	}
}

// OperationID formats the id for a plan created at now.
func OperationID(userID string, now time.Time) string {
	return fmt.Sprintf("sync_%s_%d", userID, now.Unix())
}

// Plan builds and stores a plan for userID.
func (p *Planner) Plan(ctx context.Context, userID string) (*Plan, error) {
	var plan *Plan
	err := p.store.Update(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil {
			return ErrUnknownUser
		}
		now := tx.Now()

		wasActive := u.Active
		if !p.policy.Refresh(u, tx.Stats(), now) || u.Banned {
			if wasActive != u.Active {
				tx.MarkDirty(store.DocUsers, store.DocStats)
			}
			return ErrNotActive
		}

		if u.HasPendingPlan() {
			if u.SyncConfirmed {
				return ErrSyncInProgress
			}
			u.SyncAttempts++
			tx.MarkDirty(store.DocUsers)
			if u.SyncAttempts >= p.maxReplaceAttempts {
				return ErrBusy
			}
			u.ClearPlan()
			return ErrStalePlanCleared
		}

		candidates := dedupe(registry.SyncableTx(tx, userID))
		available := len(candidates)
		if !u.Premium {
			room := p.maxSyncNormal - u.SyncedMedia.Len()
			if room <= 0 && available > 0 {
				return &LimitReachedError{Total: available, Limit: p.maxSyncNormal}
			}
			if len(candidates) > room {
				candidates = candidates[:max(room, 0)]
			}
		}
		if len(candidates) == 0 {
			return ErrNothingToSync
		}

		refs := make([]models.MediaRef, 0, len(candidates))
		for _, m := range candidates {
			refs = append(refs, m.Ref())
		}
		u.PendingSync = refs
		u.SyncOperationID = OperationID(userID, now)
		u.SyncRequestTime = models.TimePtr(now)
		u.SyncConfirmed = false
		tx.MarkDirty(store.DocUsers)

		plan = &Plan{
			UserID:      userID,
			OperationID: u.SyncOperationID,
			Items:       append([]models.MediaRef(nil), refs...),
			RequestedAt: now,
			Premium:     u.Premium,
			Available:   available,
		}
		return nil
	})
	metrics.RecordSyncPlan(outcome(err))
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("operation_id", plan.OperationID).
		Int("items", len(plan.Items)).
		Int("available", plan.Available).
		Msg("Sync plan created")
	return plan, nil
}

// dedupe keeps one item per identity key, the earliest upload, while
// preserving the newest-first order of what is kept.
func dedupe(items []*models.MediaItem) []*models.MediaItem {
	keep := make(map[string]*models.MediaItem, len(items))
	for _, m := range items {
		key := m.IdentityKey()
		if cur, ok := keep[key]; !ok || m.UploadTime.Before(cur.UploadTime) ||
			(m.UploadTime.Equal(cur.UploadTime) && m.ID < cur.ID) {
			keep[key] = m
		}
	}
	out := items[:0:0]
	for _, m := range items {
		if keep[m.IdentityKey()] == m {
			out = append(out, m)
		}
	}
	return out
}

// Confirm marks the plan identified by opID as confirmed and returns it.
func (p *Planner) Confirm(ctx context.Context, userID, opID string) (*Plan, error) {
	var plan *Plan
	err := p.store.Update(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil {
			return ErrUnknownUser
		}
		if !u.HasPendingPlan() {
			return ErrNoPendingPlan
		}
		if u.SyncOperationID != opID {
			return ErrExpired
		}
		if u.SyncConfirmed {
			return ErrSyncInProgress
		}
		u.SyncConfirmed = true
		tx.MarkDirty(store.DocUsers)
		plan = planFromUser(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("user_id", userID).Str("operation_id", opID).Msg("Sync plan confirmed")
	return plan, nil
}

// Reject discards the plan identified by opID.
func (p *Planner) Reject(ctx context.Context, userID, opID string) error {
	err := p.store.Update(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil {
			return ErrUnknownUser
		}
		if !u.HasPendingPlan() {
			return ErrNoPendingPlan
		}
		if u.SyncOperationID != opID {
			return ErrExpired
		}
		if u.SyncConfirmed {
			return ErrSyncInProgress
		}
		u.ClearPlan()
		u.SyncAttempts = 0
		tx.MarkDirty(store.DocUsers)
		return nil
	})
	if err == nil {
		logging.Ctx(ctx).Info().Str("user_id", userID).Str("operation_id", opID).Msg("Sync plan rejected")
	}
	return err
}

// Replace discards whatever plan exists, confirmed or not. A run draining
// the old plan stops at its next operation id check. The caller asks the
// user to request a new plan.
func (p *Planner) Replace(ctx context.Context, userID string) error {
	err := p.store.Update(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil {
			return ErrUnknownUser
		}
		u.ClearPlan()
		u.SyncAttempts = 0
		tx.MarkDirty(store.DocUsers)
		return nil
	})
	if err == nil {
		logging.Ctx(ctx).Info().Str("user_id", userID).Msg("Sync plan replaced")
	}
	return err
}

// Pending returns the stored plan, if any.
func (p *Planner) Pending(userID string) (*Plan, bool) {
	var plan *Plan
	_ = p.store.View(func(tx *store.Tx) error {
		if u := tx.User(userID); u != nil && u.HasPendingPlan() {
			plan = planFromUser(u)
		}
		return nil
	})
	return plan, plan != nil
}

func planFromUser(u *models.User) *Plan {
	plan := &Plan{
		UserID:      u.ID,
		OperationID: u.SyncOperationID,
		Items:       append([]models.MediaRef(nil), u.PendingSync...),
		Premium:     u.Premium,
		Available:   len(u.PendingSync),
		Confirmed:   u.SyncConfirmed,
	}
	if u.SyncRequestTime != nil {
		plan.RequestedAt = *u.SyncRequestTime
	}
	return plan
}

func outcome(err error) string {
	var limit *LimitReachedError
	switch {
	case err == nil:
		return "planned"
	case errors.Is(err, ErrNotActive):
		return "not_active"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrStalePlanCleared):
		return "stale_cleared"
	case errors.As(err, &limit):
		return "limit_reached"
	case errors.Is(err, ErrNothingToSync):
		return "nothing"
	case errors.Is(err, ErrSyncInProgress):
		return "in_progress"
	default:
		return "error"
	}
}
