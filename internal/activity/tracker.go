// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package activity

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/metrics"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/store"
)

// ErrUnknownUser is returned for ids with no user record.
var ErrUnknownUser = errors.New("activity: unknown user")

// Forever is the remaining time reported for premium users.
const Forever = time.Duration(math.MaxInt64)

// Tracker applies Policy to stored users.
type Tracker struct {
	store  *store.Store
	policy Policy
	logger zerolog.Logger
}

// NewTracker creates a Tracker over st.
func NewTracker(st *store.Store, policy Policy) *Tracker {
	return &Tracker{
		store:  st,
		policy: policy,
		logger: logging.WithComponent("activity"),
	}
}

// Policy returns the thresholds in use.
func (t *Tracker) Policy() Policy { return t.policy }

// Check runs the lazy expiry check for one user and reports whether they
// are active.
func (t *Tracker) Check(ctx context.Context, userID string) (bool, error) {
	var active bool
	err := t.store.Update(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil {
			return ErrUnknownUser
		}
		wasActive := u.Active
		active = t.policy.Refresh(u, tx.Stats(), tx.Now())
		if wasActive != u.Active {
			tx.MarkDirty(store.DocUsers, store.DocStats)
			logging.Ctx(ctx).Info().Str("user_id", userID).Msg("User became inactive")
		}
		return nil
	})
	return active, err
}

// Touch records message activity and marks the user online.
func (t *Tracker) Touch(_ context.Context, userID string) error {
	return t.store.Update(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil {
			return ErrUnknownUser
		}
		t.policy.Touch(u, tx.Now())
		tx.MarkDirty(store.DocUsers)
		return nil
	})
}

// Reset recomputes a user's expiry from their upload count.
func (t *Tracker) Reset(ctx context.Context, userID string) error {
	return t.store.Update(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil {
			return ErrUnknownUser
		}
		t.policy.Reset(u, tx.Now())
		tx.MarkDirty(store.DocUsers)
		logging.Ctx(ctx).Info().Str("user_id", userID).Int("uploads", u.Uploads).Msg("Activity reset")
		return nil
	})
}

// SweepInactive deactivates every user whose expiry has passed and returns
// how many were flipped.
func (t *Tracker) SweepInactive(ctx context.Context) (int, error) {
	flipped := 0
	err := t.store.Update(func(tx *store.Tx) error {
		now := tx.Now()
		stats := tx.Stats()
		for _, u := range tx.Users() {
			if ctx.Err() != nil {
				break
			}
			if !u.Active || u.Premium {
				continue
			}
			if !t.policy.Refresh(u, stats, now) {
				flipped++
			}
		}
		if flipped > 0 {
			tx.MarkDirty(store.DocUsers, store.DocStats)
		}
		metrics.ActiveUsers.Set(float64(stats.ActiveUsers))
		return nil
	})
	metrics.RecordSweep("deactivated", flipped)
	if flipped > 0 {
		t.logger.Info().Int("count", flipped).Msg("Deactivated expired users")
	}
	return flipped, err
}

// SweepPresence clears the online flag for users idle longer than idle.
func (t *Tracker) SweepPresence(_ context.Context, idle time.Duration) (int, error) {
	cleared := 0
	err := t.store.Update(func(tx *store.Tx) error {
		now := tx.Now()
		for _, u := range tx.Users() {
			if u.Online && now.Sub(u.LastActivity) > idle {
				u.Online = false
				cleared++
			}
		}
		if cleared > 0 {
			tx.MarkDirty(store.DocUsers)
		}
		return nil
	})
	metrics.RecordSweep("offline", cleared)
	if cleared > 0 {
		t.logger.Debug().Int("count", cleared).Msg("Marked idle users offline")
	}
	return cleared, err
}

// TimeRemaining returns the time left on the displayed timer, or Forever
// for premium users.
func (t *Tracker) TimeRemaining(userID string) (time.Duration, error) {
	var remaining time.Duration
	err := t.store.View(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil {
			return ErrUnknownUser
		}
		if u.Premium {
			remaining = Forever
			return nil
		}
		remaining = max(u.ActivityTimer.Sub(tx.Now()), 0)
		return nil
	})
	return remaining, err
}

// Online returns the ids of online users who are not banned.
func (t *Tracker) Online() []string {
	set := models.IDSet{}
	_ = t.store.View(func(tx *store.Tx) error {
		for id, u := range tx.Users() {
			if u.Online && !u.Banned {
				set[id] = struct{}{}
			}
		}
		return nil
	})
	return set.Sorted()
}
