// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package activity implements the per-user activity state machine.
//
// A non-premium user becomes active after RequiredUploads uploads and stays
// active until their expiry passes. Every further multiple of
// RequiredUploads banks another Window on the internal expiry while the
// displayed timer keeps showing a single Window. Premium users are always
// active.
//
// Policy holds the pure transitions and is applied inside store
// transactions owned by other packages (the registry applies ApplyUpload
// while registering media, the planner applies Refresh before planning).
// Tracker wraps the same rules in their own store transactions for the bot
// and the supervisor sweeps.
package activity

import (
	"time"

	"github.com/tomtom215/mediarelay/internal/config"
	"github.com/tomtom215/mediarelay/internal/models"
)

// Transition reports what an upload did to a user's activity state.
type Transition int

const (
	// Unchanged means the upload only refreshed the timers.
	Unchanged Transition = iota
	// Activated means the user crossed the threshold and became active.
	Activated
	// Extended means an active user reached a later milestone.
	Extended
)

func (t Transition) String() string {
	switch t {
	case Activated:
		return "activated"
	case Extended:
		return "extended"
	default:
		return "unchanged"
	}
}

// Policy holds the activity thresholds.
type Policy struct {
	RequiredUploads int
	Window          time.Duration
}

// DefaultPolicy returns 30 uploads per 24h.
func DefaultPolicy() Policy {
	return Policy{RequiredUploads: 30, Window: 24 * time.Hour}
}

// NewPolicy builds a Policy from configuration.
func NewPolicy(cfg config.ActivityConfig) Policy {
	return Policy{RequiredUploads: cfg.RequiredUploads, Window: cfg.Window}
}

// ApplyUpload updates u after its Uploads counter has been incremented.
// stats.ActiveUsers is adjusted on activation; the caller marks both
// documents dirty.
func (p Policy) ApplyUpload(u *models.User, stats *models.Stats, now time.Time) Transition {
	u.LastActivity = now
	u.ActivityTimer = now.Add(p.Window)
	if u.Premium || p.RequiredUploads <= 0 {
		return Unchanged
	}

	transition := Unchanged
	if !u.Active && u.Uploads >= p.RequiredUploads {
		u.Active = true
		stats.ActiveUsers++
		if u.ActualExpiration == nil {
			u.ActualExpiration = models.TimePtr(u.ActivityTimer)
		}
		transition = Activated
	}

	if u.Active && u.Uploads > p.RequiredUploads && u.Uploads%p.RequiredUploads == 0 {
		next := now.Add(2 * p.Window)
		if u.ActualExpiration != nil {
			next = laterOf(u.ActualExpiration.Add(p.Window), now.Add(p.Window))
		}
		u.ActualExpiration = models.TimePtr(next)
		if transition == Unchanged {
			transition = Extended
		}
	}

	p.clampExpiration(u)
	return transition
}

// Refresh is the lazy expiry check. It deactivates u when its expiry has
// passed and reports whether u is active afterwards.
func (p Policy) Refresh(u *models.User, stats *models.Stats, now time.Time) bool {
	if u.Premium {
		return true
	}
	if !p.Expired(u, now) {
		return u.Active
	}
	if u.Active {
		u.Active = false
		stats.DecActive()
		u.ActualExpiration = nil
	}
	return false
}

// Expired reports whether now is past the user's governing expiry.
// Premium users never expire.
func (p Policy) Expired(u *models.User, now time.Time) bool {
	if u.Premium {
		return false
	}
	return now.After(u.Expiry())
}

// Touch records message activity on u.
func (p Policy) Touch(u *models.User, now time.Time) {
	u.LastActivity = now
	u.ActivityTimer = now.Add(p.Window)
	p.clampExpiration(u)
	u.Online = true
}

// Reset recomputes the expiry from the upload count alone.
func (p Policy) Reset(u *models.User, now time.Time) {
	u.ActivityTimer = now.Add(p.Window)
	if p.RequiredUploads > 0 && u.Uploads >= p.RequiredUploads {
		periods := u.Uploads / p.RequiredUploads
		u.ActualExpiration = models.TimePtr(now.Add(time.Duration(periods) * p.Window))
		return
	}
	u.ActualExpiration = nil
}

// clampExpiration keeps a present ActualExpiration at or after the
// displayed timer.
func (p Policy) clampExpiration(u *models.User) {
	if u.ActualExpiration != nil && u.ActualExpiration.Before(u.ActivityTimer) {
		u.ActualExpiration = models.TimePtr(u.ActivityTimer)
	}
}

// Eligible reports whether u may receive media.
func Eligible(u *models.User) bool {
	return (u.Active || u.Premium) && !u.Banned
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
