// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTracker(t *testing.T, users ...*models.User) (*Tracker, *store.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: epoch}
	b, err := store.NewJSONBackend(t.TempDir(), time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(b, store.WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	err = st.Update(func(tx *store.Tx) error {
		for _, u := range users {
			tx.PutUser(u)
			if u.Active {
				tx.Stats().ActiveUsers++
			}
		}
		tx.MarkDirty(store.DocStats)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewTracker(st, DefaultPolicy()), st, clock
}

func uploadN(p Policy, u *models.User, stats *models.Stats, n int, now time.Time) []Transition {
	var out []Transition
	for i := 0; i < n; i++ {
		u.Uploads++
		out = append(out, p.ApplyUpload(u, stats, now))
	}
	return out
}

func TestApplyUploadActivatesAtThreshold(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	u := &models.User{ID: "1"}
	stats := &models.Stats{}

	transitions := uploadN(p, u, stats, 30, epoch)
	for i, tr := range transitions[:29] {
		if tr != Unchanged {
			t.Fatalf("upload %d: transition = %v, want unchanged", i+1, tr)
		}
	}
	if transitions[29] != Activated {
		t.Fatalf("30th upload: transition = %v, want activated", transitions[29])
	}
	if !u.Active || stats.ActiveUsers != 1 {
		t.Fatalf("active=%v counter=%d", u.Active, stats.ActiveUsers)
	}
	if u.ActualExpiration == nil || !u.ActualExpiration.Equal(epoch.Add(24*time.Hour)) {
		t.Fatalf("ActualExpiration = %v", u.ActualExpiration)
	}
}

func TestApplyUploadMilestoneBanksWindow(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	u := &models.User{ID: "1"}
	stats := &models.Stats{}
	uploadN(p, u, stats, 30, epoch)

	later := epoch.Add(time.Hour)
	transitions := uploadN(p, u, stats, 30, later)
	if got := transitions[29]; got != Extended {
		t.Fatalf("60th upload: transition = %v, want extended", got)
	}
	// Uploads between milestones lift the expiry to the displayed timer, so
	// the banked window stacks on top of later+24h.
	want := later.Add(48 * time.Hour)
	if !u.ActualExpiration.Equal(want) {
		t.Fatalf("ActualExpiration = %v, want %v", u.ActualExpiration, want)
	}
	if !u.ActivityTimer.Equal(later.Add(24 * time.Hour)) {
		t.Fatalf("ActivityTimer = %v", u.ActivityTimer)
	}
	if stats.ActiveUsers != 1 {
		t.Fatalf("ActiveUsers = %d, want 1", stats.ActiveUsers)
	}
}

func TestApplyUploadMilestoneWithoutExpiration(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	u := &models.User{ID: "1", Active: true, Uploads: 59}
	stats := &models.Stats{ActiveUsers: 1}

	u.Uploads++
	if got := p.ApplyUpload(u, stats, epoch); got != Extended {
		t.Fatalf("transition = %v", got)
	}
	if !u.ActualExpiration.Equal(epoch.Add(48 * time.Hour)) {
		t.Fatalf("ActualExpiration = %v", u.ActualExpiration)
	}
}

func TestApplyUploadPremiumUntouched(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	u := &models.User{ID: "1", Premium: true, Active: true}
	stats := &models.Stats{ActiveUsers: 1}
	uploadN(p, u, stats, 60, epoch)
	if stats.ActiveUsers != 1 || u.ActualExpiration != nil {
		t.Fatalf("premium user changed: counter=%d expiration=%v", stats.ActiveUsers, u.ActualExpiration)
	}
}

func TestExpiryNeverMovesBackwardOnUpload(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	u := &models.User{ID: "1"}
	stats := &models.Stats{}
	now := epoch
	var last time.Time
	for i := 0; i < 200; i++ {
		now = now.Add(7 * time.Minute)
		u.Uploads++
		p.ApplyUpload(u, stats, now)
		if u.ActualExpiration == nil {
			continue
		}
		if u.ActualExpiration.Before(last) {
			t.Fatalf("upload %d: expiration moved back from %v to %v", i+1, last, u.ActualExpiration)
		}
		if u.ActualExpiration.Before(u.ActivityTimer) {
			t.Fatalf("upload %d: expiration %v before timer %v", i+1, u.ActualExpiration, u.ActivityTimer)
		}
		last = *u.ActualExpiration
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	tests := []struct {
		name       string
		user       models.User
		now        time.Time
		wantActive bool
		wantCount  int
	}{
		{
			name:       "premium always active",
			user:       models.User{Premium: true, Active: true, ActivityTimer: epoch},
			now:        epoch.Add(72 * time.Hour),
			wantActive: true,
			wantCount:  1,
		},
		{
			name:       "within actual expiration",
			user:       models.User{Active: true, ActivityTimer: epoch, ActualExpiration: models.TimePtr(epoch.Add(48 * time.Hour))},
			now:        epoch.Add(30 * time.Hour),
			wantActive: true,
			wantCount:  1,
		},
		{
			name:       "past actual expiration",
			user:       models.User{Active: true, ActivityTimer: epoch, ActualExpiration: models.TimePtr(epoch.Add(time.Hour))},
			now:        epoch.Add(2 * time.Hour),
			wantActive: false,
			wantCount:  0,
		},
		{
			name:       "falls back to activity timer",
			user:       models.User{Active: true, ActivityTimer: epoch},
			now:        epoch.Add(time.Second),
			wantActive: false,
			wantCount:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := tt.user
			stats := &models.Stats{ActiveUsers: 1}
			got := p.Refresh(&u, stats, tt.now)
			if got != tt.wantActive {
				t.Errorf("Refresh = %v, want %v", got, tt.wantActive)
			}
			if stats.ActiveUsers != tt.wantCount {
				t.Errorf("ActiveUsers = %d, want %d", stats.ActiveUsers, tt.wantCount)
			}
			if !tt.wantActive && u.ActualExpiration != nil {
				t.Errorf("ActualExpiration not cleared on deactivation")
			}
		})
	}
}

func TestResetRecomputesFromUploads(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	u := &models.User{Uploads: 95, ActualExpiration: models.TimePtr(epoch.Add(10 * 24 * time.Hour))}
	p.Reset(u, epoch)
	if !u.ActualExpiration.Equal(epoch.Add(72 * time.Hour)) {
		t.Fatalf("ActualExpiration = %v, want now+3 windows", u.ActualExpiration)
	}

	u = &models.User{Uploads: 10, ActualExpiration: models.TimePtr(epoch)}
	p.Reset(u, epoch)
	if u.ActualExpiration != nil {
		t.Fatalf("ActualExpiration = %v, want cleared", u.ActualExpiration)
	}
}

func TestEligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		user models.User
		want bool
	}{
		{models.User{Active: true}, true},
		{models.User{Premium: true}, true},
		{models.User{}, false},
		{models.User{Active: true, Banned: true}, false},
	}
	for _, tt := range tests {
		if got := Eligible(&tt.user); got != tt.want {
			t.Errorf("Eligible(%+v) = %v, want %v", tt.user, got, tt.want)
		}
	}
}

func TestTrackerCheckDeactivates(t *testing.T) {
	t.Parallel()

	tr, st, clock := newTracker(t, &models.User{
		ID:               "1",
		Active:           true,
		ActivityTimer:    epoch.Add(time.Hour),
		ActualExpiration: models.TimePtr(epoch.Add(time.Hour)),
	})
	ctx := context.Background()

	active, err := tr.Check(ctx, "1")
	if err != nil || !active {
		t.Fatalf("Check = %v, %v; want active", active, err)
	}

	clock.Advance(2 * time.Hour)
	active, err = tr.Check(ctx, "1")
	if err != nil || active {
		t.Fatalf("Check = %v, %v; want inactive", active, err)
	}
	_ = st.View(func(tx *store.Tx) error {
		if tx.Stats().ActiveUsers != 0 {
			t.Errorf("ActiveUsers = %d, want 0", tx.Stats().ActiveUsers)
		}
		if tx.User("1").ActualExpiration != nil {
			t.Errorf("ActualExpiration not cleared")
		}
		return nil
	})

	if _, err := tr.Check(ctx, "missing"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("Check(missing) err = %v", err)
	}
}

func TestTrackerTouchNeverShortens(t *testing.T) {
	t.Parallel()

	banked := epoch.Add(72 * time.Hour)
	tr, st, clock := newTracker(t, &models.User{ID: "1", Active: true, ActualExpiration: models.TimePtr(banked)})
	clock.Advance(time.Hour)

	if err := tr.Touch(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}
	_ = st.View(func(tx *store.Tx) error {
		u := tx.User("1")
		if !u.Online {
			t.Error("user not online after Touch")
		}
		if !u.ActualExpiration.Equal(banked) {
			t.Errorf("ActualExpiration = %v, want %v", u.ActualExpiration, banked)
		}
		if !u.ActivityTimer.Equal(clock.Now().Add(24 * time.Hour)) {
			t.Errorf("ActivityTimer = %v", u.ActivityTimer)
		}
		return nil
	})
}

func TestTrackerSweeps(t *testing.T) {
	t.Parallel()

	tr, st, clock := newTracker(t,
		&models.User{ID: "expired", Active: true, ActivityTimer: epoch.Add(time.Minute), LastActivity: epoch, Online: true},
		&models.User{ID: "fresh", Active: true, ActivityTimer: epoch.Add(48 * time.Hour), LastActivity: epoch.Add(9 * time.Minute), Online: true},
		&models.User{ID: "premium", Premium: true, Active: true, LastActivity: epoch},
	)
	clock.Advance(10 * time.Minute)
	ctx := context.Background()

	n, err := tr.SweepInactive(ctx)
	if err != nil || n != 1 {
		t.Fatalf("SweepInactive = %d, %v; want 1", n, err)
	}
	n, err = tr.SweepPresence(ctx, 5*time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("SweepPresence = %d, %v; want 1", n, err)
	}
	if online := tr.Online(); len(online) != 1 || online[0] != "fresh" {
		t.Fatalf("Online = %v", online)
	}
	_ = st.View(func(tx *store.Tx) error {
		if tx.User("expired").Active {
			t.Error("expired user still active")
		}
		if !tx.User("premium").Active {
			t.Error("premium user deactivated")
		}
		return nil
	})
}

func TestTrackerTimeRemaining(t *testing.T) {
	t.Parallel()

	tr, _, clock := newTracker(t,
		&models.User{ID: "1", ActivityTimer: epoch.Add(3 * time.Hour), ActualExpiration: models.TimePtr(epoch.Add(50 * time.Hour))},
		&models.User{ID: "p", Premium: true},
	)
	clock.Advance(time.Hour)

	got, err := tr.TimeRemaining("1")
	if err != nil || got != 2*time.Hour {
		t.Fatalf("TimeRemaining = %v, %v; want 2h", got, err)
	}
	got, _ = tr.TimeRemaining("p")
	if got != Forever {
		t.Fatalf("premium TimeRemaining = %v", got)
	}
	clock.Advance(10 * time.Hour)
	got, _ = tr.TimeRemaining("1")
	if got != 0 {
		t.Fatalf("TimeRemaining after timer = %v, want 0", got)
	}
}
