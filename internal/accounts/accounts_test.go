// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package accounts

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/store"
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	b, err := store.NewJSONBackend(t.TempDir(), time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(b)
	if err != nil {
		t.Fatal(err)
	}
	return NewService(st, activity.DefaultPolicy()), st
}

func stats(t *testing.T, st *store.Store) models.Stats {
	t.Helper()
	var out models.Stats
	_ = st.View(func(tx *store.Tx) error {
		out = *tx.Stats()
		return nil
	})
	return out
}

func TestGenerateKey(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		k, err := GenerateKey()
		if err != nil {
			t.Fatal(err)
		}
		if !keyPattern.MatchString(k) {
			t.Fatalf("key %q does not match %s", k, keyPattern)
		}
		seen[k] = true
	}
	if len(seen) < 95 {
		t.Fatalf("only %d distinct keys out of 100", len(seen))
	}
}

func TestGenerateAlias(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		alias, err := GenerateAlias()
		if err != nil {
			t.Fatal(err)
		}
		parts := strings.Split(alias, " ")
		if len(parts) != 3 {
			t.Fatalf("alias %q has %d parts", alias, len(parts))
		}
		for _, word := range parts[1:] {
			if word[0] < 'A' || word[0] > 'Z' {
				t.Fatalf("alias %q word %q not capitalized", alias, word)
			}
		}
	}
}

func TestRegisterConsumesKey(t *testing.T) {
	t.Parallel()

	svc, st := newService(t)
	ctx := context.Background()

	key, err := svc.CreateKey(ctx, models.KeyNormal, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !keyPattern.MatchString(key.Key) {
		t.Fatalf("key = %q", key.Key)
	}

	u, err := svc.Register(ctx, Registration{UserID: "100", Username: "alice", Key: key.Key})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Premium || u.Active || u.Alias == "" {
		t.Fatalf("unexpected user %+v", u)
	}

	_, err = svc.Register(ctx, Registration{UserID: "101", Key: key.Key})
	if !errors.Is(err, ErrKeyUnusable) {
		t.Fatalf("second use err = %v, want ErrKeyUnusable", err)
	}
	_, err = svc.Register(ctx, Registration{UserID: "100", Key: key.Key})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("re-register err = %v, want ErrUserExists", err)
	}
	_, err = svc.Register(ctx, Registration{UserID: "102", Key: "NOPE0000"})
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("unknown key err = %v", err)
	}

	keys := svc.Keys()
	if len(keys) != 1 || keys[0].Uses != 1 || len(keys[0].Users) != 1 {
		t.Fatalf("keys = %+v", keys)
	}
	s := stats(t, st)
	if s.TotalUsers != 1 || s.KeysGenerated != 1 || s.ActiveUsers != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestRegisterPremiumKey(t *testing.T) {
	t.Parallel()

	svc, st := newService(t)
	ctx := context.Background()

	key, err := svc.CreateKey(ctx, models.KeyPremium, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"1", "2", "3"} {
		u, err := svc.Register(ctx, Registration{UserID: id, Key: key.Key})
		if err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
		if !u.Premium || !u.Active {
			t.Fatalf("user %s not premium-active", id)
		}
	}
	s := stats(t, st)
	if s.PremiumUsers != 3 || s.ActiveUsers != 3 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestDisableKey(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	key, _ := svc.CreateKey(ctx, models.KeyNormal, 0)

	if err := svc.DisableKey(ctx, key.Key); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(ctx, Registration{UserID: "1", Key: key.Key}); !errors.Is(err, ErrKeyUnusable) {
		t.Fatalf("err = %v, want ErrKeyUnusable", err)
	}
	if err := svc.DisableKey(ctx, "MISSING1"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateKeyRejectsBadInput(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	if _, err := svc.CreateKey(context.Background(), "gold", 1); err == nil {
		t.Fatal("expected error for unknown key type")
	}
	if _, err := svc.CreateKey(context.Background(), models.KeyNormal, -1); err == nil {
		t.Fatal("expected error for negative max uses")
	}
}

func TestUpgradeBanUnban(t *testing.T) {
	t.Parallel()

	svc, st := newService(t)
	ctx := context.Background()
	key, _ := svc.CreateKey(ctx, models.KeyNormal, 0)
	if _, err := svc.Register(ctx, Registration{UserID: "1", Key: key.Key}); err != nil {
		t.Fatal(err)
	}

	if err := svc.Upgrade(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Upgrade(ctx, "1"); !errors.Is(err, ErrAlreadyInState) {
		t.Fatalf("second upgrade err = %v", err)
	}
	s := stats(t, st)
	if s.PremiumUsers != 1 || s.ActiveUsers != 1 {
		t.Fatalf("after upgrade stats = %+v", s)
	}

	if err := svc.Ban(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	u, _ := svc.Get("1")
	if !u.Banned || !u.Active || !u.Premium {
		t.Fatalf("banned premium user = %+v", u)
	}
	if activity.Eligible(u) {
		t.Fatal("banned user still eligible")
	}

	if err := svc.Unban(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if s := stats(t, st); s.BannedUsers != 0 {
		t.Fatalf("BannedUsers = %d", s.BannedUsers)
	}
	if err := svc.Ban(ctx, "nobody"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("err = %v", err)
	}
}

func TestBanDeactivatesNormalUser(t *testing.T) {
	t.Parallel()

	svc, st := newService(t)
	ctx := context.Background()
	_ = st.Update(func(tx *store.Tx) error {
		tx.PutUser(&models.User{ID: "1", Active: true, Uploads: 30})
		tx.Stats().ActiveUsers = 1
		tx.MarkDirty(store.DocStats)
		return nil
	})

	if err := svc.Ban(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	s := stats(t, st)
	if s.ActiveUsers != 0 || s.BannedUsers != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestTopUploadersSkipsGhosted(t *testing.T) {
	t.Parallel()

	svc, st := newService(t)
	_ = st.Update(func(tx *store.Tx) error {
		tx.PutUser(&models.User{ID: "1", Alias: "A", Uploads: 5})
		tx.PutUser(&models.User{ID: "2", Alias: "B", Uploads: 50})
		tx.PutUser(&models.User{ID: "3", Alias: "C", Uploads: 20})
		return nil
	})
	if err := svc.SetGhosted(context.Background(), "2", true); err != nil {
		t.Fatal(err)
	}

	top := svc.TopUploaders(5)
	if len(top) != 2 || top[0].Alias != "C" || top[1].Alias != "A" {
		t.Fatalf("TopUploaders = %+v", top)
	}
}
