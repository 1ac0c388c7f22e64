// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package accounts manages access keys and user membership: registration
// with a generated alias, premium upgrades, bans and ghosting.
//
// Every operation keeps the Stats counters in step with the user records
// inside the same store transaction.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/store"
)

var (
	ErrUnknownUser    = errors.New("accounts: unknown user")
	ErrUserExists     = errors.New("accounts: user already registered")
	ErrKeyNotFound    = errors.New("accounts: key not found")
	ErrKeyUnusable    = errors.New("accounts: key disabled or used up")
	ErrAlreadyInState = errors.New("accounts: no change")
)

// aliasAttempts bounds the search for an alias not already taken.
const aliasAttempts = 10

// Registration carries the identity presented at /start.
type Registration struct {
	UserID    string
	Username  string
	FirstName string
	Key       string
}

// Service implements the account operations.
type Service struct {
	store  *store.Store
	policy activity.Policy
	logger zerolog.Logger
}

// NewService creates a Service.
func NewService(st *store.Store, policy activity.Policy) *Service {
	return &Service{
		store:  st,
		policy: policy,
		logger: logging.WithComponent("accounts"),
	}
}

// CreateKey issues a new access key. maxUses of 0 means unlimited.
func (s *Service) CreateKey(_ context.Context, keyType models.KeyType, maxUses int) (*models.AccessKey, error) {
	if keyType != models.KeyNormal && keyType != models.KeyPremium {
		return nil, fmt.Errorf("accounts: unknown key type %q", keyType)
	}
	if maxUses < 0 {
		return nil, fmt.Errorf("accounts: max uses must not be negative")
	}

	var created *models.AccessKey
	err := s.store.Update(func(tx *store.Tx) error {
		var code string
		for {
			var err error
			code, err = GenerateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			if tx.Key(code) == nil {
				break
			}
		}
		k := &models.AccessKey{
			Key:     code,
			Type:    keyType,
			Created: tx.Now(),
			MaxUses: maxUses,
			Active:  true,
		}
		tx.PutKey(k)
		tx.Stats().KeysGenerated++
		tx.MarkDirty(store.DocStats)
		created = k.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("type", string(keyType)).Int("max_uses", maxUses).Msg("Access key created")
	return created, nil
}

// DisableKey deactivates a key.
func (s *Service) DisableKey(_ context.Context, code string) error {
	return s.store.Update(func(tx *store.Tx) error {
		k := tx.Key(code)
		if k == nil {
			return ErrKeyNotFound
		}
		k.Active = false
		tx.MarkDirty(store.DocKeys)
		return nil
	})
}

// Keys returns copies of all keys ordered by creation time.
func (s *Service) Keys() []*models.AccessKey {
	var out []*models.AccessKey
	_ = s.store.View(func(tx *store.Tx) error {
		for _, k := range tx.Keys() {
			out = append(out, k.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].Key < out[j].Key
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Register creates a user from a usable key. Key use and user creation
// happen in one transaction.
func (s *Service) Register(ctx context.Context, reg Registration) (*models.User, error) {
	var created *models.User
	err := s.store.Update(func(tx *store.Tx) error {
		if tx.User(reg.UserID) != nil {
			return ErrUserExists
		}
		k := tx.Key(reg.Key)
		if k == nil {
			return ErrKeyNotFound
		}
		if !k.Usable() {
			return ErrKeyUnusable
		}

		alias, err := s.uniqueAlias(tx)
		if err != nil {
			return err
		}

		now := tx.Now()
		premium := k.Type == models.KeyPremium
		u := &models.User{
			ID:            reg.UserID,
			Username:      reg.Username,
			FirstName:     reg.FirstName,
			Alias:         alias,
			JoinDate:      now,
			AccessKey:     k.Key,
			Premium:       premium,
			Active:        premium,
			LastActivity:  now,
			ActivityTimer: now.Add(s.policy.Window),
			MediaIDs:      models.IDSet{},
			SyncedMedia:   models.IDSet{},
		}
		tx.PutUser(u)

		k.Uses++
		k.Users = append(k.Users, reg.UserID)
		tx.MarkDirty(store.DocKeys)

		stats := tx.Stats()
		stats.TotalUsers++
		if premium {
			stats.PremiumUsers++
			stats.ActiveUsers++
		}
		tx.MarkDirty(store.DocStats)

		created = u.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().
		Str("user_id", reg.UserID).
		Str("alias", created.Alias).
		Bool("premium", created.Premium).
		Msg("User registered")
	return created, nil
}

func (s *Service) uniqueAlias(tx *store.Tx) (string, error) {
	taken := make(map[string]bool, len(tx.Users()))
	for _, u := range tx.Users() {
		taken[u.Alias] = true
	}
	var alias string
	for i := 0; i < aliasAttempts; i++ {
		var err error
		alias, err = GenerateAlias()
		if err != nil {
			return "", fmt.Errorf("generate alias: %w", err)
		}
		if !taken[alias] {
			break
		}
	}
	return alias, nil
}

// Get returns a copy of the user.
func (s *Service) Get(userID string) (*models.User, error) {
	var out *models.User
	err := s.store.View(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil {
			return ErrUnknownUser
		}
		out = u.Clone()
		return nil
	})
	return out, err
}

// Upgrade makes a user premium, which also makes them active.
func (s *Service) Upgrade(ctx context.Context, userID string) error {
	return s.mutate(ctx, userID, "upgraded", func(u *models.User, stats *models.Stats) bool {
		if u.Premium {
			return false
		}
		u.Premium = true
		stats.PremiumUsers++
		if !u.Active {
			u.Active = true
			stats.ActiveUsers++
		}
		return true
	})
}

// Ban blocks a user. Non-premium users are also deactivated; premium users
// keep their status but Eligible excludes them while banned.
func (s *Service) Ban(ctx context.Context, userID string) error {
	return s.mutate(ctx, userID, "banned", func(u *models.User, stats *models.Stats) bool {
		if u.Banned {
			return false
		}
		u.Banned = true
		stats.BannedUsers++
		if u.Active && !u.Premium {
			u.Active = false
			u.ActualExpiration = nil
			stats.DecActive()
		}
		return true
	})
}

// Unban lifts a ban.
func (s *Service) Unban(ctx context.Context, userID string) error {
	return s.mutate(ctx, userID, "unbanned", func(u *models.User, stats *models.Stats) bool {
		if !u.Banned {
			return false
		}
		u.Banned = false
		if stats.BannedUsers > 0 {
			stats.BannedUsers--
		}
		return true
	})
}

// SetGhosted hides or shows a user in public rankings.
func (s *Service) SetGhosted(ctx context.Context, userID string, ghosted bool) error {
	return s.mutate(ctx, userID, "ghost_toggled", func(u *models.User, _ *models.Stats) bool {
		if u.Ghosted == ghosted {
			return false
		}
		u.Ghosted = ghosted
		return true
	})
}

func (s *Service) mutate(ctx context.Context, userID, action string, fn func(*models.User, *models.Stats) bool) error {
	err := s.store.Update(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil {
			return ErrUnknownUser
		}
		if !fn(u, tx.Stats()) {
			return ErrAlreadyInState
		}
		tx.MarkDirty(store.DocUsers, store.DocStats)
		return nil
	})
	if err == nil {
		logging.Ctx(ctx).Info().Str("user_id", userID).Str("action", action).Msg("User updated")
	}
	return err
}

// RankedUser is one row of TopUploaders.
type RankedUser struct {
	Alias   string `json:"alias"`
	Uploads int    `json:"uploads"`
	Premium bool   `json:"premium"`
}

// TopUploaders returns the limit users with most uploads, excluding
// ghosted and banned users.
func (s *Service) TopUploaders(limit int) []RankedUser {
	var out []RankedUser
	_ = s.store.View(func(tx *store.Tx) error {
		for _, u := range tx.Users() {
			if u.Ghosted || u.Banned {
				continue
			}
			out = append(out, RankedUser{Alias: u.Alias, Uploads: u.Uploads, Premium: u.Premium})
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Uploads == out[j].Uploads {
			return out[i].Alias < out[j].Alias
		}
		return out[i].Uploads > out[j].Uploads
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
