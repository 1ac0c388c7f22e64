// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/mediarelay/internal/accounts"
	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/blob"
	"github.com/tomtom215/mediarelay/internal/bot"
	"github.com/tomtom215/mediarelay/internal/config"
	"github.com/tomtom215/mediarelay/internal/delivery"
	"github.com/tomtom215/mediarelay/internal/events"
	"github.com/tomtom215/mediarelay/internal/executor"
	"github.com/tomtom215/mediarelay/internal/ingest"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/platform"
	"github.com/tomtom215/mediarelay/internal/platform/telegram"
	"github.com/tomtom215/mediarelay/internal/push"
	"github.com/tomtom215/mediarelay/internal/registry"
	"github.com/tomtom215/mediarelay/internal/store"
	"github.com/tomtom215/mediarelay/internal/supervisor"
	"github.com/tomtom215/mediarelay/internal/supervisor/services"
	"github.com/tomtom215/mediarelay/internal/syncplan"
)

// app holds every long-lived component.
type app struct {
	store    *store.Store
	accounts *accounts.Service
	tracker  *activity.Tracker
	registry *registry.Registry
	bus      *events.Bus
	queue    *ingest.Queue
	executor *executor.Executor
	bot      *bot.Bot
	telegram *telegram.Client
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	blobs, err := blob.New(ctx, cfg.Blob)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("blob store: %w", err)
	}

	tg, err := telegram.New(cfg.Bot)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	client := platform.NewBreaker(tg, cfg.Breaker)

	bus, err := events.NewBus()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("event bus: %w", err)
	}

	policy := activity.NewPolicy(cfg.Activity)
	reg := registry.New(st, blobs, policy)
	deliverer := delivery.New(client, cfg.Sync)

	a := &app{
		store:    st,
		accounts: accounts.NewService(st, policy),
		tracker:  activity.NewTracker(st, policy),
		registry: reg,
		bus:      bus,
		queue:    ingest.New(st, reg, blobs, client, bus, cfg.Ingest),
		executor: executor.New(st, reg, deliverer, client, cfg.Sync),
		telegram: tg,
	}
	a.bot = bot.New(client, bot.Services{
		Accounts: a.accounts,
		Tracker:  a.tracker,
		Registry: reg,
		Planner:  syncplan.New(st, policy, cfg.Sync),
		Executor: a.executor,
		Queue:    a.queue,
	}, cfg.Bot)

	// Handlers must be registered before the bus router starts.
	push.New(st, reg, deliverer, client, cfg.Sync).Subscribe(bus)
	a.bot.Subscribe(bus)

	return a, nil
}

func openStore(cfg config.StorageConfig) (*store.Store, error) {
	var backend store.Backend
	switch cfg.Backend {
	case "badger":
		b, err := store.OpenBadgerBackend(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		if cfg.StaleLockAge > 0 {
			n, err := store.RemoveStaleLocks(cfg.DataDir, cfg.StaleLockAge)
			if err != nil {
				logging.Warn().Err(err).Msg("Failed to clear stale lock files")
			} else if n > 0 {
				logging.Info().Int("removed", n).Msg("Removed stale lock files")
			}
		}
		b, err := store.NewJSONBackend(cfg.DataDir, cfg.LockTimeout, cfg.LockPoll)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	st, err := store.Open(backend)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("open store %s: %w", backend, err)
	}
	logging.Info().Str("backend", backend.String()).Msg("Store loaded")
	return st, nil
}

func (a *app) addSweeps(tree *supervisor.SupervisorTree, cfg *config.Config) {
	tree.AddDataService(services.NewSweepService("inactivity-sweep",
		a.tracker.SweepInactive,
		services.SweepConfig{Interval: cfg.Activity.CheckInterval, RunOnStartup: true}))

	idle := cfg.Activity.PresenceIdle
	tree.AddDataService(services.NewSweepService("presence-sweep",
		func(ctx context.Context) (int, error) { return a.tracker.SweepPresence(ctx, idle) },
		services.SweepConfig{Interval: cfg.Activity.PresenceInterval}))

	retention := cfg.Duplicates.Retention
	tree.AddDataService(services.NewSweepService("duplicate-sweep",
		func(ctx context.Context) (int, error) {
			res, err := a.registry.SweepExpiredDuplicates(ctx, retention)
			return res.ItemsRemoved + res.SightingsExpired, err
		},
		services.SweepConfig{Interval: cfg.Duplicates.SweepInterval, RunOnStartup: true}))
}

func (a *app) close() {
	if err := a.telegram.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error stopping Telegram polling")
	}
	if err := a.bus.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing event bus")
	}
	if err := a.store.Flush(); err != nil {
		logging.Error().Err(err).Msg("Final store flush failed")
	}
	if err := a.store.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing store")
	}
}
