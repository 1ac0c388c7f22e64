// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package api

import (
	"time"

	"github.com/tomtom215/mediarelay/internal/accounts"
	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/registry"
	"github.com/tomtom215/mediarelay/internal/store"
)

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct and constructor (this file)
//   - handlers_helpers.go: JSON envelope and request decoding
//   - handlers_health.go: liveness endpoint
//   - handlers_core.go: relay statistics
//   - handlers_admin.go: key and user administration
type Handler struct {
	store     *store.Store
	accounts  *accounts.Service
	tracker   *activity.Tracker
	registry  *registry.Registry
	startTime time.Time
}

// NewHandler creates a new API handler.
//
// Example:
//
//	handler := api.NewHandler(st, accountSvc, tracker, reg)
//	router := api.NewRouter(handler, cfg.Server)
//	http.ListenAndServe(":8089", router.SetupChi())
func NewHandler(st *store.Store, acc *accounts.Service, tracker *activity.Tracker, reg *registry.Registry) *Handler {
	return &Handler{
		store:     st,
		accounts:  acc,
		tracker:   tracker,
		registry:  reg,
		startTime: time.Now(),
	}
}
