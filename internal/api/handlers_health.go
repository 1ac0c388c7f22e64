// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/mediarelay/internal/store"
)

// HealthStatus is the body of /healthz.
type HealthStatus struct {
	Status        string  `json:"status"`
	StoreReady    bool    `json:"store_ready"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Healthz reports liveness. The store check only takes the read lock, so a
// wedged writer shows up as a timed-out check.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	ready := h.store != nil && h.store.View(func(*store.Tx) error { return nil }) == nil

	status := HealthStatus{
		Status:        "healthy",
		StoreReady:    ready,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}
	code := http.StatusOK
	if !ready {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondOK(w, code, status)
}
