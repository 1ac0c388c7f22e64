// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/mediarelay/internal/accounts"
	"github.com/tomtom215/mediarelay/internal/store"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	TotalMedia    int       `json:"total_media"`
	TotalUsers    int       `json:"total_users"`
	PremiumUsers  int       `json:"premium_users"`
	ActiveUsers   int       `json:"active_users"`
	BannedUsers   int       `json:"banned_users"`
	KeysGenerated int       `json:"keys_generated"`
	OnlineUsers   int       `json:"online_users"`
	ReportedMedia int       `json:"reported_media"`
	StartTime     time.Time `json:"start_time"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}

// Stats returns the persisted counters plus live presence and report counts.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	var resp StatsResponse
	err := h.store.View(func(tx *store.Tx) error {
		s := tx.Stats()
		resp = StatsResponse{
			TotalMedia:    s.TotalMediaCount,
			TotalUsers:    s.TotalUsers,
			PremiumUsers:  s.PremiumUsers,
			ActiveUsers:   s.ActiveUsers,
			BannedUsers:   s.BannedUsers,
			KeysGenerated: s.KeysGenerated,
			StartTime:     s.StartTime,
		}
		return nil
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to read statistics", err)
		return
	}
	resp.OnlineUsers = len(h.tracker.Online())
	resp.ReportedMedia = h.registry.ReportedCount()
	resp.UptimeSeconds = time.Since(h.startTime).Seconds()
	respondOK(w, http.StatusOK, resp)
}

// Top returns the leaderboard. ?limit= is clamped to [1, 100].
func (h *Handler) Top(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxTopLimit)
	}
	rows := h.accounts.TopUploaders(limit)
	if rows == nil {
		rows = []accounts.RankedUser{}
	}
	respondOK(w, http.StatusOK, rows)
}
