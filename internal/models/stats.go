// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package models

import "time"

// Stats holds the aggregate counters persisted in stats.json.
type Stats struct {
	TotalMediaCount int       `json:"total_media_count"`
	TotalUsers      int       `json:"total_users"`
	PremiumUsers    int       `json:"premium_users"`
	ActiveUsers     int       `json:"active_users"`
	BannedUsers     int       `json:"banned_users"`
	KeysGenerated   int       `json:"keys_generated"`
	StartTime       time.Time `json:"start_time"`
}

// DecActive decrements ActiveUsers without going negative.
func (s *Stats) DecActive() {
	if s.ActiveUsers > 0 {
		s.ActiveUsers--
	}
}
