// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package events carries in-process domain events over a Watermill
// gochannel pub/sub. Payloads are JSON encoded with goccy/go-json.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// TopicUserActivated is published when a user crosses the upload threshold.
const TopicUserActivated = "user.activated"

// UserActivated announces that UserID just became active.
type UserActivated struct {
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	Alias       string    `json:"alias"`
	Uploads     int       `json:"uploads"`
	ActivatedAt time.Time `json:"activated_at"`
}

// Validate checks required fields.
func (e *UserActivated) Validate() error {
	if e.UserID == "" {
		return errors.New("user_id is required")
	}
	if e.ActivatedAt.IsZero() {
		return errors.New("activated_at is required")
	}
	return nil
}

func encode(e *UserActivated) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*UserActivated, error) {
	var e UserActivated
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &e, nil
}
