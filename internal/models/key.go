// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package models

import "time"

// KeyType selects the tier a key grants.
type KeyType string

// Key tiers.
const (
	KeyNormal  KeyType = "normal"
	KeyPremium KeyType = "premium"
)

// AccessKey gates registration.
type AccessKey struct {
	Key     string    `json:"key"`
	Type    KeyType   `json:"type"`
	Created time.Time `json:"created"`
	Uses    int       `json:"uses"`
	MaxUses int       `json:"max_uses"` // 0 = unlimited
	Active  bool      `json:"active"`
	Users   []string  `json:"users"`
}

// Usable reports whether the key can admit another user.
func (k *AccessKey) Usable() bool {
	return k.Active && (k.MaxUses == 0 || k.Uses < k.MaxUses)
}

// Clone returns a deep copy.
func (k *AccessKey) Clone() *AccessKey {
	c := *k
	c.Users = append([]string(nil), k.Users...)
	return &c
}
