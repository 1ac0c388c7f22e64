// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package models

import "time"

// User is a registered relay participant.
//
// ActivityTimer is the expiry shown to the user and is always reset to
// now+window on upload or message. ActualExpiration is the expiry that
// governs deactivation; it can run ahead of the displayed timer when the user
// has banked extra windows through repeated upload milestones. When set it is
// never earlier than ActivityTimer.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	Alias     string    `json:"alias"`
	JoinDate  time.Time `json:"join_date"`
	AccessKey string    `json:"access_key,omitempty"`

	Premium bool `json:"premium"`
	Active  bool `json:"active"`
	Uploads int  `json:"uploads"`

	LastActivity     time.Time  `json:"last_activity"`
	ActivityTimer    time.Time  `json:"activity_timer"`
	ActualExpiration *time.Time `json:"actual_expiration,omitempty"`
	Online           bool       `json:"online"`

	Banned  bool `json:"banned"`
	Admin   bool `json:"admin"`
	Ghosted bool `json:"ghosted"`

	MediaIDs    IDSet `json:"media_ids"`
	SyncedMedia IDSet `json:"synced_media"`

	PendingSync     []MediaRef `json:"pending_sync,omitempty"`
	SyncOperationID string     `json:"sync_operation_id,omitempty"`
	SyncRequestTime *time.Time `json:"sync_request_time,omitempty"`
	SyncAttempts    int        `json:"sync_attempts"`
	SyncConfirmed   bool       `json:"sync_confirmed,omitempty"`
}

// HasPendingPlan reports whether an unfinished plan is stored on the user.
func (u *User) HasPendingPlan() bool {
	return u.SyncOperationID != "" || len(u.PendingSync) > 0
}

// ClearPlan drops the stored plan. SyncAttempts is left to the caller.
func (u *User) ClearPlan() {
	u.PendingSync = nil
	u.SyncOperationID = ""
	u.SyncRequestTime = nil
	u.SyncConfirmed = false
}

// AddMedia records ownership of a media id.
func (u *User) AddMedia(id string) {
	if u.MediaIDs == nil {
		u.MediaIDs = IDSet{}
	}
	u.MediaIDs[id] = struct{}{}
}

// RemoveMedia drops ownership of a media id.
func (u *User) RemoveMedia(id string) {
	delete(u.MediaIDs, id)
}

// AddSynced records a received media id. Returns false if already present.
func (u *User) AddSynced(id string) bool {
	if u.SyncedMedia == nil {
		u.SyncedMedia = IDSet{}
	}
	if u.SyncedMedia.Has(id) {
		return false
	}
	u.SyncedMedia[id] = struct{}{}
	return true
}

// Expiry returns the instant that governs deactivation.
func (u *User) Expiry() time.Time {
	if u.ActualExpiration != nil {
		return *u.ActualExpiration
	}
	return u.ActivityTimer
}

// Clone returns a deep copy safe to use outside a store transaction.
func (u *User) Clone() *User {
	c := *u
	c.MediaIDs = u.MediaIDs.Clone()
	c.SyncedMedia = u.SyncedMedia.Clone()
	if u.PendingSync != nil {
		c.PendingSync = append([]MediaRef(nil), u.PendingSync...)
	}
	c.ActualExpiration = cloneTime(u.ActualExpiration)
	c.SyncRequestTime = cloneTime(u.SyncRequestTime)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
