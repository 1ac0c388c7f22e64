// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package models

import "time"

// MediaType tags how an item is sent back out.
type MediaType string

// Supported media types.
const (
	MediaPhoto     MediaType = "photo"
	MediaVideo     MediaType = "video"
	MediaDocument  MediaType = "document"
	MediaAudio     MediaType = "audio"
	MediaVoice     MediaType = "voice"
	MediaAnimation MediaType = "animation"
)

// MediaItem is one catalog entry.
type MediaItem struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"user_id"`
	FileID       string    `json:"file_id"`
	FileUniqueID string    `json:"file_unique_id,omitempty"`
	StoragePath  string    `json:"file_path,omitempty"`
	Size         int64     `json:"file_size"`
	Type         MediaType `json:"media_type"`
	Caption      string    `json:"caption,omitempty"`
	UploadTime   time.Time `json:"upload_time"`
	OwnerAlias   string    `json:"user_alias"`
	OwnerPremium bool      `json:"is_premium"`

	Reported bool     `json:"reported"`
	Reports  []Report `json:"reports,omitempty"`

	// IsDuplicate marks a later copy of content first registered by another
	// owner. DuplicateOf points at the root original.
	IsDuplicate bool   `json:"is_duplicate"`
	DuplicateOf string `json:"duplicate_of,omitempty"`

	HasDuplicates      bool                `json:"has_duplicates"`
	DuplicateSightings []DuplicateSighting `json:"duplicate_users,omitempty"`

	PendingDownload bool `json:"pending_download,omitempty"`
}

// IdentityKey is the key used to recognise the same content across owners:
// the platform's unique id when known, the file id otherwise.
func (m *MediaItem) IdentityKey() string {
	if m.FileUniqueID != "" {
		return "u:" + m.FileUniqueID
	}
	return "f:" + m.FileID
}

// Ref returns the lazy reference stored in sync plans.
func (m *MediaItem) Ref() MediaRef {
	return MediaRef{OwnerID: m.OwnerID, FileID: m.FileID, Type: m.Type}
}

// Clone returns a deep copy.
func (m *MediaItem) Clone() *MediaItem {
	c := *m
	c.Reports = append([]Report(nil), m.Reports...)
	c.DuplicateSightings = append([]DuplicateSighting(nil), m.DuplicateSightings...)
	return &c
}

// Report is a user complaint about an item.
type Report struct {
	UserID string    `json:"user_id"`
	Alias  string    `json:"alias"`
	Time   time.Time `json:"time"`
	Reason string    `json:"reason,omitempty"`
}

// DuplicateSighting is attached to an original each time another owner
// uploads the same content.
type DuplicateSighting struct {
	UserID         string    `json:"user_id"`
	DetectedAt     time.Time `json:"detected_time"`
	FileID         string    `json:"file_id"`
	MediaID        string    `json:"media_id,omitempty"`
	QuarantinePath string    `json:"quarantine_path,omitempty"`
}

// MediaRef points at an item by owner and file id. It is resolved against
// the registry at send time, so a plan survives catalog rewrites.
type MediaRef struct {
	OwnerID string    `json:"user_id"`
	FileID  string    `json:"file_id"`
	Type    MediaType `json:"media_type"`
}
