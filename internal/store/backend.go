// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package store

// Document names one persisted collection.
type Document string

// The four relay documents.
const (
	DocUsers Document = "users"
	DocMedia Document = "media"
	DocKeys  Document = "keys"
	DocStats Document = "stats"
)

// AllDocuments lists documents in flush order.
var AllDocuments = []Document{DocUsers, DocMedia, DocKeys, DocStats}

// Backend persists encoded documents. Implementations rewrite the whole
// document on every Save.
type Backend interface {
	// Load returns the stored bytes, or nil when the document does not exist.
	Load(doc Document) ([]byte, error)

	// Save replaces the stored document.
	Save(doc Document, data []byte) error

	// Quarantine moves an undecodable document aside so a fresh one can be
	// written without losing the original bytes.
	Quarantine(doc Document) error

	Close() error
	String() string
}
