// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package blob stores media bytes addressed by slash-separated keys.
//
// The catalog only ever stores keys. Two layouts are used:
//
//	<owner>/<unix>_<file_id>.<ext>      uploaded media
//	duplicates/<media_id>_<base>        quarantined duplicate copies
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/tomtom215/mediarelay/internal/config"
)

// ErrNotFound is returned by Copy when the source key does not exist.
var ErrNotFound = errors.New("blob: not found")

// DuplicatesPrefix is the key prefix of the quarantine area.
const DuplicatesPrefix = "duplicates/"

// Store is a minimal object store.
type Store interface {
	// PutFile moves (or uploads) a local file to key. The local file is
	// consumed on success.
	PutFile(ctx context.Context, key, localPath string) error

	// Copy duplicates srcKey to dstKey.
	Copy(ctx context.Context, srcKey, dstKey string) error

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is stored.
	Exists(ctx context.Context, key string) (bool, error)
}

// QuarantineKey returns the key for a duplicate copy of srcKey.
func QuarantineKey(mediaID, srcKey string) string {
	return DuplicatesPrefix + mediaID + "_" + path.Base(srcKey)
}

// CleanKey validates and normalizes a key. Absolute keys and keys escaping
// the root are rejected.
func CleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blob: empty key")
	}
	cleaned := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if path.IsAbs(cleaned) || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("blob: invalid key %q", key)
	}
	return cleaned, nil
}

// New builds the store selected by cfg.
func New(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalStore(cfg.MediaDir)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("blob: unknown backend %q", cfg.Backend)
	}
}
