// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/metrics"
)

// JSONBackend stores each document as <dir>/<doc>.json.
//
// Writes go through a temp file and rename, guarded by <doc>.json.lock. When
// the lock cannot be taken within the timeout the write proceeds unlocked
// and a warning is logged.
type JSONBackend struct {
	dir         string
	lockTimeout time.Duration
	lockPoll    time.Duration
}

// NewJSONBackend creates dir if needed.
func NewJSONBackend(dir string, lockTimeout, lockPoll time.Duration) (*JSONBackend, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &JSONBackend{dir: dir, lockTimeout: lockTimeout, lockPoll: lockPoll}, nil
}

// Path returns the file backing doc.
func (b *JSONBackend) Path(doc Document) string {
	return filepath.Join(b.dir, string(doc)+".json")
}

// Load reads the document file.
func (b *JSONBackend) Load(doc Document) ([]byte, error) {
	data, err := os.ReadFile(b.Path(doc))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", doc, err)
	}
	return data, nil
}

// Save rewrites the document file.
func (b *JSONBackend) Save(doc Document, data []byte) error {
	path := b.Path(doc)

	lock := NewFileLock(path+LockSuffix, b.lockTimeout, b.lockPoll)
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, ErrLockTimeout) {
			metrics.StoreLockTimeouts.Inc()
		}
		logging.Warn().Err(err).Str("document", string(doc)).Msg("Writing document without lock")
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logging.Error().Err(err).Str("document", string(doc)).Msg("Failed to release document lock")
		}
	}()

	tmp, err := os.CreateTemp(b.dir, string(doc)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", doc, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", doc, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", doc, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", doc, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", doc, err)
	}
	return nil
}

// Quarantine renames the document to <doc>.json.corrupt-<unix>.
func (b *JSONBackend) Quarantine(doc Document) error {
	path := b.Path(doc)
	dest := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("quarantine %s: %w", doc, err)
	}
	return nil
}

// Dir returns the data directory.
func (b *JSONBackend) Dir() string { return b.dir }

// Close is a no-op; files are closed after every write.
func (b *JSONBackend) Close() error { return nil }

func (b *JSONBackend) String() string { return "json:" + b.dir }
