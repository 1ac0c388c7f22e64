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
	"strconv"
	"strings"
	"time"
)

// ErrLockTimeout is returned when a lock file could not be created before
// the timeout elapsed.
var ErrLockTimeout = errors.New("store: timed out acquiring lock")

// LockSuffix is appended to a document path to name its lock file.
const LockSuffix = ".lock"

// FileLock is an advisory cross-process lock backed by exclusive creation
// of a lock file. Holders must Release it; a crashed holder leaves a stale
// file behind, which RemoveStaleLocks cleans up.
type FileLock struct {
	path    string
	timeout time.Duration
	poll    time.Duration
	held    bool
}

// NewFileLock returns an unacquired lock on path.
func NewFileLock(path string, timeout, poll time.Duration) *FileLock {
	return &FileLock{path: path, timeout: timeout, poll: poll}
}

// Acquire polls until the lock file can be created. It returns
// ErrLockTimeout once the timeout has elapsed.
func (l *FileLock) Acquire() error {
	deadline := time.Now().Add(l.timeout)
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(l.path)
				return fmt.Errorf("close lock %s: %w", l.path, cerr)
			}
			l.held = true
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create lock %s: %w", l.path, err)
		}
		if !time.Now().Before(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(l.poll)
	}
}

// Held reports whether this FileLock currently owns the lock file.
func (l *FileLock) Held() bool { return l.held }

// Release removes the lock file if this FileLock owns it.
func (l *FileLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock %s: %w", l.path, err)
	}
	return nil
}

// RemoveStaleLocks deletes lock files in dir whose modification time is
// older than maxAge and returns how many were removed.
func RemoveStaleLocks(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), LockSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
