// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	prefixDocument = "doc:"
	prefixCorrupt  = "corrupt:"
)

// BadgerBackend keeps each document under doc:<name> in an embedded
// BadgerDB. Badger transactions replace the lock files used by JSONBackend.
type BadgerBackend struct {
	db   *badger.DB
	path string
}

// OpenBadgerBackend opens (or creates) the database at path.
func OpenBadgerBackend(path string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	return &BadgerBackend{db: db, path: path}, nil
}

func documentKey(doc Document) []byte {
	return []byte(prefixDocument + string(doc))
}

// Load returns the document value.
func (b *BadgerBackend) Load(doc Document) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey(doc))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", doc, err)
	}
	return data, nil
}

// Save replaces the document value.
func (b *BadgerBackend) Save(doc Document, data []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(documentKey(doc), data)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", doc, err)
	}
	return nil
}

// Quarantine moves the value to corrupt:<name>:<unix>.
func (b *BadgerBackend) Quarantine(doc Document) error {
	return b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey(doc))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		dest := fmt.Sprintf("%s%s:%d", prefixCorrupt, doc, time.Now().Unix())
		if err := txn.Set([]byte(dest), val); err != nil {
			return err
		}
		return txn.Delete(documentKey(doc))
	})
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

func (b *BadgerBackend) String() string { return "badger:" + b.path }
