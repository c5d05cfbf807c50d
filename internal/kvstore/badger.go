// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package kvstore wraps dgraph-io/badger/v4 with the transaction-callback
// shape the rest of the module builds persistence on: the embedding cache
// and the ANN index both need a small disk-backed key-value store, and
// share this one wrapper type; each opens its own BadgerDB instance
// through it. Grounded on the teacher's (unexported) badgerstore.DB used by
// BadgerRouterCacheStore.
package kvstore

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// DB wraps a single BadgerDB instance opened at a directory on disk.
type DB struct {
	inner *badger.DB
}

// Open opens (creating if absent) a BadgerDB at dir.
func Open(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	inner, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening badger at %s: %w", dir, err)
	}
	return &DB{inner: inner}, nil
}

// Close releases the underlying BadgerDB.
func (db *DB) Close() error { return db.inner.Close() }

// WithTxn runs fn in a read-write transaction, committing on success.
func (db *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return db.inner.Update(fn)
}

// WithReadTxn runs fn in a read-only transaction.
func (db *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return db.inner.View(fn)
}

// RunGC triggers BadgerDB's value-log garbage collection, reclaiming space
// from expired/overwritten entries. Intended to be called periodically by
// the orchestrator's cron-scheduled vacuum sweep.
func (db *DB) RunGC(discardRatio float64) error {
	err := db.inner.RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}
