// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/tidevue/tidevue/internal/logging"
)

// kvKeyPrefix namespaces this service's entries inside the store.
const kvKeyPrefix = "config:"

// BadgerAdapter is the embedded key-value implementation of the Adapter
// contract. Every key is treated literally (no singleton sentinel
// handling) and values are stored as the raw JSON bytes.
//
// Weaker contracts, by design rather than bug:
//   - Query has no SQL to pass through; it returns an empty result and
//     logs the capability mismatch.
//   - Transaction executes the callback directly against the adapter with
//     no atomicity guarantee.
type BadgerAdapter struct {
	path string
	db   *badger.DB
}

// NewBadgerAdapter creates an adapter over the store directory at path.
// The store is not opened until Init.
func NewBadgerAdapter(path string) *BadgerAdapter {
	return &BadgerAdapter{path: path}
}

// Name implements Adapter.
func (a *BadgerAdapter) Name() string { return "badger" }

// Init opens the store. Idempotent; a second call on an open store is a
// no-op.
func (a *BadgerAdapter) Init(ctx context.Context) error {
	if a.db != nil {
		return nil
	}

	opts := badger.DefaultOptions(a.path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("badger open: %w", err)
	}

	a.db = db
	return nil
}

// Get returns the value stored under key.
func (a *BadgerAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	if a.db == nil {
		return nil, ErrNotInitialized
	}

	var value []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(kvKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("badger get: %w", err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores the value under key. Badger's Update runs as one write
// transaction, so a single Set is atomic and last-write-wins under
// concurrency.
func (a *BadgerAdapter) Set(ctx context.Context, key string, value []byte) error {
	if a.db == nil {
		return ErrNotInitialized
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(kvKeyPrefix+key), value)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Delete removes the value under key. Missing keys are not an error.
func (a *BadgerAdapter) Delete(ctx context.Context, key string) error {
	if a.db == nil {
		return ErrNotInitialized
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(kvKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// List returns all stored keys. Ordering follows the store's iteration
// order and is not guaranteed stable across calls.
func (a *BadgerAdapter) List(ctx context.Context) ([]string, error) {
	if a.db == nil {
		return nil, ErrNotInitialized
	}

	var keys []string
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(kvKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), kvKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list: %w", err)
	}
	return keys, nil
}

// Query is a capability mismatch for a key-value store: it returns an
// empty result and logs, keeping the uniform contract predictable for
// callers that do not branch on adapter type.
func (a *BadgerAdapter) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	logging.Warn().Str("backend", a.Name()).Msg("raw query against key-value backend ignored")
	return []map[string]any{}, nil
}

// Transaction executes fn directly against the adapter. There is no
// transactional backing store, so the callback's operations are NOT
// atomic as a unit; each individual operation still is.
func (a *BadgerAdapter) Transaction(ctx context.Context, fn func(Adapter) error) error {
	if a.db == nil {
		return ErrNotInitialized
	}
	return fn(&kvTxnAdapter{BadgerAdapter: a})
}

// Close releases the store. Safe when never initialized.
func (a *BadgerAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// kvTxnAdapter marks execution inside a Transaction callback so a nested
// Transaction fails fast like the SQL backends.
type kvTxnAdapter struct {
	*BadgerAdapter
}

func (t *kvTxnAdapter) Transaction(ctx context.Context, fn func(Adapter) error) error {
	return ErrNestedTransaction
}
