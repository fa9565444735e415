// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

// Package storage persists the application configuration record behind one
// of three interchangeable backends: a pooled MySQL connection, per-call
// Postgres connections, or an embedded Badger key-value store.
//
// All backends implement the same Adapter contract. The Store facade owns
// at most one live adapter, selected by priority order at startup, and is
// the only component allowed to hold a long-lived handle to a backing
// store. Backend failures never escape as panics; they surface as typed
// errors and callers fall back to in-memory defaults.
package storage

import "context"

// Values are raw JSON bytes. The SQL backends store them in native
// JSON/JSONB columns; Badger stores the encoded bytes directly.

// Adapter is the capability contract implemented by every backend.
//
// Failure semantics: Init converts connectivity failures into an error
// return so the facade can try the next candidate. After a successful
// Init, operation failures return wrapped errors; absence of a key is
// ErrNotFound, never a nil-with-no-error.
type Adapter interface {
	// Init establishes connectivity and ensures the backing schema exists.
	// Idempotent.
	Init(ctx context.Context) error

	// Get returns the JSON value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set upserts the JSON value under key. Exactly one row/entry exists
	// per key afterwards; the write is a single atomic statement per
	// backend, so concurrent writers race under last-write-wins.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the value under key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// List returns the stored key identifiers. Ordering is
	// backend-defined and not guaranteed stable across calls.
	List(ctx context.Context) ([]string, error)

	// Query is a passthrough escape hatch for SQL-shaped backends. The
	// key-value backend returns an empty result and logs a capability
	// mismatch instead of failing with wrong semantics.
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)

	// Transaction runs fn with an adapter-scoped handle whose operations
	// commit or roll back as a unit. Nested transactions fail fast with
	// ErrNestedTransaction. The key-value backend executes fn directly
	// against itself with no atomicity guarantee; that weaker contract is
	// documented on BadgerAdapter.
	Transaction(ctx context.Context, fn func(Adapter) error) error

	// Close releases pooled resources. Safe to call when never
	// initialized.
	Close() error

	// Name identifies the backend ("mysql", "postgres", "badger").
	Name() string
}

// ConfigKey is the distinguished key addressing the singleton application
// configuration record.
const ConfigKey = "config"
