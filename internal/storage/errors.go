// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package storage

import "errors"

// Sentinel errors returned by adapters and the store facade. Callers use
// errors.Is to distinguish "not found" from a backend failure; anything
// not matching a sentinel is a backend error wrapped with operation
// context.
var (
	// ErrNotFound reports that the key has no stored value. This is the
	// normal empty-store condition, not a failure.
	ErrNotFound = errors.New("storage: key not found")

	// ErrNotInitialized reports an operation on a store with no bound
	// adapter. This is a programming error, not a transient condition.
	ErrNotInitialized = errors.New("storage: not initialized")

	// ErrNoBackend reports that no configured backend could be reached
	// during initialization. Callers degrade to in-memory defaults.
	ErrNoBackend = errors.New("storage: no backend available")

	// ErrNestedTransaction reports a Transaction call from inside a
	// transaction callback.
	ErrNestedTransaction = errors.New("storage: nested transactions are not supported")
)
