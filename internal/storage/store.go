// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package storage

import (
	"context"
	"sync"

	"github.com/tidevue/tidevue/internal/config"
	"github.com/tidevue/tidevue/internal/logging"
	"github.com/tidevue/tidevue/internal/metrics"
)

// Store is the process-wide access point to persistence. It owns at most
// one live adapter, selected by strict priority order over the configured
// backends: MySQL DSN first, then Postgres, then Badger. It is constructed
// explicitly and injected into request handlers; construct once at process
// start, Close once at shutdown.
type Store struct {
	mu      sync.Mutex
	adapter Adapter

	// candidates produces the adapters to probe, in priority order.
	// Replaced in tests.
	candidates func() []Adapter
}

// New creates an unbound Store for the given storage configuration.
// Call Init to bind a backend.
func New(cfg config.StorageConfig) *Store {
	return &Store{
		candidates: func() []Adapter {
			var out []Adapter
			if cfg.MySQLDSN != "" {
				out = append(out, NewMySQLAdapter(cfg.MySQLDSN))
			}
			if cfg.PostgresURL != "" {
				out = append(out, NewPostgresAdapter(cfg.PostgresURL, cfg.PostgresTable))
			}
			if cfg.BadgerPath != "" {
				out = append(out, NewBadgerAdapter(cfg.BadgerPath))
			}
			return out
		},
	}
}

// newWithCandidates builds a Store over a fixed candidate list. Used by
// tests to substitute fake adapters.
func newWithCandidates(candidates ...Adapter) *Store {
	return &Store{candidates: func() []Adapter { return candidates }}
}

// Init binds the store to the first candidate backend whose Init
// succeeds. Priority is presence order, not success probability: a
// higher-priority candidate is always probed first, and only its failure
// moves evaluation to the next one.
//
// Calling Init while already bound is a success no-op, which guarantees at
// most one live connection pool per process. If every present candidate
// fails (or none is configured), Init returns ErrNoBackend and the store
// stays unbound; callers must treat that as "no persistence available".
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adapter != nil {
		return nil
	}

	for _, candidate := range s.candidates() {
		if err := candidate.Init(ctx); err != nil {
			logging.Warn().
				Str("backend", candidate.Name()).
				Err(err).
				Msg("storage backend unavailable, trying next candidate")
			closeQuietly(candidate)
			continue
		}
		s.adapter = candidate
		metrics.StorageBackendBound.WithLabelValues(candidate.Name()).Set(1)
		logging.Info().Str("backend", candidate.Name()).Msg("storage backend bound")
		return nil
	}

	return ErrNoBackend
}

// Backend returns the bound backend name, or empty when unbound.
func (s *Store) Backend() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter == nil {
		return ""
	}
	return s.adapter.Name()
}

// bound returns the live adapter or ErrNotInitialized.
func (s *Store) bound() (Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter == nil {
		return nil, ErrNotInitialized
	}
	return s.adapter, nil
}

// record counts one storage operation against the bound backend.
func record(backend, op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.StorageOperationsTotal.WithLabelValues(backend, op, outcome).Inc()
}

// Get forwards to the bound adapter.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	a, err := s.bound()
	if err != nil {
		return nil, err
	}
	v, err := a.Get(ctx, key)
	record(a.Name(), "get", err)
	return v, err
}

// Set forwards to the bound adapter.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	a, err := s.bound()
	if err != nil {
		return err
	}
	err = a.Set(ctx, key, value)
	record(a.Name(), "set", err)
	return err
}

// Delete forwards to the bound adapter.
func (s *Store) Delete(ctx context.Context, key string) error {
	a, err := s.bound()
	if err != nil {
		return err
	}
	err = a.Delete(ctx, key)
	record(a.Name(), "delete", err)
	return err
}

// List forwards to the bound adapter.
func (s *Store) List(ctx context.Context) ([]string, error) {
	a, err := s.bound()
	if err != nil {
		return nil, err
	}
	keys, err := a.List(ctx)
	record(a.Name(), "list", err)
	return keys, err
}

// Query forwards to the bound adapter.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	a, err := s.bound()
	if err != nil {
		return nil, err
	}
	rows, err := a.Query(ctx, query, args...)
	record(a.Name(), "query", err)
	return rows, err
}

// Transaction forwards to the bound adapter.
func (s *Store) Transaction(ctx context.Context, fn func(Adapter) error) error {
	a, err := s.bound()
	if err != nil {
		return err
	}
	err = a.Transaction(ctx, fn)
	record(a.Name(), "transaction", err)
	return err
}

// Close releases the bound adapter and unbinds the store. A later Init
// re-evaluates the candidates.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter == nil {
		return nil
	}
	metrics.StorageBackendBound.WithLabelValues(s.adapter.Name()).Set(0)
	err := s.adapter.Close()
	s.adapter = nil
	return err
}
