// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tidevue/tidevue/internal/logging"
)

// PostgresAdapter implements the Adapter contract with a fresh single-use
// connection per operation instead of a pool. That favors short-lived
// serverless execution environments over connection reuse efficiency:
// higher per-call latency, no idle connections to leak.
type PostgresAdapter struct {
	connString  string
	table       string
	initialized bool
}

// NewPostgresAdapter creates an adapter for the given connection string.
// table overrides the default "configs" table name; the caller validates
// it as a plain identifier before it reaches SQL text.
func NewPostgresAdapter(connString, table string) *PostgresAdapter {
	if table == "" {
		table = "configs"
	}
	return &PostgresAdapter{connString: connString, table: table}
}

// Name implements Adapter.
func (a *PostgresAdapter) Name() string { return "postgres" }

// connect opens a single-use connection. Callers must close it.
func (a *PostgresAdapter) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, a.connString)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return conn, nil
}

// Init verifies connectivity and ensures the configs table exists.
// Idempotent: the DDL is IF NOT EXISTS and a second call is a no-op.
func (a *PostgresAdapter) Init(ctx context.Context) error {
	if a.initialized {
		return nil
	}

	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer a.closeConn(ctx, conn)

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY DEFAULT '%s',
		config JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, a.table, ConfigKey)
	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}

	a.initialized = true
	return nil
}

// Get returns the JSONB value stored under key.
func (a *PostgresAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	if !a.initialized {
		return nil, ErrNotInitialized
	}
	conn, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer a.closeConn(ctx, conn)
	return pgGet(ctx, conn, a.table, key)
}

// Set upserts the value under key via INSERT ... ON CONFLICT, a single
// atomic statement.
func (a *PostgresAdapter) Set(ctx context.Context, key string, value []byte) error {
	if !a.initialized {
		return ErrNotInitialized
	}
	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer a.closeConn(ctx, conn)
	return pgSet(ctx, conn, a.table, key, value)
}

// Delete removes the value under key.
func (a *PostgresAdapter) Delete(ctx context.Context, key string) error {
	if !a.initialized {
		return ErrNotInitialized
	}
	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer a.closeConn(ctx, conn)
	return pgDelete(ctx, conn, a.table, key)
}

// List returns all stored row ids.
func (a *PostgresAdapter) List(ctx context.Context) ([]string, error) {
	if !a.initialized {
		return nil, ErrNotInitialized
	}
	conn, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer a.closeConn(ctx, conn)
	return pgList(ctx, conn, a.table)
}

// Query executes a raw SQL query and returns generic rows.
func (a *PostgresAdapter) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	if !a.initialized {
		return nil, ErrNotInitialized
	}
	conn, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer a.closeConn(ctx, conn)
	return pgQuery(ctx, conn, query, args...)
}

// Transaction opens one connection for the whole callback so its
// operations share a pgx transaction.
func (a *PostgresAdapter) Transaction(ctx context.Context, fn func(Adapter) error) error {
	if !a.initialized {
		return ErrNotInitialized
	}

	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer a.closeConn(ctx, conn)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres begin: %w", err)
	}

	if err := fn(&pgTxAdapter{tx: tx, table: a.table}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logging.Warn().Err(rbErr).Msg("postgres rollback failed")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres commit: %w", err)
	}
	return nil
}

// Close implements Adapter. There are no pooled resources to release;
// every operation opened and closed its own connection.
func (a *PostgresAdapter) Close() error {
	a.initialized = false
	return nil
}

func (a *PostgresAdapter) closeConn(ctx context.Context, conn *pgx.Conn) {
	if err := conn.Close(ctx); err != nil {
		logging.Warn().Err(err).Msg("postgres connection close failed")
	}
}

// pgTxAdapter scopes the contract to one open transaction.
type pgTxAdapter struct {
	tx    pgx.Tx
	table string
}

func (t *pgTxAdapter) Name() string                   { return "postgres" }
func (t *pgTxAdapter) Init(ctx context.Context) error { return nil }
func (t *pgTxAdapter) Close() error                   { return nil }

func (t *pgTxAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	return pgGet(ctx, t.tx, t.table, key)
}

func (t *pgTxAdapter) Set(ctx context.Context, key string, value []byte) error {
	return pgSet(ctx, t.tx, t.table, key, value)
}

func (t *pgTxAdapter) Delete(ctx context.Context, key string) error {
	return pgDelete(ctx, t.tx, t.table, key)
}

func (t *pgTxAdapter) List(ctx context.Context) ([]string, error) {
	return pgList(ctx, t.tx, t.table)
}

func (t *pgTxAdapter) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return pgQuery(ctx, t.tx, query, args...)
}

func (t *pgTxAdapter) Transaction(ctx context.Context, fn func(Adapter) error) error {
	return ErrNestedTransaction
}

// pgQuerier is the subset of pgx shared by *pgx.Conn and pgx.Tx.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func pgGet(ctx context.Context, q pgQuerier, table, key string) ([]byte, error) {
	var raw []byte
	err := q.QueryRow(ctx,
		fmt.Sprintf("SELECT config FROM %s WHERE id = $1", table), key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get: %w", err)
	}
	return raw, nil
}

func pgSet(ctx context.Context, q pgQuerier, table, key string, value []byte) error {
	_, err := q.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, config, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_at = now()`, table),
		key, value)
	if err != nil {
		return fmt.Errorf("postgres set: %w", err)
	}
	return nil
}

func pgDelete(ctx context.Context, q pgQuerier, table, key string) error {
	if _, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), key); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

func pgList(ctx context.Context, q pgQuerier, table string) ([]string, error) {
	rows, err := q.Query(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY updated_at", table))
	if err != nil {
		return nil, fmt.Errorf("postgres list: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("postgres list scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres list rows: %w", err)
	}
	return keys, nil
}

func pgQuery(ctx context.Context, q pgQuerier, query string, args ...any) ([]map[string]any, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := []map[string]any{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres query values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres query rows: %w", err)
	}
	return out, nil
}
