// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/tidevue/tidevue/internal/logging"
)

// MySQLAdapter is the pooled SQL implementation of the Adapter contract.
// It holds one set of persistent connections for the process lifetime;
// each operation borrows and releases a connection through database/sql.
type MySQLAdapter struct {
	dsn string
	db  *sql.DB
}

// NewMySQLAdapter creates an adapter for the given compact DSN
// (user:password@host:port/database). No connection is made until Init.
func NewMySQLAdapter(dsn string) *MySQLAdapter {
	return &MySQLAdapter{dsn: dsn}
}

// Name implements Adapter.
func (a *MySQLAdapter) Name() string { return "mysql" }

// Init opens the connection pool and ensures the configs table exists.
// Idempotent; a second call on a live adapter is a no-op.
func (a *MySQLAdapter) Init(ctx context.Context) error {
	if a.db != nil {
		return nil
	}

	parts := ParseDSN(a.dsn)
	port := parts.Port
	if port == "" {
		port = "3306"
	}

	// The driver wants user:pass@tcp(host:port)/dbname; parseTime handles
	// the updated_at column.
	driverDSN := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		parts.User, parts.Password, parts.Host, port, parts.Database)

	db, err := sql.Open("mysql", driverDSN)
	if err != nil {
		return fmt.Errorf("mysql open: %w", err)
	}
	db.SetMaxOpenConns(parts.ConnLimit)
	db.SetMaxIdleConns(parts.MaxIdle)

	if err := db.PingContext(ctx); err != nil {
		closeQuietly(db)
		return fmt.Errorf("mysql connect: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS configs (
		id INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		k VARCHAR(191) NOT NULL UNIQUE,
		config JSON NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		closeQuietly(db)
		return fmt.Errorf("mysql schema: %w", err)
	}

	a.db = db
	return nil
}

// Get returns the value stored under key. The singleton config key reads
// the most recently written row.
func (a *MySQLAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	if a.db == nil {
		return nil, ErrNotInitialized
	}
	return mysqlGet(ctx, a.db, key)
}

// Set upserts the value under key as a single atomic statement.
func (a *MySQLAdapter) Set(ctx context.Context, key string, value []byte) error {
	if a.db == nil {
		return ErrNotInitialized
	}
	return mysqlSet(ctx, a.db, key, value)
}

// Delete removes the value under key.
func (a *MySQLAdapter) Delete(ctx context.Context, key string) error {
	if a.db == nil {
		return ErrNotInitialized
	}
	return mysqlDelete(ctx, a.db, key)
}

// List returns all stored keys in insertion order.
func (a *MySQLAdapter) List(ctx context.Context) ([]string, error) {
	if a.db == nil {
		return nil, ErrNotInitialized
	}
	return mysqlList(ctx, a.db)
}

// Query executes a raw SQL query and returns generic rows.
func (a *MySQLAdapter) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	if a.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql query: %w", err)
	}
	defer closeQuietly(rows)
	return scanGenericRows(rows)
}

// Transaction runs fn against a transaction-scoped adapter. The callback's
// operations commit as a unit; any error rolls the transaction back.
func (a *MySQLAdapter) Transaction(ctx context.Context, fn func(Adapter) error) error {
	if a.db == nil {
		return ErrNotInitialized
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mysql begin: %w", err)
	}

	if err := fn(&mysqlTxAdapter{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Warn().Err(rbErr).Msg("mysql rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mysql commit: %w", err)
	}
	return nil
}

// Close releases the connection pool. Safe when never initialized.
func (a *MySQLAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// mysqlTxAdapter scopes the contract to a single transaction. Init and
// Close are no-ops; a nested Transaction fails fast.
type mysqlTxAdapter struct {
	tx *sql.Tx
}

func (t *mysqlTxAdapter) Name() string                   { return "mysql" }
func (t *mysqlTxAdapter) Init(ctx context.Context) error { return nil }
func (t *mysqlTxAdapter) Close() error                   { return nil }

func (t *mysqlTxAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	return mysqlGet(ctx, t.tx, key)
}

func (t *mysqlTxAdapter) Set(ctx context.Context, key string, value []byte) error {
	return mysqlSet(ctx, t.tx, key, value)
}

func (t *mysqlTxAdapter) Delete(ctx context.Context, key string) error {
	return mysqlDelete(ctx, t.tx, key)
}

func (t *mysqlTxAdapter) List(ctx context.Context) ([]string, error) {
	return mysqlList(ctx, t.tx)
}

func (t *mysqlTxAdapter) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql query: %w", err)
	}
	defer closeQuietly(rows)
	return scanGenericRows(rows)
}

func (t *mysqlTxAdapter) Transaction(ctx context.Context, fn func(Adapter) error) error {
	return ErrNestedTransaction
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func mysqlGet(ctx context.Context, q querier, key string) ([]byte, error) {
	var raw []byte
	var err error
	if key == ConfigKey {
		// Singleton read: the most recently written row wins.
		err = q.QueryRowContext(ctx,
			"SELECT config FROM configs WHERE k = ? ORDER BY id DESC LIMIT 1", key).Scan(&raw)
	} else {
		err = q.QueryRowContext(ctx,
			"SELECT config FROM configs WHERE k = ?", key).Scan(&raw)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mysql get: %w", err)
	}
	return raw, nil
}

func mysqlSet(ctx context.Context, q querier, key string, value []byte) error {
	// Single-statement upsert keyed on the UNIQUE k column: concurrent
	// writers race under last-write-wins, never a merged value.
	_, err := q.ExecContext(ctx,
		"INSERT INTO configs (k, config) VALUES (?, ?) ON DUPLICATE KEY UPDATE config = VALUES(config)",
		key, value)
	if err != nil {
		return fmt.Errorf("mysql set: %w", err)
	}
	return nil
}

func mysqlDelete(ctx context.Context, q querier, key string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM configs WHERE k = ?", key); err != nil {
		return fmt.Errorf("mysql delete: %w", err)
	}
	return nil
}

func mysqlList(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT k FROM configs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("mysql list: %w", err)
	}
	defer closeQuietly(rows)

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("mysql list scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql list rows: %w", err)
	}
	return keys, nil
}
