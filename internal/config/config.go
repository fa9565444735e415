// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

// Package config holds all application configuration loaded from environment
// variables and an optional YAML config file.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all optional settings
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: override any setting
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Storage  StorageConfig  `koanf:"storage"`
	Security SecurityConfig `koanf:"security"`
	Fetch    FetchConfig    `koanf:"fetch"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// StorageConfig selects the persistence backend for the application
// configuration record. The fields form a priority order evaluated at
// startup: MySQLDSN first, then PostgresURL, then BadgerPath. Absence of
// all three means "no persistence" and the service operates against
// in-memory defaults.
type StorageConfig struct {
	// MySQLDSN is a compact DSN of the form user:password@host:port/database.
	// Highest-priority backend when set.
	MySQLDSN string `koanf:"mysql_dsn"`

	// PostgresURL is a Postgres connection string (postgres://...).
	// Second-priority backend.
	PostgresURL string `koanf:"postgres_url"`

	// PostgresTable overrides the table name used by the Postgres backend.
	// Default: configs
	PostgresTable string `koanf:"postgres_table"`

	// BadgerPath is the directory of the embedded key-value store.
	// Lowest-priority backend.
	BadgerPath string `koanf:"badger_path"`
}

// SecurityConfig holds authentication settings.
type SecurityConfig struct {
	// JWTSecret signs session tokens. Required; minimum 32 characters.
	JWTSecret string `koanf:"jwt_secret"`

	// AdminPassword is the operator secret for the admin role. It is kept
	// out of the stored configuration record on purpose.
	AdminPassword string `koanf:"admin_password"`

	// SessionTimeout bounds token validity. Default: 24h.
	SessionTimeout time.Duration `koanf:"session_timeout"`

	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// FetchConfig tunes the outbound client used by the proxy endpoint.
type FetchConfig struct {
	Timeout      time.Duration `koanf:"timeout"`
	MaxBodyBytes int64         `koanf:"max_body_bytes"`
	UserAgent    string        `koanf:"user_agent"`

	// Circuit breaker thresholds for upstream listing sites.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid or inconsistent values.
// Storage fields are deliberately not validated beyond URL shape: a
// malformed DSN surfaces as a connection failure and the storage layer
// falls through to the next backend.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server timeout must be positive, got %s", c.Server.Timeout)
	}

	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.Security.JWTSecret))
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive, got %s", c.Security.SessionTimeout)
	}

	if c.Storage.PostgresURL != "" {
		u, err := url.Parse(c.Storage.PostgresURL)
		if err != nil {
			return fmt.Errorf("invalid postgres URL: %w", err)
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return fmt.Errorf("postgres URL must use postgres:// scheme, got %q", u.Scheme)
		}
	}
	if c.Storage.PostgresTable != "" && !isValidIdentifier(c.Storage.PostgresTable) {
		return fmt.Errorf("invalid postgres table name: %q", c.Storage.PostgresTable)
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch max body bytes must be positive, got %d", c.Fetch.MaxBodyBytes)
	}

	return nil
}

// isValidIdentifier reports whether s is safe to interpolate as a SQL
// identifier. The table name reaches SQL text directly, so it is restricted
// to the unquoted-identifier character set.
func isValidIdentifier(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// HasStorage reports whether any persistence backend is configured.
func (c *Config) HasStorage() bool {
	return c.Storage.MySQLDSN != "" || c.Storage.PostgresURL != "" || c.Storage.BadgerPath != ""
}

// CORSOriginsOrDefault returns configured CORS origins, defaulting to "*".
func (c *Config) CORSOriginsOrDefault() []string {
	if len(c.Security.CORSOrigins) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(c.Security.CORSOrigins))
	for _, o := range c.Security.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
