// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package config

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = testSecret
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults with secret are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "" },
			wantErr: "JWT_SECRET is required",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "negative session timeout",
			mutate:  func(c *Config) { c.Security.SessionTimeout = -time.Hour },
			wantErr: "session timeout",
		},
		{
			name:   "valid postgres url",
			mutate: func(c *Config) { c.Storage.PostgresURL = "postgres://user:pass@db:5432/tidevue" },
		},
		{
			name:   "postgresql scheme accepted",
			mutate: func(c *Config) { c.Storage.PostgresURL = "postgresql://user:pass@db:5432/tidevue" },
		},
		{
			name:    "postgres url with wrong scheme",
			mutate:  func(c *Config) { c.Storage.PostgresURL = "mysql://user:pass@db:5432/tidevue" },
			wantErr: "postgres:// scheme",
		},
		{
			name:    "postgres table with invalid characters",
			mutate:  func(c *Config) { c.Storage.PostgresTable = "configs; DROP TABLE" },
			wantErr: "invalid postgres table name",
		},
		{
			name:    "fetch timeout zero",
			mutate:  func(c *Config) { c.Fetch.Timeout = 0 },
			wantErr: "fetch timeout",
		},
		{
			name:    "fetch body cap zero",
			mutate:  func(c *Config) { c.Fetch.MaxBodyBytes = 0 },
			wantErr: "max body bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"configs", true},
		{"app_configs", true},
		{"configs2", true},
		{"", false},
		{"2configs", false},
		{"Configs", false},
		{"configs-prod", false},
		{"configs;drop", false},
		{strings.Repeat("a", 64), false},
		{strings.Repeat("a", 63), true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := isValidIdentifier(tt.in); got != tt.want {
				t.Errorf("isValidIdentifier(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestHasStorage(t *testing.T) {
	cfg := validConfig()
	if cfg.HasStorage() {
		t.Error("HasStorage() = true with no backend configured")
	}

	cfg.Storage.BadgerPath = "/var/lib/tidevue"
	if !cfg.HasStorage() {
		t.Error("HasStorage() = false with badger path set")
	}
}

func TestCORSOriginsOrDefault(t *testing.T) {
	cfg := validConfig()

	cfg.Security.CORSOrigins = nil
	if got := cfg.CORSOriginsOrDefault(); len(got) != 1 || got[0] != "*" {
		t.Errorf("CORSOriginsOrDefault() = %v, want [*]", got)
	}

	cfg.Security.CORSOrigins = []string{" https://app.example ", "", "https://other.example"}
	got := cfg.CORSOriginsOrDefault()
	if len(got) != 2 || got[0] != "https://app.example" || got[1] != "https://other.example" {
		t.Errorf("CORSOriginsOrDefault() = %v, want trimmed two origins", got)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("MYSQL_DSN", "app:secret@db:3306/tidevue")
	t.Setenv("HTTP_PORT", "9001")
	t.Setenv("CORS_ORIGINS", "https://app.example,https://other.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.MySQLDSN != "app:secret@db:3306/tidevue" {
		t.Errorf("MySQLDSN = %q", cfg.Storage.MySQLDSN)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("Port = %d, want 9001", cfg.Server.Port)
	}
	if len(cfg.Security.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v, want 2 entries", cfg.Security.CORSOrigins)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}

	// Untouched settings keep their defaults.
	if cfg.Storage.PostgresTable != "configs" {
		t.Errorf("PostgresTable = %q, want configs", cfg.Storage.PostgresTable)
	}
	if cfg.Security.SessionTimeout != 24*time.Hour {
		t.Errorf("SessionTimeout = %s, want 24h", cfg.Security.SessionTimeout)
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")

	if _, err := Load(); err == nil {
		t.Error("Load() error = nil, want validation failure")
	}
}

func TestEnvTransformDropsUnknownVars(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("envTransformFunc(PATH) = %q, want empty", got)
	}
	if got := envTransformFunc("MYSQL_DSN"); got != "storage.mysql_dsn" {
		t.Errorf("envTransformFunc(MYSQL_DSN) = %q", got)
	}
}
