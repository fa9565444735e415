// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

// Package settings manages the singleton application configuration record:
// the one mutable JSON document holding resource sites, player settings,
// branding and the login password. Reads never fail — a missing or
// unreachable backend degrades to the built-in default record so the
// shell UI stays available on backend outage.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tidevue/tidevue/internal/logging"
	"github.com/tidevue/tidevue/internal/storage"
)

// ResourceSite describes one third-party listing source.
type ResourceSite struct {
	// URL is the listing URL template.
	URL string `json:"url" validate:"required,url"`

	// Selector optionally narrows results to a CSS selector. It is
	// carried opaquely; the server never inspects scraped content.
	Selector string `json:"selector,omitempty"`

	// Remark is the display label.
	Remark string `json:"remark,omitempty"`

	// Active toggles the site without removing it.
	Active bool `json:"active"`

	// PostTemplate, when set, switches the fetch to POST with this body
	// template.
	PostTemplate string `json:"postTemplate,omitempty"`
}

// AppConfig is the singleton configuration record. At most one record is
// ever current: reads return the most recently written record and writes
// overwrite in place.
type AppConfig struct {
	ResourceSites   []ResourceSite `json:"resourceSites" validate:"dive"`
	ParseAPI        string         `json:"parseApi" validate:"omitempty,url"`
	BackgroundImage string         `json:"backgroundImage" validate:"omitempty,url"`
	EnableLogin     bool           `json:"enableLogin"`
	LoginPassword   string         `json:"loginPassword"`
	Announcement    string         `json:"announcement"`
	CustomTitle     string         `json:"customTitle"`
}

// PublicConfig is AppConfig with the password stripped. A separate type,
// not an omitempty tag, so the field cannot appear for any input record.
type PublicConfig struct {
	ResourceSites   []ResourceSite `json:"resourceSites"`
	ParseAPI        string         `json:"parseApi"`
	BackgroundImage string         `json:"backgroundImage"`
	EnableLogin     bool           `json:"enableLogin"`
	Announcement    string         `json:"announcement"`
	CustomTitle     string         `json:"customTitle"`
}

// Default returns the literal default record used when the backend holds
// nothing or is unreachable: empty site list, no parser API, login
// disabled.
func Default() AppConfig {
	return AppConfig{
		ResourceSites:   []ResourceSite{},
		ParseAPI:        "",
		BackgroundImage: "",
		EnableLogin:     false,
		LoginPassword:   "",
		Announcement:    "",
		CustomTitle:     "",
	}
}

// Public strips the password, the only field classified sensitive.
func (c AppConfig) Public() PublicConfig {
	sites := c.ResourceSites
	if sites == nil {
		sites = []ResourceSite{}
	}
	return PublicConfig{
		ResourceSites:   sites,
		ParseAPI:        c.ParseAPI,
		BackgroundImage: c.BackgroundImage,
		EnableLogin:     c.EnableLogin,
		Announcement:    c.Announcement,
		CustomTitle:     c.CustomTitle,
	}
}

// Backend is the slice of the storage contract the service needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Service wraps reads and writes of the configuration record with the
// default-fallback and redaction rules.
type Service struct {
	store Backend
}

// NewService creates a settings service over the given backend. The
// backend may be an unbound store; every read then returns defaults.
func NewService(store Backend) *Service {
	return &Service{store: store}
}

// Get returns the current configuration record. It never fails: an empty
// backend, an unreachable backend, or a corrupt record all yield the
// default record. The default is synthesized in memory, never written
// back.
func (s *Service) Get(ctx context.Context) AppConfig {
	raw, err := s.store.Get(ctx, storage.ConfigKey)
	if err != nil {
		// Absence and "no persistence configured" are normal; anything
		// else is worth a diagnostic before degrading.
		if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrNotInitialized) {
			logging.Ctx(ctx).Warn().Err(err).Msg("config read failed, serving defaults")
		}
		return Default()
	}

	var cfg AppConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("stored config is not valid JSON, serving defaults")
		return Default()
	}
	if cfg.ResourceSites == nil {
		cfg.ResourceSites = []ResourceSite{}
	}
	return cfg
}

// GetPublic returns the current configuration with the password stripped.
// This is the shape every unauthenticated response path must use.
func (s *Service) GetPublic(ctx context.Context) PublicConfig {
	return s.Get(ctx).Public()
}

// Update serializes the full record and writes it through the backend.
// The whole record is replaced; there is no field-level merge, and
// concurrent updates race under last-write-wins.
func (s *Service) Update(ctx context.Context, cfg AppConfig) error {
	if cfg.ResourceSites == nil {
		cfg.ResourceSites = []ResourceSite{}
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := s.store.Set(ctx, storage.ConfigKey, raw); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	return nil
}
