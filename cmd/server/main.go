// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

// Command server runs the Tidevue backend: configuration persistence,
// session tokens, and the upstream proxy behind one HTTP listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidevue/tidevue/internal/api"
	"github.com/tidevue/tidevue/internal/auth"
	"github.com/tidevue/tidevue/internal/config"
	"github.com/tidevue/tidevue/internal/fetch"
	"github.com/tidevue/tidevue/internal/logging"
	"github.com/tidevue/tidevue/internal/settings"
	"github.com/tidevue/tidevue/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Bool("storage_configured", cfg.HasStorage()).
		Msg("starting tidevue")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := storage.New(cfg.Storage)
	if err := store.Init(ctx); err != nil {
		// A missing backend is survivable: config reads degrade to
		// defaults and writes fail with a clear error.
		if errors.Is(err, storage.ErrNoBackend) {
			logging.Warn().Msg("no storage backend available, running with default configuration only")
		} else {
			return fmt.Errorf("initialize storage: %w", err)
		}
	} else {
		logging.Info().Str("backend", store.Backend()).Msg("storage backend ready")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn().Err(err).Msg("storage close failed")
		}
	}()

	settingsSvc := settings.NewService(store)

	tokens, err := auth.NewTokenManager(&cfg.Security)
	if err != nil {
		return fmt.Errorf("initialize token manager: %w", err)
	}
	authn := auth.NewAuthenticator(settingsSvc, cfg.Security.AdminPassword)

	fetcher := fetch.NewClient(cfg.Fetch)

	server := api.NewServer(settingsSvc, authn, tokens, fetcher, store.Backend)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Router(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logging.Info().Msg("shutdown complete")
	return nil
}
