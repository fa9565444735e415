// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tidevue/tidevue/internal/auth"
	"github.com/tidevue/tidevue/internal/config"
	"github.com/tidevue/tidevue/internal/middleware"
)

// Router builds the chi router with the full middleware chain. Ordering
// matters: request IDs must exist before metrics or handlers log, and
// rate limiting sits in front of the login handler it protects.
func (s *Server) Router(cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Prometheus)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOriginsOrDefault(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(cfg.Security.RateLimitReqs, cfg.Security.RateLimitWindow))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Get("/config", s.handlePublicConfig)
		r.Get("/proxy", s.handleProxy)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Middleware(s.tokens))
			r.Get("/config", s.handleAdminConfigGet)
			r.Post("/config", s.handleAdminConfigUpdate)
		})
	})

	return r
}
