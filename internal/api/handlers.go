// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tidevue/tidevue/internal/auth"
	"github.com/tidevue/tidevue/internal/fetch"
	"github.com/tidevue/tidevue/internal/logging"
	"github.com/tidevue/tidevue/internal/metrics"
	"github.com/tidevue/tidevue/internal/settings"
	"github.com/tidevue/tidevue/internal/validation"
)

// maxRequestBody caps inbound JSON bodies.
const maxRequestBody = 1 << 20

// Server holds the handler dependencies. Everything is injected; there
// is no package-level state.
type Server struct {
	settings *settings.Service
	auth     *auth.Authenticator
	tokens   *auth.TokenManager
	fetcher  *fetch.Client
	backend  func() string
}

// NewServer creates the API server. backend reports the currently bound
// storage backend name (empty when none) for the health endpoint.
func NewServer(svc *settings.Service, authn *auth.Authenticator, tokens *auth.TokenManager, fetcher *fetch.Client, backend func() string) *Server {
	return &Server{
		settings: svc,
		auth:     authn,
		tokens:   tokens,
		fetcher:  fetcher,
		backend:  backend,
	}
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// handleLogin verifies a password and issues a fingerprint-bound session
// token. Wrong password, unknown role and disabled login all produce the
// same 401, so the endpoint leaks nothing about which check failed.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	role := req.Role
	if role == "" {
		role = auth.RoleUser
	}

	if !s.auth.VerifyPassword(r.Context(), req.Password, role) {
		metrics.AuthAttemptsTotal.WithLabelValues(role, "failure").Inc()
		rw.Unauthorized("invalid credentials")
		return
	}

	token, err := s.tokens.Issue(role, r)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("token issuance failed")
		rw.InternalError("login failed")
		return
	}

	metrics.AuthAttemptsTotal.WithLabelValues(role, "success").Inc()
	rw.Success(loginResponse{Token: token, Role: role})
}

// handlePublicConfig serves the configuration record with the password
// stripped. No authentication: the shell UI loads this before login.
func (s *Server) handlePublicConfig(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(s.settings.GetPublic(r.Context()))
}

// handleAdminConfigGet serves the full record, password included, to an
// authenticated admin.
func (s *Server) handleAdminConfigGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !s.requireAdmin(rw, r) {
		return
	}
	rw.Success(s.settings.Get(r.Context()))
}

// handleAdminConfigUpdate replaces the configuration record wholesale.
func (s *Server) handleAdminConfigUpdate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !s.requireAdmin(rw, r) {
		return
	}

	var cfg settings.AppConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&cfg); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	if err := s.settings.Update(r.Context(), cfg); err != nil {
		rw.StorageError(err)
		return
	}

	rw.Success(s.settings.Get(r.Context()))
}

// handleProxy fetches an upstream URL and passes status, content type and
// body through opaquely. A "post" query parameter switches the upstream
// request to POST with that body. Any "selector" parameter is carried by
// the client for its own filtering; the server never reads it.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	target := r.URL.Query().Get("url")
	if target == "" {
		rw.BadRequest("url parameter is required")
		return
	}

	res, err := s.fetcher.Fetch(r.Context(), target, r.URL.Query().Get("post"))
	if err != nil {
		switch {
		case errors.Is(err, fetch.ErrInvalidURL):
			rw.BadRequest("url must be an absolute http or https URL")
		case errors.Is(err, fetch.ErrUpstreamUnavailable):
			rw.ServiceUnavailable("upstream temporarily unavailable")
		default:
			rw.UpstreamError(err)
		}
		return
	}

	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	w.WriteHeader(res.Status)
	if _, err := w.Write(res.Body); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("proxy response write failed")
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
}

// handleHealth reports liveness. The service is healthy even without a
// bound backend because every read path degrades to defaults.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(healthResponse{
		Status:  "ok",
		Backend: s.backend(),
	})
}

// requireAdmin checks the verified claims for the admin role. The auth
// middleware has already rejected unauthenticated requests.
func (s *Server) requireAdmin(rw *ResponseWriter, r *http.Request) bool {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil || claims.Role != auth.RoleAdmin {
		rw.Forbidden("admin role required")
		return false
	}
	return true
}

// decodeJSON decodes a capped request body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
