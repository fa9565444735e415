// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tidevue/tidevue/internal/auth"
	"github.com/tidevue/tidevue/internal/config"
	"github.com/tidevue/tidevue/internal/fetch"
	"github.com/tidevue/tidevue/internal/settings"
	"github.com/tidevue/tidevue/internal/storage"
)

const (
	testJWTSecret     = "0123456789abcdef0123456789abcdef"
	testAdminPassword = "operator-secret"
	testUserPassword  = "watchword"
)

// memBackend is an in-memory settings backend.
type memBackend struct {
	data map[string][]byte
}

func (b *memBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := b.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (b *memBackend) Set(ctx context.Context, key string, value []byte) error {
	b.data[key] = value
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8899, Timeout: 30 * time.Second},
		Security: config.SecurityConfig{
			JWTSecret:       testJWTSecret,
			AdminPassword:   testAdminPassword,
			SessionTimeout:  time.Hour,
			RateLimitReqs:   1000,
			RateLimitWindow: time.Minute,
		},
		Fetch: config.FetchConfig{
			Timeout:         5 * time.Second,
			MaxBodyBytes:    1 << 20,
			BreakerFailures: 5,
			BreakerCooldown: time.Minute,
		},
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	cfg := testConfig()

	backend := &memBackend{data: make(map[string][]byte)}
	svc := settings.NewService(backend)
	if err := svc.Update(context.Background(), settings.AppConfig{
		ResourceSites: []settings.ResourceSite{{URL: "https://site.example/list", Active: true}},
		EnableLogin:   true,
		LoginPassword: testUserPassword,
		CustomTitle:   "tidevue",
	}); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	tokens, err := auth.NewTokenManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	authn := auth.NewAuthenticator(svc, cfg.Security.AdminPassword)
	fetcher := fetch.NewClient(cfg.Fetch)

	server := NewServer(svc, authn, tokens, fetcher, func() string { return "test" })
	return server.Router(cfg)
}

// doJSON performs a request with a stable device fingerprint and decodes
// the response envelope.
func doJSON(t *testing.T, router http.Handler, method, path, body, token string) (int, APIResponse) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("User-Agent", "tidevue-test-client")
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	var envelope APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not a valid envelope: %v (body %s)", err, w.Body.String())
	}
	return w.Code, envelope
}

func loginAs(t *testing.T, router http.Handler, password, role string) string {
	t.Helper()

	body := `{"password":"` + password + `","role":"` + role + `"}`
	code, envelope := doJSON(t, router, http.MethodPost, "/api/login", body, "")
	if code != http.StatusOK {
		t.Fatalf("login status = %d, body %+v", code, envelope)
	}

	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("login data has type %T", envelope.Data)
	}
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatal("login returned empty token")
	}
	return token
}

func TestLogin(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "user success",
			body:     `{"password":"watchword"}`,
			wantCode: http.StatusOK,
		},
		{
			name:     "admin success",
			body:     `{"password":"operator-secret","role":"admin"}`,
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong password",
			body:     `{"password":"guess"}`,
			wantCode: http.StatusUnauthorized,
			wantErr:  ErrCodeUnauthorized,
		},
		{
			name:     "admin password on user role fails",
			body:     `{"password":"operator-secret"}`,
			wantCode: http.StatusUnauthorized,
			wantErr:  ErrCodeUnauthorized,
		},
		{
			name:     "missing password",
			body:     `{}`,
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeValidationFailed,
		},
		{
			name:     "unknown role",
			body:     `{"password":"watchword","role":"root"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeValidationFailed,
		},
		{
			name:     "malformed body",
			body:     `{not json`,
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, envelope := doJSON(t, router, http.MethodPost, "/api/login", tt.body, "")

			if code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
			if tt.wantErr != "" {
				if envelope.Error == nil {
					t.Fatal("envelope has no error")
				}
				if envelope.Error.Code != tt.wantErr {
					t.Errorf("error code = %q, want %q", envelope.Error.Code, tt.wantErr)
				}
			}
		})
	}
}

func TestLoginFailureIsUniform(t *testing.T) {
	router := newTestRouter(t)

	_, wrongPass := doJSON(t, router, http.MethodPost, "/api/login", `{"password":"guess"}`, "")
	_, wrongAdmin := doJSON(t, router, http.MethodPost, "/api/login", `{"password":"guess","role":"admin"}`, "")

	if wrongPass.Error == nil || wrongAdmin.Error == nil {
		t.Fatal("expected error envelopes")
	}
	if wrongPass.Error.Message != wrongAdmin.Error.Message {
		t.Errorf("failure messages differ: %q vs %q", wrongPass.Error.Message, wrongAdmin.Error.Message)
	}
	if wrongPass.Error.Code != wrongAdmin.Error.Code {
		t.Errorf("failure codes differ: %q vs %q", wrongPass.Error.Code, wrongAdmin.Error.Code)
	}
}

func TestPublicConfigRedactsPassword(t *testing.T) {
	router := newTestRouter(t)

	code, envelope := doJSON(t, router, http.MethodGet, "/api/config", "", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("data has type %T", envelope.Data)
	}
	if _, present := data["loginPassword"]; present {
		t.Error("public config contains loginPassword")
	}
	if data["enableLogin"] != true {
		t.Error("public config dropped enableLogin")
	}
	if data["customTitle"] != "tidevue" {
		t.Errorf("customTitle = %v", data["customTitle"])
	}
}

func TestAdminConfigRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	code, envelope := doJSON(t, router, http.MethodGet, "/api/admin/config", "", "")
	if code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeUnauthorized {
		t.Errorf("error = %+v, want UNAUTHORIZED", envelope.Error)
	}
}

func TestAdminConfigRejectsUserRole(t *testing.T) {
	router := newTestRouter(t)
	token := loginAs(t, router, testUserPassword, "user")

	code, envelope := doJSON(t, router, http.MethodGet, "/api/admin/config", "", token)
	if code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeForbidden {
		t.Errorf("error = %+v, want FORBIDDEN", envelope.Error)
	}
}

func TestAdminConfigGet(t *testing.T) {
	router := newTestRouter(t)
	token := loginAs(t, router, testAdminPassword, "admin")

	code, envelope := doJSON(t, router, http.MethodGet, "/api/admin/config", "", token)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("data has type %T", envelope.Data)
	}
	// The admin view includes the password.
	if data["loginPassword"] != testUserPassword {
		t.Errorf("loginPassword = %v, want %q", data["loginPassword"], testUserPassword)
	}
}

func TestAdminConfigUpdate(t *testing.T) {
	router := newTestRouter(t)
	token := loginAs(t, router, testAdminPassword, "admin")

	body := `{
		"resourceSites": [{"url": "https://new.example/list", "remark": "new", "active": true}],
		"parseApi": "https://parse.example/api",
		"backgroundImage": "",
		"enableLogin": false,
		"loginPassword": "",
		"announcement": "changed",
		"customTitle": "renamed"
	}`
	code, _ := doJSON(t, router, http.MethodPost, "/api/admin/config", body, token)
	if code != http.StatusOK {
		t.Fatalf("update status = %d", code)
	}

	// The public view reflects the update.
	_, envelope := doJSON(t, router, http.MethodGet, "/api/config", "", "")
	data := envelope.Data.(map[string]any)
	if data["customTitle"] != "renamed" {
		t.Errorf("customTitle = %v, want renamed", data["customTitle"])
	}
	if data["enableLogin"] != false {
		t.Error("enableLogin still true after update")
	}
}

func TestAdminConfigUpdateValidation(t *testing.T) {
	router := newTestRouter(t)
	token := loginAs(t, router, testAdminPassword, "admin")

	tests := []struct {
		name string
		body string
	}{
		{"site without url", `{"resourceSites":[{"url":"","active":true}]}`},
		{"site with relative url", `{"resourceSites":[{"url":"/list","active":true}]}`},
		{"bad parse api", `{"resourceSites":[],"parseApi":"not a url"}`},
		{"unknown field", `{"resourceSites":[],"surprise":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, envelope := doJSON(t, router, http.MethodPost, "/api/admin/config", tt.body, token)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
			if envelope.Error == nil {
				t.Error("envelope has no error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	code, envelope := doJSON(t, router, http.MethodGet, "/healthz", "", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	data := envelope.Data.(map[string]any)
	if data["status"] != "ok" {
		t.Errorf("status field = %v, want ok", data["status"])
	}
	if data["backend"] != "test" {
		t.Errorf("backend = %v, want test", data["backend"])
	}
}

func TestProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>listing</html>")
	}))
	defer upstream.Close()

	router := newTestRouter(t)

	r := httptest.NewRequest(http.MethodGet, "/api/proxy?url="+upstream.URL, nil)
	r.Header.Set("User-Agent", "tidevue-test-client")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if w.Body.String() != "<html>listing</html>" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestProxyRejectsBadTargets(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		path string
	}{
		{"missing url", "/api/proxy"},
		{"relative url", "/api/proxy?url=/etc/passwd"},
		{"wrong scheme", "/api/proxy?url=file:///etc/passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, envelope := doJSON(t, router, http.MethodGet, tt.path, "", "")
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
			if envelope.Error == nil || envelope.Error.Code != ErrCodeBadRequest {
				t.Errorf("error = %+v, want BAD_REQUEST", envelope.Error)
			}
		})
	}
}

func TestResponseEnvelopeMeta(t *testing.T) {
	router := newTestRouter(t)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Request-ID", "fixed-request-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	var envelope APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Meta == nil {
		t.Fatal("envelope has no meta")
	}
	if envelope.Meta.RequestID != "fixed-request-id" {
		t.Errorf("meta request_id = %q, want fixed-request-id", envelope.Meta.RequestID)
	}
	if got := w.Header().Get("X-Request-ID"); got != "fixed-request-id" {
		t.Errorf("X-Request-ID header = %q, want echoed", got)
	}
}
