// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tidevue/tidevue/internal/config"
)

// Roles carried in session tokens.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// ErrUnauthenticated is the uniform failure for every verification path:
// bad signature, expired token, or fingerprint mismatch. Callers cannot
// distinguish which check failed, by design, so a probing client learns
// nothing.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Claims are the session token claims.
type Claims struct {
	Role        string `json:"role"`
	Fingerprint string `json:"fingerprint"`
	IP          string `json:"ip"`
	jwt.RegisteredClaims
}

// TokenManager creates and validates fingerprint-bound session tokens.
// Tokens are stateless HMAC-SHA256 JWTs; there is no server-side
// blocklist, so expiry and fingerprint mismatch are the only
// invalidation paths.
type TokenManager struct {
	secret  []byte
	timeout time.Duration
}

// NewTokenManager creates a token manager with the configured secret and
// session timeout. The secret must be at least 32 characters.
func NewTokenManager(cfg *config.SecurityConfig) (*TokenManager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	timeout := cfg.SessionTimeout
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &TokenManager{
		secret:  []byte(cfg.JWTSecret),
		timeout: timeout,
	}, nil
}

// Issue creates a signed token for role, bound to the device fingerprint
// of the issuing request.
func (m *TokenManager) Issue(role string, r *http.Request) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role:        role,
		Fingerprint: Fingerprint(r),
		IP:          ClientIP(r),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates signature and expiry, recomputes the fingerprint from
// the presenting request, and accepts only on exact match. Any failure
// collapses to ErrUnauthenticated.
func (m *TokenManager) Verify(tokenString string, r *http.Request) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// HS256 only; anything else is an algorithm confusion attempt.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrUnauthenticated
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrUnauthenticated
	}

	if claims.Fingerprint != Fingerprint(r) {
		return nil, ErrUnauthenticated
	}

	return claims, nil
}
