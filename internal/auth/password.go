// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package auth

import (
	"context"
	"crypto/subtle"

	"github.com/tidevue/tidevue/internal/settings"
)

// Authenticator validates login passwords for both roles. The admin
// secret is operator-configured and deliberately kept out of the stored
// configuration record; the user password lives in that record and login
// is impossible while the record's EnableLogin flag is off.
//
// Passwords are compared in plaintext for compatibility with existing
// clients; hashing on write is a recorded open question.
type Authenticator struct {
	settings      *settings.Service
	adminPassword string
}

// NewAuthenticator creates an authenticator over the settings service and
// the operator admin secret. An empty admin secret disables admin login.
func NewAuthenticator(svc *settings.Service, adminPassword string) *Authenticator {
	return &Authenticator{settings: svc, adminPassword: adminPassword}
}

// VerifyPassword reports whether candidate is the correct password for
// role. Unknown roles always fail.
func (a *Authenticator) VerifyPassword(ctx context.Context, candidate, role string) bool {
	switch role {
	case RoleAdmin:
		if a.adminPassword == "" {
			return false
		}
		return constantTimeEqual(candidate, a.adminPassword)
	case RoleUser:
		cfg := a.settings.Get(ctx)
		if !cfg.EnableLogin || cfg.LoginPassword == "" {
			return false
		}
		return constantTimeEqual(candidate, cfg.LoginPassword)
	default:
		return false
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
