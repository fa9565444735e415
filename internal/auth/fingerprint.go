// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

// Package auth issues and verifies fingerprint-bound session tokens and
// validates login passwords.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// fingerprintHeaders is the fixed ordered header set folded into the
// device fingerprint. Order matters: changing it invalidates every
// outstanding token.
var fingerprintHeaders = []string{
	"User-Agent",
	"Accept-Language",
	"Accept-Encoding",
	"Sec-CH-UA-Platform",
	"Sec-CH-UA-Mobile",
	"Sec-Fetch-Site",
	"Sec-Fetch-Mode",
	"Sec-Fetch-Dest",
}

// Fingerprint derives a stable device fingerprint from the request's
// headers and client IP. Tokens embed it at issue time and verification
// recomputes it, which binds a token to one browser/network combination
// and defeats copy-paste across devices. The client IP is folded in
// after the Accept-Encoding header; its position in the digest input is
// fixed like the header order.
//
// Every input is client-controlled, so this is a convenience binding, not
// a security boundary; a client spoofing its own headers can transplant
// its own token.
func Fingerprint(r *http.Request) string {
	var b strings.Builder
	for _, h := range fingerprintHeaders {
		b.WriteString(r.Header.Get(h))
		b.WriteByte('\n')
		if h == "Accept-Encoding" {
			b.WriteString(ClientIP(r))
			b.WriteByte('\n')
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ClientIP returns the requester's IP address, preferring the first
// X-Forwarded-For hop over the socket peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
