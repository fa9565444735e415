// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package auth

import (
	"net/http/httptest"
	"testing"
)

func TestFingerprintStable(t *testing.T) {
	r1 := httptest.NewRequest("GET", "/", nil)
	r1.Header.Set("User-Agent", "Mozilla/5.0")
	r1.Header.Set("Accept-Language", "en-US")
	r1.RemoteAddr = "203.0.113.9:41000"

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.Header.Set("User-Agent", "Mozilla/5.0")
	r2.Header.Set("Accept-Language", "en-US")
	r2.RemoteAddr = "203.0.113.9:52000" // different ephemeral port, same host

	if Fingerprint(r1) != Fingerprint(r2) {
		t.Error("fingerprint differs for identical device characteristics")
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h map[string]string) (remoteAddr string)
	}{
		{
			name: "different user agent",
			mutate: func(h map[string]string) string {
				h["User-Agent"] = "curl/8.0"
				return "203.0.113.9:41000"
			},
		},
		{
			name: "different language",
			mutate: func(h map[string]string) string {
				h["Accept-Language"] = "fr-FR"
				return "203.0.113.9:41000"
			},
		},
		{
			name: "different client IP",
			mutate: func(h map[string]string) string {
				return "198.51.100.7:41000"
			},
		},
	}

	reference := httptest.NewRequest("GET", "/", nil)
	reference.Header.Set("User-Agent", "Mozilla/5.0")
	reference.Header.Set("Accept-Language", "en-US")
	reference.RemoteAddr = "203.0.113.9:41000"
	refPrint := Fingerprint(reference)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{
				"User-Agent":      "Mozilla/5.0",
				"Accept-Language": "en-US",
			}
			addr := tt.mutate(headers)

			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range headers {
				r.Header.Set(k, v)
			}
			r.RemoteAddr = addr

			if Fingerprint(r) == refPrint {
				t.Error("fingerprint unchanged despite differing device characteristics")
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"remote addr only", "", "203.0.113.9:41000", "203.0.113.9"},
		{"forwarded single hop", "198.51.100.7", "10.0.0.1:41000", "198.51.100.7"},
		{"forwarded chain uses first hop", "198.51.100.7, 10.0.0.2, 10.0.0.1", "10.0.0.1:41000", "198.51.100.7"},
		{"forwarded with spaces", " 198.51.100.7 , 10.0.0.1", "10.0.0.1:41000", "198.51.100.7"},
		{"remote addr without port", "", "203.0.113.9", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			r.RemoteAddr = tt.remoteAddr

			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
