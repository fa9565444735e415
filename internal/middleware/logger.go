// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package middleware

import (
	"net/http"
	"time"

	"github.com/tidevue/tidevue/internal/logging"
)

// RequestLogger logs one line per completed request with the request ID
// already attached by RequestID. Health and metrics probes log at debug
// to keep scrape noise out of production output.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		mw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(mw, r)

		event := logging.Ctx(r.Context()).Info()
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			event = logging.Ctx(r.Context()).Debug()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", mw.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request completed")
	})
}
