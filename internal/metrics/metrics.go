// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

// Package metrics defines the Prometheus collectors exposed on /metrics.
// Collectors are package-level and registered at init via promauto, so
// importing any instrumented package is enough to make its series appear.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts completed HTTP requests by route, method
	// and status class.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tidevue",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed, by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration observes request latency by route and method.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tidevue",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds, by route and method.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// StorageOperationsTotal counts persistence-layer operations by
	// backend adapter, operation and outcome.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tidevue",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Storage operations, by backend, operation and outcome.",
		},
		[]string{"backend", "operation", "outcome"},
	)

	// StorageBackendBound reports which backend the store selected.
	// Exactly one label value is 1 after a successful Init.
	StorageBackendBound = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tidevue",
			Subsystem: "storage",
			Name:      "backend_bound",
			Help:      "1 for the backend currently bound by the store, 0 otherwise.",
		},
		[]string{"backend"},
	)

	// AuthAttemptsTotal counts login attempts by role and outcome.
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tidevue",
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Login attempts, by role and outcome.",
		},
		[]string{"role", "outcome"},
	)

	// TokenVerificationsTotal counts bearer-token verifications by outcome.
	TokenVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tidevue",
			Subsystem: "auth",
			Name:      "token_verifications_total",
			Help:      "Session token verifications, by outcome.",
		},
		[]string{"outcome"},
	)

	// FetchRequestsTotal counts upstream proxy fetches by outcome.
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tidevue",
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Upstream fetches through the proxy client, by outcome.",
		},
		[]string{"outcome"},
	)

	// FetchDuration observes upstream fetch latency.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tidevue",
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Upstream fetch latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// CircuitBreakerState reports the upstream fetch breaker state:
	// 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tidevue",
			Subsystem: "fetch",
			Name:      "circuit_breaker_state",
			Help:      "Fetch circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
	)

	// CircuitBreakerTransitionsTotal counts breaker state transitions.
	CircuitBreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tidevue",
			Subsystem: "fetch",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Fetch circuit breaker state transitions, by from/to state.",
		},
		[]string{"from", "to"},
	)
)
