// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

// Package fetch implements the outbound HTTP client behind the proxy
// endpoint. All upstream traffic funnels through one circuit breaker so a
// dead listing site cannot tie up every worker in connect timeouts.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tidevue/tidevue/internal/config"
	"github.com/tidevue/tidevue/internal/logging"
	"github.com/tidevue/tidevue/internal/metrics"
)

// ErrInvalidURL rejects targets that are not absolute http/https URLs.
var ErrInvalidURL = errors.New("fetch: invalid target url")

// ErrUpstreamUnavailable is returned while the breaker is open.
var ErrUpstreamUnavailable = errors.New("fetch: upstream unavailable")

// Result is one upstream response, body fully read and capped.
type Result struct {
	Status      int
	ContentType string
	Body        []byte
}

// Client fetches upstream listing pages and parse-API responses. Bodies
// are capped at the configured byte limit and returned opaquely; the
// server never interprets fetched content.
type Client struct {
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*Result]
	maxBytes int64
	agent    string
}

// NewClient builds a fetch client from configuration.
func NewClient(cfg config.FetchConfig) *Client {
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "upstream-fetch",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("fetch circuit breaker state changed")
			metrics.CircuitBreakerTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
			metrics.CircuitBreakerState.Set(breakerStateValue(to))
		},
	}

	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker:  gobreaker.NewCircuitBreaker[*Result](settings),
		maxBytes: cfg.MaxBodyBytes,
		agent:    cfg.UserAgent,
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Fetch retrieves target through the breaker. A non-empty postBody
// switches the request to POST with a form content type, matching how
// listing sites expect search submissions. Upstream non-2xx statuses are
// results, not errors; only transport failures trip the breaker.
func (c *Client) Fetch(ctx context.Context, target, postBody string) (*Result, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := c.breaker.Execute(func() (*Result, error) {
		return c.do(ctx, target, postBody)
	})
	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUpstreamUnavailable
		}
		return nil, err
	}

	metrics.FetchRequestsTotal.WithLabelValues("success").Inc()
	return res, nil
}

func (c *Client) do(ctx context.Context, target, postBody string) (*Result, error) {
	method := http.MethodGet
	var body io.Reader
	if postBody != "" {
		method = http.MethodPost
		body = strings.NewReader(postBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if c.agent != "" {
		req.Header.Set("User-Agent", c.agent)
	}
	if postBody != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	return &Result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// validateTarget accepts only absolute http/https URLs with a host.
func validateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
