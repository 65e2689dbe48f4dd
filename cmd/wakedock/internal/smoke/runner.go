// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package smoke runs best-effort HTTP probes after convergence.
//
// Smoke results annotate the final report; they never turn a converged
// deployment into a failed one.
package smoke

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Endpoint is one URL probed after the stack converges.
type Endpoint struct {
	// Name identifies the probe in the report.
	Name string

	// URL is probed with GET; any status below 400 passes.
	URL string
}

// Outcome is the result classification of one probe.
type Outcome string

const (
	// Pass means the endpoint answered successfully.
	Pass Outcome = "pass"

	// Warn means the endpoint did not answer within the retry budget.
	// A warning never fails the deployment.
	Warn Outcome = "warn"
)

// ProbeResult is the annotated result of one endpoint probe.
type ProbeResult struct {
	Name     string
	URL      string
	Outcome  Outcome
	Attempts int

	// Detail carries the last failure message for Warn results.
	Detail string
}

// Options configures the runner.
type Options struct {
	// MaxAttempts per endpoint. Default: 3.
	MaxAttempts int

	// Backoff between attempts. Default: 2s.
	Backoff time.Duration

	// ProbeTimeout bounds each HTTP call. Default: 5s.
	ProbeTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff == 0 {
		o.Backoff = 2 * time.Second
	}
	if o.ProbeTimeout == 0 {
		o.ProbeTimeout = 5 * time.Second
	}
}

// HTTPClient abstracts the probe client. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Runner probes a small set of known endpoints with a bounded retry.
type Runner struct {
	client HTTPClient
	opts   Options
	logger *slog.Logger
}

// NewRunner creates a Runner with a default HTTP client.
func NewRunner(opts Options, logger *slog.Logger) *Runner {
	opts.applyDefaults()
	return &Runner{
		client: &http.Client{Timeout: opts.ProbeTimeout},
		opts:   opts,
		logger: logger,
	}
}

// NewRunnerWithClient creates a Runner with an injected client for tests.
func NewRunnerWithClient(opts Options, client HTTPClient, logger *slog.Logger) *Runner {
	opts.applyDefaults()
	return &Runner{client: client, opts: opts, logger: logger}
}

// Run probes every endpoint. With skip set it returns an empty list
// immediately. Each endpoint gets MaxAttempts tries with Backoff between
// them; the result is Pass or Warn, never an error.
func (r *Runner) Run(ctx context.Context, endpoints []Endpoint, skip bool) []ProbeResult {
	if skip {
		return []ProbeResult{}
	}

	results := make([]ProbeResult, 0, len(endpoints))
	for _, ep := range endpoints {
		results = append(results, r.probeWithRetry(ctx, ep))
	}
	return results
}

func (r *Runner) probeWithRetry(ctx context.Context, ep Endpoint) ProbeResult {
	result := ProbeResult{Name: ep.Name, URL: ep.URL}

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		result.Attempts = attempt
		err := r.probeOnce(ctx, ep)
		if err == nil {
			result.Outcome = Pass
			return result
		}
		result.Detail = err.Error()
		if ctx.Err() != nil {
			break
		}
		if attempt < r.opts.MaxAttempts {
			select {
			case <-time.After(r.opts.Backoff):
			case <-ctx.Done():
			}
		}
	}

	result.Outcome = Warn
	r.logger.Warn("smoke probe failed", "endpoint", ep.Name, "url", ep.URL,
		"attempts", result.Attempts, "detail", result.Detail)
	return result
}

func (r *Runner) probeOnce(ctx context.Context, ep Endpoint) error {
	probeCtx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d %s", e.code, http.StatusText(e.code))
}
