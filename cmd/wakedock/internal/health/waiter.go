// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package health polls the stack until it converges.

Convergence means every compose service is running (and container-healthy
where a health check is defined) and every configured HTTP target answers
successfully, all within a single polling round. The wait is bounded:
interval * maxAttempts is the hard ceiling, and exhausting it is an expected
outcome reported as ready=false, not an error — the deployment continues in a
degraded state.
*/
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/infra/compose"
)

// Target is one HTTP endpoint that must answer for the stack to be
// considered converged.
type Target struct {
	// Name identifies the target in the report.
	Name string

	// URL is probed with GET; any 2xx or 3xx status satisfies the target.
	URL string
}

// Options bounds the wait.
type Options struct {
	// Interval is the pause between polling rounds. Default: 5s.
	Interval time.Duration

	// MaxAttempts is the number of polling rounds. Default: 24.
	// Interval * MaxAttempts is the hard wait ceiling.
	MaxAttempts int

	// ProbeTimeout bounds each individual HTTP probe. Must stay below
	// Interval so one slow probe cannot stall a round past its slot.
	// Default: Interval - 1s, floored at 1s.
	ProbeTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Interval == 0 {
		o.Interval = 5 * time.Second
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 24
	}
	if o.ProbeTimeout == 0 || o.ProbeTimeout >= o.Interval {
		o.ProbeTimeout = o.Interval - time.Second
		if o.ProbeTimeout < time.Second {
			o.ProbeTimeout = time.Second
		}
	}
}

// Result is the outcome of a wait.
type Result struct {
	// Ready is true when all targets were simultaneously satisfied in one
	// round. False means the budget was exhausted or the wait was
	// cancelled; neither is an error.
	Ready bool

	// Elapsed is the wall time spent waiting, partial on cancellation.
	Elapsed time.Duration

	// Attempts is the number of completed polling rounds.
	Attempts int

	// Unsatisfied lists what was still failing in the last round, for the
	// degraded report.
	Unsatisfied []string
}

// HTTPClient abstracts the probe client. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Waiter polls compose service states and HTTP targets until convergence.
type Waiter struct {
	executor compose.Executor
	client   HTTPClient
	logger   *slog.Logger
}

// NewWaiter creates a Waiter with a default HTTP client.
func NewWaiter(executor compose.Executor, logger *slog.Logger) *Waiter {
	return &Waiter{
		executor: executor,
		client:   &http.Client{Transport: &http.Transport{DisableKeepAlives: true}},
		logger:   logger,
	}
}

// NewWaiterWithClient creates a Waiter with an injected HTTP client for tests.
func NewWaiterWithClient(executor compose.Executor, client HTTPClient, logger *slog.Logger) *Waiter {
	return &Waiter{executor: executor, client: client, logger: logger}
}

// Await polls until every service and target is satisfied in one round, the
// attempt budget is exhausted, or ctx is cancelled.
//
// Probes within a round run concurrently, each with its own timeout; the
// round does not advance until all of them returned. Cancellation yields
// Ready=false with the partial elapsed time rather than an error.
func (w *Waiter) Await(ctx context.Context, targets []Target, opts Options) *Result {
	opts.applyDefaults()
	start := time.Now()
	result := &Result{}

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			result.Elapsed = time.Since(start)
			return result
		}

		unsatisfied := w.pollOnce(ctx, targets, opts.ProbeTimeout)
		result.Attempts = attempt
		result.Unsatisfied = unsatisfied

		if len(unsatisfied) == 0 {
			result.Ready = true
			result.Elapsed = time.Since(start)
			return result
		}
		w.logger.Debug("stack not yet converged",
			"attempt", attempt, "max_attempts", opts.MaxAttempts, "unsatisfied", unsatisfied)

		if attempt < opts.MaxAttempts {
			select {
			case <-time.After(opts.Interval):
			case <-ctx.Done():
				result.Elapsed = time.Since(start)
				return result
			}
		}
	}

	result.Elapsed = time.Since(start)
	return result
}

// pollOnce runs a single round and returns the names of unsatisfied checks.
func (w *Waiter) pollOnce(ctx context.Context, targets []Target, probeTimeout time.Duration) []string {
	var unsatisfied []string

	states, err := w.executor.Ps(ctx)
	if err != nil {
		return []string{fmt.Sprintf("compose ps: %v", err)}
	}
	if len(states) == 0 {
		unsatisfied = append(unsatisfied, "no services reported by compose")
	}
	for _, state := range states {
		if !state.Running() {
			detail := state.State
			if state.Health != "" {
				detail += "/" + state.Health
			}
			unsatisfied = append(unsatisfied, fmt.Sprintf("service %s: %s", state.Name, detail))
		}
	}

	// HTTP probes run concurrently; the round waits for all of them.
	results := make([]string, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		i, target := i, target
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.probe(ctx, target, probeTimeout); err != nil {
				results[i] = fmt.Sprintf("endpoint %s: %v", target.Name, err)
			}
		}()
	}
	wg.Wait()

	for _, r := range results {
		if r != "" {
			unsatisfied = append(unsatisfied, r)
		}
	}
	return unsatisfied
}

func (w *Waiter) probe(ctx context.Context, target Target, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target.URL, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
