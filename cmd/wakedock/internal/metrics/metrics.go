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
Package metrics records deployment metrics.

Metrics exported (deploy subsystem, wakedock namespace):

  - wakedock_deploy_services_total: Counter by outcome (rebuilt, skipped, failed)
  - wakedock_deploy_build_duration_seconds: Histogram of per-run build time
  - wakedock_deploy_convergence_duration_seconds: Histogram of wait time
  - wakedock_deploy_last_success: Gauge, 1 when the last deploy converged

Because wakedock is a short-lived CLI there is no scrape endpoint; the deploy
command writes the registry to a textfile (node_exporter textfile collector
format) at the end of the run.
*/
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "wakedock"
	metricsSubsystem = "deploy"
)

// Service outcome label values.
const (
	OutcomeRebuilt = "rebuilt"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Recorder receives deployment measurements.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Recorder interface {
	// ServiceOutcome counts one service result per deploy.
	ServiceOutcome(outcome string)

	// BuildDuration records the wall time of the build phase in seconds.
	BuildDuration(seconds float64)

	// ConvergenceDuration records the wall time of the wait phase in seconds.
	ConvergenceDuration(seconds float64)

	// DeploySuccess records whether the run converged.
	DeploySuccess(ok bool)
}

// NoOpRecorder counts in memory without exporting. Used in tests and when
// metrics are disabled.
type NoOpRecorder struct {
	mu           sync.Mutex
	Outcomes     map[string]int
	Builds       int
	Convergences int
	LastSuccess  bool
}

// NewNoOpRecorder creates an empty NoOpRecorder.
func NewNoOpRecorder() *NoOpRecorder {
	return &NoOpRecorder{Outcomes: make(map[string]int)}
}

// ServiceOutcome counts the outcome in memory.
func (r *NoOpRecorder) ServiceOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outcomes[outcome]++
}

// BuildDuration counts the observation.
func (r *NoOpRecorder) BuildDuration(float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Builds++
}

// ConvergenceDuration counts the observation.
func (r *NoOpRecorder) ConvergenceDuration(float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Convergences++
}

// DeploySuccess records the flag.
func (r *NoOpRecorder) DeploySuccess(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LastSuccess = ok
}

// PrometheusRecorder exports measurements through a prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	servicesTotal       *prometheus.CounterVec
	buildDuration       prometheus.Histogram
	convergenceDuration prometheus.Histogram
	lastSuccess         prometheus.Gauge
}

// NewPrometheusRecorder creates a recorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	r := &PrometheusRecorder{
		registry: registry,
		servicesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "services_total",
			Help:      "Per-service deploy outcomes.",
		}, []string{"outcome"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "build_duration_seconds",
			Help:      "Wall time of the build phase.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		convergenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "convergence_duration_seconds",
			Help:      "Wall time spent waiting for the stack to converge.",
			Buckets:   prometheus.LinearBuckets(5, 10, 13),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "last_success",
			Help:      "1 when the last deploy converged, 0 otherwise.",
		}),
	}

	registry.MustRegister(r.servicesTotal, r.buildDuration, r.convergenceDuration, r.lastSuccess)
	return r
}

// ServiceOutcome counts one service result.
func (r *PrometheusRecorder) ServiceOutcome(outcome string) {
	r.servicesTotal.WithLabelValues(outcome).Inc()
}

// BuildDuration observes the build phase duration.
func (r *PrometheusRecorder) BuildDuration(seconds float64) {
	r.buildDuration.Observe(seconds)
}

// ConvergenceDuration observes the wait phase duration.
func (r *PrometheusRecorder) ConvergenceDuration(seconds float64) {
	r.convergenceDuration.Observe(seconds)
}

// DeploySuccess sets the success gauge.
func (r *PrometheusRecorder) DeploySuccess(ok bool) {
	if ok {
		r.lastSuccess.Set(1)
	} else {
		r.lastSuccess.Set(0)
	}
}

// WriteTextfile writes the registry to path in textfile collector format.
// Best effort: the caller logs failures but never fails a deploy over them.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
