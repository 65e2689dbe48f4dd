// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wakedock/cmd/wakedock/config"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/buildcache"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/health"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/metrics"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/plan"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/smoke"
)

func runDeploy(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := plan.Session{
		Mode:           deploymentMode(),
		ForceRebuild:   forceRebuild,
		CleanBuild:     cleanBuild,
		SkipTests:      skipTests,
		SkipCacheCheck: skipCache,
	}

	result, err := executeDeploy(ctx, session)
	if err != nil {
		log.Fatalf("Deployment could not start: %v", err)
	}

	NewReporter().Print(result)
	if !result.Succeeded() {
		os.Exit(1)
	}
}

// executeDeploy wires the pipeline from config and runs one session.
// Returns an error only for failures before the orchestrator takes over
// (configuration, proxy reconciliation); pipeline failures are reported via
// the result's Failed phase.
func executeDeploy(ctx context.Context, session plan.Session) (*DeploymentResult, error) {
	units, err := buildUnits(session.Mode)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no services configured; edit %s", config.Path())
	}

	executor, err := newExecutor()
	if err != nil {
		return nil, err
	}

	// Proxy reconciliation happens before anything mutates: a malformed
	// managed block needs human inspection, not a half-deployed stack.
	if config.Global.Proxy.Enabled() {
		result, err := reconcileProxy()
		if err != nil {
			return nil, fmt.Errorf("proxy config: %w", err)
		}
		if result.Changed {
			appLogger.Info("proxy config updated",
				"file", config.Global.Proxy.File, "created", result.Created)
		}
	}

	cache := buildcache.NewFileCache(config.Global.CacheDir())
	planner := plan.NewPlanner(newFingerprintSource(session.Mode), cache)

	var recorder metrics.Recorder = metrics.NewNoOpRecorder()
	var promRecorder *metrics.PrometheusRecorder
	if config.Global.Metrics.Enabled {
		promRecorder = metrics.NewPrometheusRecorder()
		recorder = promRecorder
	}

	orchestrator := NewOrchestrator(OrchestratorDeps{
		Executor:       executor,
		Planner:        planner,
		Cache:          cache,
		Waiter:         health.NewWaiter(executor, appLogger.Slog()),
		Smoker:         smoke.NewRunner(smoke.Options{}, appLogger.Slog()),
		Recorder:       recorder,
		Logger:         appLogger.Slog(),
		Units:          units,
		HealthTargets:  healthTargets(),
		HealthOptions:  healthOptions(),
		SmokeEndpoints: smokeEndpoints(),
	})

	result := orchestrator.Execute(ctx, session)

	if promRecorder != nil {
		path := config.Global.MetricsTextfile()
		if err := promRecorder.WriteTextfile(path); err != nil {
			appLogger.Warn("failed to write metrics textfile", "path", path, "error", err)
		}
	}

	return result, nil
}
