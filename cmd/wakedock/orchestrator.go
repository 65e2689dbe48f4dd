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
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/buildcache"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/fingerprint"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/health"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/infra/compose"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/metrics"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/plan"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/smoke"
)

// =============================================================================
// Phases
// =============================================================================

// Phase is a state of the deployment state machine. Phases run strictly in
// order on a single control goroutine; the machine never revisits a phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStoppingIfNeeded
	PhaseCleaningIfRequested
	PhaseBuildingDirtyServices
	PhaseStartingStack
	PhaseConverged
	PhaseDegraded
	PhaseFailed
)

// String returns the phase name for logs and the report.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseStoppingIfNeeded:
		return "StoppingIfNeeded"
	case PhaseCleaningIfRequested:
		return "CleaningIfRequested"
	case PhaseBuildingDirtyServices:
		return "BuildingDirtyServices"
	case PhaseStartingStack:
		return "StartingStack"
	case PhaseConverged:
		return "Converged"
	case PhaseDegraded:
		return "Degraded"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// =============================================================================
// Results
// =============================================================================

// ServiceOutcome is one service's fate in a deployment run.
type ServiceOutcome struct {
	// Outcome is metrics.OutcomeRebuilt, OutcomeSkipped, or OutcomeFailed.
	Outcome string

	// Reason is the planner's explanation, or the build error for failures.
	Reason string

	// BuildDuration is zero for skipped services.
	BuildDuration time.Duration
}

// DeploymentResult is the full outcome of one orchestrator run.
type DeploymentResult struct {
	SessionID string
	Phase     Phase

	// Services maps service name to its outcome. Populated once planning
	// succeeds, even when a later phase fails.
	Services map[string]ServiceOutcome

	// Convergence is nil when the run failed before the wait phase.
	Convergence *health.Result

	// Probes holds smoke test results; empty when skipped or not reached.
	Probes []smoke.ProbeResult

	// Err is the fatal error for PhaseFailed runs.
	Err error
}

// Succeeded reports whether the run reached a reportable end state.
// Degraded counts: a convergence timeout is reported, not fatal.
func (r *DeploymentResult) Succeeded() bool {
	return r.Phase == PhaseConverged || r.Phase == PhaseDegraded
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator drives a deployment session through the phase machine:
//
//	Idle → StoppingIfNeeded → CleaningIfRequested → BuildingDirtyServices
//	     → StartingStack → Converged | Degraded
//
// Any fatal error short-circuits to Failed. The orchestrator is the single
// writer of the build cache, and commits a service's fingerprint immediately
// after that service's build succeeds, never before and never on failure.
//
// # Thread Safety
//
// Not safe for concurrent use; one Orchestrator drives one run at a time.
type Orchestrator struct {
	executor compose.Executor
	planner  *plan.Planner
	cache    buildcache.Cache
	waiter   *health.Waiter
	smoker   *smoke.Runner
	recorder metrics.Recorder
	logger   *slog.Logger

	units          []fingerprint.ServiceUnit
	healthTargets  []health.Target
	healthOpts     health.Options
	smokeEndpoints []smoke.Endpoint
	env            map[string]string
}

// OrchestratorDeps bundles the collaborators for NewOrchestrator.
type OrchestratorDeps struct {
	Executor compose.Executor
	Planner  *plan.Planner
	Cache    buildcache.Cache
	Waiter   *health.Waiter
	Smoker   *smoke.Runner
	Recorder metrics.Recorder
	Logger   *slog.Logger

	Units          []fingerprint.ServiceUnit
	HealthTargets  []health.Target
	HealthOptions  health.Options
	SmokeEndpoints []smoke.Endpoint

	// Env is injected into every compose invocation.
	Env map[string]string
}

// NewOrchestrator wires an Orchestrator. A nil Recorder gets a NoOp.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Recorder == nil {
		deps.Recorder = metrics.NewNoOpRecorder()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		executor:       deps.Executor,
		planner:        deps.Planner,
		cache:          deps.Cache,
		waiter:         deps.Waiter,
		smoker:         deps.Smoker,
		recorder:       deps.Recorder,
		logger:         deps.Logger,
		units:          deps.Units,
		healthTargets:  deps.HealthTargets,
		healthOpts:     deps.HealthOptions,
		smokeEndpoints: deps.SmokeEndpoints,
		env:            deps.Env,
	}
}

// Execute runs one deployment session end to end.
//
// # Inputs
//
//   - ctx: Cancels between phases and between per-service builds. A build
//     already in flight finishes or fails on its own; its cache entry is
//     committed only if the build completed successfully.
//   - session: The run-scoped flags. Immutable for the duration.
//
// # Outputs
//
//   - *DeploymentResult: Always non-nil. Phase Converged and Degraded are
//     both successful ends; Failed carries Err.
func (o *Orchestrator) Execute(ctx context.Context, session plan.Session) *DeploymentResult {
	result := &DeploymentResult{
		SessionID: uuid.NewString(),
		Phase:     PhaseIdle,
		Services:  make(map[string]ServiceOutcome),
	}
	logger := o.logger.With("session_id", result.SessionID, "mode", session.Mode)
	logger.Info("deployment starting",
		"services", len(o.units),
		"force", session.ForceRebuild,
		"clean", session.CleanBuild,
	)

	// Pre-flight: abort before any mutation.
	if err := o.executor.Preflight(ctx); err != nil {
		return o.fail(result, fmt.Errorf("preflight: %w", err))
	}

	// Planning. Local source problems are fatal; remote lookup problems
	// degrade to unknown fingerprints inside the planner.
	rebuildPlan, err := o.planner.Plan(ctx, o.units, session)
	if err != nil {
		return o.fail(result, fmt.Errorf("planning: %w", err))
	}
	for name, decision := range rebuildPlan {
		logger.Debug("rebuild decision", "service", name, "dirty", decision.Dirty, "reason", decision.Reason)
	}

	firstRun := o.isFirstRun(session.Mode)
	needsStop := rebuildPlan.AnyDirty() || session.CleanBuild || firstRun

	// StoppingIfNeeded
	result.Phase = PhaseStoppingIfNeeded
	if needsStop {
		if err := o.checkCancelled(ctx); err != nil {
			return o.fail(result, err)
		}
		logger.Info("stopping stack before rebuild", "first_run", firstRun)
		if _, err := o.executor.Stop(ctx); err != nil {
			return o.fail(result, fmt.Errorf("stopping stack: %w", err))
		}
	}

	// CleaningIfRequested
	result.Phase = PhaseCleaningIfRequested
	if session.CleanBuild {
		if err := o.checkCancelled(ctx); err != nil {
			return o.fail(result, err)
		}
		logger.Warn("clean build requested, pruning engine state")
		if _, err := o.executor.Prune(ctx); err != nil {
			return o.fail(result, fmt.Errorf("pruning engine state: %w", err))
		}
	}

	// BuildingDirtyServices
	result.Phase = PhaseBuildingDirtyServices
	buildStart := time.Now()
	if err := o.buildServices(ctx, session, rebuildPlan, result, logger); err != nil {
		o.recorder.BuildDuration(time.Since(buildStart).Seconds())
		return o.fail(result, err)
	}
	o.recorder.BuildDuration(time.Since(buildStart).Seconds())

	// StartingStack
	result.Phase = PhaseStartingStack
	if err := o.checkCancelled(ctx); err != nil {
		return o.fail(result, err)
	}
	logger.Info("starting stack")
	if _, err := o.executor.Up(ctx, compose.UpOptions{Env: o.env, RemoveOrphans: true}); err != nil {
		return o.fail(result, fmt.Errorf("starting stack: %w", err))
	}

	// Convergence. Never an error; ready=false is the Degraded end state.
	waitStart := time.Now()
	result.Convergence = o.waiter.Await(ctx, o.healthTargets, o.healthOpts)
	o.recorder.ConvergenceDuration(time.Since(waitStart).Seconds())

	if result.Convergence.Ready {
		result.Phase = PhaseConverged
	} else {
		result.Phase = PhaseDegraded
		logger.Warn("stack did not converge within budget",
			"attempts", result.Convergence.Attempts,
			"unsatisfied", result.Convergence.Unsatisfied,
		)
	}

	// Smoke tests never retroactively fail a converged or degraded run.
	result.Probes = o.smoker.Run(ctx, o.smokeEndpoints, session.SkipTests)

	o.recorder.DeploySuccess(result.Phase == PhaseConverged)
	logger.Info("deployment finished", "phase", result.Phase.String())
	return result
}

// buildServices builds every dirty service in unit order, committing each
// fingerprint right after its build succeeds. Clean builds distrust the
// engine cache and rebuild everything with --no-cache.
func (o *Orchestrator) buildServices(ctx context.Context, session plan.Session, rebuildPlan plan.Plan, result *DeploymentResult, logger *slog.Logger) error {
	for _, unit := range o.units {
		decision := rebuildPlan[unit.Name]

		dirty := decision.Dirty || session.CleanBuild
		if !dirty {
			result.Services[unit.Name] = ServiceOutcome{Outcome: metrics.OutcomeSkipped, Reason: decision.Reason}
			o.recorder.ServiceOutcome(metrics.OutcomeSkipped)
			continue
		}

		if err := o.checkCancelled(ctx); err != nil {
			return err
		}

		logger.Info("building service", "service", unit.Name, "reason", decision.Reason, "no_cache", session.CleanBuild)
		start := time.Now()
		_, err := o.executor.Build(ctx, compose.BuildOptions{
			Services: []string{unit.Name},
			NoCache:  session.CleanBuild,
			Env:      o.env,
		})
		elapsed := time.Since(start)
		if err != nil {
			result.Services[unit.Name] = ServiceOutcome{
				Outcome:       metrics.OutcomeFailed,
				Reason:        err.Error(),
				BuildDuration: elapsed,
			}
			o.recorder.ServiceOutcome(metrics.OutcomeFailed)
			// Cache untouched: the next run sees this service still dirty.
			return fmt.Errorf("building %s: %w", unit.Name, err)
		}

		result.Services[unit.Name] = ServiceOutcome{
			Outcome:       metrics.OutcomeRebuilt,
			Reason:        decision.Reason,
			BuildDuration: elapsed,
		}
		o.recorder.ServiceOutcome(metrics.OutcomeRebuilt)

		if decision.Current != fingerprint.FingerprintUnknown && decision.Current != "" {
			if err := o.cache.Commit(session.Mode, unit.Name, decision.Current); err != nil {
				// A commit failure only costs an extra rebuild next run.
				logger.Warn("failed to commit fingerprint", "service", unit.Name, "error", err)
			}
		}
	}
	return nil
}

// isFirstRun reports whether the cache namespace for mode is empty.
func (o *Orchestrator) isFirstRun(mode string) bool {
	entries, err := o.cache.Entries(mode)
	if err != nil {
		return true
	}
	return len(entries) == 0
}

func (o *Orchestrator) checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (o *Orchestrator) fail(result *DeploymentResult, err error) *DeploymentResult {
	result.Phase = PhaseFailed
	result.Err = err
	o.recorder.DeploySuccess(false)
	o.logger.Error("deployment failed", "session_id", result.SessionID, "error", err)
	return result
}
