// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose wraps the docker compose CLI behind a testable interface.
//
// All state-changing operations (Up, Build, Down, Prune) are serialized via
// an internal mutex; read operations (Ps) are not. Every invocation goes
// through the process.Manager so tests can run without a container engine.
package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/infra/process"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrComposeNotFound is returned when the docker binary is not on PATH.
	ErrComposeNotFound = errors.New("docker not found")

	// ErrComposeFileMissing is returned when the base compose file does not
	// exist at the configured path.
	ErrComposeFileMissing = errors.New("compose file not found")

	// ErrInvalidConfig is returned when the executor configuration is invalid.
	ErrInvalidConfig = errors.New("invalid compose configuration")

	// ErrInvalidEnvVar is returned when an environment variable key is
	// malformed. Prevents config injection through crafted keys.
	ErrInvalidEnvVar = errors.New("invalid environment variable")

	// ErrInvalidServiceName is returned when a service name is unsafe for
	// compose operations.
	ErrInvalidServiceName = errors.New("invalid service name")

	// ErrBuildFailed is returned when a per-service image build fails.
	ErrBuildFailed = errors.New("image build failed")
)

// envVarKeyRegex validates environment variable key names.
var envVarKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// serviceNamePattern validates compose service names.
// Per compose spec: lowercase letters, digits, hyphens, and underscores.
var serviceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// =============================================================================
// Interface Definition
// =============================================================================

// Executor manages docker compose operations for the deployment stack.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Operations that modify
// container state are serialized.
type Executor interface {
	// Preflight verifies the engine binary and compose file exist before
	// any mutation happens. Fails fast with ErrComposeNotFound or
	// ErrComposeFileMissing.
	Preflight(ctx context.Context) error

	// Up brings the full stack up detached. Safe to call when the stack is
	// already running (compose up is idempotent).
	Up(ctx context.Context, opts UpOptions) (*Result, error)

	// Build builds the images of the named services. NoCache forces a
	// full rebuild ignoring the engine layer cache.
	Build(ctx context.Context, opts BuildOptions) (*Result, error)

	// Stop stops running containers without removing them.
	Stop(ctx context.Context) (*Result, error)

	// Down stops and removes containers; RemoveVolumes also deletes named
	// volumes (destructive).
	Down(ctx context.Context, opts DownOptions) (*Result, error)

	// Ps reports the current state of every compose service.
	Ps(ctx context.Context) ([]ServiceState, error)

	// Logs streams service logs to this process's stdout until the stream
	// ends or ctx is cancelled.
	Logs(ctx context.Context, services []string, follow bool) error

	// Prune removes unused engine resources (images, volumes, networks).
	// Destructive; callers must gate it behind an explicit flag.
	Prune(ctx context.Context) (*Result, error)
}

// =============================================================================
// Supporting Types
// =============================================================================

// Config configures a DefaultExecutor.
type Config struct {
	// StackDir is the directory containing the compose files. Required.
	StackDir string

	// BaseFile is the compose file name. Default: "docker-compose.yml".
	BaseFile string

	// OverrideFile is layered on top of BaseFile when present.
	// Default: "docker-compose.override.yml".
	OverrideFile string

	// ProjectName is passed as the compose project name.
	// Default: "wakedock".
	ProjectName string

	// DefaultTimeout bounds a single compose operation. Builds are exempt:
	// build duration is bounded only by the build tool. Default: 5 minutes.
	DefaultTimeout time.Duration
}

// UpOptions configures Up.
type UpOptions struct {
	// Env contains environment variables to inject into the compose call.
	Env map[string]string

	// RemoveOrphans removes containers for services no longer defined.
	RemoveOrphans bool
}

// BuildOptions configures Build.
type BuildOptions struct {
	// Services lists the services to build. Must be non-empty.
	Services []string

	// NoCache disables the engine layer cache ("distrust the local build
	// cache", not "distrust the fingerprint").
	NoCache bool

	// Env contains environment variables to inject.
	Env map[string]string
}

// DownOptions configures Down.
type DownOptions struct {
	// RemoveVolumes also deletes named volumes. Irreversible.
	RemoveVolumes bool

	// RemoveOrphans removes containers for services no longer defined.
	RemoveOrphans bool
}

// Result contains the outcome of a compose operation.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration

	// Command is the full command line, for the report and diagnostics.
	Command string
}

// ServiceState is one service's state as reported by the engine.
type ServiceState struct {
	// Name is the compose service name.
	Name string

	// State is the container state: "running", "exited", "created", ...
	State string

	// Health is "healthy", "unhealthy", "starting", or "" when the service
	// defines no container-level health check.
	Health string
}

// Running reports whether the service is up, and healthy if it defines a
// container health check.
func (s ServiceState) Running() bool {
	if s.State != "running" {
		return false
	}
	return s.Health == "" || s.Health == "healthy"
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultExecutor implements Executor using the docker compose CLI.
type DefaultExecutor struct {
	config Config
	proc   process.Manager
	mu     sync.Mutex
}

// NewDefaultExecutor creates an executor with defaults applied.
func NewDefaultExecutor(cfg Config, proc process.Manager) (*DefaultExecutor, error) {
	if cfg.StackDir == "" {
		return nil, fmt.Errorf("%w: StackDir is required", ErrInvalidConfig)
	}
	if cfg.BaseFile == "" {
		cfg.BaseFile = "docker-compose.yml"
	}
	if cfg.OverrideFile == "" {
		cfg.OverrideFile = "docker-compose.override.yml"
	}
	if cfg.ProjectName == "" {
		cfg.ProjectName = "wakedock"
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}
	return &DefaultExecutor{config: cfg, proc: proc}, nil
}

// Preflight verifies docker and the base compose file are present.
func (e *DefaultExecutor) Preflight(ctx context.Context) error {
	if _, err := e.proc.LookPath("docker"); err != nil {
		return fmt.Errorf("%w: %v", ErrComposeNotFound, err)
	}
	base := filepath.Join(e.config.StackDir, e.config.BaseFile)
	if _, err := os.Stat(base); err != nil {
		return fmt.Errorf("%w: %s", ErrComposeFileMissing, base)
	}
	return nil
}

// Up brings the stack up detached.
func (e *DefaultExecutor) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	if err := validateEnvVars(opts.Env); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.composeArgs()
	args = append(args, "up", "-d")
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	return e.run(ctx, args, opts.Env, e.config.DefaultTimeout)
}

// Build builds the named services, one compose invocation for all of them.
func (e *DefaultExecutor) Build(ctx context.Context, opts BuildOptions) (*Result, error) {
	if len(opts.Services) == 0 {
		return nil, fmt.Errorf("%w: no services to build", ErrInvalidConfig)
	}
	for _, svc := range opts.Services {
		if err := validateServiceName(svc); err != nil {
			return nil, err
		}
	}
	if err := validateEnvVars(opts.Env); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.composeArgs()
	args = append(args, "build")
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	args = append(args, opts.Services...)

	// No timeout: build duration is bounded only by the build tool.
	result, err := e.run(ctx, args, opts.Env, 0)
	if err != nil {
		return result, fmt.Errorf("%w: %s: %v", ErrBuildFailed, strings.Join(opts.Services, ","), err)
	}
	return result, nil
}

// Stop stops containers without removing them.
func (e *DefaultExecutor) Stop(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.composeArgs()
	args = append(args, "stop")
	return e.run(ctx, args, nil, e.config.DefaultTimeout)
}

// Down stops and removes containers.
func (e *DefaultExecutor) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.composeArgs()
	args = append(args, "down")
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	if opts.RemoveVolumes {
		args = append(args, "-v")
	}
	return e.run(ctx, args, nil, e.config.DefaultTimeout)
}

// Ps reports per-service state parsed from `compose ps --format json`.
func (e *DefaultExecutor) Ps(ctx context.Context) ([]ServiceState, error) {
	args := e.composeArgs()
	args = append(args, "ps", "-a", "--format", "json")

	result, err := e.run(ctx, args, nil, e.config.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return parsePsOutput(result.Stdout)
}

// Logs streams service logs to stdout.
func (e *DefaultExecutor) Logs(ctx context.Context, services []string, follow bool) error {
	for _, svc := range services {
		if err := validateServiceName(svc); err != nil {
			return err
		}
	}
	args := e.composeArgs()
	args = append(args, "logs")
	if follow {
		args = append(args, "-f")
	}
	args = append(args, services...)
	return e.proc.RunStreaming(ctx, e.config.StackDir, nil, "docker", args...)
}

// Prune removes unused engine resources.
func (e *DefaultExecutor) Prune(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	stdout, stderr, err := e.proc.RunInDir(ctx, e.config.StackDir, nil,
		"docker", "system", "prune", "-af", "--volumes")
	result := &Result{
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
		Command:  "docker system prune -af --volumes",
	}
	if err != nil {
		return result, fmt.Errorf("prune failed: %w", err)
	}
	return result, nil
}

// composeArgs assembles the `compose -f base [-f override] -p project` prefix.
// The override file is layered only when it exists.
func (e *DefaultExecutor) composeArgs() []string {
	args := []string{"compose", "-f", filepath.Join(e.config.StackDir, e.config.BaseFile)}
	override := filepath.Join(e.config.StackDir, e.config.OverrideFile)
	if _, err := os.Stat(override); err == nil {
		args = append(args, "-f", override)
	}
	args = append(args, "-p", e.config.ProjectName)
	return args
}

func (e *DefaultExecutor) run(ctx context.Context, args []string, env map[string]string, timeout time.Duration) (*Result, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	stdout, stderr, err := e.proc.RunInDir(runCtx, e.config.StackDir, env, "docker", args...)
	result := &Result{
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
		Command:  "docker " + strings.Join(args, " "),
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr); msg != "" {
			return result, fmt.Errorf("%s: %w: %s", result.Command, err, msg)
		}
		return result, fmt.Errorf("%s: %w", result.Command, err)
	}
	return result, nil
}

// psLine mirrors the JSON emitted by `docker compose ps --format json`,
// one object per line.
type psLine struct {
	Service string `json:"Service"`
	Name    string `json:"Name"`
	State   string `json:"State"`
	Health  string `json:"Health"`
}

func parsePsOutput(output string) ([]ServiceState, error) {
	var states []ServiceState
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry psLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("parse compose ps output: %w", err)
		}
		name := entry.Service
		if name == "" {
			name = entry.Name
		}
		states = append(states, ServiceState{
			Name:   name,
			State:  strings.ToLower(entry.State),
			Health: strings.ToLower(entry.Health),
		})
	}
	return states, nil
}

func validateEnvVars(env map[string]string) error {
	for key := range env {
		if !envVarKeyRegex.MatchString(key) {
			return fmt.Errorf("%w: %q", ErrInvalidEnvVar, key)
		}
	}
	return nil
}

func validateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty service name", ErrInvalidServiceName)
	}
	if len(name) > 63 {
		return fmt.Errorf("%w: service name exceeds 63 characters", ErrInvalidServiceName)
	}
	if !serviceNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidServiceName, name)
	}
	return nil
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockExecutor is a configurable test double for Executor.
type MockExecutor struct {
	PreflightFunc func(ctx context.Context) error
	UpFunc        func(ctx context.Context, opts UpOptions) (*Result, error)
	BuildFunc     func(ctx context.Context, opts BuildOptions) (*Result, error)
	StopFunc      func(ctx context.Context) (*Result, error)
	DownFunc      func(ctx context.Context, opts DownOptions) (*Result, error)
	PsFunc        func(ctx context.Context) ([]ServiceState, error)
	LogsFunc      func(ctx context.Context, services []string, follow bool) error
	PruneFunc     func(ctx context.Context) (*Result, error)

	mu         sync.Mutex
	BuildCalls []BuildOptions
	UpCalls    []UpOptions
	StopCalls  int
	DownCalls  []DownOptions
	PruneCalls int
}

// Preflight invokes PreflightFunc or succeeds.
func (m *MockExecutor) Preflight(ctx context.Context) error {
	if m.PreflightFunc != nil {
		return m.PreflightFunc(ctx)
	}
	return nil
}

// Up records the call and invokes UpFunc or succeeds.
func (m *MockExecutor) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	m.mu.Lock()
	m.UpCalls = append(m.UpCalls, opts)
	m.mu.Unlock()
	if m.UpFunc != nil {
		return m.UpFunc(ctx, opts)
	}
	return &Result{}, nil
}

// Build records the call and invokes BuildFunc or succeeds.
func (m *MockExecutor) Build(ctx context.Context, opts BuildOptions) (*Result, error) {
	m.mu.Lock()
	m.BuildCalls = append(m.BuildCalls, opts)
	m.mu.Unlock()
	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, opts)
	}
	return &Result{}, nil
}

// Stop records the call and invokes StopFunc or succeeds.
func (m *MockExecutor) Stop(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	m.StopCalls++
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc(ctx)
	}
	return &Result{}, nil
}

// Down records the call and invokes DownFunc or succeeds.
func (m *MockExecutor) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	m.mu.Lock()
	m.DownCalls = append(m.DownCalls, opts)
	m.mu.Unlock()
	if m.DownFunc != nil {
		return m.DownFunc(ctx, opts)
	}
	return &Result{}, nil
}

// Ps invokes PsFunc or reports an empty stack.
func (m *MockExecutor) Ps(ctx context.Context) ([]ServiceState, error) {
	if m.PsFunc != nil {
		return m.PsFunc(ctx)
	}
	return nil, nil
}

// Logs invokes LogsFunc or succeeds.
func (m *MockExecutor) Logs(ctx context.Context, services []string, follow bool) error {
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, services, follow)
	}
	return nil
}

// Prune records the call and invokes PruneFunc or succeeds.
func (m *MockExecutor) Prune(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	m.PruneCalls++
	m.mu.Unlock()
	if m.PruneFunc != nil {
		return m.PruneFunc(ctx)
	}
	return &Result{}, nil
}
