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
Package process abstracts external process execution.

All exec.Command calls in the deployment code go through the Manager
interface so orchestration logic can be unit-tested without running real
processes. The mock records every invocation for assertion.
*/
package process

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Manager handles external process operations.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
//
// # Context Handling
//
// All methods accept a context.Context; long-running processes must respect
// cancellation.
type Manager interface {
	// Run executes a command and returns its stdout. Stderr is folded into
	// the returned error on failure.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunInDir executes a command in dir with extra environment variables
	// appended to the current environment. Returns captured stdout and
	// stderr separately.
	RunInDir(ctx context.Context, dir string, env map[string]string, name string, args ...string) (stdout, stderr string, err error)

	// RunStreaming executes a command in dir with the process's stdout and
	// stderr connected to this process's, for long interactive output such
	// as build logs and log streaming.
	RunStreaming(ctx context.Context, dir string, env map[string]string, name string, args ...string) error

	// LookPath reports whether an executable is available on PATH.
	LookPath(name string) (string, error)
}

// DefaultManager executes real processes using os/exec.
type DefaultManager struct{}

// NewDefaultManager creates a Manager backed by os/exec.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// Run executes a command and returns its stdout.
func (m *DefaultManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// RunInDir executes a command in dir with extra environment.
func (m *DefaultManager) RunInDir(ctx context.Context, dir string, env map[string]string, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = mergedEnv(env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// RunStreaming executes a command with inherited stdio.
func (m *DefaultManager) RunStreaming(ctx context.Context, dir string, env map[string]string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = mergedEnv(env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// LookPath reports whether an executable is on PATH.
func (m *DefaultManager) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// Call records a single invocation against a MockManager.
type Call struct {
	Method string
	Dir    string
	Env    map[string]string
	Name   string
	Args   []string
}

// MockManager is a test double for Manager. Configure the function fields;
// unconfigured methods succeed with empty output.
type MockManager struct {
	RunFunc          func(ctx context.Context, name string, args ...string) ([]byte, error)
	RunInDirFunc     func(ctx context.Context, dir string, env map[string]string, name string, args ...string) (string, string, error)
	RunStreamingFunc func(ctx context.Context, dir string, env map[string]string, name string, args ...string) error
	LookPathFunc     func(name string) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Run invokes RunFunc and records the call.
func (m *MockManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record(Call{Method: "Run", Name: name, Args: args})
	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, args...)
	}
	return nil, nil
}

// RunInDir invokes RunInDirFunc and records the call.
func (m *MockManager) RunInDir(ctx context.Context, dir string, env map[string]string, name string, args ...string) (string, string, error) {
	m.record(Call{Method: "RunInDir", Dir: dir, Env: env, Name: name, Args: args})
	if m.RunInDirFunc != nil {
		return m.RunInDirFunc(ctx, dir, env, name, args...)
	}
	return "", "", nil
}

// RunStreaming invokes RunStreamingFunc and records the call.
func (m *MockManager) RunStreaming(ctx context.Context, dir string, env map[string]string, name string, args ...string) error {
	m.record(Call{Method: "RunStreaming", Dir: dir, Env: env, Name: name, Args: args})
	if m.RunStreamingFunc != nil {
		return m.RunStreamingFunc(ctx, dir, env, name, args...)
	}
	return nil
}

// LookPath invokes LookPathFunc and records the call.
func (m *MockManager) LookPath(name string) (string, error) {
	m.record(Call{Method: "LookPath", Name: name})
	if m.LookPathFunc != nil {
		return m.LookPathFunc(name)
	}
	return "/usr/bin/" + name, nil
}

func (m *MockManager) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

// Calls returns a copy of all recorded invocations.
func (m *MockManager) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears recorded invocations.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
