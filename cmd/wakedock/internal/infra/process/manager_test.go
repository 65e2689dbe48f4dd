// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"context"
	"strings"
	"testing"
)

// TestDefaultManagerRun verifies stdout capture against a real process.
func TestDefaultManagerRun(t *testing.T) {
	m := NewDefaultManager()
	out, err := m.Run(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Errorf("stdout = %q", out)
	}
}

// TestDefaultManagerRunFailure verifies stderr is folded into the error.
func TestDefaultManagerRunFailure(t *testing.T) {
	m := NewDefaultManager()
	_, err := m.Run(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
	if err == nil {
		t.Fatal("Run() succeeded on a failing command")
	}
	if !strings.Contains(err.Error(), "oops") {
		t.Errorf("error does not carry stderr: %v", err)
	}
}

// TestDefaultManagerRunInDir verifies the working directory takes effect.
func TestDefaultManagerRunInDir(t *testing.T) {
	dir := t.TempDir()
	m := NewDefaultManager()
	stdout, _, err := m.RunInDir(context.Background(), dir, nil, "pwd")
	if err != nil {
		t.Fatalf("RunInDir() failed: %v", err)
	}
	if !strings.Contains(strings.TrimSpace(stdout), dir) {
		t.Errorf("pwd = %q, want under %q", stdout, dir)
	}
}

// TestMergedEnv verifies extra variables are appended to the inherited
// environment.
func TestMergedEnv(t *testing.T) {
	env := mergedEnv(map[string]string{"WAKEDOCK_TEST_VAR": "1"})
	found := false
	for _, kv := range env {
		if kv == "WAKEDOCK_TEST_VAR=1" {
			found = true
		}
	}
	if !found {
		t.Error("extra variable missing from merged environment")
	}
	if len(env) < 2 {
		t.Error("inherited environment was dropped")
	}
}

// TestMockManagerRecording verifies the mock records calls in order.
func TestMockManagerRecording(t *testing.T) {
	m := &MockManager{}
	ctx := context.Background()

	m.Run(ctx, "docker", "version")
	m.RunInDir(ctx, "/stack", map[string]string{"K": "v"}, "docker", "compose", "up")
	m.LookPath("docker")

	calls := m.Calls()
	if len(calls) != 3 {
		t.Fatalf("recorded %d calls, want 3", len(calls))
	}
	if calls[0].Method != "Run" || calls[0].Name != "docker" {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[1].Dir != "/stack" || calls[1].Env["K"] != "v" {
		t.Errorf("second call = %+v", calls[1])
	}
	if calls[2].Method != "LookPath" {
		t.Errorf("third call = %+v", calls[2])
	}

	m.Reset()
	if len(m.Calls()) != 0 {
		t.Error("Reset() did not clear recorded calls")
	}
}
