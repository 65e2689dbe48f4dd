// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNoOpRecorder_Counts verifies the in-memory double accumulates.
func TestNoOpRecorder_Counts(t *testing.T) {
	recorder := NewNoOpRecorder()

	recorder.ServiceOutcome(OutcomeRebuilt)
	recorder.ServiceOutcome(OutcomeRebuilt)
	recorder.ServiceOutcome(OutcomeSkipped)
	recorder.BuildDuration(12.5)
	recorder.ConvergenceDuration(30)
	recorder.DeploySuccess(true)

	if recorder.Outcomes[OutcomeRebuilt] != 2 {
		t.Errorf("rebuilt = %d, want 2", recorder.Outcomes[OutcomeRebuilt])
	}
	if recorder.Outcomes[OutcomeSkipped] != 1 {
		t.Errorf("skipped = %d, want 1", recorder.Outcomes[OutcomeSkipped])
	}
	if recorder.Builds != 1 || recorder.Convergences != 1 {
		t.Errorf("observations = %d/%d, want 1/1", recorder.Builds, recorder.Convergences)
	}
	if !recorder.LastSuccess {
		t.Error("LastSuccess = false")
	}
}

// TestPrometheusRecorder_Textfile verifies the exported textfile carries the
// deploy metrics.
func TestPrometheusRecorder_Textfile(t *testing.T) {
	recorder := NewPrometheusRecorder()
	recorder.ServiceOutcome(OutcomeRebuilt)
	recorder.ServiceOutcome(OutcomeFailed)
	recorder.BuildDuration(42)
	recorder.ConvergenceDuration(15)
	recorder.DeploySuccess(true)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := recorder.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	content := string(data)

	for _, want := range []string{
		`wakedock_deploy_services_total{outcome="rebuilt"} 1`,
		`wakedock_deploy_services_total{outcome="failed"} 1`,
		"wakedock_deploy_build_duration_seconds_count 1",
		"wakedock_deploy_convergence_duration_seconds_count 1",
		"wakedock_deploy_last_success 1",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

// TestPrometheusRecorder_FailureResetsGauge verifies the success gauge drops.
func TestPrometheusRecorder_FailureResetsGauge(t *testing.T) {
	recorder := NewPrometheusRecorder()
	recorder.DeploySuccess(true)
	recorder.DeploySuccess(false)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := recorder.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "wakedock_deploy_last_success 0") {
		t.Error("gauge did not reset to 0")
	}
}
