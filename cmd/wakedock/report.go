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
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/metrics"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/smoke"
)

// ANSI colors, emitted only when writing to a terminal.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorDim    = "\033[2m"
)

// Reporter renders a DeploymentResult for humans.
type Reporter struct {
	out   io.Writer
	color bool
}

// NewReporter builds a Reporter for stdout, enabling color when stdout is a
// terminal.
func NewReporter() *Reporter {
	return &Reporter{
		out:   os.Stdout,
		color: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
}

// NewReporterTo builds a Reporter for an arbitrary writer, without color.
// Used by tests.
func NewReporterTo(w io.Writer) *Reporter {
	return &Reporter{out: w}
}

func (r *Reporter) paint(color, s string) string {
	if !r.color {
		return s
	}
	return color + s + colorReset
}

// Print renders the full deployment report: per-service outcomes,
// convergence status, and smoke probe results.
func (r *Reporter) Print(result *DeploymentResult) {
	fmt.Fprintf(r.out, "\nDeployment %s  %s\n", result.SessionID, r.phaseLabel(result.Phase))

	if len(result.Services) > 0 {
		fmt.Fprintln(r.out, "\nServices:")
		names := make([]string, 0, len(result.Services))
		for name := range result.Services {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			outcome := result.Services[name]
			fmt.Fprintf(r.out, "  %-20s %-10s %s\n",
				name, r.outcomeLabel(outcome), r.paint(colorDim, outcome.Reason))
		}
	}

	if result.Convergence != nil {
		conv := result.Convergence
		if conv.Ready {
			fmt.Fprintf(r.out, "\nConverged in %s after %d polling round(s)\n",
				conv.Elapsed.Round(time.Second), conv.Attempts)
		} else {
			fmt.Fprintf(r.out, "\n%s: stack not ready after %d round(s) (%s)\n",
				r.paint(colorYellow, "Degraded"), conv.Attempts, conv.Elapsed.Round(time.Second))
			for _, unsatisfied := range conv.Unsatisfied {
				fmt.Fprintf(r.out, "  still failing: %s\n", unsatisfied)
			}
		}
	}

	if len(result.Probes) > 0 {
		fmt.Fprintln(r.out, "\nSmoke tests:")
		for _, probe := range result.Probes {
			fmt.Fprintf(r.out, "  %-20s %s%s\n", probe.Name, r.probeLabel(probe), r.probeDetail(probe))
		}
	}

	if result.Err != nil {
		fmt.Fprintf(r.out, "\n%s: %v\n", r.paint(colorRed, "Error"), result.Err)
	}
}

func (r *Reporter) phaseLabel(phase Phase) string {
	switch phase {
	case PhaseConverged:
		return r.paint(colorGreen, phase.String())
	case PhaseDegraded:
		return r.paint(colorYellow, phase.String())
	case PhaseFailed:
		return r.paint(colorRed, phase.String())
	default:
		return phase.String()
	}
}

func (r *Reporter) outcomeLabel(outcome ServiceOutcome) string {
	switch outcome.Outcome {
	case metrics.OutcomeRebuilt:
		return r.paint(colorGreen, fmt.Sprintf("rebuilt (%s)", outcome.BuildDuration.Round(time.Second)))
	case metrics.OutcomeFailed:
		return r.paint(colorRed, "failed")
	default:
		return "skipped"
	}
}

func (r *Reporter) probeLabel(probe smoke.ProbeResult) string {
	if probe.Outcome == smoke.Pass {
		return r.paint(colorGreen, "pass")
	}
	return r.paint(colorYellow, "warn")
}

func (r *Reporter) probeDetail(probe smoke.ProbeResult) string {
	if probe.Outcome == smoke.Pass || probe.Detail == "" {
		return ""
	}
	return "  " + r.paint(colorDim, probe.Detail)
}
