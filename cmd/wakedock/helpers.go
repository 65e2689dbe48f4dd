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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/wakedock/cmd/wakedock/config"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/fingerprint"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/health"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/infra/compose"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/infra/process"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/smoke"
)

// Deployment modes; also the build-cache namespaces, so production and
// development fingerprints never collide.
const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// deploymentMode resolves the session mode from the --dev flag.
func deploymentMode() string {
	if devMode {
		return ModeDevelopment
	}
	return ModeProduction
}

// buildUnits maps configured services to fingerprint units for the mode.
// Development fingerprints local trees; production fingerprints remote
// branch heads. A service missing the source field the mode needs is a
// configuration error, caught here before anything mutates.
func buildUnits(mode string) ([]fingerprint.ServiceUnit, error) {
	units := make([]fingerprint.ServiceUnit, 0, len(config.Global.Services))
	for _, svc := range config.Global.Services {
		unit := fingerprint.ServiceUnit{
			Name:            svc.Name,
			ExcludePatterns: svc.Exclude,
		}
		switch mode {
		case ModeDevelopment:
			if svc.Path == "" {
				return nil, fmt.Errorf("service %q has no local path; it cannot be deployed with --dev", svc.Name)
			}
			unit.Mode = fingerprint.ModeLocal
			unit.LocalPath = expandHome(svc.Path)
		default:
			if svc.Repo == "" {
				return nil, fmt.Errorf("service %q has no repo; it cannot be deployed in production mode", svc.Name)
			}
			unit.Mode = fingerprint.ModeRemoteGit
			unit.RemoteURL = svc.Repo
			unit.Branch = svc.Branch
		}
		if err := unit.Validate(); err != nil {
			return nil, fmt.Errorf("service %q: %w", svc.Name, err)
		}
		units = append(units, unit)
	}
	return units, nil
}

// newFingerprintSource picks the source implementation for the mode.
func newFingerprintSource(mode string) fingerprint.Source {
	if mode == ModeDevelopment {
		return fingerprint.NewLocalSource()
	}
	remoteCfg := fingerprint.RemoteConfig{
		APIBaseURL:        config.Global.Remote.APIBaseURL,
		RequestsPerSecond: config.Global.Remote.RequestsPerSecond,
	}
	if tokenEnv := config.Global.Remote.TokenEnv; tokenEnv != "" {
		remoteCfg.Token = os.Getenv(tokenEnv)
	}
	return fingerprint.NewRemoteSource(remoteCfg, appLogger.Slog())
}

// newExecutor builds the compose executor from the stack config.
func newExecutor() (compose.Executor, error) {
	return compose.NewDefaultExecutor(compose.Config{
		StackDir:     expandHome(config.Global.Stack.Dir),
		BaseFile:     config.Global.Stack.BaseFile,
		OverrideFile: config.Global.Stack.OverrideFile,
		ProjectName:  config.Global.Stack.ProjectName,
	}, process.NewDefaultManager())
}

// healthTargets maps configured convergence targets.
func healthTargets() []health.Target {
	targets := make([]health.Target, 0, len(config.Global.Health.Targets))
	for _, t := range config.Global.Health.Targets {
		targets = append(targets, health.Target{Name: t.Name, URL: t.URL})
	}
	return targets
}

// healthOptions maps the configured polling bounds; zero values defer to the
// waiter's defaults.
func healthOptions() health.Options {
	return health.Options{
		Interval:    time.Duration(config.Global.Health.IntervalSeconds) * time.Second,
		MaxAttempts: config.Global.Health.MaxAttempts,
	}
}

// smokeEndpoints maps configured smoke probes.
func smokeEndpoints() []smoke.Endpoint {
	endpoints := make([]smoke.Endpoint, 0, len(config.Global.Smoke))
	for _, e := range config.Global.Smoke {
		endpoints = append(endpoints, smoke.Endpoint{Name: e.Name, URL: e.URL})
	}
	return endpoints
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
