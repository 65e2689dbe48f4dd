// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
)

type WakedockConfig struct {
	// Stack: where the compose files live and how the project is named
	Stack StackConfig `yaml:"stack" validate:"required"`

	// Services: the units the rebuild planner tracks
	Services []ServiceConfig `yaml:"services" validate:"dive"`

	// Health: convergence polling targets and bounds
	Health HealthConfig `yaml:"health"`

	// Smoke: post-convergence endpoint checks
	Smoke []EndpointConfig `yaml:"smoke" validate:"dive"`

	// Proxy: managed block reconciliation for the edge proxy config
	Proxy ProxyConfig `yaml:"proxy"`

	// Cache: fingerprint cache location
	Cache CacheConfig `yaml:"cache"`

	// Remote: git hosting API used for remote fingerprints
	Remote RemoteConfig `yaml:"remote"`

	// Metrics: deployment metrics export
	Metrics MetricsConfig `yaml:"metrics"`

	// Watch: source watching for auto-redeploy
	Watch WatchConfig `yaml:"watch"`

	// Logging: log level and optional JSON file sink
	Logging LoggingConfig `yaml:"logging"`
}

type StackConfig struct {
	Dir          string `yaml:"dir" validate:"required"`           // e.g. ~/stacks/myapp
	BaseFile     string `yaml:"base_file"`                         // e.g. docker-compose.yml
	OverrideFile string `yaml:"override_file,omitempty"`           // optional override layer
	ProjectName  string `yaml:"project_name" validate:"required"`  // compose -p value
}

// ServiceConfig describes one tracked service. Path locates the local source
// tree (development deployments); repo plus branch identify the remote git
// source (production deployments). At least one must be set; a service
// deployable in both modes sets both.
type ServiceConfig struct {
	Name    string   `yaml:"name" validate:"required"`
	Path    string   `yaml:"path,omitempty"`
	Repo    string   `yaml:"repo,omitempty"`
	Branch  string   `yaml:"branch,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

type HealthConfig struct {
	IntervalSeconds int              `yaml:"interval_seconds" validate:"gte=0"`
	MaxAttempts     int              `yaml:"max_attempts" validate:"gte=0"`
	Targets         []EndpointConfig `yaml:"targets" validate:"dive"`
}

type EndpointConfig struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
}

type ProxyConfig struct {
	File        string `yaml:"file,omitempty"` // e.g. /etc/caddy/Caddyfile
	StartMarker string `yaml:"start_marker,omitempty"`
	EndMarker   string `yaml:"end_marker,omitempty"`
	// ContentFile holds the desired managed block body. Inline content wins
	// when both are set.
	ContentFile string `yaml:"content_file,omitempty"`
	Content     string `yaml:"content,omitempty"`
}

// Enabled reports whether proxy reconciliation is configured at all.
func (p ProxyConfig) Enabled() bool {
	return p.File != ""
}

type CacheConfig struct {
	Dir string `yaml:"dir,omitempty"` // default ~/.wakedock/cache
}

type RemoteConfig struct {
	APIBaseURL        string  `yaml:"api_base_url,omitempty"` // default https://api.github.com
	TokenEnv          string  `yaml:"token_env,omitempty"`    // env var holding the API token
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TextfilePath string `yaml:"textfile_path,omitempty"` // default <state dir>/metrics.prom
}

type WatchConfig struct {
	DebounceSeconds int `yaml:"debounce_seconds" validate:"gte=0"`
}

type LoggingConfig struct {
	Level   string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	JSONLog bool   `yaml:"json_log"` // also write JSON records to <state dir>/wakedock.log
}

// StateDir returns the wakedock state directory (~/.wakedock), creating
// nothing. Callers that write under it create it themselves.
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wakedock"
	}
	return filepath.Join(home, ".wakedock")
}

// CacheDir resolves the fingerprint cache directory.
func (c WakedockConfig) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return filepath.Join(StateDir(), "cache")
}

// MetricsTextfile resolves the metrics export path.
func (c WakedockConfig) MetricsTextfile() string {
	if c.Metrics.TextfilePath != "" {
		return c.Metrics.TextfilePath
	}
	return filepath.Join(StateDir(), "metrics.prom")
}

func DefaultConfig() WakedockConfig {
	return WakedockConfig{
		Stack: StackConfig{
			Dir:         filepath.Join(StateDir(), "stack"),
			BaseFile:    "docker-compose.yml",
			ProjectName: "wakedock",
		},
		Services: []ServiceConfig{},
		Health: HealthConfig{
			IntervalSeconds: 5,
			MaxAttempts:     24,
		},
		Remote: RemoteConfig{
			APIBaseURL:        "https://api.github.com",
			TokenEnv:          "WAKEDOCK_GIT_TOKEN",
			RequestsPerSecond: 2,
		},
		Metrics: MetricsConfig{Enabled: true},
		Watch:   WatchConfig{DebounceSeconds: 2},
		Logging: LoggingConfig{Level: "info"},
	}
}
