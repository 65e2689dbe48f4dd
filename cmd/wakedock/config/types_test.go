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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestDefaultConfigValues pins the shipped defaults.
func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "docker-compose.yml", cfg.Stack.BaseFile)
	assert.Equal(t, "wakedock", cfg.Stack.ProjectName)
	assert.Equal(t, 5, cfg.Health.IntervalSeconds)
	assert.Equal(t, 24, cfg.Health.MaxAttempts)
	assert.Equal(t, "https://api.github.com", cfg.Remote.APIBaseURL)
	assert.Equal(t, "WAKEDOCK_GIT_TOKEN", cfg.Remote.TokenEnv)
	assert.Equal(t, float64(2), cfg.Remote.RequestsPerSecond)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 2, cfg.Watch.DebounceSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
}

// TestConfigYAMLRoundTrip verifies the yaml tags survive a marshal cycle.
func TestConfigYAMLRoundTrip(t *testing.T) {
	original := DefaultConfig()
	original.Services = []ServiceConfig{
		{Name: "backend", Path: "~/src/backend", Repo: "https://github.com/acme/backend", Branch: "main", Exclude: []string{"*.log"}},
	}
	original.Proxy = ProxyConfig{File: "/etc/caddy/Caddyfile", Content: "route {\n}"}

	data, err := yaml.Marshal(original)
	require.NoError(t, err)

	var decoded WakedockConfig
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

// TestProxyEnabled verifies the enable switch is the target file.
func TestProxyEnabled(t *testing.T) {
	assert.False(t, ProxyConfig{}.Enabled())
	assert.True(t, ProxyConfig{File: "/etc/caddy/Caddyfile"}.Enabled())
}
