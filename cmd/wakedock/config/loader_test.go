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
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".wakedock", "wakedock.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	var cfg WakedockConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	if cfg.Stack.BaseFile != "docker-compose.yml" {
		t.Errorf("Stack.BaseFile = %q", cfg.Stack.BaseFile)
	}
	if cfg.Health.IntervalSeconds != 5 || cfg.Health.MaxAttempts != 24 {
		t.Errorf("Health defaults = %d/%d, want 5/24", cfg.Health.IntervalSeconds, cfg.Health.MaxAttempts)
	}
	if cfg.Remote.APIBaseURL != "https://api.github.com" {
		t.Errorf("Remote.APIBaseURL = %q", cfg.Remote.APIBaseURL)
	}
}

// TestValidate covers the service source rules.
func TestValidate(t *testing.T) {
	base := func() WakedockConfig {
		cfg := DefaultConfig()
		cfg.Services = []ServiceConfig{
			{Name: "backend", Path: "/src/backend", Repo: "https://github.com/acme/backend", Branch: "main"},
		}
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		cfg := base()
		if err := Validate(&cfg); err != nil {
			t.Errorf("Validate() failed on valid config: %v", err)
		}
	})

	t.Run("path only", func(t *testing.T) {
		cfg := base()
		cfg.Services[0].Repo = ""
		cfg.Services[0].Branch = ""
		if err := Validate(&cfg); err != nil {
			t.Errorf("Validate() failed: %v", err)
		}
	})

	t.Run("neither source", func(t *testing.T) {
		cfg := base()
		cfg.Services[0].Path = ""
		cfg.Services[0].Repo = ""
		err := Validate(&cfg)
		if err == nil || !strings.Contains(err.Error(), "neither path nor repo") {
			t.Errorf("err = %v, want source error", err)
		}
	})

	t.Run("repo without branch", func(t *testing.T) {
		cfg := base()
		cfg.Services[0].Branch = ""
		err := Validate(&cfg)
		if err == nil || !strings.Contains(err.Error(), "no branch") {
			t.Errorf("err = %v, want branch error", err)
		}
	})

	t.Run("duplicate service", func(t *testing.T) {
		cfg := base()
		cfg.Services = append(cfg.Services, cfg.Services[0])
		err := Validate(&cfg)
		if err == nil || !strings.Contains(err.Error(), "duplicate") {
			t.Errorf("err = %v, want duplicate error", err)
		}
	})

	t.Run("missing stack dir", func(t *testing.T) {
		cfg := base()
		cfg.Stack.Dir = ""
		if err := Validate(&cfg); err == nil {
			t.Error("Validate() accepted an empty stack dir")
		}
	})

	t.Run("bad health url", func(t *testing.T) {
		cfg := base()
		cfg.Health.Targets = []EndpointConfig{{Name: "api", URL: "not a url"}}
		if err := Validate(&cfg); err == nil {
			t.Error("Validate() accepted a malformed target URL")
		}
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := base()
		cfg.Logging.Level = "verbose"
		if err := Validate(&cfg); err == nil {
			t.Error("Validate() accepted an unknown log level")
		}
	})
}

// TestPath_EnvOverride verifies WAKEDOCK_CONFIG wins over the default.
func TestPath_EnvOverride(t *testing.T) {
	t.Setenv("WAKEDOCK_CONFIG", "/tmp/custom.yaml")
	if got := Path(); got != "/tmp/custom.yaml" {
		t.Errorf("Path() = %q", got)
	}

	t.Setenv("WAKEDOCK_CONFIG", "")
	if got := Path(); !strings.HasSuffix(got, filepath.Join(".wakedock", "wakedock.yaml")) {
		t.Errorf("Path() = %q, want the state dir default", got)
	}
}

// TestCacheDirResolution verifies the default and the override.
func TestCacheDirResolution(t *testing.T) {
	cfg := DefaultConfig()
	if !strings.HasSuffix(cfg.CacheDir(), filepath.Join(".wakedock", "cache")) {
		t.Errorf("CacheDir() = %q", cfg.CacheDir())
	}

	cfg.Cache.Dir = "/var/cache/wakedock"
	if cfg.CacheDir() != "/var/cache/wakedock" {
		t.Errorf("CacheDir() override = %q", cfg.CacheDir())
	}
}
