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
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global WakedockConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

func loadInternal() error {
	configPath := Path()
	// create it if it doesn't exist
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf(" First run detected, creating the config at %s\n", configPath)
		if err := createDefault(configPath); err != nil {
			return err
		}
	}
	// read the file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read the config file: %w", err)
	}
	// parse the config into the Global struct
	if err = yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to unmarshal the config into the Global singleton: %w", err)
	}
	return Validate(&Global)
}

// Path returns the config file location, honoring WAKEDOCK_CONFIG.
func Path() string {
	if override := os.Getenv("WAKEDOCK_CONFIG"); override != "" {
		return override
	}
	return filepath.Join(StateDir(), "wakedock.yaml")
}

// Validate checks struct tags and per-service source settings. A service may
// carry both a local path and a remote repo; the deployment mode picks which
// one feeds the fingerprint at run time.
func Validate(cfg *WakedockConfig) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]bool, len(cfg.Services))
	for _, svc := range cfg.Services {
		if seen[svc.Name] {
			return fmt.Errorf("invalid config: duplicate service %q", svc.Name)
		}
		seen[svc.Name] = true
		if svc.Path == "" && svc.Repo == "" {
			return fmt.Errorf("invalid config: service %q sets neither path nor repo", svc.Name)
		}
		if svc.Repo != "" && svc.Branch == "" {
			return fmt.Errorf("invalid config: service %q sets repo but no branch", svc.Name)
		}
	}
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	defaultCfg := DefaultConfig()
	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
