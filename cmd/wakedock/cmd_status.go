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
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wakedock/cmd/wakedock/config"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/buildcache"
)

// runStatus bypasses the pipeline: print container states plus the cached
// fingerprints for the selected mode, then exit.
func runStatus(cmd *cobra.Command, args []string) {
	executor, err := newExecutor()
	if err != nil {
		log.Fatalf("Status unavailable: %v", err)
	}

	ctx := context.Background()
	states, err := executor.Ps(ctx)
	if err != nil {
		log.Fatalf("Failed to query stack state: %v", err)
	}

	if len(states) == 0 {
		fmt.Println("Stack is not running.")
	} else {
		fmt.Printf("%-20s %-12s %-12s\n", "SERVICE", "STATE", "HEALTH")
		for _, state := range states {
			healthCol := state.Health
			if healthCol == "" {
				healthCol = "-"
			}
			fmt.Printf("%-20s %-12s %-12s\n", state.Name, state.State, healthCol)
		}
	}

	mode := deploymentMode()
	cache := buildcache.NewFileCache(config.Global.CacheDir())
	entries, err := cache.Entries(mode)
	if err != nil || len(entries) == 0 {
		fmt.Printf("\nNo cached fingerprints for %s mode.\n", mode)
		return
	}

	fmt.Printf("\nCached fingerprints (%s):\n", mode)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-20s %s\n", name, truncateFingerprint(entries[name]))
	}
}

// truncateFingerprint shortens long digests for the table.
func truncateFingerprint(fp string) string {
	if len(fp) > 16 {
		return fp[:16] + "..."
	}
	return fp
}
