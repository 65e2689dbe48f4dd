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
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wakedock/cmd/wakedock/config"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/plan"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/watch"
)

// runWatch watches the local source trees and redeploys when they change.
// Watching implies development mode: only locally built services have a
// tree to watch, and the fingerprint source must see the same tree.
func runWatch(cmd *cobra.Command, args []string) {
	devMode = true

	roots := make(map[string]string)
	for _, svc := range config.Global.Services {
		if svc.Path != "" {
			roots[svc.Name] = expandHome(svc.Path)
		}
	}
	if len(roots) == 0 {
		log.Fatalf("No services with a local path to watch; edit %s", config.Path())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The handler only signals; deploys run serialized on this goroutine so
	// two bursts can never race the build cache or the compose project.
	trigger := make(chan []string, 1)
	handler := func(services []string) {
		select {
		case trigger <- services:
		default:
			// A redeploy is already pending; the fingerprints will pick up
			// whatever changed in the meantime.
		}
	}

	opts := watch.DefaultOptions()
	if watchInterval > 0 {
		opts.DebounceWindow = time.Duration(watchInterval) * time.Second
	} else if config.Global.Watch.DebounceSeconds > 0 {
		opts.DebounceWindow = time.Duration(config.Global.Watch.DebounceSeconds) * time.Second
	}

	watcher, err := watch.New(roots, handler, &opts, appLogger.Slog())
	if err != nil {
		log.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if err := watcher.Start(ctx); err != nil {
		log.Fatalf("Failed to start watching: %v", err)
	}

	fmt.Printf("Watching %d service source tree(s). Press Ctrl+C to stop.\n", len(roots))

	// Initial deploy brings the stack up in whatever state the sources are.
	deployOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nWatch stopped.")
			return
		case services := <-trigger:
			fmt.Printf("\nChange detected in: %s\n", strings.Join(services, ", "))
			deployOnce(ctx)
		}
	}
}

// deployOnce runs one development deploy, reporting but never exiting: the
// watch loop outlives failed deploys so a fix triggers the next attempt.
func deployOnce(ctx context.Context) {
	session := plan.Session{Mode: ModeDevelopment, SkipTests: skipTests}
	result, err := executeDeploy(ctx, session)
	if err != nil {
		appLogger.Error("deploy could not start", "error", err)
		return
	}
	NewReporter().Print(result)
}
