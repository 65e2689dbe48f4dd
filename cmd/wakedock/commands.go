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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	devMode       bool
	forceRebuild  bool
	cleanBuild    bool
	skipTests     bool
	skipCache     bool
	followLogs    bool
	watchInterval int

	rootCmd = &cobra.Command{
		Use:   "wakedock",
		Short: "A cli to deploy and converge a compose-based application stack",
		Long: `Wakedock rebuilds only the services whose sources changed, starts the
stack, waits for it to converge, and keeps the edge proxy config in sync.`,
	}

	// --- Deployment ---
	deployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Plan, build, start, and converge the stack",
		Run:   runDeploy, // Defined in cmd_deploy.go
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print current stack state and cached fingerprints",
		Run:   runStatus, // Defined in cmd_status.go
	}

	logsCmd = &cobra.Command{
		Use:   "logs [service_name...]",
		Short: "Stream logs from the stack's containers",
		Run:   runLogsCommand, // Defined in cmd_stack.go
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop all stack services",
		Run:   runStop, // Defined in cmd_stack.go
	}

	destroyCmd = &cobra.Command{
		Use:   "destroy",
		Short: "DANGER: Stops and deletes all stack containers AND volumes",
		Run:   runDestroy, // Defined in cmd_stack.go
	}

	// --- Proxy ---
	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile the managed block in the proxy config file",
		Run:   runReconcile, // Defined in cmd_reconcile.go
	}

	// --- Watch ---
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch local service sources and redeploy on change",
		Run:   runWatch, // Defined in cmd_watch.go
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false,
		"Development mode: fingerprint local source trees instead of remote branches")

	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().BoolVar(&forceRebuild, "force", false, "Rebuild every service regardless of fingerprints")
	deployCmd.Flags().BoolVar(&cleanBuild, "clean", false, "Destructive: prune engine state and build with --no-cache")
	deployCmd.Flags().BoolVar(&skipTests, "skip-tests", false, "Skip post-convergence smoke tests")
	deployCmd.Flags().BoolVar(&skipCache, "skip-cache", false, "Ignore the fingerprint cache for planning (non-destructive)")

	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", true, "Follow log output")

	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(destroyCmd)

	rootCmd.AddCommand(reconcileCmd)

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVar(&watchInterval, "debounce", 0,
		"Debounce window in seconds before a change triggers a redeploy (0 = config value)")
}
