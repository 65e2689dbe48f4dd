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
	"log"
	"os"

	"github.com/AleutianAI/wakedock/cmd/wakedock/config"
	"github.com/AleutianAI/wakedock/pkg/logging"
	"github.com/spf13/cobra"
)

var appLogger *logging.Logger

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
	if appLogger != nil {
		appLogger.Close()
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := config.Load(); err != nil {
			log.Fatalf("Error loading config: %v. Fix %s and retry.", err, config.Path())
		}

		logCfg := logging.Config{Level: logging.ParseLevel(config.Global.Logging.Level)}
		if config.Global.Logging.JSONLog {
			logCfg.LogDir = config.StateDir() + string(os.PathSeparator) + "logs"
		}
		logger, err := logging.New(logCfg)
		if err != nil {
			// Degraded to stderr-only; the run itself proceeds.
			logger.Warn("file logging unavailable", "error", err)
		}
		appLogger = logger
	}
}
