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
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wakedock/cmd/wakedock/config"
	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/proxy"
)

func runReconcile(cmd *cobra.Command, args []string) {
	if !config.Global.Proxy.Enabled() {
		log.Fatalf("No proxy file configured; set proxy.file in %s", config.Path())
	}
	result, err := reconcileProxy()
	if err != nil {
		log.Fatalf("Reconcile failed: %v", err)
	}
	switch {
	case result.Created:
		fmt.Printf("Created %s with the managed block\n", config.Global.Proxy.File)
	case result.Changed:
		fmt.Printf("Updated the managed block in %s\n", config.Global.Proxy.File)
	default:
		fmt.Printf("Managed block in %s already up to date\n", config.Global.Proxy.File)
	}
}

// reconcileProxy applies the configured managed block to the proxy file.
func reconcileProxy() (*proxy.ReconcileResult, error) {
	block, err := managedBlockFromConfig()
	if err != nil {
		return nil, err
	}
	return proxy.Reconcile(expandHome(config.Global.Proxy.File), block)
}

// managedBlockFromConfig resolves the desired block content. Inline content
// wins over a content file when both are set.
func managedBlockFromConfig() (proxy.ManagedBlock, error) {
	cfg := config.Global.Proxy
	block := proxy.ManagedBlock{
		StartMarker: cfg.StartMarker,
		EndMarker:   cfg.EndMarker,
	}
	if block.StartMarker == "" {
		block.StartMarker = "# BEGIN wakedock managed block"
	}
	if block.EndMarker == "" {
		block.EndMarker = "# END wakedock managed block"
	}

	switch {
	case cfg.Content != "":
		block.DesiredContent = strings.TrimRight(cfg.Content, "\n")
	case cfg.ContentFile != "":
		data, err := os.ReadFile(expandHome(cfg.ContentFile))
		if err != nil {
			return proxy.ManagedBlock{}, fmt.Errorf("reading proxy content file: %w", err)
		}
		block.DesiredContent = strings.TrimRight(string(data), "\n")
	default:
		return proxy.ManagedBlock{}, fmt.Errorf("proxy.file is set but neither proxy.content nor proxy.content_file is")
	}
	return block, nil
}
