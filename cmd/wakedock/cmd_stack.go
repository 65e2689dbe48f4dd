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
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wakedock/cmd/wakedock/internal/infra/compose"
)

func runStop(cmd *cobra.Command, args []string) {
	executor, err := newExecutor()
	if err != nil {
		log.Fatalf("Cannot stop stack: %v", err)
	}
	fmt.Println("Stopping stack services...")
	if _, err := executor.Stop(context.Background()); err != nil {
		log.Fatalf("Failed to stop services: %v", err)
	}
	fmt.Println("Stack stopped.")
}

func runDestroy(cmd *cobra.Command, args []string) {
	fmt.Println("WARNING: You are about to permanently delete all stack containers" +
		" AND their volumes, including any databases the stack spun up." +
		" Back up anything you care about before continuing.")
	fmt.Print("Are you sure you want to continue? (yes/no): ")
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input != "yes" && input != "y" {
		fmt.Println("Aborted. No changes were made")
		return
	}

	executor, err := newExecutor()
	if err != nil {
		log.Fatalf("Cannot destroy stack: %v", err)
	}
	fmt.Println("Destroying stack containers and volumes...")
	_, err = executor.Down(context.Background(), compose.DownOptions{
		RemoveVolumes: true,
		RemoveOrphans: true,
	})
	if err != nil {
		log.Fatalf("Failed to destroy services and volumes: %v", err)
	}
	fmt.Println("\nStack containers and volumes destroyed.")
}

func runLogsCommand(cmd *cobra.Command, args []string) {
	executor, err := newExecutor()
	if err != nil {
		log.Fatalf("Cannot stream logs: %v", err)
	}
	if len(args) > 0 {
		fmt.Printf("Streaming logs for %s\n", strings.Join(args, " "))
	} else {
		fmt.Println("Streaming the logs for all services")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := executor.Logs(ctx, args, followLogs); err != nil && ctx.Err() == nil {
		fmt.Println("\nLog streaming stopped or encountered an error")
		return
	}
	fmt.Println("\nLog streaming finished")
}
