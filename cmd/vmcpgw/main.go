// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the virtual MCP gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/virtualmcp/gateway/cmd/vmcpgw/app"
	"github.com/virtualmcp/gateway/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("Error executing command: %v", err)
		os.Exit(1)
	}
}
