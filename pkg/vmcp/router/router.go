// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package router resolves exposed capability names to upstream connections.
// It holds the reverse index produced by aggregation and answers the
// question "which upstream serves this tool/resource/prompt".
package router

import (
	"context"
	"errors"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// Routing errors for capabilities absent from the current table.
// Tool lookups reuse vmcp.ErrToolNotFound so callers across packages can
// detect unknown tools uniformly.
var (
	// ErrResourceNotFound indicates the requested resource URI is not in
	// the routing table.
	ErrResourceNotFound = errors.New("resource not found in routing table")

	// ErrPromptNotFound indicates the requested prompt is not in the
	// routing table.
	ErrPromptNotFound = errors.New("prompt not found in routing table")
)

// Router routes capability requests to upstream connections.
// Implementations must be safe for concurrent use; lookups run on every
// request while table updates happen only on aggregation.
type Router interface {
	// RouteTool returns the target serving the exposed tool name.
	// Returns an error wrapping vmcp.ErrToolNotFound for unknown tools.
	RouteTool(ctx context.Context, toolName string) (*vmcp.ConnectionTarget, error)

	// RouteResource returns the target serving the resource URI.
	RouteResource(ctx context.Context, uri string) (*vmcp.ConnectionTarget, error)

	// RoutePrompt returns the target serving the prompt name.
	RoutePrompt(ctx context.Context, promptName string) (*vmcp.ConnectionTarget, error)

	// UpdateRoutingTable atomically replaces the routing table.
	// In-flight lookups complete against the old table.
	UpdateRoutingTable(ctx context.Context, table *vmcp.RoutingTable) error
}
