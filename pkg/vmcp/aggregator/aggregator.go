// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package aggregator builds the unified capability catalog of the gateway.
//
// It queries upstream connections for their capabilities, applies
// per-connection filters and overrides, resolves naming collisions, and
// merges everything into a deterministic catalog plus routing table.
// The aggregation process has three stages: query, conflict resolution,
// and merging.
package aggregator

import (
	"context"
	"fmt"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// Aggregator aggregates capabilities from configured connections into a
// unified view.
type Aggregator interface {
	// QueryCapabilities queries one connection for its capabilities,
	// consulting the catalog cache first. Per-connection filters and
	// overrides are already applied to the result.
	QueryCapabilities(ctx context.Context, conn *vmcp.Connection) (*ConnectionCapabilities, error)

	// ResolveConflicts applies the collision strategy to capability names
	// across connections.
	ResolveConflicts(ctx context.Context, capabilities map[string]*ConnectionCapabilities) (*ResolvedCapabilities, error)

	// MergeCapabilities produces the final catalog and routing table.
	// Output ordering is deterministic regardless of query completion order.
	MergeCapabilities(ctx context.Context, resolved *ResolvedCapabilities) (*AggregatedCapabilities, error)

	// Aggregate runs the full pipeline across all registered connections.
	Aggregate(ctx context.Context) (*AggregatedCapabilities, error)
}

// ProcessedTool is a tool after per-connection overrides, carrying the name
// the upstream knows it by. Overrides rename tools before collision
// resolution, so the exposed name and the upstream name can already differ
// at this stage.
type ProcessedTool struct {
	// Tool holds the exposed (post-override) name and description.
	Tool vmcp.Tool

	// UpstreamName is the tool's name on its upstream connection.
	UpstreamName string
}

// ConnectionCapabilities contains the filtered capabilities of one
// connection.
type ConnectionCapabilities struct {
	// ConnectionID identifies the source connection.
	ConnectionID string

	// Tools are the connection's tools after filters and overrides.
	Tools []ProcessedTool

	// Resources are the connection's resources after URI filters.
	Resources []vmcp.Resource

	// Prompts are the connection's prompts.
	Prompts []vmcp.Prompt
}

// ResolvedCapabilities contains capabilities after collision resolution.
// Tool names are unique at this point.
type ResolvedCapabilities struct {
	// Tools maps resolved (exposed) names to their resolution records.
	Tools map[string]*ResolvedTool

	// Resources are deduplicated by URI, first connection wins.
	Resources []vmcp.Resource

	// Prompts are resolved prompt records keyed by exposed name.
	Prompts map[string]*ResolvedPrompt
}

// ResolvedTool is a tool after collision resolution.
type ResolvedTool struct {
	// ResolvedName is the final name exposed to clients.
	ResolvedName string

	// UpstreamName is the tool's name on its upstream connection.
	UpstreamName string

	// Description is the tool description (possibly overridden).
	Description string

	// InputSchema is the JSON Schema for parameters.
	InputSchema map[string]any

	// OutputSchema is the JSON Schema for output, when declared.
	OutputSchema map[string]any

	// ConnectionID identifies the providing connection.
	ConnectionID string

	// StrategyApplied records which collision strategy produced this name.
	StrategyApplied vmcp.ConflictResolutionStrategy
}

// ResolvedPrompt is a prompt after collision resolution.
type ResolvedPrompt struct {
	// ResolvedName is the final name exposed to clients.
	ResolvedName string

	// UpstreamName is the prompt's name on its upstream connection.
	UpstreamName string

	// Description describes the prompt.
	Description string

	// Arguments are the prompt parameters.
	Arguments []vmcp.PromptArgument

	// ConnectionID identifies the providing connection.
	ConnectionID string
}

// AggregatedCapabilities is the final unified catalog. This is what clients
// see via tools/list, resources/list and prompts/list under the passthrough
// strategy, and what the meta-tools search over under the others.
type AggregatedCapabilities struct {
	// Tools sorted by exposed name.
	Tools []vmcp.Tool

	// Resources sorted by URI.
	Resources []vmcp.Resource

	// Prompts sorted by exposed name.
	Prompts []vmcp.Prompt

	// RoutingTable maps every exposed capability to its upstream target.
	RoutingTable *vmcp.RoutingTable

	// Metadata holds aggregation statistics.
	Metadata *AggregationMetadata
}

// AggregationMetadata records what the aggregation pass produced.
type AggregationMetadata struct {
	// ConnectionCount is the number of connections that contributed.
	ConnectionCount int

	// ToolCount, ResourceCount and PromptCount size the catalog.
	ToolCount     int
	ResourceCount int
	PromptCount   int

	// ConflictsResolved counts capabilities whose exposed name differs
	// from their upstream name.
	ConflictsResolved int

	// ConflictStrategy is the configured collision strategy.
	ConflictStrategy vmcp.ConflictResolutionStrategy
}

// ConflictResolver resolves tool name collisions across connections.
// connectionOrder is the configuration order; strategies that keep a
// "first" occurrence use it to stay deterministic.
type ConflictResolver interface {
	ResolveToolConflicts(
		ctx context.Context, toolsByConnection map[string][]ProcessedTool, connectionOrder []string,
	) (map[string]*ResolvedTool, error)
}

// Common aggregation errors.
var (
	// ErrNoConnections indicates no connection returned capabilities.
	ErrNoConnections = fmt.Errorf("no connections returned capabilities")

	// ErrConnectionQueryFailed indicates a capability query failed.
	ErrConnectionQueryFailed = fmt.Errorf("failed to query connection capabilities")

	// ErrInvalidConflictStrategy indicates an unknown collision strategy.
	ErrInvalidConflictStrategy = fmt.Errorf("invalid conflict resolution strategy")
)
