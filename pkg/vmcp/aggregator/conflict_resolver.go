// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

// The conflict resolver factory and the deduplicate and prefix_all
// resolvers. The custom resolver lives in custom_resolver.go.

import (
	"context"
	"fmt"
	"sort"

	"github.com/virtualmcp/gateway/pkg/logger"
	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/config"
)

// NewConflictResolver creates the resolver for the configured strategy.
func NewConflictResolver(aggregationConfig *config.AggregationConfig) (ConflictResolver, error) {
	strategy := vmcp.ConflictStrategyDeduplicate
	if aggregationConfig != nil && aggregationConfig.ConflictResolution != "" {
		strategy = vmcp.ConflictResolutionStrategy(aggregationConfig.ConflictResolution)
	}

	switch strategy {
	case vmcp.ConflictStrategyDeduplicate:
		logger.Infof("Using deduplicate conflict resolution strategy (first connection wins)")
		return NewDeduplicateResolver(), nil

	case vmcp.ConflictStrategyPrefixAll:
		logger.Infof("Using prefix_all conflict resolution strategy")
		return NewPrefixAllResolver(), nil

	case vmcp.ConflictStrategyCustom:
		logger.Infof("Using custom conflict resolution strategy")
		return NewCustomResolver(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidConflictStrategy, strategy)
	}
}

// sortedToolNames returns tool names in a stable order for logging and
// error messages.
func sortedToolNames(tools map[string]*ResolvedTool) []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// deduplicateResolver keeps the first occurrence of each tool name in
// connection configuration order and drops later duplicates.
type deduplicateResolver struct{}

// NewDeduplicateResolver creates the first-wins resolver.
func NewDeduplicateResolver() ConflictResolver {
	return &deduplicateResolver{}
}

func (*deduplicateResolver) ResolveToolConflicts(
	_ context.Context, toolsByConnection map[string][]ProcessedTool, connectionOrder []string,
) (map[string]*ResolvedTool, error) {
	resolved := make(map[string]*ResolvedTool)
	for _, connectionID := range connectionOrder {
		for _, pt := range toolsByConnection[connectionID] {
			if existing, ok := resolved[pt.Tool.Name]; ok {
				logger.Warnf("Tool %s from connection %s shadowed by connection %s (deduplicate)",
					pt.Tool.Name, connectionID, existing.ConnectionID)
				continue
			}
			resolved[pt.Tool.Name] = &ResolvedTool{
				ResolvedName:    pt.Tool.Name,
				UpstreamName:    pt.UpstreamName,
				Description:     pt.Tool.Description,
				InputSchema:     pt.Tool.InputSchema,
				OutputSchema:    pt.Tool.OutputSchema,
				ConnectionID:    connectionID,
				StrategyApplied: vmcp.ConflictStrategyDeduplicate,
			}
		}
	}
	logger.Debugf("Deduplicate strategy: %d unique tools", len(resolved))
	return resolved, nil
}

// prefixAllResolver rewrites every tool name to {connection}_{name}.
// Uniqueness holds by construction as long as connection names are unique
// and each connection's tool names are unique.
type prefixAllResolver struct{}

// NewPrefixAllResolver creates the always-prefix resolver.
func NewPrefixAllResolver() ConflictResolver {
	return &prefixAllResolver{}
}

func (*prefixAllResolver) ResolveToolConflicts(
	_ context.Context, toolsByConnection map[string][]ProcessedTool, connectionOrder []string,
) (map[string]*ResolvedTool, error) {
	resolved := make(map[string]*ResolvedTool)
	for _, connectionID := range connectionOrder {
		for _, pt := range toolsByConnection[connectionID] {
			prefixedName := fmt.Sprintf("%s_%s", connectionID, pt.Tool.Name)
			if existing, ok := resolved[prefixedName]; ok {
				// Reachable only when an override manufactures a clash.
				return nil, fmt.Errorf("%w: prefixed name %s from connection %s collides with connection %s",
					vmcp.ErrAggregationConflict, prefixedName, connectionID, existing.ConnectionID)
			}
			resolved[prefixedName] = &ResolvedTool{
				ResolvedName:    prefixedName,
				UpstreamName:    pt.UpstreamName,
				Description:     pt.Tool.Description,
				InputSchema:     pt.Tool.InputSchema,
				OutputSchema:    pt.Tool.OutputSchema,
				ConnectionID:    connectionID,
				StrategyApplied: vmcp.ConflictStrategyPrefixAll,
			}
		}
	}
	logger.Debugf("Prefix_all strategy: %d tools: %v", len(resolved), sortedToolNames(resolved))
	return resolved, nil
}
