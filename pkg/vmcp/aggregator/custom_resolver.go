// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/virtualmcp/gateway/pkg/logger"
	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// customResolver implements explicit conflict resolution. Overrides have
// already renamed tools before this stage, so the resolver's job is to
// verify that every exposed name is unique and fail closed if not.
// Collisions are a configuration error, never silently dropped.
type customResolver struct{}

// NewCustomResolver creates the explicit-mapping resolver.
func NewCustomResolver() ConflictResolver {
	return &customResolver{}
}

func (r *customResolver) ResolveToolConflicts(
	_ context.Context, toolsByConnection map[string][]ProcessedTool, connectionOrder []string,
) (map[string]*ResolvedTool, error) {
	// Group candidates by exposed name to detect collisions.
	candidatesByName := make(map[string][]ProcessedTool)
	for _, connectionID := range connectionOrder {
		for _, pt := range toolsByConnection[connectionID] {
			candidatesByName[pt.Tool.Name] = append(candidatesByName[pt.Tool.Name], pt)
		}
	}

	if conflicts := findConflicts(candidatesByName, toolsByConnection, connectionOrder); len(conflicts) > 0 {
		return nil, formatConflictError(conflicts)
	}

	resolved := make(map[string]*ResolvedTool)
	for _, connectionID := range connectionOrder {
		for _, pt := range toolsByConnection[connectionID] {
			resolved[pt.Tool.Name] = &ResolvedTool{
				ResolvedName:    pt.Tool.Name,
				UpstreamName:    pt.UpstreamName,
				Description:     pt.Tool.Description,
				InputSchema:     pt.Tool.InputSchema,
				OutputSchema:    pt.Tool.OutputSchema,
				ConnectionID:    connectionID,
				StrategyApplied: vmcp.ConflictStrategyCustom,
			}
		}
	}

	logger.Infof("Custom strategy: %d unique tools after applying overrides", len(resolved))
	return resolved, nil
}

// conflict records one exposed name claimed by multiple connections.
type conflict struct {
	name          string
	connections   []string
	afterOverride bool
}

// findConflicts collects exposed names claimed more than once. A conflict
// where any claimant was renamed by an override is flagged separately so
// the error message points at the override rather than the upstreams.
func findConflicts(
	candidatesByName map[string][]ProcessedTool,
	toolsByConnection map[string][]ProcessedTool,
	connectionOrder []string,
) []conflict {
	var conflicts []conflict
	for name, candidates := range candidatesByName {
		if len(candidates) <= 1 {
			continue
		}
		c := conflict{name: name}
		for _, candidate := range candidates {
			c.connections = append(c.connections, findConnection(candidate, toolsByConnection, connectionOrder))
			if candidate.UpstreamName != candidate.Tool.Name {
				c.afterOverride = true
			}
		}
		sort.Strings(c.connections)
		conflicts = append(conflicts, c)
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].name < conflicts[j].name })
	return conflicts
}

func findConnection(
	candidate ProcessedTool, toolsByConnection map[string][]ProcessedTool, connectionOrder []string,
) string {
	for _, connectionID := range connectionOrder {
		for _, pt := range toolsByConnection[connectionID] {
			if pt.Tool.Name == candidate.Tool.Name && pt.UpstreamName == candidate.UpstreamName {
				return connectionID
			}
		}
	}
	return "unknown"
}

// formatConflictError builds a detailed error listing every unresolved
// collision.
func formatConflictError(conflicts []conflict) error {
	var sb strings.Builder
	sb.WriteString("unresolved tool name conflicts detected:\n")
	for _, c := range conflicts {
		if c.afterOverride {
			fmt.Fprintf(&sb, "  - %s: [%s] (collision after override)\n", c.name, strings.Join(c.connections, ", "))
		} else {
			fmt.Fprintf(&sb, "  - %s: [%s]\n", c.name, strings.Join(c.connections, ", "))
		}
	}
	sb.WriteString("\nAdd 'overrides' entries in the aggregation config to rename the colliding tools")
	return fmt.Errorf("%w: %s", vmcp.ErrAggregationConflict, sb.String())
}
