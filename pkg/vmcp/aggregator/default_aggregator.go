// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/virtualmcp/gateway/pkg/logger"
	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/cache"
	"github.com/virtualmcp/gateway/pkg/vmcp/config"
)

// maxConcurrentQueries bounds parallel upstream capability queries.
const maxConcurrentQueries = 10

// defaultAggregator implements Aggregator. It queries connections in
// parallel through the catalog cache, tolerates individual failures, and
// merges the survivors deterministically.
type defaultAggregator struct {
	registry         vmcp.ConnectionRegistry
	upstream         vmcp.UpstreamClient
	catalogCache     cache.CatalogCache
	conflictResolver ConflictResolver
	conflictStrategy vmcp.ConflictResolutionStrategy
	toolConfigMap    map[string]*config.ConnectionToolConfig
}

// NewDefaultAggregator creates the default aggregator.
// toolConfigs carries per-connection filtering and overrides.
func NewDefaultAggregator(
	registry vmcp.ConnectionRegistry,
	upstream vmcp.UpstreamClient,
	catalogCache cache.CatalogCache,
	conflictResolver ConflictResolver,
	aggregationConfig *config.AggregationConfig,
) Aggregator {
	toolConfigMap := make(map[string]*config.ConnectionToolConfig)
	strategy := vmcp.ConflictStrategyDeduplicate
	if aggregationConfig != nil {
		for _, tc := range aggregationConfig.Tools {
			if tc != nil {
				toolConfigMap[tc.Connection] = tc
			}
		}
		if aggregationConfig.ConflictResolution != "" {
			strategy = vmcp.ConflictResolutionStrategy(aggregationConfig.ConflictResolution)
		}
	}

	return &defaultAggregator{
		registry:         registry,
		upstream:         upstream,
		catalogCache:     catalogCache,
		conflictResolver: conflictResolver,
		conflictStrategy: strategy,
		toolConfigMap:    toolConfigMap,
	}
}

// QueryCapabilities fetches one connection's capabilities, cache first.
// A cache miss queries the upstream and repopulates the cache; filters and
// overrides apply to the result either way.
func (a *defaultAggregator) QueryCapabilities(
	ctx context.Context, conn *vmcp.Connection,
) (*ConnectionCapabilities, error) {
	caps, err := a.catalogCache.Get(ctx, conn.Name)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warnf("Catalog cache read failed for connection %s: %v", conn.Name, err)
		}
		caps, err = a.upstream.ListCapabilities(ctx, vmcp.ConnectionToTarget(conn))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConnectionQueryFailed, conn.Name, err)
		}
		if err := a.catalogCache.Set(ctx, conn.Name, caps); err != nil {
			logger.Warnf("Catalog cache write failed for connection %s: %v", conn.Name, err)
		}
	} else {
		logger.Debugf("Catalog cache hit for connection %s", conn.Name)
	}

	toolConfig := a.toolConfigMap[conn.Name]
	result := &ConnectionCapabilities{
		ConnectionID: conn.Name,
		Tools:        processConnectionTools(conn.Name, caps.Tools, toolConfig),
		Resources:    processConnectionResources(conn.Name, caps.Resources, toolConfig),
		Prompts:      processConnectionPrompts(conn.Name, caps.Prompts, toolConfig),
	}

	logger.Debugf("Connection %s: %d tools (after filtering/overrides), %d resources, %d prompts",
		conn.Name, len(result.Tools), len(result.Resources), len(result.Prompts))
	return result, nil
}

// queryAllCapabilities queries every connection in parallel. Individual
// failures are logged and skipped; only zero survivors is an error.
func (a *defaultAggregator) queryAllCapabilities(
	ctx context.Context, conns []*vmcp.Connection,
) (map[string]*ConnectionCapabilities, error) {
	logger.Infof("Querying capabilities from %d connections", len(conns))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentQueries)

	var mu sync.Mutex
	capabilities := make(map[string]*ConnectionCapabilities)

	for _, conn := range conns {
		g.Go(func() error {
			caps, err := a.QueryCapabilities(ctx, conn)
			if err != nil {
				// One bad upstream must not take the whole catalog down.
				logger.Warnf("Failed to query connection %s: %v", conn.Name, err)
				return nil
			}
			mu.Lock()
			capabilities[conn.Name] = caps
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("capability queries failed: %w", err)
	}
	if len(capabilities) == 0 {
		return nil, ErrNoConnections
	}

	logger.Infof("Successfully queried %d/%d connections", len(capabilities), len(conns))
	return capabilities, nil
}

// ResolveConflicts applies the collision strategy to tools and prompts and
// deduplicates resources by URI.
func (a *defaultAggregator) ResolveConflicts(
	ctx context.Context, capabilities map[string]*ConnectionCapabilities,
) (*ResolvedCapabilities, error) {
	logger.Debugf("Resolving conflicts across %d connections", len(capabilities))

	order := a.connectionOrder(ctx, capabilities)

	toolsByConnection := make(map[string][]ProcessedTool, len(capabilities))
	for connectionID, caps := range capabilities {
		toolsByConnection[connectionID] = caps.Tools
	}

	resolvedTools, err := a.conflictResolver.ResolveToolConflicts(ctx, toolsByConnection, order)
	if err != nil {
		return nil, fmt.Errorf("conflict resolution failed: %w", err)
	}

	resolved := &ResolvedCapabilities{
		Tools:     resolvedTools,
		Resources: resolveResources(capabilities, order),
		Prompts:   a.resolvePrompts(capabilities, order),
	}

	logger.Debugf("Resolved %d unique tools, %d resources, %d prompts",
		len(resolved.Tools), len(resolved.Resources), len(resolved.Prompts))
	return resolved, nil
}

// connectionOrder returns the surviving connections in configuration order
// so order-dependent strategies behave the same on every aggregation pass.
func (a *defaultAggregator) connectionOrder(
	ctx context.Context, capabilities map[string]*ConnectionCapabilities,
) []string {
	conns, err := a.registry.List(ctx)
	if err != nil {
		// Fall back to sorted IDs; still deterministic.
		ids := make([]string, 0, len(capabilities))
		for id := range capabilities {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids
	}
	order := make([]string, 0, len(conns))
	for _, conn := range conns {
		if _, ok := capabilities[conn.Name]; ok {
			order = append(order, conn.Name)
		}
	}
	return order
}

// resolveResources deduplicates resources by URI, first connection wins.
// URIs are self-namespacing so no renaming strategy applies to them.
func resolveResources(capabilities map[string]*ConnectionCapabilities, order []string) []vmcp.Resource {
	seen := make(map[string]string)
	var resources []vmcp.Resource
	for _, connectionID := range order {
		for _, resource := range capabilities[connectionID].Resources {
			if first, ok := seen[resource.URI]; ok {
				logger.Warnf("Resource %s from connection %s shadowed by connection %s",
					resource.URI, connectionID, first)
				continue
			}
			seen[resource.URI] = connectionID
			resources = append(resources, resource)
		}
	}
	return resources
}

// resolvePrompts applies the collision strategy to prompt names. prefix_all
// prefixes them like tools; the other strategies keep the first occurrence.
func (a *defaultAggregator) resolvePrompts(
	capabilities map[string]*ConnectionCapabilities, order []string,
) map[string]*ResolvedPrompt {
	resolved := make(map[string]*ResolvedPrompt)
	for _, connectionID := range order {
		for _, prompt := range capabilities[connectionID].Prompts {
			exposedName := prompt.Name
			if a.conflictStrategy == vmcp.ConflictStrategyPrefixAll {
				exposedName = fmt.Sprintf("%s_%s", connectionID, prompt.Name)
			}
			if existing, ok := resolved[exposedName]; ok {
				logger.Warnf("Prompt %s from connection %s shadowed by connection %s",
					exposedName, connectionID, existing.ConnectionID)
				continue
			}
			resolved[exposedName] = &ResolvedPrompt{
				ResolvedName: exposedName,
				UpstreamName: prompt.Name,
				Description:  prompt.Description,
				Arguments:    prompt.Arguments,
				ConnectionID: connectionID,
			}
		}
	}
	return resolved
}

// MergeCapabilities produces the final sorted catalog and routing table.
func (a *defaultAggregator) MergeCapabilities(
	ctx context.Context, resolved *ResolvedCapabilities,
) (*AggregatedCapabilities, error) {
	routingTable := &vmcp.RoutingTable{
		Tools:     make(map[string]*vmcp.ConnectionTarget),
		Resources: make(map[string]*vmcp.ConnectionTarget),
		Prompts:   make(map[string]*vmcp.ConnectionTarget),
	}

	conflictsResolved := 0

	tools := make([]vmcp.Tool, 0, len(resolved.Tools))
	for _, name := range sortedToolNames(resolved.Tools) {
		rt := resolved.Tools[name]
		tools = append(tools, vmcp.Tool{
			Name:         rt.ResolvedName,
			Description:  rt.Description,
			InputSchema:  rt.InputSchema,
			OutputSchema: rt.OutputSchema,
			ConnectionID: rt.ConnectionID,
		})
		target, err := a.targetFor(ctx, rt.ConnectionID)
		if err != nil {
			return nil, err
		}
		if rt.ResolvedName != rt.UpstreamName {
			target.OriginalCapabilityName = rt.UpstreamName
			conflictsResolved++
		}
		routingTable.Tools[rt.ResolvedName] = target
	}

	resources := make([]vmcp.Resource, len(resolved.Resources))
	copy(resources, resolved.Resources)
	sort.Slice(resources, func(i, j int) bool { return resources[i].URI < resources[j].URI })
	for _, resource := range resources {
		target, err := a.targetFor(ctx, resource.ConnectionID)
		if err != nil {
			return nil, err
		}
		routingTable.Resources[resource.URI] = target
	}

	promptNames := make([]string, 0, len(resolved.Prompts))
	for name := range resolved.Prompts {
		promptNames = append(promptNames, name)
	}
	sort.Strings(promptNames)

	prompts := make([]vmcp.Prompt, 0, len(resolved.Prompts))
	for _, name := range promptNames {
		rp := resolved.Prompts[name]
		prompts = append(prompts, vmcp.Prompt{
			Name:         rp.ResolvedName,
			Description:  rp.Description,
			Arguments:    rp.Arguments,
			ConnectionID: rp.ConnectionID,
		})
		target, err := a.targetFor(ctx, rp.ConnectionID)
		if err != nil {
			return nil, err
		}
		if rp.ResolvedName != rp.UpstreamName {
			target.OriginalCapabilityName = rp.UpstreamName
			conflictsResolved++
		}
		routingTable.Prompts[rp.ResolvedName] = target
	}

	aggregated := &AggregatedCapabilities{
		Tools:        tools,
		Resources:    resources,
		Prompts:      prompts,
		RoutingTable: routingTable,
		Metadata: &AggregationMetadata{
			ToolCount:         len(tools),
			ResourceCount:     len(resources),
			PromptCount:       len(prompts),
			ConflictsResolved: conflictsResolved,
			ConflictStrategy:  a.conflictStrategy,
		},
	}

	logger.Infof("Merged capabilities: %d tools, %d resources, %d prompts",
		aggregated.Metadata.ToolCount, aggregated.Metadata.ResourceCount, aggregated.Metadata.PromptCount)
	return aggregated, nil
}

// targetFor builds a fresh ConnectionTarget for one capability. Targets are
// per-capability because renamed capabilities carry their upstream name on
// the target. Capabilities are keyed by connection name, the same key the
// registry indexes by, so a failed lookup means the catalog and registry
// are out of sync and aggregation must not proceed.
func (a *defaultAggregator) targetFor(ctx context.Context, connectionID string) (*vmcp.ConnectionTarget, error) {
	conn, err := a.registry.Get(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("connection %s not found in registry: %w", connectionID, err)
	}
	return vmcp.ConnectionToTarget(conn), nil
}

// Aggregate runs the full pipeline: query all connections, resolve
// collisions, merge.
func (a *defaultAggregator) Aggregate(ctx context.Context) (*AggregatedCapabilities, error) {
	conns, err := a.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	logger.Infof("Starting capability aggregation for %d connections", len(conns))

	capabilities, err := a.queryAllCapabilities(ctx, conns)
	if err != nil {
		return nil, err
	}

	resolved, err := a.ResolveConflicts(ctx, capabilities)
	if err != nil {
		return nil, err
	}

	aggregated, err := a.MergeCapabilities(ctx, resolved)
	if err != nil {
		return nil, err
	}
	aggregated.Metadata.ConnectionCount = len(capabilities)

	logger.Infof("Capability aggregation complete: %d connections, %d tools, %d resources, %d prompts",
		aggregated.Metadata.ConnectionCount, aggregated.Metadata.ToolCount,
		aggregated.Metadata.ResourceCount, aggregated.Metadata.PromptCount)
	return aggregated, nil
}
