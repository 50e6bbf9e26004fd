// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"github.com/gobwas/glob"

	"github.com/virtualmcp/gateway/pkg/logger"
	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/config"
)

// processConnectionTools applies per-connection overrides and the tool name
// filter, in that order. The filter matches exposed (post-override) names.
// The returned ProcessedTools carry the original upstream names so routing
// can translate back.
func processConnectionTools(
	connectionID string, tools []vmcp.Tool, toolConfig *config.ConnectionToolConfig,
) []ProcessedTool {
	processed := make([]ProcessedTool, 0, len(tools))
	for _, tool := range tools {
		upstreamName := tool.Name
		if toolConfig != nil {
			if override, ok := toolConfig.Overrides[tool.Name]; ok && override != nil {
				if override.Name != "" {
					tool.Name = override.Name
				}
				if override.Description != "" {
					tool.Description = override.Description
				}
			}
		}
		processed = append(processed, ProcessedTool{Tool: tool, UpstreamName: upstreamName})
	}

	if toolConfig == nil || len(toolConfig.Filter) == 0 {
		return processed
	}

	allowed := make(map[string]bool, len(toolConfig.Filter))
	for _, name := range toolConfig.Filter {
		allowed[name] = true
	}

	filtered := make([]ProcessedTool, 0, len(processed))
	for _, pt := range processed {
		if allowed[pt.Tool.Name] {
			filtered = append(filtered, pt)
			continue
		}
		logger.Debugf("Tool %s from connection %s excluded by filter", pt.Tool.Name, connectionID)
	}
	return filtered
}

// processConnectionResources applies the connection's resource URI glob
// filters. An empty filter list keeps every resource. Patterns are
// validated at config load time; compile failures here only skip the
// pattern.
func processConnectionResources(
	connectionID string, resources []vmcp.Resource, toolConfig *config.ConnectionToolConfig,
) []vmcp.Resource {
	if toolConfig == nil || len(toolConfig.ResourceFilters) == 0 {
		return resources
	}

	globs := make([]glob.Glob, 0, len(toolConfig.ResourceFilters))
	for _, pattern := range toolConfig.ResourceFilters {
		g, err := glob.Compile(pattern)
		if err != nil {
			logger.Warnf("Skipping invalid resource filter %q for connection %s: %v", pattern, connectionID, err)
			continue
		}
		globs = append(globs, g)
	}

	filtered := make([]vmcp.Resource, 0, len(resources))
	for _, resource := range resources {
		for _, g := range globs {
			if g.Match(resource.URI) {
				filtered = append(filtered, resource)
				break
			}
		}
	}
	return filtered
}

// processConnectionPrompts applies the connection's prompt name filter.
// An empty filter list keeps every prompt.
func processConnectionPrompts(
	connectionID string, prompts []vmcp.Prompt, toolConfig *config.ConnectionToolConfig,
) []vmcp.Prompt {
	if toolConfig == nil || len(toolConfig.PromptFilter) == 0 {
		return prompts
	}

	allowed := make(map[string]bool, len(toolConfig.PromptFilter))
	for _, name := range toolConfig.PromptFilter {
		allowed[name] = true
	}

	filtered := make([]vmcp.Prompt, 0, len(prompts))
	for _, prompt := range prompts {
		if allowed[prompt.Name] {
			filtered = append(filtered, prompt)
			continue
		}
		logger.Debugf("Prompt %s from connection %s excluded by filter", prompt.Name, connectionID)
	}
	return filtered
}
