// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// capabilityAdapter converts aggregated catalog entries to SDK types with
// routing handlers attached. It is the only place that knows both the
// catalog's shape and the SDK's registration types.
type capabilityAdapter struct {
	handlers *handlerFactory
}

func newCapabilityAdapter(handlers *handlerFactory) *capabilityAdapter {
	return &capabilityAdapter{handlers: handlers}
}

func (a *capabilityAdapter) toSDKTools(tools []vmcp.Tool) ([]mcpserver.ServerTool, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	sdkTools := make([]mcpserver.ServerTool, 0, len(tools))
	for _, tool := range tools {
		schemaJSON, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema for tool %s: %w", tool.Name, err)
		}

		sdkTools = append(sdkTools, mcpserver.ServerTool{
			Tool: mcp.Tool{
				Name:           tool.Name,
				Description:    tool.Description,
				RawInputSchema: schemaJSON,
			},
			Handler: a.handlers.toolHandler(tool.Name),
		})
	}
	return sdkTools, nil
}

func (a *capabilityAdapter) toSDKResources(resources []vmcp.Resource) []mcpserver.ServerResource {
	if len(resources) == 0 {
		return nil
	}

	sdkResources := make([]mcpserver.ServerResource, 0, len(resources))
	for _, resource := range resources {
		sdkResources = append(sdkResources, mcpserver.ServerResource{
			Resource: mcp.Resource{
				URI:         resource.URI,
				Name:        resource.Name,
				Description: resource.Description,
				MIMEType:    resource.MimeType,
			},
			Handler: a.handlers.resourceHandler(resource.URI, resource.MimeType),
		})
	}
	return sdkResources
}

func (a *capabilityAdapter) toSDKPrompts(prompts []vmcp.Prompt) []mcpserver.ServerPrompt {
	if len(prompts) == 0 {
		return nil
	}

	sdkPrompts := make([]mcpserver.ServerPrompt, 0, len(prompts))
	for _, prompt := range prompts {
		mcpArguments := make([]mcp.PromptArgument, len(prompt.Arguments))
		for i, arg := range prompt.Arguments {
			mcpArguments[i] = mcp.PromptArgument{
				Name:        arg.Name,
				Description: arg.Description,
				Required:    arg.Required,
			}
		}

		sdkPrompts = append(sdkPrompts, mcpserver.ServerPrompt{
			Prompt: mcp.Prompt{
				Name:        prompt.Name,
				Description: prompt.Description,
				Arguments:   mcpArguments,
			},
			Handler: a.handlers.promptHandler(prompt.Name),
		})
	}
	return sdkPrompts
}
