// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/conversion"
	"github.com/virtualmcp/gateway/pkg/vmcp/metatools"
	"github.com/virtualmcp/gateway/pkg/vmcp/sandbox"
	"github.com/virtualmcp/gateway/pkg/vmcp/schema"
)

// selectionTools builds the SDK tools for the smart_tool_selection strategy:
// SEARCH_TOOLS, DESCRIBE_TOOLS, and CALL_TOOL backed by the dispatcher.
func selectionTools(dispatcher *metatools.Dispatcher) []mcpserver.ServerTool {
	defs := metatools.SelectionToolDefinitions()
	handlers := map[string]mcpserver.ToolHandlerFunc{
		metatools.SearchToolsName:   searchToolsHandler(dispatcher),
		metatools.DescribeToolsName: describeToolsHandler(dispatcher),
		metatools.CallToolName:      callToolHandler(dispatcher),
	}

	tools := make([]mcpserver.ServerTool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, mcpserver.ServerTool{Tool: def, Handler: handlers[def.Name]})
	}
	return tools
}

// executionTools builds the SDK tools for the code_execution strategy: a
// single RUN_CODE tool backed by the sandbox, which bridges back into the
// dispatcher for tool calls issued by sandboxed code.
func executionTools(sb *sandbox.Sandbox) []mcpserver.ServerTool {
	defs := metatools.ExecutionToolDefinitions()
	return []mcpserver.ServerTool{
		{Tool: defs[0], Handler: runCodeHandler(sb)},
	}
}

func searchToolsHandler(dispatcher *metatools.Dispatcher) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := schema.Translate[metatools.SearchToolsInput](request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		output, err := dispatcher.SearchTools(ctx, input)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("SEARCH_TOOLS failed: %v", err)), nil
		}
		return mcp.NewToolResultStructuredOnly(output), nil
	}
}

func describeToolsHandler(dispatcher *metatools.Dispatcher) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := schema.Translate[metatools.DescribeToolsInput](request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		output, err := dispatcher.DescribeTools(ctx, input)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("DESCRIBE_TOOLS failed: %v", err)), nil
		}
		return mcp.NewToolResultStructuredOnly(output), nil
	}
}

func callToolHandler(dispatcher *metatools.Dispatcher) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := schema.Translate[metatools.CallToolInput](request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		meta := conversion.FromMCPMeta(request.Params.Meta)
		result, err := dispatcher.CallTool(ctx, input, meta)
		if err != nil {
			// The error text is the model's only feedback channel for
			// correcting a bad tool name or arguments.
			return mcp.NewToolResultError(fmt.Sprintf("CALL_TOOL failed: %v", err)), nil
		}
		return toolResultToMCP(result), nil
	}
}

func runCodeHandler(sb *sandbox.Sandbox) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := schema.Translate[metatools.RunCodeInput](request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		value, err := sb.Run(ctx, input.Code)
		if err != nil {
			switch {
			case errors.Is(err, vmcp.ErrSandboxTimeout),
				errors.Is(err, vmcp.ErrSandboxExecution),
				errors.Is(err, vmcp.ErrInvalidInput):
				return runCodeErrorResult(err), nil
			default:
				return nil, err
			}
		}

		return mcp.NewToolResultStructuredOnly(map[string]any{"result": value}), nil
	}
}

// runCodeErrorResult shapes sandbox failures as {error: string} tool results
// with isError set, keeping execution failures on the tool-result channel.
func runCodeErrorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(err.Error())},
		StructuredContent: map[string]any{"error": err.Error()},
		IsError:           true,
	}
}
