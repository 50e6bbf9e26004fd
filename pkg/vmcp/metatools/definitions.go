// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package metatools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/virtualmcp/gateway/pkg/vmcp/schema"
)

// Input schemas are generated once at startup so broken types panic early.
var (
	searchToolsInputSchema   = schema.GenerateRaw[SearchToolsInput]()
	describeToolsInputSchema = schema.GenerateRaw[DescribeToolsInput]()
	callToolInputSchema      = schema.GenerateRaw[CallToolInput]()
)

// RunCodeInput is the argument payload for RUN_CODE.
type RunCodeInput struct {
	// Code is the Lua source to execute inside the sandbox.
	Code string `json:"code" description:"Lua code to execute. Use call_tool(name, args) to invoke catalog tools and emit(value) to set the result."`
}

var runCodeInputSchema = schema.GenerateRaw[RunCodeInput]()

// SelectionToolDefinitions returns the three meta-tools advertised under
// the smart_tool_selection strategy.
func SelectionToolDefinitions() []mcp.Tool {
	return []mcp.Tool{
		{
			Name: SearchToolsName,
			Description: "Search the tool catalog by description or keywords. " +
				"Returns matching tool names and short descriptions ranked by relevance.",
			RawInputSchema: cloneRaw(searchToolsInputSchema),
		},
		{
			Name: DescribeToolsName,
			Description: "Fetch the full input and output schemas for the named tools. " +
				"Unknown names are reported in the result rather than failing the call.",
			RawInputSchema: cloneRaw(describeToolsInputSchema),
		},
		{
			Name:           CallToolName,
			Description:    "Invoke a catalog tool by its exposed name with the given arguments.",
			RawInputSchema: cloneRaw(callToolInputSchema),
		},
	}
}

// ExecutionToolDefinitions returns the single meta-tool advertised under
// the code_execution strategy.
func ExecutionToolDefinitions() []mcp.Tool {
	return []mcp.Tool{
		{
			Name: RunCodeName,
			Description: "Execute Lua code in a sandbox that can invoke any catalog tool via " +
				"call_tool(name, args). The emitted value is returned as the result.",
			RawInputSchema: cloneRaw(runCodeInputSchema),
		},
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
