// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package metatools implements the synthetic tools that stand in for the
// real aggregated catalog under the smart_tool_selection and code_execution
// exposure strategies.
//
// Instead of advertising every upstream tool, the gateway exposes a small
// fixed surface (SEARCH_TOOLS, DESCRIBE_TOOLS, CALL_TOOL) that lets the
// client discover and invoke tools on demand. This keeps the advertised
// tool count constant regardless of catalog size, which is the token-saving
// mechanism of the non-passthrough strategies.
package metatools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/virtualmcp/gateway/pkg/audit"
	"github.com/virtualmcp/gateway/pkg/logger"
	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/router"
)

// Meta-tool names as advertised on the wire.
const (
	SearchToolsName   = "SEARCH_TOOLS"
	DescribeToolsName = "DESCRIBE_TOOLS"
	CallToolName      = "CALL_TOOL"
	RunCodeName       = "RUN_CODE"
)

// SearchToolsInput is the argument payload for SEARCH_TOOLS.
type SearchToolsInput struct {
	// Query is a free-text description of the desired tool.
	Query string `json:"query" description:"Natural language description or keywords for the tool to find"`
}

// SearchToolsOutput is the SEARCH_TOOLS result payload.
type SearchToolsOutput struct {
	// Results are the matching tools ranked by relevance.
	Results []SearchResult `json:"results"`

	// TokenMetrics quantifies the savings from returning only the matches
	// instead of the full catalog.
	TokenMetrics TokenMetrics `json:"token_metrics"`
}

// SearchResult is one ranked match from SEARCH_TOOLS.
type SearchResult struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
}

// DescribeToolsInput is the argument payload for DESCRIBE_TOOLS.
type DescribeToolsInput struct {
	// Names are the exposed tool names to describe.
	Names []string `json:"names" description:"Exposed tool names to fetch full schemas for"`
}

// DescribeToolsOutput is the DESCRIBE_TOOLS result payload. Unknown names
// are reported alongside the descriptions that were found; the call only
// fails when no name resolves at all.
type DescribeToolsOutput struct {
	Tools []ToolDescription `json:"tools"`

	// Unknown lists requested names absent from the catalog.
	Unknown []string `json:"unknown,omitempty"`
}

// ToolDescription is the full definition of one catalog tool.
type ToolDescription struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	InputSchema  map[string]any `json:"inputSchema,omitempty"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
}

// CallToolInput is the argument payload for CALL_TOOL.
type CallToolInput struct {
	// Name is the exposed tool name to invoke.
	Name string `json:"name" description:"Exposed name of the tool to call"`

	// Args are the arguments forwarded to the tool.
	Args map[string]any `json:"args,omitempty" description:"Arguments to pass to the tool"`
}

// Dispatcher executes meta-tool invocations against a fixed catalog
// snapshot. Search and describe operate purely on cached metadata and never
// touch an upstream; only CALL_TOOL reaches out.
type Dispatcher struct {
	tools    []vmcp.Tool
	byName   map[string]*vmcp.Tool
	router   router.Router
	upstream vmcp.UpstreamClient

	auditSink audit.Sink
	gateway   string
	strategy  string

	tokenCounts    map[string]int
	baselineTokens int
}

// NewDispatcher creates a Dispatcher over the given catalog snapshot.
// Token estimates for the search metrics are precomputed here; the catalog
// is immutable for the dispatcher's lifetime.
func NewDispatcher(
	tools []vmcp.Tool,
	rt router.Router,
	upstream vmcp.UpstreamClient,
	auditSink audit.Sink,
	gateway, strategy string,
) *Dispatcher {
	byName := make(map[string]*vmcp.Tool, len(tools))
	counter := NewJSONByteCounter()
	tokenCounts := make(map[string]int, len(tools))
	var baseline int
	for i := range tools {
		tool := &tools[i]
		byName[tool.Name] = tool
		tc := counter.CountTokens(*tool)
		tokenCounts[tool.Name] = tc
		baseline += tc
	}
	return &Dispatcher{
		tools:          tools,
		byName:         byName,
		router:         rt,
		upstream:       upstream,
		auditSink:      auditSink,
		gateway:        gateway,
		strategy:       strategy,
		tokenCounts:    tokenCounts,
		baselineTokens: baseline,
	}
}

// SearchTools ranks the catalog against the query using lexical matching
// (substring and token overlap over names and descriptions). It never
// issues upstream calls.
func (d *Dispatcher) SearchTools(ctx context.Context, input SearchToolsInput) (*SearchToolsOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", vmcp.ErrInvalidInput)
	}

	results := rankTools(d.tools, input.Query)

	matchedNames := make([]string, len(results))
	for i, r := range results {
		matchedNames[i] = r.Name
	}

	out := &SearchToolsOutput{
		Results:      results,
		TokenMetrics: computeTokenMetrics(d.baselineTokens, d.tokenCounts, matchedNames),
	}
	d.emitAudit(ctx, audit.CallKindDiscovery, SearchToolsName, "", input, out, false, "", 0,
		map[string]any{"result_count": len(results)})

	return out, nil
}

// DescribeTools returns full schemas for the named tools. Unknown names are
// collected into the Unknown list rather than failing the call; only when
// every requested name is unknown does the call fail.
func (d *Dispatcher) DescribeTools(ctx context.Context, input DescribeToolsInput) (*DescribeToolsOutput, error) {
	if len(input.Names) == 0 {
		return nil, fmt.Errorf("%w: names is required", vmcp.ErrInvalidInput)
	}

	out := &DescribeToolsOutput{}
	for _, name := range input.Names {
		tool, ok := d.byName[name]
		if !ok {
			out.Unknown = append(out.Unknown, name)
			continue
		}
		out.Tools = append(out.Tools, ToolDescription{
			Name:         tool.Name,
			Description:  tool.Description,
			InputSchema:  tool.InputSchema,
			OutputSchema: tool.OutputSchema,
		})
	}

	if len(out.Tools) == 0 {
		return nil, fmt.Errorf("%w: none of the requested tools exist: %s",
			vmcp.ErrToolNotFound, strings.Join(out.Unknown, ", "))
	}
	if len(out.Unknown) > 0 {
		logger.Debugf("DESCRIBE_TOOLS partial result: %d found, %d unknown", len(out.Tools), len(out.Unknown))
	}

	d.emitAudit(ctx, audit.CallKindDiscovery, DescribeToolsName, "", input, out, false, "", 0,
		map[string]any{"described_count": len(out.Tools), "unknown_count": len(out.Unknown)})
	return out, nil
}

// CallTool resolves the exposed name through the routing table and
// delegates to the upstream client. The upstream's result, including its
// isError flag, is relayed unchanged. An unknown name fails before any
// upstream call is made.
func (d *Dispatcher) CallTool(ctx context.Context, input CallToolInput, meta map[string]any) (*vmcp.ToolCallResult, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", vmcp.ErrInvalidInput)
	}

	target, err := d.router.RouteTool(ctx, input.Name)
	if err != nil {
		d.emitAudit(ctx, audit.CallKindInvocation, input.Name, "", input, nil, true, err.Error(), 0, nil)
		return nil, err
	}

	start := time.Now()
	result, err := d.upstream.CallTool(ctx, target, input.Name, input.Args, meta)
	elapsed := time.Since(start)
	if err != nil {
		d.emitAudit(ctx, audit.CallKindInvocation, input.Name, target.ConnectionName,
			input, nil, true, err.Error(), elapsed, nil)
		return nil, err
	}

	d.emitAudit(ctx, audit.CallKindInvocation, input.Name, target.ConnectionName,
		input, result, result.IsError, "", elapsed, nil)
	return result, nil
}

func (d *Dispatcher) emitAudit(
	ctx context.Context, callKind, tool, connection string,
	input, output any, isError bool, errorMessage string, duration time.Duration,
	properties map[string]any,
) {
	if d.auditSink == nil {
		return
	}
	entry := audit.NewEntry(d.gateway, d.strategy, callKind, tool)
	entry.Connection = connection
	entry.IsError = isError
	entry.ErrorMessage = errorMessage
	entry.Duration = duration
	entry.UserAgent = audit.UserAgentFromContext(ctx)
	entry.Properties = properties
	if data, err := json.Marshal(input); err == nil {
		entry.Input = data
	}
	if output != nil {
		if data, err := json.Marshal(output); err == nil {
			entry.Output = data
		}
	}
	d.auditSink.Emit(ctx, entry)
}
