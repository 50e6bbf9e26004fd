// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/virtualmcp/gateway/pkg/audit"
	"github.com/virtualmcp/gateway/pkg/logger"
	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/conversion"
	"github.com/virtualmcp/gateway/pkg/vmcp/router"
)

// handlerFactory creates MCP request handlers that route passthrough
// requests to upstream connections. It bridges the SDK's handler signatures
// to the router and upstream client.
type handlerFactory struct {
	router    router.Router
	upstream  vmcp.UpstreamClient
	auditSink audit.Sink
	gateway   string
	strategy  string
}

func newHandlerFactory(
	rt router.Router, upstream vmcp.UpstreamClient, auditSink audit.Sink, gateway, strategy string,
) *handlerFactory {
	return &handlerFactory{
		router:    rt,
		upstream:  upstream,
		auditSink: auditSink,
		gateway:   gateway,
		strategy:  strategy,
	}
}

// toolHandler routes a tools/call to the owning upstream. The upstream's
// result is relayed with content, structured content, isError, and _meta
// intact; _meta from the client request is forwarded upstream.
func (f *handlerFactory) toolHandler(
	toolName string,
) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger.Debugf("Handling tool call: %s", toolName)

		target, err := f.router.RouteTool(ctx, toolName)
		if err != nil {
			f.audit(ctx, audit.CallKindInvocation, toolName, "", nil, nil, true, err.Error(), 0)
			if errors.Is(err, vmcp.ErrToolNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("tool not found: %s", toolName)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("routing error: %v", err)), nil
		}

		args := map[string]any{}
		if request.Params.Arguments != nil {
			var ok bool
			args, ok = request.Params.Arguments.(map[string]any)
			if !ok {
				return mcp.NewToolResultError(
					fmt.Sprintf("invalid arguments: expected object, got %T", request.Params.Arguments)), nil
			}
		}

		meta := conversion.FromMCPMeta(request.Params.Meta)

		start := time.Now()
		result, err := f.upstream.CallTool(ctx, target, toolName, args, meta)
		elapsed := time.Since(start)
		if err != nil {
			f.audit(ctx, audit.CallKindInvocation, toolName, target.ConnectionName, args, nil, true, err.Error(), elapsed)
			if errors.Is(err, vmcp.ErrUpstreamUnreachable) {
				return mcp.NewToolResultError(fmt.Sprintf("upstream unreachable: %v", err)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("tool call failed: %v", err)), nil
		}
		f.audit(ctx, audit.CallKindInvocation, toolName, target.ConnectionName, args, result, result.IsError, "", elapsed)

		return toolResultToMCP(result), nil
	}
}

// resourceHandler routes a resources/read to the owning upstream.
func (f *handlerFactory) resourceHandler(
	uri string, mimeType string,
) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		logger.Debugf("Handling resource read: %s", uri)

		target, err := f.router.RouteResource(ctx, uri)
		if err != nil {
			if errors.Is(err, router.ErrResourceNotFound) {
				return nil, fmt.Errorf("resource not found: %s", uri)
			}
			return nil, fmt.Errorf("routing error: %w", err)
		}

		result, err := f.upstream.ReadResource(ctx, target, uri)
		if err != nil {
			if errors.Is(err, vmcp.ErrUpstreamUnreachable) {
				return nil, fmt.Errorf("upstream unreachable: %w", err)
			}
			return nil, fmt.Errorf("resource read failed: %w", err)
		}

		resolved := result.MimeType
		if resolved == "" {
			resolved = mimeType
		}
		if resolved == "" {
			resolved = "application/octet-stream"
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: resolved,
				Text:     string(result.Contents),
			},
		}, nil
	}
}

// promptHandler routes a prompts/get to the owning upstream, translating
// renamed prompts back to their upstream names.
func (f *handlerFactory) promptHandler(
	promptName string,
) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		logger.Debugf("Handling prompt request: %s", promptName)

		target, err := f.router.RoutePrompt(ctx, promptName)
		if err != nil {
			if errors.Is(err, router.ErrPromptNotFound) {
				return nil, fmt.Errorf("prompt not found: %s", promptName)
			}
			return nil, fmt.Errorf("routing error: %w", err)
		}

		args := make(map[string]any, len(request.Params.Arguments))
		for k, v := range request.Params.Arguments {
			args[k] = v
		}

		result, err := f.upstream.GetPrompt(ctx, target, promptName, args)
		if err != nil {
			if errors.Is(err, vmcp.ErrUpstreamUnreachable) {
				return nil, fmt.Errorf("upstream unreachable: %w", err)
			}
			return nil, fmt.Errorf("prompt request failed: %w", err)
		}

		description := result.Description
		if description == "" {
			description = fmt.Sprintf("Prompt: %s", promptName)
		}

		return &mcp.GetPromptResult{
			Result: mcp.Result{
				Meta: conversion.ToMCPMeta(result.Meta),
			},
			Description: description,
			Messages: []mcp.PromptMessage{
				{
					Role:    mcp.RoleAssistant,
					Content: mcp.NewTextContent(result.Messages),
				},
			},
		}, nil
	}
}

func (f *handlerFactory) audit(
	ctx context.Context, callKind, tool, connection string,
	input, output any, isError bool, errorMessage string, duration time.Duration,
) {
	if f.auditSink == nil {
		return
	}
	entry := audit.NewEntry(f.gateway, f.strategy, callKind, tool)
	entry.Connection = connection
	entry.IsError = isError
	entry.ErrorMessage = errorMessage
	entry.Duration = duration
	entry.UserAgent = audit.UserAgentFromContext(ctx)
	if input != nil {
		if data, err := json.Marshal(input); err == nil {
			entry.Input = data
		}
	}
	if output != nil {
		if data, err := json.Marshal(output); err == nil {
			entry.Output = data
		}
	}
	f.auditSink.Emit(ctx, entry)
}

// toolResultToMCP converts an upstream tool result into the SDK type with
// _meta, structured content, and the isError flag preserved.
func toolResultToMCP(result *vmcp.ToolCallResult) *mcp.CallToolResult {
	mcpContent := make([]mcp.Content, len(result.Content))
	for i, content := range result.Content {
		mcpContent[i] = conversion.ToMCPContent(content)
	}
	return &mcp.CallToolResult{
		Result: mcp.Result{
			Meta: conversion.ToMCPMeta(result.Meta),
		},
		Content:           mcpContent,
		StructuredContent: result.StructuredContent,
		IsError:           result.IsError,
	}
}
