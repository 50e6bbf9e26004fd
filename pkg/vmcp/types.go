// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package vmcp

import (
	"context"
	"time"
)

// This file contains shared domain types used across the vmcp subpackages.
// These are core concepts that cross package boundaries; keeping them at the
// package root avoids circular imports between aggregator, router and client.

// Transport kind constants for upstream connections.
const (
	// TransportSSE is the Server-Sent Events transport protocol.
	TransportSSE = "sse"

	// TransportStreamableHTTP is the streamable HTTP transport protocol.
	TransportStreamableHTTP = "streamable-http"

	// TransportStdio is a subprocess transport. It is part of the connection
	// data model but not supported by the network upstream client.
	TransportStdio = "stdio"
)

// ConnectionAuth describes how the gateway authenticates to one upstream
// MCP server. If nil, the connection requires no authentication.
type ConnectionAuth struct {
	// Type is the auth strategy name: "unauthenticated" or "header_injection".
	Type string

	// HeaderName is the HTTP header to inject (header_injection only),
	// e.g. "Authorization" or "X-API-Key".
	HeaderName string

	// HeaderValue is the credential to inject. Resolved from the environment
	// at config load time; never written back to configuration files.
	HeaderValue string
}

// Connection is a configured reference to one upstream MCP server.
type Connection struct {
	// Name is the unique, stable identifier for this connection. It keys
	// registry lookups and serves as the prefix namespace under the
	// prefix_all collision strategy.
	Name string

	// BaseURL is the upstream's MCP endpoint URL.
	BaseURL string

	// TransportType is the MCP transport protocol ("sse", "streamable-http").
	TransportType string

	// Auth is the outgoing authentication configuration. Nil means none.
	Auth *ConnectionAuth

	// Timeout bounds every call against this upstream. Zero means the
	// client default (30s).
	Timeout time.Duration

	// Metadata stores additional connection information.
	Metadata map[string]string

	// LastUpdated is when the connection configuration last changed.
	// An administrative change invalidates the cached catalog.
	LastUpdated time.Time
}

// ConnectionTarget identifies a specific upstream connection and carries the
// information needed to forward one capability request to it.
type ConnectionTarget struct {
	// ConnectionID is the unique identifier of the upstream connection.
	ConnectionID string

	// ConnectionName is the human-readable connection name.
	ConnectionName string

	// BaseURL is the upstream's MCP endpoint URL.
	BaseURL string

	// TransportType is the MCP transport protocol.
	TransportType string

	// OriginalCapabilityName is the capability's name as known by the
	// upstream. Populated only when collision resolution renamed the
	// capability (prefix_all, custom). Use UpstreamCapabilityName when
	// forwarding; this field is empty for capabilities that kept their name.
	OriginalCapabilityName string

	// Auth is the outgoing authentication configuration. Nil means none.
	Auth *ConnectionAuth

	// Timeout bounds calls against this upstream. Zero means client default.
	Timeout time.Duration

	// Metadata stores additional connection information.
	Metadata map[string]string
}

// UpstreamCapabilityName returns the name to use when forwarding a request
// to the upstream. If collision resolution renamed the capability this
// returns the original name the upstream expects; otherwise the exposed
// name is returned as-is.
func (t *ConnectionTarget) UpstreamCapabilityName(exposedName string) string {
	if t.OriginalCapabilityName != "" {
		return t.OriginalCapabilityName
	}
	return exposedName
}

// Tool represents an MCP tool capability.
type Tool struct {
	// Name is the exposed tool name (unique within an aggregated catalog).
	Name string

	// Description describes what the tool does.
	Description string

	// InputSchema is the JSON Schema for tool parameters.
	InputSchema map[string]any

	// OutputSchema is the JSON Schema for tool output (optional).
	OutputSchema map[string]any

	// ConnectionID identifies the connection that provides this tool.
	ConnectionID string
}

// Resource represents an MCP resource capability.
type Resource struct {
	// URI is the resource URI.
	URI string

	// Name is a human-readable name.
	Name string

	// Description describes the resource.
	Description string

	// MimeType is the resource's MIME type (optional).
	MimeType string

	// ConnectionID identifies the connection that provides this resource.
	ConnectionID string
}

// Prompt represents an MCP prompt capability.
type Prompt struct {
	// Name is the prompt name.
	Name string

	// Description describes the prompt.
	Description string

	// Arguments are the prompt parameters.
	Arguments []PromptArgument

	// ConnectionID identifies the connection that provides this prompt.
	ConnectionID string
}

// PromptArgument represents a prompt parameter.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// Content represents MCP content (text, image, audio, embedded resource).
// Used by ToolCallResult to preserve the full content structure from
// upstreams without flattening.
type Content struct {
	// Type indicates the content type: "text", "image", "audio", "resource".
	Type string

	// Text is the content text (for text content).
	Text string

	// Data is the base64-encoded data (for image/audio content).
	Data string

	// MimeType is the MIME type (for image/audio content).
	MimeType string

	// URI is the resource URI (for embedded resources).
	URI string
}

// ToolCallResult wraps a tool call response with metadata. It preserves both
// the tool output and the _meta field from the upstream MCP server so the
// gateway can relay results verbatim.
type ToolCallResult struct {
	// Content is the tool output as returned by the upstream.
	Content []Content

	// StructuredContent is structured output when the upstream provides it.
	StructuredContent map[string]any

	// IsError indicates the upstream reported a tool-level failure.
	// The gateway relays this flag unchanged; it never synthesizes success.
	IsError bool

	// Meta contains protocol-level metadata from the upstream (_meta field).
	Meta map[string]any
}

// ResourceReadResult wraps a resource read response.
type ResourceReadResult struct {
	// Contents is the concatenated resource data. Multiple contents are
	// concatenated directly; blob contents are base64-decoded first.
	Contents []byte

	// MimeType is the content type of the resource.
	MimeType string

	// Meta contains protocol-level metadata from the upstream (_meta field).
	Meta map[string]any
}

// PromptGetResult wraps a prompt response.
type PromptGetResult struct {
	// Messages is the concatenated prompt text from all messages.
	Messages string

	// Description is an optional description of the prompt.
	Description string

	// Meta contains protocol-level metadata from the upstream (_meta field).
	Meta map[string]any
}

// RoutingTable is the reverse index from exposed capability names back to
// their originating connections. It is the output of aggregation and the
// input to the router. Produced fresh per aggregation and never mutated in
// place; concurrent requests always see a complete table.
type RoutingTable struct {
	// Tools maps exposed tool names to their connection targets.
	// After collision resolution, exposed names are unique.
	Tools map[string]*ConnectionTarget

	// Resources maps resource URIs to their connection targets.
	Resources map[string]*ConnectionTarget

	// Prompts maps prompt names to their connection targets.
	Prompts map[string]*ConnectionTarget
}

// ConflictResolutionStrategy defines how capability name collisions across
// connections are handled during aggregation.
type ConflictResolutionStrategy string

const (
	// ConflictStrategyDeduplicate keeps the first occurrence in connection
	// order and drops later duplicates.
	ConflictStrategyDeduplicate ConflictResolutionStrategy = "deduplicate"

	// ConflictStrategyPrefixAll rewrites every capability name to
	// {connection}_{name}, guaranteeing uniqueness by construction.
	ConflictStrategyPrefixAll ConflictResolutionStrategy = "prefix_all"

	// ConflictStrategyCustom requires explicit name mappings; aggregation
	// fails closed when a collision has no mapping.
	ConflictStrategyCustom ConflictResolutionStrategy = "custom"
)

// CapabilityList contains the capabilities declared by one upstream MCP
// server, as returned by UpstreamClient.ListCapabilities.
type CapabilityList struct {
	// Tools available on this upstream.
	Tools []Tool

	// Resources available on this upstream.
	Resources []Resource

	// Prompts available on this upstream.
	Prompts []Prompt
}

// UpstreamClient abstracts MCP protocol communication with upstream servers.
// It handles the protocol-level details of speaking JSON-RPC to one
// connection, supporting the network transports (streamable-http, sse).
//
// Transport failures surface as ErrUpstreamUnreachable, malformed JSON-RPC
// as ErrUpstreamProtocol. Tool-level failures (isError) are NOT errors at
// this layer; they are relayed in ToolCallResult.
type UpstreamClient interface {
	// ListCapabilities queries an upstream for its declared capabilities.
	ListCapabilities(ctx context.Context, target *ConnectionTarget) (*CapabilityList, error)

	// CallTool invokes a tool on the upstream MCP server. The meta parameter
	// carries _meta fields from the client request to forward upstream.
	// The returned result preserves the upstream's isError flag and content
	// verbatim.
	CallTool(
		ctx context.Context, target *ConnectionTarget, toolName string, arguments map[string]any, meta map[string]any,
	) (*ToolCallResult, error)

	// ReadResource retrieves a resource from the upstream MCP server.
	ReadResource(ctx context.Context, target *ConnectionTarget, uri string) (*ResourceReadResult, error)

	// GetPrompt retrieves a prompt from the upstream MCP server.
	GetPrompt(ctx context.Context, target *ConnectionTarget, name string, arguments map[string]any) (*PromptGetResult, error)
}

// ConnectionToTarget converts a Connection to a ConnectionTarget for routing.
// Used when populating routing tables during aggregation.
func ConnectionToTarget(conn *Connection) *ConnectionTarget {
	if conn == nil {
		return nil
	}
	return &ConnectionTarget{
		ConnectionID:   conn.Name,
		ConnectionName: conn.Name,
		BaseURL:        conn.BaseURL,
		TransportType:  conn.TransportType,
		Auth:           conn.Auth,
		Timeout:        conn.Timeout,
		Metadata:       conn.Metadata,
	}
}
