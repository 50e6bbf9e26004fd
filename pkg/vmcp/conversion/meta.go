// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package conversion converts between MCP SDK types and the gateway's
// domain types. Centralizing the conversions keeps _meta and content
// handling consistent across the client and server layers.
package conversion

import (
	"maps"

	"github.com/mark3labs/mcp-go/mcp"
)

// FromMCPMeta flattens an SDK meta into a plain map, preserving the _meta
// field from upstream responses. Returns nil for nil or empty meta so the
// field is omitted on the wire.
func FromMCPMeta(meta *mcp.Meta) map[string]any {
	if meta == nil {
		return nil
	}
	result := make(map[string]any)
	if meta.ProgressToken != nil {
		result["progressToken"] = meta.ProgressToken
	}
	maps.Copy(result, meta.AdditionalFields)
	if len(result) == 0 {
		return nil
	}
	return result
}

// ToMCPMeta rebuilds an SDK meta from a plain map for forwarding through
// the MCP protocol. Returns nil for empty input.
func ToMCPMeta(meta map[string]any) *mcp.Meta {
	if len(meta) == 0 {
		return nil
	}
	result := &mcp.Meta{AdditionalFields: make(map[string]any)}
	for k, v := range meta {
		if k == "progressToken" {
			result.ProgressToken = v
		} else {
			result.AdditionalFields[k] = v
		}
	}
	return result
}
