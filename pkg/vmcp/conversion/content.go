// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package conversion

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/virtualmcp/gateway/pkg/logger"
	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// FromMCPContent converts one SDK content item to the domain Content type,
// preserving the full structure of upstream responses. Content types the
// gateway does not model are tagged "unknown" rather than dropped.
func FromMCPContent(content mcp.Content) vmcp.Content {
	if textContent, ok := mcp.AsTextContent(content); ok {
		return vmcp.Content{Type: "text", Text: textContent.Text}
	}
	if imageContent, ok := mcp.AsImageContent(content); ok {
		return vmcp.Content{Type: "image", Data: imageContent.Data, MimeType: imageContent.MIMEType}
	}
	if audioContent, ok := mcp.AsAudioContent(content); ok {
		return vmcp.Content{Type: "audio", Data: audioContent.Data, MimeType: audioContent.MIMEType}
	}
	logger.Warnf("Encountered unknown content type %T, marking as unknown content", content)
	return vmcp.Content{Type: "unknown"}
}

// ToMCPContent converts a domain Content back to the SDK representation for
// relaying results to clients.
func ToMCPContent(content vmcp.Content) mcp.Content {
	switch content.Type {
	case "image":
		return mcp.NewImageContent(content.Data, content.MimeType)
	case "audio":
		return mcp.NewAudioContent(content.Data, content.MimeType)
	default:
		return mcp.NewTextContent(content.Text)
	}
}

// ContentArrayToMap flattens a content array into a map keyed by content
// kind, used when a tool result needs named field access (sandboxed code,
// structured fallbacks). The first text content gets key "text"; later
// ones get "text_1", "text_2" and so on. Binary contents get "image_0",
// "image_1" in arrival order.
func ContentArrayToMap(content []vmcp.Content) map[string]any {
	result := make(map[string]any)
	textIndex := 0
	binaryIndex := 0
	for _, item := range content {
		switch item.Type {
		case "text":
			key := "text"
			if textIndex > 0 {
				key = fmt.Sprintf("text_%d", textIndex)
			}
			result[key] = item.Text
			textIndex++
		case "image", "audio":
			result[fmt.Sprintf("image_%d", binaryIndex)] = item.Data
			binaryIndex++
		}
	}
	return result
}
