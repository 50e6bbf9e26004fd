// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package conversion

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

func TestContentRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content mcp.Content
		want    vmcp.Content
	}{
		{
			name:    "text",
			content: mcp.NewTextContent("hello"),
			want:    vmcp.Content{Type: "text", Text: "hello"},
		},
		{
			name:    "image",
			content: mcp.NewImageContent("aGVsbG8=", "image/png"),
			want:    vmcp.Content{Type: "image", Data: "aGVsbG8=", MimeType: "image/png"},
		},
		{
			name:    "audio",
			content: mcp.NewAudioContent("aGVsbG8=", "audio/wav"),
			want:    vmcp.Content{Type: "audio", Data: "aGVsbG8=", MimeType: "audio/wav"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := FromMCPContent(tt.content)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.content, ToMCPContent(got))
		})
	}
}

func TestFromMCPContentUnknownType(t *testing.T) {
	t.Parallel()

	got := FromMCPContent(mcp.NewEmbeddedResource(mcp.TextResourceContents{URI: "docs://x"}))
	assert.Equal(t, "unknown", got.Type)
}

func TestContentArrayToMap(t *testing.T) {
	t.Parallel()

	result := ContentArrayToMap([]vmcp.Content{
		{Type: "text", Text: "first"},
		{Type: "image", Data: "imgdata", MimeType: "image/png"},
		{Type: "text", Text: "second"},
		{Type: "audio", Data: "audiodata", MimeType: "audio/wav"},
	})

	assert.Equal(t, "first", result["text"])
	assert.Equal(t, "second", result["text_1"])
	assert.Equal(t, "imgdata", result["image_0"])
	assert.Equal(t, "audiodata", result["image_1"])
}

func TestMetaRoundTrip(t *testing.T) {
	t.Parallel()

	meta := &mcp.Meta{
		ProgressToken:    "token-7",
		AdditionalFields: map[string]any{"traceId": "abc123"},
	}

	flat := FromMCPMeta(meta)
	require.NotNil(t, flat)
	assert.Equal(t, "token-7", flat["progressToken"])
	assert.Equal(t, "abc123", flat["traceId"])

	rebuilt := ToMCPMeta(flat)
	require.NotNil(t, rebuilt)
	assert.Equal(t, "token-7", rebuilt.ProgressToken)
	assert.Equal(t, "abc123", rebuilt.AdditionalFields["traceId"])
}

func TestMetaEmptyIsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, FromMCPMeta(nil))
	assert.Nil(t, FromMCPMeta(&mcp.Meta{}))
	assert.Nil(t, ToMCPMeta(nil))
	assert.Nil(t, ToMCPMeta(map[string]any{}))
}
