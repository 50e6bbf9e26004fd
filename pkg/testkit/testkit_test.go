// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSONRPC(t *testing.T, url string, payload map[string]any) map[string]any {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url+"/mcp", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func TestStreamableServerInitialize(t *testing.T) {
	t.Parallel()
	srv, err := NewStreamableTestServer(
		WithTool("echo", "echoes input", func(_ map[string]any) string { return "ok" }),
	)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	resp := postJSONRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": map[string]any{"protocolVersion": "2025-03-26"},
	})

	result, ok := resp["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2025-03-26", result["protocolVersion"])

	caps, ok := result["capabilities"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, caps, "tools")
	assert.NotContains(t, caps, "resources")
	assert.NotContains(t, caps, "prompts")
}

func TestStreamableServerToolsListAndCall(t *testing.T) {
	t.Parallel()
	srv, err := NewStreamableTestServer(
		WithTool("echo", "echoes input", func(args map[string]any) string {
			msg, _ := args["message"].(string)
			return "echo: " + msg
		}),
		WithFailingTool("broken", "always fails", func(_ map[string]any) string {
			return "boom"
		}),
	)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	listResp := postJSONRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": "tools/list",
	})
	result := listResp["result"].(map[string]any)
	tools := result["tools"].([]any)
	require.Len(t, tools, 2)
	assert.Equal(t, "broken", tools[0].(map[string]any)["name"])
	assert.Equal(t, "echo", tools[1].(map[string]any)["name"])

	callResp := postJSONRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 3, "method": "tools/call",
		"params": map[string]any{
			"name":      "echo",
			"arguments": map[string]any{"message": "hi"},
			"_meta":     map[string]any{"traceId": "abc"},
		},
	})
	callResult := callResp["result"].(map[string]any)
	content := callResult["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, "echo: hi", content[0].(map[string]any)["text"])
	assert.Equal(t, false, callResult["isError"])
	assert.Equal(t, map[string]any{"traceId": "abc"}, callResult["_meta"])

	failResp := postJSONRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 4, "method": "tools/call",
		"params": map[string]any{"name": "broken"},
	})
	failResult := failResp["result"].(map[string]any)
	assert.Equal(t, true, failResult["isError"])
}

func TestStreamableServerResourcesAndPrompts(t *testing.T) {
	t.Parallel()
	srv, err := NewStreamableTestServer(
		WithResource("docs://readme", "readme", "text/markdown", "# Hello"),
		WithPrompt("greet", "a greeting", "Say hello politely."),
	)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	readResp := postJSONRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 5, "method": "resources/read",
		"params": map[string]any{"uri": "docs://readme"},
	})
	contents := readResp["result"].(map[string]any)["contents"].([]any)
	require.Len(t, contents, 1)
	assert.Equal(t, "# Hello", contents[0].(map[string]any)["text"])

	promptResp := postJSONRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 6, "method": "prompts/get",
		"params": map[string]any{"name": "greet"},
	})
	messages := promptResp["result"].(map[string]any)["messages"].([]any)
	require.Len(t, messages, 1)
}

func TestStreamableServerUnknownMethod(t *testing.T) {
	t.Parallel()
	srv, err := NewStreamableTestServer()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	resp := postJSONRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 7, "method": "no/such/method",
	})
	require.Contains(t, resp, "error")
}

func TestStreamableServerMiddlewares(t *testing.T) {
	t.Parallel()
	var seen bool
	srv, err := NewStreamableTestServer(
		WithMiddlewares(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = true
				next.ServeHTTP(w, r)
			})
		}),
	)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	postJSONRPC(t, srv.URL, map[string]any{"jsonrpc": "2.0", "id": 8, "method": "ping"})
	assert.True(t, seen)
}

// openSSEStream connects to the /sse endpoint and returns a scanner that
// yields one SSE event per token, plus the message POST URL announced in
// the first event.
func openSSEStream(t *testing.T, baseURL string) (*bufio.Scanner, string) {
	t.Helper()
	resp, err := http.Get(baseURL + "/sse")
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Split(NewSplitSSE(LFSep))

	require.True(t, scanner.Scan(), "expected an endpoint event")
	event := scanner.Text()
	require.Contains(t, event, "event: endpoint")
	idx := strings.Index(event, "data: ")
	require.GreaterOrEqual(t, idx, 0)
	endpoint := strings.TrimSpace(event[idx+len("data: "):])
	return scanner, baseURL + endpoint
}

func TestSSEServerAnnouncesEndpoint(t *testing.T) {
	t.Parallel()
	srv, err := NewSSETestServer(
		WithTool("echo", "echoes input", func(_ map[string]any) string { return "ok" }),
	)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	_, endpoint := openSSEStream(t, srv.URL)
	assert.Equal(t, srv.URL+"/message", endpoint)
}

func TestSSEServerAnswersOverStream(t *testing.T) {
	t.Parallel()
	srv, err := NewSSETestServer(
		WithTool("echo", "echoes input", func(args map[string]any) string {
			msg, _ := args["message"].(string)
			return "echo: " + msg
		}),
	)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	scanner, endpoint := openSSEStream(t, srv.URL)

	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": map[string]any{
			"name":      "echo",
			"arguments": map[string]any{"message": "hi"},
		},
	})
	require.NoError(t, err)
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.True(t, scanner.Scan(), "expected a message event")
	event := scanner.Text()
	assert.Contains(t, event, "event: message")
	assert.Contains(t, event, "echo: hi")
}
