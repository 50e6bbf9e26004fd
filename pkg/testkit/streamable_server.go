// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// streamableServer is a minimal streamable-HTTP MCP server. It answers
// JSON-RPC POSTs on /mcp with plain JSON responses, which is enough for a
// real MCP client to initialize and exercise every capability type.
type streamableServer struct {
	middlewares []func(http.Handler) http.Handler
	tools       map[string]ToolDef
	resources   map[string]ResourceDef
	prompts     map[string]PromptDef
}

var _ TestMCPServer = (*streamableServer)(nil)

func (s *streamableServer) SetMiddlewares(middlewares ...func(http.Handler) http.Handler) error {
	if len(s.middlewares) > 0 {
		return fmt.Errorf("middlewares already set")
	}
	s.middlewares = middlewares
	return nil
}

func (s *streamableServer) AddTool(tool ToolDef) error {
	if _, ok := s.tools[tool.Name]; ok {
		return fmt.Errorf("tool %s already exists", tool.Name)
	}
	s.tools[tool.Name] = tool
	return nil
}

func (s *streamableServer) AddResource(resource ResourceDef) error {
	if _, ok := s.resources[resource.URI]; ok {
		return fmt.Errorf("resource %s already exists", resource.URI)
	}
	s.resources[resource.URI] = resource
	return nil
}

func (s *streamableServer) AddPrompt(prompt PromptDef) error {
	if _, ok := s.prompts[prompt.Name]; ok {
		return fmt.Errorf("prompt %s already exists", prompt.Name)
	}
	s.prompts[prompt.Name] = prompt
	return nil
}

// NewStreamableTestServer builds a streamable-HTTP MCP test server wrapped
// in an httptest.Server. The MCP endpoint is at path /mcp.
func NewStreamableTestServer(options ...TestMCPServerOption) (*httptest.Server, error) {
	server := &streamableServer{
		tools:     make(map[string]ToolDef),
		resources: make(map[string]ResourceDef),
		prompts:   make(map[string]PromptDef),
	}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	router := chi.NewRouter()
	allMiddlewares := append(
		[]func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.Recoverer,
		},
		server.middlewares...,
	)
	router.Use(allMiddlewares...)
	router.Post("/mcp", server.mcpHandler)

	return httptest.NewServer(router), nil
}

func (s *streamableServer) mcpHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusInternalServerError)
		return
	}

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	response, ok := s.dispatch(req)
	if !ok {
		// Notifications get no response body.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeResponse(w, response)
}

// dispatch routes one decoded JSON-RPC request to its method handler and
// builds the response envelope. The second return is false for
// notifications, which get no response at all.
func (s *streamableServer) dispatch(req map[string]any) (map[string]any, bool) {
	method, _ := req["method"].(string)
	id, hasID := req["id"]
	if !hasID {
		return nil, false
	}

	var result any
	switch method {
	case "initialize":
		result = s.initializeResult(req)
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = s.toolsList()
	case "tools/call":
		result = s.toolsCall(req)
	case "resources/list":
		result = s.resourcesList()
	case "resources/read":
		result = s.resourcesRead(req)
	case "prompts/list":
		result = s.promptsList()
	case "prompts/get":
		result = s.promptsGet(req)
	default:
		return map[string]any{
			"jsonrpc": "2.0",
			"id":      id,
			"error":   map[string]any{"code": -32601, "message": "method not found: " + method},
		}, true
	}

	if errResult, ok := result.(jsonRPCError); ok {
		return map[string]any{
			"jsonrpc": "2.0",
			"id":      id,
			"error":   map[string]any{"code": errResult.code, "message": errResult.message},
		}, true
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}, true
}

type jsonRPCError struct {
	code    int
	message string
}

func writeResponse(w http.ResponseWriter, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Error marshaling response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *streamableServer) initializeResult(req map[string]any) map[string]any {
	protocolVersion := "2025-03-26"
	if params, ok := req["params"].(map[string]any); ok {
		if v, ok := params["protocolVersion"].(string); ok && v != "" {
			protocolVersion = v
		}
	}

	// Only advertise capability types that are actually registered, so
	// clients that gate queries on advertised capabilities can be tested.
	capabilities := map[string]any{}
	if len(s.tools) > 0 {
		capabilities["tools"] = map[string]any{}
	}
	if len(s.resources) > 0 {
		capabilities["resources"] = map[string]any{}
	}
	if len(s.prompts) > 0 {
		capabilities["prompts"] = map[string]any{}
	}

	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    capabilities,
		"serverInfo": map[string]any{
			"name":    "testkit-mcp-server",
			"version": "0.0.1",
		},
	}
}

func (s *streamableServer) toolsList() map[string]any {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]map[string]any, 0, len(names))
	for _, name := range names {
		tool := s.tools[name]
		tools = append(tools, map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": map[string]any{"type": "object"},
		})
	}
	return map[string]any{"tools": tools}
}

func (s *streamableServer) toolsCall(req map[string]any) any {
	params, ok := req["params"].(map[string]any)
	if !ok {
		return jsonRPCError{code: -32602, message: "missing params"}
	}
	name, _ := params["name"].(string)
	tool, ok := s.tools[name]
	if !ok {
		return jsonRPCError{code: -32602, message: "tool not found: " + name}
	}

	args, _ := params["arguments"].(map[string]any)
	text := tool.Handler(args)

	result := map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"isError": tool.IsError,
	}
	// Echo request _meta back so metadata round-trips can be asserted.
	if meta, ok := params["_meta"].(map[string]any); ok {
		result["_meta"] = meta
	}
	return result
}

func (s *streamableServer) resourcesList() map[string]any {
	uris := make([]string, 0, len(s.resources))
	for uri := range s.resources {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	resources := make([]map[string]any, 0, len(uris))
	for _, uri := range uris {
		res := s.resources[uri]
		resources = append(resources, map[string]any{
			"uri":      res.URI,
			"name":     res.Name,
			"mimeType": res.MimeType,
		})
	}
	return map[string]any{"resources": resources}
}

func (s *streamableServer) resourcesRead(req map[string]any) any {
	params, ok := req["params"].(map[string]any)
	if !ok {
		return jsonRPCError{code: -32602, message: "missing params"}
	}
	uri, _ := params["uri"].(string)
	res, ok := s.resources[uri]
	if !ok {
		return jsonRPCError{code: -32602, message: "resource not found: " + uri}
	}
	return map[string]any{
		"contents": []map[string]any{{
			"uri":      res.URI,
			"mimeType": res.MimeType,
			"text":     res.Text,
		}},
	}
}

func (s *streamableServer) promptsList() map[string]any {
	names := make([]string, 0, len(s.prompts))
	for name := range s.prompts {
		names = append(names, name)
	}
	sort.Strings(names)

	prompts := make([]map[string]any, 0, len(names))
	for _, name := range names {
		p := s.prompts[name]
		prompts = append(prompts, map[string]any{
			"name":        p.Name,
			"description": p.Description,
		})
	}
	return map[string]any{"prompts": prompts}
}

func (s *streamableServer) promptsGet(req map[string]any) any {
	params, ok := req["params"].(map[string]any)
	if !ok {
		return jsonRPCError{code: -32602, message: "missing params"}
	}
	name, _ := params["name"].(string)
	p, ok := s.prompts[name]
	if !ok {
		return jsonRPCError{code: -32602, message: "prompt not found: " + name}
	}
	return map[string]any{
		"description": p.Description,
		"messages": []map[string]any{{
			"role":    "user",
			"content": map[string]any{"type": "text", "text": p.Text},
		}},
	}
}
