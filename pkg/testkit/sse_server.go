// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// sseServer is a minimal HTTP+SSE MCP server. Clients open a long-lived
// GET stream on /sse, receive an endpoint event naming the message URL,
// POST JSON-RPC requests there, and read responses off the stream.
type sseServer struct {
	middlewares []func(http.Handler) http.Handler

	// core serves the JSON-RPC methods; only the framing differs between
	// the two transports.
	core *streamableServer

	events chan []byte
}

var _ TestMCPServer = (*sseServer)(nil)

func (s *sseServer) SetMiddlewares(middlewares ...func(http.Handler) http.Handler) error {
	if len(s.middlewares) > 0 {
		return fmt.Errorf("middlewares already set")
	}
	s.middlewares = middlewares
	return nil
}

func (s *sseServer) AddTool(tool ToolDef) error {
	return s.core.AddTool(tool)
}

func (s *sseServer) AddResource(resource ResourceDef) error {
	return s.core.AddResource(resource)
}

func (s *sseServer) AddPrompt(prompt PromptDef) error {
	return s.core.AddPrompt(prompt)
}

// NewSSETestServer builds an SSE MCP test server wrapped in an
// httptest.Server. The stream endpoint is at path /sse. The server
// supports one concurrent stream, which is all a test needs.
func NewSSETestServer(options ...TestMCPServerOption) (*httptest.Server, error) {
	server := &sseServer{
		core: &streamableServer{
			tools:     make(map[string]ToolDef),
			resources: make(map[string]ResourceDef),
			prompts:   make(map[string]PromptDef),
		},
		events: make(chan []byte, 16),
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
	router.Get("/sse", server.sseHandler)
	router.Post("/message", server.messageHandler)

	return httptest.NewServer(router), nil
}

func (s *sseServer) sseHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	// The endpoint event tells the client where to POST its requests.
	// A relative URL resolves against the stream URL.
	fmt.Fprint(w, "event: endpoint\ndata: /message\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload := <-s.events:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *sseServer) messageHandler(w http.ResponseWriter, r *http.Request) {
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

	response, ok := s.core.dispatch(req)
	if !ok {
		// Notifications produce no stream event.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	data, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Error marshaling response", http.StatusInternalServerError)
		return
	}

	select {
	case s.events <- data:
	default:
		http.Error(w, "Event buffer full", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
