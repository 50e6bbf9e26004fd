// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package testkit provides testing utilities for the gateway.
//
// Its main purpose is spinning up an HTTP test server that speaks enough of
// the MCP protocol for the gateway's upstream client to complete a real
// handshake against it: initialize, tools/list, tools/call, resources/list,
// resources/read, prompts/list and prompts/get. Both upstream transports
// are covered: NewStreamableTestServer answers JSON-RPC POSTs directly,
// while NewSSETestServer serves responses over a text/event-stream.
//
// The file `pkg/testkit/testkit_test.go` contains tests that exemplify how
// to use the framework.
package testkit

import (
	"bufio"
	"bytes"
	"net/http"
)

// TestMCPServer is the common interface test MCP servers implement.
// It allows a single set of options regardless of the underlying transport.
type TestMCPServer interface {
	SetMiddlewares(middlewares ...func(http.Handler) http.Handler) error
	AddTool(tool ToolDef) error
	AddResource(resource ResourceDef) error
	AddPrompt(prompt PromptDef) error
}

// TestMCPServerOption configures a test MCP server.
type TestMCPServerOption func(TestMCPServer) error

// ToolDef describes one tool the test server exposes.
type ToolDef struct {
	Name        string
	Description string
	// Handler produces the tool's text output from the call arguments.
	Handler func(args map[string]any) string
	// IsError makes tools/call responses carry isError=true.
	IsError bool
}

// ResourceDef describes one resource the test server exposes.
type ResourceDef struct {
	URI      string
	Name     string
	MimeType string
	Text     string
}

// PromptDef describes one prompt the test server exposes.
type PromptDef struct {
	Name        string
	Description string
	Text        string
}

// WithMiddlewares configures a test MCP server with HTTP middlewares.
// Middlewares apply in the order provided.
func WithMiddlewares(middlewares ...func(http.Handler) http.Handler) TestMCPServerOption {
	return func(s TestMCPServer) error {
		return s.SetMiddlewares(middlewares...)
	}
}

// WithTool registers a tool on the test server. The server returns it from
// tools/list and serves tools/call requests with the given handler.
func WithTool(name, description string, handler func(args map[string]any) string) TestMCPServerOption {
	return func(s TestMCPServer) error {
		return s.AddTool(ToolDef{Name: name, Description: description, Handler: handler})
	}
}

// WithFailingTool registers a tool whose calls return isError=true with the
// handler's text as the error content.
func WithFailingTool(name, description string, handler func(args map[string]any) string) TestMCPServerOption {
	return func(s TestMCPServer) error {
		return s.AddTool(ToolDef{Name: name, Description: description, Handler: handler, IsError: true})
	}
}

// WithResource registers a text resource on the test server.
func WithResource(uri, name, mimeType, text string) TestMCPServerOption {
	return func(s TestMCPServer) error {
		return s.AddResource(ResourceDef{URI: uri, Name: name, MimeType: mimeType, Text: text})
	}
}

// WithPrompt registers a prompt on the test server.
func WithPrompt(name, description, text string) TestMCPServerOption {
	return func(s TestMCPServer) error {
		return s.AddPrompt(PromptDef{Name: name, Description: description, Text: text})
	}
}

// SSESep identifies the event separator used in an SSE stream.
type SSESep int

const (
	// LFSep is the line feed separator.
	LFSep = iota
	// CRSep is the carriage return separator.
	CRSep
	// CRLFSep is the carriage return line feed separator.
	CRLFSep
)

// NewSplitSSE returns a bufio.SplitFunc that splits a `text/event-stream`
// body into individual events.
func NewSplitSSE(sep SSESep) bufio.SplitFunc {
	var separator []byte
	switch sep {
	case LFSep:
		separator = []byte("\n\n")
	case CRSep:
		separator = []byte("\r\r")
	case CRLFSep:
		separator = []byte("\r\n\r\n")
	}

	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.Index(data, separator); i >= 0 {
			return i + 2, data[0:i], nil
		}
		return 0, nil, nil
	}
}
