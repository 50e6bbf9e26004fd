// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records tool invocations that flow through the gateway.
// Every upstream tool call produces one audit entry regardless of outcome,
// tagged with the exposure strategy and whether the call was a discovery
// operation or an actual invocation.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/virtualmcp/gateway/pkg/logger"
)

// Call kinds distinguish catalog discovery from tool execution.
const (
	// CallKindDiscovery marks catalog queries (list, search, describe).
	CallKindDiscovery = "discovery"

	// CallKindInvocation marks actual tool executions.
	CallKindInvocation = "invocation"
)

// Entry is one audit record. Entries are immutable once emitted.
type Entry struct {
	// ID uniquely identifies this entry.
	ID string `json:"id"`

	// Timestamp is when the call completed.
	Timestamp time.Time `json:"timestamp"`

	// Gateway is the virtual endpoint name serving the call.
	Gateway string `json:"gateway"`

	// Strategy is the exposure strategy active for the request.
	Strategy string `json:"strategy"`

	// CallKind is CallKindDiscovery or CallKindInvocation.
	CallKind string `json:"call_kind"`

	// Connection is the upstream connection name, empty for calls that
	// never reached an upstream (unknown tool, catalog-only operations).
	Connection string `json:"connection,omitempty"`

	// Tool is the exposed tool name.
	Tool string `json:"tool"`

	// Input is the JSON-encoded tool arguments.
	Input json.RawMessage `json:"input,omitempty"`

	// Output is the JSON-encoded result relayed to the caller. Empty when
	// the call failed before producing a result.
	Output json.RawMessage `json:"output,omitempty"`

	// IsError indicates the call failed, either at the transport level or
	// as a tool-level error reported by the upstream.
	IsError bool `json:"is_error"`

	// ErrorMessage describes the failure when IsError is set.
	ErrorMessage string `json:"error_message,omitempty"`

	// Duration is how long the call took.
	Duration time.Duration `json:"duration"`

	// UserAgent is the calling client's User-Agent header, if known.
	UserAgent string `json:"user_agent,omitempty"`

	// Properties carries additional strategy-specific fields.
	Properties map[string]any `json:"properties,omitempty"`
}

// Sink receives audit entries. Implementations must be safe for concurrent
// use and must not block request handling on slow destinations.
type Sink interface {
	// Emit records one entry. Failures are logged, never propagated to the
	// request path.
	Emit(ctx context.Context, e Entry)
}

// NewEntry creates an Entry with a fresh ID and the current timestamp.
func NewEntry(gateway, strategy, callKind, tool string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Gateway:   gateway,
		Strategy:  strategy,
		CallKind:  callKind,
		Tool:      tool,
	}
}

type userAgentKey struct{}

// WithUserAgent stores the calling client's User-Agent header on the
// context so emit sites deep in the request path can stamp it on entries.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	if userAgent == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

// UserAgentFromContext returns the User-Agent stored by WithUserAgent, or
// an empty string.
func UserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}

// LogSink writes audit entries to the structured application log.
type LogSink struct{}

// NewLogSink creates a Sink that logs every entry at info level.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// Emit implements Sink.
func (*LogSink) Emit(_ context.Context, e Entry) {
	logger.Infow("audit",
		"id", e.ID,
		"gateway", e.Gateway,
		"strategy", e.Strategy,
		"call_kind", e.CallKind,
		"connection", e.Connection,
		"tool", e.Tool,
		"is_error", e.IsError,
		"error_message", e.ErrorMessage,
		"duration_ms", e.Duration.Milliseconds(),
		"user_agent", e.UserAgent,
	)
}

// MemorySink retains entries in memory. Intended for tests and for
// inspection endpoints in development setups.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink creates an in-memory Sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit implements Sink.
func (s *MemorySink) Emit(_ context.Context, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// Entries returns a copy of all recorded entries.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
