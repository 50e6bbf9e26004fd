// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package vmcp

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Common error types used across vmcp subpackages. Wrap these with
// fmt.Errorf("%w: ...") for additional context and check them with errors.Is.
var (
	// ErrUpstreamUnreachable indicates an upstream connection could not be
	// reached: dial failures, timeouts, TLS errors and non-2xx transport
	// responses all classify here.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrUpstreamProtocol indicates an upstream replied with something that
	// is not valid JSON-RPC or violates the MCP protocol.
	ErrUpstreamProtocol = errors.New("upstream protocol error")

	// ErrToolNotFound indicates a referenced tool does not exist in the
	// aggregated catalog.
	ErrToolNotFound = errors.New("tool not found")

	// ErrAggregationConflict indicates a capability name collision that the
	// configured resolution strategy could not resolve.
	ErrAggregationConflict = errors.New("aggregation conflict")

	// ErrSandboxTimeout indicates a sandboxed code submission exceeded its
	// execution time budget.
	ErrSandboxTimeout = errors.New("sandbox execution timed out")

	// ErrSandboxExecution indicates a sandboxed code submission raised a
	// runtime error.
	ErrSandboxExecution = errors.New("sandbox execution failed")

	// ErrUnsupportedTransport indicates a connection declares a transport
	// the upstream client cannot speak.
	ErrUnsupportedTransport = errors.New("unsupported transport")

	// ErrInvalidConfig indicates the gateway configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates a request carried malformed or missing
	// arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCancelled indicates an operation was cancelled by the caller.
	ErrCancelled = errors.New("operation cancelled")
)

// IsTimeoutError reports whether err represents a timeout, either a typed
// deadline error or a transport error whose message indicates one. HTTP
// client libraries frequently return plain string errors for timeouts, so
// string matching is the fallback.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded")
}

// IsConnectionError reports whether err represents a failure to reach the
// upstream at the network level.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "eof")
}
