// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package strategy defines the tool exposure strategies of the gateway and
// computes the public tool surface each strategy presents to clients.
//
// A strategy decides what a client sees when it lists tools: everything
// (passthrough), three discovery meta-tools (smart_tool_selection), or a
// single code execution meta-tool (code_execution). The aggregated catalog
// underneath is identical for all three; only the surface differs.
package strategy

import (
	"fmt"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// Strategy identifies a tool exposure strategy.
type Strategy string

const (
	// Passthrough exposes every aggregated tool directly.
	Passthrough Strategy = "passthrough"

	// SmartToolSelection exposes only the SEARCH_TOOLS, DESCRIBE_TOOLS and
	// CALL_TOOL meta-tools.
	SmartToolSelection Strategy = "smart_tool_selection"

	// CodeExecution exposes only the RUN_CODE meta-tool.
	CodeExecution Strategy = "code_execution"
)

// Default is the strategy used when a request does not select one.
const Default = Passthrough

// All lists every known strategy.
func All() []Strategy {
	return []Strategy{Passthrough, SmartToolSelection, CodeExecution}
}

// Parse validates a strategy name. The empty string selects the default;
// anything unknown is an error, never silently mapped to a fallback.
func Parse(name string) (Strategy, error) {
	switch Strategy(name) {
	case "":
		return Default, nil
	case Passthrough, SmartToolSelection, CodeExecution:
		return Strategy(name), nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q (valid: %s, %s, %s)",
			vmcp.ErrInvalidInput, name, Passthrough, SmartToolSelection, CodeExecution)
	}
}

// PublicSurface returns the tools a client sees under the given strategy.
// For passthrough that is the aggregated tools themselves; for the other
// strategies it is the strategy's meta-tools. The aggregated catalog is
// never mutated. The tool representation is a type parameter so the same
// selection applies to domain tools and to SDK server tools.
func PublicSurface[T any](s Strategy, aggregated []T, metaTools []T) []T {
	if s == Passthrough {
		return aggregated
	}
	return metaTools
}
