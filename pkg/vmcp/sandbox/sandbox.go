// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox executes client-supplied code for the code_execution
// exposure strategy. Code runs in an embedded Lua interpreter with a
// constrained API surface: no filesystem, network, or process access, only
// a call_tool function bridging into the gateway's catalog and an emit
// function for returning a result.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/virtualmcp/gateway/pkg/logger"
	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/conversion"
)

// DefaultTimeout is the wall-clock budget applied when none is configured.
const DefaultTimeout = 10 * time.Second

// maxErrorMessageLength bounds execution error messages relayed to clients.
const maxErrorMessageLength = 512

// ToolCaller bridges sandboxed code to the gateway's tool catalog. It is
// the only side-effecting capability exposed inside the sandbox.
type ToolCaller func(ctx context.Context, name string, args map[string]any) (*vmcp.ToolCallResult, error)

// Sandbox runs Lua code under a wall-clock budget. Each Run gets a fresh
// interpreter state; nothing persists between executions.
type Sandbox struct {
	caller  ToolCaller
	timeout time.Duration
}

// New creates a Sandbox with the given tool bridge and execution budget.
// A non-positive timeout falls back to DefaultTimeout.
func New(caller ToolCaller, timeout time.Duration) *Sandbox {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sandbox{caller: caller, timeout: timeout}
}

// Run executes code and returns the value the code passed to emit, already
// converted to JSON-serializable Go values. The context carries the
// wall-clock budget; when it expires the interpreter halts and any tool
// calls the code started are cancelled through the same context.
func (s *Sandbox) Run(ctx context.Context, code string) (any, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", vmcp.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer state.Close()
	state.SetContext(ctx)

	if err := openRestrictedLibs(state); err != nil {
		return nil, fmt.Errorf("%w: interpreter setup failed: %v", vmcp.ErrSandboxExecution, err)
	}

	var emitted lua.LValue = lua.LNil
	state.SetGlobal("emit", state.NewFunction(func(l *lua.LState) int {
		emitted = l.Get(1)
		return 0
	}))
	state.SetGlobal("call_tool", state.NewFunction(s.luaCallTool(ctx)))

	if err := state.DoString(code); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: execution exceeded %s", vmcp.ErrSandboxTimeout, s.timeout)
		}
		return nil, fmt.Errorf("%w: %s", vmcp.ErrSandboxExecution, truncate(err.Error(), maxErrorMessageLength))
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: execution exceeded %s", vmcp.ErrSandboxTimeout, s.timeout)
	}

	return luaToGo(emitted), nil
}

// luaCallTool is the call_tool(name, args) host function. Tool failures
// raise Lua errors so sandboxed code can handle them with pcall; tool-level
// isError results are returned as values, matching the catalog's semantics.
func (s *Sandbox) luaCallTool(ctx context.Context) lua.LGFunction {
	return func(l *lua.LState) int {
		name := l.CheckString(1)

		var args map[string]any
		if l.GetTop() >= 2 {
			table := l.CheckTable(2)
			converted := luaToGo(table)
			m, ok := converted.(map[string]any)
			if !ok {
				l.RaiseError("call_tool: args must be a table with string keys")
				return 0
			}
			args = m
		}

		result, err := s.caller(ctx, name, args)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				// Let the interpreter's own context check report the timeout.
				l.RaiseError("call_tool: cancelled")
				return 0
			}
			l.RaiseError("call_tool %s: %s", name, truncate(err.Error(), maxErrorMessageLength))
			return 0
		}

		l.Push(toolResultToLua(l, result))
		return 1
	}
}

// toolResultToLua converts a tool call result into a Lua table with text,
// content, structured, and is_error fields. The content field gives named
// access to every content item, including non-text ones.
func toolResultToLua(l *lua.LState, result *vmcp.ToolCallResult) *lua.LTable {
	table := l.NewTable()
	l.SetField(table, "is_error", lua.LBool(result.IsError))

	var text string
	for _, content := range result.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}
	l.SetField(table, "text", lua.LString(text))

	if len(result.Content) > 0 {
		l.SetField(table, "content", goToLua(l, conversion.ContentArrayToMap(result.Content)))
	}
	if result.StructuredContent != nil {
		l.SetField(table, "structured", goToLua(l, result.StructuredContent))
	}
	return table
}

// openRestrictedLibs loads the safe subset of the Lua standard library.
// The os, io, debug, and package libraries stay closed, and the base
// library's file loaders are removed.
func openRestrictedLibs(state *lua.LState) error {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := state.CallByParam(lua.P{
			Fn:        state.NewFunction(lib.fn),
			NRet:      0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return err
		}
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		state.SetGlobal(name, lua.LNil)
	}

	// print goes to the application log instead of stdout.
	state.SetGlobal("print", state.NewFunction(func(l *lua.LState) int {
		top := l.GetTop()
		parts := make([]any, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, l.Get(i).String())
		}
		logger.Debugf("sandbox print: %v", parts)
		return 0
	}))

	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
