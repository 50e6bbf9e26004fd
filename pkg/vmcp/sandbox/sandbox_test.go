// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// stubCaller records tool invocations in order and serves canned results.
type stubCaller struct {
	mu      sync.Mutex
	calls   []string
	args    []map[string]any
	results map[string]*vmcp.ToolCallResult
	err     error
	delay   time.Duration
}

func (s *stubCaller) call(ctx context.Context, name string, args map[string]any) (*vmcp.ToolCallResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.args = append(s.args, args)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if result, ok := s.results[name]; ok {
		return result, nil
	}
	return &vmcp.ToolCallResult{}, nil
}

func TestRunEmitsScalar(t *testing.T) {
	t.Parallel()

	sb := New((&stubCaller{}).call, time.Second)

	result, err := sb.Run(context.Background(), `emit(40 + 2)`)
	require.NoError(t, err)
	assert.Equal(t, float64(42), result)
}

func TestRunEmitsTable(t *testing.T) {
	t.Parallel()

	sb := New((&stubCaller{}).call, time.Second)

	result, err := sb.Run(context.Background(), `emit({status = "ok", items = {1, 2, 3}})`)
	require.NoError(t, err)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", m["status"])
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, m["items"])
}

func TestRunWithoutEmitReturnsNil(t *testing.T) {
	t.Parallel()

	sb := New((&stubCaller{}).call, time.Second)

	result, err := sb.Run(context.Background(), `local x = 1`)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRunCallsToolsInCodeOrder(t *testing.T) {
	t.Parallel()

	caller := &stubCaller{
		results: map[string]*vmcp.ToolCallResult{
			"first":  {Content: []vmcp.Content{{Type: "text", Text: "one"}}},
			"second": {Content: []vmcp.Content{{Type: "text", Text: "two"}}},
		},
	}
	sb := New(caller.call, time.Second)

	result, err := sb.Run(context.Background(), `
		local a = call_tool("first", {n = 1})
		local b = call_tool("second", {n = 2})
		emit(a.text .. "/" .. b.text)
	`)
	require.NoError(t, err)
	assert.Equal(t, "one/two", result)
	assert.Equal(t, []string{"first", "second"}, caller.calls)
	assert.Equal(t, map[string]any{"n": float64(1)}, caller.args[0])
}

func TestRunExposesIsErrorToCode(t *testing.T) {
	t.Parallel()

	caller := &stubCaller{
		results: map[string]*vmcp.ToolCallResult{
			"flaky": {
				Content: []vmcp.Content{{Type: "text", Text: "bad input"}},
				IsError: true,
			},
		},
	}
	sb := New(caller.call, time.Second)

	result, err := sb.Run(context.Background(), `
		local r = call_tool("flaky", {})
		if r.is_error then
			emit("tool failed: " .. r.text)
		else
			emit("ok")
		end
	`)
	require.NoError(t, err)
	assert.Equal(t, "tool failed: bad input", result)
}

func TestRunExposesStructuredContent(t *testing.T) {
	t.Parallel()

	caller := &stubCaller{
		results: map[string]*vmcp.ToolCallResult{
			"weather": {
				StructuredContent: map[string]any{"temp": float64(21)},
			},
		},
	}
	sb := New(caller.call, time.Second)

	result, err := sb.Run(context.Background(), `
		local r = call_tool("weather", {})
		emit(r.structured.temp)
	`)
	require.NoError(t, err)
	assert.Equal(t, float64(21), result)
}

func TestRunExposesContentByKind(t *testing.T) {
	t.Parallel()

	caller := &stubCaller{
		results: map[string]*vmcp.ToolCallResult{
			"report": {
				Content: []vmcp.Content{
					{Type: "text", Text: "summary"},
					{Type: "text", Text: "details"},
					{Type: "image", Data: "aWJtZ2U=", MimeType: "image/png"},
				},
			},
		},
	}
	sb := New(caller.call, time.Second)

	result, err := sb.Run(context.Background(), `
		local r = call_tool("report", {})
		emit(r.content.text .. "|" .. r.content.text_1 .. "|" .. r.content.image_0)
	`)
	require.NoError(t, err)
	assert.Equal(t, "summary|details|aWJtZ2U=", result)
}

func TestRunToolErrorBecomesExecutionError(t *testing.T) {
	t.Parallel()

	caller := &stubCaller{err: errors.New("upstream exploded")}
	sb := New(caller.call, time.Second)

	_, err := sb.Run(context.Background(), `call_tool("boom", {})`)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrSandboxExecution)
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestRunToolErrorIsCatchableWithPcall(t *testing.T) {
	t.Parallel()

	caller := &stubCaller{err: errors.New("upstream exploded")}
	sb := New(caller.call, time.Second)

	result, err := sb.Run(context.Background(), `
		local ok, msg = pcall(function() return call_tool("boom", {}) end)
		emit(ok)
	`)
	require.NoError(t, err)
	assert.Equal(t, false, result)
}

func TestRunSyntaxErrorFails(t *testing.T) {
	t.Parallel()

	sb := New((&stubCaller{}).call, time.Second)

	_, err := sb.Run(context.Background(), `emit(`)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrSandboxExecution)
}

func TestRunTimeoutOnBusyLoop(t *testing.T) {
	t.Parallel()

	sb := New((&stubCaller{}).call, 100*time.Millisecond)

	start := time.Now()
	_, err := sb.Run(context.Background(), `while true do end`)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrSandboxTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunTimeoutCancelsInFlightToolCall(t *testing.T) {
	t.Parallel()

	caller := &stubCaller{delay: 5 * time.Second}
	sb := New(caller.call, 100*time.Millisecond)

	start := time.Now()
	_, err := sb.Run(context.Background(), `call_tool("slow", {})`)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrSandboxTimeout)
	// The tool call must be abandoned with the budget, not run to completion.
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunBlocksFilesystemAccess(t *testing.T) {
	t.Parallel()

	sb := New((&stubCaller{}).call, time.Second)

	for _, code := range []string{
		`emit(os.getenv("HOME"))`,
		`emit(io.open("/etc/passwd"))`,
		`emit(loadfile("/etc/passwd"))`,
		`emit(require("io"))`,
	} {
		_, err := sb.Run(context.Background(), code)
		require.Error(t, err, "expected %q to fail", code)
		assert.ErrorIs(t, err, vmcp.ErrSandboxExecution)
	}
}

func TestRunTruncatesLongErrorMessages(t *testing.T) {
	t.Parallel()

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	caller := &stubCaller{err: errors.New(string(long))}
	sb := New(caller.call, time.Second)

	_, err := sb.Run(context.Background(), `call_tool("boom", {})`)
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 1500)
}

func TestRunRejectsEmptyCode(t *testing.T) {
	t.Parallel()

	sb := New((&stubCaller{}).call, time.Second)

	_, err := sb.Run(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrInvalidInput)
}
