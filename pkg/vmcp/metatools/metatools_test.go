// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package metatools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualmcp/gateway/pkg/audit"
	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/router"
)

// recordingUpstream relays canned results and records every call so tests
// can assert which upstreams were and were not reached.
type recordingUpstream struct {
	calls   []string
	result  *vmcp.ToolCallResult
	callErr error
}

func (r *recordingUpstream) ListCapabilities(
	context.Context, *vmcp.ConnectionTarget,
) (*vmcp.CapabilityList, error) {
	return nil, errors.New("not implemented")
}

func (r *recordingUpstream) CallTool(
	_ context.Context, target *vmcp.ConnectionTarget, toolName string, _ map[string]any, _ map[string]any,
) (*vmcp.ToolCallResult, error) {
	r.calls = append(r.calls, target.UpstreamCapabilityName(toolName))
	if r.callErr != nil {
		return nil, r.callErr
	}
	return r.result, nil
}

func (r *recordingUpstream) ReadResource(
	context.Context, *vmcp.ConnectionTarget, string,
) (*vmcp.ResourceReadResult, error) {
	return nil, errors.New("not implemented")
}

func (r *recordingUpstream) GetPrompt(
	context.Context, *vmcp.ConnectionTarget, string, map[string]any,
) (*vmcp.PromptGetResult, error) {
	return nil, errors.New("not implemented")
}

func testCatalog() []vmcp.Tool {
	return []vmcp.Tool{
		{
			Name:         "create_issue",
			Description:  "Create a new issue in the tracker",
			InputSchema:  map[string]any{"type": "object"},
			ConnectionID: "jira",
		},
		{
			Name:         "search_issues",
			Description:  "Search issues by text query",
			InputSchema:  map[string]any{"type": "object"},
			ConnectionID: "jira",
		},
		{
			Name:         "open_pull_request",
			Description:  "Open a pull request on a repository",
			InputSchema:  map[string]any{"type": "object"},
			ConnectionID: "github",
		},
	}
}

func newTestDispatcher(t *testing.T, upstream vmcp.UpstreamClient, sink audit.Sink) *Dispatcher {
	t.Helper()
	rt := router.NewRouter()
	require.NoError(t, rt.UpdateRoutingTable(context.Background(), &vmcp.RoutingTable{
		Tools: map[string]*vmcp.ConnectionTarget{
			"create_issue":      {ConnectionID: "jira", ConnectionName: "jira"},
			"search_issues":     {ConnectionID: "jira", ConnectionName: "jira"},
			"open_pull_request": {ConnectionID: "github", ConnectionName: "github"},
		},
		Resources: map[string]*vmcp.ConnectionTarget{},
		Prompts:   map[string]*vmcp.ConnectionTarget{},
	}))
	return NewDispatcher(testCatalog(), rt, upstream, sink, "test-gateway", "smart_tool_selection")
}

func TestSearchToolsRanksNameMatchesFirst(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, &recordingUpstream{}, nil)

	out, err := d.SearchTools(context.Background(), SearchToolsInput{Query: "search issues"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)

	assert.Equal(t, "search_issues", out.Results[0].Name)
	for i := 1; i < len(out.Results); i++ {
		assert.LessOrEqual(t, out.Results[i].Score, out.Results[i-1].Score)
	}
}

func TestSearchToolsReportsTokenSavings(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, &recordingUpstream{}, nil)

	out, err := d.SearchTools(context.Background(), SearchToolsInput{Query: "pull request"})
	require.NoError(t, err)

	assert.Positive(t, out.TokenMetrics.BaselineTokens)
	assert.Less(t, out.TokenMetrics.ReturnedTokens, out.TokenMetrics.BaselineTokens)
	assert.Positive(t, out.TokenMetrics.SavingsPercent)
}

func TestSearchToolsNeverCallsUpstream(t *testing.T) {
	t.Parallel()

	upstream := &recordingUpstream{}
	d := newTestDispatcher(t, upstream, nil)

	_, err := d.SearchTools(context.Background(), SearchToolsInput{Query: "issue"})
	require.NoError(t, err)
	assert.Empty(t, upstream.calls)
}

func TestSearchToolsRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, &recordingUpstream{}, nil)

	_, err := d.SearchTools(context.Background(), SearchToolsInput{Query: "   "})
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrInvalidInput)
}

func TestDescribeToolsReturnsSchemas(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, &recordingUpstream{}, nil)

	out, err := d.DescribeTools(context.Background(), DescribeToolsInput{
		Names: []string{"create_issue", "open_pull_request"},
	})
	require.NoError(t, err)
	require.Len(t, out.Tools, 2)
	assert.Equal(t, "create_issue", out.Tools[0].Name)
	assert.Equal(t, map[string]any{"type": "object"}, out.Tools[0].InputSchema)
	assert.Empty(t, out.Unknown)
}

func TestDescribeToolsPartialResultOnUnknownNames(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, &recordingUpstream{}, nil)

	out, err := d.DescribeTools(context.Background(), DescribeToolsInput{
		Names: []string{"create_issue", "no_such_tool"},
	})
	require.NoError(t, err)
	require.Len(t, out.Tools, 1)
	assert.Equal(t, []string{"no_such_tool"}, out.Unknown)
}

func TestDescribeToolsAllUnknownFails(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, &recordingUpstream{}, nil)

	_, err := d.DescribeTools(context.Background(), DescribeToolsInput{
		Names: []string{"ghost", "phantom"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrToolNotFound)
}

func TestCallToolDelegatesToUpstream(t *testing.T) {
	t.Parallel()

	upstream := &recordingUpstream{
		result: &vmcp.ToolCallResult{
			Content: []vmcp.Content{{Type: "text", Text: "done"}},
		},
	}
	d := newTestDispatcher(t, upstream, nil)

	result, err := d.CallTool(context.Background(), CallToolInput{
		Name: "create_issue",
		Args: map[string]any{"title": "bug"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "done", result.Content[0].Text)
	assert.Equal(t, []string{"create_issue"}, upstream.calls)
}

func TestCallToolRelaysIsError(t *testing.T) {
	t.Parallel()

	upstream := &recordingUpstream{
		result: &vmcp.ToolCallResult{
			Content: []vmcp.Content{{Type: "text", Text: "upstream rejected"}},
			IsError: true,
		},
	}
	d := newTestDispatcher(t, upstream, nil)

	result, err := d.CallTool(context.Background(), CallToolInput{Name: "create_issue"}, nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCallToolUnknownNameNeverReachesUpstream(t *testing.T) {
	t.Parallel()

	upstream := &recordingUpstream{}
	d := newTestDispatcher(t, upstream, nil)

	_, err := d.CallTool(context.Background(), CallToolInput{Name: "NONEXISTENT"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrToolNotFound)
	assert.Empty(t, upstream.calls)
}

func TestCallToolEmitsAuditEntries(t *testing.T) {
	t.Parallel()

	sink := audit.NewMemorySink()
	upstream := &recordingUpstream{result: &vmcp.ToolCallResult{}}
	d := newTestDispatcher(t, upstream, sink)

	ctx := audit.WithUserAgent(context.Background(), "audit-client/1.0")
	_, err := d.CallTool(ctx, CallToolInput{Name: "create_issue"}, nil)
	require.NoError(t, err)
	_, err = d.SearchTools(ctx, SearchToolsInput{Query: "issue"})
	require.NoError(t, err)

	entries := sink.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, audit.CallKindInvocation, entries[0].CallKind)
	assert.Equal(t, "jira", entries[0].Connection)
	assert.Equal(t, "audit-client/1.0", entries[0].UserAgent)
	assert.NotEmpty(t, entries[0].Output)
	assert.Equal(t, audit.CallKindDiscovery, entries[1].CallKind)
	assert.NotZero(t, entries[1].Properties["result_count"])
}

func TestSelectionToolDefinitions(t *testing.T) {
	t.Parallel()

	defs := SelectionToolDefinitions()
	require.Len(t, defs, 3)

	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
		assert.NotEmpty(t, def.RawInputSchema)
	}
	assert.Equal(t, []string{SearchToolsName, DescribeToolsName, CallToolName}, names)
}

func TestExecutionToolDefinitions(t *testing.T) {
	t.Parallel()

	defs := ExecutionToolDefinitions()
	require.Len(t, defs, 1)
	assert.Equal(t, RunCodeName, defs[0].Name)
	assert.Contains(t, string(defs[0].RawInputSchema), `"code"`)
}
