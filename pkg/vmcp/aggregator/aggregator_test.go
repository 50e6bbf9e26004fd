// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/cache"
	"github.com/virtualmcp/gateway/pkg/vmcp/config"
)

// fakeUpstreamClient serves canned capability lists keyed by connection ID
// and counts list calls per connection.
type fakeUpstreamClient struct {
	mu           sync.Mutex
	capabilities map[string]*vmcp.CapabilityList
	failing      map[string]error
	listCalls    map[string]int
}

func newFakeUpstreamClient() *fakeUpstreamClient {
	return &fakeUpstreamClient{
		capabilities: make(map[string]*vmcp.CapabilityList),
		failing:      make(map[string]error),
		listCalls:    make(map[string]int),
	}
}

func (f *fakeUpstreamClient) ListCapabilities(
	_ context.Context, target *vmcp.ConnectionTarget,
) (*vmcp.CapabilityList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls[target.ConnectionID]++
	if err, ok := f.failing[target.ConnectionID]; ok {
		return nil, err
	}
	caps, ok := f.capabilities[target.ConnectionID]
	if !ok {
		return &vmcp.CapabilityList{}, nil
	}
	return caps, nil
}

func (*fakeUpstreamClient) CallTool(
	context.Context, *vmcp.ConnectionTarget, string, map[string]any, map[string]any,
) (*vmcp.ToolCallResult, error) {
	return nil, errors.New("not implemented")
}

func (*fakeUpstreamClient) ReadResource(
	context.Context, *vmcp.ConnectionTarget, string,
) (*vmcp.ResourceReadResult, error) {
	return nil, errors.New("not implemented")
}

func (*fakeUpstreamClient) GetPrompt(
	context.Context, *vmcp.ConnectionTarget, string, map[string]any,
) (*vmcp.PromptGetResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeUpstreamClient) listCallCount(connectionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[connectionID]
}

func testConnection(name string) *vmcp.Connection {
	return &vmcp.Connection{
		Name:          name,
		BaseURL:       "http://" + name + ".local/mcp",
		TransportType: vmcp.TransportStreamableHTTP,
	}
}

func newTestAggregator(
	t *testing.T,
	conns []*vmcp.Connection,
	upstream vmcp.UpstreamClient,
	aggConfig *config.AggregationConfig,
) Aggregator {
	t.Helper()
	registry, err := vmcp.NewRegistry(conns)
	require.NoError(t, err)
	resolver, err := NewConflictResolver(aggConfig)
	require.NoError(t, err)
	return NewDefaultAggregator(registry, upstream, cache.NewMemoryCache(), resolver, aggConfig)
}

func TestAggregateDeduplicateFirstWins(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["jira"] = &vmcp.CapabilityList{
		Tools: []vmcp.Tool{
			{Name: "create_issue", Description: "jira create"},
			{Name: "search", Description: "jira search"},
		},
	}
	upstream.capabilities["github"] = &vmcp.CapabilityList{
		Tools: []vmcp.Tool{
			{Name: "search", Description: "github search"},
			{Name: "open_pr", Description: "github pr"},
		},
	}

	agg := newTestAggregator(t,
		[]*vmcp.Connection{testConnection("jira"), testConnection("github")},
		upstream, nil)

	result, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	names := toolNames(result.Tools)
	assert.Equal(t, []string{"create_issue", "open_pr", "search"}, names)

	// The jira copy of "search" wins because jira comes first in config order.
	target := result.RoutingTable.Tools["search"]
	require.NotNil(t, target)
	assert.Equal(t, "jira", target.ConnectionID)
	assert.Empty(t, target.OriginalCapabilityName)
	assert.Equal(t, 2, result.Metadata.ConnectionCount)
	assert.Equal(t, 3, result.Metadata.ToolCount)
}

func TestAggregatePrefixAll(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["jira"] = &vmcp.CapabilityList{
		Tools:   []vmcp.Tool{{Name: "search"}},
		Prompts: []vmcp.Prompt{{Name: "triage"}},
	}
	upstream.capabilities["github"] = &vmcp.CapabilityList{
		Tools: []vmcp.Tool{{Name: "search"}},
	}

	aggConfig := &config.AggregationConfig{ConflictResolution: "prefix_all"}
	agg := newTestAggregator(t,
		[]*vmcp.Connection{testConnection("jira"), testConnection("github")},
		upstream, aggConfig)

	result, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"github_search", "jira_search"}, toolNames(result.Tools))

	// Prefixed names must route back to the upstream's original name.
	target := result.RoutingTable.Tools["github_search"]
	require.NotNil(t, target)
	assert.Equal(t, "github", target.ConnectionID)
	assert.Equal(t, "search", target.OriginalCapabilityName)
	assert.Equal(t, "search", target.UpstreamCapabilityName("github_search"))

	require.Len(t, result.Prompts, 1)
	assert.Equal(t, "jira_triage", result.Prompts[0].Name)
	promptTarget := result.RoutingTable.Prompts["jira_triage"]
	require.NotNil(t, promptTarget)
	assert.Equal(t, "triage", promptTarget.OriginalCapabilityName)
}

// Routing targets must come from a registry lookup, never from a stub
// built from just the connection name. A target with no transport details
// would mean the connection key used for the lookup did not match the key
// the registry indexes by.
func TestAggregateRoutingTargetsCarryConnectionDetails(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["jira"] = &vmcp.CapabilityList{
		Tools:     []vmcp.Tool{{Name: "search"}},
		Resources: []vmcp.Resource{{URI: "jira://boards", Name: "boards"}},
		Prompts:   []vmcp.Prompt{{Name: "triage"}},
	}

	aggConfig := &config.AggregationConfig{ConflictResolution: "prefix_all"}
	agg := newTestAggregator(t, []*vmcp.Connection{testConnection("jira")}, upstream, aggConfig)

	result, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	for name, target := range result.RoutingTable.Tools {
		assert.Equal(t, "http://jira.local/mcp", target.BaseURL, "tool %s", name)
		assert.Equal(t, vmcp.TransportStreamableHTTP, target.TransportType, "tool %s", name)
	}
	resourceTarget := result.RoutingTable.Resources["jira://boards"]
	require.NotNil(t, resourceTarget)
	assert.Equal(t, "http://jira.local/mcp", resourceTarget.BaseURL)
	promptTarget := result.RoutingTable.Prompts["jira_triage"]
	require.NotNil(t, promptTarget)
	assert.Equal(t, "http://jira.local/mcp", promptTarget.BaseURL)
}

func TestAggregateCustomFailsClosedOnConflict(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["jira"] = &vmcp.CapabilityList{Tools: []vmcp.Tool{{Name: "search"}}}
	upstream.capabilities["github"] = &vmcp.CapabilityList{Tools: []vmcp.Tool{{Name: "search"}}}

	aggConfig := &config.AggregationConfig{
		ConflictResolution: "custom",
		Tools: []*config.ConnectionToolConfig{
			{Connection: "jira", Overrides: map[string]*config.ToolOverride{
				"create_issue": {Name: "jira_create"},
			}},
		},
	}
	agg := newTestAggregator(t,
		[]*vmcp.Connection{testConnection("jira"), testConnection("github")},
		upstream, aggConfig)

	_, err := agg.Aggregate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrAggregationConflict)
	assert.Contains(t, err.Error(), "search")
}

func TestAggregateCustomWithOverridesSucceeds(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["jira"] = &vmcp.CapabilityList{Tools: []vmcp.Tool{{Name: "search"}}}
	upstream.capabilities["github"] = &vmcp.CapabilityList{Tools: []vmcp.Tool{{Name: "search"}}}

	aggConfig := &config.AggregationConfig{
		ConflictResolution: "custom",
		Tools: []*config.ConnectionToolConfig{
			{Connection: "github", Overrides: map[string]*config.ToolOverride{
				"search": {Name: "code_search", Description: "Search GitHub code"},
			}},
		},
	}
	agg := newTestAggregator(t,
		[]*vmcp.Connection{testConnection("jira"), testConnection("github")},
		upstream, aggConfig)

	result, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"code_search", "search"}, toolNames(result.Tools))

	target := result.RoutingTable.Tools["code_search"]
	require.NotNil(t, target)
	assert.Equal(t, "github", target.ConnectionID)
	assert.Equal(t, "search", target.OriginalCapabilityName)

	jiraTarget := result.RoutingTable.Tools["search"]
	require.NotNil(t, jiraTarget)
	assert.Equal(t, "jira", jiraTarget.ConnectionID)
}

func TestAggregateFilterMatchesOverriddenNames(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["jira"] = &vmcp.CapabilityList{
		Tools: []vmcp.Tool{
			{Name: "search"},
			{Name: "create_issue"},
			{Name: "delete_issue"},
		},
	}

	aggConfig := &config.AggregationConfig{
		Tools: []*config.ConnectionToolConfig{
			{
				Connection: "jira",
				Filter:     []string{"jira_search", "create_issue"},
				Overrides: map[string]*config.ToolOverride{
					"search": {Name: "jira_search"},
				},
			},
		},
	}
	agg := newTestAggregator(t, []*vmcp.Connection{testConnection("jira")}, upstream, aggConfig)

	result, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	// The filter sees post-override names, so "jira_search" passes and the
	// unlisted "delete_issue" does not.
	assert.Equal(t, []string{"create_issue", "jira_search"}, toolNames(result.Tools))
}

func TestAggregateResourceFilterAndDedup(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["jira"] = &vmcp.CapabilityList{
		Resources: []vmcp.Resource{
			{URI: "jira://projects/abc", Name: "abc", ConnectionID: "jira"},
			{URI: "file:///tmp/scratch", Name: "scratch", ConnectionID: "jira"},
		},
	}
	upstream.capabilities["mirror"] = &vmcp.CapabilityList{
		Resources: []vmcp.Resource{
			{URI: "jira://projects/abc", Name: "abc-copy", ConnectionID: "mirror"},
		},
	}

	aggConfig := &config.AggregationConfig{
		Tools: []*config.ConnectionToolConfig{
			{Connection: "jira", ResourceFilters: []string{"jira://**"}},
		},
	}
	agg := newTestAggregator(t,
		[]*vmcp.Connection{testConnection("jira"), testConnection("mirror")},
		upstream, aggConfig)

	result, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Resources, 1)
	assert.Equal(t, "jira://projects/abc", result.Resources[0].URI)

	// The jira copy wins the URI collision because jira comes first.
	target := result.RoutingTable.Resources["jira://projects/abc"]
	require.NotNil(t, target)
	assert.Equal(t, "jira", target.ConnectionID)
}

func TestAggregatePromptFilter(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["jira"] = &vmcp.CapabilityList{
		Prompts: []vmcp.Prompt{
			{Name: "triage", Description: "triage an issue"},
			{Name: "standup", Description: "write a standup summary"},
		},
	}

	aggConfig := &config.AggregationConfig{
		Tools: []*config.ConnectionToolConfig{
			{Connection: "jira", PromptFilter: []string{"triage"}},
		},
	}
	agg := newTestAggregator(t, []*vmcp.Connection{testConnection("jira")}, upstream, aggConfig)

	result, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Prompts, 1)
	assert.Equal(t, "triage", result.Prompts[0].Name)
	assert.NotNil(t, result.RoutingTable.Prompts["triage"])
}

// An empty filter list is equivalent to an absent one: everything from the
// connection is exposed.
func TestAggregateEmptyFilterExposesAll(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["jira"] = &vmcp.CapabilityList{
		Tools:   []vmcp.Tool{{Name: "create_issue"}, {Name: "search_issues"}},
		Prompts: []vmcp.Prompt{{Name: "triage"}},
	}

	aggConfig := &config.AggregationConfig{
		ConflictResolution: "deduplicate",
		Tools: []*config.ConnectionToolConfig{
			{Connection: "jira", Filter: []string{}, PromptFilter: []string{}},
		},
	}
	agg := newTestAggregator(t, []*vmcp.Connection{testConnection("jira")}, upstream, aggConfig)

	result, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"create_issue", "search_issues"}, toolNames(result.Tools))
	require.Len(t, result.Prompts, 1)
}

func TestAggregateToleratesFailedConnection(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["jira"] = &vmcp.CapabilityList{Tools: []vmcp.Tool{{Name: "search"}}}
	upstream.failing["github"] = errors.New("connection refused")

	agg := newTestAggregator(t,
		[]*vmcp.Connection{testConnection("jira"), testConnection("github")},
		upstream, nil)

	result, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Metadata.ConnectionCount)
	assert.Equal(t, []string{"search"}, toolNames(result.Tools))
}

func TestAggregateFailsWhenAllConnectionsFail(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.failing["jira"] = errors.New("connection refused")
	upstream.failing["github"] = errors.New("connection refused")

	agg := newTestAggregator(t,
		[]*vmcp.Connection{testConnection("jira"), testConnection("github")},
		upstream, nil)

	_, err := agg.Aggregate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoConnections)
}

func TestAggregateUsesCatalogCache(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["jira"] = &vmcp.CapabilityList{Tools: []vmcp.Tool{{Name: "search"}}}

	agg := newTestAggregator(t, []*vmcp.Connection{testConnection("jira")}, upstream, nil)

	ctx := context.Background()
	_, err := agg.Aggregate(ctx)
	require.NoError(t, err)
	_, err = agg.Aggregate(ctx)
	require.NoError(t, err)

	// The second pass is served from the catalog cache.
	assert.Equal(t, 1, upstream.listCallCount("jira"))
}

func TestAggregateDeterministicOrder(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstreamClient()
	upstream.capabilities["a"] = &vmcp.CapabilityList{
		Tools: []vmcp.Tool{{Name: "zeta"}, {Name: "alpha"}},
	}
	upstream.capabilities["b"] = &vmcp.CapabilityList{
		Tools: []vmcp.Tool{{Name: "mid"}},
	}

	agg := newTestAggregator(t,
		[]*vmcp.Connection{testConnection("a"), testConnection("b")},
		upstream, nil)

	first, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, toolNames(first.Tools))
}

func toolNames(tools []vmcp.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}
