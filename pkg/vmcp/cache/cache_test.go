// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

func sampleCaps() *vmcp.CapabilityList {
	return &vmcp.CapabilityList{
		Tools: []vmcp.Tool{
			{Name: "create_ticket", Description: "Create a ticket", ConnectionID: "jira"},
			{Name: "list_tickets", Description: "List tickets", ConnectionID: "jira"},
		},
		Resources: []vmcp.Resource{
			{URI: "jira://boards", Name: "boards", ConnectionID: "jira"},
		},
		Prompts: []vmcp.Prompt{
			{Name: "triage", Description: "Triage a ticket", ConnectionID: "jira"},
		},
	}
}

func TestMemoryCache(t *testing.T) {
	t.Parallel()
	runCacheTests(t, func(t *testing.T) CatalogCache {
		t.Helper()
		return NewMemoryCache()
	})
}

func TestRedisCache(t *testing.T) {
	t.Parallel()
	runCacheTests(t, func(t *testing.T) CatalogCache {
		t.Helper()
		mr := miniredis.RunT(t)
		c, err := NewRedisCache(context.Background(), mr.Addr(), "", 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		return c
	})
}

func runCacheTests(t *testing.T, newCache func(t *testing.T) CatalogCache) {
	t.Helper()
	ctx := context.Background()

	t.Run("get before set is a miss", func(t *testing.T) {
		t.Parallel()
		c := newCache(t)
		_, err := c.Get(ctx, "jira")
		require.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("set then get round-trips", func(t *testing.T) {
		t.Parallel()
		c := newCache(t)
		want := sampleCaps()
		require.NoError(t, c.Set(ctx, "jira", want))

		got, err := c.Get(ctx, "jira")
		require.NoError(t, err)
		assert.Equal(t, want.Tools, got.Tools)
		assert.Equal(t, want.Resources, got.Resources)
		assert.Equal(t, want.Prompts, got.Prompts)
	})

	t.Run("set replaces existing entry", func(t *testing.T) {
		t.Parallel()
		c := newCache(t)
		require.NoError(t, c.Set(ctx, "jira", sampleCaps()))

		replacement := &vmcp.CapabilityList{
			Tools: []vmcp.Tool{{Name: "close_ticket", ConnectionID: "jira"}},
		}
		require.NoError(t, c.Set(ctx, "jira", replacement))

		got, err := c.Get(ctx, "jira")
		require.NoError(t, err)
		require.Len(t, got.Tools, 1)
		assert.Equal(t, "close_ticket", got.Tools[0].Name)
	})

	t.Run("invalidate removes entry", func(t *testing.T) {
		t.Parallel()
		c := newCache(t)
		require.NoError(t, c.Set(ctx, "jira", sampleCaps()))
		require.NoError(t, c.Invalidate(ctx, "jira"))

		_, err := c.Get(ctx, "jira")
		require.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("invalidate of missing entry is not an error", func(t *testing.T) {
		t.Parallel()
		c := newCache(t)
		require.NoError(t, c.Invalidate(ctx, "nope"))
	})

	t.Run("entries are isolated per connection", func(t *testing.T) {
		t.Parallel()
		c := newCache(t)
		require.NoError(t, c.Set(ctx, "jira", sampleCaps()))
		require.NoError(t, c.Set(ctx, "github", &vmcp.CapabilityList{
			Tools: []vmcp.Tool{{Name: "create_issue", ConnectionID: "github"}},
		}))
		require.NoError(t, c.Invalidate(ctx, "jira"))

		_, err := c.Get(ctx, "jira")
		require.ErrorIs(t, err, ErrCacheMiss)

		got, err := c.Get(ctx, "github")
		require.NoError(t, err)
		require.Len(t, got.Tools, 1)
		assert.Equal(t, "create_issue", got.Tools[0].Name)
	})
}

func TestRedisCacheCorruptEntryIsMiss(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, mr.Set(keyPrefix+"jira", "{not json"))

	_, err = c.Get(context.Background(), "jira")
	require.ErrorIs(t, err, ErrCacheMiss)
}
