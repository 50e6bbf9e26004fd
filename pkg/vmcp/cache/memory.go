// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// memoryCache is an in-process CatalogCache. The default backend for
// single-instance deployments.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*vmcp.CapabilityList
}

// NewMemoryCache creates an in-process CatalogCache.
func NewMemoryCache() CatalogCache {
	return &memoryCache{entries: make(map[string]*vmcp.CapabilityList)}
}

func (c *memoryCache) Get(_ context.Context, connectionName string) (*vmcp.CapabilityList, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	caps, ok := c.entries[connectionName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, connectionName)
	}
	return caps, nil
}

func (c *memoryCache) Set(_ context.Context, connectionName string, caps *vmcp.CapabilityList) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[connectionName] = caps
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, connectionName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, connectionName)
	return nil
}

func (c *memoryCache) Close() error {
	return nil
}
