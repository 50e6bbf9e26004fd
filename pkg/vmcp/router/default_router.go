// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// defaultRouter is a table-driven Router guarded by an RWMutex. Lookups
// take the read lock; UpdateRoutingTable swaps the whole table under the
// write lock so readers never see a partially built index.
type defaultRouter struct {
	mu    sync.RWMutex
	table *vmcp.RoutingTable
}

// NewRouter creates a Router with an empty routing table.
func NewRouter() Router {
	return &defaultRouter{
		table: &vmcp.RoutingTable{
			Tools:     make(map[string]*vmcp.ConnectionTarget),
			Resources: make(map[string]*vmcp.ConnectionTarget),
			Prompts:   make(map[string]*vmcp.ConnectionTarget),
		},
	}
}

func (r *defaultRouter) RouteTool(_ context.Context, toolName string) (*vmcp.ConnectionTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target, ok := r.table.Tools[toolName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vmcp.ErrToolNotFound, toolName)
	}
	return target, nil
}

func (r *defaultRouter) RouteResource(_ context.Context, uri string) (*vmcp.ConnectionTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target, ok := r.table.Resources[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
	return target, nil
}

func (r *defaultRouter) RoutePrompt(_ context.Context, promptName string) (*vmcp.ConnectionTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target, ok := r.table.Prompts[promptName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, promptName)
	}
	return target, nil
}

func (r *defaultRouter) UpdateRoutingTable(_ context.Context, table *vmcp.RoutingTable) error {
	if table == nil {
		return fmt.Errorf("%w: routing table cannot be nil", vmcp.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = table
	return nil
}
