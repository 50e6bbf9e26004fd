// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package vmcp

import (
	"context"
	"fmt"
)

// ConnectionRegistry provides read access to the set of configured upstream
// connections. Implementations must be safe for concurrent use.
type ConnectionRegistry interface {
	// List returns all configured connections in configuration order.
	// Order is significant: the deduplicate collision strategy keeps the
	// first occurrence in this order.
	List(ctx context.Context) ([]*Connection, error)

	// Get returns the connection with the given name.
	// Returns an error wrapping ErrInvalidInput if no such connection exists.
	Get(ctx context.Context, name string) (*Connection, error)

	// Count returns the number of configured connections.
	Count(ctx context.Context) (int, error)
}

// immutableRegistry is a ConnectionRegistry backed by a fixed snapshot taken
// at construction. Connection configuration changes produce a new registry.
type immutableRegistry struct {
	ordered []*Connection
	byName  map[string]*Connection
}

// NewRegistry creates an immutable ConnectionRegistry from the given
// connections. Duplicate names are rejected.
func NewRegistry(conns []*Connection) (ConnectionRegistry, error) {
	byName := make(map[string]*Connection, len(conns))
	ordered := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		if c == nil || c.Name == "" {
			return nil, fmt.Errorf("%w: connection with empty name", ErrInvalidConfig)
		}
		if _, ok := byName[c.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate connection name %q", ErrInvalidConfig, c.Name)
		}
		byName[c.Name] = c
		ordered = append(ordered, c)
	}
	return &immutableRegistry{ordered: ordered, byName: byName}, nil
}

func (r *immutableRegistry) List(_ context.Context) ([]*Connection, error) {
	out := make([]*Connection, len(r.ordered))
	copy(out, r.ordered)
	return out, nil
}

func (r *immutableRegistry) Get(_ context.Context, name string) (*Connection, error) {
	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown connection %q", ErrInvalidInput, name)
	}
	return c, nil
}

func (r *immutableRegistry) Count(_ context.Context) (int, error) {
	return len(r.ordered), nil
}
