// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides catalog caching for upstream capability lists.
// Aggregation consults the cache before querying upstreams; entries are
// invalidated explicitly when a connection's configuration changes, not by
// TTL expiry.
package cache

import (
	"context"
	"errors"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// ErrCacheMiss indicates no cached catalog exists for the requested key.
var ErrCacheMiss = errors.New("cache miss")

// CatalogCache stores per-connection capability lists keyed by connection
// name. Implementations must be safe for concurrent use.
type CatalogCache interface {
	// Get returns the cached capability list for a connection.
	// Returns an error wrapping ErrCacheMiss when no entry exists.
	Get(ctx context.Context, connectionName string) (*vmcp.CapabilityList, error)

	// Set stores the capability list for a connection, replacing any
	// existing entry.
	Set(ctx context.Context, connectionName string, caps *vmcp.CapabilityList) error

	// Invalidate removes the cached entry for a connection. Removing a
	// nonexistent entry is not an error.
	Invalidate(ctx context.Context, connectionName string) error

	// Close releases resources held by the cache.
	Close() error
}
