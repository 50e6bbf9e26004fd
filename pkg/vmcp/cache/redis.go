// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// keyPrefix namespaces gateway catalog entries within a shared Redis.
const keyPrefix = "vmcp:catalog:"

// redisCache is a CatalogCache backed by Redis, for deployments where
// multiple gateway replicas share one catalog. Entries are stored without
// TTL; invalidation is explicit.
type redisCache struct {
	client *redis.Client
}

// NewRedisCache creates a CatalogCache backed by the Redis instance at addr.
func NewRedisCache(ctx context.Context, addr, password string, db int) (CatalogCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", addr, err)
	}
	return &redisCache{client: client}, nil
}

func (c *redisCache) Get(ctx context.Context, connectionName string) (*vmcp.CapabilityList, error) {
	data, err := c.client.Get(ctx, keyPrefix+connectionName).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, connectionName)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed for %s: %w", connectionName, err)
	}
	var caps vmcp.CapabilityList
	if err := json.Unmarshal(data, &caps); err != nil {
		// A corrupt entry is treated as a miss so aggregation refreshes it.
		return nil, fmt.Errorf("%w: %s (corrupt entry: %v)", ErrCacheMiss, connectionName, err)
	}
	return &caps, nil
}

func (c *redisCache) Set(ctx context.Context, connectionName string, caps *vmcp.CapabilityList) error {
	data, err := json.Marshal(caps)
	if err != nil {
		return fmt.Errorf("failed to encode catalog for %s: %w", connectionName, err)
	}
	if err := c.client.Set(ctx, keyPrefix+connectionName, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed for %s: %w", connectionName, err)
	}
	return nil
}

func (c *redisCache) Invalidate(ctx context.Context, connectionName string) error {
	if err := c.client.Del(ctx, keyPrefix+connectionName).Err(); err != nil {
		return fmt.Errorf("redis delete failed for %s: %w", connectionName, err)
	}
	return nil
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
