// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"

	"github.com/gobwas/glob"

	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/auth"
)

var allowedTransports = map[string]bool{
	vmcp.TransportStreamableHTTP: true,
	vmcp.TransportSSE:            true,
}

var allowedConflictStrategies = map[string]bool{
	string(vmcp.ConflictStrategyDeduplicate): true,
	string(vmcp.ConflictStrategyPrefixAll):   true,
	string(vmcp.ConflictStrategyCustom):      true,
}

// Validate checks the configuration for structural errors. All returned
// errors wrap vmcp.ErrInvalidConfig.
func (c *Config) Validate() error {
	if len(c.Connections) == 0 {
		return fmt.Errorf("%w: at least one connection is required", vmcp.ErrInvalidConfig)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", vmcp.ErrInvalidConfig, c.Port)
	}

	names := make(map[string]bool, len(c.Connections))
	for i := range c.Connections {
		cc := &c.Connections[i]
		if err := validateConnection(cc); err != nil {
			return err
		}
		if names[cc.Name] {
			return fmt.Errorf("%w: duplicate connection name %q", vmcp.ErrInvalidConfig, cc.Name)
		}
		names[cc.Name] = true
	}

	if err := c.validateAggregation(names); err != nil {
		return err
	}
	return c.validateCache()
}

func validateConnection(cc *ConnectionConfig) error {
	if cc.Name == "" {
		return fmt.Errorf("%w: connection with empty name", vmcp.ErrInvalidConfig)
	}
	if cc.URL == "" {
		return fmt.Errorf("%w: connection %q has no URL", vmcp.ErrInvalidConfig, cc.Name)
	}
	if u, err := url.Parse(cc.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: connection %q has invalid URL %q", vmcp.ErrInvalidConfig, cc.Name, cc.URL)
	}
	if !allowedTransports[cc.Transport] {
		return fmt.Errorf("%w: connection %q has unsupported transport %q (allowed: %s, %s)",
			vmcp.ErrInvalidConfig, cc.Name, cc.Transport,
			vmcp.TransportStreamableHTTP, vmcp.TransportSSE)
	}
	if cc.Auth != nil && cc.Auth.Type != "" {
		switch cc.Auth.Type {
		case auth.StrategyUnauthenticated:
		case auth.StrategyHeaderInjection:
			if cc.Auth.HeaderName == "" {
				return fmt.Errorf("%w: connection %q: header_injection requires headerName",
					vmcp.ErrInvalidConfig, cc.Name)
			}
			if cc.Auth.HeaderValueEnv == "" {
				return fmt.Errorf("%w: connection %q: header_injection requires headerValueEnv",
					vmcp.ErrInvalidConfig, cc.Name)
			}
		default:
			return fmt.Errorf("%w: connection %q has unknown auth type %q",
				vmcp.ErrInvalidConfig, cc.Name, cc.Auth.Type)
		}
	}
	return nil
}

func (c *Config) validateAggregation(connectionNames map[string]bool) error {
	agg := c.Aggregation
	if !allowedConflictStrategies[agg.ConflictResolution] {
		return fmt.Errorf("%w: unknown conflict resolution strategy %q (allowed: %s, %s, %s)",
			vmcp.ErrInvalidConfig, agg.ConflictResolution,
			vmcp.ConflictStrategyDeduplicate, vmcp.ConflictStrategyPrefixAll, vmcp.ConflictStrategyCustom)
	}

	overrideCount := 0
	for _, tc := range agg.Tools {
		if tc == nil {
			continue
		}
		if !connectionNames[tc.Connection] {
			return fmt.Errorf("%w: tool config references unknown connection %q",
				vmcp.ErrInvalidConfig, tc.Connection)
		}
		for _, pattern := range tc.ResourceFilters {
			if _, err := glob.Compile(pattern); err != nil {
				return fmt.Errorf("%w: connection %q has invalid resource filter pattern %q: %v",
					vmcp.ErrInvalidConfig, tc.Connection, pattern, err)
			}
		}
		overrideCount += len(tc.Overrides)
	}

	// The custom strategy fails closed on collisions, so a configuration
	// with no overrides at all cannot resolve anything.
	if agg.ConflictResolution == string(vmcp.ConflictStrategyCustom) && overrideCount == 0 {
		return fmt.Errorf("%w: custom conflict resolution requires at least one override",
			vmcp.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "memory":
		return nil
	case "redis":
		if c.Cache.Redis == nil || c.Cache.Redis.Addr == "" {
			return fmt.Errorf("%w: redis cache backend requires redis.addr", vmcp.ErrInvalidConfig)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown cache backend %q (allowed: memory, redis)",
			vmcp.ErrInvalidConfig, c.Cache.Backend)
	}
}
