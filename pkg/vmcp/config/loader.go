// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/auth"
)

// Defaults applied by Load when the file leaves fields empty.
const (
	DefaultHost               = "127.0.0.1"
	DefaultPort               = 4483
	DefaultTransport          = vmcp.TransportStreamableHTTP
	DefaultConflictResolution = string(vmcp.ConflictStrategyDeduplicate)

	defaultConnectionTimeout  = 30 * time.Second
	defaultAggregationTimeout = 60 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultSandboxTimeout     = 10 * time.Second
)

// Load reads, defaults and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", vmcp.ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "virtual-mcp-gateway"
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	for i := range c.Connections {
		if c.Connections[i].Transport == "" {
			c.Connections[i].Transport = DefaultTransport
		}
		if c.Connections[i].Timeout == 0 {
			c.Connections[i].Timeout = Duration(defaultConnectionTimeout)
		}
	}
	if c.Aggregation == nil {
		c.Aggregation = &AggregationConfig{}
	}
	if c.Aggregation.ConflictResolution == "" {
		c.Aggregation.ConflictResolution = DefaultConflictResolution
	}
	if c.Cache == nil {
		c.Cache = &CacheConfig{}
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Sandbox == nil {
		c.Sandbox = &SandboxConfig{}
	}
	if c.Sandbox.Timeout == 0 {
		c.Sandbox.Timeout = Duration(defaultSandboxTimeout)
	}
	if c.Timeouts == nil {
		c.Timeouts = &TimeoutConfig{}
	}
	if c.Timeouts.Aggregation == 0 {
		c.Timeouts.Aggregation = Duration(defaultAggregationTimeout)
	}
	if c.Timeouts.Shutdown == 0 {
		c.Timeouts.Shutdown = Duration(defaultShutdownTimeout)
	}
}

// BuildConnections converts the configured connections into domain objects,
// resolving credential environment variables. Called after Validate.
func (c *Config) BuildConnections() ([]*vmcp.Connection, error) {
	conns := make([]*vmcp.Connection, 0, len(c.Connections))
	now := time.Now().UTC()
	for i := range c.Connections {
		cc := &c.Connections[i]
		conn := &vmcp.Connection{
			Name:          cc.Name,
			BaseURL:       cc.URL,
			TransportType: cc.Transport,
			Timeout:       time.Duration(cc.Timeout),
			Metadata:      cc.Metadata,
			LastUpdated:   now,
		}
		if cc.Auth != nil && cc.Auth.Type != "" && cc.Auth.Type != auth.StrategyUnauthenticated {
			value := os.Getenv(cc.Auth.HeaderValueEnv)
			if value == "" {
				return nil, fmt.Errorf("%w: connection %q: environment variable %q is empty or unset",
					vmcp.ErrInvalidConfig, cc.Name, cc.Auth.HeaderValueEnv)
			}
			conn.Auth = &vmcp.ConnectionAuth{
				Type:        cc.Auth.Type,
				HeaderName:  cc.Auth.HeaderName,
				HeaderValue: value,
			}
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

// RedisPassword resolves the Redis password from the environment.
// Returns the empty string when no password is configured.
func (c *Config) RedisPassword() string {
	if c.Cache == nil || c.Cache.Redis == nil || c.Cache.Redis.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Cache.Redis.PasswordEnv)
}
