// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides the configuration model for the gateway.
//
// The model is loaded from YAML. Credentials are never stored in the file;
// fields ending in Env name environment variables that are resolved at load
// time.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so it marshals as a duration string ("30s",
// "1m") instead of a nanosecond integer.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// Config is the top-level gateway configuration.
type Config struct {
	// Name is the virtual endpoint name, used in logs and audit entries.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Host is the listen address. Defaults to 127.0.0.1.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port is the listen port. Defaults to 4483.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Connections are the upstream MCP servers to aggregate.
	Connections []ConnectionConfig `json:"connections" yaml:"connections"`

	// Aggregation configures capability filtering and collision handling.
	Aggregation *AggregationConfig `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`

	// Cache configures the catalog cache backend.
	Cache *CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`

	// Sandbox configures code execution limits.
	Sandbox *SandboxConfig `json:"sandbox,omitempty" yaml:"sandbox,omitempty"`

	// Audit configures audit logging.
	Audit *AuditConfig `json:"audit,omitempty" yaml:"audit,omitempty"`

	// Timeouts configures operation deadlines.
	Timeouts *TimeoutConfig `json:"timeouts,omitempty" yaml:"timeouts,omitempty"`
}

// ConnectionConfig describes one upstream MCP server.
type ConnectionConfig struct {
	// Name identifies the connection. Must be unique; it is also the
	// namespace prefix under the prefix_all collision strategy.
	Name string `json:"name" yaml:"name"`

	// URL is the upstream's MCP endpoint.
	URL string `json:"url" yaml:"url"`

	// Transport is the MCP transport protocol: "streamable-http" or "sse".
	// Defaults to "streamable-http".
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty"`

	// Timeout bounds every call to this upstream.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Auth configures outgoing authentication.
	Auth *AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`

	// Metadata stores additional connection information.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// AuthConfig configures outgoing authentication for one connection.
type AuthConfig struct {
	// Type is the strategy name: "unauthenticated" or "header_injection".
	Type string `json:"type" yaml:"type"`

	// HeaderName is the header to inject (header_injection only).
	HeaderName string `json:"headerName,omitempty" yaml:"headerName,omitempty"`

	// HeaderValueEnv names the environment variable holding the header
	// value. The value is resolved at load time and never written back.
	HeaderValueEnv string `json:"headerValueEnv,omitempty" yaml:"headerValueEnv,omitempty"`
}

// AggregationConfig configures capability selection and collision handling.
type AggregationConfig struct {
	// ConflictResolution selects the collision strategy:
	// "deduplicate" (default), "prefix_all" or "custom".
	ConflictResolution string `json:"conflictResolution,omitempty" yaml:"conflictResolution,omitempty"`

	// Tools holds per-connection filters and overrides.
	Tools []*ConnectionToolConfig `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// ConnectionToolConfig configures capability filtering and overrides for one
// connection. Filters and overrides apply before collision resolution.
type ConnectionToolConfig struct {
	// Connection names the connection this config applies to.
	Connection string `json:"connection" yaml:"connection"`

	// Filter lists the tool names to expose. Empty means all tools.
	Filter []string `json:"filter,omitempty" yaml:"filter,omitempty"`

	// ResourceFilters lists glob patterns for resource URIs to expose.
	// Empty means all resources.
	ResourceFilters []string `json:"resourceFilters,omitempty" yaml:"resourceFilters,omitempty"`

	// PromptFilter lists the prompt names to expose. Empty means all
	// prompts.
	PromptFilter []string `json:"promptFilter,omitempty" yaml:"promptFilter,omitempty"`

	// Overrides maps original tool names to renames and description
	// replacements.
	Overrides map[string]*ToolOverride `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// ToolOverride renames a tool or replaces its description.
type ToolOverride struct {
	// Name is the new exposed name. Empty keeps the original.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description replaces the tool description. Empty keeps the original.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// CacheConfig configures the catalog cache.
type CacheConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	// Redis configures the Redis backend.
	Redis *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// RedisConfig configures the Redis catalog cache backend.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string `json:"addr" yaml:"addr"`

	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `json:"passwordEnv,omitempty" yaml:"passwordEnv,omitempty"`

	// DB is the Redis database number.
	DB int `json:"db,omitempty" yaml:"db,omitempty"`
}

// SandboxConfig configures sandboxed code execution.
type SandboxConfig struct {
	// Timeout is the wall-clock budget per code submission.
	// Defaults to 10s.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// AuditConfig configures audit logging.
type AuditConfig struct {
	// Enabled turns audit logging on.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// TimeoutConfig configures operation deadlines.
type TimeoutConfig struct {
	// Aggregation bounds the whole catalog aggregation pass.
	Aggregation Duration `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`

	// Shutdown bounds graceful server shutdown.
	Shutdown Duration `json:"shutdown,omitempty" yaml:"shutdown,omitempty"`
}
