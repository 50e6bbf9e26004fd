// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth provides outgoing authentication strategies for upstream
// MCP connections. A strategy mutates outgoing HTTP requests to attach
// credentials before they leave the gateway.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrUnknownStrategy indicates a connection references an authentication
// strategy that is not registered.
var ErrUnknownStrategy = errors.New("unknown authentication strategy")

// Strategy authenticates outgoing requests to upstream MCP servers.
// Implementations must be safe for concurrent use; the same instance
// serves every connection that selects the strategy.
type Strategy interface {
	// Name returns the strategy identifier used in configuration.
	Name() string

	// Authenticate mutates req to attach credentials per config.
	Authenticate(ctx context.Context, req *http.Request, config map[string]any) error

	// Validate checks that config is well-formed for this strategy.
	Validate(config map[string]any) error
}

// Registry holds the available authentication strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a Registry preloaded with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(NewUnauthenticatedStrategy())
	r.Register(NewHeaderInjectionStrategy())
	return r
}

// Register adds a strategy, replacing any existing one with the same name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy with the given name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}
