// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// StrategyHeaderInjection is the name of the static header strategy.
const StrategyHeaderInjection = "header_injection"

// Config keys for the header_injection strategy.
const (
	configKeyHeaderName  = "header_name"
	configKeyHeaderValue = "header_value"
)

// headerInjectionStrategy injects a static header into outgoing requests,
// typically an Authorization bearer token or an API key header. The header
// value comes from configuration, where it is resolved from the environment
// at load time so credentials never live in config files.
type headerInjectionStrategy struct{}

// NewHeaderInjectionStrategy creates the static header authentication
// strategy.
func NewHeaderInjectionStrategy() Strategy {
	return &headerInjectionStrategy{}
}

func (*headerInjectionStrategy) Name() string {
	return StrategyHeaderInjection
}

func (s *headerInjectionStrategy) Authenticate(_ context.Context, req *http.Request, config map[string]any) error {
	if err := s.Validate(config); err != nil {
		return err
	}
	name, _ := config[configKeyHeaderName].(string)
	value, _ := config[configKeyHeaderValue].(string)
	req.Header.Set(name, value)
	return nil
}

func (*headerInjectionStrategy) Validate(config map[string]any) error {
	name, ok := config[configKeyHeaderName].(string)
	if !ok || name == "" {
		return fmt.Errorf("%w: header_injection requires %s", vmcp.ErrInvalidConfig, configKeyHeaderName)
	}
	value, ok := config[configKeyHeaderValue].(string)
	if !ok || value == "" {
		return fmt.Errorf("%w: header_injection requires %s", vmcp.ErrInvalidConfig, configKeyHeaderValue)
	}
	return nil
}

// ConfigFromConnectionAuth converts a connection's auth settings into the
// strategy config map form. Returns the strategy name and its config.
func ConfigFromConnectionAuth(a *vmcp.ConnectionAuth) (string, map[string]any) {
	if a == nil || a.Type == "" || a.Type == StrategyUnauthenticated {
		return StrategyUnauthenticated, nil
	}
	return a.Type, map[string]any{
		configKeyHeaderName:  a.HeaderName,
		configKeyHeaderValue: a.HeaderValue,
	}
}
