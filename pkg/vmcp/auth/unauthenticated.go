// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"net/http"
)

// StrategyUnauthenticated is the name of the no-op authentication strategy.
const StrategyUnauthenticated = "unauthenticated"

// unauthenticatedStrategy passes requests through without modification.
// Used for upstreams that require no authentication.
type unauthenticatedStrategy struct{}

// NewUnauthenticatedStrategy creates the no-op authentication strategy.
func NewUnauthenticatedStrategy() Strategy {
	return &unauthenticatedStrategy{}
}

func (*unauthenticatedStrategy) Name() string {
	return StrategyUnauthenticated
}

func (*unauthenticatedStrategy) Authenticate(_ context.Context, _ *http.Request, _ map[string]any) error {
	return nil
}

func (*unauthenticatedStrategy) Validate(_ map[string]any) error {
	return nil
}
