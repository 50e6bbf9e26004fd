// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the virtual MCP endpoint that aggregates
// multiple upstream MCP servers behind one streamable HTTP surface.
//
// One MCP protocol server is built per exposure strategy over the same
// aggregated catalog: passthrough advertises every catalog tool directly,
// smart_tool_selection advertises the three discovery meta-tools, and
// code_execution advertises the single sandboxed RUN_CODE tool. Requests
// select a strategy with the strategy query parameter; resources and
// prompts are served identically under every strategy.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/virtualmcp/gateway/pkg/audit"
	"github.com/virtualmcp/gateway/pkg/logger"
	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/aggregator"
	"github.com/virtualmcp/gateway/pkg/vmcp/metatools"
	"github.com/virtualmcp/gateway/pkg/vmcp/router"
	"github.com/virtualmcp/gateway/pkg/vmcp/sandbox"
	"github.com/virtualmcp/gateway/pkg/vmcp/strategy"
)

const (
	// defaultReadHeaderTimeout limits the time to read request headers.
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultReadTimeout is the maximum duration for reading the entire
	// request, including the body.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout is the maximum duration before timing out
	// response writes.
	defaultWriteTimeout = 30 * time.Second

	// defaultIdleTimeout is the keep-alive idle limit.
	defaultIdleTimeout = 120 * time.Second

	// defaultMaxHeaderBytes caps request header size at 1 MB.
	defaultMaxHeaderBytes = 1 << 20

	// defaultShutdownTimeout bounds graceful shutdown.
	defaultShutdownTimeout = 10 * time.Second
)

// strategyQueryParam selects the exposure strategy per request.
const strategyQueryParam = "strategy"

// Config holds the gateway server configuration.
type Config struct {
	// Name is the server name exposed in the MCP initialize handshake.
	Name string

	// Version is the advertised server version.
	Version string

	// Host is the bind address.
	Host string

	// Port is the bind port. Port 0 binds a random available port, which
	// tests rely on.
	Port int

	// EndpointPath is the MCP endpoint path.
	EndpointPath string

	// SandboxTimeout is the RUN_CODE wall-clock budget.
	SandboxTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// AuditSink receives one entry per tool invocation. Nil disables
	// audit emission.
	AuditSink audit.Sink
}

// Server is the virtual MCP gateway server.
type Server struct {
	config *Config

	// strategyHandlers maps each exposure strategy to its streamable HTTP
	// handler. Immutable after construction.
	strategyHandlers map[strategy.Strategy]http.Handler

	httpServer *http.Server

	listener   net.Listener
	listenerMu sync.RWMutex

	ready     chan struct{}
	readyOnce sync.Once
}

// New builds the gateway server from an aggregated catalog. The catalog,
// routing table, and upstream client are shared by all three strategy
// surfaces, which is what makes CALL_TOOL equivalent to passthrough
// dispatch.
func New(
	cfg *Config,
	catalog *aggregator.AggregatedCapabilities,
	rt router.Router,
	upstream vmcp.UpstreamClient,
) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: server config is required", vmcp.ErrInvalidConfig)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: aggregated catalog is required", vmcp.ErrInvalidConfig)
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if cfg.Name == "" {
		cfg.Name = "virtualmcp-gateway"
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	srv := &Server{
		config:           cfg,
		strategyHandlers: make(map[strategy.Strategy]http.Handler, len(strategy.All())),
		ready:            make(chan struct{}),
	}

	passthroughFactory := newHandlerFactory(rt, upstream, cfg.AuditSink, cfg.Name, string(strategy.Passthrough))
	adapter := newCapabilityAdapter(passthroughFactory)

	sdkTools, err := adapter.toSDKTools(catalog.Tools)
	if err != nil {
		return nil, err
	}
	sdkResources := adapter.toSDKResources(catalog.Resources)
	sdkPrompts := adapter.toSDKPrompts(catalog.Prompts)

	selectionDispatcher := metatools.NewDispatcher(
		catalog.Tools, rt, upstream, cfg.AuditSink, cfg.Name, string(strategy.SmartToolSelection))
	executionDispatcher := metatools.NewDispatcher(
		catalog.Tools, rt, upstream, cfg.AuditSink, cfg.Name, string(strategy.CodeExecution))
	sb := sandbox.New(func(ctx context.Context, name string, args map[string]any) (*vmcp.ToolCallResult, error) {
		return executionDispatcher.CallTool(ctx, metatools.CallToolInput{Name: name, Args: args}, nil)
	}, cfg.SandboxTimeout)

	metaTools := map[strategy.Strategy][]mcpserver.ServerTool{
		strategy.SmartToolSelection: selectionTools(selectionDispatcher),
		strategy.CodeExecution:      executionTools(sb),
	}
	surfaces := make(map[strategy.Strategy][]mcpserver.ServerTool, len(strategy.All()))
	for _, s := range strategy.All() {
		surfaces[s] = strategy.PublicSurface(s, sdkTools, metaTools[s])
	}

	for _, s := range strategy.All() {
		mcpSrv := mcpserver.NewMCPServer(
			cfg.Name,
			cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithPromptCapabilities(false),
			mcpserver.WithLogging(),
		)
		mcpSrv.AddTools(surfaces[s]...)
		mcpSrv.AddResources(sdkResources...)
		mcpSrv.AddPrompts(sdkPrompts...)

		srv.strategyHandlers[s] = mcpserver.NewStreamableHTTPServer(
			mcpSrv,
			mcpserver.WithEndpointPath(cfg.EndpointPath),
		)
		logger.Debugf("Strategy %s surface: %d tools", s, len(surfaces[s]))
	}

	logger.Infof("Gateway %s configured: %d tools, %d resources, %d prompts, %d strategies",
		cfg.Name, len(catalog.Tools), len(catalog.Resources), len(catalog.Prompts), len(srv.strategyHandlers))
	return srv, nil
}

// Start begins serving and blocks until the context is cancelled or the
// HTTP server fails.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ping", s.handleHealth)
	mux.Handle("/", http.HandlerFunc(s.dispatchStrategy))

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
		MaxHeaderBytes:    defaultMaxHeaderBytes,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	logger.Infof("Starting virtual MCP gateway at %s%s", listener.Addr(), s.config.EndpointPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	s.readyOnce.Do(func() { close(s.ready) })

	select {
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down gateway")
		return s.Stop(context.Background())
	case err := <-errCh:
		logger.Errorf("HTTP server error: %v", err)
		if stopErr := s.Stop(context.Background()); stopErr != nil {
			return fmt.Errorf("server error: %w; stop error: %v", err, stopErr)
		}
		return err
	}
}

// Stop gracefully shuts the gateway down.
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("Stopping virtual MCP gateway")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	s.listenerMu.Lock()
	s.listener = nil
	s.listenerMu.Unlock()
	return nil
}

// Ready returns a channel closed once the listener is serving.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address, or empty before Start.
func (s *Server) Addr() string {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// dispatchStrategy routes MCP traffic to the handler for the strategy
// named in the query string. A missing parameter selects the default
// strategy; an unknown one is a client error.
func (s *Server) dispatchStrategy(w http.ResponseWriter, r *http.Request) {
	selected, err := strategy.Parse(r.URL.Query().Get(strategyQueryParam))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("unknown strategy %q", r.URL.Query().Get(strategyQueryParam)))
		return
	}

	handler, ok := s.strategyHandlers[selected]
	if !ok {
		writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("strategy %s has no handler", selected))
		return
	}
	// Audit entries record the calling client's User-Agent, which only the
	// HTTP layer sees.
	r = r.WithContext(audit.WithUserAgent(r.Context(), r.UserAgent()))
	handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	strategies := make([]string, 0, len(s.strategyHandlers))
	for _, st := range strategy.All() {
		strategies = append(strategies, string(st))
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"name":       s.config.Name,
		"version":    s.config.Version,
		"strategies": strategies,
	})
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
