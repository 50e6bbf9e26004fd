// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the command-line interface for the virtual MCP
// gateway.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/virtualmcp/gateway/pkg/audit"
	"github.com/virtualmcp/gateway/pkg/logger"
	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/aggregator"
	vmcpauth "github.com/virtualmcp/gateway/pkg/vmcp/auth"
	"github.com/virtualmcp/gateway/pkg/vmcp/cache"
	vmcpclient "github.com/virtualmcp/gateway/pkg/vmcp/client"
	"github.com/virtualmcp/gateway/pkg/vmcp/config"
	vmcprouter "github.com/virtualmcp/gateway/pkg/vmcp/router"
	vmcpserver "github.com/virtualmcp/gateway/pkg/vmcp/server"
)

var rootCmd = &cobra.Command{
	Use:               "vmcpgw",
	DisableAutoGenTag: true,
	Short:             "Virtual MCP gateway - aggregate multiple MCP servers behind one endpoint",
	Long: `vmcpgw aggregates the tools, resources, and prompts of multiple upstream
MCP (Model Context Protocol) servers into a single virtual endpoint.

Clients choose how the aggregated tool catalog is exposed per request:

- passthrough: every catalog tool is advertised directly
- smart_tool_selection: a fixed set of discovery meta-tools stands in for the catalog
- code_execution: a single sandboxed RUN_CODE tool invokes catalog tools from Lua`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates the root command for the gateway CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to gateway configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the virtual MCP gateway",
		Long: `Start the gateway: load the configuration, aggregate capabilities from
every configured upstream connection, and serve the virtual MCP endpoint.`,
		RunE: runServe,
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			configPath := viper.GetString("config")
			if configPath == "" {
				return fmt.Errorf("no configuration file specified, use --config flag")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}

			logger.Infof("Configuration is valid")
			logger.Infof("  Name: %s", cfg.Name)
			logger.Infof("  Listen: %s:%d", cfg.Host, cfg.Port)
			logger.Infof("  Connections: %d", len(cfg.Connections))
			if cfg.Aggregation != nil {
				logger.Infof("  Conflict resolution: %s", cfg.Aggregation.ConflictResolution)
			}
			return nil
		},
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	configPath := viper.GetString("config")
	if configPath == "" {
		return fmt.Errorf("no configuration file specified, use --config flag")
	}

	logger.Infof("Loading configuration from %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	conns, err := cfg.BuildConnections()
	if err != nil {
		return fmt.Errorf("failed to build connections: %w", err)
	}
	registry, err := vmcp.NewRegistry(conns)
	if err != nil {
		return fmt.Errorf("failed to build connection registry: %w", err)
	}

	upstream, err := vmcpclient.NewHTTPUpstreamClient(vmcpauth.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to create upstream client: %w", err)
	}

	catalogCache, err := buildCatalogCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := catalogCache.Close(); err != nil {
			logger.Warnf("Failed to close catalog cache: %v", err)
		}
	}()

	resolver, err := aggregator.NewConflictResolver(cfg.Aggregation)
	if err != nil {
		return fmt.Errorf("failed to create conflict resolver: %w", err)
	}
	agg := aggregator.NewDefaultAggregator(registry, upstream, catalogCache, resolver, cfg.Aggregation)

	aggCtx, cancel := context.WithTimeout(ctx, aggregationTimeout(cfg))
	catalog, err := agg.Aggregate(aggCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("capability aggregation failed: %w", err)
	}

	rt := vmcprouter.NewRouter()
	if err := rt.UpdateRoutingTable(ctx, catalog.RoutingTable); err != nil {
		return fmt.Errorf("failed to initialize routing table: %w", err)
	}

	var auditSink audit.Sink
	if cfg.Audit != nil && cfg.Audit.Enabled {
		auditSink = audit.NewLogSink()
		logger.Info("Audit logging enabled")
	}

	srv, err := vmcpserver.New(&vmcpserver.Config{
		Name:            cfg.Name,
		Host:            cfg.Host,
		Port:            cfg.Port,
		SandboxTimeout:  sandboxTimeout(cfg),
		ShutdownTimeout: shutdownTimeout(cfg),
		AuditSink:       auditSink,
	}, catalog, rt, upstream)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Infof("Starting gateway %s with %d connections", cfg.Name, len(conns))
	return srv.Start(ctx)
}

func buildCatalogCache(ctx context.Context, cfg *config.Config) (cache.CatalogCache, error) {
	if cfg.Cache != nil && cfg.Cache.Backend == "redis" {
		c, err := cache.NewRedisCache(ctx, cfg.Cache.Redis.Addr, cfg.RedisPassword(), cfg.Cache.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis cache: %w", err)
		}
		logger.Infof("Using Redis catalog cache at %s", cfg.Cache.Redis.Addr)
		return c, nil
	}
	return cache.NewMemoryCache(), nil
}

func aggregationTimeout(cfg *config.Config) time.Duration {
	if cfg.Timeouts != nil && time.Duration(cfg.Timeouts.Aggregation) > 0 {
		return time.Duration(cfg.Timeouts.Aggregation)
	}
	return 60 * time.Second
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Timeouts != nil && time.Duration(cfg.Timeouts.Shutdown) > 0 {
		return time.Duration(cfg.Timeouts.Shutdown)
	}
	return 10 * time.Second
}

func sandboxTimeout(cfg *config.Config) time.Duration {
	if cfg.Sandbox != nil && time.Duration(cfg.Sandbox.Timeout) > 0 {
		return time.Duration(cfg.Sandbox.Timeout)
	}
	return 10 * time.Second
}
