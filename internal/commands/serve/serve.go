// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package serve implements `xray serve`, the collector service.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/xray/internal/collector"
	"github.com/tombee/xray/internal/commands/shared"
	"github.com/tombee/xray/internal/config"
	xlog "github.com/tombee/xray/internal/log"
	"github.com/tombee/xray/internal/tracing"
)

type serveFlags struct {
	addr        string
	store       string
	storePath   string
	rateLimit   float64
	corsOrigins []string
}

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session collector",
		Long: `Run the collector that receives sessions and observations from
instrumented pipelines and serves them back for inspection.

Endpoints:
  GET    /sessions          list session summaries, newest first
  GET    /sessions/{id}     full session
  POST   /sessions          upsert a session
  POST   /observations      upsert one step into a session
  DELETE /sessions/{id}     delete one session
  DELETE /sessions          delete all sessions
  GET    /healthz           health check
  GET    /metrics           Prometheus metrics`,
		Example: `  xray serve
  xray serve --addr :4000 --store sqlite --db ./xray.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, flags)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, xlog.WithComponent(shared.NewLogger(cfg), "serve"))
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "", "Listen address (default from config: localhost:3000)")
	cmd.Flags().StringVar(&flags.store, "store", "", "Store backend: memory or sqlite")
	cmd.Flags().StringVar(&flags.storePath, "db", "", "SQLite database path")
	cmd.Flags().Float64Var(&flags.rateLimit, "rate-limit", 0, "Requests per second (0 disables limiting)")
	cmd.Flags().StringSliceVar(&flags.corsOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable)")

	return cmd
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, flags serveFlags) {
	if flags.addr != "" {
		cfg.Server.Addr = flags.addr
	}
	if flags.store != "" {
		cfg.Server.Store = flags.store
	}
	if flags.storePath != "" {
		cfg.Server.StorePath = flags.storePath
	}
	if cmd.Flags().Changed("rate-limit") {
		cfg.Server.RateLimit = flags.rateLimit
	}
	if len(flags.corsOrigins) > 0 {
		cfg.Server.CORSOrigins = flags.corsOrigins
	}
}

// OpenStore creates the store selected by cfg.
func OpenStore(cfg config.ServerConfig) (collector.Store, error) {
	switch cfg.Store {
	case config.StoreMemory, "":
		return collector.NewMemoryStore(), nil
	case config.StoreSQLite:
		path := cfg.StorePath
		if path == "" {
			dir, err := config.DataDir()
			if err != nil {
				return nil, fmt.Errorf("failed to resolve data directory: %w", err)
			}
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
			path = filepath.Join(dir, "xray.db")
		}
		return collector.NewSQLiteStore(collector.SQLiteConfig{Path: path})
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// NewServer builds the collector server with metrics wired in. The
// returned provider must be shut down by the caller.
func NewServer(cfg *config.Config, store collector.Store, logger *slog.Logger) (*collector.Server, *tracing.OTelProvider, error) {
	provider, err := tracing.NewOTelProvider(cfg.Tracing.ServiceName+"-collector", cfg.Tracing.ServiceVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	srv := collector.NewServer(store,
		collector.WithLogger(logger),
		collector.WithMetrics(provider.MetricsCollector(), provider.MetricsHandler()),
		collector.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		collector.WithCORS(collector.CORSConfig{AllowedOrigins: cfg.Server.CORSOrigins}),
	)
	return srv, provider, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := OpenStore(cfg.Server)
	if err != nil {
		return err
	}
	defer store.Close()

	srv, provider, err := NewServer(cfg, store, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", xlog.Error(err))
		}
	}()

	logger.Info("starting collector", "addr", cfg.Server.Addr, "store", cfg.Server.Store)
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
