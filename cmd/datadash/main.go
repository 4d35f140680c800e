package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwhitehere/acme-data-dash/internal/config"
	"github.com/blackwhitehere/acme-data-dash/internal/logging"
	"github.com/blackwhitehere/acme-data-dash/internal/server"
	"github.com/blackwhitehere/acme-data-dash/internal/storage"
	"github.com/blackwhitehere/acme-data-dash/internal/telemetry"
	"github.com/blackwhitehere/acme-data-dash/internal/version"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "datadash",
		Short:        "Run data checks on demand and track their results",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(checksCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(historyCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// setup loads the config and installs its logger as the default.
func setup() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building logger: %w", err)
	}
	slog.SetDefault(logger)
	return cfg, logger, closer, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load config and logger
	cfg, logger, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Info("config loaded", "checks", len(cfg.Checks))

	// 2. Open SQLite
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// 3. Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 4. Wire secrets, connections, checks, runner and alerts
	a, err := buildApp(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer a.close()

	// 5. Metrics
	opts := server.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		JWTSecret:   cfg.Server.Auth.JWTSecret,
		JWTIssuer:   cfg.Server.Auth.Issuer,
	}
	if cfg.Metrics.Enabled {
		provider, err := telemetry.NewPrometheus()
		if err != nil {
			return fmt.Errorf("setting up metrics: %w", err)
		}
		defer provider.Shutdown(context.Background())
		a.runner.SetMetrics(provider.Metrics())
		opts.Metrics = provider.Handler()
		opts.MetricsPath = cfg.Metrics.Path
	}
	if opts.JWTSecret == "" {
		logger.Warn("server.auth.jwt_secret not set; check execution and configuration routes are unauthenticated")
	}

	// 6. API server
	apiServer := server.New(a.registry, a.runner, db, opts, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 7. Start HTTP server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address, "version", version.Version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// 8. Wait for signal or server error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	// 9. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest status of each check from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(db *storage.DB) error {
				return executeStatus(cmd, db)
			})
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "history",
		Short: "Print recent check results from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(db *storage.DB) error {
				return executeHistory(cmd, db, limit)
			})
		},
	}
	c.Flags().IntVar(&limit, "limit", 50, "number of results to show")
	return c
}

// withDB opens the configured database for read-only commands.
func withDB(fn func(db *storage.DB) error) error {
	cfg, _, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return fn(db)
}
