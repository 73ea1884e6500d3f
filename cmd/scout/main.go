// Scout report server. Turns buyer-intelligence webhooks into published
// research reports and serves the monitor API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/govsignal/scout/pkg/api"
	"github.com/govsignal/scout/pkg/config"
	"github.com/govsignal/scout/pkg/database"
	"github.com/govsignal/scout/pkg/generator"
	"github.com/govsignal/scout/pkg/pipeline"
	"github.com/govsignal/scout/pkg/publisher"
	"github.com/govsignal/scout/pkg/runner"
	"github.com/govsignal/scout/pkg/services"
	"github.com/govsignal/scout/pkg/signals"
	"github.com/govsignal/scout/pkg/store"
	"github.com/govsignal/scout/pkg/version"
)

// Shutdown budgets. Workers observe cancellation quickly (they park on
// the run context), so the pool budget mostly covers persisting the
// cancelled state of in-flight runs.
const (
	poolShutdownTimeout = 30 * time.Second
	httpShutdownTimeout = 5 * time.Second
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting scout",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database
	dbClient, err := database.NewClient(ctx, database.DefaultConfig(cfg.Database.Path))
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to SQLite database", "path", cfg.Database.Path)

	st := store.New(dbClient)

	// 3. Initialize provider clients. A missing generator credential is
	// fatal here rather than a per-run failure deep in the pipeline.
	signalsClient := signals.NewClient(cfg.Signals)
	publisherClient := publisher.NewClient(cfg.Publisher)
	generatorClient, err := generator.NewClient(cfg.Generator)
	if err != nil {
		slog.Error("Failed to initialize generator client", "error", err)
		os.Exit(1)
	}
	slog.Info("Provider clients initialized",
		"signals_base_url", cfg.Signals.BaseURL)

	// 4. Assemble the pipeline and the run pool
	pipe := pipeline.New(st, signalsClient, publisherClient,
		func(tun *config.Tunables) pipeline.SectionWriter {
			return generatorClient.ForRun(tun)
		})

	pool := runner.New(st, pipe, cfg.Tunables)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start run pool", "error", err)
		os.Exit(1)
	}

	// 5. Create HTTP server
	runService := services.NewRunService(st, pool)
	batchService := services.NewBatchService(st, pool)
	configService := services.NewConfigService(cfg.Tunables)
	httpServer := api.NewServer(dbClient, pool, runService, batchService, configService)

	// 6. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Scout started successfully",
		"max_concurrent_runs", pool.Capacity())

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: cancel active runs and wait for workers to
	// persist their cancelled state
	poolShutdownCtx, poolCancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer poolCancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Run pool stopped gracefully")
	case <-poolShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded waiting for workers")
	}

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, httpShutdownTimeout)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
