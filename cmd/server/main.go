/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the motohub dues server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, MOTOHUB_* environment, flags)
  2. Initialize zap logger and Sentry
  3. Open the configured store (sqlite, postgres or memory)
  4. Create API handler, router and arrears scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port, overrides MOTOHUB_HTTP_ADDR
  -db      SQLite database path, overrides MOTOHUB_SQLITE_PATH
           Use ":memory:" for in-memory database
  -env     Path of an optional .env file (default: .env)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the arrears scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection and flush Sentry
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/motohub.db"

  # Run against PostgreSQL
  MOTOHUB_STORE=postgres MOTOHUB_DATABASE_URL=postgres://... ./server

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - config/config.go: Environment keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Database implementations
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mouros/motohub/api"
	"github.com/mouros/motohub/config"
	"github.com/mouros/motohub/generic"
	"github.com/mouros/motohub/generic/store"
	"github.com/mouros/motohub/logging"
	"github.com/mouros/motohub/observability"
	"github.com/mouros/motohub/store/postgres"
	"github.com/mouros/motohub/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides MOTOHUB_HTTP_ADDR)")
	dbPath := flag.String("db", "", "SQLite database path (overrides MOTOHUB_SQLITE_PATH)")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.HTTPAddr = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.SQLitePath = *dbPath
	}

	logs, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logs.Closer()
	log := logs.Base

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, cfg.Release)
	if err != nil {
		log.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	clock := generic.SystemClock{Location: loc}

	// Initialize store
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer closeStore()
	log.Info("store ready", zap.String("store", cfg.Store))

	handler := api.NewHandler(st, clock, log)
	handler.Scheduler.Interval = cfg.ArrearsInterval
	handler.Scheduler.Enabled = cfg.ArrearsInterval > 0
	handler.Scheduler.Start()
	// Stop is idempotent; the deferred call covers the server-error path.
	defer handler.Scheduler.Stop()

	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.AllowedOrigins})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	}

	handler.Scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func openStore(cfg *config.Config) (generic.Store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.StoreMemory:
		return store.NewMemory(), func() {}, nil
	default:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}
