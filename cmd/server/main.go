/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the distribution waterfall server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Build the logger
  3. Initialize SQLite store and response cache
  4. Create API handler and load stored funds
  5. Start run retention scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -port    HTTP server port (overrides config and PORT)
  -db      SQLite database path (overrides config and DATABASE_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  PORT, DATABASE_PATH, LOG_LEVEL, CACHE_BACKEND, REDIS_ADDR
  See config/config.go for precedence.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the retention scheduler
  4. Close cache and database connections

EXAMPLES:
  # Run with file database
  ./server -db="./data/waterfall.db"

  # Run in memory with Redis caching
  CACHE_BACKEND=redis REDIS_ADDR=localhost:6379 ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration loading
*/
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/waterfall-engine/api"
	"github.com/warp/waterfall-engine/cache"
	"github.com/warp/waterfall-engine/config"
	"github.com/warp/waterfall-engine/logging"
	"github.com/warp/waterfall-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// no logger yet
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger := logging.New(cfg.Logging, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to initialize database")
	}
	defer store.Close()

	// Initialize cache (nil when disabled)
	responseCache, err := cache.New(cfg.Cache, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize cache")
	}
	if closer, ok := responseCache.(io.Closer); ok {
		defer closer.Close()
	}

	// Initialize handler
	handler := api.NewHandler(store, responseCache, cfg.Cache.TTL, logger)

	// Load existing funds into memory
	if err := handler.LoadFunds(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Failed to load funds")
	}

	// Run retention
	scheduler := api.NewRetentionScheduler(store, logger)
	scheduler.Cache = responseCache
	scheduler.Enabled = cfg.Retention.Enabled
	scheduler.MaxAge = cfg.Retention.RunMaxAge
	scheduler.CheckInterval = cfg.Retention.CheckInterval
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins})

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("db", cfg.Database.Path).
			Str("cache", cfg.Cache.Backend).
			Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	logger.Info().Msg("Server stopped")
}
