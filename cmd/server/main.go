/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the scheduling engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load the YAML config
  2. Configure zerolog
  3. Open the store (SQLite or in-memory)
  4. Pick the lock: Redis when enabled, in-process otherwise
  5. Configure HTTP router and start the server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (optional, ${ENV} placeholders expanded)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Close database and Redis connections
  4. Exit

EXAMPLES:
  ./server -config=config.yaml
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - config/config.go: Configuration schema and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/warp/schedule-engine/api"
	"github.com/warp/schedule-engine/config"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/generic/store"
	"github.com/warp/schedule-engine/lock"
	"github.com/warp/schedule-engine/metrics"
	"github.com/warp/schedule-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid config")
	}

	logger := newLogger(cfg)

	// Initialize store
	var engineStore generic.TxStore
	switch cfg.Database.Driver {
	case "memory":
		engineStore = store.NewMemory()
	default:
		db, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to initialize database")
		}
		defer db.Close()
		engineStore = db
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("store ready")

	// Initialize lock
	var locker lock.Locker = lock.NewKeyed(cfg.Locking.Wait)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("address", cfg.Redis.Address).Msg("failed to reach redis")
		}
		locker = lock.NewRedis(client, lock.RedisOptions{
			Prefix: cfg.Locking.Prefix,
			TTL:    cfg.Locking.TTL,
			Wait:   cfg.Locking.Wait,
		}, logger)
		logger.Info().Str("address", cfg.Redis.Address).Msg("using redis lock")
	}

	opts := api.RouterOptions{CORSOrigins: cfg.Server.CORSOrigins}
	if cfg.RateLimit.Enabled {
		opts.RateLimitRPS = cfg.RateLimit.RPS
		opts.RateLimitBurst = cfg.RateLimit.Burst
	}
	if cfg.Metrics.Enabled {
		metrics.Register()
		opts.MetricsPath = cfg.Metrics.Path
	}

	handler := api.NewHandler(engineStore, locker, generic.SystemClock{}, cfg.Attendance, logger)
	router := api.NewRouter(handler, opts)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return
	}
	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, _ := cfg.LogLevel()
	zerolog.SetGlobalLevel(level)
	if cfg.Log.JSON {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}
