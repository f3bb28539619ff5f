/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the adjustment engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment (.env honoured)
  2. Build the logger and Prometheus collectors
  3. Initialize SQLite store
  4. Create API handler over the default calculator registry
  5. Start server with graceful shutdown

ENVIRONMENT:
  PORT                  HTTP server port (default: 8080)
  DATABASE_PATH         SQLite database path (default: adjustments.db)
                        Use ":memory:" for an in-memory database
  LOG_LEVEL             zerolog level (default: info)
  LOG_FORMAT            json or console (default: json)
  CORS_ALLOWED_ORIGINS  Comma-separated origins
  METRICS_NAMESPACE     Prometheus namespace (default: adjustments)
  METRICS_ENABLED       Mount /metrics and record metrics (default: true)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment loading
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/warp/adjustment-engine/api"
	"github.com/warp/adjustment-engine/calculators"
	"github.com/warp/adjustment-engine/config"
	"github.com/warp/adjustment-engine/generic"
	"github.com/warp/adjustment-engine/obs"
	"github.com/warp/adjustment-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := obs.NewLogger("json", "info")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)

	var metrics *obs.Metrics
	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		metrics = obs.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
		gatherer = prometheus.DefaultGatherer
	}

	// Stock calculators register with the default registry on import.
	reg := generic.DefaultRegistry()
	logger.Info().
		Strs("calculators", typeNames(reg.Types())).
		Strs("shipping_method", typeNames(reg.Calculators(calculators.KindShippingMethod))).
		Msg("calculator registry ready")

	store, err := sqlite.New(cfg.DatabasePath, reg)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("initialize database")
	}
	defer store.Close()

	handler := api.NewHandler(store, reg, metrics)
	router := api.NewRouter(handler, api.RouterConfig{
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Gatherer:       gatherer,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	logger.Info().Msg("server stopped")
}

func typeNames(types []generic.CalculatorType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
