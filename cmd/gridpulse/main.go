// GridPulse Core - Energy Monitoring Platform
//
// This is the main entry point for the GridPulse time-series layer. It
// accepts measurement points from edge devices, batches them into the
// time-series store, and serves historic-data and historic-energy queries.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridpulse/gridpulse-core/internal/infrastructure/config"
	"github.com/gridpulse/gridpulse-core/internal/infrastructure/logging"
	"github.com/gridpulse/gridpulse-core/internal/timedata/influx"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting GridPulse Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Build the store connector. The connection itself is created lazily
	// on the first write or query.
	cacheSize := 0
	if cfg.Cache.Enabled {
		cacheSize = cfg.Cache.Size
	}
	connector, err := influx.NewConnector(cfg.Influx, cacheSize, log, func(writeErr error) {
		log.Error("store rejected batch", "error", writeErr)
	})
	if err != nil {
		return fmt.Errorf("creating connector: %w", err)
	}
	defer func() {
		log.Info("closing connector")
		if closeErr := connector.Close(); closeErr != nil {
			log.Error("error closing connector", "error", closeErr)
		}
	}()
	log.Info("connector ready",
		"url", cfg.Influx.URL,
		"bucket", cfg.Influx.Bucket,
		"read_only", cfg.Influx.ReadOnly,
		"destinations", len(cfg.Influx.Destinations)+1,
	)

	// Expose Prometheus metrics
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics server listening", "addr", cfg.Metrics.Listen)
			if serveErr := metricsServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", serveErr)
			}
		}()
	}

	// Block until shutdown signal
	<-ctx.Done()
	log.Info("shutdown signal received")

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error("error stopping metrics server", "error", shutdownErr)
		}
	}

	return nil
}

// getConfigPath returns the configuration file path from the environment
// or the default location.
func getConfigPath() string {
	if env := os.Getenv("GRIDPULSE_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}
