// Package logging provides structured logging for GridPulse Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
// Long-lived components derive a child logger once and keep it:
//
//	log := logger.With("component", "influx")
//	log.Info("store connection established", "url", cfg.Influx.URL)
//
// The ingest path is high-rate, so per-point logging is avoided: merge
// workers log per flush cycle (warn on backpressure or transport
// failure, error on a store rejection), and the connector's monitor
// goroutine reports buffer and pool statistics at debug level. Run with
// level "debug" to see them.
//
// # Security
//
// Never log secrets, tokens, passwords, or API keys. The store token in
// particular must never appear in output; log the store URL and org
// instead when reporting connection state.
package logging
