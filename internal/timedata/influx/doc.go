// Package influx implements the write and query paths to the time-series
// store for GridPulse Core.
//
// # Write path
//
// Producers submit per-channel measurement points through the Connector.
// Values pass the channel policy (package channels), are merged into a
// per-destination buffer keyed by (measurement, tags, timestamp), and are
// flushed periodically as one batch per destination. Flush tasks run on a
// shared, bounded worker pool; when the pool is saturated the snapshot is
// re-merged into the live buffer and retried on a later cycle, so
// producers never observe backpressure as an error.
//
// # Error contract
//
//   - Policy rejections are silently dropped (expected, high-frequency).
//   - Store rejections are reported via the configured callback and the
//     batch is discarded; a rejected batch would be rejected again.
//   - Transport failures are retryable; the batch is re-merged and memory
//     growth is observable via the monitor log and Prometheus counters.
//   - Writes to undeclared destinations and use-after-close fail fast.
//
// # Query path
//
// Historic-data and historic-energy queries delegate to a backend-specific
// query proxy (package proxy) over the shared connection. Results for
// fully historical ranges are cached in a small LRU.
//
// # Connection
//
// Exactly one pooled store client is created lazily and shared by all
// workers and queriers, with fixed connect/read/write timeouts. Close
// releases it once; later operations fail fast with ErrClosed.
package influx
