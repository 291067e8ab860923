package influx

import "errors"

// Sentinel errors for time-series store operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, influx.ErrClosed) {
//	    // Handle use-after-close
//	}
var (
	// ErrClosed indicates the connector has been closed; writes and
	// queries fail fast instead of silently doing nothing.
	ErrClosed = errors.New("influx: connector is closed")

	// ErrConnectionFailed indicates the lazy connection setup failed.
	ErrConnectionFailed = errors.New("influx: connection failed")

	// ErrUnknownDestination indicates a write to a destination parameter
	// set that was not declared at startup.
	ErrUnknownDestination = errors.New("influx: unknown write destination")

	// ErrWriteFailed indicates a batch write was refused by the store.
	ErrWriteFailed = errors.New("influx: write failed")
)
