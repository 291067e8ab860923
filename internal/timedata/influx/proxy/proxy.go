package proxy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Persisted layout at the store. One tag identifies the edge; data
// channels are fields on the data measurement. The availableSince
// sentinel additionally tags the channel.
const (
	Measurement = "data"
	EdgeTag     = "edge"
	ChannelTag  = "channel"

	AvailableSinceMeasurement = "availableSince"
	AvailableSinceField       = "available_since"
)

// Row is one time bucket of a per-period query result, mapping channel id
// to value. Slices of Row are always ordered ascending by Time.
type Row struct {
	Time   time.Time
	Values map[string]float64
}

// Querier executes one backend query. Satisfied by api.QueryAPI; replaced
// by fakes in tests.
type Querier interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// QueryProxy translates generic historic-query parameters into one
// backend dialect. An implementation exists per supported query language;
// the dialect is selected once at startup from configuration.
type QueryProxy interface {
	// QueryHistoricEnergy returns the cumulative energy delta per channel
	// over [from, to).
	QueryHistoricEnergy(ctx context.Context, q Querier, bucket string, edge *int,
		from, to time.Time, channels []string) (map[string]float64, error)

	// QueryHistoricEnergyPerPeriod buckets energy deltas per fixed-width
	// period. The last bucket may be shorter than the resolution if the
	// range does not divide evenly; it is still returned.
	QueryHistoricEnergyPerPeriod(ctx context.Context, q Querier, bucket string, edge *int,
		from, to time.Time, channels []string, resolution time.Duration) ([]Row, error)

	// QueryHistoricData returns samples per period, reduced by mean for
	// average channels and by max for cumulative channels.
	QueryHistoricData(ctx context.Context, q Querier, bucket string, edge *int,
		from, to time.Time, channels []string, resolution time.Duration) ([]Row, error)

	// QueryAvailableSince reads the sentinel marker recording, per edge
	// and channel, the earliest timestamp data is known to exist from.
	QueryAvailableSince(ctx context.Context, q Querier, bucket string) (map[int]map[string]int64, error)
}

// FromLanguage selects the proxy implementation for a query dialect.
func FromLanguage(language string, queryLimit int) (QueryProxy, error) {
	switch strings.ToLower(language) {
	case "flux":
		return &fluxProxy{limit: queryLimit}, nil
	default:
		return nil, fmt.Errorf("unsupported query language %q", language)
	}
}

// checkQuerySize enforces the shared query-size limit (channels x time
// buckets) before dispatch. Oversized queries fail fast instead of being
// issued against the store. A zero resolution means a single bucket.
func checkQuerySize(channels []string, from, to time.Time, resolution time.Duration, limit int) error {
	buckets := 1
	if resolution > 0 {
		span := to.Sub(from)
		buckets = int((span + resolution - 1) / resolution)
		if buckets < 1 {
			buckets = 1
		}
	}
	size := len(channels) * buckets
	if size > limit {
		return fmt.Errorf("query size %d (channels=%d x buckets=%d) exceeds limit %d",
			size, len(channels), buckets, limit)
	}
	return nil
}
