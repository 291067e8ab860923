package influx

import (
	"fmt"
	"time"

	"github.com/gridpulse/gridpulse-core/internal/infrastructure/config"
)

// WriteParameters identifies one write destination at the store. It is the
// lookup key selecting a merge worker; equality is structural. The set of
// destinations is fixed at startup.
type WriteParameters struct {
	Bucket      string
	Org         string
	Precision   time.Duration
	Consistency string
}

// String returns a short destination description for logs and errors.
func (p WriteParameters) String() string {
	return fmt.Sprintf("bucket=%s org=%s precision=%s consistency=%s",
		p.Bucket, p.Org, p.Precision, p.Consistency)
}

// paramsFromConfig builds WriteParameters from a declared destination,
// inheriting bucket and org from the default destination where unset.
func paramsFromConfig(d config.DestinationConfig, defaults WriteParameters) WriteParameters {
	params := WriteParameters{
		Bucket:      d.Bucket,
		Org:         d.Org,
		Precision:   parsePrecision(d.Precision),
		Consistency: d.Consistency,
	}
	if params.Bucket == "" {
		params.Bucket = defaults.Bucket
	}
	if params.Org == "" {
		params.Org = defaults.Org
	}
	return params
}

// parsePrecision maps a config precision string to a write precision.
// Unknown or empty strings fall back to nanoseconds, the store default.
func parsePrecision(s string) time.Duration {
	switch s {
	case "s":
		return time.Second
	case "ms":
		return time.Millisecond
	case "us":
		return time.Microsecond
	default:
		return time.Nanosecond
	}
}
