// Package channels holds the static channel admission and typing policy.
//
// Only channels on the allow-list are persisted to the time-series store.
// Each allowed channel is classified as average (gauge-like, reduced by
// mean) or cumulative (monotonic counter, reduced by last value), and is
// assigned a fixed numeric storage type.
//
// The registries are built once at init from a literal table plus
// range-expansion helpers and are never mutated afterwards, so lookups
// need no locking.
//
// # Usage
//
//	if channels.Classify("_sum/EssSoc") == channels.AggregationUndefined {
//	    return // not persisted
//	}
//	value, ok := channels.TypedValue("_sum/EssSoc", 42.9) // int64(42), true
package channels
