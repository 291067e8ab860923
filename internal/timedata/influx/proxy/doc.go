// Package proxy abstracts the query dialect of the time-series store.
//
// Historic-data and historic-energy requests arrive as generic parameters
// (edge filter, channel set, time range, resolution) and are translated
// into one backend dialect by a QueryProxy implementation. The dialect is
// selected once at startup from configuration; Flux (InfluxDB v2) is the
// reference implementation.
//
// All operations enforce a shared query-size limit (channels x time
// buckets) before dispatch and guarantee results ordered ascending by
// time, regardless of backend return order.
package proxy
