package influx

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Write-path and query-path counters. Exposed on the default Prometheus
// registry; cmd/gridpulse serves them via promhttp when metrics are enabled.
var (
	metricPointsOffered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Subsystem: "timedata",
		Name:      "points_offered_total",
		Help:      "Measurement points offered to merge workers.",
	})

	metricPointsFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Subsystem: "timedata",
		Name:      "points_flushed_total",
		Help:      "Merged points successfully written to the store.",
	})

	metricBatchesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Subsystem: "timedata",
		Name:      "batches_flushed_total",
		Help:      "Batches successfully written to the store.",
	})

	metricBackpressureEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Subsystem: "timedata",
		Name:      "backpressure_events_total",
		Help:      "Flush submissions rejected by the saturated worker pool.",
	})

	metricPointsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Subsystem: "timedata",
		Name:      "points_rejected_total",
		Help:      "Points dropped because the store rejected their batch.",
	})

	metricPointsRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Subsystem: "timedata",
		Name:      "points_requeued_total",
		Help:      "Points re-merged for retry after a transport failure.",
	})

	metricAdmissionDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Subsystem: "timedata",
		Name:      "admission_dropped_total",
		Help:      "Submitted values dropped by the channel policy.",
	})

	metricQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Subsystem: "timedata",
		Name:      "queries_total",
		Help:      "Historic queries by operation.",
	}, []string{"operation"})

	metricCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridpulse",
		Subsystem: "timedata",
		Name:      "query_cache_hits_total",
		Help:      "Historic queries answered from the result cache.",
	})
)
