package timelines

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revtape_timeline_operations_total",
		Help: "Timeline manager operations by kind and outcome",
	}, []string{"op", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "revtape_timeline_operation_duration_seconds",
		Help:    "Duration of timeline manager operations",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"op"})

	liveTimelines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "revtape_timelines_live",
		Help: "Number of live timelines",
	})

	mergeConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revtape_merge_conflict_positions_total",
		Help: "Tape positions a combine merge could not order",
	})
)

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	operationsTotal.WithLabelValues(op, outcome).Inc()
}
