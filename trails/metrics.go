package trails

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordedEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revtape_trail_entries_recorded_total",
		Help: "Total number of trail entries recorded",
	}, []string{"kind"})

	undoneEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revtape_trail_entries_undone_total",
		Help: "Total number of trail entries popped for undo",
	}, []string{"kind"})
)
