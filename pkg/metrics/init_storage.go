package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initOperationMetrics() {
	r.OperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"component", "operation", "status"},
	)

	r.OperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"component", "operation"},
	)
}

func (r *Registry) initStorageMetrics() {
	r.GapRows = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gap_rows",
			Help:      "Row slots in the sorted gap file, fillers included",
		},
	)

	r.GapFillers = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gap_fillers",
			Help:      "Filler rows in the sorted gap file as of the last defrag or stats call",
		},
	)

	r.ShuffleDistance = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gap_shuffle_distance_rows",
			Help:      "Slots a filler was moved to make room for an insert",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 225},
		},
	)

	r.DefragsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gap_defrags_total",
			Help:      "Defrag sweeps by direction",
		},
		[]string{"direction"},
	)

	r.FragmentationRetriesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gap_fragmentation_retries_total",
			Help:      "Inserts retried after a defrag because no filler was close enough",
		},
	)
}

func (r *Registry) initIndexMetrics() {
	r.HashChainSegments = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hash_chain_segments",
			Help:      "Segments walked per hash index operation",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
		},
	)

	r.HashSegmentsCreated = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hash_segments_created_total",
			Help:      "Segments appended to the hash index file",
		},
	)

	r.NodeStoreBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_content_bytes",
			Help:      "Size of the node content file in bytes",
		},
	)

	r.NodeRelocationsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_relocations_total",
			Help:      "Node updates that did not fit in place and were appended",
		},
	)
}
