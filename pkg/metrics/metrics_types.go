package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "timegraph"

// Component label values.
const (
	ComponentGapStore  = "gapstore"
	ComponentHashIndex = "hashindex"
	ComponentNodeStore = "nodestore"
	ComponentEngine    = "engine"
)

// Registry holds all metrics for the engine. Every Record/Set/Observe
// method accepts a nil receiver so components can run without metrics.
type Registry struct {
	// Operation metrics, shared by every component
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Sorted gap storage
	GapRows                   prometheus.Gauge
	GapFillers                prometheus.Gauge
	ShuffleDistance           prometheus.Histogram
	DefragsTotal              *prometheus.CounterVec
	FragmentationRetriesTotal prometheus.Counter

	// Disk hash index
	HashChainSegments   prometheus.Histogram
	HashSegmentsCreated prometheus.Counter

	// Node content store
	NodeStoreBytes       prometheus.Gauge
	NodeRelocationsTotal prometheus.Counter

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every metric registered on a fresh
// prometheus.Registry.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initOperationMetrics()
	r.initStorageMetrics()
	r.initIndexMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
