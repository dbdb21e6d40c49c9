package metrics

import (
	"time"
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordOperation records a component operation and its duration.
func (r *Registry) RecordOperation(component, operation string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	r.OperationsTotal.WithLabelValues(component, operation, status(err)).Inc()
	r.OperationDuration.WithLabelValues(component, operation).Observe(duration.Seconds())
}

// ObserveShuffle records how far a filler travelled for an insert.
func (r *Registry) ObserveShuffle(distance int64) {
	if r == nil {
		return
	}
	r.ShuffleDistance.Observe(float64(distance))
}

// RecordDefrag counts one defrag sweep.
func (r *Registry) RecordDefrag(direction string) {
	if r == nil {
		return
	}
	r.DefragsTotal.WithLabelValues(direction).Inc()
}

// RecordFragmentationRetry counts one defrag-and-retry insert.
func (r *Registry) RecordFragmentationRetry() {
	if r == nil {
		return
	}
	r.FragmentationRetriesTotal.Inc()
}

// SetGapRows publishes the slot count of the gap file.
func (r *Registry) SetGapRows(rows int64) {
	if r == nil {
		return
	}
	r.GapRows.Set(float64(rows))
}

// SetGapFillers publishes the filler count of the gap file.
func (r *Registry) SetGapFillers(fillers int64) {
	if r == nil {
		return
	}
	r.GapFillers.Set(float64(fillers))
}

// ObserveChainSegments records segments walked by one index operation.
func (r *Registry) ObserveChainSegments(n int) {
	if r == nil {
		return
	}
	r.HashChainSegments.Observe(float64(n))
}

// RecordSegmentCreated counts a segment appended to the hash index.
func (r *Registry) RecordSegmentCreated() {
	if r == nil {
		return
	}
	r.HashSegmentsCreated.Inc()
}

// SetNodeStoreBytes publishes the content file size.
func (r *Registry) SetNodeStoreBytes(n int64) {
	if r == nil {
		return
	}
	r.NodeStoreBytes.Set(float64(n))
}

// RecordRelocation counts a node update that was appended.
func (r *Registry) RecordRelocation() {
	if r == nil {
		return
	}
	r.NodeRelocationsTotal.Inc()
}
