// Package engine ties the gap store, the unique key index and the node
// content store into one database of typed nodes and timestamped
// relationships between them.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/dd0wney/timegraphdb/pkg/config"
	"github.com/dd0wney/timegraphdb/pkg/hashindex"
	"github.com/dd0wney/timegraphdb/pkg/logging"
	"github.com/dd0wney/timegraphdb/pkg/metrics"
	"github.com/dd0wney/timegraphdb/pkg/nodestore"
	"github.com/dd0wney/timegraphdb/pkg/record"
	"github.com/dd0wney/timegraphdb/pkg/storage"
)

var ErrClosed = errors.New("engine is closed")

type options struct {
	logger  logging.Logger
	metrics *metrics.Registry
}

// Option customizes Open.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records component metrics on r.
func WithMetrics(r *metrics.Registry) Option {
	return func(o *options) { o.metrics = r }
}

// Engine stores nodes of type T as JSON and relationships between them as
// rows in the gap store. keyOf derives the unique key a node is found by.
//
// Calls are serialized, so an Engine may be shared between goroutines.
type Engine[T any] struct {
	mu     sync.Mutex
	graph  *storage.Store
	index  *hashindex.Index
	nodes  *nodestore.Store
	keyOf  func(T) string
	closed bool

	logger  logging.Logger
	metrics *metrics.Registry
}

// Open opens or creates every file named by cfg.
func Open[T any](cfg config.Config, keyOf func(T) string, opts ...Option) (*Engine[T], error) {
	if keyOf == nil {
		return nil, errors.New("engine: keyOf must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	graph, err := storage.Open(cfg.GraphPath(), storage.Options{
		FillFactor:         cfg.FillFactor,
		MaxShuffleDistance: cfg.MaxShuffleDistance,
		Logger:             logger,
		Metrics:            o.metrics,
	})
	if err != nil {
		return nil, err
	}
	index, err := hashindex.Open(cfg.IndexPath(), hashindex.Options{Logger: logger, Metrics: o.metrics})
	if err != nil {
		graph.Close()
		return nil, err
	}
	nodes, err := nodestore.Open(cfg.NodeIndexPath(), cfg.NodeContentPath(), nodestore.Options{
		Compress: cfg.CompressNodes,
		Logger:   logger,
		Metrics:  o.metrics,
	})
	if err != nil {
		index.Close()
		graph.Close()
		return nil, err
	}

	logger.Info("database opened",
		logging.Path(cfg.DataDir), logging.Rows(graph.Len()), logging.Int("nodes", int(nodes.Count())))

	return &Engine[T]{
		graph:   graph,
		index:   index,
		nodes:   nodes,
		keyOf:   keyOf,
		logger:  logger.With(logging.Component("engine")),
		metrics: o.metrics,
	}, nil
}

func (e *Engine[T]) observe(op string, start time.Time, err error) {
	e.metrics.RecordOperation(metrics.ComponentEngine, op, err, time.Since(start))
}

// InsertNode stores node and files it under its unique key. Keys are not
// checked for uniqueness.
func (e *Engine[T]) InsertNode(node T) (id int32, err error) {
	start := time.Now()
	defer func() { e.observe("insert_node", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}

	payload, err := sonnet.Marshal(node)
	if err != nil {
		return 0, fmt.Errorf("encode node: %w", err)
	}
	if id, err = e.nodes.Insert(payload); err != nil {
		return 0, err
	}
	if err = e.index.Insert(id, e.keyOf(node)); err != nil {
		// Content is append-only, so the stored node stays behind without a key.
		e.logger.Error("node stored but not indexed",
			logging.NodeID(id), logging.Key(e.keyOf(node)), logging.Error(err))
		return 0, err
	}
	return id, nil
}

// FindNodeFromUniqueID returns the node whose key is key. Every candidate
// from the index is decoded and its key compared, since the index mixes
// keys that share a bucket.
func (e *Engine[T]) FindNodeFromUniqueID(key string) (T, bool, error) {
	_, node, found, err := e.find(key)
	return node, found, err
}

// FindNodeIDFromUniqueID is FindNodeFromUniqueID returning the node id.
func (e *Engine[T]) FindNodeIDFromUniqueID(key string) (int32, bool, error) {
	id, _, found, err := e.find(key)
	return id, found, err
}

func (e *Engine[T]) find(key string) (id int32, node T, found bool, err error) {
	start := time.Now()
	defer func() { e.observe("find_node", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, node, false, ErrClosed
	}

	for candidate, ierr := range e.index.Find(key) {
		if ierr != nil {
			return 0, node, false, ierr
		}
		n, gerr := e.getNode(candidate)
		if gerr != nil {
			return 0, node, false, gerr
		}
		if e.keyOf(n) == key {
			return candidate, n, true, nil
		}
		e.logger.Debug("skipping colliding candidate", logging.Key(key), logging.NodeID(candidate))
	}
	return 0, node, false, nil
}

// GetNode returns the node stored under id.
func (e *Engine[T]) GetNode(id int32) (node T, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return node, ErrClosed
	}
	return e.getNode(id)
}

func (e *Engine[T]) getNode(id int32) (T, error) {
	var node T
	payload, err := e.nodes.Get(id)
	if err != nil {
		return node, err
	}
	if err := sonnet.Unmarshal(payload, &node); err != nil {
		return node, fmt.Errorf("decode node %d: %w", id, err)
	}
	return node, nil
}

// UpdateNode replaces the node stored under id and refiles it if its key
// changed.
func (e *Engine[T]) UpdateNode(id int32, node T) (err error) {
	start := time.Now()
	defer func() { e.observe("update_node", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	old, err := e.getNode(id)
	if err != nil {
		return err
	}
	payload, err := sonnet.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode node: %w", err)
	}
	oldKey, newKey := e.keyOf(old), e.keyOf(node)
	rekey := oldKey != newKey
	if rekey {
		if err := e.index.Update(id, oldKey, newKey); err != nil {
			return err
		}
	}
	if err := e.nodes.Update(id, payload); err != nil {
		if rekey {
			if rerr := e.index.Update(id, newKey, oldKey); rerr != nil {
				e.logger.Error("node key left pointing at old content",
					logging.NodeID(id), logging.Key(newKey), logging.Error(rerr))
				return errors.Join(err, rerr)
			}
		}
		return err
	}
	return nil
}

// relationRow validates the parts of a relationship and encodes them. at
// must be after the epoch and both ids must name nodes.
func relationRow(at time.Time, lhs, rhs int32, relationship uint32) (record.Row, error) {
	ts, err := record.Timestamp(at)
	if err != nil {
		return record.Row{}, err
	}
	if lhs <= 0 || rhs <= 0 {
		return record.Row{}, fmt.Errorf("%w: relationship %d -> %d", hashindex.ErrInvalidNodeID, lhs, rhs)
	}
	return record.Row{
		Timestamp:      ts,
		LhsID:          uint32(lhs),
		RhsID:          uint32(rhs),
		RelationshipID: relationship,
	}, nil
}

// Relate records that lhs relates to rhs through relationship at time at.
// Times at or before the epoch fail with record.ErrBeforeEpoch and ids
// below 1 with hashindex.ErrInvalidNodeID.
func (e *Engine[T]) Relate(at time.Time, lhs, rhs int32, relationship uint32) error {
	row, err := relationRow(at, lhs, rhs, relationship)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.graph.Insert(row)
}

// Unrelate removes a relationship recorded by Relate. It reports whether
// one was found. Arguments Relate would reject are an error here too.
func (e *Engine[T]) Unrelate(at time.Time, lhs, rhs int32, relationship uint32) (bool, error) {
	row, err := relationRow(at, lhs, rhs, relationship)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrClosed
	}
	return e.graph.Delete(row)
}

// Relationships returns every relationship recorded within [from, to] in
// time order.
func (e *Engine[T]) Relationships(from, to time.Time) ([]record.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.graph.ScanTime(from, to)
}

// Verify checks the relationship file for ordering and length problems.
func (e *Engine[T]) Verify() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.graph.Verify()
}

// Defrag rebalances the relationship file.
func (e *Engine[T]) Defrag() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.graph.Defrag()
}

// Stats reports on the relationship file.
func (e *Engine[T]) Stats() (storage.Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return storage.Stats{}, ErrClosed
	}
	return e.graph.Stats()
}

// NodeCount returns the number of nodes stored.
func (e *Engine[T]) NodeCount() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nodes.Count()
}

// Sync flushes every file.
func (e *Engine[T]) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return errors.Join(e.graph.Sync(), e.index.Sync(), e.nodes.Sync())
}

// Close closes every file. Closing twice is a no-op.
func (e *Engine[T]) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return errors.Join(e.graph.Close(), e.index.Close(), e.nodes.Close())
}
