// Package hashindex maps unique string keys to node ids through a
// disk-resident chained hash table.
//
// The file starts with NumberOfBuckets head segments of one slot each.
// When a bucket's chain is full a segment of twice the previous capacity is
// appended to the file and linked from the chain's tail. Every integer is a
// big-endian uint32; a slot holding zero is empty and a next pointer of
// zero ends the chain.
//
// The index does not store keys. Find yields every id filed under the
// key's bucket, so callers must confirm each candidate against its key.
package hashindex

import (
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/dd0wney/timegraphdb/pkg/fileio"
	"github.com/dd0wney/timegraphdb/pkg/logging"
	"github.com/dd0wney/timegraphdb/pkg/metrics"
)

const (
	// NumberOfBuckets is fixed when the file is created.
	NumberOfBuckets = 1000

	slotWidth    = 4
	pointerWidth = 4
	headWidth    = slotWidth + pointerWidth

	// HeaderSize is the length of a freshly created index file.
	HeaderSize = NumberOfBuckets * headWidth

	// Segment offsets are stored in 32 bits.
	maxFileSize = 1<<31 - 1

	// A chain can double at most this many times before its segments
	// would no longer be addressable.
	maxChainSegments = 30
)

var (
	ErrClosed        = errors.New("hash index is closed")
	ErrInvalidNodeID = errors.New("node id must be positive")
	ErrIndexFull     = errors.New("hash index file would exceed 32-bit offsets")
	ErrCorruptIndex  = errors.New("hash index is corrupt")
)

// Options configures an Index.
type Options struct {
	Logger  logging.Logger
	Metrics *metrics.Registry
}

// Index is an open hash index file. It is not safe for concurrent use.
type Index struct {
	file *fileio.File
	path string
	size int64

	logger  logging.Logger
	metrics *metrics.Registry
	closed  bool
}

// BucketOf returns the bucket a key is filed under: FNV-1a over the key's
// UTF-8 bytes, modulo NumberOfBuckets.
func BucketOf(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % NumberOfBuckets)
}

// Open opens the index at path, creating and pre-allocating it if needed.
func Open(path string, opts Options) (*Index, error) {
	f, err := fileio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hash index: %w", err)
	}
	size, err := f.Size()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open hash index: %w", err)
	}

	switch {
	case size == 0:
		if err := f.Truncate(HeaderSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("pre-allocate hash index: %w", err)
		}
		size = HeaderSize
	case size < HeaderSize:
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, shorter than the %d byte header",
			ErrCorruptIndex, path, size, HeaderSize)
	}

	x := &Index{
		file:    f,
		path:    path,
		size:    size,
		logger:  logging.OrNop(opts.Logger).With(logging.Component("hashindex"), logging.Path(path)),
		metrics: opts.Metrics,
	}
	x.logger.Debug("hash index opened", logging.Int64("size", size))
	return x, nil
}

// Path returns the backing file path.
func (x *Index) Path() string { return x.path }

// Size returns the file length in bytes.
func (x *Index) Size() int64 { return x.size }

// Sync flushes the index to stable storage.
func (x *Index) Sync() error {
	if x.closed {
		return ErrClosed
	}
	return x.file.Sync()
}

// Close releases the file.
func (x *Index) Close() error {
	if x.closed {
		return nil
	}
	x.closed = true
	return x.file.Close()
}

func (x *Index) observe(op string, start time.Time, err error) {
	x.metrics.RecordOperation(metrics.ComponentHashIndex, op, err, time.Since(start))
}
