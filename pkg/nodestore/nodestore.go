// Package nodestore keeps variable-length node payloads addressed by a
// dense, 1-based int32 id.
//
// Two files back a Store. The index file holds one 12-byte entry per node,
// a big-endian content offset (uint64) and blob length (uint32), so node n
// lives at index offset (n-1)*12. The content file holds the blobs back to
// back. A blob is a codec tag byte, a CRC-32 of the payload, and the
// payload itself, snappy-compressed when that makes it smaller.
package nodestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"time"

	"github.com/golang/snappy"

	"github.com/dd0wney/timegraphdb/pkg/fileio"
	"github.com/dd0wney/timegraphdb/pkg/logging"
	"github.com/dd0wney/timegraphdb/pkg/metrics"
	"github.com/dd0wney/timegraphdb/pkg/pools"
)

const (
	// EntryWidth is the size of one index entry.
	EntryWidth = 8 + 4

	blobHeaderWidth = 1 + 4

	codecRaw    byte = 0
	codecSnappy byte = 1
)

var (
	ErrClosed         = errors.New("node store is closed")
	ErrNodeNotFound   = errors.New("node not found")
	ErrCorruptContent = errors.New("node content is corrupt")
	ErrStoreFull      = errors.New("node store has no ids left")
)

// Options configures a Store.
type Options struct {
	// Compress stores payloads snappy-compressed when that saves space.
	Compress bool
	Logger   logging.Logger
	Metrics  *metrics.Registry
}

// Store is an open pair of node index and content files. It is not safe
// for concurrent use.
type Store struct {
	index   *fileio.File
	content *fileio.File

	indexSize   int64
	contentSize int64
	compress    bool

	logger  logging.Logger
	metrics *metrics.Registry
	closed  bool
}

type entry struct {
	offset int64
	length int64
}

// Open opens or creates the index and content files.
func Open(indexPath, contentPath string, opts Options) (*Store, error) {
	index, err := fileio.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open node index: %w", err)
	}
	content, err := fileio.Open(contentPath)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("open node content: %w", err)
	}

	s := &Store{
		index:    index,
		content:  content,
		compress: opts.Compress,
		logger:   logging.OrNop(opts.Logger).With(logging.Component("nodestore"), logging.Path(contentPath)),
		metrics:  opts.Metrics,
	}
	if s.indexSize, err = index.Size(); err == nil {
		s.contentSize, err = content.Size()
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open node store: %w", err)
	}
	if s.indexSize%EntryWidth != 0 {
		s.logger.Warn("node index has a partial entry", logging.Int64("size", s.indexSize))
		s.indexSize -= s.indexSize % EntryWidth
	}

	s.metrics.SetNodeStoreBytes(s.contentSize)
	return s, nil
}

// Count returns the number of node ids issued.
func (s *Store) Count() int32 {
	return int32(s.indexSize / EntryWidth)
}

// Insert appends data and returns its new id.
func (s *Store) Insert(data []byte) (id int32, err error) {
	start := time.Now()
	defer func() { s.observe("insert", start, err) }()

	if s.closed {
		return 0, ErrClosed
	}
	if s.Count() == math.MaxInt32 {
		return 0, ErrStoreFull
	}

	blob := s.encode(data)
	e := entry{offset: s.contentSize, length: int64(len(blob))}
	if err := s.appendBlob(blob); err != nil {
		return 0, err
	}

	id = s.Count() + 1
	if err := s.writeEntry(id, e); err != nil {
		return 0, err
	}
	s.indexSize += EntryWidth
	return id, nil
}

// Get returns the payload stored for id.
func (s *Store) Get(id int32) (data []byte, err error) {
	start := time.Now()
	defer func() { s.observe("get", start, err) }()

	if s.closed {
		return nil, ErrClosed
	}
	e, err := s.readEntry(id)
	if err != nil {
		return nil, err
	}

	blob := pools.GetBytesSized(int(e.length))
	defer pools.PutBytes(blob)
	if _, err := s.content.ReadAt(blob, e.offset); err != nil {
		return nil, fmt.Errorf("read node %d content: %w", id, err)
	}
	data, err = decode(blob)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", id, err)
	}
	return data, nil
}

// Update replaces the payload for id. The new blob overwrites the old one
// when it is no longer; otherwise it is appended and the entry re-pointed.
func (s *Store) Update(id int32, data []byte) (err error) {
	start := time.Now()
	defer func() { s.observe("update", start, err) }()

	if s.closed {
		return ErrClosed
	}
	e, err := s.readEntry(id)
	if err != nil {
		return err
	}

	blob := s.encode(data)
	if int64(len(blob)) <= e.length {
		if _, err := s.content.WriteAt(blob, e.offset); err != nil {
			return fmt.Errorf("write node %d content: %w", id, err)
		}
	} else {
		e.offset = s.contentSize
		if err := s.appendBlob(blob); err != nil {
			return err
		}
		s.metrics.RecordRelocation()
		s.logger.Debug("node content relocated", logging.NodeID(id), logging.Int64("offset", e.offset))
	}
	e.length = int64(len(blob))
	return s.writeEntry(id, e)
}

// Sync flushes both files to stable storage.
func (s *Store) Sync() error {
	if s.closed {
		return ErrClosed
	}
	if err := s.content.Sync(); err != nil {
		return err
	}
	return s.index.Sync()
}

// Close releases both files.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.content.Close(), s.index.Close())
}

func (s *Store) observe(op string, start time.Time, err error) {
	s.metrics.RecordOperation(metrics.ComponentNodeStore, op, err, time.Since(start))
}

func (s *Store) appendBlob(blob []byte) error {
	if _, err := s.content.WriteAt(blob, s.contentSize); err != nil {
		return fmt.Errorf("append node content: %w", err)
	}
	s.contentSize += int64(len(blob))
	s.metrics.SetNodeStoreBytes(s.contentSize)
	return nil
}

func (s *Store) readEntry(id int32) (entry, error) {
	if id < 1 || id > s.Count() {
		return entry{}, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	var b [EntryWidth]byte
	if _, err := s.index.ReadAt(b[:], int64(id-1)*EntryWidth); err != nil {
		return entry{}, fmt.Errorf("read node %d entry: %w", id, err)
	}
	e := entry{
		offset: int64(binary.BigEndian.Uint64(b[0:8])),
		length: int64(binary.BigEndian.Uint32(b[8:12])),
	}
	if e.length < blobHeaderWidth || e.offset+e.length > s.contentSize {
		return entry{}, fmt.Errorf("%w: node %d entry points at %d+%d beyond %d bytes",
			ErrCorruptContent, id, e.offset, e.length, s.contentSize)
	}
	return e, nil
}

func (s *Store) writeEntry(id int32, e entry) error {
	var b [EntryWidth]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(e.offset))
	binary.BigEndian.PutUint32(b[8:12], uint32(e.length))
	if _, err := s.index.WriteAt(b[:], int64(id-1)*EntryWidth); err != nil {
		return fmt.Errorf("write node %d entry: %w", id, err)
	}
	return nil
}

func (s *Store) encode(data []byte) []byte {
	codec, payload := codecRaw, data
	if s.compress {
		if c := snappy.Encode(nil, data); len(c) < len(data) {
			codec, payload = codecSnappy, c
		}
	}
	blob := make([]byte, blobHeaderWidth+len(payload))
	blob[0] = codec
	binary.BigEndian.PutUint32(blob[1:5], crc32.ChecksumIEEE(payload))
	copy(blob[blobHeaderWidth:], payload)
	return blob
}

func decode(blob []byte) ([]byte, error) {
	payload := blob[blobHeaderWidth:]
	if crc32.ChecksumIEEE(payload) != binary.BigEndian.Uint32(blob[1:5]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptContent)
	}
	switch blob[0] {
	case codecRaw:
		return append([]byte(nil), payload...), nil
	case codecSnappy:
		data, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptContent, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %d", ErrCorruptContent, blob[0])
	}
}
