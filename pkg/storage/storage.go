// Package storage implements the sorted gap file: an on-disk array of
// fixed-width relationship rows kept in key order, with filler rows spread
// through it so most inserts only move a handful of neighbours.
package storage

import (
	"fmt"
	"time"

	"github.com/dd0wney/timegraphdb/pkg/fileio"
	"github.com/dd0wney/timegraphdb/pkg/logging"
	"github.com/dd0wney/timegraphdb/pkg/metrics"
	"github.com/dd0wney/timegraphdb/pkg/pools"
	"github.com/dd0wney/timegraphdb/pkg/record"
)

// Open attaches to the gap file at path, creating an empty one if needed.
// The row count is taken from the file length.
func Open(path string, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	f, err := fileio.Open(path)
	if err != nil {
		return nil, NewError("open").Context("%s", path).Cause(err).Err()
	}

	size, err := f.Size()
	if err != nil {
		f.Close()
		return nil, NewError("open").Context("%s", path).Cause(err).Err()
	}

	s := &Store{
		file:       f,
		path:       path,
		fillFactor: int64(opts.FillFactor),
		maxShuffle: int64(opts.MaxShuffleDistance),
		rows:       size / RowWidth,
		logger:     opts.Logger.With(logging.Component("gapstore"), logging.Path(path)),
		metrics:    opts.Metrics,
	}

	if size%RowWidth != 0 {
		s.logger.Warn("gap file length is not a whole number of rows",
			logging.Int64("size", size), logging.Rows(s.rows))
	}
	s.logger.Debug("gap file opened", logging.Rows(s.rows), logging.Int("fill_factor", opts.FillFactor))
	s.metrics.SetGapRows(s.rows)

	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of slots, fillers included.
func (s *Store) Len() int64 {
	return s.rows
}

// FillFactor returns the configured populated-rows-per-filler ratio.
func (s *Store) FillFactor() int {
	return int(s.fillFactor)
}

// Sync flushes the gap file to stable storage.
func (s *Store) Sync() error {
	if s.closed {
		return ErrClosed
	}
	return s.file.Sync()
}

// Close releases the file. The Store cannot be used afterwards.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Close(); err != nil {
		return NewError("close").Cause(err).Err()
	}
	return nil
}

// Stats counts fillers and populated rows with a full scan.
func (s *Store) Stats() (Stats, error) {
	if s.closed {
		return Stats{}, ErrClosed
	}
	fillers, err := s.countFillers()
	if err != nil {
		return Stats{}, NewError("stats").Cause(err).Err()
	}
	s.metrics.SetGapRows(s.rows)
	s.metrics.SetGapFillers(fillers)
	return Stats{
		Rows:       s.rows,
		Fillers:    fillers,
		Populated:  s.rows - fillers,
		FillFactor: int(s.fillFactor),
	}, nil
}

func (s *Store) observe(op string, start time.Time, err error) {
	s.metrics.RecordOperation(metrics.ComponentGapStore, op, err, time.Since(start))
}

func (s *Store) readRow(i int64) (record.Encoded, error) {
	var e record.Encoded
	if _, err := s.file.ReadAt(e[:], i*RowWidth); err != nil {
		return e, fmt.Errorf("read row %d: %w", i, err)
	}
	return e, nil
}

func (s *Store) writeRow(i int64, e record.Encoded) error {
	if _, err := s.file.WriteAt(e[:], i*RowWidth); err != nil {
		return fmt.Errorf("write row %d: %w", i, err)
	}
	return nil
}

func (s *Store) appendRow(e record.Encoded) error {
	if err := s.writeRow(s.rows, e); err != nil {
		return err
	}
	s.rows++
	return nil
}

func isPopulated(b []byte) bool { return !record.IsFiller(b) }

// scan walks slots from `from` to `to` inclusive, ascending when forward
// is set and descending otherwise, and returns the first slot whose bytes
// satisfy match. Reads start small and double, so short probes stay cheap
// and long filler runs are still read in large blocks.
func (s *Store) scan(from, to int64, forward bool, match func([]byte) bool) (int64, record.Encoded, bool, error) {
	chunk := int64(probeChunkRows)
	for {
		if forward && from > to || !forward && from < to {
			return -1, record.Filler, false, nil
		}

		var lo, n int64
		if forward {
			lo, n = from, min(chunk, to-from+1)
		} else {
			lo = max(to, from-chunk+1)
			n = from - lo + 1
		}

		buf := pools.GetBytesSized(int(n * RowWidth))
		if _, err := s.file.ReadAt(buf, lo*RowWidth); err != nil {
			pools.PutBytes(buf)
			return -1, record.Filler, false, fmt.Errorf("read rows %d..%d: %w", lo, lo+n-1, err)
		}
		for k := int64(0); k < n; k++ {
			j := k
			if !forward {
				j = n - 1 - k
			}
			slot := buf[j*RowWidth : (j+1)*RowWidth]
			if match(slot) {
				e, _ := record.FromBytes(slot)
				pools.PutBytes(buf)
				return lo + j, e, true, nil
			}
		}
		pools.PutBytes(buf)

		if forward {
			from = lo + n
		} else {
			from = lo - 1
		}
		chunk = min(chunk*2, scanChunkRows)
	}
}

// countFillers scans the whole file.
func (s *Store) countFillers() (int64, error) {
	var fillers int64
	err := s.eachSlot(0, func(_ int64, slot []byte) (bool, error) {
		if record.IsFiller(slot) {
			fillers++
		}
		return true, nil
	})
	return fillers, err
}

// eachSlot calls fn for every slot from start to the end of the file in
// order. fn returns false to stop early.
func (s *Store) eachSlot(start int64, fn func(index int64, slot []byte) (bool, error)) error {
	return forEachSlot(s.file, start, s.rows, fn)
}

type readerAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

func forEachSlot(r readerAt, start, rows int64, fn func(index int64, slot []byte) (bool, error)) error {
	if start >= rows {
		return nil
	}
	buf := pools.GetBytesSized(scanChunkRows * RowWidth)
	defer pools.PutBytes(buf)

	for lo := start; lo < rows; lo += scanChunkRows {
		n := min(int64(scanChunkRows), rows-lo)
		b := buf[:n*RowWidth]
		if _, err := r.ReadAt(b, lo*RowWidth); err != nil {
			return fmt.Errorf("read rows %d..%d: %w", lo, lo+n-1, err)
		}
		for j := int64(0); j < n; j++ {
			more, err := fn(lo+j, b[j*RowWidth:(j+1)*RowWidth])
			if err != nil || !more {
				return err
			}
		}
	}
	return nil
}
