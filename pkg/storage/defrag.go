package storage

import (
	"fmt"
	"time"

	"github.com/dd0wney/timegraphdb/pkg/logging"
	"github.com/dd0wney/timegraphdb/pkg/pools"
	"github.com/dd0wney/timegraphdb/pkg/record"
)

type direction int

const (
	forward direction = iota
	backward
)

func (d direction) String() string {
	if d == backward {
		return "backward"
	}
	return "forward"
}

// Defrag rewrites the file into its ideal layout: populated rows in order
// with one filler after every FillFactor of them. A file short of fillers
// grows to make room; a file with surplus fillers shrinks.
func (s *Store) Defrag() (err error) {
	start := time.Now()
	defer func() { s.observe("defrag", start, err) }()

	if s.closed {
		return ErrClosed
	}
	return s.defrag()
}

func (s *Store) defrag() error {
	fillers, err := s.countFillers()
	if err != nil {
		return NewError("defrag").Cause(err).Err()
	}
	populated := s.rows - fillers
	ideal := populated / s.fillFactor
	total := populated + ideal

	dir := forward
	if fillers < ideal {
		// New slots read back as fillers, so growing the file appends
		// the missing ones. The backward sweep then pulls them into place.
		dir = backward
		if err := s.file.Truncate(total * RowWidth); err != nil {
			return NewError("defrag").Context("grow to %d rows", total).Cause(err).Err()
		}
		s.rows = total
	}

	timer := logging.StartTimer(s.logger, "defrag",
		logging.Direction(dir.String()), logging.Rows(s.rows), logging.Fillers(fillers))

	if err := s.sweep(dir, total); err != nil {
		timer.EndError(err)
		return NewError("defrag").Context("%s sweep", dir).
			Cause(fmt.Errorf("%w: %w", ErrInvariantViolation, err)).Err()
	}

	if s.rows > total {
		if err := s.file.Truncate(total * RowWidth); err != nil {
			timer.EndError(err)
			return NewError("defrag").Context("shrink to %d rows", total).Cause(err).Err()
		}
		s.rows = total
	}
	timer.EndWithLevel(logging.InfoLevel, "defrag complete")

	s.metrics.RecordDefrag(dir.String())
	s.metrics.SetGapRows(s.rows)
	s.metrics.SetGapFillers(ideal)
	return nil
}

// sweep writes slots [0, total) in the given direction. A slot whose
// position is congruent to FillFactor modulo FillFactor+1 gets a filler and
// every other slot gets the next populated row in sweep order.
//
// Every source slot at or before the write position (in sweep order) is
// read into a FIFO before that position is written, so no unread row is
// ever overwritten whatever the starting filler placement.
func (s *Store) sweep(dir direction, total int64) error {
	src := newRowCursor(s.file, dir, s.rows)
	dst := newRowWriter(s.file, dir)
	defer src.release()
	defer dst.release()

	var pending rowQueue
	absorb := func() error {
		e, err := src.read()
		if err != nil {
			return err
		}
		if !e.IsFiller() {
			pending.push(e)
		}
		return nil
	}

	period := s.fillFactor + 1
	for k := int64(0); k < total; k++ {
		w := k
		if dir == backward {
			w = total - 1 - k
		}

		for !src.done() && src.reached(w) {
			if err := absorb(); err != nil {
				return err
			}
		}

		if w%period == s.fillFactor {
			if err := dst.put(w, record.Filler); err != nil {
				return err
			}
			continue
		}
		for pending.empty() {
			if src.done() {
				return fmt.Errorf("ran out of rows at slot %d", w)
			}
			if err := absorb(); err != nil {
				return err
			}
		}
		if err := dst.put(w, pending.pop()); err != nil {
			return err
		}
	}

	if err := dst.flush(); err != nil {
		return err
	}
	for !src.done() {
		if err := absorb(); err != nil {
			return err
		}
	}
	if !pending.empty() {
		return fmt.Errorf("%d rows left over after writing %d slots", pending.len(), total)
	}
	return nil
}

// rowCursor reads slots one at a time in either direction, fetching them
// from the file in blocks.
type rowCursor struct {
	r    readerAt
	dir  direction
	next int64 // next slot to return
	rows int64

	buf   []byte
	bufLo int64
	bufN  int64
}

func newRowCursor(r readerAt, dir direction, rows int64) *rowCursor {
	c := &rowCursor{r: r, dir: dir, rows: rows, buf: pools.GetBytesSized(scanChunkRows * RowWidth)}
	if dir == backward {
		c.next = rows - 1
	}
	return c
}

func (c *rowCursor) done() bool {
	return c.next < 0 || c.next >= c.rows
}

// reached reports whether the cursor has not yet passed slot w.
func (c *rowCursor) reached(w int64) bool {
	if c.dir == forward {
		return c.next <= w
	}
	return c.next >= w
}

func (c *rowCursor) read() (record.Encoded, error) {
	if c.next < c.bufLo || c.next >= c.bufLo+c.bufN {
		if c.dir == forward {
			c.bufLo = c.next
			c.bufN = min(int64(scanChunkRows), c.rows-c.next)
		} else {
			c.bufLo = max(0, c.next-scanChunkRows+1)
			c.bufN = c.next - c.bufLo + 1
		}
		if _, err := c.r.ReadAt(c.buf[:c.bufN*RowWidth], c.bufLo*RowWidth); err != nil {
			lo, hi := c.bufLo, c.bufLo+c.bufN-1
			c.bufN = 0
			return record.Filler, fmt.Errorf("read rows %d..%d: %w", lo, hi, err)
		}
	}

	off := (c.next - c.bufLo) * RowWidth
	e, _ := record.FromBytes(c.buf[off : off+RowWidth])
	if c.dir == forward {
		c.next++
	} else {
		c.next--
	}
	return e, nil
}

func (c *rowCursor) release() {
	pools.PutBytes(c.buf)
	c.buf = nil
}

type writerAt interface {
	WriteAt(p []byte, off int64) (int, error)
}

// rowWriter collects consecutive slot writes in either direction and
// writes them to the file in blocks.
type rowWriter struct {
	w     writerAt
	dir   direction
	buf   []byte
	first int64 // slot of the first buffered row
	n     int64
}

func newRowWriter(w writerAt, dir direction) *rowWriter {
	return &rowWriter{w: w, dir: dir, buf: pools.GetBytesSized(scanChunkRows * RowWidth)}
}

func (rw *rowWriter) put(slot int64, e record.Encoded) error {
	if rw.n == 0 {
		rw.first = slot
	}
	k := rw.n
	if rw.dir == backward {
		k = scanChunkRows - 1 - rw.n
	}
	copy(rw.buf[k*RowWidth:], e[:])
	rw.n++
	if rw.n == scanChunkRows {
		return rw.flush()
	}
	return nil
}

func (rw *rowWriter) flush() error {
	if rw.n == 0 {
		return nil
	}
	data, lo := rw.buf[:rw.n*RowWidth], rw.first
	if rw.dir == backward {
		data = rw.buf[(scanChunkRows-rw.n)*RowWidth : scanChunkRows*RowWidth]
		lo = rw.first - rw.n + 1
	}
	if _, err := rw.w.WriteAt(data, lo*RowWidth); err != nil {
		return fmt.Errorf("write rows %d..%d: %w", lo, lo+rw.n-1, err)
	}
	rw.n = 0
	return nil
}

func (rw *rowWriter) release() {
	pools.PutBytes(rw.buf)
	rw.buf = nil
}

// rowQueue is a FIFO of rows waiting for a destination slot.
type rowQueue struct {
	rows []record.Encoded
	head int
}

func (q *rowQueue) push(e record.Encoded) { q.rows = append(q.rows, e) }
func (q *rowQueue) empty() bool           { return q.head == len(q.rows) }
func (q *rowQueue) len() int              { return len(q.rows) - q.head }

func (q *rowQueue) pop() record.Encoded {
	e := q.rows[q.head]
	q.head++
	if q.head == len(q.rows) {
		q.rows, q.head = q.rows[:0], 0
	}
	return e
}
