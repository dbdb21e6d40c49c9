package storage

import (
	"fmt"
	"iter"

	"golang.org/x/exp/mmap"

	"github.com/dd0wney/timegraphdb/pkg/fileio"
	"github.com/dd0wney/timegraphdb/pkg/record"
)

// Snapshot is a read-only, memory-mapped view of a gap file that no Store
// currently holds. It keeps a shared lock on the file until closed, so a
// Store cannot open the path in the meantime.
type Snapshot struct {
	path string
	lock *fileio.SharedLock
	data *mmap.ReaderAt
	rows int64
	size int64
}

// Inspect maps the gap file at path for reading.
func Inspect(path string) (*Snapshot, error) {
	lock, err := fileio.LockShared(path)
	if err != nil {
		return nil, NewError("inspect").Context("%s", path).Cause(err).Err()
	}
	data, err := mmap.Open(path)
	if err != nil {
		lock.Release()
		return nil, NewError("inspect").Context("%s", path).Cause(err).Err()
	}
	size := int64(data.Len())
	return &Snapshot{
		path: path,
		lock: lock,
		data: data,
		rows: size / RowWidth,
		size: size,
	}, nil
}

// Path returns the mapped file path.
func (s *Snapshot) Path() string { return s.path }

// Len returns the number of whole slots in the file.
func (s *Snapshot) Len() int64 { return s.rows }

// Row returns the raw slot i.
func (s *Snapshot) Row(i int64) (record.Encoded, error) {
	var e record.Encoded
	if i < 0 || i >= s.rows {
		return e, fmt.Errorf("row %d out of range [0, %d)", i, s.rows)
	}
	if _, err := s.data.ReadAt(e[:], i*RowWidth); err != nil {
		return e, fmt.Errorf("read row %d: %w", i, err)
	}
	return e, nil
}

// Slot is one position of a mapped gap file.
type Slot struct {
	Index int64
	Row   record.Encoded
}

// All yields every slot in order, fillers included. A read error ends the
// sequence as its final element.
func (s *Snapshot) All() iter.Seq2[Slot, error] {
	return func(yield func(Slot, error) bool) {
		err := forEachSlot(s.data, 0, s.rows, func(i int64, slot []byte) (bool, error) {
			e, _ := record.FromBytes(slot)
			return yield(Slot{Index: i, Row: e}, nil), nil
		})
		if err != nil {
			yield(Slot{}, NewError("inspect").Context("%s", s.path).Cause(err).Err())
		}
	}
}

// Stats counts fillers and populated rows.
func (s *Snapshot) Stats(fillFactor int) (Stats, error) {
	var fillers int64
	err := forEachSlot(s.data, 0, s.rows, func(_ int64, slot []byte) (bool, error) {
		if record.IsFiller(slot) {
			fillers++
		}
		return true, nil
	})
	if err != nil {
		return Stats{}, err
	}
	return Stats{Rows: s.rows, Fillers: fillers, Populated: s.rows - fillers, FillFactor: fillFactor}, nil
}

// Verify applies the same checks as Store.Verify to the mapped file.
func (s *Snapshot) Verify() error {
	if s.size%RowWidth != 0 {
		return &CorruptionError{
			Row:    s.rows,
			Reason: fmt.Sprintf("file length %d is not a multiple of %d", s.size, RowWidth),
		}
	}
	return verifyOrder(s.data, s.rows)
}

// Close unmaps the file and drops the shared lock.
func (s *Snapshot) Close() error {
	err := s.data.Close()
	if lerr := s.lock.Release(); err == nil {
		err = lerr
	}
	return err
}
