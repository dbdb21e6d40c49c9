package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/timegraphdb/pkg/logging"
	"github.com/dd0wney/timegraphdb/pkg/record"
)

// Verify checks that the cached row count matches the file length and that
// populated rows are strictly increasing. The first violation is returned
// as a *CorruptionError; I/O failures are returned as they are.
func (s *Store) Verify() (err error) {
	start := time.Now()
	defer func() { s.observe("verify", start, err) }()

	if s.closed {
		return ErrClosed
	}
	size, err := s.file.Size()
	if err != nil {
		return NewError("verify").Cause(err).Err()
	}
	if size != s.rows*RowWidth {
		err = &CorruptionError{
			Row:    s.rows,
			Reason: fmt.Sprintf("cached row count %d does not match file length %d", s.rows, size),
		}
	} else {
		err = verifyOrder(s.file, s.rows)
	}

	var ce *CorruptionError
	if errors.As(err, &ce) {
		s.logger.Error("gap file failed verification", logging.RowIndex(ce.Row), logging.String("reason", ce.Reason))
	}
	return err
}

// IsValid reports whether Verify finds the file consistent.
func (s *Store) IsValid() (bool, error) {
	err := s.Verify()
	if err == nil {
		return true, nil
	}
	if IsCorrupt(err) {
		return false, nil
	}
	return false, err
}

func verifyOrder(r readerAt, rows int64) error {
	var (
		prev    record.Encoded
		prevIdx int64 = -1
		bad     *CorruptionError
	)
	err := forEachSlot(r, 0, rows, func(i int64, slot []byte) (bool, error) {
		if record.IsFiller(slot) {
			return true, nil
		}
		e, _ := record.FromBytes(slot)
		if prevIdx >= 0 {
			switch c := record.Compare(prev, e); {
			case c == 0:
				bad = &CorruptionError{Row: i, Reason: fmt.Sprintf("duplicate of row %d", prevIdx)}
				return false, nil
			case c > 0:
				bad = &CorruptionError{Row: i, Reason: fmt.Sprintf("out of order after row %d", prevIdx)}
				return false, nil
			}
		}
		prev, prevIdx = e, i
		return true, nil
	})
	if err != nil {
		return err
	}
	if bad != nil {
		return bad
	}
	return nil
}
