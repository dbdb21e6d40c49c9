package storage

import (
	"time"

	"github.com/dd0wney/timegraphdb/pkg/record"
)

// Delete replaces the row equal to r with a filler. It reports whether a
// row was found; deleting an absent row leaves the file untouched.
func (s *Store) Delete(r record.Row) (deleted bool, err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	if s.closed {
		return false, ErrClosed
	}
	e := record.Encode(r)
	if e.IsFiller() {
		return false, nil
	}

	idx, found, err := s.locate(e)
	if err != nil {
		return false, NewError("delete").Cause(err).Err()
	}
	if !found {
		return false, nil
	}
	if err := s.writeRow(idx, record.Filler); err != nil {
		return false, NewError("delete").Row(idx).Cause(err).Err()
	}
	return true, nil
}

// locate binary searches for a slot holding exactly e. When the probed
// slot is a filler the nearest populated slot is used instead, searching
// forward to the right bound first and then back to the left bound.
func (s *Store) locate(e record.Encoded) (int64, bool, error) {
	lo, hi := int64(0), s.rows-1
	for lo <= hi {
		mid := lo + (hi-lo)/2

		j, v, found, err := s.scan(mid, hi, true, isPopulated)
		if err != nil {
			return -1, false, err
		}
		if !found {
			j, v, found, err = s.scan(mid-1, lo, false, isPopulated)
			if err != nil {
				return -1, false, err
			}
			if !found {
				return -1, false, nil
			}
		}

		switch c := record.Compare(e, v); {
		case c == 0:
			return j, true, nil
		case c > 0:
			lo = j + 1
		case j >= mid:
			// Slots mid..j-1 are fillers.
			hi = mid - 1
		default:
			hi = j - 1
		}
	}
	return -1, false, nil
}
