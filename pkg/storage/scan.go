package storage

import (
	"time"

	"github.com/dd0wney/timegraphdb/pkg/record"
)

// Scan returns the populated rows r with from <= r <= to in order.
func (s *Store) Scan(from, to record.Row) (rows []record.Row, err error) {
	start := time.Now()
	defer func() { s.observe("scan", start, err) }()

	if s.closed {
		return nil, ErrClosed
	}
	lower, upper := record.Encode(from), record.Encode(to)
	if record.Greater(lower, upper) {
		return nil, nil
	}

	p, err := s.lowerBound(lower)
	if err != nil {
		return nil, NewError("scan").Cause(err).Err()
	}

	err = s.eachSlot(p, func(_ int64, slot []byte) (bool, error) {
		if record.IsFiller(slot) {
			return true, nil
		}
		e, _ := record.FromBytes(slot)
		if record.Greater(e, upper) {
			return false, nil
		}
		if record.GreaterOrEqual(e, lower) {
			rows = append(rows, record.Decode(e))
		}
		return true, nil
	})
	if err != nil {
		return nil, NewError("scan").Cause(err).Err()
	}
	return rows, nil
}

// ScanTime returns every populated row stamped within [from, to]. Rows
// cannot be stamped at or before the epoch, so the window is clipped there.
func (s *Store) ScanTime(from, to time.Time) ([]record.Row, error) {
	lower := record.Row{Timestamp: uint64(max(from.UnixMilli(), 1))}
	upper := record.Row{
		Timestamp:      uint64(max(to.UnixMilli(), 0)),
		LhsID:          ^uint32(0),
		RhsID:          ^uint32(0),
		RelationshipID: ^uint32(0),
	}
	return s.Scan(lower, upper)
}

// All returns every populated row in order.
func (s *Store) All() ([]record.Row, error) {
	if s.closed {
		return nil, ErrClosed
	}
	var rows []record.Row
	err := s.eachSlot(0, func(_ int64, slot []byte) (bool, error) {
		if !record.IsFiller(slot) {
			e, _ := record.FromBytes(slot)
			rows = append(rows, record.Decode(e))
		}
		return true, nil
	})
	if err != nil {
		return nil, NewError("all").Cause(err).Err()
	}
	return rows, nil
}
