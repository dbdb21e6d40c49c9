package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/timegraphdb/pkg/logging"
	"github.com/dd0wney/timegraphdb/pkg/pools"
	"github.com/dd0wney/timegraphdb/pkg/record"
)

// Insert stores r, keeping populated rows in strictly increasing order.
//
// Rows newer than everything stored are appended, topping up the filler
// density as they go. Anything else lands next to its ordered neighbours
// by sliding the nearest following filler back into place. When that
// filler is more than MaxShuffleDistance slots away the file is
// defragmented once and the insert retried; a second miss is fatal.
//
// A row identical to a stored row is rejected with ErrDuplicateRow and a
// row with a zero timestamp with ErrFillerRow.
func (s *Store) Insert(r record.Row) (err error) {
	start := time.Now()
	defer func() { s.observe("insert", start, err) }()

	if s.closed {
		return ErrClosed
	}
	e := record.Encode(r)
	if e.IsFiller() {
		return NewError("insert").Context("%s", r).Cause(ErrFillerRow).Err()
	}

	err = s.insert(e)
	if !errors.Is(err, ErrFragmented) {
		return err
	}

	s.logger.Info("insert too far from a filler, defragmenting", logging.Error(err))
	s.metrics.RecordFragmentationRetry()
	if derr := s.defrag(); derr != nil {
		return derr
	}

	if err = s.insert(e); errors.Is(err, ErrFragmented) {
		s.logger.Error("insert still fragmented after defrag", logging.Error(err))
		return NewError("insert").Context("%s", r).
			Cause(fmt.Errorf("%w: %w", ErrInvariantViolation, err)).Err()
	}
	return err
}

func (s *Store) insert(e record.Encoded) error {
	if s.rows == 0 {
		return s.appendRow(e)
	}

	lastIdx, last, found, err := s.scan(s.rows-1, 0, false, isPopulated)
	if err != nil {
		return NewError("insert").Cause(err).Err()
	}
	if !found {
		// Only fillers: any slot is in order.
		return s.writeRow(0, e)
	}

	switch c := record.Compare(e, last); {
	case c == 0:
		return NewError("insert").Row(lastIdx).Cause(ErrDuplicateRow).Err()
	case c > 0:
		if lastIdx == s.rows-1 {
			return s.appendWithFiller(e)
		}
		// Trailing fillers follow the last populated row.
		return s.writeRow(lastIdx+1, e)
	}

	firstIdx, first, _, err := s.scan(0, lastIdx, true, isPopulated)
	if err != nil {
		return NewError("insert").Cause(err).Err()
	}
	switch c := record.Compare(e, first); {
	case c == 0:
		return NewError("insert").Row(firstIdx).Cause(ErrDuplicateRow).Err()
	case c < 0:
		return s.shuffleInto(0, e)
	}

	m, err := s.lowerBound(e)
	if err != nil {
		return NewError("insert").Cause(err).Err()
	}
	if m <= firstIdx || m > lastIdx {
		return NewError("insert").Row(m).
			Context("insertion point outside populated range %d..%d", firstIdx, lastIdx).
			Cause(ErrInvariantViolation).Err()
	}

	next, v, found, err := s.scan(m, lastIdx, true, isPopulated)
	if err != nil {
		return NewError("insert").Cause(err).Err()
	}
	if found && v == e {
		return NewError("insert").Row(next).Cause(ErrDuplicateRow).Err()
	}

	return s.shuffleInto(m, e)
}

// appendWithFiller appends e at the end of the file. If none of the
// trailing FillFactor rows is a filler, one is written first so the tail
// never runs dry.
func (s *Store) appendWithFiller(e record.Encoded) error {
	if s.rows >= s.fillFactor {
		_, _, hasFiller, err := s.scan(s.rows-1, s.rows-s.fillFactor, false, record.IsFiller)
		if err != nil {
			return NewError("insert").Cause(err).Err()
		}
		if !hasFiller {
			if err := s.appendRow(record.Filler); err != nil {
				return NewError("insert").Row(s.rows).Cause(err).Err()
			}
		}
	}
	if err := s.appendRow(e); err != nil {
		return NewError("insert").Row(s.rows).Cause(err).Err()
	}
	s.metrics.SetGapRows(s.rows)
	return nil
}

// shuffleInto writes e at slot m. The nearest filler at or after m is
// pulled back to m by sliding the rows in between forward one slot. With
// no filler before the end of the file a new one is appended first.
func (s *Store) shuffleInto(m int64, e record.Encoded) error {
	limit := min(s.rows-1, m+s.maxShuffle)
	f, _, found, err := s.scan(m, limit, true, record.IsFiller)
	if err != nil {
		return NewError("insert").Row(m).Cause(err).Err()
	}

	if !found {
		if limit < s.rows-1 || s.rows-m > s.maxShuffle {
			return NewError("insert").Row(m).
				Context("no filler within %d slots", s.maxShuffle).
				Cause(ErrFragmented).Err()
		}
		f = s.rows
		if err := s.appendRow(record.Filler); err != nil {
			return NewError("insert").Row(f).Cause(err).Err()
		}
		s.metrics.SetGapRows(s.rows)
	}

	distance := f - m
	if distance > 0 {
		buf := pools.GetBytesSized(int(distance * RowWidth))
		defer pools.PutBytes(buf)

		if _, err := s.file.ReadAt(buf, m*RowWidth); err != nil {
			return NewError("insert").Row(m).Context("read shuffle window").Cause(err).Err()
		}
		if _, err := s.file.WriteAt(buf, (m+1)*RowWidth); err != nil {
			return NewError("insert").Row(m + 1).Context("write shuffle window").Cause(err).Err()
		}
	}

	if err := s.writeRow(m, e); err != nil {
		return NewError("insert").Row(m).Cause(err).Err()
	}
	s.metrics.ObserveShuffle(distance)
	return nil
}

// lowerBound returns a slot p such that every populated row before p is
// less than e and every populated row at or after p is not. Fillers are
// stepped over while probing.
func (s *Store) lowerBound(e record.Encoded) (int64, error) {
	lo, hi := int64(0), s.rows
	for lo < hi {
		mid := lo + (hi-lo)/2
		j, v, found, err := s.scan(mid, hi-1, true, isPopulated)
		if err != nil {
			return 0, err
		}
		switch {
		case !found:
			hi = mid
		case record.Less(v, e):
			lo = j + 1
		default:
			hi = mid
		}
	}
	return lo, nil
}
