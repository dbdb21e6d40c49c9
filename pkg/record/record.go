// Package record defines the fixed-width relationship row and its on-disk
// encoding.
//
// A row is 20 bytes: an 8-byte timestamp followed by three 4-byte ids, all
// big-endian. Because the encoding is big-endian, comparing two encoded rows
// byte by byte gives the same answer as comparing the (timestamp, lhs, rhs,
// relationship) tuples numerically, so the storage engine never has to decode
// a row to order it.
package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// Width is the encoded size of a row in bytes.
	Width = 20

	timestampOffset    = 0
	lhsOffset          = 8
	rhsOffset          = 12
	relationshipOffset = 16
)

// Row is a single timestamped relationship between two nodes.
type Row struct {
	Timestamp      uint64
	LhsID          uint32
	RhsID          uint32
	RelationshipID uint32
}

// Encoded is the raw on-disk form of a Row.
type Encoded [Width]byte

// Filler is the all-zero gap row.
var Filler Encoded

// ErrBeforeEpoch is returned for times that have no row timestamp: the
// epoch itself encodes as a filler and earlier times would wrap.
var ErrBeforeEpoch = errors.New("time is not after the Unix epoch")

// Timestamp converts t to the Unix millisecond form rows are stamped with.
func Timestamp(t time.Time) (uint64, error) {
	ms := t.UnixMilli()
	if ms <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrBeforeEpoch, t.UTC().Format(time.RFC3339Nano))
	}
	return uint64(ms), nil
}

// NewRow builds a row stamped with t in Unix milliseconds. t must be after
// the epoch; callers taking times from outside check it with Timestamp.
func NewRow(t time.Time, lhs, rhs, relationship uint32) Row {
	return Row{
		Timestamp:      uint64(t.UnixMilli()),
		LhsID:          lhs,
		RhsID:          rhs,
		RelationshipID: relationship,
	}
}

// Time returns the row timestamp interpreted as Unix milliseconds.
func (r Row) Time() time.Time {
	return time.UnixMilli(int64(r.Timestamp)).UTC()
}

// IsFiller reports whether the row would encode as a gap row.
func (r Row) IsFiller() bool {
	return r.Timestamp == 0
}

func (r Row) String() string {
	if r.IsFiller() {
		return "filler"
	}
	return fmt.Sprintf("%d:%d-%d->%d", r.Timestamp, r.LhsID, r.RelationshipID, r.RhsID)
}

// Encode serializes r into its big-endian row form.
func Encode(r Row) Encoded {
	var e Encoded
	binary.BigEndian.PutUint64(e[timestampOffset:], r.Timestamp)
	binary.BigEndian.PutUint32(e[lhsOffset:], r.LhsID)
	binary.BigEndian.PutUint32(e[rhsOffset:], r.RhsID)
	binary.BigEndian.PutUint32(e[relationshipOffset:], r.RelationshipID)
	return e
}

// Decode parses an encoded row.
func Decode(e Encoded) Row {
	return Row{
		Timestamp:      binary.BigEndian.Uint64(e[timestampOffset:]),
		LhsID:          binary.BigEndian.Uint32(e[lhsOffset:]),
		RhsID:          binary.BigEndian.Uint32(e[rhsOffset:]),
		RelationshipID: binary.BigEndian.Uint32(e[relationshipOffset:]),
	}
}

// FromBytes copies the first Width bytes of b into an Encoded.
func FromBytes(b []byte) (Encoded, error) {
	var e Encoded
	if len(b) < Width {
		return e, fmt.Errorf("row needs %d bytes, got %d", Width, len(b))
	}
	copy(e[:], b[:Width])
	return e, nil
}

// IsFiller reports whether b starts with a zero timestamp. Only the
// timestamp bytes are authoritative.
func IsFiller(b []byte) bool {
	for _, c := range b[timestampOffset:lhsOffset] {
		if c != 0 {
			return false
		}
	}
	return true
}

// IsFiller reports whether e is a gap row.
func (e Encoded) IsFiller() bool {
	return IsFiller(e[:])
}

// Compare orders two encoded rows as unsigned byte strings.
func Compare(a, b Encoded) int {
	return bytes.Compare(a[:], b[:])
}

func Less(a, b Encoded) bool           { return Compare(a, b) < 0 }
func LessOrEqual(a, b Encoded) bool    { return Compare(a, b) <= 0 }
func Greater(a, b Encoded) bool        { return Compare(a, b) > 0 }
func GreaterOrEqual(a, b Encoded) bool { return Compare(a, b) >= 0 }
func Equal(a, b Encoded) bool          { return a == b }
