package hashindex

import (
	"encoding/binary"
	"fmt"
	"iter"
	"time"

	"github.com/dd0wney/timegraphdb/pkg/logging"
	"github.com/dd0wney/timegraphdb/pkg/pools"
)

// segment is one link of a bucket chain, read whole.
type segment struct {
	off      int64 // offset of the first slot
	capacity int64
	data     []byte // capacity slots followed by the next pointer
}

func (s segment) slot(i int64) uint32 {
	return binary.BigEndian.Uint32(s.data[i*slotWidth:])
}

func (s segment) slotOffset(i int64) int64 {
	return s.off + i*slotWidth
}

func (s segment) next() int64 {
	return int64(binary.BigEndian.Uint32(s.data[s.capacity*slotWidth:]))
}

func (s segment) nextOffset() int64 {
	return s.off + s.capacity*slotWidth
}

// walk visits the segments of key's chain in order until visit reports
// done or the chain ends. It returns the last segment visited (without its
// data) and the number of segments read.
func (x *Index) walk(key string, visit func(seg segment) (done bool, err error)) (segment, int, error) {
	seg := segment{off: int64(BucketOf(key)) * headWidth, capacity: 1}

	for hops := 1; ; hops++ {
		n := seg.capacity*slotWidth + pointerWidth
		if seg.off < HeaderSize && seg.capacity > 1 || seg.off+n > x.size {
			return seg, hops, fmt.Errorf("%w: segment at %d of %d slots runs past end of file (%d bytes)",
				ErrCorruptIndex, seg.off, seg.capacity, x.size)
		}

		seg.data = pools.GetBytesSized(int(n))
		if _, err := x.file.ReadAt(seg.data, seg.off); err != nil {
			pools.PutBytes(seg.data)
			return seg, hops, fmt.Errorf("read segment at %d: %w", seg.off, err)
		}

		done, err := visit(seg)
		next := seg.next()
		pools.PutBytes(seg.data)
		seg.data = nil

		if err != nil || done || next == 0 {
			return seg, hops, err
		}
		if hops >= maxChainSegments {
			return seg, hops, fmt.Errorf("%w: bucket %d chain longer than %d segments",
				ErrCorruptIndex, BucketOf(key), maxChainSegments)
		}
		seg = segment{off: next, capacity: seg.capacity * 2}
	}
}

// Insert files nodeID under key. It takes the first empty slot in the
// key's chain, growing the chain by one segment when every slot is taken.
func (x *Index) Insert(nodeID int32, key string) (err error) {
	start := time.Now()
	defer func() { x.observe("insert", start, err) }()

	if x.closed {
		return ErrClosed
	}
	if nodeID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidNodeID, nodeID)
	}

	placed := false
	tail, hops, err := x.walk(key, func(seg segment) (bool, error) {
		for i := range seg.capacity {
			if seg.slot(i) == 0 {
				placed = true
				return true, x.writeUint32(seg.slotOffset(i), uint32(nodeID))
			}
		}
		return false, nil
	})
	x.metrics.ObserveChainSegments(hops)
	if err != nil || placed {
		return err
	}
	return x.grow(tail, nodeID, key)
}

// grow appends a segment of twice tail's capacity holding nodeID and links
// it from tail. The segment is written before the link so an interrupted
// grow leaves the chain intact.
func (x *Index) grow(tail segment, nodeID int32, key string) error {
	capacity := tail.capacity * 2
	n := capacity*slotWidth + pointerWidth
	off := x.size
	if off+n > maxFileSize {
		return fmt.Errorf("%w: segment of %d slots at %d", ErrIndexFull, capacity, off)
	}

	buf := pools.GetZeroed(int(n))
	defer pools.PutBytes(buf)
	binary.BigEndian.PutUint32(buf, uint32(nodeID))

	if _, err := x.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("write segment at %d: %w", off, err)
	}
	x.size += n
	if err := x.writeUint32(tail.nextOffset(), uint32(off)); err != nil {
		return err
	}

	x.metrics.RecordSegmentCreated()
	x.logger.Debug("bucket chain grown",
		logging.Bucket(BucketOf(key)), logging.Int64("capacity", capacity), logging.Int64("offset", off))
	return nil
}

// Find yields every node id filed under key's bucket. Ids inserted under
// other keys with the same bucket are included. Each call walks the chain
// afresh; a failure is yielded as the final element.
func (x *Index) Find(key string) iter.Seq2[int32, error] {
	return func(yield func(int32, error) bool) {
		if x.closed {
			yield(0, ErrClosed)
			return
		}
		start := time.Now()
		_, hops, err := x.walk(key, func(seg segment) (bool, error) {
			for i := range seg.capacity {
				if id := seg.slot(i); id != 0 && !yield(int32(id), nil) {
					return true, nil
				}
			}
			return false, nil
		})
		x.metrics.ObserveChainSegments(hops)
		x.observe("find", start, err)
		if err != nil {
			yield(0, err)
		}
	}
}

// Lookup collects Find into a slice.
func (x *Index) Lookup(key string) ([]int32, error) {
	var ids []int32
	for id, err := range x.Find(key) {
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete clears the slot holding nodeID in key's chain. It reports false
// when no slot matches.
func (x *Index) Delete(nodeID int32, key string) (deleted bool, err error) {
	start := time.Now()
	defer func() { x.observe("delete", start, err) }()

	if x.closed {
		return false, ErrClosed
	}
	if nodeID <= 0 {
		return false, nil
	}

	_, _, err = x.walk(key, func(seg segment) (bool, error) {
		for i := range seg.capacity {
			if seg.slot(i) == uint32(nodeID) {
				deleted = true
				return true, x.writeUint32(seg.slotOffset(i), 0)
			}
		}
		return false, nil
	})
	return deleted, err
}

// Update refiles nodeID from oldKey to newKey. Nothing is written when both
// keys share a bucket.
func (x *Index) Update(nodeID int32, oldKey, newKey string) error {
	if x.closed {
		return ErrClosed
	}
	if BucketOf(oldKey) == BucketOf(newKey) {
		return nil
	}
	if _, err := x.Delete(nodeID, oldKey); err != nil {
		return err
	}
	return x.Insert(nodeID, newKey)
}

func (x *Index) writeUint32(off int64, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	if _, err := x.file.WriteAt(b[:], off); err != nil {
		return fmt.Errorf("write at %d: %w", off, err)
	}
	return nil
}
