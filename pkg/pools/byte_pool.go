package pools

import (
	"sync"
)

// Buffer size classes.
const (
	SmallSize  = 512       // a handful of rows or a short hash segment
	MediumSize = 8 << 10   // one shuffle window
	LargeSize  = 128 << 10 // one scan chunk
	MaxPool    = LargeSize // larger buffers are allocated directly
)

// BytePool hands out byte slices from three size classes.
type BytePool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
}

func newClass(size int) sync.Pool {
	return sync.Pool{
		New: func() any {
			b := make([]byte, 0, size)
			return &b
		},
	}
}

// NewBytePool creates an empty pool.
func NewBytePool() *BytePool {
	return &BytePool{
		small:  newClass(SmallSize),
		medium: newClass(MediumSize),
		large:  newClass(LargeSize),
	}
}

func (p *BytePool) class(size int) *sync.Pool {
	switch {
	case size <= SmallSize:
		return &p.small
	case size <= MediumSize:
		return &p.medium
	case size <= LargeSize:
		return &p.large
	default:
		return nil
	}
}

// Get returns a zero-length slice with capacity of at least size.
func (p *BytePool) Get(size int) []byte {
	pool := p.class(size)
	if pool == nil {
		return make([]byte, 0, size)
	}
	bp, ok := pool.Get().(*[]byte)
	if !ok || cap(*bp) < size {
		return make([]byte, 0, size)
	}
	return (*bp)[:0]
}

// GetSized returns a slice of exactly size bytes. The contents are not
// zeroed.
func (p *BytePool) GetSized(size int) []byte {
	return p.Get(size)[:size]
}

// GetZeroed returns a slice of exactly size zero bytes.
func (p *BytePool) GetZeroed(size int) []byte {
	b := p.GetSized(size)
	clear(b)
	return b
}

// Put returns b to the pool. Oversized slices are dropped.
func (p *BytePool) Put(b []byte) {
	c := cap(b)
	if c > MaxPool || c == 0 {
		return
	}
	// File a buffer under the largest class it can fully serve.
	var pool *sync.Pool
	switch {
	case c >= LargeSize:
		pool = &p.large
	case c >= MediumSize:
		pool = &p.medium
	case c >= SmallSize:
		pool = &p.small
	default:
		return
	}
	b = b[:0]
	pool.Put(&b)
}

var defaultBytePool = NewBytePool()

func GetBytes(size int) []byte      { return defaultBytePool.Get(size) }
func GetBytesSized(size int) []byte { return defaultBytePool.GetSized(size) }
func GetZeroed(size int) []byte     { return defaultBytePool.GetZeroed(size) }
func PutBytes(b []byte)             { defaultBytePool.Put(b) }
