package storage

import (
	"github.com/dd0wney/timegraphdb/pkg/fileio"
	"github.com/dd0wney/timegraphdb/pkg/logging"
	"github.com/dd0wney/timegraphdb/pkg/metrics"
	"github.com/dd0wney/timegraphdb/pkg/record"
)

const (
	// RowWidth is the size of one slot in the gap file.
	RowWidth = record.Width

	// DefaultFillFactor allows one filler per ten populated rows.
	DefaultFillFactor = 10

	// DefaultMaxShuffleDistance bounds how far an insert may slide rows
	// before the store defragments instead.
	DefaultMaxShuffleDistance = 225

	probeChunkRows = 16   // first read size for a filler-skipping probe
	scanChunkRows  = 4096 // read/write batch for scans and sweeps
)

// Options configures a Store. Zero values select the defaults.
type Options struct {
	FillFactor         int
	MaxShuffleDistance int
	Logger             logging.Logger
	Metrics            *metrics.Registry
}

func (o Options) withDefaults() Options {
	if o.FillFactor <= 0 {
		o.FillFactor = DefaultFillFactor
	}
	if o.MaxShuffleDistance <= 0 {
		o.MaxShuffleDistance = DefaultMaxShuffleDistance
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// Store is a sorted gap file: fixed-width rows kept in order on disk with
// filler rows spread through the file to absorb inserts.
//
// A Store is not safe for concurrent use. It owns its file exclusively for
// as long as it is open.
type Store struct {
	file       *fileio.File
	path       string
	fillFactor int64
	maxShuffle int64

	// rows is the slot count, derived from the file length at open and
	// maintained by this Store afterwards.
	rows int64

	logger  logging.Logger
	metrics *metrics.Registry
	closed  bool
}

// Stats summarizes the gap file.
type Stats struct {
	Rows       int64 // slots, fillers included
	Fillers    int64
	Populated  int64
	FillFactor int
}

// IdealFillers is the filler count a defrag would leave behind.
func (s Stats) IdealFillers() int64 {
	if s.FillFactor <= 0 {
		return 0
	}
	return s.Populated / int64(s.FillFactor)
}
