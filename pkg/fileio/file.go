// Package fileio provides the single-owner file handle used by every
// on-disk structure in timegraphdb.
//
// A File is opened with an advisory lock so that two owners can never
// mutate the same backing file. All access goes through explicit offsets;
// there is no shared seek position.
package fileio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	dirPermissions  = 0755
	filePermissions = 0644
)

var (
	// ErrLocked is returned when another handle already owns the file.
	ErrLocked = errors.New("file is locked by another owner")
	// ErrClosed is returned by operations on a closed File.
	ErrClosed = errors.New("file is closed")
)

// File is an exclusively owned read/write file addressed by offset.
type File struct {
	f    *os.File
	path string
}

// Open opens or creates path for read/write and takes an exclusive,
// non-blocking lock on it. Missing parent directories are created.
func Open(path string) (*File, error) {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	if err := lockFile(f, true); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &File{f: f, path: path}, nil
}

// Path returns the path the file was opened with.
func (f *File) Path() string {
	return f.path
}

// Size returns the current length of the file in bytes.
func (f *File) Size() (int64, error) {
	if f.f == nil {
		return 0, ErrClosed
	}
	info, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReadAt fills p from offset off. A short read at end of file is reported
// as io.ErrUnexpectedEOF.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.f == nil {
		return 0, ErrClosed
	}
	n, err := f.f.ReadAt(p, off)
	if err == io.EOF && n < len(p) {
		if n == 0 && len(p) > 0 {
			return n, io.EOF
		}
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

// WriteAt writes p at offset off, extending the file when needed.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if f.f == nil {
		return 0, ErrClosed
	}
	return f.f.WriteAt(p, off)
}

// Truncate changes the file length. Growing pads with zero bytes.
func (f *File) Truncate(size int64) error {
	if f.f == nil {
		return ErrClosed
	}
	return f.f.Truncate(size)
}

// Sync commits the file contents to stable storage.
func (f *File) Sync() error {
	if f.f == nil {
		return ErrClosed
	}
	return f.f.Sync()
}

// Close releases the lock and the handle. Closing twice is a no-op.
func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	unlockErr := unlockFile(f.f)
	closeErr := f.f.Close()
	f.f = nil
	if closeErr != nil {
		return closeErr
	}
	return unlockErr
}

// SharedLock holds a read lock on a path without keeping it open for
// writing. It is used by read-only inspectors.
type SharedLock struct {
	f *os.File
}

// LockShared takes a non-blocking shared lock on an existing file. It
// fails with ErrLocked while any File owns the path.
func LockShared(path string) (*SharedLock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f, false); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &SharedLock{f: f}, nil
}

// Release drops the shared lock.
func (l *SharedLock) Release() error {
	if l.f == nil {
		return nil
	}
	unlockErr := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if closeErr != nil {
		return closeErr
	}
	return unlockErr
}
