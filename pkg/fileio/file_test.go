package fileio

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "data.bin")

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, FileExists(path))
	size, err := f.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestExplicitOffsetIO(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "data.bin"))
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteAt([]byte("world"), 5)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "helloworld", string(buf))

	_, err = f.ReadAt(make([]byte, 4), 8)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = f.ReadAt(make([]byte, 4), 10)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTruncateGrowsWithZeros(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "data.bin"))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Truncate(16))
	buf := make([]byte, 16)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 16), buf)
}

func TestSecondOwnerIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")

	first, err := Open(path)
	require.NoError(t, err)

	_, err = Open(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked), "got %v", err)

	_, err = LockShared(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestSharedLocksCoexist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	f, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	a, err := LockShared(path)
	require.NoError(t, err)
	b, err := LockShared(path)
	require.NoError(t, err)

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, a.Release())
	require.NoError(t, b.Release())
}

func TestClosedFile(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "data.bin"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.Size()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.WriteAt([]byte{1}, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	_, err := FileSize(path)
	assert.Error(t, err)

	f, err := Open(path)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{1, 2, 3}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	size, err := FileSize(path)
	require.NoError(t, err)
	assert.EqualValues(t, 3, size)
}
