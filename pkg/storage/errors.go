package storage

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrClosed       = errors.New("storage is closed")
	ErrFillerRow    = errors.New("row has a zero timestamp and would read back as a filler")
	ErrDuplicateRow = errors.New("row already stored")
	ErrCorrupt      = errors.New("gap file is corrupt")

	// ErrFragmented means no filler was close enough to the insertion point.
	// Insert handles it by defragmenting once and retrying.
	ErrFragmented = errors.New("no filler within shuffle distance")

	// ErrInvariantViolation is fatal: the file no longer satisfies the
	// ordering or density invariants and must not be written to again.
	ErrInvariantViolation = errors.New("storage invariant violated")
)

// StorageError provides structured error information for gap file operations.
type StorageError struct {
	Op      string // Operation that failed (e.g., "insert", "defrag")
	Row     int64  // Row slot involved, valid when HasRow is set
	HasRow  bool
	Context string // Additional context
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	switch {
	case e.HasRow && e.Context != "":
		return fmt.Sprintf("%s row %d (%s): %v", e.Op, e.Row, e.Context, e.Cause)
	case e.HasRow:
		return fmt.Sprintf("%s row %d: %v", e.Op, e.Row, e.Cause)
	case e.Context != "":
		return fmt.Sprintf("%s (%s): %v", e.Op, e.Context, e.Cause)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
}

// Unwrap returns the underlying cause for error chain support.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for building StorageErrors.
type ErrorBuilder struct {
	err StorageError
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: StorageError{Op: op}}
}

// Row sets the row slot the error refers to.
func (b *ErrorBuilder) Row(index int64) *ErrorBuilder {
	b.err.Row = index
	b.err.HasRow = true
	return b
}

// Context sets additional context information.
func (b *ErrorBuilder) Context(format string, args ...any) *ErrorBuilder {
	b.err.Context = fmt.Sprintf(format, args...)
	return b
}

// Cause sets the underlying error cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Build returns the constructed StorageError.
func (b *ErrorBuilder) Build() *StorageError {
	return &b.err
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

// CorruptionError describes the first violation found by Verify.
type CorruptionError struct {
	Row    int64
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("gap file corrupt at row %d: %s", e.Row, e.Reason)
}

// Is lets errors.Is(err, ErrCorrupt) match any CorruptionError.
func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorrupt
}

// IsFatal reports whether err means the gap file must not be written again.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsCorrupt reports whether err came from a failed verification.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}

// IsDuplicate reports whether an insert was rejected as a duplicate.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateRow)
}

// IsClosed returns true if the error indicates the store is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
