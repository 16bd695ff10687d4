// Package substrate defines the ordered byte-range storage interface the
// windowed store is built on.
//
// A Substrate owns a set of named segments. Each segment is an independent
// ordered key-value container supporting point reads, writes, deletes, and
// ascending range scans over a half-open byte range. The windowed store
// never assumes anything about the persistence medium beyond these ordered
// byte-range semantics; implementations include an in-memory store (tests,
// ephemeral state) and a LevelDB-backed store (one database per segment).
package substrate

import (
	"errors"
	"fmt"
)

// Common errors returned by Substrate implementations.
var (
	// ErrNotFound is returned by Segment.Get when the key does not exist.
	ErrNotFound = errors.New("substrate: key not found")

	// ErrSegmentNotFound is returned when the named segment does not exist.
	ErrSegmentNotFound = errors.New("substrate: segment not found")

	// ErrSegmentExists is returned by CreateSegment when the segment
	// already exists.
	ErrSegmentExists = errors.New("substrate: segment already exists")

	// ErrClosed is returned when operations are attempted on a closed
	// substrate or segment.
	ErrClosed = errors.New("substrate: closed")
)

// StorageError wraps an I/O failure from the underlying medium with the
// operation and segment for context. Callers should treat any StorageError
// as storage-unavailable; no retry is performed at this layer.
type StorageError struct {
	Op      string // Operation that failed (e.g., "Put", "RangeScan")
	Segment string // Segment identifier
	Err     error  // Underlying error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("substrate: %s %q: %v", e.Op, e.Segment, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Iterator walks key-value pairs in ascending lexicographic key order.
//
// Example usage:
//
//	it := seg.RangeScan(from, to)
//	defer it.Close()
//	for it.Next() {
//	    process(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
type Iterator interface {
	// Next advances to the next entry. It returns false when the
	// iteration is exhausted or an error occurred.
	Next() bool

	// Key returns the current key. Valid only after a true Next.
	// The returned slice must not be retained across Next calls.
	Key() []byte

	// Value returns the current value. Valid only after a true Next.
	Value() []byte

	// Err returns the first error encountered during iteration, if any.
	Err() error

	// Close releases resources held by the iterator.
	Close() error
}

// Segment is an ordered byte-range container. Segments are created and
// dropped only through their owning Substrate.
type Segment interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// Put stores value under key, overwriting any existing value.
	Put(key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// RangeScan returns an iterator over [from, to) in ascending key
	// order. A nil from means the start of the keyspace; a nil to means
	// the end.
	RangeScan(from, to []byte) Iterator
}

// Substrate owns a set of named ordered segments.
type Substrate interface {
	// CreateSegment creates and returns a new empty segment.
	// Returns ErrSegmentExists if the identifier is already in use.
	CreateSegment(id string) (Segment, error)

	// Segment returns an existing segment, or false if it does not exist.
	Segment(id string) (Segment, bool)

	// Segments returns the identifiers of all live segments, sorted.
	Segments() []string

	// DropSegment removes a segment and reclaims its storage.
	// Dropping an absent segment returns ErrSegmentNotFound.
	DropSegment(id string) error

	// Close releases all segment handles. Idempotent.
	Close() error
}
