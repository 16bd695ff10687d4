// Package store defines the windowed byte store contract and its core
// implementation over time-bucketed segments.
//
// Every layer of the composed store (segmented core, change-log overlay,
// write-behind cache, instrumentation) implements the same Store interface
// and wraps the next layer down. The chain is fixed at construction and
// never changes for the store's lifetime.
package store

import (
	"errors"
)

// Common errors returned by Store implementations.
var (
	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("store: closed")

	// ErrNegativeWindowStart is returned by Put for a negative window start.
	// Window starts are milliseconds since the Unix epoch.
	ErrNegativeWindowStart = errors.New("store: negative window start")
)

// Entry is one windowed value.
type Entry struct {
	// Key is the logical key, post-serialization.
	Key []byte
	// WindowStart is the start of the owning window in epoch milliseconds.
	WindowStart int64
	// Value is the stored value bytes.
	Value []byte
}

// Iterator walks entries ascending by (segment, key, window start,
// sequence). Iterators are finite and restartable: re-invoking the fetch
// that produced one yields a fresh iteration from scratch.
type Iterator interface {
	// Next advances to the next entry, returning false at the end or on
	// error.
	Next() bool

	// Entry returns the current entry. Valid only after a true Next.
	Entry() Entry

	// Err returns the first error encountered, if any.
	Err() error

	// Close releases underlying scan resources.
	Close() error
}

// Store is a persistent windowed key-value store. All methods are blocking
// calls on the single owning goroutine; no internal concurrent-write
// coordination is provided or required.
type Store interface {
	// Put associates value with (key, windowStart). A nil value removes
	// the entry when duplicates are not retained. Writes whose window has
	// fallen out of retention are silently dropped.
	Put(key, value []byte, windowStart int64) error

	// Fetch returns the entries for key with window starts in [from, to],
	// ascending by time. Absent keys and out-of-retention intervals yield
	// an empty iteration, never an error.
	Fetch(key []byte, from, to int64) (Iterator, error)

	// FetchAll returns entries for all keys with window starts in
	// [from, to], ordered first by segment (hence time), then by key.
	FetchAll(from, to int64) (Iterator, error)

	// Flush forces any buffered writes down to the underlying layer.
	Flush() error

	// Close releases resources. Idempotent.
	Close() error
}

// emptyIterator yields nothing. Used where a fetch interval misses every
// live segment.
type emptyIterator struct{}

func (emptyIterator) Next() bool   { return false }
func (emptyIterator) Entry() Entry { return Entry{} }
func (emptyIterator) Err() error   { return nil }
func (emptyIterator) Close() error { return nil }

// Empty returns an iterator over nothing.
func Empty() Iterator { return emptyIterator{} }
