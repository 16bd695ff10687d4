// Package changelog mirrors every store mutation to a durable, ordered
// append log before the write is applied, so that any value visible to a
// reader has already been durably logged. The log is what a restarted or
// catching-up replica replays; this package does not implement replay
// itself, only the producing side.
package changelog

import (
	"context"
	"sync"
)

// Record is one logged mutation. A nil Value is a tombstone.
type Record struct {
	Key   []byte
	Value []byte
}

// Sink is an ordered, durable append log. Append must not return until the
// record is durable; the overlay treats a successful Append as permission
// to apply the write.
type Sink interface {
	// Append logs one mutation. key is the encoded window key; a nil
	// value is a tombstone.
	Append(ctx context.Context, key, value []byte) error

	// Close releases sink resources.
	Close() error
}

// MemorySink records appends in order. It backs tests and single-process
// setups that only need ordering, not durability.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	err     error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append records the mutation, or returns the injected error.
func (s *MemorySink) Append(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	r := Record{Key: append([]byte(nil), key...)}
	if value != nil {
		r.Value = append([]byte(nil), value...)
	}
	s.records = append(s.records, r)
	return nil
}

// Records returns the appended records in append order.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// SetError makes subsequent appends fail with err; nil clears it.
func (s *MemorySink) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Close is a no-op.
func (s *MemorySink) Close() error { return nil }

// Ensure MemorySink implements Sink.
var _ Sink = (*MemorySink)(nil)
