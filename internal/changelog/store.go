package changelog

import (
	"context"
	"fmt"

	"github.com/dray-io/windowkv/internal/store"
	"github.com/dray-io/windowkv/internal/winkey"
)

// Logging wraps a windowed store and appends every mutation to a Sink
// before delegating it, preserving write-ahead ordering. Fetches pass
// through untouched; the overlay only intercepts mutation.
type Logging struct {
	inner            store.Store
	sink             Sink
	retainDuplicates bool
	seq              uint32
	ctx              context.Context
}

// NewLogging wraps inner with change logging. ctx bounds sink appends for
// the store's lifetime; it is typically the owning shard's lifecycle
// context. When retainDuplicates is true each put is logged under a fresh
// sequence, one log entry per put, never a coalesced upsert.
func NewLogging(ctx context.Context, inner store.Store, sink Sink, retainDuplicates bool) *Logging {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Logging{
		inner:            inner,
		sink:             sink,
		retainDuplicates: retainDuplicates,
		ctx:              ctx,
	}
}

// Put logs the mutation and then applies it to the wrapped store. A nil
// value is logged as a tombstone.
func (s *Logging) Put(key, value []byte, windowStart int64) error {
	if windowStart < 0 {
		return store.ErrNegativeWindowStart
	}

	var seq uint32
	if s.retainDuplicates {
		if value == nil {
			// Matches the wrapped store: tombstones are ignored when
			// duplicates are retained.
			return nil
		}
		s.seq++
		seq = s.seq
	}

	logKey := winkey.Encode(key, windowStart, seq)
	if err := s.sink.Append(s.ctx, logKey, value); err != nil {
		return fmt.Errorf("changelog: append before apply: %w", err)
	}
	return s.inner.Put(key, value, windowStart)
}

// Fetch passes through to the wrapped store.
func (s *Logging) Fetch(key []byte, from, to int64) (store.Iterator, error) {
	return s.inner.Fetch(key, from, to)
}

// FetchAll passes through to the wrapped store.
func (s *Logging) FetchAll(from, to int64) (store.Iterator, error) {
	return s.inner.FetchAll(from, to)
}

// Flush passes through to the wrapped store.
func (s *Logging) Flush() error {
	return s.inner.Flush()
}

// Close closes the wrapped store. The sink is owned by the caller that
// constructed it and is closed separately.
func (s *Logging) Close() error {
	return s.inner.Close()
}

// Ensure Logging implements Store.
var _ store.Store = (*Logging)(nil)
