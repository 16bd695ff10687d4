package store

import (
	"time"
)

// MetricsRecorder is the interface for recording store operation metrics.
// This keeps the store package decoupled from the metrics package.
type MetricsRecorder interface {
	RecordPut(durationSeconds float64, success bool)
	RecordFetch(durationSeconds float64, success bool)
	RecordFetchAll(durationSeconds float64, success bool)
	RecordFlush(durationSeconds float64, success bool)
}

// Instrumented wraps a Store and records metrics for each operation. It is
// the outermost layer of the composed store, so it observes the externally
// visible behavior (including cache hits) rather than raw segment I/O.
type Instrumented struct {
	store   Store
	metrics MetricsRecorder
}

// NewInstrumented creates an instrumented wrapper around a Store.
// If metrics is nil, no metrics are recorded and operations pass through
// directly.
func NewInstrumented(store Store, metrics MetricsRecorder) *Instrumented {
	return &Instrumented{
		store:   store,
		metrics: metrics,
	}
}

// Put writes a windowed value.
func (s *Instrumented) Put(key, value []byte, windowStart int64) error {
	start := time.Now()
	err := s.store.Put(key, value, windowStart)
	if s.metrics != nil {
		s.metrics.RecordPut(time.Since(start).Seconds(), err == nil)
	}
	return err
}

// Fetch returns entries for key in [from, to].
func (s *Instrumented) Fetch(key []byte, from, to int64) (Iterator, error) {
	start := time.Now()
	it, err := s.store.Fetch(key, from, to)
	if s.metrics != nil {
		s.metrics.RecordFetch(time.Since(start).Seconds(), err == nil)
	}
	return it, err
}

// FetchAll returns entries across all keys in [from, to].
func (s *Instrumented) FetchAll(from, to int64) (Iterator, error) {
	start := time.Now()
	it, err := s.store.FetchAll(from, to)
	if s.metrics != nil {
		s.metrics.RecordFetchAll(time.Since(start).Seconds(), err == nil)
	}
	return it, err
}

// Flush forces buffered writes down the chain.
func (s *Instrumented) Flush() error {
	start := time.Now()
	err := s.store.Flush()
	if s.metrics != nil {
		s.metrics.RecordFlush(time.Since(start).Seconds(), err == nil)
	}
	return err
}

// Close releases resources held by the wrapped store.
func (s *Instrumented) Close() error {
	return s.store.Close()
}

// Ensure Instrumented implements Store.
var _ Store = (*Instrumented)(nil)
