package substrate

import (
	"bytes"
	"sort"
	"sync"
)

// Memory is an in-memory Substrate implementation. It is used by tests and
// for ephemeral stores that do not need to survive a restart.
type Memory struct {
	mu       sync.RWMutex
	segments map[string]*memorySegment
	closed   bool
}

// NewMemory creates an empty in-memory substrate.
func NewMemory() *Memory {
	return &Memory{
		segments: make(map[string]*memorySegment),
	}
}

// CreateSegment creates a new empty segment.
func (m *Memory) CreateSegment(id string) (Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if _, exists := m.segments[id]; exists {
		return nil, ErrSegmentExists
	}
	seg := &memorySegment{
		id:      id,
		entries: make(map[string][]byte),
	}
	m.segments[id] = seg
	return seg, nil
}

// Segment returns an existing segment.
func (m *Memory) Segment(id string) (Segment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seg, ok := m.segments[id]
	if !ok {
		return nil, false
	}
	return seg, true
}

// Segments returns all live segment identifiers, sorted.
func (m *Memory) Segments() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.segments))
	for id := range m.segments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DropSegment removes a segment and its entries.
func (m *Memory) DropSegment(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	seg, ok := m.segments[id]
	if !ok {
		return ErrSegmentNotFound
	}
	seg.drop()
	delete(m.segments, id)
	return nil
}

// Close marks the substrate closed. Idempotent.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memorySegment struct {
	mu      sync.RWMutex
	id      string
	entries map[string][]byte
	dropped bool
}

func (s *memorySegment) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dropped {
		return nil, ErrClosed
	}
	v, ok := s.entries[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *memorySegment) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropped {
		return ErrClosed
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.entries[string(key)] = v
	return nil
}

func (s *memorySegment) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropped {
		return ErrClosed
	}
	delete(s.entries, string(key))
	return nil
}

// RangeScan snapshots the matching entries at call time and returns a
// slice-backed iterator. Sorting at scan time keeps writes O(1).
func (s *memorySegment) RangeScan(from, to []byte) Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dropped {
		return &sliceIterator{err: ErrClosed}
	}

	var keys []string
	for k := range s.entries {
		kb := []byte(k)
		if from != nil && bytes.Compare(kb, from) < 0 {
			continue
		}
		if to != nil && bytes.Compare(kb, to) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]kvPair, len(keys))
	for i, k := range keys {
		v := s.entries[k]
		value := make([]byte, len(v))
		copy(value, v)
		entries[i] = kvPair{key: []byte(k), value: value}
	}
	return &sliceIterator{entries: entries, pos: -1}
}

func (s *memorySegment) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = true
	s.entries = nil
}

type kvPair struct {
	key   []byte
	value []byte
}

type sliceIterator struct {
	entries []kvPair
	pos     int
	err     error
}

func (it *sliceIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.pos+1 >= len(it.entries) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Key() []byte {
	return it.entries[it.pos].key
}

func (it *sliceIterator) Value() []byte {
	return it.entries[it.pos].value
}

func (it *sliceIterator) Err() error {
	return it.err
}

func (it *sliceIterator) Close() error {
	it.entries = nil
	return nil
}

// Ensure Memory implements Substrate.
var _ Substrate = (*Memory)(nil)
