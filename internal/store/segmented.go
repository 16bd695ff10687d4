package store

import (
	"go.uber.org/zap"

	"github.com/dray-io/windowkv/internal/segment"
	"github.com/dray-io/windowkv/internal/substrate"
	"github.com/dray-io/windowkv/internal/winkey"
)

// Segmented is the core windowed store: the composition of a segment
// manager and the window key codec over an ordered byte-range substrate.
// It exclusively owns the substrate handle passed at construction and
// closes it on Close.
type Segmented struct {
	name             string
	sub              substrate.Substrate
	mgr              *segment.Manager
	retainDuplicates bool
	seq              uint32
	closed           bool
}

// NewSegmented opens a segmented windowed store named name over sub.
// retention and interval are milliseconds. When retainDuplicates is true,
// each put allocates a fresh sequence so values for the same (key, window)
// accumulate until retention expiry; otherwise puts upsert.
func NewSegmented(sub substrate.Substrate, name string, retention, interval int64, retainDuplicates bool, rec segment.Recorder, logger *zap.Logger) (*Segmented, error) {
	mgr, err := segment.NewManager(sub, name, retention, interval, rec, logger)
	if err != nil {
		return nil, err
	}
	return &Segmented{
		name:             name,
		sub:              sub,
		mgr:              mgr,
		retainDuplicates: retainDuplicates,
	}, nil
}

// Name returns the store name.
func (s *Segmented) Name() string { return s.name }

// Manager exposes the segment manager for inspection tooling.
func (s *Segmented) Manager() *segment.Manager { return s.mgr }

// Put writes value under (key, windowStart), resolving the owning segment
// and expiring stale ones as a side effect. Late writes are dropped
// silently per the retention contract.
func (s *Segmented) Put(key, value []byte, windowStart int64) error {
	if s.closed {
		return ErrClosed
	}
	if windowStart < 0 {
		return ErrNegativeWindowStart
	}

	seg, live, err := s.mgr.SegmentForWrite(windowStart)
	if err != nil {
		return err
	}
	if !live {
		return nil // late write, already counted
	}

	if s.retainDuplicates {
		if value == nil {
			// Duplicates have no single entry to remove; they are
			// reclaimed only by retention expiry.
			return nil
		}
		s.seq++
		return seg.Put(winkey.Encode(key, windowStart, s.seq), value)
	}

	encoded := winkey.Encode(key, windowStart, 0)
	if value == nil {
		return seg.Delete(encoded)
	}
	return seg.Put(encoded, value)
}

// Fetch returns the entries for key with window starts in [from, to].
func (s *Segmented) Fetch(key []byte, from, to int64) (Iterator, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if to < from {
		return Empty(), nil
	}
	segs := s.mgr.SegmentsOverlapping(from, to)
	if len(segs) == 0 {
		return Empty(), nil
	}
	return &segmentsIterator{
		segs: segs,
		lo:   winkey.RangeStart(key, from),
		hi:   winkey.RangeEnd(key, to),
	}, nil
}

// FetchAll returns entries across all keys with window starts in
// [from, to]. The scan covers each overlapping segment's full keyspace and
// filters by window start, since keys of all lengths interleave in the
// encoded order.
func (s *Segmented) FetchAll(from, to int64) (Iterator, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if to < from {
		return Empty(), nil
	}
	segs := s.mgr.SegmentsOverlapping(from, to)
	if len(segs) == 0 {
		return Empty(), nil
	}
	return &segmentsIterator{
		segs:       segs,
		timeFilter: true,
		from:       from,
		to:         to,
	}, nil
}

// Flush is a no-op: the segmented store buffers nothing of its own.
func (s *Segmented) Flush() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the substrate's segment handles. Idempotent.
func (s *Segmented) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sub.Close()
}

// segmentsIterator lazily walks a list of segments in bucket order,
// decoding window keys back into entries. With timeFilter set it scans
// each segment's full keyspace and keeps entries whose window start lies
// in [from, to]; otherwise it scans the contiguous [lo, hi) byte range.
type segmentsIterator struct {
	segs       []substrate.Segment
	lo, hi     []byte
	timeFilter bool
	from, to   int64

	idx   int
	cur   substrate.Iterator
	entry Entry
	err   error
}

func (it *segmentsIterator) Next() bool {
	for {
		if it.err != nil {
			return false
		}
		if it.cur == nil {
			if it.idx >= len(it.segs) {
				return false
			}
			it.cur = it.segs[it.idx].RangeScan(it.lo, it.hi)
			it.idx++
		}
		if !it.cur.Next() {
			if err := it.cur.Err(); err != nil {
				it.err = err
				return false
			}
			closeErr := it.cur.Close()
			it.cur = nil
			if closeErr != nil {
				it.err = closeErr
				return false
			}
			continue
		}

		key, ws, _, err := winkey.Decode(it.cur.Key())
		if err != nil {
			it.err = err
			return false
		}
		if it.timeFilter && (ws < it.from || ws > it.to) {
			continue
		}
		it.entry = Entry{
			Key:         append([]byte(nil), key...),
			WindowStart: ws,
			Value:       append([]byte(nil), it.cur.Value()...),
		}
		return true
	}
}

func (it *segmentsIterator) Entry() Entry { return it.entry }

func (it *segmentsIterator) Err() error { return it.err }

func (it *segmentsIterator) Close() error {
	if it.cur != nil {
		err := it.cur.Close()
		it.cur = nil
		it.segs = nil
		return err
	}
	it.segs = nil
	return nil
}

// Ensure Segmented implements Store.
var _ Store = (*Segmented)(nil)
