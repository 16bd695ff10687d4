// Package segment maps window timestamps onto time-bucketed substrate
// segments and owns their lifecycle: lazy creation on first write, inline
// expiry driven by the observed-time high-water mark, and ordered lookup
// for range scans.
//
// Expiry is amortized onto the write path. Every write that advances the
// high-water mark first retires segments whose bucket has fallen out of the
// retention horizon, so a late write against a just-expired bucket is
// consistently rejected rather than racily accepted. No background sweep
// thread exists.
package segment

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dray-io/windowkv/internal/substrate"
)

// bucketWidth is the number of digits used for zero-padded bucket starts in
// segment identifiers, preserving lexicographic ordering for numeric
// comparisons. Width 20 is beyond max int64.
const bucketWidth = 20

// noObserved marks a manager that has not seen any write yet.
const noObserved = math.MinInt64

// ErrInvalidSegmentID is returned when a substrate segment identifier
// cannot be parsed back into a bucket start.
var ErrInvalidSegmentID = errors.New("segment: invalid segment id")

// Recorder receives segment lifecycle events. Implementations must be
// cheap; calls happen inline on the write path. A nil Recorder disables
// recording.
type Recorder interface {
	RecordSegmentCreated()
	RecordSegmentExpired()
	RecordLateWrite()
}

// Manager owns the time-bucketed segments of one store.
type Manager struct {
	name      string
	sub       substrate.Substrate
	retention int64 // milliseconds
	interval  int64 // milliseconds
	observed  int64 // high-water mark of window starts seen by writes

	buckets  []int64 // sorted live bucket starts
	segments map[int64]substrate.Segment

	rec    Recorder
	logger *zap.Logger
}

// NewManager creates a manager over sub. Segments already present in the
// substrate under this store's name are adopted, which is how a reopened
// store recovers its retained windows. retention and interval are in
// milliseconds; interval must divide time into the buckets the adopted
// segments were written with.
func NewManager(sub substrate.Substrate, name string, retention, interval int64, rec Recorder, logger *zap.Logger) (*Manager, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("segment: non-positive retention %d", retention)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("segment: non-positive interval %d", interval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		name:      name,
		sub:       sub,
		retention: retention,
		interval:  interval,
		observed:  noObserved,
		segments:  make(map[int64]substrate.Segment),
		rec:       rec,
		logger:    logger,
	}

	for _, id := range sub.Segments() {
		start, err := ParseID(name, id)
		if err != nil {
			continue // not one of ours
		}
		seg, ok := sub.Segment(id)
		if !ok {
			continue
		}
		m.segments[start] = seg
		m.buckets = append(m.buckets, start)
	}
	sort.Slice(m.buckets, func(i, j int) bool { return m.buckets[i] < m.buckets[j] })

	return m, nil
}

// ID builds the substrate identifier for the segment whose bucket begins at
// start. The bucket start is zero-padded so identifiers sort numerically.
func ID(name string, start int64) string {
	return fmt.Sprintf("%s.%0*d", name, bucketWidth, start)
}

// ParseID recovers the bucket start from a substrate segment identifier.
func ParseID(name, id string) (int64, error) {
	prefix := name + "."
	if !strings.HasPrefix(id, prefix) {
		return 0, ErrInvalidSegmentID
	}
	start, err := strconv.ParseInt(id[len(prefix):], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSegmentID, err)
	}
	return start, nil
}

// Interval returns the segment interval in milliseconds.
func (m *Manager) Interval() int64 { return m.interval }

// Observed returns the high-water mark of window starts seen by writes, or
// math.MinInt64 if no write has been observed.
func (m *Manager) Observed() int64 { return m.observed }

// LiveBuckets returns the bucket starts of all live segments, ascending.
func (m *Manager) LiveBuckets() []int64 {
	out := make([]int64, len(m.buckets))
	copy(out, m.buckets)
	return out
}

func (m *Manager) bucketStart(ts int64) int64 {
	return (ts / m.interval) * m.interval
}

// SegmentForWrite advances the high-water mark to ts, expires any segments
// that fell out of retention as a result, and returns the live segment
// owning ts, creating it if its bucket has not been seen.
//
// The second return is false when the bucket for ts is already expired: the
// write is late and must be dropped by the caller. Late writes are recorded
// on the Recorder, never surfaced as errors.
func (m *Manager) SegmentForWrite(ts int64) (substrate.Segment, bool, error) {
	if ts > m.observed {
		m.observed = ts
		if err := m.ExpireOlderThan(m.observed - m.retention); err != nil {
			return nil, false, err
		}
	}

	start := m.bucketStart(ts)
	if m.expired(start) {
		if m.rec != nil {
			m.rec.RecordLateWrite()
		}
		m.logger.Warn("dropping late write for expired segment",
			zap.String("store", m.name),
			zap.Int64("windowStart", ts),
			zap.Int64("bucketStart", start),
			zap.Int64("observed", m.observed),
		)
		return nil, false, nil
	}

	if seg, ok := m.segments[start]; ok {
		return seg, true, nil
	}

	seg, err := m.sub.CreateSegment(ID(m.name, start))
	if err != nil {
		return nil, false, err
	}
	m.segments[start] = seg
	idx := sort.Search(len(m.buckets), func(i int) bool { return m.buckets[i] >= start })
	m.buckets = append(m.buckets, 0)
	copy(m.buckets[idx+1:], m.buckets[idx:])
	m.buckets[idx] = start
	if m.rec != nil {
		m.rec.RecordSegmentCreated()
	}
	m.logger.Debug("created segment",
		zap.String("store", m.name),
		zap.Int64("bucketStart", start),
	)
	return seg, true, nil
}

// ExpireOlderThan retires every segment whose bucket upper bound is at or
// below threshold, releasing its substrate storage.
func (m *Manager) ExpireOlderThan(threshold int64) error {
	for len(m.buckets) > 0 && m.buckets[0]+m.interval <= threshold {
		start := m.buckets[0]
		if err := m.sub.DropSegment(ID(m.name, start)); err != nil {
			return err
		}
		delete(m.segments, start)
		m.buckets = m.buckets[1:]
		if m.rec != nil {
			m.rec.RecordSegmentExpired()
		}
		m.logger.Debug("expired segment",
			zap.String("store", m.name),
			zap.Int64("bucketStart", start),
			zap.Int64("threshold", threshold),
		)
	}
	return nil
}

// expired reports whether the bucket beginning at start has fallen out of
// the retention horizon. A bucket is expired once its upper bound is at or
// below observed - retention; before any write is observed nothing is
// expired.
func (m *Manager) expired(start int64) bool {
	if m.observed == noObserved {
		return false
	}
	return start+m.interval <= m.observed-m.retention
}

// SegmentsOverlapping returns the live segments whose bucket intersects
// [from, to], ascending by bucket start.
func (m *Manager) SegmentsOverlapping(from, to int64) []substrate.Segment {
	var out []substrate.Segment
	for _, start := range m.buckets {
		if start > to {
			break
		}
		if start+m.interval <= from {
			continue
		}
		out = append(out, m.segments[start])
	}
	return out
}
