package segment

import (
	"testing"

	"github.com/dray-io/windowkv/internal/substrate"
)

type countingRecorder struct {
	created    int
	expired    int
	lateWrites int
}

func (r *countingRecorder) RecordSegmentCreated() { r.created++ }
func (r *countingRecorder) RecordSegmentExpired() { r.expired++ }
func (r *countingRecorder) RecordLateWrite()      { r.lateWrites++ }

func newTestManager(t *testing.T, retention, interval int64, rec Recorder) (*Manager, *substrate.Memory) {
	t.Helper()
	sub := substrate.NewMemory()
	t.Cleanup(func() { sub.Close() })
	m, err := NewManager(sub, "test", retention, interval, rec, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m, sub
}

func TestNewManagerValidation(t *testing.T) {
	sub := substrate.NewMemory()
	defer sub.Close()

	if _, err := NewManager(sub, "s", 0, 10, nil, nil); err == nil {
		t.Error("NewManager(retention=0) expected error")
	}
	if _, err := NewManager(sub, "s", 10, 0, nil, nil); err == nil {
		t.Error("NewManager(interval=0) expected error")
	}
}

func TestIDRoundTrip(t *testing.T) {
	id := ID("orders", 300000)
	if id != "orders.00000000000000300000" {
		t.Errorf("ID() = %q", id)
	}
	start, err := ParseID("orders", id)
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}
	if start != 300000 {
		t.Errorf("ParseID() = %d, want 300000", start)
	}
	if _, err := ParseID("other", id); err == nil {
		t.Error("ParseID() with wrong name expected error")
	}
}

func TestSegmentForWriteCreatesLazily(t *testing.T) {
	rec := &countingRecorder{}
	m, _ := newTestManager(t, 600000, 300000, rec)

	seg, live, err := m.SegmentForWrite(0)
	if err != nil {
		t.Fatalf("SegmentForWrite() error = %v", err)
	}
	if !live || seg == nil {
		t.Fatal("SegmentForWrite() not live")
	}
	if rec.created != 1 {
		t.Errorf("created = %d, want 1", rec.created)
	}

	// Same bucket: no new segment.
	seg2, live, err := m.SegmentForWrite(299999)
	if err != nil || !live {
		t.Fatalf("SegmentForWrite() = %v, live=%v", err, live)
	}
	if seg2 != seg {
		t.Error("same bucket returned a different segment")
	}
	if rec.created != 1 {
		t.Errorf("created = %d, want 1", rec.created)
	}

	// Next bucket: new segment.
	if _, live, err := m.SegmentForWrite(300000); err != nil || !live {
		t.Fatalf("SegmentForWrite() = %v, live=%v", err, live)
	}
	if rec.created != 2 {
		t.Errorf("created = %d, want 2", rec.created)
	}
}

func TestExpiryAdvancesWithObservedTime(t *testing.T) {
	rec := &countingRecorder{}
	m, sub := newTestManager(t, 600000, 300000, rec)

	for _, ts := range []int64{0, 300000, 650000} {
		if _, live, err := m.SegmentForWrite(ts); err != nil || !live {
			t.Fatalf("SegmentForWrite(%d) = %v, live=%v", ts, err, live)
		}
	}
	// observed=650000, threshold=50000: everything still live.
	if got := len(m.LiveBuckets()); got != 3 {
		t.Fatalf("live buckets = %d, want 3", got)
	}

	// Advance to 900000: bucket [0, 300000) has upper bound <= 300000 and
	// must be retired before the write is applied.
	if _, live, err := m.SegmentForWrite(900000); err != nil || !live {
		t.Fatalf("SegmentForWrite(900000) = %v, live=%v", err, live)
	}
	buckets := m.LiveBuckets()
	if len(buckets) != 3 || buckets[0] != 300000 {
		t.Fatalf("live buckets = %v", buckets)
	}
	if rec.expired != 1 {
		t.Errorf("expired = %d, want 1", rec.expired)
	}
	if _, ok := sub.Segment(ID("test", 0)); ok {
		t.Error("substrate still holds the expired segment")
	}
}

func TestLateWriteRejected(t *testing.T) {
	rec := &countingRecorder{}
	m, _ := newTestManager(t, 600000, 300000, rec)

	if _, live, err := m.SegmentForWrite(900000); err != nil || !live {
		t.Fatal("initial write failed")
	}

	// Bucket for ts=0 is long expired; the write is dropped, not an error.
	seg, live, err := m.SegmentForWrite(0)
	if err != nil {
		t.Fatalf("SegmentForWrite(late) error = %v", err)
	}
	if live || seg != nil {
		t.Error("late write was accepted")
	}
	if rec.lateWrites != 1 {
		t.Errorf("lateWrites = %d, want 1", rec.lateWrites)
	}

	// A late write must not advance the high-water mark or expire anything.
	if m.Observed() != 900000 {
		t.Errorf("Observed() = %d, want 900000", m.Observed())
	}
}

func TestSegmentsOverlapping(t *testing.T) {
	m, _ := newTestManager(t, 600000, 300000, nil)

	for _, ts := range []int64{0, 300000, 600000} {
		if _, _, err := m.SegmentForWrite(ts); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		from int64
		to   int64
		want int
	}{
		{"all", 0, 900000, 3},
		{"first bucket only", 0, 299999, 1},
		{"middle", 300000, 599999, 1},
		{"straddle", 299999, 300000, 2},
		{"beyond", 900000, 999999, 0},
		{"single point", 600000, 600000, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.SegmentsOverlapping(tt.from, tt.to)
			if len(got) != tt.want {
				t.Errorf("SegmentsOverlapping(%d, %d) = %d segments, want %d",
					tt.from, tt.to, len(got), tt.want)
			}
		})
	}
}

func TestNewManagerAdoptsExistingSegments(t *testing.T) {
	sub := substrate.NewMemory()
	defer sub.Close()

	m1, err := NewManager(sub, "s", 600000, 300000, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := m1.SegmentForWrite(0); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m1.SegmentForWrite(300000); err != nil {
		t.Fatal(err)
	}

	m2, err := NewManager(sub, "s", 600000, 300000, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	buckets := m2.LiveBuckets()
	if len(buckets) != 2 || buckets[0] != 0 || buckets[1] != 300000 {
		t.Fatalf("adopted buckets = %v", buckets)
	}
}
