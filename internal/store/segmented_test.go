package store

import (
	"errors"
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

// newTestStore uses the arithmetic from the retention contract:
// retention 600s across 3 segments gives a 300s segment interval.
func newTestStore(t *testing.T, retainDuplicates bool, rec *countingRecorder) *Segmented {
	t.Helper()
	if rec == nil {
		rec = &countingRecorder{}
	}
	s, err := NewSegmented(substrate.NewMemory(), "test", 600000, 300000, retainDuplicates, rec, nil)
	if err != nil {
		t.Fatalf("NewSegmented() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func collect(t *testing.T, s Store, key string, from, to int64) []Entry {
	t.Helper()
	it, err := s.Fetch([]byte(key), from, to)
	return drain(t, it, err)
}

func collectAll(t *testing.T, s Store, from, to int64) []Entry {
	t.Helper()
	it, err := s.FetchAll(from, to)
	return drain(t, it, err)
}

func drain(t *testing.T, it Iterator, err error) []Entry {
	t.Helper()
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}
	defer it.Close()
	var out []Entry
	for it.Next() {
		out = append(out, it.Entry())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error = %v", err)
	}
	return out
}

func TestPutFetchRoundTrip(t *testing.T) {
	s := newTestStore(t, false, nil)

	if err := s.Put([]byte("k"), []byte("v"), 1000); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got := collect(t, s, "k", 1000, 1001)
	if len(got) != 1 {
		t.Fatalf("fetch returned %d entries, want 1", len(got))
	}
	if got[0].WindowStart != 1000 || string(got[0].Value) != "v" {
		t.Errorf("entry = (%d, %q), want (1000, %q)", got[0].WindowStart, got[0].Value, "v")
	}
}

func TestFetchAbsentKeyEmpty(t *testing.T) {
	s := newTestStore(t, false, nil)
	s.Put([]byte("k"), []byte("v"), 1000)

	if got := collect(t, s, "other", 0, 2000); len(got) != 0 {
		t.Errorf("fetch(absent) returned %d entries", len(got))
	}
	if got := collect(t, s, "k", 2000, 3000); len(got) != 0 {
		t.Errorf("fetch outside window returned %d entries", len(got))
	}
	if got := collect(t, s, "k", 2000, 1000); len(got) != 0 {
		t.Errorf("inverted interval returned %d entries", len(got))
	}
}

func TestUpsertOverwrites(t *testing.T) {
	s := newTestStore(t, false, nil)

	s.Put([]byte("k"), []byte("v1"), 1000)
	s.Put([]byte("k"), []byte("v2"), 1000)

	got := collect(t, s, "k", 1000, 1000)
	if len(got) != 1 || string(got[0].Value) != "v2" {
		t.Fatalf("entries = %v, want single v2", got)
	}
}

func TestRetainDuplicates(t *testing.T) {
	s := newTestStore(t, true, nil)

	s.Put([]byte("k"), []byte("v1"), 1000)
	s.Put([]byte("k"), []byte("v2"), 1000)

	got := collect(t, s, "k", 1000, 1000)
	if len(got) != 2 {
		t.Fatalf("fetch returned %d entries, want 2", len(got))
	}
	if string(got[0].Value) != "v1" || string(got[1].Value) != "v2" {
		t.Errorf("values = %q, %q; want v1, v2 in put order", got[0].Value, got[1].Value)
	}
}

func TestTombstoneRemoves(t *testing.T) {
	s := newTestStore(t, false, nil)

	s.Put([]byte("k"), []byte("v"), 1000)
	if err := s.Put([]byte("k"), nil, 1000); err != nil {
		t.Fatalf("Put(nil) error = %v", err)
	}
	if got := collect(t, s, "k", 0, 2000); len(got) != 0 {
		t.Errorf("fetch after tombstone returned %d entries", len(got))
	}
}

func TestRetentionExpiry(t *testing.T) {
	rec := &countingRecorder{}
	s := newTestStore(t, false, rec)

	s.Put([]byte("k"), []byte("a"), 0)
	s.Put([]byte("k"), []byte("b"), 300000)
	s.Put([]byte("k"), []byte("c"), 650000)

	got := collect(t, s, "k", 0, 700000)
	if len(got) != 3 {
		t.Fatalf("fetch returned %d entries, want 3", len(got))
	}
	for i, want := range []struct {
		ws    int64
		value string
	}{{0, "a"}, {300000, "b"}, {650000, "c"}} {
		if got[i].WindowStart != want.ws || string(got[i].Value) != want.value {
			t.Errorf("entry %d = (%d, %q), want (%d, %q)",
				i, got[i].WindowStart, got[i].Value, want.ws, want.value)
		}
	}

	// Advance observed time to 900s: the [0, 300s) bucket expires.
	s.Put([]byte("other"), []byte("x"), 900000)

	got = collect(t, s, "k", 0, 700000)
	if len(got) != 2 {
		t.Fatalf("fetch after expiry returned %d entries, want 2", len(got))
	}
	if got[0].WindowStart != 300000 || got[1].WindowStart != 650000 {
		t.Errorf("windows = %d, %d; want 300000, 650000", got[0].WindowStart, got[1].WindowStart)
	}
	if rec.expired != 1 {
		t.Errorf("expired = %d, want 1", rec.expired)
	}

	// A put against the expired bucket is a late write: no error, counted.
	if err := s.Put([]byte("k"), []byte("late"), 0); err != nil {
		t.Fatalf("late Put() error = %v", err)
	}
	if rec.lateWrites != 1 {
		t.Errorf("lateWrites = %d, want 1", rec.lateWrites)
	}
	if got := collect(t, s, "k", 0, 100); len(got) != 0 {
		t.Errorf("late write became visible: %v", got)
	}
}

func TestFetchAllOrderedBySegmentThenKey(t *testing.T) {
	s := newTestStore(t, false, nil)

	s.Put([]byte("b"), []byte("b0"), 1000)
	s.Put([]byte("a"), []byte("a0"), 2000)
	s.Put([]byte("a"), []byte("a1"), 400000) // second segment

	got := collectAll(t, s, 0, 500000)
	if len(got) != 3 {
		t.Fatalf("fetchAll returned %d entries, want 3", len(got))
	}
	// First segment: keys ascending; then second segment.
	if string(got[0].Key) != "a" || got[0].WindowStart != 2000 {
		t.Errorf("entry 0 = (%q, %d)", got[0].Key, got[0].WindowStart)
	}
	if string(got[1].Key) != "b" || got[1].WindowStart != 1000 {
		t.Errorf("entry 1 = (%q, %d)", got[1].Key, got[1].WindowStart)
	}
	if string(got[2].Key) != "a" || got[2].WindowStart != 400000 {
		t.Errorf("entry 2 = (%q, %d)", got[2].Key, got[2].WindowStart)
	}
}

func TestFetchAllTimeFiltered(t *testing.T) {
	s := newTestStore(t, false, nil)

	s.Put([]byte("a"), []byte("1"), 1000)
	s.Put([]byte("a"), []byte("2"), 2000)
	s.Put([]byte("a"), []byte("3"), 3000)

	got := collectAll(t, s, 2000, 2000)
	if len(got) != 1 || got[0].WindowStart != 2000 {
		t.Fatalf("fetchAll(2000, 2000) = %v", got)
	}
}

func TestFetchRestartable(t *testing.T) {
	s := newTestStore(t, false, nil)
	s.Put([]byte("k"), []byte("v"), 1000)

	first := collect(t, s, "k", 0, 2000)
	second := collect(t, s, "k", 0, 2000)
	if len(first) != 1 || len(second) != 1 {
		t.Errorf("restarted fetch differs: %d vs %d entries", len(first), len(second))
	}
}

func TestNegativeWindowStart(t *testing.T) {
	s := newTestStore(t, false, nil)
	if err := s.Put([]byte("k"), []byte("v"), -1); !errors.Is(err, ErrNegativeWindowStart) {
		t.Errorf("Put(-1) error = %v, want ErrNegativeWindowStart", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := newTestStore(t, false, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := s.Put([]byte("k"), []byte("v"), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close error = %v, want ErrClosed", err)
	}
	if _, err := s.Fetch([]byte("k"), 0, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Fetch after Close error = %v, want ErrClosed", err)
	}
}

// closeErrSubstrate wraps a substrate so every range-scan iterator fails
// on Close.
type closeErrSubstrate struct {
	substrate.Substrate
	closeErr error
}

func (s *closeErrSubstrate) CreateSegment(id string) (substrate.Segment, error) {
	seg, err := s.Substrate.CreateSegment(id)
	if err != nil {
		return nil, err
	}
	return &closeErrSegment{Segment: seg, closeErr: s.closeErr}, nil
}

func (s *closeErrSubstrate) Segment(id string) (substrate.Segment, bool) {
	seg, ok := s.Substrate.Segment(id)
	if !ok {
		return nil, false
	}
	return &closeErrSegment{Segment: seg, closeErr: s.closeErr}, true
}

type closeErrSegment struct {
	substrate.Segment
	closeErr error
}

func (g *closeErrSegment) RangeScan(from, to []byte) substrate.Iterator {
	return &closeErrIterator{Iterator: g.Segment.RangeScan(from, to), closeErr: g.closeErr}
}

type closeErrIterator struct {
	substrate.Iterator
	closeErr error
}

func (it *closeErrIterator) Close() error {
	it.Iterator.Close()
	return it.closeErr
}

func TestFetchSurfacesSegmentCloseError(t *testing.T) {
	boom := errors.New("fd leak")
	sub := &closeErrSubstrate{Substrate: substrate.NewMemory(), closeErr: boom}
	s, err := NewSegmented(sub, "test", 600000, 300000, false, nil, nil)
	if err != nil {
		t.Fatalf("NewSegmented() error = %v", err)
	}
	defer s.Close()

	if err := s.Put([]byte("k"), []byte("v"), 1000); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	it, err := s.Fetch([]byte("k"), 0, 2000)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !it.Next() {
		t.Fatal("Next() = false before the entry")
	}
	// Exhausting the segment closes its scan; the failure must not be
	// swallowed mid-iteration.
	if it.Next() {
		t.Fatal("Next() = true past the last entry")
	}
	if err := it.Err(); !errors.Is(err, boom) {
		t.Errorf("Err() = %v, want the segment close error", err)
	}
}

func TestDuplicateSequencesSurviveAcrossKeys(t *testing.T) {
	s := newTestStore(t, true, nil)

	s.Put([]byte("a"), []byte("a1"), 1000)
	s.Put([]byte("b"), []byte("b1"), 1000)
	s.Put([]byte("a"), []byte("a2"), 1000)

	got := collect(t, s, "a", 1000, 1000)
	if len(got) != 2 {
		t.Fatalf("fetch(a) returned %d entries, want 2", len(got))
	}
	got = collect(t, s, "b", 1000, 1000)
	if len(got) != 1 {
		t.Fatalf("fetch(b) returned %d entries, want 1", len(got))
	}
}
