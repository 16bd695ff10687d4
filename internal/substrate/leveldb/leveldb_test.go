package leveldb

import (
	"errors"
	"testing"

	"github.com/dray-io/windowkv/internal/substrate"
)

func TestInMemoryRoundTrip(t *testing.T) {
	s := OpenInMemory()
	defer s.Close()

	seg, err := s.CreateSegment("store.0")
	if err != nil {
		t.Fatalf("CreateSegment() error = %v", err)
	}

	if err := seg.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := seg.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get() = %q, want %q", got, "v")
	}

	if _, err := seg.Get([]byte("absent")); !errors.Is(err, substrate.ErrNotFound) {
		t.Errorf("Get(absent) error = %v, want ErrNotFound", err)
	}
}

func TestRangeScanOrdering(t *testing.T) {
	s := OpenInMemory()
	defer s.Close()

	seg, err := s.CreateSegment("s")
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"c", "a", "d", "b"} {
		if err := seg.Put([]byte(k), []byte(k)); err != nil {
			t.Fatal(err)
		}
	}

	it := seg.RangeScan([]byte("a"), []byte("d"))
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys = %v, want %v", got, want)
		}
	}
}

func TestDropSegment(t *testing.T) {
	s := OpenInMemory()
	defer s.Close()

	if _, err := s.CreateSegment("s"); err != nil {
		t.Fatal(err)
	}
	if err := s.DropSegment("s"); err != nil {
		t.Fatalf("DropSegment() error = %v", err)
	}
	if err := s.DropSegment("s"); !errors.Is(err, substrate.ErrSegmentNotFound) {
		t.Errorf("DropSegment(absent) error = %v, want ErrSegmentNotFound", err)
	}
}

func TestOpenReopensSegments(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	seg, err := s.CreateSegment("store.00000000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if err := seg.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	ids := reopened.Segments()
	if len(ids) != 1 || ids[0] != "store.00000000000000000000" {
		t.Fatalf("Segments() = %v", ids)
	}
	seg2, ok := reopened.Segment("store.00000000000000000000")
	if !ok {
		t.Fatal("Segment() not found after reopen")
	}
	got, err := seg2.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get() = %q, want %q", got, "v")
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := OpenInMemory()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := s.CreateSegment("s"); !errors.Is(err, substrate.ErrClosed) {
		t.Errorf("CreateSegment after Close error = %v, want ErrClosed", err)
	}
}
