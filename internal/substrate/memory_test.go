package substrate

import (
	"errors"
	"testing"
)

func TestMemoryCreateAndGet(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	seg, err := m.CreateSegment("store.0")
	if err != nil {
		t.Fatalf("CreateSegment() error = %v", err)
	}

	if err := seg.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	v, err := seg.Get([]byte("a"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(v) != "1" {
		t.Errorf("Get() = %q, want %q", v, "1")
	}

	if _, err := seg.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryCreateSegmentDuplicate(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	if _, err := m.CreateSegment("s"); err != nil {
		t.Fatalf("CreateSegment() error = %v", err)
	}
	if _, err := m.CreateSegment("s"); !errors.Is(err, ErrSegmentExists) {
		t.Errorf("CreateSegment(dup) error = %v, want ErrSegmentExists", err)
	}
}

func TestMemoryRangeScan(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	seg, err := m.CreateSegment("s")
	if err != nil {
		t.Fatal(err)
	}

	for _, k := range []string{"d", "b", "a", "c"} {
		if err := seg.Put([]byte(k), []byte("v"+k)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		from string
		to   string
		want []string
	}{
		{"full range", "", "", []string{"a", "b", "c", "d"}},
		{"half open", "b", "d", []string{"b", "c"}},
		{"from only", "c", "", []string{"c", "d"}},
		{"empty", "x", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var from, to []byte
			if tt.from != "" {
				from = []byte(tt.from)
			}
			if tt.to != "" {
				to = []byte(tt.to)
			}
			it := seg.RangeScan(from, to)
			defer it.Close()

			var got []string
			for it.Next() {
				got = append(got, string(it.Key()))
			}
			if err := it.Err(); err != nil {
				t.Fatalf("Err() = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	seg, _ := m.CreateSegment("s")
	seg.Put([]byte("a"), []byte("1"))
	if err := seg.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := seg.Get([]byte("a")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
	// Deleting an absent key is not an error.
	if err := seg.Delete([]byte("a")); err != nil {
		t.Errorf("Delete(absent) error = %v", err)
	}
}

func TestMemoryDropSegment(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	seg, _ := m.CreateSegment("s")
	seg.Put([]byte("a"), []byte("1"))

	if err := m.DropSegment("s"); err != nil {
		t.Fatalf("DropSegment() error = %v", err)
	}
	if _, ok := m.Segment("s"); ok {
		t.Error("Segment() found dropped segment")
	}
	if err := m.DropSegment("s"); !errors.Is(err, ErrSegmentNotFound) {
		t.Errorf("DropSegment(absent) error = %v, want ErrSegmentNotFound", err)
	}
	// Operations on a dropped segment handle fail.
	if err := seg.Put([]byte("b"), []byte("2")); !errors.Is(err, ErrClosed) {
		t.Errorf("Put on dropped segment error = %v, want ErrClosed", err)
	}
}

func TestMemorySegmentsSorted(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	for _, id := range []string{"s.2", "s.0", "s.1"} {
		if _, err := m.CreateSegment(id); err != nil {
			t.Fatal(err)
		}
	}
	got := m.Segments()
	want := []string{"s.0", "s.1", "s.2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Segments() = %v, want %v", got, want)
		}
	}
}

func TestMemoryCloseIdempotent(t *testing.T) {
	m := NewMemory()
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := m.CreateSegment("s"); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateSegment after Close error = %v, want ErrClosed", err)
	}
}
