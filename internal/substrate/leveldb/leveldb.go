// Package leveldb implements the substrate interface on top of LevelDB.
//
// Each segment is an independent LevelDB database in its own directory
// under the store root, so dropping an expired segment is a single
// directory removal rather than a tombstone-heavy range delete. Existing
// segment databases are reopened when the store is opened, which is how a
// restarted shard recovers its retained windows.
package leveldb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	ldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dray-io/windowkv/internal/substrate"
)

// Store is a LevelDB-backed substrate rooted at a directory.
type Store struct {
	mu       sync.Mutex
	dir      string
	inMemory bool
	segments map[string]*dbSegment
	closed   bool
}

// Open opens (or creates) a LevelDB substrate rooted at dir. Any segment
// databases already present under dir are reopened.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &substrate.StorageError{Op: "Open", Segment: dir, Err: err}
	}

	s := &Store{
		dir:      dir,
		segments: make(map[string]*dbSegment),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &substrate.StorageError{Op: "Open", Segment: dir, Err: err}
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		db, err := leveldb.OpenFile(filepath.Join(dir, id), nil)
		if err != nil {
			s.Close()
			return nil, &substrate.StorageError{Op: "Open", Segment: id, Err: err}
		}
		s.segments[id] = &dbSegment{id: id, db: db}
	}
	return s, nil
}

// OpenInMemory returns a substrate whose segments live in LevelDB memory
// storage. Used by tests that want LevelDB semantics without disk I/O.
func OpenInMemory() *Store {
	return &Store{
		inMemory: true,
		segments: make(map[string]*dbSegment),
	}
}

// CreateSegment opens a new LevelDB database for the segment.
func (s *Store) CreateSegment(id string) (substrate.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, substrate.ErrClosed
	}
	if _, exists := s.segments[id]; exists {
		return nil, substrate.ErrSegmentExists
	}

	var (
		db  *leveldb.DB
		err error
	)
	if s.inMemory {
		db, err = leveldb.Open(ldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(filepath.Join(s.dir, id), nil)
	}
	if err != nil {
		return nil, &substrate.StorageError{Op: "CreateSegment", Segment: id, Err: err}
	}

	seg := &dbSegment{id: id, db: db}
	s.segments[id] = seg
	return seg, nil
}

// Segment returns an existing segment.
func (s *Store) Segment(id string) (substrate.Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.segments[id]
	if !ok {
		return nil, false
	}
	return seg, true
}

// Segments returns all live segment identifiers, sorted.
func (s *Store) Segments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.segments))
	for id := range s.segments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DropSegment closes the segment database and removes its directory.
func (s *Store) DropSegment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return substrate.ErrClosed
	}
	seg, ok := s.segments[id]
	if !ok {
		return substrate.ErrSegmentNotFound
	}
	delete(s.segments, id)

	if err := seg.close(); err != nil {
		return &substrate.StorageError{Op: "DropSegment", Segment: id, Err: err}
	}
	if !s.inMemory {
		if err := os.RemoveAll(filepath.Join(s.dir, id)); err != nil {
			return &substrate.StorageError{Op: "DropSegment", Segment: id, Err: err}
		}
	}
	return nil
}

// Close closes all segment databases. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for id, seg := range s.segments {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing segment %q: %w", id, err)
		}
	}
	s.segments = nil
	return firstErr
}

type dbSegment struct {
	mu     sync.Mutex
	id     string
	db     *leveldb.DB
	closed bool
}

func (g *dbSegment) Get(key []byte) ([]byte, error) {
	v, err := g.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, substrate.ErrNotFound
	}
	if err != nil {
		return nil, &substrate.StorageError{Op: "Get", Segment: g.id, Err: err}
	}
	return v, nil
}

func (g *dbSegment) Put(key, value []byte) error {
	if err := g.db.Put(key, value, nil); err != nil {
		return &substrate.StorageError{Op: "Put", Segment: g.id, Err: err}
	}
	return nil
}

func (g *dbSegment) Delete(key []byte) error {
	if err := g.db.Delete(key, nil); err != nil {
		return &substrate.StorageError{Op: "Delete", Segment: g.id, Err: err}
	}
	return nil
}

func (g *dbSegment) RangeScan(from, to []byte) substrate.Iterator {
	var slice *util.Range
	if from != nil || to != nil {
		slice = &util.Range{Start: from, Limit: to}
	}
	return &dbIterator{id: g.id, it: g.db.NewIterator(slice, nil)}
}

func (g *dbSegment) close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	return g.db.Close()
}

// dbIterator adapts a goleveldb iterator. Key and value buffers are owned
// by the underlying iterator and copied on access, matching the substrate
// contract that they are valid until the next Next call.
type dbIterator struct {
	id    string
	it    iterator.Iterator
	key   []byte
	value []byte
}

func (d *dbIterator) Next() bool {
	if !d.it.Next() {
		return false
	}
	d.key = append(d.key[:0], d.it.Key()...)
	d.value = append(d.value[:0], d.it.Value()...)
	return true
}

func (d *dbIterator) Key() []byte { return d.key }

func (d *dbIterator) Value() []byte { return d.value }

func (d *dbIterator) Err() error {
	if err := d.it.Error(); err != nil {
		return &substrate.StorageError{Op: "RangeScan", Segment: d.id, Err: err}
	}
	return nil
}

func (d *dbIterator) Close() error {
	d.it.Release()
	return d.it.Error()
}

// Ensure Store implements Substrate.
var _ substrate.Substrate = (*Store)(nil)
