// Package cache implements the write-behind caching overlay.
//
// Writes land in an in-memory mapping keyed by encoded window key and are
// forwarded to the wrapped store only when flushed, either explicitly or
// when cumulative dirty bytes cross the configured threshold. Reads merge
// the in-memory entries with the wrapped store's results, the cache taking
// precedence since it is strictly newer than anything last flushed.
//
// Eviction removes clean entries first, in least-recently-used order.
// Dirty entries are never evicted; eviction pressure against an all-dirty
// cache is converted into a forced flush.
//
// The overlay tracks the highest window start it has seen and hides cached
// entries whose bucket has aged out of retention, so expired and late
// records do not linger in reads between flushes.
package cache

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dray-io/windowkv/internal/store"
	"github.com/dray-io/windowkv/internal/winkey"
)

// entryOverhead approximates per-entry bookkeeping bytes counted against
// the cache capacity.
const entryOverhead = 64

// Recorder receives cache events. A nil Recorder disables recording.
type Recorder interface {
	RecordHit()
	RecordMiss()
	RecordEviction()
	RecordCacheFlush(durationSeconds float64, entries int)
}

// Config configures the caching overlay.
type Config struct {
	// MaxBytes is the cache capacity. When exceeded, clean entries are
	// evicted LRU-first. Default: 16MB.
	MaxBytes int64

	// FlushThresholdBytes triggers a flush when cumulative dirty bytes
	// exceed it. Default: MaxBytes / 2.
	FlushThresholdBytes int64

	// SegmentIntervalMs is the wrapped store's segment interval. FetchAll
	// merge ordering groups cached entries into the same time buckets the
	// store uses.
	SegmentIntervalMs int64

	// RetentionMs is the wrapped store's retention period. Cached entries
	// whose bucket has fallen out of retention are hidden from reads.
	// Zero disables the filter.
	RetentionMs int64
}

type cacheEntry struct {
	encoded     string
	key         []byte
	windowStart int64
	seq         uint32
	value       []byte // nil is a buffered tombstone
	dirty       bool
	accessSeq   int64
	size        int64
}

// Caching is the write-behind overlay.
type Caching struct {
	inner            store.Store
	cfg              Config
	retainDuplicates bool
	seq              uint32

	// mu guards the entry map and byte accounting only; the store is
	// single-owner and the mutex is not a concurrent-writer contract.
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	totalBytes int64
	dirtyBytes int64
	accessSeq  int64
	observed   int64

	rec    Recorder
	logger *zap.Logger
	closed bool
}

// New wraps inner with a write-behind cache.
func New(inner store.Store, cfg Config, retainDuplicates bool, rec Recorder, logger *zap.Logger) *Caching {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024
	}
	if cfg.FlushThresholdBytes <= 0 {
		cfg.FlushThresholdBytes = cfg.MaxBytes / 2
	}
	if cfg.SegmentIntervalMs <= 0 {
		cfg.SegmentIntervalMs = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caching{
		inner:            inner,
		cfg:              cfg,
		retainDuplicates: retainDuplicates,
		entries:          make(map[string]*cacheEntry),
		observed:         math.MinInt64,
		rec:              rec,
		logger:           logger,
	}
}

// DirtyBytes returns the cumulative size of unflushed entries.
func (c *Caching) DirtyBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyBytes
}

// Put buffers the write in memory and returns without touching the wrapped
// store, unless the dirty threshold or capacity forces a flush or eviction.
func (c *Caching) Put(key, value []byte, windowStart int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return store.ErrClosed
	}
	if windowStart < 0 {
		return store.ErrNegativeWindowStart
	}
	if windowStart > c.observed {
		c.observed = windowStart
	}

	var seq uint32
	if c.retainDuplicates {
		if value == nil {
			return nil
		}
		c.seq++
		seq = c.seq
	}
	encoded := string(winkey.Encode(key, windowStart, seq))

	size := int64(len(encoded)+len(value)) + entryOverhead
	if old, ok := c.entries[encoded]; ok {
		c.totalBytes -= old.size
		if old.dirty {
			c.dirtyBytes -= old.size
		}
	}

	c.accessSeq++
	e := &cacheEntry{
		encoded:     encoded,
		key:         append([]byte(nil), key...),
		windowStart: windowStart,
		seq:         seq,
		dirty:       true,
		accessSeq:   c.accessSeq,
		size:        size,
	}
	if value != nil {
		e.value = append([]byte(nil), value...)
	}
	c.entries[encoded] = e
	c.totalBytes += size
	c.dirtyBytes += size

	if c.dirtyBytes > c.cfg.FlushThresholdBytes {
		if err := c.flushLocked(); err != nil {
			return err
		}
	}
	if c.totalBytes > c.cfg.MaxBytes {
		return c.evict()
	}
	return nil
}

// Flush forwards dirty entries to the wrapped store in window-key order
// and clears their dirty flags one by one. A mid-flush error leaves the
// already-flushed entries clean and the rest dirty; each entry's mutation
// is individually atomic, no whole-flush atomicity is provided.
func (c *Caching) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return store.ErrClosed
	}
	return c.flushLocked()
}

func (c *Caching) flushLocked() error {
	start := time.Now()
	dirty := make([]*cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.dirty {
			dirty = append(dirty, e)
		}
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].encoded < dirty[j].encoded })

	flushed := 0
	for _, e := range dirty {
		if err := c.inner.Put(e.key, e.value, e.windowStart); err != nil {
			if c.rec != nil {
				c.rec.RecordCacheFlush(time.Since(start).Seconds(), flushed)
			}
			return fmt.Errorf("cache: flush at window %d: %w", e.windowStart, err)
		}
		e.dirty = false
		c.dirtyBytes -= e.size
		flushed++
		if c.retainDuplicates {
			// Flushed duplicates are handed off entirely: the wrapped
			// store re-sequences them, so keeping a cached copy would
			// double entries on merge.
			delete(c.entries, e.encoded)
			c.totalBytes -= e.size
		}
	}

	if c.rec != nil {
		c.rec.RecordCacheFlush(time.Since(start).Seconds(), flushed)
	}
	return c.inner.Flush()
}

// evict removes clean entries LRU-first until the cache fits. If nothing
// clean remains, dirty entries are flushed rather than discarded and the
// pass retries once.
func (c *Caching) evict() error {
	flushedOnce := false
	for c.totalBytes > c.cfg.MaxBytes {
		var victim *cacheEntry
		for _, e := range c.entries {
			if e.dirty {
				continue
			}
			if victim == nil || e.accessSeq < victim.accessSeq {
				victim = e
			}
		}
		if victim == nil {
			if flushedOnce {
				// A single entry larger than the capacity; nothing
				// more to reclaim.
				return nil
			}
			if err := c.flushLocked(); err != nil {
				return err
			}
			flushedOnce = true
			continue
		}
		delete(c.entries, victim.encoded)
		c.totalBytes -= victim.size
		if c.rec != nil {
			c.rec.RecordEviction()
		}
	}
	return nil
}

// Fetch merges in-memory entries for key in [from, to] with the wrapped
// store's result.
func (c *Caching) Fetch(key []byte, from, to int64) (store.Iterator, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, store.ErrClosed
	}
	if to < from {
		c.mu.Unlock()
		return store.Empty(), nil
	}
	cached := c.cachedRange(key, from, to)
	c.mu.Unlock()

	if c.rec != nil {
		if len(cached) > 0 {
			c.rec.RecordHit()
		} else {
			c.rec.RecordMiss()
		}
	}

	inner, err := c.inner.Fetch(key, from, to)
	if err != nil {
		return nil, err
	}
	return &mergeIterator{
		cached:   cached,
		inner:    inner,
		dedup:    !c.retainDuplicates,
		interval: c.cfg.SegmentIntervalMs,
	}, nil
}

// FetchAll merges all in-memory entries in [from, to] with the wrapped
// store's result, ordered by time bucket, then key.
func (c *Caching) FetchAll(from, to int64) (store.Iterator, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, store.ErrClosed
	}
	if to < from {
		c.mu.Unlock()
		return store.Empty(), nil
	}
	cached := c.cachedRange(nil, from, to)
	c.mu.Unlock()

	inner, err := c.inner.FetchAll(from, to)
	if err != nil {
		return nil, err
	}
	return &mergeIterator{
		cached:   cached,
		inner:    inner,
		dedup:    !c.retainDuplicates,
		interval: c.cfg.SegmentIntervalMs,
		byBucket: true,
	}, nil
}

// cachedRange snapshots the cache entries matching key (nil for all keys)
// with window starts in [from, to], sorted for merging, and touches their
// LRU sequence.
func (c *Caching) cachedRange(key []byte, from, to int64) []*cacheEntry {
	var out []*cacheEntry
	for _, e := range c.entries {
		if key != nil && !bytes.Equal(e.key, key) {
			continue
		}
		if e.windowStart < from || e.windowStart > to {
			continue
		}
		if c.expired(e.windowStart) {
			continue
		}
		c.accessSeq++
		e.accessSeq = c.accessSeq
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ab, bb := a.windowStart/c.cfg.SegmentIntervalMs, b.windowStart/c.cfg.SegmentIntervalMs
		if ab != bb {
			return ab < bb
		}
		if cmp := compareKeys(a.key, b.key); cmp != 0 {
			return cmp < 0
		}
		if a.windowStart != b.windowStart {
			return a.windowStart < b.windowStart
		}
		return a.seq < b.seq
	})
	return out
}

// expired reports whether the bucket holding windowStart has aged out of
// retention, as judged by the writes this overlay has observed.
func (c *Caching) expired(windowStart int64) bool {
	if c.cfg.RetentionMs <= 0 || c.observed == math.MinInt64 {
		return false
	}
	bucketStart := (windowStart / c.cfg.SegmentIntervalMs) * c.cfg.SegmentIntervalMs
	return bucketStart+c.cfg.SegmentIntervalMs <= c.observed-c.cfg.RetentionMs
}

// Flush-then-close: buffered writes must not be lost on an orderly close.
func (c *Caching) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if err := c.flushLocked(); err != nil {
		return err
	}
	c.closed = true
	c.entries = nil
	return c.inner.Close()
}

// Ensure Caching implements Store.
var _ store.Store = (*Caching)(nil)
