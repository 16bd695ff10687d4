package cache

import (
	"bytes"

	"github.com/dray-io/windowkv/internal/store"
)

// mergeIterator interleaves sorted cache entries with the wrapped store's
// iterator. In dedup mode (duplicates not retained) a cache entry for the
// same (key, window) supersedes the store's, and a buffered tombstone
// masks it entirely. When duplicates are retained nothing is deduplicated
// and the store's (older) entries sort before cached ones on ties.
type mergeIterator struct {
	cached   []*cacheEntry
	inner    store.Iterator
	dedup    bool
	interval int64
	byBucket bool

	idx        int
	innerEntry store.Entry
	innerValid bool
	innerDone  bool

	entry store.Entry
	err   error
}

func (it *mergeIterator) Next() bool {
	for {
		if it.err != nil {
			return false
		}
		it.fillInner()
		if it.err != nil {
			return false
		}

		haveCache := it.idx < len(it.cached)
		if !haveCache && !it.innerValid {
			return false
		}

		if !haveCache {
			it.entry = it.innerEntry
			it.innerValid = false
			return true
		}

		ce := it.cached[it.idx]
		if !it.innerValid {
			it.idx++
			if ce.value == nil {
				continue // buffered tombstone, nothing to emit
			}
			it.entry = ce.toEntry()
			return true
		}

		switch cmp := it.compare(ce, it.innerEntry); {
		case cmp < 0:
			it.idx++
			if ce.value == nil {
				continue
			}
			it.entry = ce.toEntry()
			return true
		case cmp > 0:
			it.entry = it.innerEntry
			it.innerValid = false
			return true
		default:
			if it.dedup {
				// Cache is strictly newer: it wins, the store's entry
				// for the same window is consumed silently.
				it.idx++
				it.innerValid = false
				if ce.value == nil {
					continue
				}
				it.entry = ce.toEntry()
				return true
			}
			// Duplicates retained: both survive, older store entry first.
			it.entry = it.innerEntry
			it.innerValid = false
			return true
		}
	}
}

func (it *mergeIterator) fillInner() {
	if it.innerValid || it.innerDone || it.inner == nil {
		return
	}
	if it.inner.Next() {
		it.innerEntry = it.inner.Entry()
		it.innerValid = true
		return
	}
	if err := it.inner.Err(); err != nil {
		it.err = err
		return
	}
	it.innerDone = true
}

// compare orders a cache entry against a store entry by the externally
// visible sort: (bucket, key length, key, windowStart) for cross-key
// scans, windowStart alone for single-key fetches. Keys compare by
// length before content because the wrapped store scans length-prefixed
// window keys, so "b" sorts before "ab" within a bucket.
func (it *mergeIterator) compare(ce *cacheEntry, se store.Entry) int {
	if it.byBucket {
		cb, sb := ce.windowStart/it.interval, se.WindowStart/it.interval
		if cb != sb {
			return compareInt64(cb, sb)
		}
		if cmp := compareKeys(ce.key, se.Key); cmp != 0 {
			return cmp
		}
	}
	return compareInt64(ce.windowStart, se.WindowStart)
}

// compareKeys matches the encoded window-key order: shorter keys sort
// first, equal lengths compare bytewise.
func compareKeys(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a, b)
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (e *cacheEntry) toEntry() store.Entry {
	return store.Entry{
		Key:         append([]byte(nil), e.key...),
		WindowStart: e.windowStart,
		Value:       append([]byte(nil), e.value...),
	}
}

func (it *mergeIterator) Entry() store.Entry { return it.entry }

func (it *mergeIterator) Err() error { return it.err }

func (it *mergeIterator) Close() error {
	it.cached = nil
	if it.inner != nil {
		err := it.inner.Close()
		it.inner = nil
		return err
	}
	return nil
}
