package windowstore

import (
	"encoding/binary"
	"fmt"

	"github.com/dray-io/windowkv/internal/store"
)

// Serde converts between a typed value and its byte representation.
type Serde[T any] interface {
	Serialize(v T) ([]byte, error)
	Deserialize(data []byte) (T, error)
}

// BytesSerde is the identity serde.
type BytesSerde struct{}

func (BytesSerde) Serialize(v []byte) ([]byte, error)   { return v, nil }
func (BytesSerde) Deserialize(d []byte) ([]byte, error) { return d, nil }

// StringSerde maps strings to their UTF-8 bytes.
type StringSerde struct{}

func (StringSerde) Serialize(v string) ([]byte, error)   { return []byte(v), nil }
func (StringSerde) Deserialize(d []byte) (string, error) { return string(d), nil }

// Int64Serde maps int64 to 8 big-endian bytes.
type Int64Serde struct{}

func (Int64Serde) Serialize(v int64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf, nil
}

func (Int64Serde) Deserialize(d []byte) (int64, error) {
	if len(d) != 8 {
		return 0, fmt.Errorf("windowstore: int64 serde: want 8 bytes, got %d", len(d))
	}
	return int64(binary.BigEndian.Uint64(d)), nil
}

// TypedEntry is one typed record with its window start.
type TypedEntry[K, V any] struct {
	Key         K
	WindowStart int64
	Value       V
}

// TypedIterator walks typed entries. Close releases the underlying
// iterator and must always be called.
type TypedIterator[K, V any] struct {
	inner    store.Iterator
	keySerde Serde[K]
	valSerde Serde[V]
	entry    TypedEntry[K, V]
	err      error
}

func (it *TypedIterator[K, V]) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.inner.Next() {
		return false
	}
	e := it.inner.Entry()
	k, err := it.keySerde.Deserialize(e.Key)
	if err != nil {
		it.err = err
		return false
	}
	v, err := it.valSerde.Deserialize(e.Value)
	if err != nil {
		it.err = err
		return false
	}
	it.entry = TypedEntry[K, V]{Key: k, WindowStart: e.WindowStart, Value: v}
	return true
}

func (it *TypedIterator[K, V]) Entry() TypedEntry[K, V] { return it.entry }

func (it *TypedIterator[K, V]) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.inner.Err()
}

func (it *TypedIterator[K, V]) Close() error { return it.inner.Close() }

// TypedStore wraps a byte-level store with serdes for keys and values.
type TypedStore[K, V any] struct {
	inner    store.Store
	keySerde Serde[K]
	valSerde Serde[V]
}

// NewTypedStore wraps s with the given serdes.
func NewTypedStore[K, V any](s store.Store, keySerde Serde[K], valSerde Serde[V]) *TypedStore[K, V] {
	return &TypedStore[K, V]{inner: s, keySerde: keySerde, valSerde: valSerde}
}

// Put writes value for key in the window starting at windowStart.
func (t *TypedStore[K, V]) Put(key K, value V, windowStart int64) error {
	k, err := t.keySerde.Serialize(key)
	if err != nil {
		return fmt.Errorf("windowstore: serialize key: %w", err)
	}
	v, err := t.valSerde.Serialize(value)
	if err != nil {
		return fmt.Errorf("windowstore: serialize value: %w", err)
	}
	return t.inner.Put(k, v, windowStart)
}

// Delete removes the value for key in the window starting at windowStart.
// It is a no-op when duplicates are retained.
func (t *TypedStore[K, V]) Delete(key K, windowStart int64) error {
	k, err := t.keySerde.Serialize(key)
	if err != nil {
		return fmt.Errorf("windowstore: serialize key: %w", err)
	}
	return t.inner.Put(k, nil, windowStart)
}

// Fetch returns entries for key with window starts in [from, to].
func (t *TypedStore[K, V]) Fetch(key K, from, to int64) (*TypedIterator[K, V], error) {
	k, err := t.keySerde.Serialize(key)
	if err != nil {
		return nil, fmt.Errorf("windowstore: serialize key: %w", err)
	}
	it, err := t.inner.Fetch(k, from, to)
	if err != nil {
		return nil, err
	}
	return &TypedIterator[K, V]{inner: it, keySerde: t.keySerde, valSerde: t.valSerde}, nil
}

// FetchAll returns entries for all keys with window starts in [from, to].
func (t *TypedStore[K, V]) FetchAll(from, to int64) (*TypedIterator[K, V], error) {
	it, err := t.inner.FetchAll(from, to)
	if err != nil {
		return nil, err
	}
	return &TypedIterator[K, V]{inner: it, keySerde: t.keySerde, valSerde: t.valSerde}, nil
}

// Flush forwards to the wrapped store.
func (t *TypedStore[K, V]) Flush() error { return t.inner.Flush() }

// Close closes the wrapped store.
func (t *TypedStore[K, V]) Close() error { return t.inner.Close() }
