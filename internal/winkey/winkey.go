// Package winkey encodes (logical key, window start, sequence) tuples as
// single byte keys whose lexicographic order matches ascending window start
// (and ascending sequence as tiebreak) for a fixed logical key.
//
// Layout:
//
//	[keyLen uint32 BE][key bytes][windowStart int64 BE, sign bit flipped][seq uint32 BE]
//
// The length prefix makes logical keys of differing lengths self-delimiting,
// so two keys never produce overlapping encoded ranges. Flipping the sign
// bit of the window start keeps byte order equal to numeric order across
// the full int64 range. The sequence disambiguates duplicates for the same
// (key, window) when duplicate retention is enabled; stores that upsert
// always use sequence zero.
package winkey

import (
	"encoding/binary"
	"errors"
	"math"
)

// Overhead is the number of bytes added to a logical key by the encoding.
const Overhead = 4 + 8 + 4

// ErrInvalidKey is returned when an encoded key cannot be decoded.
var ErrInvalidKey = errors.New("winkey: invalid encoded key")

// Encode builds the ordered byte key for (key, windowStart, seq).
func Encode(key []byte, windowStart int64, seq uint32) []byte {
	out := make([]byte, len(key)+Overhead)
	binary.BigEndian.PutUint32(out, uint32(len(key)))
	copy(out[4:], key)
	binary.BigEndian.PutUint64(out[4+len(key):], orderPreserving(windowStart))
	binary.BigEndian.PutUint32(out[4+len(key)+8:], seq)
	return out
}

// Decode splits an encoded key back into its components. The returned key
// aliases the input slice.
func Decode(b []byte) (key []byte, windowStart int64, seq uint32, err error) {
	if len(b) < Overhead {
		return nil, 0, 0, ErrInvalidKey
	}
	keyLen := int(binary.BigEndian.Uint32(b))
	if len(b) != keyLen+Overhead {
		return nil, 0, 0, ErrInvalidKey
	}
	key = b[4 : 4+keyLen]
	windowStart = fromOrderPreserving(binary.BigEndian.Uint64(b[4+keyLen:]))
	seq = binary.BigEndian.Uint32(b[4+keyLen+8:])
	return key, windowStart, seq, nil
}

// WindowStart extracts only the window start from an encoded key.
func WindowStart(b []byte) (int64, error) {
	_, ws, _, err := Decode(b)
	return ws, err
}

// RangeStart returns the inclusive lower bound of the encoded range
// covering window starts >= from for the given key.
func RangeStart(key []byte, from int64) []byte {
	return Encode(key, from, 0)
}

// RangeEnd returns the exclusive upper bound of the encoded range covering
// window starts <= to for the given key. The bound is the maximal encoding
// at `to` with one byte appended, so every sequence value sorts below it.
func RangeEnd(key []byte, to int64) []byte {
	end := Encode(key, to, math.MaxUint32)
	return append(end, 0x00)
}

// orderPreserving maps an int64 onto a uint64 whose big-endian byte order
// equals the signed numeric order.
func orderPreserving(v int64) uint64 {
	return uint64(v) ^ (1 << 63)
}

func fromOrderPreserving(v uint64) int64 {
	return int64(v ^ (1 << 63))
}
