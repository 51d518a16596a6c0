// Package container implements the higher-level collections built on top
// of the Merkle Patricia Trie (§4.4/§4.5/§4.6): a hash-indexed map and set,
// a key-ordered map and array, and a time-indexed multimap paired with a
// multiset for O(1) membership.
//
// © 2025 merkstore authors. MIT License.
package container

import (
	"encoding/binary"
	"fmt"

	"github.com/voskan/merkstore/pkg/serialize"
)

// Codec pairs an encoder and decoder for a key or value type stored inside
// a container leaf. Containers are generic over arbitrary K/V, so callers
// supply a Codec the same way mpt callers supply an Annotation: there is no
// reflection-based fallback, because Encode must be exactly deterministic
// (§6.2) and that is a property only the caller can guarantee for their own
// type.
type Codec[T any] struct {
	Encode func(w *serialize.Writer, v T)
	Decode func(r *serialize.Reader) (T, error)
}

// BytesCodec stores a value as an opaque length-prefixed byte string.
var BytesCodec = Codec[[]byte]{
	Encode: func(w *serialize.Writer, v []byte) { w.Bytes_(v) },
	Decode: func(r *serialize.Reader) ([]byte, error) { return r.Bytes_() },
}

// StringCodec stores a value as a length-prefixed UTF-8 byte string.
var StringCodec = Codec[string]{
	Encode: func(w *serialize.Writer, v string) { w.Bytes_([]byte(v)) },
	Decode: func(r *serialize.Reader) (string, error) {
		b, err := r.Bytes_()
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
}

// Uint64Codec stores a value as a little-endian u64 — the in-stream
// default encoding (§6.2). Do not use this for ordered-map/array keys,
// which need big-endian so nibble order agrees with numeric order; use
// BigEndianUint64Codec there instead.
var Uint64Codec = Codec[uint64]{
	Encode: func(w *serialize.Writer, v uint64) { w.U64(v) },
	Decode: func(r *serialize.Reader) (uint64, error) { return r.U64() },
}

// BigEndianUint64Codec stores a value as a big-endian u64. Intended for
// OrderedMap keys over integers, per §6.2's big-endian-for-ordered-keys
// rule.
var BigEndianUint64Codec = Codec[uint64]{
	Encode: func(w *serialize.Writer, v uint64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		w.Raw(b[:])
	},
	Decode: func(r *serialize.Reader) (uint64, error) {
		b, err := r.Raw(8)
		if err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint64(b), nil
	},
}

func decodeExact[T any](codec Codec[T], raw []byte) (T, error) {
	r := serialize.NewReader(raw)
	v, err := codec.Decode(r)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := serialize.EnsureConsumed(r); err != nil {
		var zero T
		return zero, fmt.Errorf("container: trailing bytes decoding value: %w", err)
	}
	return v, nil
}

func encodeExact[T any](codec Codec[T], v T) []byte {
	w := serialize.NewWriter()
	codec.Encode(w, v)
	return w.Bytes()
}
