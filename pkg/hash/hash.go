// Package hash defines the content-hash primitive that gives every value
// stored by merkstore its identity (see the "Node Identity" section of the
// design docs): a hash over a node's own payload bytes and, recursively, the
// hashes of its children.
//
// © 2025 merkstore authors. MIT License.
package hash

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Size is the fixed width of a content hash, in bytes.
const Size = 32

// Hash is a content hash: the identity of a node in the store.
type Hash [Size]byte

// Zero is the all-zero hash, used as a sentinel for "no child"/"absent".
var Zero Hash

// String renders the hash as lowercase hex, for logs and debug tooling.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Zero }

// FromBytes copies b into a Hash. Panics if len(b) != Size, since a
// malformed hash width is always a programming error or corrupted storage,
// never a recoverable input condition.
func FromBytes(b []byte) Hash {
	if len(b) != Size {
		panic("hash: wrong byte length")
	}
	var h Hash
	copy(h[:], b)
	return h
}

// Hasher computes content hashes. It is stateless and safe for concurrent
// use; a fresh blake2b state is created per call.
type Hasher struct{}

// New returns the default content hasher (blake2b-256).
func New() Hasher { return Hasher{} }

// Node computes H(len_le32(data) || data || child_1 || child_2 || … ||
// child_k), i.e. the content hash of a node given its own serialized
// payload and the already-computed hashes of its children in declared
// order. This is the single hashing entry point used by the arena and by
// every container built on the MPT, so that content-addressing is uniform
// across the whole store.
func (Hasher) Node(data []byte, children []Hash) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only returns an error for bad key sizes, which we never pass.
		panic(err)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	h.Write(lenBuf[:])
	h.Write(data)
	for _, c := range children {
		h.Write(c[:])
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// Bytes hashes an arbitrary byte string with no child-hash commitment. Used
// by the hash-indexed containers (§4.4) to derive the MPT key from a
// serialized key value: H(serialize(key)).
func (Hasher) Bytes(data []byte) Hash {
	return Hasher{}.Node(data, nil)
}
