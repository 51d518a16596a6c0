package container

import (
	"bytes"
	"fmt"

	"github.com/voskan/merkstore/pkg/arena"
	"github.com/voskan/merkstore/pkg/hash"
	"github.com/voskan/merkstore/pkg/mpt"
	"github.com/voskan/merkstore/pkg/serialize"
)

const hashMapEntryTag = "container.hashmap.entry[v1]"

// HashMap is an arbitrary-key map keyed in the underlying trie by
// H(serialize(key)) (§4.4). The leaf payload carries both key and value so
// iteration can recover typed keys; equal keys must serialize identically,
// which Codec.Encode is required to guarantee.
type HashMap[K, V any] struct {
	trie     *mpt.Trie[uint64]
	keyCodec Codec[K]
	valCodec Codec[V]
	hasher   hash.Hasher
}

// Entry is one (key, value) pair yielded by a container's Iter/Entries.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// NewHashMap returns an empty HashMap over a.
func NewHashMap[K, V any](a *arena.Arena, keyCodec Codec[K], valCodec Codec[V]) *HashMap[K, V] {
	return &HashMap[K, V]{trie: mpt.New[uint64](a, mpt.SizeAnn{}), keyCodec: keyCodec, valCodec: valCodec, hasher: hash.New()}
}

// WrapHashMap builds a HashMap view over an already-existing trie (e.g.
// loaded from a stored root hash).
func WrapHashMap[K, V any](trie *mpt.Trie[uint64], keyCodec Codec[K], valCodec Codec[V]) *HashMap[K, V] {
	return &HashMap[K, V]{trie: trie, keyCodec: keyCodec, valCodec: valCodec, hasher: hash.New()}
}

// Trie exposes the underlying trie, e.g. for RootHash/persist.
func (m *HashMap[K, V]) Trie() *mpt.Trie[uint64] { return m.trie }

func (m *HashMap[K, V]) keyPath(key K) mpt.Path {
	h := m.hasher.Bytes(encodeExact(m.keyCodec, key))
	return mpt.BytesToNibbles(h[:])
}

func (m *HashMap[K, V]) encodeEntry(key K, value V) []byte {
	w := serialize.NewWriter()
	w.Tag(hashMapEntryTag)
	w.Bytes_(encodeExact(m.keyCodec, key))
	w.Bytes_(encodeExact(m.valCodec, value))
	return w.Bytes()
}

func (m *HashMap[K, V]) decodeEntry(raw []byte) (K, V, error) {
	var zeroK K
	var zeroV V
	r := serialize.NewReader(raw)
	if err := r.ExpectTag(hashMapEntryTag); err != nil {
		return zeroK, zeroV, err
	}
	kb, err := r.Bytes_()
	if err != nil {
		return zeroK, zeroV, err
	}
	vb, err := r.Bytes_()
	if err != nil {
		return zeroK, zeroV, err
	}
	if err := serialize.EnsureConsumed(r); err != nil {
		return zeroK, zeroV, err
	}
	key, err := decodeExact(m.keyCodec, kb)
	if err != nil {
		return zeroK, zeroV, err
	}
	value, err := decodeExact(m.valCodec, vb)
	if err != nil {
		return zeroK, zeroV, err
	}
	return key, value, nil
}

// Insert stores value at key, overwriting any existing entry.
func (m *HashMap[K, V]) Insert(key K, value V) {
	m.trie.Insert(m.keyPath(key), m.encodeEntry(key, value))
}

// Get returns the value stored at key, if any.
func (m *HashMap[K, V]) Get(key K) (V, bool) {
	raw, ok := m.trie.Lookup(m.keyPath(key))
	if !ok {
		var zero V
		return zero, false
	}
	_, value, err := m.decodeEntry(raw)
	if err != nil {
		panic(fmt.Sprintf("container: corrupt hashmap entry: %v", err))
	}
	return value, true
}

// Contains reports whether key is present.
func (m *HashMap[K, V]) Contains(key K) bool {
	_, ok := m.trie.Lookup(m.keyPath(key))
	return ok
}

// Remove deletes key, reporting whether it was present.
func (m *HashMap[K, V]) Remove(key K) bool {
	return m.trie.Remove(m.keyPath(key))
}

// Len returns the number of entries.
func (m *HashMap[K, V]) Len() uint64 {
	n, ok := m.trie.RootAnnotation()
	if !ok {
		return 0
	}
	return n
}

// Entries decodes and validates every entry, checking the §4.4 invariant
// that each stored path equals H(serialize(stored key)).
func (m *HashMap[K, V]) Entries() ([]Entry[K, V], error) {
	raw := m.trie.Entries()
	out := make([]Entry[K, V], 0, len(raw))
	for _, e := range raw {
		key, value, err := m.decodeEntry(e.Value)
		if err != nil {
			return nil, err
		}
		want := m.keyPath(key)
		if !bytes.Equal(want, e.Path) {
			return nil, fmt.Errorf("container: hashmap key hash mismatch at stored path %x", []byte(e.Path))
		}
		out = append(out, Entry[K, V]{Key: key, Value: value})
	}
	return out, nil
}
