package container

import (
	"fmt"

	"github.com/voskan/merkstore/pkg/arena"
	"github.com/voskan/merkstore/pkg/mpt"
)

// OrderedMap wraps a trie keyed directly by the nibble-encoded
// serialization of K — not hashed — so that nibble-lexicographic trie
// order agrees with K's natural order (§4.5). Use BigEndianUint64Codec for
// integer keys so numeric order is preserved.
type OrderedMap[K, V any] struct {
	trie     *mpt.Trie[uint64]
	keyCodec Codec[K]
	valCodec Codec[V]
}

// NewOrderedMap returns an empty OrderedMap over a.
func NewOrderedMap[K, V any](a *arena.Arena, keyCodec Codec[K], valCodec Codec[V]) *OrderedMap[K, V] {
	return &OrderedMap[K, V]{trie: mpt.New[uint64](a, mpt.SizeAnn{}), keyCodec: keyCodec, valCodec: valCodec}
}

// WrapOrderedMap builds an OrderedMap view over an already-existing trie.
func WrapOrderedMap[K, V any](trie *mpt.Trie[uint64], keyCodec Codec[K], valCodec Codec[V]) *OrderedMap[K, V] {
	return &OrderedMap[K, V]{trie: trie, keyCodec: keyCodec, valCodec: valCodec}
}

// Trie exposes the underlying trie.
func (m *OrderedMap[K, V]) Trie() *mpt.Trie[uint64] { return m.trie }

func (m *OrderedMap[K, V]) path(key K) mpt.Path {
	return mpt.BytesToNibbles(encodeExact(m.keyCodec, key))
}

// Insert stores value at key, overwriting any existing entry.
func (m *OrderedMap[K, V]) Insert(key K, value V) {
	m.trie.Insert(m.path(key), encodeExact(m.valCodec, value))
}

// Get returns the value stored at key, if any.
func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	raw, ok := m.trie.Lookup(m.path(key))
	if !ok {
		var zero V
		return zero, false
	}
	v, err := decodeExact(m.valCodec, raw)
	if err != nil {
		panic(fmt.Sprintf("container: corrupt ordered map entry: %v", err))
	}
	return v, true
}

// Contains reports whether key is present.
func (m *OrderedMap[K, V]) Contains(key K) bool {
	_, ok := m.trie.Lookup(m.path(key))
	return ok
}

// Remove deletes key, reporting whether it was present.
func (m *OrderedMap[K, V]) Remove(key K) bool { return m.trie.Remove(m.path(key)) }

// Len returns the number of entries.
func (m *OrderedMap[K, V]) Len() uint64 {
	n, ok := m.trie.RootAnnotation()
	if !ok {
		return 0
	}
	return n
}

func (m *OrderedMap[K, V]) decodeEntry(e mpt.Entry) (Entry[K, V], error) {
	key, err := decodeExact(m.keyCodec, mpt.NibblesToBytes(e.Path))
	if err != nil {
		return Entry[K, V]{}, err
	}
	value, err := decodeExact(m.valCodec, e.Value)
	if err != nil {
		return Entry[K, V]{}, err
	}
	return Entry[K, V]{Key: key, Value: value}, nil
}

// Entries decodes every (key, value) pair in ascending key order.
func (m *OrderedMap[K, V]) Entries() ([]Entry[K, V], error) {
	raw := m.trie.Entries()
	out := make([]Entry[K, V], 0, len(raw))
	for _, e := range raw {
		entry, err := m.decodeEntry(e)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// PruneUpTo removes every entry with key lexicographically ≤ cutoff,
// returning the removed values (a direct pass-through of the trie's
// prune, §4.1).
func (m *OrderedMap[K, V]) PruneUpTo(cutoff K) ([]V, error) {
	removedRaw := m.trie.Prune(m.path(cutoff))
	out := make([]V, 0, len(removedRaw))
	for _, raw := range removedRaw {
		v, err := decodeExact(m.valCodec, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Predecessor returns the greatest entry with key strictly less than key,
// using the trie's find_predecessor (§4.1).
func (m *OrderedMap[K, V]) Predecessor(key K) (Entry[K, V], bool, error) {
	p, raw, ok := m.trie.FindPredecessor(m.path(key))
	if !ok {
		return Entry[K, V]{}, false, nil
	}
	entry, err := m.decodeEntry(mpt.Entry{Path: p, Value: raw})
	if err != nil {
		return Entry[K, V]{}, false, err
	}
	return entry, true, nil
}
