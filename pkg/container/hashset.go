package container

import (
	"github.com/voskan/merkstore/pkg/arena"
	"github.com/voskan/merkstore/pkg/hash"
	"github.com/voskan/merkstore/pkg/mpt"
)

// HashSet is a set keyed in the underlying trie by H(serialize(value))
// (§4.4). Union and IsSubset are supplemented beyond the bare
// insert/remove/member spec.md names, grounded on
// original_source/storage.rs's HashSet, which offers both.
type HashSet[V any] struct {
	trie   *mpt.Trie[uint64]
	codec  Codec[V]
	hasher hash.Hasher
}

// NewHashSet returns an empty HashSet over a.
func NewHashSet[V any](a *arena.Arena, codec Codec[V]) *HashSet[V] {
	return &HashSet[V]{trie: mpt.New[uint64](a, mpt.SizeAnn{}), codec: codec, hasher: hash.New()}
}

// WrapHashSet builds a HashSet view over an already-existing trie.
func WrapHashSet[V any](trie *mpt.Trie[uint64], codec Codec[V]) *HashSet[V] {
	return &HashSet[V]{trie: trie, codec: codec, hasher: hash.New()}
}

// Trie exposes the underlying trie.
func (s *HashSet[V]) Trie() *mpt.Trie[uint64] { return s.trie }

func (s *HashSet[V]) path(v V) mpt.Path {
	h := s.hasher.Bytes(encodeExact(s.codec, v))
	return mpt.BytesToNibbles(h[:])
}

// Insert adds v, reporting whether it was newly inserted.
func (s *HashSet[V]) Insert(v V) bool {
	if s.Contains(v) {
		return false
	}
	s.trie.Insert(s.path(v), encodeExact(s.codec, v))
	return true
}

// Remove deletes v, reporting whether it was present.
func (s *HashSet[V]) Remove(v V) bool { return s.trie.Remove(s.path(v)) }

// Contains reports whether v is a member.
func (s *HashSet[V]) Contains(v V) bool {
	_, ok := s.trie.Lookup(s.path(v))
	return ok
}

// Len returns the number of members.
func (s *HashSet[V]) Len() uint64 {
	n, ok := s.trie.RootAnnotation()
	if !ok {
		return 0
	}
	return n
}

// Values decodes every member.
func (s *HashSet[V]) Values() ([]V, error) {
	raw := s.trie.Entries()
	out := make([]V, 0, len(raw))
	for _, e := range raw {
		v, err := decodeExact(s.codec, e.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Union inserts every member of other into s, returning the number of
// elements newly added.
func (s *HashSet[V]) Union(other *HashSet[V]) (int, error) {
	others, err := other.Values()
	if err != nil {
		return 0, err
	}
	added := 0
	for _, v := range others {
		if s.Insert(v) {
			added++
		}
	}
	return added, nil
}

// IsSubset reports whether every member of s is also a member of other.
func (s *HashSet[V]) IsSubset(other *HashSet[V]) (bool, error) {
	values, err := s.Values()
	if err != nil {
		return false, err
	}
	for _, v := range values {
		if !other.Contains(v) {
			return false, nil
		}
	}
	return true, nil
}
