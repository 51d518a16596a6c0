package container

import (
	"github.com/voskan/merkstore/pkg/arena"
)

// MultiSet counts occurrences of values, keyed the same way as HashSet
// (H(serialize(value))), storing the count as the leaf value instead of a
// presence marker. remove_n and has_subset are supplemented beyond the
// bare insert/remove/count/member spec.md names, grounded on
// original_source/storage.rs's MultiSet.
type MultiSet[V any] struct {
	m *HashMap[V, uint64]
}

// NewMultiSet returns an empty MultiSet over a.
func NewMultiSet[V any](a *arena.Arena, codec Codec[V]) *MultiSet[V] {
	return &MultiSet[V]{m: NewHashMap[V, uint64](a, codec, Uint64Codec)}
}

// WrapMultiSet builds a MultiSet view over an already-existing HashMap of
// counts.
func WrapMultiSet[V any](m *HashMap[V, uint64]) *MultiSet[V] { return &MultiSet[V]{m: m} }

// HashMap exposes the underlying count map.
func (s *MultiSet[V]) HashMap() *HashMap[V, uint64] { return s.m }

// Insert adds n occurrences of v (n == 0 is a no-op).
func (s *MultiSet[V]) Insert(v V, n uint64) {
	if n == 0 {
		return
	}
	cur, _ := s.m.Get(v)
	s.m.Insert(v, cur+n)
}

// Remove removes one occurrence of v, dropping it entirely if the count
// reaches zero. Reports whether v was present.
func (s *MultiSet[V]) Remove(v V) bool { return s.RemoveN(v, 1) }

// RemoveN removes up to n occurrences of v, dropping it entirely once the
// count reaches zero. Reports whether v was present at all.
func (s *MultiSet[V]) RemoveN(v V, n uint64) bool {
	cur, ok := s.m.Get(v)
	if !ok {
		return false
	}
	if n >= cur {
		s.m.Remove(v)
		return true
	}
	s.m.Insert(v, cur-n)
	return true
}

// Count returns how many occurrences of v are recorded.
func (s *MultiSet[V]) Count(v V) uint64 {
	cur, _ := s.m.Get(v)
	return cur
}

// Contains reports whether v has a nonzero count.
func (s *MultiSet[V]) Contains(v V) bool { return s.m.Contains(v) }

// Len returns the number of distinct values with a nonzero count.
func (s *MultiSet[V]) Len() uint64 { return s.m.Len() }

// HasSubset reports whether, for every value in s, its count is ≤ the
// corresponding count in other (the multiset subset relation).
func (s *MultiSet[V]) HasSubset(other *MultiSet[V]) (bool, error) {
	entries, err := s.m.Entries()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Value > other.Count(e.Key) {
			return false, nil
		}
	}
	return true, nil
}
