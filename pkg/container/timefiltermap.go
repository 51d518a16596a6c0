package container

import "github.com/voskan/merkstore/pkg/arena"

// Bag describes the container of values stored at each timestamp in a
// TimeFilterMap (§4.6): a semigroup (Append) so upsert can merge into an
// existing slot, a way to enumerate its members so the companion multiset
// can be kept in sync, and a way to build a one-element bag for insert.
type Bag[C, V any] struct {
	Append func(a, b C) C
	Values func(c C) []V
	Single func(v V) C
}

// TimeFilterMap maps 64-bit timestamps (big-endian MPT keys, so numeric
// and trie order agree) to bags of values, paired with a MultiSet that
// tracks membership counts across all timestamps for O(1) Contains (§4.6).
type TimeFilterMap[C, V any] struct {
	times    *OrderedMap[uint64, C]
	multiset *MultiSet[V]
	bag      Bag[C, V]
}

// NewTimeFilterMap returns an empty TimeFilterMap over a.
func NewTimeFilterMap[C, V any](a *arena.Arena, bagCodec Codec[C], valueCodec Codec[V], bag Bag[C, V]) *TimeFilterMap[C, V] {
	return &TimeFilterMap[C, V]{
		times:    NewOrderedMap[uint64, C](a, BigEndianUint64Codec, bagCodec),
		multiset: NewMultiSet[V](a, valueCodec),
		bag:      bag,
	}
}

// Times exposes the underlying timestamp-ordered map.
func (tm *TimeFilterMap[C, V]) Times() *OrderedMap[uint64, C] { return tm.times }

// MultiSet exposes the underlying membership multiset.
func (tm *TimeFilterMap[C, V]) MultiSet() *MultiSet[V] { return tm.multiset }

// Insert replaces the bag at t with one containing only v; the previous
// contents of that slot (if any) are decremented from the multiset first.
func (tm *TimeFilterMap[C, V]) Insert(t uint64, v V) {
	if old, ok := tm.times.Get(t); ok {
		for _, ov := range tm.bag.Values(old) {
			tm.multiset.Remove(ov)
		}
	}
	tm.times.Insert(t, tm.bag.Single(v))
	tm.multiset.Insert(v, 1)
}

// Upsert merges c into any existing bag at t using the bag's semigroup
// append, adding each of c's values to the multiset.
func (tm *TimeFilterMap[C, V]) Upsert(t uint64, c C) {
	merged := c
	if old, ok := tm.times.Get(t); ok {
		merged = tm.bag.Append(old, c)
	}
	tm.times.Insert(t, merged)
	for _, v := range tm.bag.Values(c) {
		tm.multiset.Insert(v, 1)
	}
}

// Get returns the bag stored at t exactly, or at the nearest earlier
// timestamp (predecessor search, §4.1).
func (tm *TimeFilterMap[C, V]) Get(t uint64) (C, bool, error) {
	if c, ok := tm.times.Get(t); ok {
		return c, true, nil
	}
	entry, ok, err := tm.times.Predecessor(t)
	if err != nil || !ok {
		var zero C
		return zero, false, err
	}
	return entry.Value, true, nil
}

// Contains reports whether v is a member of any bag, via the multiset.
func (tm *TimeFilterMap[C, V]) Contains(v V) bool { return tm.multiset.Contains(v) }

// Filter prunes every entry with timestamp strictly less than cutoff,
// decrementing the multiset by every removed bag's contents.
func (tm *TimeFilterMap[C, V]) Filter(cutoff uint64) error {
	if cutoff == 0 {
		return nil
	}
	removed, err := tm.times.PruneUpTo(cutoff - 1)
	if err != nil {
		return err
	}
	for _, bag := range removed {
		for _, v := range tm.bag.Values(bag) {
			tm.multiset.Remove(v)
		}
	}
	return nil
}
