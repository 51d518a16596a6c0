package container

import (
	"fmt"

	"github.com/voskan/merkstore/pkg/arena"
	"github.com/voskan/merkstore/pkg/mpt"
)

// Array is an MPT keyed by the big-endian nibble encoding of the index,
// with leading-zero nibbles stripped so small indices keep short paths
// (§4.5): index 0 is the empty path, i.e. a single-leaf trie. size is
// tracked explicitly (not derived from leaf count alone) so push always
// knows the next index and Get(i) for i >= size is rejected even if the
// trie happens to contain a stray entry there.
type Array[V any] struct {
	trie  *mpt.Trie[uint64]
	codec Codec[V]
	size  uint64
}

// NewArray returns an empty Array over a.
func NewArray[V any](a *arena.Arena, codec Codec[V]) *Array[V] {
	return &Array[V]{trie: mpt.New[uint64](a, mpt.SizeAnn{}), codec: codec}
}

// FromSlice builds an Array containing vs, in order, via repeated Push.
func FromSlice[V any](a *arena.Arena, codec Codec[V], vs []V) *Array[V] {
	arr := NewArray[V](a, codec)
	for _, v := range vs {
		arr.Push(v)
	}
	return arr
}

// WrapArray builds an Array view over an already-existing trie and known
// size (e.g. recovered from a container header alongside the root hash).
func WrapArray[V any](trie *mpt.Trie[uint64], codec Codec[V], size uint64) *Array[V] {
	return &Array[V]{trie: trie, codec: codec, size: size}
}

// Trie exposes the underlying trie.
func (a *Array[V]) Trie() *mpt.Trie[uint64] { return a.trie }

// Len returns the number of elements.
func (a *Array[V]) Len() uint64 { return a.size }

// indexPath computes the big-endian nibble path for index i, stripped of
// leading zero nibbles; index 0 maps to the empty path.
func indexPath(i uint64) mpt.Path {
	if i == 0 {
		return mpt.Path{}
	}
	var rev []byte
	for i > 0 {
		rev = append(rev, byte(i&0xf))
		i >>= 4
	}
	p := make(mpt.Path, len(rev))
	for j, nb := range rev {
		p[len(rev)-1-j] = nb
	}
	return p
}

func pathToIndex(p mpt.Path) uint64 {
	var v uint64
	for _, nb := range p {
		v = v<<4 | uint64(nb)
	}
	return v
}

// Get returns the element at index i, or false if i >= Len().
func (a *Array[V]) Get(i uint64) (V, bool) {
	if i >= a.size {
		var zero V
		return zero, false
	}
	raw, ok := a.trie.Lookup(indexPath(i))
	if !ok {
		var zero V
		return zero, false
	}
	v, err := decodeExact(a.codec, raw)
	if err != nil {
		panic(fmt.Sprintf("container: corrupt array entry: %v", err))
	}
	return v, true
}

// Set overwrites the element at index i. Panics if i >= Len(): Array has
// no sparse-write operation, only Push grows it (§4.5).
func (a *Array[V]) Set(i uint64, v V) {
	if i >= a.size {
		panic(fmt.Sprintf("container: array index %d out of range (len %d)", i, a.size))
	}
	a.trie.Insert(indexPath(i), encodeExact(a.codec, v))
}

// Push appends v at index Len(), growing the array by one.
func (a *Array[V]) Push(v V) {
	a.trie.Insert(indexPath(a.size), encodeExact(a.codec, v))
	a.size++
}

// Values decodes every element, in index order, and validates the §4.5
// invariants: no stored key begins with a zero nibble, and every stored
// key decodes to an index strictly less than Len().
func (a *Array[V]) Values() ([]V, error) {
	raw := a.trie.Entries()
	out := make([]V, a.size)
	seen := make([]bool, a.size)
	for _, e := range raw {
		if len(e.Path) > 0 && e.Path[0] == 0 {
			return nil, fmt.Errorf("container: array key begins with a zero nibble")
		}
		idx := pathToIndex(e.Path)
		if idx >= a.size {
			return nil, fmt.Errorf("container: array key %d out of range (len %d)", idx, a.size)
		}
		v, err := decodeExact(a.codec, e.Value)
		if err != nil {
			return nil, err
		}
		out[idx] = v
		seen[idx] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("container: array missing entry at index %d", i)
		}
	}
	return out, nil
}
