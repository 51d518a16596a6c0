package container

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voskan/merkstore/pkg/arena"
	"github.com/voskan/merkstore/pkg/backend"
	"github.com/voskan/merkstore/pkg/serialize"
	"github.com/voskan/merkstore/pkg/storedb"
)

func newTestArena(t *testing.T) *arena.Arena {
	t.Helper()
	return arena.New(backend.New(storedb.NewMemDB(), 0))
}

func TestHashMapBasics(t *testing.T) {
	a := newTestArena(t)
	m := NewHashMap[string, uint64](a, StringCodec, Uint64Codec)

	m.Insert("alice", 30)
	m.Insert("bob", 41)

	v, ok := m.Get("alice")
	require.True(t, ok)
	require.Equal(t, uint64(30), v)
	require.True(t, m.Contains("bob"))
	require.Equal(t, uint64(2), m.Len())

	require.True(t, m.Remove("alice"))
	require.False(t, m.Contains("alice"))
	require.Equal(t, uint64(1), m.Len())

	entries, err := m.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "bob", entries[0].Key)
}

func TestHashSetUnionAndSubset(t *testing.T) {
	a := newTestArena(t)
	s1 := NewHashSet[string](a, StringCodec)
	s2 := NewHashSet[string](a, StringCodec)

	require.True(t, s1.Insert("a"))
	require.False(t, s1.Insert("a"), "inserting an existing member reports false")
	s1.Insert("b")

	s2.Insert("b")
	s2.Insert("c")

	added, err := s1.Union(s2)
	require.NoError(t, err)
	require.Equal(t, 1, added, "only c is new to s1")
	require.True(t, s1.Contains("c"))

	sub := NewHashSet[string](a, StringCodec)
	sub.Insert("a")
	ok, err := sub.IsSubset(s1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s1.IsSubset(sub)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOrderedMapPreservesKeyOrder(t *testing.T) {
	a := newTestArena(t)
	m := NewOrderedMap[uint64, string](a, BigEndianUint64Codec, StringCodec)

	m.Insert(30, "c")
	m.Insert(10, "a")
	m.Insert(20, "b")

	entries, err := m.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, []uint64{10, 20, 30}, []uint64{entries[0].Key, entries[1].Key, entries[2].Key})

	pred, ok, err := m.Predecessor(25)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(20), pred.Key)

	removed, err := m.PruneUpTo(20)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, removed)
	require.False(t, m.Contains(10))
	require.True(t, m.Contains(30))
}

func TestArrayPushGetSet(t *testing.T) {
	a := newTestArena(t)
	arr := NewArray[string](a, StringCodec)

	arr.Push("x")
	arr.Push("y")
	arr.Push("z")
	require.Equal(t, uint64(3), arr.Len())

	v, ok := arr.Get(1)
	require.True(t, ok)
	require.Equal(t, "y", v)

	arr.Set(1, "Y")
	v, _ = arr.Get(1)
	require.Equal(t, "Y", v)

	values, err := arr.Values()
	require.NoError(t, err)
	require.Equal(t, []string{"x", "Y", "z"}, values)

	require.Panics(t, func() { arr.Set(10, "oob") })
}

func TestMultiSetCounting(t *testing.T) {
	a := newTestArena(t)
	ms := NewMultiSet[string](a, StringCodec)

	ms.Insert("a", 3)
	ms.Insert("a", 2)
	require.Equal(t, uint64(5), ms.Count("a"))

	require.True(t, ms.RemoveN("a", 4))
	require.Equal(t, uint64(1), ms.Count("a"))
	require.True(t, ms.Contains("a"))

	require.True(t, ms.Remove("a"))
	require.False(t, ms.Contains("a"))
	require.Equal(t, uint64(0), ms.Count("a"))
}

func TestMultiSetHasSubset(t *testing.T) {
	a := newTestArena(t)
	small := NewMultiSet[string](a, StringCodec)
	big := NewMultiSet[string](a, StringCodec)

	small.Insert("a", 2)
	big.Insert("a", 5)
	big.Insert("b", 1)

	ok, err := small.HasSubset(big)
	require.NoError(t, err)
	require.True(t, ok)

	small.Insert("a", 10)
	ok, err = small.HasSubset(big)
	require.NoError(t, err)
	require.False(t, ok)
}

var stringSliceCodec = Codec[[]string]{
	Encode: func(w *serialize.Writer, vs []string) {
		w.U32(uint32(len(vs)))
		for _, v := range vs {
			w.Bytes_([]byte(v))
		}
	},
	Decode: func(r *serialize.Reader) ([]string, error) {
		n, err := r.U32()
		if err != nil {
			return nil, err
		}
		out := make([]string, n)
		for i := range out {
			b, err := r.Bytes_()
			if err != nil {
				return nil, err
			}
			out[i] = string(b)
		}
		return out, nil
	},
}

var stringBag = Bag[[]string, string]{
	Append: func(x, y []string) []string { return append(append([]string(nil), x...), y...) },
	Values: func(c []string) []string { return c },
	Single: func(v string) []string { return []string{v} },
}

func TestTimeFilterMapUpsertAndFilter(t *testing.T) {
	a := newTestArena(t)
	tm := NewTimeFilterMap[[]string, string](a, stringSliceCodec, StringCodec, stringBag)

	tm.Upsert(100, []string{"a", "b"})
	tm.Upsert(100, []string{"c"})
	tm.Insert(200, "d")

	c, ok, err := tm.Get(100)
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"a", "b", "c"}, c)

	require.True(t, tm.Contains("b"))
	require.True(t, tm.Contains("d"))

	c, ok, err = tm.Get(150)
	require.NoError(t, err)
	require.True(t, ok, "150 falls back to the predecessor slot at 100")
	require.ElementsMatch(t, []string{"a", "b", "c"}, c)

	require.NoError(t, tm.Filter(150))
	require.False(t, tm.Contains("a"), "entries at 100 were pruned")
	require.True(t, tm.Contains("d"), "entries at 200 survive a filter below them")

	_, ok, err = tm.Get(100)
	require.NoError(t, err)
	require.False(t, ok)
}
