package mpt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voskan/merkstore/pkg/arena"
	"github.com/voskan/merkstore/pkg/backend"
	"github.com/voskan/merkstore/pkg/storedb"
)

func newTestTrie(t *testing.T) *Trie[uint64] {
	t.Helper()
	a := arena.New(backend.New(storedb.NewMemDB(), 0))
	return New[uint64](a, SizeAnn{})
}

func pathOf(b byte) Path { return BytesToNibbles([]byte{b}) }

func TestInsertLookupRemove(t *testing.T) {
	tr := newTestTrie(t)
	require.True(t, tr.IsEmpty())

	tr.Insert(pathOf(1), []byte("one"))
	tr.Insert(pathOf(2), []byte("two"))
	tr.Insert(pathOf(3), []byte("three"))

	v, ok := tr.Lookup(pathOf(2))
	require.True(t, ok)
	require.Equal(t, "two", string(v))

	n, ok := tr.RootAnnotation()
	require.True(t, ok)
	require.Equal(t, uint64(3), n)

	require.True(t, tr.Remove(pathOf(2)))
	_, ok = tr.Lookup(pathOf(2))
	require.False(t, ok)

	n, ok = tr.RootAnnotation()
	require.True(t, ok)
	require.Equal(t, uint64(2), n)

	require.False(t, tr.Remove(pathOf(2)), "removing an absent key reports false")
}

func TestInsertOverwritesExistingKey(t *testing.T) {
	tr := newTestTrie(t)
	tr.Insert(pathOf(1), []byte("a"))
	tr.Insert(pathOf(1), []byte("b"))

	v, ok := tr.Lookup(pathOf(1))
	require.True(t, ok)
	require.Equal(t, "b", string(v))

	n, _ := tr.RootAnnotation()
	require.Equal(t, uint64(1), n, "overwrite must not double-count")
}

func TestEntriesAreInAscendingPathOrder(t *testing.T) {
	tr := newTestTrie(t)
	for _, b := range []byte{5, 1, 9, 3} {
		tr.Insert(pathOf(b), []byte{b})
	}
	entries := tr.Entries()
	require.Len(t, entries, 4)
	for i := 1; i < len(entries); i++ {
		require.Equal(t, -1, compare(entries[i-1].Path, entries[i].Path))
	}
}

func TestFindPredecessor(t *testing.T) {
	tr := newTestTrie(t)
	for _, b := range []byte{1, 3, 5, 7} {
		tr.Insert(pathOf(b), []byte{b})
	}

	p, v, ok := tr.FindPredecessor(pathOf(6))
	require.True(t, ok)
	require.Equal(t, pathOf(5), p)
	require.Equal(t, []byte{5}, v)

	_, _, ok = tr.FindPredecessor(pathOf(1))
	require.False(t, ok, "no key precedes the smallest key")
}

func TestPruneRemovesUpToAndIncludingCutoff(t *testing.T) {
	tr := newTestTrie(t)
	for _, b := range []byte{1, 2, 3, 4, 5} {
		tr.Insert(pathOf(b), []byte{b})
	}

	removed := tr.Prune(pathOf(3))
	require.ElementsMatch(t, [][]byte{{1}, {2}, {3}}, removed)

	_, ok := tr.Lookup(pathOf(3))
	require.False(t, ok)
	_, ok = tr.Lookup(pathOf(4))
	require.True(t, ok)

	n, _ := tr.RootAnnotation()
	require.Equal(t, uint64(2), n)
}

func TestRootHashChangesWithContent(t *testing.T) {
	tr := newTestTrie(t)
	_, ok := tr.RootHash()
	require.False(t, ok, "empty trie has no root hash")

	tr.Insert(pathOf(1), []byte("a"))
	h1, ok := tr.RootHash()
	require.True(t, ok)

	tr.Insert(pathOf(2), []byte("b"))
	h2, ok := tr.RootHash()
	require.True(t, ok)
	require.NotEqual(t, h1, h2)

	require.True(t, tr.Remove(pathOf(2)))
	h3, ok := tr.RootHash()
	require.True(t, ok)
	require.Equal(t, h1, h3, "removing back to the same content reproduces the same hash")
}
