package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voskan/merkstore/pkg/hash"
	"github.com/voskan/merkstore/pkg/storedb"
)

func hashOf(b byte) hash.Hash {
	var h hash.Hash
	h[0] = b
	return h
}

func TestCacheGetUncache(t *testing.T) {
	db := storedb.NewMemDB()
	b := New(db, 0)

	h := hashOf(1)
	b.Cache(h, []byte("payload"), nil, nil)

	obj, ok := b.Get(h)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), obj.Data)

	b.Uncache(h)
	_, ok = b.Get(h)
	require.False(t, ok, "uncaching a key with no root and no children drops it entirely")
}

func TestPersistSurvivesFlushAndReload(t *testing.T) {
	db := storedb.NewMemDB()
	b := New(db, 0)

	h := hashOf(2)
	b.Cache(h, []byte("root value"), nil, nil)
	b.Persist(h)
	b.FlushAllChangesToDB()

	require.Equal(t, 0, b.WriteCacheLen(), "a full flush empties the write cache")

	count, err := db.GetRootCount(h)
	require.NoError(t, err)
	require.Equal(t, uint32(1), count)

	obj, ok, err := db.GetNode(h)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("root value"), obj.Data)
}

func TestGenerationChangesAcrossFlush(t *testing.T) {
	db := storedb.NewMemDB()
	b := New(db, 0)

	gen0 := b.Stats().Generation
	require.NotEqual(t, gen0.String(), "00000000-0000-0000-0000-000000000000")

	h := hashOf(3)
	b.Cache(h, []byte("x"), nil, nil)
	b.Persist(h)
	b.FlushAllChangesToDB()

	gen1 := b.Stats().Generation
	require.NotEqual(t, gen0, gen1, "flushing mints a fresh generation id")
}

func TestGCRemovesUnreachableUnpersisted(t *testing.T) {
	db := storedb.NewMemDB()
	b := New(db, 0)

	root := hashOf(4)
	child := hashOf(5)
	b.Cache(child, []byte("child"), nil, nil)
	b.Cache(root, []byte("root"), []storedb.Child{{Kind: storedb.ChildIndirect, Hash: child}}, []hash.Hash{child})
	b.Persist(root)
	b.FlushAllChangesToDB()

	// Release the live-insert tokens (the arena releases these once the
	// caller's handles are dropped) so GC is free to consider them.
	b.Uncache(root)
	b.Uncache(child)

	b.Unpersist(root)
	b.FlushAllChangesToDB()
	b.GC()

	_, foundRoot, _ := db.GetNode(root)
	require.False(t, foundRoot, "an unpersisted, unreferenced root is collected")
	_, foundChild, _ := db.GetNode(child)
	require.False(t, foundChild, "its only child becomes unreachable too")
}
