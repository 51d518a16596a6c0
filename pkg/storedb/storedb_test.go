package storedb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voskan/merkstore/pkg/hash"
)

// Every DB implementation must satisfy the same contract, so the bulk of
// this coverage is one table-driven suite run against both.
func openEachDB(t *testing.T) map[string]DB {
	t.Helper()
	dbs := map[string]DB{
		"MemDB": NewMemDB(),
	}
	badger, err := OpenBadgerDB(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = badger.Close() })
	dbs["BadgerDB"] = badger
	return dbs
}

func hashOf(b byte) hash.Hash {
	var h hash.Hash
	h[0] = b
	return h
}

func TestDBInsertGetDelete(t *testing.T) {
	for name, db := range openEachDB(t) {
		db := db
		t.Run(name, func(t *testing.T) {
			h := hashOf(1)
			obj := &Object{Data: []byte("hello"), RefCount: 0}
			require.NoError(t, db.InsertNode(h, obj))

			got, ok, err := db.GetNode(h)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("hello"), got.Data)

			require.NoError(t, db.DeleteNode(h))
			_, ok, err = db.GetNode(h)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDBRootCounts(t *testing.T) {
	for name, db := range openEachDB(t) {
		db := db
		t.Run(name, func(t *testing.T) {
			h := hashOf(2)
			require.NoError(t, db.InsertNode(h, &Object{Data: []byte("x")}))
			require.NoError(t, db.SetRootCount(h, 3))

			count, err := db.GetRootCount(h)
			require.NoError(t, err)
			require.Equal(t, uint32(3), count)

			roots, err := db.GetRoots()
			require.NoError(t, err)
			require.Equal(t, uint32(3), roots[h])

			require.NoError(t, db.SetRootCount(h, 0))
			count, err = db.GetRootCount(h)
			require.NoError(t, err)
			require.Equal(t, uint32(0), count)
		})
	}
}

func TestDBGetUnreachableKeys(t *testing.T) {
	for name, db := range openEachDB(t) {
		db := db
		t.Run(name, func(t *testing.T) {
			reachable := hashOf(3)
			unreachable := hashOf(4)
			require.NoError(t, db.InsertNode(reachable, &Object{Data: []byte("r"), RefCount: 1}))
			require.NoError(t, db.InsertNode(unreachable, &Object{Data: []byte("u"), RefCount: 0}))

			keys, err := db.GetUnreachableKeys()
			require.NoError(t, err)
			require.Contains(t, keys, unreachable)
			require.NotContains(t, keys, reachable)
		})
	}
}

func TestDBBatchUpdate(t *testing.T) {
	for name, db := range openEachDB(t) {
		db := db
		t.Run(name, func(t *testing.T) {
			h1, h2 := hashOf(5), hashOf(6)
			err := db.BatchUpdate([]Update{
				{Kind: UpdateInsert, Hash: h1, Object: &Object{Data: []byte("a")}},
				{Kind: UpdateInsert, Hash: h2, Object: &Object{Data: []byte("b")}},
				{Kind: UpdateSetRootCount, Hash: h1, RootCount: 2},
			})
			require.NoError(t, err)

			_, ok, err := db.GetNode(h2)
			require.NoError(t, err)
			require.True(t, ok)
			count, err := db.GetRootCount(h1)
			require.NoError(t, err)
			require.Equal(t, uint32(2), count)

			require.NoError(t, db.BatchUpdate([]Update{{Kind: UpdateDelete, Hash: h2}}))
			_, ok, err = db.GetNode(h2)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDBBFSGetNodes(t *testing.T) {
	for name, db := range openEachDB(t) {
		db := db
		t.Run(name, func(t *testing.T) {
			leaf := hashOf(10)
			mid := hashOf(11)
			root := hashOf(12)
			require.NoError(t, db.InsertNode(leaf, &Object{Data: []byte("leaf")}))
			require.NoError(t, db.InsertNode(mid, &Object{
				Data:     []byte("mid"),
				Children: []Child{{Kind: ChildIndirect, Hash: leaf}},
			}))
			require.NoError(t, db.InsertNode(root, &Object{
				Data:     []byte("root"),
				Children: []Child{{Kind: ChildIndirect, Hash: mid}},
			}))

			visited, err := db.BFSGetNodes(root, -1, false, nil)
			require.NoError(t, err)
			require.Equal(t, []hash.Hash{root, mid, leaf}, visited)
		})
	}
}

func TestDBBatchGetNodes(t *testing.T) {
	for name, db := range openEachDB(t) {
		db := db
		t.Run(name, func(t *testing.T) {
			h1, h2 := hashOf(20), hashOf(21)
			require.NoError(t, db.InsertNode(h1, &Object{Data: []byte("one")}))

			out, err := db.BatchGetNodes([]hash.Hash{h1, h2})
			require.NoError(t, err)
			require.Len(t, out, 1, "missing keys are simply absent")
			require.Equal(t, []byte("one"), out[h1].Data)
		})
	}
}
