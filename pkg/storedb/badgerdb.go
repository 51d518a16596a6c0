package storedb

import (
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"github.com/voskan/merkstore/pkg/hash"
)

// BadgerDB is a Badger-backed, on-disk DB implementation: a log-structured
// key-value store well suited to merkstore's write-heavy, content-addressed
// workload. A node's key is the byte 'n' followed by its hash; a root
// count's key is the byte 'r' followed by the hash.
type BadgerDB struct {
	db *badger.DB
}

const (
	nodePrefix = 'n'
	rootPrefix = 'r'
)

func nodeKey(h hash.Hash) []byte {
	k := make([]byte, 1+hash.Size)
	k[0] = nodePrefix
	copy(k[1:], h[:])
	return k
}

func rootKey(h hash.Hash) []byte {
	k := make([]byte, 1+hash.Size)
	k[0] = rootPrefix
	copy(k[1:], h[:])
	return k
}

// OpenBadgerDB opens (creating if necessary) a Badger store at dir.
func OpenBadgerDB(dir string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerDB{db: db}, nil
}

func (b *BadgerDB) Close() error { return b.db.Close() }

func (b *BadgerDB) GetNode(h hash.Hash) (*Object, bool, error) {
	var obj *Object
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(h))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			o, err := DecodeObject(val)
			if err != nil {
				return err
			}
			obj = o
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return obj, obj != nil, nil
}

func (b *BadgerDB) InsertNode(h hash.Hash, obj *Object) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(h), EncodeObject(obj))
	})
}

func (b *BadgerDB) DeleteNode(h hash.Hash) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(nodeKey(h)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Delete(rootKey(h)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return nil
	})
}

func (b *BadgerDB) GetRootCount(h hash.Hash) (uint32, error) {
	var count uint32
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rootKey(h))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			r := newU32Reader(val)
			count = r
			return nil
		})
	})
	return count, err
}

func (b *BadgerDB) SetRootCount(h hash.Hash, count uint32) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if count == 0 {
			if err := txn.Delete(rootKey(h)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			return nil
		}
		return txn.Set(rootKey(h), u32Bytes(count))
	})
}

func (b *BadgerDB) GetRoots() (map[hash.Hash]uint32, error) {
	out := make(map[hash.Hash]uint32)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte{rootPrefix}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			h := hash.FromBytes(key[1:])
			err := item.Value(func(val []byte) error {
				out[h] = newU32Reader(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (b *BadgerDB) GetUnreachableKeys() ([]hash.Hash, error) {
	var out []hash.Hash
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte{nodePrefix}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			h := hash.FromBytes(key[1:])
			var refCount uint32
			if err := item.Value(func(val []byte) error {
				obj, err := DecodeObject(val)
				if err != nil {
					return err
				}
				refCount = obj.RefCount
				return nil
			}); err != nil {
				return err
			}
			if refCount != 0 {
				continue
			}
			rootItem, err := txn.Get(rootKey(h))
			if err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			if err == badger.ErrKeyNotFound || rootItem == nil {
				out = append(out, h)
			}
		}
		return nil
	})
	return out, err
}

func (b *BadgerDB) BatchUpdate(updates []Update) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, u := range updates {
		switch u.Kind {
		case UpdateInsert:
			if err := wb.Set(nodeKey(u.Hash), EncodeObject(u.Object)); err != nil {
				return err
			}
		case UpdateDelete:
			if err := wb.Delete(nodeKey(u.Hash)); err != nil {
				return err
			}
			if err := wb.Delete(rootKey(u.Hash)); err != nil {
				return err
			}
		case UpdateSetRootCount:
			if u.RootCount == 0 {
				if err := wb.Delete(rootKey(u.Hash)); err != nil {
					return err
				}
			} else {
				if err := wb.Set(rootKey(u.Hash), u32Bytes(u.RootCount)); err != nil {
					return err
				}
			}
		}
	}
	return wb.Flush()
}

func (b *BadgerDB) BatchGetNodes(hashes []hash.Hash) (map[hash.Hash]*Object, error) {
	out := make(map[hash.Hash]*Object, len(hashes))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, h := range hashes {
			item, err := txn.Get(nodeKey(h))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				obj, err := DecodeObject(val)
				if err != nil {
					return err
				}
				out[h] = obj
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// BFSGetNodes walks the DAG rooted at root breadth-first, level by level.
// Within a level, every node's children are fetched concurrently via
// errgroup — Badger's read-only transactions are safe for concurrent Get
// calls from multiple goroutines, and a level can be wide (a branch node
// alone has up to 16 children), which is exactly where this pays for
// itself on a disk-backed store.
func (b *BadgerDB) BFSGetNodes(root hash.Hash, maxDepth int, truncate bool, isCached func(hash.Hash) bool) ([]hash.Hash, error) {
	seen := map[hash.Hash]bool{root: true}
	level := []hash.Hash{root}
	depth := 0
	var visited []hash.Hash

	err := b.db.View(func(txn *badger.Txn) error {
		for len(level) > 0 {
			visited = append(visited, level...)

			type fetched struct {
				h        hash.Hash
				children []Child
			}
			results := make([]fetched, len(level))

			var g errgroup.Group
			for i, h := range level {
				i, h := i, h
				if maxDepth >= 0 && depth >= maxDepth {
					continue
				}
				if truncate && isCached != nil && isCached(h) && h != root {
					continue
				}
				g.Go(func() error {
					item, err := txn.Get(nodeKey(h))
					if err == badger.ErrKeyNotFound {
						return nil
					}
					if err != nil {
						return err
					}
					return item.Value(func(val []byte) error {
						obj, err := DecodeObject(val)
						if err != nil {
							return err
						}
						results[i] = fetched{h: h, children: obj.Children}
						return nil
					})
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			var next []hash.Hash
			var mu sync.Mutex
			for _, r := range results {
				for _, c := range r.children {
					if c.Kind != ChildIndirect {
						continue
					}
					mu.Lock()
					already := seen[c.Hash]
					if !already {
						seen[c.Hash] = true
					}
					mu.Unlock()
					if !already {
						next = append(next, c.Hash)
					}
				}
			}
			level = next
			depth++
		}
		return nil
	})
	return visited, err
}

func u32Bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func newU32Reader(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
