package storedb

import (
	"sync"

	"github.com/voskan/merkstore/pkg/hash"
)

// MemDB is the in-memory reference implementation of DB, used by tests and
// as the backing store for the process-wide in-memory default storage
// (§6.3). It is safe for concurrent use.
type MemDB struct {
	mu    sync.RWMutex
	nodes map[hash.Hash]*Object
	roots map[hash.Hash]uint32
}

// NewMemDB returns an empty in-memory DB.
func NewMemDB() *MemDB {
	return &MemDB{
		nodes: make(map[hash.Hash]*Object),
		roots: make(map[hash.Hash]uint32),
	}
}

func (m *MemDB) GetNode(h hash.Hash) (*Object, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.nodes[h]
	if !ok {
		return nil, false, nil
	}
	return obj.Clone(), true, nil
}

func (m *MemDB) InsertNode(h hash.Hash, obj *Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[h] = obj.Clone()
	return nil
}

func (m *MemDB) DeleteNode(h hash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, h)
	delete(m.roots, h)
	return nil
}

func (m *MemDB) GetRootCount(h hash.Hash) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roots[h], nil
}

func (m *MemDB) SetRootCount(h hash.Hash, count uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if count == 0 {
		delete(m.roots, h)
	} else {
		m.roots[h] = count
	}
	return nil
}

func (m *MemDB) GetRoots() (map[hash.Hash]uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[hash.Hash]uint32, len(m.roots))
	for k, v := range m.roots {
		out[k] = v
	}
	return out, nil
}

func (m *MemDB) GetUnreachableKeys() ([]hash.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []hash.Hash
	for k, obj := range m.nodes {
		if obj.RefCount == 0 && m.roots[k] == 0 {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *MemDB) BatchUpdate(updates []Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		switch u.Kind {
		case UpdateInsert:
			m.nodes[u.Hash] = u.Object.Clone()
		case UpdateDelete:
			delete(m.nodes, u.Hash)
			delete(m.roots, u.Hash)
		case UpdateSetRootCount:
			if u.RootCount == 0 {
				delete(m.roots, u.Hash)
			} else {
				m.roots[u.Hash] = u.RootCount
			}
		}
	}
	return nil
}

func (m *MemDB) BatchGetNodes(hashes []hash.Hash) (map[hash.Hash]*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[hash.Hash]*Object, len(hashes))
	for _, h := range hashes {
		if obj, ok := m.nodes[h]; ok {
			out[h] = obj.Clone()
		}
	}
	return out, nil
}

func (m *MemDB) BFSGetNodes(root hash.Hash, maxDepth int, truncate bool, isCached func(hash.Hash) bool) ([]hash.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type frontierEntry struct {
		h     hash.Hash
		depth int
	}
	seen := map[hash.Hash]bool{root: true}
	queue := []frontierEntry{{root, 0}}
	var visited []hash.Hash

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited = append(visited, cur.h)

		if truncate && isCached != nil && isCached(cur.h) && cur.h != root {
			continue
		}
		if maxDepth >= 0 && cur.depth >= maxDepth {
			continue
		}
		obj, ok := m.nodes[cur.h]
		if !ok {
			continue
		}
		for _, c := range obj.Children {
			if c.Kind != ChildIndirect || seen[c.Hash] {
				continue
			}
			seen[c.Hash] = true
			queue = append(queue, frontierEntry{c.Hash, cur.depth + 1})
		}
	}
	return visited, nil
}

func (m *MemDB) Close() error { return nil }
