// Package storedb defines the synchronous key-value database contract that
// the storage backend (pkg/backend) is built on, plus two reference
// implementations: an in-memory map (memdb, for tests and the default
// in-process store) and a Badger-backed on-disk store (badgerdb). The
// contract is intentionally narrow: the backend is the only caller, and it
// treats every method here as infallible in practice (§7 of the design
// docs) — a returned error is a sign of a broken DB adapter and callers are
// expected to panic rather than retry.
//
// © 2025 merkstore authors. MIT License.
package storedb

import (
	"github.com/voskan/merkstore/pkg/hash"
)

// ChildKind distinguishes how a child reference is represented in an Object
// (see the "Node Identity" design note).
type ChildKind uint8

const (
	// ChildIndirect carries only the child's content hash; the child is
	// resolved through the backend on demand.
	ChildIndirect ChildKind = iota
	// ChildInline embeds the child's full data and its own children
	// recursively; it is never separately stored.
	ChildInline
)

// Child is a single child reference of a stored object.
type Child struct {
	Kind ChildKind

	// Hash is always populated: for ChildIndirect it is the only
	// identifying information; for ChildInline it is the cached content
	// hash of the inline value (computed once, never recomputed).
	Hash hash.Hash

	// Data and Children are populated only when Kind == ChildInline.
	Data     []byte
	Children []Child
}

// Object is a stored node: its payload bytes, its ordered child
// references, and its reference count. RefCount counts parent→child edges
// from other objects in the backend; root counts are tracked separately
// (see RootCount / the roots map).
type Object struct {
	Data     []byte
	Children []Child
	RefCount uint32
}

// Clone returns a copy of o with its own Data and Children slices, so that
// callers changing a returned Object's fields or child entries never corrupt
// backend- or DB-owned state. The Data and Children of an inline child are
// shared with o, not copied.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	cp := &Object{
		Data:     append([]byte(nil), o.Data...),
		Children: append([]Child(nil), o.Children...),
		RefCount: o.RefCount,
	}
	return cp
}

// UpdateKind distinguishes the three kinds of batched mutation a DB must
// support atomically (§6.1).
type UpdateKind uint8

const (
	UpdateInsert UpdateKind = iota
	UpdateDelete
	UpdateSetRootCount
)

// Update is one entry of a BatchUpdate call.
type Update struct {
	Kind      UpdateKind
	Hash      hash.Hash
	Object    *Object // set when Kind == UpdateInsert
	RootCount uint32  // set when Kind == UpdateSetRootCount
}

// DB is the storage contract the backend requires (§6.1). Implementations
// must apply BatchUpdate atomically from the caller's perspective: either
// all entries land, or (on a crash) none do.
type DB interface {
	GetNode(h hash.Hash) (*Object, bool, error)
	InsertNode(h hash.Hash, obj *Object) error
	DeleteNode(h hash.Hash) error

	GetRootCount(h hash.Hash) (uint32, error)
	SetRootCount(h hash.Hash, count uint32) error
	GetRoots() (map[hash.Hash]uint32, error)

	// GetUnreachableKeys returns every key with ref_count == 0 and
	// root_count == 0, the GC mark phase's starting candidate set.
	GetUnreachableKeys() ([]hash.Hash, error)

	// BatchUpdate applies every entry atomically.
	BatchUpdate(updates []Update) error

	// BatchGetNodes fetches many nodes in one round-trip; missing keys are
	// simply absent from the result map.
	BatchGetNodes(hashes []hash.Hash) (map[hash.Hash]*Object, error)

	// BFSGetNodes performs a breadth-first walk from root up to maxDepth
	// levels (all levels if maxDepth < 0), skipping descent into any hash
	// for which isCached returns true when truncate is set. It returns
	// every hash visited, in BFS order, for the backend's pre_fetch.
	BFSGetNodes(root hash.Hash, maxDepth int, truncate bool, isCached func(hash.Hash) bool) ([]hash.Hash, error)

	// Close releases any resources (file handles, connections) held by
	// the DB. Safe to call multiple times.
	Close() error
}
