package arena

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/voskan/merkstore/pkg/hash"
	"github.com/voskan/merkstore/pkg/serialize"
	"github.com/voskan/merkstore/pkg/storedb"
)

// nodeListTag versions the on-wire topologically sorted node list format
// (§4.3, "Serialization").
const nodeListTag = "node-list[v1]"

type treeNode struct {
	data        []byte
	childHashes []hash.Hash
}

// gather walks the full transitive closure reachable from c, resolving
// Indirect children through the backend and recursing into Inline ones
// directly, and records every distinct hash it visits exactly once. A
// node's children are fetched from the backend concurrently via errgroup —
// serialization is the one place the whole subtree is forced at once, so a
// wide fan-out (a branch node's up to 16 children) benefits from the same
// concurrent-read treatment storedb.BadgerDB.BFSGetNodes gives prefetch.
func gather(a *Arena, c storedb.Child, seen map[hash.Hash]treeNode) error {
	var mu sync.Mutex
	return gatherLocked(a, c, seen, &mu)
}

func gatherLocked(a *Arena, c storedb.Child, seen map[hash.Hash]treeNode, mu *sync.Mutex) error {
	mu.Lock()
	_, already := seen[c.Hash]
	mu.Unlock()
	if already {
		return nil
	}

	var data []byte
	var children []storedb.Child
	if c.Kind == storedb.ChildInline {
		data, children = c.Data, c.Children
	} else {
		obj, found := a.getBackend(c.Hash)
		if !found {
			return fmt.Errorf("arena: serialize: hash %s unreachable from the backend", c.Hash)
		}
		data, children = obj.Data, obj.Children
	}
	childHashes := make([]hash.Hash, len(children))
	for i, cc := range children {
		childHashes[i] = cc.Hash
	}

	mu.Lock()
	if _, already := seen[c.Hash]; already {
		mu.Unlock()
		return nil
	}
	seen[c.Hash] = treeNode{data: data, childHashes: childHashes}
	mu.Unlock()

	var g errgroup.Group
	for _, cc := range children {
		cc := cc
		g.Go(func() error { return gatherLocked(a, cc, seen, mu) })
	}
	return g.Wait()
}

// kahnOrder runs Kahn's algorithm over the dependency graph implied by
// nodes (an edge points from a parent to each of its children), yielding a
// deterministic order with every child preceding all of its parents. Ties
// are broken by hash value so that re-serializing a decoded graph always
// reproduces byte-identical output (the "normal form" check of §4.3 depends
// on this).
func kahnOrder(nodes map[hash.Hash]treeNode) []hash.Hash {
	remaining := make(map[hash.Hash]int, len(nodes))
	parentsOf := make(map[hash.Hash][]hash.Hash)
	for h, n := range nodes {
		remaining[h] = len(n.childHashes)
		for _, ch := range n.childHashes {
			parentsOf[ch] = append(parentsOf[ch], h)
		}
	}

	ready := make(map[hash.Hash]bool)
	for h, deg := range remaining {
		if deg == 0 {
			ready[h] = true
		}
	}

	order := make([]hash.Hash, 0, len(nodes))
	for len(order) < len(nodes) {
		var next hash.Hash
		found := false
		for h := range ready {
			if !found || h.String() < next.String() {
				next, found = h, true
			}
		}
		if !found {
			break // a cycle would mean corrupted internal state; stop rather than loop forever
		}
		delete(ready, next)
		order = append(order, next)
		for _, p := range parentsOf[next] {
			remaining[p]--
			if remaining[p] == 0 {
				ready[p] = true
			}
		}
	}
	return order
}

// EncodeNodeList serializes the full subtree reachable from root as a
// topologically sorted node list, optionally bounded by maxBytes (0 means
// unbounded). It is the wire-format counterpart of DecodeNodeList.
func EncodeNodeList(a *Arena, root Ref, maxBytes int) ([]byte, error) {
	seen := make(map[hash.Hash]treeNode)
	rootChild := root.ChildRef()
	if err := gather(a, rootChild, seen); err != nil {
		return nil, err
	}
	order := kahnOrder(seen)

	indexOf := make(map[hash.Hash]uint32, len(order))
	for i, h := range order {
		indexOf[h] = uint32(i)
	}

	w := serialize.NewWriter()
	w.Tag(nodeListTag)
	w.U32(uint32(len(order)))
	for _, h := range order {
		n := seen[h]
		w.Bytes_(n.data)
		w.U32(uint32(len(n.childHashes)))
		for _, ch := range n.childHashes {
			w.U32(indexOf[ch])
		}
	}
	out := w.Bytes()
	if maxBytes > 0 && len(out) > maxBytes {
		return nil, fmt.Errorf("arena: encoded node list of %d bytes exceeds budget of %d", len(out), maxBytes)
	}
	return out, nil
}

// DecodeNodeList parses a topologically sorted node list into the root's
// raw child representation (always an Inline storedb.Child, fully
// materialized down to its leaves). It rejects dangling child indices but
// performs no type-specific validation; callers (DeserializeSp) decode the
// result with the type's Decoder, which applies per-type invariant checks,
// while WrapChild enforces the MaxDecodeDepth limit on each child.
func DecodeNodeList(r *serialize.Reader) (storedb.Child, error) {
	if err := r.ExpectTag(nodeListTag); err != nil {
		return storedb.Child{}, err
	}
	count, err := r.U32()
	if err != nil {
		return storedb.Child{}, err
	}
	if count == 0 {
		return storedb.Child{}, fmt.Errorf("%w: empty node list", serialize.ErrMalformedInput)
	}

	hasher := hash.New()
	built := make([]storedb.Child, 0, count)
	for i := uint32(0); i < count; i++ {
		data, err := r.Bytes_()
		if err != nil {
			return storedb.Child{}, err
		}
		childCount, err := r.U32()
		if err != nil {
			return storedb.Child{}, err
		}
		children := make([]storedb.Child, childCount)
		childHashes := make([]hash.Hash, childCount)
		for j := uint32(0); j < childCount; j++ {
			idx, err := r.U32()
			if err != nil {
				return storedb.Child{}, err
			}
			if idx >= i {
				return storedb.Child{}, fmt.Errorf("%w: child index %d out of range at node %d", serialize.ErrMalformedInput, idx, i)
			}
			children[j] = built[idx]
			childHashes[j] = built[idx].Hash
		}
		h := hasher.Node(data, childHashes)
		built = append(built, storedb.Child{Kind: storedb.ChildInline, Hash: h, Data: data, Children: children})
	}
	return built[len(built)-1], nil
}
