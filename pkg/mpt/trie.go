package mpt

import (
	"bytes"

	"github.com/voskan/merkstore/pkg/arena"
	"github.com/voskan/merkstore/pkg/hash"
)

// Trie is a persistent 16-ary Merkle Patricia Trie over Path keys (§4.1).
// Every mutating operation returns (conceptually) a brand-new trie sharing
// all unchanged subtrees with the original — in this Go port that sharing
// is expressed by simply not touching the arena.Sp pointers of untouched
// subtrees, and Trie itself just tracks whichever root is current.
type Trie[A any] struct {
	a    *arena.Arena
	ann  Annotation[A]
	dec  arena.Decoder[Node[A]]
	root *arena.Sp[Node[A]] // nil: empty trie
}

// New returns an empty trie.
func New[A any](a *arena.Arena, ann Annotation[A]) *Trie[A] {
	return &Trie[A]{a: a, ann: ann, dec: NodeDecoder[A](ann)}
}

// Wrap builds a Trie view over an already-existing root, e.g. one loaded
// via arena.GetLazy from a container's stored root hash.
func Wrap[A any](a *arena.Arena, ann Annotation[A], root *arena.Sp[Node[A]]) *Trie[A] {
	return &Trie[A]{a: a, ann: ann, dec: NodeDecoder[A](ann), root: root}
}

// Root returns the current root pointer, or nil if the trie is empty.
func (t *Trie[A]) Root() *arena.Sp[Node[A]] { return t.root }

// RootHash returns the content hash of the current root, and false if the
// trie is empty (there is no hash for an empty trie).
func (t *Trie[A]) RootHash() (hash.Hash, bool) {
	if t.root == nil {
		return hash.Zero, false
	}
	return t.root.Hash(), true
}

// IsEmpty reports whether the trie currently has no entries.
func (t *Trie[A]) IsEmpty() bool { return t.root == nil }

// RootAnnotation returns the root node's annotation (e.g. subtree size for
// SizeAnn), or false for an empty trie.
func (t *Trie[A]) RootAnnotation() (A, bool) {
	if t.root == nil {
		var zero A
		return zero, false
	}
	return t.load(t.root).Ann(), true
}

func (t *Trie[A]) load(p *arena.Sp[Node[A]]) Node[A] { return p.Get(t.dec) }

func (t *Trie[A]) allocLeaf(value []byte) arena.Sp[Node[A]] {
	n := Node[A]{kind: KindLeaf, value: value, ann: t.ann.FromLeaf(value)}
	return arena.Alloc[Node[A]](t.a, n)
}

func (t *Trie[A]) allocExtension(path Path, child arena.Sp[Node[A]]) arena.Sp[Node[A]] {
	n := Node[A]{kind: KindExtension, path: append([]byte(nil), path...), child: child, ann: t.load(&child).Ann()}
	return arena.Alloc[Node[A]](t.a, n)
}

func (t *Trie[A]) allocBranch(children [16]*arena.Sp[Node[A]], value []byte) arena.Sp[Node[A]] {
	acc := t.ann.Identity()
	if value != nil {
		acc = t.ann.Combine(acc, t.ann.FromLeaf(value))
	}
	for _, c := range children {
		if c != nil {
			acc = t.ann.Combine(acc, t.load(c).Ann())
		}
	}
	n := Node[A]{kind: KindBranch, children: children, value: value, ann: acc}
	return arena.Alloc[Node[A]](t.a, n)
}

// buildBranchOrCollapse builds the appropriate node for children/value,
// normalizing per §3.5: a branch with one child and no value collapses
// into an extension (merging with that child if it is itself an extension,
// so adjacent extensions never occur); a branch with no children holds its
// value as a bare leaf.
func (t *Trie[A]) buildBranchOrCollapse(children [16]*arena.Sp[Node[A]], value []byte) arena.Sp[Node[A]] {
	count, only := 0, -1
	for i, c := range children {
		if c != nil {
			count++
			only = i
		}
	}
	switch {
	case count == 0 && value != nil:
		return t.allocLeaf(value)
	case count == 0:
		panic("mpt: attempted to build an empty branch with no value")
	case count == 1 && value == nil:
		child := *children[only]
		childNode := t.load(&child)
		if childNode.kind == KindExtension {
			merged := append(Path{byte(only)}, childNode.path...)
			return t.allocExtension(merged, childNode.child)
		}
		return t.allocExtension(Path{byte(only)}, child)
	default:
		return t.allocBranch(children, value)
	}
}

// reextend wraps child in an extension over remaining, or returns child
// unchanged if remaining is empty. Used only where child is known (by
// normalization) never to itself be an Extension.
func (t *Trie[A]) reextend(remaining Path, child arena.Sp[Node[A]]) arena.Sp[Node[A]] {
	if len(remaining) == 0 {
		return child
	}
	return t.allocExtension(remaining, child)
}

// reextendMerge is like reextend but also merges with child if it has
// become an Extension itself (possible after a remove/prune rebuild),
// preserving the no-adjacent-extensions invariant.
func (t *Trie[A]) reextendMerge(remaining Path, child arena.Sp[Node[A]]) arena.Sp[Node[A]] {
	childNode := t.load(&child)
	if childNode.kind == KindExtension {
		merged := append(append(Path{}, remaining...), childNode.path...)
		return t.allocExtension(merged, childNode.child)
	}
	return t.reextend(remaining, child)
}

func bytesEqual(a, b []byte) bool { return bytes.Equal(a, b) }

// Insert produces a new trie with value stored at path, overwriting any
// existing value there (§4.1).
func (t *Trie[A]) Insert(path Path, value []byte) {
	n := t.insertAt(t.root, path, value)
	t.root = &n
}

func (t *Trie[A]) insertAt(node *arena.Sp[Node[A]], path Path, value []byte) arena.Sp[Node[A]] {
	if node == nil {
		if len(path) == 0 {
			return t.allocLeaf(value)
		}
		return t.allocExtension(path, t.allocLeaf(value))
	}
	n := t.load(node)
	switch n.kind {
	case KindLeaf:
		if len(path) == 0 {
			if bytesEqual(n.value, value) {
				return *node
			}
			return t.allocLeaf(value)
		}
		var children [16]*arena.Sp[Node[A]]
		newLeaf := t.insertAt(nil, path[1:], value)
		children[path[0]] = &newLeaf
		return t.allocBranch(children, n.value)

	case KindExtension:
		ep := Path(n.path)
		cp := commonPrefixLen(ep, path)
		switch {
		case cp == len(ep):
			newChild := t.insertAt(&n.child, path[cp:], value)
			return t.allocExtension(ep, newChild)
		default:
			var children [16]*arena.Sp[Node[A]]
			oldChild := t.reextend(ep[cp+1:], n.child)
			children[ep[cp]] = &oldChild

			var branchValue []byte
			if cp == len(path) {
				branchValue = value
			} else {
				newLeaf := t.insertAt(nil, path[cp+1:], value)
				children[path[cp]] = &newLeaf
			}
			branch := t.allocBranch(children, branchValue)
			if cp == 0 {
				return branch
			}
			return t.allocExtension(ep[:cp], branch)
		}

	case KindBranch:
		if len(path) == 0 {
			if bytesEqual(n.value, value) {
				return *node
			}
			return t.allocBranch(n.children, value)
		}
		idx := path[0]
		newChild := t.insertAt(n.children[idx], path[1:], value)
		children := n.children
		children[idx] = &newChild
		return t.allocBranch(children, n.value)
	}
	panic("mpt: unreachable node kind")
}

// Remove deletes the entry at path, if present, returning whether anything
// was removed. Re-normalizes on the way back up (§4.1).
func (t *Trie[A]) Remove(path Path) bool {
	newRoot, ok := t.removeAt(t.root, path)
	if !ok {
		return false
	}
	t.root = newRoot
	return true
}

func (t *Trie[A]) removeAt(node *arena.Sp[Node[A]], path Path) (*arena.Sp[Node[A]], bool) {
	if node == nil {
		return nil, false
	}
	n := t.load(node)
	switch n.kind {
	case KindLeaf:
		if len(path) != 0 {
			return node, false
		}
		return nil, true

	case KindExtension:
		ep := Path(n.path)
		cp := commonPrefixLen(ep, path)
		if cp != len(ep) {
			return node, false
		}
		newChild, ok := t.removeAt(&n.child, path[cp:])
		if !ok {
			return node, false
		}
		if newChild == nil {
			return nil, true
		}
		merged := t.reextendMerge(ep, *newChild)
		return &merged, true

	case KindBranch:
		if len(path) == 0 {
			if n.value == nil {
				return node, false
			}
			collapsed := t.buildBranchOrCollapse(n.children, nil)
			return &collapsed, true
		}
		idx := path[0]
		newChild, ok := t.removeAt(n.children[idx], path[1:])
		if !ok {
			return node, false
		}
		children := n.children
		children[idx] = newChild
		collapsed := t.buildBranchOrCollapse(children, n.value)
		return &collapsed, true
	}
	panic("mpt: unreachable node kind")
}

// Lookup returns the value stored at path, if any.
func (t *Trie[A]) Lookup(path Path) ([]byte, bool) {
	node := t.root
	for node != nil {
		n := t.load(node)
		switch n.kind {
		case KindLeaf:
			if len(path) == 0 {
				return n.value, true
			}
			return nil, false
		case KindExtension:
			ep := Path(n.path)
			cp := commonPrefixLen(ep, path)
			if cp != len(ep) {
				return nil, false
			}
			path = path[cp:]
			node = &n.child
		case KindBranch:
			if len(path) == 0 {
				return n.value, n.value != nil
			}
			idx := path[0]
			path = path[1:]
			node = n.children[idx]
		}
	}
	return nil, false
}

// FindPredecessor returns the largest key strictly less than target, in
// nibble-lexicographic order, or false if none exists (§4.1).
func (t *Trie[A]) FindPredecessor(target Path) (Path, []byte, bool) {
	var bestPrefix Path
	var bestNode *arena.Sp[Node[A]]
	var bestValue []byte
	haveBest := false

	node := t.root
	prefix := Path{}
	remaining := target

	for node != nil {
		n := t.load(node)
		switch n.kind {
		case KindLeaf:
			if len(remaining) > 0 {
				// The leaf's key is a proper prefix of target, so it precedes it.
				bestPrefix = append(Path{}, prefix...)
				bestNode = nil
				bestValue = n.value
				haveBest = true
			}
			node = nil

		case KindExtension:
			ep := Path(n.path)
			cp := commonPrefixLen(ep, remaining)
			switch {
			case cp == len(ep):
				prefix = append(append(Path{}, prefix...), ep...)
				remaining = remaining[cp:]
				node = &n.child
			case cp == len(remaining):
				node = nil
			default:
				if ep[cp] < remaining[cp] {
					bestPrefix = append(append(Path{}, prefix...), ep...)
					bestNode = &n.child
					bestValue = nil
					haveBest = true
				}
				node = nil
			}

		case KindBranch:
			if len(remaining) == 0 {
				node = nil
				continue
			}
			idx := remaining[0]
			foundSibling := false
			for i := int(idx) - 1; i >= 0; i-- {
				if n.children[i] != nil {
					bestPrefix = append(append(Path{}, prefix...), byte(i))
					bestNode = n.children[i]
					bestValue = nil
					haveBest = true
					foundSibling = true
					break
				}
			}
			if !foundSibling && n.value != nil {
				bestPrefix = append(Path{}, prefix...)
				bestNode = nil
				bestValue = n.value
				haveBest = true
			}
			if n.children[idx] != nil {
				prefix = append(append(Path{}, prefix...), idx)
				remaining = remaining[1:]
				node = n.children[idx]
			} else {
				node = nil
			}
		}
	}

	if !haveBest {
		return nil, nil, false
	}
	if bestNode == nil {
		return bestPrefix, bestValue, true
	}
	p, v := t.rightmostLeaf(bestPrefix, *bestNode)
	return p, v, true
}

func (t *Trie[A]) rightmostLeaf(prefix Path, node arena.Sp[Node[A]]) (Path, []byte) {
	n := t.load(&node)
	switch n.kind {
	case KindLeaf:
		return prefix, n.value
	case KindExtension:
		return t.rightmostLeaf(append(append(Path{}, prefix...), n.path...), n.child)
	case KindBranch:
		for i := 15; i >= 0; i-- {
			if n.children[i] != nil {
				return t.rightmostLeaf(append(append(Path{}, prefix...), byte(i)), *n.children[i])
			}
		}
		if n.value != nil {
			return prefix, n.value
		}
		panic("mpt: malformed branch with no children and no value")
	}
	panic("mpt: unreachable node kind")
}

// Prune removes every entry whose path is lexicographically ≤ cutoff,
// returning the removed values (§4.1).
func (t *Trie[A]) Prune(cutoff Path) [][]byte {
	removed := [][]byte{}
	t.root = t.pruneAt(t.root, cutoff, &removed)
	return removed
}

func (t *Trie[A]) pruneAt(node *arena.Sp[Node[A]], remaining Path, removed *[][]byte) *arena.Sp[Node[A]] {
	if node == nil {
		return nil
	}
	n := t.load(node)
	switch n.kind {
	case KindLeaf:
		*removed = append(*removed, n.value)
		return nil

	case KindExtension:
		ep := Path(n.path)
		cp := commonPrefixLen(ep, remaining)
		switch {
		case cp == len(ep):
			newChild := t.pruneAt(&n.child, remaining[cp:], removed)
			if newChild == nil {
				return nil
			}
			merged := t.reextendMerge(ep, *newChild)
			return &merged
		case cp == len(remaining):
			return node
		default:
			if ep[cp] < remaining[cp] {
				t.collectAll(&n.child, removed)
				return nil
			}
			return node
		}

	case KindBranch:
		if n.value != nil {
			*removed = append(*removed, n.value)
		}
		children := n.children
		if len(remaining) > 0 {
			idx := remaining[0]
			for i := 0; i < int(idx); i++ {
				if children[i] != nil {
					t.collectAll(children[i], removed)
					children[i] = nil
				}
			}
			if children[idx] != nil {
				children[idx] = t.pruneAt(children[idx], remaining[1:], removed)
			}
		}
		empty := true
		for _, c := range children {
			if c != nil {
				empty = false
				break
			}
		}
		if empty {
			return nil
		}
		collapsed := t.buildBranchOrCollapse(children, nil)
		return &collapsed
	}
	panic("mpt: unreachable node kind")
}

func (t *Trie[A]) collectAll(node *arena.Sp[Node[A]], out *[][]byte) {
	if node == nil {
		return
	}
	n := t.load(node)
	switch n.kind {
	case KindLeaf:
		*out = append(*out, n.value)
	case KindExtension:
		t.collectAll(&n.child, out)
	case KindBranch:
		if n.value != nil {
			*out = append(*out, n.value)
		}
		for _, c := range n.children {
			t.collectAll(c, out)
		}
	}
}

// Entry is one (path, value) pair yielded by Iter/Entries.
type Entry struct {
	Path  Path
	Value []byte
}

// Iter visits every entry in deterministic (traversal) order, stopping
// early if yield returns false.
func (t *Trie[A]) Iter(yield func(Path, []byte) bool) {
	t.iterAt(t.root, Path{}, yield)
}

func (t *Trie[A]) iterAt(node *arena.Sp[Node[A]], prefix Path, yield func(Path, []byte) bool) bool {
	if node == nil {
		return true
	}
	n := t.load(node)
	switch n.kind {
	case KindLeaf:
		return yield(append(Path{}, prefix...), n.value)
	case KindExtension:
		return t.iterAt(&n.child, append(append(Path{}, prefix...), n.path...), yield)
	case KindBranch:
		if n.value != nil {
			if !yield(append(Path{}, prefix...), n.value) {
				return false
			}
		}
		for i, c := range n.children {
			if c != nil {
				if !t.iterAt(c, append(append(Path{}, prefix...), byte(i)), yield) {
					return false
				}
			}
		}
	}
	return true
}

// Entries collects every (path, value) pair via Iter.
func (t *Trie[A]) Entries() []Entry {
	var out []Entry
	t.Iter(func(p Path, v []byte) bool {
		out = append(out, Entry{Path: p, Value: v})
		return true
	})
	return out
}
