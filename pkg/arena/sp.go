package arena

import (
	"fmt"

	"github.com/voskan/merkstore/pkg/hash"
	"github.com/voskan/merkstore/pkg/serialize"
	"github.com/voskan/merkstore/pkg/storedb"
)

// Sp is a smart pointer into an Arena (§3.3/§3.4). It is always either:
//
//   - Inline: self-contained, carrying its own decoded value and never
//     touching the arena or backend at all, or
//   - Indirect: backed by a tracked content hash, with its payload either
//     already resolved (eager) or not yet loaded (lazy).
//
// The zero Sp is not valid; every Sp must come from Alloc, Get, GetLazy, or
// Clone of an existing one.
type Sp[T any] struct {
	inline   bool
	rootHash hash.Hash

	// inlineChild carries the full embedded subtree when inline is true;
	// zero value otherwise.
	inlineChild storedb.Child

	box   *valueBox[T]
	arena *Arena
}

// Hash returns the content hash of the pointed-to value, computed whether
// the pointer is Inline or Indirect.
func (p Sp[T]) Hash() hash.Hash { return p.rootHash }

// IsInline reports whether this pointer embeds its value directly rather
// than referencing the backend.
func (p Sp[T]) IsInline() bool { return p.inline }

// IsLazy reports whether the payload has not yet been resolved. An Inline
// pointer is never lazy.
func (p Sp[T]) IsLazy() bool { return !p.inline && p.box == nil }

// ChildRef implements Ref.
func (p Sp[T]) ChildRef() storedb.Child {
	if p.inline {
		return p.inlineChild
	}
	return storedb.Child{Kind: storedb.ChildIndirect, Hash: p.rootHash}
}

// Clone returns a second handle to the same value, incrementing the arena's
// handle count for Indirect pointers. Inline pointers are self-contained, so
// cloning one is free.
func (p Sp[T]) Clone() Sp[T] {
	if !p.inline {
		p.arena.incrementRef(p.rootHash)
	}
	return p
}

// Release drops this handle. Callers must not use p after calling Release;
// Go cannot enforce move-out semantics, so this is advisory, mirroring the
// explicit Close()-style idiom the rest of this codebase uses in place of
// destructors.
func (p *Sp[T]) Release() {
	if p.inline || p.arena == nil {
		return
	}
	if p.arena.decrementRef(p.rootHash) {
		dedupForget[T](p.arena, p.rootHash)
	}
	p.box = nil
	p.arena = nil
}

// Get resolves and returns the pointed-to value, loading it from the
// backend on first access if this pointer is lazy. Panics if the hash is
// untracked and absent from the backend entirely: that is an internal
// invariant violation, not a recoverable NotFound (§7) — a valid Sp is
// never constructed over a hash that cannot be resolved.
func (p *Sp[T]) Get(dec Decoder[T]) T {
	if p.inline || p.box != nil {
		return p.box.v
	}
	v, _, _ := p.arena.group.Do(p.rootHash.String(), func() (any, error) {
		if box, ok := dedupLookup[T](p.arena, p.rootHash); ok {
			return box, nil
		}
		obj, found := p.arena.getBackend(p.rootHash)
		if !found {
			panic(fmt.Sprintf("arena: hash %s has an outstanding Sp but is absent from the backend", p.rootHash))
		}
		value, err := dec(p.arena, obj.Data, obj.Children, 0)
		if err != nil {
			panic(fmt.Sprintf("arena: decode of already-tracked hash %s failed: %v", p.rootHash, err))
		}
		box := &valueBox[T]{v: value}
		dedupStore[T](p.arena, p.rootHash, box)
		return box, nil
	})
	p.box = v.(*valueBox[T])
	return p.box.v
}

// Unload drops the resolved payload (if any), allowing it to be garbage
// collected once every other Sp sharing the dedup box also lets go of it.
// The handle itself, and its backend tracking, are unaffected.
func (p *Sp[T]) Unload() {
	if p.inline {
		return
	}
	p.box = nil
}

func (a *Arena) getBackend(h hash.Hash) (*storedb.Object, bool) {
	a.backendMu.Lock()
	defer a.backendMu.Unlock()
	return a.backend.Get(h)
}

// Alloc inserts value into the arena, producing either an Inline or an
// Indirect pointer depending on its encoded size (§3.1, §4.3 step 4). Inline
// results never touch the arena's metadata or the backend at all.
func Alloc[T Value](a *Arena, value T) Sp[T] {
	children := value.Children()
	if len(children) > 16 {
		panic(fmt.Sprintf("arena: value of type %T has %d children, more than the 16-ary MPT branch factor allows", value, len(children)))
	}
	data, childRefs, rootHash := encodeValue(a.hasher, value, children)

	if inlineSize(data, childRefs) <= a.inlineThreshold {
		return Sp[T]{
			inline:      true,
			rootHash:    rootHash,
			inlineChild: storedb.Child{Kind: storedb.ChildInline, Hash: rootHash, Data: data, Children: childRefs},
			box:         &valueBox[T]{v: value},
		}
	}

	a.track(rootHash, data, childRefs)
	if box, ok := dedupLookup[T](a, rootHash); ok {
		a.incrementRef(rootHash)
		return Sp[T]{rootHash: rootHash, box: box, arena: a}
	}
	box := &valueBox[T]{v: value}
	dedupStore[T](a, rootHash, box)
	a.incrementRef(rootHash)
	return Sp[T]{rootHash: rootHash, box: box, arena: a}
}

// encodeValue serializes value's own payload and resolves its declared
// children into raw Child references, returning the resulting content hash
// alongside both.
func encodeValue[T Value](h hash.Hasher, value T, children []Ref) ([]byte, []storedb.Child, hash.Hash) {
	w := serialize.NewWriter()
	value.Encode(w)
	data := w.Bytes()

	childRefs := make([]storedb.Child, len(children))
	childHashes := make([]hash.Hash, len(children))
	for i, c := range children {
		childRefs[i] = c.ChildRef()
		childHashes[i] = childRefs[i].Hash
	}
	return data, childRefs, h.Node(data, childHashes)
}

// inlineSize approximates the encoded size of data plus its child
// references, used against the inline threshold.
func inlineSize(data []byte, children []storedb.Child) int {
	n := len(data)
	for _, c := range children {
		if c.Kind == storedb.ChildIndirect {
			n += len(c.Hash)
		} else {
			n += len(c.Data) + inlineSize(nil, c.Children)
		}
	}
	return n
}

// GetLazy returns a lazy pointer to an already-tracked or on-disk hash h,
// without resolving its payload. The value must already exist somewhere
// reachable (in the backend's memory or its DB); GetLazy never fabricates a
// new object, unlike Alloc.
func GetLazy[T any](a *Arena, h hash.Hash) (Sp[T], error) {
	obj, found := a.getBackend(h)
	if !found {
		return Sp[T]{}, fmt.Errorf("arena: GetLazy: hash %s not found", h)
	}
	a.track(h, obj.Data, obj.Children)
	a.incrementRef(h)
	if box, ok := dedupLookup[T](a, h); ok {
		return Sp[T]{rootHash: h, box: box, arena: a}, nil
	}
	return Sp[T]{rootHash: h, arena: a}, nil
}

// Get returns an eagerly resolved pointer to h, decoding it immediately with
// dec if it is not already cached.
func Get[T any](a *Arena, h hash.Hash, dec Decoder[T]) (Sp[T], error) {
	p, err := GetLazy[T](a, h)
	if err != nil {
		return Sp[T]{}, err
	}
	p.Get(dec)
	return p, nil
}

// WrapChild resolves a single raw child reference produced by ChildRef()
// into a concretely typed Sp[S], recursively decoding inline subtrees with
// dec and registering indirect ones as lazy arena handles. depth must be the
// depth at which c itself was reached; WrapChild rejects input deeper than
// MaxDecodeDepth rather than recursing further.
func WrapChild[S any](a *Arena, c storedb.Child, dec Decoder[S], depth int) (Sp[S], error) {
	if depth > MaxDecodeDepth {
		return Sp[S]{}, ErrDecodeTooDeep
	}
	if c.Kind == storedb.ChildIndirect {
		return GetLazy[S](a, c.Hash)
	}
	value, err := dec(a, c.Data, c.Children, depth)
	if err != nil {
		return Sp[S]{}, err
	}
	return Sp[S]{
		inline:      true,
		rootHash:    c.Hash,
		inlineChild: c,
		box:         &valueBox[S]{v: value},
	}, nil
}
