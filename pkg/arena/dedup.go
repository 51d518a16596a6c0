package arena

import (
	"reflect"
	"weak"

	"github.com/voskan/merkstore/pkg/hash"
)

// valueBox is the allocation every Sp[T] with the same (hash, T) shares a
// pointer to. Boxing lets the dedup cache hold a weak.Pointer to something
// with an address independent of T's own representation (T may not be a
// pointer type, a slice, or even addressable on its own).
type valueBox[T any] struct {
	v T
}

// dedupKey identifies one (content hash, concrete Go type) pair. The type
// component exists because the same hash can, in principle, be requested as
// two different Value implementations in pathological code; keeping the
// cache type-keyed avoids ever handing back a box of the wrong shape.
type dedupKey struct {
	h hash.Hash
	t reflect.Type
}

// dedupLookup returns the still-live box for (h, T), if any weak entry for it
// has not yet been collected.
func dedupLookup[T any](a *Arena, h hash.Hash) (*valueBox[T], bool) {
	key := dedupKey{h: h, t: reflect.TypeFor[T]()}
	a.dedupMu.Lock()
	entry, ok := a.dedup[key]
	a.dedupMu.Unlock()
	if !ok {
		return nil, false
	}
	wp, ok := entry.(weak.Pointer[valueBox[T]])
	if !ok {
		return nil, false
	}
	box := wp.Value()
	if box == nil {
		return nil, false
	}
	return box, true
}

// dedupStore registers a new weak entry for (h, T), replacing whatever was
// there (a prior entry, if any, has already been confirmed dead by the
// caller's failed dedupLookup).
func dedupStore[T any](a *Arena, h hash.Hash, box *valueBox[T]) {
	key := dedupKey{h: h, t: reflect.TypeFor[T]()}
	a.dedupMu.Lock()
	a.dedup[key] = weak.Make(box)
	a.dedupMu.Unlock()
}

// dedupForget drops a (h, T) entry outright, used once the arena's handle
// count for h reaches zero so the cache does not keep accumulating dead weak
// pointers for keys nobody references anymore.
func dedupForget[T any](a *Arena, h hash.Hash) {
	key := dedupKey{h: h, t: reflect.TypeFor[T]()}
	a.dedupMu.Lock()
	delete(a.dedup, key)
	a.dedupMu.Unlock()
}
