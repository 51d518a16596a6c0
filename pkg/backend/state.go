package backend

import "github.com/voskan/merkstore/pkg/storedb"

// delta is a pending (ref_count, root_count) adjustment (§4.2, "Reference-
// count delta algebra"). Combination is componentwise addition; a (0,0)
// result collapses to "no update" and must be dropped from the state
// machine rather than kept around as a no-op.
type delta struct {
	ref  int32
	root int32
}

func (d delta) isZero() bool { return d.ref == 0 && d.root == 0 }

// combine adds two deltas, reporting whether the sum is non-trivial.
func (d delta) combine(o delta) (delta, bool) {
	sum := delta{d.ref + o.ref, d.root + o.root}
	return sum, !sum.isZero()
}

// stateKind enumerates the backend's six cache states (§4.2). There is no
// explicit "Dummy" state in this port: Go map semantics let us overwrite a
// key's entry directly rather than needing a placeholder swap value the way
// the original Rust implementation does to satisfy the borrow checker.
type stateKind uint8

const (
	stateRead stateKind = iota
	stateUpdate
	stateReadAndUpdate
	stateCreate
	stateCreateAndUpdate
	stateCreateAndDelete
)

// cacheValue is the in-memory representation of a single key's state. obj
// always reflects any pending delta already applied to RefCount; root-count
// deltas are tracked separately in delta.root and only reconciled against
// the DB's stored root count at read/flush time.
type cacheValue struct {
	kind  stateKind
	obj   *storedb.Object
	delta delta
}

// isPending reports whether v carries unflushed mutations; such values live
// in the write cache, never the read cache.
func (v cacheValue) isPending() bool { return v.kind != stateRead }

// applyDelta returns a clone of obj with RefCount adjusted by d.ref. Panics
// if the result would be negative: a negative reference count is an
// internal invariant violation (§7), never a recoverable condition.
func applyDelta(obj *storedb.Object, d delta) *storedb.Object {
	cp := obj.Clone()
	next := int64(cp.RefCount) + int64(d.ref)
	if next < 0 {
		panic("backend: ref_count would go negative")
	}
	cp.RefCount = uint32(next)
	return cp
}
