// Package arena implements the in-memory smart-pointer layer on top of
// pkg/backend (§3.3/§3.4/§4.3): deduplicated, reference-counted handles onto
// content-addressed objects, with lazy or eager payload loading and automatic
// promotion of small values to inline children.
//
// © 2025 merkstore authors. MIT License.
package arena

import (
	"github.com/voskan/merkstore/pkg/serialize"
	"github.com/voskan/merkstore/pkg/storedb"
)

// Ref is anything that can stand as a child of an allocated Value: an
// already-built smart pointer, lazy or eager, inline or indirect. Sp[T]
// implements Ref for every T.
type Ref interface {
	// ChildRef returns this value's representation as a child of some other
	// node: either an Indirect reference (hash only) or an Inline one (full
	// embedded subtree), matching whichever form this pointer was built or
	// loaded as.
	ChildRef() storedb.Child
}

// Value is anything that can be allocated into the arena: it knows how to
// encode its own payload bytes (excluding children, which are tracked
// separately) and how to enumerate its children in a fixed, stable order.
type Value interface {
	serialize.Serializable
	Children() []Ref
}

// Decoder reconstructs a T from its payload bytes and the raw child
// references produced by ChildRef() on however many children it declared
// during encoding. Every Value implementation pairs itself with exactly one
// Decoder, registered wherever that type's Sp[T] pointers are built from
// untrusted or on-disk data. depth is the current recursion depth, counted
// from the root of whatever decode triggered this call; implementations that
// recurse into their own children via WrapChild must pass depth+1 along, so
// that MaxDecodeDepth can reject pathologically deep untrusted input before
// it exhausts the goroutine stack. a is threaded through so a Decoder can
// itself call WrapChild to build typed Sp children.
type Decoder[T any] func(a *Arena, data []byte, children []storedb.Child, depth int) (T, error)

// MaxDecodeDepth bounds recursive decoding of untrusted, topologically
// sorted node lists (§4.3, "Enforces a recursion-depth limit to prevent
// stack exhaustion").
const MaxDecodeDepth = 256

// ErrDecodeTooDeep is returned by WrapChild when decoding would exceed
// MaxDecodeDepth.
var ErrDecodeTooDeep = errDecodeTooDeep{}

type errDecodeTooDeep struct{}

func (errDecodeTooDeep) Error() string { return "arena: decode recursion exceeds depth limit" }
