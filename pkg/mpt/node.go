package mpt

import (
	"fmt"

	"github.com/voskan/merkstore/pkg/arena"
	"github.com/voskan/merkstore/pkg/serialize"
	"github.com/voskan/merkstore/pkg/storedb"
)

// Kind discriminates the three node variants (§3.5).
type Kind uint8

const (
	KindLeaf Kind = iota
	KindExtension
	KindBranch
)

const nodeTag = "mpt.node[v1]"

// Node is one of Leaf, Extension, or Branch, generic over the annotation
// type A. Only the fields relevant to its Kind are meaningful; the rest are
// left at their zero value.
type Node[A any] struct {
	kind Kind
	ann  A

	// Leaf: value. Branch: value is the optional value stored exactly at
	// this branch (nil if absent). Unused by Extension.
	value []byte

	// Extension only: the compressed nibble path (one nibble per byte,
	// each in 0..15) and the single child it leads to.
	path  []byte
	child arena.Sp[Node[A]]

	// Branch only: up to 16 children keyed by next nibble; nil entries are
	// absent children.
	children [16]*arena.Sp[Node[A]]
}

// Ann returns this node's annotation.
func (n Node[A]) Ann() A { return n.ann }

// Children implements arena.Value.
func (n Node[A]) Children() []arena.Ref {
	switch n.kind {
	case KindExtension:
		return []arena.Ref{n.child}
	case KindBranch:
		refs := make([]arena.Ref, 0, 16)
		for _, c := range n.children {
			if c != nil {
				refs = append(refs, *c)
			}
		}
		return refs
	default:
		return nil
	}
}

// Encode implements arena.Value. It never writes child hashes directly —
// those are folded into the content hash by the arena from Children() — it
// only writes this node's own discriminant, payload, and annotation.
func (n Node[A]) Encode(w *serialize.Writer) {
	w.Tag(nodeTag)
	w.U8(uint8(n.kind))
	switch n.kind {
	case KindLeaf:
		w.Bytes_(n.value)
	case KindExtension:
		w.Bytes_(n.path)
	case KindBranch:
		var bitmap uint32
		for i, c := range n.children {
			if c != nil {
				bitmap |= 1 << uint(i)
			}
		}
		w.U32(bitmap)
		if n.value != nil {
			w.U8(1)
			w.Bytes_(n.value)
		} else {
			w.U8(0)
		}
	}
	annotatorFor[A]().Encode(w, n.ann)
}

// annotatorFor retrieves the package-level Annotation instance registered
// for A via RegisterAnnotation. Decode needs an Annotation[A] value to parse
// the serialized annotation, but Decoder[T] signatures carry no side
// channel for one, so trie construction registers it once up front.
var annotators = map[string]any{}

func annotatorKey[A any]() string { return fmt.Sprintf("%T", *new(A)) }

// RegisterAnnotation associates ann with its Go type A so that
// NodeDecoder[A] can parse annotations on decode. Call once per annotation
// type before decoding any trie using it; Trie's constructors do this
// automatically.
func RegisterAnnotation[A any](ann Annotation[A]) { annotators[annotatorKey[A]()] = ann }

func annotatorFor[A any]() Annotation[A] {
	a, ok := annotators[annotatorKey[A]()]
	if !ok {
		panic(fmt.Sprintf("mpt: no Annotation registered for %s; call mpt.RegisterAnnotation first", annotatorKey[A]()))
	}
	return a.(Annotation[A])
}

// NodeDecoder returns the arena.Decoder for Node[A]. ann must be the same
// annotation instance registered via RegisterAnnotation.
func NodeDecoder[A any](ann Annotation[A]) arena.Decoder[Node[A]] {
	RegisterAnnotation[A](ann)
	var dec arena.Decoder[Node[A]]
	dec = func(a *arena.Arena, data []byte, children []storedb.Child, depth int) (Node[A], error) {
		if depth > arena.MaxDecodeDepth {
			return Node[A]{}, arena.ErrDecodeTooDeep
		}
		r := serialize.NewReader(data)
		if err := r.ExpectTag(nodeTag); err != nil {
			return Node[A]{}, err
		}
		kindByte, err := r.U8()
		if err != nil {
			return Node[A]{}, err
		}
		n := Node[A]{kind: Kind(kindByte)}
		switch n.kind {
		case KindLeaf:
			if len(children) != 0 {
				return Node[A]{}, fmt.Errorf("%w: leaf node must have no children", serialize.ErrMalformedInput)
			}
			n.value, err = r.Bytes_()
			if err != nil {
				return Node[A]{}, err
			}

		case KindExtension:
			if len(children) != 1 {
				return Node[A]{}, fmt.Errorf("%w: extension node must have exactly one child", serialize.ErrMalformedInput)
			}
			n.path, err = r.Bytes_()
			if err != nil {
				return Node[A]{}, err
			}
			if len(n.path) == 0 {
				return Node[A]{}, fmt.Errorf("%w: extension with empty compressed path", serialize.ErrMalformedInput)
			}
			for _, nb := range n.path {
				if nb > 15 {
					return Node[A]{}, fmt.Errorf("%w: nibble value %d out of range", serialize.ErrMalformedInput, nb)
				}
			}
			child, err := arena.WrapChild[Node[A]](a, children[0], dec, depth+1)
			if err != nil {
				return Node[A]{}, err
			}
			n.child = child

		case KindBranch:
			bitmap, err := r.U32()
			if err != nil {
				return Node[A]{}, err
			}
			hasValue, err := r.U8()
			if err != nil {
				return Node[A]{}, err
			}
			if hasValue != 0 {
				n.value, err = r.Bytes_()
				if err != nil {
					return Node[A]{}, err
				}
			}
			count := 0
			childIdx := 0
			for i := 0; i < 16; i++ {
				if bitmap&(1<<uint(i)) == 0 {
					continue
				}
				count++
				if childIdx >= len(children) {
					return Node[A]{}, fmt.Errorf("%w: branch bitmap declares more children than provided", serialize.ErrMalformedInput)
				}
				c, err := arena.WrapChild[Node[A]](a, children[childIdx], dec, depth+1)
				if err != nil {
					return Node[A]{}, err
				}
				n.children[i] = &c
				childIdx++
			}
			if childIdx != len(children) {
				return Node[A]{}, fmt.Errorf("%w: branch bitmap declares fewer children than provided", serialize.ErrMalformedInput)
			}
			if count < 2 && n.value == nil {
				return Node[A]{}, fmt.Errorf("%w: branch with fewer than 2 children must carry a value", serialize.ErrMalformedInput)
			}
			if count == 0 {
				return Node[A]{}, fmt.Errorf("%w: branch with a value but no children", serialize.ErrMalformedInput)
			}

		default:
			return Node[A]{}, fmt.Errorf("%w: unknown node kind %d", serialize.ErrMalformedInput, kindByte)
		}

		n.ann, err = ann.Decode(r)
		if err != nil {
			return Node[A]{}, err
		}
		if err := serialize.EnsureConsumed(r); err != nil {
			return Node[A]{}, err
		}
		return n, nil
	}
	return dec
}
