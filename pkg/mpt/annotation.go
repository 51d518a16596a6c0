// Package mpt implements the 16-ary Merkle Patricia Trie (§3.5/§4.1): a
// persistent radix trie over nibble paths, with Leaf/Extension/Branch nodes
// annotated by a pluggable monoidal summary.
//
// © 2025 merkstore authors. MIT License.
package mpt

import "github.com/voskan/merkstore/pkg/serialize"

// Annotation is a monoidal summary of a subtree (§3.5): an identity value
// for the empty subtree, a way to derive a value from a single leaf, and an
// associative combination. The canonical instance is SizeAnn, counting
// leaves; callers needing a different rollup (e.g. a sum over leaf payloads)
// implement their own.
type Annotation[A any] interface {
	Identity() A
	FromLeaf(value []byte) A
	Combine(a, b A) A
	Encode(w *serialize.Writer, a A)
	Decode(r *serialize.Reader) (A, error)
}

// SizeAnn is the canonical annotation: subtree size, i.e. leaf count.
type SizeAnn struct{}

func (SizeAnn) Identity() uint64            { return 0 }
func (SizeAnn) FromLeaf(_ []byte) uint64    { return 1 }
func (SizeAnn) Combine(a, b uint64) uint64  { return a + b }
func (SizeAnn) Encode(w *serialize.Writer, a uint64) { w.U64(a) }
func (SizeAnn) Decode(r *serialize.Reader) (uint64, error) { return r.U64() }
