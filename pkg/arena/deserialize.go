package arena

import (
	"bytes"
	"fmt"

	"github.com/voskan/merkstore/pkg/serialize"
)

// DeserializeSp decodes a topologically sorted node list (as produced by
// EncodeNodeList) into a fresh, purely in-memory Sp[T] — not yet registered
// with any arena or backend — and rejects the input unless re-serializing
// the decoded value reproduces raw byte-for-byte (§4.3, "This normal-form
// check defeats aliasing attacks where the same value is encoded in
// multiple structurally distinct ways": a non-minimal or redundant node list
// can still hash to the correct root, so only a full re-encode comparison
// catches it).
//
// The returned pointer is always Inline: it becomes Indirect, and gains a
// backend identity, only if the caller later commits it with Alloc.
func DeserializeSp[T Value](a *Arena, raw []byte, dec Decoder[T]) (Sp[T], error) {
	r := serialize.NewReader(raw)
	rootChild, err := DecodeNodeList(r)
	if err != nil {
		return Sp[T]{}, err
	}
	if err := serialize.EnsureConsumed(r); err != nil {
		return Sp[T]{}, err
	}
	value, err := dec(a, rootChild.Data, rootChild.Children, 0)
	if err != nil {
		return Sp[T]{}, err
	}

	tmp := Sp[T]{inline: true, rootHash: rootChild.Hash, inlineChild: rootChild, box: &valueBox[T]{v: value}}
	reencoded, err := EncodeNodeList(a, tmp, 0)
	if err != nil {
		return Sp[T]{}, err
	}
	if !bytes.Equal(reencoded, raw) {
		return Sp[T]{}, fmt.Errorf("%w: deserialized storage graph not in normal form", serialize.ErrMalformedInput)
	}

	return tmp, nil
}
