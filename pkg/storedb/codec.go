package storedb

import (
	"github.com/voskan/merkstore/pkg/hash"
	"github.com/voskan/merkstore/pkg/serialize"
)

// EncodeObject renders an Object using the on-disk encoding from §6.2:
// length-prefixed data bytes, a little-endian u32 ref_count, then a
// length-prefixed sequence of child references. It is used by DB adapters
// (badgerdb) that persist raw bytes rather than Go structs directly.
func EncodeObject(obj *Object) []byte {
	w := serialize.NewWriter()
	w.Bytes_(obj.Data)
	w.U32(obj.RefCount)
	w.U32(uint32(len(obj.Children)))
	for _, c := range obj.Children {
		encodeChild(w, c)
	}
	return w.Bytes()
}

func encodeChild(w *serialize.Writer, c Child) {
	w.U8(uint8(c.Kind))
	w.Raw(c.Hash[:])
	if c.Kind == ChildInline {
		w.Bytes_(c.Data)
		w.U32(uint32(len(c.Children)))
		for _, cc := range c.Children {
			encodeChild(w, cc)
		}
	}
}

// DecodeObject parses the §6.2 on-disk encoding. Returns
// serialize.ErrMalformedInput on any truncation or out-of-range value.
func DecodeObject(buf []byte) (*Object, error) {
	r := serialize.NewReader(buf)
	data, err := r.Bytes_()
	if err != nil {
		return nil, err
	}
	refCount, err := r.U32()
	if err != nil {
		return nil, err
	}
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	children := make([]Child, 0, n)
	for i := uint32(0); i < n; i++ {
		c, err := decodeChild(r)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	if err := serialize.EnsureConsumed(r); err != nil {
		return nil, err
	}
	return &Object{Data: data, RefCount: refCount, Children: children}, nil
}

func decodeChild(r *serialize.Reader) (Child, error) {
	kind, err := r.U8()
	if err != nil {
		return Child{}, err
	}
	if kind != uint8(ChildIndirect) && kind != uint8(ChildInline) {
		return Child{}, serialize.ErrMalformedInput
	}
	hb, err := r.Raw(hash.Size)
	if err != nil {
		return Child{}, err
	}
	c := Child{Kind: ChildKind(kind), Hash: hash.FromBytes(hb)}
	if c.Kind == ChildInline {
		data, err := r.Bytes_()
		if err != nil {
			return Child{}, err
		}
		n, err := r.U32()
		if err != nil {
			return Child{}, err
		}
		children := make([]Child, 0, n)
		for i := uint32(0); i < n; i++ {
			cc, err := decodeChild(r)
			if err != nil {
				return Child{}, err
			}
			children = append(children, cc)
		}
		c.Data = data
		c.Children = children
	}
	return c, nil
}
