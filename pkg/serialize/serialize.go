// Package serialize implements the tag-based encode/decode framework used
// throughout merkstore (see the "Serialization format" section of the
// design docs, §6.2). Every serializable type is identified by a tag: a
// version-suffixed string name embedded in the byte stream (e.g.
// "mpt.node[v1]"). Decoding checks the tag before interpreting the
// remaining bytes, and aborts on any mismatch — this is the core's first
// line of defense against MalformedInput (§7).
//
// Integers default to little-endian in the stream. The one documented
// exception is the array container's index keys, which use big-endian so
// that nibble-lexicographic trie order agrees with numeric order (§6.2);
// that encoding lives in pkg/container, not here.
//
// © 2025 merkstore authors. MIT License.
package serialize

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedInput is returned whenever decoding encounters bytes that
// cannot represent a well-formed value: a bad tag, an unknown discriminant,
// a truncated stream, or a length prefix that does not fit the remaining
// buffer. Callers should treat this as the MalformedInput error kind
// from §7.
var ErrMalformedInput = errors.New("serialize: malformed input")

// Writer accumulates an encoded byte stream. It never itself fails: any I/O
// issues surface at the point the accumulated bytes are written out.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated stream so far.
func (w *Writer) Bytes() []byte { return w.buf }

// Tag writes a length-prefixed tag string. Tags carry their own version
// suffix (e.g. "[v1]") baked into the string by the caller.
func (w *Writer) Tag(tag string) { w.Bytes_([]byte(tag)) }

// U8 writes a single byte.
func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

// U32 writes a little-endian uint32.
func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// U64 writes a little-endian uint64.
func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// I64 writes a little-endian int64.
func (w *Writer) I64(v int64) { w.U64(uint64(v)) }

// Bytes_ writes a length-prefixed byte string (u32 length, little-endian).
func (w *Writer) Bytes_(b []byte) {
	w.U32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// Raw appends bytes with no length prefix; used only when the caller has
// already framed the data another way (e.g. a fixed-width hash).
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Reader consumes an encoded byte stream produced by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, ErrMalformedInput
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ExpectTag reads a length-prefixed tag and compares it against want,
// returning ErrMalformedInput on any mismatch (wrong tag or wrong version
// suffix — both indicate either a corrupt stream or a schema the reader
// does not understand).
func (r *Reader) ExpectTag(want string) error {
	got, err := r.Bytes_()
	if err != nil {
		return err
	}
	if string(got) != want {
		return fmt.Errorf("%w: expected tag %q, got %q", ErrMalformedInput, want, got)
	}
	return nil
}

// U8 reads a single byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// I64 reads a little-endian int64.
func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// Bytes_ reads a length-prefixed byte string.
func (r *Reader) Bytes_() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

// Raw reads exactly n unframed bytes.
func (r *Reader) Raw(n int) ([]byte, error) { return r.take(n) }

// AtEnd reports whether the stream has been fully consumed. Callers
// decoding a self-contained value should check this to reject trailing
// garbage, which is itself a form of non-canonical / malformed input.
func (r *Reader) AtEnd() bool { return r.Remaining() == 0 }

// Serializable is implemented by every value type storable in merkstore.
// Encode must be deterministic: two equal values must produce byte-identical
// output, since content hashes and the canonical-form check (§4.3) depend on
// it.
type Serializable interface {
	Encode(w *Writer)
}

// Deserializable is the decode-side counterpart of Serializable.
type Deserializable[T any] interface {
	Decode(r *Reader) (T, error)
}

// DecodeFunc adapts a plain decode function to the shape callers need when a
// type does not want to implement a named Deserializable type.
type DecodeFunc[T any] func(r *Reader) (T, error)

// EnsureConsumed returns ErrMalformedInput if r has unread trailing bytes
// after a top-level decode, guarding against non-canonical encodings that
// pad extra data after a valid value (part of the §4.3 canonical-form
// check).
func EnsureConsumed(r *Reader) error {
	if !r.AtEnd() {
		return fmt.Errorf("%w: trailing bytes after decode", ErrMalformedInput)
	}
	return nil
}
