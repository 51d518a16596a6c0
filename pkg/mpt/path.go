package mpt

// Path is a sequence of nibbles (4-bit values, 0..15), the trie's key space.
type Path []byte

// BytesToNibbles expands b into one nibble per output byte, high nibble
// first, the canonical path encoding used by every container built on this
// trie (§4.4/§4.5).
func BytesToNibbles(b []byte) Path {
	p := make(Path, 0, len(b)*2)
	for _, by := range b {
		p = append(p, by>>4, by&0x0f)
	}
	return p
}

// NibblesToBytes packs pairs of nibbles back into bytes. Panics if len(p) is
// odd: callers only ever pack paths they themselves produced via
// BytesToNibbles, which always yields an even length.
func NibblesToBytes(p Path) []byte {
	if len(p)%2 != 0 {
		panic("mpt: odd-length nibble path cannot be packed into bytes")
	}
	out := make([]byte, len(p)/2)
	for i := 0; i < len(out); i++ {
		out[i] = p[2*i]<<4 | p[2*i+1]
	}
	return out
}

// commonPrefixLen returns how many leading nibbles a and b share.
func commonPrefixLen(a, b Path) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// compare orders two paths lexicographically by nibble.
func compare(a, b Path) int {
	n := commonPrefixLen(a, b)
	switch {
	case n < len(a) && n < len(b):
		if a[n] < b[n] {
			return -1
		}
		return 1
	case len(a) == len(b):
		return 0
	case len(a) < len(b):
		return -1
	default:
		return 1
	}
}
