package arena

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voskan/merkstore/pkg/backend"
	"github.com/voskan/merkstore/pkg/serialize"
	"github.com/voskan/merkstore/pkg/storedb"
)

// leafVal is a minimal Value for exercising Alloc/Get/GetLazy without
// pulling in the mpt package: a byte payload, no children.
type leafVal struct {
	Data []byte
}

func (v leafVal) Encode(w *serialize.Writer) { w.Bytes_(v.Data) }
func (v leafVal) Children() []Ref            { return nil }

func decodeLeaf(a *Arena, data []byte, children []storedb.Child, depth int) (leafVal, error) {
	r := serialize.NewReader(data)
	b, err := r.Bytes_()
	if err != nil {
		return leafVal{}, err
	}
	return leafVal{Data: b}, nil
}

func newTestArena(t *testing.T) *Arena {
	t.Helper()
	db := storedb.NewMemDB()
	b := backend.New(db, 0)
	return New(b, WithInlineThreshold(8))
}

func TestAllocSmallValueIsInline(t *testing.T) {
	a := newTestArena(t)
	p := Alloc[leafVal](a, leafVal{Data: []byte("hi")})
	require.True(t, p.IsInline())
	require.False(t, p.IsLazy())
	require.Equal(t, "hi", string(p.Get(decodeLeaf).Data))
	require.Equal(t, 0, a.Size(), "inline allocation never touches arena metadata")
}

func TestAllocLargeValueIsIndirect(t *testing.T) {
	a := newTestArena(t)
	big := make([]byte, 128)
	p := Alloc[leafVal](a, leafVal{Data: big})
	require.False(t, p.IsInline())
	require.Equal(t, 1, a.Size())
	require.Equal(t, big, p.Get(decodeLeaf).Data)
}

func TestCloneIncrementsHandleCount(t *testing.T) {
	a := newTestArena(t)
	big := make([]byte, 128)
	p := Alloc[leafVal](a, leafVal{Data: big})
	q := p.Clone()

	q.Release()
	require.Equal(t, 1, a.Size(), "one handle remains live after releasing the clone")
	p.Release()
	require.Equal(t, 0, a.Size())
}

func TestReleaseDropsMetadataAtZero(t *testing.T) {
	a := newTestArena(t)
	big := make([]byte, 128)
	p := Alloc[leafVal](a, leafVal{Data: big})
	h := p.Hash()
	p.Release()
	require.Equal(t, 0, a.Size())

	_, err := GetLazy[leafVal](a, h)
	require.Error(t, err, "uncached and unpersisted hash should no longer be reachable")
}

func TestGetLazyResolvesFromBackend(t *testing.T) {
	a := newTestArena(t)
	big := make([]byte, 128)
	p := Alloc[leafVal](a, leafVal{Data: big})
	h := p.Hash()
	a.Persist(h)
	p.Release()

	lazy, err := GetLazy[leafVal](a, h)
	require.NoError(t, err)
	require.True(t, lazy.IsLazy())
	require.Equal(t, big, lazy.Get(decodeLeaf).Data)
	require.False(t, lazy.IsLazy())
}

func TestDedupSharesDecodedValue(t *testing.T) {
	a := newTestArena(t)
	big := make([]byte, 128)
	p1 := Alloc[leafVal](a, leafVal{Data: big})
	p2 := Alloc[leafVal](a, leafVal{Data: big})
	require.Equal(t, p1.Hash(), p2.Hash())
	require.Same(t, p1.box, p2.box, "both pointers share one decoded payload")
	require.Equal(t, 1, a.Size(), "allocating the same content twice shares one metadata entry")
}
