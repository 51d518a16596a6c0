package arena

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voskan/merkstore/pkg/serialize"
	"github.com/voskan/merkstore/pkg/storedb"
)

// branchVal carries several indirect children, exercising gather's
// concurrent per-child fetch path (pkg/arena/nodelist.go).
type branchVal struct {
	Kids []Sp[leafVal]
}

func (v branchVal) Encode(w *serialize.Writer) { w.U32(uint32(len(v.Kids))) }
func (v branchVal) Children() []Ref {
	out := make([]Ref, len(v.Kids))
	for i := range v.Kids {
		out[i] = v.Kids[i]
	}
	return out
}

func decodeBranch(a *Arena, data []byte, children []storedb.Child, depth int) (branchVal, error) {
	r := serialize.NewReader(data)
	n, err := r.U32()
	if err != nil {
		return branchVal{}, err
	}
	kids := make([]Sp[leafVal], n)
	for i := range kids {
		sp, err := WrapChild[leafVal](a, children[i], decodeLeaf, depth+1)
		if err != nil {
			return branchVal{}, err
		}
		kids[i] = sp
	}
	return branchVal{Kids: kids}, nil
}

func TestEncodeDecodeNodeListRoundTrip(t *testing.T) {
	a := newTestArena(t)
	big := make([]byte, 128)
	copy(big, []byte("payload"))
	p := Alloc[leafVal](a, leafVal{Data: big})
	defer p.Release()

	raw, err := EncodeNodeList(a, p, 0)
	require.NoError(t, err)

	out, err := DeserializeSp[leafVal](a, raw, decodeLeaf)
	require.NoError(t, err)
	require.Equal(t, p.Hash(), out.Hash())
	require.Equal(t, big, out.Get(decodeLeaf).Data)
}

func TestDeserializeSpRejectsTamperedInput(t *testing.T) {
	a := newTestArena(t)
	big := make([]byte, 128)
	p := Alloc[leafVal](a, leafVal{Data: big})
	defer p.Release()

	raw, err := EncodeNodeList(a, p, 0)
	require.NoError(t, err)

	tampered := append([]byte(nil), raw...)
	tampered = append(tampered, 0xff)
	_, err = DeserializeSp[leafVal](a, tampered, decodeLeaf)
	require.Error(t, err)
}

func TestEncodeNodeListEnforcesMaxBytes(t *testing.T) {
	a := newTestArena(t)
	big := make([]byte, 128)
	p := Alloc[leafVal](a, leafVal{Data: big})
	defer p.Release()

	_, err := EncodeNodeList(a, p, 4)
	require.Error(t, err)
}

func TestGatherResolvesIndirectChildrenConcurrently(t *testing.T) {
	a := newTestArena(t)

	kids := make([]Sp[leafVal], 4)
	for i := range kids {
		big := make([]byte, 64)
		big[0] = byte(i)
		kids[i] = Alloc[leafVal](a, leafVal{Data: big})
	}
	branch := Alloc[branchVal](a, branchVal{Kids: kids})
	defer branch.Release()

	raw, err := EncodeNodeList(a, branch, 0)
	require.NoError(t, err)

	out, err := DeserializeSp[branchVal](a, raw, decodeBranch)
	require.NoError(t, err)
	require.Equal(t, branch.Hash(), out.Hash())

	decoded := out.Get(decodeBranch)
	require.Len(t, decoded.Kids, 4)
	for i, k := range decoded.Kids {
		require.Equal(t, byte(i), k.Get(decodeLeaf).Data[0])
	}
}
