package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voskan/merkstore/pkg/storedb"
)

func TestNewBuildsWorkingStack(t *testing.T) {
	s := New[*storedb.MemDB](storedb.NewMemDB(), 16)
	require.NotNil(t, s.DB())
	require.NotNil(t, s.Backend())
	require.NotNil(t, s.Arena())
}

func TestDefaultAutoInitializesMemDB(t *testing.T) {
	s1 := Default[*storedb.MemDB]()
	s2 := Default[*storedb.MemDB]()
	require.Same(t, s1, s2, "Default is a singleton once installed")
}

type fakeDB struct{ *storedb.MemDB }

func TestDefaultPanicsForUnregisteredType(t *testing.T) {
	require.Panics(t, func() { Default[*fakeDB]() })
}

func TestSetDefaultInstallsOnce(t *testing.T) {
	s1 := New[*fakeDB](&fakeDB{storedb.NewMemDB()}, 4)
	s2 := New[*fakeDB](&fakeDB{storedb.NewMemDB()}, 4)

	got1 := SetDefault[*fakeDB](s1)
	require.Same(t, s1, got1)

	got2 := SetDefault[*fakeDB](s2)
	require.Same(t, s1, got2, "a second install is a no-op; the first winner stays")

	s3, ok := TryDefault[*fakeDB]()
	require.True(t, ok)
	require.Same(t, s1, s3)
}
