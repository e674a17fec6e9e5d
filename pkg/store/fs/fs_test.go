package fs

import (
	"context"
	"os"
	"testing"

	"github.com/marmos91/cipherfs/pkg/store"
	storetesting "github.com/marmos91/cipherfs/pkg/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFSStore runs the complete Store test suite against FSStore.
func TestFSStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) store.Store {
			s, err := NewFSStore(context.Background(), FSStoreConfig{Path: t.TempDir(), Sync: true})
			require.NoError(t, err)
			return s
		},
	}

	suite.Run(t)
}

func TestFSStore_RequiresPath(t *testing.T) {
	_, err := NewFSStore(context.Background(), FSStoreConfig{})
	assert.Error(t, err)
}

func TestFSStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFSStore(ctx, FSStoreConfig{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "k", []byte("persisted")))
	require.NoError(t, s.Close())

	s, err = NewFSStore(ctx, FSStoreConfig{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), data)
}

func TestFSStore_LeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFSStore(ctx, FSStoreConfig{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(ctx, "k", []byte{byte(i)}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
