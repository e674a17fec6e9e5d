package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/cipherfs/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a conformance suite for store.Store implementations.
// It tests the interface contract, not implementation details, so the same
// suite runs against memory, filesystem and BadgerDB backends.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) store.Store { return NewMyStore() },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore returns a fresh, empty store. The suite closes it.
	NewStore func(t *testing.T) store.Store
}

// Run executes every test in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("PutGet", suite.testPutGet)
	t.Run("GetMissing", suite.testGetMissing)
	t.Run("Overwrite", suite.testOverwrite)
	t.Run("Exists", suite.testExists)
	t.Run("Delete", suite.testDelete)
	t.Run("DeleteMissing", suite.testDeleteMissing)
	t.Run("EmptyValue", suite.testEmptyValue)
	t.Run("BinaryKey", suite.testBinaryKey)
	t.Run("CallerMayReuseBuffer", suite.testCallerMayReuseBuffer)
	t.Run("Concurrent", suite.testConcurrent)
	t.Run("CancelledContext", suite.testCancelledContext)
	t.Run("Closed", suite.testClosed)
}

func (suite *StoreTestSuite) open(t *testing.T) store.Store {
	t.Helper()
	s := suite.NewStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func (suite *StoreTestSuite) testPutGet(t *testing.T) {
	s := suite.open(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a.m", []byte("header")))

	data, err := s.Get(ctx, "a.m")
	require.NoError(t, err)
	assert.Equal(t, []byte("header"), data)
}

func (suite *StoreTestSuite) testGetMissing(t *testing.T) {
	s := suite.open(t)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound), "expected ErrNotFound, got %v", err)
}

func (suite *StoreTestSuite) testOverwrite(t *testing.T) {
	s := suite.open(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("first")))
	require.NoError(t, s.Put(ctx, "k", []byte("second value")))

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second value"), data)
}

func (suite *StoreTestSuite) testExists(t *testing.T) {
	s := suite.open(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "k", []byte("v")))

	ok, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	s := suite.open(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "k")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func (suite *StoreTestSuite) testDeleteMissing(t *testing.T) {
	s := suite.open(t)
	assert.NoError(t, s.Delete(context.Background(), "never-written"))
}

func (suite *StoreTestSuite) testEmptyValue(t *testing.T) {
	s := suite.open(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "empty", nil))

	ok, err := s.Exists(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := s.Get(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func (suite *StoreTestSuite) testBinaryKey(t *testing.T) {
	s := suite.open(t)
	ctx := context.Background()
	key := "dir/\x00\xff/../name"

	require.NoError(t, s.Put(ctx, key, []byte{0, 1, 2}))

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, data)
}

func (suite *StoreTestSuite) testCallerMayReuseBuffer(t *testing.T) {
	s := suite.open(t)
	ctx := context.Background()

	buf := []byte("original")
	require.NoError(t, s.Put(ctx, "k", buf))
	copy(buf, "XXXXXXXX")

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)

	data[0] = 'Z'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func (suite *StoreTestSuite) testConcurrent(t *testing.T) {
	s := suite.open(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 16

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				if err := s.Put(ctx, key, []byte(key)); err != nil {
					errs <- err
					return
				}
				data, err := s.Get(ctx, key)
				if err != nil {
					errs <- err
					return
				}
				if string(data) != key {
					errs <- fmt.Errorf("key %s: got %q", key, data)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	s := suite.open(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "k", []byte("v")), context.Canceled)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func (suite *StoreTestSuite) testClosed(t *testing.T) {
	s := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Put(ctx, "k", []byte("v")), store.ErrClosed)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = s.Exists(ctx, "k")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.ErrorIs(t, s.Delete(ctx, "k"), store.ErrClosed)
	assert.ErrorIs(t, s.Close(), store.ErrClosed)
}
