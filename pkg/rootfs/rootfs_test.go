package rootfs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Path)

	_, err = New(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = New(file)
	assert.Error(t, err)
}

func TestStatfs(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	var out fuse.StatfsOut
	err = s.Statfs(&out)
	if runtime.GOOS != "linux" {
		assert.True(t, errors.Is(err, ErrNotSupported))
		return
	}
	require.NoError(t, err)
	assert.NotZero(t, out.Bsize)
	assert.NotZero(t, out.Blocks)
	assert.LessOrEqual(t, out.Bavail, out.Blocks)

	assert.Error(t, s.Statfs(nil))
}
