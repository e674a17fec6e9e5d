package files

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/marmos91/cipherfs/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		Version:     4,
		BlockSize:   512,
		IVSize:      12,
		VerifyMAC:   true,
		CacheBlocks: 4,
	}
}

func testKey() Key {
	var k Key
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func idOf(b byte) ID {
	var id ID
	id[0] = b
	return id
}

func newTestIO(t *testing.T, params Params) (*IO, *memory.MemoryStore) {
	t.Helper()
	s := memory.NewMemoryStore()
	fio, err := NewIO(s, testKey(), params)
	require.NoError(t, err)
	return fio, s
}

// reopen finalizes f and opens it again through a fresh adapter over the
// same store.
func reopen(t *testing.T, fio *IO, f File, params Params) File {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, fio.Finalize(ctx, f))

	again, err := NewIO(fio.store, testKey(), params)
	require.NoError(t, err)
	g, err := again.Open(ctx, f.ID(), f.Type())
	require.NoError(t, err)
	return g
}

func TestID(t *testing.T) {
	id := idOf(0xab)
	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	assert.Equal(t, -1, idOf(1).Compare(idOf(2)))
	assert.Equal(t, 1, idOf(2).Compare(idOf(1)))
	assert.Equal(t, 0, idOf(7).Compare(idOf(7)))
	assert.True(t, ID{}.IsZero())

	_, err = ParseID("abcd")
	assert.Error(t, err)
	_, err = ParseID("zz")
	assert.Error(t, err)
}

func TestType(t *testing.T) {
	for _, typ := range []Type{TypeRegular, TypeDirectory, TypeSymlink} {
		parsed, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}
	_, err := ParseType("socket")
	assert.Error(t, err)
	assert.False(t, Type(0).Valid())
}

func TestKeyRedacted(t *testing.T) {
	k := testKey()
	assert.NotContains(t, k.String(), "0102")
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		ok     bool
	}{
		{"valid", func(p *Params) {}, true},
		{"version zero", func(p *Params) { p.Version = 0 }, false},
		{"version five", func(p *Params) { p.Version = 5 }, false},
		{"block not power of two", func(p *Params) { p.BlockSize = 1000 }, false},
		{"block too small", func(p *Params) { p.BlockSize = 256 }, false},
		{"block max", func(p *Params) { p.BlockSize = MaxBlockSize }, true},
		{"iv too small", func(p *Params) { p.IVSize = 8 }, false},
		{"iv max", func(p *Params) { p.IVSize = 32 }, true},
		{"negative cache", func(p *Params) { p.CacheBlocks = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidParams)
			}
		})
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1, err := DeriveKey([]byte("correct horse"), salt)
	require.NoError(t, err)
	k2, err := DeriveKey([]byte("correct horse"), salt)
	require.NoError(t, err)
	k3, err := DeriveKey([]byte("battery staple"), salt)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)

	_, err = DeriveKey([]byte("pw"), []byte("short"))
	assert.Error(t, err)
	_, err = DeriveKey(nil, salt)
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	k := testKey()
	hexKey := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	parsed, err := ParseKey(hexKey)
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseKey("00")
	assert.Error(t, err)
}

func TestIO_OpenMissing(t *testing.T) {
	fio, _ := newTestIO(t, testParams())
	_, err := fio.Open(context.Background(), idOf(1), TypeRegular)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIO_CreateTwice(t *testing.T) {
	fio, _ := newTestIO(t, testParams())
	ctx := context.Background()

	_, err := fio.Create(ctx, idOf(1), TypeRegular)
	require.NoError(t, err)

	_, err = fio.Create(ctx, idOf(1), TypeDirectory)
	assert.ErrorIs(t, err, ErrExists)
}

func TestIO_TypeMismatch(t *testing.T) {
	fio, _ := newTestIO(t, testParams())
	ctx := context.Background()

	_, err := fio.Create(ctx, idOf(1), TypeDirectory)
	require.NoError(t, err)

	_, err = fio.Open(ctx, idOf(1), TypeRegular)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	f, err := fio.Open(ctx, idOf(1), TypeDirectory)
	require.NoError(t, err)
	assert.Equal(t, TypeDirectory, f.Type())
}

func TestIO_CreateWritesHeaderLayout(t *testing.T) {
	fio, s := newTestIO(t, testParams())
	ctx := context.Background()
	id := idOf(9)

	f, err := fio.Create(ctx, id, TypeRegular)
	require.NoError(t, err)
	rf := f.(*RegularFile)
	_, err = rf.WriteAt(ctx, bytes.Repeat([]byte("x"), 600), 0)
	require.NoError(t, err)
	require.NoError(t, rf.Flush(ctx))

	assert.ElementsMatch(t, []string{id.String() + ".m", id.String() + ".0", id.String() + ".1"}, s.Keys())
}

func TestIO_VersionMismatch(t *testing.T) {
	fio, s := newTestIO(t, testParams())
	ctx := context.Background()
	_, err := fio.Create(ctx, idOf(1), TypeSymlink)
	require.NoError(t, err)

	p := testParams()
	p.Version = 3
	other, err := NewIO(s, testKey(), p)
	require.NoError(t, err)

	_, err = other.Open(ctx, idOf(1), TypeSymlink)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestIO_Closed(t *testing.T) {
	fio, _ := newTestIO(t, testParams())
	require.NoError(t, fio.Close())
	require.NoError(t, fio.Close())

	_, err := fio.Create(context.Background(), idOf(1), TypeRegular)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, Key{}, fio.key)
}

func TestIO_ClosedBeforeStore(t *testing.T) {
	ctx := context.Background()
	fio, s := newTestIO(t, testParams())
	_, err := fio.Create(ctx, idOf(1), TypeDirectory)
	require.NoError(t, err)

	require.NoError(t, fio.Close())
	require.NoError(t, s.Close())

	_, err = fio.Open(ctx, idOf(1), TypeDirectory)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = fio.Create(ctx, idOf(2), TypeRegular)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegularFile_RoundTrip(t *testing.T) {
	params := testParams()
	fio, s := newTestIO(t, params)
	ctx := context.Background()

	f, err := fio.Create(ctx, idOf(2), TypeRegular)
	require.NoError(t, err)
	rf := f.(*RegularFile)

	content := bytes.Repeat([]byte("cipherfs block content "), 100)
	n, err := rf.WriteAt(ctx, content, 0)
	require.NoError(t, err)
	assert.Equal(t, len(content), n)
	assert.True(t, rf.IsDirty())

	g := reopen(t, fio, f, params).(*RegularFile)
	assert.Equal(t, int64(len(content)), g.Size())

	got := make([]byte, len(content))
	n, err = g.ReadAt(ctx, got, 0)
	require.NoError(t, err)
	assert.Equal(t, len(content), n)
	assert.Equal(t, content, got)

	for _, key := range s.Keys() {
		blob, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.NotContains(t, string(blob), "cipherfs block content", "plaintext leaked into %s", key)
	}
}

func TestRegularFile_ReadPastEnd(t *testing.T) {
	fio, _ := newTestIO(t, testParams())
	ctx := context.Background()

	f, err := fio.Create(ctx, idOf(3), TypeRegular)
	require.NoError(t, err)
	rf := f.(*RegularFile)
	_, err = rf.WriteAt(ctx, []byte("hello"), 0)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := rf.ReadAt(ctx, buf, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), buf[:n])

	n, err = rf.ReadAt(ctx, buf, 5)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)
}

func TestRegularFile_Sparse(t *testing.T) {
	params := testParams()
	fio, _ := newTestIO(t, params)
	ctx := context.Background()

	f, err := fio.Create(ctx, idOf(4), TypeRegular)
	require.NoError(t, err)
	rf := f.(*RegularFile)

	_, err = rf.WriteAt(ctx, []byte("end"), 2000)
	require.NoError(t, err)

	g := reopen(t, fio, f, params).(*RegularFile)
	buf := make([]byte, 2003)
	n, err := g.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 2003, n)
	assert.Equal(t, make([]byte, 2000), buf[:2000])
	assert.Equal(t, []byte("end"), buf[2000:])
}

func TestRegularFile_Truncate(t *testing.T) {
	params := testParams()
	fio, s := newTestIO(t, params)
	ctx := context.Background()
	id := idOf(5)

	f, err := fio.Create(ctx, id, TypeRegular)
	require.NoError(t, err)
	rf := f.(*RegularFile)

	_, err = rf.WriteAt(ctx, bytes.Repeat([]byte{0xee}, 1500), 0)
	require.NoError(t, err)
	require.NoError(t, rf.Flush(ctx))

	require.NoError(t, rf.Truncate(ctx, 700))
	assert.Equal(t, int64(700), rf.Size())

	// Growing again must expose zeros, not the old bytes.
	require.NoError(t, rf.Truncate(ctx, 1500))
	buf := make([]byte, 1500)
	_, err = rf.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xee}, 700), buf[:700])
	assert.Equal(t, make([]byte, 800), buf[700:])

	require.NoError(t, rf.Truncate(ctx, 100))
	g := reopen(t, fio, f, params).(*RegularFile)
	assert.Equal(t, int64(100), g.Size())

	exists, err := s.Exists(ctx, blockKey(id, 2))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegularFile_WriteAfterTruncateInSameBlock(t *testing.T) {
	fio, _ := newTestIO(t, testParams())
	ctx := context.Background()

	f, err := fio.Create(ctx, idOf(6), TypeRegular)
	require.NoError(t, err)
	rf := f.(*RegularFile)

	_, err = rf.WriteAt(ctx, bytes.Repeat([]byte{0xaa}, 400), 0)
	require.NoError(t, err)
	require.NoError(t, rf.Truncate(ctx, 100))
	_, err = rf.WriteAt(ctx, []byte{0xbb}, 300)
	require.NoError(t, err)

	buf := make([]byte, 301)
	_, err = rf.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 200), buf[100:300])
	assert.Equal(t, byte(0xbb), buf[300])
}

func TestReadOnly(t *testing.T) {
	params := testParams()
	fio, s := newTestIO(t, params)
	ctx := context.Background()

	f, err := fio.Create(ctx, idOf(7), TypeRegular)
	require.NoError(t, err)
	require.NoError(t, fio.Finalize(ctx, f))

	params.ReadOnly = true
	ro, err := NewIO(s, testKey(), params)
	require.NoError(t, err)

	_, err = ro.Create(ctx, idOf(8), TypeRegular)
	assert.ErrorIs(t, err, ErrReadOnly)

	g, err := ro.Open(ctx, idOf(7), TypeRegular)
	require.NoError(t, err)
	rf := g.(*RegularFile)
	_, err = rf.WriteAt(ctx, []byte("x"), 0)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, rf.SetMode(0o600), ErrReadOnly)
}

func TestHeaderAuthentication(t *testing.T) {
	params := testParams()
	fio, s := newTestIO(t, params)
	ctx := context.Background()
	id := idOf(10)

	_, err := fio.Create(ctx, id, TypeRegular)
	require.NoError(t, err)

	blob, err := s.Get(ctx, metaKey(id))
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xff
	require.NoError(t, s.Put(ctx, metaKey(id), blob))

	_, err = fio.Open(ctx, id, TypeRegular)
	assert.ErrorIs(t, err, ErrCorrupted)

	params.VerifyMAC = false
	lax, err := NewIO(s, testKey(), params)
	require.NoError(t, err)
	_, err = lax.Open(ctx, id, TypeRegular)
	assert.NoError(t, err)
}

func TestHeaderGeometryChecked(t *testing.T) {
	params := testParams()
	params.VerifyMAC = false
	fio, s := newTestIO(t, params)
	ctx := context.Background()

	tests := []struct {
		name      string
		blockSize uint32
		ivSize    uint32
	}{
		{"HugeBlockSize", 0xFFFFFFFF, 12},
		{"BlockSizeNotPowerOfTwo", 3000, 12},
		{"BlockSizeTooSmall", 256, 12},
		{"IVSizeTooSmall", 4096, 8},
		{"IVSizeTooLarge", 4096, 64},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := idOf(byte(100 + i))
			hdr := header{
				Magic:     headerMagic,
				Version:   params.Version,
				Type:      uint32(TypeRegular),
				BlockSize: tt.blockSize,
				IVSize:    tt.ivSize,
				Size:      1,
			}
			blob, err := encodeHeader(&hdr, id, &[32]byte{})
			require.NoError(t, err)
			require.NoError(t, s.Put(ctx, metaKey(id), blob))

			_, err = fio.Open(ctx, id, TypeRegular)
			assert.ErrorIs(t, err, ErrCorrupted)
		})
	}
}

func TestHeaderBoundToID(t *testing.T) {
	fio, s := newTestIO(t, testParams())
	ctx := context.Background()

	_, err := fio.Create(ctx, idOf(11), TypeRegular)
	require.NoError(t, err)

	blob, err := s.Get(ctx, metaKey(idOf(11)))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, metaKey(idOf(12)), blob))

	_, err = fio.Open(ctx, idOf(12), TypeRegular)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestBlockAuthentication(t *testing.T) {
	params := testParams()
	fio, s := newTestIO(t, params)
	ctx := context.Background()
	id := idOf(13)

	f, err := fio.Create(ctx, id, TypeRegular)
	require.NoError(t, err)
	_, err = f.(*RegularFile).WriteAt(ctx, []byte("secret"), 0)
	require.NoError(t, err)
	require.NoError(t, fio.Finalize(ctx, f))

	blob, err := s.Get(ctx, blockKey(id, 0))
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0x01
	require.NoError(t, s.Put(ctx, blockKey(id, 0), blob))

	g, err := fio.Open(ctx, id, TypeRegular)
	require.NoError(t, err)
	_, err = g.(*RegularFile).ReadAt(ctx, make([]byte, 6), 0)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestDirectory(t *testing.T) {
	params := testParams()
	fio, _ := newTestIO(t, params)
	ctx := context.Background()

	f, err := fio.Create(ctx, idOf(20), TypeDirectory)
	require.NoError(t, err)
	dir := f.(*Directory)

	require.NoError(t, dir.Add("b.txt", idOf(21), TypeRegular))
	require.NoError(t, dir.Add("a", idOf(22), TypeDirectory))
	require.NoError(t, dir.Add("link", idOf(23), TypeSymlink))
	assert.ErrorIs(t, dir.Add("a", idOf(24), TypeRegular), ErrExists)
	assert.Error(t, dir.Add("x/y", idOf(24), TypeRegular))
	assert.Error(t, dir.Add("..", idOf(24), TypeRegular))

	removed, err := dir.Remove("link")
	require.NoError(t, err)
	assert.Equal(t, idOf(23), removed.ID)
	_, err = dir.Remove("link")
	assert.ErrorIs(t, err, ErrNotFound)

	g := reopen(t, fio, f, params).(*Directory)
	assert.Equal(t, 2, g.Len())
	list := g.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b.txt", list[1].Name)

	e, ok := g.Get("b.txt")
	require.True(t, ok)
	assert.Equal(t, idOf(21), e.ID)
	assert.Equal(t, TypeRegular, e.Type)
	assert.EqualValues(t, 2, g.Stat().Nlink)
}

func TestSymlink(t *testing.T) {
	params := testParams()
	fio, _ := newTestIO(t, params)
	ctx := context.Background()

	f, err := fio.Create(ctx, idOf(30), TypeSymlink)
	require.NoError(t, err)
	link := f.(*Symlink)
	assert.Error(t, link.SetTarget(""))
	require.NoError(t, link.SetTarget("../target/file"))

	g := reopen(t, fio, f, params).(*Symlink)
	assert.Equal(t, "../target/file", g.Target())
	assert.EqualValues(t, len("../target/file"), g.Stat().Size)
}

func TestTimes(t *testing.T) {
	params := testParams()
	params.StoreTime = true
	fio, _ := newTestIO(t, params)
	ctx := context.Background()

	f, err := fio.Create(ctx, idOf(40), TypeRegular)
	require.NoError(t, err)
	rf := f.(*RegularFile)
	assert.False(t, rf.Stat().Mtime.IsZero())

	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, rf.SetTimes(mtime, mtime))

	g := reopen(t, fio, f, params).(*RegularFile)
	assert.True(t, g.Stat().Mtime.Equal(mtime))
	assert.True(t, g.Stat().Atime.Equal(mtime))
}

func TestTimesNotStored(t *testing.T) {
	fio, _ := newTestIO(t, testParams())
	f, err := fio.Create(context.Background(), idOf(41), TypeRegular)
	require.NoError(t, err)
	rf := f.(*RegularFile)

	require.NoError(t, rf.SetTimes(time.Now(), time.Now()))
	assert.True(t, rf.Stat().Mtime.IsZero())
}

func TestFinalizeWipes(t *testing.T) {
	fio, _ := newTestIO(t, testParams())
	ctx := context.Background()

	f, err := fio.Create(ctx, idOf(50), TypeRegular)
	require.NoError(t, err)
	rf := f.(*RegularFile)
	require.NoError(t, fio.Finalize(ctx, f))

	assert.Equal(t, [32]byte{}, rf.keys.data)
	_, err = rf.WriteAt(ctx, []byte("x"), 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, rf.Flush(ctx))
}
