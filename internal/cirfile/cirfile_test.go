package cirfile

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestFile(t *testing.T, maxSize int64) (*File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cf")
	f, err := CreateCirFile(path, maxSize)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, path
}

func TestCreateOpenStat(t *testing.T) {
	ctx := context.Background()
	_, path := makeTestFile(t, 1000)

	stat, err := StatCirFile(ctx, path)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, stat.MaxSize)
	assert.EqualValues(t, 0, stat.FileOffset)
	assert.EqualValues(t, 0, stat.DataSize)

	_, err = CreateCirFile(path, 1000)
	require.Error(t, err, "create over an existing file must fail")
}

func TestWriteReadNoWrap(t *testing.T) {
	ctx := context.Background()
	f, _ := makeTestFile(t, 100)
	require.NoError(t, f.WriteAt(ctx, []byte("hello world"), 0))

	offset, data, err := f.ReadAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, offset)
	assert.Equal(t, []byte("hello world"), data)
}

func TestWriteWrap(t *testing.T) {
	ctx := context.Background()
	f, path := makeTestFile(t, 10)
	require.NoError(t, f.WriteAt(ctx, []byte("0123456789"), 0))
	require.NoError(t, f.WriteAt(ctx, []byte("abcde"), 10))

	offset, data, err := f.ReadAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, offset, "first five bytes wrapped away")
	assert.Equal(t, []byte("56789abcde"), data)

	// header survives reopen
	require.NoError(t, f.Close())
	f2, err := OpenCirFile(path)
	require.NoError(t, err)
	defer f2.Close()
	offset, data, err = f2.ReadAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, offset)
	assert.Equal(t, []byte("56789abcde"), data)
}

func TestWriteLargerThanMax(t *testing.T) {
	ctx := context.Background()
	f, _ := makeTestFile(t, 10)
	big := bytes.Repeat([]byte("x"), 25)
	big[24] = 'z'
	require.NoError(t, f.WriteAt(ctx, big, 0))

	offset, data, err := f.ReadAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 15, offset)
	require.Len(t, data, 10)
	assert.Equal(t, byte('z'), data[9], "last byte of the stream is retained")
}

func TestReadAtWithMax(t *testing.T) {
	ctx := context.Background()
	f, _ := makeTestFile(t, 10)
	require.NoError(t, f.WriteAt(ctx, []byte("0123456789abcde"), 0))

	// bytes 0-4 wrapped away; the real offset snaps forward
	offset, data, err := f.ReadAtWithMax(ctx, 0, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 5, offset)
	assert.Equal(t, []byte("56789abcde"), data)

	offset, data, err = f.ReadAtWithMax(ctx, 7, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 7, offset)
	assert.Equal(t, []byte("789"), data)

	// reading past the end returns no data
	offset, data, err = f.ReadAtWithMax(ctx, 100, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 15, offset)
	assert.Empty(t, data)
}

func TestWriteGapZeroFill(t *testing.T) {
	ctx := context.Background()
	f, _ := makeTestFile(t, 100)
	require.NoError(t, f.WriteAt(ctx, []byte("ab"), 0))
	require.NoError(t, f.WriteAt(ctx, []byte("cd"), 10))

	offset, data, err := f.ReadAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, offset)
	require.Len(t, data, 12)
	assert.Equal(t, []byte("ab"), data[0:2])
	assert.Equal(t, make([]byte, 8), data[2:10])
	assert.Equal(t, []byte("cd"), data[10:12])
}

func TestRewriteWithinWindow(t *testing.T) {
	ctx := context.Background()
	f, _ := makeTestFile(t, 100)
	require.NoError(t, f.WriteAt(ctx, []byte("aaaaaaaaaa"), 0))
	require.NoError(t, f.WriteAt(ctx, []byte("BB"), 3))

	_, data, err := f.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaBBaaaaa"), data)
}
