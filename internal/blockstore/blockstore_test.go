package blockstore

import (
	"bytes"
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/termwork/internal/db"
)

func setupTestStore(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, db.Open(filepath.Join(dir, db.DBFileName)))
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() {
		clearCache()
		db.Close()
	})
}

func TestMakeFileDuplicate(t *testing.T) {
	setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, MakeFile(ctx, "b1", "f", nil, FileOpts{}))
	err := MakeFile(ctx, "b1", "f", nil, FileOpts{})
	require.Error(t, err, "duplicate file creation must fail (first wins)")
}

func TestWriteReadRoundTrip(t *testing.T) {
	setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, MakeFile(ctx, "b1", "f", nil, FileOpts{}))

	// spans multiple parts
	data := make([]byte, 3*int(PartSize)+1000)
	rnd := rand.New(rand.NewSource(42))
	rnd.Read(data)

	// write in uneven chunks at contiguous offsets
	off := int64(0)
	for _, chunkSize := range []int{1, 1000, int(PartSize), int(PartSize) + 1, len(data)} {
		if off >= int64(len(data)) {
			break
		}
		end := off + int64(chunkSize)
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		n, err := WriteAt(ctx, "b1", "f", data[off:end], off)
		require.NoError(t, err)
		require.Equal(t, int(end-off), n)
		off = end
	}
	for off < int64(len(data)) {
		n, err := AppendData(ctx, "b1", "f", data[off:])
		require.NoError(t, err)
		off += int64(n)
	}

	fInfo, err := Stat(ctx, "b1", "f")
	require.NoError(t, err)
	assert.EqualValues(t, len(data), fInfo.Size)

	require.NoError(t, FlushCache(ctx))

	buf := make([]byte, len(data))
	n, err := ReadAt(ctx, "b1", "f", &buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	assert.True(t, bytes.Equal(data, buf), "read-back bytes differ after flush")
}

func TestWriteAtLeftPad(t *testing.T) {
	setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, MakeFile(ctx, "b1", "pad", nil, FileOpts{}))
	n, err := WriteAt(ctx, "b1", "pad", []byte("xyz"), 100)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	fInfo, err := Stat(ctx, "b1", "pad")
	require.NoError(t, err)
	assert.EqualValues(t, 103, fInfo.Size)
	buf := make([]byte, 103)
	n, err = ReadAt(ctx, "b1", "pad", &buf, 0)
	require.NoError(t, err)
	require.Equal(t, 103, n)
	assert.Equal(t, make([]byte, 100), buf[:100], "gap must be zero filled")
	assert.Equal(t, []byte("xyz"), buf[100:])
}

func TestCircularWrite(t *testing.T) {
	setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, MakeFile(ctx, "b1", "f", nil, FileOpts{MaxSize: 300, Circular: true}))
	data := bytes.Repeat([]byte{'A'}, 350)
	n, err := AppendData(ctx, "b1", "f", data)
	require.NoError(t, err)
	require.Equal(t, 350, n)

	fInfo, err := Stat(ctx, "b1", "f")
	require.NoError(t, err)
	assert.EqualValues(t, 300, fInfo.Size, "circular file size caps at MaxSize")

	buf := make([]byte, 300)
	n, err = ReadAt(ctx, "b1", "f", &buf, 0)
	require.NoError(t, err)
	require.Equal(t, 300, n)
	assert.Equal(t, bytes.Repeat([]byte{'A'}, 300), buf)
}

func TestCircularWrapContent(t *testing.T) {
	setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, MakeFile(ctx, "b1", "wrap", nil, FileOpts{MaxSize: 10, Circular: true}))
	_, err := WriteAt(ctx, "b1", "wrap", []byte("0123456789"), 0)
	require.NoError(t, err)
	// writing at offset 12 wraps to physical offset 2
	_, err = WriteAt(ctx, "b1", "wrap", []byte("ab"), 12)
	require.NoError(t, err)
	buf := make([]byte, 10)
	n, err := ReadAt(ctx, "b1", "wrap", &buf, 0)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	assert.Equal(t, []byte("01ab456789"), buf)
}

func TestNonCircularMaxSize(t *testing.T) {
	setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, MakeFile(ctx, "b1", "capped", nil, FileOpts{MaxSize: 10}))
	n, err := WriteAt(ctx, "b1", "capped", []byte("0123456789xyz"), 0)
	require.ErrorIs(t, err, ErrMaxSize)
	assert.Equal(t, 10, n, "bytes before the bound are written")
}

func TestReadPastEnd(t *testing.T) {
	setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, WriteFileErr(t, ctx, "b1", "short", []byte("hello")))
	buf := make([]byte, 10)
	_, err := ReadAt(ctx, "b1", "short", &buf, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read past the end of the file")
}

// WriteFileErr adapts WriteFile for require.NoError in tests.
func WriteFileErr(t *testing.T, ctx context.Context, blockId string, name string, data []byte) error {
	t.Helper()
	_, err := WriteFile(ctx, blockId, name, nil, FileOpts{}, data)
	return err
}

func TestFlushIdempotent(t *testing.T) {
	setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, WriteFileErr(t, ctx, "b1", "f", []byte("flush me")))
	require.NoError(t, FlushCache(ctx))
	require.NoError(t, FlushCache(ctx))

	// after flushing, the cache is empty and content comes from SQL
	clearCache()
	buf := make([]byte, 8)
	n, err := ReadAt(ctx, "b1", "f", &buf, 0)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	assert.Equal(t, []byte("flush me"), buf)

	// no dirty entries remain
	for _, entry := range snapshotCacheEntries() {
		entry.Lock.Lock()
		for _, block := range entry.DataBlocks {
			if block != nil {
				assert.False(t, block.dirty)
			}
		}
		entry.Lock.Unlock()
	}
}

func TestWriteMetaAndStat(t *testing.T) {
	setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, MakeFile(ctx, "b1", "meta", FileMeta{"k": "v"}, FileOpts{}))
	require.NoError(t, WriteMeta(ctx, "b1", "meta", FileMeta{"k2": "v2"}))
	fInfo, err := Stat(ctx, "b1", "meta")
	require.NoError(t, err)
	assert.Equal(t, "v2", fInfo.Meta["k2"])
	// Stat returns a deep copy
	fInfo.Meta["k2"] = "mutated"
	fInfo2, err := Stat(ctx, "b1", "meta")
	require.NoError(t, err)
	assert.Equal(t, "v2", fInfo2.Meta["k2"])
}

func TestListAndDelete(t *testing.T) {
	setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, MakeFile(ctx, "b1", "f1", nil, FileOpts{}))
	require.NoError(t, MakeFile(ctx, "b1", "f2", nil, FileOpts{}))
	require.NoError(t, MakeFile(ctx, "b2", "f1", nil, FileOpts{}))

	assert.Len(t, ListFiles(ctx, "b1"), 2)
	assert.Equal(t, []string{"b1", "b2"}, GetAllBlockIds(ctx))

	require.NoError(t, DeleteFile(ctx, "b1", "f1"))
	assert.Len(t, ListFiles(ctx, "b1"), 1)

	require.NoError(t, DeleteBlock(ctx, "b1"))
	assert.Len(t, ListFiles(ctx, "b1"), 0)
	assert.Equal(t, []string{"b2"}, GetAllBlockIds(ctx))
}

func TestCollapseIJson(t *testing.T) {
	setupTestStore(t)
	ctx := context.Background()
	lines := []byte(`{"a": 1, "b": 2}` + "\n" + `{"b": 3, "c": 4}` + "\n" + `{"a": null}` + "\n")
	_, err := WriteFile(ctx, "b1", "ij", nil, FileOpts{IJson: true}, lines)
	require.NoError(t, err)
	require.NoError(t, CollapseIJson(ctx, "b1", "ij"))

	fInfo, err := Stat(ctx, "b1", "ij")
	require.NoError(t, err)
	buf := make([]byte, fInfo.Size)
	n, err := ReadAt(ctx, "b1", "ij", &buf, 0)
	require.NoError(t, err)
	snapshot, err := foldIJson(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": float64(3), "c": float64(4)}, snapshot)
}
