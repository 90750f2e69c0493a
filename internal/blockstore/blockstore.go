// Package blockstore provides byte-level storage of named files inside
// blocks (a block is a namespace id). Files are divided into fixed-size
// parts that are cached in memory, written through to the SQL backend by a
// periodic flush, and optionally wrap around for circular (log-like) files.
package blockstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const PartSize = int64(128 * 1024)
const DefaultFlushTimeout = 1 * time.Second

// ErrMaxSize is the sentinel returned when a write or read runs off the end
// of a bounded file. For circular files it drives the wrap-around path and
// is never surfaced to callers.
var ErrMaxSize = errors.New("MaxSizeError")

// FileOpts are the creation options of a blockstore file.
type FileOpts struct {
	MaxSize  int64 `json:"maxsize,omitempty"`
	Circular bool  `json:"circular,omitempty"`
	IJson    bool  `json:"ijson,omitempty"`
}

type FileMeta = map[string]any

// FileInfo is one row of the block_file table.
type FileInfo struct {
	BlockId   string
	Name      string
	Size      int64
	CreatedTs int64
	ModTs     int64
	Opts      FileOpts
	Meta      FileMeta
}

// InitBlockstore migrates the backing tables (a no-op when the primary store
// migration already ran) and starts the flush timer.
func InitBlockstore() error {
	startFlushTimer(DefaultFlushTimeout)
	return nil
}

// MakeFile creates the file row synchronously (no cache involved). The DB
// returns an error if two files are created at the same time (first wins).
func MakeFile(ctx context.Context, blockId string, name string, meta FileMeta, opts FileOpts) error {
	curTs := time.Now().UnixMilli()
	fileInfo := FileInfo{BlockId: blockId, Name: name, Size: 0, CreatedTs: curTs, ModTs: curTs, Opts: opts, Meta: meta}
	return insertFileIntoDB(ctx, fileInfo)
}

// WriteFile creates a file and appends data to it.
func WriteFile(ctx context.Context, blockId string, name string, meta FileMeta, opts FileOpts, data []byte) (int, error) {
	err := MakeFile(ctx, blockId, name, meta, opts)
	if err != nil {
		return 0, err
	}
	return AppendData(ctx, blockId, name, data)
}

// AppendData writes at the current end of the file. The process-wide append
// lock preserves intra-process append ordering per file set.
func AppendData(ctx context.Context, blockId string, name string, p []byte) (int, error) {
	appendLock.Lock()
	defer appendLock.Unlock()
	fInfo, err := Stat(ctx, blockId, name)
	if err != nil {
		return 0, fmt.Errorf("append stat error: %w", err)
	}
	return WriteAt(ctx, blockId, name, p, fInfo.Size)
}

// WriteAt writes p at the absolute offset off. Writes past the current end
// left-pad the gap with zero bytes so positional semantics hold. Bounded
// circular files wrap via (off mod MaxSize); non-circular bounded files
// return ErrMaxSize past the bound.
func WriteAt(ctx context.Context, blockId string, name string, p []byte, off int64) (int, error) {
	entry, err := getCacheEntryOrPopulate(ctx, blockId, name)
	if err != nil {
		return 0, fmt.Errorf("WriteAt err: %w", err)
	}
	entry.incRefs()
	defer entry.decRefs()
	entry.Lock.Lock()
	defer entry.Lock.Unlock()
	return entry.writeAtLocked(ctx, p, off)
}

func (entry *CacheEntry) writeAtLocked(ctx context.Context, p []byte, off int64) (int, error) {
	info := entry.Info
	maxSize := info.Opts.MaxSize
	if info.Opts.Circular && maxSize > 0 && off >= maxSize {
		off = off % maxSize
	}
	bytesWritten := 0
	for len(p) > 0 {
		if maxSize > 0 && off >= maxSize {
			if !info.Opts.Circular {
				return bytesWritten, ErrMaxSize
			}
			off = 0
		}
		partIdx := off / PartSize
		partOff := off % PartSize
		n := int64(len(p))
		if n > PartSize-partOff {
			n = PartSize - partOff
		}
		if maxSize > 0 && n > maxSize-off {
			n = maxSize - off
		}
		// pull existing bytes unless this write covers the whole part
		pullFromDB := !(partOff == 0 && n == PartSize)
		block, err := entry.getBlockLocked(ctx, int(partIdx), pullFromDB)
		if err != nil {
			return bytesWritten, fmt.Errorf("error getting cache block: %w", err)
		}
		if int(partOff) > len(block.data) {
			// zero-fill the gap to preserve positional semantics
			block.data = append(block.data, make([]byte, int(partOff)-len(block.data))...)
		}
		for i := int64(0); i < n; i++ {
			idx := int(partOff + i)
			if idx < len(block.data) {
				block.data[idx] = p[i]
			} else {
				block.data = append(block.data, p[i])
			}
		}
		block.size = len(block.data)
		block.dirty = true
		bytesWritten += int(n)
		off += n
		p = p[n:]
		if off > info.Size {
			info.Size = off
		}
		if maxSize > 0 && info.Size > maxSize {
			info.Size = maxSize
		}
	}
	entry.Info.ModTs = time.Now().UnixMilli()
	return bytesWritten, nil
}

// ReadAt reads into *p starting at the absolute offset off, stopping at
// end-of-file. Circular files wrap identically to WriteAt. Returns the
// number of bytes read.
func ReadAt(ctx context.Context, blockId string, name string, p *[]byte, off int64) (int, error) {
	entry, err := getCacheEntryOrPopulate(ctx, blockId, name)
	if err != nil {
		return 0, fmt.Errorf("ReadAt err: %w", err)
	}
	entry.incRefs()
	defer entry.decRefs()
	entry.Lock.Lock()
	defer entry.Lock.Unlock()
	info := entry.Info
	maxSize := info.Opts.MaxSize
	if info.Opts.Circular && maxSize > 0 && off >= maxSize {
		off = off % maxSize
	}
	if off > info.Size {
		return 0, fmt.Errorf("ReadAt error: tried to read past the end of the file")
	}
	bytesToRead := int64(len(*p))
	if bytesToRead > info.Size-off {
		bytesToRead = info.Size - off
	}
	bytesRead := 0
	for bytesToRead > 0 {
		if maxSize > 0 && off >= maxSize {
			if !info.Opts.Circular {
				break
			}
			off = 0
		}
		partIdx := off / PartSize
		partOff := off % PartSize
		n := bytesToRead
		if n > PartSize-partOff {
			n = PartSize - partOff
		}
		if maxSize > 0 && n > maxSize-off {
			n = maxSize - off
		}
		block, err := entry.getBlockLocked(ctx, int(partIdx), true)
		if err != nil {
			return bytesRead, fmt.Errorf("error getting cache block: %w", err)
		}
		avail := int64(len(block.data)) - partOff
		if avail <= 0 {
			return bytesRead, nil
		}
		if n > avail {
			n = avail
		}
		copy((*p)[bytesRead:bytesRead+int(n)], block.data[partOff:partOff+n])
		bytesRead += int(n)
		bytesToRead -= n
		off += n
	}
	return bytesRead, nil
}

// Stat returns a deep copy of the file info, populating the cache entry as a
// side effect.
func Stat(ctx context.Context, blockId string, name string) (*FileInfo, error) {
	entry, err := getCacheEntryOrPopulate(ctx, blockId, name)
	if err != nil {
		return nil, err
	}
	entry.Lock.Lock()
	defer entry.Lock.Unlock()
	return deepCopyFileInfo(entry.Info), nil
}

// WriteMeta replaces the metadata map of a file.
func WriteMeta(ctx context.Context, blockId string, name string, meta FileMeta) error {
	entry, err := getCacheEntryOrPopulate(ctx, blockId, name)
	if err != nil {
		return err
	}
	entry.Lock.Lock()
	defer entry.Lock.Unlock()
	entry.Info.Meta = meta
	entry.Info.ModTs = time.Now().UnixMilli()
	entry.dirtyInfo = true
	return nil
}

// DeleteFile removes a file from the cache and the SQL backend.
func DeleteFile(ctx context.Context, blockId string, name string) error {
	deleteCacheEntry(blockId, name)
	return deleteFileFromDB(ctx, blockId, name)
}

// DeleteBlock removes every file of a block.
func DeleteBlock(ctx context.Context, blockId string) error {
	deleteBlockFromCache(blockId)
	return deleteBlockFromDB(ctx, blockId)
}

// ListFiles returns the file infos of a block.
func ListFiles(ctx context.Context, blockId string) []*FileInfo {
	fInfoArr, err := getAllFilesInDBForBlockId(ctx, blockId)
	if err != nil {
		return nil
	}
	return fInfoArr
}

// ListAllFiles returns every file info in the store.
func ListAllFiles(ctx context.Context) []*FileInfo {
	fInfoArr, err := getAllFilesInDB(ctx)
	if err != nil {
		return nil
	}
	return fInfoArr
}

// GetAllBlockIds returns the distinct block ids in the store.
func GetAllBlockIds(ctx context.Context) []string {
	rtn, err := getAllBlockIdsInDB(ctx)
	if err != nil {
		return nil
	}
	return rtn
}

func deepCopyFileInfo(fInfo *FileInfo) *FileInfo {
	fInfoMeta := make(FileMeta, len(fInfo.Meta))
	for k, v := range fInfo.Meta {
		fInfoMeta[k] = v
	}
	fInfoCopy := *fInfo
	fInfoCopy.Meta = fInfoMeta
	return &fInfoCopy
}
