package blockstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type cacheKey struct {
	BlockId string
	Name    string
}

// The cache is intentionally process-global: one mapping of
// (blockid, name) -> *CacheEntry, guarded by globalLock. Entry contents are
// guarded by the per-entry lock; globalLock is held only while inserting or
// removing entries.
var blockstoreCache = make(map[cacheKey]*CacheEntry)
var globalLock = &sync.Mutex{}

// appendLock serializes AppendData calls so append ordering is preserved
// within the process.
var appendLock = &sync.Mutex{}

// CacheBlock is one 128KiB part of a file. size always equals len(data).
type CacheBlock struct {
	data  []byte
	size  int
	dirty bool
}

// CacheEntry holds the cached parts of one file. Callers that may sleep
// between operations hold a ref so flush cannot evict the entry under them.
type CacheEntry struct {
	Lock       *sync.Mutex
	CacheTs    int64
	Info       *FileInfo
	DataBlocks []*CacheBlock
	dirtyInfo  bool

	refLock *sync.Mutex
	refs    int64
}

func makeCacheEntry(info *FileInfo) *CacheEntry {
	return &CacheEntry{
		Lock:    &sync.Mutex{},
		CacheTs: time.Now().UnixMilli(),
		Info:    info,
		refLock: &sync.Mutex{},
	}
}

func (entry *CacheEntry) incRefs() {
	entry.refLock.Lock()
	defer entry.refLock.Unlock()
	entry.refs++
}

func (entry *CacheEntry) decRefs() {
	entry.refLock.Lock()
	defer entry.refLock.Unlock()
	entry.refs--
}

func (entry *CacheEntry) getRefs() int64 {
	entry.refLock.Lock()
	defer entry.refLock.Unlock()
	return entry.refs
}

func getCacheEntry(blockId string, name string) (*CacheEntry, bool) {
	globalLock.Lock()
	defer globalLock.Unlock()
	entry, found := blockstoreCache[cacheKey{BlockId: blockId, Name: name}]
	return entry, found
}

func setCacheEntry(key cacheKey, entry *CacheEntry) *CacheEntry {
	globalLock.Lock()
	defer globalLock.Unlock()
	if cur, found := blockstoreCache[key]; found {
		return cur
	}
	blockstoreCache[key] = entry
	return entry
}

func deleteCacheEntry(blockId string, name string) {
	globalLock.Lock()
	defer globalLock.Unlock()
	delete(blockstoreCache, cacheKey{BlockId: blockId, Name: name})
}

func deleteBlockFromCache(blockId string) {
	globalLock.Lock()
	defer globalLock.Unlock()
	for key := range blockstoreCache {
		if key.BlockId == blockId {
			delete(blockstoreCache, key)
		}
	}
}

func snapshotCacheEntries() []*CacheEntry {
	globalLock.Lock()
	defer globalLock.Unlock()
	rtn := make([]*CacheEntry, 0, len(blockstoreCache))
	for _, entry := range blockstoreCache {
		rtn = append(rtn, entry)
	}
	return rtn
}

// for testing
func clearCache() {
	globalLock.Lock()
	defer globalLock.Unlock()
	blockstoreCache = make(map[cacheKey]*CacheEntry)
}

// getCacheEntryOrPopulate returns the cache entry for (blockId, name),
// loading the file info from the SQL backend on a miss. After a successful
// load a cache entry must always exist.
func getCacheEntryOrPopulate(ctx context.Context, blockId string, name string) (*CacheEntry, error) {
	if entry, found := getCacheEntry(blockId, name); found {
		return entry, nil
	}
	fInfo, err := getFileInfo(ctx, blockId, name)
	if err != nil {
		return nil, err
	}
	entry := setCacheEntry(cacheKey{BlockId: blockId, Name: name}, makeCacheEntry(fInfo))
	if entry == nil {
		return nil, fmt.Errorf("cache entry not found for %s:%s", blockId, name)
	}
	return entry, nil
}

// getBlockLocked returns part cacheNum, materializing it on demand: from the
// SQL backend when pre-existing data must be preserved, empty otherwise.
// Caller holds the entry lock.
func (entry *CacheEntry) getBlockLocked(ctx context.Context, cacheNum int, pullFromDB bool) (*CacheBlock, error) {
	for len(entry.DataBlocks) < cacheNum+1 {
		entry.DataBlocks = append(entry.DataBlocks, nil)
	}
	if entry.DataBlocks[cacheNum] != nil {
		return entry.DataBlocks[cacheNum], nil
	}
	var block *CacheBlock
	if pullFromDB {
		data, err := getPartDataFromDB(ctx, entry.Info.BlockId, entry.Info.Name, cacheNum)
		if err != nil {
			return nil, err
		}
		block = &CacheBlock{data: data, size: len(data)}
	} else {
		block = &CacheBlock{}
	}
	entry.DataBlocks[cacheNum] = block
	return block, nil
}

// FlushCache write-throughs every dirty part and file info to the SQL
// backend, dropping clean in-memory parts. Entries with no refs and no
// remaining dirty state are evicted.
func FlushCache(ctx context.Context) error {
	for _, entry := range snapshotCacheEntries() {
		entry.Lock.Lock()
		err := writeFileInfoToDB(ctx, *entry.Info)
		if err != nil {
			entry.Lock.Unlock()
			return err
		}
		entry.dirtyInfo = false
		for idx, block := range entry.DataBlocks {
			if block == nil {
				continue
			}
			if block.dirty {
				err := writePartDataToDB(ctx, entry.Info.BlockId, entry.Info.Name, idx, block.data)
				if err != nil {
					entry.Lock.Unlock()
					return err
				}
				block.dirty = false
			}
			entry.DataBlocks[idx] = nil
		}
		canEvict := entry.getRefs() <= 0
		entry.Lock.Unlock()
		if canEvict {
			deleteCacheEntry(entry.Info.BlockId, entry.Info.Name)
		}
	}
	return nil
}
