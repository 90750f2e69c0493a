package blockstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Incremental-JSON files hold newline-delimited JSON objects where each
// object is a shallow patch over the accumulated snapshot (a null value
// deletes the key).

// CollapseIJson compacts an incremental-JSON file into a single snapshot
// object, rewriting the file contents in place.
func CollapseIJson(ctx context.Context, blockId string, name string) error {
	fInfo, err := Stat(ctx, blockId, name)
	if err != nil {
		return fmt.Errorf("CollapseIJson stat error: %w", err)
	}
	if !fInfo.Opts.IJson {
		return fmt.Errorf("CollapseIJson: file %s:%s is not an ijson file", blockId, name)
	}
	if fInfo.Size == 0 {
		return nil
	}
	buf := make([]byte, fInfo.Size)
	n, err := ReadAt(ctx, blockId, name, &buf, 0)
	if err != nil {
		return fmt.Errorf("CollapseIJson read error: %w", err)
	}
	snapshot, err := foldIJson(buf[:n])
	if err != nil {
		return err
	}
	collapsed, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	collapsed = append(collapsed, '\n')
	// rewrite: drop the old part data, then write the snapshot at offset 0
	entry, err := getCacheEntryOrPopulate(ctx, blockId, name)
	if err != nil {
		return err
	}
	entry.incRefs()
	defer entry.decRefs()
	entry.Lock.Lock()
	defer entry.Lock.Unlock()
	if err := deleteFileParts(ctx, blockId, name); err != nil {
		return err
	}
	entry.DataBlocks = nil
	entry.Info.Size = 0
	_, err = entry.writeAtLocked(ctx, collapsed, 0)
	return err
}

func foldIJson(data []byte) (map[string]any, error) {
	snapshot := make(map[string]any)
	for lineNo, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var patch map[string]any
		if err := json.Unmarshal(line, &patch); err != nil {
			return nil, fmt.Errorf("invalid ijson line %d: %w", lineNo+1, err)
		}
		for k, v := range patch {
			if v == nil {
				delete(snapshot, k)
				continue
			}
			snapshot[k] = v
		}
	}
	return snapshot, nil
}
