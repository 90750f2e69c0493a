package workspace

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/termwork/internal/cirfile"
	"github.com/thebtf/termwork/internal/config"
	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/pkg/models"
)

// DefaultMaxPtySize bounds a command's terminal output file.
const DefaultMaxPtySize = 1024 * 1024

// MaxDBFileSize is the inline-artefact threshold reserved for a future pty
// file migration.
const MaxDBFileSize = 10 * 1024

var screenDirLock = &sync.Mutex{}
var screenDirCache = make(map[string]string) // locked with screenDirLock

// EnsureScreenDir returns (creating if needed) the per-screen directory
// under the app home. The lookup is memoised.
func EnsureScreenDir(screenId string) (string, error) {
	if screenId == "" {
		return "", fmt.Errorf("cannot get screen dir for blank screenid")
	}
	screenDirLock.Lock()
	sdir, ok := screenDirCache[screenId]
	screenDirLock.Unlock()
	if ok {
		return sdir, nil
	}
	sdir = filepath.Join(config.GetScreensDir(), screenId)
	if err := config.EnsureDir(sdir); err != nil {
		return "", err
	}
	screenDirLock.Lock()
	screenDirCache[screenId] = sdir
	screenDirLock.Unlock()
	return sdir, nil
}

// EnsureSessionDir returns (creating if needed) the per-session directory.
func EnsureSessionDir(sessionId string) (string, error) {
	if sessionId == "" {
		return "", fmt.Errorf("cannot get session dir for blank sessionid")
	}
	sdir := filepath.Join(config.GetSessionsDir(), sessionId)
	if err := config.EnsureDir(sdir); err != nil {
		return "", err
	}
	return sdir, nil
}

// PtyOutFile returns the path of the circular pty-output file for a line.
func PtyOutFile(screenId string, lineId string) (string, error) {
	sdir, err := EnsureScreenDir(screenId)
	if err != nil {
		return "", err
	}
	if lineId == "" {
		return "", fmt.Errorf("cannot get ptyout file for blank lineid")
	}
	return fmt.Sprintf("%s/%s.ptyout.cf", sdir, lineId), nil
}

// CreateCmdPtyFile creates the bounded circular output file for a cmd.
func CreateCmdPtyFile(ctx context.Context, screenId string, lineId string, maxSize int64) error {
	ptyOutFileName, err := PtyOutFile(screenId, lineId)
	if err != nil {
		return err
	}
	f, err := cirfile.CreateCirFile(ptyOutFileName, maxSize)
	if err != nil {
		return err
	}
	return f.Close()
}

// StatCmdPtyFile stats a cmd's output file.
func StatCmdPtyFile(ctx context.Context, screenId string, lineId string) (*cirfile.Stat, error) {
	ptyOutFileName, err := PtyOutFile(screenId, lineId)
	if err != nil {
		return nil, err
	}
	return cirfile.StatCirFile(ctx, ptyOutFileName)
}

// ClearCmdPtyFile removes and recreates a cmd's output file, preserving the
// previous max size.
func ClearCmdPtyFile(ctx context.Context, screenId string, lineId string) error {
	ptyOutFileName, err := PtyOutFile(screenId, lineId)
	if err != nil {
		return err
	}
	stat, err := cirfile.StatCirFile(ctx, ptyOutFileName)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	os.Remove(ptyOutFileName) // ignore error
	var maxSize int64 = DefaultMaxPtySize
	if stat != nil {
		maxSize = stat.MaxSize
	}
	return CreateCmdPtyFile(ctx, screenId, lineId, maxSize)
}

// AppendToCmdPtyBlob appends terminal output at the given stream position.
// Web-shared screens get an incremental pty:pos row so remote watchers can
// tail.
func AppendToCmdPtyBlob(ctx context.Context, screenId string, lineId string, data []byte, pos int64) (*models.PtyDataUpdate, error) {
	if screenId == "" {
		return nil, fmt.Errorf("cannot append to PtyBlob, screenid is not set")
	}
	if pos < 0 {
		return nil, fmt.Errorf("invalid seek pos '%d' in AppendToCmdPtyBlob", pos)
	}
	ptyOutFileName, err := PtyOutFile(screenId, lineId)
	if err != nil {
		return nil, err
	}
	f, err := cirfile.OpenCirFile(ptyOutFileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := f.WriteAt(ctx, data, pos); err != nil {
		return nil, err
	}
	update := &models.PtyDataUpdate{
		ScreenId:   screenId,
		LineId:     lineId,
		PtyPos:     pos,
		PtyData64:  base64.StdEncoding.EncodeToString(data),
		PtyDataLen: int64(len(data)),
	}
	if err := MaybeInsertPtyPosUpdate(ctx, screenId, lineId); err != nil {
		// just log
		log.Error().Err(err).Str("screenid", screenId).Str("lineid", lineId).Msg("error inserting ptypos update")
	}
	return update, nil
}

// ReadFullPtyOutFile returns (real-offset, data) for the whole file.
func ReadFullPtyOutFile(ctx context.Context, screenId string, lineId string) (int64, []byte, error) {
	ptyOutFileName, err := PtyOutFile(screenId, lineId)
	if err != nil {
		return 0, nil, err
	}
	f, err := cirfile.OpenCirFile(ptyOutFileName)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	return f.ReadAll(ctx)
}

// ReadPtyOutFile returns (real-offset, data) for up to maxSize bytes from
// offset.
func ReadPtyOutFile(ctx context.Context, screenId string, lineId string, offset int64, maxSize int64) (int64, []byte, error) {
	ptyOutFileName, err := PtyOutFile(screenId, lineId)
	if err != nil {
		return 0, nil, err
	}
	f, err := cirfile.OpenCirFile(ptyOutFileName)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	return f.ReadAtWithMax(ctx, offset, maxSize)
}

// DeletePtyOutFile removes a cmd's output file.
func DeletePtyOutFile(ctx context.Context, screenId string, lineId string) error {
	ptyOutFileName, err := PtyOutFile(screenId, lineId)
	if err != nil {
		return err
	}
	err = os.Remove(ptyOutFileName)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// TryConvertPtyFile is reserved for a future migration of small pty files
// into the per-screen store; only the size gate is implemented.
func TryConvertPtyFile(ctx context.Context, screenId string, lineId string) error {
	stat, err := StatCmdPtyFile(ctx, screenId, lineId)
	if err != nil {
		return fmt.Errorf("convert ptyfile, cannot stat: %w", err)
	}
	if stat.DataSize > MaxDBFileSize {
		return nil
	}
	return nil
}

// cleanScreenCmds deletes cmd rows (and their pty files) whose lines are
// gone. The screen itself may already be deleted.
func cleanScreenCmds(ctx context.Context, screenId string) error {
	var removedCmds []string
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT lineid FROM cmd WHERE screenid = ? AND lineid NOT IN (SELECT lineid FROM line WHERE screenid = ?)`
		removedCmds = tx.SelectStrings(query, screenId, screenId)
		query = `DELETE FROM cmd WHERE screenid = ? AND lineid NOT IN (SELECT lineid FROM line WHERE screenid = ?)`
		tx.Exec(query, screenId, screenId)
		return nil
	})
	if txErr != nil {
		return txErr
	}
	for _, lineId := range removedCmds {
		if err := DeletePtyOutFile(ctx, screenId, lineId); err != nil {
			log.Error().Err(err).Str("screenid", screenId).Str("lineid", lineId).Msg("error deleting ptyout file")
		}
	}
	return nil
}

// GoDeleteScreenDirs removes screen directories asynchronously, each under
// a one-minute timeout.
func GoDeleteScreenDirs(screenIds ...string) {
	go func() {
		for _, screenId := range screenIds {
			deleteScreenDirMakeCtx(screenId)
		}
	}()
}

func deleteScreenDirMakeCtx(screenId string) {
	ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
	defer cancelFn()
	if err := DeleteScreenDir(ctx, screenId); err != nil {
		log.Error().Err(err).Str("screenid", screenId).Msg("error deleting screendir")
	}
}

// DeleteScreenDir removes a screen directory and forgets its memoised path.
func DeleteScreenDir(ctx context.Context, screenId string) error {
	screenDir, err := EnsureScreenDir(screenId)
	if err != nil {
		return fmt.Errorf("error getting screendir: %w", err)
	}
	screenDirLock.Lock()
	delete(screenDirCache, screenId)
	screenDirLock.Unlock()
	log.Debug().Str("dir", screenDir).Msg("removing screen dir")
	return os.RemoveAll(screenDir)
}

func directorySize(dirName string) (models.SessionDiskSize, error) {
	var rtn models.SessionDiskSize
	rtn.Location = dirName
	entries, err := os.ReadDir(dirName)
	if err != nil {
		return rtn, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			rtn.ErrorCount++
			continue
		}
		finfo, err := entry.Info()
		if err != nil {
			rtn.ErrorCount++
			continue
		}
		rtn.NumFiles++
		rtn.TotalSize += finfo.Size()
	}
	return rtn, nil
}

// SessionDiskSize reports the disk usage of one session directory.
func SessionDiskSize(sessionId string) (models.SessionDiskSize, error) {
	sessionDir, err := EnsureSessionDir(sessionId)
	if err != nil {
		return models.SessionDiskSize{}, err
	}
	return directorySize(sessionDir)
}

// FullSessionDiskSize reports disk usage per session. Non-uuid entries in
// the sessions dir are ignored.
func FullSessionDiskSize() (map[string]models.SessionDiskSize, error) {
	sdir := config.GetSessionsDir()
	entries, err := os.ReadDir(sdir)
	if err != nil {
		return nil, err
	}
	rtn := make(map[string]models.SessionDiskSize)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, err := uuid.Parse(name); err != nil {
			continue
		}
		diskSize, err := directorySize(filepath.Join(sdir, name))
		if err != nil {
			continue
		}
		rtn[name] = diskSize
	}
	return rtn, nil
}
