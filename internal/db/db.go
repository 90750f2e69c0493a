// Package db owns the primary SQL store: opening it with the right pragmas,
// migrating the schema, and running every write through a single-writer
// transaction wrapper.
package db

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

const (
	DBFileName          = "termwork.db"
	DBWALFileName       = "termwork.db-wal"
	DBFileNameBackup    = "backup.termwork.db"
	DBWALFileNameBackup = "backup.termwork.db-wal"
)

var globalDBLock = &sync.Mutex{}
var globalDB *sql.DB
var globalDBPath string

// Open opens (or creates) the primary store at dbPath. SQLite only supports
// one concurrent writer; limiting the pool to a single connection serializes
// all access through it, preventing "database is locked" errors.
func Open(dbPath string) error {
	globalDBLock.Lock()
	defer globalDBLock.Unlock()
	if globalDB != nil {
		return fmt.Errorf("db already open at %s", globalDBPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	// Wait on locks instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	globalDB = db
	globalDBPath = dbPath
	log.Debug().Str("path", dbPath).Msg("opened primary store")
	return nil
}

// Close closes the primary store.
func Close() {
	globalDBLock.Lock()
	defer globalDBLock.Unlock()
	if globalDB == nil {
		return
	}
	if err := globalDB.Close(); err != nil {
		log.Error().Err(err).Msg("error closing primary store")
	}
	globalDB = nil
	globalDBPath = ""
}

func getDB() (*sql.DB, error) {
	globalDBLock.Lock()
	defer globalDBLock.Unlock()
	if globalDB == nil {
		return nil, fmt.Errorf("db not open")
	}
	return globalDB, nil
}

// BackupDB copies the store and its WAL next to itself under the backup
// names. Runs after a successful migration so a bad upgrade can be undone.
func BackupDB() error {
	globalDBLock.Lock()
	dbPath := globalDBPath
	globalDBLock.Unlock()
	if dbPath == "" {
		return fmt.Errorf("db not open")
	}
	dir := filepath.Dir(dbPath)
	if err := copyFileIfExists(dbPath, filepath.Join(dir, DBFileNameBackup)); err != nil {
		return err
	}
	return copyFileIfExists(filepath.Join(dir, DBWALFileName), filepath.Join(dir, DBWALFileNameBackup))
}

func copyFileIfExists(srcPath string, dstPath string) error {
	src, err := os.Open(srcPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}
