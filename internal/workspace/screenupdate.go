package workspace

import (
	"context"
	"errors"
	"time"

	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/pkg/dbmap"
	"github.com/thebtf/termwork/pkg/models"
)

// The persistent screen-update log drives web-share delivery: rows are
// appended inside the mutating transaction and drained by the update writer.

func isWebShare(tx *db.TxWrap, screenId string) bool {
	return tx.Exists(`SELECT screenid FROM screen WHERE screenid = ? AND sharemode = ?`, screenId, models.ShareModeWeb)
}

// IsWebShare reports whether a screen is currently web-shared.
func IsWebShare(ctx context.Context, screenId string) (bool, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (bool, error) {
		return isWebShare(tx, screenId), nil
	})
}

func insertScreenUpdate(tx *db.TxWrap, screenId string, updateType string) {
	if screenId == "" {
		tx.SetErr(errors.New("invalid screen-update, screenid is empty"))
		return
	}
	nowTs := time.Now().UnixMilli()
	query := `INSERT INTO screenupdate (screenid, lineid, updatetype, updatets) VALUES (?, ?, ?, ?)`
	tx.Exec(query, screenId, "", updateType, nowTs)
	NotifyUpdateWriter()
}

// InsertScreenLineUpdate appends a line-scoped update row. line:new and
// line:del first delete any prior rows for the same (screen, line) — latest
// wins; line:new also inserts the paired pty:pos row.
func InsertScreenLineUpdate(tx *db.TxWrap, screenId string, lineId string, updateType string) {
	if screenId == "" {
		tx.SetErr(errors.New("invalid screen-update, screenid is empty"))
		return
	}
	if lineId == "" {
		tx.SetErr(errors.New("invalid screen-update, lineid is empty"))
		return
	}
	if updateType == models.UpdateType_LineNew || updateType == models.UpdateType_LineDel {
		tx.Exec(`DELETE FROM screenupdate WHERE screenid = ? AND lineid = ?`, screenId, lineId)
	}
	nowTs := time.Now().UnixMilli()
	query := `INSERT INTO screenupdate (screenid, lineid, updatetype, updatets) VALUES (?, ?, ?, ?)`
	tx.Exec(query, screenId, lineId, updateType, nowTs)
	if updateType == models.UpdateType_LineNew {
		tx.Exec(query, screenId, lineId, models.UpdateType_PtyPos, nowTs)
	}
	NotifyUpdateWriter()
}

// insertScreenNewUpdate seeds the log with line:new (and pty:pos for cmd
// lines) for every non-archived line of a freshly shared screen.
func insertScreenNewUpdate(tx *db.TxWrap, screenId string) {
	nowTs := time.Now().UnixMilli()
	query := `INSERT INTO screenupdate (screenid, lineid, updatetype, updatets)
              SELECT screenid, lineid, ?, ? FROM line WHERE screenid = ? AND NOT archived ORDER BY linenum DESC`
	tx.Exec(query, models.UpdateType_LineNew, nowTs, screenId)
	query = `INSERT INTO screenupdate (screenid, lineid, updatetype, updatets)
             SELECT c.screenid, c.lineid, ?, ? FROM cmd c, line l WHERE c.screenid = ? AND l.lineid = c.lineid AND NOT l.archived ORDER BY l.linenum DESC`
	tx.Exec(query, models.UpdateType_PtyPos, nowTs, screenId)
	NotifyUpdateWriter()
}

func handleScreenDelUpdate(tx *db.TxWrap, screenId string) {
	tx.Exec(`DELETE FROM screenupdate WHERE screenid = ?`, screenId)
	tx.Exec(`DELETE FROM webptypos WHERE screenid = ?`, screenId)
}

func insertScreenDelUpdate(tx *db.TxWrap, screenId string) {
	handleScreenDelUpdate(tx, screenId)
	insertScreenUpdate(tx, screenId, models.UpdateType_ScreenDel)
}

// GetScreenUpdates drains up to maxNum rows from the log in insertion order.
func GetScreenUpdates(ctx context.Context, maxNum int) ([]*models.ScreenUpdate, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*models.ScreenUpdate, error) {
		query := `SELECT * FROM screenupdate ORDER BY updateid LIMIT ?`
		return db.SelectMapsGen[*models.ScreenUpdate](tx, query, maxNum), nil
	})
}

// CountScreenUpdates counts pending log rows.
func CountScreenUpdates(ctx context.Context) (int, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (int, error) {
		return tx.GetInt(`SELECT count(*) FROM screenupdate`), nil
	})
}

// RemoveScreenUpdate deletes one delivered row. Negative ids denote
// in-memory updates that never hit the log.
func RemoveScreenUpdate(ctx context.Context, updateId int64) error {
	if updateId < 0 {
		return nil
	}
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`DELETE FROM screenupdate WHERE updateid = ?`, updateId)
		return nil
	})
}

// RemoveScreenUpdates deletes a batch of delivered rows.
func RemoveScreenUpdates(ctx context.Context, updateIds []int64) error {
	if len(updateIds) == 0 {
		return nil
	}
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `DELETE FROM screenupdate WHERE updateid IN (SELECT value FROM json_each(?))`
		tx.Exec(query, dbmap.QuickJsonArr(updateIds))
		return nil
	})
}

// GetWebPtyPos returns the delivered pty position of a shared line.
func GetWebPtyPos(ctx context.Context, screenId string, lineId string) (int64, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (int64, error) {
		query := `SELECT ptypos FROM webptypos WHERE screenid = ? AND lineid = ?`
		return tx.GetInt64(query, screenId, lineId), nil
	})
}

// SetWebPtyPos upserts the delivered pty position of a shared line.
func SetWebPtyPos(ctx context.Context, screenId string, lineId string, ptyPos int64) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT screenid FROM webptypos WHERE screenid = ? AND lineid = ?`
		if tx.Exists(query, screenId, lineId) {
			tx.Exec(`UPDATE webptypos SET ptypos = ? WHERE screenid = ? AND lineid = ?`, ptyPos, screenId, lineId)
		} else {
			tx.Exec(`INSERT INTO webptypos (screenid, lineid, ptypos) VALUES (?, ?, ?)`, screenId, lineId, ptyPos)
		}
		return nil
	})
}

// DeleteWebPtyPos drops the delivered pty position of a line.
func DeleteWebPtyPos(ctx context.Context, screenId string, lineId string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`DELETE FROM webptypos WHERE screenid = ? AND lineid = ?`, screenId, lineId)
		return nil
	})
}

// MaybeInsertPtyPosUpdate appends a pty:pos row when the screen is shared.
func MaybeInsertPtyPosUpdate(ctx context.Context, screenId string, lineId string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !isWebShare(tx, screenId) {
			return nil
		}
		InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_PtyPos)
		return nil
	})
}
