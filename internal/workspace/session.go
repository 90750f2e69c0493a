package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/thebtf/termwork/internal/bus"
	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/pkg/models"
)

const GetAllSessionsQuery = `SELECT * FROM session ORDER BY archived, sessionidx, archivedts`

// NumSessions counts every session, archived included.
func NumSessions(ctx context.Context) (int, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (int, error) {
		return tx.GetInt(`SELECT count(*) FROM session`), nil
	})
}

// GetSessionCount counts non-archived sessions.
func GetSessionCount(ctx context.Context) (int, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (int, error) {
		return tx.GetInt(`SELECT COALESCE(count(*), 0) FROM session WHERE NOT archived`), nil
	})
}

// GetBareSessions returns all sessions (no remotes attached).
func GetBareSessions(ctx context.Context) ([]*models.Session, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*models.Session, error) {
		return db.SelectMapsGen[*models.Session](tx, GetAllSessionsQuery), nil
	})
}

// GetBareSessionById returns one session or nil.
func GetBareSessionById(ctx context.Context, sessionId string) (*models.Session, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Session, error) {
		query := `SELECT * FROM session WHERE sessionid = ?`
		return db.GetMapGen[*models.Session](tx, query, sessionId), nil
	})
}

// GetSessionById returns one session with its remote instances attached.
func GetSessionById(ctx context.Context, sessionId string) (*models.Session, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Session, error) {
		query := `SELECT * FROM session WHERE sessionid = ?`
		sess := db.GetMapGen[*models.Session](tx, query, sessionId)
		if sess == nil {
			return nil, nil
		}
		query = `SELECT * FROM remote_instance WHERE sessionid = ?`
		sess.Remotes = db.SelectMapsGen[*models.RemoteInstance](tx, query, sessionId)
		return sess, nil
	})
}

// GetSessionByName returns the session with the given name or nil.
func GetSessionByName(ctx context.Context, name string) (*models.Session, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Session, error) {
		sessionId := tx.GetString(`SELECT sessionid FROM session WHERE name = ?`, name)
		if sessionId == "" {
			return nil, nil
		}
		return GetSessionById(tx.Context(), sessionId)
	})
}

// GetFirstSessionId returns the non-archived session with the lowest index
// ("" when none exist). Used to reset the active session.
func GetFirstSessionId(ctx context.Context) (string, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (string, error) {
		ids := tx.SelectStrings(`SELECT sessionid FROM session WHERE NOT archived ORDER BY sessionidx`)
		if len(ids) == 0 {
			return "", nil
		}
		return ids[0], nil
	})
}

// GetActiveSessionId returns the client's active session id.
func GetActiveSessionId(ctx context.Context) (string, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (string, error) {
		return tx.GetString(`SELECT activesessionid FROM client`), nil
	})
}

// SetActiveSessionId switches the active session.
func SetActiveSessionId(ctx context.Context, sessionId string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT sessionid FROM session WHERE sessionid = ?`, sessionId) {
			return fmt.Errorf("cannot switch to session, not found")
		}
		tx.Exec(`UPDATE client SET activesessionid = ?`, sessionId)
		return nil
	})
}

// fixActiveSessionId repoints the client at the first non-archived session
// when the current active session is gone or archived. Returns the new
// active session id ("" when unchanged).
func fixActiveSessionId(ctx context.Context) (string, error) {
	var newActiveSessionId string
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		curActiveSessionId := tx.GetString(`SELECT activesessionid FROM client`)
		query := `SELECT sessionid FROM session WHERE sessionid = ? AND NOT archived`
		if tx.Exists(query, curActiveSessionId) {
			return nil
		}
		var err error
		newActiveSessionId, err = GetFirstSessionId(tx.Context())
		if err != nil {
			return err
		}
		tx.Exec(`UPDATE client SET activesessionid = ?`, newActiveSessionId)
		return nil
	})
	if txErr != nil {
		return "", txErr
	}
	return newActiveSessionId, nil
}

// InsertSessionWithName creates a session (name uniqued as "workspace-%d"
// when empty or taken) with one initial screen, optionally activating it.
func InsertSessionWithName(ctx context.Context, sessionName string, activate bool) (*bus.ModelUpdatePacket, error) {
	var newScreen *models.Screen
	newSessionId := GenUUID()
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		names := tx.SelectStrings(`SELECT name FROM session`)
		sessionName = FmtUniqueName(sessionName, "workspace-%d", len(names)+1, names)
		maxSessionIdx := tx.GetInt(`SELECT COALESCE(max(sessionidx), 0) FROM session`)
		query := `INSERT INTO session (sessionid, name, activescreenid, sessionidx, notifynum, archived, archivedts, sharemode)
		                       VALUES (?,         ?,    '',             ?,          0,         0,        0,          ?)`
		tx.Exec(query, newSessionId, sessionName, maxSessionIdx+1, models.ShareModeLocal)
		screenUpdate, err := InsertScreen(tx.Context(), newSessionId, "", models.ScreenCreateOpts{}, true)
		if err != nil {
			return err
		}
		screenUpdateItems := bus.GetUpdateItems[models.Screen](screenUpdate)
		if len(screenUpdateItems) < 1 {
			return fmt.Errorf("no screen update items")
		}
		newScreen = screenUpdateItems[0]
		if activate {
			tx.Exec(`UPDATE client SET activesessionid = ?`, newSessionId)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	sess, err := GetSessionById(ctx, newSessionId)
	if err != nil {
		return nil, err
	}
	update := bus.MakeUpdatePacket()
	update.AddUpdate(*sess)
	update.AddUpdate(*newScreen)
	if activate {
		update.AddUpdate(models.ActiveSessionIdUpdate(newSessionId))
	}
	return update, nil
}

// SetSessionName renames a session, enforcing name uniqueness among
// non-archived sessions.
func SetSessionName(ctx context.Context, sessionId string, name string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT sessionid FROM session WHERE sessionid = ?`, sessionId) {
			return fmt.Errorf("session does not exist")
		}
		isArchived := tx.GetBool(`SELECT archived FROM session WHERE sessionid = ?`, sessionId)
		if !isArchived {
			dupSessionId := tx.GetString(`SELECT sessionid FROM session WHERE name = ? AND NOT archived`, name)
			if dupSessionId == sessionId {
				return nil
			}
			if dupSessionId != "" {
				return fmt.Errorf("invalid duplicate session name '%s'", name)
			}
		}
		tx.Exec(`UPDATE session SET name = ? WHERE sessionid = ?`, name, sessionId)
		return nil
	})
}

// SetSessionNotifyNum sets the notification count of a session.
func SetSessionNotifyNum(ctx context.Context, sessionId string, notifyNum int64) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE session SET notifynum = ? WHERE sessionid = ?`, notifyNum, sessionId)
		return nil
	})
}

// ArchiveSession archives a session (clearing it from the active rotation)
// and repoints the active session if needed.
func ArchiveSession(ctx context.Context, sessionId string) (*bus.ModelUpdatePacket, error) {
	if sessionId == "" {
		return nil, fmt.Errorf("invalid blank sessionid")
	}
	var newActiveSessionId string
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT sessionid FROM session WHERE sessionid = ?`, sessionId) {
			return fmt.Errorf("session does not exist")
		}
		if tx.GetBool(`SELECT archived FROM session WHERE sessionid = ?`, sessionId) {
			return nil
		}
		tx.Exec(`UPDATE session SET archived = 1, archivedts = ?, sessionidx = 0 WHERE sessionid = ?`, time.Now().UnixMilli(), sessionId)
		newActiveSessionId, _ = fixActiveSessionId(tx.Context())
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	bareSession, _ := GetBareSessionById(ctx, sessionId)
	update := bus.MakeUpdatePacket()
	if bareSession != nil {
		update.AddUpdate(*bareSession)
	}
	if newActiveSessionId != "" {
		update.AddUpdate(models.ActiveSessionIdUpdate(newActiveSessionId))
	}
	return update, nil
}

// UnArchiveSession restores an archived session, assigning it the next
// ordering index and optionally activating it.
func UnArchiveSession(ctx context.Context, sessionId string, activate bool) (*bus.ModelUpdatePacket, error) {
	if sessionId == "" {
		return nil, fmt.Errorf("invalid blank sessionid")
	}
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT sessionid FROM session WHERE sessionid = ?`, sessionId) {
			return fmt.Errorf("session does not exist")
		}
		if !tx.GetBool(`SELECT archived FROM session WHERE sessionid = ?`, sessionId) {
			return nil
		}
		maxSessionIdx := tx.GetInt(`SELECT COALESCE(max(sessionidx), 0) FROM session WHERE NOT archived`)
		tx.Exec(`UPDATE session SET archived = 0, archivedts = 0, sessionidx = ? WHERE sessionid = ?`, maxSessionIdx+1, sessionId)
		if activate {
			tx.Exec(`UPDATE client SET activesessionid = ?`, sessionId)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	bareSession, _ := GetBareSessionById(ctx, sessionId)
	update := bus.MakeUpdatePacket()
	if bareSession != nil {
		update.AddUpdate(*bareSession)
	}
	if activate {
		update.AddUpdate(models.ActiveSessionIdUpdate(sessionId))
	}
	return update, nil
}

// DeleteSession permanently deletes a session, cascading to its screens,
// leaving a tombstone, and fixing the active session id.
func DeleteSession(ctx context.Context, sessionId string) (*bus.ModelUpdatePacket, error) {
	var newActiveSessionId string
	var screenIds []string
	var sessionTombstone *models.SessionTombstone
	update := bus.MakeUpdatePacket()
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		bareSession, err := GetBareSessionById(tx.Context(), sessionId)
		if err != nil {
			return fmt.Errorf("cannot get session to delete: %w", err)
		}
		if bareSession == nil {
			return fmt.Errorf("cannot delete session (not found)")
		}
		screenIds = tx.SelectStrings(`SELECT screenid FROM screen WHERE sessionid = ?`, sessionId)
		for _, screenId := range screenIds {
			if _, err := DeleteScreen(tx.Context(), screenId, true, update); err != nil {
				return fmt.Errorf("error deleting screen[%s]: %w", screenId, err)
			}
		}
		tx.Exec(`DELETE FROM remote_instance WHERE sessionid = ?`, sessionId)
		tx.Exec(`DELETE FROM session WHERE sessionid = ?`, sessionId)
		newActiveSessionId, _ = fixActiveSessionId(tx.Context())
		sessionTombstone = &models.SessionTombstone{
			SessionId: sessionId,
			Name:      bareSession.Name,
			DeletedTs: time.Now().UnixMilli(),
		}
		query := `INSERT INTO session_tombstone ( sessionid, name, deletedts)
		                                 VALUES (:sessionid,:name,:deletedts)`
		tx.NamedExec(query, sessionTombstone.ToMap())
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	GoDeleteScreenDirs(screenIds...)
	if newActiveSessionId != "" {
		update.AddUpdate(models.ActiveSessionIdUpdate(newActiveSessionId))
	}
	update.AddUpdate(models.Session{SessionId: sessionId, Remove: true})
	if sessionTombstone != nil {
		update.AddUpdate(*sessionTombstone)
	}
	return update, nil
}

// GetSessionTombstones lists deletion records, newest first.
func GetSessionTombstones(ctx context.Context) ([]*models.SessionTombstone, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*models.SessionTombstone, error) {
		query := `SELECT * FROM session_tombstone ORDER BY deletedts DESC`
		return db.SelectMapsGen[*models.SessionTombstone](tx, query), nil
	})
}

// GetSessionStats reports per-session row counts and disk usage.
func GetSessionStats(ctx context.Context, sessionId string) (*models.SessionStats, error) {
	rtn := &models.SessionStats{SessionId: sessionId}
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT sessionid FROM session WHERE sessionid = ?`, sessionId) {
			return fmt.Errorf("not found")
		}
		rtn.NumScreens = tx.GetInt(`SELECT count(*) FROM screen WHERE sessionid = ? AND NOT archived`, sessionId)
		rtn.NumArchivedScreens = tx.GetInt(`SELECT count(*) FROM screen WHERE sessionid = ? AND archived`, sessionId)
		rtn.NumLines = tx.GetInt(`SELECT count(*) FROM line WHERE screenid IN (SELECT screenid FROM screen WHERE sessionid = ?)`, sessionId)
		rtn.NumCmds = tx.GetInt(`SELECT count(*) FROM cmd WHERE screenid IN (SELECT screenid FROM screen WHERE sessionid = ?)`, sessionId)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	diskSize, err := SessionDiskSize(sessionId)
	if err != nil {
		return nil, err
	}
	rtn.DiskStats = diskSize
	return rtn, nil
}
