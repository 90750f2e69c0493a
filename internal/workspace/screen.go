package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/thebtf/termwork/internal/bus"
	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/internal/screenmem"
	"github.com/thebtf/termwork/pkg/dbmap"
	"github.com/thebtf/termwork/pkg/models"
)

const MaxWebShareScreenCount = 3
const MaxWebShareLineCount = 50

// GetScreenById returns one screen or nil.
func GetScreenById(ctx context.Context, screenId string) (*models.Screen, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Screen, error) {
		query := `SELECT * FROM screen WHERE screenid = ?`
		return db.GetMapGen[*models.Screen](tx, query, screenId), nil
	})
}

// GetSessionScreens returns all screens of a session, archived last.
func GetSessionScreens(ctx context.Context, sessionId string) ([]*models.Screen, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*models.Screen, error) {
		query := `SELECT * FROM screen WHERE sessionid = ? ORDER BY archived, screenidx, archivedts`
		return db.SelectMapsGen[*models.Screen](tx, query, sessionId), nil
	})
}

// GetScreenLinesById returns the lines and cmds of a screen (nil when the
// screen does not exist).
func GetScreenLinesById(ctx context.Context, screenId string) (*models.ScreenLines, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.ScreenLines, error) {
		if !tx.Exists(`SELECT screenid FROM screen WHERE screenid = ?`, screenId) {
			return nil, nil
		}
		rtn := &models.ScreenLines{ScreenId: screenId}
		query := `SELECT * FROM line WHERE screenid = ? ORDER BY linenum`
		rtn.Lines = db.SelectMapsGen[*models.Line](tx, query, screenId)
		query = `SELECT * FROM cmd WHERE screenid = ?`
		rtn.Cmds = db.SelectMapsGen[*models.Cmd](tx, query, screenId)
		return rtn, nil
	})
}

// InsertScreen creates a screen in a non-archived session. The name is
// uniqued as "s%d" when empty; the session must have a local remote to point
// the new screen at. Copy options seed the screen from a base screen.
func InsertScreen(ctx context.Context, sessionId string, origScreenName string, opts models.ScreenCreateOpts, activate bool) (*bus.ModelUpdatePacket, error) {
	var newScreenId string
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT sessionid FROM session WHERE sessionid = ? AND NOT archived`
		if !tx.Exists(query, sessionId) {
			return fmt.Errorf("cannot create screen, no session found (or session archived)")
		}
		localRemoteId := tx.GetString(`SELECT remoteid FROM remote WHERE remotealias = ?`, LocalRemoteAlias)
		if localRemoteId == "" {
			return fmt.Errorf("cannot create screen, no local remote found")
		}
		maxScreenIdx := tx.GetInt(`SELECT COALESCE(max(screenidx), 0) FROM screen WHERE sessionid = ? AND NOT archived`, sessionId)
		var screenName string
		if origScreenName == "" {
			screenNames := tx.SelectStrings(`SELECT name FROM screen WHERE sessionid = ? AND NOT archived`, sessionId)
			screenName = FmtUniqueName("", "s%d", maxScreenIdx+1, screenNames)
		} else {
			screenName = origScreenName
		}
		curRemote := models.RemotePtr{RemoteId: localRemoteId}
		var baseScreen *models.Screen
		if opts.HasCopy() {
			if opts.BaseScreenId == "" {
				return fmt.Errorf("invalid screen create opts, copy option with no base screen specified")
			}
			var err error
			baseScreen, err = GetScreenById(tx.Context(), opts.BaseScreenId)
			if err != nil {
				return err
			}
			if baseScreen == nil {
				return fmt.Errorf("cannot create screen, base screen not found")
			}
			if opts.CopyRemote {
				curRemote = baseScreen.CurRemote
			}
		}
		newScreenId = GenUUID()
		screen := &models.Screen{
			SessionId:    sessionId,
			ScreenId:     newScreenId,
			Name:         screenName,
			ScreenIdx:    int64(maxScreenIdx) + 1,
			ScreenOpts:   models.ScreenOpts{},
			OwnerId:      "",
			ShareMode:    models.ShareModeLocal,
			CurRemote:    curRemote,
			NextLineNum:  1,
			SelectedLine: 0,
			Anchor:       models.ScreenAnchor{},
			FocusType:    models.ScreenFocusInput,
			Archived:     false,
			ArchivedTs:   0,
		}
		query = `INSERT INTO screen ( sessionid, screenid, name, screenidx, screenopts, screenviewopts, ownerid, sharemode, webshareopts, curremoteownerid, curremoteid, curremotename, nextlinenum, selectedline, anchor, focustype, archived, archivedts)
		                     VALUES (:sessionid,:screenid,:name,:screenidx,:screenopts,:screenviewopts,:ownerid,:sharemode,:webshareopts,:curremoteownerid,:curremoteid,:curremotename,:nextlinenum,:selectedline,:anchor,:focustype,:archived,:archivedts)`
		tx.NamedExec(query, screen.ToMap())
		if baseScreen != nil && (opts.CopyCwd || opts.CopyEnv) {
			if err := copyScreenRemoteInstances(tx, baseScreen, newScreenId, opts); err != nil {
				return err
			}
		}
		if activate {
			tx.Exec(`UPDATE session SET activescreenid = ? WHERE sessionid = ?`, newScreenId, sessionId)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	newScreen, err := GetScreenById(ctx, newScreenId)
	if err != nil {
		return nil, err
	}
	update := bus.MakeUpdatePacket()
	update.AddUpdate(*newScreen)
	if activate {
		bareSession, err := GetBareSessionById(ctx, sessionId)
		if err != nil {
			return nil, err
		}
		update.AddUpdate(*bareSession)
		UpdateWithCurrentOpenAICmdInfoChat(newScreenId, update)
	}
	return update, nil
}

// copyScreenRemoteInstances clones the base screen's remote instances onto
// the new screen so the shell starts with the copied cwd/env.
func copyScreenRemoteInstances(tx *db.TxWrap, baseScreen *models.Screen, newScreenId string, opts models.ScreenCreateOpts) error {
	query := `SELECT * FROM remote_instance WHERE sessionid = ? AND screenid = ?`
	riArr := db.SelectMapsGen[*models.RemoteInstance](tx, query, baseScreen.SessionId, baseScreen.ScreenId)
	for _, ri := range riArr {
		newRI := *ri
		newRI.RIId = GenUUID()
		newRI.ScreenId = newScreenId
		if !opts.CopyEnv {
			// keep only the cwd portion of the captured state
			newRI.StateBaseHash = ""
			newRI.StateDiffHashArr = nil
			cwd := ri.FeState["cwd"]
			newRI.FeState = map[string]string{"cwd": cwd}
		}
		query = `INSERT INTO remote_instance ( riid, name, sessionid, screenid, remoteownerid, remoteid, festate, statebasehash, statediffhasharr, shelltype)
		                              VALUES (:riid,:name,:sessionid,:screenid,:remoteownerid,:remoteid,:festate,:statebasehash,:statediffhasharr,:shelltype)`
		tx.NamedExec(query, newRI.ToMap())
	}
	return nil
}

// SwitchScreen makes a screen active within its session (activating the
// session as well) and replays the screen's in-memory state.
func SwitchScreen(ctx context.Context, sessionId string, screenId string) (*bus.ModelUpdatePacket, error) {
	if err := SetActiveSessionId(ctx, sessionId); err != nil {
		return nil, err
	}
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT screenid FROM screen WHERE sessionid = ? AND screenid = ?`
		if !tx.Exists(query, sessionId, screenId) {
			return fmt.Errorf("cannot switch to screen, screen=%s does not exist in session=%s", screenId, sessionId)
		}
		tx.Exec(`UPDATE session SET activescreenid = ? WHERE sessionid = ?`, screenId, sessionId)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	bareSession, err := GetBareSessionById(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	update := bus.MakeUpdatePacket()
	update.AddUpdate(models.ActiveSessionIdUpdate(sessionId))
	update.AddUpdate(*bareSession)
	update.AddUpdate(models.CmdLineUpdate{CmdLine: screenmem.GetCmdInputText(screenId)})
	UpdateWithCurrentOpenAICmdInfoChat(screenId, update)
	ResetStatusIndicator_Update(update, screenId)
	return update, nil
}

// ArchiveScreen archives a screen. Refused for web-shared screens and for
// the last non-archived screen of a session; archiving the active screen
// advances to the next by ordering.
func ArchiveScreen(ctx context.Context, sessionId string, screenId string) (*bus.ModelUpdatePacket, error) {
	var isActive bool
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT screenid FROM screen WHERE sessionid = ? AND screenid = ?`
		if !tx.Exists(query, sessionId, screenId) {
			return fmt.Errorf("cannot close screen (not found)")
		}
		if isWebShare(tx, screenId) {
			return fmt.Errorf("cannot archive screen while web-sharing.  stop web-sharing before trying to archive.")
		}
		if tx.GetBool(`SELECT archived FROM screen WHERE sessionid = ? AND screenid = ?`, sessionId, screenId) {
			return nil
		}
		numScreens := tx.GetInt(`SELECT count(*) FROM screen WHERE sessionid = ? AND NOT archived`, sessionId)
		if numScreens <= 1 {
			return fmt.Errorf("cannot archive the last screen in a session")
		}
		tx.Exec(`UPDATE screen SET archived = 1, archivedts = ?, screenidx = 0 WHERE sessionid = ? AND screenid = ?`, time.Now().UnixMilli(), sessionId, screenId)
		isActive = tx.Exists(`SELECT sessionid FROM session WHERE sessionid = ? AND activescreenid = ?`, sessionId, screenId)
		if isActive {
			screenIds := tx.SelectStrings(`SELECT screenid FROM screen WHERE sessionid = ? AND NOT archived ORDER BY screenidx`, sessionId)
			nextId := getNextId(screenIds, screenId)
			tx.Exec(`UPDATE session SET activescreenid = ? WHERE sessionid = ?`, nextId, sessionId)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	newScreen, err := GetScreenById(ctx, screenId)
	if err != nil {
		return nil, fmt.Errorf("cannot retrieve archived screen: %w", err)
	}
	update := bus.MakeUpdatePacket()
	update.AddUpdate(*newScreen)
	if isActive {
		bareSession, err := GetBareSessionById(ctx, sessionId)
		if err != nil {
			return nil, err
		}
		update.AddUpdate(*bareSession)
	}
	return update, nil
}

// UnArchiveScreen restores an archived screen at the end of the ordering.
func UnArchiveScreen(ctx context.Context, sessionId string, screenId string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT screenid FROM screen WHERE sessionid = ? AND screenid = ? AND archived`
		if !tx.Exists(query, sessionId, screenId) {
			return fmt.Errorf("cannot re-open screen (not found or not archived)")
		}
		maxScreenIdx := tx.GetInt(`SELECT COALESCE(max(screenidx), 0) FROM screen WHERE sessionid = ? AND NOT archived`, sessionId)
		tx.Exec(`UPDATE screen SET archived = 0, archivedts = 0, screenidx = ? WHERE sessionid = ? AND screenid = ?`, maxScreenIdx+1, sessionId, screenId)
		return nil
	})
}

// DeleteScreen permanently deletes a screen: cascades to lines and cmds,
// clears history references, leaves a tombstone, and schedules the screen
// directory for removal (unless sessionDel, where session teardown owns the
// directories). Refused for the last non-archived screen unless sessionDel.
func DeleteScreen(ctx context.Context, screenId string, sessionDel bool, update *bus.ModelUpdatePacket) (*bus.ModelUpdatePacket, error) {
	var sessionId string
	var isActive bool
	var screenTombstone *models.ScreenTombstone
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		screen, err := GetScreenById(tx.Context(), screenId)
		if err != nil {
			return fmt.Errorf("cannot get screen to delete: %w", err)
		}
		if screen == nil {
			return fmt.Errorf("cannot delete screen (not found)")
		}
		webSharing := isWebShare(tx, screenId)
		if !sessionDel {
			sessionId = tx.GetString(`SELECT sessionid FROM screen WHERE screenid = ?`, screenId)
			if sessionId == "" {
				return fmt.Errorf("cannot delete screen (no sessionid)")
			}
			numScreens := tx.GetInt(`SELECT count(*) FROM screen WHERE sessionid = ? AND NOT archived`, sessionId)
			if numScreens <= 1 {
				return fmt.Errorf("cannot delete the last screen in a session")
			}
			isActive = tx.Exists(`SELECT sessionid FROM session WHERE sessionid = ? AND activescreenid = ?`, sessionId, screenId)
			if isActive {
				screenIds := tx.SelectStrings(`SELECT screenid FROM screen WHERE sessionid = ? AND NOT archived ORDER BY screenidx`, sessionId)
				nextId := getNextId(screenIds, screenId)
				tx.Exec(`UPDATE session SET activescreenid = ? WHERE sessionid = ?`, nextId, sessionId)
			}
		}
		screenTombstone = &models.ScreenTombstone{
			ScreenId:   screen.ScreenId,
			SessionId:  screen.SessionId,
			Name:       screen.Name,
			DeletedTs:  time.Now().UnixMilli(),
			ScreenOpts: screen.ScreenOpts,
		}
		query := `INSERT INTO screen_tombstone ( screenid, sessionid, name, deletedts, screenopts)
		                                VALUES (:screenid,:sessionid,:name,:deletedts,:screenopts)`
		tx.NamedExec(query, screenTombstone.ToMap())
		tx.Exec(`DELETE FROM screen WHERE screenid = ?`, screenId)
		tx.Exec(`DELETE FROM line WHERE screenid = ?`, screenId)
		tx.Exec(`DELETE FROM cmd WHERE screenid = ?`, screenId)
		tx.Exec(`DELETE FROM remote_instance WHERE screenid = ?`, screenId)
		tx.Exec(`UPDATE history SET lineid = '', linenum = 0 WHERE screenid = ?`, screenId)
		if webSharing {
			insertScreenDelUpdate(tx, screenId)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	screenmem.DeleteScreenState(screenId)
	if !sessionDel {
		GoDeleteScreenDirs(screenId)
	}
	if update == nil {
		update = bus.MakeUpdatePacket()
	}
	update.AddUpdate(*screenTombstone)
	update.AddUpdate(models.Screen{SessionId: sessionId, ScreenId: screenId, Remove: true})
	if isActive {
		bareSession, err := GetBareSessionById(ctx, sessionId)
		if err != nil {
			return nil, err
		}
		update.AddUpdate(*bareSession)
	}
	return update, nil
}

// GetScreenTombstones lists deletion records, newest first.
func GetScreenTombstones(ctx context.Context) ([]*models.ScreenTombstone, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*models.ScreenTombstone, error) {
		query := `SELECT * FROM screen_tombstone ORDER BY deletedts DESC`
		return db.SelectMapsGen[*models.ScreenTombstone](tx, query), nil
	})
}

// SetScreenName renames a screen.
func SetScreenName(ctx context.Context, sessionId string, screenId string, name string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT screenid FROM screen WHERE sessionid = ? AND screenid = ?`
		if !tx.Exists(query, sessionId, screenId) {
			return fmt.Errorf("screen does not exist")
		}
		tx.Exec(`UPDATE screen SET name = ? WHERE sessionid = ? AND screenid = ?`, name, sessionId, screenId)
		return nil
	})
}

// SetScreenIdx reorders the non-archived screens of a session so the given
// screen lands at the requested 1-based position. Emits screen updates for
// every affected row.
func SetScreenIdx(ctx context.Context, sessionId string, screenId string, newScreenIdx int) (*bus.ModelUpdatePacket, error) {
	if newScreenIdx <= 0 {
		return nil, fmt.Errorf("invalid screenidx/pos, must be greater than 0")
	}
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT screenid FROM screen WHERE sessionid = ? AND screenid = ? AND NOT archived`
		if !tx.Exists(query, sessionId, screenId) {
			return fmt.Errorf("invalid screen, not found (or archived)")
		}
		query = `SELECT screenid FROM screen WHERE sessionid = ? AND NOT archived ORDER BY screenidx`
		screens := tx.SelectStrings(query, sessionId)
		newScreens := reorderStrs(screens, screenId, newScreenIdx-1)
		query = `UPDATE screen SET screenidx = ? WHERE sessionid = ? AND screenid = ?`
		for idx, sid := range newScreens {
			tx.Exec(query, idx+1, sessionId, sid)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	screens, err := GetSessionScreens(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	update := bus.MakeUpdatePacket()
	for _, screen := range screens {
		if !screen.Archived {
			update.AddUpdate(*screen)
		}
	}
	return update, nil
}

const (
	ScreenField_AnchorLine   = "anchorline"
	ScreenField_AnchorOffset = "anchoroffset"
	ScreenField_SelectedLine = "selectedline"
	ScreenField_Focus        = "focustype"
	ScreenField_TabColor     = "tabcolor"
	ScreenField_TabIcon      = "tabicon"
	ScreenField_PTerm        = "pterm"
	ScreenField_Name         = "name"
	ScreenField_ShareName    = "sharename"
)

// UpdateScreen applies an edit map of screen fields (validation happens at
// the call site). Selected-line and share-name edits feed the persistent
// update log for web-shared screens.
func UpdateScreen(ctx context.Context, screenId string, editMap map[string]interface{}) (*models.Screen, error) {
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT screenid FROM screen WHERE screenid = ?`, screenId) {
			return fmt.Errorf("screen not found")
		}
		if anchorLine, found := editMap[ScreenField_AnchorLine]; found {
			tx.Exec(`UPDATE screen SET anchor = json_set(anchor, '$.anchorline', ?) WHERE screenid = ?`, anchorLine, screenId)
		}
		if anchorOffset, found := editMap[ScreenField_AnchorOffset]; found {
			tx.Exec(`UPDATE screen SET anchor = json_set(anchor, '$.anchoroffset', ?) WHERE screenid = ?`, anchorOffset, screenId)
		}
		if sline, found := editMap[ScreenField_SelectedLine]; found {
			tx.Exec(`UPDATE screen SET selectedline = ? WHERE screenid = ?`, sline, screenId)
			if isWebShare(tx, screenId) {
				insertScreenUpdate(tx, screenId, models.UpdateType_ScreenSelectedLine)
			}
		}
		if focusType, found := editMap[ScreenField_Focus]; found {
			tx.Exec(`UPDATE screen SET focustype = ? WHERE screenid = ?`, focusType, screenId)
		}
		if tabColor, found := editMap[ScreenField_TabColor]; found {
			tx.Exec(`UPDATE screen SET screenopts = json_set(screenopts, '$.tabcolor', ?) WHERE screenid = ?`, tabColor, screenId)
		}
		if tabIcon, found := editMap[ScreenField_TabIcon]; found {
			tx.Exec(`UPDATE screen SET screenopts = json_set(screenopts, '$.tabicon', ?) WHERE screenid = ?`, tabIcon, screenId)
		}
		if pterm, found := editMap[ScreenField_PTerm]; found {
			tx.Exec(`UPDATE screen SET screenopts = json_set(screenopts, '$.pterm', ?) WHERE screenid = ?`, pterm, screenId)
		}
		if name, found := editMap[ScreenField_Name]; found {
			tx.Exec(`UPDATE screen SET name = ? WHERE screenid = ?`, name, screenId)
		}
		if shareName, found := editMap[ScreenField_ShareName]; found {
			if !isWebShare(tx, screenId) {
				return fmt.Errorf("cannot set sharename, screen is not web-shared")
			}
			tx.Exec(`UPDATE screen SET webshareopts = json_set(webshareopts, '$.sharename', ?) WHERE screenid = ?`, shareName, screenId)
			insertScreenUpdate(tx, screenId, models.UpdateType_ScreenName)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return GetScreenById(ctx, screenId)
}

// ScreenUpdateViewOpts persists the sidebar view options.
func ScreenUpdateViewOpts(ctx context.Context, screenId string, viewOpts models.ScreenViewOpts) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE screen SET screenviewopts = ? WHERE screenid = ?`, dbmap.QuickJson(viewOpts), screenId)
		return nil
	})
}

// GetScreenSelectedLineId resolves the selected line number to a line id.
func GetScreenSelectedLineId(ctx context.Context, screenId string) (string, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (string, error) {
		sline := tx.GetInt(`SELECT selectedline FROM screen WHERE screenid = ?`, screenId)
		if sline <= 0 {
			return "", nil
		}
		return tx.GetString(`SELECT lineid FROM line WHERE screenid = ? AND linenum = ?`, screenId, sline), nil
	})
}

// FixupScreenSelectedLine repoints the selected line at the closest higher
// (or lower) line number when the referenced line is gone. Returns the
// updated screen, or nil when the selection was already valid.
func FixupScreenSelectedLine(ctx context.Context, screenId string) (*models.Screen, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Screen, error) {
		sline := tx.GetInt(`SELECT selectedline FROM screen WHERE screenid = ?`, screenId)
		query := `SELECT linenum FROM line WHERE screenid = ? AND linenum = ?`
		if tx.Exists(query, screenId, sline) {
			// selected line is valid
			return nil, nil
		}
		newSLine := tx.GetInt(`SELECT min(linenum) FROM line WHERE screenid = ? AND linenum > ?`, screenId, sline)
		if newSLine == 0 {
			newSLine = tx.GetInt(`SELECT max(linenum) FROM line WHERE screenid = ? AND linenum < ?`, screenId, sline)
		}
		// newSLine can still be 0 (no lines remain)
		tx.Exec(`UPDATE screen SET selectedline = ? WHERE screenid = ?`, newSLine, screenId)
		return GetScreenById(tx.Context(), screenId)
	})
}

// UpdateScreenFocusForDoneCmd returns focus to the input when the done cmd's
// line is the selected line and focus was on the cmd. Returns the updated
// screen (once per screen) or nil.
func UpdateScreenFocusForDoneCmd(ctx context.Context, screenId string, lineId string) (*models.Screen, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Screen, error) {
		query := `SELECT screenid
                  FROM screen s
                  WHERE s.screenid = ? AND s.focustype = ?
                    AND s.selectedline IN (SELECT linenum FROM line l WHERE l.screenid = s.screenid AND l.lineid = ?)`
		if !tx.Exists(query, screenId, models.ScreenFocusCmd, lineId) {
			return nil, nil
		}
		editMap := map[string]interface{}{ScreenField_Focus: models.ScreenFocusInput}
		return UpdateScreen(tx.Context(), screenId, editMap)
	})
}

// CountScreenWebShares counts web-shared screens.
func CountScreenWebShares(ctx context.Context) (int, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (int, error) {
		return tx.GetInt(`SELECT count(*) FROM screen WHERE sharemode = ?`, models.ShareModeWeb), nil
	})
}

// CountScreenLines counts non-archived lines of a screen.
func CountScreenLines(ctx context.Context, screenId string) (int, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (int, error) {
		return tx.GetInt(`SELECT count(*) FROM line WHERE screenid = ? AND NOT archived`, screenId), nil
	})
}

// ScreenWebShareStart turns on web sharing for a screen, seeding the
// persistent update log with the screen's current lines.
func ScreenWebShareStart(ctx context.Context, screenId string, shareOpts models.ScreenWebShareOpts) error {
	webShareCount, err := CountScreenWebShares(ctx)
	if err != nil {
		return fmt.Errorf("cannot share screen: error getting webshare count: %w", err)
	}
	if webShareCount >= MaxWebShareScreenCount {
		return fmt.Errorf("cannot share screen, limited to a maximum of %d shared screen(s)", MaxWebShareScreenCount)
	}
	lineCount, err := CountScreenLines(ctx, screenId)
	if err != nil {
		return fmt.Errorf("cannot share screen: error getting line count: %w", err)
	}
	if lineCount > MaxWebShareLineCount {
		return fmt.Errorf("cannot share screen, limited to a maximum of %d lines", MaxWebShareLineCount)
	}
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT screenid FROM screen WHERE screenid = ?`, screenId) {
			return fmt.Errorf("screen does not exist")
		}
		shareMode := tx.GetString(`SELECT sharemode FROM screen WHERE screenid = ?`, screenId)
		if shareMode == models.ShareModeWeb {
			return fmt.Errorf("screen is already shared to web")
		}
		if shareMode != models.ShareModeLocal {
			return fmt.Errorf("screen cannot be shared, invalid current share mode %q (must be local)", shareMode)
		}
		if tx.GetBool(`SELECT archived FROM screen WHERE screenid = ?`, screenId) {
			return fmt.Errorf("screen cannot be shared, must un-archive before sharing")
		}
		tx.Exec(`UPDATE screen SET sharemode = ?, webshareopts = ? WHERE screenid = ?`, models.ShareModeWeb, dbmap.QuickJson(shareOpts), screenId)
		insertScreenNewUpdate(tx, screenId)
		return nil
	})
}

// ScreenWebShareStop turns off web sharing and drops the screen's pending
// update-log rows.
func ScreenWebShareStop(ctx context.Context, screenId string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT screenid FROM screen WHERE screenid = ?`, screenId) {
			return fmt.Errorf("screen does not exist")
		}
		shareMode := tx.GetString(`SELECT sharemode FROM screen WHERE screenid = ?`, screenId)
		if shareMode != models.ShareModeWeb {
			return fmt.Errorf("screen is not currently shared to the web")
		}
		tx.Exec(`UPDATE screen SET sharemode = ?, webshareopts = ? WHERE screenid = ?`, models.ShareModeLocal, "null", screenId)
		handleScreenDelUpdate(tx, screenId)
		insertScreenUpdate(tx, screenId, models.UpdateType_ScreenDel)
		return nil
	})
}
