package workspace

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/thebtf/termwork/internal/bus"
	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/pkg/dbmap"
	"github.com/thebtf/termwork/pkg/models"
)

func makeNewLineCmd(screenId string, userId string, lineId string, renderer string, lineState map[string]interface{}) *models.Line {
	rtn := &models.Line{}
	rtn.ScreenId = screenId
	rtn.UserId = userId
	rtn.LineId = lineId
	rtn.Ts = time.Now().UnixMilli()
	rtn.LineLocal = true
	rtn.LineType = models.LineTypeCmd
	rtn.ContentHeight = models.LineNoHeight
	rtn.Renderer = renderer
	if lineState == nil {
		lineState = make(map[string]interface{})
	}
	rtn.LineState = lineState
	return rtn
}

func makeNewLineText(screenId string, userId string, text string) *models.Line {
	rtn := &models.Line{}
	rtn.ScreenId = screenId
	rtn.UserId = userId
	rtn.LineId = GenUUID()
	rtn.Ts = time.Now().UnixMilli()
	rtn.LineLocal = true
	rtn.LineType = models.LineTypeText
	rtn.Text = text
	rtn.ContentHeight = models.LineNoHeight
	rtn.LineState = make(map[string]interface{})
	return rtn
}

func makeNewLineOpenAI(screenId string, userId string, lineId string) *models.Line {
	rtn := &models.Line{}
	rtn.ScreenId = screenId
	rtn.UserId = userId
	rtn.LineId = lineId
	rtn.Ts = time.Now().UnixMilli()
	rtn.LineLocal = true
	rtn.LineType = models.LineTypeOpenAI
	rtn.ContentHeight = models.LineNoHeight
	rtn.Renderer = models.CmdRendererOpenAI
	rtn.LineState = make(map[string]interface{})
	return rtn
}

// AddCommentLine inserts a text line.
func AddCommentLine(ctx context.Context, screenId string, userId string, commentText string) (*models.Line, error) {
	rtnLine := makeNewLineText(screenId, userId, commentText)
	if err := InsertLine(ctx, rtnLine, nil); err != nil {
		return nil, err
	}
	return rtnLine, nil
}

// AddOpenAILine inserts an openai line paired with its cmd row.
func AddOpenAILine(ctx context.Context, screenId string, userId string, cmd *models.Cmd) (*models.Line, error) {
	rtnLine := makeNewLineOpenAI(screenId, userId, cmd.LineId)
	if err := InsertLine(ctx, rtnLine, cmd); err != nil {
		return nil, err
	}
	return rtnLine, nil
}

// AddCmdLine inserts a cmd line paired with its cmd row.
func AddCmdLine(ctx context.Context, screenId string, userId string, cmd *models.Cmd, renderer string, lineState map[string]interface{}) (*models.Line, error) {
	rtnLine := makeNewLineCmd(screenId, userId, cmd.LineId, renderer, lineState)
	if err := InsertLine(ctx, rtnLine, cmd); err != nil {
		return nil, err
	}
	return rtnLine, nil
}

// InsertLine inserts a line (and optionally its cmd row) atomically,
// assigning the line number from the screen's counter and advancing it in
// the same transaction. Line numbers are monotonic per screen and never
// reused.
func InsertLine(ctx context.Context, line *models.Line, cmd *models.Cmd) error {
	if line == nil {
		return fmt.Errorf("line cannot be nil")
	}
	if line.LineId == "" {
		return fmt.Errorf("line must have lineid set")
	}
	if line.LineNum != 0 {
		return fmt.Errorf("line should not have linenum set")
	}
	if cmd != nil && cmd.ScreenId == "" {
		return fmt.Errorf("cmd should have screenid set")
	}
	qjs := dbmap.QuickJson(line.LineState)
	if len(qjs) > models.MaxLineStateSize {
		return fmt.Errorf("linestate exceeds maxsize, size[%d] max[%d]", len(qjs), models.MaxLineStateSize)
	}
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT screenid FROM screen WHERE screenid = ?`, line.ScreenId) {
			return fmt.Errorf("screen not found, cannot insert line[%s]", line.ScreenId)
		}
		nextLineNum := tx.GetInt(`SELECT nextlinenum FROM screen WHERE screenid = ?`, line.ScreenId)
		line.LineNum = int64(nextLineNum)
		query := `INSERT INTO line  ( screenid, userid, lineid, ts, linenum, linenumtemp, linelocal, linetype, linestate, text, renderer, ephemeral, contentheight, star, archived)
		                     VALUES (:screenid,:userid,:lineid,:ts,:linenum,:linenumtemp,:linelocal,:linetype,:linestate,:text,:renderer,:ephemeral,:contentheight,:star,:archived)`
		tx.NamedExec(query, line.ToMap())
		tx.Exec(`UPDATE screen SET nextlinenum = ? WHERE screenid = ?`, nextLineNum+1, line.ScreenId)
		if cmd != nil {
			cmd.OrigTermOpts = cmd.TermOpts
			query = `
INSERT INTO cmd  ( screenid, lineid, remoteownerid, remoteid, remotename, cmdstr, rawcmdstr, festate, statebasehash, statediffhasharr, termopts, origtermopts, status, cmdpid, remotepid, donets, restartts, exitcode, durationms, rtnstate, runout, rtnbasehash, rtndiffhasharr)
          VALUES (:screenid,:lineid,:remoteownerid,:remoteid,:remotename,:cmdstr,:rawcmdstr,:festate,:statebasehash,:statediffhasharr,:termopts,:origtermopts,:status,:cmdpid,:remotepid,:donets,:restartts,:exitcode,:durationms,:rtnstate,:runout,:rtnbasehash,:rtndiffhasharr)`
			tx.NamedExec(query, cmd.ToMap())
			insertHistoryForCmd(tx, line, cmd)
		}
		if isWebShare(tx, line.ScreenId) {
			InsertScreenLineUpdate(tx, line.ScreenId, line.LineId, models.UpdateType_LineNew)
		}
		return nil
	})
}

// insertHistoryForCmd records the cmd in the history table. History rows
// outlive their lines (the back-reference is cleared on line delete).
func insertHistoryForCmd(tx *db.TxWrap, line *models.Line, cmd *models.Cmd) {
	sessionId := tx.GetString(`SELECT sessionid FROM screen WHERE screenid = ?`, line.ScreenId)
	query := `INSERT INTO history ( historyid, ts, userid, sessionid, screenid, lineid, linenum, remoteownerid, remoteid, remotename, cmdstr, festate, status, exitcode, durationms)
	                       VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`
	tx.Exec(query, GenUUID(), line.Ts, line.UserId, sessionId, line.ScreenId, line.LineId, line.LineNum,
		cmd.Remote.OwnerId, cmd.Remote.RemoteId, cmd.Remote.Name, cmd.CmdStr, dbmap.QuickJson(cmd.FeState), cmd.Status)
}

// GetLineById returns a line or nil.
func GetLineById(ctx context.Context, screenId string, lineId string) (*models.Line, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Line, error) {
		query := `SELECT * FROM line WHERE screenid = ? AND lineid = ?`
		return db.GetMapGen[*models.Line](tx, query, screenId, lineId), nil
	})
}

// GetLineCmdByLineId returns a line and its cmd row (both nil when the line
// does not exist; cmd nil for non-cmd lines).
func GetLineCmdByLineId(ctx context.Context, screenId string, lineId string) (*models.Line, *models.Cmd, error) {
	type lineCmd struct {
		Line *models.Line
		Cmd  *models.Cmd
	}
	rtn, err := db.WithTxRtn(ctx, func(tx *db.TxWrap) (lineCmd, error) {
		query := `SELECT * FROM line WHERE screenid = ? AND lineid = ?`
		lineVal := db.GetMapGen[*models.Line](tx, query, screenId, lineId)
		if lineVal == nil {
			return lineCmd{}, nil
		}
		query = `SELECT * FROM cmd WHERE screenid = ? AND lineid = ?`
		cmdVal := db.GetMapGen[*models.Cmd](tx, query, screenId, lineId)
		return lineCmd{Line: lineVal, Cmd: cmdVal}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return rtn.Line, rtn.Cmd, nil
}

// FindLineIdByArg resolves a line argument: "E" is the last unarchived
// line, "EA" the last line (archived included), a number matches linenum, an
// 8-char string matches an id prefix, anything else matches the full id.
func FindLineIdByArg(ctx context.Context, screenId string, lineArg string) (string, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (string, error) {
		if lineArg == "E" {
			query := `SELECT lineid FROM line WHERE screenid = ? AND NOT archived ORDER BY linenum DESC LIMIT 1`
			return tx.GetString(query, screenId), nil
		}
		if lineArg == "EA" {
			query := `SELECT lineid FROM line WHERE screenid = ? ORDER BY linenum DESC LIMIT 1`
			return tx.GetString(query, screenId), nil
		}
		if lineNum, err := strconv.Atoi(lineArg); err == nil {
			query := `SELECT lineid FROM line WHERE screenid = ? AND linenum = ?`
			return tx.GetString(query, screenId, lineNum), nil
		}
		if len(lineArg) == 8 {
			query := `SELECT lineid FROM line WHERE screenid = ? AND substr(lineid, 1, 8) = ?`
			return tx.GetString(query, screenId, lineArg), nil
		}
		query := `SELECT lineid FROM line WHERE screenid = ? AND lineid = ?`
		return tx.GetString(query, screenId, lineArg), nil
	})
}

// GetLineResolveItems lists (id, num, hidden) triples ordered by linenum.
func GetLineResolveItems(ctx context.Context, screenId string) ([]models.ResolveItem, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]models.ResolveItem, error) {
		query := `SELECT lineid, linenum, archived FROM line WHERE screenid = ? ORDER BY linenum`
		marr := tx.SelectMaps(query, screenId)
		rtn := make([]models.ResolveItem, 0, len(marr))
		for _, m := range marr {
			var item models.ResolveItem
			dbmap.QuickSetStr(&item.Id, m, "lineid")
			dbmap.QuickSetInt64(&item.Num, m, "linenum")
			dbmap.QuickSetBool(&item.Hidden, m, "archived")
			rtn = append(rtn, item)
		}
		return rtn, nil
	})
}

// DeleteLinesByIds deletes lines and their cmd rows, refusing lines whose
// cmd is still running. History rows keep the cmd but lose the line
// back-reference. Emits line:del updates for web-shared screens.
func DeleteLinesByIds(ctx context.Context, screenId string, lineIds []string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		isWS := isWebShare(tx, screenId)
		for _, lineId := range lineIds {
			cmdStatus := tx.GetString(`SELECT status FROM cmd WHERE screenid = ? AND lineid = ?`, screenId, lineId)
			if cmdStatus == models.CmdStatusRunning {
				return fmt.Errorf("cannot delete line[%s], cmd is running", lineId)
			}
			tx.Exec(`DELETE FROM line WHERE screenid = ? AND lineid = ?`, screenId, lineId)
			tx.Exec(`DELETE FROM cmd WHERE screenid = ? AND lineid = ?`, screenId, lineId)
			// history keeps the entry, just loses the line reference
			tx.Exec(`UPDATE history SET lineid = '', linenum = 0 WHERE screenid = ? AND lineid = ?`, screenId, lineId)
			if isWS {
				InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_LineDel)
			}
		}
		return nil
	})
}

// SetLineArchivedById toggles a line's archived flag, reflecting the change
// into the web-share log as line:del / line:new.
func SetLineArchivedById(ctx context.Context, screenId string, lineId string, archived bool) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE line SET archived = ? WHERE screenid = ? AND lineid = ?`, archived, screenId, lineId)
		if isWebShare(tx, screenId) {
			if archived {
				InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_LineDel)
			} else {
				InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_LineNew)
			}
		}
		return nil
	})
}

// UpdateLineStar sets the starred flag.
func UpdateLineStar(ctx context.Context, screenId string, lineId string, starVal bool) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE line SET star = ? WHERE screenid = ? AND lineid = ?`, starVal, screenId, lineId)
		return nil
	})
}

// UpdateLineHeight records the measured content height.
func UpdateLineHeight(ctx context.Context, screenId string, lineId string, heightVal int64) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE line SET contentheight = ? WHERE screenid = ? AND lineid = ?`, heightVal, screenId, lineId)
		if isWebShare(tx, screenId) {
			InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_LineContentHeight)
		}
		return nil
	})
}

// UpdateLineRenderer sets the renderer name.
func UpdateLineRenderer(ctx context.Context, screenId string, lineId string, renderer string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE line SET renderer = ? WHERE screenid = ? AND lineid = ?`, renderer, screenId, lineId)
		if isWebShare(tx, screenId) {
			InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_LineRenderer)
		}
		return nil
	})
}

// UpdateLineState replaces the line-state map (capped at 4KiB encoded).
func UpdateLineState(ctx context.Context, screenId string, lineId string, lineState map[string]interface{}) error {
	qjs := dbmap.QuickJson(lineState)
	if len(qjs) > models.MaxLineStateSize {
		return fmt.Errorf("linestate for line[%s:%s] exceeds maxsize, size[%d] max[%d]", screenId, lineId, len(qjs), models.MaxLineStateSize)
	}
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE line SET linestate = ? WHERE screenid = ? AND lineid = ?`, qjs, screenId, lineId)
		if isWebShare(tx, screenId) {
			InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_LineState)
		}
		return nil
	})
}

// ArchiveScreenLines archives every line without a running cmd, returning
// the resulting full screen-lines update.
func ArchiveScreenLines(ctx context.Context, screenId string) (*bus.ModelUpdatePacket, error) {
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT screenid FROM screen WHERE screenid = ?`, screenId) {
			return fmt.Errorf("screen does not exist")
		}
		query := `UPDATE line SET archived = 1
		          WHERE line.archived = 0 AND line.screenid = ? AND NOT EXISTS (SELECT * FROM cmd c
		          WHERE line.screenid = c.screenid AND line.lineid = c.lineid AND c.status IN ('running', 'detached'))`
		tx.Exec(query, screenId)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	screenLines, err := GetScreenLinesById(ctx, screenId)
	if err != nil {
		return nil, err
	}
	ret := bus.MakeUpdatePacket()
	ret.AddUpdate(*screenLines)
	return ret, nil
}

// DeleteScreenLines deletes every line without a running cmd and cleans up
// orphaned cmds (and their pty files) asynchronously.
func DeleteScreenLines(ctx context.Context, screenId string) (*bus.ModelUpdatePacket, error) {
	var lineIds []string
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT lineid FROM line
		          WHERE screenid = ?
		            AND NOT EXISTS (SELECT lineid FROM cmd c WHERE c.screenid = ? AND c.lineid = line.lineid AND c.status IN ('running', 'detached'))`
		lineIds = tx.SelectStrings(query, screenId, screenId)
		query = `DELETE FROM line
		         WHERE screenid = ? AND lineid IN (SELECT value FROM json_each(?))`
		tx.Exec(query, screenId, dbmap.QuickJsonArr(lineIds))
		query = `UPDATE history SET lineid = '', linenum = 0
		         WHERE screenid = ? AND lineid IN (SELECT value FROM json_each(?))`
		tx.Exec(query, screenId, dbmap.QuickJsonArr(lineIds))
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	go func() {
		cleanCtx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()
		cleanScreenCmds(cleanCtx, screenId)
	}()
	screen, err := GetScreenById(ctx, screenId)
	if err != nil {
		return nil, err
	}
	screenLines, err := GetScreenLinesById(ctx, screenId)
	if err != nil {
		return nil, err
	}
	for _, lineId := range lineIds {
		screenLines.Lines = append(screenLines.Lines, &models.Line{
			ScreenId: screenId,
			LineId:   lineId,
			Remove:   true,
		})
	}
	ret := bus.MakeUpdatePacket()
	ret.AddUpdate(*screen)
	ret.AddUpdate(*screenLines)
	return ret, nil
}
