package workspace

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/termwork/internal/bus"
	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/internal/screenmem"
	"github.com/thebtf/termwork/pkg/dbmap"
	"github.com/thebtf/termwork/pkg/models"
)

// GetCmdByScreenId returns a cmd row or nil.
func GetCmdByScreenId(ctx context.Context, screenId string, lineId string) (*models.Cmd, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Cmd, error) {
		query := `SELECT * FROM cmd WHERE screenid = ? AND lineid = ?`
		return db.GetMapGen[*models.Cmd](tx, query, screenId, lineId), nil
	})
}

// GetRunningScreenCmds returns the running cmds of a screen.
func GetRunningScreenCmds(ctx context.Context, screenId string) ([]*models.Cmd, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*models.Cmd, error) {
		query := `SELECT * FROM cmd WHERE screenid = ? AND status = ?`
		return db.SelectMapsGen[*models.Cmd](tx, query, screenId, models.CmdStatusRunning), nil
	})
}

// UpdateCmdDoneInfo records a cmd's terminal state (status, done ts, exit
// code, duration), mirrors it into history, appends the three web-share
// updates, raises the screen indicator, and decrements the running counter.
func UpdateCmdDoneInfo(ctx context.Context, update *bus.ModelUpdatePacket, screenId string, lineId string, donePk *models.CmdDoneInfo, status string) error {
	if donePk == nil {
		return fmt.Errorf("invalid cmddone packet")
	}
	if screenId == "" || lineId == "" {
		return fmt.Errorf("cannot update cmddoneinfo, empty screen/line id")
	}
	var rtnCmd *models.Cmd
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `UPDATE cmd SET status = ?, donets = ?, exitcode = ?, durationms = ? WHERE screenid = ? AND lineid = ?`
		tx.Exec(query, status, donePk.Ts, donePk.ExitCode, donePk.DurationMs, screenId, lineId)
		query = `UPDATE history SET status = ?, exitcode = ?, durationms = ? WHERE screenid = ? AND lineid = ?`
		tx.Exec(query, status, donePk.ExitCode, donePk.DurationMs, screenId, lineId)
		var err error
		rtnCmd, err = GetCmdByScreenId(tx.Context(), screenId, lineId)
		if err != nil {
			return err
		}
		if isWebShare(tx, screenId) {
			InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_CmdExitCode)
			InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_CmdDurationMs)
			InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_CmdStatus)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}
	if rtnCmd == nil {
		return fmt.Errorf("cmd data not found for %s:%s", screenId, lineId)
	}
	update.AddUpdate(*rtnCmd)
	var indicator models.StatusIndicatorLevel
	if rtnCmd.ExitCode == 0 {
		indicator = models.StatusIndicatorLevel_Success
	} else {
		indicator = models.StatusIndicatorLevel_Error
	}
	if err := SetStatusIndicatorLevel_Update(ctx, update, screenId, indicator, false); err != nil {
		// not fatal, the indicator resyncs on the next switch
		log.Error().Err(err).Msg("error setting status indicator after done packet")
	}
	IncrementNumRunningCmds_Update(update, screenId, -1)
	return nil
}

// UpdateCmdForRestart moves a detached/done/error cmd back to running with a
// new restart ts, fresh pids, and zeroed exit state.
func UpdateCmdForRestart(ctx context.Context, screenId string, lineId string, ts int64, cmdPid int, remotePid int, termOpts *models.TermOpts) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `UPDATE cmd
		          SET restartts = ?, status = ?, exitcode = ?, cmdpid = ?, remotepid = ?, durationms = ?, termopts = ?, origtermopts = ?
		          WHERE screenid = ? AND lineid = ?`
		tx.Exec(query, ts, models.CmdStatusRunning, 0, cmdPid, remotePid, 0, dbmap.QuickJson(termOpts), dbmap.QuickJson(termOpts), screenId, lineId)
		query = `UPDATE history
		         SET ts = ?, status = ?, exitcode = ?, durationms = ?
		         WHERE screenid = ? AND lineid = ?`
		tx.Exec(query, ts, models.CmdStatusRunning, 0, 0, screenId, lineId)
		return nil
	})
}

// UpdateCmdRtnState stores the pointer to the shell state a cmd returned.
func UpdateCmdRtnState(ctx context.Context, screenId string, lineId string, statePtr models.ShellStatePtr) error {
	if screenId == "" || lineId == "" {
		return fmt.Errorf("cannot update cmdrtnstate, empty screen/line id")
	}
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `UPDATE cmd SET rtnbasehash = ?, rtndiffhasharr = ? WHERE screenid = ? AND lineid = ?`
		tx.Exec(query, statePtr.BaseHash, dbmap.QuickJsonArr(statePtr.DiffHashArr), screenId, lineId)
		if isWebShare(tx, screenId) {
			InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_CmdRtnState)
		}
		return nil
	})
}

// UpdateCmdTermOpts records a terminal resize for a cmd.
func UpdateCmdTermOpts(ctx context.Context, screenId string, lineId string, termOpts models.TermOpts) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `UPDATE cmd SET termopts = ? WHERE screenid = ? AND lineid = ?`
		tx.Exec(query, dbmap.QuickJson(termOpts), screenId, lineId)
		if isWebShare(tx, screenId) {
			InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_CmdTermOpts)
		}
		return nil
	})
}

// HangupAllRunningCmds marks every running cmd as hung up (server restart
// recovery).
func HangupAllRunningCmds(ctx context.Context) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		var cmdPtrs []models.CmdPtr
		query := `SELECT screenid, lineid FROM cmd WHERE status = ?`
		for _, m := range tx.SelectMaps(query, models.CmdStatusRunning) {
			var ptr models.CmdPtr
			dbmap.QuickSetStr(&ptr.ScreenId, m, "screenid")
			dbmap.QuickSetStr(&ptr.LineId, m, "lineid")
			cmdPtrs = append(cmdPtrs, ptr)
		}
		tx.Exec(`UPDATE cmd SET status = ? WHERE status = ?`, models.CmdStatusHangup, models.CmdStatusRunning)
		for _, cmdPtr := range cmdPtrs {
			if isWebShare(tx, cmdPtr.ScreenId) {
				InsertScreenLineUpdate(tx, cmdPtr.ScreenId, cmdPtr.LineId, models.UpdateType_CmdStatus)
			}
			tx.Exec(`UPDATE history SET status = ? WHERE screenid = ? AND lineid = ?`, models.CmdStatusHangup, cmdPtr.ScreenId, cmdPtr.LineId)
		}
		return nil
	})
}

// HangupRunningCmdsByRemoteId hangs up the running cmds of one remote,
// returning the screens whose focus changed.
func HangupRunningCmdsByRemoteId(ctx context.Context, remoteId string) ([]*models.Screen, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*models.Screen, error) {
		var cmdPtrs []models.CmdPtr
		query := `SELECT screenid, lineid FROM cmd WHERE status = ? AND remoteid = ?`
		for _, m := range tx.SelectMaps(query, models.CmdStatusRunning, remoteId) {
			var ptr models.CmdPtr
			dbmap.QuickSetStr(&ptr.ScreenId, m, "screenid")
			dbmap.QuickSetStr(&ptr.LineId, m, "lineid")
			cmdPtrs = append(cmdPtrs, ptr)
		}
		tx.Exec(`UPDATE cmd SET status = ? WHERE status = ? AND remoteid = ?`, models.CmdStatusHangup, models.CmdStatusRunning, remoteId)
		var rtn []*models.Screen
		for _, cmdPtr := range cmdPtrs {
			if isWebShare(tx, cmdPtr.ScreenId) {
				InsertScreenLineUpdate(tx, cmdPtr.ScreenId, cmdPtr.LineId, models.UpdateType_CmdStatus)
			}
			tx.Exec(`UPDATE history SET status = ? WHERE screenid = ? AND lineid = ?`, models.CmdStatusHangup, cmdPtr.ScreenId, cmdPtr.LineId)
			screen, err := UpdateScreenFocusForDoneCmd(tx.Context(), cmdPtr.ScreenId, cmdPtr.LineId)
			if err != nil {
				return nil, err
			}
			// no dups: UpdateScreenFocusForDoneCmd only returns a screen once
			if screen != nil {
				rtn = append(rtn, screen)
			}
		}
		return rtn, nil
	})
}

// HangupCmd hangs up a single cmd, returning the screen if its focus
// changed.
func HangupCmd(ctx context.Context, screenId string, lineId string) (*models.Screen, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Screen, error) {
		tx.Exec(`UPDATE cmd SET status = ? WHERE screenid = ? AND lineid = ?`, models.CmdStatusHangup, screenId, lineId)
		tx.Exec(`UPDATE history SET status = ? WHERE screenid = ? AND lineid = ?`, models.CmdStatusHangup, screenId, lineId)
		if isWebShare(tx, screenId) {
			InsertScreenLineUpdate(tx, screenId, lineId, models.UpdateType_CmdStatus)
		}
		return UpdateScreenFocusForDoneCmd(tx.Context(), screenId, lineId)
	})
}

// ReInitFocus resets every screen's focus to the input (startup recovery).
func ReInitFocus(ctx context.Context) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE screen SET focustype = 'input'`)
		return nil
	})
}

// SetStatusIndicatorLevel_Update raises the in-memory indicator of a screen
// and records the change in the packet. Unless force is set, the active
// screen is skipped and the level only escalates.
func SetStatusIndicatorLevel_Update(ctx context.Context, update *bus.ModelUpdatePacket, screenId string, level models.StatusIndicatorLevel, force bool) error {
	var newStatus models.StatusIndicatorLevel
	if force {
		screenmem.SetIndicatorLevel(screenId, level)
		newStatus = level
	} else {
		activeSessionId, err := GetActiveSessionId(ctx)
		if err != nil {
			return fmt.Errorf("error getting active session id: %w", err)
		}
		bareSession, err := GetBareSessionById(ctx, activeSessionId)
		if err != nil {
			return fmt.Errorf("error getting bare session: %w", err)
		}
		if bareSession != nil && bareSession.ActiveScreenId == screenId {
			return nil
		}
		newLevel := screenmem.CombineIndicatorLevels(screenId, level)
		if newLevel != level {
			return nil
		}
		newStatus = level
	}
	update.AddUpdate(models.ScreenStatusIndicator{ScreenId: screenId, Status: newStatus})
	return nil
}

// SetStatusIndicatorLevel raises the indicator and pushes the change to the
// bus directly.
func SetStatusIndicatorLevel(ctx context.Context, screenId string, level models.StatusIndicatorLevel, force bool) error {
	update := bus.MakeUpdatePacket()
	if err := SetStatusIndicatorLevel_Update(ctx, update, screenId, level, force); err != nil {
		return err
	}
	bus.MainUpdateBus.DoUpdate(update)
	return nil
}

// ResetStatusIndicator_Update clears the indicator (no DB access needed).
func ResetStatusIndicator_Update(update *bus.ModelUpdatePacket, screenId string) {
	// force bypasses the active-screen check, so no context is needed
	_ = SetStatusIndicatorLevel_Update(context.TODO(), update, screenId, models.StatusIndicatorLevel_None, true)
}

// ResetStatusIndicator clears the indicator and pushes the change.
func ResetStatusIndicator(screenId string) error {
	return SetStatusIndicatorLevel(context.TODO(), screenId, models.StatusIndicatorLevel_None, true)
}

// IncrementNumRunningCmds_Update adjusts the running-command counter and
// records the new value in the packet.
func IncrementNumRunningCmds_Update(update *bus.ModelUpdatePacket, screenId string, delta int) {
	newNum := screenmem.IncrementNumRunningCommands(screenId, delta)
	update.AddUpdate(models.ScreenNumRunningCommands{ScreenId: screenId, Num: newNum})
}

// IncrementNumRunningCmds adjusts the counter and pushes the change.
func IncrementNumRunningCmds(screenId string, delta int) {
	update := bus.MakeUpdatePacket()
	IncrementNumRunningCmds_Update(update, screenId, delta)
	bus.MainUpdateBus.DoUpdate(update)
}

// UpdateWithClearOpenAICmdInfo clears the AI chat scratch of a screen and
// returns the packet carrying the empty chat.
func UpdateWithClearOpenAICmdInfo(screenId string) *bus.ModelUpdatePacket {
	screenmem.ClearCmdInfoChat(screenId)
	return UpdateWithCurrentOpenAICmdInfoChat(screenId, nil)
}

// UpdateWithAddNewOpenAICmdInfoPacket appends a chat message and returns the
// packet carrying the full chat.
func UpdateWithAddNewOpenAICmdInfoPacket(screenId string, pk *models.OpenAICmdInfoChatMessage) *bus.ModelUpdatePacket {
	screenmem.AddCmdInfoChatMessage(screenId, pk)
	return UpdateWithCurrentOpenAICmdInfoChat(screenId, nil)
}

// UpdateWithUpdateOpenAICmdInfoPacket replaces a chat message by id.
func UpdateWithUpdateOpenAICmdInfoPacket(screenId string, messageId int, pk *models.OpenAICmdInfoChatMessage) (*bus.ModelUpdatePacket, error) {
	if err := screenmem.UpdateCmdInfoChatMessage(screenId, messageId, pk); err != nil {
		return nil, err
	}
	return UpdateWithCurrentOpenAICmdInfoChat(screenId, nil), nil
}

// UpdateWithCurrentOpenAICmdInfoChat appends the current chat scratch to a
// packet (allocating one when update is nil).
func UpdateWithCurrentOpenAICmdInfoChat(screenId string, update *bus.ModelUpdatePacket) *bus.ModelUpdatePacket {
	if update == nil {
		update = bus.MakeUpdatePacket()
	}
	update.AddUpdate(models.OpenAICmdInfoChatUpdate(screenmem.GetCmdInfoChat(screenId)))
	return update
}
