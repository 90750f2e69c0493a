package server

import (
	"context"
	"fmt"

	"github.com/thebtf/termwork/internal/bus"
	"github.com/thebtf/termwork/internal/workspace"
	"github.com/thebtf/termwork/pkg/models"
)

// BusDispatcher delivers drained screen-update rows to bus subscribers.
// Each row is expanded into the current entity state so consumers apply
// updates incrementally without re-reading the whole screen.
type BusDispatcher struct{}

func (BusDispatcher) DispatchScreenUpdate(ctx context.Context, row *models.ScreenUpdate) error {
	update := bus.MakeUpdatePacket()
	switch row.UpdateType {
	case models.UpdateType_ScreenNew, models.UpdateType_ScreenSelectedLine, models.UpdateType_ScreenName:
		screen, err := workspace.GetScreenById(ctx, row.ScreenId)
		if err != nil {
			return err
		}
		if screen != nil {
			update.AddUpdate(*screen)
		}
	case models.UpdateType_ScreenDel:
		update.AddUpdate(models.Screen{ScreenId: row.ScreenId, Remove: true})
	case models.UpdateType_LineNew, models.UpdateType_LineRenderer, models.UpdateType_LineContentHeight, models.UpdateType_LineState:
		line, cmd, err := workspace.GetLineCmdByLineId(ctx, row.ScreenId, row.LineId)
		if err != nil {
			return err
		}
		if line == nil {
			// the line was deleted while the row was pending; the
			// coalescing rule means a line:del row follows
			return nil
		}
		update.AddUpdate(*line)
		if cmd != nil {
			update.AddUpdate(*cmd)
		}
	case models.UpdateType_LineDel:
		update.AddUpdate(models.Line{ScreenId: row.ScreenId, LineId: row.LineId, Remove: true})
	case models.UpdateType_CmdStatus, models.UpdateType_CmdTermOpts, models.UpdateType_CmdExitCode,
		models.UpdateType_CmdDurationMs, models.UpdateType_CmdRtnState:
		cmd, err := workspace.GetCmdByScreenId(ctx, row.ScreenId, row.LineId)
		if err != nil {
			return err
		}
		if cmd != nil {
			update.AddUpdate(*cmd)
		}
	case models.UpdateType_PtyPos:
		stat, err := workspace.StatCmdPtyFile(ctx, row.ScreenId, row.LineId)
		if err != nil {
			// pty file may not exist yet; deliver a zero position
			update.AddUpdate(models.PtyDataUpdate{ScreenId: row.ScreenId, LineId: row.LineId})
			break
		}
		ptyPos := stat.FileOffset + stat.DataSize
		if err := workspace.SetWebPtyPos(ctx, row.ScreenId, row.LineId, ptyPos); err != nil {
			return err
		}
		update.AddUpdate(models.PtyDataUpdate{ScreenId: row.ScreenId, LineId: row.LineId, PtyPos: ptyPos})
	default:
		return fmt.Errorf("unknown screen-update type %q", row.UpdateType)
	}
	bus.MainUpdateBus.DoUpdate(update)
	return nil
}
