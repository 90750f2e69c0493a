package workspace

import (
	"context"
	"fmt"

	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/internal/shellstate"
	"github.com/thebtf/termwork/pkg/dbmap"
	"github.com/thebtf/termwork/pkg/models"
)

func validateSessionScreen(tx *db.TxWrap, sessionId string, screenId string) error {
	if screenId == "" {
		if !tx.Exists(`SELECT sessionid FROM session WHERE sessionid = ?`, sessionId) {
			return fmt.Errorf("no session found")
		}
		return nil
	}
	if !tx.Exists(`SELECT screenid FROM screen WHERE sessionid = ? AND screenid = ?`, sessionId, screenId) {
		return fmt.Errorf("no screen found")
	}
	return nil
}

// GetRemoteInstance returns the instance of a (session, screen, remote)
// triple or nil. Session-scoped pointers ignore the screen.
func GetRemoteInstance(ctx context.Context, sessionId string, screenId string, remotePtr models.RemotePtr) (*models.RemoteInstance, error) {
	if remotePtr.IsSessionScope() {
		screenId = ""
	}
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.RemoteInstance, error) {
		query := `SELECT * FROM remote_instance WHERE sessionid = ? AND screenid = ? AND remoteownerid = ? AND remoteid = ? AND name = ?`
		return db.GetMapGen[*models.RemoteInstance](tx, query, sessionId, screenId, remotePtr.OwnerId, remotePtr.RemoteId, remotePtr.Name), nil
	})
}

// GetRIsForScreen returns the session-scoped and screen-scoped instances
// visible to a screen.
func GetRIsForScreen(ctx context.Context, sessionId string, screenId string) ([]*models.RemoteInstance, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*models.RemoteInstance, error) {
		query := `SELECT * FROM remote_instance WHERE sessionid = ? AND (screenid = '' OR screenid = ?)`
		return db.SelectMapsGen[*models.RemoteInstance](tx, query, sessionId, screenId), nil
	})
}

// GetRemoteStatePtr returns the state pointer of an instance or nil.
func GetRemoteStatePtr(ctx context.Context, sessionId string, screenId string, remotePtr models.RemotePtr) (*models.ShellStatePtr, error) {
	ri, err := GetRemoteInstance(ctx, sessionId, screenId, remotePtr)
	if err != nil {
		return nil, err
	}
	if ri == nil {
		return nil, nil
	}
	return &models.ShellStatePtr{BaseHash: ri.StateBaseHash, DiffHashArr: ri.StateDiffHashArr}, nil
}

// GetRemoteState resolves the full shell state of an instance (nil when the
// instance has no state yet).
func GetRemoteState(ctx context.Context, sessionId string, screenId string, remotePtr models.RemotePtr) (*shellstate.ShellState, *models.ShellStatePtr, error) {
	ssptr, err := GetRemoteStatePtr(ctx, sessionId, screenId, remotePtr)
	if err != nil {
		return nil, nil, err
	}
	if ssptr == nil {
		return nil, nil, nil
	}
	state, err := shellstate.GetFullState(ctx, *ssptr)
	if err != nil {
		return nil, nil, err
	}
	return state, ssptr, nil
}

// updateRIWithState stores the capture through the shell-state repository
// and points the instance at it. Exactly one of stateBase/stateDiff is set.
func updateRIWithState(ctx context.Context, ri *models.RemoteInstance, stateBase *shellstate.ShellState, stateDiff *shellstate.ShellStateDiff) error {
	if stateBase != nil {
		baseHash, _ := stateBase.EncodeAndHash()
		ri.StateBaseHash = baseHash
		ri.StateDiffHashArr = nil
		ri.ShellType = stateBase.GetShellType()
		return shellstate.StoreStateBase(ctx, stateBase)
	}
	diffHash, _ := stateDiff.EncodeAndHash()
	ri.StateBaseHash = stateDiff.BaseHash
	ri.StateDiffHashArr = append(append([]string{}, stateDiff.DiffHashArr...), diffHash)
	ri.ShellType = stateDiff.GetShellType()
	return shellstate.StoreStateDiff(ctx, stateDiff)
}

// UpdateRemoteState upserts the remote_instance row with a new fe-state and
// state pointer. Exactly one of stateBase/stateDiff must be supplied.
func UpdateRemoteState(ctx context.Context, sessionId string, screenId string, remotePtr models.RemotePtr, feState map[string]string, stateBase *shellstate.ShellState, stateDiff *shellstate.ShellStateDiff) (*models.RemoteInstance, error) {
	if stateBase == nil && stateDiff == nil {
		return nil, fmt.Errorf("UpdateRemoteState, must set state or diff")
	}
	if stateBase != nil && stateDiff != nil {
		return nil, fmt.Errorf("UpdateRemoteState, cannot set state and diff")
	}
	if remotePtr.IsSessionScope() {
		screenId = ""
	}
	var ri *models.RemoteInstance
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		if err := validateSessionScreen(tx, sessionId, screenId); err != nil {
			return fmt.Errorf("cannot update remote instance state: %w", err)
		}
		query := `SELECT * FROM remote_instance WHERE sessionid = ? AND screenid = ? AND remoteownerid = ? AND remoteid = ? AND name = ?`
		ri = db.GetMapGen[*models.RemoteInstance](tx, query, sessionId, screenId, remotePtr.OwnerId, remotePtr.RemoteId, remotePtr.Name)
		if ri == nil {
			ri = &models.RemoteInstance{
				RIId:          GenUUID(),
				Name:          remotePtr.Name,
				SessionId:     sessionId,
				ScreenId:      screenId,
				RemoteOwnerId: remotePtr.OwnerId,
				RemoteId:      remotePtr.RemoteId,
				FeState:       feState,
			}
			if err := updateRIWithState(tx.Context(), ri, stateBase, stateDiff); err != nil {
				return err
			}
			query = `INSERT INTO remote_instance ( riid, name, sessionid, screenid, remoteownerid, remoteid, festate, statebasehash, statediffhasharr, shelltype)
                                          VALUES (:riid,:name,:sessionid,:screenid,:remoteownerid,:remoteid,:festate,:statebasehash,:statediffhasharr,:shelltype)`
			tx.NamedExec(query, ri.ToMap())
			return nil
		}
		ri.FeState = feState
		if err := updateRIWithState(tx.Context(), ri, stateBase, stateDiff); err != nil {
			return err
		}
		query = `UPDATE remote_instance SET festate = ?, statebasehash = ?, statediffhasharr = ?, shelltype = ? WHERE riid = ?`
		tx.Exec(query, dbmap.QuickJson(ri.FeState), ri.StateBaseHash, dbmap.QuickJsonArr(ri.StateDiffHashArr), ri.ShellType, ri.RIId)
		return nil
	})
	return ri, txErr
}

// UpdateCurRemote points a screen at a different remote.
func UpdateCurRemote(ctx context.Context, screenId string, remotePtr models.RemotePtr) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT screenid FROM screen WHERE screenid = ?`, screenId) {
			return fmt.Errorf("cannot update curremote: no screen found")
		}
		query := `UPDATE screen SET curremoteownerid = ?, curremoteid = ?, curremotename = ? WHERE screenid = ?`
		tx.Exec(query, remotePtr.OwnerId, remotePtr.RemoteId, remotePtr.Name, screenId)
		return nil
	})
}

// ScreenReset deletes the screen-scoped remote instances of a screen,
// returning removal records for the update packet.
func ScreenReset(ctx context.Context, screenId string) ([]*models.RemoteInstance, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*models.RemoteInstance, error) {
		sessionId := tx.GetString(`SELECT sessionid FROM screen WHERE screenid = ?`, screenId)
		if sessionId == "" {
			return nil, fmt.Errorf("screen does not exist")
		}
		riids := tx.SelectStrings(`SELECT riid FROM remote_instance WHERE sessionid = ? AND screenid = ?`, sessionId, screenId)
		var delRis []*models.RemoteInstance
		for _, riid := range riids {
			delRis = append(delRis, &models.RemoteInstance{SessionId: sessionId, ScreenId: screenId, RIId: riid, Remove: true})
		}
		tx.Exec(`DELETE FROM remote_instance WHERE sessionid = ? AND screenid = ?`, sessionId, screenId)
		return delRis, nil
	})
}
