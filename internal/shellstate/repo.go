package shellstate

import (
	"context"
	"fmt"
	"time"

	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/pkg/dbmap"
	"github.com/thebtf/termwork/pkg/models"
)

// StoreStateBase inserts a state base keyed by its content hash. Inserting
// an already-present base is a no-op.
func StoreStateBase(ctx context.Context, state *ShellState) error {
	stateBase := &models.StateBase{
		Version: state.Version,
		Ts:      time.Now().UnixMilli(),
	}
	stateBase.BaseHash, stateBase.Data = state.EncodeAndHash()
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT basehash FROM state_base WHERE basehash = ?`
		if tx.Exists(query, stateBase.BaseHash) {
			return nil
		}
		query = `INSERT INTO state_base (basehash, ts, version, data) VALUES (:basehash,:ts,:version,:data)`
		tx.NamedExec(query, stateBase.ToMap())
		return nil
	})
}

// StoreStateDiff inserts a state diff keyed by its content hash. The base
// and every predecessor diff in the chain must already exist.
func StoreStateDiff(ctx context.Context, diff *ShellStateDiff) error {
	stateDiff := &models.StateDiff{
		BaseHash:    diff.BaseHash,
		Ts:          time.Now().UnixMilli(),
		DiffHashArr: diff.DiffHashArr,
	}
	stateDiff.DiffHash, stateDiff.Data = diff.EncodeAndHash()
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT basehash FROM state_base WHERE basehash = ?`
		if stateDiff.BaseHash == "" || !tx.Exists(query, stateDiff.BaseHash) {
			return fmt.Errorf("cannot store statediff, basehash:%s does not exist", stateDiff.BaseHash)
		}
		query = `SELECT diffhash FROM state_diff WHERE diffhash = ?`
		for idx, diffHash := range stateDiff.DiffHashArr {
			if !tx.Exists(query, diffHash) {
				return fmt.Errorf("cannot store statediff, diffhash[%d]:%s does not exist", idx, diffHash)
			}
		}
		if tx.Exists(query, stateDiff.DiffHash) {
			return nil
		}
		query = `INSERT INTO state_diff (diffhash, ts, basehash, diffhasharr, data) VALUES (:diffhash,:ts,:basehash,:diffhasharr,:data)`
		tx.NamedExec(query, stateDiff.ToMap())
		return nil
	})
}

// GetStateBase loads and decodes a state base by hash.
func GetStateBase(ctx context.Context, baseHash string) (*ShellState, error) {
	stateBase, txErr := db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.StateBase, error) {
		query := `SELECT * FROM state_base WHERE basehash = ?`
		stateBase := db.GetMapGen[*models.StateBase](tx, query, baseHash)
		if stateBase == nil {
			return nil, fmt.Errorf("StateBase %s not found", baseHash)
		}
		return stateBase, nil
	})
	if txErr != nil {
		return nil, txErr
	}
	state := &ShellState{}
	if err := state.DecodeShellState(stateBase.Data); err != nil {
		return nil, err
	}
	return state, nil
}

// GetStateDiff loads and decodes a state diff by hash.
func GetStateDiff(ctx context.Context, diffHash string) (*ShellStateDiff, error) {
	stateDiff, txErr := db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.StateDiff, error) {
		query := `SELECT * FROM state_diff WHERE diffhash = ?`
		stateDiff := db.GetMapGen[*models.StateDiff](tx, query, diffHash)
		if stateDiff == nil {
			return nil, fmt.Errorf("StateDiff %s not found", diffHash)
		}
		return stateDiff, nil
	})
	if txErr != nil {
		return nil, txErr
	}
	diff := &ShellStateDiff{}
	if err := diff.DecodeShellStateDiff(stateDiff.Data); err != nil {
		return nil, err
	}
	return diff, nil
}

// GetStateBaseVersion returns the stored version of a base ("" if absent).
func GetStateBaseVersion(ctx context.Context, baseHash string) (string, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (string, error) {
		query := `SELECT version FROM state_base WHERE basehash = ?`
		return tx.GetString(query, baseHash), nil
	})
}

// GetFullState resolves a state pointer by loading the base and folding the
// diff chain over it in order. A missing base or diff is a load error for
// this pointer.
func GetFullState(ctx context.Context, ssPtr models.ShellStatePtr) (*ShellState, error) {
	if ssPtr.BaseHash == "" {
		return nil, fmt.Errorf("invalid empty basehash")
	}
	var state *ShellState
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT * FROM state_base WHERE basehash = ?`
		m := tx.GetMap(query, ssPtr.BaseHash)
		if m == nil {
			return fmt.Errorf("ShellState %s not found", ssPtr.BaseHash)
		}
		var baseData []byte
		dbmap.QuickSetBytes(&baseData, m, "data")
		state = &ShellState{}
		if err := state.DecodeShellState(baseData); err != nil {
			return err
		}
		for idx, diffHash := range ssPtr.DiffHashArr {
			query = `SELECT * FROM state_diff WHERE diffhash = ?`
			stateDiff := db.GetMapGen[*models.StateDiff](tx, query, diffHash)
			if stateDiff == nil {
				return fmt.Errorf("ShellStateDiff %s not found", diffHash)
			}
			ssDiff := &ShellStateDiff{}
			if err := ssDiff.DecodeShellStateDiff(stateDiff.Data); err != nil {
				return err
			}
			newState, err := ApplyShellStateDiff(state, ssDiff)
			if err != nil {
				return fmt.Errorf("GetFullState, diff[%d]:%s: %w", idx, diffHash, err)
			}
			state = newState
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	if state == nil {
		return nil, fmt.Errorf("ShellState not found")
	}
	return state, nil
}

// GetCurStateDiffFromPtr returns the final diff of a pointer's chain, or an
// empty diff carrying the base version when the chain is empty.
func GetCurStateDiffFromPtr(ctx context.Context, ssPtr *models.ShellStatePtr) (*ShellStateDiff, error) {
	if ssPtr == nil {
		return nil, fmt.Errorf("cannot resolve state, empty stateptr")
	}
	if len(ssPtr.DiffHashArr) == 0 {
		baseVersion, err := GetStateBaseVersion(ctx, ssPtr.BaseHash)
		if err != nil {
			return nil, fmt.Errorf("cannot get base version: %w", err)
		}
		return &ShellStateDiff{Version: baseVersion, BaseHash: ssPtr.BaseHash}, nil
	}
	lastDiffHash := ssPtr.DiffHashArr[len(ssPtr.DiffHashArr)-1]
	return GetStateDiff(ctx, lastDiffHash)
}
