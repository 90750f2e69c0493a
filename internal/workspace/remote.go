package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/pkg/dbmap"
	"github.com/thebtf/termwork/pkg/models"
)

// GetAllRemotes returns every remote ordered by index.
func GetAllRemotes(ctx context.Context) ([]*models.Remote, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*models.Remote, error) {
		query := `SELECT * FROM remote ORDER BY remoteidx`
		return db.SelectMapsGen[*models.Remote](tx, query), nil
	})
}

// GetAllImportedRemotes returns the sshconfig-imported remotes keyed by
// canonical name.
func GetAllImportedRemotes(ctx context.Context) (map[string]*models.Remote, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (map[string]*models.Remote, error) {
		rtn := make(map[string]*models.Remote)
		query := `SELECT * FROM remote WHERE sshconfigsrc = ? ORDER BY remoteidx`
		for _, remote := range db.SelectMapsGen[*models.Remote](tx, query, models.SSHConfigSrcTypeImport) {
			rtn[remote.RemoteCanonicalName] = remote
		}
		return rtn, nil
	})
}

// GetRemoteByAlias returns a remote by alias or nil.
func GetRemoteByAlias(ctx context.Context, alias string) (*models.Remote, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Remote, error) {
		query := `SELECT * FROM remote WHERE remotealias = ?`
		return db.GetMapGen[*models.Remote](tx, query, alias), nil
	})
}

// GetRemoteById returns a remote by id or nil.
func GetRemoteById(ctx context.Context, remoteId string) (*models.Remote, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Remote, error) {
		query := `SELECT * FROM remote WHERE remoteid = ?`
		return db.GetMapGen[*models.Remote](tx, query, remoteId), nil
	})
}

// GetRemoteByCanonicalName returns a remote by canonical name or nil.
func GetRemoteByCanonicalName(ctx context.Context, cname string) (*models.Remote, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Remote, error) {
		query := `SELECT * FROM remote WHERE remotecanonicalname = ?`
		return db.GetMapGen[*models.Remote](tx, query, cname), nil
	})
}

// GetLocalRemote returns the non-sudo local remote or nil.
func GetLocalRemote(ctx context.Context) (*models.Remote, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.Remote, error) {
		query := `SELECT * FROM remote WHERE local AND remotealias = ?`
		return db.GetMapGen[*models.Remote](tx, query, LocalRemoteAlias), nil
	})
}

// UpsertRemote inserts a remote (replacing any row with the same id),
// enforcing alias and canonical-name uniqueness and assigning the next
// ordering index.
func UpsertRemote(ctx context.Context, r *models.Remote) error {
	if r == nil {
		return fmt.Errorf("cannot insert nil remote")
	}
	if r.RemoteId == "" {
		return fmt.Errorf("cannot insert remote without id")
	}
	if r.RemoteCanonicalName == "" {
		return fmt.Errorf("cannot insert remote without canonicalname")
	}
	if r.RemoteType == "" {
		return fmt.Errorf("cannot insert remote without type")
	}
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		if tx.Exists(`SELECT remoteid FROM remote WHERE remoteid = ?`, r.RemoteId) {
			tx.Exec(`DELETE FROM remote WHERE remoteid = ?`, r.RemoteId)
		}
		if tx.Exists(`SELECT remoteid FROM remote WHERE remotecanonicalname = ?`, r.RemoteCanonicalName) {
			return fmt.Errorf("remote has duplicate canonicalname '%s', cannot create", r.RemoteCanonicalName)
		}
		if r.RemoteAlias != "" && tx.Exists(`SELECT remoteid FROM remote WHERE remotealias = ?`, r.RemoteAlias) {
			return fmt.Errorf("remote has duplicate alias '%s', cannot create", r.RemoteAlias)
		}
		maxRemoteIdx := tx.GetInt(`SELECT COALESCE(max(remoteidx), 0) FROM remote`)
		r.RemoteIdx = int64(maxRemoteIdx + 1)
		query := `INSERT INTO remote
            ( remoteid, remotetype, remotealias, remotecanonicalname, remoteuser, remotehost, connectmode, autoinstall, sshopts, remoteopts, lastconnectts, archived, remoteidx, local, statevars, sshconfigsrc, openaiopts, shellpref) VALUES
            (:remoteid,:remotetype,:remotealias,:remotecanonicalname,:remoteuser,:remotehost,:connectmode,:autoinstall,:sshopts,:remoteopts,:lastconnectts,:archived,:remoteidx,:local,:statevars,:sshconfigsrc,:openaiopts,:shellpref)`
		tx.NamedExec(query, r.ToMap())
		return nil
	})
}

const (
	RemoteField_Alias       = "alias"
	RemoteField_ConnectMode = "connectmode"
	RemoteField_AutoInstall = "autoinstall"
	RemoteField_SSHKey      = "sshkey"
	RemoteField_SSHPassword = "sshpassword"
	RemoteField_Color       = "color"
	RemoteField_ShellPref   = "shellpref"
)

// UpdateRemote applies an edit map of remote fields. Validation happens at
// the call site, except alias uniqueness which is rechecked here.
func UpdateRemote(ctx context.Context, remoteId string, editMap map[string]interface{}) (*models.Remote, error) {
	var rtn *models.Remote
	txErr := db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT remoteid FROM remote WHERE remoteid = ?`, remoteId) {
			return fmt.Errorf("remote not found")
		}
		if alias, found := editMap[RemoteField_Alias]; found {
			query := `SELECT remoteid FROM remote WHERE remotealias = ? AND remoteid <> ?`
			if alias != "" && tx.Exists(query, alias, remoteId) {
				return fmt.Errorf("remote has duplicate alias, cannot update")
			}
			tx.Exec(`UPDATE remote SET remotealias = ? WHERE remoteid = ?`, alias, remoteId)
		}
		if mode, found := editMap[RemoteField_ConnectMode]; found {
			tx.Exec(`UPDATE remote SET connectmode = ? WHERE remoteid = ?`, mode, remoteId)
		}
		if autoInstall, found := editMap[RemoteField_AutoInstall]; found {
			tx.Exec(`UPDATE remote SET autoinstall = ? WHERE remoteid = ?`, autoInstall, remoteId)
		}
		if sshKey, found := editMap[RemoteField_SSHKey]; found {
			tx.Exec(`UPDATE remote SET sshopts = json_set(sshopts, '$.sshidentity', ?) WHERE remoteid = ?`, sshKey, remoteId)
		}
		if sshPassword, found := editMap[RemoteField_SSHPassword]; found {
			tx.Exec(`UPDATE remote SET sshopts = json_set(sshopts, '$.sshpassword', ?) WHERE remoteid = ?`, sshPassword, remoteId)
		}
		if shellPref, found := editMap[RemoteField_ShellPref]; found {
			tx.Exec(`UPDATE remote SET shellpref = ? WHERE remoteid = ?`, shellPref, remoteId)
		}
		if color, found := editMap[RemoteField_Color]; found {
			tx.Exec(`UPDATE remote SET remoteopts = json_set(remoteopts, '$.color', ?) WHERE remoteid = ?`, color, remoteId)
		}
		var err error
		rtn, err = GetRemoteById(tx.Context(), remoteId)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}
	return rtn, nil
}

// UpdateRemoteStateVars replaces the captured state variables of a remote.
func UpdateRemoteStateVars(ctx context.Context, remoteId string, stateVars map[string]string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE remote SET statevars = ? WHERE remoteid = ?`, dbmap.QuickJson(stateVars), remoteId)
		return nil
	})
}

// SetRemoteLastConnect stamps the last successful connect time.
func SetRemoteLastConnect(ctx context.Context, remoteId string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE remote SET lastconnectts = ? WHERE remoteid = ?`, time.Now().UnixMilli(), remoteId)
		return nil
	})
}

// ArchiveRemote archives a remote definition. The local remotes cannot be
// archived.
func ArchiveRemote(ctx context.Context, remoteId string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT remoteid FROM remote WHERE remoteid = ?`, remoteId) {
			return fmt.Errorf("remote not found")
		}
		if tx.GetBool(`SELECT local FROM remote WHERE remoteid = ?`, remoteId) {
			return fmt.Errorf("cannot archive the local remote")
		}
		tx.Exec(`UPDATE remote SET archived = 1 WHERE remoteid = ?`, remoteId)
		return nil
	})
}

// DeleteRemote permanently removes a remote and its instances.
func DeleteRemote(ctx context.Context, remoteId string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		if !tx.Exists(`SELECT remoteid FROM remote WHERE remoteid = ?`, remoteId) {
			return fmt.Errorf("remote not found")
		}
		if tx.GetBool(`SELECT local FROM remote WHERE remoteid = ?`, remoteId) {
			return fmt.Errorf("cannot delete the local remote")
		}
		tx.Exec(`DELETE FROM remote WHERE remoteid = ?`, remoteId)
		tx.Exec(`DELETE FROM remote_instance WHERE remoteid = ?`, remoteId)
		return nil
	})
}

// GetRemoteActiveShells returns the distinct shell types of a remote's
// instances.
func GetRemoteActiveShells(ctx context.Context, remoteId string) ([]string, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]string, error) {
		query := `SELECT DISTINCT shelltype FROM remote_instance WHERE remoteid = ? AND shelltype <> ''`
		return tx.SelectStrings(query, remoteId), nil
	})
}
