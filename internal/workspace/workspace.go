package workspace

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"os"
	"os/user"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/thebtf/termwork/internal/bus"
	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/internal/screenmem"
	"github.com/thebtf/termwork/pkg/dbmap"
	"github.com/thebtf/termwork/pkg/models"
)

const DefaultSessionName = "default"
const LocalRemoteAlias = "local"
const DefaultCwd = "~"

func createClientData(tx *db.TxWrap) error {
	curve := elliptic.P384()
	pkey, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return fmt.Errorf("generating P-384 key: %w", err)
	}
	pkBytes, err := x509.MarshalECPrivateKey(pkey)
	if err != nil {
		return fmt.Errorf("marshaling private key bytes: %w", err)
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(&pkey.PublicKey)
	if err != nil {
		return fmt.Errorf("marshaling public key bytes: %w", err)
	}
	sshPubKey, err := ssh.NewPublicKey(&pkey.PublicKey)
	if err != nil {
		return fmt.Errorf("converting public key to ssh form: %w", err)
	}
	c := models.ClientData{
		ClientId:            GenUUID(),
		UserId:              GenUUID(),
		UserPrivateKeyBytes: pkBytes,
		UserPublicKeyBytes:  pubBytes,
		UserPublicKeySSH:    string(ssh.MarshalAuthorizedKey(sshPubKey)),
		ActiveSessionId:     "",
		WinSize:             models.ClientWinSize{},
		CmdStoreType:        models.CmdStoreTypeScreen,
		ReleaseInfo:         models.ReleaseInfo{},
	}
	query := `INSERT INTO client ( clientid, userid, activesessionid, userpublickeybytes, userprivatekeybytes, userpublickeyssh, winsize, cmdstoretype, releaseinfo)
	                      VALUES (:clientid,:userid,:activesessionid,:userpublickeybytes,:userprivatekeybytes,:userpublickeyssh,:winsize,:cmdstoretype,:releaseinfo)`
	tx.NamedExec(query, c.ToMap())
	log.Info().Str("clientid", c.ClientId).Str("userid", c.UserId).Msg("created client row with new keypair")
	return nil
}

// EnsureClientData returns the singleton client row, creating it (with a
// fresh keypair) on first run.
func EnsureClientData(ctx context.Context) (*models.ClientData, error) {
	rtn, err := db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.ClientData, error) {
		count := tx.GetInt(`SELECT count(*) FROM client`)
		if count > 1 {
			return nil, fmt.Errorf("invalid client database, multiple (%d) rows in client table", count)
		}
		if count == 0 {
			if createErr := createClientData(tx); createErr != nil {
				return nil, createErr
			}
		}
		cdata := db.GetMapGen[*models.ClientData](tx, `SELECT * FROM client`)
		if cdata == nil {
			return nil, fmt.Errorf("no client data found")
		}
		return cdata, nil
	})
	if err != nil {
		return nil, err
	}
	if rtn.UserId == "" {
		return nil, fmt.Errorf("invalid client data (no userid)")
	}
	if len(rtn.UserPrivateKeyBytes) == 0 || len(rtn.UserPublicKeyBytes) == 0 {
		return nil, fmt.Errorf("invalid client data (no public/private keypair)")
	}
	rtn.UserPrivateKey, err = x509.ParseECPrivateKey(rtn.UserPrivateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid client data, cannot parse private key: %w", err)
	}
	pubKey, err := x509.ParsePKIXPublicKey(rtn.UserPublicKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid client data, cannot parse public key: %w", err)
	}
	ecPubKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid client data, wrong public key type: %T", pubKey)
	}
	rtn.UserPublicKey = ecPubKey
	dbVersion, err := db.GetDBVersion(ctx)
	if err != nil {
		return nil, err
	}
	rtn.DBVersion = dbVersion
	return rtn, nil
}

// EnsureLocalRemote creates the "local" and "sudo" remotes on first run.
func EnsureLocalRemote(ctx context.Context) error {
	remote, err := GetLocalRemote(ctx)
	if err != nil {
		return fmt.Errorf("getting local remote from db: %w", err)
	}
	if remote != nil {
		return nil
	}
	hostName, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("getting hostname: %w", err)
	}
	curUser, err := user.Current()
	if err != nil {
		return fmt.Errorf("getting user: %w", err)
	}
	localRemote := &models.Remote{
		RemoteId:            GenUUID(),
		RemoteType:          models.RemoteTypeSsh,
		RemoteAlias:         LocalRemoteAlias,
		RemoteCanonicalName: fmt.Sprintf("%s@%s", curUser.Username, hostName),
		RemoteUser:          curUser.Username,
		RemoteHost:          hostName,
		ConnectMode:         models.ConnectModeStartup,
		AutoInstall:         true,
		SSHOpts:             &models.SSHOpts{Local: true},
		Local:               true,
		SSHConfigSrc:        models.SSHConfigSrcTypeManual,
		ShellPref:           models.ShellTypePrefDetect,
	}
	if err := UpsertRemote(ctx, localRemote); err != nil {
		return err
	}
	log.Info().Str("remote", localRemote.RemoteCanonicalName).Str("remoteid", localRemote.RemoteId).Msg("added local remote")
	sudoRemote := &models.Remote{
		RemoteId:            GenUUID(),
		RemoteType:          models.RemoteTypeSsh,
		RemoteAlias:         "sudo",
		RemoteCanonicalName: fmt.Sprintf("sudo@%s@%s", curUser.Username, hostName),
		RemoteUser:          "root",
		RemoteHost:          hostName,
		ConnectMode:         models.ConnectModeManual,
		AutoInstall:         true,
		SSHOpts:             &models.SSHOpts{Local: true, IsSudo: true},
		RemoteOpts:          &models.RemoteOpts{Color: "red"},
		Local:               true,
		SSHConfigSrc:        models.SSHConfigSrcTypeManual,
		ShellPref:           models.ShellTypePrefDetect,
	}
	if err := UpsertRemote(ctx, sudoRemote); err != nil {
		return err
	}
	log.Info().Str("remote", sudoRemote.RemoteCanonicalName).Str("remoteid", sudoRemote.RemoteId).Msg("added sudo remote")
	return nil
}

// EnsureOneSession guarantees at least one non-archived session exists.
func EnsureOneSession(ctx context.Context) error {
	numSessions, err := GetSessionCount(ctx)
	if err != nil {
		return err
	}
	if numSessions > 0 {
		return nil
	}
	_, err = InsertSessionWithName(ctx, DefaultSessionName, true)
	return err
}

// SetClientOpts replaces the persisted client preferences.
func SetClientOpts(ctx context.Context, clientOpts models.ClientOpts) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE client SET clientopts = ?`, dbmap.QuickJson(clientOpts))
		return nil
	})
}

// SetWinSize persists the window geometry.
func SetWinSize(ctx context.Context, winSize models.ClientWinSize) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE client SET winsize = ?`, dbmap.QuickJson(winSize))
		return nil
	})
}

// UpdateClientFeOpts persists the front-end options.
func UpdateClientFeOpts(ctx context.Context, feOpts models.FeOpts) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE client SET feopts = ?`, dbmap.QuickJson(feOpts))
		return nil
	})
}

// UpdateClientOpenAIOpts persists the openai endpoint options.
func UpdateClientOpenAIOpts(ctx context.Context, aiOpts models.OpenAIOpts) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE client SET openaiopts = ?`, dbmap.QuickJson(aiOpts))
		return nil
	})
}

// SetReleaseInfo persists the latest known release version.
func SetReleaseInfo(ctx context.Context, releaseInfo models.ReleaseInfo) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`UPDATE client SET releaseinfo = ?`, dbmap.QuickJson(releaseInfo))
		return nil
	})
}

// GetConnectUpdate assembles the full-state resync packet: all sessions and
// screens (with remote instances attached to their sessions) plus the
// active session id.
func GetConnectUpdate(ctx context.Context) (*models.ConnectUpdate, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*models.ConnectUpdate, error) {
		update := &models.ConnectUpdate{}
		sessions := db.SelectMapsGen[*models.Session](tx, GetAllSessionsQuery)
		sessionMap := make(map[string]*models.Session)
		for _, sess := range sessions {
			sessionMap[sess.SessionId] = sess
			update.Sessions = append(update.Sessions, sess)
		}
		query := `SELECT * FROM screen ORDER BY archived, screenidx, archivedts`
		update.Screens = db.SelectMapsGen[*models.Screen](tx, query)
		query = `SELECT * FROM remote_instance`
		riArr := db.SelectMapsGen[*models.RemoteInstance](tx, query)
		for _, ri := range riArr {
			if sess := sessionMap[ri.SessionId]; sess != nil {
				sess.Remotes = append(sess.Remotes, ri)
			}
		}
		query = `SELECT * FROM remote ORDER BY remoteidx`
		update.Remotes = db.SelectMapsGen[*models.Remote](tx, query)
		update.ActiveSessionId = tx.GetString(`SELECT activesessionid FROM client`)
		for _, screen := range update.Screens {
			if level := screenmem.GetIndicatorLevel(screen.ScreenId); level != models.StatusIndicatorLevel_None {
				update.ScreenStatusIndicators = append(update.ScreenStatusIndicators, &models.ScreenStatusIndicator{ScreenId: screen.ScreenId, Status: level})
			}
			if num := screenmem.GetNumRunningCommands(screen.ScreenId); num > 0 {
				update.ScreenNumRunningCommands = append(update.ScreenNumRunningCommands, &models.ScreenNumRunningCommands{ScreenId: screen.ScreenId, Num: num})
			}
		}
		return update, nil
	})
}

// MakeConnectPacket wraps the connect update for the bus.
func MakeConnectPacket(ctx context.Context) (*bus.ModelUpdatePacket, error) {
	connectUpdate, err := GetConnectUpdate(ctx)
	if err != nil {
		return nil, err
	}
	update := bus.MakeUpdatePacket()
	update.AddUpdate(*connectUpdate)
	return update, nil
}
