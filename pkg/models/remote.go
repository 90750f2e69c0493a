package models

import (
	"strings"

	"github.com/thebtf/termwork/pkg/dbmap"
)

const (
	ConnectModeStartup = "startup"
	ConnectModeAuto    = "auto"
	ConnectModeManual  = "manual"
)

const (
	RemoteTypeSsh    = "ssh"
	RemoteTypeOpenAI = "openai"
)

const (
	SSHConfigSrcTypeManual = "termwork-manual"
	SSHConfigSrcTypeImport = "sshconfig-import"
)

const (
	ShellTypeBash       = "bash"
	ShellTypeZsh        = "zsh"
	ShellTypePrefDetect = "detect"
)

const (
	RemoteAuthTypeNone        = "none"
	RemoteAuthTypePassword    = "password"
	RemoteAuthTypeKey         = "key"
	RemoteAuthTypeKeyPassword = "key+password"
)

func IsValidConnectMode(mode string) bool {
	return mode == ConnectModeStartup || mode == ConnectModeAuto || mode == ConnectModeManual
}

// RemotePtr names a remote as seen from a screen or cmd: the remote id plus
// an optional owner and instance name. A name starting with "*" makes the
// pointer session scoped (shared by all screens of the session).
type RemotePtr struct {
	OwnerId  string `json:"ownerid"`
	RemoteId string `json:"remoteid"`
	Name     string `json:"name"`
}

func (r RemotePtr) IsSessionScope() bool {
	return strings.HasPrefix(r.Name, "*")
}

func (r RemotePtr) GetDisplayName(baseDisplayName string) string {
	if r.Name == "" {
		return baseDisplayName
	}
	return baseDisplayName + ":" + r.Name
}

// SSHOpts holds the connection parameters of an ssh remote.
type SSHOpts struct {
	Local       bool   `json:"local,omitempty"`
	IsSudo      bool   `json:"issudo,omitempty"`
	SSHHost     string `json:"sshhost"`
	SSHUser     string `json:"sshuser"`
	SSHOptsStr  string `json:"sshopts,omitempty"`
	SSHIdentity string `json:"sshidentity,omitempty"`
	SSHPort     int    `json:"sshport,omitempty"`
	SSHPassword string `json:"sshpassword,omitempty"`
}

func (opts SSHOpts) GetAuthType() string {
	if opts.SSHPassword != "" && opts.SSHIdentity != "" {
		return RemoteAuthTypeKeyPassword
	}
	if opts.SSHIdentity != "" {
		return RemoteAuthTypeKey
	}
	if opts.SSHPassword != "" {
		return RemoteAuthTypePassword
	}
	return RemoteAuthTypeNone
}

// RemoteOpts are cosmetic remote options.
type RemoteOpts struct {
	Color string `json:"color"`
}

// OpenAIOpts configures an openai-type remote endpoint.
type OpenAIOpts struct {
	Model      string `json:"model"`
	APIToken   string `json:"apitoken"`
	BaseURL    string `json:"baseurl,omitempty"`
	MaxTokens  int    `json:"maxtokens,omitempty"`
	MaxChoices int    `json:"maxchoices,omitempty"`
}

// Remote is a connection definition (local shell, ssh host, sudo, or an
// openai endpoint).
type Remote struct {
	RemoteId            string      `json:"remoteid"`
	RemoteType          string      `json:"remotetype"`
	RemoteAlias         string      `json:"remotealias"`
	RemoteCanonicalName string      `json:"remotecanonicalname"`
	RemoteOpts          *RemoteOpts `json:"remoteopts"`
	LastConnectTs       int64       `json:"lastconnectts"`
	RemoteIdx           int64       `json:"remoteidx"`
	Archived            bool        `json:"archived"`

	// SSH fields
	Local        bool              `json:"local"`
	RemoteUser   string            `json:"remoteuser"`
	RemoteHost   string            `json:"remotehost"`
	ConnectMode  string            `json:"connectmode"`
	AutoInstall  bool              `json:"autoinstall"`
	SSHOpts      *SSHOpts          `json:"sshopts"`
	StateVars    map[string]string `json:"statevars"`
	SSHConfigSrc string            `json:"sshconfigsrc"`
	ShellPref    string            `json:"shellpref"` // bash, zsh, or detect

	// OpenAI fields
	OpenAIOpts *OpenAIOpts `json:"openaiopts,omitempty"`
}

func (r *Remote) IsLocal() bool {
	return r.Local && !r.IsSudo()
}

func (r *Remote) IsSudo() bool {
	return r.SSHOpts != nil && r.SSHOpts.IsSudo
}

func (r *Remote) GetName() string {
	if r.RemoteAlias != "" {
		return r.RemoteAlias
	}
	return r.RemoteCanonicalName
}

func (r *Remote) ToMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["remoteid"] = r.RemoteId
	rtn["remotetype"] = r.RemoteType
	rtn["remotealias"] = r.RemoteAlias
	rtn["remotecanonicalname"] = r.RemoteCanonicalName
	rtn["remoteuser"] = r.RemoteUser
	rtn["remotehost"] = r.RemoteHost
	rtn["connectmode"] = r.ConnectMode
	rtn["autoinstall"] = r.AutoInstall
	rtn["sshopts"] = dbmap.QuickJson(r.SSHOpts)
	rtn["remoteopts"] = dbmap.QuickJson(r.RemoteOpts)
	rtn["lastconnectts"] = r.LastConnectTs
	rtn["archived"] = r.Archived
	rtn["remoteidx"] = r.RemoteIdx
	rtn["local"] = r.Local
	rtn["statevars"] = dbmap.QuickJson(r.StateVars)
	rtn["sshconfigsrc"] = r.SSHConfigSrc
	rtn["openaiopts"] = dbmap.QuickJson(r.OpenAIOpts)
	rtn["shellpref"] = r.ShellPref
	return rtn
}

func (r *Remote) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&r.RemoteId, m, "remoteid")
	dbmap.QuickSetStr(&r.RemoteType, m, "remotetype")
	dbmap.QuickSetStr(&r.RemoteAlias, m, "remotealias")
	dbmap.QuickSetStr(&r.RemoteCanonicalName, m, "remotecanonicalname")
	dbmap.QuickSetStr(&r.RemoteUser, m, "remoteuser")
	dbmap.QuickSetStr(&r.RemoteHost, m, "remotehost")
	dbmap.QuickSetStr(&r.ConnectMode, m, "connectmode")
	dbmap.QuickSetBool(&r.AutoInstall, m, "autoinstall")
	dbmap.QuickSetJson(&r.SSHOpts, m, "sshopts")
	dbmap.QuickSetJson(&r.RemoteOpts, m, "remoteopts")
	dbmap.QuickSetInt64(&r.LastConnectTs, m, "lastconnectts")
	dbmap.QuickSetBool(&r.Archived, m, "archived")
	dbmap.QuickSetInt64(&r.RemoteIdx, m, "remoteidx")
	dbmap.QuickSetBool(&r.Local, m, "local")
	dbmap.QuickSetJson(&r.StateVars, m, "statevars")
	dbmap.QuickSetStr(&r.SSHConfigSrc, m, "sshconfigsrc")
	dbmap.QuickSetJson(&r.OpenAIOpts, m, "openaiopts")
	dbmap.QuickSetStr(&r.ShellPref, m, "shellpref")
	return true
}
