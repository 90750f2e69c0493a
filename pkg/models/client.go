package models

import (
	"crypto/ecdsa"

	"github.com/thebtf/termwork/pkg/dbmap"
)

const (
	CmdStoreTypeSession = "session"
	CmdStoreTypeScreen  = "screen"
)

// APITokenSentinel replaces the real API token in cleaned client data.
const APITokenSentinel = "--apitoken--"

// ClientWinSize is the persisted window geometry.
type ClientWinSize struct {
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	Top        int  `json:"top"`
	Left       int  `json:"left"`
	FullScreen bool `json:"fullscreen,omitempty"`
}

// SidebarValue holds one sidebar's collapse state and width.
type SidebarValue struct {
	Collapsed bool `json:"collapsed"`
	Width     int  `json:"width"`
}

// ClientOpts are persisted client preferences.
type ClientOpts struct {
	NoTelemetry    bool            `json:"notelemetry,omitempty"`
	NoReleaseCheck bool            `json:"noreleasecheck,omitempty"`
	AcceptedTos    int64           `json:"acceptedtos,omitempty"`
	ConfirmFlags   map[string]bool `json:"confirmflags,omitempty"`
	MainSidebar    *SidebarValue   `json:"mainsidebar,omitempty"`
	RightSidebar   *SidebarValue   `json:"rightsidebar,omitempty"`
}

// FeOpts are front-end rendering options.
type FeOpts struct {
	TermFontSize   int    `json:"termfontsize,omitempty"`
	TermFontFamily string `json:"termfontfamily,omitempty"`
	Theme          string `json:"theme,omitempty"`
}

// ReleaseInfo tracks the latest known release version.
type ReleaseInfo struct {
	LatestVersion string `json:"latestversion,omitempty"`
}

// ClientData is the singleton client row: identity, keypair, and options.
type ClientData struct {
	ClientId            string        `json:"clientid"`
	UserId              string        `json:"userid"`
	UserPrivateKeyBytes []byte        `json:"-"`
	UserPublicKeyBytes  []byte        `json:"-"`
	UserPublicKeySSH    string        `json:"-"`
	UserPrivateKey      *ecdsa.PrivateKey `json:"-"`
	UserPublicKey       *ecdsa.PublicKey  `json:"-"`
	ActiveSessionId     string        `json:"activesessionid"`
	WinSize             ClientWinSize `json:"winsize"`
	ClientOpts          ClientOpts    `json:"clientopts"`
	FeOpts              FeOpts        `json:"feopts"`
	CmdStoreType        string        `json:"cmdstoretype"`
	DBVersion           int           `json:"dbversion"`
	OpenAIOpts          *OpenAIOpts   `json:"openaiopts,omitempty"`
	ReleaseInfo         ReleaseInfo   `json:"releaseinfo"`
}

func (ClientData) GetType() string {
	return "clientdata"
}

// Clean strips secrets before the client row is sent to a consumer.
func (cdata *ClientData) Clean() *ClientData {
	if cdata == nil {
		return nil
	}
	rtn := *cdata
	if rtn.OpenAIOpts != nil {
		rtn.OpenAIOpts = &OpenAIOpts{
			Model:      cdata.OpenAIOpts.Model,
			MaxTokens:  cdata.OpenAIOpts.MaxTokens,
			MaxChoices: cdata.OpenAIOpts.MaxChoices,
		}
		if cdata.OpenAIOpts.APIToken != "" {
			rtn.OpenAIOpts.APIToken = APITokenSentinel
		}
	}
	return &rtn
}

func (c *ClientData) ToMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["clientid"] = c.ClientId
	rtn["userid"] = c.UserId
	rtn["userprivatekeybytes"] = c.UserPrivateKeyBytes
	rtn["userpublickeybytes"] = c.UserPublicKeyBytes
	rtn["userpublickeyssh"] = c.UserPublicKeySSH
	rtn["activesessionid"] = c.ActiveSessionId
	rtn["winsize"] = dbmap.QuickJson(c.WinSize)
	rtn["clientopts"] = dbmap.QuickJson(c.ClientOpts)
	rtn["feopts"] = dbmap.QuickJson(c.FeOpts)
	rtn["cmdstoretype"] = c.CmdStoreType
	rtn["openaiopts"] = dbmap.QuickNullableJson(c.OpenAIOpts)
	rtn["releaseinfo"] = dbmap.QuickJson(c.ReleaseInfo)
	return rtn
}

func (c *ClientData) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&c.ClientId, m, "clientid")
	dbmap.QuickSetStr(&c.UserId, m, "userid")
	dbmap.QuickSetBytes(&c.UserPrivateKeyBytes, m, "userprivatekeybytes")
	dbmap.QuickSetBytes(&c.UserPublicKeyBytes, m, "userpublickeybytes")
	dbmap.QuickSetStr(&c.UserPublicKeySSH, m, "userpublickeyssh")
	dbmap.QuickSetStr(&c.ActiveSessionId, m, "activesessionid")
	dbmap.QuickSetJson(&c.WinSize, m, "winsize")
	dbmap.QuickSetJson(&c.ClientOpts, m, "clientopts")
	dbmap.QuickSetJson(&c.FeOpts, m, "feopts")
	dbmap.QuickSetStr(&c.CmdStoreType, m, "cmdstoretype")
	dbmap.QuickSetNullableJson(&c.OpenAIOpts, m, "openaiopts")
	dbmap.QuickSetJson(&c.ReleaseInfo, m, "releaseinfo")
	return true
}
