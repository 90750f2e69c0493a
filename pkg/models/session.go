// Package models holds the persisted entity types of the workbench core.
// Every entity that is stored through the relational layer declares an
// explicit ToMap/FromMap pair; compound fields travel as JSON columns.
package models

import (
	"github.com/thebtf/termwork/pkg/dbmap"
)

const (
	ShareModeLocal = "local"
	ShareModeWeb   = "web"
)

// Session is a workspace: an ordered collection of screens.
type Session struct {
	SessionId      string            `json:"sessionid"`
	Name           string            `json:"name"`
	SessionIdx     int64             `json:"sessionidx"`
	ActiveScreenId string            `json:"activescreenid"`
	ShareMode      string            `json:"sharemode"`
	NotifyNum      int64             `json:"notifynum"`
	Archived       bool              `json:"archived,omitempty"`
	ArchivedTs     int64             `json:"archivedts,omitempty"`
	Remotes        []*RemoteInstance `json:"remotes"`

	// only for updates
	Remove bool `json:"remove,omitempty"`
}

func (Session) GetType() string {
	return "session"
}

func (s *Session) ToMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["sessionid"] = s.SessionId
	rtn["name"] = s.Name
	rtn["sessionidx"] = s.SessionIdx
	rtn["activescreenid"] = s.ActiveScreenId
	rtn["sharemode"] = s.ShareMode
	rtn["notifynum"] = s.NotifyNum
	rtn["archived"] = s.Archived
	rtn["archivedts"] = s.ArchivedTs
	return rtn
}

func (s *Session) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&s.SessionId, m, "sessionid")
	dbmap.QuickSetStr(&s.Name, m, "name")
	dbmap.QuickSetInt64(&s.SessionIdx, m, "sessionidx")
	dbmap.QuickSetStr(&s.ActiveScreenId, m, "activescreenid")
	dbmap.QuickSetStr(&s.ShareMode, m, "sharemode")
	dbmap.QuickSetInt64(&s.NotifyNum, m, "notifynum")
	dbmap.QuickSetBool(&s.Archived, m, "archived")
	dbmap.QuickSetInt64(&s.ArchivedTs, m, "archivedts")
	return true
}

// MakeSessionUpdateForRemote builds a session update that carries a single
// remote-instance change.
func MakeSessionUpdateForRemote(sessionId string, ri *RemoteInstance) Session {
	return Session{
		SessionId: sessionId,
		Remotes:   []*RemoteInstance{ri},
	}
}

// SessionTombstone outlives a deleted session for history reconciliation.
type SessionTombstone struct {
	SessionId string `json:"sessionid"`
	Name      string `json:"name"`
	DeletedTs int64  `json:"deletedts"`
}

func (SessionTombstone) GetType() string {
	return "sessiontombstone"
}

func (st *SessionTombstone) ToMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["sessionid"] = st.SessionId
	rtn["name"] = st.Name
	rtn["deletedts"] = st.DeletedTs
	return rtn
}

func (st *SessionTombstone) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&st.SessionId, m, "sessionid")
	dbmap.QuickSetStr(&st.Name, m, "name")
	dbmap.QuickSetInt64(&st.DeletedTs, m, "deletedts")
	return true
}

// SessionDiskSize summarizes the on-disk footprint of a session directory.
type SessionDiskSize struct {
	NumFiles   int    `json:"numfiles"`
	TotalSize  int64  `json:"totalsize"`
	ErrorCount int    `json:"errorcount"`
	Location   string `json:"location"`
}

// SessionStats is returned by the session-stats operation.
type SessionStats struct {
	SessionId          string          `json:"sessionid"`
	NumScreens         int             `json:"numscreens"`
	NumArchivedScreens int             `json:"numarchivedscreens"`
	NumLines           int             `json:"numlines"`
	NumCmds            int             `json:"numcmds"`
	DiskStats          SessionDiskSize `json:"diskstats"`
}
