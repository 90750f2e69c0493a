package models

import (
	"github.com/thebtf/termwork/pkg/dbmap"
)

const (
	ScreenFocusInput = "input"
	ScreenFocusCmd   = "cmd"
)

// ScreenOpts are the cosmetic tab options.
type ScreenOpts struct {
	TabColor string `json:"tabcolor,omitempty"`
	TabIcon  string `json:"tabicon,omitempty"`
	PTerm    string `json:"pterm,omitempty"`
}

// ScreenSidebarOpts holds sidebar state for a screen.
type ScreenSidebarOpts struct {
	Open          bool   `json:"open,omitempty"`
	Width         string `json:"width,omitempty"`
	SidebarLineId string `json:"sidebarlineid,omitempty"`
}

// ScreenViewOpts holds per-screen view state that persists across restarts.
type ScreenViewOpts struct {
	Sidebar *ScreenSidebarOpts `json:"sidebar,omitempty"`
}

// ScreenWebShareOpts is set while a screen is shared to the web.
type ScreenWebShareOpts struct {
	ShareName string `json:"sharename"`
	ViewKey   string `json:"viewkey"`
}

// ScreenCreateOpts optionally seeds a new screen from a base screen.
type ScreenCreateOpts struct {
	BaseScreenId string
	CopyRemote   bool
	CopyCwd      bool
	CopyEnv      bool
}

func (sco ScreenCreateOpts) HasCopy() bool {
	return sco.CopyRemote || sco.CopyCwd || sco.CopyEnv
}

// ScreenAnchor is the scroll anchor (line + pixel offset within it).
type ScreenAnchor struct {
	AnchorLine   int `json:"anchorline,omitempty"`
	AnchorOffset int `json:"anchoroffset,omitempty"`
}

// Screen is a tab within a session.
type Screen struct {
	SessionId      string              `json:"sessionid"`
	ScreenId       string              `json:"screenid"`
	Name           string              `json:"name"`
	ScreenIdx      int64               `json:"screenidx"`
	ScreenOpts     ScreenOpts          `json:"screenopts"`
	ScreenViewOpts ScreenViewOpts      `json:"screenviewopts"`
	OwnerId        string              `json:"ownerid"`
	ShareMode      string              `json:"sharemode"`
	WebShareOpts   *ScreenWebShareOpts `json:"webshareopts,omitempty"`
	CurRemote      RemotePtr           `json:"curremote"`
	NextLineNum    int64               `json:"nextlinenum"`
	SelectedLine   int64               `json:"selectedline"`
	Anchor         ScreenAnchor        `json:"anchor"`
	FocusType      string              `json:"focustype"`
	Archived       bool                `json:"archived,omitempty"`
	ArchivedTs     int64               `json:"archivedts,omitempty"`

	// only for updates
	Remove bool `json:"remove,omitempty"`
}

func (Screen) GetType() string {
	return "screen"
}

func (s *Screen) ToMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["sessionid"] = s.SessionId
	rtn["screenid"] = s.ScreenId
	rtn["name"] = s.Name
	rtn["screenidx"] = s.ScreenIdx
	rtn["screenopts"] = dbmap.QuickJson(s.ScreenOpts)
	rtn["screenviewopts"] = dbmap.QuickJson(s.ScreenViewOpts)
	rtn["ownerid"] = s.OwnerId
	rtn["sharemode"] = s.ShareMode
	rtn["webshareopts"] = dbmap.QuickNullableJson(s.WebShareOpts)
	rtn["curremoteownerid"] = s.CurRemote.OwnerId
	rtn["curremoteid"] = s.CurRemote.RemoteId
	rtn["curremotename"] = s.CurRemote.Name
	rtn["nextlinenum"] = s.NextLineNum
	rtn["selectedline"] = s.SelectedLine
	rtn["anchor"] = dbmap.QuickJson(s.Anchor)
	rtn["focustype"] = s.FocusType
	rtn["archived"] = s.Archived
	rtn["archivedts"] = s.ArchivedTs
	return rtn
}

func (s *Screen) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&s.SessionId, m, "sessionid")
	dbmap.QuickSetStr(&s.ScreenId, m, "screenid")
	dbmap.QuickSetStr(&s.Name, m, "name")
	dbmap.QuickSetInt64(&s.ScreenIdx, m, "screenidx")
	dbmap.QuickSetJson(&s.ScreenOpts, m, "screenopts")
	dbmap.QuickSetJson(&s.ScreenViewOpts, m, "screenviewopts")
	dbmap.QuickSetStr(&s.OwnerId, m, "ownerid")
	dbmap.QuickSetStr(&s.ShareMode, m, "sharemode")
	dbmap.QuickSetNullableJson(&s.WebShareOpts, m, "webshareopts")
	dbmap.QuickSetStr(&s.CurRemote.OwnerId, m, "curremoteownerid")
	dbmap.QuickSetStr(&s.CurRemote.RemoteId, m, "curremoteid")
	dbmap.QuickSetStr(&s.CurRemote.Name, m, "curremotename")
	dbmap.QuickSetInt64(&s.NextLineNum, m, "nextlinenum")
	dbmap.QuickSetInt64(&s.SelectedLine, m, "selectedline")
	dbmap.QuickSetJson(&s.Anchor, m, "anchor")
	dbmap.QuickSetStr(&s.FocusType, m, "focustype")
	dbmap.QuickSetBool(&s.Archived, m, "archived")
	dbmap.QuickSetInt64(&s.ArchivedTs, m, "archivedts")
	return true
}

// ScreenTombstone outlives a deleted screen.
type ScreenTombstone struct {
	ScreenId   string     `json:"screenid"`
	SessionId  string     `json:"sessionid"`
	Name       string     `json:"name"`
	DeletedTs  int64      `json:"deletedts"`
	ScreenOpts ScreenOpts `json:"screenopts"`
}

func (ScreenTombstone) GetType() string {
	return "screentombstone"
}

func (st *ScreenTombstone) ToMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["screenid"] = st.ScreenId
	rtn["sessionid"] = st.SessionId
	rtn["name"] = st.Name
	rtn["deletedts"] = st.DeletedTs
	rtn["screenopts"] = dbmap.QuickJson(st.ScreenOpts)
	return rtn
}

func (st *ScreenTombstone) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&st.ScreenId, m, "screenid")
	dbmap.QuickSetStr(&st.SessionId, m, "sessionid")
	dbmap.QuickSetStr(&st.Name, m, "name")
	dbmap.QuickSetInt64(&st.DeletedTs, m, "deletedts")
	dbmap.QuickSetJson(&st.ScreenOpts, m, "screenopts")
	return true
}

// ScreenLines carries all lines and cmds of one screen (full-state updates).
type ScreenLines struct {
	ScreenId string  `json:"screenid"`
	Lines    []*Line `json:"lines"`
	Cmds     []*Cmd  `json:"cmds"`
}

func (ScreenLines) GetType() string {
	return "screenlines"
}

// ScreenUpdate is a row in the persistent screen-update log.
type ScreenUpdate struct {
	UpdateId   int64  `json:"updateid"`
	ScreenId   string `json:"screenid"`
	LineId     string `json:"lineid"`
	UpdateType string `json:"updatetype"`
	UpdateTs   int64  `json:"updatets"`
}

func (su *ScreenUpdate) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetInt64(&su.UpdateId, m, "updateid")
	dbmap.QuickSetStr(&su.ScreenId, m, "screenid")
	dbmap.QuickSetStr(&su.LineId, m, "lineid")
	dbmap.QuickSetStr(&su.UpdateType, m, "updatetype")
	dbmap.QuickSetInt64(&su.UpdateTs, m, "updatets")
	return true
}
