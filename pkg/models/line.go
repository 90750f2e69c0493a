package models

import (
	"github.com/thebtf/termwork/pkg/dbmap"
)

// MaxLineStateSize bounds the linestate JSON column (4k for now, can raise
// if needed).
const MaxLineStateSize = 4 * 1024

// LineNoHeight marks a line whose content height has not been measured yet.
const LineNoHeight = -1

const (
	LineTypeCmd    = "cmd"
	LineTypeText   = "text"
	LineTypeOpenAI = "openai"
)

const (
	LineState_Source   = "prompt:source"
	LineState_File     = "prompt:file"
	LineState_Template = "template"
	LineState_Mode     = "mode"
	LineState_Lang     = "lang"
	LineState_Minimap  = "minimap"
)

// Line is a single entry in a screen. Line numbers are assigned by the
// mutator from screen.nextlinenum and are never reused.
type Line struct {
	ScreenId      string                 `json:"screenid"`
	UserId        string                 `json:"userid"`
	LineId        string                 `json:"lineid"`
	Ts            int64                  `json:"ts"`
	LineNum       int64                  `json:"linenum"`
	LineNumTemp   bool                   `json:"linenumtemp,omitempty"`
	LineLocal     bool                   `json:"linelocal"`
	LineType      string                 `json:"linetype"`
	LineState     map[string]interface{} `json:"linestate"`
	Renderer      string                 `json:"renderer,omitempty"`
	Text          string                 `json:"text,omitempty"`
	Ephemeral     bool                   `json:"ephemeral,omitempty"`
	ContentHeight int64                  `json:"contentheight,omitempty"`
	Star          bool                   `json:"star,omitempty"`
	Archived      bool                   `json:"archived,omitempty"`
	Remove        bool                   `json:"remove,omitempty"`
}

func (Line) GetType() string {
	return "line"
}

func (l *Line) ToMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["screenid"] = l.ScreenId
	rtn["userid"] = l.UserId
	rtn["lineid"] = l.LineId
	rtn["ts"] = l.Ts
	rtn["linenum"] = l.LineNum
	rtn["linenumtemp"] = l.LineNumTemp
	rtn["linelocal"] = l.LineLocal
	rtn["linetype"] = l.LineType
	rtn["linestate"] = dbmap.QuickJson(l.LineState)
	rtn["text"] = l.Text
	rtn["renderer"] = l.Renderer
	rtn["ephemeral"] = l.Ephemeral
	rtn["contentheight"] = l.ContentHeight
	rtn["star"] = l.Star
	rtn["archived"] = l.Archived
	return rtn
}

func (l *Line) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&l.ScreenId, m, "screenid")
	dbmap.QuickSetStr(&l.UserId, m, "userid")
	dbmap.QuickSetStr(&l.LineId, m, "lineid")
	dbmap.QuickSetInt64(&l.Ts, m, "ts")
	dbmap.QuickSetInt64(&l.LineNum, m, "linenum")
	dbmap.QuickSetBool(&l.LineNumTemp, m, "linenumtemp")
	dbmap.QuickSetBool(&l.LineLocal, m, "linelocal")
	dbmap.QuickSetStr(&l.LineType, m, "linetype")
	dbmap.QuickSetJson(&l.LineState, m, "linestate")
	dbmap.QuickSetStr(&l.Text, m, "text")
	dbmap.QuickSetStr(&l.Renderer, m, "renderer")
	dbmap.QuickSetBool(&l.Ephemeral, m, "ephemeral")
	dbmap.QuickSetInt64(&l.ContentHeight, m, "contentheight")
	dbmap.QuickSetBool(&l.Star, m, "star")
	dbmap.QuickSetBool(&l.Archived, m, "archived")
	return true
}

// ResolveItem is a (name, num, id) triple used to resolve line arguments.
type ResolveItem struct {
	Name   string
	Num    int64
	Id     string
	Hidden bool
}
