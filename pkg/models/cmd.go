package models

import (
	"github.com/thebtf/termwork/pkg/dbmap"
)

const (
	CmdStatusRunning  = "running"
	CmdStatusDetached = "detached"
	CmdStatusError    = "error"
	CmdStatusDone     = "done"
	CmdStatusHangup   = "hangup"
	CmdStatusUnknown  = "unknown" // history items where no status was recorded
)

const CmdRendererOpenAI = "openai"

// TermOpts is the terminal geometry a cmd was started with.
type TermOpts struct {
	Rows       int64 `json:"rows"`
	Cols       int64 `json:"cols"`
	FlexRows   bool  `json:"flexrows,omitempty"`
	MaxPtySize int64 `json:"maxptysize,omitempty"`
}

// ShellStatePtr addresses a resolvable shell state: a content-addressed base
// plus an ordered diff chain.
type ShellStatePtr struct {
	BaseHash    string
	DiffHashArr []string
}

func (ssptr *ShellStatePtr) IsEmpty() bool {
	return ssptr == nil || ssptr.BaseHash == ""
}

// Cmd is the command payload paired 1:1 with a cmd-type line.
type Cmd struct {
	ScreenId     string            `json:"screenid"`
	LineId       string            `json:"lineid"`
	Remote       RemotePtr         `json:"remote"`
	CmdStr       string            `json:"cmdstr"`
	RawCmdStr    string            `json:"rawcmdstr"`
	FeState      map[string]string `json:"festate"`
	StatePtr     ShellStatePtr     `json:"state"`
	TermOpts     TermOpts          `json:"termopts"`
	OrigTermOpts TermOpts          `json:"origtermopts"`
	Status       string            `json:"status"`
	CmdPid       int               `json:"cmdpid"`
	RemotePid    int               `json:"remotepid"`
	RestartTs    int64             `json:"restartts,omitempty"`
	DoneTs       int64             `json:"donets"`
	ExitCode     int               `json:"exitcode"`
	DurationMs   int               `json:"durationms"`
	RunOut       []string          `json:"runout,omitempty"`
	RtnState     bool              `json:"rtnstate,omitempty"`
	RtnStatePtr  ShellStatePtr     `json:"rtnstateptr,omitempty"`
	Remove       bool              `json:"remove,omitempty"`    // not persisted
	Restarted    bool              `json:"restarted,omitempty"` // not persisted
}

func (Cmd) GetType() string {
	return "cmd"
}

func (cmd *Cmd) IsRunning() bool {
	return cmd.Status == CmdStatusRunning || cmd.Status == CmdStatusDetached
}

func (cmd *Cmd) ToMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["screenid"] = cmd.ScreenId
	rtn["lineid"] = cmd.LineId
	rtn["remoteownerid"] = cmd.Remote.OwnerId
	rtn["remoteid"] = cmd.Remote.RemoteId
	rtn["remotename"] = cmd.Remote.Name
	rtn["cmdstr"] = cmd.CmdStr
	rtn["rawcmdstr"] = cmd.RawCmdStr
	rtn["festate"] = dbmap.QuickJson(cmd.FeState)
	rtn["statebasehash"] = cmd.StatePtr.BaseHash
	rtn["statediffhasharr"] = dbmap.QuickJsonArr(cmd.StatePtr.DiffHashArr)
	rtn["termopts"] = dbmap.QuickJson(cmd.TermOpts)
	rtn["origtermopts"] = dbmap.QuickJson(cmd.OrigTermOpts)
	rtn["status"] = cmd.Status
	rtn["cmdpid"] = cmd.CmdPid
	rtn["remotepid"] = cmd.RemotePid
	rtn["restartts"] = cmd.RestartTs
	rtn["donets"] = cmd.DoneTs
	rtn["exitcode"] = cmd.ExitCode
	rtn["durationms"] = cmd.DurationMs
	rtn["runout"] = dbmap.QuickJsonArr(cmd.RunOut)
	rtn["rtnstate"] = cmd.RtnState
	rtn["rtnbasehash"] = cmd.RtnStatePtr.BaseHash
	rtn["rtndiffhasharr"] = dbmap.QuickJsonArr(cmd.RtnStatePtr.DiffHashArr)
	return rtn
}

func (cmd *Cmd) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&cmd.ScreenId, m, "screenid")
	dbmap.QuickSetStr(&cmd.LineId, m, "lineid")
	dbmap.QuickSetStr(&cmd.Remote.OwnerId, m, "remoteownerid")
	dbmap.QuickSetStr(&cmd.Remote.RemoteId, m, "remoteid")
	dbmap.QuickSetStr(&cmd.Remote.Name, m, "remotename")
	dbmap.QuickSetStr(&cmd.CmdStr, m, "cmdstr")
	dbmap.QuickSetStr(&cmd.RawCmdStr, m, "rawcmdstr")
	dbmap.QuickSetJson(&cmd.FeState, m, "festate")
	dbmap.QuickSetStr(&cmd.StatePtr.BaseHash, m, "statebasehash")
	dbmap.QuickSetJsonArr(&cmd.StatePtr.DiffHashArr, m, "statediffhasharr")
	dbmap.QuickSetJson(&cmd.TermOpts, m, "termopts")
	dbmap.QuickSetJson(&cmd.OrigTermOpts, m, "origtermopts")
	dbmap.QuickSetStr(&cmd.Status, m, "status")
	dbmap.QuickSetInt(&cmd.CmdPid, m, "cmdpid")
	dbmap.QuickSetInt(&cmd.RemotePid, m, "remotepid")
	dbmap.QuickSetInt64(&cmd.RestartTs, m, "restartts")
	dbmap.QuickSetInt64(&cmd.DoneTs, m, "donets")
	dbmap.QuickSetInt(&cmd.ExitCode, m, "exitcode")
	dbmap.QuickSetInt(&cmd.DurationMs, m, "durationms")
	dbmap.QuickSetJsonArr(&cmd.RunOut, m, "runout")
	dbmap.QuickSetBool(&cmd.RtnState, m, "rtnstate")
	dbmap.QuickSetStr(&cmd.RtnStatePtr.BaseHash, m, "rtnbasehash")
	dbmap.QuickSetJsonArr(&cmd.RtnStatePtr.DiffHashArr, m, "rtndiffhasharr")
	return true
}

// CmdPtr addresses a cmd row.
type CmdPtr struct {
	ScreenId string
	LineId   string
}

// CmdDoneInfo is reported when a running cmd finishes.
type CmdDoneInfo struct {
	Ts         int64 `json:"ts"`
	ExitCode   int   `json:"exitcode"`
	DurationMs int   `json:"durationms"`
}
