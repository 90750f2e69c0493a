package models

// Closed set of persistent screen-update types. line:new implicitly inserts
// a paired pty:pos row.
const (
	UpdateType_ScreenNew          = "screen:new"
	UpdateType_ScreenDel          = "screen:del"
	UpdateType_ScreenSelectedLine = "screen:selectedline"
	UpdateType_ScreenName         = "screen:sharename"
	UpdateType_LineNew            = "line:new"
	UpdateType_LineDel            = "line:del"
	UpdateType_LineRenderer       = "line:renderer"
	UpdateType_LineContentHeight  = "line:contentheight"
	UpdateType_LineState          = "line:state"
	UpdateType_CmdStatus          = "cmd:status"
	UpdateType_CmdTermOpts        = "cmd:termopts"
	UpdateType_CmdExitCode        = "cmd:exitcode"
	UpdateType_CmdDurationMs      = "cmd:durationms"
	UpdateType_CmdRtnState        = "cmd:rtnstate"
	UpdateType_PtyPos             = "pty:pos"
)

// StatusIndicatorLevel is the in-memory per-screen attention level. Levels
// only escalate while a command runs; advancing past the line resets them.
type StatusIndicatorLevel int

const (
	StatusIndicatorLevel_None StatusIndicatorLevel = iota
	StatusIndicatorLevel_Output
	StatusIndicatorLevel_Success
	StatusIndicatorLevel_Error
)

// PtyDataUpdate carries an incremental chunk of terminal output.
type PtyDataUpdate struct {
	ScreenId   string `json:"screenid,omitempty"`
	LineId     string `json:"lineid,omitempty"`
	PtyPos     int64  `json:"ptypos"`
	PtyData64  string `json:"ptydata64"`
	PtyDataLen int64  `json:"ptydatalen"`
}

func (PtyDataUpdate) GetType() string {
	return "pty"
}

// ActiveSessionIdUpdate announces a change of the active session.
type ActiveSessionIdUpdate string

func (ActiveSessionIdUpdate) GetType() string {
	return "activesessionid"
}

// CmdLineUpdate carries the restored command-input text of a screen.
type CmdLineUpdate struct {
	CmdLine   string `json:"cmdline"`
	CursorPos int64  `json:"cursorpos"`
}

func (CmdLineUpdate) GetType() string {
	return "cmdline"
}

// ScreenStatusIndicator mirrors the in-memory indicator level of a screen.
type ScreenStatusIndicator struct {
	ScreenId string               `json:"screenid"`
	Status   StatusIndicatorLevel `json:"status"`
}

func (ScreenStatusIndicator) GetType() string {
	return "screenstatusindicator"
}

// ScreenNumRunningCommands mirrors the running-command counter of a screen.
type ScreenNumRunningCommands struct {
	ScreenId string `json:"screenid"`
	Num      int    `json:"num"`
}

func (ScreenNumRunningCommands) GetType() string {
	return "screennumrunningcommands"
}

// OpenAICmdInfoChatMessage is one entry of the per-screen AI chat scratch.
type OpenAICmdInfoChatMessage struct {
	MessageID           int    `json:"messageid"`
	IsAssistantResponse bool   `json:"isassistantresponse,omitempty"`
	AssistantResponse   string `json:"assistantresponse,omitempty"`
	UserQuery           string `json:"userquery,omitempty"`
	UserEngineeredQuery string `json:"userengineeredquery,omitempty"`
}

// OpenAICmdInfoChatUpdate carries the full chat scratch of a screen.
type OpenAICmdInfoChatUpdate []*OpenAICmdInfoChatMessage

func (OpenAICmdInfoChatUpdate) GetType() string {
	return "openaicmdinfochat"
}

// ConnectUpdate is the full-state resync packet a consumer applies after
// (re)connecting.
type ConnectUpdate struct {
	Sessions                 []*Session                  `json:"sessions,omitempty"`
	Screens                  []*Screen                   `json:"screens,omitempty"`
	Remotes                  []*Remote                   `json:"remotes,omitempty"`
	ScreenStatusIndicators   []*ScreenStatusIndicator    `json:"screenstatusindicators,omitempty"`
	ScreenNumRunningCommands []*ScreenNumRunningCommands `json:"screennumrunningcommands,omitempty"`
	ActiveSessionId          string                      `json:"activesessionid,omitempty"`
}

func (ConnectUpdate) GetType() string {
	return "connect"
}
