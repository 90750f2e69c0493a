// Package screenmem holds per-screen state that does not survive a restart:
// the status indicator level, the running-command counter, and the AI
// command-info chat scratch.
package screenmem

import (
	"fmt"
	"sync"

	"github.com/thebtf/termwork/pkg/models"
)

type screenMemState struct {
	NumRunningCommands int
	StatusIndicator    models.StatusIndicatorLevel
	CmdInputText       string
	CmdInputSeqNum     int
	AICmdInfoChat      []*models.OpenAICmdInfoChatMessage
}

var memLock = &sync.Mutex{}
var screenMemStore = make(map[string]*screenMemState)

func getScreenMemLocked(screenId string) *screenMemState {
	state, found := screenMemStore[screenId]
	if !found {
		state = &screenMemState{}
		screenMemStore[screenId] = state
	}
	return state
}

// DeleteScreenState drops all in-memory state of a screen.
func DeleteScreenState(screenId string) {
	memLock.Lock()
	defer memLock.Unlock()
	delete(screenMemStore, screenId)
}

// SetIndicatorLevel forces the indicator to the given level.
func SetIndicatorLevel(screenId string, level models.StatusIndicatorLevel) {
	memLock.Lock()
	defer memLock.Unlock()
	getScreenMemLocked(screenId).StatusIndicator = level
}

// CombineIndicatorLevels raises the indicator to the given level if it is
// higher than the current one, returning the resulting level. Levels are
// monotonic within a command.
func CombineIndicatorLevels(screenId string, level models.StatusIndicatorLevel) models.StatusIndicatorLevel {
	memLock.Lock()
	defer memLock.Unlock()
	state := getScreenMemLocked(screenId)
	if level > state.StatusIndicator {
		state.StatusIndicator = level
	}
	return state.StatusIndicator
}

// GetIndicatorLevel returns the current indicator level.
func GetIndicatorLevel(screenId string) models.StatusIndicatorLevel {
	memLock.Lock()
	defer memLock.Unlock()
	return getScreenMemLocked(screenId).StatusIndicator
}

// IncrementNumRunningCommands adjusts the running-command counter by delta,
// flooring at zero, and returns the new value.
func IncrementNumRunningCommands(screenId string, delta int) int {
	memLock.Lock()
	defer memLock.Unlock()
	state := getScreenMemLocked(screenId)
	state.NumRunningCommands += delta
	if state.NumRunningCommands < 0 {
		state.NumRunningCommands = 0
	}
	return state.NumRunningCommands
}

// GetNumRunningCommands returns the running-command counter.
func GetNumRunningCommands(screenId string) int {
	memLock.Lock()
	defer memLock.Unlock()
	return getScreenMemLocked(screenId).NumRunningCommands
}

// SetCmdInputText stores the command-input text of a screen, ignoring stale
// sequence numbers.
func SetCmdInputText(screenId string, text string, seqNum int) {
	memLock.Lock()
	defer memLock.Unlock()
	state := getScreenMemLocked(screenId)
	if seqNum < state.CmdInputSeqNum {
		return
	}
	state.CmdInputText = text
	state.CmdInputSeqNum = seqNum
}

// GetCmdInputText returns the stored command-input text.
func GetCmdInputText(screenId string) string {
	memLock.Lock()
	defer memLock.Unlock()
	return getScreenMemLocked(screenId).CmdInputText
}

// AddCmdInfoChatMessage appends a message to the AI chat scratch.
func AddCmdInfoChatMessage(screenId string, msg *models.OpenAICmdInfoChatMessage) {
	memLock.Lock()
	defer memLock.Unlock()
	state := getScreenMemLocked(screenId)
	state.AICmdInfoChat = append(state.AICmdInfoChat, msg)
}

// UpdateCmdInfoChatMessage replaces the message with the given id.
func UpdateCmdInfoChatMessage(screenId string, messageId int, msg *models.OpenAICmdInfoChatMessage) error {
	memLock.Lock()
	defer memLock.Unlock()
	state := getScreenMemLocked(screenId)
	for idx, cur := range state.AICmdInfoChat {
		if cur.MessageID == messageId {
			state.AICmdInfoChat[idx] = msg
			return nil
		}
	}
	return fmt.Errorf("message with id %d not found", messageId)
}

// GetCmdInfoChat returns the chat scratch in insertion order.
func GetCmdInfoChat(screenId string) []*models.OpenAICmdInfoChatMessage {
	memLock.Lock()
	defer memLock.Unlock()
	state := getScreenMemLocked(screenId)
	rtn := make([]*models.OpenAICmdInfoChatMessage, len(state.AICmdInfoChat))
	copy(rtn, state.AICmdInfoChat)
	return rtn
}

// ClearCmdInfoChat resets the chat scratch.
func ClearCmdInfoChat(screenId string) {
	memLock.Lock()
	defer memLock.Unlock()
	getScreenMemLocked(screenId).AICmdInfoChat = nil
}
