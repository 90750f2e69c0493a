package screenmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/termwork/pkg/models"
)

func TestIndicatorLevelsMonotonic(t *testing.T) {
	screenId := "screen-ind"
	defer DeleteScreenState(screenId)

	assert.Equal(t, models.StatusIndicatorLevel_None, GetIndicatorLevel(screenId))

	level := CombineIndicatorLevels(screenId, models.StatusIndicatorLevel_Output)
	assert.Equal(t, models.StatusIndicatorLevel_Output, level)

	level = CombineIndicatorLevels(screenId, models.StatusIndicatorLevel_Error)
	assert.Equal(t, models.StatusIndicatorLevel_Error, level)

	// lower levels do not downgrade
	level = CombineIndicatorLevels(screenId, models.StatusIndicatorLevel_Success)
	assert.Equal(t, models.StatusIndicatorLevel_Error, level)

	SetIndicatorLevel(screenId, models.StatusIndicatorLevel_None)
	assert.Equal(t, models.StatusIndicatorLevel_None, GetIndicatorLevel(screenId))
}

func TestRunningCommandCounter(t *testing.T) {
	screenId := "screen-counter"
	defer DeleteScreenState(screenId)

	assert.Equal(t, 1, IncrementNumRunningCommands(screenId, 1))
	assert.Equal(t, 3, IncrementNumRunningCommands(screenId, 2))
	assert.Equal(t, 2, IncrementNumRunningCommands(screenId, -1))
	// floors at zero
	assert.Equal(t, 0, IncrementNumRunningCommands(screenId, -5))
}

func TestCmdInputTextSeqNum(t *testing.T) {
	screenId := "screen-input"
	defer DeleteScreenState(screenId)

	SetCmdInputText(screenId, "ls", 1)
	SetCmdInputText(screenId, "stale", 0)
	assert.Equal(t, "ls", GetCmdInputText(screenId))
	SetCmdInputText(screenId, "newer", 2)
	assert.Equal(t, "newer", GetCmdInputText(screenId))
}

func TestCmdInfoChat(t *testing.T) {
	screenId := "screen-chat"
	defer DeleteScreenState(screenId)

	AddCmdInfoChatMessage(screenId, &models.OpenAICmdInfoChatMessage{MessageID: 1, UserQuery: "how"})
	AddCmdInfoChatMessage(screenId, &models.OpenAICmdInfoChatMessage{MessageID: 2, IsAssistantResponse: true, AssistantResponse: "like this"})

	chat := GetCmdInfoChat(screenId)
	require.Len(t, chat, 2)
	assert.Equal(t, "how", chat[0].UserQuery)

	require.NoError(t, UpdateCmdInfoChatMessage(screenId, 2, &models.OpenAICmdInfoChatMessage{MessageID: 2, AssistantResponse: "edited"}))
	chat = GetCmdInfoChat(screenId)
	assert.Equal(t, "edited", chat[1].AssistantResponse)

	err := UpdateCmdInfoChatMessage(screenId, 99, &models.OpenAICmdInfoChatMessage{MessageID: 99})
	require.Error(t, err)

	ClearCmdInfoChat(screenId)
	assert.Empty(t, GetCmdInfoChat(screenId))
}
