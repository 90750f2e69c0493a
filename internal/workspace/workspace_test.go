package workspace

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/termwork/internal/bus"
	"github.com/thebtf/termwork/internal/config"
	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/internal/shellstate"
	"github.com/thebtf/termwork/pkg/models"
)

func setupWorkspaceTest(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.HomeVarName, dir)
	require.NoError(t, config.EnsureDirs())
	require.NoError(t, db.Open(filepath.Join(dir, db.DBFileName)))
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(db.Close)
}

func bootstrapStore(t *testing.T) *models.ClientData {
	t.Helper()
	ctx := context.Background()
	cdata, err := EnsureClientData(ctx)
	require.NoError(t, err)
	require.NoError(t, EnsureLocalRemote(ctx))
	require.NoError(t, EnsureOneSession(ctx))
	return cdata
}

// activeIds returns the active (sessionid, screenid) pair.
func activeIds(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()
	sessionId, err := GetActiveSessionId(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sessionId)
	sess, err := GetBareSessionById(ctx, sessionId)
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sessionId, sess.ActiveScreenId
}

func addTestCmdLine(t *testing.T, screenId string, status string) (*models.Line, *models.Cmd) {
	t.Helper()
	cmd := &models.Cmd{
		ScreenId: screenId,
		LineId:   GenUUID(),
		CmdStr:   "ls -l",
		Status:   status,
		TermOpts: models.TermOpts{Rows: 24, Cols: 80},
	}
	line, err := AddCmdLine(context.Background(), screenId, "test-user", cmd, "", nil)
	require.NoError(t, err)
	return line, cmd
}

func TestFreshStoreBootstrap(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	cdata := bootstrapStore(t)

	assert.NotEmpty(t, cdata.ClientId)
	assert.NotEmpty(t, cdata.UserId)
	assert.NotEmpty(t, cdata.UserPrivateKeyBytes)
	assert.NotEmpty(t, cdata.UserPublicKeyBytes)
	assert.NotNil(t, cdata.UserPrivateKey)
	assert.Contains(t, cdata.UserPublicKeySSH, "ecdsa-", "ssh form of the public key")

	// second call returns the same identity
	cdata2, err := EnsureClientData(ctx)
	require.NoError(t, err)
	assert.Equal(t, cdata.ClientId, cdata2.ClientId)

	remotes, err := GetAllRemotes(ctx)
	require.NoError(t, err)
	require.Len(t, remotes, 2)
	assert.Equal(t, "local", remotes[0].RemoteAlias)
	assert.True(t, remotes[0].Local)
	assert.Equal(t, "sudo", remotes[1].RemoteAlias)
	assert.True(t, remotes[1].Local)

	sessionId, activeScreenId := activeIds(t)
	sess, err := GetBareSessionById(ctx, sessionId)
	require.NoError(t, err)
	assert.Equal(t, "default", sess.Name)
	assert.EqualValues(t, 1, sess.SessionIdx)
	require.NotEmpty(t, activeScreenId)

	screen, err := GetScreenById(ctx, activeScreenId)
	require.NoError(t, err)
	assert.Equal(t, "s1", screen.Name)
	assert.EqualValues(t, 1, screen.ScreenIdx)
	assert.EqualValues(t, 1, screen.NextLineNum)
	assert.Equal(t, models.ScreenFocusInput, screen.FocusType)

	// bootstrap is stable
	require.NoError(t, EnsureOneSession(ctx))
	count, err := GetSessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInsertScreenNamingAndReorder(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	sessionId, s1Id := activeIds(t)

	update, err := InsertScreen(ctx, sessionId, "", models.ScreenCreateOpts{}, false)
	require.NoError(t, err)
	s2 := screenFromPacket(t, update)
	assert.Equal(t, "s2", s2.Name)
	assert.EqualValues(t, 2, s2.ScreenIdx)

	update, err = InsertScreen(ctx, sessionId, "", models.ScreenCreateOpts{}, false)
	require.NoError(t, err)
	s3 := screenFromPacket(t, update)
	assert.Equal(t, "s3", s3.Name)
	assert.EqualValues(t, 3, s3.ScreenIdx)

	_, err = SetScreenIdx(ctx, sessionId, s3.ScreenId, 1)
	require.NoError(t, err)

	screens, err := GetSessionScreens(ctx, sessionId)
	require.NoError(t, err)
	require.Len(t, screens, 3)
	assert.Equal(t, []string{s3.ScreenId, s1Id, s2.ScreenId}, []string{screens[0].ScreenId, screens[1].ScreenId, screens[2].ScreenId})
	assert.EqualValues(t, 1, screens[0].ScreenIdx)
	assert.EqualValues(t, 2, screens[1].ScreenIdx)
	assert.EqualValues(t, 3, screens[2].ScreenIdx)
}

// screenFromPacket extracts the single screen record of a packet.
func screenFromPacket(t *testing.T, update *bus.ModelUpdatePacket) *models.Screen {
	t.Helper()
	screens := bus.GetUpdateItems[models.Screen](update)
	require.NotEmpty(t, screens)
	return screens[0]
}

func makeTestPacket() *bus.ModelUpdatePacket {
	return bus.MakeUpdatePacket()
}

// drainScreenUpdates clears the persistent update log.
func drainScreenUpdates(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	updates, err := GetScreenUpdates(ctx, 10000)
	require.NoError(t, err)
	var ids []int64
	for _, u := range updates {
		ids = append(ids, u.UpdateId)
	}
	require.NoError(t, RemoveScreenUpdates(ctx, ids))
}

func testShellState(cwd string) *shellstate.ShellState {
	return &shellstate.ShellState{
		Version:   "bash v5.2.15",
		Cwd:       cwd,
		ShellVars: shellstate.EncodeDeclMap(map[string]string{"PATH": "/usr/bin"}),
	}
}

func TestLineNumbering(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	_, screenId := activeIds(t)

	var lines []*models.Line
	for i := 0; i < 3; i++ {
		line, err := AddCommentLine(ctx, screenId, "test-user", "note")
		require.NoError(t, err)
		lines = append(lines, line)
	}
	assert.EqualValues(t, 1, lines[0].LineNum)
	assert.EqualValues(t, 2, lines[1].LineNum)
	assert.EqualValues(t, 3, lines[2].LineNum)

	require.NoError(t, DeleteLinesByIds(ctx, screenId, []string{lines[1].LineId}))

	screenLines, err := GetScreenLinesById(ctx, screenId)
	require.NoError(t, err)
	require.Len(t, screenLines.Lines, 2)
	assert.EqualValues(t, 1, screenLines.Lines[0].LineNum)
	assert.EqualValues(t, 3, screenLines.Lines[1].LineNum)

	// numbers are never reused
	line4, err := AddCommentLine(ctx, screenId, "test-user", "next")
	require.NoError(t, err)
	assert.EqualValues(t, 4, line4.LineNum)
}

func TestDeleteLinesRefusesRunningCmd(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	_, screenId := activeIds(t)

	line, _ := addTestCmdLine(t, screenId, models.CmdStatusRunning)
	err := DeleteLinesByIds(ctx, screenId, []string{line.LineId})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cmd is running")

	donePk := &models.CmdDoneInfo{Ts: 1000, ExitCode: 0, DurationMs: 5}
	update := makeTestPacket()
	require.NoError(t, UpdateCmdDoneInfo(ctx, update, screenId, line.LineId, donePk, models.CmdStatusDone))
	require.NoError(t, DeleteLinesByIds(ctx, screenId, []string{line.LineId}))
}

func TestUpdateCmdDoneInfo(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	_, screenId := activeIds(t)

	line, _ := addTestCmdLine(t, screenId, models.CmdStatusRunning)
	donePk := &models.CmdDoneInfo{Ts: 12345, ExitCode: 2, DurationMs: 99}
	update := makeTestPacket()
	require.NoError(t, UpdateCmdDoneInfo(ctx, update, screenId, line.LineId, donePk, models.CmdStatusError))

	cmd, err := GetCmdByScreenId(ctx, screenId, line.LineId)
	require.NoError(t, err)
	assert.Equal(t, models.CmdStatusError, cmd.Status)
	assert.EqualValues(t, 12345, cmd.DoneTs)
	assert.Equal(t, 2, cmd.ExitCode)
	assert.Equal(t, 99, cmd.DurationMs)
}

func TestCmdRestart(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	_, screenId := activeIds(t)

	line, _ := addTestCmdLine(t, screenId, models.CmdStatusDone)
	termOpts := &models.TermOpts{Rows: 40, Cols: 120}
	require.NoError(t, UpdateCmdForRestart(ctx, screenId, line.LineId, 5555, 101, 202, termOpts))

	cmd, err := GetCmdByScreenId(ctx, screenId, line.LineId)
	require.NoError(t, err)
	assert.Equal(t, models.CmdStatusRunning, cmd.Status)
	assert.EqualValues(t, 5555, cmd.RestartTs)
	assert.Equal(t, 0, cmd.ExitCode)
	assert.Equal(t, 101, cmd.CmdPid)
	assert.EqualValues(t, 40, cmd.TermOpts.Rows)
}

func TestArchiveInvariants(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	sessionId, screenId := activeIds(t)

	// archiving the last non-archived screen fails
	_, err := ArchiveScreen(ctx, sessionId, screenId)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last screen")

	// deleting a non-existent screen fails
	_, err = DeleteScreen(ctx, "no-such-screen", false, nil)
	require.Error(t, err)

	// with a second screen archiving works and advances the active screen
	update, err := InsertScreen(ctx, sessionId, "", models.ScreenCreateOpts{}, false)
	require.NoError(t, err)
	s2 := screenFromPacket(t, update)
	_, err = ArchiveScreen(ctx, sessionId, screenId)
	require.NoError(t, err)
	_, activeScreenId := activeIds(t)
	assert.Equal(t, s2.ScreenId, activeScreenId)

	require.NoError(t, UnArchiveScreen(ctx, sessionId, screenId))
}

func TestDeleteSessionCascades(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	sessionId, screenId := activeIds(t)
	addTestCmdLine(t, screenId, models.CmdStatusDone)

	// a second session so the active id has somewhere to go
	update, err := InsertSessionWithName(ctx, "other", false)
	require.NoError(t, err)
	require.NotNil(t, update)

	_, err = DeleteSession(ctx, sessionId)
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *db.TxWrap) error {
		assert.False(t, tx.Exists(`SELECT sessionid FROM session WHERE sessionid = ?`, sessionId))
		assert.Equal(t, 0, tx.GetInt(`SELECT count(*) FROM screen WHERE sessionid = ?`, sessionId))
		assert.Equal(t, 0, tx.GetInt(`SELECT count(*) FROM line WHERE screenid = ?`, screenId))
		assert.Equal(t, 0, tx.GetInt(`SELECT count(*) FROM cmd WHERE screenid = ?`, screenId))
		assert.True(t, tx.Exists(`SELECT sessionid FROM session_tombstone WHERE sessionid = ? AND name = ?`, sessionId, "default"))
		return nil
	})
	require.NoError(t, err)

	newActiveId, err := GetActiveSessionId(ctx)
	require.NoError(t, err)
	other, err := GetSessionByName(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, other.SessionId, newActiveId)
}

func TestSessionNameUniqueness(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)

	update, err := InsertSessionWithName(ctx, "default", false)
	require.NoError(t, err)
	require.NotNil(t, update)
	sess, err := GetSessionByName(ctx, "default-2")
	require.NoError(t, err)
	require.NotNil(t, sess, "duplicate name gets a -2 suffix")

	sessionId, _ := activeIds(t)
	err = SetSessionName(ctx, sessionId, "default-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate session name")
}

func TestUpdateLogCoalescing(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	_, screenId := activeIds(t)
	require.NoError(t, ScreenWebShareStart(ctx, screenId, models.ScreenWebShareOpts{ShareName: "test", ViewKey: "k"}))
	drainScreenUpdates(t)

	line, err := AddCommentLine(ctx, screenId, "test-user", "hello")
	require.NoError(t, err)
	require.NoError(t, DeleteLinesByIds(ctx, screenId, []string{line.LineId}))

	updates, err := GetScreenUpdates(ctx, 100)
	require.NoError(t, err)
	var forLine []*models.ScreenUpdate
	for _, u := range updates {
		if u.LineId == line.LineId {
			forLine = append(forLine, u)
		}
	}
	require.Len(t, forLine, 1, "line:new then line:del coalesces to one row")
	assert.Equal(t, models.UpdateType_LineDel, forLine[0].UpdateType)
}

func TestWebSharePtyPosAndArchiveRefusal(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	sessionId, screenId := activeIds(t)

	line, _ := addTestCmdLine(t, screenId, models.CmdStatusRunning)
	require.NoError(t, CreateCmdPtyFile(ctx, screenId, line.LineId, DefaultMaxPtySize))
	require.NoError(t, ScreenWebShareStart(ctx, screenId, models.ScreenWebShareOpts{ShareName: "test", ViewKey: "k"}))
	drainScreenUpdates(t)

	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	ptyUpdate, err := AppendToCmdPtyBlob(ctx, screenId, line.LineId, data, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1024, ptyUpdate.PtyDataLen)

	updates, err := GetScreenUpdates(ctx, 100)
	require.NoError(t, err)
	var foundPtyPos bool
	for _, u := range updates {
		if u.UpdateType == models.UpdateType_PtyPos && u.LineId == line.LineId {
			foundPtyPos = true
		}
	}
	assert.True(t, foundPtyPos, "pty append on a shared screen must log pty:pos")

	// cannot archive while web-sharing
	_, err = ArchiveScreen(ctx, sessionId, screenId)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop web-sharing before")

	require.NoError(t, ScreenWebShareStop(ctx, screenId))
	count, err := CountScreenUpdates(ctx)
	require.NoError(t, err)
	// only the trailing screen:del row survives the stop cleanup
	assert.Equal(t, 1, count)
}

func TestFixupScreenSelectedLine(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	_, screenId := activeIds(t)

	var lines []*models.Line
	for i := 0; i < 3; i++ {
		line, err := AddCommentLine(ctx, screenId, "test-user", "x")
		require.NoError(t, err)
		lines = append(lines, line)
	}
	_, err := UpdateScreen(ctx, screenId, map[string]interface{}{ScreenField_SelectedLine: 2})
	require.NoError(t, err)

	// valid selection: no change
	screen, err := FixupScreenSelectedLine(ctx, screenId)
	require.NoError(t, err)
	assert.Nil(t, screen)

	require.NoError(t, DeleteLinesByIds(ctx, screenId, []string{lines[1].LineId}))
	screen, err = FixupScreenSelectedLine(ctx, screenId)
	require.NoError(t, err)
	require.NotNil(t, screen)
	assert.EqualValues(t, 3, screen.SelectedLine, "moves to the closest higher line number")
}

func TestRemoteInstanceStateFlow(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	sessionId, screenId := activeIds(t)
	remotes, err := GetAllRemotes(ctx)
	require.NoError(t, err)
	remotePtr := models.RemotePtr{RemoteId: remotes[0].RemoteId}

	_, err = UpdateRemoteState(ctx, sessionId, screenId, remotePtr, nil, nil, nil)
	require.Error(t, err, "exactly one of base/diff must be supplied")

	base := testShellState("/home/test")
	feState := map[string]string{"cwd": "/home/test"}
	ri, err := UpdateRemoteState(ctx, sessionId, screenId, remotePtr, feState, base, nil)
	require.NoError(t, err)
	require.NotNil(t, ri)
	assert.NotEmpty(t, ri.StateBaseHash)
	assert.Empty(t, ri.StateDiffHashArr)
	assert.Equal(t, "bash", ri.ShellType)

	state, ssptr, err := GetRemoteState(ctx, sessionId, screenId, remotePtr)
	require.NoError(t, err)
	require.NotNil(t, ssptr)
	assert.Equal(t, "/home/test", state.Cwd)

	// reset drops the screen-scoped instance
	delRis, err := ScreenReset(ctx, screenId)
	require.NoError(t, err)
	require.Len(t, delRis, 1)
	assert.True(t, delRis[0].Remove)
	gone, err := GetRemoteInstance(ctx, sessionId, screenId, remotePtr)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestHangupAllRunningCmds(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	_, screenId := activeIds(t)
	line, _ := addTestCmdLine(t, screenId, models.CmdStatusRunning)

	require.NoError(t, HangupAllRunningCmds(ctx))
	cmd, err := GetCmdByScreenId(ctx, screenId, line.LineId)
	require.NoError(t, err)
	assert.Equal(t, models.CmdStatusHangup, cmd.Status)
}

func TestFindLineIdByArg(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	_, screenId := activeIds(t)

	line1, err := AddCommentLine(ctx, screenId, "u", "first")
	require.NoError(t, err)
	line2, err := AddCommentLine(ctx, screenId, "u", "second")
	require.NoError(t, err)
	require.NoError(t, SetLineArchivedById(ctx, screenId, line2.LineId, true))

	got, err := FindLineIdByArg(ctx, screenId, "E")
	require.NoError(t, err)
	assert.Equal(t, line1.LineId, got, "E skips archived lines")

	got, err = FindLineIdByArg(ctx, screenId, "EA")
	require.NoError(t, err)
	assert.Equal(t, line2.LineId, got)

	got, err = FindLineIdByArg(ctx, screenId, "1")
	require.NoError(t, err)
	assert.Equal(t, line1.LineId, got)

	got, err = FindLineIdByArg(ctx, screenId, line1.LineId[:8])
	require.NoError(t, err)
	assert.Equal(t, line1.LineId, got)
}

func TestLineStateSizeCap(t *testing.T) {
	setupWorkspaceTest(t)
	ctx := context.Background()
	bootstrapStore(t)
	_, screenId := activeIds(t)
	line, err := AddCommentLine(ctx, screenId, "u", "x")
	require.NoError(t, err)

	big := make(map[string]interface{})
	big["data"] = string(make([]byte, models.MaxLineStateSize))
	err = UpdateLineState(ctx, screenId, line.LineId, big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maxsize")
}
