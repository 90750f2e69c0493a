package shellstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBaseState() *ShellState {
	return &ShellState{
		Version:   "bash v5.2.15",
		Cwd:       "/home/test",
		ShellVars: EncodeDeclMap(map[string]string{"PATH": "/usr/bin", "HOME": "/home/test"}),
		Aliases:   "alias ll='ls -l'",
	}
}

func TestEncodeAndHashDeterministic(t *testing.T) {
	state1 := makeBaseState()
	state2 := makeBaseState()
	// same decls in a different insertion order must hash identically
	state2.ShellVars = EncodeDeclMap(map[string]string{"HOME": "/home/test", "PATH": "/usr/bin"})

	hash1, data1 := state1.EncodeAndHash()
	hash2, data2 := state2.EncodeAndHash()
	assert.Equal(t, hash1, hash2)
	assert.Equal(t, data1, data2)
	assert.Len(t, hash1, 16)

	state2.Cwd = "/elsewhere"
	hash3, _ := state2.EncodeAndHash()
	assert.NotEqual(t, hash1, hash3)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	state := makeBaseState()
	_, data := state.EncodeAndHash()
	var decoded ShellState
	require.NoError(t, decoded.DecodeShellState(data))
	assert.Equal(t, state.Version, decoded.Version)
	assert.Equal(t, state.Cwd, decoded.Cwd)
	assert.Equal(t, DeclMapFromState(state), DeclMapFromState(&decoded))
	assert.Equal(t, state.Aliases, decoded.Aliases)
}

func TestMakeAndApplyDiff(t *testing.T) {
	base := makeBaseState()
	baseHash, _ := base.EncodeAndHash()

	newState := makeBaseState()
	decls := DeclMapFromState(newState)
	decls["VIRTUAL_ENV"] = "/home/test/.venv"
	delete(decls, "HOME")
	newState.ShellVars = EncodeDeclMap(decls)
	newState.Cwd = "/home/test/project"
	newState.Aliases = ""

	diff := MakeShellStateDiff(base, baseHash, newState)
	require.NotNil(t, diff.VarsDiff)
	assert.Equal(t, "/home/test/.venv", diff.VarsDiff.Upsert["VIRTUAL_ENV"])
	assert.Equal(t, []string{"HOME"}, diff.VarsDiff.Delete)
	require.NotNil(t, diff.NewAliases)

	applied, err := ApplyShellStateDiff(base, diff)
	require.NoError(t, err)
	appliedHash, _ := applied.EncodeAndHash()
	wantHash, _ := newState.EncodeAndHash()
	assert.Equal(t, wantHash, appliedHash, "fold(base, diff) must reproduce the new state")
}

func TestApplyDiffChain(t *testing.T) {
	base := makeBaseState()
	baseHash, _ := base.EncodeAndHash()

	mid := makeBaseState()
	mid.Cwd = "/step1"
	diff1 := MakeShellStateDiff(base, baseHash, mid)

	final := makeBaseState()
	final.Cwd = "/step2"
	declMap := DeclMapFromState(final)
	declMap["EXTRA"] = "1"
	final.ShellVars = EncodeDeclMap(declMap)
	diff2 := MakeShellStateDiff(mid, baseHash, final)

	state := base
	var err error
	for _, diff := range []*ShellStateDiff{diff1, diff2} {
		state, err = ApplyShellStateDiff(state, diff)
		require.NoError(t, err)
	}
	gotHash, _ := state.EncodeAndHash()
	wantHash, _ := final.EncodeAndHash()
	assert.Equal(t, wantHash, gotHash)
}

func TestParseShellStateVersion(t *testing.T) {
	shellType, version, err := ParseShellStateVersion("bash v5.2.15")
	require.NoError(t, err)
	assert.Equal(t, "bash", shellType)
	assert.Equal(t, "v5.2.15", version)

	_, _, err = ParseShellStateVersion("garbage")
	require.Error(t, err)
}

func TestFeStateFromShellState(t *testing.T) {
	state := makeBaseState()
	declMap := DeclMapFromState(state)
	declMap["VIRTUAL_ENV"] = "/venv"
	declMap["PROMPTVAR_GITBRANCH"] = "main"
	declMap["IGNORED"] = "x"
	state.ShellVars = EncodeDeclMap(declMap)

	feState := FeStateFromShellState(state)
	assert.Equal(t, "/home/test", feState["cwd"])
	assert.Equal(t, "/venv", feState["VIRTUAL_ENV"])
	assert.Equal(t, "main", feState["PROMPTVAR_GITBRANCH"])
	assert.NotContains(t, feState, "IGNORED")
	assert.NotContains(t, feState, "invalidstate")

	state.Version = "invalid"
	feState = FeStateFromShellState(state)
	assert.Equal(t, "1", feState["invalidstate"])
}
