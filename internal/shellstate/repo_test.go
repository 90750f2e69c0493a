package shellstate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/pkg/models"
)

func setupRepoTest(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, db.Open(filepath.Join(dir, db.DBFileName)))
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(db.Close)
}

func TestStoreStateBaseIdempotent(t *testing.T) {
	setupRepoTest(t)
	ctx := context.Background()
	base := makeBaseState()
	require.NoError(t, StoreStateBase(ctx, base))
	require.NoError(t, StoreStateBase(ctx, base))

	baseHash, _ := base.EncodeAndHash()
	loaded, err := GetStateBase(ctx, baseHash)
	require.NoError(t, err)
	loadedHash, _ := loaded.EncodeAndHash()
	assert.Equal(t, baseHash, loadedHash)

	version, err := GetStateBaseVersion(ctx, baseHash)
	require.NoError(t, err)
	assert.Equal(t, "bash v5.2.15", version)
}

func TestStateChainResolution(t *testing.T) {
	setupRepoTest(t)
	ctx := context.Background()

	base := makeBaseState()
	baseHash, _ := base.EncodeAndHash()
	require.NoError(t, StoreStateBase(ctx, base))

	mid := makeBaseState()
	mid.Cwd = "/step1"
	diff1 := MakeShellStateDiff(base, baseHash, mid)
	diff1Hash, _ := diff1.EncodeAndHash()
	require.NoError(t, StoreStateDiff(ctx, diff1))

	final := makeBaseState()
	final.Cwd = "/step2"
	diff2 := MakeShellStateDiff(mid, baseHash, final)
	diff2.DiffHashArr = []string{diff1Hash}
	diff2Hash, _ := diff2.EncodeAndHash()
	require.NoError(t, StoreStateDiff(ctx, diff2))

	resolved, err := GetFullState(ctx, models.ShellStatePtr{BaseHash: baseHash, DiffHashArr: []string{diff1Hash, diff2Hash}})
	require.NoError(t, err)

	// fold(Apply, base, diffs) must match
	want := base
	for _, diff := range []*ShellStateDiff{diff1, diff2} {
		want, err = ApplyShellStateDiff(want, diff)
		require.NoError(t, err)
	}
	wantHash, _ := want.EncodeAndHash()
	gotHash, _ := resolved.EncodeAndHash()
	assert.Equal(t, wantHash, gotHash)
	assert.Equal(t, "/step2", resolved.Cwd)
}

func TestStoreStateDiffMissingBase(t *testing.T) {
	setupRepoTest(t)
	ctx := context.Background()
	diff := &ShellStateDiff{Version: "bash v5.2.15", BaseHash: "does-not-exist"}
	err := StoreStateDiff(ctx, diff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "basehash:does-not-exist does not exist")
}

func TestStoreStateDiffMissingPredecessor(t *testing.T) {
	setupRepoTest(t)
	ctx := context.Background()
	base := makeBaseState()
	baseHash, _ := base.EncodeAndHash()
	require.NoError(t, StoreStateBase(ctx, base))

	// predecessor d1 was never stored
	diff := &ShellStateDiff{Version: "bash v5.2.15", BaseHash: baseHash, DiffHashArr: []string{"0000000000000000"}}
	err := StoreStateDiff(ctx, diff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diffhash[0]:0000000000000000 does not exist")
}

func TestGetFullStateMissingRows(t *testing.T) {
	setupRepoTest(t)
	ctx := context.Background()

	_, err := GetFullState(ctx, models.ShellStatePtr{BaseHash: "missing"})
	require.Error(t, err)

	base := makeBaseState()
	baseHash, _ := base.EncodeAndHash()
	require.NoError(t, StoreStateBase(ctx, base))
	_, err = GetFullState(ctx, models.ShellStatePtr{BaseHash: baseHash, DiffHashArr: []string{"missing-diff"}})
	require.Error(t, err)
}

func TestGetCurStateDiffFromPtr(t *testing.T) {
	setupRepoTest(t)
	ctx := context.Background()
	base := makeBaseState()
	baseHash, _ := base.EncodeAndHash()
	require.NoError(t, StoreStateBase(ctx, base))

	// empty chain returns an empty diff carrying the base version
	diff, err := GetCurStateDiffFromPtr(ctx, &models.ShellStatePtr{BaseHash: baseHash})
	require.NoError(t, err)
	assert.Equal(t, baseHash, diff.BaseHash)
	assert.Equal(t, "bash v5.2.15", diff.Version)
	assert.Nil(t, diff.VarsDiff)

	mid := makeBaseState()
	mid.Cwd = "/step1"
	diff1 := MakeShellStateDiff(base, baseHash, mid)
	diff1Hash, _ := diff1.EncodeAndHash()
	require.NoError(t, StoreStateDiff(ctx, diff1))

	last, err := GetCurStateDiffFromPtr(ctx, &models.ShellStatePtr{BaseHash: baseHash, DiffHashArr: []string{diff1Hash}})
	require.NoError(t, err)
	assert.Equal(t, "/step1", last.Cwd)
}
