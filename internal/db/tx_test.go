package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, Open(filepath.Join(dir, DBFileName)))
	require.NoError(t, Migrate(context.Background()))
	t.Cleanup(Close)
}

func TestMigrateIsIdempotent(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, Migrate(ctx))
	version, err := GetDBVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestWithTxCommitAndRollback(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	err := WithTx(ctx, func(tx *TxWrap) error {
		tx.Exec(`INSERT INTO session (sessionid, name, sessionidx, activescreenid, sharemode) VALUES (?, ?, ?, '', 'local')`, "s-1", "one", 1)
		return nil
	})
	require.NoError(t, err)

	err = WithTx(ctx, func(tx *TxWrap) error {
		tx.Exec(`INSERT INTO session (sessionid, name, sessionidx, activescreenid, sharemode) VALUES (?, ?, ?, '', 'local')`, "s-2", "two", 2)
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	count, err := WithTxRtn(ctx, func(tx *TxWrap) (int, error) {
		return tx.GetInt(`SELECT count(*) FROM session`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count, "rolled-back insert must not be visible")
}

func TestWithTxStickyError(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	err := WithTx(ctx, func(tx *TxWrap) error {
		tx.Exec(`INSERT INTO no_such_table (x) VALUES (1)`)
		// helpers no-op after the first error
		tx.Exec(`INSERT INTO session (sessionid, name, sessionidx, activescreenid, sharemode) VALUES ('x', 'x', 1, '', 'local')`)
		return nil
	})
	require.Error(t, err)
	count, _ := WithTxRtn(ctx, func(tx *TxWrap) (int, error) {
		return tx.GetInt(`SELECT count(*) FROM session`), nil
	})
	assert.Equal(t, 0, count)
}

func TestNestedTxJoinsOuter(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	err := WithTx(ctx, func(tx *TxWrap) error {
		tx.Exec(`INSERT INTO session (sessionid, name, sessionidx, activescreenid, sharemode) VALUES ('outer', 'outer', 1, '', 'local')`)
		return WithTx(tx.Context(), func(inner *TxWrap) error {
			// the uncommitted outer row must be visible here
			if !inner.Exists(`SELECT sessionid FROM session WHERE sessionid = 'outer'`) {
				return fmt.Errorf("outer row not visible in nested tx")
			}
			inner.Exec(`INSERT INTO session (sessionid, name, sessionidx, activescreenid, sharemode) VALUES ('inner', 'inner', 2, '', 'local')`)
			return nil
		})
	})
	require.NoError(t, err)
	count, err := WithTxRtn(ctx, func(tx *TxWrap) (int, error) {
		return tx.GetInt(`SELECT count(*) FROM session`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNamedExecBinding(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	m := map[string]interface{}{
		"sessionid":  "named-1",
		"name":       "named",
		"sessionidx": int64(7),
	}
	err := WithTx(ctx, func(tx *TxWrap) error {
		tx.NamedExec(`INSERT INTO session (sessionid, name, sessionidx, activescreenid, sharemode) VALUES (:sessionid,:name,:sessionidx, '', 'local')`, m)
		return nil
	})
	require.NoError(t, err)
	idx, err := WithTxRtn(ctx, func(tx *TxWrap) (int, error) {
		return tx.GetInt(`SELECT sessionidx FROM session WHERE sessionid = ?`, "named-1"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, idx)
}

func TestSelectMapsTypes(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	err := WithTx(ctx, func(tx *TxWrap) error {
		tx.Exec(`INSERT INTO session (sessionid, name, sessionidx, activescreenid, sharemode, archived) VALUES ('m-1', 'maps', 3, '', 'local', 1)`)
		return nil
	})
	require.NoError(t, err)
	err = WithTx(ctx, func(tx *TxWrap) error {
		m := tx.GetMap(`SELECT * FROM session WHERE sessionid = ?`, "m-1")
		require.NotNil(t, m)
		assert.Equal(t, "maps", m["name"])
		assert.EqualValues(t, 3, m["sessionidx"])
		assert.EqualValues(t, 1, m["archived"])
		return nil
	})
	require.NoError(t, err)
}
