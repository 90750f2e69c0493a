package db

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"unicode"
)

// writerLock serializes writer transactions: the SQL backend is a
// single-writer embedded store, so at most one transaction is in flight.
var writerLock = &sync.Mutex{}

type txCtxKey struct{}

// TxWrap wraps an open transaction with a context and a sticky first-error.
// Query helpers no-op once an error is recorded; WithTx surfaces it and
// rolls back.
type TxWrap struct {
	tx  *sql.Tx
	ctx context.Context
	err error
}

// Context returns a context that carries this transaction. Passing it into
// an operation that calls WithTx reuses the open transaction instead of
// deadlocking on the writer lock.
func (tx *TxWrap) Context() context.Context {
	return context.WithValue(tx.ctx, txCtxKey{}, tx)
}

func (tx *TxWrap) SetErr(err error) {
	if tx.err == nil {
		tx.err = err
	}
}

func (tx *TxWrap) Err() error {
	return tx.err
}

// IsTxWrapContext reports whether ctx already carries an open transaction.
func IsTxWrapContext(ctx context.Context) bool {
	return ctx.Value(txCtxKey{}) != nil
}

// WithTx runs fn inside a transaction. It commits when fn returns nil (and
// no helper recorded an error) and rolls back otherwise. Nested calls whose
// ctx came from TxWrap.Context join the open transaction.
func WithTx(ctx context.Context, fn func(tx *TxWrap) error) error {
	if cur, ok := ctx.Value(txCtxKey{}).(*TxWrap); ok {
		err := fn(cur)
		if err == nil {
			err = cur.err
		}
		if err != nil {
			cur.SetErr(err)
		}
		return err
	}
	sqlDB, err := getDB()
	if err != nil {
		return err
	}
	writerLock.Lock()
	defer writerLock.Unlock()
	sqlTx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txw := &TxWrap{tx: sqlTx, ctx: ctx}
	fnErr := fn(txw)
	if fnErr == nil {
		fnErr = txw.err
	}
	if fnErr != nil {
		_ = sqlTx.Rollback()
		return fnErr
	}
	return sqlTx.Commit()
}

// WithTxRtn is WithTx with a return value.
func WithTxRtn[T any](ctx context.Context, fn func(tx *TxWrap) (T, error)) (T, error) {
	var rtn T
	txErr := WithTx(ctx, func(tx *TxWrap) error {
		var err error
		rtn, err = fn(tx)
		return err
	})
	return rtn, txErr
}

// Exec runs a statement, recording any error on the wrap.
func (tx *TxWrap) Exec(query string, args ...interface{}) {
	if tx.err != nil {
		return
	}
	_, err := tx.tx.ExecContext(tx.ctx, query, args...)
	if err != nil {
		tx.SetErr(err)
	}
}

// NamedExec runs a statement whose ":name" parameters are resolved from a
// row map (the ToMap output of an entity).
func (tx *TxWrap) NamedExec(query string, m map[string]interface{}) {
	if tx.err != nil {
		return
	}
	boundQuery, args := bindNamedParams(query, m)
	_, err := tx.tx.ExecContext(tx.ctx, boundQuery, args...)
	if err != nil {
		tx.SetErr(err)
	}
}

// bindNamedParams rewrites ":name" placeholders to "?" and collects the
// matching values from m in order.
func bindNamedParams(query string, m map[string]interface{}) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch != ':' || i+1 >= len(query) || !isIdentRune(rune(query[i+1])) {
			sb.WriteByte(ch)
			continue
		}
		j := i + 1
		for j < len(query) && isIdentRune(rune(query[j])) {
			j++
		}
		name := query[i+1 : j]
		args = append(args, m[name])
		sb.WriteByte('?')
		i = j - 1
	}
	return sb.String(), args
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Exists reports whether the query returns at least one row.
func (tx *TxWrap) Exists(query string, args ...interface{}) bool {
	if tx.err != nil {
		return false
	}
	rows, err := tx.tx.QueryContext(tx.ctx, query, args...)
	if err != nil {
		tx.SetErr(err)
		return false
	}
	defer rows.Close()
	return rows.Next()
}

// GetString returns the first column of the first row ("" when no row).
func (tx *TxWrap) GetString(query string, args ...interface{}) string {
	var rtn string
	tx.getScalar(&rtn, query, args...)
	return rtn
}

// GetInt returns the first column of the first row (0 when no row or NULL).
func (tx *TxWrap) GetInt(query string, args ...interface{}) int {
	var rtn sql.NullInt64
	tx.getScalar(&rtn, query, args...)
	return int(rtn.Int64)
}

// GetInt64 returns the first column of the first row (0 when no row or NULL).
func (tx *TxWrap) GetInt64(query string, args ...interface{}) int64 {
	var rtn sql.NullInt64
	tx.getScalar(&rtn, query, args...)
	return rtn.Int64
}

// GetBool returns the first column of the first row (false when no row).
func (tx *TxWrap) GetBool(query string, args ...interface{}) bool {
	var rtn bool
	tx.getScalar(&rtn, query, args...)
	return rtn
}

func (tx *TxWrap) getScalar(dest interface{}, query string, args ...interface{}) {
	if tx.err != nil {
		return
	}
	err := tx.tx.QueryRowContext(tx.ctx, query, args...).Scan(dest)
	if err == sql.ErrNoRows {
		return
	}
	if err != nil {
		tx.SetErr(err)
	}
}

// SelectStrings returns the first column of every row.
func (tx *TxWrap) SelectStrings(query string, args ...interface{}) []string {
	if tx.err != nil {
		return nil
	}
	rows, err := tx.tx.QueryContext(tx.ctx, query, args...)
	if err != nil {
		tx.SetErr(err)
		return nil
	}
	defer rows.Close()
	var rtn []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			tx.SetErr(err)
			return nil
		}
		rtn = append(rtn, s)
	}
	if err := rows.Err(); err != nil {
		tx.SetErr(err)
	}
	return rtn
}

// GetMap returns the first row as a column-name map (nil when no row).
func (tx *TxWrap) GetMap(query string, args ...interface{}) map[string]interface{} {
	maps := tx.selectMapsMax(1, query, args...)
	if len(maps) == 0 {
		return nil
	}
	return maps[0]
}

// SelectMaps returns every row as a column-name map.
func (tx *TxWrap) SelectMaps(query string, args ...interface{}) []map[string]interface{} {
	return tx.selectMapsMax(-1, query, args...)
}

func (tx *TxWrap) selectMapsMax(maxRows int, query string, args ...interface{}) []map[string]interface{} {
	if tx.err != nil {
		return nil
	}
	rows, err := tx.tx.QueryContext(tx.ctx, query, args...)
	if err != nil {
		tx.SetErr(err)
		return nil
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		tx.SetErr(err)
		return nil
	}
	var rtn []map[string]interface{}
	for rows.Next() {
		if maxRows >= 0 && len(rtn) >= maxRows {
			break
		}
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			tx.SetErr(err)
			return nil
		}
		m := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			m[col] = vals[i]
		}
		rtn = append(rtn, m)
	}
	if err := rows.Err(); err != nil {
		tx.SetErr(err)
	}
	return rtn
}

// Mappable constrains generic row helpers to entities with FromMap.
type Mappable[T any] interface {
	*T
	FromMap(map[string]interface{}) bool
}

// GetMapGen returns the first row mapped into an entity (nil when no row).
func GetMapGen[PT Mappable[T], T any](tx *TxWrap, query string, args ...interface{}) PT {
	m := tx.GetMap(query, args...)
	if m == nil {
		return nil
	}
	rtn := PT(new(T))
	rtn.FromMap(m)
	return rtn
}

// SelectMapsGen returns every row mapped into entities.
func SelectMapsGen[PT Mappable[T], T any](tx *TxWrap, query string, args ...interface{}) []PT {
	marr := tx.SelectMaps(query, args...)
	rtn := make([]PT, 0, len(marr))
	for _, m := range marr {
		item := PT(new(T))
		item.FromMap(m)
		rtn = append(rtn, item)
	}
	return rtn
}

// FromMap builds an entity from an already-fetched row map (nil for nil).
func FromMap[PT Mappable[T], T any](m map[string]interface{}) PT {
	if m == nil {
		return nil
	}
	rtn := PT(new(T))
	rtn.FromMap(m)
	return rtn
}
