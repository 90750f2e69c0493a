package blockstore

import (
	"context"
	"fmt"

	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/pkg/dbmap"
)

func (fInfo *FileInfo) toMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["blockid"] = fInfo.BlockId
	rtn["name"] = fInfo.Name
	rtn["size"] = fInfo.Size
	rtn["createdts"] = fInfo.CreatedTs
	rtn["modts"] = fInfo.ModTs
	rtn["opts"] = dbmap.QuickJson(fInfo.Opts)
	rtn["meta"] = dbmap.QuickJson(fInfo.Meta)
	return rtn
}

// FromMap satisfies the generic row helpers.
func (fInfo *FileInfo) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&fInfo.BlockId, m, "blockid")
	dbmap.QuickSetStr(&fInfo.Name, m, "name")
	dbmap.QuickSetInt64(&fInfo.Size, m, "size")
	dbmap.QuickSetInt64(&fInfo.CreatedTs, m, "createdts")
	dbmap.QuickSetInt64(&fInfo.ModTs, m, "modts")
	dbmap.QuickSetJson(&fInfo.Opts, m, "opts")
	dbmap.QuickSetJson(&fInfo.Meta, m, "meta")
	return true
}

func insertFileIntoDB(ctx context.Context, fInfo FileInfo) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `SELECT name FROM block_file WHERE blockid = ? AND name = ?`
		if tx.Exists(query, fInfo.BlockId, fInfo.Name) {
			return fmt.Errorf("file %s:%s already exists", fInfo.BlockId, fInfo.Name)
		}
		query = `INSERT INTO block_file ( blockid, name, size, createdts, modts, opts, meta)
		                         VALUES (:blockid,:name,:size,:createdts,:modts,:opts,:meta)`
		tx.NamedExec(query, fInfo.toMap())
		return nil
	})
}

func writeFileInfoToDB(ctx context.Context, fInfo FileInfo) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `UPDATE block_file SET size = ?, modts = ?, opts = ?, meta = ? WHERE blockid = ? AND name = ?`
		tx.Exec(query, fInfo.Size, fInfo.ModTs, dbmap.QuickJson(fInfo.Opts), dbmap.QuickJson(fInfo.Meta), fInfo.BlockId, fInfo.Name)
		return nil
	})
}

func getFileInfo(ctx context.Context, blockId string, name string) (*FileInfo, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) (*FileInfo, error) {
		query := `SELECT * FROM block_file WHERE blockid = ? AND name = ?`
		fInfo := db.GetMapGen[*FileInfo](tx, query, blockId, name)
		if fInfo == nil {
			return nil, fmt.Errorf("file not found %s:%s", blockId, name)
		}
		return fInfo, nil
	})
}

func getPartDataFromDB(ctx context.Context, blockId string, name string, partIdx int) ([]byte, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]byte, error) {
		query := `SELECT data FROM block_part WHERE blockid = ? AND name = ? AND partidx = ?`
		m := tx.GetMap(query, blockId, name, partIdx)
		if m == nil {
			return []byte{}, nil
		}
		var data []byte
		dbmap.QuickSetBytes(&data, m, "data")
		return data, nil
	})
}

func writePartDataToDB(ctx context.Context, blockId string, name string, partIdx int, data []byte) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		query := `INSERT INTO block_part (blockid, name, partidx, data) VALUES (?, ?, ?, ?)
		          ON CONFLICT (blockid, name, partidx) DO UPDATE SET data = excluded.data`
		tx.Exec(query, blockId, name, partIdx, data)
		return nil
	})
}

func deleteFileFromDB(ctx context.Context, blockId string, name string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`DELETE FROM block_file WHERE blockid = ? AND name = ?`, blockId, name)
		tx.Exec(`DELETE FROM block_part WHERE blockid = ? AND name = ?`, blockId, name)
		return nil
	})
}

func deleteFileParts(ctx context.Context, blockId string, name string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`DELETE FROM block_part WHERE blockid = ? AND name = ?`, blockId, name)
		return nil
	})
}

func deleteBlockFromDB(ctx context.Context, blockId string) error {
	return db.WithTx(ctx, func(tx *db.TxWrap) error {
		tx.Exec(`DELETE FROM block_file WHERE blockid = ?`, blockId)
		tx.Exec(`DELETE FROM block_part WHERE blockid = ?`, blockId)
		return nil
	})
}

func getAllFilesInDBForBlockId(ctx context.Context, blockId string) ([]*FileInfo, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*FileInfo, error) {
		query := `SELECT * FROM block_file WHERE blockid = ? ORDER BY name`
		return db.SelectMapsGen[*FileInfo](tx, query, blockId), nil
	})
}

func getAllFilesInDB(ctx context.Context) ([]*FileInfo, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]*FileInfo, error) {
		query := `SELECT * FROM block_file ORDER BY blockid, name`
		return db.SelectMapsGen[*FileInfo](tx, query), nil
	})
}

func getAllBlockIdsInDB(ctx context.Context) ([]string, error) {
	return db.WithTxRtn(ctx, func(tx *db.TxWrap) ([]string, error) {
		query := `SELECT DISTINCT blockid FROM block_file ORDER BY blockid`
		return tx.SelectStrings(query), nil
	})
}
