package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/btree"
	"github.com/tuannm99/novasql/internal/config"
)

func diskConfig(t *testing.T) (*config.DBConfig, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Dir = dir
	cfg.WAL.Dir = "wal"
	cfg.LogHandlerName = "disk"
	return cfg, dir
}

func TestDbInitReplaysCommittedAndRollsBackInFlightInsert(t *testing.T) {
	cfg, dir := diskConfig(t)

	db, err := Init(dir, cfg)
	require.NoError(t, err)

	table, err := db.CreateTable("people", idFields(), FormatRow, nil)
	require.NoError(t, err)

	committed := db.TrxKit().Begin()
	committedRID, err := table.InsertRecord(committed, []any{int32(1), "alice"})
	require.NoError(t, err)
	require.NoError(t, committed.Commit())

	inFlight := db.TrxKit().Begin()
	inFlightRID, err := table.InsertRecord(inFlight, []any{int32(2), "bob"})
	require.NoError(t, err)
	// No Commit/Rollback for inFlight: simulates a crash mid-transaction.

	require.NoError(t, db.Close())

	db2, err := Init(dir, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })

	reopened, err := db2.OpenTable("people")
	require.NoError(t, err)

	reader := db2.TrxKit().Begin()
	var rids []string
	scanner := reopened.GetRecordScanner(reader, false)
	require.NoError(t, scanner.Scan(func(r Row) error {
		rids = append(rids, r.RID.String())
		return nil
	}))

	require.Contains(t, rids, committedRID.String())
	require.NotContains(t, rids, inFlightRID.String())
}

func TestDbInitReopensIndexesAfterRestart(t *testing.T) {
	cfg, dir := diskConfig(t)

	db, err := Init(dir, cfg)
	require.NoError(t, err)

	table, err := db.CreateTable("people", idFields(), FormatRow, []string{"id"})
	require.NoError(t, err)

	tx := db.TrxKit().Begin()
	rid, err := table.InsertRecord(tx, []any{int32(42), "carol"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NoError(t, db.Close())

	db2, err := Init(dir, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })

	reopened, err := db2.OpenTable("people")
	require.NoError(t, err)
	require.Len(t, reopened.idx, 1)

	cur, err := reopened.idx[0].tree.Open(btree.EncodeInt32(42), btree.EncodeInt32(42), true)
	require.NoError(t, err)
	defer cur.Close()

	_, foundRID, ok, err := cur.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rid, foundRID)
}

func TestDbCreateTablePersistsMetaOnDisk(t *testing.T) {
	cfg, dir := diskConfig(t)

	db, err := Init(dir, cfg)
	require.NoError(t, err)

	_, err = db.CreateTable("widgets", idFields(), FormatRow, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	metaPath := filepath.Join(dir, "tables", "widgets.meta.json")
	require.FileExists(t, metaPath)
}
