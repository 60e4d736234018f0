package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/btree"
	"github.com/tuannm99/novasql/internal/config"
	"github.com/tuannm99/novasql/internal/record"
)

func openTestDb(t *testing.T) *Db {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Dir = t.TempDir()
	cfg.LogHandlerName = "vacuous"
	db, err := Init(cfg.Storage.Dir, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func idFields() []FieldMeta {
	return []FieldMeta{
		{Name: "id", Type: btree.TypeInt32},
		{Name: "name", Type: btree.TypeChars, Width: 16},
	}
}

func TestCreateTableThenOpenTableRoundTrip(t *testing.T) {
	db := openTestDb(t)

	created, err := db.CreateTable("people", idFields(), FormatRow, nil)
	require.NoError(t, err)
	require.Equal(t, "people", created.Name())
	require.Len(t, created.MetaFields(), 2)

	opened, err := db.OpenTable("people")
	require.NoError(t, err)
	require.Same(t, created, opened)
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	db := openTestDb(t)

	_, err := db.CreateTable("people", idFields(), FormatRow, nil)
	require.NoError(t, err)

	_, err = db.CreateTable("people", idFields(), FormatRow, nil)
	require.Error(t, err)
}

func TestInsertAndScanVisibleRows(t *testing.T) {
	db := openTestDb(t)
	table, err := db.CreateTable("people", idFields(), FormatRow, nil)
	require.NoError(t, err)

	tx := db.TrxKit().Begin()
	_, err = table.InsertRecord(tx, []any{int32(1), "alice"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	reader := db.TrxKit().Begin()
	var rows []Row
	scanner := table.GetRecordScanner(reader, false)
	require.NoError(t, scanner.Scan(func(r Row) error {
		rows = append(rows, r)
		return nil
	}))
	require.Len(t, rows, 1)
	require.Equal(t, int32(1), rows[0].Values[0])
	require.Equal(t, "alice", rows[0].Values[1])
}

func TestUncommittedInsertInvisibleToOtherTransaction(t *testing.T) {
	db := openTestDb(t)
	table, err := db.CreateTable("people", idFields(), FormatRow, nil)
	require.NoError(t, err)

	writer := db.TrxKit().Begin()
	_, err = table.InsertRecord(writer, []any{int32(1), "alice"})
	require.NoError(t, err)

	reader := db.TrxKit().Begin()
	var rows []Row
	scanner := table.GetRecordScanner(reader, false)
	require.NoError(t, scanner.Scan(func(r Row) error {
		rows = append(rows, r)
		return nil
	}))
	require.Empty(t, rows)

	require.NoError(t, writer.Commit())
}

func TestDeleteRecordHidesRowFromLaterReaders(t *testing.T) {
	db := openTestDb(t)
	table, err := db.CreateTable("people", idFields(), FormatRow, nil)
	require.NoError(t, err)

	tx := db.TrxKit().Begin()
	rid, err := table.InsertRecord(tx, []any{int32(1), "alice"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	del := db.TrxKit().Begin()
	require.NoError(t, table.DeleteRecord(del, rid))
	require.NoError(t, del.Commit())

	reader := db.TrxKit().Begin()
	var rows []Row
	scanner := table.GetRecordScanner(reader, false)
	require.NoError(t, scanner.Scan(func(r Row) error {
		rows = append(rows, r)
		return nil
	}))
	require.Empty(t, rows)
}

func TestInsertRecordMaintainsIndexAndDeleteRemovesIt(t *testing.T) {
	db := openTestDb(t)
	table, err := db.CreateTable("people", idFields(), FormatRow, []string{"id"})
	require.NoError(t, err)
	require.Len(t, table.idx, 1)

	tx := db.TrxKit().Begin()
	rid, err := table.InsertRecord(tx, []any{int32(7), "bob"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	cur, err := table.idx[0].tree.Open(btree.EncodeInt32(7), btree.EncodeInt32(7), true)
	require.NoError(t, err)
	_, foundRID, ok, err := cur.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rid, foundRID)
	cur.Close()

	del := db.TrxKit().Begin()
	require.NoError(t, table.DeleteRecord(del, rid))
	require.NoError(t, del.Commit())

	cur2, err := table.idx[0].tree.Open(btree.EncodeInt32(7), btree.EncodeInt32(7), true)
	require.NoError(t, err)
	_, _, ok2, err := cur2.Next()
	require.NoError(t, err)
	require.False(t, ok2)
	cur2.Close()
}

func TestInsertRecordRejectsWrongValueCount(t *testing.T) {
	db := openTestDb(t)
	table, err := db.CreateTable("people", idFields(), FormatRow, nil)
	require.NoError(t, err)

	tx := db.TrxKit().Begin()
	_, err = table.InsertRecord(tx, []any{int32(1)})
	require.Error(t, err)
	require.NoError(t, tx.Rollback())
}

func TestPaxTableChunkScannerFiltersUncommittedRows(t *testing.T) {
	db := openTestDb(t)
	table, err := db.CreateTable("events", idFields(), FormatPAX, nil)
	require.NoError(t, err)

	committed := db.TrxKit().Begin()
	_, err = table.InsertRecord(committed, []any{int32(1), "seen"})
	require.NoError(t, err)
	require.NoError(t, committed.Commit())

	uncommitted := db.TrxKit().Begin()
	_, err = table.InsertRecord(uncommitted, []any{int32(2), "unseen"})
	require.NoError(t, err)

	reader := db.TrxKit().Begin()
	scanner, err := table.GetChunkScanner(reader, false)
	require.NoError(t, err)

	total := 0
	require.NoError(t, scanner.Scan(func(c *record.Chunk) error {
		total += c.Rows
		return nil
	}))
	require.Equal(t, 1, total)

	require.NoError(t, uncommitted.Commit())
}

func TestGetChunkScannerRejectsRowFormatTable(t *testing.T) {
	db := openTestDb(t)
	table, err := db.CreateTable("people", idFields(), FormatRow, nil)
	require.NoError(t, err)

	reader := db.TrxKit().Begin()
	_, err = table.GetChunkScanner(reader, false)
	require.Error(t, err)
}
