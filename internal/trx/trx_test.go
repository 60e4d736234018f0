package trx

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/rc"
	"github.com/tuannm99/novasql/internal/record"
	"github.com/tuannm99/novasql/internal/wal"
)

const rowSize = HeaderSize + 8

func openStore(t *testing.T, log wal.Handler) *record.FileHandler {
	t.Helper()
	bp := bufferpool.NewManager(nil, nil)
	id, err := bp.OpenFile(filepath.Join(t.TempDir(), "rows.db"), 4096, 8)
	require.NoError(t, err)
	return record.NewFileHandler(bp, id, record.RowLayout{RecordSize: rowSize}, log)
}

func insertRow(t *testing.T, store *record.FileHandler, payload byte) record.RID {
	t.Helper()
	data := make([]byte, rowSize)
	data[HeaderSize] = payload
	rid, err := store.InsertRecord(data)
	require.NoError(t, err)
	return rid
}

func TestInsertRecordVisibleOnlyToOwnTransaction(t *testing.T) {
	store := openStore(t, nil)
	kit := NewKit(nil)

	t1 := kit.Begin()
	rid := insertRow(t, store, 1)
	require.NoError(t, t1.InsertRecord("rows", store, rid))

	data, err := store.GetRecord(rid)
	require.NoError(t, err)
	beginXid, endXid := ReadHeader(data)
	require.True(t, Visible(beginXid, endXid, t1.ID()))
	require.False(t, Visible(beginXid, endXid, t1.ID()+1))
}

func TestCommitMakesInsertVisibleToLaterTransactions(t *testing.T) {
	store := openStore(t, nil)
	kit := NewKit(nil)

	t1 := kit.Begin()
	rid := insertRow(t, store, 1)
	require.NoError(t, t1.InsertRecord("rows", store, rid))
	require.NoError(t, t1.Commit())

	t2 := kit.Begin()
	data, err := store.GetRecord(rid)
	require.NoError(t, err)
	beginXid, endXid := ReadHeader(data)
	require.True(t, Visible(beginXid, endXid, t2.ID()))
}

func TestRollbackPhysicallyRemovesInsertedRow(t *testing.T) {
	store := openStore(t, nil)
	kit := NewKit(nil)

	t1 := kit.Begin()
	rid := insertRow(t, store, 1)
	require.NoError(t, t1.InsertRecord("rows", store, rid))
	require.NoError(t, t1.Rollback())

	_, err := store.GetRecord(rid)
	require.Error(t, err)
}

func TestDeleteThenCommitHidesRowFromLaterReaders(t *testing.T) {
	store := openStore(t, nil)
	kit := NewKit(nil)

	t1 := kit.Begin()
	rid := insertRow(t, store, 1)
	require.NoError(t, t1.InsertRecord("rows", store, rid))
	require.NoError(t, t1.Commit())

	t2 := kit.Begin()
	require.NoError(t, t2.DeleteRecord("rows", store, rid))
	require.NoError(t, t2.Commit())

	t3 := kit.Begin()
	data, err := store.GetRecord(rid)
	require.NoError(t, err)
	beginXid, endXid := ReadHeader(data)
	require.False(t, Visible(beginXid, endXid, t3.ID()))
}

func TestDeleteRollbackRestoresVisibility(t *testing.T) {
	store := openStore(t, nil)
	kit := NewKit(nil)

	t1 := kit.Begin()
	rid := insertRow(t, store, 1)
	require.NoError(t, t1.InsertRecord("rows", store, rid))
	require.NoError(t, t1.Commit())

	t2 := kit.Begin()
	require.NoError(t, t2.DeleteRecord("rows", store, rid))
	require.NoError(t, t2.Rollback())

	t3 := kit.Begin()
	data, err := store.GetRecord(rid)
	require.NoError(t, err)
	beginXid, endXid := ReadHeader(data)
	require.True(t, Visible(beginXid, endXid, t3.ID()))
}

func TestConcurrentDeleteReturnsLockedConcurrencyConflict(t *testing.T) {
	store := openStore(t, nil)
	kit := NewKit(nil)

	t1 := kit.Begin()
	rid := insertRow(t, store, 1)
	require.NoError(t, t1.InsertRecord("rows", store, rid))
	require.NoError(t, t1.Commit())

	t2 := kit.Begin()
	require.NoError(t, t2.DeleteRecord("rows", store, rid))

	t3 := kit.Begin()
	err := t3.DeleteRecord("rows", store, rid)
	require.ErrorIs(t, err, rc.ErrLockedConcurrencyConflict)
}

func TestOperationAfterCommitReturnsAlreadyDone(t *testing.T) {
	store := openStore(t, nil)
	kit := NewKit(nil)

	t1 := kit.Begin()
	rid := insertRow(t, store, 1)
	require.NoError(t, t1.InsertRecord("rows", store, rid))
	require.NoError(t, t1.Commit())

	err := t1.DeleteRecord("rows", store, rid)
	require.ErrorIs(t, err, rc.ErrTrxAlreadyDone)
}

func TestReplayRollsBackTransactionMissingCommitOrRollback(t *testing.T) {
	dir := t.TempDir()
	h, err := wal.NewDiskHandler(dir, 10000, 1<<20)
	require.NoError(t, err)
	require.NoError(t, h.Start())

	store := openStore(t, h)
	kit := NewKit(h)

	t1 := kit.Begin()
	rid := insertRow(t, store, 7)
	require.NoError(t, t1.InsertRecord("rows", store, rid))
	// No Commit or Rollback: simulates a crash mid-transaction.
	require.NoError(t, h.WaitLSN(h.CurrentLSN()))
	require.NoError(t, h.Stop())

	h2, err := wal.NewDiskHandler(dir, 10000, 1<<20)
	require.NoError(t, err)
	replayer := NewMvccTrxLogReplayer(NewKit(h2))
	replayer.Register(ReplayTarget{Name: "rows", Store: store})
	require.NoError(t, h2.Replay(0, map[wal.ModuleID]wal.ModuleReplayer{
		wal.ModuleTransaction: replayer,
	}))

	_, err = store.GetRecord(rid)
	require.Error(t, err)
}

func TestReplayAppliesCommittedTransaction(t *testing.T) {
	dir := t.TempDir()
	h, err := wal.NewDiskHandler(dir, 10000, 1<<20)
	require.NoError(t, err)
	require.NoError(t, h.Start())

	store := openStore(t, h)
	kit := NewKit(h)

	t1 := kit.Begin()
	rid := insertRow(t, store, 9)
	require.NoError(t, t1.InsertRecord("rows", store, rid))
	require.NoError(t, t1.Commit())
	require.NoError(t, h.Stop())

	h2, err := wal.NewDiskHandler(dir, 10000, 1<<20)
	require.NoError(t, err)
	reKit := NewKit(h2)
	replayer := NewMvccTrxLogReplayer(reKit)
	replayer.Register(ReplayTarget{Name: "rows", Store: store})
	require.NoError(t, h2.Replay(0, map[wal.ModuleID]wal.ModuleReplayer{
		wal.ModuleTransaction: replayer,
	}))

	data, err := store.GetRecord(rid)
	require.NoError(t, err)
	beginXid, endXid := ReadHeader(data)
	require.True(t, Visible(beginXid, endXid, reKit.Begin().ID()))
}
