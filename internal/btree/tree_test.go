package btree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/rc"
	"github.com/tuannm99/novasql/internal/record"
	"github.com/tuannm99/novasql/internal/wal"
)

// newTestTree opens a small-paged buffer pool file so a handful of inserts
// is enough to force real splits, and a disk-backed WAL so mutations are
// actually logged.
func newTestTree(t *testing.T) (*Tree, *bufferpool.Manager, bufferpool.ID, wal.Handler) {
	t.Helper()
	dir := t.TempDir()
	bp := bufferpool.NewManager(nil, nil)
	poolID, err := bp.OpenFile(filepath.Join(dir, "idx.db"), 128, 64)
	require.NoError(t, err)

	logDir := t.TempDir()
	h, err := wal.NewDiskHandler(logDir, 10000, 1<<20)
	require.NoError(t, err)
	require.NoError(t, h.Start())
	t.Cleanup(func() { _ = h.Stop() })

	tr, _, err := CreateTree(bp, poolID, h, TypeInt32, 4)
	require.NoError(t, err)
	return tr, bp, poolID, h
}

func rid(n uint32) record.RID { return record.RID{PageNum: n, Slot: uint16(n % 7)} }

func TestInsertAndSearchEqualAcrossSplits(t *testing.T) {
	tr, _, _, _ := newTestTree(t)

	const n = 60
	for i := 0; i < n; i++ {
		require.NoError(t, tr.Insert(EncodeInt32(int32(i)), rid(uint32(i))))
	}

	for i := 0; i < n; i++ {
		got, err := tr.SearchEqual(EncodeInt32(int32(i)))
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, rid(uint32(i)), got[0])
	}

	miss, err := tr.SearchEqual(EncodeInt32(int32(n + 5)))
	require.NoError(t, err)
	require.Empty(t, miss)
}

func TestInsertDuplicateAttrKeepsBothRIDs(t *testing.T) {
	tr, _, _, _ := newTestTree(t)

	require.NoError(t, tr.Insert(EncodeInt32(7), rid(1)))
	require.NoError(t, tr.Insert(EncodeInt32(7), rid(2)))

	got, err := tr.SearchEqual(EncodeInt32(7))
	require.NoError(t, err)
	require.ElementsMatch(t, []record.RID{rid(1), rid(2)}, got)
}

func TestRangeScanReturnsSortedSubset(t *testing.T) {
	tr, _, _, _ := newTestTree(t)

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, tr.Insert(EncodeInt32(int32(i)), rid(uint32(i))))
	}

	cur, err := tr.Open(EncodeInt32(10), EncodeInt32(20), true)
	require.NoError(t, err)

	var got []int32
	for {
		attr, _, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, DecodeInt32(attr))
	}

	want := make([]int32, 0, 11)
	for i := int32(10); i <= 20; i++ {
		want = append(want, i)
	}
	require.Equal(t, want, got)
}

func TestFullScanVisitsEveryEntryInOrder(t *testing.T) {
	tr, _, _, _ := newTestTree(t)

	const n = 40
	for i := n - 1; i >= 0; i-- {
		require.NoError(t, tr.Insert(EncodeInt32(int32(i)), rid(uint32(i))))
	}

	cur, err := tr.Open(nil, nil, false)
	require.NoError(t, err)

	var got []int32
	for {
		attr, _, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, DecodeInt32(attr))
	}
	require.Len(t, got, n)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1], got[i])
	}
}

func TestDeleteRemovesEntryAndMergesUnderflowedLeaves(t *testing.T) {
	tr, _, _, _ := newTestTree(t)

	const n = 60
	for i := 0; i < n; i++ {
		require.NoError(t, tr.Insert(EncodeInt32(int32(i)), rid(uint32(i))))
	}

	for i := 0; i < n-5; i++ {
		require.NoError(t, tr.Delete(EncodeInt32(int32(i)), rid(uint32(i))))
	}

	for i := 0; i < n-5; i++ {
		got, err := tr.SearchEqual(EncodeInt32(int32(i)))
		require.NoError(t, err)
		require.Empty(t, got)
	}
	for i := n - 5; i < n; i++ {
		got, err := tr.SearchEqual(EncodeInt32(int32(i)))
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
}

func TestDeleteMissingKeyReturnsErrRecordNotExist(t *testing.T) {
	tr, _, _, _ := newTestTree(t)
	require.NoError(t, tr.Insert(EncodeInt32(1), rid(1)))

	err := tr.Delete(EncodeInt32(99), rid(99))
	require.ErrorIs(t, err, rc.ErrRecordNotExist)
}

func TestOpenTreeReopensExistingIndex(t *testing.T) {
	tr, bp, poolID, h := newTestTree(t)
	require.NoError(t, tr.Insert(EncodeInt32(3), rid(3)))

	reopened, err := OpenTree(bp, poolID, h, tr.headerPageNum)
	require.NoError(t, err)
	require.Equal(t, tr.keyLen, reopened.keyLen)
	require.Equal(t, tr.leafMax, reopened.leafMax)

	got, err := reopened.SearchEqual(EncodeInt32(3))
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestLogReplayerAppliesBufferedLeafOpsAndGatesOnLSN(t *testing.T) {
	dir := t.TempDir()
	bp := bufferpool.NewManager(nil, nil)
	poolID, err := bp.OpenFile(filepath.Join(dir, "replay.db"), 128, 8)
	require.NoError(t, err)

	pageNum, frame, err := bp.AllocatePage(poolID)
	require.NoError(t, err)
	frame.Latch.Lock()
	InitLeafNode(frame.Page, 10, 10)
	frame.Latch.Unlock()
	require.NoError(t, bp.UnpinPage(poolID, pageNum, true))

	replayer := NewLogReplayer()
	replayer.Register(ReplayTarget{BP: bp, PoolID: poolID, KeyLen: 10})

	k1 := MakeKey(EncodeInt32(1), rid(1))
	require.NoError(t, replayer.Replay(&wal.Entry{LSN: 1, Module: wal.ModuleBPlusTree, Payload: encodeNodeInsert(poolID, pageNum, true, k1, 0)}))

	stale := encodeNodeInsert(poolID, pageNum, true, MakeKey(EncodeInt32(2), rid(2)), 0)
	require.NoError(t, replayer.Replay(&wal.Entry{LSN: 1, Module: wal.ModuleBPlusTree, Payload: stale}))

	frame2, err := bp.GetPage(poolID, pageNum)
	require.NoError(t, err)
	frame2.Latch.RLock()
	leaf := AsLeafNode(frame2.Page, 10)
	require.Equal(t, 1, leaf.KeyCount())
	require.True(t, leaf.KeyAt(0).Equal(k1))
	frame2.Latch.RUnlock()
	require.NoError(t, bp.UnpinPage(poolID, pageNum, false))
}
