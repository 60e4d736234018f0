package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateGetUnpinFlushRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil, nil)
	id, err := m.OpenFile(filepath.Join(dir, "data.db"), 4096, 4)
	require.NoError(t, err)

	pageNum, frame, err := m.AllocatePage(id)
	require.NoError(t, err)
	require.NotZero(t, pageNum)

	copy(frame.Page.Payload(), []byte("hello world"))
	require.NoError(t, m.UnpinPage(id, pageNum, true))
	require.NoError(t, m.FlushPage(id, pageNum))
	require.NoError(t, m.Close(id))

	id2, err := m.OpenFile(filepath.Join(dir, "data.db"), 4096, 4)
	require.NoError(t, err)
	frame2, err := m.GetPage(id2, pageNum)
	require.NoError(t, err)
	require.True(t, frame2.Page.VerifyChecksum())
	require.Equal(t, []byte("hello world"), frame2.Page.Payload()[:11])
}

func TestDisposeFreesBitForReuse(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil, nil)
	id, err := m.OpenFile(filepath.Join(dir, "data.db"), 4096, 4)
	require.NoError(t, err)

	pageNum, _, err := m.AllocatePage(id)
	require.NoError(t, err)
	require.NoError(t, m.UnpinPage(id, pageNum, false))
	require.NoError(t, m.DisposePage(id, pageNum))

	reused, _, err := m.AllocatePage(id)
	require.NoError(t, err)
	require.Equal(t, pageNum, reused)
}

func TestEvictionRefusesWhenAllFramesPinned(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil, nil)
	id, err := m.OpenFile(filepath.Join(dir, "data.db"), 4096, 2)
	require.NoError(t, err)

	p1, _, err := m.AllocatePage(id)
	require.NoError(t, err)
	p2, _, err := m.AllocatePage(id)
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)

	_, _, err = m.AllocatePage(id)
	require.Error(t, err)
}

func TestEvictionReclaimsUnpinnedLRUFrame(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil, nil)
	id, err := m.OpenFile(filepath.Join(dir, "data.db"), 4096, 2)
	require.NoError(t, err)

	p1, _, err := m.AllocatePage(id)
	require.NoError(t, err)
	require.NoError(t, m.UnpinPage(id, p1, true))

	p2, _, err := m.AllocatePage(id)
	require.NoError(t, err)
	require.NoError(t, m.UnpinPage(id, p2, true))

	// Both frames unpinned and at capacity; a third allocation must evict p1
	// (older AccessedAt) and succeed rather than erroring.
	p3, _, err := m.AllocatePage(id)
	require.NoError(t, err)
	require.NotEqual(t, p1, p3)
}

func TestRedoAllocateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil, nil)
	id, err := m.OpenFile(filepath.Join(dir, "data.db"), 4096, 4)
	require.NoError(t, err)

	require.NoError(t, m.RedoAllocatePage(id, 5))
	require.NoError(t, m.RedoAllocatePage(id, 5))

	require.NoError(t, m.FlushAllPages(id))
}
