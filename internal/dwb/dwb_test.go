package dwb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/storage"
)

func TestAddPageThenReadPageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDiskDoubleWriteBuffer(filepath.Join(dir, "dwb.db"), 4096, 16)
	require.NoError(t, err)

	page := storage.NewPage(4096, 7)
	copy(page.Payload()[8:], []byte("staged-bytes"))

	require.NoError(t, d.AddPage(bufferpool.ID(1), 7, page))

	got, ok, err := d.ReadPage(bufferpool.ID(1), 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("staged-bytes"), got.Payload()[8:20])
}

func TestReadPageMissingKeyReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDiskDoubleWriteBuffer(filepath.Join(dir, "dwb.db"), 4096, 16)
	require.NoError(t, err)

	_, ok, err := d.ReadPage(bufferpool.ID(9), 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClearPagesRemovesOnlyThatPool(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDiskDoubleWriteBuffer(filepath.Join(dir, "dwb.db"), 4096, 16)
	require.NoError(t, err)

	p1 := storage.NewPage(4096, 1)
	p2 := storage.NewPage(4096, 1)
	require.NoError(t, d.AddPage(bufferpool.ID(1), 1, p1))
	require.NoError(t, d.AddPage(bufferpool.ID(2), 1, p2))

	require.NoError(t, d.ClearPages(bufferpool.ID(1)))

	_, ok, _ := d.ReadPage(bufferpool.ID(1), 1)
	require.False(t, ok)
	_, ok, _ = d.ReadPage(bufferpool.ID(2), 1)
	require.True(t, ok)
}

func TestReloadRecoversStagedPagesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dwb.db")

	d1, err := OpenDiskDoubleWriteBuffer(path, 4096, 16)
	require.NoError(t, err)
	page := storage.NewPage(4096, 3)
	copy(page.Payload()[8:], []byte("persisted"))
	require.NoError(t, d1.AddPage(bufferpool.ID(4), 3, page))
	require.NoError(t, d1.Close())

	d2, err := OpenDiskDoubleWriteBuffer(path, 4096, 16)
	require.NoError(t, err)
	got, ok, err := d2.ReadPage(bufferpool.ID(4), 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("persisted"), got.Payload()[8:17])
}

func TestVacuousDoubleWriteBufferIsNoOp(t *testing.T) {
	var v VacuousDoubleWriteBuffer
	require.NoError(t, v.AddPage(bufferpool.ID(1), 1, storage.NewPage(4096, 1)))
	_, ok, err := v.ReadPage(bufferpool.ID(1), 1)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, v.ClearPages(bufferpool.ID(1)))
}
