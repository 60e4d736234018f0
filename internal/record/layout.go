package record

import "github.com/tuannm99/novasql/internal/storage"

// Layout is the one page-handler interface the row and PAX formats
// share; FileHandler is written against Layout alone so it never needs
// to know which format a file uses.
type Layout interface {
	InitPage(p *storage.Page)
	HasFreeSlot(p *storage.Page) bool
	Insert(p *storage.Page, data []byte) (int, error)
	ReplayInsert(p *storage.Page, slot int, data []byte) error
	Delete(p *storage.Page, slot int) error
	Update(p *storage.Page, slot int, data []byte) error
	Read(p *storage.Page, slot int) ([]byte, error)
	Iterate(p *storage.Page, fn func(slot int, data []byte) error) error
}

// RowLayout is the fixed-record-size row-format Layout.
type RowLayout struct {
	RecordSize int
}

func (l RowLayout) InitPage(p *storage.Page)         { InitRowPage(p, l.RecordSize) }
func (l RowLayout) HasFreeSlot(p *storage.Page) bool { return AsRowPage(p).HasFreeSlot() }
func (l RowLayout) Insert(p *storage.Page, data []byte) (int, error) {
	return AsRowPage(p).Insert(data)
}
func (l RowLayout) ReplayInsert(p *storage.Page, slot int, data []byte) error {
	return AsRowPage(p).InsertAt(slot, data)
}
func (l RowLayout) Delete(p *storage.Page, slot int) error { return AsRowPage(p).Delete(slot) }
func (l RowLayout) Update(p *storage.Page, slot int, data []byte) error {
	return AsRowPage(p).Update(slot, data)
}
func (l RowLayout) Read(p *storage.Page, slot int) ([]byte, error) { return AsRowPage(p).Read(slot) }
func (l RowLayout) Iterate(p *storage.Page, fn func(slot int, data []byte) error) error {
	return AsRowPage(p).Iterate(fn)
}

// PaxLayout is the column-major PAX Layout.
type PaxLayout struct {
	Schema Schema
}

func (l PaxLayout) InitPage(p *storage.Page)         { InitPaxPage(p, l.Schema) }
func (l PaxLayout) HasFreeSlot(p *storage.Page) bool { return AsPaxPage(p, l.Schema).HasFreeSlot() }
func (l PaxLayout) Insert(p *storage.Page, data []byte) (int, error) {
	return AsPaxPage(p, l.Schema).Insert(data)
}
func (l PaxLayout) ReplayInsert(p *storage.Page, slot int, data []byte) error {
	return AsPaxPage(p, l.Schema).InsertAt(slot, data)
}
func (l PaxLayout) Delete(p *storage.Page, slot int) error {
	return AsPaxPage(p, l.Schema).Delete(slot)
}
func (l PaxLayout) Update(p *storage.Page, slot int, data []byte) error {
	return AsPaxPage(p, l.Schema).Update(slot, data)
}
func (l PaxLayout) Read(p *storage.Page, slot int) ([]byte, error) {
	return AsPaxPage(p, l.Schema).Read(slot)
}
func (l PaxLayout) Iterate(p *storage.Page, fn func(slot int, data []byte) error) error {
	return AsPaxPage(p, l.Schema).Iterate(fn)
}

// FillChunk is only meaningful for PaxLayout; ChunkFileScanner type-asserts
// for it rather than widening Layout with a method row-format pages can't
// implement efficiently.
func (l PaxLayout) FillChunk(p *storage.Page, chunk *Chunk) {
	AsPaxPage(p, l.Schema).FillChunk(chunk)
}
