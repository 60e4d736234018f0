package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/tuannm99/novasql/internal/btree"
	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/record"
	"github.com/tuannm99/novasql/internal/trx"
)

// index is one open B+tree alongside the user field it indexes. Each
// index lives in its own buffer-pool file, so it carries its own poolID
// rather than sharing the table's data-file poolID.
type index struct {
	field  int // index into Table.meta.Fields
	poolID bufferpool.ID
	tree   *btree.Tree
}

// Table owns one record file handler plus every index built over it:
// inserting a row appends it via the record manager and then maintains
// every index in turn.
type Table struct {
	name   string
	bp     *bufferpool.Manager
	poolID bufferpool.ID
	layout record.Layout
	store  *record.FileHandler
	meta   TableMeta
	idx    []index
}

// Name returns the table's catalog name.
func (t *Table) Name() string { return t.name }

// MetaFields returns the table's user-visible field definitions, in
// declaration order (the order MakeRecord/InsertRecord expect values in).
func (t *Table) MetaFields() []FieldMeta { return t.meta.Fields }

// schema is the field layout the record manager sees: two hidden 4-byte
// MVCC columns (begin_xid, end_xid) ahead of every user field, so row and
// PAX layouts both read/write the full row through one contract
// (record.Layout.Insert requires len(row) == schema.RowSize()).
func (t *Table) schema() record.Schema {
	fields := make([]record.Field, 0, len(t.meta.Fields)+2)
	fields = append(fields,
		record.Field{ID: 0, Width: 4}, // begin_xid
		record.Field{ID: 1, Width: 4}, // end_xid
	)
	for i, f := range t.meta.Fields {
		fields = append(fields, record.Field{ID: uint16(2 + i), Width: uint16(f.attrWidth())})
	}
	return record.Schema{Fields: fields}
}

// MakeRecord packs values (one per t.meta.Fields entry, in order) into a
// full row: a zeroed MVCC header followed by each field's fixed-width
// encoding. The header is stamped for real once the row is registered
// with a transaction.
func (t *Table) MakeRecord(values []any) ([]byte, error) {
	if len(values) != len(t.meta.Fields) {
		return nil, fmt.Errorf("engine: table %q expects %d values, got %d", t.name, len(t.meta.Fields), len(values))
	}
	row := make([]byte, trx.HeaderSize, t.schema().RowSize())
	for i, f := range t.meta.Fields {
		enc, err := EncodeValue(f.Type, f.Width, values[i])
		if err != nil {
			return nil, fmt.Errorf("engine: field %q: %w", f.Name, err)
		}
		row = append(row, enc...)
	}
	return row, nil
}

// decodeRow strips the MVCC header and decodes each field in order.
func (t *Table) decodeRow(data []byte) ([]any, error) {
	body := data[trx.HeaderSize:]
	off := 0
	values := make([]any, len(t.meta.Fields))
	for i, f := range t.meta.Fields {
		w := f.attrWidth()
		v, err := DecodeValue(f.Type, body[off:off+w])
		if err != nil {
			return nil, err
		}
		values[i] = v
		off += w
	}
	return values, nil
}

func (t *Table) fieldAttr(fieldIdx int, values []any) ([]byte, error) {
	f := t.meta.Fields[fieldIdx]
	return EncodeValue(f.Type, f.Width, values[fieldIdx])
}

// InsertRecord physically appends the row, inserts it into every index,
// rolling back any index already populated if a later one fails, and
// finally hands the new RID to tx so the MVCC header gets stamped and
// the insert is logged.
func (t *Table) InsertRecord(tx *trx.Trx, values []any) (record.RID, error) {
	row, err := t.MakeRecord(values)
	if err != nil {
		return record.RID{}, err
	}

	rid, err := t.store.InsertRecord(row)
	if err != nil {
		return record.RID{}, err
	}

	applied := 0
	for _, ix := range t.idx {
		attr, err := t.fieldAttr(ix.field, values)
		if err != nil {
			t.rollbackIndexInserts(applied, values, rid)
			_ = t.store.DeleteRecord(rid)
			return record.RID{}, err
		}
		if err := ix.tree.Insert(attr, rid); err != nil {
			t.rollbackIndexInserts(applied, values, rid)
			_ = t.store.DeleteRecord(rid)
			return record.RID{}, err
		}
		applied++
	}

	if err := tx.InsertRecord(t.name, t.store, rid); err != nil {
		t.rollbackIndexInserts(len(t.idx), values, rid)
		_ = t.store.DeleteRecord(rid)
		return record.RID{}, err
	}
	return rid, nil
}

func (t *Table) rollbackIndexInserts(count int, values []any, rid record.RID) {
	for i := 0; i < count; i++ {
		ix := t.idx[i]
		if attr, err := t.fieldAttr(ix.field, values); err == nil {
			_ = ix.tree.Delete(attr, rid)
		}
	}
}

// DeleteRecord marks rid deleted under tx (a negative end_xid stamp) and
// removes it from every index; index entries are found from the row's
// current values, read before the stamp takes effect.
func (t *Table) DeleteRecord(tx *trx.Trx, rid record.RID) error {
	data, err := t.store.GetRecord(rid)
	if err != nil {
		return err
	}
	values, err := t.decodeRow(data)
	if err != nil {
		return err
	}

	if err := tx.DeleteRecord(t.name, t.store, rid); err != nil {
		return err
	}

	for _, ix := range t.idx {
		attr, err := t.fieldAttr(ix.field, values)
		if err != nil {
			return err
		}
		if err := ix.tree.Delete(attr, rid); err != nil {
			return err
		}
	}
	return nil
}

// Row is one record a scanner yields, already decoded into typed values.
type Row struct {
	RID    record.RID
	Values []any
}

// RecordScanner wraps record.RecordFileScanner with MVCC visibility
// filtering and value decoding.
type RecordScanner struct {
	table *Table
	inner *record.RecordFileScanner
}

func (s *RecordScanner) Scan(fn func(Row) error) error {
	return s.inner.Scan(func(rec record.Record) error {
		values, err := s.table.decodeRow(rec.Data)
		if err != nil {
			return err
		}
		return fn(Row{RID: rec.RID, Values: values})
	})
}

// GetRecordScanner returns a row-at-a-time scanner over every record
// visible to tx, usable whether the table's backing layout is ROW or PAX
// since both satisfy record.Layout including Iterate.
func (t *Table) GetRecordScanner(tx *trx.Trx, write bool) *RecordScanner {
	readerXid := tx.ID()
	pred := func(data []byte) bool {
		beginXid, endXid := trx.ReadHeader(data)
		return trx.Visible(beginXid, endXid, readerXid)
	}
	inner := record.NewRecordFileScanner(t.bp, t.poolID, t.layout, write, pred)
	return &RecordScanner{table: t, inner: inner}
}

// ChunkScanner wraps record.ChunkFileScanner with MVCC visibility
// filtering applied after each page's columns are bulk-copied, since
// ChunkFileScanner has no per-row predicate hook the way
// RecordFileScanner does.
type ChunkScanner struct {
	table     *Table
	inner     *record.ChunkFileScanner
	readerXid int32
}

func (s *ChunkScanner) Scan(fn func(*record.Chunk) error) error {
	return s.inner.Scan(func(c *record.Chunk) error {
		filtered := s.table.filterVisible(c, s.readerXid)
		if filtered.Rows == 0 {
			return nil
		}
		return fn(filtered)
	})
}

// filterVisible copies only the rows of c visible to readerXid into a
// fresh Chunk, reading begin_xid/end_xid straight out of columns 0 and 1
// (the two hidden MVCC fields every table schema leads with).
func (t *Table) filterVisible(c *record.Chunk, readerXid int32) *record.Chunk {
	out := record.NewChunk(t.schema())
	for row := 0; row < c.Rows; row++ {
		beginXid := int32(binary.BigEndian.Uint32(c.Columns[0].Data[row*4 : row*4+4]))
		endXid := int32(binary.BigEndian.Uint32(c.Columns[1].Data[row*4 : row*4+4]))
		if !trx.Visible(beginXid, endXid, readerXid) {
			continue
		}
		for i, col := range c.Columns {
			w := col.Width
			out.Columns[i].Data = append(out.Columns[i].Data, col.Data[row*w:row*w+w]...)
		}
		out.Rows++
	}
	return out
}

// GetChunkScanner returns a PAX-only chunk scanner; ROW-format tables
// have no bulk column layout to scan in chunks.
func (t *Table) GetChunkScanner(tx *trx.Trx, write bool) (*ChunkScanner, error) {
	if t.meta.Format != FormatPAX {
		return nil, fmt.Errorf("engine: table %q is not PAX-formatted, has no chunk scanner", t.name)
	}
	inner := record.NewChunkFileScanner(t.bp, t.poolID, t.layout.(record.PaxLayout), write)
	return &ChunkScanner{table: t, inner: inner, readerXid: tx.ID()}, nil
}

// recordReplayTarget builds the registration record.LogReplayer needs for
// this table's data file.
func (t *Table) recordReplayTarget() record.ReplayTarget {
	return record.ReplayTarget{BP: t.bp, PoolID: t.poolID, Layout: t.layout}
}

// btreeReplayTargets builds the registration btree.LogReplayer needs for
// every index built over this table.
func (t *Table) btreeReplayTargets() []btree.ReplayTarget {
	out := make([]btree.ReplayTarget, len(t.idx))
	for i, ix := range t.idx {
		out[i] = btree.ReplayTarget{BP: t.bp, PoolID: ix.poolID, KeyLen: ix.tree.KeyLen()}
	}
	return out
}
