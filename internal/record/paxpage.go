package record

import (
	"encoding/binary"

	"github.com/tuannm99/novasql/internal/rc"
	"github.com/tuannm99/novasql/internal/storage"
)

// Field describes one column's stable identity and fixed byte width
// within a PAX page's column region.
type Field struct {
	ID    uint16
	Width uint16
}

// Schema is a fixed field layout shared by every PAX page of one file.
// RowSize is the sum of field widths, used to size row-format pages for
// files that use the row layout instead.
type Schema struct {
	Fields []Field
}

func (s Schema) RowSize() int {
	n := 0
	for _, f := range s.Fields {
		n += int(f.Width)
	}
	return n
}

func (s Schema) columnOffset(fieldIdx int) int {
	off := 0
	for i := 0; i < fieldIdx; i++ {
		off += int(s.Fields[i].Width)
	}
	return off
}

// Column is one field's contiguous byte buffer across every slot copied
// into a Chunk, keyed by field id.
type Column struct {
	FieldID uint16
	Width   int
	Data    []byte // Width * number-of-rows-copied bytes
}

// Chunk is a batch of columns filled by bulk-copying contiguous column
// bytes from PAX pages; ChunkFileScanner allocates one and refills it for
// each page it visits.
type Chunk struct {
	Columns []Column
	Rows    int
}

func NewChunk(schema Schema) *Chunk {
	c := &Chunk{Columns: make([]Column, len(schema.Fields))}
	for i, f := range schema.Fields {
		c.Columns[i] = Column{FieldID: f.ID, Width: int(f.Width)}
	}
	return c
}

func (c *Chunk) Reset() {
	c.Rows = 0
	for i := range c.Columns {
		c.Columns[i].Data = c.Columns[i].Data[:0]
	}
}

// PaxPage is the column-major page handler: the same slot bitmap and
// per-slot identity as RowPage, but each field's bytes live in their own
// contiguous column region rather than being interleaved per record.
type PaxPage struct {
	p      *storage.Page
	schema Schema
}

func AsPaxPage(p *storage.Page, schema Schema) PaxPage { return PaxPage{p: p, schema: schema} }

const paxPageHeaderSize = 2 + 2 // slotCount, allocatedCount

func InitPaxPage(p *storage.Page, schema Schema) PaxPage {
	pp := PaxPage{p: p, schema: schema}
	rowSize := schema.RowSize()
	avail := len(p.Payload()) - paxPageHeaderSize
	slotCount := 0
	for {
		next := slotCount + 1
		if bitmapBytes(next)+next*rowSize > avail {
			break
		}
		slotCount = next
	}
	pp.setSlotCount(uint16(slotCount))
	pp.setAllocatedCount(0)
	bm := pp.bitmap()
	for i := range bm {
		bm[i] = 0
	}
	return pp
}

func (pp PaxPage) header() []byte { return pp.p.Payload()[:paxPageHeaderSize] }

func (pp PaxPage) SlotCount() int { return int(binary.LittleEndian.Uint16(pp.header()[0:2])) }
func (pp PaxPage) setSlotCount(v uint16) {
	binary.LittleEndian.PutUint16(pp.header()[0:2], v)
}

func (pp PaxPage) AllocatedCount() int { return int(binary.LittleEndian.Uint16(pp.header()[2:4])) }
func (pp PaxPage) setAllocatedCount(v uint16) {
	binary.LittleEndian.PutUint16(pp.header()[2:4], v)
}

func (pp PaxPage) bitmap() []byte {
	n := bitmapBytes(pp.SlotCount())
	return pp.p.Payload()[paxPageHeaderSize : paxPageHeaderSize+n]
}

func (pp PaxPage) columnsRegion() []byte {
	start := paxPageHeaderSize + bitmapBytes(pp.SlotCount())
	return pp.p.Payload()[start:]
}

// fieldColumn returns the full slotCount-wide byte range for one field.
func (pp PaxPage) fieldColumn(fieldIdx int) []byte {
	f := pp.schema.Fields[fieldIdx]
	off := pp.schema.columnOffset(fieldIdx) * pp.SlotCount()
	return pp.columnsRegion()[off : off+int(f.Width)*pp.SlotCount()]
}

func (pp PaxPage) occupied(slot int) bool {
	if slot < 0 || slot >= pp.SlotCount() {
		return false
	}
	return bitGet(pp.bitmap(), slot)
}

func (pp PaxPage) HasFreeSlot() bool {
	_, ok := firstFree(pp.bitmap(), pp.SlotCount())
	return ok
}

// Insert splits row-encoded bytes (one contiguous record, schema.RowSize()
// long) across each field's column region at the chosen slot.
func (pp PaxPage) Insert(row []byte) (int, error) {
	if len(row) != pp.schema.RowSize() {
		return 0, rc.ErrInternal
	}
	slot, ok := firstFree(pp.bitmap(), pp.SlotCount())
	if !ok {
		return 0, rc.ErrBufferPoolNoBuf
	}
	pp.writeRow(slot, row)
	bitSet(pp.bitmap(), slot, true)
	pp.setAllocatedCount(uint16(pp.AllocatedCount() + 1))
	return slot, nil
}

func (pp PaxPage) writeRow(slot int, row []byte) {
	rowOff := 0
	for i, f := range pp.schema.Fields {
		col := pp.fieldColumn(i)
		w := int(f.Width)
		copy(col[slot*w:(slot+1)*w], row[rowOff:rowOff+w])
		rowOff += w
	}
}

func (pp PaxPage) readRow(slot int) []byte {
	out := make([]byte, pp.schema.RowSize())
	rowOff := 0
	for i, f := range pp.schema.Fields {
		col := pp.fieldColumn(i)
		w := int(f.Width)
		copy(out[rowOff:rowOff+w], col[slot*w:(slot+1)*w])
		rowOff += w
	}
	return out
}

// InsertAt writes row at a specific slot and marks it occupied, bypassing
// the free-slot scan — used only by log replay.
func (pp PaxPage) InsertAt(slot int, row []byte) error {
	if len(row) != pp.schema.RowSize() {
		return rc.ErrInternal
	}
	pp.writeRow(slot, row)
	if !bitGet(pp.bitmap(), slot) {
		bitSet(pp.bitmap(), slot, true)
		pp.setAllocatedCount(uint16(pp.AllocatedCount() + 1))
	}
	return nil
}

func (pp PaxPage) Delete(slot int) error {
	if !pp.occupied(slot) {
		return rc.ErrRecordNotExist
	}
	bitSet(pp.bitmap(), slot, false)
	pp.setAllocatedCount(uint16(pp.AllocatedCount() - 1))
	return nil
}

func (pp PaxPage) Update(slot int, row []byte) error {
	if !pp.occupied(slot) {
		return rc.ErrRecordNotExist
	}
	if len(row) != pp.schema.RowSize() {
		return rc.ErrInternal
	}
	pp.writeRow(slot, row)
	return nil
}

func (pp PaxPage) Read(slot int) ([]byte, error) {
	if !pp.occupied(slot) {
		return nil, rc.ErrRecordNotExist
	}
	return pp.readRow(slot), nil
}

// Iterate walks occupied slots in ascending order, materializing each as a
// row-encoded byte slice (used by RecordFileScanner so row-at-a-time scans
// work the same over either layout).
func (pp PaxPage) Iterate(fn func(slot int, data []byte) error) error {
	for s := 0; s < pp.SlotCount(); s++ {
		if !pp.occupied(s) {
			continue
		}
		if err := fn(s, pp.readRow(s)); err != nil {
			return err
		}
	}
	return nil
}

// FillChunk bulk-copies every occupied slot's column bytes into chunk,
// appending to whatever it already holds, skipping deleted slots.
func (pp PaxPage) FillChunk(chunk *Chunk) {
	for s := 0; s < pp.SlotCount(); s++ {
		if !pp.occupied(s) {
			continue
		}
		for i := range chunk.Columns {
			col := pp.fieldColumn(i)
			w := chunk.Columns[i].Width
			chunk.Columns[i].Data = append(chunk.Columns[i].Data, col[s*w:(s+1)*w]...)
		}
		chunk.Rows++
	}
}
