package record

import (
	"encoding/binary"

	"github.com/tuannm99/novasql/internal/rc"
	"github.com/tuannm99/novasql/internal/storage"
)

// RowPage is the row-format page handler: a header (record size, slot
// count, allocated count) followed by a slot bitmap and fixed-size slots
// holding record bytes verbatim.
type RowPage struct {
	p *storage.Page
}

func AsRowPage(p *storage.Page) RowPage { return RowPage{p: p} }

const rowPageHeaderSize = 2 + 2 + 2 // recordSize, slotCount, allocatedCount

// InitRowPage lays out a fresh row page sized to hold as many recordSize
// slots as the payload allows.
func InitRowPage(p *storage.Page, recordSize int) RowPage {
	rp := RowPage{p: p}
	avail := len(p.Payload()) - rowPageHeaderSize
	slotCount := 0
	for {
		next := slotCount + 1
		if bitmapBytes(next)+next*recordSize > avail {
			break
		}
		slotCount = next
	}
	rp.setRecordSize(uint16(recordSize))
	rp.setSlotCount(uint16(slotCount))
	rp.setAllocatedCount(0)
	bm := rp.bitmap()
	for i := range bm {
		bm[i] = 0
	}
	return rp
}

func (rp RowPage) header() []byte { return rp.p.Payload()[:rowPageHeaderSize] }

func (rp RowPage) RecordSize() int { return int(binary.LittleEndian.Uint16(rp.header()[0:2])) }
func (rp RowPage) setRecordSize(v uint16) {
	binary.LittleEndian.PutUint16(rp.header()[0:2], v)
}

func (rp RowPage) SlotCount() int { return int(binary.LittleEndian.Uint16(rp.header()[2:4])) }
func (rp RowPage) setSlotCount(v uint16) {
	binary.LittleEndian.PutUint16(rp.header()[2:4], v)
}

func (rp RowPage) AllocatedCount() int { return int(binary.LittleEndian.Uint16(rp.header()[4:6])) }
func (rp RowPage) setAllocatedCount(v uint16) {
	binary.LittleEndian.PutUint16(rp.header()[4:6], v)
}

func (rp RowPage) bitmap() []byte {
	n := bitmapBytes(rp.SlotCount())
	start := rowPageHeaderSize
	return rp.p.Payload()[start : start+n]
}

func (rp RowPage) slotsRegion() []byte {
	start := rowPageHeaderSize + bitmapBytes(rp.SlotCount())
	return rp.p.Payload()[start:]
}

func (rp RowPage) slotBytes(slot int) []byte {
	rs := rp.RecordSize()
	region := rp.slotsRegion()
	return region[slot*rs : (slot+1)*rs]
}

// Insert writes data into the first free slot, returning its index.
func (rp RowPage) Insert(data []byte) (int, error) {
	if len(data) != rp.RecordSize() {
		return 0, rc.ErrInternal
	}
	slot, ok := firstFree(rp.bitmap(), rp.SlotCount())
	if !ok {
		return 0, rc.ErrBufferPoolNoBuf // page full; caller tries the next page
	}
	copy(rp.slotBytes(slot), data)
	bitSet(rp.bitmap(), slot, true)
	rp.setAllocatedCount(uint16(rp.AllocatedCount() + 1))
	return slot, nil
}

// InsertAt writes data into a specific slot and marks it occupied,
// bypassing the free-slot scan — used only by log replay, which must
// reproduce the exact slot a live insert chose.
func (rp RowPage) InsertAt(slot int, data []byte) error {
	if len(data) != rp.RecordSize() {
		return rc.ErrInternal
	}
	copy(rp.slotBytes(slot), data)
	if !bitGet(rp.bitmap(), slot) {
		bitSet(rp.bitmap(), slot, true)
		rp.setAllocatedCount(uint16(rp.AllocatedCount() + 1))
	}
	return nil
}

func (rp RowPage) Delete(slot int) error {
	if !rp.occupied(slot) {
		return rc.ErrRecordNotExist
	}
	bitSet(rp.bitmap(), slot, false)
	rp.setAllocatedCount(uint16(rp.AllocatedCount() - 1))
	return nil
}

func (rp RowPage) Update(slot int, data []byte) error {
	if !rp.occupied(slot) {
		return rc.ErrRecordNotExist
	}
	if len(data) != rp.RecordSize() {
		return rc.ErrInternal
	}
	copy(rp.slotBytes(slot), data)
	return nil
}

func (rp RowPage) Read(slot int) ([]byte, error) {
	if !rp.occupied(slot) {
		return nil, rc.ErrRecordNotExist
	}
	out := make([]byte, rp.RecordSize())
	copy(out, rp.slotBytes(slot))
	return out, nil
}

func (rp RowPage) occupied(slot int) bool {
	if slot < 0 || slot >= rp.SlotCount() {
		return false
	}
	return bitGet(rp.bitmap(), slot)
}

func (rp RowPage) HasFreeSlot() bool {
	_, ok := firstFree(rp.bitmap(), rp.SlotCount())
	return ok
}

// Iterate walks occupied slots in ascending order.
func (rp RowPage) Iterate(fn func(slot int, data []byte) error) error {
	for s := 0; s < rp.SlotCount(); s++ {
		if !rp.occupied(s) {
			continue
		}
		if err := fn(s, rp.slotBytes(s)); err != nil {
			return err
		}
	}
	return nil
}
