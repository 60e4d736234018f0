// Package record implements the row-format and PAX-format page layouts
// behind one slot-bitmap page handler, the record file handler that
// aggregates pages into insert/delete/update/visit operations, the
// record and chunk scanners, and the record log replayer.
package record

import "fmt"

// RID (record identifier) is a record's stable address: a page number
// plus a slot index within that page.
type RID struct {
	PageNum uint32
	Slot    uint16
}

func (r RID) String() string { return fmt.Sprintf("(%d,%d)", r.PageNum, r.Slot) }
