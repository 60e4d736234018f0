// Package trx implements a multi-version concurrency control transaction
// manager over per-row begin/end transaction ids, snapshot visibility,
// commit/rollback, and log-driven recovery.
package trx

import (
	"encoding/binary"
	"math"

	"github.com/tuannm99/novasql/internal/rc"
)

// HeaderSize is the width of the hidden begin_xid/end_xid pair every row
// in an MVCC-managed table carries ahead of its own column bytes.
const HeaderSize = 8

// MaxXid marks a row visible to every transaction that can ever observe
// it: a row's end_xid starts at MaxXid and is only ever lowered once a
// deleting transaction stamps its own (negated) id, or raised to a real
// commit xid once that delete commits.
const MaxXid int32 = math.MaxInt32

// ReadHeader decodes the begin_xid/end_xid pair from the front of a row's
// raw bytes.
func ReadHeader(data []byte) (beginXid, endXid int32) {
	beginXid = int32(binary.BigEndian.Uint32(data[0:4]))
	endXid = int32(binary.BigEndian.Uint32(data[4:8]))
	return beginXid, endXid
}

// WriteHeader stamps beginXid/endXid into the front of data in place.
func WriteHeader(data []byte, beginXid, endXid int32) {
	binary.BigEndian.PutUint32(data[0:4], uint32(beginXid))
	binary.BigEndian.PutUint32(data[4:8], uint32(endXid))
}

// Visible decides whether a row stamped (beginXid, endXid) is visible to a
// transaction reading as readerXid:
//
//   - a negative begin_xid marks a row inserted by an uncommitted
//     transaction: visible only to that transaction's own reads;
//   - a negative end_xid marks a row a transaction is in the middle of
//     deleting: visible to everyone except that transaction itself (its
//     own reads must not see a row it has already deleted);
//   - otherwise both are committed xids and the row is visible to readers
//     whose xid falls in the half-open window [beginXid, endXid).
func Visible(beginXid, endXid, readerXid int32) bool {
	if beginXid < 0 {
		return -beginXid == readerXid
	}
	if endXid < 0 {
		return -endXid != readerXid
	}
	return beginXid <= readerXid && readerXid < endXid
}

// CheckWriteConflict reports whether a transaction writerXid may delete or
// update a row currently stamped with endXid, returning
// rc.ErrLockedConcurrencyConflict when some other in-flight transaction
// already holds it.
func CheckWriteConflict(endXid, writerXid int32) error {
	if endXid < 0 && -endXid != writerXid {
		return rc.ErrLockedConcurrencyConflict
	}
	return nil
}
