package trx

import (
	"encoding/binary"
	"fmt"

	"github.com/tuannm99/novasql/internal/record"
)

// trxOp tags a TRANSACTION log entry's payload kind. INSERT_RECORD and
// DELETE_RECORD carry only xid/table bookkeeping, not row content: the
// physical bytes (including the begin_xid/end_xid header) are already
// made durable by the record manager's own logging
// (internal/record/file.go's encodeInsert/encodeUpdate), so replaying
// those entries restores the header along with everything else. COMMIT
// and ROLLBACK are self-contained, carrying every row the transaction
// touched, so their replay repeats the commit-time re-stamp or
// rollback-time undo from this log alone; the same writes also reach the
// record manager's log as UPDATE/DELETE entries when the store has a log
// handler.
type trxOp byte

const (
	opInsertRecord trxOp = iota
	opDeleteRecord
	opCommit
	opRollback
)

// touchedRow is one row a transaction inserted or deleted, tagged with
// the table it lives in so COMMIT/ROLLBACK replay can find the right
// store without guessing from the RID alone.
type touchedRow struct {
	Table    string
	RID      record.RID
	IsInsert bool
}

type logOp struct {
	Op        trxOp
	Xid       int32
	Table     string
	RID       record.RID
	CommitXid int32
	Rows      []touchedRow
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func readString(b []byte) (string, []byte) {
	n := binary.BigEndian.Uint16(b[0:2])
	b = b[2:]
	return string(b[:n]), b[n:]
}

func appendRID(buf []byte, rid record.RID) []byte {
	buf = binary.BigEndian.AppendUint32(buf, rid.PageNum)
	buf = binary.BigEndian.AppendUint16(buf, rid.Slot)
	return buf
}

func readRID(b []byte) (record.RID, []byte) {
	rid := record.RID{
		PageNum: binary.BigEndian.Uint32(b[0:4]),
		Slot:    binary.BigEndian.Uint16(b[4:6]),
	}
	return rid, b[6:]
}

func encodeInsertRecord(xid int32, table string, rid record.RID) []byte {
	buf := make([]byte, 0, 1+4+2+len(table)+6)
	buf = append(buf, byte(opInsertRecord))
	buf = binary.BigEndian.AppendUint32(buf, uint32(xid))
	buf = appendString(buf, table)
	buf = appendRID(buf, rid)
	return buf
}

func encodeDeleteRecord(xid int32, table string, rid record.RID) []byte {
	buf := make([]byte, 0, 1+4+2+len(table)+6)
	buf = append(buf, byte(opDeleteRecord))
	buf = binary.BigEndian.AppendUint32(buf, uint32(xid))
	buf = appendString(buf, table)
	buf = appendRID(buf, rid)
	return buf
}

func encodeTouchedRows(buf []byte, rows []touchedRow) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(rows)))
	for _, r := range rows {
		buf = appendString(buf, r.Table)
		buf = appendRID(buf, r.RID)
		if r.IsInsert {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

func decodeTouchedRows(b []byte) ([]touchedRow, []byte) {
	n := binary.BigEndian.Uint32(b[0:4])
	b = b[4:]
	rows := make([]touchedRow, n)
	for i := range rows {
		var table string
		var rid record.RID
		table, b = readString(b)
		rid, b = readRID(b)
		rows[i] = touchedRow{Table: table, RID: rid, IsInsert: b[0] == 1}
		b = b[1:]
	}
	return rows, b
}

func encodeCommit(xid, commitXid int32, rows []touchedRow) []byte {
	buf := make([]byte, 0, 1+4+4+4+len(rows)*9)
	buf = append(buf, byte(opCommit))
	buf = binary.BigEndian.AppendUint32(buf, uint32(xid))
	buf = binary.BigEndian.AppendUint32(buf, uint32(commitXid))
	buf = encodeTouchedRows(buf, rows)
	return buf
}

func encodeRollback(xid int32, rows []touchedRow) []byte {
	buf := make([]byte, 0, 1+4+4+len(rows)*9)
	buf = append(buf, byte(opRollback))
	buf = binary.BigEndian.AppendUint32(buf, uint32(xid))
	buf = encodeTouchedRows(buf, rows)
	return buf
}

func decodeLogOp(payload []byte) (logOp, error) {
	if len(payload) < 1 {
		return logOp{}, fmt.Errorf("trx: empty log payload")
	}
	op := trxOp(payload[0])
	b := payload[1:]
	switch op {
	case opInsertRecord, opDeleteRecord:
		xid := int32(binary.BigEndian.Uint32(b[0:4]))
		table, b := readString(b[4:])
		rid, _ := readRID(b)
		return logOp{Op: op, Xid: xid, Table: table, RID: rid}, nil
	case opCommit:
		xid := int32(binary.BigEndian.Uint32(b[0:4]))
		commitXid := int32(binary.BigEndian.Uint32(b[4:8]))
		rows, _ := decodeTouchedRows(b[8:])
		return logOp{Op: op, Xid: xid, CommitXid: commitXid, Rows: rows}, nil
	case opRollback:
		xid := int32(binary.BigEndian.Uint32(b[0:4]))
		rows, _ := decodeTouchedRows(b[4:])
		return logOp{Op: op, Xid: xid, Rows: rows}, nil
	default:
		return logOp{}, fmt.Errorf("trx: unknown log op %d", op)
	}
}
