package trx

import (
	"sync"

	"github.com/tuannm99/novasql/internal/rc"
	"github.com/tuannm99/novasql/internal/record"
)

// touchedRecord is one row a transaction inserted or deleted, along with
// the store it lives in, so Commit/Rollback can revisit it without the
// caller having to repeat which table a RID belongs to.
type touchedRecord struct {
	table string
	store RecordStore
	rid   record.RID
}

// Trx is one MVCC transaction: a negative xid standing in for "my own
// uncommitted work" in every row header it touches, until Commit replaces
// it with a freshly allocated positive commit xid. A single Trx can span
// several tables under one Db — every call names the table so recovery
// can attribute rows to the right store.
type Trx struct {
	id  int32
	kit *Kit

	mu       sync.Mutex
	inserted []touchedRecord
	deleted  []touchedRecord
	done     bool
}

// ID returns the transaction's xid, negative-stamped in every row it has
// written but not yet committed.
func (t *Trx) ID() int32 { return t.id }

// InsertRecord stamps a freshly inserted row as visible only to this
// transaction (begin_xid = -id, end_xid = MaxXid) and logs the insert so
// recovery can find it again after a crash. table names the owning store
// for Commit/Rollback/recovery; it is never interpreted, only carried.
func (t *Trx) InsertRecord(table string, store RecordStore, rid record.RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return rc.ErrTrxAlreadyDone
	}

	err := store.VisitRecord(rid, true, func(data []byte) ([]byte, error) {
		WriteHeader(data, -t.id, MaxXid)
		return data, nil
	})
	if err != nil {
		return err
	}

	if _, err := t.kit.appendLog(encodeInsertRecord(t.id, table, rid)); err != nil {
		return err
	}
	t.inserted = append(t.inserted, touchedRecord{table: table, store: store, rid: rid})
	return nil
}

// DeleteRecord marks a visible row as being deleted by this transaction
// (end_xid = -id), refusing the write with
// rc.ErrLockedConcurrencyConflict if another in-flight transaction is
// already deleting it.
func (t *Trx) DeleteRecord(table string, store RecordStore, rid record.RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return rc.ErrTrxAlreadyDone
	}

	err := store.VisitRecord(rid, true, func(data []byte) ([]byte, error) {
		beginXid, endXid := ReadHeader(data)
		if err := CheckWriteConflict(endXid, t.id); err != nil {
			return nil, err
		}
		WriteHeader(data, beginXid, -t.id)
		return data, nil
	})
	if err != nil {
		return err
	}

	if _, err := t.kit.appendLog(encodeDeleteRecord(t.id, table, rid)); err != nil {
		return err
	}
	t.deleted = append(t.deleted, touchedRecord{table: table, store: store, rid: rid})
	return nil
}

// touchedRows flattens the records this transaction touched into the
// table/RID/kind tuples Commit/Rollback log entries carry, in touch
// order.
func (t *Trx) touchedRows() []touchedRow {
	rows := make([]touchedRow, 0, len(t.inserted)+len(t.deleted))
	for _, r := range t.inserted {
		rows = append(rows, touchedRow{Table: r.table, RID: r.rid, IsInsert: true})
	}
	for _, r := range t.deleted {
		rows = append(rows, touchedRow{Table: r.table, RID: r.rid, IsInsert: false})
	}
	return rows
}

// Commit allocates a commit xid and re-stamps every row this transaction
// touched with it: begin_xid on inserted rows, end_xid on deleted rows,
// replacing the negative self-reference every other reader was blocked
// behind. Every row is stamped inside one held lock (see DESIGN.md), so
// no scanner observes a partially committed transaction.
func (t *Trx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return rc.ErrTrxAlreadyDone
	}

	commitXid := t.kit.nextXid.Add(1)

	for _, r := range t.inserted {
		err := r.store.VisitRecord(r.rid, true, func(data []byte) ([]byte, error) {
			_, endXid := ReadHeader(data)
			WriteHeader(data, commitXid, endXid)
			return data, nil
		})
		if err != nil {
			return err
		}
	}
	for _, r := range t.deleted {
		err := r.store.VisitRecord(r.rid, true, func(data []byte) ([]byte, error) {
			beginXid, _ := ReadHeader(data)
			WriteHeader(data, beginXid, commitXid)
			return data, nil
		})
		if err != nil {
			return err
		}
	}

	lsn, err := t.kit.appendLog(encodeCommit(t.id, commitXid, t.touchedRows()))
	if err != nil {
		return err
	}
	if t.kit.log != nil {
		if err := t.kit.log.WaitLSN(lsn); err != nil {
			return err
		}
	}
	t.done = true
	return nil
}

// Rollback undoes every row this transaction touched: an inserted row is
// physically deleted (nobody else could ever have seen it — its
// begin_xid was never positive), and a deleted row's end_xid is restored
// to MaxXid.
func (t *Trx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return rc.ErrTrxAlreadyDone
	}

	for _, r := range t.inserted {
		if err := r.store.DeleteRecord(r.rid); err != nil {
			return err
		}
	}
	for _, r := range t.deleted {
		err := r.store.VisitRecord(r.rid, true, func(data []byte) ([]byte, error) {
			beginXid, _ := ReadHeader(data)
			WriteHeader(data, beginXid, MaxXid)
			return data, nil
		})
		if err != nil {
			return err
		}
	}

	if _, err := t.kit.appendLog(encodeRollback(t.id, t.touchedRows())); err != nil {
		return err
	}
	t.done = true
	return nil
}
