package trx

import (
	"fmt"

	"github.com/tuannm99/novasql/internal/wal"
)

// ReplayTarget is one table a MvccTrxLogReplayer can re-stamp rows in
// during recovery, looked up by the same name Trx.InsertRecord/
// DeleteRecord were called with. Db registers one per table.
type ReplayTarget struct {
	Name  string
	Store RecordStore
}

// MvccTrxLogReplayer replays the TRANSACTION log and, once every entry
// has been seen, rolls back any transaction recovery found still
// in-flight: a transaction with no COMMIT or ROLLBACK entry never
// finished, so its effects must not survive the crash.
type MvccTrxLogReplayer struct {
	kit     *Kit
	targets map[string]RecordStore

	// pending maps an xid still without a COMMIT/ROLLBACK entry to the
	// rows it has touched so far, in touch order.
	pending map[int32][]touchedRow
}

// NewMvccTrxLogReplayer builds a replayer over kit, whose xid counter is
// advanced past every xid recovery observes.
func NewMvccTrxLogReplayer(kit *Kit) *MvccTrxLogReplayer {
	return &MvccTrxLogReplayer{
		kit:     kit,
		targets: make(map[string]RecordStore),
		pending: make(map[int32][]touchedRow),
	}
}

// Register tells the replayer which store owns the rows named for table
// t.Name in TRANSACTION log entries.
func (r *MvccTrxLogReplayer) Register(t ReplayTarget) {
	r.targets[t.Name] = t.Store
}

// Replay dispatches one TRANSACTION log entry. INSERT_RECORD/DELETE_RECORD
// entries only track which table/RID an in-flight xid has touched (the
// row bytes themselves were already restored by the record manager's own
// replay); COMMIT/ROLLBACK re-run the same re-stamp/undo Trx.Commit and
// Trx.Rollback perform live, then drop the xid from pending.
func (r *MvccTrxLogReplayer) Replay(e *wal.Entry) error {
	op, err := decodeLogOp(e.Payload)
	if err != nil {
		return err
	}

	r.kit.restoreXid(op.Xid)

	switch op.Op {
	case opInsertRecord:
		r.pending[op.Xid] = append(r.pending[op.Xid], touchedRow{Table: op.Table, RID: op.RID, IsInsert: true})
	case opDeleteRecord:
		r.pending[op.Xid] = append(r.pending[op.Xid], touchedRow{Table: op.Table, RID: op.RID, IsInsert: false})
	case opCommit:
		r.kit.restoreXid(op.CommitXid)
		if err := r.applyCommit(op.CommitXid, op.Rows); err != nil {
			return err
		}
		delete(r.pending, op.Xid)
	case opRollback:
		if err := r.applyRollback(op.Rows); err != nil {
			return err
		}
		delete(r.pending, op.Xid)
	}
	return nil
}

func (r *MvccTrxLogReplayer) store(table string) (RecordStore, error) {
	store, ok := r.targets[table]
	if !ok {
		return nil, fmt.Errorf("trx: no replay target registered for table %q", table)
	}
	return store, nil
}

func (r *MvccTrxLogReplayer) applyCommit(commitXid int32, rows []touchedRow) error {
	for _, row := range rows {
		store, err := r.store(row.Table)
		if err != nil {
			return err
		}
		if row.IsInsert {
			err = store.VisitRecord(row.RID, true, func(data []byte) ([]byte, error) {
				_, endXid := ReadHeader(data)
				WriteHeader(data, commitXid, endXid)
				return data, nil
			})
		} else {
			err = store.VisitRecord(row.RID, true, func(data []byte) ([]byte, error) {
				beginXid, _ := ReadHeader(data)
				WriteHeader(data, beginXid, commitXid)
				return data, nil
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *MvccTrxLogReplayer) applyRollback(rows []touchedRow) error {
	for _, row := range rows {
		store, err := r.store(row.Table)
		if err != nil {
			return err
		}
		if row.IsInsert {
			err = store.DeleteRecord(row.RID)
		} else {
			err = store.VisitRecord(row.RID, true, func(data []byte) ([]byte, error) {
				beginXid, _ := ReadHeader(data)
				WriteHeader(data, beginXid, MaxXid)
				return data, nil
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// OnDone rolls back every transaction still pending once the whole log
// has been seen: it started but has no COMMIT or ROLLBACK entry, so a
// crash interrupted it and its effects must not survive recovery.
func (r *MvccTrxLogReplayer) OnDone() error {
	for xid, rows := range r.pending {
		if err := r.applyRollback(rows); err != nil {
			return err
		}
		delete(r.pending, xid)
	}
	return nil
}
