package trx

import (
	"go.uber.org/atomic"

	"github.com/tuannm99/novasql/internal/record"
	"github.com/tuannm99/novasql/internal/wal"
)

// RecordStore is the subset of record.FileHandler a transaction needs: an
// atomic read-modify-write primitive for stamping MVCC headers plus a
// physical delete for a transaction that never committed an insert it
// made. A single Trx passes whichever table's store a given call touches,
// so one transaction can span several tables under one Db.
type RecordStore interface {
	VisitRecord(rid record.RID, write bool, fn func(data []byte) ([]byte, error)) error
	DeleteRecord(rid record.RID) error
}

// Kit hands out transactions and owns the monotonically increasing xid
// counter every one of them stamps rows with.
type Kit struct {
	log wal.Handler

	nextXid atomic.Int32
}

// NewKit builds a Kit, logging every committed mutation to log (nil
// disables logging, matching record.FileHandler's own convention for
// throwaway stores).
func NewKit(log wal.Handler) *Kit {
	return &Kit{log: log}
}

// Begin starts a new transaction with a freshly allocated xid. Xids start
// at 1 so a zero-valued Trx is never mistaken for a real one.
func (k *Kit) Begin() *Trx {
	xid := k.nextXid.Add(1)
	return &Trx{id: xid, kit: k}
}

func (k *Kit) appendLog(payload []byte) (wal.LSN, error) {
	if k.log == nil {
		return 0, nil
	}
	return k.log.Append(wal.ModuleTransaction, payload)
}

// restoreXid bumps the xid counter to at least xid, so a kit rebuilt from
// log replay resumes allocation past every xid recovery has seen.
func (k *Kit) restoreXid(xid int32) {
	for {
		cur := k.nextXid.Load()
		if xid <= cur || k.nextXid.CompareAndSwap(cur, xid) {
			return
		}
	}
}
