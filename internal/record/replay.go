package record

import (
	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/wal"
)

// ReplayTarget names one open file's pool and layout, so LogReplayer knows
// where to apply a RECORD_MANAGER entry.
type ReplayTarget struct {
	BP     *bufferpool.Manager
	PoolID bufferpool.ID
	Layout Layout
}

// LogReplayer applies RECORD_MANAGER log entries for every registered
// file during recovery, gating each step on entry.lsn > page.lsn so an
// already-durable page is left untouched.
type LogReplayer struct {
	targets map[bufferpool.ID]ReplayTarget
}

func NewLogReplayer() *LogReplayer {
	return &LogReplayer{targets: make(map[bufferpool.ID]ReplayTarget)}
}

func (r *LogReplayer) Register(t ReplayTarget) {
	r.targets[t.PoolID] = t
}

func (r *LogReplayer) Replay(e *wal.Entry) error {
	op, err := decodeLogOp(e.Payload)
	if err != nil {
		return err
	}

	t, ok := r.targets[op.PoolID]
	if !ok {
		return nil // no registered file for this entry's pool; nothing to replay
	}

	frame, err := t.BP.GetPage(t.PoolID, op.PageNum)
	if err != nil {
		return err
	}

	frame.Latch.Lock()
	if uint32(e.LSN) <= frame.Page.LSN() {
		frame.Latch.Unlock()
		_ = t.BP.UnpinPage(t.PoolID, op.PageNum, false)
		return nil
	}

	switch op.Op {
	case opInitPage:
		t.Layout.InitPage(frame.Page)
	case opInsert:
		err = t.Layout.ReplayInsert(frame.Page, op.Slot, op.Data)
	case opDelete:
		err = t.Layout.Delete(frame.Page, op.Slot)
	case opUpdate:
		err = t.Layout.Update(frame.Page, op.Slot, op.Data)
	}
	if err == nil {
		frame.Page.SetLSN(uint32(e.LSN))
	}
	frame.Latch.Unlock()
	_ = t.BP.UnpinPage(t.PoolID, op.PageNum, true)
	return err
}

func (r *LogReplayer) OnDone() error { return nil }
