package btree

import (
	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/wal"
)

// miniTransaction batches the log entries one B+tree operation produces
// and either commits all of them together at the end or replays the
// buffered undo closures in reverse if the operation fails partway
// through (e.g. a split that got as far as allocating a sibling page
// before the buffer pool ran out of frames for its parent update).
//
// Entries are deferred to Finish, rather than appended as each page is
// touched, so a mid-operation failure can be undone in memory before
// anything reaches the write-ahead log.
type miniTransaction struct {
	log    wal.Handler
	poolID bufferpool.ID

	entries []mtrEntry
	failed  bool
}

type mtrEntry struct {
	payload []byte
	page    loggedPage
	undo    func()
}

// loggedPage is the subset of storage.Page a mini-transaction needs to
// stamp with the LSN of the entry that mutated it.
type loggedPage interface {
	SetLSN(uint32)
}

func newMiniTransaction(log wal.Handler, poolID bufferpool.ID) *miniTransaction {
	return &miniTransaction{log: log, poolID: poolID}
}

// record buffers one log entry alongside the closure that would undo its
// in-memory effect if the operation later fails.
func (m *miniTransaction) record(page loggedPage, payload []byte, undo func()) {
	m.entries = append(m.entries, mtrEntry{payload: payload, page: page, undo: undo})
}

// Fail marks the operation as failed and immediately replays every
// buffered undo closure in reverse order, so the caller's pages are back
// to their pre-operation state before any latch is released.
func (m *miniTransaction) Fail() {
	if m.failed {
		return
	}
	m.failed = true
	for i := len(m.entries) - 1; i >= 0; i-- {
		m.entries[i].undo()
	}
	m.entries = nil
}

// Finish packs every buffered entry into one compound payload and appends
// it as a single WAL entry, so the whole operation becomes durable in one
// atomic step: a crash can never observe some of its entries durable and
// others not. Every affected page is stamped with the resulting single
// LSN. A no-op log.Handler (nil) or a transactionless caller (log == nil)
// skips straight to success.
func (m *miniTransaction) Finish() error {
	if m.failed {
		return nil
	}
	if m.log == nil {
		return nil
	}
	if len(m.entries) == 0 {
		return nil
	}

	payloads := make([][]byte, len(m.entries))
	for i, e := range m.entries {
		payloads[i] = e.payload
	}

	lsn, err := m.log.Append(wal.ModuleBPlusTree, encodeCompound(payloads))
	if err != nil {
		return err
	}
	for _, e := range m.entries {
		if e.page != nil {
			e.page.SetLSN(uint32(lsn))
		}
	}
	return nil
}
