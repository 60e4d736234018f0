package btree

import (
	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/wal"
)

// ReplayTarget names one open index file so LogReplayer knows where and
// with what key length to apply a BPLUS_TREE entry.
type ReplayTarget struct {
	BP     *bufferpool.Manager
	PoolID bufferpool.ID
	KeyLen int
}

// LogReplayer applies BPLUS_TREE log entries during recovery, gating each
// step on entry.lsn > page.lsn so an already-durable page is left
// untouched.
type LogReplayer struct {
	targets map[bufferpool.ID]ReplayTarget
}

func NewLogReplayer() *LogReplayer {
	return &LogReplayer{targets: make(map[bufferpool.ID]ReplayTarget)}
}

func (r *LogReplayer) Register(t ReplayTarget) { r.targets[t.PoolID] = t }

// Replay applies one BPLUS_TREE entry. A mini-transaction's entries are
// logged together as one compound payload (see miniTransaction.Finish),
// so a compound entry is unpacked into its sub-payloads and each is
// applied under the entry's single shared LSN — every page the
// mini-transaction touched becomes durable-and-visible atomically, even
// though the sub-payloads may name different pages.
func (r *LogReplayer) Replay(e *wal.Entry) error {
	if isCompound(e.Payload) {
		subPayloads, err := decodeCompound(e.Payload)
		if err != nil {
			return err
		}
		// The LSN gate is decided once per page, against the page's LSN from
		// before this entry: once a page has taken one sub-entry it carries
		// the shared LSN, and its later sub-entries must still apply.
		applied := make(map[[2]uint32]bool)
		for _, sub := range subPayloads {
			if err := r.applyPayload(e.LSN, sub, applied); err != nil {
				return err
			}
		}
		return nil
	}
	return r.applyPayload(e.LSN, e.Payload, nil)
}

func (r *LogReplayer) applyPayload(lsn wal.LSN, payload []byte, applied map[[2]uint32]bool) error {
	op, err := decodeLogOp(payload)
	if err != nil {
		return err
	}
	t, ok := r.targets[op.PoolID]
	if !ok {
		return nil
	}

	frame, err := t.BP.GetPage(t.PoolID, op.PageNum)
	if err != nil {
		return err
	}
	frame.Latch.Lock()
	defer frame.Latch.Unlock()

	ref := [2]uint32{uint32(op.PoolID), op.PageNum}
	if !applied[ref] && uint32(lsn) <= frame.Page.LSN() {
		_ = t.BP.UnpinPage(t.PoolID, op.PageNum, false)
		return nil
	}
	if applied != nil {
		applied[ref] = true
	}

	switch op.Op {
	case opInitHeaderPage:
		InitHeaderPage(frame.Page, op.AttrType, op.AttrLen, op.InternalMax, op.LeafMax)
	case opUpdateRootPage:
		AsHeaderPage(frame.Page).SetRootPageNum(op.NewRoot)
	case opSetParentPage:
		(&node{p: frame.Page}).SetParentPageNum(op.Parent)
	case opLeafInitEmpty:
		InitLeafNode(frame.Page, op.KeyLen, op.MaxSize)
	case opLeafSetNextPage:
		(&node{p: frame.Page}).SetNextPage(op.Next)
	case opInternalInitEmpty:
		InitInternalNode(frame.Page, op.KeyLen, op.MaxSize)
	case opInternalCreateNewRoot:
		in := InitInternalNode(frame.Page, op.KeyLen, op.MaxSize)
		in.InsertEntry(op.LeftKey, op.LeftChild)
		in.InsertEntry(op.RightKey, op.RightChild)
	case opInternalUpdateKey:
		in := AsInternalNode(frame.Page, t.KeyLen)
		for i := 0; i < in.KeyCount(); i++ {
			if in.ChildAt(i) == op.Child {
				in.setEntry(i, op.Key, op.Child)
				break
			}
		}
	case opNodeInsert:
		if op.IsLeaf {
			AsLeafNode(frame.Page, t.KeyLen).InsertEntry(op.Key)
		} else {
			AsInternalNode(frame.Page, t.KeyLen).InsertEntry(op.Key, op.Child)
		}
	case opNodeRemove:
		if op.IsLeaf {
			ln := AsLeafNode(frame.Page, t.KeyLen)
			if idx := ln.lowerBound(op.Key); idx < ln.KeyCount() && ln.KeyAt(idx).Equal(op.Key) {
				ln.RemoveEntryAt(idx)
			}
		} else {
			in := AsInternalNode(frame.Page, t.KeyLen)
			for i := 0; i < in.KeyCount(); i++ {
				if in.KeyAt(i).Equal(op.Key) {
					in.RemoveEntryAt(i)
					break
				}
			}
		}
	}

	frame.Page.SetLSN(uint32(lsn))
	_ = t.BP.UnpinPage(t.PoolID, op.PageNum, true)
	return nil
}

func (r *LogReplayer) OnDone() error { return nil }
