package btree

import (
	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/storage"
)

type lockMode int

const (
	lockShared lockMode = iota
	lockExclusive
)

// LatchMemo records the page latches and pins taken along a root-to-leaf
// path so crabbing can release several of them together. Read descent
// releases every ancestor as soon as the next child is latched; write
// descent keeps ancestors until the child just visited is proven safe.
// An arbitrary-depth stack, rather than a fixed current/parent pair,
// lets internal splits walk back up through however many ancestors
// stayed latched.
type LatchMemo struct {
	bp     *bufferpool.Manager
	poolID bufferpool.ID

	pages  []uint32
	frames []*storage.Frame
	modes  []lockMode
}

func NewLatchMemo(bp *bufferpool.Manager, poolID bufferpool.ID) *LatchMemo {
	return &LatchMemo{bp: bp, poolID: poolID}
}

// Descend fetches and latches pageNum, pushing it onto the held path.
func (m *LatchMemo) Descend(pageNum uint32, mode lockMode) (*storage.Frame, error) {
	frame, err := m.bp.GetPage(m.poolID, pageNum)
	if err != nil {
		return nil, err
	}
	if mode == lockShared {
		frame.Latch.RLock()
	} else {
		frame.Latch.Lock()
	}
	m.pages = append(m.pages, pageNum)
	m.frames = append(m.frames, frame)
	m.modes = append(m.modes, mode)
	return frame, nil
}

func (m *LatchMemo) releaseAt(i int, dirty bool) {
	if m.modes[i] == lockShared {
		m.frames[i].Latch.RUnlock()
	} else {
		m.frames[i].Latch.Unlock()
	}
	_ = m.bp.UnpinPage(m.poolID, m.pages[i], dirty)
}

// ReleaseAncestors drops every latch/pin except the most recently
// descended-to page, which the caller still holds.
func (m *LatchMemo) ReleaseAncestors(dirty bool) {
	n := len(m.frames)
	for i := 0; i < n-1; i++ {
		m.releaseAt(i, dirty)
	}
	if n > 0 {
		m.pages = m.pages[n-1:]
		m.frames = m.frames[n-1:]
		m.modes = m.modes[n-1:]
	}
}

// ReleaseAll drops every remaining latch/pin.
func (m *LatchMemo) ReleaseAll(dirty bool) {
	for i := range m.frames {
		m.releaseAt(i, dirty)
	}
	m.pages, m.frames, m.modes = nil, nil, nil
}

// ReleaseTop drops only the most recently descended-to page, keeping any
// retained ancestors latched (used once a split has been propagated into
// its parent and the child itself is no longer needed).
func (m *LatchMemo) ReleaseTop(dirty bool) {
	n := len(m.frames)
	if n == 0 {
		return
	}
	m.releaseAt(n-1, dirty)
	m.pages = m.pages[:n-1]
	m.frames = m.frames[:n-1]
	m.modes = m.modes[:n-1]
}

func (m *LatchMemo) Top() *storage.Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[len(m.frames)-1]
}

func (m *LatchMemo) TopPageNum() uint32 { return m.pages[len(m.pages)-1] }

func (m *LatchMemo) Len() int { return len(m.frames) }

// At returns the frame fromTop levels below the most recently descended-to
// page: At(0) is Top(), At(1) is its immediate ancestor, and so on.
func (m *LatchMemo) At(fromTop int) *storage.Frame {
	return m.frames[len(m.frames)-1-fromTop]
}
