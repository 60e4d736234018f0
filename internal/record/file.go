package record

import (
	"sync"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/rc"
	"github.com/tuannm99/novasql/internal/wal"
)

// FileHandler aggregates pages of one on-disk file into the file-level
// insert/delete/update/visit API, maintaining an in-memory free-page
// list so insert doesn't have to scan every page looking for room.
type FileHandler struct {
	bp     *bufferpool.Manager
	poolID bufferpool.ID
	layout Layout
	log    wal.Handler // nil disables logging (tests, throwaway files)

	mu        sync.Mutex
	freePages map[uint32]struct{}
}

func NewFileHandler(bp *bufferpool.Manager, poolID bufferpool.ID, layout Layout, log wal.Handler) *FileHandler {
	return &FileHandler{
		bp:        bp,
		poolID:    poolID,
		layout:    layout,
		log:       log,
		freePages: make(map[uint32]struct{}),
	}
}

func (h *FileHandler) appendLog(payload []byte) (wal.LSN, error) {
	if h.log == nil {
		return 0, nil
	}
	return h.log.Append(wal.ModuleRecordManager, payload)
}

// InsertRecord writes data into a page with a free slot, allocating and
// initializing a new page if none is known to have room.
func (h *FileHandler) InsertRecord(data []byte) (RID, error) {
	for {
		pageNum, isNew, err := h.candidatePage()
		if err != nil {
			return RID{}, err
		}

		frame, err := h.bp.GetPage(h.poolID, pageNum)
		if err != nil {
			return RID{}, err
		}

		frame.Latch.Lock()
		if isNew {
			h.layout.InitPage(frame.Page)
			if lsn, err := h.appendLog(encodeInitPage(h.poolID, pageNum, recordSizeHint(h.layout))); err == nil {
				frame.Page.SetLSN(uint32(lsn))
			}
		}
		slot, err := h.layout.Insert(frame.Page, data)
		if err == rc.ErrBufferPoolNoBuf {
			frame.Latch.Unlock()
			h.removeFree(pageNum)
			_ = h.bp.UnpinPage(h.poolID, pageNum, isNew)
			continue
		}
		if err != nil {
			frame.Latch.Unlock()
			_ = h.bp.UnpinPage(h.poolID, pageNum, isNew)
			return RID{}, err
		}

		if lsn, err := h.appendLog(encodeInsert(h.poolID, pageNum, slot, data)); err == nil {
			frame.Page.SetLSN(uint32(lsn))
		}
		if h.layout.HasFreeSlot(frame.Page) {
			h.addFree(pageNum)
		} else {
			h.removeFree(pageNum)
		}
		frame.Latch.Unlock()
		_ = h.bp.UnpinPage(h.poolID, pageNum, true)
		return RID{PageNum: pageNum, Slot: uint16(slot)}, nil
	}
}

// candidatePage returns a page known (or likely) to have a free slot,
// allocating a fresh one if the free set is empty.
func (h *FileHandler) candidatePage() (pageNum uint32, isNew bool, err error) {
	h.mu.Lock()
	for pn := range h.freePages {
		h.mu.Unlock()
		return pn, false, nil
	}
	h.mu.Unlock()

	pn, _, err := h.bp.AllocatePage(h.poolID)
	if err != nil {
		return 0, false, err
	}
	return pn, true, nil
}

func (h *FileHandler) addFree(pageNum uint32) {
	h.mu.Lock()
	h.freePages[pageNum] = struct{}{}
	h.mu.Unlock()
}

func (h *FileHandler) removeFree(pageNum uint32) {
	h.mu.Lock()
	delete(h.freePages, pageNum)
	h.mu.Unlock()
}

func (h *FileHandler) DeleteRecord(id RID) error {
	frame, err := h.bp.GetPage(h.poolID, id.PageNum)
	if err != nil {
		return err
	}
	frame.Latch.Lock()
	defer frame.Latch.Unlock()
	defer func() { _ = h.bp.UnpinPage(h.poolID, id.PageNum, true) }()

	if err := h.layout.Delete(frame.Page, int(id.Slot)); err != nil {
		return err
	}
	if lsn, err := h.appendLog(encodeDelete(h.poolID, id.PageNum, int(id.Slot))); err == nil {
		frame.Page.SetLSN(uint32(lsn))
	}
	h.addFree(id.PageNum)
	return nil
}

func (h *FileHandler) UpdateRecord(id RID, data []byte) error {
	frame, err := h.bp.GetPage(h.poolID, id.PageNum)
	if err != nil {
		return err
	}
	frame.Latch.Lock()
	defer frame.Latch.Unlock()
	defer func() { _ = h.bp.UnpinPage(h.poolID, id.PageNum, true) }()

	if err := h.layout.Update(frame.Page, int(id.Slot), data); err != nil {
		return err
	}
	if lsn, err := h.appendLog(encodeUpdate(h.poolID, id.PageNum, int(id.Slot), data)); err == nil {
		frame.Page.SetLSN(uint32(lsn))
	}
	return nil
}

func (h *FileHandler) GetRecord(id RID) ([]byte, error) {
	frame, err := h.bp.GetPage(h.poolID, id.PageNum)
	if err != nil {
		return nil, err
	}
	frame.Latch.RLock()
	defer frame.Latch.RUnlock()
	defer func() { _ = h.bp.UnpinPage(h.poolID, id.PageNum, false) }()
	return h.layout.Read(frame.Page, int(id.Slot))
}

// VisitRecord latches the page for the duration of fn, which reads the
// current bytes and may return replacement bytes to write back in the
// same critical section, giving an atomic read-modify-write. write
// selects an exclusive vs. shared latch.
func (h *FileHandler) VisitRecord(id RID, write bool, fn func(data []byte) ([]byte, error)) error {
	frame, err := h.bp.GetPage(h.poolID, id.PageNum)
	if err != nil {
		return err
	}
	if write {
		frame.Latch.Lock()
		defer frame.Latch.Unlock()
	} else {
		frame.Latch.RLock()
		defer frame.Latch.RUnlock()
	}
	defer func() { _ = h.bp.UnpinPage(h.poolID, id.PageNum, write) }()

	data, err := h.layout.Read(frame.Page, int(id.Slot))
	if err != nil {
		return err
	}
	newData, err := fn(data)
	if err != nil {
		return err
	}
	if !write || newData == nil {
		return nil
	}
	if err := h.layout.Update(frame.Page, int(id.Slot), newData); err != nil {
		return err
	}
	if lsn, err := h.appendLog(encodeUpdate(h.poolID, id.PageNum, int(id.Slot), newData)); err == nil {
		frame.Page.SetLSN(uint32(lsn))
	}
	return nil
}

// recordSizeHint feeds INIT_PAGE's recordSize field for row layouts; PAX
// layouts ignore the replayed value and re-derive slot count from their
// own schema, so 0 is fine there.
func recordSizeHint(l Layout) int {
	if rl, ok := l.(RowLayout); ok {
		return rl.RecordSize
	}
	return 0
}
