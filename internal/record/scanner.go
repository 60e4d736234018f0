package record

import "github.com/tuannm99/novasql/internal/bufferpool"

// Record is one materialized row yielded by RecordFileScanner.
type Record struct {
	RID  RID
	Data []byte
}

// Predicate filters rows before materialization; a nil predicate accepts
// everything.
type Predicate func(data []byte) bool

// RecordFileScanner yields Records in page-then-slot order, honoring
// read/write latch mode for the page it's currently positioned on.
type RecordFileScanner struct {
	bp        *bufferpool.Manager
	poolID    bufferpool.ID
	layout    Layout
	write     bool
	predicate Predicate
}

func NewRecordFileScanner(bp *bufferpool.Manager, poolID bufferpool.ID, layout Layout, write bool, pred Predicate) *RecordFileScanner {
	return &RecordFileScanner{bp: bp, poolID: poolID, layout: layout, write: write, predicate: pred}
}

// Scan visits every live record in the file, calling fn for each one that
// passes the predicate. fn returning an error stops the scan early.
func (s *RecordFileScanner) Scan(fn func(Record) error) error {
	count, err := s.bp.PageCount(s.poolID)
	if err != nil {
		return err
	}
	for pn := uint32(1); pn < count; pn++ {
		allocated, err := s.bp.IsAllocated(s.poolID, pn)
		if err != nil {
			return err
		}
		if !allocated {
			continue
		}
		if err := s.scanPage(pn, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *RecordFileScanner) scanPage(pageNum uint32, fn func(Record) error) error {
	frame, err := s.bp.GetPage(s.poolID, pageNum)
	if err != nil {
		return err
	}
	if s.write {
		frame.Latch.Lock()
		defer frame.Latch.Unlock()
	} else {
		frame.Latch.RLock()
		defer frame.Latch.RUnlock()
	}
	defer func() { _ = s.bp.UnpinPage(s.poolID, pageNum, false) }()

	return s.layout.Iterate(frame.Page, func(slot int, data []byte) error {
		if s.predicate != nil && !s.predicate(data) {
			return nil
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		return fn(Record{RID: RID{PageNum: pageNum, Slot: uint16(slot)}, Data: cp})
	})
}

// ChunkFileScanner yields Chunks by bulk-copying PAX column bytes a page
// at a time; only meaningful over PaxLayout files.
type ChunkFileScanner struct {
	bp     *bufferpool.Manager
	poolID bufferpool.ID
	layout PaxLayout
	write  bool
}

func NewChunkFileScanner(bp *bufferpool.Manager, poolID bufferpool.ID, layout PaxLayout, write bool) *ChunkFileScanner {
	return &ChunkFileScanner{bp: bp, poolID: poolID, layout: layout, write: write}
}

// Scan fills chunk with one page's worth of rows per callback invocation.
func (s *ChunkFileScanner) Scan(fn func(*Chunk) error) error {
	count, err := s.bp.PageCount(s.poolID)
	if err != nil {
		return err
	}
	chunk := NewChunk(s.layout.Schema)
	for pn := uint32(1); pn < count; pn++ {
		allocated, err := s.bp.IsAllocated(s.poolID, pn)
		if err != nil {
			return err
		}
		if !allocated {
			continue
		}
		if err := s.scanPage(pn, chunk, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChunkFileScanner) scanPage(pageNum uint32, chunk *Chunk, fn func(*Chunk) error) error {
	frame, err := s.bp.GetPage(s.poolID, pageNum)
	if err != nil {
		return err
	}
	if s.write {
		frame.Latch.Lock()
		defer frame.Latch.Unlock()
	} else {
		frame.Latch.RLock()
		defer frame.Latch.RUnlock()
	}
	defer func() { _ = s.bp.UnpinPage(s.poolID, pageNum, false) }()

	chunk.Reset()
	s.layout.FillChunk(frame.Page, chunk)
	if chunk.Rows == 0 {
		return nil
	}
	return fn(chunk)
}
