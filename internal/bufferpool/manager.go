// Package bufferpool implements the page cache fronting each on-disk
// buffer-pool file: page allocation via a page-0 header bitmap, LRU
// eviction by access timestamp, and a flush path that will not write a
// dirty page until the log entry describing it is durable.
package bufferpool

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuannm99/novasql/internal/rc"
	"github.com/tuannm99/novasql/internal/storage"
	"github.com/tuannm99/novasql/internal/wal"
)

const logPrefix = "bufferpool: "

// ID identifies one open buffer-pool file for the lifetime of the process.
// Log entries and double-write pages key off this value.
type ID uint32

// DoubleWriteStage is the double-write buffer surface a Pool's flush path
// depends on. Defined here rather than imported from the dwb package so
// that package (which already depends on bufferpool for its own Home
// interface) doesn't need to import back into this one; *dwb.
// DiskDoubleWriteBuffer and dwb.VacuousDoubleWriteBuffer both already
// satisfy this shape.
type DoubleWriteStage interface {
	AddPage(poolID ID, pageNum uint32, page *storage.Page) error
}

// Pool is the frame table and allocator for one on-disk file.
type Pool struct {
	id       ID
	df       *storage.DataFile
	pageSize int
	capacity int
	log      wal.Handler
	dw       DoubleWriteStage

	mu     sync.Mutex
	frames map[uint32]*storage.Frame // pageNum -> frame, resident pages only
	header *storage.HeaderPage
}

// Manager fronts every open Pool, handing out IDs and routing calls by ID.
// Latch order: Manager.mu, then Pool.mu, then Frame.Latch.
type Manager struct {
	mu     sync.Mutex
	pools  map[ID]*Pool
	nextID ID

	log wal.Handler
	dw  DoubleWriteStage
}

// NewManager builds a Manager whose flush path waits on log's LSN
// durability and stages pages through dw before writing their home
// location. Either may be nil: a nil log skips the wait (matching the
// rest of the module's "nil log disables logging" convention for
// throwaway/test stores), and a nil dw skips staging entirely.
func NewManager(log wal.Handler, dw DoubleWriteStage) *Manager {
	return &Manager{pools: make(map[ID]*Pool), log: log, dw: dw}
}

// OpenFile opens or creates the backing file and registers a new Pool for
// it, initializing page 0 as the header page if the file is empty.
func (m *Manager) OpenFile(path string, pageSize, capacity int) (ID, error) {
	df, err := storage.OpenDataFile(path, pageSize)
	if err != nil {
		return 0, err
	}

	p := &Pool{
		df:       df,
		pageSize: pageSize,
		capacity: capacity,
		log:      m.log,
		dw:       m.dw,
		frames:   make(map[uint32]*storage.Frame, capacity),
	}

	if df.PageCount() == 0 {
		hp := storage.NewHeaderPage(pageSize)
		hp.SetPageCount(1)
		hp.StampChecksum()
		if err := df.WritePage(0, hp.Bytes()); err != nil {
			return 0, err
		}
		p.header = hp
	} else {
		buf, err := df.ReadPage(0)
		if err != nil {
			return 0, err
		}
		p.header = storage.AsHeaderPage(storage.WrapPage(buf))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	p.id = id
	m.pools[id] = p
	slog.Debug(logPrefix+"opened file", "id", id, "path", path)
	return id, nil
}

func (m *Manager) pool(id ID) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown buffer pool %d", rc.ErrInternal, id)
	}
	return p, nil
}

// AllocatePage reserves a new page number via the header bitmap, pins a
// fresh zeroed frame for it, and marks it dirty so the next flush or
// eviction writes it out. A page number at or past the header's
// page_count raises page_count to cover it; once every bitmap bit is set
// the call fails with rc.ErrBufferPoolNoBuf.
func (m *Manager) AllocatePage(id ID) (uint32, *storage.Frame, error) {
	p, err := m.pool(id)
	if err != nil {
		return 0, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pageNum, ok := p.header.Allocate()
	if !ok {
		return 0, nil, fmt.Errorf("%w: buffer pool %d exhausted", rc.ErrBufferPoolNoBuf, id)
	}
	if n := p.header.PageCount(); pageNum >= n {
		p.header.SetPageCount(pageNum + 1)
	}

	page := storage.NewPage(p.pageSize, pageNum)
	frame, err := p.admit(pageNum, page)
	if err != nil {
		p.header.Dispose(pageNum)
		return 0, nil, err
	}
	frame.Pin()
	frame.SetDirty(true)
	return pageNum, frame, nil
}

// DisposePage clears the page's bitmap bit. A still-resident frame is
// evicted without being flushed back: disposed pages never need their
// stale contents written out.
func (m *Manager) DisposePage(id ID, pageNum uint32) error {
	p, err := m.pool(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.frames, pageNum)
	p.header.Dispose(pageNum)
	return nil
}

// GetPage returns the resident frame for pageNum, pinning it, loading it
// from disk (possibly evicting an LRU victim) if not already cached.
func (m *Manager) GetPage(id ID, pageNum uint32) (*storage.Frame, error) {
	p, err := m.pool(id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.frames[pageNum]; ok {
		f.Pin()
		f.Touch()
		return f, nil
	}

	buf, err := p.df.ReadPage(pageNum)
	if err != nil {
		return nil, err
	}
	page := storage.WrapPage(buf)
	frame, err := p.admit(pageNum, page)
	if err != nil {
		return nil, err
	}
	frame.Pin()
	return frame, nil
}

// admit inserts a frame for pageNum into the frame table, evicting an LRU
// unpinned victim first if the pool is at capacity. Caller holds p.mu.
func (p *Pool) admit(pageNum uint32, page *storage.Page) (*storage.Frame, error) {
	if len(p.frames) >= p.capacity {
		if err := p.evictLRU(); err != nil {
			return nil, err
		}
	}
	f := storage.NewFrame(int(pageNum), page)
	p.frames[pageNum] = f
	return f, nil
}

// evictLRU flushes and evicts the unpinned frame with the oldest access
// timestamp. Caller holds p.mu.
func (p *Pool) evictLRU() error {
	var victim *storage.Frame
	var victimPage uint32
	for pn, f := range p.frames {
		if f.PinCount() > 0 {
			continue
		}
		if victim == nil || f.AccessedAt() < victim.AccessedAt() {
			victim = f
			victimPage = pn
		}
	}
	if victim == nil {
		return fmt.Errorf("%w: all frames pinned", rc.ErrBufferPoolNoBuf)
	}
	if victim.Dirty() {
		if err := p.flushFrame(victim); err != nil {
			return err
		}
	}
	delete(p.frames, victimPage)
	return nil
}

// UnpinPage decrements the frame's pin count; if dirty is true the frame is
// marked dirty regardless of its previous state.
func (m *Manager) UnpinPage(id ID, pageNum uint32, dirty bool) error {
	p, err := m.pool(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[pageNum]
	if !ok {
		return fmt.Errorf("%w: page %d not resident", rc.ErrInternal, pageNum)
	}
	if dirty {
		f.SetDirty(true)
	}
	f.Unpin()
	return nil
}

// FlushPage writes one resident dirty frame back to disk.
func (m *Manager) FlushPage(id ID, pageNum uint32) error {
	p, err := m.pool(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[pageNum]
	if !ok {
		return nil
	}
	return p.flushFrame(f)
}

// flushFrame stamps a fresh checksum and writes the frame's page to disk,
// clearing its dirty bit. Caller holds p.mu.
//
// Before the page reaches disk it waits for the log entry describing it
// (page.LSN()) to be durable, so a torn write can never race ahead of the
// log entry recovery would need to repair it, then stages a copy through
// the double-write buffer so a torn write to the page's true home can
// itself be detected and repaired on restart.
func (p *Pool) flushFrame(f *storage.Frame) error {
	f.Latch.RLock()
	f.Page.StampChecksum()
	buf := f.Page.Bytes()
	lsn := f.Page.LSN()
	f.Latch.RUnlock()

	if p.log != nil {
		if err := p.log.WaitLSN(wal.LSN(lsn)); err != nil {
			return err
		}
	}
	if p.dw != nil {
		if err := p.dw.AddPage(p.id, f.Page.PageNum(), f.Page); err != nil {
			return err
		}
	}

	if err := p.df.WritePage(f.Page.PageNum(), buf); err != nil {
		return err
	}
	f.SetDirty(false)
	return nil
}

// FlushAllPages writes every dirty resident frame, then the header page.
func (m *Manager) FlushAllPages(id ID) error {
	p, err := m.pool(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.frames {
		if f.Dirty() {
			if err := p.flushFrame(f); err != nil {
				return err
			}
		}
	}
	p.header.StampChecksum()
	return p.df.WritePage(0, p.header.Bytes())
}

// RedoAllocatePage / RedoDeallocatePage replay WAL buffer-pool module
// entries: they touch only the header bitmap, independent of frame
// residency.
func (m *Manager) RedoAllocatePage(id ID, pageNum uint32) error {
	p, err := m.pool(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.header.RedoAllocate(pageNum)
	if n := p.header.PageCount(); pageNum >= n {
		p.header.SetPageCount(pageNum + 1)
	}
	return nil
}

func (m *Manager) RedoDeallocatePage(id ID, pageNum uint32) error {
	p, err := m.pool(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.frames, pageNum)
	p.header.RedoDispose(pageNum)
	return nil
}

// PageCount reports how many page numbers have ever been handed out by
// this pool (including disposed ones), the upper bound a full-file scan
// needs to iterate to.
func (m *Manager) PageCount(id ID) (uint32, error) {
	p, err := m.pool(id)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header.PageCount(), nil
}

// IsAllocated reports whether pageNum is a currently allocated page.
func (m *Manager) IsAllocated(id ID, pageNum uint32) (bool, error) {
	p, err := m.pool(id)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header.IsAllocated(pageNum), nil
}

// Close flushes and releases the pool's underlying file.
func (m *Manager) Close(id ID) error {
	if err := m.FlushAllPages(id); err != nil {
		return err
	}
	m.mu.Lock()
	p, ok := m.pools[id]
	if ok {
		delete(m.pools, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return p.df.Close()
}
