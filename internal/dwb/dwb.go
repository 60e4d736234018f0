// Package dwb implements the double-write buffer: a shared staging file
// that every buffer-pool page flush passes through first, so a torn
// home-page write can be detected (via checksum) and repaired from the
// staged copy on recovery.
package dwb

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/rc"
	"github.com/tuannm99/novasql/internal/storage"
)

// Key identifies one staged page across every open buffer pool file.
type Key struct {
	PoolID  bufferpool.ID
	PageNum uint32
}

// Home is the minimal surface a staged page needs to repair itself: reading
// and writing the page's true home location. *bufferpool.Manager satisfies
// this directly.
type Home interface {
	GetPage(id bufferpool.ID, pageNum uint32) (*storage.Frame, error)
	UnpinPage(id bufferpool.ID, pageNum uint32, dirty bool) error
}

// DoubleWriteBuffer is the interface record-manager and buffer-pool flush
// paths depend on, letting tests and the "no double buffering" Open
// Question answer swap in VacuousDoubleWriteBuffer.
type DoubleWriteBuffer interface {
	AddPage(poolID bufferpool.ID, pageNum uint32, page *storage.Page) error
	ReadPage(poolID bufferpool.ID, pageNum uint32) (*storage.Page, bool, error)
	ClearPages(poolID bufferpool.ID) error
}

// DiskDoubleWriteBuffer stages pages in memory and in a shared on-disk file,
// flushing to the file whenever the staged set reaches maxPages. Every
// staged page is written to the file immediately too (write_page_internal
// in the original), so the file and the in-memory map never diverge.
type DiskDoubleWriteBuffer struct {
	mu       sync.Mutex
	file     *storage.DataFile
	pageSize int
	maxPages int
	pages    map[Key]*storage.Page
	slotOf   map[Key]uint32 // Key -> staging file page number
	nextSlot uint32
}

const defaultMaxPages = 16

// OpenDiskDoubleWriteBuffer opens (creating if necessary) the shared staging
// file and loads any pages already staged in it (recovery path).
func OpenDiskDoubleWriteBuffer(path string, pageSize int, maxPages int) (*DiskDoubleWriteBuffer, error) {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	f, err := storage.OpenDataFile(path, pageSize)
	if err != nil {
		return nil, err
	}
	d := &DiskDoubleWriteBuffer{
		file:     f,
		pageSize: pageSize,
		maxPages: maxPages,
		pages:    make(map[Key]*storage.Page),
		slotOf:   make(map[Key]uint32),
	}
	if err := d.loadPages(); err != nil {
		return nil, err
	}
	return d, nil
}

// loadPages reads every slot of the staging file (slots are numbered from
// 0, each holding one staged page) into memory, keeping only pages that
// pass checksum verification. Called once at open.
func (d *DiskDoubleWriteBuffer) loadPages() error {
	n := d.file.PageCount()
	for slot := uint32(0); slot < uint32(n); slot++ {
		buf, err := d.file.ReadPage(slot)
		if err != nil {
			return err
		}
		page := storage.WrapPage(buf)
		if !page.VerifyChecksum() {
			continue // blank or torn slot, skip
		}
		poolID, pageNum, ok := decodeStageKey(page)
		if !ok {
			continue
		}
		key := Key{PoolID: poolID, PageNum: pageNum}
		d.pages[key] = page
		d.slotOf[key] = slot
		if slot+1 > d.nextSlot {
			d.nextSlot = slot + 1
		}
	}
	return nil
}

// AddPage stages a page's contents both in memory and in the shared file,
// ahead of the caller writing it to its true home location. Matches the
// original's "both memory and file must always hold the newest data".
func (d *DiskDoubleWriteBuffer) AddPage(poolID bufferpool.ID, pageNum uint32, page *storage.Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	staged := page.Clone()
	encodeStageKey(staged, poolID, pageNum)
	staged.StampChecksum()

	key := Key{PoolID: poolID, PageNum: pageNum}
	slot, ok := d.slotOf[key]
	if !ok {
		slot = d.nextSlot
		d.nextSlot++
		d.slotOf[key] = slot
	}
	d.pages[key] = staged

	if err := d.file.WritePage(slot, staged.Bytes()); err != nil {
		return err
	}

	if len(d.pages) >= d.maxPages {
		return d.flushLocked()
	}
	return nil
}

// flushLocked is the "write every staged page, then empty the buffer" path;
// here it is a no-op beyond what AddPage already wrote to the shared file,
// since each staged page is already persisted as it arrives. It exists so
// callers have an explicit point to bound in-memory growth.
func (d *DiskDoubleWriteBuffer) flushLocked() error {
	if err := d.file.Sync(); err != nil {
		return err
	}
	d.pages = make(map[Key]*storage.Page)
	// slotOf/nextSlot are intentionally retained: slots stay reserved so a
	// later AddPage for the same key reuses its slot instead of leaking disk.
	return nil
}

// ReadPage returns the staged copy for a key, if any — used during recovery
// when a home page fails its checksum.
func (d *DiskDoubleWriteBuffer) ReadPage(poolID bufferpool.ID, pageNum uint32) (*storage.Page, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := Key{PoolID: poolID, PageNum: pageNum}
	if p, ok := d.pages[key]; ok {
		return p, true, nil
	}
	slot, ok := d.slotOf[key]
	if !ok {
		return nil, false, nil
	}
	buf, err := d.file.ReadPage(slot)
	if err != nil {
		return nil, false, err
	}
	page := storage.WrapPage(buf)
	if !page.VerifyChecksum() {
		return nil, false, fmt.Errorf("%w: staged page %+v corrupt", rc.ErrIOErrRead, key)
	}
	return page, true, nil
}

// ClearPages drops every staged entry belonging to one buffer pool, e.g.
// when that pool's file is closed or dropped.
func (d *DiskDoubleWriteBuffer) ClearPages(poolID bufferpool.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.pages {
		if key.PoolID == poolID {
			delete(d.pages, key)
			delete(d.slotOf, key)
		}
	}
	return nil
}

// Recover walks every staged page and, when its home page's checksum is
// bad, rewrites the home page from the staged copy — repairing a torn
// write that crashed mid-flush.
func (d *DiskDoubleWriteBuffer) Recover(home Home) error {
	d.mu.Lock()
	staged := make(map[Key]*storage.Page, len(d.pages))
	for k, v := range d.pages {
		staged[k] = v
	}
	d.mu.Unlock()

	for key, page := range staged {
		frame, err := home.GetPage(key.PoolID, key.PageNum)
		if err != nil {
			continue
		}
		repaired := !frame.Page.VerifyChecksum()
		if repaired {
			copy(frame.Page.Bytes(), page.Bytes())
		}
		if err := home.UnpinPage(key.PoolID, key.PageNum, repaired); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiskDoubleWriteBuffer) Close() error { return d.file.Close() }

// encodeStageKey / decodeStageKey stash the (poolID, pageNum) pair in the
// first 8 bytes of a staged page's payload, so recovery can tell which home
// page a staged copy belongs to.
func encodeStageKey(p *storage.Page, poolID bufferpool.ID, pageNum uint32) {
	buf := p.Payload()
	binary.LittleEndian.PutUint32(buf[0:4], uint32(poolID))
	binary.LittleEndian.PutUint32(buf[4:8], pageNum)
}

func decodeStageKey(p *storage.Page) (bufferpool.ID, uint32, bool) {
	buf := p.Payload()
	if len(buf) < 8 {
		return 0, 0, false
	}
	return bufferpool.ID(binary.LittleEndian.Uint32(buf[0:4])), binary.LittleEndian.Uint32(buf[4:8]), true
}

// VacuousDoubleWriteBuffer is a no-op passthrough for deployments that
// accept torn-page risk in exchange for avoiding the staging write's
// extra I/O.
type VacuousDoubleWriteBuffer struct{}

func (VacuousDoubleWriteBuffer) AddPage(bufferpool.ID, uint32, *storage.Page) error { return nil }

func (VacuousDoubleWriteBuffer) ReadPage(bufferpool.ID, uint32) (*storage.Page, bool, error) {
	return nil, false, nil
}

func (VacuousDoubleWriteBuffer) ClearPages(bufferpool.ID) error { return nil }
