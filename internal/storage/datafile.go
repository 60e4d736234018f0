package storage

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tuannm99/novasql/internal/rc"
)

// DataFile is the raw, page-granular view of one buffer-pool file on
// disk: open/extend/read/write/sync of fixed-size pages, no caching.
// internal/bufferpool layers the frame table, pinning and eviction
// policy on top of one DataFile per open buffer pool. Page 0 is always a
// header page, distinct from the data pages that follow it.
type DataFile struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	pages    int // pages currently present in the file, including page 0
}

// OpenDataFile opens (creating if necessary) the file backing one buffer
// pool. If the file is empty, page 0 (the header page) is not written here;
// callers (internal/bufferpool) are responsible for initializing it.
func OpenDataFile(path string, pageSize int) (*DataFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return &DataFile{
		file:     f,
		pageSize: pageSize,
		pages:    int(info.Size()) / pageSize,
	}, nil
}

func (d *DataFile) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages
}

func (d *DataFile) PageSize() int { return d.pageSize }

// ReadPage reads one page's raw bytes. Reading beyond EOF is a caller bug
// (the buffer pool only reads pages it already allocated), so it surfaces
// as rc.ErrIOErrRead.
func (d *DataFile) ReadPage(pageNum uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := make([]byte, d.pageSize)
	off := int64(pageNum) * int64(d.pageSize)
	if _, err := d.file.ReadAt(buf, off); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: page %d: %v", rc.ErrIOErrRead, pageNum, err)
	}
	return buf, nil
}

// WritePage writes raw bytes at pageNum, extending the file if needed.
func (d *DataFile) WritePage(pageNum uint32, buf []byte) error {
	if len(buf) != d.pageSize {
		return fmt.Errorf("%w: page %d has %d bytes, want %d", rc.ErrIOErrWrite, pageNum, len(buf), d.pageSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	off := int64(pageNum) * int64(d.pageSize)
	if _, err := d.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("%w: page %d: %v", rc.ErrIOErrWrite, pageNum, err)
	}
	if n := int(pageNum) + 1; n > d.pages {
		d.pages = n
	}
	return nil
}

func (d *DataFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Sync()
}

func (d *DataFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}
