// Package storage implements the fixed-size page format and the raw
// per-file paged I/O beneath the buffer pool.
package storage

import (
	"encoding/binary"
	"hash/crc32"
)

const (
	// DefaultPageSize is the default page size (8 KiB).
	DefaultPageSize = 8192

	// pageHeaderSize is len({page_num int32, lsn int32, checksum uint32}).
	pageHeaderSize = 4 + 4 + 4

	FileMode0644 = 0o644
)

// Page is one fixed-size disk page, header plus module-defined payload.
// Identity is (buffer_pool_id, page_number); Page itself only carries the
// page_number, since buffer_pool_id is a buffer-pool-manager-level concept.
type Page struct {
	buf []byte // len(buf) == page size, header at offset 0
}

// NewPage allocates a zeroed page of the given size with pageNum stamped
// into the header.
func NewPage(size int, pageNum uint32) *Page {
	p := &Page{buf: make([]byte, size)}
	p.SetPageNum(pageNum)
	return p
}

// WrapPage adopts an existing byte slice (e.g. one just read from disk) as
// a Page without copying.
func WrapPage(buf []byte) *Page { return &Page{buf: buf} }

func (p *Page) Bytes() []byte { return p.buf }
func (p *Page) Size() int     { return len(p.buf) }

func (p *Page) PageNum() uint32 { return binary.LittleEndian.Uint32(p.buf[0:4]) }
func (p *Page) SetPageNum(n uint32) {
	binary.LittleEndian.PutUint32(p.buf[0:4], n)
}

func (p *Page) LSN() uint32 { return binary.LittleEndian.Uint32(p.buf[4:8]) }
func (p *Page) SetLSN(lsn uint32) {
	binary.LittleEndian.PutUint32(p.buf[4:8], lsn)
}

func (p *Page) checksumField() uint32 { return binary.LittleEndian.Uint32(p.buf[8:12]) }

// Payload is the module-defined region following the fixed header; record
// manager and B+tree code operate exclusively on this slice.
func (p *Page) Payload() []byte { return p.buf[pageHeaderSize:] }

// PayloadSize is the usable byte count after the header.
func PayloadSize(pageSize int) int { return pageSize - pageHeaderSize }

// Checksum computes the CRC32 of the page contents following the checksum
// field itself (header's page_num + lsn, then the full payload).
func (p *Page) Checksum() uint32 {
	h := crc32.NewIEEE()
	h.Write(p.buf[0:8])
	h.Write(p.buf[12:])
	return h.Sum32()
}

// StampChecksum writes the current Checksum() into the header.
func (p *Page) StampChecksum() {
	binary.LittleEndian.PutUint32(p.buf[8:12], p.Checksum())
}

// VerifyChecksum reports whether the stored checksum matches the contents.
func (p *Page) VerifyChecksum() bool {
	return p.checksumField() == p.Checksum()
}

// Clone returns a deep copy, used when staging a page into the double-write
// buffer or caching a B+tree cursor page.
func (p *Page) Clone() *Page {
	cp := make([]byte, len(p.buf))
	copy(cp, p.buf)
	return &Page{buf: cp}
}
