package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/tuannm99/novasql/internal/rc"
)

// LSN is a strictly increasing log sequence number; 0 is never assigned to
// a real entry, so it doubles as "no LSN yet" in replay bookkeeping.
type LSN uint64

// MaxEntrySize bounds one entry's total encoded size.
const MaxEntrySize = 4 * 1024 * 1024

// headerSize is len({lsn uint64, module int32, size int32, crc uint32}).
const headerSize = 8 + 4 + 4 + 4

// Entry is one WAL record: an LSN, the module it belongs to, and an
// opaque payload interpreted only by that module's replayer.
type Entry struct {
	LSN     LSN
	Module  ModuleID
	Payload []byte
}

// Encode serializes an entry to its on-disk form: header + payload, with a
// CRC32 covering the module id, size and payload (not the LSN itself, so
// that record can be stamped with its real LSN right before it is
// written without invalidating a checksum computed earlier).
func (e *Entry) Encode() ([]byte, error) {
	total := headerSize + len(e.Payload)
	if total > MaxEntrySize {
		return nil, fmt.Errorf("%w: entry of %d bytes exceeds max size", rc.ErrLogFileFull, total)
	}

	buf := make([]byte, total)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.LSN))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(e.Module))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(e.Payload)))
	copy(buf[headerSize:], e.Payload)

	crc := crc32.ChecksumIEEE(buf[8:16])
	crc = crc32.Update(crc, crc32.IEEETable, e.Payload)
	binary.LittleEndian.PutUint32(buf[16:20], crc)

	return buf, nil
}

// DecodeEntry parses one entry from the front of buf, returning the entry
// and the number of bytes consumed. It reports rc.ErrIOErrRead on a short
// buffer or checksum mismatch, which callers treat as "stop iterating" —
// the log file's tail is the only place a torn write can appear.
func DecodeEntry(buf []byte) (*Entry, int, error) {
	if len(buf) < headerSize {
		return nil, 0, fmt.Errorf("%w: short entry header", rc.ErrIOErrRead)
	}
	lsn := LSN(binary.LittleEndian.Uint64(buf[0:8]))
	module := ModuleID(binary.LittleEndian.Uint32(buf[8:12]))
	size := binary.LittleEndian.Uint32(buf[12:16])
	wantCRC := binary.LittleEndian.Uint32(buf[16:20])

	total := headerSize + int(size)
	if len(buf) < total {
		return nil, 0, fmt.Errorf("%w: truncated entry payload", rc.ErrIOErrRead)
	}
	payload := buf[headerSize:total]

	gotCRC := crc32.ChecksumIEEE(buf[8:16])
	gotCRC = crc32.Update(gotCRC, crc32.IEEETable, payload)
	if gotCRC != wantCRC {
		return nil, 0, fmt.Errorf("%w: entry checksum mismatch", rc.ErrIOErrRead)
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return &Entry{LSN: lsn, Module: module, Payload: out}, total, nil
}
