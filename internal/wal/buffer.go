package wal

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/tuannm99/novasql/internal/rc"
)

// entryBuffer is the in-memory queue of entries not yet flushed to disk:
// Append assigns the next LSN and enqueues, the background flusher
// drains it. Guarded by a mutex plus atomic current/flushed LSN
// counters.
type entryBuffer struct {
	mu      sync.Mutex
	notFull *sync.Cond
	entries []*Entry
	bytes   int64

	maxBytes int64

	current atomic.Uint64
	flushed atomic.Uint64
}

func newEntryBuffer(maxBufferedBytes int64) *entryBuffer {
	b := &entryBuffer{maxBytes: maxBufferedBytes}
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// append assigns the entry the next LSN, enqueues it, and returns that LSN.
// Back-pressure: once the buffered byte count exceeds maxBytes, append
// blocks the caller until the flusher drains below the threshold, rather
// than growing the queue without bound.
func (b *entryBuffer) append(module ModuleID, payload []byte) (LSN, error) {
	if headerSize+len(payload) > MaxEntrySize {
		return 0, fmt.Errorf("%w: entry too large", rc.ErrLogFileFull)
	}

	b.mu.Lock()
	for b.maxBytes > 0 && b.bytes >= b.maxBytes {
		b.notFull.Wait()
	}
	lsn := LSN(b.current.Inc())
	b.entries = append(b.entries, &Entry{LSN: lsn, Module: module, Payload: payload})
	b.bytes += int64(headerSize + len(payload))
	b.mu.Unlock()
	return lsn, nil
}

// drain removes every currently queued entry for the flusher to write, and
// wakes any back-pressured appenders now that room has freed up.
func (b *entryBuffer) drain() []*Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil
	}
	out := b.entries
	b.entries = nil
	b.bytes = 0
	b.notFull.Broadcast()
	return out
}

func (b *entryBuffer) markFlushed(lsn LSN) { b.flushed.Store(uint64(lsn)) }

func (b *entryBuffer) currentLSN() LSN { return LSN(b.current.Load()) }
func (b *entryBuffer) flushedLSN() LSN { return LSN(b.flushed.Load()) }

func (b *entryBuffer) bufferedBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}
