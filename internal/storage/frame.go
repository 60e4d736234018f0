package storage

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Frame is the in-memory shadow of one page. The pin count is kept as a
// typed atomic so callers in bufferpool and btree can Inc/Dec without
// holding the frame-table mutex; Latch guards the page bytes themselves
// and is acquired/released by higher layers as a leaf latch under the
// buffer pool's own mutex.
type Frame struct {
	ID   int
	Page *Page

	dirty      atomic.Bool
	pinCount   atomic.Int32
	accessedAt atomic.Int64 // unix nanos, used by LRU eviction

	Latch sync.RWMutex
}

func NewFrame(id int, page *Page) *Frame {
	f := &Frame{ID: id, Page: page}
	f.Touch()
	return f
}

func (f *Frame) Dirty() bool     { return f.dirty.Load() }
func (f *Frame) SetDirty(v bool) { f.dirty.Store(v) }

func (f *Frame) PinCount() int32 { return f.pinCount.Load() }
func (f *Frame) Pin()            { f.pinCount.Inc() }

// Unpin decrements the pin count; it never goes below zero.
func (f *Frame) Unpin() {
	for {
		cur := f.pinCount.Load()
		if cur <= 0 {
			return
		}
		if f.pinCount.CAS(cur, cur-1) {
			return
		}
	}
}

func (f *Frame) Touch() { f.accessedAt.Store(time.Now().UnixNano()) }

func (f *Frame) AccessedAt() int64 { return f.accessedAt.Load() }
