package wal

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"

	"github.com/tuannm99/novasql/internal/rc"
)

const logPrefix = "wal: "

// ModuleReplayer replays one module's log entries in LSN order during
// recovery. OnDone runs once every entry has been replayed, letting a
// module clean up state that only makes sense after the full log is
// known, such as rolling back transactions left in flight by a crash.
type ModuleReplayer interface {
	Replay(e *Entry) error
	OnDone() error
}

// Handler is what every other module depends on to append and recover log
// entries — a Db holds one shared Handler used by every table and index
// under it.
type Handler interface {
	Append(module ModuleID, payload []byte) (LSN, error)
	WaitLSN(lsn LSN) error
	CurrentLSN() LSN
	CurrentFlushedLSN() LSN
	Replay(startLSN LSN, replayers map[ModuleID]ModuleReplayer) error
	Start() error
	Stop() error
}

// DiskHandler is the durable Handler: entries are buffered in memory, a
// single background goroutine drains and fsyncs them to rolling log
// files, and WaitLSN blocks callers (e.g. commit) until their LSN is
// durable. The flusher goroutine is supervised with
// sourcegraph/conc.WaitGroup so a panic inside the flush loop surfaces
// instead of silently killing durability.
type DiskHandler struct {
	files  *FileManager
	buffer *entryBuffer

	mu     sync.Mutex
	writer *FileWriter

	waitMu  sync.Mutex
	waitCnd *sync.Cond

	running atomic.Bool
	wg      conc.WaitGroup
	stopCh  chan struct{}

	flushInterval time.Duration
}

func NewDiskHandler(dir string, maxEntriesPerFile int, maxBufferedBytes int) (*DiskHandler, error) {
	fm, err := NewFileManager(dir, maxEntriesPerFile)
	if err != nil {
		return nil, err
	}
	writer, err := fm.LastFile()
	if err != nil {
		return nil, err
	}
	h := &DiskHandler{
		files:         fm,
		buffer:        newEntryBuffer(int64(maxBufferedBytes)),
		writer:        writer,
		stopCh:        make(chan struct{}),
		flushInterval: 10 * time.Millisecond,
	}
	h.waitCnd = sync.NewCond(&h.waitMu)
	h.restoreLastLSN()
	return h, nil
}

// restoreLastLSN scans every existing log file once at open so a freshly
// reopened handler continues LSN assignment instead of restarting at 1.
func (h *DiskHandler) restoreLastLSN() {
	files, err := h.files.ListFiles(0)
	if err != nil {
		return
	}
	var last LSN
	for _, f := range files {
		_ = ReadFile(f, 0, func(e *Entry) error {
			if e.LSN > last {
				last = e.LSN
			}
			return nil
		})
	}
	if last > 0 {
		h.buffer.current.Store(uint64(last))
		h.buffer.flushed.Store(uint64(last))
	}
}

func (h *DiskHandler) Append(module ModuleID, payload []byte) (LSN, error) {
	return h.buffer.append(module, payload)
}

func (h *DiskHandler) CurrentLSN() LSN        { return h.buffer.currentLSN() }
func (h *DiskHandler) CurrentFlushedLSN() LSN { return h.buffer.flushedLSN() }

// WaitLSN blocks until lsn has been fsynced to disk.
func (h *DiskHandler) WaitLSN(lsn LSN) error {
	h.waitMu.Lock()
	defer h.waitMu.Unlock()
	for h.buffer.flushedLSN() < lsn {
		h.waitCnd.Wait()
	}
	return nil
}

// Start launches the background flusher goroutine.
func (h *DiskHandler) Start() error {
	if !h.running.CAS(false, true) {
		return nil
	}
	h.wg.Go(h.flushLoop)
	return nil
}

func (h *DiskHandler) flushLoop() {
	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			h.flushOnce()
			return
		case <-ticker.C:
			h.flushOnce()
		}
	}
}

func (h *DiskHandler) flushOnce() {
	entries := h.buffer.drain()
	if len(entries) == 0 {
		return
	}

	h.mu.Lock()
	var lastLSN LSN
	for _, e := range entries {
		if h.writer.Full() {
			if err := h.roll(e.LSN); err != nil {
				slog.Error(logPrefix+"roll failed", "err", err)
				h.mu.Unlock()
				return
			}
		}
		if err := h.writer.Write(e); err != nil {
			slog.Error(logPrefix+"write failed", "err", err)
			h.mu.Unlock()
			return
		}
		lastLSN = e.LSN
	}
	if err := h.writer.Sync(); err != nil {
		slog.Error(logPrefix+"sync failed", "err", err)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	h.buffer.markFlushed(lastLSN)
	h.waitMu.Lock()
	h.waitCnd.Broadcast()
	h.waitMu.Unlock()
}

// roll closes the current file and opens the next one, named for
// nextFirstLSN. Caller holds h.mu.
func (h *DiskHandler) roll(nextFirstLSN LSN) error {
	if err := h.writer.Close(); err != nil {
		return err
	}
	next, err := h.files.NextFile(nextFirstLSN)
	if err != nil {
		return err
	}
	h.writer = next
	return nil
}

// Stop signals the flusher to perform one final flush and exit, then waits
// for it.
func (h *DiskHandler) Stop() error {
	if !h.running.CAS(true, false) {
		return nil
	}
	close(h.stopCh)
	h.wg.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writer.Close()
}

// Replay reads every log file from startLSN onward and dispatches each
// entry to the replayer registered for its module, then calls OnDone on
// every registered replayer once the full log has been walked.
func (h *DiskHandler) Replay(startLSN LSN, replayers map[ModuleID]ModuleReplayer) error {
	files, err := h.files.ListFiles(startLSN)
	if err != nil {
		return err
	}
	for _, path := range files {
		err := ReadFile(path, startLSN, func(e *Entry) error {
			r, ok := replayers[e.Module]
			if !ok {
				return nil
			}
			return r.Replay(e)
		})
		if err != nil {
			return fmt.Errorf("%w: replay %s: %v", rc.ErrInternal, path, err)
		}
	}
	for _, r := range replayers {
		if err := r.OnDone(); err != nil {
			return err
		}
	}
	return nil
}

// VacuousHandler discards every appended entry and never blocks WaitLSN —
// a no-durability handler for throwaway and test databases.
type VacuousHandler struct {
	lsn atomic.Uint64
}

func (v *VacuousHandler) Append(ModuleID, []byte) (LSN, error) {
	return LSN(v.lsn.Inc()), nil
}
func (v *VacuousHandler) WaitLSN(LSN) error                             { return nil }
func (v *VacuousHandler) CurrentLSN() LSN                               { return LSN(v.lsn.Load()) }
func (v *VacuousHandler) CurrentFlushedLSN() LSN                        { return LSN(v.lsn.Load()) }
func (v *VacuousHandler) Replay(LSN, map[ModuleID]ModuleReplayer) error { return nil }
func (v *VacuousHandler) Start() error                                  { return nil }
func (v *VacuousHandler) Stop() error                                   { return nil }
