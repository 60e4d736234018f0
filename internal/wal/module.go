// Package wal implements the write-ahead log entry format, rolling
// on-disk log files, an async append buffer with a background flusher,
// and the replay-driven recovery path every other module's log entries
// feed into.
package wal

// ModuleID tags which subsystem a log entry belongs to, so the integrated
// replayer (internal/engine) can dispatch each entry to the right replay
// handler during recovery.
type ModuleID int32

const (
	ModuleBufferPool ModuleID = iota
	ModuleBPlusTree
	ModuleRecordManager
	ModuleTransaction
)

func (m ModuleID) String() string {
	switch m {
	case ModuleBufferPool:
		return "BUFFER_POOL"
	case ModuleBPlusTree:
		return "BPLUS_TREE"
	case ModuleRecordManager:
		return "RECORD_MANAGER"
	case ModuleTransaction:
		return "TRANSACTION"
	default:
		return "UNKNOWN"
	}
}
