// Package rc defines the result-code sentinels shared across the storage
// and recovery core. Operations in internal/storage, internal/bufferpool,
// internal/dwb, internal/wal, internal/record, internal/btree, internal/trx
// and internal/engine return one of these (or wrap one with
// fmt.Errorf("...: %w", rc.ErrXxx)) for the failure modes the codes name,
// so callers can branch on errors.Is. Other errors are not mapped to a
// code: file I/O errors pass through unchanged, and argument, catalog and
// log-decode errors are plain fmt.Errorf values.
package rc

import "errors"

var (
	ErrSuccess = error(nil)

	ErrRecordDuplicateKey        = errors.New("rc: duplicate key")
	ErrRecordNotExist            = errors.New("rc: record does not exist")
	ErrRecordEOF                 = errors.New("rc: end of scan")
	ErrRecordInvisible           = errors.New("rc: record invisible to this transaction")
	ErrBufferPoolNoBuf           = errors.New("rc: no free buffer frame")
	ErrBufferPoolInvalidPageNum  = errors.New("rc: invalid page number")
	ErrLogFileFull               = errors.New("rc: log file is full")
	ErrLockedConcurrencyConflict = errors.New("rc: locked by a concurrent transaction")
	ErrIOErrRead                 = errors.New("rc: I/O read error")
	ErrIOErrWrite                = errors.New("rc: I/O write error")
	ErrIOErrSeek                 = errors.New("rc: I/O seek error")
	ErrInternal                  = errors.New("rc: internal error")
	ErrTrxAlreadyDone            = errors.New("rc: transaction already committed or rolled back")
)
