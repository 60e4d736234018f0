package record

import (
	"encoding/binary"
	"fmt"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/rc"
)

// opCode tags a RECORD_MANAGER log entry's payload kind.
type opCode byte

const (
	opInitPage opCode = iota
	opInsert
	opDelete
	opUpdate
)

// logOp is the decoded form of one RECORD_MANAGER log entry payload. Every
// entry carries the buffer pool id ahead of the page number, since page
// numbers are only unique within one open file and the replayer may have
// several files' pools registered at once.
type logOp struct {
	Op         opCode
	PoolID     bufferpool.ID
	PageNum    uint32
	Slot       int
	RecordSize int
	Data       []byte
}

func encodeInitPage(poolID bufferpool.ID, pageNum uint32, recordSize int) []byte {
	buf := make([]byte, 1+4+4+2)
	buf[0] = byte(opInitPage)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(poolID))
	binary.LittleEndian.PutUint32(buf[5:9], pageNum)
	binary.LittleEndian.PutUint16(buf[9:11], uint16(recordSize))
	return buf
}

func encodeInsert(poolID bufferpool.ID, pageNum uint32, slot int, data []byte) []byte {
	return encodeSlotOp(opInsert, poolID, pageNum, slot, data)
}

func encodeUpdate(poolID bufferpool.ID, pageNum uint32, slot int, data []byte) []byte {
	return encodeSlotOp(opUpdate, poolID, pageNum, slot, data)
}

func encodeSlotOp(op opCode, poolID bufferpool.ID, pageNum uint32, slot int, data []byte) []byte {
	buf := make([]byte, 1+4+4+2+2+len(data))
	buf[0] = byte(op)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(poolID))
	binary.LittleEndian.PutUint32(buf[5:9], pageNum)
	binary.LittleEndian.PutUint16(buf[9:11], uint16(slot))
	binary.LittleEndian.PutUint16(buf[11:13], uint16(len(data)))
	copy(buf[13:], data)
	return buf
}

func encodeDelete(poolID bufferpool.ID, pageNum uint32, slot int) []byte {
	buf := make([]byte, 1+4+4+2)
	buf[0] = byte(opDelete)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(poolID))
	binary.LittleEndian.PutUint32(buf[5:9], pageNum)
	binary.LittleEndian.PutUint16(buf[9:11], uint16(slot))
	return buf
}

func decodeLogOp(payload []byte) (*logOp, error) {
	if len(payload) < 9 {
		return nil, fmt.Errorf("%w: short record log payload", rc.ErrInternal)
	}
	op := opCode(payload[0])
	poolID := bufferpool.ID(binary.LittleEndian.Uint32(payload[1:5]))
	pageNum := binary.LittleEndian.Uint32(payload[5:9])

	switch op {
	case opInitPage:
		if len(payload) < 11 {
			return nil, fmt.Errorf("%w: short INIT_PAGE payload", rc.ErrInternal)
		}
		return &logOp{
			Op:         op,
			PoolID:     poolID,
			PageNum:    pageNum,
			RecordSize: int(binary.LittleEndian.Uint16(payload[9:11])),
		}, nil
	case opInsert, opUpdate:
		if len(payload) < 13 {
			return nil, fmt.Errorf("%w: short insert/update payload", rc.ErrInternal)
		}
		size := int(binary.LittleEndian.Uint16(payload[11:13]))
		if len(payload) < 13+size {
			return nil, fmt.Errorf("%w: truncated insert/update data", rc.ErrInternal)
		}
		return &logOp{
			Op:      op,
			PoolID:  poolID,
			PageNum: pageNum,
			Slot:    int(binary.LittleEndian.Uint16(payload[9:11])),
			Data:    payload[13 : 13+size],
		}, nil
	case opDelete:
		if len(payload) < 11 {
			return nil, fmt.Errorf("%w: short DELETE payload", rc.ErrInternal)
		}
		return &logOp{
			Op:      op,
			PoolID:  poolID,
			PageNum: pageNum,
			Slot:    int(binary.LittleEndian.Uint16(payload[9:11])),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown record log opcode %d", rc.ErrInternal, op)
	}
}
