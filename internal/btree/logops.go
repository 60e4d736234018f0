package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/rc"
)

// btreeOp tags a BPLUS_TREE log entry's payload kind.
type btreeOp byte

const (
	opInitHeaderPage btreeOp = iota
	opUpdateRootPage
	opSetParentPage
	opLeafInitEmpty
	opLeafSetNextPage
	opInternalInitEmpty
	opInternalCreateNewRoot
	opInternalUpdateKey
	opNodeInsert
	opNodeRemove

	// compoundMarker tags a WAL entry holding several sub-entries packed
	// together, so they replay as one atomic unit instead of as
	// independently-durable appends. It is distinct from every real
	// btreeOp value above.
	compoundMarker btreeOp = 0xFF
)

// logOp is the decoded form of one BPLUS_TREE log entry. Every entry
// carries PoolID ahead of PageNum for the same reason record/logops.go
// does: page numbers are only unique within one open index file, and a
// replayer may have several registered at once.
type logOp struct {
	Op      btreeOp
	PoolID  bufferpool.ID
	PageNum uint32 // the primary page this entry mutates; gates LSN replay

	AttrType    AttrType
	AttrLen     int
	InternalMax int
	LeafMax     int
	KeyLen      int
	MaxSize     int

	NewRoot uint32
	Parent  uint32
	Next    uint32
	Child   uint32
	IsLeaf  bool
	Key     Key

	LeftChild  uint32
	LeftKey    Key
	RightChild uint32
	RightKey   Key
}

func getU32(buf []byte, off int) uint32    { return binary.LittleEndian.Uint32(buf[off:]) }
func getU16(buf []byte, off int) uint16    { return binary.LittleEndian.Uint16(buf[off:]) }
func putU32(buf []byte, off int, v uint32) { binary.LittleEndian.PutUint32(buf[off:], v) }
func putU16(buf []byte, off int, v uint16) { binary.LittleEndian.PutUint16(buf[off:], v) }

func encodeInitHeaderPage(poolID bufferpool.ID, headerPageNum uint32, attrType AttrType, attrLen, internalMax, leafMax int) []byte {
	buf := make([]byte, 0, 1+4+4+1+2+2+2)
	buf = append(buf, byte(opInitHeaderPage))
	buf = appendU32(buf, uint32(poolID))
	buf = appendU32(buf, headerPageNum)
	buf = append(buf, byte(attrType))
	buf = appendU16(buf, uint16(attrLen))
	buf = appendU16(buf, uint16(internalMax))
	buf = appendU16(buf, uint16(leafMax))
	return buf
}

func encodeUpdateRootPage(poolID bufferpool.ID, headerPageNum, newRoot uint32) []byte {
	buf := make([]byte, 1+4+4+4)
	buf[0] = byte(opUpdateRootPage)
	putU32(buf, 1, uint32(poolID))
	putU32(buf, 5, headerPageNum)
	putU32(buf, 9, newRoot)
	return buf
}

func encodeSetParentPage(poolID bufferpool.ID, pageNum, parent uint32) []byte {
	buf := make([]byte, 1+4+4+4)
	buf[0] = byte(opSetParentPage)
	putU32(buf, 1, uint32(poolID))
	putU32(buf, 5, pageNum)
	putU32(buf, 9, parent)
	return buf
}

func encodeLeafInitEmpty(poolID bufferpool.ID, pageNum uint32, keyLen, maxSize int) []byte {
	buf := make([]byte, 1+4+4+2+2)
	buf[0] = byte(opLeafInitEmpty)
	putU32(buf, 1, uint32(poolID))
	putU32(buf, 5, pageNum)
	putU16(buf, 9, uint16(keyLen))
	putU16(buf, 11, uint16(maxSize))
	return buf
}

func encodeLeafSetNextPage(poolID bufferpool.ID, pageNum, next uint32) []byte {
	buf := make([]byte, 1+4+4+4)
	buf[0] = byte(opLeafSetNextPage)
	putU32(buf, 1, uint32(poolID))
	putU32(buf, 5, pageNum)
	putU32(buf, 9, next)
	return buf
}

func encodeInternalInitEmpty(poolID bufferpool.ID, pageNum uint32, keyLen, maxSize int) []byte {
	buf := make([]byte, 1+4+4+2+2)
	buf[0] = byte(opInternalInitEmpty)
	putU32(buf, 1, uint32(poolID))
	putU32(buf, 5, pageNum)
	putU16(buf, 9, uint16(keyLen))
	putU16(buf, 11, uint16(maxSize))
	return buf
}

func encodeInternalCreateNewRoot(poolID bufferpool.ID, newRoot uint32, keyLen, maxSize int, leftChild uint32, leftKey Key, rightChild uint32, rightKey Key) []byte {
	buf := make([]byte, 0, 1+4+4+2+2+4+2+len(leftKey)+4+2+len(rightKey))
	buf = append(buf, byte(opInternalCreateNewRoot))
	buf = appendU32(buf, uint32(poolID))
	buf = appendU32(buf, newRoot)
	buf = appendU16(buf, uint16(keyLen))
	buf = appendU16(buf, uint16(maxSize))
	buf = appendU32(buf, leftChild)
	buf = appendU16(buf, uint16(len(leftKey)))
	buf = append(buf, leftKey...)
	buf = appendU32(buf, rightChild)
	buf = appendU16(buf, uint16(len(rightKey)))
	buf = append(buf, rightKey...)
	return buf
}

func encodeInternalUpdateKey(poolID bufferpool.ID, pageNum, child uint32, key Key) []byte {
	buf := make([]byte, 0, 1+4+4+4+2+len(key))
	buf = append(buf, byte(opInternalUpdateKey))
	buf = appendU32(buf, uint32(poolID))
	buf = appendU32(buf, pageNum)
	buf = appendU32(buf, child)
	buf = appendU16(buf, uint16(len(key)))
	buf = append(buf, key...)
	return buf
}

func encodeNodeInsert(poolID bufferpool.ID, pageNum uint32, isLeaf bool, key Key, child uint32) []byte {
	buf := make([]byte, 0, 1+4+4+1+2+len(key)+4)
	buf = append(buf, byte(opNodeInsert))
	buf = appendU32(buf, uint32(poolID))
	buf = appendU32(buf, pageNum)
	buf = appendBool(buf, isLeaf)
	buf = appendU16(buf, uint16(len(key)))
	buf = append(buf, key...)
	buf = appendU32(buf, child)
	return buf
}

func encodeNodeRemove(poolID bufferpool.ID, pageNum uint32, isLeaf bool, key Key) []byte {
	buf := make([]byte, 0, 1+4+4+1+2+len(key))
	buf = append(buf, byte(opNodeRemove))
	buf = appendU32(buf, uint32(poolID))
	buf = appendU32(buf, pageNum)
	buf = appendBool(buf, isLeaf)
	buf = appendU16(buf, uint16(len(key)))
	buf = append(buf, key...)
	return buf
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// encodeCompound packs several already-encoded sub-entry payloads into one
// WAL payload, length-prefixed so each can be sliced back out for decoding
// without needing decodeLogOp to report how many bytes it consumed.
func encodeCompound(entries [][]byte) []byte {
	buf := make([]byte, 0, 3+len(entries)*4)
	buf = append(buf, byte(compoundMarker))
	buf = appendU16(buf, uint16(len(entries)))
	for _, e := range entries {
		buf = appendU32(buf, uint32(len(e)))
		buf = append(buf, e...)
	}
	return buf
}

// isCompound reports whether payload was built by encodeCompound.
func isCompound(payload []byte) bool {
	return len(payload) > 0 && btreeOp(payload[0]) == compoundMarker
}

// decodeCompound splits a compound payload back into its sub-entry byte
// slices, each ready for decodeLogOp.
func decodeCompound(payload []byte) ([][]byte, error) {
	b := payload[1:]
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: short compound btree log payload", rc.ErrInternal)
	}
	count := int(getU16(b, 0))
	b = b[2:]
	entries := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: truncated compound btree log payload", rc.ErrInternal)
		}
		n := int(getU32(b, 0))
		b = b[4:]
		if len(b) < n {
			return nil, fmt.Errorf("%w: truncated compound btree log sub-entry", rc.ErrInternal)
		}
		entries = append(entries, b[:n])
		b = b[n:]
	}
	return entries, nil
}

func decodeLogOp(payload []byte) (*logOp, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty btree log payload", rc.ErrInternal)
	}
	op := btreeOp(payload[0])
	b := payload[1:]

	switch op {
	case opInitHeaderPage:
		if len(b) < 4+4+1+2+2+2 {
			return nil, fmt.Errorf("%w: short INIT_HEADER_PAGE payload", rc.ErrInternal)
		}
		return &logOp{
			Op:          op,
			PoolID:      bufferpool.ID(getU32(b, 0)),
			PageNum:     getU32(b, 4),
			AttrType:    AttrType(b[8]),
			AttrLen:     int(getU16(b, 9)),
			InternalMax: int(getU16(b, 11)),
			LeafMax:     int(getU16(b, 13)),
		}, nil
	case opUpdateRootPage:
		if len(b) < 12 {
			return nil, fmt.Errorf("%w: short UPDATE_ROOT_PAGE payload", rc.ErrInternal)
		}
		return &logOp{Op: op, PoolID: bufferpool.ID(getU32(b, 0)), PageNum: getU32(b, 4), NewRoot: getU32(b, 8)}, nil
	case opSetParentPage:
		if len(b) < 12 {
			return nil, fmt.Errorf("%w: short SET_PARENT_PAGE payload", rc.ErrInternal)
		}
		return &logOp{Op: op, PoolID: bufferpool.ID(getU32(b, 0)), PageNum: getU32(b, 4), Parent: getU32(b, 8)}, nil
	case opLeafInitEmpty, opInternalInitEmpty:
		if len(b) < 12 {
			return nil, fmt.Errorf("%w: short INIT_EMPTY payload", rc.ErrInternal)
		}
		return &logOp{
			Op: op, PoolID: bufferpool.ID(getU32(b, 0)), PageNum: getU32(b, 4),
			KeyLen: int(getU16(b, 8)), MaxSize: int(getU16(b, 10)),
		}, nil
	case opLeafSetNextPage:
		if len(b) < 12 {
			return nil, fmt.Errorf("%w: short LEAF_SET_NEXT_PAGE payload", rc.ErrInternal)
		}
		return &logOp{Op: op, PoolID: bufferpool.ID(getU32(b, 0)), PageNum: getU32(b, 4), Next: getU32(b, 8)}, nil
	case opInternalCreateNewRoot:
		if len(b) < 16 {
			return nil, fmt.Errorf("%w: short INTERNAL_CREATE_NEW_ROOT payload", rc.ErrInternal)
		}
		poolID := bufferpool.ID(getU32(b, 0))
		newRoot := getU32(b, 4)
		keyLen := int(getU16(b, 8))
		maxSize := int(getU16(b, 10))
		leftChild := getU32(b, 12)
		pos := 16
		if len(b) < pos+2 {
			return nil, fmt.Errorf("%w: truncated INTERNAL_CREATE_NEW_ROOT left key", rc.ErrInternal)
		}
		leftKeyLen := int(getU16(b, pos))
		pos += 2
		if len(b) < pos+leftKeyLen+4+2 {
			return nil, fmt.Errorf("%w: truncated INTERNAL_CREATE_NEW_ROOT payload", rc.ErrInternal)
		}
		leftKey := Key(b[pos : pos+leftKeyLen])
		pos += leftKeyLen
		rightChild := getU32(b, pos)
		pos += 4
		rightKeyLen := int(getU16(b, pos))
		pos += 2
		if len(b) < pos+rightKeyLen {
			return nil, fmt.Errorf("%w: truncated INTERNAL_CREATE_NEW_ROOT right key", rc.ErrInternal)
		}
		rightKey := Key(b[pos : pos+rightKeyLen])
		return &logOp{
			Op: op, PoolID: poolID, PageNum: newRoot, NewRoot: newRoot,
			KeyLen: keyLen, MaxSize: maxSize,
			LeftChild: leftChild, LeftKey: leftKey,
			RightChild: rightChild, RightKey: rightKey,
		}, nil
	case opInternalUpdateKey:
		if len(b) < 12+2 {
			return nil, fmt.Errorf("%w: short INTERNAL_UPDATE_KEY payload", rc.ErrInternal)
		}
		poolID := bufferpool.ID(getU32(b, 0))
		pageNum := getU32(b, 4)
		child := getU32(b, 8)
		keyLen := int(getU16(b, 12))
		if len(b) < 14+keyLen {
			return nil, fmt.Errorf("%w: truncated INTERNAL_UPDATE_KEY payload", rc.ErrInternal)
		}
		return &logOp{Op: op, PoolID: poolID, PageNum: pageNum, Child: child, Key: Key(b[14 : 14+keyLen])}, nil
	case opNodeInsert:
		if len(b) < 9+2 {
			return nil, fmt.Errorf("%w: short NODE_INSERT payload", rc.ErrInternal)
		}
		poolID := bufferpool.ID(getU32(b, 0))
		pageNum := getU32(b, 4)
		isLeaf := b[8] != 0
		keyLen := int(getU16(b, 9))
		if len(b) < 11+keyLen+4 {
			return nil, fmt.Errorf("%w: truncated NODE_INSERT payload", rc.ErrInternal)
		}
		key := Key(b[11 : 11+keyLen])
		child := getU32(b, 11+keyLen)
		return &logOp{Op: op, PoolID: poolID, PageNum: pageNum, IsLeaf: isLeaf, Key: key, Child: child}, nil
	case opNodeRemove:
		if len(b) < 9+2 {
			return nil, fmt.Errorf("%w: short NODE_REMOVE payload", rc.ErrInternal)
		}
		poolID := bufferpool.ID(getU32(b, 0))
		pageNum := getU32(b, 4)
		isLeaf := b[8] != 0
		keyLen := int(getU16(b, 9))
		if len(b) < 11+keyLen {
			return nil, fmt.Errorf("%w: truncated NODE_REMOVE payload", rc.ErrInternal)
		}
		key := Key(b[11 : 11+keyLen])
		return &logOp{Op: op, PoolID: poolID, PageNum: pageNum, IsLeaf: isLeaf, Key: key}, nil
	default:
		return nil, fmt.Errorf("%w: unknown btree log opcode %d", rc.ErrInternal, op)
	}
}
