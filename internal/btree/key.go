// Package btree implements a concurrent B+tree index over typed keys,
// latch-crabbed for concurrent search and mutation, durable via a
// mini-transaction wrapping the shared write-ahead log.
package btree

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/tuannm99/novasql/internal/record"
)

// AttrType names the key's underlying attribute type: keys are typed
// (ints, chars, floats, dates, ...). Dates are encoded the same way as
// ints (days/seconds since epoch), so there is no separate constant for
// them.
type AttrType uint8

const (
	TypeInt32 AttrType = iota
	TypeInt64
	TypeFloat64
	TypeChars
)

// AttrWidth is the encoded byte width of one attribute value for a type,
// given the declared field width (only meaningful for TypeChars).
func AttrWidth(t AttrType, width int) int {
	switch t {
	case TypeInt32:
		return 4
	case TypeInt64:
		return 8
	case TypeFloat64:
		return 8
	case TypeChars:
		return width
	default:
		return width
	}
}

// ridSize is len(EncodeRID(...)): PageNum (4 BE) + Slot (2 BE).
const ridSize = 6

// EncodeInt32 produces an order-preserving big-endian encoding: flipping
// the sign bit makes the unsigned byte order match signed numeric order.
func EncodeInt32(v int32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v)^0x8000_0000)
	return buf
}

func DecodeInt32(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b) ^ 0x8000_0000)
}

func EncodeInt64(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v)^0x8000_0000_0000_0000)
	return buf
}

func DecodeInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ 0x8000_0000_0000_0000)
}

// EncodeFloat64 is the classic order-preserving IEEE-754 transform: for
// non-negative numbers flip the sign bit, for negative numbers flip every
// bit, so the resulting bytes sort the same way the floats compare.
func EncodeFloat64(v float64) []byte {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

func DecodeFloat64(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

// EncodeChars right-pads (or truncates) s to exactly width bytes with
// zero bytes, which sort lowest so shorter strings compare as smaller.
func EncodeChars(s string, width int) []byte {
	buf := make([]byte, width)
	copy(buf, s)
	return buf
}

func EncodeRID(rid record.RID) []byte {
	buf := make([]byte, ridSize)
	binary.BigEndian.PutUint32(buf[0:4], rid.PageNum)
	binary.BigEndian.PutUint16(buf[4:6], rid.Slot)
	return buf
}

func DecodeRID(b []byte) record.RID {
	return record.RID{
		PageNum: binary.BigEndian.Uint32(b[0:4]),
		Slot:    binary.BigEndian.Uint16(b[4:6]),
	}
}

// Key is the full on-page key: attribute bytes followed by the embedded
// RID tie-break, so two keys never compare equal even when their
// attribute values do.
type Key []byte

func MakeKey(attrEncoded []byte, rid record.RID) Key {
	k := make(Key, len(attrEncoded)+ridSize)
	copy(k, attrEncoded)
	copy(k[len(attrEncoded):], EncodeRID(rid))
	return k
}

func (k Key) Attr() []byte     { return k[:len(k)-ridSize] }
func (k Key) RID() record.RID  { return DecodeRID(k[len(k)-ridSize:]) }
func CompareKeys(a, b Key) int { return bytes.Compare(a, b) }
func (k Key) Equal(o Key) bool { return bytes.Equal(k, o) }
func (k Key) Clone() Key       { c := make(Key, len(k)); copy(c, k); return c }
