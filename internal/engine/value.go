package engine

import (
	"bytes"
	"fmt"

	"github.com/tuannm99/novasql/internal/btree"
)

// EncodeValue packs a typed Go value into its fixed-width on-disk
// encoding for field type t, using the same order-preserving transforms
// btree's index keys use so a field's row bytes and its index key bytes
// agree.
func EncodeValue(t btree.AttrType, width int, v any) ([]byte, error) {
	switch t {
	case btree.TypeInt32:
		i, ok := v.(int32)
		if !ok {
			return nil, fmt.Errorf("engine: value %v is not an int32", v)
		}
		return btree.EncodeInt32(i), nil
	case btree.TypeInt64:
		i, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("engine: value %v is not an int64", v)
		}
		return btree.EncodeInt64(i), nil
	case btree.TypeFloat64:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("engine: value %v is not a float64", v)
		}
		return btree.EncodeFloat64(f), nil
	case btree.TypeChars:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("engine: value %v is not a string", v)
		}
		if len(s) > width {
			return nil, fmt.Errorf("engine: value %q exceeds field width %d", s, width)
		}
		return btree.EncodeChars(s, width), nil
	default:
		return nil, fmt.Errorf("engine: unknown field type %d", t)
	}
}

// DecodeValue is EncodeValue's inverse, given the exact byte slice
// EncodeValue produced.
func DecodeValue(t btree.AttrType, b []byte) (any, error) {
	switch t {
	case btree.TypeInt32:
		return btree.DecodeInt32(b), nil
	case btree.TypeInt64:
		return btree.DecodeInt64(b), nil
	case btree.TypeFloat64:
		return btree.DecodeFloat64(b), nil
	case btree.TypeChars:
		return string(bytes.TrimRight(b, "\x00")), nil
	default:
		return nil, fmt.Errorf("engine: unknown field type %d", t)
	}
}
