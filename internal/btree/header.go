package btree

import (
	"encoding/binary"

	"github.com/tuannm99/novasql/internal/storage"
)

// HeaderPage is one B+tree's own metadata page (distinct from the buffer
// pool's page-0 allocation bitmap): root page number, attribute
// length/type, full key length, and per-level max node size.
type HeaderPage struct{ p *storage.Page }

const (
	hRootOff     = 0  // uint32
	hAttrTypeOff = 4  // uint8
	hAttrLenOff  = 5  // uint16
	hKeyLenOff   = 7  // uint16
	hInternalMax = 9  // uint16
	hLeafMax     = 11 // uint16
)

func AsHeaderPage(p *storage.Page) *HeaderPage { return &HeaderPage{p} }

// InitHeaderPage stamps a freshly allocated page as the tree's header.
// internalMax/leafMax are the per-node entry capacities computed from the
// page size and key length (see capacity.go).
func InitHeaderPage(p *storage.Page, attrType AttrType, attrLen int, internalMax, leafMax int) *HeaderPage {
	h := &HeaderPage{p}
	h.SetRootPageNum(0)
	h.payload()[hAttrTypeOff] = byte(attrType)
	binary.LittleEndian.PutUint16(h.payload()[hAttrLenOff:], uint16(attrLen))
	binary.LittleEndian.PutUint16(h.payload()[hKeyLenOff:], uint16(attrLen+ridSize))
	binary.LittleEndian.PutUint16(h.payload()[hInternalMax:], uint16(internalMax))
	binary.LittleEndian.PutUint16(h.payload()[hLeafMax:], uint16(leafMax))
	return h
}

func (h *HeaderPage) payload() []byte { return h.p.Payload() }

func (h *HeaderPage) RootPageNum() uint32 {
	return binary.LittleEndian.Uint32(h.payload()[hRootOff:])
}

func (h *HeaderPage) SetRootPageNum(n uint32) {
	binary.LittleEndian.PutUint32(h.payload()[hRootOff:], n)
}

func (h *HeaderPage) AttrType() AttrType { return AttrType(h.payload()[hAttrTypeOff]) }

func (h *HeaderPage) AttrLen() int {
	return int(binary.LittleEndian.Uint16(h.payload()[hAttrLenOff:]))
}

func (h *HeaderPage) KeyLen() int {
	return int(binary.LittleEndian.Uint16(h.payload()[hKeyLenOff:]))
}

func (h *HeaderPage) InternalMaxSize() int {
	return int(binary.LittleEndian.Uint16(h.payload()[hInternalMax:]))
}

func (h *HeaderPage) LeafMaxSize() int {
	return int(binary.LittleEndian.Uint16(h.payload()[hLeafMax:]))
}
