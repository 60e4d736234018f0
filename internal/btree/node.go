package btree

import (
	"encoding/binary"

	"github.com/tuannm99/novasql/internal/storage"
)

// NodeType tags whether a node page holds internal or leaf entries.
type NodeType uint8

const (
	NodeInternal NodeType = iota
	NodeLeaf
)

// nodeHeaderSize is len({page_type u8, parent_page_num u32, key_count u16,
// max_size u16, next_page u32}); next_page is leaf-only but kept in the
// common header so InternalNode/LeafNode share one layout.
const nodeHeaderSize = 1 + 4 + 2 + 2 + 4

const (
	nTypeOff   = 0
	nParentOff = 1
	nCountOff  = 5
	nMaxOff    = 7
	nNextOff   = 9
)

// node is the header access shared by InternalNode and LeafNode.
type node struct {
	p      *storage.Page
	keyLen int
}

func (n *node) payload() []byte { return n.p.Payload() }

// PeekNodeType reads the page_type byte directly, without committing to
// either wrapper type, so callers can dispatch before choosing one.
func PeekNodeType(p *storage.Page) NodeType { return NodeType(p.Payload()[nTypeOff]) }

func (n *node) Type() NodeType     { return NodeType(n.payload()[nTypeOff]) }
func (n *node) setType(t NodeType) { n.payload()[nTypeOff] = byte(t) }

func (n *node) ParentPageNum() uint32 {
	return binary.LittleEndian.Uint32(n.payload()[nParentOff:])
}

func (n *node) SetParentPageNum(v uint32) {
	binary.LittleEndian.PutUint32(n.payload()[nParentOff:], v)
}

func (n *node) KeyCount() int {
	return int(binary.LittleEndian.Uint16(n.payload()[nCountOff:]))
}

func (n *node) setKeyCount(v int) {
	binary.LittleEndian.PutUint16(n.payload()[nCountOff:], uint16(v))
}

func (n *node) MaxSize() int {
	return int(binary.LittleEndian.Uint16(n.payload()[nMaxOff:]))
}

func (n *node) setMaxSize(v int) {
	binary.LittleEndian.PutUint16(n.payload()[nMaxOff:], uint16(v))
}

func (n *node) NextPage() uint32 {
	return binary.LittleEndian.Uint32(n.payload()[nNextOff:])
}

func (n *node) SetNextPage(v uint32) {
	binary.LittleEndian.PutUint32(n.payload()[nNextOff:], v)
}

func (n *node) entriesRegion() []byte { return n.payload()[nodeHeaderSize:] }

// IsFull/IsUnderflow classify a node against its max_size for the insert
// and delete algorithms' split/merge triggers. A node is "unsafe" on
// insert when it is already at max_size (the next insert will split
// it), and underflows on delete below half of max_size.
func (n *node) IsFull() bool      { return n.KeyCount() >= n.MaxSize() }
func (n *node) IsUnderflow() bool { return n.KeyCount() < (n.MaxSize()+1)/2 }

// --- InternalNode ---

// InternalNode entries are (key, child_page_num). Entry 0's key is never
// compared (findChildIndex and InsertEntry start at entry 1), so it stands
// for -infinity: a root built by a split stores an all-zero key there, and
// the right half of an internal split keeps the separator key it started
// with.
type InternalNode struct{ node }

func AsInternalNode(p *storage.Page, keyLen int) *InternalNode {
	return &InternalNode{node{p: p, keyLen: keyLen}}
}

func InitInternalNode(p *storage.Page, keyLen, maxSize int) *InternalNode {
	n := &InternalNode{node{p: p, keyLen: keyLen}}
	n.setType(NodeInternal)
	n.SetParentPageNum(0)
	n.setKeyCount(0)
	n.setMaxSize(maxSize)
	n.SetNextPage(0)
	return n
}

func (n *InternalNode) entrySize() int { return n.keyLen + 4 }

func (n *InternalNode) entryAt(i int) []byte {
	sz := n.entrySize()
	return n.entriesRegion()[i*sz : (i+1)*sz]
}

func (n *InternalNode) KeyAt(i int) Key {
	return Key(n.entryAt(i)[:n.keyLen])
}

func (n *InternalNode) ChildAt(i int) uint32 {
	e := n.entryAt(i)
	return binary.LittleEndian.Uint32(e[n.keyLen:])
}

func (n *InternalNode) setEntry(i int, key Key, child uint32) {
	e := n.entryAt(i)
	copy(e[:n.keyLen], key)
	binary.LittleEndian.PutUint32(e[n.keyLen:], child)
}

// findChildIndex returns the index of the child to descend into for key:
// the last entry whose key is <= the search key (entry 0's key is always
// treated as -infinity).
func (n *InternalNode) findChildIndex(key Key) int {
	count := n.KeyCount()
	idx := 0
	for i := 1; i < count; i++ {
		if CompareKeys(n.KeyAt(i), key) <= 0 {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// InsertEntry inserts (key, child) in sorted position, shifting later
// entries right by one slot.
func (n *InternalNode) InsertEntry(key Key, child uint32) {
	count := n.KeyCount()
	pos := count
	for i := 1; i < count; i++ {
		if CompareKeys(n.KeyAt(i), key) > 0 {
			pos = i
			break
		}
	}
	sz := n.entrySize()
	region := n.entriesRegion()
	copy(region[(pos+1)*sz:(count+1)*sz], region[pos*sz:count*sz])
	n.setKeyCount(count + 1)
	n.setEntry(pos, key, child)
}

// RemoveEntryAt deletes the entry at index i.
func (n *InternalNode) RemoveEntryAt(i int) {
	count := n.KeyCount()
	sz := n.entrySize()
	region := n.entriesRegion()
	copy(region[i*sz:(count-1)*sz], region[(i+1)*sz:count*sz])
	n.setKeyCount(count - 1)
}

// internalKV is an in-memory (key, child) pair for split/rebuild.
type internalKV struct {
	key   Key
	child uint32
}

func (n *InternalNode) AllEntries() []internalKV {
	count := n.KeyCount()
	out := make([]internalKV, count)
	for i := 0; i < count; i++ {
		out[i] = internalKV{key: n.KeyAt(i).Clone(), child: n.ChildAt(i)}
	}
	return out
}

func (n *InternalNode) RebuildSorted(entries []internalKV) {
	n.setKeyCount(0)
	for i, e := range entries {
		n.setEntry(i, e.key, e.child)
	}
	n.setKeyCount(len(entries))
}

// --- LeafNode ---

// LeafEntry is just the full Key; the RID value is its embedded suffix,
// with RID doubling as the tie-break so there is nothing extra to store.
type LeafNode struct{ node }

func AsLeafNode(p *storage.Page, keyLen int) *LeafNode {
	return &LeafNode{node{p: p, keyLen: keyLen}}
}

func InitLeafNode(p *storage.Page, keyLen, maxSize int) *LeafNode {
	n := &LeafNode{node{p: p, keyLen: keyLen}}
	n.setType(NodeLeaf)
	n.SetParentPageNum(0)
	n.setKeyCount(0)
	n.setMaxSize(maxSize)
	n.SetNextPage(0)
	return n
}

func (n *LeafNode) entrySize() int { return n.keyLen }

func (n *LeafNode) KeyAt(i int) Key {
	sz := n.entrySize()
	return Key(n.entriesRegion()[i*sz : (i+1)*sz])
}

// lowerBound returns the first index whose key is >= target.
func (n *LeafNode) lowerBound(target Key) int {
	lo, hi := 0, n.KeyCount()
	for lo < hi {
		mid := (lo + hi) / 2
		if CompareKeys(n.KeyAt(mid), target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (n *LeafNode) InsertEntry(key Key) int {
	pos := n.lowerBound(key)
	count := n.KeyCount()
	sz := n.entrySize()
	region := n.entriesRegion()
	copy(region[(pos+1)*sz:(count+1)*sz], region[pos*sz:count*sz])
	copy(region[pos*sz:(pos+1)*sz], key)
	n.setKeyCount(count + 1)
	return pos
}

func (n *LeafNode) RemoveEntryAt(i int) {
	count := n.KeyCount()
	sz := n.entrySize()
	region := n.entriesRegion()
	copy(region[i*sz:(count-1)*sz], region[(i+1)*sz:count*sz])
	n.setKeyCount(count - 1)
}

// AllKeys returns every key in slot order, which InsertEntry/RemoveEntryAt
// keep sorted, so this doubles as the sorted view.
func (n *LeafNode) AllKeys() []Key {
	count := n.KeyCount()
	out := make([]Key, count)
	for i := 0; i < count; i++ {
		out[i] = n.KeyAt(i).Clone()
	}
	return out
}

// RebuildSorted overwrites the entry region with keys (already in
// sorted order) in one pass, used for in-place leaf/internal splits.
func (n *LeafNode) RebuildSorted(keys []Key) {
	sz := n.entrySize()
	region := n.entriesRegion()
	for i, k := range keys {
		copy(region[i*sz:(i+1)*sz], k)
	}
	n.setKeyCount(len(keys))
}
