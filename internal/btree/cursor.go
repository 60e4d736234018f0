package btree

import (
	"bytes"

	"github.com/tuannm99/novasql/internal/record"
)

// Cursor walks a contiguous range of leaf entries left to right, crossing
// next_page links as it exhausts each leaf. It holds a shared latch on
// at most one leaf page at a time.
type Cursor struct {
	t *Tree

	rightAttr    []byte
	rightIncl    bool
	hasUpperOnly bool

	pageNum uint32
	idx     int
	done    bool
}

// Open positions a cursor at the first entry >= leftAttr (or the very
// first leaf entry when leftAttr is nil), scanning forward until an entry
// exceeds rightAttr (exclusive unless rightIncl, or unbounded when
// rightAttr is nil).
func (t *Tree) Open(leftAttr []byte, rightAttr []byte, rightIncl bool) (*Cursor, error) {
	root, err := t.rootPageNum()
	if err != nil {
		return nil, err
	}

	var start Key
	if leftAttr != nil {
		start = lowKeyForAttr(leftAttr)
	}

	memo := NewLatchMemo(t.bp, t.poolID)
	pageNum := root
	for {
		frame, err := memo.Descend(pageNum, lockShared)
		if err != nil {
			memo.ReleaseAll(false)
			return nil, err
		}
		if PeekNodeType(frame.Page) == NodeLeaf {
			break
		}
		in := AsInternalNode(frame.Page, t.keyLen)
		if start == nil {
			pageNum = in.ChildAt(0)
		} else {
			pageNum = in.ChildAt(in.findChildIndex(start))
		}
		memo.ReleaseAncestors(false)
	}

	leaf := AsLeafNode(memo.Top().Page, t.keyLen)
	idx := 0
	if start != nil {
		idx = leaf.lowerBound(start)
	}
	leafPageNum := memo.TopPageNum()
	memo.ReleaseAll(false)

	return &Cursor{
		t: t, rightAttr: rightAttr, rightIncl: rightIncl,
		hasUpperOnly: rightAttr != nil,
		pageNum:      leafPageNum, idx: idx,
	}, nil
}

// Next returns the next (attr, rid) pair in range, or ok=false once the
// scan is exhausted.
func (c *Cursor) Next() (attr []byte, rid record.RID, ok bool, err error) {
	if c.done {
		return nil, record.RID{}, false, nil
	}

	for {
		frame, err := c.t.bp.GetPage(c.t.poolID, c.pageNum)
		if err != nil {
			c.done = true
			return nil, record.RID{}, false, err
		}
		frame.Latch.RLock()
		leaf := AsLeafNode(frame.Page, c.t.keyLen)

		if c.idx >= leaf.KeyCount() {
			next := leaf.NextPage()
			frame.Latch.RUnlock()
			_ = c.t.bp.UnpinPage(c.t.poolID, c.pageNum, false)
			if next == 0 {
				c.done = true
				return nil, record.RID{}, false, nil
			}
			c.pageNum = next
			c.idx = 0
			continue
		}

		key := leaf.KeyAt(c.idx).Clone()
		frame.Latch.RUnlock()
		_ = c.t.bp.UnpinPage(c.t.poolID, c.pageNum, false)

		if c.hasUpperOnly {
			cmp := bytes.Compare(key.Attr(), c.rightAttr)
			if cmp > 0 || (cmp == 0 && !c.rightIncl) {
				c.done = true
				return nil, record.RID{}, false, nil
			}
		}

		c.idx++
		return key.Attr(), key.RID(), true, nil
	}
}

// Close releases any state the cursor holds. It currently pins no page
// between calls to Next, so this is a no-op kept for symmetry with other
// scanner types in the engine.
func (c *Cursor) Close() {}
