package btree

import (
	"bytes"

	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/rc"
	"github.com/tuannm99/novasql/internal/record"
	"github.com/tuannm99/novasql/internal/storage"
	"github.com/tuannm99/novasql/internal/wal"
)

// Tree is a concurrent B+tree index over one open buffer-pool file. One
// header page holds the root page number plus the type/width metadata
// every node needs to interpret its entries; internal nodes store (key,
// child_page) with an unused leftmost key, leaves store keys alone (the
// RID value is the key's own tie-break suffix) and are linked by
// next_page for range scans.
type Tree struct {
	bp     *bufferpool.Manager
	poolID bufferpool.ID
	log    wal.Handler

	headerPageNum uint32
	attrType      AttrType
	attrLen       int
	keyLen        int
	internalMax   int
	leafMax       int
}

// CreateTree allocates and initializes a brand-new index: a header page
// plus an empty root leaf.
func CreateTree(bp *bufferpool.Manager, poolID bufferpool.ID, log wal.Handler, attrType AttrType, attrLen int) (*Tree, uint32, error) {
	hpNum, hFrame, err := bp.AllocatePage(poolID)
	if err != nil {
		return nil, 0, err
	}
	keyLen := attrLen + ridSize
	payloadSize := len(hFrame.Page.Payload())
	internalMax := internalMaxSize(payloadSize, keyLen)
	leafMax := leafMaxSize(payloadSize, keyLen)

	rootNum, rFrame, err := bp.AllocatePage(poolID)
	if err != nil {
		_ = bp.UnpinPage(poolID, hpNum, false)
		return nil, 0, err
	}

	hFrame.Latch.Lock()
	InitHeaderPage(hFrame.Page, attrType, attrLen, internalMax, leafMax)
	rFrame.Latch.Lock()
	InitLeafNode(rFrame.Page, keyLen, leafMax)
	rFrame.Latch.Unlock()
	AsHeaderPage(hFrame.Page).SetRootPageNum(rootNum)
	hFrame.Latch.Unlock()

	mtr := newMiniTransaction(log, poolID)
	mtr.record(hFrame.Page, encodeInitHeaderPage(poolID, hpNum, attrType, attrLen, internalMax, leafMax), func() {})
	mtr.record(rFrame.Page, encodeLeafInitEmpty(poolID, rootNum, keyLen, leafMax), func() {})
	mtr.record(hFrame.Page, encodeUpdateRootPage(poolID, hpNum, rootNum), func() {})
	if err := mtr.Finish(); err != nil {
		_ = bp.UnpinPage(poolID, rootNum, true)
		_ = bp.UnpinPage(poolID, hpNum, true)
		return nil, 0, err
	}

	_ = bp.UnpinPage(poolID, rootNum, true)
	_ = bp.UnpinPage(poolID, hpNum, true)

	return &Tree{
		bp: bp, poolID: poolID, log: log,
		headerPageNum: hpNum, attrType: attrType, attrLen: attrLen,
		keyLen: keyLen, internalMax: internalMax, leafMax: leafMax,
	}, hpNum, nil
}

// OpenTree reopens an existing index given its header page number.
func OpenTree(bp *bufferpool.Manager, poolID bufferpool.ID, log wal.Handler, headerPageNum uint32) (*Tree, error) {
	frame, err := bp.GetPage(poolID, headerPageNum)
	if err != nil {
		return nil, err
	}
	frame.Latch.RLock()
	h := AsHeaderPage(frame.Page)
	t := &Tree{
		bp: bp, poolID: poolID, log: log,
		headerPageNum: headerPageNum,
		attrType:      h.AttrType(),
		attrLen:       h.AttrLen(),
		keyLen:        h.KeyLen(),
		internalMax:   h.InternalMaxSize(),
		leafMax:       h.LeafMaxSize(),
	}
	frame.Latch.RUnlock()
	_ = bp.UnpinPage(poolID, headerPageNum, false)
	return t, nil
}

func (t *Tree) KeyLen() int { return t.keyLen }

func (t *Tree) rootPageNum() (uint32, error) {
	frame, err := t.bp.GetPage(t.poolID, t.headerPageNum)
	if err != nil {
		return 0, err
	}
	frame.Latch.RLock()
	root := AsHeaderPage(frame.Page).RootPageNum()
	frame.Latch.RUnlock()
	_ = t.bp.UnpinPage(t.poolID, t.headerPageNum, false)
	return root, nil
}

func lowKeyForAttr(attr []byte) Key { return MakeKey(attr, record.RID{}) }

// SearchEqual returns every RID whose attribute value equals attr,
// descending with shared latches released child-then-parent.
func (t *Tree) SearchEqual(attr []byte) ([]record.RID, error) {
	root, err := t.rootPageNum()
	if err != nil {
		return nil, err
	}
	target := lowKeyForAttr(attr)

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
		pageNum = in.ChildAt(in.findChildIndex(target))
		memo.ReleaseAncestors(false)
	}

	leaf := AsLeafNode(memo.Top().Page, t.keyLen)
	var out []record.RID
	for i := leaf.lowerBound(target); i < leaf.KeyCount(); i++ {
		k := leaf.KeyAt(i)
		if !bytes.Equal(k.Attr(), attr) {
			break
		}
		out = append(out, k.RID())
	}
	memo.ReleaseAll(false)
	return out, nil
}

// Insert descends with exclusive crabbing, releasing an ancestor once the
// child just visited is proven safe (won't split), splitting leaves and
// internal nodes bottom-up otherwise.
//
// Simplification: an "optimistic shared descent first, pessimistic
// exclusive restart on split" two-phase protocol collapses here to a
// single pessimistic exclusive descent with the same ancestor-release
// discipline; see DESIGN.md's B+tree entry.
func (t *Tree) Insert(attr []byte, rid record.RID) error {
	if len(attr) != t.attrLen {
		return rc.ErrInternal
	}
	key := MakeKey(attr, rid)

	mtr := newMiniTransaction(t.log, t.poolID)
	memo := NewLatchMemo(t.bp, t.poolID)

	hFrame, err := memo.Descend(t.headerPageNum, lockExclusive)
	if err != nil {
		return err
	}
	hHdr := AsHeaderPage(hFrame.Page)
	root := hHdr.RootPageNum()

	sepKey, sepChild, split, err := t.insertRecurse(memo, mtr, root, key)
	if err != nil {
		mtr.Fail()
		memo.ReleaseAll(false)
		return err
	}

	if split {
		oldRoot := root
		newRootNum, rFrame, aerr := t.bp.AllocatePage(t.poolID)
		if aerr != nil {
			mtr.Fail()
			memo.ReleaseAll(true)
			return aerr
		}
		zeroKey := make(Key, t.keyLen)
		rFrame.Latch.Lock()
		rin := InitInternalNode(rFrame.Page, t.keyLen, t.internalMax)
		rin.InsertEntry(zeroKey, oldRoot)
		rin.InsertEntry(sepKey, sepChild)
		rFrame.Latch.Unlock()

		mtr.record(rFrame.Page, encodeInternalCreateNewRoot(t.poolID, newRootNum, t.keyLen, t.internalMax, oldRoot, zeroKey, sepChild, sepKey), func() {})
		hHdr.SetRootPageNum(newRootNum)
		mtr.record(hFrame.Page, encodeUpdateRootPage(t.poolID, t.headerPageNum, newRootNum), func() { hHdr.SetRootPageNum(oldRoot) })

		if err := t.setChildParent(mtr, oldRoot, newRootNum); err != nil {
			mtr.Fail()
			memo.ReleaseAll(true)
			_ = t.bp.UnpinPage(t.poolID, newRootNum, true)
			return err
		}
		if err := t.setChildParent(mtr, sepChild, newRootNum); err != nil {
			mtr.Fail()
			memo.ReleaseAll(true)
			_ = t.bp.UnpinPage(t.poolID, newRootNum, true)
			return err
		}
		_ = t.bp.UnpinPage(t.poolID, newRootNum, true)
	}

	memo.ReleaseAll(true)
	return mtr.Finish()
}

// insertRecurse descends to pageNum (already an ancestor of everything
// memo currently holds), inserts key, and reports whether pageNum itself
// split. Safe nodes release every ancestor above them as soon as that
// safety is established; unsafe (full) nodes keep the whole path latched
// so the caller can insert the returned separator into the parent.
func (t *Tree) insertRecurse(memo *LatchMemo, mtr *miniTransaction, pageNum uint32, key Key) (sepKey Key, sepChild uint32, split bool, err error) {
	frame, err := memo.Descend(pageNum, lockExclusive)
	if err != nil {
		return nil, 0, false, err
	}

	if PeekNodeType(frame.Page) == NodeLeaf {
		leaf := AsLeafNode(frame.Page, t.keyLen)
		if leaf.KeyCount() < leaf.MaxSize() {
			memo.ReleaseAncestors(false)
			leaf.InsertEntry(key)
			mtr.record(frame.Page, encodeNodeInsert(t.poolID, pageNum, true, key, 0), func() {
				if idx := leaf.lowerBound(key); idx < leaf.KeyCount() && leaf.KeyAt(idx).Equal(key) {
					leaf.RemoveEntryAt(idx)
				}
			})
			return nil, 0, false, nil
		}

		all := leaf.AllKeys()
		combined := insertSortedKey(all, key)
		mid := len(combined) / 2
		leftKeys, rightKeys := combined[:mid], combined[mid:]

		rightNum, rFrame, aerr := t.bp.AllocatePage(t.poolID)
		if aerr != nil {
			return nil, 0, false, aerr
		}
		oldNext := leaf.NextPage()
		parent := leaf.ParentPageNum()

		rFrame.Latch.Lock()
		rightLeaf := InitLeafNode(rFrame.Page, t.keyLen, t.leafMax)
		rightLeaf.RebuildSorted(rightKeys)
		rightLeaf.SetNextPage(oldNext)
		rightLeaf.SetParentPageNum(parent)
		rFrame.Latch.Unlock()

		leaf.RebuildSorted(leftKeys)
		leaf.SetNextPage(rightNum)

		mtr.record(rFrame.Page, encodeLeafInitEmpty(t.poolID, rightNum, t.keyLen, t.leafMax), func() {})
		for _, k := range rightKeys {
			mtr.record(rFrame.Page, encodeNodeInsert(t.poolID, rightNum, true, k, 0), func() {})
		}
		mtr.record(rFrame.Page, encodeSetParentPage(t.poolID, rightNum, parent), func() {})
		mtr.record(rFrame.Page, encodeLeafSetNextPage(t.poolID, rightNum, oldNext), func() {})

		mtr.record(frame.Page, encodeLeafInitEmpty(t.poolID, pageNum, t.keyLen, t.leafMax), func() {})
		for _, k := range leftKeys {
			mtr.record(frame.Page, encodeNodeInsert(t.poolID, pageNum, true, k, 0), func() {})
		}
		mtr.record(frame.Page, encodeLeafSetNextPage(t.poolID, pageNum, rightNum), func() {})

		_ = t.bp.UnpinPage(t.poolID, rightNum, true)
		return rightKeys[0].Clone(), rightNum, true, nil
	}

	in := AsInternalNode(frame.Page, t.keyLen)
	childNum := in.ChildAt(in.findChildIndex(key))

	childSepKey, childSepChild, childSplit, err := t.insertRecurse(memo, mtr, childNum, key)
	if err != nil {
		return nil, 0, false, err
	}
	if !childSplit {
		return nil, 0, false, nil
	}
	// The child's split is complete; drop it so this node is back on top
	// of memo, still latched, while the separator goes in.
	memo.ReleaseTop(true)

	if in.KeyCount() < in.MaxSize() {
		memo.ReleaseAncestors(false)
		in.InsertEntry(childSepKey, childSepChild)
		mtr.record(frame.Page, encodeNodeInsert(t.poolID, pageNum, false, childSepKey, childSepChild), func() {
			for i := 0; i < in.KeyCount(); i++ {
				if in.ChildAt(i) == childSepChild {
					in.RemoveEntryAt(i)
					break
				}
			}
		})
		mtr.record(frame.Page, encodeSetParentPage(t.poolID, childSepChild, pageNum), func() {})
		return nil, 0, false, nil
	}

	all := in.AllEntries()
	combined := insertSortedKV(all, internalKV{key: childSepKey, child: childSepChild})
	mid := len(combined) / 2
	leftEnts, rightEnts := combined[:mid], combined[mid:]
	sep := rightEnts[0].key
	parent := in.ParentPageNum()

	rightNum, rFrame, aerr := t.bp.AllocatePage(t.poolID)
	if aerr != nil {
		return nil, 0, false, aerr
	}
	rFrame.Latch.Lock()
	rin := InitInternalNode(rFrame.Page, t.keyLen, t.internalMax)
	rin.RebuildSorted(rightEnts)
	rin.SetParentPageNum(parent)
	rFrame.Latch.Unlock()

	in.RebuildSorted(leftEnts)

	mtr.record(rFrame.Page, encodeInternalInitEmpty(t.poolID, rightNum, t.keyLen, t.internalMax), func() {})
	for _, e := range rightEnts {
		mtr.record(rFrame.Page, encodeNodeInsert(t.poolID, rightNum, false, e.key, e.child), func() {})
	}
	mtr.record(rFrame.Page, encodeSetParentPage(t.poolID, rightNum, parent), func() {})
	mtr.record(frame.Page, encodeInternalInitEmpty(t.poolID, pageNum, t.keyLen, t.internalMax), func() {})
	for _, e := range leftEnts {
		mtr.record(frame.Page, encodeNodeInsert(t.poolID, pageNum, false, e.key, e.child), func() {})
	}

	for _, e := range rightEnts {
		if err := t.setChildParent(mtr, e.child, rightNum); err != nil {
			_ = t.bp.UnpinPage(t.poolID, rightNum, true)
			return nil, 0, false, err
		}
	}

	_ = t.bp.UnpinPage(t.poolID, rightNum, true)
	return sep.Clone(), rightNum, true, nil
}

// setChildParent latches childNum outside the main crabbing path to stamp
// its parent_page_num after it moved to a new parent (root split, internal
// split, or delete-time merge).
func (t *Tree) setChildParent(mtr *miniTransaction, childNum, parentNum uint32) error {
	cFrame, err := t.bp.GetPage(t.poolID, childNum)
	if err != nil {
		return err
	}
	cFrame.Latch.Lock()
	n := &node{p: cFrame.Page}
	oldParent := n.ParentPageNum()
	n.SetParentPageNum(parentNum)
	cFrame.Latch.Unlock()

	mtr.record(cFrame.Page, encodeSetParentPage(t.poolID, childNum, parentNum), func() {
		cFrame.Latch.Lock()
		(&node{p: cFrame.Page}).SetParentPageNum(oldParent)
		cFrame.Latch.Unlock()
	})
	return t.bp.UnpinPage(t.poolID, childNum, true)
}

func insertSortedKey(sorted []Key, k Key) []Key {
	pos := 0
	for pos < len(sorted) && CompareKeys(sorted[pos], k) < 0 {
		pos++
	}
	out := make([]Key, 0, len(sorted)+1)
	out = append(out, sorted[:pos]...)
	out = append(out, k)
	out = append(out, sorted[pos:]...)
	return out
}

func insertSortedKV(sorted []internalKV, e internalKV) []internalKV {
	pos := 0
	for pos < len(sorted) && CompareKeys(sorted[pos].key, e.key) < 0 {
		pos++
	}
	out := make([]internalKV, 0, len(sorted)+1)
	out = append(out, sorted[:pos]...)
	out = append(out, e)
	out = append(out, sorted[pos:]...)
	return out
}

// Delete removes the (attr, rid) entry, borrowing from or merging with a
// sibling on underflow and collapsing the root when its last entry is
// removed.
//
// Simplification: delete keeps the whole root-to-leaf path exclusively
// latched for the entire operation rather than releasing proven-safe
// ancestors as it descends (insert does release them); see DESIGN.md's
// B+tree entry. Correct, just more conservative about concurrent
// throughput.
func (t *Tree) Delete(attr []byte, rid record.RID) error {
	if len(attr) != t.attrLen {
		return rc.ErrInternal
	}
	key := MakeKey(attr, rid)

	mtr := newMiniTransaction(t.log, t.poolID)
	memo := NewLatchMemo(t.bp, t.poolID)

	hFrame, err := memo.Descend(t.headerPageNum, lockExclusive)
	if err != nil {
		return err
	}
	hHdr := AsHeaderPage(hFrame.Page)
	pageNum := hHdr.RootPageNum()

	for {
		frame, err := memo.Descend(pageNum, lockExclusive)
		if err != nil {
			memo.ReleaseAll(false)
			return err
		}
		if PeekNodeType(frame.Page) == NodeLeaf {
			break
		}
		in := AsInternalNode(frame.Page, t.keyLen)
		pageNum = in.ChildAt(in.findChildIndex(key))
	}

	leafFrame := memo.Top()
	leafPageNum := memo.TopPageNum()
	leaf := AsLeafNode(leafFrame.Page, t.keyLen)
	idx := leaf.lowerBound(key)
	if idx >= leaf.KeyCount() || !leaf.KeyAt(idx).Equal(key) {
		memo.ReleaseAll(false)
		return rc.ErrRecordNotExist
	}
	leaf.RemoveEntryAt(idx)
	mtr.record(leafFrame.Page, encodeNodeRemove(t.poolID, leafPageNum, true, key), func() {
		leaf.InsertEntry(key)
	})

	isRoot := memo.Len() == 2
	if isRoot || !leaf.IsUnderflow() {
		memo.ReleaseAll(true)
		return mtr.Finish()
	}

	if err := t.fixUnderflow(memo, mtr, hHdr); err != nil {
		mtr.Fail()
		memo.ReleaseAll(true)
		return err
	}
	memo.ReleaseAll(true)
	return mtr.Finish()
}

// fixUnderflow walks memo's retained path from the leaf upward, borrowing
// from or merging with a sibling at each underflowed level, collapsing the
// root if it is left with a single child.
func (t *Tree) fixUnderflow(memo *LatchMemo, mtr *miniTransaction, hHdr *HeaderPage) error {
	for {
		if memo.Len() < 2 {
			return nil
		}
		childFrame := memo.Top()
		childPageNum := memo.TopPageNum()
		isLeaf := PeekNodeType(childFrame.Page) == NodeLeaf

		if memo.Len() == 2 {
			if !isLeaf {
				in := AsInternalNode(childFrame.Page, t.keyLen)
				if in.KeyCount() == 1 {
					newRoot := in.ChildAt(0)
					hHdr.SetRootPageNum(newRoot)
					mtr.record(memo.At(1).Page, encodeUpdateRootPage(t.poolID, t.headerPageNum, newRoot), func() {
						hHdr.SetRootPageNum(childPageNum)
					})
					if err := t.setChildParent(mtr, newRoot, t.headerPageNum); err != nil {
						return err
					}
					if err := t.bp.DisposePage(t.poolID, childPageNum); err != nil {
						return err
					}
					memo.ReleaseTop(true)
				}
			}
			return nil
		}

		parentFrame := memo.At(1)
		parentPageNum := memo.pages[len(memo.pages)-2]
		parent := AsInternalNode(parentFrame.Page, t.keyLen)

		childIdx := -1
		for i := 0; i < parent.KeyCount(); i++ {
			if parent.ChildAt(i) == childPageNum {
				childIdx = i
				break
			}
		}
		if childIdx < 0 {
			return rc.ErrInternal
		}

		merged, err := t.rebalance(mtr, parent, parentPageNum, childIdx, childFrame, childPageNum, isLeaf)
		if err != nil {
			return err
		}
		memo.ReleaseTop(true)
		if !merged || !parent.IsUnderflow() {
			return nil
		}
	}
}

func nodeKeyCount(p *storage.Page, keyLen int, isLeaf bool) int {
	if isLeaf {
		return AsLeafNode(p, keyLen).KeyCount()
	}
	return AsInternalNode(p, keyLen).KeyCount()
}

func minSize(maxSize int) int { return (maxSize + 1) / 2 }

// rebalance fixes up childPageNum's underflow against its immediate
// sibling, preferring the right sibling, falling back to the left. It
// reports whether the fix was a merge (parent lost an entry, possibly
// underflowing itself) as opposed to a borrow (parent only had one
// separator key rewritten).
func (t *Tree) rebalance(mtr *miniTransaction, parent *InternalNode, parentPageNum uint32, childIdx int, childFrame *storage.Frame, childPageNum uint32, isLeaf bool) (merged bool, err error) {
	n := parent.KeyCount()
	maxSize := t.leafMax
	if !isLeaf {
		maxSize = t.internalMax
	}
	min := minSize(maxSize)

	if childIdx+1 < n {
		rightNum := parent.ChildAt(childIdx + 1)
		rFrame, err := t.bp.GetPage(t.poolID, rightNum)
		if err != nil {
			return false, err
		}
		rFrame.Latch.Lock()
		if nodeKeyCount(rFrame.Page, t.keyLen, isLeaf) > min {
			t.borrow(mtr, parent, parentPageNum, childIdx+1, childFrame, childPageNum, rFrame, rightNum, isLeaf, true)
			rFrame.Latch.Unlock()
			_ = t.bp.UnpinPage(t.poolID, rightNum, true)
			return false, nil
		}
		t.merge(mtr, parent, parentPageNum, childIdx, childIdx+1, childFrame, childPageNum, rFrame, rightNum, isLeaf)
		rFrame.Latch.Unlock()
		_ = t.bp.UnpinPage(t.poolID, rightNum, true)
		return true, nil
	}

	leftNum := parent.ChildAt(childIdx - 1)
	lFrame, err := t.bp.GetPage(t.poolID, leftNum)
	if err != nil {
		return false, err
	}
	lFrame.Latch.Lock()
	if nodeKeyCount(lFrame.Page, t.keyLen, isLeaf) > min {
		t.borrow(mtr, parent, parentPageNum, childIdx, lFrame, leftNum, childFrame, childPageNum, isLeaf, false)
		lFrame.Latch.Unlock()
		_ = t.bp.UnpinPage(t.poolID, leftNum, true)
		return false, nil
	}
	t.merge(mtr, parent, parentPageNum, childIdx-1, childIdx, lFrame, leftNum, childFrame, childPageNum, isLeaf)
	lFrame.Latch.Unlock()
	_ = t.bp.UnpinPage(t.poolID, leftNum, true)
	return true, nil
}

// borrow moves one entry between leftFrame/leftNum and rightFrame/rightNum
// (left < right in key order) and rewrites the parent's separator at
// rightEntryIdx. fromRight selects which side donated the entry; for
// internal nodes the moved child is reparented to the side that received
// it.
func (t *Tree) borrow(mtr *miniTransaction, parent *InternalNode, parentPageNum uint32, rightEntryIdx int, leftFrame *storage.Frame, leftNum uint32, rightFrame *storage.Frame, rightNum uint32, isLeaf, fromRight bool) {
	if isLeaf {
		left := AsLeafNode(leftFrame.Page, t.keyLen)
		right := AsLeafNode(rightFrame.Page, t.keyLen)
		leftKeys, rightKeys := left.AllKeys(), right.AllKeys()
		var moved Key
		if fromRight {
			moved = rightKeys[0]
			leftKeys = append(leftKeys, moved)
			rightKeys = rightKeys[1:]
		} else {
			moved = leftKeys[len(leftKeys)-1]
			rightKeys = append([]Key{moved}, rightKeys...)
			leftKeys = leftKeys[:len(leftKeys)-1]
		}
		left.RebuildSorted(leftKeys)
		right.RebuildSorted(rightKeys)
		t.logRebuildLeaf(mtr, leftNum, leftFrame.Page, leftKeys)
		t.logRebuildLeaf(mtr, rightNum, rightFrame.Page, rightKeys)

		newSep := rightKeys[0]
		parent.setEntry(rightEntryIdx, newSep, rightNum)
		mtr.record(parent.p, encodeInternalUpdateKey(t.poolID, parentPageNum, rightNum, newSep), func() {})
		return
	}

	left := AsInternalNode(leftFrame.Page, t.keyLen)
	right := AsInternalNode(rightFrame.Page, t.keyLen)
	leftEnts, rightEnts := left.AllEntries(), right.AllEntries()
	var moved internalKV
	if fromRight {
		moved = rightEnts[0]
		leftEnts = append(leftEnts, moved)
		rightEnts = rightEnts[1:]
	} else {
		moved = leftEnts[len(leftEnts)-1]
		rightEnts = append([]internalKV{moved}, rightEnts...)
		leftEnts = leftEnts[:len(leftEnts)-1]
	}
	left.RebuildSorted(leftEnts)
	right.RebuildSorted(rightEnts)
	t.logRebuildInternal(mtr, leftNum, leftFrame.Page, leftEnts)
	t.logRebuildInternal(mtr, rightNum, rightFrame.Page, rightEnts)
	newParent := rightNum
	if fromRight {
		newParent = leftNum
	}
	_ = t.setChildParent(mtr, moved.child, newParent)

	newSep := rightEnts[0].key
	parent.setEntry(rightEntryIdx, newSep, rightNum)
	mtr.record(parent.p, encodeInternalUpdateKey(t.poolID, parentPageNum, rightNum, newSep), func() {})
}

// merge absorbs rightFrame/rightNum into leftFrame/leftNum, frees the
// right page, and removes the parent's entry at rightEntryIdx.
func (t *Tree) merge(mtr *miniTransaction, parent *InternalNode, parentPageNum uint32, leftEntryIdx, rightEntryIdx int, leftFrame *storage.Frame, leftNum uint32, rightFrame *storage.Frame, rightNum uint32, isLeaf bool) {
	if isLeaf {
		left := AsLeafNode(leftFrame.Page, t.keyLen)
		right := AsLeafNode(rightFrame.Page, t.keyLen)
		combined := append(left.AllKeys(), right.AllKeys()...)
		left.RebuildSorted(combined)
		left.SetNextPage(right.NextPage())
		t.logRebuildLeaf(mtr, leftNum, leftFrame.Page, combined)
		mtr.record(leftFrame.Page, encodeLeafSetNextPage(t.poolID, leftNum, right.NextPage()), func() {})
	} else {
		left := AsInternalNode(leftFrame.Page, t.keyLen)
		right := AsInternalNode(rightFrame.Page, t.keyLen)
		rightEnts := right.AllEntries()
		combined := append(left.AllEntries(), rightEnts...)
		left.RebuildSorted(combined)
		t.logRebuildInternal(mtr, leftNum, leftFrame.Page, combined)
		for _, e := range rightEnts {
			_ = t.setChildParent(mtr, e.child, leftNum)
		}
	}

	sepKey := parent.KeyAt(rightEntryIdx)
	parent.RemoveEntryAt(rightEntryIdx)
	mtr.record(parent.p, encodeNodeRemove(t.poolID, parentPageNum, false, sepKey), func() {
		parent.InsertEntry(sepKey, rightNum)
	})
	_ = t.bp.DisposePage(t.poolID, rightNum)
	_ = leftEntryIdx // kept for readability at call sites; left side never changes index
}

func (t *Tree) logRebuildLeaf(mtr *miniTransaction, pageNum uint32, page *storage.Page, keys []Key) {
	mtr.record(page, encodeLeafInitEmpty(t.poolID, pageNum, t.keyLen, t.leafMax), func() {})
	for _, k := range keys {
		mtr.record(page, encodeNodeInsert(t.poolID, pageNum, true, k, 0), func() {})
	}
}

func (t *Tree) logRebuildInternal(mtr *miniTransaction, pageNum uint32, page *storage.Page, ents []internalKV) {
	mtr.record(page, encodeInternalInitEmpty(t.poolID, pageNum, t.keyLen, t.internalMax), func() {})
	for _, e := range ents {
		mtr.record(page, encodeNodeInsert(t.poolID, pageNum, false, e.key, e.child), func() {})
	}
}
