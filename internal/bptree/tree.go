package bptree

import (
	"sort"

	"go.uber.org/zap"

	"github.com/vecble/flatkv/internal/block"
	"github.com/vecble/flatkv/internal/cache"
	"github.com/vecble/flatkv/internal/header"
	"github.com/vecble/flatkv/internal/kverr"
	"github.com/vecble/flatkv/internal/traits"
)

// DefaultNodeCacheSize is the secondary decoded-node LRU's default
// capacity (spec §4.4: "node cache, default 1024").
const DefaultNodeCacheSize = 1024

type nodeEntry[K any, V any] struct {
	node  *Node[K, V]
	age   uint64
	dirty bool
}

// Tree is the persistent B+ tree engine (spec §4.4), generic over the
// key and value traits it was opened with. It borrows a *cache.Cache
// for block I/O and a *block.File only to allocate fresh block/node
// ids — it never reads or writes the file directly.
type Tree[K any, V any] struct {
	blocks *cache.Cache
	file   *block.File

	keyTraits traits.Traits[K]
	valTraits traits.Traits[V]
	b         uint16

	rootID      uint32
	firstLeafID uint32
	lastLeafID  uint32

	nodeCache    map[uint32]*nodeEntry[K, V]
	nodeCacheCap int
	nodeAge      uint64

	log *zap.Logger
}

// Open constructs a tree engine over an existing or freshly-created
// header TreeState.
func Open[K any, V any](blocks *cache.Cache, file *block.File, b uint16, keyTraits traits.Traits[K], valTraits traits.Traits[V], state header.TreeState, nodeCacheCap int, log *zap.Logger) *Tree[K, V] {
	if nodeCacheCap <= 0 {
		nodeCacheCap = DefaultNodeCacheSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tree[K, V]{
		blocks:       blocks,
		file:         file,
		keyTraits:    keyTraits,
		valTraits:    valTraits,
		b:            b,
		rootID:       state.RootID,
		firstLeafID:  state.FirstLeafID,
		lastLeafID:   state.LastLeafID,
		nodeCache:    make(map[uint32]*nodeEntry[K, V], nodeCacheCap),
		nodeCacheCap: nodeCacheCap,
		log:          log,
	}
}

// State returns the persistable snapshot of this tree's metadata.
func (t *Tree[K, V]) State() header.TreeState {
	return header.TreeState{
		RootID:      t.rootID,
		NextNodeID:  t.file.NextID(),
		FirstLeafID: t.firstLeafID,
		LastLeafID:  t.lastLeafID,
	}
}

// Empty reports whether the tree currently has no root.
func (t *Tree[K, V]) Empty() bool { return t.rootID == InvalidID }

func (t *Tree[K, V]) nextAge() uint64 {
	t.nodeAge++
	return t.nodeAge
}

// getNode returns the decoded node for id, materializing it from its
// backing block through the cache on a miss.
func (t *Tree[K, V]) getNode(id uint32) (*Node[K, V], error) {
	if id == InvalidID {
		return nil, kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "bptree: invalid node id")
	}
	if e, ok := t.nodeCache[id]; ok {
		e.age = t.nextAge()
		return e.node, nil
	}
	if len(t.nodeCache) >= t.nodeCacheCap {
		if err := t.evictOldestNode(); err != nil {
			return nil, err
		}
	}
	blk, err := t.blocks.Get(id)
	if err != nil {
		return nil, err
	}
	node, err := DecodeNode[K, V](blk.Data, id, t.b, t.keyTraits, t.valTraits)
	if err != nil {
		return nil, err
	}
	t.nodeCache[id] = &nodeEntry[K, V]{node: node, age: t.nextAge()}
	return node, nil
}

// markDirty flags node for write-back to its block on eviction or
// Flush.
func (t *Tree[K, V]) markDirty(n *Node[K, V]) {
	if e, ok := t.nodeCache[n.ID]; ok {
		e.dirty = true
		return
	}
	// Node was constructed (allocNode) but not yet resident; insert it
	// dirty so it still gets written back.
	if len(t.nodeCache) >= t.nodeCacheCap {
		t.evictOldestNode()
	}
	t.nodeCache[n.ID] = &nodeEntry[K, V]{node: n, age: t.nextAge(), dirty: true}
}

func (t *Tree[K, V]) evictOldestNode() error {
	var oldestID uint32
	var oldestAge uint64
	found := false
	for id, e := range t.nodeCache {
		if !found || e.age < oldestAge {
			oldestID, oldestAge, found = id, e.age, true
		}
	}
	if !found {
		return nil
	}
	return t.evictNode(oldestID)
}

func (t *Tree[K, V]) evictNode(id uint32) error {
	e, ok := t.nodeCache[id]
	if !ok {
		return nil
	}
	delete(t.nodeCache, id)
	if e.dirty {
		if err := t.writeBackNode(e.node); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree[K, V]) writeBackNode(n *Node[K, V]) error {
	blk, err := t.blocks.Get(n.ID)
	if err != nil {
		return err
	}
	if err := EncodeNode[K, V](n, blk.Data, t.keyTraits, t.valTraits); err != nil {
		return err
	}
	blk.MarkDirty()
	return nil
}

// Flush writes back every dirty decoded node. Callers flush the tree
// before flushing the underlying block cache.
func (t *Tree[K, V]) Flush() error {
	ids := make([]uint32, 0, len(t.nodeCache))
	for id, e := range t.nodeCache {
		if e.dirty {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		if err := t.writeBackNode(t.nodeCache[id].node); err != nil {
			return err
		}
		t.nodeCache[id].dirty = false
	}
	return nil
}

func (t *Tree[K, V]) allocNode(leaf bool) (*Node[K, V], error) {
	id := t.file.AllocID(1)
	// id is a brand new block id with nothing on disk behind it yet;
	// register it with the block cache now so the eventual write-back
	// (writeBackNode -> blocks.Get) finds it already resident instead
	// of reading through to a file that may not extend that far yet.
	if _, err := t.blocks.GetFresh(id); err != nil {
		return nil, err
	}
	var n *Node[K, V]
	if leaf {
		n = newLeaf[K, V](id)
	} else {
		n = newInner[K, V](id)
	}
	if len(t.nodeCache) >= t.nodeCacheCap {
		if err := t.evictOldestNode(); err != nil {
			return nil, err
		}
	}
	t.nodeCache[id] = &nodeEntry[K, V]{node: n, age: t.nextAge(), dirty: true}
	return n, nil
}

// --- search -----------------------------------------------------------

// childIndex returns the smallest i such that key <= keys[i], or
// len(keys) if key is greater than every key (spec §4.4: "choose
// child children[i] where i is the smallest index with key <=
// keys[i], else children[rank]").
func (t *Tree[K, V]) childIndex(keys []K, key K) int {
	return sort.Search(len(keys), func(i int) bool {
		return t.keyTraits.Compare(key, keys[i]) <= 0
	})
}

// leafIndex returns the position of key in a leaf's key list and
// whether it is present.
func (t *Tree[K, V]) leafIndex(keys []K, key K) (int, bool) {
	i := sort.Search(len(keys), func(i int) bool {
		return t.keyTraits.Compare(key, keys[i]) <= 0
	})
	if i < len(keys) && t.keyTraits.Compare(keys[i], key) == 0 {
		return i, true
	}
	return i, false
}

// Search descends from the root and returns the leaf that would
// contain key, the key's position within it, and whether it is
// actually present (spec §4.4).
func (t *Tree[K, V]) Search(key K) (*Node[K, V], int, bool, error) {
	if t.Empty() {
		return nil, 0, false, nil
	}
	id := t.rootID
	for {
		n, err := t.getNode(id)
		if err != nil {
			return nil, 0, false, err
		}
		if n.Leaf {
			idx, found := t.leafIndex(n.Keys, key)
			return n, idx, found, nil
		}
		ci := t.childIndex(n.Keys, key)
		id = n.Children[ci]
	}
}

// --- insert -------------------------------------------------------------

// Insert searches to the leaf that should hold key; if key already
// exists its value is overwritten (updated=true). Otherwise the key
// is inserted and the leaf is split if it now holds 2B-1 keys,
// propagating splits up to a new root if necessary (spec §4.4).
func (t *Tree[K, V]) Insert(key K, val V) (updated bool, err error) {
	if t.Empty() {
		root, err := t.allocNode(true)
		if err != nil {
			return false, err
		}
		root.Keys = []K{key}
		root.Values = []V{val}
		t.rootID = root.ID
		t.firstLeafID = root.ID
		t.lastLeafID = root.ID
		t.markDirty(root)
		return false, nil
	}

	leaf, idx, found, err := t.Search(key)
	if err != nil {
		return false, err
	}
	if found {
		leaf.Values[idx] = val
		t.markDirty(leaf)
		return true, nil
	}

	leaf.Keys = insertAt(leaf.Keys, idx, key)
	leaf.Values = insertAt(leaf.Values, idx, val)
	t.markDirty(leaf)

	if leaf.rank() < MaxRank(t.b) {
		return false, nil
	}
	return false, t.splitLeaf(leaf)
}

// RemoveAt deletes the entry at position idx in leaf. There is no
// delete operation in spec §4.4, so this does not rebalance or merge
// underfull nodes — it exists only to support Store.Rename, which
// needs to retire one fingerprint without disturbing the locator it
// pointed to. leaf may transiently drop below the minimum rank; the
// tree remains searchable and iterable either way.
func (t *Tree[K, V]) RemoveAt(leaf *Node[K, V], idx int) error {
	leaf.Keys = append(leaf.Keys[:idx], leaf.Keys[idx+1:]...)
	leaf.Values = append(leaf.Values[:idx], leaf.Values[idx+1:]...)
	t.markDirty(leaf)
	return nil
}

func insertAt[T any](s []T, idx int, v T) []T {
	s = append(s, v)
	copy(s[idx+1:], s[idx:len(s)-1])
	s[idx] = v
	return s
}

// splitLeaf splits an overfull leaf and propagates the resulting
// median key upward, splitting ancestors as needed (spec §4.4 "Split
// (leaf)" / "Root split").
func (t *Tree[K, V]) splitLeaf(leaf *Node[K, V]) error {
	mid := leaf.rank() / 2
	right, err := t.allocNode(true)
	if err != nil {
		return err
	}
	right.Keys = append([]K{}, leaf.Keys[mid:]...)
	right.Values = append([]V{}, leaf.Values[mid:]...)
	leaf.Keys = leaf.Keys[:mid:mid]
	leaf.Values = leaf.Values[:mid:mid]

	right.LeftID = leaf.ID
	right.RightID = leaf.RightID
	if leaf.RightID != InvalidID {
		oldRight, err := t.getNode(leaf.RightID)
		if err != nil {
			return err
		}
		oldRight.LeftID = right.ID
		t.markDirty(oldRight)
	} else {
		t.lastLeafID = right.ID
	}
	leaf.RightID = right.ID
	t.markDirty(leaf)
	t.markDirty(right)

	// The separator must route every key still held by leaf to leaf
	// and every key now held by right to right. childIndex sends a key
	// equal to a separator left (spec §4.4: inner separators are
	// inclusive on the left, <=), so the separator has to be the
	// greatest key actually left in leaf — not right's first key, which
	// would make that key itself unreachable.
	medianKey := leaf.Keys[mid-1]
	return t.propagateSplit(leaf, medianKey, right.ID)
}

// splitInner splits an overfull inner node, promoting its median key
// (which is removed from both halves, per spec §4.4 "Split (inner)").
func (t *Tree[K, V]) splitInner(n *Node[K, V]) (K, uint32, error) {
	mid := n.rank() / 2
	medianKey := n.Keys[mid]

	right, err := t.allocNode(false)
	if err != nil {
		var zero K
		return zero, 0, err
	}
	right.Keys = append([]K{}, n.Keys[mid+1:]...)
	right.Children = append([]uint32{}, n.Children[mid+1:]...)
	n.Keys = n.Keys[:mid:mid]
	n.Children = n.Children[:mid+1 : mid+1]

	for _, childID := range right.Children {
		child, err := t.getNode(childID)
		if err != nil {
			var zero K
			return zero, 0, err
		}
		child.ParentID = right.ID
		t.markDirty(child)
	}

	t.markDirty(n)
	t.markDirty(right)
	return medianKey, right.ID, nil
}

// propagateSplit inserts (medianKey -> rightID) as a new separator
// above child (whose ParentID is still the pre-split parent, or
// invalid if child was the root), splitting ancestors as needed and
// creating a new root when the split reaches the top.
func (t *Tree[K, V]) propagateSplit(child *Node[K, V], medianKey K, rightID uint32) error {
	for {
		if child.ParentID == InvalidID {
			newRoot, err := t.allocNode(false)
			if err != nil {
				return err
			}
			newRoot.Keys = []K{medianKey}
			newRoot.Children = []uint32{child.ID, rightID}
			child.ParentID = newRoot.ID
			t.markDirty(child)

			right, err := t.getNode(rightID)
			if err != nil {
				return err
			}
			right.ParentID = newRoot.ID
			t.markDirty(right)

			t.rootID = newRoot.ID
			t.markDirty(newRoot)
			return nil
		}

		parent, err := t.getNode(child.ParentID)
		if err != nil {
			return err
		}
		right, err := t.getNode(rightID)
		if err != nil {
			return err
		}
		right.ParentID = parent.ID
		t.markDirty(right)

		pos := t.childIndex(parent.Keys, medianKey)
		parent.Keys = insertAt(parent.Keys, pos, medianKey)
		parent.Children = insertAt(parent.Children, pos+1, rightID)
		t.markDirty(parent)

		if parent.rank() < MaxRank(t.b) {
			return nil
		}

		medianKey2, rightID2, err := t.splitInner(parent)
		if err != nil {
			return err
		}
		child = parent
		medianKey = medianKey2
		rightID = rightID2
	}
}
