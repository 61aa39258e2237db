// Package bptree implements the persistent B+ tree (spec §4.3, §4.4):
// a node codec that serializes one node into exactly one block, and a
// search/insert/split/iterate engine generic over the key and value
// traits it is instantiated with.
package bptree

import "github.com/vecble/flatkv/internal/block"

// InvalidID mirrors block.InvalidID.
const InvalidID = block.InvalidID

// Node is one B+ tree node, decoded from its backing block. Node
// objects hold no back-pointers to parent or child node objects —
// only ids (spec §9: "Parent/child traversal is by id lookup, not by
// pointer"), so the only cycle risk (tree <-> cache <-> block file) is
// broken by construction.
type Node[K any, V any] struct {
	ID       uint32
	ParentID uint32
	LeftID   uint32
	RightID  uint32
	Leaf     bool

	Keys   []K
	Values []V      // populated for leaves only
	Children []uint32 // populated for inner nodes only, len == len(Keys)+1
}

func newLeaf[K any, V any](id uint32) *Node[K, V] {
	return &Node[K, V]{ID: id, ParentID: InvalidID, LeftID: InvalidID, RightID: InvalidID, Leaf: true}
}

func newInner[K any, V any](id uint32) *Node[K, V] {
	return &Node[K, V]{ID: id, ParentID: InvalidID, LeftID: InvalidID, RightID: InvalidID, Leaf: false}
}

// rank is the number of used keys in the node (spec §3: "rank (number
// of used keys)").
func (n *Node[K, V]) rank() int { return len(n.Keys) }
