package bptree

// Iterator is a bidirectional cursor over the leaf chain (spec §4.4,
// §9 "Iterators": "a single cursor with a direction field; forward
// and reverse iterators are views over the same cursor machinery").
// It yields keys in tree (hash) order, not lexicographic user-key
// order (spec §8 "Iteration totality").
type Iterator[K any, V any] struct {
	tree    *Tree[K, V]
	leafID  uint32
	pos     int
	valid   bool
}

// First positions an iterator at the first leaf's first entry.
func (t *Tree[K, V]) First() (*Iterator[K, V], error) {
	return t.edgeIterator(t.firstLeafID, 0)
}

// Last positions an iterator at the last leaf's last entry.
func (t *Tree[K, V]) Last() (*Iterator[K, V], error) {
	if t.lastLeafID == InvalidID {
		return &Iterator[K, V]{tree: t, leafID: InvalidID}, nil
	}
	n, err := t.getNode(t.lastLeafID)
	if err != nil {
		return nil, err
	}
	if n.rank() == 0 {
		return &Iterator[K, V]{tree: t, leafID: InvalidID}, nil
	}
	return &Iterator[K, V]{tree: t, leafID: n.ID, pos: n.rank() - 1, valid: true}, nil
}

func (t *Tree[K, V]) edgeIterator(leafID uint32, pos int) (*Iterator[K, V], error) {
	if leafID == InvalidID {
		return &Iterator[K, V]{tree: t, leafID: InvalidID}, nil
	}
	n, err := t.getNode(leafID)
	if err != nil {
		return nil, err
	}
	if n.rank() == 0 {
		return &Iterator[K, V]{tree: t, leafID: InvalidID}, nil
	}
	return &Iterator[K, V]{tree: t, leafID: leafID, pos: pos, valid: true}, nil
}

// IteratorAt builds an iterator positioned exactly at (leaf, pos),
// used by Store.Find to resume iteration from a search hit without
// re-hashing.
func (t *Tree[K, V]) IteratorAt(leaf *Node[K, V], pos int) *Iterator[K, V] {
	return &Iterator[K, V]{tree: t, leafID: leaf.ID, pos: pos, valid: true}
}

// Valid reports whether the cursor addresses a real entry.
func (it *Iterator[K, V]) Valid() bool { return it.valid }

// Key and Value return the entry the cursor currently addresses.
// Only meaningful when Valid().
func (it *Iterator[K, V]) Key() (K, error) {
	n, err := it.tree.getNode(it.leafID)
	if err != nil {
		var zero K
		return zero, err
	}
	return n.Keys[it.pos], nil
}

func (it *Iterator[K, V]) Value() (V, error) {
	n, err := it.tree.getNode(it.leafID)
	if err != nil {
		var zero V
		return zero, err
	}
	return n.Values[it.pos], nil
}

// Next advances the cursor forward, following right_id at leaf end.
func (it *Iterator[K, V]) Next() (bool, error) {
	if !it.valid {
		return false, nil
	}
	n, err := it.tree.getNode(it.leafID)
	if err != nil {
		return false, err
	}
	if it.pos+1 < n.rank() {
		it.pos++
		return true, nil
	}
	if n.RightID == InvalidID {
		it.valid = false
		return false, nil
	}
	right, err := it.tree.getNode(n.RightID)
	if err != nil {
		return false, err
	}
	if right.rank() == 0 {
		it.valid = false
		return false, nil
	}
	it.leafID = right.ID
	it.pos = 0
	return true, nil
}

// Prev retreats the cursor backward, following left_id at leaf start.
func (it *Iterator[K, V]) Prev() (bool, error) {
	if !it.valid {
		return false, nil
	}
	if it.pos > 0 {
		it.pos--
		return true, nil
	}
	n, err := it.tree.getNode(it.leafID)
	if err != nil {
		return false, err
	}
	if n.LeftID == InvalidID {
		it.valid = false
		return false, nil
	}
	left, err := it.tree.getNode(n.LeftID)
	if err != nil {
		return false, err
	}
	if left.rank() == 0 {
		it.valid = false
		return false, nil
	}
	it.leafID = left.ID
	it.pos = left.rank() - 1
	return true, nil
}
