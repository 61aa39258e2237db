package flatkv

import (
	"github.com/vecble/flatkv/internal/bptree"
	"github.com/vecble/flatkv/internal/kverr"
	"github.com/vecble/flatkv/internal/locator"
	"github.com/vecble/flatkv/internal/traits"
)

// Iterator walks every entry in tree (hash) order, forward or
// backward (spec §4.6 "iterate", §8 "Iteration totality"). It yields
// fingerprints rather than recovered user keys — see
// Search.Fingerprint's doc comment for why.
type Iterator struct {
	store *Store
	it    *bptree.Iterator[traits.Fingerprint, locator.SizedLocator]
}

// Iterator returns a forward iterator positioned at the first entry.
func (s *Store) Iterator() (*Iterator, error) {
	if !s.open {
		return nil, kverr.NotOpen
	}
	it, err := s.tree.First()
	if err != nil {
		return nil, err
	}
	return &Iterator{store: s, it: it}, nil
}

// ReverseIterator returns a backward iterator positioned at the last
// entry.
func (s *Store) ReverseIterator() (*Iterator, error) {
	if !s.open {
		return nil, kverr.NotOpen
	}
	it, err := s.tree.Last()
	if err != nil {
		return nil, err
	}
	return &Iterator{store: s, it: it}, nil
}

// Valid reports whether the cursor addresses a real entry.
func (it *Iterator) Valid() bool { return it.it.Valid() }

// Key returns the fingerprint at the cursor.
func (it *Iterator) Key() (traits.Fingerprint, error) { return it.it.Key() }

// Value reads the value at the cursor.
func (it *Iterator) Value() ([]byte, error) {
	loc, err := it.it.Value()
	if err != nil {
		return nil, err
	}
	return it.store.heap.ReadValue(loc)
}

// Next/Prev advance the cursor one entry in their respective
// direction; either can be called regardless of which constructor
// built the iterator.
func (it *Iterator) Next() (bool, error) { return it.it.Next() }
func (it *Iterator) Prev() (bool, error) { return it.it.Prev() }
