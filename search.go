package flatkv

import (
	"github.com/vecble/flatkv/internal/bptree"
	"github.com/vecble/flatkv/internal/heap"
	"github.com/vecble/flatkv/internal/kverr"
	"github.com/vecble/flatkv/internal/locator"
	"github.com/vecble/flatkv/internal/traits"
)

// Search is a resolved lookup into the tree: a key's fingerprint plus
// its leaf position, kept around so callers can stream the value in
// chunks (spec §4.6 "find(key) -> search", §4.5 "Partial reads") or
// walk to neighboring entries without re-hashing.
type Search struct {
	store  *Store
	fp     traits.Fingerprint
	loc    locator.SizedLocator
	it     *bptree.Iterator[traits.Fingerprint, locator.SizedLocator]
	cursor *heap.Cursor
}

// Find resolves key to a Search, or ErrNotFound.
func (s *Store) Find(key []byte) (*Search, error) {
	if !s.open {
		return nil, kverr.NotOpen
	}
	fp := s.hashKey(key)
	leaf, idx, found, err := s.tree.Search(fp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, kverr.NotFound
	}
	return &Search{
		store: s,
		fp:    fp,
		loc:   leaf.Values[idx],
		it:    s.tree.IteratorAt(leaf, idx),
	}, nil
}

// Fingerprint returns the 20-byte tree key this Search resolved to
// (spec §9: iteration and search expose the hashed key, not a
// recovered copy of the original user key — see DESIGN.md).
func (s *Search) Fingerprint() traits.Fingerprint { return s.fp }

// Value reads the full value this Search resolved to.
func (s *Search) Value() ([]byte, error) {
	return s.store.heap.ReadValue(s.loc)
}

// Next/Prev walk the Search to the neighboring tree entry in hash
// order, resolving a fresh value locator as they go.
func (s *Search) Next() (bool, error) {
	ok, err := s.it.Next()
	if err != nil || !ok {
		return ok, err
	}
	return s.resync()
}

func (s *Search) Prev() (bool, error) {
	ok, err := s.it.Prev()
	if err != nil || !ok {
		return ok, err
	}
	return s.resync()
}

func (s *Search) resync() (bool, error) {
	fp, err := s.it.Key()
	if err != nil {
		return false, err
	}
	loc, err := s.it.Value()
	if err != nil {
		return false, err
	}
	s.fp = fp
	s.loc = loc
	s.cursor = nil
	return true, nil
}

// Chunk returns the next up-to-n bytes of this Search's value,
// streaming across block boundaries as needed (spec §4.5 "Partial
// reads"). The underlying cursor is created lazily on first use and
// reused across calls; Next()/Prev() discard it, so the next Chunk
// starts at the beginning of the new entry's value.
func (s *Search) Chunk(n int) ([]byte, error) {
	if s.cursor == nil {
		c, err := s.store.heap.NewReadCursor(s.loc)
		if err != nil {
			return nil, err
		}
		s.cursor = c
	}
	return s.cursor.Read(n)
}

// Remaining reports how many bytes are left to read from the current
// streaming position (the full value length if Chunk has not been
// called yet — the whole value is still unread).
func (s *Search) Remaining() (uint32, error) {
	if s.cursor == nil {
		n, err := s.store.heap.ContentLen(s.loc)
		if err != nil {
			return 0, err
		}
		return n, nil
	}
	return s.cursor.Remaining(), nil
}
