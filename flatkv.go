// Package flatkv is an embedded, single-file, on-disk key/value store
// (spec §1): a fixed-size block storage layer, a shared-owner LRU
// block cache, a persistent B+ tree, and a value heap, fronted by this
// package's Store facade (spec §4.6).
//
// Store is not safe for concurrent use from multiple goroutines — the
// cache and tree it wraps are shared mutable state with no internal
// locking (spec §5). Callers must serialize their own access.
package flatkv

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"github.com/vecble/flatkv/internal/bptree"
	"github.com/vecble/flatkv/internal/cache"
	"github.com/vecble/flatkv/internal/header"
	"github.com/vecble/flatkv/internal/heap"
	"github.com/vecble/flatkv/internal/kverr"
	"github.com/vecble/flatkv/internal/locator"
	"github.com/vecble/flatkv/internal/traits"

	kvblock "github.com/vecble/flatkv/internal/block"
)

// Errors re-exported so callers can errors.Is(err, flatkv.ErrNotFound).
var (
	ErrNotFound      = kverr.NotFound
	ErrAlreadyExists = kverr.AlreadyExists
	ErrCorrupt       = kverr.Corrupt
	ErrIO            = kverr.IoError
	ErrBadVersion    = kverr.BadVersion
	ErrNotOpen       = kverr.NotOpen
	ErrInvalidArg    = kverr.InvalidArgument
)

// Traits tags persisted in the header so a reopen can refuse to
// reinterpret a file written by a different key/value encoding (spec
// §9 "Version compatibility"). flatkv only ever writes one
// combination today, but the tag gives future encodings a way to
// refuse mismatched files instead of silently corrupting them.
const (
	fingerprintTraitsTag  uint8 = 1
	sizedLocatorTraitsTag uint8 = 1
)

type tree = bptree.Tree[traits.Fingerprint, locator.SizedLocator]

// Store is the top-level handle on one open flatkv file.
type Store struct {
	opts    Options
	file    *kvblock.File
	manager *cache.Manager
	blocks  *cache.Cache
	tree    *tree
	heap    *heap.Heap
	open    bool
}

// Open opens path, creating it (with a fresh header) if it does not
// exist.
func Open(path string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	// internal/locator normalizes offsets against a package-level
	// block size; flatkv only ever has one store open per process, so
	// this is safe (see internal/locator's BlockSize doc comment).
	locator.BlockSize = o.BlockSize

	file, created, err := kvblock.Open(path, o.BlockSize)
	if err != nil {
		return nil, err
	}
	manager := cache.NewManager(o.BlockSize)
	blocks := cache.New(file, manager, o.CacheSize, o.Logger)

	var hdr header.Header
	if created {
		hdr = header.New(o.BlockSize, o.B)
		hdr.UserHeader = o.userHeaderSlots
		hdr.Tree.KeyTraitsTag = fingerprintTraitsTag
		hdr.Tree.ValueTraitsTag = sizedLocatorTraitsTag
		blk, err := blocks.Get(0)
		if err != nil {
			file.Close()
			return nil, err
		}
		if err := hdr.Encode(blk.Data); err != nil {
			file.Close()
			return nil, err
		}
		blk.MarkDirty()
	} else {
		blk, err := blocks.Get(0)
		if err != nil {
			file.Close()
			return nil, err
		}
		hdr, err = header.Decode(blk.Data)
		if err != nil {
			file.Close()
			return nil, err
		}
		want := header.New(o.BlockSize, o.B)
		if err := header.CheckVersion(hdr, want); err != nil {
			file.Close()
			return nil, err
		}
		if hdr.Tree.KeyTraitsTag != fingerprintTraitsTag || hdr.Tree.ValueTraitsTag != sizedLocatorTraitsTag {
			file.Close()
			return nil, kverr.Wrap(kverr.BadVersion, kverr.BadVersion, "flatkv: traits tag mismatch")
		}
		if hdr.UserHeader != nil {
			o.userHeaderSlots = hdr.UserHeader
		}
	}

	t := bptree.Open[traits.Fingerprint, locator.SizedLocator](
		blocks, file, o.B, traits.FingerprintTraits{}, traits.SizedLocatorTraits{},
		hdr.Tree, o.NodeCacheSize, o.Logger,
	)
	hp := heap.Open(blocks, file, o.BlockSize, hdr.Heap)

	return &Store{
		opts:    o,
		file:    file,
		manager: manager,
		blocks:  blocks,
		tree:    t,
		heap:    hp,
		open:    true,
	}, nil
}

// Close writes back the header, flushes the tree's decoded-node cache
// and the block cache (spec §5: "flush -> close-file" ordering), and
// releases the file descriptor. Destroying a Store without Close is a
// bug (spec §5) — the caller is responsible for calling it exactly
// once.
func (s *Store) Close() error {
	if !s.open {
		return kverr.NotOpen
	}
	s.open = false

	if err := s.tree.Flush(); err != nil {
		s.opts.Logger.Error("flatkv: tree flush failed", zap.Error(err))
		return err
	}

	hdr := header.Header{
		MajorVersion: header.MajorVersion,
		MinorVersion: header.MinorVersion,
		BlockSize:    s.opts.BlockSize,
		B:            s.opts.B,
		UserHeader:   s.opts.userHeaderSlots,
		Tree:         s.tree.State(),
		Heap:         s.heap.State(),
	}
	hdr.Tree.KeyTraitsTag = fingerprintTraitsTag
	hdr.Tree.ValueTraitsTag = sizedLocatorTraitsTag

	blk, err := s.blocks.Get(0)
	if err != nil {
		return err
	}
	if err := hdr.Encode(blk.Data); err != nil {
		return err
	}
	blk.MarkDirty()

	if err := s.blocks.Flush(); err != nil {
		s.opts.Logger.Error("flatkv: block cache flush failed", zap.Error(err))
		return err
	}
	if err := s.file.Sync(); err != nil {
		return err
	}
	return s.file.Close()
}

func (s *Store) hashKey(key []byte) traits.Fingerprint {
	var fp traits.Fingerprint
	binary.LittleEndian.PutUint32(fp[0:4], uint32(s.opts.UID))
	h1, h2 := murmur3.Sum128(key)
	binary.LittleEndian.PutUint64(fp[4:12], h1)
	binary.LittleEndian.PutUint64(fp[12:20], h2)
	return fp
}

// Has reports whether key is present.
func (s *Store) Has(key []byte) (bool, error) {
	if !s.open {
		return false, kverr.NotOpen
	}
	_, _, found, err := s.tree.Search(s.hashKey(key))
	return found, err
}

// Get returns the full value stored under key, or ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	if !s.open {
		return nil, kverr.NotOpen
	}
	leaf, idx, found, err := s.tree.Search(s.hashKey(key))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, kverr.NotFound
	}
	return s.heap.ReadValue(leaf.Values[idx])
}

// Put stores value under key. If key already exists and overwrite is
// false, ErrAlreadyExists is returned and the store is unchanged. A
// new value that still fits the existing envelope is written in
// place; a value that has grown gets a fresh envelope and the old one
// is orphaned (spec §4.5, §9 — no reclaim, documented leak).
func (s *Store) Put(key, value []byte, overwrite bool) error {
	if !s.open {
		return kverr.NotOpen
	}
	fp := s.hashKey(key)
	leaf, idx, found, err := s.tree.Search(fp)
	if err != nil {
		return err
	}
	if found {
		if !overwrite {
			return kverr.AlreadyExists
		}
		existing := leaf.Values[idx]
		if heap.Fits(existing, len(value)) {
			return s.heap.WriteValue(existing, value)
		}
		newLoc, err := s.heap.AllocAndWrite(value)
		if err != nil {
			return err
		}
		_, err = s.tree.Insert(fp, newLoc)
		return err
	}
	newLoc, err := s.heap.AllocAndWrite(value)
	if err != nil {
		return err
	}
	_, err = s.tree.Insert(fp, newLoc)
	return err
}

// Rename rewrites the tree-level key for an existing entry from
// oldKey to newKey without touching its envelope (spec §4.6). The
// B+ tree engine (spec §4.4) defines no delete operation, so this is
// implemented as a minimal single-entry removal (no underflow
// rebalancing) followed by a normal sorted insert of the new
// fingerprint over the same locator — see DESIGN.md for why this is
// the safer reading of an otherwise-unspecified operation (spec §9).
func (s *Store) Rename(oldKey, newKey []byte) error {
	if !s.open {
		return kverr.NotOpen
	}
	oldFP := s.hashKey(oldKey)
	leaf, idx, found, err := s.tree.Search(oldFP)
	if err != nil {
		return err
	}
	if !found {
		return kverr.NotFound
	}
	loc := leaf.Values[idx]
	if err := s.tree.RemoveAt(leaf, idx); err != nil {
		return err
	}
	newFP := s.hashKey(newKey)
	_, err = s.tree.Insert(newFP, loc)
	return err
}

// DotGraph writes a Graphviz description of the tree to path (spec
// §4.4 "dot_graph"), for debugging balance/chain issues.
func (s *Store) DotGraph(path string, display bool) error {
	return s.tree.DotGraph(path, display)
}

// Is reports whether err is (or wraps) kind, one of the Err* sentinels
// above. A thin re-export of kverr.Is so callers never need to import
// an internal package.
func Is(err, kind error) bool {
	return kverr.Is(err, kind)
}
