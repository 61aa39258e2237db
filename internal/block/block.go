// Package block implements the block file (spec §4.1): a flat file
// read and written in fixed BLOCKSIZE units, addressed by a 32-bit
// block id. It is the bottom layer everything else in flatkv is
// eventually backed by.
package block

import (
	"github.com/vecble/flatkv/internal/locator"
)

// InvalidID is the sentinel id (spec §3: "a block id is valid iff id
// != 2^32-1").
const InvalidID = locator.InvalidBlockID

// Block is a fixed-size in-memory mirror of one file block.
type Block struct {
	ID    uint32
	Data  []byte
	dirty bool
}

// Valid reports whether the block addresses a real id.
func (b *Block) Valid() bool {
	return b != nil && b.ID != InvalidID
}

// Dirty reports whether Data has been mutated since the last read or
// write-back.
func (b *Block) Dirty() bool { return b.dirty }

// MarkDirty flags the block for write-back on eviction.
func (b *Block) MarkDirty() { b.dirty = true }

func (b *Block) clearDirty() { b.dirty = false }

func newInvalid(size uint32) *Block {
	return &Block{ID: InvalidID, Data: make([]byte, size)}
}
