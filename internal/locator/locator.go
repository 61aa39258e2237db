// Package locator implements DataLocator and SizedLocator, the address
// types the value heap and the B+ tree exchange: a block id plus an
// offset within that block, and (for envelopes) a byte length.
package locator

import "math"

// InvalidBlockID marks a DataLocator/block id that does not refer to
// any block. A block id is valid iff it is not this sentinel.
const InvalidBlockID uint32 = math.MaxUint32

// BlockSize is set once by the store at open time (from the header)
// and used to normalize offsets. Every locator in a single open store
// shares the same block size, so this package-level variable is safe
// under the engine's single-threaded, single-store-per-process model;
// callers that embed multiple block sizes in one process must not
// share a locator package instance — not a concern for this engine,
// which only ever has one store open per Go process in practice.
var BlockSize uint32 = 4096

// DataLocator addresses a single byte within the block file.
type DataLocator struct {
	BlockID uint32
	Offset  int16
}

// Invalid is the zero-information locator: an invalid block id.
var Invalid = DataLocator{BlockID: InvalidBlockID}

// Valid reports whether l addresses a real block.
func (l DataLocator) Valid() bool {
	return l.BlockID != InvalidBlockID
}

// Normalize restores the invariant 0 <= Offset < BlockSize, carrying
// overflow or underflow into BlockID. Offset may arrive out of range
// when it was counted from the start of a multi-block span rather
// than from its own block; Normalize is idempotent.
func (l DataLocator) Normalize() DataLocator {
	bs := int32(BlockSize)
	off := int32(l.Offset)
	blk := int64(l.BlockID)
	for off < 0 {
		off += bs
		blk--
	}
	for off >= bs {
		off -= bs
		blk++
	}
	return DataLocator{BlockID: uint32(blk), Offset: int16(off)}
}

// Advance returns the locator n bytes further into the file,
// normalized.
func (l DataLocator) Advance(n int) DataLocator {
	bs := int64(BlockSize)
	abs := int64(l.BlockID)*bs + int64(l.Offset) + int64(n)
	if abs < 0 {
		// Cannot happen for legal inputs (locators never point before
		// block 0); guard defensively rather than wrap silently.
		abs = 0
	}
	return DataLocator{
		BlockID: uint32(abs / bs),
		Offset:  int16(abs % bs),
	}
}

// SizedLocator is a DataLocator plus an envelope byte length. The
// envelope's first 4 bytes are a little-endian length prefix; the
// contents are the remaining EnvelopeSize-4 bytes.
type SizedLocator struct {
	DataLocator
	Size uint32 // envelope size, prefix included
}

// ContentSize returns the usable payload size (envelope minus the
// 4-byte length prefix).
func (s SizedLocator) ContentSize() uint32 {
	if s.Size < 4 {
		return 0
	}
	return s.Size - 4
}

// Contents returns a locator addressing just the payload bytes,
// skipping the 4-byte length prefix.
func (s SizedLocator) Contents() SizedLocator {
	return SizedLocator{
		DataLocator: s.DataLocator.Advance(4),
		Size:        s.ContentSize(),
	}
}

// Valid reports whether s addresses a real envelope.
func (s SizedLocator) Valid() bool {
	return s.DataLocator.Valid()
}
