// Package heap implements the value heap (spec §4.5): variable-length
// byte strings ("envelopes") packed into blocks and addressed by a
// locator.SizedLocator, written and read through the block cache.
package heap

import (
	"github.com/vecble/flatkv/internal/block"
	"github.com/vecble/flatkv/internal/cache"
	"github.com/vecble/flatkv/internal/header"
	"github.com/vecble/flatkv/internal/kverr"
	"github.com/vecble/flatkv/internal/locator"
)

// PrefixSize is the envelope's little-endian content-length prefix
// (spec §3 "SizedLocator").
const PrefixSize = 4

// Heap is the value heap's packing cursor plus the block I/O needed
// to allocate, read, and write envelopes.
type Heap struct {
	blocks    *cache.Cache
	file      *block.File
	blockSize uint32

	firstBlockID   uint32
	currentBlockID uint32
	currentOffset  int32
	currentAvail   uint32
}

// Open constructs a Heap over a persisted HeapState (for a freshly
// created store, header.New's state, whose block ids are InvalidID).
func Open(blocks *cache.Cache, file *block.File, blockSize uint32, state header.HeapState) *Heap {
	return &Heap{
		blocks:         blocks,
		file:           file,
		blockSize:      blockSize,
		firstBlockID:   state.FirstBlockID,
		currentBlockID: state.CurrentBlockID,
		currentOffset:  state.CurrentOffset,
		currentAvail:   state.CurrentAvail,
	}
}

// State returns the persistable snapshot of the heap's packing
// cursor.
func (h *Heap) State() header.HeapState {
	return header.HeapState{
		FirstBlockID:   h.firstBlockID,
		CurrentBlockID: h.currentBlockID,
		CurrentOffset:  h.currentOffset,
		CurrentAvail:   h.currentAvail,
	}
}

// Alloc reserves env bytes of envelope space (length prefix included)
// and returns a locator addressing it (spec §4.5 "Allocation
// protocol"). It does not write any bytes.
func (h *Heap) Alloc(env uint32) (locator.SizedLocator, error) {
	// Single-block span with enough room: place densely.
	if h.currentBlockID != block.InvalidID && env <= h.currentAvail && h.currentAvail <= h.blockSize {
		loc := locator.SizedLocator{
			DataLocator: locator.DataLocator{BlockID: h.currentBlockID, Offset: int16(h.currentOffset)},
			Size:        env,
		}
		h.currentOffset += int32(env)
		h.currentAvail -= env
		return loc, nil
	}

	// Otherwise allocate a fresh span of whole blocks (spec §4.5 step 3).
	// waste is the unused tail of whatever span the cursor currently
	// points at; there is none to account for before the very first
	// allocation the heap ever makes.
	var waste uint32
	if h.currentBlockID != block.InvalidID {
		waste = h.blockSize - uint32(h.currentOffset)%h.blockSize
	}
	nBlocks := (env + waste + h.blockSize - 1) / h.blockSize
	if nBlocks == 0 {
		nBlocks = 1
	}
	first := h.file.AllocID(nBlocks)
	// These ids are brand new and hold nothing worth reading — register
	// each as a zeroed, cache-resident block so the writeAt calls that
	// follow don't read-through to a file that may not even extend this
	// far yet.
	for i := uint32(0); i < nBlocks; i++ {
		if _, err := h.blocks.GetFresh(first + i); err != nil {
			return locator.SizedLocator{}, err
		}
	}
	if h.firstBlockID == block.InvalidID {
		h.firstBlockID = first
	}
	h.currentBlockID = first
	h.currentOffset = 0
	h.currentAvail = nBlocks * h.blockSize

	loc := locator.SizedLocator{
		DataLocator: locator.DataLocator{BlockID: h.currentBlockID, Offset: 0},
		Size:        env,
	}
	h.currentOffset += int32(env)
	h.currentAvail -= env
	return loc, nil
}

// readAt / writeAt walk successive blocks copying min(remaining,
// BLOCKSIZE-offset) bytes per block (spec §4.5 "Read/write across
// block boundaries").

func (h *Heap) readAt(loc locator.DataLocator, buf []byte) error {
	loc = loc.Normalize()
	remaining := len(buf)
	off := 0
	for remaining > 0 {
		blk, err := h.blocks.Get(loc.BlockID)
		if err != nil {
			return err
		}
		n := remaining
		if avail := int(h.blockSize) - int(loc.Offset); n > avail {
			n = avail
		}
		copy(buf[off:off+n], blk.Data[loc.Offset:int(loc.Offset)+n])
		off += n
		remaining -= n
		loc = loc.Advance(n)
	}
	return nil
}

func (h *Heap) writeAt(loc locator.DataLocator, data []byte) error {
	loc = loc.Normalize()
	remaining := len(data)
	off := 0
	for remaining > 0 {
		blk, err := h.blocks.Get(loc.BlockID)
		if err != nil {
			return err
		}
		n := remaining
		if avail := int(h.blockSize) - int(loc.Offset); n > avail {
			n = avail
		}
		copy(blk.Data[loc.Offset:int(loc.Offset)+n], data[off:off+n])
		blk.MarkDirty()
		off += n
		remaining -= n
		loc = loc.Advance(n)
	}
	return nil
}

// Fits reports whether newContentLen bytes of content still fit
// inside an envelope previously allocated with capacity loc.Size
// (spec §4.5 "Update semantics").
func Fits(loc locator.SizedLocator, newContentLen int) bool {
	return uint32(newContentLen+PrefixSize) <= loc.Size
}

// WriteValue overwrites loc's envelope with content (spec §4.5
// "overwrite in place"). Caller must ensure Fits(loc, len(content)).
func (h *Heap) WriteValue(loc locator.SizedLocator, content []byte) error {
	if !Fits(loc, len(content)) {
		return kverr.Wrap(kverr.InvalidArgument, kverr.InvalidArgument, "heap: content does not fit envelope")
	}
	var prefix [PrefixSize]byte
	prefix[0] = byte(len(content))
	prefix[1] = byte(len(content) >> 8)
	prefix[2] = byte(len(content) >> 16)
	prefix[3] = byte(len(content) >> 24)
	if err := h.writeAt(loc.DataLocator, prefix[:]); err != nil {
		return err
	}
	return h.writeAt(loc.DataLocator.Advance(PrefixSize), content)
}

// AllocAndWrite allocates a fresh envelope sized exactly to content
// and writes it.
func (h *Heap) AllocAndWrite(content []byte) (locator.SizedLocator, error) {
	loc, err := h.Alloc(uint32(len(content) + PrefixSize))
	if err != nil {
		return locator.SizedLocator{}, err
	}
	if err := h.WriteValue(loc, content); err != nil {
		return locator.SizedLocator{}, err
	}
	return loc, nil
}

// ContentLen reads loc's 4-byte length prefix, returning how many
// content bytes are actually stored (<= loc.Size-4; may be smaller
// than capacity after an in-place overwrite with a shorter value).
func (h *Heap) ContentLen(loc locator.SizedLocator) (uint32, error) {
	var prefix [PrefixSize]byte
	if err := h.readAt(loc.DataLocator, prefix[:]); err != nil {
		return 0, err
	}
	n := uint32(prefix[0]) | uint32(prefix[1])<<8 | uint32(prefix[2])<<16 | uint32(prefix[3])<<24
	if n > loc.Size-PrefixSize {
		return 0, kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "heap: envelope prefix exceeds capacity")
	}
	return n, nil
}

// ReadValue reads the full content currently stored at loc.
func (h *Heap) ReadValue(loc locator.SizedLocator) ([]byte, error) {
	n, err := h.ContentLen(loc)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := h.readAt(loc.DataLocator.Advance(PrefixSize), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Cursor is a caller-maintained streaming read position over one
// envelope's content (spec §4.5 "Partial reads"): a SizedLocator
// whose size shrinks as bytes are consumed.
type Cursor struct {
	h         *Heap
	loc       locator.DataLocator
	remaining uint32
}

// NewReadCursor starts a streaming cursor at the beginning of loc's
// content (after the length prefix).
func (h *Heap) NewReadCursor(loc locator.SizedLocator) (*Cursor, error) {
	n, err := h.ContentLen(loc)
	if err != nil {
		return nil, err
	}
	return &Cursor{h: h, loc: loc.DataLocator.Advance(PrefixSize), remaining: n}, nil
}

// Remaining reports how many content bytes are left to read.
func (c *Cursor) Remaining() uint32 { return c.remaining }

// Read returns the next up-to-n bytes, advancing the cursor.
func (c *Cursor) Read(n int) ([]byte, error) {
	if uint32(n) > c.remaining {
		n = int(c.remaining)
	}
	buf := make([]byte, n)
	if err := c.h.readAt(c.loc, buf); err != nil {
		return nil, err
	}
	c.loc = c.loc.Advance(n)
	c.remaining -= uint32(n)
	return buf, nil
}
