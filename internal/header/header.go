// Package header implements the store's versioned header block (spec
// §3 "Store header", §6 "File format"): block 0 of every flatkv file.
// It is deliberately a flat data package with no dependency on
// internal/bptree or internal/heap — those packages hand header plain
// TreeState/HeapState structs to persist, so header has no import
// cycle back onto them.
package header

import (
	"encoding/binary"

	"github.com/vecble/flatkv/internal/kverr"
)

// Magic identifies a flatkv file.
var Magic = [4]byte{'M', 'W', 'H', 'D'}

// Current on-disk format version. BadVersion is returned on any
// mismatch; there is no migration path (spec §9).
const (
	MajorVersion uint16 = 1
	MinorVersion uint16 = 0
)

// MaxUserHeaderBytes bounds the packed uid->string slot area (spec
// §3: "reserved slots for up to several user-header strings (<=240
// bytes total)").
const MaxUserHeaderBytes = 240

// fixed field sizes, in bytes: the prefix that precedes the 240-byte
// user header area, and the tree and heap state that follow it:
const (
	treeStateSize = 4 + 4 + 4 + 4 + 1 + 1 // root,next,firstLeaf,lastLeaf,keyTag,valTag
	heapStateSize = 4 + 4 + 4 + 4         // firstBlock,currentBlock,currentOffset,currentAvail
	fixedPrefix   = 4 + 2 + 2 + 4 + 2     // magic,major,minor,blocksize,B
)

// TreeState is the B+ tree's persisted metadata (spec §3 "B+ tree
// state"). KeyTraitsTag/ValueTraitsTag let Open refuse to reinterpret
// a file created with different key/value traits.
type TreeState struct {
	RootID        uint32
	NextNodeID    uint32
	FirstLeafID   uint32
	LastLeafID    uint32
	KeyTraitsTag  uint8
	ValueTraitsTag uint8
}

// HeapState is the value heap's persisted packing cursor (spec §3
// "Value-heap state").
type HeapState struct {
	FirstBlockID   uint32
	CurrentBlockID uint32
	CurrentOffset  int32
	CurrentAvail   uint32
}

// Header is the full contents of block 0.
type Header struct {
	MajorVersion uint16
	MinorVersion uint16
	BlockSize    uint32
	B            uint16
	UserHeader   map[uint8]string
	Tree         TreeState
	Heap         HeapState
}

// New returns a fresh header for a newly created file.
func New(blockSize uint32, b uint16) Header {
	return Header{
		MajorVersion: MajorVersion,
		MinorVersion: MinorVersion,
		BlockSize:    blockSize,
		B:            b,
		UserHeader:   make(map[uint8]string),
		Tree: TreeState{
			RootID:      InvalidID,
			NextNodeID:  0,
			FirstLeafID: InvalidID,
			LastLeafID:  InvalidID,
		},
		Heap: HeapState{
			FirstBlockID:   InvalidID,
			CurrentBlockID: InvalidID,
		},
	}
}

// InvalidID mirrors block.InvalidID without importing internal/block,
// so header depends on nothing but internal/kverr.
const InvalidID uint32 = 0xFFFFFFFF

// Encode writes h into buf (which must be at least BlockSize long,
// the caller's block 0 buffer), zero-padding the remainder.
func (h Header) Encode(buf []byte) error {
	need := fixedPrefix + MaxUserHeaderBytes + treeStateSize + heapStateSize
	if len(buf) < need {
		return kverr.Wrap(kverr.InvalidArgument, kverr.InvalidArgument, "header: buffer too small")
	}
	for i := range buf {
		buf[i] = 0
	}
	off := 0
	copy(buf[off:off+4], Magic[:])
	off += 4
	binary.LittleEndian.PutUint16(buf[off:], h.MajorVersion)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], h.MinorVersion)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], h.BlockSize)
	off += 4
	binary.LittleEndian.PutUint16(buf[off:], h.B)
	off += 2

	uhBuf := buf[off : off+MaxUserHeaderBytes]
	if err := encodeUserHeader(uhBuf, h.UserHeader); err != nil {
		return err
	}
	off += MaxUserHeaderBytes

	binary.LittleEndian.PutUint32(buf[off:], h.Tree.RootID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.Tree.NextNodeID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.Tree.FirstLeafID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.Tree.LastLeafID)
	off += 4
	buf[off] = h.Tree.KeyTraitsTag
	off++
	buf[off] = h.Tree.ValueTraitsTag
	off++

	binary.LittleEndian.PutUint32(buf[off:], h.Heap.FirstBlockID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.Heap.CurrentBlockID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(h.Heap.CurrentOffset))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.Heap.CurrentAvail)
	off += 4

	return nil
}

// Decode reads a Header out of buf (block 0's contents) and validates
// the magic bytes. It does NOT validate version/blocksize/B against
// expectations — callers compare the result against the Options they
// opened with (spec §7 BadVersion).
func Decode(buf []byte) (Header, error) {
	var h Header
	need := fixedPrefix + MaxUserHeaderBytes + treeStateSize + heapStateSize
	if len(buf) < need {
		return h, kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "header: block too small")
	}
	off := 0
	var magic [4]byte
	copy(magic[:], buf[off:off+4])
	if magic != Magic {
		return h, kverr.Wrap(kverr.BadVersion, kverr.BadVersion, "header: bad magic")
	}
	off += 4
	h.MajorVersion = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	h.MinorVersion = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	h.BlockSize = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.B = binary.LittleEndian.Uint16(buf[off:])
	off += 2

	uh, err := decodeUserHeader(buf[off : off+MaxUserHeaderBytes])
	if err != nil {
		return h, err
	}
	h.UserHeader = uh
	off += MaxUserHeaderBytes

	h.Tree.RootID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Tree.NextNodeID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Tree.FirstLeafID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Tree.LastLeafID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Tree.KeyTraitsTag = buf[off]
	off++
	h.Tree.ValueTraitsTag = buf[off]
	off++

	h.Heap.FirstBlockID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Heap.CurrentBlockID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Heap.CurrentOffset = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	h.Heap.CurrentAvail = binary.LittleEndian.Uint32(buf[off:])
	off += 4

	return h, nil
}

// CheckVersion verifies that got matches the version/layout want was
// opened with. spec §7 BadVersion: "major/minor or BLOCKSIZE/B
// mismatch" prevents open from succeeding.
func CheckVersion(got, want Header) error {
	if got.MajorVersion != want.MajorVersion || got.MinorVersion != want.MinorVersion {
		return kverr.Wrap(kverr.BadVersion, kverr.BadVersion, "header: version mismatch")
	}
	if got.BlockSize != want.BlockSize {
		return kverr.Wrap(kverr.BadVersion, kverr.BadVersion, "header: blocksize mismatch")
	}
	if got.B != want.B {
		return kverr.Wrap(kverr.BadVersion, kverr.BadVersion, "header: B mismatch")
	}
	return nil
}

// encodeUserHeader packs uid->string slots as: 1 byte count, then per
// entry 1 byte uid + 1 byte length + the bytes.
func encodeUserHeader(buf []byte, slots map[uint8]string) error {
	if len(slots) > 255 {
		return kverr.Wrap(kverr.InvalidArgument, kverr.InvalidArgument, "header: too many user-header slots")
	}
	buf[0] = byte(len(slots))
	off := 1
	for uid, s := range slots {
		if len(s) > 255 {
			return kverr.Wrap(kverr.InvalidArgument, kverr.InvalidArgument, "header: user-header string too long")
		}
		if off+2+len(s) > len(buf) {
			return kverr.Wrap(kverr.InvalidArgument, kverr.InvalidArgument, "header: user-header area overflow")
		}
		buf[off] = uid
		buf[off+1] = byte(len(s))
		copy(buf[off+2:], s)
		off += 2 + len(s)
	}
	return nil
}

func decodeUserHeader(buf []byte) (map[uint8]string, error) {
	slots := make(map[uint8]string)
	count := int(buf[0])
	off := 1
	for i := 0; i < count; i++ {
		if off+2 > len(buf) {
			return nil, kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "header: truncated user-header slot")
		}
		uid := buf[off]
		n := int(buf[off+1])
		off += 2
		if off+n > len(buf) {
			return nil, kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "header: user-header string overruns block")
		}
		slots[uid] = string(buf[off : off+n])
		off += n
	}
	return slots, nil
}
