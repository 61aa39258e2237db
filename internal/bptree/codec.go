package bptree

import (
	"encoding/binary"

	"github.com/vecble/flatkv/internal/kverr"
	"github.com/vecble/flatkv/internal/traits"
)

// node block layout (spec §4.3):
//
//	[0..2)    uint16  flags        bit0 = leaf
//	[2..4)    uint16  rank (n)
//	[4..8)    u32     parent_id
//	[8..12)   u32     left_id
//	[12..16)  u32     right_id
//	[16..20)  u32     node_id (self; redundant check)
//	[20..  )  rank key records, back-to-back, variable-length
//	          leaf: followed by rank value records
//	          inner: followed by rank+1 child ids (u32)
const nodeHeaderSize = 20

const flagLeaf = uint16(1)

// MaxRank returns the largest legal rank for order B (2B-1, spec §3).
func MaxRank(b uint16) int { return 2*int(b) - 1 }

// EncodeNode serializes n into buf (a full block buffer). It returns
// ErrOverflow (wrapped as Corrupt) if the payload does not fit.
func EncodeNode[K any, V any](n *Node[K, V], buf []byte, keyTraits traits.Traits[K], valTraits traits.Traits[V]) error {
	flags := uint16(0)
	if n.Leaf {
		flags |= flagLeaf
	}
	binary.LittleEndian.PutUint16(buf[0:2], flags)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(n.Keys)))
	binary.LittleEndian.PutUint32(buf[4:8], n.ParentID)
	binary.LittleEndian.PutUint32(buf[8:12], n.LeftID)
	binary.LittleEndian.PutUint32(buf[12:16], n.RightID)
	binary.LittleEndian.PutUint32(buf[16:20], n.ID)

	off := nodeHeaderSize
	for _, k := range n.Keys {
		written, err := keyTraits.Serialize(buf[off:], k)
		if err != nil {
			return kverr.Wrap(kverr.Corrupt, err, "encode node: key overflow")
		}
		off += written
	}
	if n.Leaf {
		for _, v := range n.Values {
			written, err := valTraits.Serialize(buf[off:], v)
			if err != nil {
				return kverr.Wrap(kverr.Corrupt, err, "encode node: value overflow")
			}
			off += written
		}
	} else {
		for _, child := range n.Children {
			if off+4 > len(buf) {
				return kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "encode node: children overflow")
			}
			binary.LittleEndian.PutUint32(buf[off:], child)
			off += 4
		}
	}
	return nil
}

// DecodeNode deserializes the node stored at block id from buf.
// Deserialization fails (spec §4.3) if any record overruns the block,
// if node_id does not match id, or if rank exceeds 2B-1.
func DecodeNode[K any, V any](buf []byte, id uint32, b uint16, keyTraits traits.Traits[K], valTraits traits.Traits[V]) (*Node[K, V], error) {
	if len(buf) < nodeHeaderSize {
		return nil, kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "decode node: block too small")
	}
	flags := binary.LittleEndian.Uint16(buf[0:2])
	rank := int(binary.LittleEndian.Uint16(buf[2:4]))
	parentID := binary.LittleEndian.Uint32(buf[4:8])
	leftID := binary.LittleEndian.Uint32(buf[8:12])
	rightID := binary.LittleEndian.Uint32(buf[12:16])
	nodeID := binary.LittleEndian.Uint32(buf[16:20])

	if nodeID != id {
		return nil, kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "decode node: node_id mismatch")
	}
	if rank > MaxRank(b) {
		return nil, kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "decode node: rank exceeds 2B-1")
	}

	n := &Node[K, V]{
		ID: nodeID, ParentID: parentID, LeftID: leftID, RightID: rightID,
		Leaf: flags&flagLeaf != 0,
	}

	off := nodeHeaderSize
	n.Keys = make([]K, 0, rank)
	for i := 0; i < rank; i++ {
		if off > len(buf) {
			return nil, kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "decode node: key overruns block")
		}
		k, consumed, err := keyTraits.Deserialize(buf[off:])
		if err != nil {
			return nil, kverr.Wrap(kverr.Corrupt, err, "decode node: key underflow")
		}
		n.Keys = append(n.Keys, k)
		off += consumed
	}

	if n.Leaf {
		n.Values = make([]V, 0, rank)
		for i := 0; i < rank; i++ {
			if off > len(buf) {
				return nil, kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "decode node: value overruns block")
			}
			v, consumed, err := valTraits.Deserialize(buf[off:])
			if err != nil {
				return nil, kverr.Wrap(kverr.Corrupt, err, "decode node: value underflow")
			}
			n.Values = append(n.Values, v)
			off += consumed
		}
	} else {
		n.Children = make([]uint32, 0, rank+1)
		for i := 0; i < rank+1; i++ {
			if off+4 > len(buf) {
				return nil, kverr.Wrap(kverr.Corrupt, kverr.Corrupt, "decode node: children overrun block")
			}
			n.Children = append(n.Children, binary.LittleEndian.Uint32(buf[off:]))
			off += 4
		}
	}

	return n, nil
}
