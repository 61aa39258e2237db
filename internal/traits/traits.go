// Package traits implements the generic key/value codec the B+ tree
// engine is parameterized over (spec §6: "Traits interface"). A Traits
// implementation knows how to serialize, deserialize, size, and order
// one fixed- or variable-width type; the tree never knows the concrete
// type it stores.
package traits

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/vecble/flatkv/internal/locator"
)

// ErrOverflow is returned by Serialize when dst is too small to hold
// the encoded value.
var ErrOverflow = errors.New("traits: overflow")

// ErrUnderflow is returned by Deserialize when src does not contain a
// complete encoded value.
var ErrUnderflow = errors.New("traits: underflow")

// Traits is the capability interface the tree is generic over. T is
// compared with Compare rather than Go's built-in ordering so that
// byte-wise fingerprint comparisons and numeric comparisons share one
// interface.
type Traits[T any] interface {
	// Size returns the exact encoded size of v.
	Size(v T) int
	// MaxSize returns the largest possible encoded size for this
	// trait (used by the node codec to bound a node's payload).
	MaxSize() int
	// Serialize encodes v into dst, returning the number of bytes
	// written, or ErrOverflow if dst is shorter than Size(v).
	Serialize(dst []byte, v T) (int, error)
	// Deserialize decodes a value from the front of src, returning
	// the decoded value and the number of bytes consumed, or
	// ErrUnderflow if src does not hold a complete value.
	Deserialize(src []byte) (T, int, error)
	// Valid reports whether v is well-formed (used after decode to
	// reject corrupt records the codec itself could not catch).
	Valid(v T) bool
	// Compare returns <0, 0, >0 as a<b, a==b, a>b.
	Compare(a, b T) int
}

// --- fixed-width unsigned integers ---------------------------------

// Uint32LE encodes uint32 as 4 little-endian bytes.
type Uint32LE struct{}

func (Uint32LE) Size(uint32) int { return 4 }
func (Uint32LE) MaxSize() int    { return 4 }
func (Uint32LE) Valid(uint32) bool { return true }
func (Uint32LE) Compare(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
func (Uint32LE) Serialize(dst []byte, v uint32) (int, error) {
	if len(dst) < 4 {
		return 0, ErrOverflow
	}
	binary.LittleEndian.PutUint32(dst, v)
	return 4, nil
}
func (Uint32LE) Deserialize(src []byte) (uint32, int, error) {
	if len(src) < 4 {
		return 0, 0, ErrUnderflow
	}
	return binary.LittleEndian.Uint32(src), 4, nil
}

// Uint64LE encodes uint64 as 8 little-endian bytes.
type Uint64LE struct{}

func (Uint64LE) Size(uint64) int   { return 8 }
func (Uint64LE) MaxSize() int      { return 8 }
func (Uint64LE) Valid(uint64) bool { return true }
func (Uint64LE) Compare(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
func (Uint64LE) Serialize(dst []byte, v uint64) (int, error) {
	if len(dst) < 8 {
		return 0, ErrOverflow
	}
	binary.LittleEndian.PutUint64(dst, v)
	return 8, nil
}
func (Uint64LE) Deserialize(src []byte) (uint64, int, error) {
	if len(src) < 8 {
		return 0, 0, ErrUnderflow
	}
	return binary.LittleEndian.Uint64(src), 8, nil
}

// Int64LE encodes int64 as 8 little-endian bytes (two's complement).
type Int64LE struct{}

func (Int64LE) Size(int64) int   { return 8 }
func (Int64LE) MaxSize() int     { return 8 }
func (Int64LE) Valid(int64) bool { return true }
func (Int64LE) Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
func (Int64LE) Serialize(dst []byte, v int64) (int, error) {
	if len(dst) < 8 {
		return 0, ErrOverflow
	}
	binary.LittleEndian.PutUint64(dst, uint64(v))
	return 8, nil
}
func (Int64LE) Deserialize(src []byte) (int64, int, error) {
	if len(src) < 8 {
		return 0, 0, ErrUnderflow
	}
	return int64(binary.LittleEndian.Uint64(src)), 8, nil
}

// --- length-prefixed strings ----------------------------------------

// MaxStringLen bounds String's MaxSize; a node's payload must fit in
// one block, so unbounded strings cannot be node keys/values.
const MaxStringLen = 1024

// String encodes a UTF-8 string as a 4-byte little-endian length
// prefix followed by the raw bytes.
type String struct{}

func (String) Size(v string) int   { return 4 + len(v) }
func (String) MaxSize() int        { return 4 + MaxStringLen }
func (String) Valid(v string) bool { return len(v) <= MaxStringLen }
func (String) Compare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
func (String) Serialize(dst []byte, v string) (int, error) {
	if len(dst) < 4+len(v) {
		return 0, ErrOverflow
	}
	binary.LittleEndian.PutUint32(dst, uint32(len(v)))
	copy(dst[4:], v)
	return 4 + len(v), nil
}
func (String) Deserialize(src []byte) (string, int, error) {
	if len(src) < 4 {
		return "", 0, ErrUnderflow
	}
	n := binary.LittleEndian.Uint32(src)
	if len(src) < 4+int(n) {
		return "", 0, ErrUnderflow
	}
	return string(src[4 : 4+n]), 4 + int(n), nil
}

// --- fingerprints -----------------------------------------------------

// FingerprintSize is the width of a hashed key (spec §3: 4-byte
// user-header uid || 128-bit MurmurHash3).
const FingerprintSize = 20

// Fingerprint is the B+ tree key type: the hashed, fixed-width
// representation of a user key.
type Fingerprint [FingerprintSize]byte

// FingerprintTraits encodes a Fingerprint as its 20 raw bytes,
// compared lexicographically (this is the tree's key order, which is
// hash order, not the user key's lexicographic order — spec §8,
// "Iteration totality").
type FingerprintTraits struct{}

func (FingerprintTraits) Size(Fingerprint) int   { return FingerprintSize }
func (FingerprintTraits) MaxSize() int           { return FingerprintSize }
func (FingerprintTraits) Valid(Fingerprint) bool { return true }
func (FingerprintTraits) Compare(a, b Fingerprint) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
func (FingerprintTraits) Serialize(dst []byte, v Fingerprint) (int, error) {
	if len(dst) < FingerprintSize {
		return 0, ErrOverflow
	}
	copy(dst, v[:])
	return FingerprintSize, nil
}
func (FingerprintTraits) Deserialize(src []byte) (Fingerprint, int, error) {
	var v Fingerprint
	if len(src) < FingerprintSize {
		return v, 0, ErrUnderflow
	}
	copy(v[:], src[:FingerprintSize])
	return v, FingerprintSize, nil
}

// --- locators ----------------------------------------------------------

// DataLocatorSize is 2 bytes offset + 4 bytes block id.
const DataLocatorSize = 6

// DataLocatorTraits encodes locator.DataLocator.
type DataLocatorTraits struct{}

func (DataLocatorTraits) Size(locator.DataLocator) int   { return DataLocatorSize }
func (DataLocatorTraits) MaxSize() int                   { return DataLocatorSize }
func (DataLocatorTraits) Valid(v locator.DataLocator) bool { return true }
func (DataLocatorTraits) Compare(a, b locator.DataLocator) int {
	if a.BlockID != b.BlockID {
		if a.BlockID < b.BlockID {
			return -1
		}
		return 1
	}
	switch {
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	default:
		return 0
	}
}
func (DataLocatorTraits) Serialize(dst []byte, v locator.DataLocator) (int, error) {
	if len(dst) < DataLocatorSize {
		return 0, ErrOverflow
	}
	binary.LittleEndian.PutUint16(dst[0:2], uint16(v.Offset))
	binary.LittleEndian.PutUint32(dst[2:6], v.BlockID)
	return DataLocatorSize, nil
}
func (DataLocatorTraits) Deserialize(src []byte) (locator.DataLocator, int, error) {
	var v locator.DataLocator
	if len(src) < DataLocatorSize {
		return v, 0, ErrUnderflow
	}
	v.Offset = int16(binary.LittleEndian.Uint16(src[0:2]))
	v.BlockID = binary.LittleEndian.Uint32(src[2:6])
	return v, DataLocatorSize, nil
}

// SizedLocatorSize is DataLocatorSize + 4 bytes size.
const SizedLocatorSize = DataLocatorSize + 4

// SizedLocatorTraits encodes locator.SizedLocator. This is the value
// type the store's B+ tree actually holds (a fingerprint maps to the
// envelope that holds the real value).
type SizedLocatorTraits struct{}

func (SizedLocatorTraits) Size(locator.SizedLocator) int   { return SizedLocatorSize }
func (SizedLocatorTraits) MaxSize() int                    { return SizedLocatorSize }
func (SizedLocatorTraits) Valid(v locator.SizedLocator) bool { return true }
func (SizedLocatorTraits) Compare(a, b locator.SizedLocator) int {
	return DataLocatorTraits{}.Compare(a.DataLocator, b.DataLocator)
}
func (SizedLocatorTraits) Serialize(dst []byte, v locator.SizedLocator) (int, error) {
	if len(dst) < SizedLocatorSize {
		return 0, ErrOverflow
	}
	n, err := DataLocatorTraits{}.Serialize(dst, v.DataLocator)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint32(dst[n:n+4], v.Size)
	return n + 4, nil
}
func (SizedLocatorTraits) Deserialize(src []byte) (locator.SizedLocator, int, error) {
	var v locator.SizedLocator
	if len(src) < SizedLocatorSize {
		return v, 0, ErrUnderflow
	}
	dl, n, err := DataLocatorTraits{}.Deserialize(src)
	if err != nil {
		return v, 0, err
	}
	v.DataLocator = dl
	v.Size = binary.LittleEndian.Uint32(src[n : n+4])
	return v, n + 4, nil
}
