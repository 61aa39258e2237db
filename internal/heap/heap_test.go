package heap_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vecble/flatkv/internal/block"
	"github.com/vecble/flatkv/internal/cache"
	"github.com/vecble/flatkv/internal/header"
	"github.com/vecble/flatkv/internal/heap"
	"github.com/vecble/flatkv/internal/locator"
)

func newHeap(t *testing.T, blockSize uint32) (*heap.Heap, *cache.Cache, *block.File) {
	t.Helper()
	// Locators normalize against the package-level block size, which
	// flatkv.Open sets in a real store.
	locator.BlockSize = blockSize
	path := filepath.Join(t.TempDir(), "data.flatkv")
	f, _, err := block.Open(path, blockSize)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	mgr := cache.NewManager(blockSize)
	blocks := cache.New(f, mgr, 64, nil)

	state := header.HeapState{
		FirstBlockID:   header.InvalidID,
		CurrentBlockID: header.InvalidID,
	}
	h := heap.Open(blocks, f, blockSize, state)
	return h, blocks, f
}

func TestAllocAndWriteRoundTrip(t *testing.T) {
	h, blocks, _ := newHeap(t, 256)

	loc, err := h.AllocAndWrite([]byte("hello world"))
	require.NoError(t, err)

	got, err := h.ReadValue(loc)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
	require.NoError(t, blocks.Flush())
}

func TestDensePackingSharesOneBlock(t *testing.T) {
	h, _, _ := newHeap(t, 256)

	loc1, err := h.AllocAndWrite([]byte("aaaa"))
	require.NoError(t, err)
	loc2, err := h.AllocAndWrite([]byte("bbbb"))
	require.NoError(t, err)

	require.Equal(t, loc1.BlockID, loc2.BlockID)
	require.NotEqual(t, loc1.Offset, loc2.Offset)

	v1, err := h.ReadValue(loc1)
	require.NoError(t, err)
	v2, err := h.ReadValue(loc2)
	require.NoError(t, err)
	require.Equal(t, []byte("aaaa"), v1)
	require.Equal(t, []byte("bbbb"), v2)
}

func TestLargeValueSpansMultipleBlocks(t *testing.T) {
	h, _, _ := newHeap(t, 64)

	content := make([]byte, 500)
	for i := range content {
		content[i] = byte(i)
	}
	loc, err := h.AllocAndWrite(content)
	require.NoError(t, err)
	require.Greater(t, loc.Size, uint32(64))

	got, err := h.ReadValue(loc)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestWriteValueInPlaceShrink(t *testing.T) {
	h, _, _ := newHeap(t, 256)

	loc, err := h.AllocAndWrite([]byte("0123456789"))
	require.NoError(t, err)

	require.True(t, heap.Fits(loc, 3))
	require.NoError(t, h.WriteValue(loc, []byte("abc")))

	got, err := h.ReadValue(loc)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestWriteValueRejectsOverflow(t *testing.T) {
	h, _, _ := newHeap(t, 256)

	loc, err := h.AllocAndWrite([]byte("abc"))
	require.NoError(t, err)
	require.False(t, heap.Fits(loc, 100))
	require.Error(t, h.WriteValue(loc, make([]byte, 100)))
}

func TestReadCursorStreamsInChunks(t *testing.T) {
	h, _, _ := newHeap(t, 64)

	content := []byte("the quick brown fox jumps over the lazy dog, repeated for length padding")
	loc, err := h.AllocAndWrite(content)
	require.NoError(t, err)

	cur, err := h.NewReadCursor(loc)
	require.NoError(t, err)
	require.Equal(t, uint32(len(content)), cur.Remaining())

	var got []byte
	for cur.Remaining() > 0 {
		chunk, err := cur.Read(6)
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	require.Equal(t, content, got)
}
