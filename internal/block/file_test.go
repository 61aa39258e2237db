package block_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vecble/flatkv/internal/block"
)

func TestOpenCreatesZeroedHeaderBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.flatkv")

	f, created, err := block.Open(path, 512)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, uint32(1), f.NextID())

	buf := make([]byte, 512)
	require.NoError(t, f.Read(0, buf))
	for _, b := range buf {
		require.Zero(t, b)
	}
	require.NoError(t, f.Close())
}

func TestReopenDetectsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.flatkv")

	f, created, err := block.Open(path, 512)
	require.NoError(t, err)
	require.True(t, created)
	id := f.AllocID(3)
	buf := make([]byte, 512)
	for i := range buf {
		buf[i] = 0xAB
	}
	require.NoError(t, f.Write(id, buf))
	require.NoError(t, f.Close())

	f2, created2, err := block.Open(path, 512)
	require.NoError(t, err)
	require.False(t, created2)
	require.GreaterOrEqual(t, f2.NextID(), id+1)

	got := make([]byte, 512)
	require.NoError(t, f2.Read(id, got))
	require.Equal(t, buf, got)
	require.NoError(t, f2.Close())
}

func TestAllocIDReservesContiguousRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.flatkv")
	f, _, err := block.Open(path, 512)
	require.NoError(t, err)
	defer f.Close()

	a := f.AllocID(1)
	b := f.AllocID(4)
	c := f.AllocID(1)
	require.Equal(t, a+1, b)
	require.Equal(t, b+4, c)
}

func TestReadOutOfRangeFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.flatkv")
	f, _, err := block.Open(path, 512)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 512)
	err = f.Read(99, buf)
	require.Error(t, err)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, _, err := block.Open("", 512)
	require.Error(t, err)
}
