package cache_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vecble/flatkv/internal/block"
	"github.com/vecble/flatkv/internal/cache"
)

func openFile(t *testing.T) *block.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.flatkv")
	f, _, err := block.Open(path, 64)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestCacheReadThroughOnMiss(t *testing.T) {
	f := openFile(t)
	mgr := cache.NewManager(64)
	c := cache.New(f, mgr, 4, nil)

	id := f.AllocID(1)
	buf := make([]byte, 64)
	buf[0] = 0x42
	require.NoError(t, f.Write(id, buf))

	blk, err := c.Get(id)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), blk.Data[0])
}

func TestCacheWriteBackOnEviction(t *testing.T) {
	f := openFile(t)
	mgr := cache.NewManager(64)
	c := cache.New(f, mgr, 2, nil)

	ids := make([]uint32, 3)
	for i := range ids {
		ids[i] = f.AllocID(1)
		blk, err := c.Get(ids[i])
		require.NoError(t, err)
		blk.Data[0] = byte(i + 1)
		blk.MarkDirty()
	}
	// capacity is 2; fetching a 3rd id must evict the oldest (ids[0]),
	// writing it back.
	require.LessOrEqual(t, c.Len(), 2)

	raw := make([]byte, 64)
	require.NoError(t, f.Read(ids[0], raw))
	require.Equal(t, byte(1), raw[0])
}

func TestCacheFlushWritesEveryDirtyBlock(t *testing.T) {
	f := openFile(t)
	mgr := cache.NewManager(64)
	c := cache.New(f, mgr, 8, nil)

	id := f.AllocID(1)
	blk, err := c.Get(id)
	require.NoError(t, err)
	blk.Data[1] = 0x99
	blk.MarkDirty()

	require.NoError(t, c.Flush())
	require.Equal(t, 0, c.Len())

	raw := make([]byte, 64)
	require.NoError(t, f.Read(id, raw))
	require.Equal(t, byte(0x99), raw[1])
}

func TestCacheNeverExceedsCapacity(t *testing.T) {
	f := openFile(t)
	mgr := cache.NewManager(64)
	c := cache.New(f, mgr, 3, nil)

	for i := 0; i < 50; i++ {
		id := f.AllocID(1)
		_, err := c.Get(id)
		require.NoError(t, err)
		require.LessOrEqual(t, c.Len(), 3)
	}
}

func TestManagerAcquireReleaseReusesLiveObject(t *testing.T) {
	mgr := cache.NewManager(64)
	blk1, existed := mgr.Acquire(5)
	require.False(t, existed)
	blk2, existed := mgr.Acquire(5)
	require.True(t, existed)
	require.Same(t, blk1, blk2)
	require.Equal(t, 1, mgr.Live())

	mgr.Release(5)
	mgr.Release(5)
	require.Equal(t, 0, mgr.Live())
}
