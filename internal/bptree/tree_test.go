package bptree_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vecble/flatkv/internal/block"
	"github.com/vecble/flatkv/internal/bptree"
	"github.com/vecble/flatkv/internal/cache"
	"github.com/vecble/flatkv/internal/header"
	"github.com/vecble/flatkv/internal/traits"
)

func newTree(t *testing.T, order uint16) (*bptree.Tree[uint64, uint64], *block.File) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.flatkv")
	f, _, err := block.Open(path, 256)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	mgr := cache.NewManager(256)
	blocks := cache.New(f, mgr, 64, nil)

	state := header.TreeState{
		RootID:      header.InvalidID,
		FirstLeafID: header.InvalidID,
		LastLeafID:  header.InvalidID,
	}
	tr := bptree.Open[uint64, uint64](blocks, f, order, traits.Uint64LE{}, traits.Uint64LE{}, state, 64, nil)
	return tr, f
}

func TestInsertAndSearch(t *testing.T) {
	tr, _ := newTree(t, 4)

	for i := uint64(0); i < 50; i++ {
		updated, err := tr.Insert(i, i*10)
		require.NoError(t, err)
		require.False(t, updated)
	}

	for i := uint64(0); i < 50; i++ {
		leaf, idx, found, err := tr.Search(i)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, i*10, leaf.Values[idx])
	}

	_, _, found, err := tr.Search(999)
	require.NoError(t, err)
	require.False(t, found)
}

func TestInsertUpdatesExistingKey(t *testing.T) {
	tr, _ := newTree(t, 4)

	_, err := tr.Insert(1, 100)
	require.NoError(t, err)
	updated, err := tr.Insert(1, 200)
	require.NoError(t, err)
	require.True(t, updated)

	leaf, idx, found, err := tr.Search(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(200), leaf.Values[idx])
}

func TestForwardIterationIsSorted(t *testing.T) {
	tr, _ := newTree(t, 3)
	keys := []uint64{9, 3, 7, 1, 5, 8, 2, 6, 4, 0}
	for _, k := range keys {
		_, err := tr.Insert(k, k)
		require.NoError(t, err)
	}

	it, err := tr.First()
	require.NoError(t, err)
	var got []uint64
	for it.Valid() {
		k, err := it.Key()
		require.NoError(t, err)
		got = append(got, k)
		ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestReverseIterationIsSorted(t *testing.T) {
	tr, _ := newTree(t, 3)
	for _, k := range []uint64{4, 1, 3, 2, 0} {
		_, err := tr.Insert(k, k*2)
		require.NoError(t, err)
	}

	it, err := tr.Last()
	require.NoError(t, err)
	var got []uint64
	for it.Valid() {
		k, err := it.Key()
		require.NoError(t, err)
		got = append(got, k)
		ok, err := it.Prev()
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.Equal(t, []uint64{4, 3, 2, 1, 0}, got)
}

func TestSplitPreservesAllKeys(t *testing.T) {
	tr, _ := newTree(t, 2) // order 2: leaves split after 3 keys

	const n = 200
	for i := uint64(0); i < n; i++ {
		_, err := tr.Insert(i, i)
		require.NoError(t, err)
	}
	require.NoError(t, tr.Flush())

	count := 0
	it, err := tr.First()
	require.NoError(t, err)
	var last uint64
	first := true
	for it.Valid() {
		k, err := it.Key()
		require.NoError(t, err)
		if !first {
			require.Less(t, last, k)
		}
		last = k
		first = false
		count++
		ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.Equal(t, n, count)
}

func TestRemoveAtDropsEntry(t *testing.T) {
	tr, _ := newTree(t, 4)
	for _, k := range []uint64{1, 2, 3} {
		_, err := tr.Insert(k, k)
		require.NoError(t, err)
	}

	leaf, idx, found, err := tr.Search(2)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, tr.RemoveAt(leaf, idx))

	_, _, found, err = tr.Search(2)
	require.NoError(t, err)
	require.False(t, found)

	_, _, found, err = tr.Search(1)
	require.NoError(t, err)
	require.True(t, found)
}
