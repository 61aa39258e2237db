package flatkv_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vecble/flatkv"
)

func TestOpenEmptyStoreHasNoEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.flatkv")
	s, err := flatkv.Open(path)
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.Has([]byte("anything"))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Get([]byte("anything"))
	require.True(t, flatkv.Is(err, flatkv.ErrNotFound))

	it, err := s.Iterator()
	require.NoError(t, err)
	require.False(t, it.Valid())
}

func TestBasicPutGetHas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.flatkv")
	s, err := flatkv.Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put([]byte("alpha"), []byte("one"), true))
	require.NoError(t, s.Put([]byte("beta"), []byte("two"), true))

	ok, err := s.Has([]byte("alpha"))
	require.NoError(t, err)
	require.True(t, ok)

	v, err := s.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), v)

	err = s.Put([]byte("alpha"), []byte("overwritten"), false)
	require.True(t, flatkv.Is(err, flatkv.ErrAlreadyExists))

	require.NoError(t, s.Put([]byte("alpha"), []byte("overwritten"), true))
	v, err = s.Get([]byte("alpha"))
	require.NoError(t, err)
	require.Equal(t, []byte("overwritten"), v)
}

func TestRename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.flatkv")
	s, err := flatkv.Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put([]byte("old-name"), []byte("payload"), true))
	require.NoError(t, s.Rename([]byte("old-name"), []byte("new-name")))

	ok, err := s.Has([]byte("old-name"))
	require.NoError(t, err)
	require.False(t, ok)

	v, err := s.Get([]byte("new-name"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), v)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.flatkv")
	s, err := flatkv.Open(path)
	require.NoError(t, err)

	keys := []string{"one", "two", "three", "four", "five", "six", "seven"}
	for i, k := range keys {
		require.NoError(t, s.Put([]byte(k), []byte(fmt.Sprintf("value-%d", i)), true))
	}
	require.NoError(t, s.Close())

	s2, err := flatkv.Open(path)
	require.NoError(t, err)
	defer s2.Close()

	for i, k := range keys {
		v, err := s2.Get([]byte(k))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("value-%d", i), string(v))
	}

	// Forward iteration must visit every key exactly once, in
	// increasing fingerprint order.
	it, err := s2.Iterator()
	require.NoError(t, err)
	seen := map[string]bool{}
	var lastFP [20]byte
	first := true
	for it.Valid() {
		fp, err := it.Key()
		require.NoError(t, err)
		if !first {
			require.True(t, bytesLess(lastFP[:], fp[:]))
		}
		lastFP = fp
		first = false

		v, err := it.Value()
		require.NoError(t, err)
		seen[string(v)] = true

		ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.Len(t, seen, len(keys))
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func TestStreamingPartialRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.flatkv")
	s, err := flatkv.Open(path, flatkv.WithBlockSize(512))
	require.NoError(t, err)
	defer s.Close()

	lorem := "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod " +
		"tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veni."
	require.Len(t, lorem, 146) // shorter than the 445-byte sample; fits in one 512-byte block

	require.NoError(t, s.Put([]byte("lorem"), []byte(lorem), true))

	search, err := s.Find([]byte("lorem"))
	require.NoError(t, err)

	var got []byte
	for {
		remaining, err := search.Remaining()
		require.NoError(t, err)
		if remaining == 0 {
			break
		}
		chunk, err := search.Chunk(6)
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	require.Equal(t, lorem, string(got))
}

func TestLargeValueRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.flatkv")
	s, err := flatkv.Open(path, flatkv.WithBlockSize(512))
	require.NoError(t, err)
	defer s.Close()

	big := make([]byte, 8192)
	for i := range big {
		big[i] = byte(i % 251)
	}
	require.NoError(t, s.Put([]byte("big"), big, true))

	got, err := s.Get([]byte("big"))
	require.NoError(t, err)
	require.Equal(t, big, got)
}

func TestBulkInsertPersistIterate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.flatkv")
	s, err := flatkv.Open(path, flatkv.WithCacheSize(128), flatkv.WithNodeCacheSize(128))
	require.NoError(t, err)

	const n = 2048
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%06d", i))
		v := []byte(fmt.Sprintf("value-%06d", i))
		require.NoError(t, s.Put(k, v, true))
	}
	require.NoError(t, s.Close())

	s2, err := flatkv.Open(path, flatkv.WithCacheSize(128), flatkv.WithNodeCacheSize(128))
	require.NoError(t, err)
	defer s2.Close()

	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%06d", i))
		v, err := s2.Get(k)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("value-%06d", i), string(v))
	}

	count := 0
	it, err := s2.Iterator()
	require.NoError(t, err)
	for it.Valid() {
		count++
		ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.Equal(t, n, count)
}
