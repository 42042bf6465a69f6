package leveldbdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/federated-chat/roomstate/ethdb"
)

func TestPutGetCompareAndSwap(t *testing.T) {
	dir := t.TempDir()
	db, err := New(filepath.Join(dir, "db"), 8, 16)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Get([]byte("missing"))
	require.ErrorIs(t, err, ethdb.ErrNotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	v, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)

	ok, err := db.CompareAndSwap([]byte("k"), []byte("v"), []byte("v2"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.CompareAndSwap([]byte("k"), []byte("v"), []byte("v3"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIteratorPrefixRange(t *testing.T) {
	dir := t.TempDir()
	db, err := New(filepath.Join(dir, "db"), 8, 16)
	require.NoError(t, err)
	defer db.Close()

	for _, k := range []string{"p:a", "p:b", "q:a"} {
		require.NoError(t, db.Put([]byte(k), []byte(k)))
	}

	it := db.NewIterator([]byte("p:"), nil)
	defer it.Release()

	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"p:a", "p:b"}, got)
}
