package store

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/marchellc/CentralAPI/punishments"
	"github.com/stretchr/testify/require"
)

func TestBoltStore(t *testing.T) {
	dir, err := ioutil.TempDir("", "warns")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "warns.db")

	store, err := New(Options{Path: path, NoSync: true})
	require.NoError(t, err)

	t.Run("create assigns increasing ids", func(t *testing.T) {
		for expected := uint64(1); expected <= 3; expected++ {
			warn := &punishments.Warn{Reason: "r"}
			id, err := store.Create(warn)
			require.NoError(t, err)
			require.Equal(t, expected, id)
			require.Equal(t, expected, warn.ID)
		}
	})
	t.Run("put", func(t *testing.T) {
		warn, err := store.Get(2)
		require.NoError(t, err)
		warn.Time.IsExpired = true
		require.NoError(t, store.Put(warn))
		warn, err = store.Get(2)
		require.NoError(t, err)
		require.True(t, warn.Time.IsExpired)
	})
	t.Run("put rejects unknown warns", func(t *testing.T) {
		require.Equal(t, ErrWarnNotFound, store.Put(&punishments.Warn{ID: 40}))
		_, err := store.Get(40)
		require.Equal(t, ErrWarnNotFound, err)
	})
	t.Run("list is ordered", func(t *testing.T) {
		warns, err := store.List()
		require.NoError(t, err)
		require.Len(t, warns, 3)
		for i, warn := range warns {
			require.Equal(t, uint64(i+1), warn.ID)
		}
	})
	t.Run("ids survive a reopen", func(t *testing.T) {
		require.NoError(t, store.Close())
		store, err = New(Options{Path: path})
		require.NoError(t, err)
		id, err := store.Create(&punishments.Warn{Reason: "r"})
		require.NoError(t, err)
		require.Equal(t, uint64(4), id)
	})
	require.NoError(t, store.Close())
}
