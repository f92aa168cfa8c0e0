package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type drop struct {
	id     uint64
	reason Reason
}

func TestTable(t *testing.T) {
	t.Run("take", func(t *testing.T) {
		table := New(time.Minute, nil)
		require.True(t, table.Put(1, "a"))
		v, ok := table.Take(1)
		require.True(t, ok)
		require.Equal(t, "a", v)
		_, ok = table.Take(1)
		require.False(t, ok)
		require.Equal(t, 0, table.Len())
	})
	t.Run("expire", func(t *testing.T) {
		var drops []drop
		table := New(10*time.Second, func(id uint64, _ interface{}, reason Reason) {
			drops = append(drops, drop{id, reason})
		})
		table.Put(1, nil)
		table.Put(2, nil)
		require.Equal(t, 0, table.Expire(time.Now()))
		require.Equal(t, 2, table.Expire(time.Now().Add(time.Minute)))
		require.Equal(t, []drop{{1, Expired}, {2, Expired}}, drops)
		require.Equal(t, 0, table.Len())
	})
	t.Run("taken entries do not expire", func(t *testing.T) {
		table := New(time.Second, nil)
		table.Put(1, nil)
		table.Take(1)
		require.Equal(t, 0, table.Expire(time.Now().Add(time.Hour)))
	})
	t.Run("replace", func(t *testing.T) {
		var drops []drop
		table := New(time.Minute, func(id uint64, _ interface{}, reason Reason) {
			drops = append(drops, drop{id, reason})
		})
		table.Put(3, "old")
		table.Put(3, "new")
		require.Equal(t, []drop{{3, Replaced}}, drops)
		v, _ := table.Take(3)
		require.Equal(t, "new", v)
	})
	t.Run("close cancels", func(t *testing.T) {
		var drops []drop
		table := New(time.Minute, func(id uint64, _ interface{}, reason Reason) {
			drops = append(drops, drop{id, reason})
		})
		table.Sweep(time.Hour)
		table.Put(4, nil)
		table.Close()
		require.Equal(t, []drop{{4, Cancelled}}, drops)
		require.False(t, table.Put(5, nil))
		table.Close()
	})
	t.Run("sweep", func(t *testing.T) {
		expired := make(chan uint64, 1)
		table := New(time.Millisecond, func(id uint64, _ interface{}, reason Reason) {
			if reason == Expired {
				expired <- id
			}
		})
		table.Sweep(5 * time.Millisecond)
		defer table.Close()
		table.Put(9, nil)
		select {
		case id := <-expired:
			require.Equal(t, uint64(9), id)
		case <-time.After(time.Second):
			t.Fatal("entry did not expire")
		}
	})
}
