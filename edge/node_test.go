package edge

import (
	"context"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marchellc/CentralAPI/central"
	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/database"
	"github.com/marchellc/CentralAPI/events"
	"github.com/marchellc/CentralAPI/transport"
	"github.com/marchellc/CentralAPI/wrappers"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func eventually(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fixture struct {
	dir    string
	store  *central.Director
	server *central.Server
}

func newFixture(t *testing.T) *fixture {
	dir, err := ioutil.TempDir("", "centralapi")
	require.NoError(t, err)
	storage, err := central.NewFileStorage(dir, zap.NewNop())
	require.NoError(t, err)
	store := central.NewDirector(storage, zap.NewNop())
	require.NoError(t, store.Load())
	return &fixture{
		dir:    dir,
		store:  store,
		server: central.NewServer(store, zap.NewNop(), central.Config{}),
	}
}

func (f *fixture) close() {
	f.server.Close()
	os.RemoveAll(f.dir)
}

func (f *fixture) dial(ctx context.Context) (transport.Metadata, error) {
	local, remote := net.Pipe()
	go f.server.Serve(transport.Metadata{Name: "pipe", RemoteAddress: "pipe", Channel: local})
	return transport.Metadata{Name: "pipe", RemoteAddress: "central", Channel: remote}, nil
}

type runningNode struct {
	*Node
	cancel func()
}

func (n *runningNode) stop() {
	n.cancel()
	n.Close()
}

func (f *fixture) start(t *testing.T, name string, opts database.Options) *runningNode {
	director := database.NewDirector(wrappers.NewRegistry(), zap.NewNop(), opts)
	node := New(director, zap.NewNop(), Config{Name: name, Alias: name}).WithDialer(f.dial)
	downloaded := make(chan struct{}, 4)
	director.Events().Subscribe(func(events.Event) { downloaded <- struct{}{} }, events.Downloaded)
	ctx, cancel := context.WithCancel(context.Background())
	go node.Run(ctx)
	select {
	case <-downloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("store not downloaded")
	}
	return &runningNode{Node: node, cancel: cancel}
}

// value reads an item of the mirror, nil when it is missing or cannot be
// decoded.
func (n *runningNode) value(tableID, collectionID uint8, name string) interface{} {
	var v interface{}
	n.Do(func(director *database.Director) {
		table, ok := director.TryGetTable(tableID)
		if !ok {
			return
		}
		collection, ok := table.TryGetCollection(collectionID)
		if !ok {
			return
		}
		v, _ = collection.TryGet(name)
	})
	return v
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	defer f.close()
	require.NoError(t, f.store.AddCollection(database.AddCollection{TableID: 1, CollectionID: 0, Tag: wrappers.TagInt32}))
	code, err := f.store.AddItem(database.AddItem{TableID: 1, CollectionID: 0, Name: "k",
		Value: codec.Encode(func(w *codec.Writer) { w.WriteInt32(42) })})
	require.NoError(t, err)
	require.Equal(t, database.ResultOK, code)

	node := f.start(t, "a", database.Options{ServerTable: -1, GlobalTable: 2})
	defer node.stop()

	var (
		downloaded, decoded, hasGlobal, hasServer bool
		value                                     interface{}
		readErr                                   error
	)
	require.NoError(t, node.Do(func(director *database.Director) {
		downloaded = director.IsDownloaded()
		table, ok := director.TryGetTable(1)
		if !ok {
			return
		}
		collection, ok := table.TryGetCollection(0)
		if !ok {
			return
		}
		if item, ok := collection.Item("k"); ok {
			decoded = item.IsDecoded()
		}
		value, readErr = collection.Get("k")
		_, hasGlobal = director.GlobalTable()
		_, hasServer = director.ServerTable()
	}))
	require.True(t, downloaded)
	require.False(t, decoded)
	require.NoError(t, readErr)
	require.Equal(t, int32(42), value)
	require.True(t, hasGlobal)
	require.False(t, hasServer)
	eventually(t, func() bool {
		for _, id := range f.store.TableIDs() {
			if id == 2 {
				return true
			}
		}
		return false
	})
}

func TestRequiredCollections(t *testing.T) {
	f := newFixture(t)
	defer f.close()
	director := database.NewDirector(wrappers.NewRegistry(), zap.NewNop(), database.Options{ServerTable: -1, GlobalTable: -1})
	director.RequireCollection(9, 3, wrappers.TagString)
	node := New(director, zap.NewNop(), Config{Name: "a"}).WithDialer(f.dial)
	downloaded := make(chan struct{}, 1)
	director.Events().Subscribe(func(events.Event) { downloaded <- struct{}{} }, events.Downloaded)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer node.Close()
	go node.Run(ctx)
	select {
	case <-downloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("store not downloaded")
	}
	var tag string
	require.NoError(t, node.Do(func(director *database.Director) {
		if table, ok := director.TryGetTable(9); ok {
			if collection, ok := table.TryGetCollection(3); ok {
				tag = collection.Tag()
			}
		}
	}))
	require.Equal(t, wrappers.TagString, tag)
}

func TestReplication(t *testing.T) {
	f := newFixture(t)
	defer f.close()
	opts := database.Options{ServerTable: -1, GlobalTable: -1}
	a := f.start(t, "a", opts)
	defer a.stop()
	b := f.start(t, "b", opts)
	defer b.stop()

	eventually(t, func() bool {
		all, err := f.server.Connections().All()
		if err != nil || len(all) != 2 {
			return false
		}
		for _, conn := range all {
			if !conn.Identified {
				return false
			}
		}
		return true
	})

	t.Run("counter", func(t *testing.T) {
		var err error
		require.NoError(t, a.Do(func(director *database.Director) {
			var collection *database.Collection
			collection, err = director.GetOrAddTable(5).GetOrAddCollection(2, wrappers.TagInt64)
			for i := 0; i < 3 && err == nil; i++ {
				_, err = collection.Increment("counter", 1)
			}
		}))
		require.NoError(t, err)
		eventually(t, func() bool {
			content, err := ioutil.ReadFile(filepath.Join(f.dir, "tables", "5", "2", "counter.db"))
			return err == nil && len(content) == 8 && content[0] == 3
		})
		content, err := ioutil.ReadFile(filepath.Join(f.dir, "tables", "5", "2", "counter.db"))
		require.NoError(t, err)
		require.Equal(t, []byte{3, 0, 0, 0, 0, 0, 0, 0}, content)
	})
	t.Run("relayed to the other edge", func(t *testing.T) {
		eventually(t, func() bool {
			var v interface{}
			b.Do(func(director *database.Director) {
				table, ok := director.TryGetTable(5)
				if !ok {
					return
				}
				collection, ok := table.TryGetCollection(2)
				if !ok {
					return
				}
				v, _ = collection.TryGet("counter")
			})
			return v == int64(3)
		})
	})
	t.Run("unsigned counter", func(t *testing.T) {
		var err error
		require.NoError(t, a.Do(func(director *database.Director) {
			var collection *database.Collection
			collection, err = director.GetOrAddTable(5).GetOrAddCollection(3, wrappers.TagUint64)
			for i := 0; i < 3 && err == nil; i++ {
				_, err = collection.Increment("warns", 1)
			}
		}))
		require.NoError(t, err)
		eventually(t, func() bool { return b.value(5, 3, "warns") == uint64(3) })
		content, err := ioutil.ReadFile(filepath.Join(f.dir, "tables", "5", "3", "warns.db"))
		require.NoError(t, err)
		require.Equal(t, []byte{3, 0, 0, 0, 0, 0, 0, 0}, content)
		tag, err := ioutil.ReadFile(filepath.Join(f.dir, "tables", "5", "3", "type.txt"))
		require.NoError(t, err)
		require.Equal(t, wrappers.TagUint64, string(tag))
	})
	t.Run("composites", func(t *testing.T) {
		var err error
		require.NoError(t, a.Do(func(director *database.Director) {
			table := director.GetOrAddTable(5)
			var names, scores *database.Collection
			if names, err = table.GetOrAddCollection(4, wrappers.ListTag(wrappers.TagString)); err != nil {
				return
			}
			if _, err = names.Append("players", "x", "y"); err != nil {
				return
			}
			if _, err = names.Append("players", "z"); err != nil {
				return
			}
			if scores, err = table.GetOrAddCollection(6, wrappers.MapTag(wrappers.TagString, wrappers.TagInt32)); err != nil {
				return
			}
			_, err = scores.UpdateOrAdd("round", func(interface{}) bool { return false }, func(interface{}, bool) interface{} {
				return map[interface{}]interface{}{"alice": int32(7), "bob": int32(-2)}
			})
		}))
		require.NoError(t, err)
		eventually(t, func() bool {
			list, _ := b.value(5, 4, "players").([]interface{})
			return len(list) == 3
		})
		require.Equal(t, []interface{}{"x", "y", "z"}, b.value(5, 4, "players"))
		eventually(t, func() bool { return b.value(5, 6, "round") != nil })
		require.Equal(t, map[interface{}]interface{}{"alice": int32(7), "bob": int32(-2)}, b.value(5, 6, "round"))
	})
	t.Run("removal", func(t *testing.T) {
		removed := false
		require.NoError(t, b.Do(func(director *database.Director) {
			table, _ := director.TryGetTable(5)
			collection, _ := table.TryGetCollection(2)
			removed = collection.Remove("counter")
		}))
		require.True(t, removed)
		eventually(t, func() bool {
			_, ok := f.store.Item(5, 2, "counter")
			return !ok
		})
		eventually(t, func() bool {
			removed := false
			a.Do(func(director *database.Director) {
				table, _ := director.TryGetTable(5)
				collection, _ := table.TryGetCollection(2)
				_, found := collection.Item("counter")
				removed = !found
			})
			return removed
		})
	})
	t.Run("teardown on disconnect", func(t *testing.T) {
		torn := make(chan struct{}, 1)
		require.NoError(t, a.Do(func(director *database.Director) {
			director.Events().Subscribe(func(events.Event) { torn <- struct{}{} }, events.TornDown)
		}))
		a.cancel()
		select {
		case <-torn:
		case <-time.After(2 * time.Second):
			t.Fatal("mirror not torn down")
		}
	})
}
