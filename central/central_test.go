package central

import (
	"context"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/database"
	"github.com/marchellc/CentralAPI/rpc"
	"github.com/marchellc/CentralAPI/transport"
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

func tempStorage(t *testing.T) (*FileStorage, func()) {
	dir, err := ioutil.TempDir("", "centralapi")
	require.NoError(t, err)
	storage, err := NewFileStorage(dir, zap.NewNop())
	require.NoError(t, err)
	return storage, func() { os.RemoveAll(dir) }
}

func counter(v int64) []byte {
	return codec.Encode(func(w *codec.Writer) { w.WriteInt64(v) })
}

func TestDirector(t *testing.T) {
	storage, cleanup := tempStorage(t)
	defer cleanup()
	director := NewDirector(storage, zap.NewNop())
	require.NoError(t, director.Load())

	t.Run("missing parents", func(t *testing.T) {
		code, err := director.AddItem(database.AddItem{TableID: 5, CollectionID: 2, Name: "counter", Value: counter(1)})
		require.NoError(t, err)
		require.Equal(t, database.AddItemTableMissing, code)
		require.NoError(t, director.AddTable(database.AddTable{TableID: 5}))
		code, err = director.AddItem(database.AddItem{TableID: 5, CollectionID: 2, Name: "counter", Value: counter(1)})
		require.NoError(t, err)
		require.Equal(t, database.AddItemCollectionMissing, code)
	})
	t.Run("add", func(t *testing.T) {
		require.NoError(t, director.AddCollection(database.AddCollection{TableID: 5, CollectionID: 2, Tag: "i64"}))
		code, err := director.AddItem(database.AddItem{TableID: 5, CollectionID: 2, Name: "counter", Value: counter(1)})
		require.NoError(t, err)
		require.Equal(t, database.ResultOK, code)
	})
	t.Run("no override", func(t *testing.T) {
		code, err := director.AddItem(database.AddItem{TableID: 5, CollectionID: 2, Name: "counter", Value: counter(2)})
		require.NoError(t, err)
		require.Equal(t, database.AddItemExists, code)
		v, ok := director.Item(5, 2, "counter")
		require.True(t, ok)
		require.Equal(t, counter(1), v)
	})
	t.Run("override with same value", func(t *testing.T) {
		code, err := director.AddItem(database.AddItem{TableID: 5, CollectionID: 2, Name: "counter", Value: counter(1), OrOverride: true})
		require.NoError(t, err)
		require.Equal(t, database.AddItemExists, code)
	})
	t.Run("override", func(t *testing.T) {
		code, err := director.AddItem(database.AddItem{TableID: 5, CollectionID: 2, Name: "counter", Value: counter(3), OrOverride: true})
		require.NoError(t, err)
		require.Equal(t, database.ResultOK, code)
		content, err := ioutil.ReadFile(filepath.Join(storage.Root(), "5", "2", "counter.db"))
		require.NoError(t, err)
		require.Equal(t, []byte{3, 0, 0, 0, 0, 0, 0, 0}, content)
		tag, err := ioutil.ReadFile(filepath.Join(storage.Root(), "5", "2", "type.txt"))
		require.NoError(t, err)
		require.Equal(t, "i64", string(tag))
	})
	t.Run("get item", func(t *testing.T) {
		code, value, err := director.GetItem(database.GetItem{TableID: 5, CollectionID: 2, Name: "counter"})
		require.NoError(t, err)
		require.Equal(t, database.GetItemFound, code)
		require.Equal(t, counter(3), value)
		code, _, err = director.GetItem(database.GetItem{TableID: 5, CollectionID: 2, Name: "other"})
		require.NoError(t, err)
		require.Equal(t, database.GetItemNotFound, code)
		code, _, err = director.GetItem(database.GetItem{TableID: 5, CollectionID: 2, Name: "other", OrAdd: true, Value: counter(9)})
		require.NoError(t, err)
		require.Equal(t, database.GetItemAdded, code)
		v, ok := director.Item(5, 2, "other")
		require.True(t, ok)
		require.Equal(t, counter(9), v)
	})
	t.Run("reload", func(t *testing.T) {
		reloaded := NewDirector(storage, zap.NewNop())
		require.NoError(t, reloaded.Load())
		require.Equal(t, director.Snapshot(), reloaded.Snapshot())
		require.Equal(t, []uint8{5}, reloaded.TableIDs())
	})
	t.Run("remove", func(t *testing.T) {
		removed := director.RemoveItems(database.RemoveItems{TableID: 5, CollectionID: 2, Names: []string{"other", "missing"}})
		require.Equal(t, []string{"other"}, removed)
		_, err := os.Stat(filepath.Join(storage.Root(), "5", "2", "other.db"))
		require.True(t, os.IsNotExist(err))
	})
	t.Run("clear collection", func(t *testing.T) {
		code, err := director.ClearCollection(database.ClearCollection{TableID: 5, CollectionID: 2})
		require.NoError(t, err)
		require.Equal(t, database.ResultOK, code)
		_, ok := director.Item(5, 2, "counter")
		require.False(t, ok)
		_, err = os.Stat(filepath.Join(storage.Root(), "5", "2", "counter.db"))
		require.True(t, os.IsNotExist(err))
		_, err = os.Stat(filepath.Join(storage.Root(), "5", "2", "type.txt"))
		require.NoError(t, err)
	})
	t.Run("drop table", func(t *testing.T) {
		code, err := director.ClearTable(database.ClearTable{TableID: 5, Drop: true})
		require.NoError(t, err)
		require.Equal(t, database.ResultOK, code)
		require.Empty(t, director.TableIDs())
		_, err = os.Stat(filepath.Join(storage.Root(), "5"))
		require.True(t, os.IsNotExist(err))
		code, err = director.ClearTable(database.ClearTable{TableID: 5, Drop: true})
		require.NoError(t, err)
		require.Equal(t, database.ClearTableTableMissing, code)
	})
}

func TestFileStorage(t *testing.T) {
	storage, cleanup := tempStorage(t)
	defer cleanup()
	t.Run("rejects path names", func(t *testing.T) {
		require.NoError(t, storage.CreateCollection(1, 1, "string"))
		for _, name := range []string{"", "..", "a/b", `a\b`} {
			require.Error(t, storage.WriteItem(1, 1, name, nil), name)
		}
	})
	t.Run("skips foreign entries", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(storage.Root(), "backup"), dirMode))
		require.NoError(t, storage.WriteItem(1, 1, "a", []byte{1}))
		snapshot, err := storage.Load()
		require.NoError(t, err)
		require.Len(t, snapshot.Tables, 1)
		require.Equal(t, "string", snapshot.Tables[0].Collections[0].Tag)
		require.Equal(t, []database.SnapshotItem{{Name: "a", Value: []byte{1}}}, snapshot.Tables[0].Collections[0].Items)
	})
}

type edge struct {
	channel  *rpc.Channel
	received chan string
}

func (e *edge) call(t *testing.T, operation string, write func(*codec.Writer)) *codec.Reader {
	replies := make(chan *codec.Reader, 1)
	require.NoError(t, e.channel.Request(operation, write, func(r *codec.Reader) { replies <- r }))
	select {
	case r := <-replies:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply to %s", operation)
		return nil
	}
}

func connect(t *testing.T, server *Server, name string) (*edge, func()) {
	e, cancel := open(server, name, true)
	eventually(t, func() bool {
		conn, err := server.Connections().ByAlias(name)
		return err == nil && conn.Identified
	})
	return e, cancel
}

// open connects an edge. An edge opened without identity never answers
// ClientIdentify.
func open(server *Server, name string, identify bool) (*edge, func()) {
	local, remote := net.Pipe()
	go server.Serve(transport.Metadata{Name: "pipe", RemoteAddress: name, Channel: local})
	e := &edge{
		channel:  rpc.NewChannel(remote, zap.NewNop(), rpc.Options{}),
		received: make(chan string, 16),
	}
	if identify {
		e.channel.Handle(rpc.OpClientIdentify, func(r *codec.Reader, w *codec.Writer) {
			rpc.Identity{Port: 7777, Name: name, Alias: name}.Encode(w)
		})
	}
	for _, op := range []string{database.OpAddItem, database.OpRemoveItem, database.OpAddTable,
		database.OpAddCollection, database.OpClearCollection, database.OpClearTable} {
		op := op
		e.channel.Handle(op, func(r *codec.Reader, w *codec.Writer) { e.received <- op })
	}
	ctx, cancel := context.WithCancel(context.Background())
	go e.channel.Serve(ctx)
	return e, cancel
}

func TestServer(t *testing.T) {
	storage, cleanup := tempStorage(t)
	defer cleanup()
	director := NewDirector(storage, zap.NewNop())
	require.NoError(t, director.Load())
	server := NewServer(director, zap.NewNop(), Config{})
	defer server.Close()

	a, closeA := connect(t, server, "a")
	defer closeA()
	b, closeB := connect(t, server, "b")
	defer closeB()

	t.Run("no echo", func(t *testing.T) {
		r := a.call(t, database.OpAddTable, database.AddTable{TableID: 5}.Encode)
		require.Equal(t, database.ResultOK, database.ReadResult(r).Code)
		r = a.call(t, database.OpAddCollection, database.AddCollection{TableID: 5, CollectionID: 2, Tag: "i64"}.Encode)
		require.Equal(t, database.ResultOK, database.ReadResult(r).Code)
		r = a.call(t, database.OpAddItem, database.AddItem{TableID: 5, CollectionID: 2, Name: "counter", Value: counter(3)}.Encode)
		require.Equal(t, database.ResultOK, database.ReadResult(r).Code)

		require.Equal(t, database.OpAddTable, <-b.received)
		require.Equal(t, database.OpAddCollection, <-b.received)
		require.Equal(t, database.OpAddItem, <-b.received)
		require.Len(t, a.received, 0)
	})
	t.Run("rejected mutations are not relayed", func(t *testing.T) {
		r := b.call(t, database.OpAddItem, database.AddItem{TableID: 5, CollectionID: 2, Name: "counter", Value: counter(1)}.Encode)
		require.Equal(t, database.AddItemExists, database.ReadResult(r).Code)
		r = b.call(t, database.OpEnsureExistence, database.AddCollection{TableID: 6, CollectionID: 0, Tag: "string"}.Encode)
		require.Equal(t, database.ResultOK, database.ReadResult(r).Code)
		require.Len(t, a.received, 0)
		require.Len(t, b.received, 0)
	})
	t.Run("get or add is relayed as add", func(t *testing.T) {
		r := b.call(t, database.OpGetItem, database.GetItem{TableID: 5, CollectionID: 2, Name: "other", OrAdd: true, Value: counter(4)}.Encode)
		require.Equal(t, database.GetItemAdded, database.ReadResult(r).Code)
		require.Equal(t, database.OpAddItem, <-a.received)
		r = b.call(t, database.OpGetItem, database.GetItem{TableID: 5, CollectionID: 2, Name: "other"}.Encode)
		require.Equal(t, database.GetItemFound, database.ReadResult(r).Code)
		require.Equal(t, counter(4), r.ReadBytes())
	})
	t.Run("download", func(t *testing.T) {
		r := a.call(t, database.OpDownload, nil)
		snapshot, err := database.DecodeSnapshot(r)
		require.NoError(t, err)
		require.Equal(t, director.Snapshot(), snapshot)
		require.Len(t, snapshot.Tables, 2)
	})
	t.Run("disconnect", func(t *testing.T) {
		closeB()
		eventually(t, func() bool {
			all, err := server.Connections().All()
			return err == nil && len(all) == 1
		})
		a.channel.Request(database.OpRemoveItem, database.RemoveItems{TableID: 5, CollectionID: 2, Names: []string{"other"}}.Encode, nil)
		eventually(t, func() bool {
			_, ok := director.Item(5, 2, "other")
			return !ok
		})
	})
}

func TestRelayBeforeIdentity(t *testing.T) {
	storage, cleanup := tempStorage(t)
	defer cleanup()
	director := NewDirector(storage, zap.NewNop())
	require.NoError(t, director.Load())
	server := NewServer(director, zap.NewNop(), Config{})
	defer server.Close()

	a, closeA := connect(t, server, "a")
	defer closeA()
	b, closeB := open(server, "b", false)
	defer closeB()

	snapshot, err := database.DecodeSnapshot(b.call(t, database.OpDownload, nil))
	require.NoError(t, err)
	require.Empty(t, snapshot.Tables)

	r := a.call(t, database.OpAddTable, database.AddTable{TableID: 1}.Encode)
	require.Equal(t, database.ResultOK, database.ReadResult(r).Code)
	select {
	case op := <-b.received:
		require.Equal(t, database.OpAddTable, op)
	case <-time.After(2 * time.Second):
		t.Fatal("mutation not relayed to the downloaded edge")
	}

	all, err := server.Connections().All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, conn := range all {
		if conn.RemoteAddress == "b" {
			require.False(t, conn.Identified)
		}
	}
}
