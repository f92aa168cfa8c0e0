package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	farm "github.com/dgryski/go-farm"
	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/pending"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pipe(opts Options) (*Channel, *Channel, func()) {
	left, right := net.Pipe()
	a := NewChannel(left, zap.NewNop(), opts)
	b := NewChannel(right, zap.NewNop(), opts)
	ctx, cancel := context.WithCancel(context.Background())
	go a.Serve(ctx)
	go b.Serve(ctx)
	return a, b, func() {
		cancel()
		a.Close()
		b.Close()
	}
}

func TestOpCode(t *testing.T) {
	h := farm.Fingerprint32([]byte("Database.AddItem"))
	require.Equal(t, uint16(h^h>>16), OpCode("Database.AddItem"))
	require.Equal(t, OpCode("Database.AddItem"), OpCode("Database.AddItem"))
}

func TestMessages(t *testing.T) {
	t.Run("request without payload", func(t *testing.T) {
		buf := Request{Correlation: 1, Code: 2}.Encode()
		require.Equal(t, []byte{1, 0, 2, 0, 0}, buf)
		req, err := DecodeRequest(buf)
		require.NoError(t, err)
		require.Equal(t, uint16(1), req.Correlation)
		require.Equal(t, uint16(2), req.Code)
		require.Nil(t, req.Payload)
	})
	t.Run("response with payload", func(t *testing.T) {
		buf := Response{Correlation: 9, Payload: []byte{0xaa}}.Encode()
		require.Equal(t, []byte{9, 0, 1, 1, 0, 0, 0, 0xaa}, buf)
		resp, err := DecodeResponse(buf)
		require.NoError(t, err)
		require.Equal(t, []byte{0xaa}, resp.Payload)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := DecodeRequest([]byte{1})
		require.Error(t, err)
	})
}

func TestCorrelation(t *testing.T) {
	c := &Channel{}
	require.Equal(t, uint16(1), c.nextCorrelation())
	require.Equal(t, uint16(2), c.nextCorrelation())
	c.sequence = 0xffff
	require.Equal(t, uint16(1), c.nextCorrelation())
}

func TestChannel(t *testing.T) {
	t.Run("request and reply", func(t *testing.T) {
		a, b, done := pipe(Options{})
		defer done()
		b.Handle("Echo", func(r *codec.Reader, w *codec.Writer) {
			w.WriteString(r.ReadString())
		})
		replies := make(chan string, 1)
		require.NoError(t, a.Request("Echo", func(w *codec.Writer) {
			w.WriteString("hello")
		}, func(r *codec.Reader) {
			replies <- r.ReadString()
		}))
		select {
		case reply := <-replies:
			require.Equal(t, "hello", reply)
		case <-time.After(time.Second):
			t.Fatal("no reply")
		}
		require.Equal(t, 0, a.Pending())
	})
	t.Run("fire and forget", func(t *testing.T) {
		a, b, done := pipe(Options{})
		defer done()
		received := make(chan uint8, 1)
		b.Handle("Notify", func(r *codec.Reader, w *codec.Writer) {
			w.WriteUint8(1)
			received <- r.ReadUint8()
		})
		require.NoError(t, a.Request("Notify", func(w *codec.Writer) { w.WriteUint8(5) }, nil))
		select {
		case v := <-received:
			require.Equal(t, uint8(5), v)
		case <-time.After(time.Second):
			t.Fatal("request not delivered")
		}
		require.Equal(t, 0, a.Pending())
	})
	t.Run("handler panic does not stop the channel", func(t *testing.T) {
		a, b, done := pipe(Options{})
		defer done()
		b.Handle("Panic", func(r *codec.Reader, w *codec.Writer) { panic("boom") })
		b.Handle("Ping", func(r *codec.Reader, w *codec.Writer) { w.WriteBool(true) })
		require.NoError(t, a.Request("Panic", nil, nil))
		replies := make(chan bool, 1)
		require.NoError(t, a.Request("Ping", nil, func(r *codec.Reader) { replies <- r.ReadBool() }))
		select {
		case v := <-replies:
			require.True(t, v)
		case <-time.After(time.Second):
			t.Fatal("no reply")
		}
	})
	t.Run("handler panic is answered with a failure", func(t *testing.T) {
		a, b, done := pipe(Options{RequestTTL: time.Minute})
		defer done()
		b.Handle("Panic", func(r *codec.Reader, w *codec.Writer) {
			w.WriteUint8(0)
			panic("boom")
		})
		type failure struct {
			code    uint8
			message string
		}
		replies := make(chan failure, 1)
		require.NoError(t, a.Request("Panic", nil, func(r *codec.Reader) {
			replies <- failure{code: r.ReadUint8(), message: r.ReadString()}
		}))
		select {
		case f := <-replies:
			require.Equal(t, ResultHandlerFailed, f.code)
			require.Contains(t, f.message, "boom")
		case <-time.After(time.Second):
			t.Fatal("no reply")
		}
		require.Equal(t, 0, a.Pending())
	})
	t.Run("unanswered requests expire", func(t *testing.T) {
		dropped := make(chan pending.Reason, 1)
		a, _, done := pipe(Options{
			RequestTTL:    10 * time.Millisecond,
			SweepInterval: 5 * time.Millisecond,
			OnDropped: func(operation string, reason pending.Reason) {
				if operation == "Missing" {
					dropped <- reason
				}
			},
		})
		defer done()
		require.NoError(t, a.Request("Missing", nil, func(r *codec.Reader) {
			t.Error("reply to an unhandled operation")
		}))
		select {
		case reason := <-dropped:
			require.Equal(t, pending.Expired, reason)
		case <-time.After(time.Second):
			t.Fatal("request did not expire")
		}
		require.Equal(t, 0, a.Pending())
	})
	t.Run("close cancels pending requests", func(t *testing.T) {
		dropped := make(chan pending.Reason, 1)
		a, _, done := pipe(Options{
			OnDropped: func(operation string, reason pending.Reason) { dropped <- reason },
		})
		defer done()
		require.NoError(t, a.Request("Missing", nil, func(r *codec.Reader) {}))
		require.Equal(t, 1, a.Pending())
		a.Close()
		require.Equal(t, pending.Cancelled, <-dropped)
		require.Equal(t, 0, a.Pending())
		require.Equal(t, ErrChannelClosed, a.Request("Missing", nil, nil))
	})
	t.Run("executor receives inbound work in order", func(t *testing.T) {
		queue := make(chan func(), 16)
		left, right := net.Pipe()
		a := NewChannel(left, zap.NewNop(), Options{})
		b := NewChannel(right, zap.NewNop(), Options{Executor: func(f func()) { queue <- f }})
		defer a.Close()
		defer b.Close()
		go a.Serve(context.Background())
		go b.Serve(context.Background())
		var got []uint8
		b.Handle("Seq", func(r *codec.Reader, w *codec.Writer) { got = append(got, r.ReadUint8()) })
		for i := uint8(1); i <= 3; i++ {
			i := i
			require.NoError(t, a.Request("Seq", func(w *codec.Writer) { w.WriteUint8(i) }, nil))
		}
		for i := 0; i < 3; i++ {
			select {
			case f := <-queue:
				f()
			case <-time.After(time.Second):
				t.Fatal("work not queued")
			}
		}
		require.Equal(t, []uint8{1, 2, 3}, got)
	})
}
