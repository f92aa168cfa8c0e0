package rpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/pending"
	"github.com/marchellc/CentralAPI/transport"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrChannelClosed = errors.New("channel closed")
)

const (
	DefaultRequestTTL    = 30 * time.Second
	DefaultSweepInterval = time.Second
)

// ResultHandlerFailed is the result code answered, followed by a message,
// when a handler panics. Operations never use it for their own failures.
const ResultHandlerFailed uint8 = 0xFF

// Handler serves one operation. Whatever it writes to w is sent back to the
// caller, unless the request was fire-and-forget.
type Handler func(r *codec.Reader, w *codec.Writer)

// ReplyFunc receives the payload of a response.
type ReplyFunc func(r *codec.Reader)

// Executor runs inbound work. Calls happen in frame arrival order.
type Executor func(func())

func inline(f func()) { f() }

type Options struct {
	RequestTTL    time.Duration
	SweepInterval time.Duration
	BufferSize    int
	Executor      Executor
	// OnDropped is called when a pending request leaves the channel without
	// a reply.
	OnDropped func(operation string, reason pending.Reason)
}

func (o Options) withDefaults() Options {
	if o.RequestTTL == 0 {
		o.RequestTTL = DefaultRequestTTL
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = transport.DefaultBufferSize
	}
	if o.Executor == nil {
		o.Executor = inline
	}
	return o
}

type call struct {
	operation string
	reply     ReplyFunc
}

// Channel multiplexes correlated requests and responses over one
// connection. Each connection owns its own handler table and pending map.
type Channel struct {
	conn     transport.TimeoutReadWriteCloser
	writer   *transport.FrameWriter
	logger   *zap.Logger
	opts     Options
	mutex    sync.RWMutex
	handlers map[uint16]Handler
	names    map[uint16]string
	pending  *pending.Table
	seqMutex sync.Mutex
	sequence uint16
	idle     int64
	quit     chan struct{}
	once     sync.Once
}

func NewChannel(conn transport.TimeoutReadWriteCloser, logger *zap.Logger, opts Options) *Channel {
	c := &Channel{
		conn:     conn,
		writer:   transport.NewFrameWriter(conn),
		logger:   logger,
		opts:     opts.withDefaults(),
		handlers: make(map[uint16]Handler),
		names:    make(map[uint16]string),
		quit:     make(chan struct{}),
	}
	c.pending = pending.New(c.opts.RequestTTL, c.dropped)
	c.pending.Sweep(c.opts.SweepInterval)
	return c
}

func (c *Channel) dropped(id uint64, v interface{}, reason pending.Reason) {
	call := v.(*call)
	correlationsDropped.WithLabelValues(reason.String()).Inc()
	if reason == pending.Expired {
		c.logger.Warn("request expired without reply", zap.String("operation", call.operation), zap.Uint64("correlation_id", id))
	} else {
		c.logger.Debug("request dropped", zap.String("operation", call.operation), zap.Uint64("correlation_id", id), zap.Stringer("reason", reason))
	}
	if c.opts.OnDropped != nil {
		c.opts.OnDropped(call.operation, reason)
	}
}

func (c *Channel) operation(code uint16) string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if name, ok := c.names[code]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", code)
}

func (c *Channel) remember(name string) uint16 {
	code := OpCode(name)
	c.mutex.Lock()
	c.names[code] = name
	c.mutex.Unlock()
	return code
}

// Handle registers h for the operation called name, replacing any previous
// handler.
func (c *Channel) Handle(name string, h Handler) {
	c.HandleCode(c.remember(name), h)
}

func (c *Channel) HandleCode(code uint16, h Handler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handlers[code] = h
}

func (c *Channel) Unhandle(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.handlers, OpCode(name))
}

func (c *Channel) nextCorrelation() uint16 {
	c.seqMutex.Lock()
	defer c.seqMutex.Unlock()
	c.sequence++
	if c.sequence == 0 {
		c.sequence = 1
	}
	return c.sequence
}

// Request sends a request for the operation called name. write may be nil
// when the request has no payload. When reply is nil the request is
// fire-and-forget.
func (c *Channel) Request(name string, write func(*codec.Writer), reply ReplyFunc) error {
	return c.RequestCode(c.remember(name), write, reply)
}

func (c *Channel) RequestCode(code uint16, write func(*codec.Writer), reply ReplyFunc) error {
	select {
	case <-c.quit:
		return ErrChannelClosed
	default:
	}
	operation := c.operation(code)
	req := Request{Code: code}
	if write != nil {
		req.Payload = codec.Encode(write)
	}
	if reply != nil {
		req.Correlation = c.nextCorrelation()
		if !c.pending.Put(uint64(req.Correlation), &call{operation: operation, reply: reply}) {
			return ErrChannelClosed
		}
	}
	requestsSent.WithLabelValues(operation).Inc()
	if err := c.writer.WriteFrame(transport.FrameRequest, req.Encode()); err != nil {
		if reply != nil {
			c.pending.Take(uint64(req.Correlation))
		}
		return errors.Wrapf(err, "failed to send %s", operation)
	}
	return nil
}

// Pending returns the number of requests waiting for a reply.
func (c *Channel) Pending() int {
	return c.pending.Len()
}

// Heartbeat sends a heartbeat frame every interval and expects the peer to
// send something at least every two intervals.
func (c *Channel) Heartbeat(interval time.Duration) {
	if interval <= 0 {
		return
	}
	atomic.StoreInt64(&c.idle, int64(2*interval))
	c.renewDeadline()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.quit:
				return
			case <-ticker.C:
				if err := c.writer.WriteFrame(transport.FrameHeartbeat, nil); err != nil {
					c.logger.Warn("failed to send heartbeat", zap.Error(err))
					c.Close()
					return
				}
			}
		}
	}()
}

func (c *Channel) renewDeadline() {
	idle := time.Duration(atomic.LoadInt64(&c.idle))
	if idle > 0 {
		c.conn.SetReadDeadline(time.Now().Add(idle))
	}
}

// Done is closed once the channel is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.quit
}

// Close closes the connection and cancels every pending request. Reply
// callbacks of cancelled requests are not invoked.
func (c *Channel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.quit)
		c.pending.Close()
		err = c.conn.Close()
	})
	return err
}

// Serve reads frames until the connection fails, ctx is cancelled or the
// channel is closed. The channel is closed when Serve returns.
func (c *Channel) Serve(ctx context.Context) error {
	decoder := transport.Async(c.conn, c.opts.BufferSize)
	defer decoder.Cancel()
	defer c.Close()
	c.renewDeadline()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.quit:
			return ErrChannelClosed
		case frame, ok := <-decoder.Frames():
			if !ok {
				select {
				case <-c.quit:
					return ErrChannelClosed
				default:
				}
				return decoder.Err()
			}
			c.renewDeadline()
			c.dispatch(frame)
		}
	}
}

func (c *Channel) dispatch(frame transport.Frame) {
	switch frame.Kind {
	case transport.FrameHeartbeat:
	case transport.FrameRequest:
		req, err := DecodeRequest(frame.Body)
		if err != nil {
			c.logger.Warn("dropping malformed request", zap.Error(err))
			return
		}
		c.opts.Executor(func() { c.handleRequest(req) })
	case transport.FrameResponse:
		resp, err := DecodeResponse(frame.Body)
		if err != nil {
			c.logger.Warn("dropping malformed response", zap.Error(err))
			return
		}
		c.opts.Executor(func() { c.handleResponse(resp) })
	default:
		c.logger.Warn("dropping frame of unknown kind", zap.Uint8("frame_kind", uint8(frame.Kind)))
	}
}

func (c *Channel) handleRequest(req Request) {
	c.mutex.RLock()
	h, ok := c.handlers[req.Code]
	c.mutex.RUnlock()
	operation := c.operation(req.Code)
	if !ok {
		requestsReceived.WithLabelValues(operation, "unhandled").Inc()
		c.logger.Warn("dropping request for unknown operation", zap.String("operation", operation))
		return
	}
	w := codec.NewWriter()
	if p := c.invoke(operation, func() { h(codec.NewReader(req.Payload), w) }); p != nil {
		requestsReceived.WithLabelValues(operation, "panic").Inc()
		w.Reset()
		w.WriteUint8(ResultHandlerFailed)
		w.WriteString(fmt.Sprintf("%s handler failed: %v", operation, p))
	} else {
		requestsReceived.WithLabelValues(operation, "handled").Inc()
	}
	if req.Correlation == 0 {
		return
	}
	resp := Response{Correlation: req.Correlation, Payload: w.Bytes()}
	if err := c.writer.WriteFrame(transport.FrameResponse, resp.Encode()); err != nil {
		c.logger.Warn("failed to send response", zap.String("operation", operation), zap.Error(err))
	}
}

func (c *Channel) handleResponse(resp Response) {
	v, ok := c.pending.Take(uint64(resp.Correlation))
	if !ok {
		c.logger.Warn("dropping response for unknown correlation", zap.Uint16("correlation_id", resp.Correlation))
		return
	}
	call := v.(*call)
	c.invoke(call.operation, func() { call.reply(codec.NewReader(resp.Payload)) })
}

// invoke runs f and returns the recovered panic value, if any.
func (c *Channel) invoke(operation string, f func()) (recovered interface{}) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked", zap.String("operation", operation), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			recovered = r
		}
	}()
	f()
	return nil
}
