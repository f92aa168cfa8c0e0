package edge

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/database"
	"github.com/marchellc/CentralAPI/rpc"
	"github.com/marchellc/CentralAPI/transport"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ErrNodeClosed   = errors.New("node closed")
	ErrDisconnected = errors.New("disconnected from central node")
)

type Config struct {
	Address            net.IP
	Port               int
	Name               string
	Alias              string
	IdentityPort       uint16
	BufferSize         int
	HeartbeatInterval  time.Duration
	RequestTTL         time.Duration
	DialTimeout        time.Duration
	MaxConnectAttempts int
	AllowReconnection  bool
}

// DialFunc opens a connection to the central node.
type DialFunc func(ctx context.Context) (transport.Metadata, error)

// Service is attached to every connection of the node. Its methods are
// called on the tick.
type Service interface {
	Attach(channel *rpc.Channel)
	Detach()
}

// Node keeps a database.Director in sync with the central node. Every access
// to the director, inbound mutations included, runs on the node's tick
// goroutine.
type Node struct {
	config   Config
	logger   *zap.Logger
	director *database.Director
	dial     DialFunc
	services []Service
	tasks    chan func()
	quit     chan struct{}
	once     sync.Once

	// Owned by the tick.
	channel *rpc.Channel
	backlog []func()
}

func New(director *database.Director, logger *zap.Logger, config Config) *Node {
	n := &Node{
		config:   config,
		logger:   logger,
		director: director,
		tasks:    make(chan func()),
		quit:     make(chan struct{}),
	}
	n.dial = func(ctx context.Context) (transport.Metadata, error) {
		return transport.Dial(ctx, n.config.Address.String(), n.config.Port, n.config.DialTimeout)
	}
	go n.tick()
	return n
}

// WithDialer replaces the TCP dialer.
func (n *Node) WithDialer(dial DialFunc) *Node {
	n.dial = dial
	return n
}

// Use attaches svc to every future connection. It must be called before Run.
func (n *Node) Use(svc Service) {
	n.services = append(n.services, svc)
}

func (n *Node) tick() {
	for {
		select {
		case <-n.quit:
			return
		case task := <-n.tasks:
			task()
		}
	}
}

// Submit queues fn on the tick without waiting for it.
func (n *Node) Submit(fn func()) error {
	select {
	case <-n.quit:
		return ErrNodeClosed
	case n.tasks <- fn:
		return nil
	}
}

// Do runs fn on the tick and waits for it to return.
func (n *Node) Do(fn func(director *database.Director)) error {
	done := make(chan struct{})
	err := n.Submit(func() {
		defer close(done)
		fn(n.director)
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-n.quit:
		return ErrNodeClosed
	}
}

func (n *Node) execute(fn func()) {
	n.Submit(fn)
}

// Close stops the tick. Run returns once its connection is gone.
func (n *Node) Close() error {
	n.once.Do(func() { close(n.quit) })
	return nil
}

// Run connects to the central node and keeps the mirror in sync until ctx is
// cancelled, the node is closed or the connection is lost without
// reconnection allowed.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-n.quit:
			cancel()
		case <-ctx.Done():
		}
	}()
	for {
		t, err := n.connect(ctx)
		if err != nil {
			return err
		}
		err = n.serve(ctx, t)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !n.config.AllowReconnection {
			return err
		}
		n.logger.Info("reconnecting", zap.Error(err))
	}
}

func (n *Node) connect(ctx context.Context) (transport.Metadata, error) {
	var (
		t       transport.Metadata
		attempt int
	)
	exponential := backoff.NewExponentialBackOff()
	exponential.MaxElapsedTime = 0
	var policy backoff.BackOff = exponential
	if n.config.MaxConnectAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(n.config.MaxConnectAttempts-1))
	}
	err := backoff.Retry(func() error {
		attempt++
		var err error
		t, err = n.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			n.logger.Warn("failed to connect to central node", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return t, errors.Wrap(err, "failed to connect to central node")
	}
	return t, nil
}

func (n *Node) serve(ctx context.Context, t transport.Metadata) error {
	fields := []zapcore.Field{
		zap.String("remote_address", t.RemoteAddress),
		zap.String("transport", t.Name),
	}
	logger := n.logger.WithOptions(zap.Fields(fields...))
	channel := rpc.NewChannel(t.Channel, logger, rpc.Options{
		RequestTTL: n.config.RequestTTL,
		BufferSize: n.config.BufferSize,
		Executor:   n.execute,
	})
	n.register(channel)
	err := n.Submit(func() {
		n.channel = channel
		n.director.SetSender(channel)
		for _, svc := range n.services {
			svc.Attach(channel)
		}
		n.synchronize(channel)
	})
	if err != nil {
		channel.Close()
		return err
	}
	logger.Info("connected to central node")
	channel.Heartbeat(n.config.HeartbeatInterval)
	err = channel.Serve(ctx)
	n.Do(func(director *database.Director) {
		n.channel = nil
		n.backlog = nil
		director.SetSender(nil)
		director.TearDown()
		for _, svc := range n.services {
			svc.Detach()
		}
	})
	if err == nil {
		logger.Warn("connection lost")
		return ErrDisconnected
	}
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		logger.Warn("connection lost", zap.String("reason", "io timeout"))
	} else {
		logger.Warn("connection lost", zap.Error(err))
	}
	return errors.Wrap(ErrDisconnected, err.Error())
}

// synchronize makes sure required collections exist, then downloads the
// store. Replies are handled in request order.
func (n *Node) synchronize(channel *rpc.Channel) {
	for _, req := range n.director.Requirements() {
		req := req
		err := channel.Request(database.OpEnsureExistence, database.AddCollection{
			TableID:      req.TableID,
			CollectionID: req.CollectionID,
			Tag:          req.Tag,
		}.Encode, func(r *codec.Reader) {
			res := database.ReadResult(r)
			if res.Code != database.ResultOK {
				n.logger.Error("failed to ensure collection", zap.Uint8("table_id", req.TableID),
					zap.Uint8("collection_id", req.CollectionID), zap.Uint8("result_code", res.Code), zap.String("result_message", res.Message))
			}
		})
		if err != nil {
			n.logger.Warn("failed to ensure collection", zap.Error(err))
		}
	}
	err := channel.Request(database.OpDownload, nil, func(r *codec.Reader) {
		snapshot, err := database.DecodeSnapshot(r)
		if err != nil {
			n.logger.Error("malformed download", zap.Error(err))
			return
		}
		n.director.Load(snapshot)
		backlog := n.backlog
		n.backlog = nil
		for _, apply := range backlog {
			apply()
		}
	})
	if err != nil {
		n.logger.Warn("failed to download store", zap.Error(err))
	}
}

// IsConnected must be called on the tick.
func (n *Node) IsConnected() bool {
	return n.channel != nil
}
