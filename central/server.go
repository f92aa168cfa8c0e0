package central

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/pool"
	"github.com/marchellc/CentralAPI/rpc"
	"github.com/marchellc/CentralAPI/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	RequestTTL        time.Duration
	HeartbeatInterval time.Duration
	BroadcastWorkers  int
	BufferSize        int
}

// AttachFunc is called for every new connection, before its first frame is
// read, to register additional handlers.
type AttachFunc func(conn *Connection)

// Server accepts edge connections and serves the store to them.
type Server struct {
	director    *Director
	connections *Connections
	workers     *pool.Pool
	logger      *zap.Logger
	config      Config
	attach      []AttachFunc
	ctx         context.Context
	cancel      context.CancelFunc
	listeners   []net.Listener
}

func NewServer(director *Director, logger *zap.Logger, config Config) *Server {
	if config.BroadcastWorkers < 1 {
		config.BroadcastWorkers = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		director:    director,
		connections: NewConnections(),
		workers:     pool.NewPool(config.BroadcastWorkers),
		logger:      logger,
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Server) Director() *Director       { return s.director }
func (s *Server) Connections() *Connections { return s.connections }

// Use registers fn to be called on every new connection. It must be called
// before the server starts accepting connections.
func (s *Server) Use(fn AttachFunc) {
	s.attach = append(s.attach, fn)
}

// Listen starts accepting TCP connections.
func (s *Server) Listen(address string, port int) error {
	listener, err := transport.NewTCPTransport(address, port, s.logger, s.Serve)
	if err != nil {
		s.logger.Warn("failed to start listener", zap.String("transport", "tcp"), zap.Error(err))
		return err
	}
	s.logger.Info("started listener", zap.String("transport", "tcp"), zap.String("bind_address", address), zap.Int("bind_port", port))
	s.listeners = append(s.listeners, listener)
	return nil
}

// Close stops the listeners and every connection.
func (s *Server) Close() error {
	for idx := range s.listeners {
		s.listeners[idx].Close()
	}
	s.cancel()
	s.workers.Cancel()
	return nil
}

// Serve runs one connection until it is lost.
func (s *Server) Serve(t transport.Metadata) error {
	id := uuid.New().String()
	fields := []zapcore.Field{
		zap.String("remote_address", t.RemoteAddress),
		zap.String("transport", t.Name),
		zap.String("connection_id", id),
	}
	logger := s.logger.WithOptions(zap.Fields(fields...))
	channel := rpc.NewChannel(t.Channel, logger, rpc.Options{
		RequestTTL: s.config.RequestTTL,
		BufferSize: s.config.BufferSize,
	})
	conn := &Connection{
		ID:            id,
		RemoteAddress: t.RemoteAddress,
		Transport:     t.Name,
		Channel:       channel,
	}
	if err := s.connections.Insert(conn); err != nil {
		channel.Close()
		return err
	}
	connectedEdges.Inc()
	defer func() {
		s.connections.Delete(id)
		connectedEdges.Dec()
	}()

	(&session{id: id, server: s, logger: logger}).register(channel)
	for _, fn := range s.attach {
		fn(conn)
	}
	logger.Info("accepted new connection")
	channel.Heartbeat(s.config.HeartbeatInterval)
	s.identify(conn, logger)

	err := channel.Serve(s.ctx)
	if err != nil && err != rpc.ErrChannelClosed && err != context.Canceled {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			logger.Info("connection lost", zap.String("reason", "io timeout"))
		} else {
			logger.Info("connection lost", zap.String("reason", err.Error()))
		}
		return err
	}
	logger.Info("connection closed")
	return nil
}

func (s *Server) identify(conn *Connection, logger *zap.Logger) {
	err := conn.Channel.Request(rpc.OpClientIdentify, nil, func(r *codec.Reader) {
		identity, err := rpc.DecodeIdentity(r)
		if err != nil {
			logger.Warn("malformed identity", zap.Error(err))
			return
		}
		if _, err := s.connections.Identify(conn.ID, identity.Port, identity.Name, identity.Alias); err != nil {
			logger.Warn("failed to record identity", zap.Error(err))
			return
		}
		logger.Info("connection identified", zap.String("edge_name", identity.Name),
			zap.String("edge_alias", identity.Alias), zap.Uint16("edge_port", identity.Port))
	})
	if err != nil {
		logger.Warn("failed to request identity", zap.Error(err))
	}
}

// Broadcast sends a fire-and-forget request to every live connection but
// origin, and returns once every send completed. Sends to a connection
// happen in call order.
func (s *Server) Broadcast(origin, operation string, write func(*codec.Writer)) {
	others, err := s.connections.Others(origin)
	if err != nil {
		s.logger.Error("failed to list connections", zap.Error(err))
		return
	}
	if len(others) == 0 {
		return
	}
	payload := codec.Encode(write)
	jobs := make([]pool.Job, 0, len(others))
	for _, conn := range others {
		conn := conn
		jobs = append(jobs, func() {
			err := conn.Channel.Request(operation, func(w *codec.Writer) { w.WriteRaw(payload) }, nil)
			if err != nil {
				s.logger.Debug("failed to relay mutation", zap.String("operation", operation),
					zap.String("connection_id", conn.ID), zap.Error(err))
			}
		})
	}
	broadcasts.WithLabelValues(operation).Inc()
	if err := s.workers.Run(jobs...); err != nil {
		s.logger.Debug("broadcast interrupted", zap.String("operation", operation), zap.Error(err))
	}
}
