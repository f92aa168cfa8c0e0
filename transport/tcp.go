package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	proxyproto "github.com/armon/go-proxyproto"
	"go.uber.org/zap"
)

type tcp struct {
	listener net.Listener
	logger   *zap.Logger
}

// NewTCPTransport listens on address:port and calls handler in a new
// goroutine for every accepted connection. The listener understands the
// PROXY protocol, so RemoteAddress is the real peer behind a load balancer.
func NewTCPTransport(address string, port int, logger *zap.Logger, handler func(Metadata) error) (net.Listener, error) {
	listener := &tcp{logger: logger}
	tcp, err := net.Listen("tcp", net.JoinHostPort(address, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, err
	}
	proxyListener := &proxyproto.Listener{Listener: tcp}
	listener.listener = proxyListener
	go listener.acceptLoop(handler)
	return proxyListener, nil
}

func isClosedError(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}

func (t *tcp) acceptLoop(handler func(Metadata) error) {
	var tempDelay time.Duration
	for {
		c, err := t.listener.Accept()
		if err != nil {
			if isClosedError(err) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				t.logger.Warn("accept error", zap.Error(err), zap.Duration("retry_in", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			t.logger.Error("connection handling failed", zap.Error(err))
			t.listener.Close()
			return
		}
		tempDelay = 0
		t.queueSession(c, handler)
	}
}

func (t *tcp) queueSession(c net.Conn, handler func(Metadata) error) {
	go func() {
		err := handler(Metadata{
			Channel:       c,
			Name:          "tcp",
			RemoteAddress: c.RemoteAddr().String(),
		})
		if err != nil {
			t.logger.Debug("session handler returned", zap.String("remote_address", c.RemoteAddr().String()), zap.Error(err))
		}
	}()
}

// Dial opens a TCP connection to address:port.
func Dial(ctx context.Context, address string, port int, timeout time.Duration) (Metadata, error) {
	dialer := &net.Dialer{Timeout: timeout}
	c, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, fmt.Sprintf("%d", port)))
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Channel:       c,
		Name:          "tcp",
		RemoteAddress: c.RemoteAddr().String(),
	}, nil
}
