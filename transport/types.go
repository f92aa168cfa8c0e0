package transport

import (
	"io"
	"time"
)

type TimeoutReadWriteCloser interface {
	SetDeadline(time.Time) error
	SetReadDeadline(time.Time) error
	io.ReadWriteCloser
}

// Metadata describes one established connection, on either side.
type Metadata struct {
	Name          string
	RemoteAddress string
	Channel       TimeoutReadWriteCloser
}
