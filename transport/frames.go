package transport

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// FrameKind is the first byte of every frame body.
type FrameKind byte

const (
	FrameRequest   FrameKind = 1
	FrameResponse  FrameKind = 2
	FrameHeartbeat FrameKind = 3
)

const (
	frameHeaderSize = 4
	// MaxFrameSize bounds a single frame, kind byte included.
	MaxFrameSize = 16 << 20
	// DefaultBufferSize is the read buffer size used when none is configured.
	DefaultBufferSize = 64 << 10
)

var (
	ErrFrameTooLarge = errors.New("frame too large")
	ErrEmptyFrame    = errors.New("empty frame")
)

// Frame is one length-delimited message: a 4-byte big-endian length followed
// by a kind byte and the body.
type Frame struct {
	Kind FrameKind
	Body []byte
}

// FrameReader reads frames from a buffered stream.
type FrameReader struct {
	r *bufio.Reader
}

func NewFrameReader(r io.Reader, bufferSize int) *FrameReader {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &FrameReader{r: bufio.NewReaderSize(r, bufferSize)}
}

func (f *FrameReader) ReadFrame() (Frame, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(f.r, header[:]); err != nil {
		return Frame{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return Frame{}, ErrEmptyFrame
	}
	if size > MaxFrameSize {
		return Frame{}, errors.Wrapf(ErrFrameTooLarge, "%d bytes", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return Frame{}, err
	}
	return Frame{Kind: FrameKind(buf[0]), Body: buf[1:]}, nil
}

// FrameWriter serializes frame writes on a shared stream.
type FrameWriter struct {
	mutex sync.Mutex
	w     io.Writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

func (f *FrameWriter) WriteFrame(kind FrameKind, body []byte) error {
	size := len(body) + 1
	if size > MaxFrameSize {
		return errors.Wrapf(ErrFrameTooLarge, "%d bytes", size)
	}
	buf := make([]byte, frameHeaderSize+size)
	binary.BigEndian.PutUint32(buf, uint32(size))
	buf[frameHeaderSize] = byte(kind)
	copy(buf[frameHeaderSize+1:], body)
	f.mutex.Lock()
	defer f.mutex.Unlock()
	_, err := f.w.Write(buf)
	return err
}

// Decoder reads frames in its own goroutine and publishes them on a channel.
type Decoder struct {
	frames chan Frame
	quit   chan struct{}
	once   sync.Once
	err    error
}

// Async starts reading frames from r. The frame channel is closed when the
// stream fails or Cancel is called; Err then reports the read error.
func Async(r io.Reader, bufferSize int) *Decoder {
	d := &Decoder{
		frames: make(chan Frame, 64),
		quit:   make(chan struct{}),
	}
	reader := NewFrameReader(r, bufferSize)
	go func() {
		defer close(d.frames)
		for {
			frame, err := reader.ReadFrame()
			if err != nil {
				d.err = err
				return
			}
			select {
			case d.frames <- frame:
			case <-d.quit:
				return
			}
		}
	}()
	return d
}

func (d *Decoder) Frames() <-chan Frame { return d.frames }

// Err returns the error that stopped the decoder. It is only meaningful once
// the frame channel is closed.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) Cancel() {
	d.once.Do(func() { close(d.quit) })
}
