package codec

import (
	"encoding/binary"
	"math"
	"net"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrShortBuffer is returned when a value extends past the end of the buffer.
	ErrShortBuffer = errors.New("short buffer")
	// ErrInvalidLength is returned when a length prefix is negative.
	ErrInvalidLength = errors.New("invalid length prefix")
)

// Reader consumes encoded values from a byte slice. The first failure is
// sticky: once Err() is set, every later read returns a zero value.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Err() error     { return r.err }
func (r *Reader) Remaining() int { return len(r.buf) - r.off }
func (r *Reader) Offset() int    { return r.off }

// Fail records err as the reader error unless one is already set.
func (r *Reader) Fail(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

func (r *Reader) fail(field string, err error) {
	if r.err == nil {
		r.err = errors.Wrapf(err, "reading %s at offset %d", field, r.off)
	}
}

func (r *Reader) take(field string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 {
		r.fail(field, ErrInvalidLength)
		return nil
	}
	if r.Remaining() < n {
		r.fail(field, ErrShortBuffer)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadBool() bool {
	b := r.take("bool", 1)
	return b != nil && b[0] != 0
}
func (r *Reader) ReadUint8() uint8 {
	b := r.take("u8", 1)
	if b == nil {
		return 0
	}
	return b[0]
}
func (r *Reader) ReadInt8() int8 { return int8(r.ReadUint8()) }
func (r *Reader) ReadUint16() uint16 {
	b := r.take("u16", 2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}
func (r *Reader) ReadInt16() int16 { return int16(r.ReadUint16()) }
func (r *Reader) ReadUint32() uint32 {
	b := r.take("u32", 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
func (r *Reader) ReadInt32() int32 { return int32(r.ReadUint32()) }
func (r *Reader) ReadUint64() uint64 {
	b := r.take("u64", 8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
func (r *Reader) ReadInt64() int64     { return int64(r.ReadUint64()) }
func (r *Reader) ReadFloat32() float32 { return math.Float32frombits(r.ReadUint32()) }
func (r *Reader) ReadFloat64() float64 { return math.Float64frombits(r.ReadUint64()) }
func (r *Reader) ReadChar() rune       { return rune(r.ReadUint16()) }

func (r *Reader) ReadString() string {
	n := int(r.ReadInt32())
	return string(r.take("string", n))
}

// ReadBytes returns a copy of a length-prefixed byte sequence.
func (r *Reader) ReadBytes() []byte {
	n := int(r.ReadInt32())
	b := r.take("bytes", n)
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ReadRest returns every remaining byte.
func (r *Reader) ReadRest() []byte {
	return r.take("rest", r.Remaining())
}

func (r *Reader) ReadDate() time.Time {
	year := int(r.ReadUint16())
	month := time.Month(r.ReadUint8())
	day := int(r.ReadUint8())
	hour := int(r.ReadUint8())
	minute := int(r.ReadUint8())
	second := int(r.ReadUint8())
	if r.err != nil {
		return time.Time{}
	}
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}

func (r *Reader) ReadDuration() time.Duration {
	ms := r.ReadFloat64()
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}

func (r *Reader) ReadIP() net.IP {
	n := int(r.ReadUint8())
	b := r.take("ip", n)
	if b == nil {
		return nil
	}
	ip := make(net.IP, len(b))
	copy(ip, b)
	return ip
}

func (r *Reader) ReadEndpoint() *net.TCPAddr {
	ip := r.ReadIP()
	port := int(r.ReadUint16())
	if r.err != nil {
		return nil
	}
	return &net.TCPAddr{IP: ip, Port: port}
}

// ReadCount reads a container element count, failing on negative values
// and on counts that cannot possibly fit in the remaining bytes.
func (r *Reader) ReadCount() int {
	n := int(r.ReadInt32())
	if r.err != nil {
		return 0
	}
	if n < 0 {
		r.fail("count", ErrInvalidLength)
		return 0
	}
	if n > r.Remaining() {
		r.fail("count", ErrShortBuffer)
		return 0
	}
	return n
}

func (r *Reader) ReadStrings() []string {
	n := r.ReadCount()
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.ReadString())
	}
	return out
}
