package codec

import (
	"encoding/binary"
	"math"
	"net"
	"time"
)

// Writer appends encoded values to an in-memory buffer.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Encode runs f against a fresh writer and returns the produced bytes.
func Encode(f func(*Writer)) []byte {
	w := NewWriter()
	if f != nil {
		f(w)
	}
	return w.Bytes()
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }
func (w *Writer) Reset()        { w.buf = w.buf[:0] }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}
func (w *Writer) WriteByte(v byte) error {
	w.buf = append(w.buf, v)
	return nil
}
func (w *Writer) WriteUint8(v uint8) { w.buf = append(w.buf, v) }
func (w *Writer) WriteInt8(v int8)   { w.buf = append(w.buf, byte(v)) }
func (w *Writer) WriteUint16(v uint16) {
	w.buf = append(w.buf, 0, 0)
	binary.LittleEndian.PutUint16(w.buf[len(w.buf)-2:], v)
}
func (w *Writer) WriteInt16(v int16) { w.WriteUint16(uint16(v)) }
func (w *Writer) WriteUint32(v uint32) {
	w.buf = append(w.buf, 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(w.buf[len(w.buf)-4:], v)
}
func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }
func (w *Writer) WriteUint64(v uint64) {
	w.buf = append(w.buf, 0, 0, 0, 0, 0, 0, 0, 0)
	binary.LittleEndian.PutUint64(w.buf[len(w.buf)-8:], v)
}
func (w *Writer) WriteInt64(v int64)     { w.WriteUint64(uint64(v)) }
func (w *Writer) WriteFloat32(v float32) { w.WriteUint32(math.Float32bits(v)) }
func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }

// WriteChar encodes a rune as a single UTF-16 code unit. Runes outside the
// basic multilingual plane are truncated.
func (w *Writer) WriteChar(v rune) { w.WriteUint16(uint16(v)) }

func (w *Writer) WriteString(v string) {
	w.WriteInt32(int32(len(v)))
	w.buf = append(w.buf, v...)
}

// WriteBytes writes a length-prefixed byte sequence. A nil slice is written
// as an empty one.
func (w *Writer) WriteBytes(v []byte) {
	w.WriteInt32(int32(len(v)))
	w.buf = append(w.buf, v...)
}

// WriteRaw appends v without any prefix.
func (w *Writer) WriteRaw(v []byte) {
	w.buf = append(w.buf, v...)
}

// WriteDate encodes t in UTC with a one second resolution.
func (w *Writer) WriteDate(t time.Time) {
	t = t.UTC()
	w.WriteUint16(uint16(t.Year()))
	w.WriteUint8(uint8(t.Month()))
	w.WriteUint8(uint8(t.Day()))
	w.WriteUint8(uint8(t.Hour()))
	w.WriteUint8(uint8(t.Minute()))
	w.WriteUint8(uint8(t.Second()))
}

// WriteDuration encodes d as a floating point millisecond count.
func (w *Writer) WriteDuration(d time.Duration) {
	w.WriteFloat64(float64(d) / float64(time.Millisecond))
}

func (w *Writer) WriteIP(ip net.IP) {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	w.WriteUint8(uint8(len(ip)))
	w.buf = append(w.buf, ip...)
}

func (w *Writer) WriteEndpoint(addr *net.TCPAddr) {
	if addr == nil {
		addr = &net.TCPAddr{IP: net.IPv4zero}
	}
	w.WriteIP(addr.IP)
	w.WriteUint16(uint16(addr.Port))
}

// WriteCount writes a container element count.
func (w *Writer) WriteCount(n int) { w.WriteInt32(int32(n)) }

// WriteStrings writes a counted sequence of strings.
func (w *Writer) WriteStrings(v []string) {
	w.WriteCount(len(v))
	for _, s := range v {
		w.WriteString(s)
	}
}
