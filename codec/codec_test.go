package codec

import (
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	t.Run("primitives", func(t *testing.T) {
		w := NewWriter()
		w.WriteBool(true)
		w.WriteUint8(200)
		w.WriteInt8(-5)
		w.WriteUint16(65000)
		w.WriteInt16(-300)
		w.WriteUint32(4000000000)
		w.WriteInt32(-70000)
		w.WriteUint64(1 << 60)
		w.WriteInt64(-1 << 40)
		w.WriteFloat32(1.5)
		w.WriteFloat64(-2.25)
		w.WriteChar('é')
		w.WriteString("héllo")

		r := NewReader(w.Bytes())
		require.True(t, r.ReadBool())
		require.Equal(t, uint8(200), r.ReadUint8())
		require.Equal(t, int8(-5), r.ReadInt8())
		require.Equal(t, uint16(65000), r.ReadUint16())
		require.Equal(t, int16(-300), r.ReadInt16())
		require.Equal(t, uint32(4000000000), r.ReadUint32())
		require.Equal(t, int32(-70000), r.ReadInt32())
		require.Equal(t, uint64(1<<60), r.ReadUint64())
		require.Equal(t, int64(-1<<40), r.ReadInt64())
		require.Equal(t, float32(1.5), r.ReadFloat32())
		require.Equal(t, -2.25, r.ReadFloat64())
		require.Equal(t, 'é', r.ReadChar())
		require.Equal(t, "héllo", r.ReadString())
		require.NoError(t, r.Err())
		require.Equal(t, 0, r.Remaining())
	})
	t.Run("integers are little endian", func(t *testing.T) {
		w := NewWriter()
		w.WriteUint64(3)
		require.Equal(t, []byte{3, 0, 0, 0, 0, 0, 0, 0}, w.Bytes())
	})
	t.Run("date drops sub-second precision", func(t *testing.T) {
		now := time.Date(2024, time.March, 9, 13, 45, 12, 999, time.UTC)
		w := NewWriter()
		w.WriteDate(now)
		require.Equal(t, 7, w.Len())
		r := NewReader(w.Bytes())
		require.Equal(t, now.Truncate(time.Second), r.ReadDate())
	})
	t.Run("duration", func(t *testing.T) {
		w := NewWriter()
		w.WriteDuration(90 * time.Minute)
		r := NewReader(w.Bytes())
		require.Equal(t, 90*time.Minute, r.ReadDuration())
	})
	t.Run("duration keeps sub-millisecond precision", func(t *testing.T) {
		for i := 1; i < 5000; i++ {
			d := time.Duration(i)*3424691361 + time.Duration(i%7)
			w := NewWriter()
			w.WriteDuration(d)
			require.Equal(t, d, NewReader(w.Bytes()).ReadDuration(), "%d", int64(d))
		}
		for _, d := range []time.Duration{1, 999999, 17123456806, -17123456806, 24*time.Hour + 1} {
			w := NewWriter()
			w.WriteDuration(d)
			require.Equal(t, d, NewReader(w.Bytes()).ReadDuration())
		}
	})
	t.Run("addresses", func(t *testing.T) {
		w := NewWriter()
		w.WriteIP(net.ParseIP("10.0.0.1"))
		w.WriteIP(net.ParseIP("2001:db8::1"))
		w.WriteEndpoint(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 7777})
		r := NewReader(w.Bytes())
		require.True(t, net.ParseIP("10.0.0.1").Equal(r.ReadIP()))
		require.True(t, net.ParseIP("2001:db8::1").Equal(r.ReadIP()))
		ep := r.ReadEndpoint()
		require.Equal(t, 7777, ep.Port)
		require.True(t, net.ParseIP("127.0.0.1").Equal(ep.IP))
		require.NoError(t, r.Err())
	})
	t.Run("bytes and strings", func(t *testing.T) {
		w := NewWriter()
		w.WriteBytes([]byte{1, 2, 3})
		w.WriteStrings([]string{"a", "bc"})
		r := NewReader(w.Bytes())
		require.Equal(t, []byte{1, 2, 3}, r.ReadBytes())
		require.Equal(t, []string{"a", "bc"}, r.ReadStrings())
	})
	t.Run("underflow", func(t *testing.T) {
		r := NewReader([]byte{1, 0})
		require.Equal(t, uint32(0), r.ReadUint32())
		require.Error(t, r.Err())
		require.Equal(t, ErrShortBuffer, errors.Cause(r.Err()))
		require.Equal(t, "", r.ReadString())
	})
	t.Run("negative count", func(t *testing.T) {
		w := NewWriter()
		w.WriteInt32(-1)
		r := NewReader(w.Bytes())
		require.Equal(t, 0, r.ReadCount())
		require.Equal(t, ErrInvalidLength, errors.Cause(r.Err()))
	})
}
