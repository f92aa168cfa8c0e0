package wrappers

import (
	"net"
	"strconv"
	"time"

	"github.com/marchellc/CentralAPI/codec"
	"github.com/pkg/errors"
)

const (
	TagBool     = "bool"
	TagUint8    = "u8"
	TagInt8     = "i8"
	TagChar     = "char"
	TagInt16    = "i16"
	TagUint16   = "u16"
	TagInt32    = "i32"
	TagUint32   = "u32"
	TagInt64    = "i64"
	TagUint64   = "u64"
	TagFloat32  = "f32"
	TagFloat64  = "f64"
	TagString   = "string"
	TagDate     = "date"
	TagDuration = "duration"
	TagIP       = "ip"
	TagEndpoint = "endpoint"
)

func mismatch(tag string, v interface{}) error {
	return errors.Wrapf(ErrTypeMismatch, "%s wrapper cannot encode %T", tag, v)
}

func equal(a, b interface{}) bool { return a == b }

func primitives() []Wrapper {
	return []Wrapper{
		&Funcs{
			TagName:     TagBool,
			ZeroFunc:    func() interface{} { return false },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadBool() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				b, ok := v.(bool)
				if !ok {
					return mismatch(TagBool, v)
				}
				w.WriteBool(b)
				return nil
			},
		},
		&Funcs{
			TagName:     TagUint8,
			ZeroFunc:    func() interface{} { return uint8(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadUint8() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				b, ok := v.(uint8)
				if !ok {
					return mismatch(TagUint8, v)
				}
				w.WriteUint8(b)
				return nil
			},
		},
		&Funcs{
			TagName:     TagInt8,
			ZeroFunc:    func() interface{} { return int8(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadInt8() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				b, ok := v.(int8)
				if !ok {
					return mismatch(TagInt8, v)
				}
				w.WriteInt8(b)
				return nil
			},
		},
		&Funcs{
			TagName:     TagChar,
			ZeroFunc:    func() interface{} { return rune(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadChar() },
			CompareFunc: equal,
			DisplayFunc: func(v interface{}) string { return string(v.(rune)) },
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				c, ok := v.(rune)
				if !ok {
					return mismatch(TagChar, v)
				}
				w.WriteChar(c)
				return nil
			},
		},
		&Funcs{
			TagName:     TagInt16,
			ZeroFunc:    func() interface{} { return int16(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadInt16() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				i, ok := v.(int16)
				if !ok {
					return mismatch(TagInt16, v)
				}
				w.WriteInt16(i)
				return nil
			},
		},
		&Funcs{
			TagName:     TagUint16,
			ZeroFunc:    func() interface{} { return uint16(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadUint16() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				i, ok := v.(uint16)
				if !ok {
					return mismatch(TagUint16, v)
				}
				w.WriteUint16(i)
				return nil
			},
		},
		&Funcs{
			TagName:     TagInt32,
			ZeroFunc:    func() interface{} { return int32(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadInt32() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				i, ok := v.(int32)
				if !ok {
					return mismatch(TagInt32, v)
				}
				w.WriteInt32(i)
				return nil
			},
		},
		&Funcs{
			TagName:     TagUint32,
			ZeroFunc:    func() interface{} { return uint32(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadUint32() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				i, ok := v.(uint32)
				if !ok {
					return mismatch(TagUint32, v)
				}
				w.WriteUint32(i)
				return nil
			},
		},
		&Funcs{
			TagName:     TagInt64,
			ZeroFunc:    func() interface{} { return int64(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadInt64() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				i, ok := v.(int64)
				if !ok {
					return mismatch(TagInt64, v)
				}
				w.WriteInt64(i)
				return nil
			},
		},
		&Funcs{
			TagName:     TagUint64,
			ZeroFunc:    func() interface{} { return uint64(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadUint64() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				i, ok := v.(uint64)
				if !ok {
					return mismatch(TagUint64, v)
				}
				w.WriteUint64(i)
				return nil
			},
		},
		&Funcs{
			TagName:     TagFloat32,
			ZeroFunc:    func() interface{} { return float32(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadFloat32() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				f, ok := v.(float32)
				if !ok {
					return mismatch(TagFloat32, v)
				}
				w.WriteFloat32(f)
				return nil
			},
		},
		&Funcs{
			TagName:     TagFloat64,
			ZeroFunc:    func() interface{} { return float64(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadFloat64() },
			CompareFunc: equal,
			DisplayFunc: func(v interface{}) string { return strconv.FormatFloat(v.(float64), 'f', -1, 64) },
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				f, ok := v.(float64)
				if !ok {
					return mismatch(TagFloat64, v)
				}
				w.WriteFloat64(f)
				return nil
			},
		},
		&Funcs{
			TagName:     TagString,
			ZeroFunc:    func() interface{} { return "" },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadString() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				s, ok := v.(string)
				if !ok {
					return mismatch(TagString, v)
				}
				w.WriteString(s)
				return nil
			},
		},
		&Funcs{
			TagName:  TagDate,
			ZeroFunc: func() interface{} { return time.Time{} },
			ReadFunc: func(r *codec.Reader) interface{} { return r.ReadDate() },
			CompareFunc: func(a, b interface{}) bool {
				ta, ok := a.(time.Time)
				tb, ok2 := b.(time.Time)
				return ok && ok2 && ta.Truncate(time.Second).Equal(tb.Truncate(time.Second))
			},
			DisplayFunc: func(v interface{}) string { return v.(time.Time).UTC().Format(time.RFC3339) },
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				t, ok := v.(time.Time)
				if !ok {
					return mismatch(TagDate, v)
				}
				w.WriteDate(t)
				return nil
			},
		},
		&Funcs{
			TagName:     TagDuration,
			ZeroFunc:    func() interface{} { return time.Duration(0) },
			ReadFunc:    func(r *codec.Reader) interface{} { return r.ReadDuration() },
			CompareFunc: equal,
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				d, ok := v.(time.Duration)
				if !ok {
					return mismatch(TagDuration, v)
				}
				w.WriteDuration(d)
				return nil
			},
		},
		&Funcs{
			TagName:  TagIP,
			ZeroFunc: func() interface{} { return net.IPv4(0, 0, 0, 0).To4() },
			ReadFunc: func(r *codec.Reader) interface{} { return r.ReadIP() },
			CompareFunc: func(a, b interface{}) bool {
				ia, ok := a.(net.IP)
				ib, ok2 := b.(net.IP)
				return ok && ok2 && ia.Equal(ib)
			},
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				ip, ok := v.(net.IP)
				if !ok {
					return mismatch(TagIP, v)
				}
				w.WriteIP(ip)
				return nil
			},
		},
		&Funcs{
			TagName:  TagEndpoint,
			ZeroFunc: func() interface{} { return &net.TCPAddr{IP: net.IPv4(0, 0, 0, 0).To4()} },
			ReadFunc: func(r *codec.Reader) interface{} { return r.ReadEndpoint() },
			CompareFunc: func(a, b interface{}) bool {
				ea, ok := a.(*net.TCPAddr)
				eb, ok2 := b.(*net.TCPAddr)
				return ok && ok2 && ea != nil && eb != nil && ea.Port == eb.Port && ea.IP.Equal(eb.IP)
			},
			WriteFunc: func(w *codec.Writer, v interface{}) error {
				addr, ok := v.(*net.TCPAddr)
				if !ok {
					return mismatch(TagEndpoint, v)
				}
				w.WriteEndpoint(addr)
				return nil
			},
		},
	}
}
