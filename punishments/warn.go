package punishments

import (
	"fmt"

	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/wrappers"
	"github.com/pkg/errors"
)

// TagWarn is the type tag of collections holding warns.
const TagWarn = "warn"

// Warn is a warning issued to a player. Its ID is assigned by the central
// node once the warn is confirmed.
type Warn struct {
	ID          uint64
	Server      string
	Reason      string
	Time        Time
	Issuer      Player
	Target      Player
	Logs        []Log
	IsDisplayed bool
}

func (w *Warn) Encode(out *codec.Writer) {
	out.WriteUint64(w.ID)
	out.WriteString(w.Server)
	out.WriteString(w.Reason)
	w.Time.Encode(out)
	w.Issuer.Encode(out)
	w.Target.Encode(out)
	encodeLogs(out, w.Logs)
	out.WriteBool(w.IsDisplayed)
}

func ReadWarn(r *codec.Reader) *Warn {
	return &Warn{
		ID:          r.ReadUint64(),
		Server:      r.ReadString(),
		Reason:      r.ReadString(),
		Time:        ReadTime(r),
		Issuer:      ReadPlayer(r),
		Target:      ReadPlayer(r),
		Logs:        readLogs(r),
		IsDisplayed: r.ReadBool(),
	}
}

// Marshal returns the encoded warn.
func (w *Warn) Marshal() []byte {
	return codec.Encode(w.Encode)
}

func UnmarshalWarn(buf []byte) (*Warn, error) {
	r := codec.NewReader(buf)
	w := ReadWarn(r)
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to decode warn")
	}
	return w, nil
}

// Clone returns a deep copy of the warn, logs included.
func (w *Warn) Clone() *Warn {
	out, err := UnmarshalWarn(w.Marshal())
	if err != nil {
		panic(err)
	}
	return out
}

func (w *Warn) String() string {
	return fmt.Sprintf("warn #%d on %s by %s: %s", w.ID, w.Target, w.Issuer, w.Reason)
}

// Register makes warns storable in the replicated store.
func Register(registry *wrappers.Registry) {
	registry.Register(&wrappers.Funcs{
		TagName:  TagWarn,
		ZeroFunc: func() interface{} { return &Warn{} },
		ReadFunc: func(r *codec.Reader) interface{} { return ReadWarn(r) },
		WriteFunc: func(w *codec.Writer, v interface{}) error {
			warn, ok := v.(*Warn)
			if !ok {
				return errors.Wrapf(wrappers.ErrTypeMismatch, "%s: %T", TagWarn, v)
			}
			warn.Encode(w)
			return nil
		},
		CompareFunc: func(a, b interface{}) bool {
			x, ok := a.(*Warn)
			if !ok {
				return false
			}
			y, ok := b.(*Warn)
			return ok && string(x.Marshal()) == string(y.Marshal())
		},
		DisplayFunc: func(v interface{}) string {
			if warn, ok := v.(*Warn); ok {
				return warn.String()
			}
			return fmt.Sprint(v)
		},
	})
}
