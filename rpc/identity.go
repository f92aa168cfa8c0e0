package rpc

import "github.com/marchellc/CentralAPI/codec"

// OpClientIdentify is sent by the central node to every new connection.
const OpClientIdentify = "ClientIdentify"

// Identity is what an edge reports about itself when asked.
type Identity struct {
	Port  uint16
	Name  string
	Alias string
}

func (m Identity) Encode(w *codec.Writer) {
	w.WriteUint16(m.Port)
	w.WriteString(m.Name)
	w.WriteString(m.Alias)
}

func DecodeIdentity(r *codec.Reader) (Identity, error) {
	m := Identity{
		Port:  r.ReadUint16(),
		Name:  r.ReadString(),
		Alias: r.ReadString(),
	}
	return m, r.Err()
}
