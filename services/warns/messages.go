package warns

import (
	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/punishments"
)

const (
	OpIssue    = "Warns.Issue"
	OpUpdate   = "Warns.Update"
	OpConfirm  = "Warns.Confirm"
	OpUpdated  = "Warns.Updated"
	OpDownload = "Warns.Download"
)

// Issue asks the central node to store a new warn.
type Issue struct {
	Transaction int32
	Record      []byte
}

func (m Issue) Encode(w *codec.Writer) {
	w.WriteInt32(m.Transaction)
	w.WriteBytes(m.Record)
}

func DecodeIssue(r *codec.Reader) (Issue, error) {
	m := Issue{
		Transaction: r.ReadInt32(),
		Record:      r.ReadBytes(),
	}
	return m, r.Err()
}

// Update replaces a stored warn. A zero Transaction asks for no
// confirmation.
type Update struct {
	Transaction int32
	ID          uint64
	Record      []byte
}

func (m Update) Encode(w *codec.Writer) {
	w.WriteInt32(m.Transaction)
	w.WriteUint64(m.ID)
	w.WriteBytes(m.Record)
}

func DecodeUpdate(r *codec.Reader) (Update, error) {
	m := Update{
		Transaction: r.ReadInt32(),
		ID:          r.ReadUint64(),
		Record:      r.ReadBytes(),
	}
	return m, r.Err()
}

// Confirm is sent to the edge that started a transaction once the central
// node stored its warn.
type Confirm struct {
	IsRemoval   bool
	Transaction int32
	ID          uint64
}

func (m Confirm) Encode(w *codec.Writer) {
	w.WriteBool(m.IsRemoval)
	w.WriteInt32(m.Transaction)
	w.WriteUint64(m.ID)
}

func DecodeConfirm(r *codec.Reader) (Confirm, error) {
	m := Confirm{
		IsRemoval:   r.ReadBool(),
		Transaction: r.ReadInt32(),
		ID:          r.ReadUint64(),
	}
	return m, r.Err()
}

// Updated relays a stored warn to the other edges.
type Updated struct {
	ID     uint64
	Record []byte
}

func (m Updated) Encode(w *codec.Writer) {
	w.WriteUint64(m.ID)
	w.WriteBytes(m.Record)
}

func DecodeUpdated(r *codec.Reader) (Updated, error) {
	m := Updated{
		ID:     r.ReadUint64(),
		Record: r.ReadBytes(),
	}
	return m, r.Err()
}

// EncodePackage writes the reply to Warns.Download.
func EncodePackage(w *codec.Writer, warns []*punishments.Warn) {
	w.WriteCount(len(warns))
	for _, warn := range warns {
		w.WriteBytes(warn.Marshal())
	}
}

func DecodePackage(r *codec.Reader) ([]*punishments.Warn, error) {
	n := r.ReadCount()
	out := make([]*punishments.Warn, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		record := r.ReadBytes()
		if r.Err() != nil {
			break
		}
		warn, err := punishments.UnmarshalWarn(record)
		if err != nil {
			return out, err
		}
		out = append(out, warn)
	}
	return out, r.Err()
}
