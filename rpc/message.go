package rpc

import (
	"github.com/marchellc/CentralAPI/codec"
)

// Request is an inbound or outbound call. A zero Correlation marks a
// fire-and-forget request.
type Request struct {
	Correlation uint16
	Code        uint16
	Payload     []byte
}

// Response answers the request carrying the same Correlation.
type Response struct {
	Correlation uint16
	Payload     []byte
}

func writePayload(w *codec.Writer, payload []byte) {
	w.WriteBool(len(payload) > 0)
	if len(payload) > 0 {
		w.WriteBytes(payload)
	}
}

func readPayload(r *codec.Reader) []byte {
	if !r.ReadBool() {
		return nil
	}
	return r.ReadBytes()
}

func (m Request) Encode() []byte {
	return codec.Encode(func(w *codec.Writer) {
		w.WriteUint16(m.Correlation)
		w.WriteUint16(m.Code)
		writePayload(w, m.Payload)
	})
}

func DecodeRequest(buf []byte) (Request, error) {
	r := codec.NewReader(buf)
	m := Request{
		Correlation: r.ReadUint16(),
		Code:        r.ReadUint16(),
	}
	m.Payload = readPayload(r)
	return m, r.Err()
}

func (m Response) Encode() []byte {
	return codec.Encode(func(w *codec.Writer) {
		w.WriteUint16(m.Correlation)
		writePayload(w, m.Payload)
	})
}

func DecodeResponse(buf []byte) (Response, error) {
	r := codec.NewReader(buf)
	m := Response{Correlation: r.ReadUint16()}
	m.Payload = readPayload(r)
	return m, r.Err()
}
