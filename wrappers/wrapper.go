package wrappers

import (
	"fmt"

	"github.com/marchellc/CentralAPI/codec"
)

// Wrapper is the serialization and comparison capability set bound to one
// value type tag.
type Wrapper interface {
	Tag() string
	Zero() interface{}
	Read(r *codec.Reader) (interface{}, error)
	Write(w *codec.Writer, v interface{}) error
	Compare(a, b interface{}) bool
	Display(v interface{}) string
}

// Funcs builds a Wrapper out of plain functions. A nil CompareFunc reports
// "not equal", a nil DisplayFunc uses fmt.Sprint.
type Funcs struct {
	TagName     string
	ZeroFunc    func() interface{}
	ReadFunc    func(r *codec.Reader) interface{}
	WriteFunc   func(w *codec.Writer, v interface{}) error
	CompareFunc func(a, b interface{}) bool
	DisplayFunc func(v interface{}) string
}

func (f *Funcs) Tag() string { return f.TagName }
func (f *Funcs) Zero() interface{} {
	if f.ZeroFunc == nil {
		return nil
	}
	return f.ZeroFunc()
}
func (f *Funcs) Read(r *codec.Reader) (interface{}, error) {
	v := f.ReadFunc(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	return v, nil
}
func (f *Funcs) Write(w *codec.Writer, v interface{}) error {
	return f.WriteFunc(w, v)
}
func (f *Funcs) Compare(a, b interface{}) bool {
	if f.CompareFunc == nil {
		return false
	}
	return f.CompareFunc(a, b)
}
func (f *Funcs) Display(v interface{}) string {
	if f.DisplayFunc == nil {
		return fmt.Sprint(v)
	}
	return f.DisplayFunc(v)
}

// Marshal encodes v with w.
func Marshal(w Wrapper, v interface{}) ([]byte, error) {
	out := codec.NewWriter()
	if err := w.Write(out, v); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Unmarshal decodes buf with w.
func Unmarshal(w Wrapper, buf []byte) (interface{}, error) {
	return w.Read(codec.NewReader(buf))
}
