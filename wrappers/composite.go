package wrappers

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/marchellc/CentralAPI/codec"
	"github.com/pkg/errors"
)

const (
	KindArray = "array"
	KindList  = "list"
	KindMap   = "map"
)

// Constructor builds a composite wrapper out of already resolved element
// wrappers. Arity is checked by the registry before the call.
type Constructor struct {
	Arity int
	Build func(tag string, elements []Wrapper) (Wrapper, error)
}

// ArrayTag returns the tag of a fixed array of elem.
func ArrayTag(elem string) string { return KindArray + "<" + elem + ">" }

// ListTag returns the tag of an ordered sequence of elem.
func ListTag(elem string) string { return KindList + "<" + elem + ">" }

// MapTag returns the tag of a key to value mapping.
func MapTag(key, value string) string { return KindMap + "<" + key + "," + value + ">" }

// ParseTag splits "kind<a,b>" into its kind and top-level arguments.
func ParseTag(tag string) (string, []string, bool) {
	open := strings.IndexByte(tag, '<')
	if open <= 0 || !strings.HasSuffix(tag, ">") {
		return "", nil, false
	}
	kind := tag[:open]
	body := tag[open+1 : len(tag)-1]
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return "", nil, false
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return "", nil, false
	}
	args = append(args, strings.TrimSpace(body[start:]))
	for _, arg := range args {
		if arg == "" {
			return "", nil, false
		}
	}
	return kind, args, true
}

func sequenceWrapper(tag string, elem Wrapper) Wrapper {
	return &Funcs{
		TagName:  tag,
		ZeroFunc: func() interface{} { return []interface{}{} },
		ReadFunc: func(r *codec.Reader) interface{} {
			n := r.ReadCount()
			out := make([]interface{}, 0, n)
			for i := 0; i < n && r.Err() == nil; i++ {
				v, err := elem.Read(r)
				if err != nil {
					r.Fail(err)
					return nil
				}
				out = append(out, v)
			}
			return out
		},
		WriteFunc: func(w *codec.Writer, v interface{}) error {
			values, ok := v.([]interface{})
			if !ok && v != nil {
				return mismatch(tag, v)
			}
			w.WriteCount(len(values))
			for idx, value := range values {
				if err := elem.Write(w, value); err != nil {
					return errors.Wrapf(err, "element %d", idx)
				}
			}
			return nil
		},
		CompareFunc: func(a, b interface{}) bool {
			va, ok := a.([]interface{})
			vb, ok2 := b.([]interface{})
			if !ok || !ok2 || len(va) != len(vb) {
				return false
			}
			for i := range va {
				if !elem.Compare(va[i], vb[i]) {
					return false
				}
			}
			return true
		},
		DisplayFunc: func(v interface{}) string {
			values, _ := v.([]interface{})
			parts := make([]string, len(values))
			for i, value := range values {
				parts[i] = elem.Display(value)
			}
			return "[" + strings.Join(parts, ", ") + "]"
		},
	}
}

// hashable reports whether values of t can key a map and keep their
// identity across a decode. Pointers are comparable but never equal after
// one.
func hashable(t reflect.Type) bool {
	return t != nil && t.Comparable() && t.Kind() != reflect.Ptr
}

func mapWrapper(tag string, key, value Wrapper) (Wrapper, error) {
	if !hashable(reflect.TypeOf(key.Zero())) {
		return nil, errors.Wrapf(ErrUnhashableKey, "%s: key %s", tag, key.Tag())
	}
	return &Funcs{
		TagName:  tag,
		ZeroFunc: func() interface{} { return map[interface{}]interface{}{} },
		ReadFunc: func(r *codec.Reader) interface{} {
			n := r.ReadCount()
			out := make(map[interface{}]interface{}, n)
			for i := 0; i < n && r.Err() == nil; i++ {
				k, err := key.Read(r)
				if err != nil {
					r.Fail(err)
					return nil
				}
				if !hashable(reflect.TypeOf(k)) {
					r.Fail(errors.Wrapf(ErrUnhashableKey, "%s: key %T", tag, k))
					return nil
				}
				v, err := value.Read(r)
				if err != nil {
					r.Fail(err)
					return nil
				}
				out[k] = v
			}
			return out
		},
		WriteFunc: func(w *codec.Writer, v interface{}) error {
			entries, ok := v.(map[interface{}]interface{})
			if !ok && v != nil {
				return mismatch(tag, v)
			}
			w.WriteCount(len(entries))
			for k, v := range entries {
				if err := key.Write(w, k); err != nil {
					return errors.Wrapf(err, "key %v", k)
				}
				if err := value.Write(w, v); err != nil {
					return errors.Wrapf(err, "value for key %v", k)
				}
			}
			return nil
		},
		CompareFunc: func(a, b interface{}) bool {
			ma, ok := a.(map[interface{}]interface{})
			mb, ok2 := b.(map[interface{}]interface{})
			if !ok || !ok2 || len(ma) != len(mb) {
				return false
			}
			for k, va := range ma {
				vb, found := mb[k]
				if !found || !value.Compare(va, vb) {
					return false
				}
			}
			return true
		},
		DisplayFunc: func(v interface{}) string {
			entries, _ := v.(map[interface{}]interface{})
			parts := make([]string, 0, len(entries))
			for k, v := range entries {
				parts = append(parts, fmt.Sprintf("%s: %s", key.Display(k), value.Display(v)))
			}
			return "{" + strings.Join(parts, ", ") + "}"
		},
	}, nil
}

func defaultConstructors() map[string]Constructor {
	return map[string]Constructor{
		KindArray: {Arity: 1, Build: func(tag string, e []Wrapper) (Wrapper, error) { return sequenceWrapper(tag, e[0]), nil }},
		KindList:  {Arity: 1, Build: func(tag string, e []Wrapper) (Wrapper, error) { return sequenceWrapper(tag, e[0]), nil }},
		KindMap:   {Arity: 2, Build: func(tag string, e []Wrapper) (Wrapper, error) { return mapWrapper(tag, e[0], e[1]) }},
	}
}
