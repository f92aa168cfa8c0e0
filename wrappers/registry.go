package wrappers

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrNoWrapper    = errors.New("no wrapper registered for type tag")
	ErrTypeMismatch = errors.New("value type does not match wrapper")
	// ErrUnhashableKey is returned when a map key type cannot index a Go map.
	ErrUnhashableKey = errors.New("map key type is not comparable")
)

// Registry maps type tags to wrappers. Composite tags (array<T>, list<T>,
// map<K,V>) are synthesized on first lookup from registered element wrappers
// and memoized.
type Registry struct {
	mutex        sync.RWMutex
	wrappers     map[string]Wrapper
	constructors map[string]Constructor
}

// NewRegistry returns a registry holding every primitive wrapper and the
// array, list and map constructors.
func NewRegistry() *Registry {
	r := &Registry{
		wrappers:     make(map[string]Wrapper),
		constructors: defaultConstructors(),
	}
	for _, w := range primitives() {
		r.Register(w)
	}
	return r
}

// Register adds or replaces the wrapper for w.Tag().
func (r *Registry) Register(w Wrapper) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.wrappers[w.Tag()] = w
}

// RegisterComposite adds or replaces the constructor used for tags of the
// given kind.
func (r *Registry) RegisterComposite(kind string, ctor Constructor) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.constructors[kind] = ctor
}

// Lookup returns the wrapper for tag, synthesizing composite wrappers when
// needed. It returns false when tag or one of its element tags is unknown,
// or when the constructor rejects the element wrappers.
func (r *Registry) Lookup(tag string) (Wrapper, bool) {
	r.mutex.RLock()
	w, ok := r.wrappers[tag]
	r.mutex.RUnlock()
	if ok {
		return w, true
	}
	kind, args, ok := ParseTag(tag)
	if !ok {
		return nil, false
	}
	r.mutex.RLock()
	ctor, ok := r.constructors[kind]
	r.mutex.RUnlock()
	if !ok || ctor.Arity != len(args) {
		return nil, false
	}
	elements := make([]Wrapper, len(args))
	for idx, arg := range args {
		elem, ok := r.Lookup(arg)
		if !ok {
			return nil, false
		}
		elements[idx] = elem
	}
	w, err := ctor.Build(tag, elements)
	if err != nil {
		return nil, false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if existing, ok := r.wrappers[tag]; ok {
		return existing, true
	}
	r.wrappers[tag] = w
	return w, true
}

// MustLookup panics when no wrapper can be found for tag. A missing wrapper
// is a setup error, not a runtime condition.
func (r *Registry) MustLookup(tag string) Wrapper {
	w, ok := r.Lookup(tag)
	if !ok {
		panic(ErrNoWrapper.Error() + ": " + tag)
	}
	return w
}

// Tags returns every tag currently known, synthesized ones included.
func (r *Registry) Tags() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]string, 0, len(r.wrappers))
	for tag := range r.wrappers {
		out = append(out, tag)
	}
	return out
}
