package database

import (
	"github.com/marchellc/CentralAPI/wrappers"
	"github.com/pkg/errors"
)

// Item is a named value of a collection. Items received from the network
// keep their encoded form until first read.
type Item struct {
	name       string
	collection *Collection
	raw        []byte
	value      interface{}
	decoded    bool
}

func (i *Item) Name() string { return i.name }

// Collection returns the owning collection, or nil once the item was removed.
func (i *Item) Collection() *Collection { return i.collection }

// IsDecoded reports whether the value was already decoded.
func (i *Item) IsDecoded() bool { return i.decoded }

// Value returns the decoded value, decoding it on first access.
func (i *Item) Value() (interface{}, error) {
	if i.decoded {
		return i.value, nil
	}
	if i.collection == nil {
		return nil, ErrDetached
	}
	w, err := i.collection.resolve()
	if err != nil {
		return nil, err
	}
	v, err := wrappers.Unmarshal(w, i.raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", i.path())
	}
	i.value = v
	i.decoded = true
	i.raw = nil
	return v, nil
}

// Set replaces the value locally. Callers iterating with ForEach report the
// change so it gets mirrored.
func (i *Item) Set(v interface{}) {
	i.value = v
	i.decoded = true
	i.raw = nil
}

func (i *Item) setRaw(raw []byte) {
	i.raw = raw
	i.value = nil
	i.decoded = false
}

// Bytes returns the encoded value.
func (i *Item) Bytes() ([]byte, error) {
	if !i.decoded {
		return i.raw, nil
	}
	if i.collection == nil {
		return nil, ErrDetached
	}
	w, err := i.collection.resolve()
	if err != nil {
		return nil, err
	}
	return wrappers.Marshal(w, i.value)
}

func (i *Item) path() string {
	if i.collection == nil {
		return i.name
	}
	return i.collection.path() + "/" + i.name
}
