package database

import (
	"github.com/marchellc/CentralAPI/wrappers"
	"github.com/pkg/errors"
)

var (
	ErrNotNumeric = errors.New("collection does not hold numbers")
	ErrNotList    = errors.New("collection does not hold lists")
	ErrOutOfRange = errors.New("index out of range")
)

func add(v interface{}, delta int64) (interface{}, bool) {
	switch n := v.(type) {
	case uint8:
		return n + uint8(delta), true
	case int8:
		return n + int8(delta), true
	case uint16:
		return n + uint16(delta), true
	case int16:
		return n + int16(delta), true
	case uint32:
		return n + uint32(delta), true
	case int32:
		return n + int32(delta), true
	case uint64:
		return n + uint64(delta), true
	case int64:
		return n + delta, true
	case float32:
		return n + float32(delta), true
	case float64:
		return n + float64(delta), true
	default:
		return v, false
	}
}

// Increment adds delta to a numeric item, starting from zero when the item
// is missing. Concurrent increments from several nodes are not additive: the
// last value written wins.
func (c *Collection) Increment(name string, delta int64) (interface{}, error) {
	if err := c.checkAttached(); err != nil {
		return nil, err
	}
	w, err := c.resolve()
	if err != nil {
		return nil, err
	}
	if _, ok := add(w.Zero(), 0); !ok {
		return nil, errors.Wrapf(ErrNotNumeric, "collection %s: %s", c.path(), c.tag)
	}
	return c.UpdateOrAdd(name, func(interface{}) bool { return delta == 0 }, func(v interface{}, _ bool) interface{} {
		out, _ := add(v, delta)
		return out
	})
}

func (c *Collection) Decrement(name string, delta int64) (interface{}, error) {
	return c.Increment(name, -delta)
}

func (c *Collection) checkList() error {
	kind, _, ok := wrappers.ParseTag(c.tag)
	if !ok || (kind != wrappers.KindList && kind != wrappers.KindArray) {
		return errors.Wrapf(ErrNotList, "collection %s: %s", c.path(), c.tag)
	}
	return nil
}

// Append adds values at the end of a list item, creating it when missing.
func (c *Collection) Append(name string, values ...interface{}) ([]interface{}, error) {
	if err := c.checkAttached(); err != nil {
		return nil, err
	}
	if err := c.checkList(); err != nil {
		return nil, err
	}
	v, err := c.UpdateOrAdd(name, func(interface{}) bool { return len(values) == 0 }, func(v interface{}, _ bool) interface{} {
		list, _ := v.([]interface{})
		out := make([]interface{}, 0, len(list)+len(values))
		out = append(out, list...)
		return append(out, values...)
	})
	if err != nil {
		return nil, err
	}
	list, _ := v.([]interface{})
	return list, nil
}

// ListAt returns one element of a list item.
func (c *Collection) ListAt(name string, index int) (interface{}, error) {
	if err := c.checkList(); err != nil {
		return nil, err
	}
	v, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	list, _ := v.([]interface{})
	if index < 0 || index >= len(list) {
		return nil, errors.Wrapf(ErrOutOfRange, "%s/%s[%d]", c.path(), name, index)
	}
	return list[index], nil
}
