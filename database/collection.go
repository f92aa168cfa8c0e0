package database

import (
	"fmt"
	"sort"

	"github.com/marchellc/CentralAPI/events"
	"github.com/marchellc/CentralAPI/wrappers"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// maxRemovedNames is the number of names one removal message can carry.
const maxRemovedNames = 255

type (
	// Predicate selects items.
	Predicate func(name string, value interface{}) bool
	// UnchangedFunc reports that value does not need an update.
	UnchangedFunc func(value interface{}) bool
	// MutateFunc returns the new value of an item. isNew is set when value is
	// the zero value of a missing item.
	MutateFunc func(value interface{}, isNew bool) interface{}
	// IterateFunc visits one item. Reporting updated mirrors the item's
	// current value, stop ends the iteration.
	IterateFunc func(item *Item) (updated, stop bool)
)

// Collection holds the items of one value type.
type Collection struct {
	id      uint8
	tag     string
	table   *Table
	wrapper wrappers.Wrapper
	items   map[string]*Item
}

func (c *Collection) ID() uint8     { return c.id }
func (c *Collection) Tag() string   { return c.tag }
func (c *Collection) Table() *Table { return c.table }
func (c *Collection) Size() int     { return len(c.items) }
func (c *Collection) IsEmpty() bool { return len(c.items) == 0 }

func (c *Collection) path() string {
	if c.table == nil {
		return fmt.Sprintf("?/%d", c.id)
	}
	return fmt.Sprintf("%d/%d", c.table.id, c.id)
}

func (c *Collection) logger() *zap.Logger {
	return c.table.director.logger
}

// resolve returns the wrapper of the collection, looking it up again when it
// was not registered at creation time.
func (c *Collection) resolve() (wrappers.Wrapper, error) {
	if c.wrapper != nil {
		return c.wrapper, nil
	}
	if c.table == nil {
		return nil, ErrDetached
	}
	w, ok := c.table.director.registry.Lookup(c.tag)
	if !ok {
		return nil, errors.Wrapf(wrappers.ErrNoWrapper, "collection %s: %s", c.path(), c.tag)
	}
	c.wrapper = w
	return w, nil
}

func (c *Collection) checkAttached() error {
	if c.table == nil {
		return errors.Wrapf(ErrDetached, "collection %d", c.id)
	}
	return nil
}

func (c *Collection) emit(kind events.Kind, name string, value interface{}, remote bool) {
	c.table.director.emit(events.Event{
		Kind:         kind,
		TableID:      c.table.id,
		CollectionID: c.id,
		Name:         name,
		Value:        value,
		Remote:       remote,
	})
}

func (c *Collection) sendItem(name string, raw []byte, orOverride bool) {
	c.table.director.send(OpAddItem, AddItem{
		TableID:      c.table.id,
		CollectionID: c.id,
		Name:         name,
		Value:        raw,
		OrOverride:   orOverride,
	}.Encode, true)
}

func (c *Collection) names() []string {
	names := make([]string, 0, len(c.items))
	for name := range c.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Items returns every item, ordered by name.
func (c *Collection) Items() []*Item {
	out := make([]*Item, 0, len(c.items))
	for _, name := range c.names() {
		out = append(out, c.items[name])
	}
	return out
}

func (c *Collection) Item(name string) (*Item, bool) {
	item, ok := c.items[name]
	return item, ok
}

func (c *Collection) Get(name string) (interface{}, error) {
	item, ok := c.items[name]
	if !ok {
		return nil, errors.Wrapf(ErrItemNotFound, "%s/%s", c.path(), name)
	}
	return item.Value()
}

// TryGet returns the value of an item. Undecodable values are logged and
// reported as missing.
func (c *Collection) TryGet(name string) (interface{}, bool) {
	item, ok := c.items[name]
	if !ok {
		return nil, false
	}
	v, err := item.Value()
	if err != nil {
		c.logger().Warn("failed to read item", zap.String("item", item.path()), zap.Error(err))
		return nil, false
	}
	return v, true
}

// GetOrAdd returns the value of an item, adding the value built by factory
// when the item does not exist.
func (c *Collection) GetOrAdd(name string, factory func() interface{}) (interface{}, error) {
	if err := c.checkAttached(); err != nil {
		return nil, err
	}
	if item, ok := c.items[name]; ok {
		return item.Value()
	}
	w, err := c.resolve()
	if err != nil {
		return nil, err
	}
	v := factory()
	raw, err := wrappers.Marshal(w, v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s/%s", c.path(), name)
	}
	c.items[name] = &Item{name: name, collection: c, value: v, decoded: true}
	c.emit(events.ItemAdded, name, v, false)
	c.sendItem(name, raw, false)
	return v, nil
}

func (c *Collection) update(item *Item, isUnchanged UnchangedFunc, mutate MutateFunc) (interface{}, bool, error) {
	w, err := c.resolve()
	if err != nil {
		return nil, false, err
	}
	v, err := item.Value()
	if err != nil {
		return nil, false, err
	}
	if isUnchanged != nil && isUnchanged(v) {
		return v, false, nil
	}
	v = mutate(v, false)
	raw, err := wrappers.Marshal(w, v)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to encode %s", item.path())
	}
	item.Set(v)
	c.emit(events.ItemUpdated, item.name, v, false)
	c.sendItem(item.name, raw, true)
	return v, true, nil
}

// UpdateOrAdd updates an item in place, or adds it when missing. An existing
// item for which isUnchanged holds is returned as is and nothing is mirrored.
func (c *Collection) UpdateOrAdd(name string, isUnchanged UnchangedFunc, mutate MutateFunc) (interface{}, error) {
	if err := c.checkAttached(); err != nil {
		return nil, err
	}
	if item, ok := c.items[name]; ok {
		v, _, err := c.update(item, isUnchanged, mutate)
		return v, err
	}
	w, err := c.resolve()
	if err != nil {
		return nil, err
	}
	v := mutate(w.Zero(), true)
	raw, err := wrappers.Marshal(w, v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s/%s", c.path(), name)
	}
	c.items[name] = &Item{name: name, collection: c, value: v, decoded: true}
	c.emit(events.ItemAdded, name, v, false)
	c.sendItem(name, raw, false)
	return v, nil
}

// Update updates the first item, by name order, matching predicate. It
// reports whether an item was changed.
func (c *Collection) Update(predicate Predicate, isUnchanged UnchangedFunc, mutate MutateFunc) (bool, error) {
	if err := c.checkAttached(); err != nil {
		return false, err
	}
	name, _, ok := c.Find(predicate)
	if !ok {
		return false, nil
	}
	_, updated, err := c.update(c.items[name], isUnchanged, mutate)
	return updated, err
}

func (c *Collection) remove(name string, remote bool) bool {
	item, ok := c.items[name]
	if !ok {
		return false
	}
	delete(c.items, name)
	var value interface{}
	if item.decoded {
		value = item.value
	}
	item.collection = nil
	c.emit(events.ItemRemoved, name, value, remote)
	return true
}

func (c *Collection) sendRemoved(names []string) {
	for len(names) > 0 {
		chunk := names
		if len(chunk) > maxRemovedNames {
			chunk = chunk[:maxRemovedNames]
		}
		names = names[len(chunk):]
		c.table.director.send(OpRemoveItem, RemoveItems{
			TableID:      c.table.id,
			CollectionID: c.id,
			Names:        chunk,
		}.Encode, false)
	}
}

func (c *Collection) Remove(name string) bool {
	if c.table == nil || !c.remove(name, false) {
		return false
	}
	c.sendRemoved([]string{name})
	return true
}

// RemoveWhere removes every item matching predicate and mirrors all the
// removals at once.
func (c *Collection) RemoveWhere(predicate Predicate) int {
	if c.table == nil {
		return 0
	}
	var removed []string
	c.walk(nil, func(item *Item, v interface{}) bool {
		if predicate(item.name, v) {
			removed = append(removed, item.name)
		}
		return false
	})
	for _, name := range removed {
		c.remove(name, false)
	}
	c.sendRemoved(removed)
	return len(removed)
}

// walk visits decodable items by name order, skipping those not matching
// predicate.
func (c *Collection) walk(predicate Predicate, fn func(item *Item, v interface{}) (stop bool)) {
	for _, name := range c.names() {
		item, ok := c.items[name]
		if !ok {
			continue
		}
		v, err := item.Value()
		if err != nil {
			c.logger().Warn("skipping unreadable item", zap.String("item", item.path()), zap.Error(err))
			continue
		}
		if predicate != nil && !predicate(name, v) {
			continue
		}
		if fn(item, v) {
			return
		}
	}
}

func (c *Collection) Find(predicate Predicate) (string, interface{}, bool) {
	var (
		name  string
		value interface{}
		found bool
	)
	c.walk(predicate, func(item *Item, v interface{}) bool {
		name, value, found = item.name, v, true
		return true
	})
	return name, value, found
}

// Where returns the values of every item matching predicate, by name order.
func (c *Collection) Where(predicate Predicate) []interface{} {
	var out []interface{}
	c.walk(predicate, func(_ *Item, v interface{}) bool {
		out = append(out, v)
		return false
	})
	return out
}

func (c *Collection) ForEach(fn IterateFunc) {
	c.ForEachWhere(nil, fn)
}

// ForEachWhere calls fn for every item matching predicate. Each item fn
// reports as updated is mirrored.
func (c *Collection) ForEachWhere(predicate Predicate, fn IterateFunc) {
	if c.table == nil {
		return
	}
	c.walk(predicate, func(item *Item, _ interface{}) bool {
		updated, stop := fn(item)
		if updated {
			raw, err := item.Bytes()
			if err != nil {
				c.logger().Warn("failed to encode updated item", zap.String("item", item.path()), zap.Error(err))
			} else {
				c.emit(events.ItemUpdated, item.name, item.value, false)
				c.sendItem(item.name, raw, true)
			}
		}
		return stop
	})
}

func (c *Collection) Clear() {
	if c.table != nil {
		c.table.ClearCollection(c.id)
	}
}

func (c *Collection) Drop() {
	if c.table != nil {
		c.table.DropCollection(c.id)
	}
}

func (c *Collection) clear() {
	for _, item := range c.items {
		item.collection = nil
	}
	c.items = make(map[string]*Item)
}

func (c *Collection) detach() {
	c.clear()
	c.table = nil
}
