package database

import (
	"sort"

	"github.com/marchellc/CentralAPI/events"
	"github.com/marchellc/CentralAPI/wrappers"
	"github.com/pkg/errors"
)

type Table struct {
	id          uint8
	director    *Director
	collections map[uint8]*Collection
}

func (t *Table) ID() uint8 { return t.id }

// Size returns the number of collections.
func (t *Table) Size() int { return len(t.collections) }

func (t *Table) newCollection(id uint8, tag string) *Collection {
	c := &Collection{
		id:    id,
		tag:   tag,
		table: t,
		items: make(map[string]*Item),
	}
	if w, ok := t.director.registry.Lookup(tag); ok {
		c.wrapper = w
	}
	return c
}

func (t *Table) TryGetCollection(id uint8) (*Collection, bool) {
	c, ok := t.collections[id]
	return c, ok
}

func (t *Table) GetCollection(id uint8) (*Collection, error) {
	c, ok := t.collections[id]
	if !ok {
		return nil, errors.Wrapf(ErrCollectionNotFound, "collection %d/%d", t.id, id)
	}
	return c, nil
}

// GetOrAddCollection returns the collection, creating it with the given type
// tag and mirroring the creation when it does not exist yet. A tag without a
// registered wrapper is a configuration error.
func (t *Table) GetOrAddCollection(id uint8, tag string) (*Collection, error) {
	if c, ok := t.collections[id]; ok {
		if c.tag != tag {
			return nil, errors.Wrapf(ErrTagMismatch, "collection %d/%d is %s, not %s", t.id, id, c.tag, tag)
		}
		return c, nil
	}
	if _, ok := t.director.registry.Lookup(tag); !ok {
		return nil, errors.Wrapf(wrappers.ErrNoWrapper, "collection %d/%d: %s", t.id, id, tag)
	}
	c := t.newCollection(id, tag)
	t.collections[id] = c
	t.director.emit(events.Event{Kind: events.CollectionAdded, TableID: t.id, CollectionID: id, Value: tag})
	t.director.send(OpAddCollection, AddCollection{TableID: t.id, CollectionID: id, Tag: tag}.Encode, true)
	return c, nil
}

// MustGetOrAddCollection panics when the collection cannot be created.
func (t *Table) MustGetOrAddCollection(id uint8, tag string) *Collection {
	c, err := t.GetOrAddCollection(id, tag)
	if err != nil {
		panic(err)
	}
	return c
}

// ClearCollection removes every item of the collection. It is a no-op when
// the collection is absent or empty.
func (t *Table) ClearCollection(id uint8) {
	c, ok := t.collections[id]
	if !ok || c.Size() == 0 {
		return
	}
	c.clear()
	t.director.emit(events.Event{Kind: events.CollectionCleared, TableID: t.id, CollectionID: id})
	t.director.send(OpClearCollection, ClearCollection{TableID: t.id, CollectionID: id, Drop: false}.Encode, true)
}

// DropCollection removes the collection. It is a no-op when the collection
// is absent.
func (t *Table) DropCollection(id uint8) {
	c, ok := t.collections[id]
	if !ok {
		return
	}
	t.removeCollection(c, false)
	t.director.send(OpClearCollection, ClearCollection{TableID: t.id, CollectionID: id, Drop: true}.Encode, true)
}

func (t *Table) Clear() { t.director.ClearTable(t.id) }
func (t *Table) Drop()  { t.director.DropTable(t.id) }

// Collections returns every collection, ordered by id.
func (t *Table) Collections() []*Collection {
	out := make([]*Collection, 0, len(t.collections))
	for _, c := range t.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (t *Table) removeCollection(c *Collection, remote bool) {
	delete(t.collections, c.id)
	c.detach()
	t.director.emit(events.Event{Kind: events.CollectionDropped, TableID: t.id, CollectionID: c.id, Remote: remote})
}

func (t *Table) destroyCollections(remote bool) {
	for _, c := range t.Collections() {
		t.removeCollection(c, remote)
	}
}
