package central

import (
	"bytes"
	"sort"
	"sync"

	"github.com/marchellc/CentralAPI/database"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type table struct {
	id          uint8
	collections sync.Map
}

type collection struct {
	id    uint8
	tag   string
	items sync.Map
}

func (t *table) collection(id uint8) (*collection, bool) {
	v, ok := t.collections.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*collection), true
}

// Director holds the authoritative store. Values are kept encoded, the
// central node never decodes them. Every level is a concurrent map so
// connections are served without a store-wide lock.
type Director struct {
	storage Storage
	logger  *zap.Logger
	tables  sync.Map
}

func NewDirector(storage Storage, logger *zap.Logger) *Director {
	return &Director{
		storage: storage,
		logger:  logger,
	}
}

// Load rebuilds the in-memory store from storage.
func (d *Director) Load() error {
	snapshot, err := d.storage.Load()
	if err != nil {
		return err
	}
	items := 0
	for _, st := range snapshot.Tables {
		t := &table{id: st.ID}
		for _, sc := range st.Collections {
			c := &collection{id: sc.ID, tag: sc.Tag}
			for _, si := range sc.Items {
				c.items.Store(si.Name, si.Value)
				items++
			}
			t.collections.Store(sc.ID, c)
		}
		d.tables.Store(st.ID, t)
	}
	d.logger.Info("store loaded", zap.Int("table_count", len(snapshot.Tables)), zap.Int("item_count", items))
	return nil
}

func (d *Director) table(id uint8) (*table, bool) {
	v, ok := d.tables.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*table), true
}

func (d *Director) getOrAddTable(id uint8) (*table, error) {
	if t, ok := d.table(id); ok {
		return t, nil
	}
	if err := d.storage.CreateTable(id); err != nil {
		return nil, errors.Wrapf(err, "failed to create table %d", id)
	}
	v, _ := d.tables.LoadOrStore(id, &table{id: id})
	return v.(*table), nil
}

func (d *Director) AddTable(m database.AddTable) error {
	_, err := d.getOrAddTable(m.TableID)
	return err
}

// AddCollection creates the collection, and its table when missing. An
// existing collection keeps its type.
func (d *Director) AddCollection(m database.AddCollection) error {
	t, err := d.getOrAddTable(m.TableID)
	if err != nil {
		return err
	}
	if c, ok := t.collection(m.CollectionID); ok {
		if c.tag != m.Tag {
			d.logger.Warn("collection exists with another type", zap.Uint8("table_id", m.TableID),
				zap.Uint8("collection_id", m.CollectionID), zap.String("tag", c.tag), zap.String("requested_tag", m.Tag))
		}
		return nil
	}
	if err := d.storage.CreateCollection(m.TableID, m.CollectionID, m.Tag); err != nil {
		return errors.Wrapf(err, "failed to create collection %d/%d", m.TableID, m.CollectionID)
	}
	t.collections.LoadOrStore(m.CollectionID, &collection{id: m.CollectionID, tag: m.Tag})
	return nil
}

// AddItem stores an item. An existing item is only replaced when orOverride
// is set and the value differs.
func (d *Director) AddItem(m database.AddItem) (uint8, error) {
	t, ok := d.table(m.TableID)
	if !ok {
		return database.AddItemTableMissing, nil
	}
	c, ok := t.collection(m.CollectionID)
	if !ok {
		return database.AddItemCollectionMissing, nil
	}
	if v, ok := c.items.Load(m.Name); ok && (!m.OrOverride || bytes.Equal(v.([]byte), m.Value)) {
		return database.AddItemExists, nil
	}
	if err := d.storage.WriteItem(m.TableID, m.CollectionID, m.Name, m.Value); err != nil {
		return database.AddItemFailed, errors.Wrapf(err, "failed to write item %s", m.Name)
	}
	c.items.Store(m.Name, m.Value)
	return database.ResultOK, nil
}

// RemoveItems removes items and returns the names that existed.
func (d *Director) RemoveItems(m database.RemoveItems) []string {
	t, ok := d.table(m.TableID)
	if !ok {
		return nil
	}
	c, ok := t.collection(m.CollectionID)
	if !ok {
		return nil
	}
	var removed []string
	for _, name := range m.Names {
		if _, ok := c.items.Load(name); !ok {
			continue
		}
		c.items.Delete(name)
		removed = append(removed, name)
		d.storage.DeleteItem(m.TableID, m.CollectionID, name)
	}
	return removed
}

func (d *Director) ClearCollection(m database.ClearCollection) (uint8, error) {
	t, ok := d.table(m.TableID)
	if !ok {
		return database.ClearCollectionTableMissing, nil
	}
	c, ok := t.collection(m.CollectionID)
	if !ok {
		return database.ClearCollectionCollectionMissing, nil
	}
	if m.Drop {
		t.collections.Delete(m.CollectionID)
		d.storage.DropCollection(m.TableID, m.CollectionID)
		return database.ResultOK, nil
	}
	if err := d.storage.ClearCollection(m.TableID, m.CollectionID); err != nil {
		return database.ClearCollectionFailed, errors.Wrapf(err, "failed to clear collection %d/%d", m.TableID, m.CollectionID)
	}
	c.items.Range(func(k, _ interface{}) bool {
		c.items.Delete(k)
		return true
	})
	return database.ResultOK, nil
}

// ClearTable drops every collection of the table, and the table itself when
// drop is set.
func (d *Director) ClearTable(m database.ClearTable) (uint8, error) {
	t, ok := d.table(m.TableID)
	if !ok {
		return database.ClearTableTableMissing, nil
	}
	t.collections.Range(func(k, _ interface{}) bool {
		t.collections.Delete(k)
		d.storage.DropCollection(m.TableID, k.(uint8))
		return true
	})
	if m.Drop {
		d.tables.Delete(m.TableID)
		d.storage.DropTable(m.TableID)
	}
	return database.ResultOK, nil
}

// GetItem returns an item, adding it first when it is missing and orAdd is
// set.
func (d *Director) GetItem(m database.GetItem) (uint8, []byte, error) {
	t, ok := d.table(m.TableID)
	if !ok {
		return database.GetItemTableMissing, nil, nil
	}
	c, ok := t.collection(m.CollectionID)
	if !ok {
		return database.GetItemCollectionMissing, nil, nil
	}
	if v, ok := c.items.Load(m.Name); ok {
		return database.GetItemFound, v.([]byte), nil
	}
	if !m.OrAdd {
		return database.GetItemNotFound, nil, nil
	}
	if err := d.storage.WriteItem(m.TableID, m.CollectionID, m.Name, m.Value); err != nil {
		return database.GetItemFailed, nil, errors.Wrapf(err, "failed to write item %s", m.Name)
	}
	c.items.Store(m.Name, m.Value)
	return database.GetItemAdded, nil, nil
}

// Item returns the encoded value of an item.
func (d *Director) Item(tableID, collectionID uint8, name string) ([]byte, bool) {
	t, ok := d.table(tableID)
	if !ok {
		return nil, false
	}
	c, ok := t.collection(collectionID)
	if !ok {
		return nil, false
	}
	v, ok := c.items.Load(name)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Snapshot returns the whole store, ordered.
func (d *Director) Snapshot() database.Snapshot {
	snapshot := database.Snapshot{}
	d.tables.Range(func(_, v interface{}) bool {
		t := v.(*table)
		st := database.SnapshotTable{ID: t.id}
		t.collections.Range(func(_, v interface{}) bool {
			c := v.(*collection)
			sc := database.SnapshotCollection{ID: c.id, Tag: c.tag}
			c.items.Range(func(k, v interface{}) bool {
				sc.Items = append(sc.Items, database.SnapshotItem{Name: k.(string), Value: v.([]byte)})
				return true
			})
			st.Collections = append(st.Collections, sc)
			return true
		})
		snapshot.Tables = append(snapshot.Tables, st)
		return true
	})
	snapshot.Sort()
	return snapshot
}

// TableIDs returns the id of every table.
func (d *Director) TableIDs() []uint8 {
	var ids []uint8
	d.tables.Range(func(k, _ interface{}) bool {
		ids = append(ids, k.(uint8))
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
