package database

import (
	"github.com/marchellc/CentralAPI/events"
	"go.uber.org/zap"
)

// The Apply methods mirror mutations received from the central node. They
// never send anything back.

func (d *Director) ApplyAddItem(m AddItem) {
	logger := d.logger.With(zap.Uint8("table_id", m.TableID), zap.Uint8("collection_id", m.CollectionID), zap.String("item", m.Name))
	table, ok := d.tables[m.TableID]
	if !ok {
		logger.Warn("received item for unknown table")
		return
	}
	c, ok := table.collections[m.CollectionID]
	if !ok {
		logger.Warn("received item for unknown collection")
		return
	}
	if item, ok := c.items[m.Name]; ok {
		if !m.OrOverride {
			logger.Debug("item exists and override is disabled")
			return
		}
		item.setRaw(m.Value)
		c.emit(events.ItemUpdated, m.Name, nil, true)
		return
	}
	c.items[m.Name] = &Item{name: m.Name, collection: c, raw: m.Value}
	c.emit(events.ItemAdded, m.Name, nil, true)
}

func (d *Director) ApplyRemoveItems(m RemoveItems) {
	table, ok := d.tables[m.TableID]
	if !ok {
		return
	}
	c, ok := table.collections[m.CollectionID]
	if !ok {
		return
	}
	for _, name := range m.Names {
		c.remove(name, true)
	}
}

func (d *Director) ApplyAddTable(m AddTable) {
	if _, ok := d.tables[m.TableID]; !ok {
		d.addTable(m.TableID, true)
	}
}

// ApplyAddCollection creates the collection, and its table when needed.
func (d *Director) ApplyAddCollection(m AddCollection) {
	table, ok := d.tables[m.TableID]
	if !ok {
		table = d.addTable(m.TableID, true)
	}
	if c, ok := table.collections[m.CollectionID]; ok {
		if c.tag != m.Tag {
			d.logger.Warn("received collection with another type", zap.Uint8("table_id", m.TableID),
				zap.Uint8("collection_id", m.CollectionID), zap.String("tag", c.tag), zap.String("received_tag", m.Tag))
		}
		return
	}
	c := table.newCollection(m.CollectionID, m.Tag)
	table.collections[m.CollectionID] = c
	d.emit(events.Event{Kind: events.CollectionAdded, TableID: m.TableID, CollectionID: m.CollectionID, Value: m.Tag, Remote: true})
}

func (d *Director) ApplyClearCollection(m ClearCollection) {
	table, ok := d.tables[m.TableID]
	if !ok {
		return
	}
	c, ok := table.collections[m.CollectionID]
	if !ok {
		return
	}
	if m.Drop {
		table.removeCollection(c, true)
		return
	}
	if c.Size() > 0 {
		c.clear()
		d.emit(events.Event{Kind: events.CollectionCleared, TableID: m.TableID, CollectionID: m.CollectionID, Remote: true})
	}
}

func (d *Director) ApplyClearTable(m ClearTable) {
	table, ok := d.tables[m.TableID]
	if !ok {
		return
	}
	if m.Drop {
		delete(d.tables, m.TableID)
		table.destroyCollections(true)
		d.emit(events.Event{Kind: events.TableDropped, TableID: m.TableID, Remote: true})
		return
	}
	table.destroyCollections(true)
	d.emit(events.Event{Kind: events.TableCleared, TableID: m.TableID, Remote: true})
}
