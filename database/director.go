package database

import (
	"sort"

	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/events"
	"github.com/marchellc/CentralAPI/rpc"
	"github.com/marchellc/CentralAPI/wrappers"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrTableNotFound      = errors.New("table not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrItemNotFound       = errors.New("item not found")
	ErrTagMismatch        = errors.New("collection already exists with another type")
	ErrDetached           = errors.New("item no longer belongs to a collection")
)

// Sender mirrors local mutations to the central node. *rpc.Channel
// implements it.
type Sender interface {
	Request(name string, write func(*codec.Writer), reply rpc.ReplyFunc) error
}

// Options designates the tables created once the first download completes.
// A negative id disables the table.
type Options struct {
	ServerTable int
	GlobalTable int
}

// Requirement is a collection that must exist centrally before the mirror
// is downloaded.
type Requirement struct {
	TableID      uint8
	CollectionID uint8
	Tag          string
}

// Director owns the edge-side mirror of the store. It is not safe for
// concurrent use: every call must happen on the same goroutine.
type Director struct {
	logger     *zap.Logger
	registry   *wrappers.Registry
	bus        *events.Bus
	sender     Sender
	opts       Options
	tables     map[uint8]*Table
	required   map[uint16]Requirement
	downloaded bool
}

func NewDirector(registry *wrappers.Registry, logger *zap.Logger, opts Options) *Director {
	return &Director{
		logger:   logger,
		registry: registry,
		bus:      events.NewBus(),
		opts:     opts,
		tables:   make(map[uint8]*Table),
		required: make(map[uint16]Requirement),
	}
}

func (d *Director) Registry() *wrappers.Registry { return d.registry }
func (d *Director) Events() *events.Bus          { return d.bus }
func (d *Director) IsDownloaded() bool           { return d.downloaded }

// SetSender changes where local mutations are mirrored. A nil sender keeps
// mutations local.
func (d *Director) SetSender(sender Sender) {
	d.sender = sender
}

func (d *Director) emit(ev events.Event) {
	d.bus.Emit(ev)
}

func (d *Director) send(operation string, write func(*codec.Writer), logResult bool) {
	if d.sender == nil {
		d.logger.Debug("not connected, mutation stays local", zap.String("operation", operation))
		return
	}
	var reply rpc.ReplyFunc
	if logResult {
		reply = func(r *codec.Reader) {
			res := ReadResult(r)
			if err := r.Err(); err != nil {
				d.logger.Warn("malformed mutation result", zap.String("operation", operation), zap.Error(err))
				return
			}
			if res.Code == ResultOK {
				d.logger.Debug("mutation accepted", zap.String("operation", operation))
				return
			}
			d.logger.Warn("mutation rejected", zap.String("operation", operation),
				zap.Uint8("result_code", res.Code), zap.String("result_message", res.Message))
		}
	}
	if err := d.sender.Request(operation, write, reply); err != nil {
		d.logger.Warn("failed to mirror mutation", zap.String("operation", operation), zap.Error(err))
	}
}

func (d *Director) TryGetTable(id uint8) (*Table, bool) {
	table, ok := d.tables[id]
	return table, ok
}

func (d *Director) GetTable(id uint8) (*Table, error) {
	table, ok := d.tables[id]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "table %d", id)
	}
	return table, nil
}

func (d *Director) addTable(id uint8, remote bool) *Table {
	table := &Table{
		id:          id,
		director:    d,
		collections: make(map[uint8]*Collection),
	}
	d.tables[id] = table
	d.emit(events.Event{Kind: events.TableAdded, TableID: id, Remote: remote})
	return table
}

// GetOrAddTable returns the table, creating it and mirroring the creation
// when it does not exist yet.
func (d *Director) GetOrAddTable(id uint8) *Table {
	if table, ok := d.tables[id]; ok {
		return table
	}
	table := d.addTable(id, false)
	d.send(OpAddTable, AddTable{TableID: id}.Encode, true)
	return table
}

// ClearTable drops every collection of the table. It is a no-op when the
// table is absent or empty.
func (d *Director) ClearTable(id uint8) {
	table, ok := d.tables[id]
	if !ok || table.Size() == 0 {
		return
	}
	table.destroyCollections(false)
	d.emit(events.Event{Kind: events.TableCleared, TableID: id})
	d.send(OpClearTable, ClearTable{TableID: id, Drop: false}.Encode, true)
}

// DropTable removes the table and everything it owns. It is a no-op when the
// table is absent.
func (d *Director) DropTable(id uint8) {
	table, ok := d.tables[id]
	if !ok {
		return
	}
	delete(d.tables, id)
	table.destroyCollections(false)
	d.emit(events.Event{Kind: events.TableDropped, TableID: id})
	d.send(OpClearTable, ClearTable{TableID: id, Drop: true}.Encode, true)
}

// Tables returns every table, ordered by id.
func (d *Director) Tables() []*Table {
	out := make([]*Table, 0, len(d.tables))
	for _, table := range d.tables {
		out = append(out, table)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// RequireCollection records a collection that must exist on the central node
// before the mirror is downloaded.
func (d *Director) RequireCollection(tableID, collectionID uint8, tag string) {
	d.required[uint16(tableID)<<8|uint16(collectionID)] = Requirement{
		TableID:      tableID,
		CollectionID: collectionID,
		Tag:          tag,
	}
}

// RequireServerCollection requires a collection of the server table, when
// the server table is enabled.
func (d *Director) RequireServerCollection(collectionID uint8, tag string) {
	if id, ok := tableID(d.opts.ServerTable); ok {
		d.RequireCollection(id, collectionID, tag)
	}
}

func (d *Director) RequireGlobalCollection(collectionID uint8, tag string) {
	if id, ok := tableID(d.opts.GlobalTable); ok {
		d.RequireCollection(id, collectionID, tag)
	}
}

func (d *Director) Requirements() []Requirement {
	out := make([]Requirement, 0, len(d.required))
	for _, r := range d.required {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TableID == out[j].TableID {
			return out[i].CollectionID < out[j].CollectionID
		}
		return out[i].TableID < out[j].TableID
	})
	return out
}

func tableID(v int) (uint8, bool) {
	if v < 0 || v > 255 {
		return 0, false
	}
	return uint8(v), true
}

// ServerTable returns the table dedicated to this server. It exists once the
// mirror has been downloaded, unless disabled.
func (d *Director) ServerTable() (*Table, bool) {
	id, ok := tableID(d.opts.ServerTable)
	if !ok || !d.downloaded {
		return nil, false
	}
	return d.TryGetTable(id)
}

// GlobalTable returns the table shared by every server.
func (d *Director) GlobalTable() (*Table, bool) {
	id, ok := tableID(d.opts.GlobalTable)
	if !ok || !d.downloaded {
		return nil, false
	}
	return d.TryGetTable(id)
}

// Load replaces the mirror with the content of snapshot. Collections whose
// type has no registered wrapper are kept, and their items are decoded once
// a wrapper is registered.
func (d *Director) Load(snapshot Snapshot) {
	d.teardown()
	for _, st := range snapshot.Tables {
		table := &Table{id: st.ID, director: d, collections: make(map[uint8]*Collection, len(st.Collections))}
		d.tables[st.ID] = table
		for _, sc := range st.Collections {
			collection := table.newCollection(sc.ID, sc.Tag)
			if collection.wrapper == nil {
				d.logger.Warn("no wrapper for downloaded collection", zap.Uint8("table_id", st.ID),
					zap.Uint8("collection_id", sc.ID), zap.String("tag", sc.Tag))
			}
			for _, si := range sc.Items {
				collection.items[si.Name] = &Item{name: si.Name, collection: collection, raw: si.Value}
			}
			table.collections[sc.ID] = collection
		}
	}
	d.downloaded = true
	if id, ok := tableID(d.opts.ServerTable); ok {
		d.GetOrAddTable(id)
	}
	if id, ok := tableID(d.opts.GlobalTable); ok {
		d.GetOrAddTable(id)
	}
	d.logger.Info("store downloaded", zap.Int("table_count", len(d.tables)))
	d.emit(events.Event{Kind: events.Downloaded})
}

// TearDown discards the whole mirror without mirroring anything.
func (d *Director) TearDown() {
	d.teardown()
	d.emit(events.Event{Kind: events.TornDown})
}

func (d *Director) teardown() {
	for id, table := range d.tables {
		table.destroyCollections(true)
		delete(d.tables, id)
	}
	d.downloaded = false
}
