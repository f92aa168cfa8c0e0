package database

import (
	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/rpc"
)

const (
	OpAddItem         = "Database.AddItem"
	OpRemoveItem      = "Database.RemoveItem"
	OpAddTable        = "Database.AddTable"
	OpAddCollection   = "Database.AddCollection"
	OpClearCollection = "Database.ClearCollection"
	OpClearTable      = "Database.ClearTable"
	OpDownload        = "Database.Download"
	OpEnsureExistence = "Database.EnsureExistence"
	OpGetItem         = "Database.GetItem"
)

// Result codes. Each operation numbers its failures on its own; ResultOK is
// shared.
const (
	ResultOK uint8 = 0
	// ResultHandlerFailed is answered by the channel itself when a handler
	// panicked.
	ResultHandlerFailed = rpc.ResultHandlerFailed

	AddItemTableMissing      uint8 = 1
	AddItemCollectionMissing uint8 = 2
	AddItemExists            uint8 = 3
	AddItemFailed            uint8 = 4

	AddTableFailed      uint8 = 1
	AddCollectionFailed uint8 = 1
	EnsureFailed        uint8 = 1

	ClearCollectionTableMissing      uint8 = 1
	ClearCollectionCollectionMissing uint8 = 2
	ClearCollectionFailed            uint8 = 3

	ClearTableTableMissing uint8 = 1
	ClearTableFailed       uint8 = 2

	GetItemFound             uint8 = 0
	GetItemAdded             uint8 = 1
	GetItemTableMissing      uint8 = 2
	GetItemCollectionMissing uint8 = 3
	GetItemNotFound          uint8 = 4
	GetItemFailed            uint8 = 5
)

type AddItem struct {
	TableID      uint8
	CollectionID uint8
	Name         string
	Value        []byte
	OrOverride   bool
}

func (m AddItem) Encode(w *codec.Writer) {
	w.WriteUint8(m.TableID)
	w.WriteUint8(m.CollectionID)
	w.WriteString(m.Name)
	w.WriteBytes(m.Value)
	w.WriteBool(m.OrOverride)
}

func DecodeAddItem(r *codec.Reader) (AddItem, error) {
	m := AddItem{
		TableID:      r.ReadUint8(),
		CollectionID: r.ReadUint8(),
		Name:         r.ReadString(),
		Value:        r.ReadBytes(),
		OrOverride:   r.ReadBool(),
	}
	return m, r.Err()
}

// RemoveItems carries every item name removed by one local call. The count
// is a single byte on the wire.
type RemoveItems struct {
	TableID      uint8
	CollectionID uint8
	Names        []string
}

func (m RemoveItems) Encode(w *codec.Writer) {
	w.WriteUint8(m.TableID)
	w.WriteUint8(m.CollectionID)
	w.WriteUint8(uint8(len(m.Names)))
	for _, name := range m.Names {
		w.WriteString(name)
	}
}

func DecodeRemoveItems(r *codec.Reader) (RemoveItems, error) {
	m := RemoveItems{
		TableID:      r.ReadUint8(),
		CollectionID: r.ReadUint8(),
	}
	count := int(r.ReadUint8())
	for i := 0; i < count && r.Err() == nil; i++ {
		m.Names = append(m.Names, r.ReadString())
	}
	return m, r.Err()
}

type AddTable struct {
	TableID uint8
}

func (m AddTable) Encode(w *codec.Writer) {
	w.WriteUint8(m.TableID)
}

func DecodeAddTable(r *codec.Reader) (AddTable, error) {
	m := AddTable{TableID: r.ReadUint8()}
	return m, r.Err()
}

// AddCollection is also the payload of Database.EnsureExistence.
type AddCollection struct {
	TableID      uint8
	CollectionID uint8
	Tag          string
}

func (m AddCollection) Encode(w *codec.Writer) {
	w.WriteUint8(m.TableID)
	w.WriteUint8(m.CollectionID)
	w.WriteString(m.Tag)
}

func DecodeAddCollection(r *codec.Reader) (AddCollection, error) {
	m := AddCollection{
		TableID:      r.ReadUint8(),
		CollectionID: r.ReadUint8(),
		Tag:          r.ReadString(),
	}
	return m, r.Err()
}

type ClearCollection struct {
	TableID      uint8
	CollectionID uint8
	Drop         bool
}

func (m ClearCollection) Encode(w *codec.Writer) {
	w.WriteUint8(m.TableID)
	w.WriteUint8(m.CollectionID)
	w.WriteBool(m.Drop)
}

func DecodeClearCollection(r *codec.Reader) (ClearCollection, error) {
	m := ClearCollection{
		TableID:      r.ReadUint8(),
		CollectionID: r.ReadUint8(),
		Drop:         r.ReadBool(),
	}
	return m, r.Err()
}

type ClearTable struct {
	TableID uint8
	Drop    bool
}

func (m ClearTable) Encode(w *codec.Writer) {
	w.WriteUint8(m.TableID)
	w.WriteBool(m.Drop)
}

func DecodeClearTable(r *codec.Reader) (ClearTable, error) {
	m := ClearTable{
		TableID: r.ReadUint8(),
		Drop:    r.ReadBool(),
	}
	return m, r.Err()
}

// GetItem reads an item from the central node, adding Value when the item
// is missing and OrAdd is set.
type GetItem struct {
	TableID      uint8
	CollectionID uint8
	Name         string
	OrAdd        bool
	Value        []byte
}

func (m GetItem) Encode(w *codec.Writer) {
	w.WriteUint8(m.TableID)
	w.WriteUint8(m.CollectionID)
	w.WriteString(m.Name)
	w.WriteBool(m.OrAdd)
	if m.OrAdd {
		w.WriteBytes(m.Value)
	}
}

func DecodeGetItem(r *codec.Reader) (GetItem, error) {
	m := GetItem{
		TableID:      r.ReadUint8(),
		CollectionID: r.ReadUint8(),
		Name:         r.ReadString(),
		OrAdd:        r.ReadBool(),
	}
	if m.OrAdd {
		m.Value = r.ReadBytes()
	}
	return m, r.Err()
}

// Result is the leading result code of a response, with the diagnostic
// message some failure codes carry.
type Result struct {
	Code    uint8
	Message string
}

// ReadResult reads a result code, and the trailing message when one was
// sent.
func ReadResult(r *codec.Reader) Result {
	res := Result{Code: r.ReadUint8()}
	if res.Code != ResultOK && r.Remaining() > 0 {
		res.Message = r.ReadString()
	}
	return res
}

func WriteResult(w *codec.Writer, code uint8) {
	w.WriteUint8(code)
}

func WriteFailure(w *codec.Writer, code uint8, err error) {
	w.WriteUint8(code)
	w.WriteString(err.Error())
}
