package database

import (
	"math"
	"sort"

	"github.com/marchellc/CentralAPI/codec"
	"github.com/pkg/errors"
)

// Snapshot is the reply to Database.Download: every table, collection and
// item known to the central node, with values still encoded.
type Snapshot struct {
	Tables []SnapshotTable
}

type SnapshotTable struct {
	ID          uint8
	Collections []SnapshotCollection
}

type SnapshotCollection struct {
	ID    uint8
	Tag   string
	Items []SnapshotItem
}

type SnapshotItem struct {
	Name  string
	Value []byte
}

// Sort orders tables and collections by id and items by name.
func (s *Snapshot) Sort() {
	sort.Slice(s.Tables, func(i, j int) bool { return s.Tables[i].ID < s.Tables[j].ID })
	for _, table := range s.Tables {
		sort.Slice(table.Collections, func(i, j int) bool { return table.Collections[i].ID < table.Collections[j].ID })
		for _, collection := range table.Collections {
			sort.Slice(collection.Items, func(i, j int) bool { return collection.Items[i].Name < collection.Items[j].Name })
		}
	}
}

// ErrSnapshotTooLarge is returned when a snapshot holds more tables, or a
// table more collections, than a single byte can count.
var ErrSnapshotTooLarge = errors.New("snapshot too large")

// Encode writes s to w. Nothing is written when s cannot be encoded.
func (s Snapshot) Encode(w *codec.Writer) error {
	if len(s.Tables) > math.MaxUint8 {
		return errors.Wrapf(ErrSnapshotTooLarge, "%d tables", len(s.Tables))
	}
	for _, table := range s.Tables {
		if len(table.Collections) > math.MaxUint8 {
			return errors.Wrapf(ErrSnapshotTooLarge, "table %d: %d collections", table.ID, len(table.Collections))
		}
	}
	w.WriteUint8(uint8(len(s.Tables)))
	for _, table := range s.Tables {
		w.WriteUint8(table.ID)
		w.WriteUint8(uint8(len(table.Collections)))
		for _, collection := range table.Collections {
			w.WriteUint8(collection.ID)
			w.WriteInt32(int32(len(collection.Items)))
			w.WriteString(collection.Tag)
			for _, item := range collection.Items {
				w.WriteString(item.Name)
				w.WriteBytes(item.Value)
			}
		}
	}
	return nil
}

func DecodeSnapshot(r *codec.Reader) (Snapshot, error) {
	s := Snapshot{}
	tables := int(r.ReadUint8())
	for t := 0; t < tables && r.Err() == nil; t++ {
		table := SnapshotTable{ID: r.ReadUint8()}
		collections := int(r.ReadUint8())
		for c := 0; c < collections && r.Err() == nil; c++ {
			collection := SnapshotCollection{ID: r.ReadUint8()}
			items := r.ReadCount()
			collection.Tag = r.ReadString()
			for i := 0; i < items && r.Err() == nil; i++ {
				collection.Items = append(collection.Items, SnapshotItem{
					Name:  r.ReadString(),
					Value: r.ReadBytes(),
				})
			}
			table.Collections = append(table.Collections, collection)
		}
		s.Tables = append(s.Tables, table)
	}
	return s, r.Err()
}
