package punishments

import (
	"github.com/marchellc/CentralAPI/database"
	"github.com/marchellc/CentralAPI/wrappers"
)

// IDCollection is the collection of the punishment id table holding one
// counter per punishment kind.
const IDCollection uint8 = 0

// IDs hands out sequential identifiers backed by a replicated counter. Like
// every counter of the store, concurrent increments from several edges are
// not additive.
type IDs struct {
	collection *database.Collection
}

// OpenIDs binds to the counters of tableID. It must be called on the tick,
// once the store is downloaded.
func OpenIDs(director *database.Director, tableID uint8) (*IDs, error) {
	collection, err := director.GetOrAddTable(tableID).GetOrAddCollection(IDCollection, wrappers.TagUint64)
	if err != nil {
		return nil, err
	}
	return &IDs{collection: collection}, nil
}

// Next increments the counter called name and returns its new value.
func (i *IDs) Next(name string) (uint64, error) {
	v, err := i.collection.Increment(name, 1)
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}
