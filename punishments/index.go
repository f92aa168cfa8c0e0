package punishments

import (
	"sort"
	"strconv"

	"github.com/marchellc/CentralAPI/database"
)

// Index mirrors warns into the replicated store, keyed by warn id, in one
// collection for active warns and one for expired warns. Like every store
// accessor it must be used on the tick.
type Index struct {
	active  *database.Collection
	expired *database.Collection
}

// OpenIndex binds to the warn collections of tableID. Register must have
// been called on the director's registry.
func OpenIndex(director *database.Director, tableID, activeID, expiredID uint8) (*Index, error) {
	table := director.GetOrAddTable(tableID)
	active, err := table.GetOrAddCollection(activeID, TagWarn)
	if err != nil {
		return nil, err
	}
	expired, err := table.GetOrAddCollection(expiredID, TagWarn)
	if err != nil {
		return nil, err
	}
	return &Index{active: active, expired: expired}, nil
}

func key(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Track stores warn in the collection matching its state and removes it
// from the other one.
func (i *Index) Track(warn *Warn) error {
	target, other := i.active, i.expired
	if warn.Time.IsExpired {
		target, other = i.expired, i.active
	}
	name := key(warn.ID)
	other.Remove(name)
	record := warn.Marshal()
	_, err := target.UpdateOrAdd(name, func(v interface{}) bool {
		current, ok := v.(*Warn)
		return ok && string(current.Marshal()) == string(record)
	}, func(interface{}, bool) interface{} {
		return warn.Clone()
	})
	return err
}

// Lookup returns the indexed warn, active or expired.
func (i *Index) Lookup(id uint64) (*Warn, bool) {
	for _, collection := range []*database.Collection{i.active, i.expired} {
		if v, ok := collection.TryGet(key(id)); ok {
			return v.(*Warn), true
		}
	}
	return nil, false
}

// ActiveFor returns the active warns of the player, oldest first.
func (i *Index) ActiveFor(playerID string) []*Warn {
	var out []*Warn
	for _, v := range i.active.Where(func(_ string, v interface{}) bool {
		warn, ok := v.(*Warn)
		return ok && warn.Target.ID == playerID
	}) {
		out = append(out, v.(*Warn))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}
