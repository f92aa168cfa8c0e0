package pending

import (
	"sync"
	"time"

	"github.com/google/btree"
)

// Reason tells a resolver why an entry left the table without being taken.
type Reason int

const (
	Expired Reason = iota
	Cancelled
	Replaced
)

func (r Reason) String() string {
	switch r {
	case Expired:
		return "expired"
	case Cancelled:
		return "cancelled"
	case Replaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// DropFunc is called, outside of the table lock, for every entry removed by
// expiry, cancellation or replacement.
type DropFunc func(id uint64, value interface{}, reason Reason)

type entry struct {
	id       uint64
	deadline time.Time
	value    interface{}
}

// Less orders entries by deadline, then by id.
func (e *entry) Less(remote btree.Item) bool {
	other := remote.(*entry)
	if e.deadline.Equal(other.deadline) {
		return e.id < other.id
	}
	return e.deadline.Before(other.deadline)
}

// Table holds in-flight entries keyed by a numeric id, each with a deadline.
type Table struct {
	mutex     sync.Mutex
	ttl       time.Duration
	entries   map[uint64]*entry
	deadlines *btree.BTree
	onDrop    DropFunc
	quit      chan struct{}
	closed    bool
}

// New returns a table whose entries live for ttl. A zero ttl disables expiry.
func New(ttl time.Duration, onDrop DropFunc) *Table {
	return &Table{
		ttl:       ttl,
		entries:   make(map[uint64]*entry),
		deadlines: btree.New(2),
		onDrop:    onDrop,
		quit:      make(chan struct{}),
	}
}

func (t *Table) drop(id uint64, value interface{}, reason Reason) {
	if t.onDrop != nil {
		t.onDrop(id, value, reason)
	}
}

// Put stores value under id. An entry already stored under id is replaced
// and reported with the Replaced reason. Put is a no-op on a closed table and
// returns false.
func (t *Table) Put(id uint64, value interface{}) bool {
	t.mutex.Lock()
	if t.closed {
		t.mutex.Unlock()
		return false
	}
	old := t.remove(id)
	e := &entry{id: id, value: value}
	if t.ttl > 0 {
		e.deadline = time.Now().Add(t.ttl)
		t.deadlines.ReplaceOrInsert(e)
	}
	t.entries[id] = e
	t.mutex.Unlock()
	if old != nil {
		t.drop(old.id, old.value, Replaced)
	}
	return true
}

func (t *Table) remove(id uint64) *entry {
	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	delete(t.entries, id)
	if t.ttl > 0 {
		t.deadlines.Delete(e)
	}
	return e
}

// Take removes and returns the entry stored under id.
func (t *Table) Take(id uint64) (interface{}, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	e := t.remove(id)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Len returns the number of in-flight entries.
func (t *Table) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.entries)
}

// Expire removes every entry whose deadline is before now and returns how
// many were removed.
func (t *Table) Expire(now time.Time) int {
	t.mutex.Lock()
	var expired []*entry
	t.deadlines.Ascend(func(i btree.Item) bool {
		e := i.(*entry)
		if !e.deadline.Before(now) {
			return false
		}
		expired = append(expired, e)
		return true
	})
	for _, e := range expired {
		t.remove(e.id)
	}
	t.mutex.Unlock()
	for _, e := range expired {
		t.drop(e.id, e.value, Expired)
	}
	return len(expired)
}

// Cancel removes every entry.
func (t *Table) Cancel() int {
	t.mutex.Lock()
	cancelled := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		cancelled = append(cancelled, e)
	}
	t.entries = make(map[uint64]*entry)
	t.deadlines = btree.New(2)
	t.mutex.Unlock()
	for _, e := range cancelled {
		t.drop(e.id, e.value, Cancelled)
	}
	return len(cancelled)
}

// Sweep runs Expire every interval until Close is called.
func (t *Table) Sweep(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.quit:
				return
			case now := <-ticker.C:
				t.Expire(now)
			}
		}
	}()
}

// Close stops the sweep, cancels every remaining entry and rejects later
// Put calls.
func (t *Table) Close() {
	t.mutex.Lock()
	if t.closed {
		t.mutex.Unlock()
		return
	}
	t.closed = true
	close(t.quit)
	t.mutex.Unlock()
	t.Cancel()
}
