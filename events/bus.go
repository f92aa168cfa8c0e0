package events

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	iradix "github.com/hashicorp/go-immutable-radix"
)

type Kind int

const (
	TableAdded Kind = iota
	TableCleared
	TableDropped
	CollectionAdded
	CollectionCleared
	CollectionDropped
	ItemAdded
	ItemUpdated
	ItemRemoved
	Downloaded
	TornDown
	WarnIssued
	WarnUpdated
	WarnRemoved
)

var kindNames = [...]string{
	"table_added", "table_cleared", "table_dropped",
	"collection_added", "collection_cleared", "collection_dropped",
	"item_added", "item_updated", "item_removed",
	"downloaded", "torn_down",
	"warn_issued", "warn_updated", "warn_removed",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Event describes one change of the store. Remote is set when the change
// was received from another node.
type Event struct {
	Kind         Kind
	TableID      uint8
	CollectionID uint8
	Name         string
	Value        interface{}
	Remote       bool
}

type Handler func(Event)

// Token identifies a subscription.
type Token string

type subscription struct {
	handler Handler
	kinds   map[Kind]struct{}
}

func (s *subscription) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Bus delivers events synchronously to subscribers, in subscription order.
// Emit never blocks on Subscribe or Unsubscribe.
type Bus struct {
	state    *iradix.Tree
	sequence uint64
}

func NewBus() *Bus {
	return &Bus{
		state: iradix.New(),
	}
}

func (b *Bus) cas(old, new *iradix.Tree) bool {
	oldPtr := (*unsafe.Pointer)(unsafe.Pointer(&b.state))
	return atomic.CompareAndSwapPointer(oldPtr, unsafe.Pointer(old), unsafe.Pointer(new))
}

func (b *Bus) load() *iradix.Tree {
	return (*iradix.Tree)(atomic.LoadPointer((*unsafe.Pointer)(unsafe.Pointer(&b.state))))
}

// Subscribe calls handler for every emitted event of one of kinds, or of
// every kind when none is given.
func (b *Bus) Subscribe(handler Handler, kinds ...Kind) Token {
	sub := &subscription{handler: handler}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}
	key := make([]byte, 8, 8+16)
	binary.BigEndian.PutUint64(key, atomic.AddUint64(&b.sequence, 1))
	id := uuid.New()
	key = append(key, id[:]...)
	for {
		old := b.load()
		new, _, _ := old.Insert(key, sub)
		if b.cas(old, new) {
			return Token(key)
		}
	}
}

// Unsubscribe removes the subscription. It reports false when token was
// already removed.
func (b *Bus) Unsubscribe(token Token) bool {
	for {
		old := b.load()
		new, _, ok := old.Delete([]byte(token))
		if !ok {
			return false
		}
		if b.cas(old, new) {
			return true
		}
	}
}

func (b *Bus) Len() int {
	return b.load().Len()
}

func (b *Bus) Emit(ev Event) {
	b.load().Root().Walk(func(k []byte, v interface{}) bool {
		sub := v.(*subscription)
		if sub.wants(ev.Kind) {
			sub.handler(ev)
		}
		return false
	})
}

// Events returns a channel receiving every event and a function cancelling
// the subscription. Emit blocks until the event is received or the
// subscription is cancelled.
func (b *Bus) Events(kinds ...Kind) (chan Event, func()) {
	ch := make(chan Event)
	quit := make(chan struct{})
	token := b.Subscribe(func(ev Event) {
		select {
		case <-quit:
		case ch <- ev:
		}
	}, kinds...)
	cancel := func() {
		if b.Unsubscribe(token) {
			close(quit)
		}
	}
	return ch, cancel
}
