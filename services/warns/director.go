package warns

import (
	"sort"
	"sync"
	"time"

	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/events"
	"github.com/marchellc/CentralAPI/pending"
	"github.com/marchellc/CentralAPI/punishments"
	"github.com/marchellc/CentralAPI/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("not connected to central node")
	ErrEmptyReason  = errors.New("reason must not be empty")
)

const (
	DefaultTransactionTTL = 30 * time.Second
)

type Config struct {
	// Server is written to every record and log this node creates.
	Server         string
	TransactionTTL time.Duration
}

// ConfirmFunc receives a copy of the confirmed warn.
type ConfirmFunc func(warn *punishments.Warn)

type transaction struct {
	warn        *punishments.Warn
	removal     bool
	onConfirmed ConfirmFunc
}

// Director mirrors the warns stored by the central node. Issues and removals
// are sent as transactions and finalized when the central node confirms
// them.
type Director struct {
	config       Config
	logger       *zap.Logger
	events       *events.Bus
	transactions *pending.Table
	now          func() time.Time

	mutex      sync.Mutex
	channel    *rpc.Channel
	next       int32
	active     map[uint64]*punishments.Warn
	removed    map[uint64]*punishments.Warn
	downloaded bool
}

func NewDirector(logger *zap.Logger, config Config) *Director {
	if config.TransactionTTL == 0 {
		config.TransactionTTL = DefaultTransactionTTL
	}
	d := &Director{
		config:  config,
		logger:  logger,
		events:  events.NewBus(),
		now:     time.Now,
		active:  make(map[uint64]*punishments.Warn),
		removed: make(map[uint64]*punishments.Warn),
	}
	d.transactions = pending.New(config.TransactionTTL, d.dropped)
	d.transactions.Sweep(rpc.DefaultSweepInterval)
	return d
}

// Events emits WarnIssued, WarnUpdated, WarnRemoved and Downloaded. The
// event value is a copy of the warn.
func (d *Director) Events() *events.Bus {
	return d.events
}

func (d *Director) dropped(id uint64, v interface{}, reason pending.Reason) {
	tx := v.(*transaction)
	if reason == pending.Expired {
		d.logger.Warn("warn transaction expired without confirmation",
			zap.Uint64("transaction_id", id), zap.Bool("removal", tx.removal), zap.Uint64("warn_id", tx.warn.ID))
	}
}

// Attach registers the warn handlers on channel and downloads every warn.
func (d *Director) Attach(channel *rpc.Channel) {
	d.mutex.Lock()
	d.channel = channel
	d.mutex.Unlock()
	channel.Handle(OpConfirm, d.handleConfirm)
	channel.Handle(OpUpdated, d.handleUpdated)
	err := channel.Request(OpDownload, nil, d.handlePackage)
	if err != nil {
		d.logger.Warn("failed to download warns", zap.Error(err))
	}
}

// Detach forgets every warn and cancels pending transactions.
func (d *Director) Detach() {
	d.mutex.Lock()
	d.channel = nil
	d.next = 0
	d.active = make(map[uint64]*punishments.Warn)
	d.removed = make(map[uint64]*punishments.Warn)
	d.downloaded = false
	d.mutex.Unlock()
	d.transactions.Cancel()
}

func (d *Director) Close() error {
	d.Detach()
	d.transactions.Close()
	return nil
}

func (d *Director) nextTransaction() int32 {
	d.next++
	if d.next <= 0 {
		d.next = 1
	}
	return d.next
}

// TryIssue sends a new warn to the central node and returns its transaction
// id. The warn enters the active set once confirmed.
func (d *Director) TryIssue(issuer, target punishments.Player, reason string, onConfirmed ConfirmFunc) (int32, error) {
	if reason == "" {
		return 0, ErrEmptyReason
	}
	now := d.now().UTC()
	warn := &punishments.Warn{
		Server: d.config.Server,
		Reason: reason,
		Time:   punishments.Time{IsPermanent: true, UtcIssued: now, UtcStart: now},
		Issuer: issuer,
		Target: target,
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.channel == nil {
		return 0, ErrNotConnected
	}
	id := d.nextTransaction()
	d.transactions.Put(uint64(id), &transaction{warn: warn, onConfirmed: onConfirmed})
	err := d.channel.Request(OpIssue, Issue{Transaction: id, Record: warn.Marshal()}.Encode, nil)
	if err != nil {
		d.transactions.Take(uint64(id))
		return 0, errors.Wrap(err, "failed to issue warn")
	}
	return id, nil
}

// TryRemove expires an active warn. The warn moves to the removed set
// immediately; onConfirmed is called once the central node stored the
// change. TryRemove reports false when the warn is not active or the node is
// not connected.
func (d *Director) TryRemove(id uint64, removedBy punishments.Player, reason string, onConfirmed ConfirmFunc) bool {
	if reason == "" {
		return false
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	warn, ok := d.active[id]
	if !ok || warn.Time.IsExpired || d.channel == nil {
		return false
	}
	previous := warn.Clone()
	creator := removedBy
	warn.Logs = append(warn.Logs, &punishments.DurationUpdate{
		LogHeader: punishments.LogHeader{
			Server:  d.config.Server,
			Reason:  reason,
			Time:    d.now().UTC(),
			Creator: &creator,
		},
		NewIsExpired:        true,
		PreviousIsExpired:   false,
		NewIsPermanent:      warn.Time.IsPermanent,
		PreviousIsPermanent: warn.Time.IsPermanent,
	})
	warn.Time.IsExpired = true
	delete(d.active, id)
	d.removed[id] = warn

	tx := d.nextTransaction()
	d.transactions.Put(uint64(tx), &transaction{warn: warn, removal: true, onConfirmed: onConfirmed})
	err := d.channel.Request(OpUpdate, Update{Transaction: tx, ID: id, Record: warn.Marshal()}.Encode, nil)
	if err != nil {
		d.logger.Warn("failed to remove warn", zap.Uint64("warn_id", id), zap.Error(err))
		d.transactions.Take(uint64(tx))
		delete(d.removed, id)
		d.active[id] = previous
		return false
	}
	return true
}

// MarkDisplayed records that the target has seen the warn. The change is
// sent without confirmation.
func (d *Director) MarkDisplayed(id uint64) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	warn, ok := d.active[id]
	if !ok {
		warn, ok = d.removed[id]
	}
	if !ok || warn.IsDisplayed || d.channel == nil {
		return false
	}
	warn.IsDisplayed = true
	err := d.channel.Request(OpUpdate, Update{ID: id, Record: warn.Marshal()}.Encode, nil)
	if err != nil {
		d.logger.Warn("failed to update warn", zap.Uint64("warn_id", id), zap.Error(err))
		warn.IsDisplayed = false
		return false
	}
	return true
}

// Get returns a copy of the warn.
func (d *Director) Get(id uint64) (*punishments.Warn, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if warn, ok := d.active[id]; ok {
		return warn.Clone(), true
	}
	if warn, ok := d.removed[id]; ok {
		return warn.Clone(), true
	}
	return nil, false
}

func (d *Director) IsActive(id uint64) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, ok := d.active[id]
	return ok
}

func (d *Director) IsRemoved(id uint64) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, ok := d.removed[id]
	return ok
}

func sorted(set map[uint64]*punishments.Warn) []*punishments.Warn {
	out := make([]*punishments.Warn, 0, len(set))
	for _, warn := range set {
		out = append(out, warn.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Director) Active() []*punishments.Warn {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return sorted(d.active)
}

func (d *Director) Removed() []*punishments.Warn {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return sorted(d.removed)
}

// Find returns a copy of the first warn matching predicate, active warns
// first.
func (d *Director) Find(predicate func(*punishments.Warn) bool) (*punishments.Warn, bool) {
	for _, set := range [][]*punishments.Warn{d.Active(), d.Removed()} {
		for _, warn := range set {
			if predicate(warn) {
				return warn, true
			}
		}
	}
	return nil, false
}

func (d *Director) IsDownloaded() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.downloaded
}

// Pending returns the number of unconfirmed transactions.
func (d *Director) Pending() int {
	return d.transactions.Len()
}

// emit publishes a warn event. Remote is unset for confirmations of this
// node's own transactions.
func (d *Director) emit(kind events.Kind, warn *punishments.Warn, remote bool) {
	d.events.Emit(events.Event{Kind: kind, Value: warn, Remote: remote})
}

func (d *Director) handleConfirm(r *codec.Reader, w *codec.Writer) {
	m, err := DecodeConfirm(r)
	if err != nil {
		d.logger.Warn("malformed warn confirmation", zap.Error(err))
		return
	}
	v, ok := d.transactions.Take(uint64(m.Transaction))
	if !ok {
		d.logger.Warn("received a warn confirmation with an unknown transaction id", zap.Int32("transaction_id", m.Transaction))
		return
	}
	tx := v.(*transaction)
	d.mutex.Lock()
	kind := events.WarnRemoved
	if !tx.removal {
		kind = events.WarnIssued
		tx.warn.ID = m.ID
		if tx.warn.Time.IsExpired {
			d.removed[m.ID] = tx.warn
		} else {
			d.active[m.ID] = tx.warn
		}
	}
	confirmed := tx.warn.Clone()
	d.mutex.Unlock()

	d.emit(kind, confirmed, false)
	if tx.onConfirmed != nil {
		tx.onConfirmed(confirmed.Clone())
	}
}

func (d *Director) handleUpdated(r *codec.Reader, w *codec.Writer) {
	m, err := DecodeUpdated(r)
	if err != nil {
		d.logger.Warn("malformed warn update", zap.Error(err))
		return
	}
	warn, err := punishments.UnmarshalWarn(m.Record)
	if err != nil {
		d.logger.Warn("malformed warn update", zap.Uint64("warn_id", m.ID), zap.Error(err))
		return
	}
	warn.ID = m.ID

	d.mutex.Lock()
	_, wasActive := d.active[m.ID]
	_, wasRemoved := d.removed[m.ID]
	delete(d.active, m.ID)
	delete(d.removed, m.ID)
	if warn.Time.IsExpired {
		d.removed[m.ID] = warn
	} else {
		d.active[m.ID] = warn
	}
	received := warn.Clone()
	d.mutex.Unlock()

	switch {
	case warn.Time.IsExpired && !wasRemoved:
		d.emit(events.WarnRemoved, received, true)
	case !warn.Time.IsExpired && !wasActive:
		d.emit(events.WarnIssued, received, true)
	}
	d.emit(events.WarnUpdated, received, true)
}

func (d *Director) handlePackage(r *codec.Reader) {
	warns, err := DecodePackage(r)
	if err != nil {
		d.logger.Error("malformed warn package", zap.Error(err))
		return
	}
	d.mutex.Lock()
	for _, warn := range warns {
		if warn.Time.IsExpired {
			d.removed[warn.ID] = warn
		} else {
			d.active[warn.ID] = warn
		}
	}
	d.downloaded = true
	d.mutex.Unlock()
	d.logger.Info("downloaded warns", zap.Int("warn_count", len(warns)))
	d.events.Emit(events.Event{Kind: events.Downloaded, Remote: true})
}
