package store

import (
	"encoding/binary"

	"github.com/boltdb/bolt"
	"github.com/marchellc/CentralAPI/punishments"
)

var warnsBucket = []byte("warns")

type Options struct {
	// Path is the file path to the BoltDB to use
	Path string

	// BoltOptions contains any specific BoltDB options you might
	// want to specify [e.g. open timeout]
	BoltOptions *bolt.Options

	// NoSync causes the database to skip fsync calls after each
	// write. This is unsafe, so it should be used with caution.
	NoSync bool
}

// BoltStore keeps every warn, keyed by its big-endian id. Ids come from the
// bucket sequence and are never reused.
type BoltStore struct {
	conn    *bolt.DB
	options Options
}

func uint64ToBytes(u uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u)
	return buf
}

func New(options Options) (*BoltStore, error) {
	handle, err := bolt.Open(options.Path, dbFileMode, options.BoltOptions)
	if err != nil {
		return nil, err
	}
	handle.NoSync = options.NoSync
	store := &BoltStore{
		conn:    handle,
		options: options,
	}
	return store, store.initStore()
}

// Close is used to gracefully close the DB connection.
func (b *BoltStore) Close() error {
	return b.conn.Close()
}

func (b *BoltStore) initStore() error {
	tx, err := b.conn.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.CreateBucketIfNotExists(warnsBucket)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Create assigns the next id to warn and saves it.
func (b *BoltStore) Create(warn *punishments.Warn) (uint64, error) {
	tx, err := b.conn.Begin(true)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	bucket := tx.Bucket(warnsBucket)
	if bucket == nil {
		return 0, ErrBucketNotFound
	}
	id, err := bucket.NextSequence()
	if err != nil {
		return 0, err
	}
	warn.ID = id
	err = bucket.Put(uint64ToBytes(id), warn.Marshal())
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// Put replaces an existing warn.
func (b *BoltStore) Put(warn *punishments.Warn) error {
	tx, err := b.conn.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	bucket := tx.Bucket(warnsBucket)
	if bucket == nil {
		return ErrBucketNotFound
	}
	key := uint64ToBytes(warn.ID)
	if bucket.Get(key) == nil {
		return ErrWarnNotFound
	}
	err = bucket.Put(key, warn.Marshal())
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (b *BoltStore) Get(id uint64) (*punishments.Warn, error) {
	tx, err := b.conn.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	bucket := tx.Bucket(warnsBucket)
	if bucket == nil {
		return nil, ErrBucketNotFound
	}
	value := bucket.Get(uint64ToBytes(id))
	if value == nil {
		return nil, ErrWarnNotFound
	}
	return punishments.UnmarshalWarn(value)
}

// List returns every warn ordered by id. Undecodable records are skipped.
func (b *BoltStore) List() ([]*punishments.Warn, error) {
	tx, err := b.conn.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	bucket := tx.Bucket(warnsBucket)
	if bucket == nil {
		return nil, ErrBucketNotFound
	}
	out := []*punishments.Warn{}
	cursor := bucket.Cursor()
	for itemKey, itemValue := cursor.First(); itemKey != nil; itemKey, itemValue = cursor.Next() {
		warn, err := punishments.UnmarshalWarn(itemValue)
		if err == nil {
			out = append(out, warn)
		}
	}
	return out, nil
}
