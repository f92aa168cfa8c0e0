package central

import (
	"errors"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/marchellc/CentralAPI/rpc"
)

const (
	memdbTable = "connections"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
)

// Connection is one connected edge. It becomes Identified once the edge
// answered ClientIdentify; only identified connections receive broadcasts.
type Connection struct {
	ID            string
	RemoteAddress string
	Transport     string
	Port          uint16
	Name          string
	Alias         string
	Identified    bool
	Channel       *rpc.Channel
}

// Connections indexes connections by id, alias and remote address.
// Connections are immutable once inserted: Identify stores a copy.
type Connections struct {
	db *memdb.MemDB
}

func NewConnections() *Connections {
	db, err := memdb.NewMemDB(&memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			memdbTable: {
				Name: memdbTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name: "id",
						Indexer: &memdb.StringFieldIndex{
							Field: "ID",
						},
						Unique:       true,
						AllowMissing: false,
					},
					"alias": {
						Name: "alias",
						Indexer: &memdb.StringFieldIndex{
							Field: "Alias",
						},
						Unique:       false,
						AllowMissing: true,
					},
					"remote_address": {
						Name:         "remote_address",
						AllowMissing: false,
						Unique:       false,
						Indexer:      &memdb.StringFieldIndex{Field: "RemoteAddress"},
					},
				},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return &Connections{db: db}
}

func (s *Connections) Insert(conn *Connection) error {
	return s.write(func(tx *memdb.Txn) error {
		return tx.Insert(memdbTable, conn)
	})
}

// Identify records what the edge reported about itself.
func (s *Connections) Identify(id string, port uint16, name, alias string) (*Connection, error) {
	var updated *Connection
	err := s.write(func(tx *memdb.Txn) error {
		conn, err := s.first(tx, "id", id)
		if err != nil {
			return err
		}
		next := *conn
		next.Port = port
		next.Name = name
		next.Alias = alias
		next.Identified = true
		updated = &next
		return tx.Insert(memdbTable, updated)
	})
	return updated, err
}

func (s *Connections) Delete(id string) error {
	return s.write(func(tx *memdb.Txn) error {
		conn, err := s.first(tx, "id", id)
		if err != nil {
			return err
		}
		return tx.Delete(memdbTable, conn)
	})
}

func (s *Connections) ByID(id string) (*Connection, error) {
	var conn *Connection
	err := s.read(func(tx *memdb.Txn) error {
		var err error
		conn, err = s.first(tx, "id", id)
		return err
	})
	return conn, err
}

func (s *Connections) ByAlias(alias string) (*Connection, error) {
	var conn *Connection
	err := s.read(func(tx *memdb.Txn) error {
		var err error
		conn, err = s.first(tx, "alias", alias)
		return err
	})
	return conn, err
}

func (s *Connections) ByRemoteAddress(address string) ([]*Connection, error) {
	return s.list("remote_address", address)
}

func (s *Connections) All() ([]*Connection, error) {
	return s.list("id")
}

// Others returns every live connection but the one with the given id,
// identified or not. An edge may download before its identity reply is
// read, so it must receive every mutation committed from then on.
func (s *Connections) Others(id string) ([]*Connection, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	out := make([]*Connection, 0, len(all))
	for _, conn := range all {
		if conn.ID != id {
			out = append(out, conn)
		}
	}
	return out, nil
}

func (s *Connections) list(index string, args ...interface{}) ([]*Connection, error) {
	out := []*Connection{}
	err := s.read(func(tx *memdb.Txn) error {
		iterator, err := tx.Get(memdbTable, index, args...)
		if err != nil {
			return err
		}
		for {
			payload := iterator.Next()
			if payload == nil {
				return nil
			}
			out = append(out, payload.(*Connection))
		}
	})
	return out, err
}

func (s *Connections) read(statement func(tx *memdb.Txn) error) error {
	tx := s.db.Txn(false)
	return s.run(tx, statement)
}
func (s *Connections) write(statement func(tx *memdb.Txn) error) error {
	tx := s.db.Txn(true)
	return s.run(tx, statement)
}
func (s *Connections) run(tx *memdb.Txn, statement func(tx *memdb.Txn) error) error {
	defer tx.Abort()
	err := statement(tx)
	if err != nil {
		return err
	}
	tx.Commit()
	return nil
}

func (s *Connections) first(tx *memdb.Txn, idx, id string) (*Connection, error) {
	data, err := tx.First(memdbTable, idx, id)
	if err != nil || data == nil {
		return nil, ErrConnectionNotFound
	}
	return data.(*Connection), nil
}
