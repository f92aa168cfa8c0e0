package central

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/marchellc/CentralAPI/database"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrInvalidItemName = errors.New("invalid item name")
)

const (
	tablesDirectory = "tables"
	typeFile        = "type.txt"
	itemExtension   = ".db"
	dirMode         = 0755
	fileMode        = 0644
)

// Storage persists the authoritative store.
type Storage interface {
	Load() (database.Snapshot, error)
	CreateTable(table uint8) error
	CreateCollection(table, collection uint8, tag string) error
	WriteItem(table, collection uint8, name string, value []byte) error
	DeleteItem(table, collection uint8, name string) error
	ClearCollection(table, collection uint8) error
	DropCollection(table, collection uint8) error
	DropTable(table uint8) error
}

// FileStorage keeps one directory per table, one sub-directory per
// collection holding its type tag in type.txt, and one <name>.db file per
// item holding the encoded value.
type FileStorage struct {
	root   string
	logger *zap.Logger
}

func NewFileStorage(root string, logger *zap.Logger) (*FileStorage, error) {
	s := &FileStorage{root: filepath.Join(root, tablesDirectory), logger: logger}
	if err := os.MkdirAll(s.root, dirMode); err != nil {
		return nil, errors.Wrap(err, "failed to create storage directory")
	}
	return s, nil
}

func (s *FileStorage) Root() string { return s.root }

func (s *FileStorage) tablePath(table uint8) string {
	return filepath.Join(s.root, strconv.Itoa(int(table)))
}

func (s *FileStorage) collectionPath(table, collection uint8) string {
	return filepath.Join(s.tablePath(table), strconv.Itoa(int(collection)))
}

func (s *FileStorage) itemPath(table, collection uint8, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", errors.Wrapf(ErrInvalidItemName, "%q", name)
	}
	return filepath.Join(s.collectionPath(table, collection), name+itemExtension), nil
}

func parseID(name string) (uint8, bool) {
	v, err := strconv.ParseUint(name, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

// Load walks the storage tree. Directories not named after an id are
// skipped.
func (s *FileStorage) Load() (database.Snapshot, error) {
	snapshot := database.Snapshot{}
	tables, err := ioutil.ReadDir(s.root)
	if err != nil {
		return snapshot, errors.Wrap(err, "failed to list tables")
	}
	for _, tableInfo := range tables {
		tableID, ok := parseID(tableInfo.Name())
		if !tableInfo.IsDir() || !ok {
			s.logger.Warn("skipping unknown entry in storage", zap.String("path", tableInfo.Name()))
			continue
		}
		table := database.SnapshotTable{ID: tableID}
		collections, err := ioutil.ReadDir(s.tablePath(tableID))
		if err != nil {
			return snapshot, errors.Wrapf(err, "failed to list collections of table %d", tableID)
		}
		for _, collectionInfo := range collections {
			collectionID, ok := parseID(collectionInfo.Name())
			if !collectionInfo.IsDir() || !ok {
				continue
			}
			collection, err := s.loadCollection(tableID, collectionID)
			if err != nil {
				return snapshot, err
			}
			table.Collections = append(table.Collections, collection)
		}
		snapshot.Tables = append(snapshot.Tables, table)
	}
	snapshot.Sort()
	return snapshot, nil
}

func (s *FileStorage) loadCollection(tableID, collectionID uint8) (database.SnapshotCollection, error) {
	collection := database.SnapshotCollection{ID: collectionID}
	path := s.collectionPath(tableID, collectionID)
	tag, err := ioutil.ReadFile(filepath.Join(path, typeFile))
	if err != nil && !os.IsNotExist(err) {
		return collection, errors.Wrapf(err, "failed to read type of collection %d/%d", tableID, collectionID)
	}
	collection.Tag = strings.TrimSpace(string(tag))
	files, err := ioutil.ReadDir(path)
	if err != nil {
		return collection, errors.Wrapf(err, "failed to list items of collection %d/%d", tableID, collectionID)
	}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != itemExtension {
			continue
		}
		value, err := ioutil.ReadFile(filepath.Join(path, file.Name()))
		if err != nil {
			return collection, errors.Wrapf(err, "failed to read item %s", file.Name())
		}
		collection.Items = append(collection.Items, database.SnapshotItem{
			Name:  strings.TrimSuffix(file.Name(), itemExtension),
			Value: value,
		})
	}
	return collection, nil
}

func (s *FileStorage) CreateTable(table uint8) error {
	return os.MkdirAll(s.tablePath(table), dirMode)
}

func (s *FileStorage) CreateCollection(table, collection uint8, tag string) error {
	path := s.collectionPath(table, collection)
	if err := os.MkdirAll(path, dirMode); err != nil {
		return err
	}
	return ioutil.WriteFile(filepath.Join(path, typeFile), []byte(tag), fileMode)
}

func (s *FileStorage) WriteItem(table, collection uint8, name string, value []byte) error {
	path, err := s.itemPath(table, collection, name)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, value, fileMode)
}

// DeleteItem is best-effort: failures are logged.
func (s *FileStorage) DeleteItem(table, collection uint8, name string) error {
	path, err := s.itemPath(table, collection, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to delete item file", zap.String("path", path), zap.Error(err))
	}
	return nil
}

// ClearCollection deletes every item file and keeps the collection.
func (s *FileStorage) ClearCollection(table, collection uint8) error {
	path := s.collectionPath(table, collection)
	files, err := ioutil.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != itemExtension {
			continue
		}
		if err := os.Remove(filepath.Join(path, file.Name())); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// DropCollection is best-effort: failures are logged.
func (s *FileStorage) DropCollection(table, collection uint8) error {
	s.removeAll(s.collectionPath(table, collection))
	return nil
}

// DropTable is best-effort: failures are logged.
func (s *FileStorage) DropTable(table uint8) error {
	s.removeAll(s.tablePath(table))
	return nil
}

func (s *FileStorage) removeAll(path string) {
	if err := os.RemoveAll(path); err != nil {
		s.logger.Warn("failed to delete directory", zap.String("path", path), zap.Error(err))
	}
}
