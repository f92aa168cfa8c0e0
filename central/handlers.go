package central

import (
	"strconv"

	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/database"
	"github.com/marchellc/CentralAPI/rpc"
	"go.uber.org/zap"
)

// session serves the store operations of one connection.
type session struct {
	id     string
	server *Server
	logger *zap.Logger
}

func (s *session) register(channel *rpc.Channel) {
	channel.Handle(database.OpAddItem, s.addItem)
	channel.Handle(database.OpRemoveItem, s.removeItem)
	channel.Handle(database.OpAddTable, s.addTable)
	channel.Handle(database.OpAddCollection, s.addCollection)
	channel.Handle(database.OpClearCollection, s.clearCollection)
	channel.Handle(database.OpClearTable, s.clearTable)
	channel.Handle(database.OpDownload, s.download)
	channel.Handle(database.OpEnsureExistence, s.ensureExistence)
	channel.Handle(database.OpGetItem, s.getItem)
}

func (s *session) malformed(operation string, err error) {
	handledRequests.WithLabelValues(operation, "malformed").Inc()
	s.logger.Warn("dropping malformed request", zap.String("operation", operation), zap.Error(err))
}

func (s *session) done(operation string, code uint8) {
	handledRequests.WithLabelValues(operation, strconv.Itoa(int(code))).Inc()
}

func (s *session) addItem(r *codec.Reader, w *codec.Writer) {
	m, err := database.DecodeAddItem(r)
	if err != nil {
		s.malformed(database.OpAddItem, err)
		return
	}
	code, err := s.server.director.AddItem(m)
	s.done(database.OpAddItem, code)
	if err != nil {
		s.logger.Error("failed to add item", zap.Uint8("table_id", m.TableID), zap.Uint8("collection_id", m.CollectionID),
			zap.String("item", m.Name), zap.Error(err))
		database.WriteFailure(w, code, err)
		return
	}
	database.WriteResult(w, code)
	if code == database.ResultOK {
		s.server.Broadcast(s.id, database.OpAddItem, m.Encode)
	}
}

// removeItem has no result. Only the names that existed are relayed.
func (s *session) removeItem(r *codec.Reader, w *codec.Writer) {
	m, err := database.DecodeRemoveItems(r)
	if err != nil {
		s.malformed(database.OpRemoveItem, err)
		return
	}
	removed := s.server.director.RemoveItems(m)
	s.done(database.OpRemoveItem, database.ResultOK)
	if len(removed) == 0 {
		return
	}
	m.Names = removed
	s.server.Broadcast(s.id, database.OpRemoveItem, m.Encode)
}

func (s *session) addTable(r *codec.Reader, w *codec.Writer) {
	m, err := database.DecodeAddTable(r)
	if err != nil {
		s.malformed(database.OpAddTable, err)
		return
	}
	if err := s.server.director.AddTable(m); err != nil {
		s.done(database.OpAddTable, database.AddTableFailed)
		s.logger.Error("failed to add table", zap.Uint8("table_id", m.TableID), zap.Error(err))
		database.WriteFailure(w, database.AddTableFailed, err)
		return
	}
	s.done(database.OpAddTable, database.ResultOK)
	database.WriteResult(w, database.ResultOK)
	s.server.Broadcast(s.id, database.OpAddTable, m.Encode)
}

func (s *session) addCollection(r *codec.Reader, w *codec.Writer) {
	m, err := database.DecodeAddCollection(r)
	if err != nil {
		s.malformed(database.OpAddCollection, err)
		return
	}
	if err := s.server.director.AddCollection(m); err != nil {
		s.done(database.OpAddCollection, database.AddCollectionFailed)
		s.logger.Error("failed to add collection", zap.Uint8("table_id", m.TableID),
			zap.Uint8("collection_id", m.CollectionID), zap.Error(err))
		database.WriteFailure(w, database.AddCollectionFailed, err)
		return
	}
	s.done(database.OpAddCollection, database.ResultOK)
	database.WriteResult(w, database.ResultOK)
	s.server.Broadcast(s.id, database.OpAddCollection, m.Encode)
}

// ensureExistence creates a required collection. Edges learn about it
// through their download, so nothing is relayed.
func (s *session) ensureExistence(r *codec.Reader, w *codec.Writer) {
	m, err := database.DecodeAddCollection(r)
	if err != nil {
		s.malformed(database.OpEnsureExistence, err)
		return
	}
	if err := s.server.director.AddCollection(m); err != nil {
		s.done(database.OpEnsureExistence, database.EnsureFailed)
		s.logger.Error("failed to ensure collection", zap.Uint8("table_id", m.TableID),
			zap.Uint8("collection_id", m.CollectionID), zap.Error(err))
		database.WriteFailure(w, database.EnsureFailed, err)
		return
	}
	s.done(database.OpEnsureExistence, database.ResultOK)
	database.WriteResult(w, database.ResultOK)
}

func (s *session) clearCollection(r *codec.Reader, w *codec.Writer) {
	m, err := database.DecodeClearCollection(r)
	if err != nil {
		s.malformed(database.OpClearCollection, err)
		return
	}
	code, err := s.server.director.ClearCollection(m)
	s.done(database.OpClearCollection, code)
	if err != nil {
		s.logger.Error("failed to clear collection", zap.Uint8("table_id", m.TableID),
			zap.Uint8("collection_id", m.CollectionID), zap.Error(err))
		database.WriteFailure(w, code, err)
		return
	}
	database.WriteResult(w, code)
	if code == database.ResultOK {
		s.server.Broadcast(s.id, database.OpClearCollection, m.Encode)
	}
}

func (s *session) clearTable(r *codec.Reader, w *codec.Writer) {
	m, err := database.DecodeClearTable(r)
	if err != nil {
		s.malformed(database.OpClearTable, err)
		return
	}
	code, err := s.server.director.ClearTable(m)
	s.done(database.OpClearTable, code)
	if err != nil {
		s.logger.Error("failed to clear table", zap.Uint8("table_id", m.TableID), zap.Error(err))
		database.WriteFailure(w, code, err)
		return
	}
	database.WriteResult(w, code)
	if code == database.ResultOK {
		s.server.Broadcast(s.id, database.OpClearTable, m.Encode)
	}
}

func (s *session) download(r *codec.Reader, w *codec.Writer) {
	snapshot := s.server.director.Snapshot()
	if err := snapshot.Encode(w); err != nil {
		handledRequests.WithLabelValues(database.OpDownload, "failed").Inc()
		s.logger.Error("failed to encode store", zap.Error(err))
		return
	}
	s.done(database.OpDownload, database.ResultOK)
	s.logger.Info("store downloaded", zap.Int("table_count", len(snapshot.Tables)))
}

// getItem answers with the stored value. An item added on the way is
// relayed to the others as a plain AddItem.
func (s *session) getItem(r *codec.Reader, w *codec.Writer) {
	m, err := database.DecodeGetItem(r)
	if err != nil {
		s.malformed(database.OpGetItem, err)
		return
	}
	code, value, err := s.server.director.GetItem(m)
	s.done(database.OpGetItem, code)
	if err != nil {
		s.logger.Error("failed to add item", zap.Uint8("table_id", m.TableID), zap.Uint8("collection_id", m.CollectionID),
			zap.String("item", m.Name), zap.Error(err))
		database.WriteFailure(w, code, err)
		return
	}
	database.WriteResult(w, code)
	switch code {
	case database.GetItemFound:
		w.WriteBytes(value)
	case database.GetItemAdded:
		s.server.Broadcast(s.id, database.OpAddItem, database.AddItem{
			TableID:      m.TableID,
			CollectionID: m.CollectionID,
			Name:         m.Name,
			Value:        m.Value,
		}.Encode)
	}
}
