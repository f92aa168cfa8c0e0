package warns

import (
	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/punishments"
	"github.com/marchellc/CentralAPI/rpc"
	"go.uber.org/zap"
)

// Store keeps warns on the central node.
type Store interface {
	Create(warn *punishments.Warn) (uint64, error)
	Put(warn *punishments.Warn) error
	List() ([]*punishments.Warn, error)
}

// Broadcaster relays an operation to every edge but origin.
type Broadcaster interface {
	Broadcast(origin, operation string, write func(*codec.Writer))
}

// Service stores the warns sent by edges, confirms them to their sender and
// relays them to the other edges.
type Service struct {
	store       Store
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewService(store Store, broadcaster Broadcaster, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Attach serves the warn operations on the channel of the edge called origin.
func (s *Service) Attach(origin string, channel *rpc.Channel) {
	logger := s.logger.WithOptions(zap.Fields(zap.String("connection_id", origin)))
	channel.Handle(OpIssue, func(r *codec.Reader, w *codec.Writer) {
		m, err := DecodeIssue(r)
		if err != nil {
			logger.Warn("malformed warn issue", zap.Error(err))
			return
		}
		warn, err := punishments.UnmarshalWarn(m.Record)
		if err != nil {
			logger.Warn("malformed warn issue", zap.Int32("transaction_id", m.Transaction), zap.Error(err))
			return
		}
		id, err := s.store.Create(warn)
		if err != nil {
			logger.Error("failed to store warn", zap.Int32("transaction_id", m.Transaction), zap.Error(err))
			return
		}
		logger.Info("warn issued", zap.Uint64("warn_id", id), zap.String("target", warn.Target.ID))
		s.confirm(logger, channel, Confirm{Transaction: m.Transaction, ID: id})
		s.relay(origin, warn)
	})
	channel.Handle(OpUpdate, func(r *codec.Reader, w *codec.Writer) {
		m, err := DecodeUpdate(r)
		if err != nil {
			logger.Warn("malformed warn update", zap.Error(err))
			return
		}
		warn, err := punishments.UnmarshalWarn(m.Record)
		if err != nil {
			logger.Warn("malformed warn update", zap.Uint64("warn_id", m.ID), zap.Error(err))
			return
		}
		warn.ID = m.ID
		if err := s.store.Put(warn); err != nil {
			logger.Error("failed to update warn", zap.Uint64("warn_id", m.ID), zap.Error(err))
			return
		}
		if m.Transaction != 0 {
			s.confirm(logger, channel, Confirm{IsRemoval: warn.Time.IsExpired, Transaction: m.Transaction, ID: m.ID})
		}
		s.relay(origin, warn)
	})
	channel.Handle(OpDownload, func(r *codec.Reader, w *codec.Writer) {
		warns, err := s.store.List()
		if err != nil {
			logger.Error("failed to list warns", zap.Error(err))
		}
		EncodePackage(w, warns)
	})
}

func (s *Service) confirm(logger *zap.Logger, channel *rpc.Channel, m Confirm) {
	if err := channel.Request(OpConfirm, m.Encode, nil); err != nil {
		logger.Warn("failed to confirm warn", zap.Int32("transaction_id", m.Transaction), zap.Error(err))
	}
}

func (s *Service) relay(origin string, warn *punishments.Warn) {
	s.broadcaster.Broadcast(origin, OpUpdated, Updated{ID: warn.ID, Record: warn.Marshal()}.Encode)
}
