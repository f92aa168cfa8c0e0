package edge

import (
	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/database"
	"github.com/marchellc/CentralAPI/rpc"
	"go.uber.org/zap"
)

func (n *Node) register(channel *rpc.Channel) {
	channel.Handle(rpc.OpClientIdentify, n.identify)
	channel.Handle(database.OpAddItem, n.mutation(database.OpAddItem, func(r *codec.Reader) (func(), error) {
		m, err := database.DecodeAddItem(r)
		return func() { n.director.ApplyAddItem(m) }, err
	}))
	channel.Handle(database.OpRemoveItem, n.mutation(database.OpRemoveItem, func(r *codec.Reader) (func(), error) {
		m, err := database.DecodeRemoveItems(r)
		return func() { n.director.ApplyRemoveItems(m) }, err
	}))
	channel.Handle(database.OpAddTable, n.mutation(database.OpAddTable, func(r *codec.Reader) (func(), error) {
		m, err := database.DecodeAddTable(r)
		return func() { n.director.ApplyAddTable(m) }, err
	}))
	channel.Handle(database.OpAddCollection, n.mutation(database.OpAddCollection, func(r *codec.Reader) (func(), error) {
		m, err := database.DecodeAddCollection(r)
		return func() { n.director.ApplyAddCollection(m) }, err
	}))
	channel.Handle(database.OpClearCollection, n.mutation(database.OpClearCollection, func(r *codec.Reader) (func(), error) {
		m, err := database.DecodeClearCollection(r)
		return func() { n.director.ApplyClearCollection(m) }, err
	}))
	channel.Handle(database.OpClearTable, n.mutation(database.OpClearTable, func(r *codec.Reader) (func(), error) {
		m, err := database.DecodeClearTable(r)
		return func() { n.director.ApplyClearTable(m) }, err
	}))
}

func (n *Node) identify(r *codec.Reader, w *codec.Writer) {
	rpc.Identity{
		Port:  n.config.IdentityPort,
		Name:  n.config.Name,
		Alias: n.config.Alias,
	}.Encode(w)
}

// mutation decodes a relayed mutation and applies it. Mutations received
// before the download completed are replayed on top of it.
func (n *Node) mutation(operation string, decode func(r *codec.Reader) (func(), error)) rpc.Handler {
	return func(r *codec.Reader, w *codec.Writer) {
		apply, err := decode(r)
		if err != nil {
			n.logger.Warn("dropping malformed mutation", zap.String("operation", operation), zap.Error(err))
			return
		}
		if !n.director.IsDownloaded() {
			n.backlog = append(n.backlog, apply)
			return
		}
		apply()
	}
}
