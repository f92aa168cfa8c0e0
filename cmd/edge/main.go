package main

import (
	"context"

	"github.com/marchellc/CentralAPI/cli"
	"github.com/marchellc/CentralAPI/config"
	"github.com/marchellc/CentralAPI/database"
	"github.com/marchellc/CentralAPI/edge"
	"github.com/marchellc/CentralAPI/events"
	"github.com/marchellc/CentralAPI/punishments"
	"github.com/marchellc/CentralAPI/services/warns"
	"github.com/marchellc/CentralAPI/wrappers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// indexWarns mirrors the warns confirmed to this node into the store. It
// runs on the tick: the store is downloaded there and warn events are
// emitted there.
func indexWarns(director *database.Director, warnDirector *warns.Director, settings config.Punishments, logger *zap.Logger) {
	var index *punishments.Index
	director.Events().Subscribe(func(events.Event) {
		var err error
		index, err = punishments.OpenIndex(director, settings.Warns.Table, settings.Warns.ActiveCollection, settings.Warns.ExpiredCollection)
		if err != nil {
			logger.Error("failed to open warn index", zap.Error(err))
		}
	}, events.Downloaded)
	director.Events().Subscribe(func(events.Event) {
		index = nil
	}, events.TornDown)
	warnDirector.Events().Subscribe(func(ev events.Event) {
		warn := ev.Value.(*punishments.Warn)
		logger.Info("warn changed", zap.Stringer("event", ev.Kind), zap.Uint64("warn_id", warn.ID), zap.Bool("remote", ev.Remote))
		if ev.Remote || index == nil {
			return
		}
		if err := index.Track(warn); err != nil {
			logger.Warn("failed to index warn", zap.Uint64("warn_id", warn.ID), zap.Error(err))
		}
	}, events.WarnIssued, events.WarnRemoved)
}

func main() {
	v := config.New()
	root := &cobra.Command{
		Use:   "edge",
		Short: "Mirror the replicated store of a central node",
		Run: func(cmd *cobra.Command, args []string) {
			if err := config.ReadFile(v); err != nil {
				panic(err)
			}
			ctx := cli.Bootstrap(v)
			logger := ctx.Logger
			defer logger.Sync()
			settings, err := config.EdgeFromViper(v)
			if err != nil {
				logger.Fatal("invalid configuration", zap.Error(err))
			}

			registry := wrappers.NewRegistry()
			punishments.Register(registry)
			director := database.NewDirector(registry, logger, settings.Tables)
			node := edge.New(director, logger, settings.Node())
			if settings.Punishments.Enabled {
				p := settings.Punishments
				director.RequireCollection(p.IDTable, punishments.IDCollection, wrappers.TagUint64)
				director.RequireCollection(p.Warns.Table, p.Warns.ActiveCollection, punishments.TagWarn)
				director.RequireCollection(p.Warns.Table, p.Warns.ExpiredCollection, punishments.TagWarn)
				warnDirector := warns.NewDirector(logger.WithOptions(zap.Fields(zap.String("service_name", "warns"))), warns.Config{
					Server:         settings.Alias,
					TransactionTTL: settings.RequestTTL,
				})
				defer warnDirector.Close()
				indexWarns(director, warnDirector, p, logger)
				node.Use(warnDirector)
			}
			if settings.HTTPPort > 0 {
				go cli.ServeHTTPHealth(logger, settings.HTTPPort, cli.HealthFunc(func() string {
					connected := false
					if err := node.Do(func(*database.Director) { connected = node.IsConnected() }); err != nil || !connected {
						return "critical"
					}
					return "ok"
				}))
			}

			runCtx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				done <- node.Run(runCtx)
			}()
			go func() {
				ctx.WaitForSignal()
				cancel()
			}()
			if err := <-done; err != nil && err != context.Canceled {
				logger.Error("edge node stopped", zap.Error(err))
			}
			node.Close()
		},
	}
	config.RegisterFileFlag(root, v)
	cli.AddLoggingFlags(root, v)
	config.RegisterEdgeFlags(root, v)
	root.Execute()
}
