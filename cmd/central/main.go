package main

import (
	"path/filepath"

	"github.com/marchellc/CentralAPI/central"
	"github.com/marchellc/CentralAPI/cli"
	"github.com/marchellc/CentralAPI/config"
	"github.com/marchellc/CentralAPI/services/warns"
	"github.com/marchellc/CentralAPI/services/warns/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	v := config.New()
	root := &cobra.Command{
		Use:   "central",
		Short: "Serve the replicated store to edge nodes",
		Run: func(cmd *cobra.Command, args []string) {
			if err := config.ReadFile(v); err != nil {
				panic(err)
			}
			ctx := cli.Bootstrap(v)
			logger := ctx.Logger
			defer logger.Sync()
			settings, err := config.CentralFromViper(v)
			if err != nil {
				logger.Fatal("invalid configuration", zap.Error(err))
			}

			storage, err := central.NewFileStorage(settings.StoragePath, logger)
			if err != nil {
				logger.Fatal("failed to open storage", zap.String("storage_path", settings.StoragePath), zap.Error(err))
			}
			director := central.NewDirector(storage, logger)
			if err := director.Load(); err != nil {
				logger.Fatal("failed to load tables", zap.Error(err))
			}
			warnStore, err := store.New(store.Options{Path: filepath.Join(settings.StoragePath, "warns.db")})
			if err != nil {
				logger.Fatal("failed to open warn store", zap.Error(err))
			}
			defer warnStore.Close()

			server := central.NewServer(director, logger, settings.Server())
			warnService := warns.NewService(warnStore, server, logger.WithOptions(zap.Fields(zap.String("service_name", "warns"))))
			server.Use(func(conn *central.Connection) {
				warnService.Attach(conn.ID, conn.Channel)
			})
			if err := server.Listen(settings.Listen.BindAddress(), settings.Listen.BindPort()); err != nil {
				logger.Fatal("failed to listen", zap.Error(err))
			}
			logger.Info(settings.Listen.Describe("central"))
			if settings.HTTPPort > 0 {
				go cli.ServeHTTPHealth(logger, settings.HTTPPort, cli.HealthFunc(func() string { return "ok" }))
			}
			ctx.WaitForSignal()
			server.Close()
			logger.Info("central node stopped")
		},
	}
	config.RegisterFileFlag(root, v)
	cli.AddLoggingFlags(root, v)
	config.RegisterCentralFlags(root, v)
	root.Execute()
}
