package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/marchellc/CentralAPI/config"
	"github.com/marchellc/CentralAPI/database"
	"github.com/marchellc/CentralAPI/edge"
	"github.com/marchellc/CentralAPI/events"
	"github.com/marchellc/CentralAPI/format"
	"github.com/marchellc/CentralAPI/punishments"
	"github.com/marchellc/CentralAPI/services/warns"
	"github.com/marchellc/CentralAPI/wrappers"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type session struct {
	node     *edge.Node
	director *database.Director
	cancel   context.CancelFunc
}

func (s *session) Close() {
	s.cancel()
	s.node.Close()
}

// connect joins the central node as an edge and waits for the store to be
// downloaded.
func connect(ctx context.Context, v *viper.Viper, services ...edge.Service) (*session, error) {
	addr, err := net.ResolveTCPAddr("tcp", v.GetString("endpoint"))
	if err != nil {
		return nil, err
	}
	logger := zap.NewNop()
	if v.GetBool("verbose") {
		logger, _ = zap.NewDevelopment()
	}
	registry := wrappers.NewRegistry()
	punishments.Register(registry)
	director := database.NewDirector(registry, logger, database.Options{ServerTable: -1, GlobalTable: -1})
	node := edge.New(director, logger, edge.Config{
		Address:            addr.IP,
		Port:               addr.Port,
		Name:               "centralctl",
		Alias:              "centralctl",
		DialTimeout:        v.GetDuration("timeout"),
		MaxConnectAttempts: 1,
	})
	for _, svc := range services {
		node.Use(svc)
	}
	downloaded := make(chan struct{}, 1)
	director.Events().Subscribe(func(events.Event) {
		select {
		case downloaded <- struct{}{}:
		default:
		}
	}, events.Downloaded)
	ctx, cancel := context.WithCancel(ctx)
	failed := make(chan error, 1)
	go func() {
		failed <- node.Run(ctx)
	}()
	s := &session{node: node, director: director, cancel: cancel}
	select {
	case <-downloaded:
		return s, nil
	case err := <-failed:
		s.Close()
		return nil, err
	case <-time.After(v.GetDuration("timeout")):
		s.Close()
		return nil, context.DeadlineExceeded
	}
}

type tableView struct {
	ID          uint8
	Collections int
}

type collectionView struct {
	ID    uint8
	Tag   string
	Items int
}

type itemView struct {
	Name  string
	Value string
}

func Tables(ctx context.Context, v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:     "tables",
		Aliases: []string{"ls"},
		Short:   "Print every table, collection and item",
		Run: func(cmd *cobra.Command, args []string) {
			s, err := connect(ctx, v)
			if err != nil {
				log.Fatalf("FATAL: failed to download store: %v", err)
			}
			defer s.Close()
			tables := format.ParseTemplate(format.TableTemplate)
			collections := format.ParseTemplate(format.CollectionTemplate)
			items := format.ParseTemplate(format.ItemTemplate)
			s.node.Do(func(director *database.Director) {
				for _, table := range director.Tables() {
					tables.Execute(os.Stdout, tableView{ID: table.ID(), Collections: table.Size()})
					for _, collection := range table.Collections() {
						collections.Execute(os.Stdout, collectionView{ID: collection.ID(), Tag: collection.Tag(), Items: collection.Size()})
						for _, item := range collection.Items() {
							view := itemView{Name: item.Name()}
							if value, err := item.Value(); err != nil {
								view.Value = "<" + err.Error() + ">"
							} else if w, ok := director.Registry().Lookup(collection.Tag()); ok {
								view.Value = w.Display(value)
							}
							items.Execute(os.Stdout, view)
						}
					}
				}
			})
		},
	}
	return c
}

func Warns(ctx context.Context, v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:     "warns",
		Aliases: []string{"warn"},
		Short:   "Print active warns",
		Run: func(cmd *cobra.Command, args []string) {
			director := warns.NewDirector(zap.NewNop(), warns.Config{Server: "centralctl"})
			defer director.Close()
			received := make(chan struct{}, 1)
			director.Events().Subscribe(func(events.Event) {
				select {
				case received <- struct{}{}:
				default:
				}
			}, events.Downloaded)
			s, err := connect(ctx, v, director)
			if err != nil {
				log.Fatalf("FATAL: failed to download store: %v", err)
			}
			defer s.Close()
			select {
			case <-received:
			case <-time.After(v.GetDuration("timeout")):
				log.Fatalf("FATAL: warns were not downloaded")
			}
			set := director.Active()
			if all, _ := cmd.Flags().GetBool("all"); all {
				set = append(set, director.Removed()...)
			}
			tpl := format.ParseTemplate(format.WarnTemplate)
			for _, warn := range set {
				if target, _ := cmd.Flags().GetString("target"); target != "" && warn.Target.ID != target {
					continue
				}
				tpl.Execute(os.Stdout, warn)
			}
		},
	}
	c.Flags().Bool("all", false, "Include removed warns")
	c.Flags().String("target", "", "Only print warns of this player id")
	return c
}

func NextID(ctx context.Context, v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "next-id [kind]",
		Short: "Allocate the next punishment id of a kind",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			table, _ := cmd.Flags().GetUint8("table")
			s, err := connect(ctx, v)
			if err != nil {
				log.Fatalf("FATAL: failed to download store: %v", err)
			}
			defer s.Close()
			var (
				id      uint64
				nextErr error
			)
			err = s.node.Do(func(director *database.Director) {
				ids, err := punishments.OpenIDs(director, table)
				if err != nil {
					nextErr = err
					return
				}
				id, nextErr = ids.Next(args[0])
			})
			if err == nil {
				err = nextErr
			}
			if err != nil {
				log.Fatalf("FATAL: failed to allocate id: %v", err)
			}
			fmt.Println(id)
		},
	}
	c.Flags().Uint8("table", 1, "Table holding punishment id counters")
	return c
}

func main() {
	ctx := context.Background()
	v := config.New()
	root := &cobra.Command{
		Use: "centralctl",
	}
	root.PersistentFlags().StringP("endpoint", "e", "127.0.0.1:8888", "Central node endpoint")
	v.BindPFlag("endpoint", root.PersistentFlags().Lookup("endpoint"))
	root.PersistentFlags().Duration("timeout", 10*time.Second, "Give up after this long")
	v.BindPFlag("timeout", root.PersistentFlags().Lookup("timeout"))
	root.PersistentFlags().BoolP("verbose", "v", false, "Log the connection")
	v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))
	root.AddCommand(Tables(ctx, v))
	root.AddCommand(Warns(ctx, v))
	root.AddCommand(NextID(ctx, v))
	root.Execute()
}
