package config

import (
	"strings"
	"time"

	"github.com/marchellc/CentralAPI/central"
	"github.com/marchellc/CentralAPI/database"
	"github.com/marchellc/CentralAPI/edge"
	"github.com/marchellc/CentralAPI/network"
	"github.com/marchellc/CentralAPI/punishments"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	EnvPrefix   = "CENTRALAPI"
	DefaultPort = 8888
)

// New returns a viper instance reading CENTRALAPI_ prefixed environment
// variables, with dots and dashes of keys replaced by underscores.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// RegisterFileFlag adds --config to cmd.
func RegisterFileFlag(cmd *cobra.Command, v *viper.Viper) {
	cmd.PersistentFlags().StringP("config", "c", "", "Read configuration from this file")
	v.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
}

// ReadFile merges the file given by --config, if any.
func ReadFile(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read configuration file %q", path)
	}
	return nil
}

func bindDuration(cmd *cobra.Command, v *viper.Viper, flag, key string, value time.Duration, usage string) {
	cmd.Flags().Duration(flag, value, usage)
	v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

func bindInt(cmd *cobra.Command, v *viper.Viper, flag, key string, value int, usage string) {
	cmd.Flags().Int(flag, value, usage)
	v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

func bindString(cmd *cobra.Command, v *viper.Viper, flag, key string, value string, usage string) {
	cmd.Flags().String(flag, value, usage)
	v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

func bindBool(cmd *cobra.Command, v *viper.Viper, flag, key string, value bool, usage string) {
	cmd.Flags().Bool(flag, value, usage)
	v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

func id(v *viper.Viper, key string) (uint8, error) {
	value := v.GetInt(key)
	if value < 0 || value > 255 {
		return 0, errors.Errorf("%s must be between 0 and 255, got %d", key, value)
	}
	return uint8(value), nil
}

// Central is the configuration of the central node.
type Central struct {
	Listen            network.Configuration
	StoragePath       string
	RequestTTL        time.Duration
	HeartbeatInterval time.Duration
	BroadcastWorkers  int
	BufferSize        int
	HTTPPort          int
}

func RegisterCentralFlags(cmd *cobra.Command, v *viper.Viper) {
	network.RegisterFlagsForService(cmd, v, "listen", DefaultPort)
	bindString(cmd, v, "storage-path", "storage.path", "data", "Store tables and warns under this directory")
	bindDuration(cmd, v, "request-ttl", "rpc.request-ttl", 30*time.Second, "Forget requests left without reply after this long")
	bindDuration(cmd, v, "heartbeat-interval", "rpc.heartbeat-interval", 10*time.Second, "Send heartbeats at this interval")
	bindInt(cmd, v, "buffer-size", "rpc.buffer-size", 0, "Buffer this many inbound frames per connection")
	bindInt(cmd, v, "broadcast-workers", "broadcast.workers", 5, "Relay mutations with this many workers")
	bindInt(cmd, v, "http-port", "http.port", 9000, "Serve /health and /metrics on this port")
}

func CentralFromViper(v *viper.Viper) (Central, error) {
	listen, err := network.ConfigurationFromFlags(v, "listen")
	if err != nil {
		return Central{}, err
	}
	c := Central{
		Listen:            listen,
		StoragePath:       v.GetString("storage.path"),
		RequestTTL:        v.GetDuration("rpc.request-ttl"),
		HeartbeatInterval: v.GetDuration("rpc.heartbeat-interval"),
		BufferSize:        v.GetInt("rpc.buffer-size"),
		BroadcastWorkers:  v.GetInt("broadcast.workers"),
		HTTPPort:          v.GetInt("http.port"),
	}
	if c.StoragePath == "" {
		return c, errors.New("storage.path must not be empty")
	}
	return c, nil
}

func (c Central) Server() central.Config {
	return central.Config{
		RequestTTL:        c.RequestTTL,
		HeartbeatInterval: c.HeartbeatInterval,
		BroadcastWorkers:  c.BroadcastWorkers,
		BufferSize:        c.BufferSize,
	}
}

// Warns locates the warn index of the replicated store.
type Warns struct {
	Table             uint8
	ActiveCollection  uint8
	ExpiredCollection uint8
}

type Punishments struct {
	Enabled bool
	IDTable uint8
	Warns   Warns
}

// Edge is the configuration of an edge node.
type Edge struct {
	Server             network.Endpoint
	Name               string
	Alias              string
	IdentityPort       uint16
	BufferSize         int
	HeartbeatInterval  time.Duration
	RequestTTL         time.Duration
	DialTimeout        time.Duration
	MaxConnectAttempts int
	AllowReconnection  bool
	Tables             database.Options
	Punishments        Punishments
	HTTPPort           int
}

func RegisterEdgeFlags(cmd *cobra.Command, v *viper.Viper) {
	network.RegisterFlagsForEndpoint(cmd, v, "server", DefaultPort)
	bindString(cmd, v, "name", "identity.name", "", "Name sent to the central node")
	bindString(cmd, v, "alias", "identity.alias", "", "Alias sent to the central node")
	bindInt(cmd, v, "identity-port", "identity.port", 0, "Port sent to the central node")
	bindInt(cmd, v, "buffer-size", "connection.buffer-size", 0, "Buffer this many inbound frames")
	bindDuration(cmd, v, "heartbeat-interval", "connection.heartbeat-interval", 10*time.Second, "Send heartbeats at this interval")
	bindDuration(cmd, v, "request-ttl", "connection.request-ttl", 30*time.Second, "Forget requests left without reply after this long")
	bindDuration(cmd, v, "dial-timeout", "connection.dial-timeout", 5*time.Second, "Give up a connection attempt after this long")
	bindInt(cmd, v, "max-connect-attempts", "connection.max-connect-attempts", 5, "Connection attempts before giving up, 0 for unlimited")
	bindBool(cmd, v, "allow-reconnection", "connection.allow-reconnection", true, "Reconnect when the connection is lost")
	bindInt(cmd, v, "server-table", "tables.server", -1, "Table owned by this node, negative to disable")
	bindInt(cmd, v, "global-table", "tables.global", -1, "Table shared by every node, negative to disable")
	bindBool(cmd, v, "punishments", "punishments.enabled", true, "Enable the warn workflow")
	bindInt(cmd, v, "punishments-id-table", "punishments.id-table", 1, "Table holding punishment id counters")
	bindInt(cmd, v, "warns-table", "punishments.warns.table", 0, "Table indexing warns")
	bindInt(cmd, v, "warns-active-collection", "punishments.warns.active-collection", 1, "Collection of active warns")
	bindInt(cmd, v, "warns-expired-collection", "punishments.warns.expired-collection", 0, "Collection of expired warns")
	bindInt(cmd, v, "http-port", "http.port", 9001, "Serve /health and /metrics on this port, 0 to disable")
}

func EdgeFromViper(v *viper.Viper) (Edge, error) {
	server, err := network.EndpointFromFlags(v, "server")
	if err != nil {
		return Edge{}, err
	}
	e := Edge{
		Server:             server,
		Name:               v.GetString("identity.name"),
		Alias:              v.GetString("identity.alias"),
		BufferSize:         v.GetInt("connection.buffer-size"),
		HeartbeatInterval:  v.GetDuration("connection.heartbeat-interval"),
		RequestTTL:         v.GetDuration("connection.request-ttl"),
		DialTimeout:        v.GetDuration("connection.dial-timeout"),
		MaxConnectAttempts: v.GetInt("connection.max-connect-attempts"),
		AllowReconnection:  v.GetBool("connection.allow-reconnection"),
		Tables: database.Options{
			ServerTable: v.GetInt("tables.server"),
			GlobalTable: v.GetInt("tables.global"),
		},
		HTTPPort: v.GetInt("http.port"),
	}
	port := v.GetInt("identity.port")
	if port < 0 || port > 65535 {
		return e, errors.Errorf("identity.port must be between 0 and 65535, got %d", port)
	}
	e.IdentityPort = uint16(port)
	for _, key := range []string{"tables.server", "tables.global"} {
		if v.GetInt(key) > 255 {
			return e, errors.Errorf("%s must be at most 255, got %d", key, v.GetInt(key))
		}
	}
	e.Punishments.Enabled = v.GetBool("punishments.enabled")
	if e.Punishments.IDTable, err = id(v, "punishments.id-table"); err != nil {
		return e, err
	}
	if e.Punishments.Warns.Table, err = id(v, "punishments.warns.table"); err != nil {
		return e, err
	}
	if e.Punishments.Warns.ActiveCollection, err = id(v, "punishments.warns.active-collection"); err != nil {
		return e, err
	}
	if e.Punishments.Warns.ExpiredCollection, err = id(v, "punishments.warns.expired-collection"); err != nil {
		return e, err
	}
	if e.Punishments.Enabled && e.Punishments.Warns.ActiveCollection == e.Punishments.Warns.ExpiredCollection {
		return e, errors.New("active and expired warn collections must differ")
	}
	if e.Punishments.Enabled && e.Punishments.IDTable == e.Punishments.Warns.Table {
		for _, c := range []uint8{e.Punishments.Warns.ActiveCollection, e.Punishments.Warns.ExpiredCollection} {
			if c == punishments.IDCollection {
				return e, errors.Errorf("collection %d of table %d holds punishment ids", c, e.Punishments.IDTable)
			}
		}
	}
	return e, nil
}

func (e Edge) Node() edge.Config {
	return edge.Config{
		Address:            e.Server.Address,
		Port:               e.Server.Port,
		Name:               e.Name,
		Alias:              e.Alias,
		IdentityPort:       e.IdentityPort,
		BufferSize:         e.BufferSize,
		HeartbeatInterval:  e.HeartbeatInterval,
		RequestTTL:         e.RequestTTL,
		DialTimeout:        e.DialTimeout,
		MaxConnectAttempts: e.MaxConnectAttempts,
		AllowReconnection:  e.AllowReconnection,
	}
}
