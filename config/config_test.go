package config

import (
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const edgeFile = `
server:
  address: 10.0.0.5
  port: 7000
identity:
  name: eu-1
  alias: EU 1
  port: 7777
tables:
  server: 4
punishments:
  warns:
    active-collection: 2
`

func TestCentral(t *testing.T) {
	cmd := &cobra.Command{Use: "central"}
	v := New()
	RegisterCentralFlags(cmd, v)
	require.NoError(t, cmd.ParseFlags([]string{"--bind-port", "9999", "--storage-path", "/var/lib/central"}))
	c, err := CentralFromViper(v)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", c.Listen.BindAddress())
	require.Equal(t, 9999, c.Listen.BindPort())
	require.Equal(t, "/var/lib/central", c.StoragePath)
	require.Equal(t, 30*time.Second, c.Server().RequestTTL)
	require.Equal(t, 5, c.Server().BroadcastWorkers)
}

func TestEdge(t *testing.T) {
	dir, err := ioutil.TempDir("", "config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "edge.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(edgeFile), 0600))

	load := func(t *testing.T, args ...string) (Edge, error) {
		cmd := &cobra.Command{Use: "edge"}
		v := New()
		RegisterFileFlag(cmd, v)
		RegisterEdgeFlags(cmd, v)
		require.NoError(t, cmd.ParseFlags(append([]string{"--config", path}, args...)))
		require.NoError(t, ReadFile(v))
		return EdgeFromViper(v)
	}

	t.Run("file", func(t *testing.T) {
		e, err := load(t)
		require.NoError(t, err)
		require.True(t, e.Server.Address.Equal(net.ParseIP("10.0.0.5")))
		require.Equal(t, 7000, e.Server.Port)
		require.Equal(t, "eu-1", e.Name)
		require.Equal(t, "EU 1", e.Alias)
		require.Equal(t, uint16(7777), e.IdentityPort)
		require.Equal(t, 4, e.Tables.ServerTable)
		require.Equal(t, -1, e.Tables.GlobalTable)
		require.True(t, e.Punishments.Enabled)
		require.Equal(t, uint8(2), e.Punishments.Warns.ActiveCollection)
		require.Equal(t, uint8(0), e.Punishments.Warns.ExpiredCollection)
		require.Equal(t, uint8(1), e.Punishments.IDTable)
		require.True(t, e.Node().AllowReconnection)
		require.Equal(t, 5, e.Node().MaxConnectAttempts)
	})
	t.Run("flags win over the file", func(t *testing.T) {
		e, err := load(t, "--name", "eu-2", "--server-port", "7100")
		require.NoError(t, err)
		require.Equal(t, "eu-2", e.Name)
		require.Equal(t, 7100, e.Node().Port)
	})
	t.Run("environment wins over the file", func(t *testing.T) {
		os.Setenv("CENTRALAPI_IDENTITY_ALIAS", "from env")
		defer os.Unsetenv("CENTRALAPI_IDENTITY_ALIAS")
		e, err := load(t)
		require.NoError(t, err)
		require.Equal(t, "from env", e.Alias)
	})
	t.Run("table out of range", func(t *testing.T) {
		_, err := load(t, "--global-table", "300")
		require.Error(t, err)
	})
	t.Run("warn collections must differ", func(t *testing.T) {
		_, err := load(t, "--warns-active-collection", "0")
		require.Error(t, err)
	})
	t.Run("warn collection overlaps punishment ids", func(t *testing.T) {
		_, err := load(t, "--punishments-id-table", "0", "--warns-table", "0")
		require.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		v := New()
		v.Set("config", filepath.Join(dir, "missing.yaml"))
		require.Error(t, ReadFile(v))
	})
}
