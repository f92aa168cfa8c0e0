package network

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Configuration is where a listener binds.
type Configuration struct {
	bindAddress string
	bindPort    int
}

func (c Configuration) BindAddress() string {
	return c.bindAddress
}
func (c Configuration) BindPort() int {
	return c.bindPort
}

func (c Configuration) Describe(name string) string {
	return fmt.Sprintf("INFO: service %s is running on %s:%d", name, c.bindAddress, c.bindPort)
}

// Endpoint is a remote node to dial.
type Endpoint struct {
	Address net.IP
	Port    int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Address.String(), fmt.Sprint(e.Port))
}

func randomFreePort(host string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:0", host))
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil

}

func bindAddressKey(section string) string {
	return fmt.Sprintf("%s.bind-address", section)
}
func bindPortKey(section string) string {
	return fmt.Sprintf("%s.bind-port", section)
}

// ConfigurationFromFlags reads the listener of section. A zero port picks a
// free one.
func ConfigurationFromFlags(v *viper.Viper, section string) (Configuration, error) {
	config := Configuration{
		bindAddress: v.GetString(bindAddressKey(section)),
		bindPort:    v.GetInt(bindPortKey(section)),
	}
	if net.ParseIP(config.bindAddress) == nil {
		return config, fmt.Errorf("invalid bind address specified for %s: %q", section, config.bindAddress)
	}
	if config.bindPort == 0 {
		randomPort, err := randomFreePort(config.bindAddress)
		if err != nil {
			return config, errors.Wrap(err, "failed to find a free port")
		}
		config.bindPort = randomPort
	}
	if config.bindPort < 1 || config.bindPort > 65535 {
		return config, fmt.Errorf("invalid bind port specified for %s: %d", section, config.bindPort)
	}
	return config, nil
}

// RegisterFlagsForService binds --bind-address and --bind-port to the
// section.bind-address and section.bind-port keys.
func RegisterFlagsForService(cmd *cobra.Command, config *viper.Viper, section string, defaultPort int) {
	cmd.Flags().StringP("bind-address", "", "0.0.0.0", fmt.Sprintf("Start %s listener on this address", section))
	config.BindPFlag(bindAddressKey(section), cmd.Flags().Lookup("bind-address"))

	cmd.Flags().IntP("bind-port", "", defaultPort, fmt.Sprintf("Start %s listener on this port", section))
	config.BindPFlag(bindPortKey(section), cmd.Flags().Lookup("bind-port"))
}

// RegisterFlagsForEndpoint binds --server-address and --server-port to the
// section.address and section.port keys.
func RegisterFlagsForEndpoint(cmd *cobra.Command, config *viper.Viper, section string, defaultPort int) {
	cmd.Flags().StringP("server-address", "", "127.0.0.1", "Central node address")
	config.BindPFlag(fmt.Sprintf("%s.address", section), cmd.Flags().Lookup("server-address"))

	cmd.Flags().IntP("server-port", "", defaultPort, "Central node port")
	config.BindPFlag(fmt.Sprintf("%s.port", section), cmd.Flags().Lookup("server-port"))
}

// EndpointFromFlags reads the endpoint of section. Host names are resolved
// once.
func EndpointFromFlags(v *viper.Viper, section string) (Endpoint, error) {
	host := v.GetString(fmt.Sprintf("%s.address", section))
	endpoint := Endpoint{
		Address: net.ParseIP(host),
		Port:    v.GetInt(fmt.Sprintf("%s.port", section)),
	}
	if endpoint.Address == nil {
		addrs, err := net.LookupIP(host)
		if err != nil || len(addrs) == 0 {
			return endpoint, fmt.Errorf("invalid address specified for %s: %q", section, host)
		}
		endpoint.Address = addrs[0]
	}
	if endpoint.Port < 1 || endpoint.Port > 65535 {
		return endpoint, fmt.Errorf("invalid port specified for %s: %d", section, endpoint.Port)
	}
	return endpoint, nil
}
