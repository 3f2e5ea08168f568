// Command calculator-server serves calculator.v1.CalculatorService. It
// announces itself to the service broker and reports every handled call to
// the topology registry.
//
//	calculator-server --address 127.0.0.1:5556 --broker-address 127.0.0.1:50051
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/Michael--/modular-runtime/bootstrap"
	"github.com/Michael--/modular-runtime/calculator"
	"github.com/Michael--/modular-runtime/config"
	"github.com/Michael--/modular-runtime/discovery"
	_ "github.com/Michael--/modular-runtime/discovery/broker"
	"github.com/Michael--/modular-runtime/discovery/consul"
	_ "github.com/Michael--/modular-runtime/discovery/static"
	grpccfg "github.com/Michael--/modular-runtime/grpc"
	"github.com/Michael--/modular-runtime/grpc/server"
	"github.com/Michael--/modular-runtime/observability"
	"github.com/Michael--/modular-runtime/topology"
	"github.com/Michael--/modular-runtime/topology/transport"
	"github.com/Michael--/modular-runtime/version"
)

const (
	programName          = "calculator-server"
	defaultListenAddress = "127.0.0.1:5556"
)

// Config is the server's configuration file layout.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
	GRPC                 grpccfg.Config       `yaml:"grpc" mapstructure:"grpc"`
	Discovery            discovery.Config     `yaml:"discovery" mapstructure:"discovery"`
	Consul               consul.Config        `yaml:"consul" mapstructure:"consul"`
	Topology             topology.Config      `yaml:"topology" mapstructure:"topology"`
	Observability        observability.Config `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults fills unset fields. The broker registration and the
// topology descriptor are derived from the listen address.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = programName
	}
	if c.Version == "" {
		c.Version = version.GetShortVersion()
	}
	c.ServiceConfig.ApplyDefaults()
	if c.GRPC.Address == "" {
		c.GRPC.Address = defaultListenAddress
	}
	c.GRPC.ApplyDefaults()

	reg := &c.Discovery.Registration
	if reg.Interface == "" {
		reg.Interface = calculator.ServiceName
	}
	if host, port, err := splitAddress(c.GRPC.Address); err == nil {
		if reg.Host == "" {
			reg.Host = host
		}
		if reg.Port == 0 {
			reg.Port = port
		}
	}
	c.Discovery.ApplyDefaults()
	if c.Discovery.Provider == discovery.ProviderConsul {
		c.Consul.ApplyDefaults()
	}

	svc := &c.Topology.Service
	if svc.ServiceName == "" {
		svc.ServiceName = c.Name
	}
	if svc.Kind == "" {
		svc.Kind = topology.KindServer
	}
	if svc.Version == "" {
		svc.Version = c.Version
	}
	if svc.Interface == "" {
		svc.Interface = calculator.ServiceName
	}
	if svc.Role == "" {
		svc.Role = reg.Role
	}
	if svc.Address == "" {
		svc.Address = c.GRPC.Address
	}
	if svc.Host == "" {
		svc.Host, _ = os.Hostname()
	}
	if svc.ProgramName == "" {
		svc.ProgramName = programName
	}
	c.Topology.ApplyDefaults()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Discovery.Validate(); err != nil {
		return err
	}
	if c.Discovery.Provider == discovery.ProviderConsul {
		if err := c.Consul.Validate(); err != nil {
			return fmt.Errorf("consul: %w", err)
		}
	}
	return c.Topology.Validate()
}

func splitAddress(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, programName+":", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	address := flags.String("address", defaultListenAddress, "gRPC listen address")
	broker := flags.String("broker-address", "", "service broker address (default $BROKER_ADDRESS or "+discovery.DefaultBrokerAddress+")")
	provider := flags.String("discovery", discovery.ProviderBroker, "discovery provider: broker, consul or static")
	registry := flags.String("topology-address", topology.DefaultAddress, "topology registry gRPC address")
	proxyAddr := flags.String("topology-proxy", topology.DefaultProxyAddress, "topology HTTP proxy base URL")
	topoTransport := flags.String("topology-transport", topology.TransportGRPC, "topology transport: grpc or http")
	noTopology := flags.Bool("no-topology", false, "disable topology reporting")
	configFile := flags.String("config", "", "config file path")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println(version.String(programName))
		return nil
	}

	var cfg Config
	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if err := config.LoadConfig(programName, &cfg, opts...); err != nil {
		return err
	}
	if flags.Changed("address") {
		cfg.GRPC.Address = *address
		cfg.Discovery.Registration.Host, cfg.Discovery.Registration.Port = "", 0
		cfg.Topology.Service.Address = ""
	}
	if flags.Changed("broker-address") {
		cfg.Discovery.BrokerAddress = *broker
	}
	if flags.Changed("discovery") {
		cfg.Discovery.Provider = *provider
	}
	if flags.Changed("topology-address") {
		cfg.Topology.Address = *registry
	}
	if flags.Changed("topology-proxy") {
		cfg.Topology.ProxyAddress = *proxyAddr
	}
	if flags.Changed("topology-transport") {
		cfg.Topology.Transport = *topoTransport
	}
	if *noTopology {
		cfg.Topology.Disabled = true
	}

	app, err := bootstrap.NewApp(&cfg, bootstrap.WithObservability(cfg.Observability))
	if err != nil {
		return err
	}

	topoMetrics, err := observability.NewTopologyMetrics(observability.Meter(programName))
	if err != nil {
		return err
	}
	tc, err := transport.NewClient(cfg.Topology, app.Logger, topology.WithMetrics(topoMetrics))
	if err != nil {
		return err
	}
	rpcMetrics, err := observability.NewMetrics(observability.Meter(programName))
	if err != nil {
		return err
	}
	srv, err := server.New(cfg.GRPC, app.Logger, server.WithMetrics(rpcMetrics))
	if err != nil {
		return err
	}
	calculator.RegisterCalculatorServiceServer(srv, calculator.NewServer(tc, app.Logger))

	var providerCfg any
	if cfg.Discovery.Provider == discovery.ProviderConsul {
		providerCfg = &cfg.Consul
	}

	// Stopped in reverse: the broker entry goes first, then the listener,
	// then the topology registration once in-flight activity has drained.
	if err := app.RegisterComponent(topology.NewComponent(tc)); err != nil {
		return err
	}
	if err := app.RegisterComponent(server.NewComponent(srv)); err != nil {
		return err
	}
	if err := app.RegisterComponent(discovery.NewComponent(cfg.Discovery, providerCfg, app.Logger)); err != nil {
		return err
	}

	app.Logger.Info("Calculator server configured", map[string]interface{}{
		"address":   cfg.GRPC.Address,
		"discovery": cfg.Discovery.Provider,
		"topology":  tc.Enabled(),
	})
	return app.Run(context.Background())
}
