// Command calculator-client finds a calculator server through the service
// broker and sends it a random calculation every interval, reporting each
// call to the topology registry.
//
//	calculator-client --broker-address 127.0.0.1:50051 --interval 2s
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/Michael--/modular-runtime/bootstrap"
	"github.com/Michael--/modular-runtime/calculator"
	"github.com/Michael--/modular-runtime/config"
	"github.com/Michael--/modular-runtime/discovery"
	_ "github.com/Michael--/modular-runtime/discovery/broker"
	"github.com/Michael--/modular-runtime/discovery/consul"
	_ "github.com/Michael--/modular-runtime/discovery/static"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/topology"
	"github.com/Michael--/modular-runtime/topology/transport"
	"github.com/Michael--/modular-runtime/version"
)

const programName = "calculator-client"

// Config is the client's configuration file layout.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Caller               calculator.CallerConfig `yaml:"caller" mapstructure:"caller"`
	Discovery            discovery.Config        `yaml:"discovery" mapstructure:"discovery"`
	Consul               consul.Config           `yaml:"consul" mapstructure:"consul"`
	Topology             topology.Config         `yaml:"topology" mapstructure:"topology"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = programName
	}
	if c.Version == "" {
		c.Version = version.GetShortVersion()
	}
	c.ServiceConfig.ApplyDefaults()

	if c.Caller.Name == "" {
		c.Caller.Name = c.Name
	}
	c.Caller.ApplyDefaults()
	c.Discovery.ApplyDefaults()
	if c.Discovery.Provider == discovery.ProviderConsul {
		c.Consul.ApplyDefaults()
	}

	svc := &c.Topology.Service
	if svc.ServiceName == "" {
		svc.ServiceName = c.Name
	}
	if svc.Kind == "" {
		svc.Kind = topology.KindClient
	}
	if svc.Version == "" {
		svc.Version = c.Version
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
	if c.Discovery.Registration.Enabled() {
		return fmt.Errorf("discovery.registration: a client does not register")
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

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, programName+":", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	broker := flags.String("broker-address", "", "service broker address (default $BROKER_ADDRESS or "+discovery.DefaultBrokerAddress+")")
	provider := flags.String("discovery", discovery.ProviderBroker, "discovery provider: broker, consul or static")
	role := flags.String("role", discovery.DefaultRole, "calculator role to call")
	interval := flags.Duration("interval", 2*time.Second, "time between calculations")
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
	if flags.Changed("broker-address") {
		cfg.Discovery.BrokerAddress = *broker
	}
	if flags.Changed("discovery") {
		cfg.Discovery.Provider = *provider
	}
	if flags.Changed("role") {
		cfg.Caller.Role = *role
	}
	if flags.Changed("interval") {
		cfg.Caller.Interval = *interval
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

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		return err
	}

	tc, err := transport.NewClient(cfg.Topology, app.Logger)
	if err != nil {
		return err
	}
	var providerCfg any
	if cfg.Discovery.Provider == discovery.ProviderConsul {
		providerCfg = &cfg.Consul
	}
	disc := discovery.NewComponent(cfg.Discovery, providerCfg, app.Logger)

	if err := app.RegisterComponent(topology.NewComponent(tc)); err != nil {
		return err
	}
	if err := app.RegisterComponent(disc); err != nil {
		return err
	}

	return app.RunTask(context.Background(), func(ctx context.Context) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// The topology client owns signal-driven shutdown when enabled; the
		// call loop ends once it has unregistered.
		if tc.Enabled() {
			tc.Watch(ctx)
			go func() {
				select {
				case <-tc.Done():
					cancel()
				case <-ctx.Done():
				}
			}()
		}

		resolver := disc.Resolver()
		go func() {
			if err := resolver.Follow(ctx); err != nil && ctx.Err() == nil {
				app.Logger.Warn("Not following service changes", logger.MergeWithError(nil, err))
			}
		}()

		caller := calculator.NewCaller(cfg.Caller, resolver, tc, app.Logger)
		defer func() { _ = caller.Close() }()

		app.Logger.Info("Calculator client running", logger.Fields(
			"interval", cfg.Caller.Interval.String(),
			"role", cfg.Caller.Role,
			"topology", tc.Enabled(),
		))
		return caller.Run(ctx)
	})
}
