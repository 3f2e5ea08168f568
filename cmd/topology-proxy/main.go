// Command topology-proxy serves the topology reporter HTTP proxy. Services
// that cannot hold a gRPC stream register, heartbeat and report activity
// over JSON POSTs; the proxy keeps one streaming registry client per
// registered service.
//
//	topology-proxy --address 127.0.0.1:50055 --registry-address 127.0.0.1:50053
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/Michael--/modular-runtime/bootstrap"
	"github.com/Michael--/modular-runtime/config"
	"github.com/Michael--/modular-runtime/observability"
	"github.com/Michael--/modular-runtime/server"
	"github.com/Michael--/modular-runtime/topology"
	"github.com/Michael--/modular-runtime/topology/proxy"
	"github.com/Michael--/modular-runtime/version"
)

const defaultListenAddress = "127.0.0.1:50055"

// Config is the proxy's configuration file layout.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
	HTTP                 server.Config        `yaml:"http" mapstructure:"http"`
	Registry             topology.Config      `yaml:"registry" mapstructure:"registry"`
	Observability        observability.Config `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = proxy.ServiceName
	}
	if c.Version == "" {
		c.Version = version.GetShortVersion()
	}
	c.ServiceConfig.ApplyDefaults()
	if c.HTTP.Address == "" {
		c.HTTP.Address = defaultListenAddress
	}
	c.HTTP.ApplyDefaults()
	c.Registry.Transport = topology.TransportGRPC
	c.Registry.ApplyDefaults()
}

// Validate checks the configuration. Registry.Service is filled per
// registration and is not checked here.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "topology-proxy:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet(proxy.ServiceName, pflag.ContinueOnError)
	address := flags.String("address", defaultListenAddress, "HTTP listen address")
	registry := flags.String("registry-address", topology.DefaultAddress, "topology registry gRPC address")
	configFile := flags.String("config", "", "config file path")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println(version.String(proxy.ServiceName))
		return nil
	}

	var cfg Config
	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if err := config.LoadConfig(proxy.ServiceName, &cfg, opts...); err != nil {
		return err
	}
	if flags.Changed("address") || cfg.HTTP.Address == "" {
		cfg.HTTP.Address = *address
	}
	if flags.Changed("registry-address") || cfg.Registry.Address == "" {
		cfg.Registry.Address = *registry
	}

	app, err := bootstrap.NewApp(&cfg, bootstrap.WithObservability(cfg.Observability))
	if err != nil {
		return err
	}
	metrics, err := observability.NewMetrics(observability.Meter(proxy.ServiceName))
	if err != nil {
		return err
	}

	p := proxy.New(cfg.Registry, app.Logger)
	srv := server.New(cfg.HTTP, app.Logger)
	srv.ApplyDefaults(cfg.Name, metrics)
	p.Routes(srv.GinEngine())

	// Stopped in reverse: the listener closes before proxied clients unregister.
	if err := app.RegisterComponent(proxy.NewComponent(p)); err != nil {
		return err
	}
	if err := app.RegisterComponent(server.NewComponent(srv)); err != nil {
		return err
	}

	app.Logger.Info("Topology proxy configured", map[string]interface{}{
		"address":  cfg.HTTP.Address,
		"registry": cfg.Registry.Address,
	})
	return app.Run(context.Background())
}
