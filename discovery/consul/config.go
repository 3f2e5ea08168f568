package consul

import (
	"fmt"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/Michael--/modular-runtime/security"
	"github.com/Michael--/modular-runtime/validation"
)

const (
	defaultAddress    = "localhost:8500"
	defaultWatchWait  = 30 * time.Second
	defaultRetryDelay = time.Second
)

// Config points the provider at a Consul agent.
type Config struct {
	Address    string `yaml:"address" mapstructure:"address"`
	Scheme     string `yaml:"scheme" mapstructure:"scheme"`
	Datacenter string `yaml:"datacenter" mapstructure:"datacenter"`
	Token      string `yaml:"token" mapstructure:"token"`
	Namespace  string `yaml:"namespace" mapstructure:"namespace"`

	TLS *security.TLSConfig `yaml:"tls" mapstructure:"tls"`

	// WatchWait is how long one blocking catalog query may park at the
	// agent before Watch asks again.
	WatchWait time.Duration `yaml:"watch_wait" mapstructure:"watch_wait"`
	// RetryDelay separates Watch attempts after the agent errored.
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
}

// ApplyDefaults targets the local agent over plain HTTP unless TLS is set.
func (c *Config) ApplyDefaults() {
	if c.Address == "" {
		c.Address = defaultAddress
	}
	if c.Scheme == "" {
		c.Scheme = "http"
		if c.TLS.IsEnabled() {
			c.Scheme = "https"
		}
	}
	if c.WatchWait <= 0 {
		c.WatchWait = defaultWatchWait
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
}

// Validate checks the agent address and that TLS settings agree with the
// scheme.
func (c *Config) Validate() error {
	err := validation.New().
		Required("address", c.Address).
		HostPort("address", c.Address).
		OneOf("scheme", c.Scheme, []string{"http", "https"}).
		Check(!c.TLS.IsEnabled() || c.Scheme == "https", "scheme", "must be https when tls is set").
		Err()
	if err != nil {
		return err
	}
	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	return nil
}

// APIConfig builds the Consul client configuration.
func (c *Config) APIConfig() *api.Config {
	cfg := api.DefaultConfig()
	cfg.Address = c.Address
	cfg.Scheme = c.Scheme
	cfg.Datacenter = c.Datacenter
	cfg.Token = c.Token
	cfg.Namespace = c.Namespace
	if c.TLS.IsEnabled() {
		cfg.TLSConfig = api.TLSConfig{
			Address:            c.TLS.ServerName,
			CAFile:             c.TLS.CAFile,
			CertFile:           c.TLS.CertFile,
			KeyFile:            c.TLS.KeyFile,
			InsecureSkipVerify: c.TLS.SkipVerify,
		}
	}
	return cfg
}
