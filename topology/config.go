package topology

import (
	"fmt"
	"time"

	"github.com/Michael--/modular-runtime/resilience"
	"github.com/Michael--/modular-runtime/validation"
)

// Transport names accepted by Config.Transport.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

// Default addresses of the registry and its HTTP proxy.
const (
	DefaultAddress      = "127.0.0.1:50053"
	DefaultProxyAddress = "http://127.0.0.1:50055"
)

// Config configures a topology Client.
type Config struct {
	// Disabled turns the client into a no-op.
	Disabled bool `yaml:"disabled" mapstructure:"disabled"`
	// Transport selects "grpc" (streaming) or "http" (polling via proxy).
	Transport string `yaml:"transport" mapstructure:"transport"`
	// Address is the gRPC registry address.
	Address string `yaml:"address" mapstructure:"address"`
	// ProxyAddress is the HTTP proxy base URL.
	ProxyAddress string `yaml:"proxy_address" mapstructure:"proxy_address"`

	LivenessInterval  time.Duration `yaml:"liveness_interval" mapstructure:"liveness_interval"`
	CallTimeout       time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	DrainTimeout      time.Duration `yaml:"drain_timeout" mapstructure:"drain_timeout"`
	UnregisterTimeout time.Duration `yaml:"unregister_timeout" mapstructure:"unregister_timeout"`

	Backoff resilience.BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
	Service Descriptor               `yaml:"service" mapstructure:"service"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportGRPC
	}
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.ProxyAddress == "" {
		c.ProxyAddress = DefaultProxyAddress
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = 2 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 2 * time.Second
	}
	if c.UnregisterTimeout <= 0 {
		c.UnregisterTimeout = 2 * time.Second
	}
	c.Backoff.ApplyDefaults()
	if c.Service.Kind == "" {
		c.Service.Kind = KindHybrid
	}
	if c.Service.Language == "" {
		c.Service.Language = LanguageGo
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Disabled {
		return nil
	}
	v := validation.New().
		OneOf("transport", c.Transport, []string{TransportGRPC, TransportHTTP}).
		HostPort("address", c.Address).
		Positive("liveness_interval", c.LivenessInterval)
	if err := v.Err(); err != nil {
		return fmt.Errorf("topology: %w", err)
	}
	if err := c.Service.Validate(); err != nil {
		return fmt.Errorf("topology.service: %w", err)
	}
	return nil
}
