package discovery

import (
	"fmt"
	"os"
	"time"

	"github.com/Michael--/modular-runtime/resilience"
	"github.com/Michael--/modular-runtime/validation"
)

// Provider names.
const (
	ProviderBroker = "broker"
	ProviderConsul = "consul"
	ProviderStatic = "static"
)

// DefaultBrokerAddress is where the broker listens by default.
const DefaultBrokerAddress = "127.0.0.1:50051"

// EnvBrokerAddress names the variable consulted when no broker address is
// configured.
const EnvBrokerAddress = "BROKER_ADDRESS"

// Config holds service discovery and registration configuration.
type Config struct {
	// Provider selects the backend: "broker", "consul" or "static".
	Provider string `yaml:"provider" mapstructure:"provider"`

	// BrokerAddress is the broker's gRPC address.
	BrokerAddress string `yaml:"broker_address" mapstructure:"broker_address"`

	// CallTimeout bounds each backend call.
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`

	// CacheTTL is how long a resolved instance is reused.
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// Backoff paces registration and resolution retries.
	Backoff resilience.BackoffConfig `yaml:"backoff" mapstructure:"backoff"`

	// Registration is this process's own announcement. Empty Interface means
	// the process only discovers.
	Registration Registration `yaml:"registration" mapstructure:"registration"`

	// Static lists the instances the static provider serves.
	Static []ServiceInstance `yaml:"static" mapstructure:"static"`
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderBroker
	}
	if c.BrokerAddress == "" {
		c.BrokerAddress = os.Getenv(EnvBrokerAddress)
	}
	if c.BrokerAddress == "" {
		c.BrokerAddress = DefaultBrokerAddress
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Second
	}
	c.Backoff.ApplyDefaults()
	if c.Registration.Enabled() && c.Registration.Role == "" {
		c.Registration.Role = DefaultRole
	}
}

// Validate checks that required fields are present and consistent.
func (c *Config) Validate() error {
	known := append([]string{ProviderBroker, ProviderConsul, ProviderStatic}, Providers()...)
	v := validation.New().OneOf("provider", c.Provider, known)
	if c.Provider == ProviderBroker {
		v.HostPort("broker_address", c.BrokerAddress)
	}
	if c.Registration.Enabled() {
		v.Required("registration.host", c.Registration.Host).
			Range("registration.port", c.Registration.Port, 1, 65535)
	}
	if err := v.Err(); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	return nil
}
