package httpclient

import (
	"fmt"
	"time"

	"github.com/Michael--/modular-runtime/resilience"
	"github.com/Michael--/modular-runtime/security"
)

const defaultTimeout = 5 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is prepended to every request path that is not a full URL.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Timeout bounds each request, 5s when unset.
	Timeout time.Duration       `yaml:"timeout" mapstructure:"timeout"`
	TLS     *security.TLSConfig `yaml:"tls" mapstructure:"tls"`
	// Headers are set on every request.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`
	// Retry is off when nil.
	Retry *resilience.RetryConfig `yaml:"-" mapstructure:"-"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("httpclient: timeout must be positive")
	}
	return c.TLS.Validate()
}

// DefaultRetryConfig retries what the client classified as retryable.
func DefaultRetryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts: 3,
		Backoff:     resilience.DefaultBackoffConfig(),
		RetryIf:     IsRetryable,
	}
}
