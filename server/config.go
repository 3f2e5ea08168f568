package server

import (
	"fmt"
	"time"

	"github.com/Michael--/modular-runtime/security"
	"github.com/Michael--/modular-runtime/validation"
)

// Config holds HTTP server configuration.
type Config struct {
	Address      string              `yaml:"address" mapstructure:"address"`
	ReadTimeout  time.Duration       `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration       `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration       `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64               `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	TLS          *security.TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	v := validation.New().
		Required("address", c.Address).
		HostPort("address", c.Address).
		Check(c.ReadTimeout >= 0, "read_timeout", "must be non-negative").
		Check(c.WriteTimeout >= 0, "write_timeout", "must be non-negative").
		Check(c.IdleTimeout >= 0, "idle_timeout", "must be non-negative")
	if err := v.Err(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return c.TLS.Validate()
}
