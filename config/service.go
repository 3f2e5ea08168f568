package config

import (
	"fmt"
	"os"

	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/validation"
)

// Environments a service may declare.
var Environments = []string{"development", "staging", "production"}

// ServiceConfig is the section every command shares. Commands embed it:
//
//	type Config struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Topology topology.Config `yaml:"topology" mapstructure:"topology"`
//	}
type ServiceConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	Environment string        `yaml:"environment" mapstructure:"environment"`
	Version     string        `yaml:"version" mapstructure:"version"`
	Debug       bool          `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config `yaml:"logging" mapstructure:"logging"`
}

// GetServiceConfig exposes the embedded section through promotion.
func (c *ServiceConfig) GetServiceConfig() *ServiceConfig { return c }

// ApplyDefaults assumes development, which turns on debug logging. LOG_LEVEL
// and LOG_FORMAT fill logging settings the file left empty.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = Environments[0]
	}
	c.Debug = c.Debug || c.Environment == "development"
	if c.Logging.Level == "" {
		c.Logging.Level = os.Getenv("LOG_LEVEL")
	}
	if c.Logging.Format == "" {
		c.Logging.Format = os.Getenv("LOG_FORMAT")
	}
	if c.Logging.Level == "" && c.Debug {
		c.Logging.Level = "debug"
	}
	c.Logging.ApplyDefaults()
}

// Validate checks the name, the environment and the logging section.
func (c *ServiceConfig) Validate() error {
	err := validation.New().
		Required("name", c.Name).
		Check(c.Environment != "", "environment", "is required").
		OneOf("environment", c.Environment, Environments).
		Err()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}
