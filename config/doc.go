// Package config loads service configuration from config.yml, .env files and
// the process environment using Viper.
//
// # Usage
//
//	var cfg Config
//	if err := config.LoadConfig("calculator-server", &cfg); err != nil { ... }
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil { ... }
//
// Environment variables override file values. BROKER_ADDRESS is bound to
// broker.address, broker_address and every other nesting of its parts, so
// components only need mapstructure tags.
package config
