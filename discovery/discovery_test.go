package discovery

import (
	"testing"
	"time"
)

func TestQuery_Matches(t *testing.T) {
	const iface = "calculator.v1.CalculatorService"
	tests := []struct {
		name  string
		query Query
		inst  ServiceInstance
		want  bool
	}{
		{"default role", Query{Interface: iface}, ServiceInstance{Interface: iface, Role: "default", Host: "h", Port: 1}, true},
		{"roleless instance", Query{Interface: iface, Role: "backup"}, ServiceInstance{Interface: iface, Host: "h", Port: 1}, true},
		{"other role", Query{Interface: iface}, ServiceInstance{Interface: iface, Role: "primary", Host: "h", Port: 1}, false},
		{"other interface", Query{Interface: iface}, ServiceInstance{Interface: "parse.v1.ParseService", Host: "h", Port: 1}, false},
		{"no host", Query{Interface: iface}, ServiceInstance{Interface: iface, Port: 1}, false},
		{"no port", Query{Interface: iface}, ServiceInstance{Interface: iface, Host: "h"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Matches(tt.inst); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceInstance_Address(t *testing.T) {
	if got := (ServiceInstance{Host: "::1", Port: 5556}).Address(); got != "[::1]:5556" {
		t.Errorf("Address = %s", got)
	}
}

func TestConfig(t *testing.T) {
	t.Setenv(EnvBrokerAddress, "")

	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Provider != ProviderBroker || cfg.BrokerAddress != DefaultBrokerAddress || cfg.CacheTTL != 30*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Backoff.Initial != time.Second || cfg.Backoff.Max != 15*time.Second {
		t.Errorf("backoff = %+v", cfg.Backoff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Provider = "zookeeper" }},
		{"bad broker address", func(c *Config) { c.BrokerAddress = "nowhere" }},
		{"registration without host", func(c *Config) { c.Registration = Registration{Interface: "x", Port: 1} }},
		{"registration without port", func(c *Config) { c.Registration = Registration{Interface: "x", Host: "h"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_BrokerAddressFromEnv(t *testing.T) {
	t.Setenv(EnvBrokerAddress, "10.1.1.1:6000")

	var cfg Config
	cfg.ApplyDefaults()
	if cfg.BrokerAddress != "10.1.1.1:6000" {
		t.Errorf("BrokerAddress = %s", cfg.BrokerAddress)
	}

	cfg = Config{BrokerAddress: "127.0.0.1:7000"}
	cfg.ApplyDefaults()
	if cfg.BrokerAddress != "127.0.0.1:7000" {
		t.Errorf("explicit address overridden: %s", cfg.BrokerAddress)
	}
}
