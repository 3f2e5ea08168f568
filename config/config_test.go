package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "")
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug logging in development, got %q", cfg.Logging.Level)
		}
	})

	t.Run("production keeps debug false", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "")
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected info logging, got %q", cfg.Logging.Level)
		}
	})

	t.Run("LOG_LEVEL and LOG_FORMAT fill empty logging", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "warn")
		t.Setenv("LOG_FORMAT", "json")
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
			t.Errorf("unexpected logging config %+v", cfg.Logging)
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"valid", ServiceConfig{Name: "svc", Environment: "staging"}, ""},
		{"missing name", ServiceConfig{Environment: "production"}, "name: is required"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "qa"}, "environment: must be one of"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

type brokerSection struct {
	Address string        `mapstructure:"address"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type testConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Broker        brokerSection `mapstructure:"broker"`
}

func TestLoadConfigWithYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")

	yamlContent := `
name: calculator-server
environment: staging
broker:
  address: 10.0.0.1:50051
  timeout: 3s
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var cfg testConfig
	if err := LoadConfig("calculator-server", &cfg, WithConfigFile(configPath)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Name != "calculator-server" {
		t.Errorf("expected name 'calculator-server', got %q", cfg.Name)
	}
	if cfg.Environment != "staging" {
		t.Errorf("expected environment 'staging', got %q", cfg.Environment)
	}
	if cfg.Broker.Address != "10.0.0.1:50051" {
		t.Errorf("unexpected broker address %q", cfg.Broker.Address)
	}
	if cfg.Broker.Timeout != 3*time.Second {
		t.Errorf("unexpected broker timeout %v", cfg.Broker.Timeout)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(configPath, []byte("broker:\n  address: from-file:1\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("BROKER_ADDRESS", "from-env:2")

	var cfg testConfig
	if err := LoadConfig("svc", &cfg, WithConfigFile(configPath)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Broker.Address != "from-env:2" {
		t.Errorf("expected env override, got %q", cfg.Broker.Address)
	}
}

func TestLoadConfigKeepsPrefilledValues(t *testing.T) {
	cfg := testConfig{Broker: brokerSection{Address: "127.0.0.1:50051"}}
	err := LoadConfig("svc", &cfg, WithFileSystem(&mockFS{files: map[string]bool{}}))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Broker.Address != "127.0.0.1:50051" {
		t.Errorf("prefilled value lost, got %q", cfg.Broker.Address)
	}
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	var cfg testConfig
	err := LoadConfig("svc", &cfg, WithConfigFile("/nonexistent/path.yml"))
	if err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}

func TestResolverWithMockFS(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]bool
		service  string
		wantConf string
		wantEnv  string
	}{
		{
			name:     "full service name",
			files:    map[string]bool{"./cmd/my-svc/config.yml": true},
			service:  "my-svc",
			wantConf: "./cmd/my-svc/config.yml",
		},
		{
			name:     "short service name",
			files:    map[string]bool{"./cmd/server/config.yml": true, "./.env": true},
			service:  "calculator-server",
			wantConf: "./cmd/server/config.yml",
			wantEnv:  "./.env",
		},
		{
			name:     "service env file wins over generic",
			files:    map[string]bool{"./.env": true, "./config/.env.proxy": true},
			service:  "proxy",
			wantConf: "",
			wantEnv:  "./config/.env.proxy",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resolver := &Resolver{FileSystem: &mockFS{files: tc.files}}
			got := resolver.ResolveFiles(tc.service, LoaderConfig{})
			if got.ConfigFile != tc.wantConf {
				t.Errorf("config file = %q, want %q", got.ConfigFile, tc.wantConf)
			}
			if got.EnvFile != tc.wantEnv {
				t.Errorf("env file = %q, want %q", got.EnvFile, tc.wantEnv)
			}
		})
	}
}

func TestEnvKeyVariants(t *testing.T) {
	got := envKeyVariants("TOPOLOGY_PROXY_ADDRESS")
	want := []string{"topology_proxy_address", "topology.proxy.address", "topology.proxy_address", "topology_proxy.address"}
	for _, w := range want {
		found := false
		for _, g := range got {
			if g == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing variant %q in %v", w, got)
		}
	}

	if v := envKeyVariants("HOME"); len(v) != 1 || v[0] != "home" {
		t.Errorf("single part key should map to itself, got %v", v)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool  { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	WithFileSystem(&mockFS{})(&lc)
	WithConfigFile("/path/to/config.yml")(&lc)
	WithEnvFile("/path/to/.env")(&lc)

	if lc.FileSystem == nil {
		t.Error("expected FileSystem to be set")
	}
	if lc.ConfigFile != "/path/to/config.yml" {
		t.Errorf("expected config file path, got %q", lc.ConfigFile)
	}
	if lc.EnvFile != "/path/to/.env" {
		t.Errorf("expected env file path, got %q", lc.EnvFile)
	}
}
