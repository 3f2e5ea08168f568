package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds TLS settings for one side of a connection.
//
// On the dialing side CAFile verifies the peer and CertFile/KeyFile present
// a client certificate. On the listening side CertFile/KeyFile are the
// server certificate and CAFile, when set, requires client certificates.
type TLSConfig struct {
	SkipVerify bool   `yaml:"skip_verify" mapstructure:"skip_verify"`
	CAFile     string `yaml:"ca_file" mapstructure:"ca_file"`
	CertFile   string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile    string `yaml:"key_file" mapstructure:"key_file"`
	ServerName string `yaml:"server_name" mapstructure:"server_name"`
	// MinVersion defaults to TLS 1.2.
	MinVersion uint16 `yaml:"min_version" mapstructure:"min_version"`
}

// IsEnabled reports whether any TLS setting is configured.
func (c *TLSConfig) IsEnabled() bool {
	if c == nil {
		return false
	}
	return c.SkipVerify || c.CAFile != "" || c.CertFile != "" || c.ServerName != ""
}

// Validate checks that the configuration is consistent.
func (c *TLSConfig) Validate() error {
	if c == nil {
		return nil
	}
	if (c.CertFile != "") != (c.KeyFile != "") {
		return fmt.Errorf("security/tls: both cert_file and key_file must be provided together")
	}
	return nil
}

// Build returns the dialing-side *tls.Config, or nil when TLS is disabled.
func (c *TLSConfig) Build() (*tls.Config, error) {
	if !c.IsEnabled() {
		return nil, nil
	}

	cfg := c.base()
	cfg.InsecureSkipVerify = c.SkipVerify
	cfg.ServerName = c.ServerName

	pool, err := c.caPool()
	if err != nil {
		return nil, err
	}
	cfg.RootCAs = pool

	if err := c.loadKeyPair(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BuildServer returns the listening-side *tls.Config, or nil when no server
// certificate is configured.
func (c *TLSConfig) BuildServer() (*tls.Config, error) {
	if c == nil || c.CertFile == "" {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg := c.base()
	if err := c.loadKeyPair(cfg); err != nil {
		return nil, err
	}

	pool, err := c.caPool()
	if err != nil {
		return nil, err
	}
	if pool != nil {
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

func (c *TLSConfig) base() *tls.Config {
	minVersion := c.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}
	return &tls.Config{MinVersion: minVersion}
}

func (c *TLSConfig) caPool() (*x509.CertPool, error) {
	if c.CAFile == "" {
		return nil, nil
	}
	ca, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, fmt.Errorf("security/tls: failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("security/tls: failed to parse CA certificate")
	}
	return pool, nil
}

func (c *TLSConfig) loadKeyPair(cfg *tls.Config) error {
	if c.CertFile == "" || c.KeyFile == "" {
		return nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return fmt.Errorf("security/tls: failed to load certificate: %w", err)
	}
	cfg.Certificates = []tls.Certificate{cert}
	return nil
}
