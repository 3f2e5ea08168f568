package grpc

import (
	"cmp"
	"fmt"
	"time"

	"github.com/Michael--/modular-runtime/security"
	"github.com/Michael--/modular-runtime/validation"
)

// Defaults applied by Config.ApplyDefaults.
const (
	DefaultMaxMsgSize       = 4 << 20
	DefaultKeepaliveTime    = 30 * time.Second
	DefaultKeepaliveTimeout = 10 * time.Second
	DefaultCallTimeout      = 5 * time.Second
	DefaultConnectTimeout   = 5 * time.Second
)

// KeepaliveConfig is shared by dialers and listeners.
type KeepaliveConfig struct {
	Time                time.Duration `yaml:"time" mapstructure:"time"`
	Timeout             time.Duration `yaml:"timeout" mapstructure:"timeout"`
	PermitWithoutStream bool          `yaml:"permit_without_stream" mapstructure:"permit_without_stream"`
}

// Config describes one gRPC connection or listener. Address is the dial
// target for clients and the listen address for servers; a nil TLS means
// plaintext.
type Config struct {
	Address        string              `yaml:"address" mapstructure:"address"`
	MaxRecvMsgSize int                 `yaml:"max_recv_msg_size" mapstructure:"max_recv_msg_size"`
	MaxSendMsgSize int                 `yaml:"max_send_msg_size" mapstructure:"max_send_msg_size"`
	Keepalive      KeepaliveConfig     `yaml:"keepalive" mapstructure:"keepalive"`
	TLS            *security.TLSConfig `yaml:"tls" mapstructure:"tls"`
	// CallTimeout applies to unary calls whose context has no deadline.
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	// ConnectTimeout bounds opening a stream, not its lifetime.
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	c.MaxRecvMsgSize = cmp.Or(c.MaxRecvMsgSize, DefaultMaxMsgSize)
	c.MaxSendMsgSize = cmp.Or(c.MaxSendMsgSize, DefaultMaxMsgSize)
	c.Keepalive.Time = cmp.Or(c.Keepalive.Time, DefaultKeepaliveTime)
	c.Keepalive.Timeout = cmp.Or(c.Keepalive.Timeout, DefaultKeepaliveTimeout)
	c.CallTimeout = cmp.Or(c.CallTimeout, DefaultCallTimeout)
	c.ConnectTimeout = cmp.Or(c.ConnectTimeout, DefaultConnectTimeout)
}

// Validate reports every invalid field at once, prefixed with "grpc: ".
func (c *Config) Validate() error {
	err := validation.New().
		Required("address", c.Address).
		HostPort("address", c.Address).
		Check(c.MaxRecvMsgSize > 0, "max_recv_msg_size", "must be positive").
		Check(c.MaxSendMsgSize > 0, "max_send_msg_size", "must be positive").
		Err()
	if err == nil {
		err = c.TLS.Validate()
	}
	if err != nil {
		return fmt.Errorf("grpc: %w", err)
	}
	return nil
}
