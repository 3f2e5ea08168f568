package client

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	grpccfg "github.com/Michael--/modular-runtime/grpc"
	"github.com/Michael--/modular-runtime/grpc/interceptor"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/security"
)

// Option customizes NewClient.
type Option func(*options)

type options struct {
	dialer    func(context.Context, string) (net.Conn, error)
	dialOpts  []grpc.DialOption
	unary     []grpc.UnaryClientInterceptor
	streaming []grpc.StreamClientInterceptor
}

// WithContextDialer dials through d instead of the network, e.g. a bufconn
// listener in tests. The target is then passed to d verbatim.
func WithContextDialer(d func(context.Context, string) (net.Conn, error)) Option {
	return func(o *options) { o.dialer = d }
}

// WithDialOptions appends raw dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

// WithUnaryInterceptor appends a unary interceptor after the built-in ones.
func WithUnaryInterceptor(i grpc.UnaryClientInterceptor) Option {
	return func(o *options) { o.unary = append(o.unary, i) }
}

// WithStreamInterceptor appends a stream interceptor after the built-in ones.
func WithStreamInterceptor(i grpc.StreamClientInterceptor) Option {
	return func(o *options) { o.streaming = append(o.streaming, i) }
}

// NewClient creates a gRPC client connection using the provided configuration
// and logger. It configures keepalive, TLS, message size limits and the JSON
// codec, and attaches logging and timeout interceptors. The connection is
// established lazily on the first RPC.
func NewClient(cfg grpccfg.Config, log *logger.Logger, opts ...Option) (*grpc.ClientConn, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("grpc client config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	target := cfg.Address
	if o.dialer != nil {
		target = "passthrough:///" + target
	}

	log.Debug("Creating gRPC client", map[string]interface{}{
		"target": target,
		"tls":    cfg.TLS.IsEnabled(),
	})

	dialOpts, err := buildDialOptions(cfg, log, o)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		log.Error("Failed to create gRPC client", map[string]interface{}{
			"target": target,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("grpc: failed to create client for %s: %w", target, err)
	}
	return conn, nil
}

// buildDialOptions assembles all gRPC dial options from config.
func buildDialOptions(cfg grpccfg.Config, log *logger.Logger, o options) ([]grpc.DialOption, error) {
	creds, err := transportCredentials(cfg.TLS)
	if err != nil {
		return nil, err
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.Keepalive.Time,
			Timeout:             cfg.Keepalive.Timeout,
			PermitWithoutStream: cfg.Keepalive.PermitWithoutStream,
		}),
		grpc.WithDefaultCallOptions(
			grpccfg.CallOption(),
			grpc.MaxCallRecvMsgSize(cfg.MaxRecvMsgSize),
			grpc.MaxCallSendMsgSize(cfg.MaxSendMsgSize),
		),
	}
	if o.dialer != nil {
		dialOpts = append(dialOpts, grpc.WithContextDialer(o.dialer))
	}

	// Unary: timeout -> logging -> caller interceptors
	unary := make([]grpc.UnaryClientInterceptor, 0, 2+len(o.unary))
	if cfg.CallTimeout > 0 {
		unary = append(unary, interceptor.UnaryClientTimeoutInterceptor(cfg.CallTimeout))
	}
	unary = append(unary, interceptor.UnaryClientLoggingInterceptor(log))
	unary = append(unary, o.unary...)
	dialOpts = append(dialOpts, grpc.WithChainUnaryInterceptor(unary...))

	streaming := append([]grpc.StreamClientInterceptor{
		interceptor.StreamClientLoggingInterceptor(log),
	}, o.streaming...)
	dialOpts = append(dialOpts, grpc.WithChainStreamInterceptor(streaming...))

	return append(dialOpts, o.dialOpts...), nil
}

// transportCredentials returns the appropriate transport credentials.
func transportCredentials(cfg *security.TLSConfig) (credentials.TransportCredentials, error) {
	tlsCfg, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("grpc: %w", err)
	}
	if tlsCfg == nil {
		return insecure.NewCredentials(), nil
	}
	return credentials.NewTLS(tlsCfg), nil
}
