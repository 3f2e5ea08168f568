package client

import (
	"context"

	"google.golang.org/grpc"

	grpccfg "github.com/Michael--/modular-runtime/grpc"
	"github.com/Michael--/modular-runtime/logger"
)

// ConnectionFactory creates gRPC connections by logical service name. The
// name may be resolved through discovery before dialing.
type ConnectionFactory interface {
	NewConn(ctx context.Context, serviceName string) (*grpc.ClientConn, error)
}

// ConnectionFactoryFunc adapts a function to ConnectionFactory.
type ConnectionFactoryFunc func(ctx context.Context, serviceName string) (*grpc.ClientConn, error)

// NewConn calls f.
func (f ConnectionFactoryFunc) NewConn(ctx context.Context, serviceName string) (*grpc.ClientConn, error) {
	return f(ctx, serviceName)
}

// DefaultConnectionFactory dials the fixed address in its Config.
type DefaultConnectionFactory struct {
	cfg  grpccfg.Config
	log  *logger.Logger
	opts []Option
}

// NewDefaultConnectionFactory creates a factory that builds connections using the provided config and logger.
func NewDefaultConnectionFactory(cfg grpccfg.Config, log *logger.Logger, opts ...Option) *DefaultConnectionFactory {
	return &DefaultConnectionFactory{cfg: cfg, log: log, opts: opts}
}

// NewConn creates a new gRPC client connection. The serviceName is used for
// logging only.
func (f *DefaultConnectionFactory) NewConn(_ context.Context, serviceName string) (*grpc.ClientConn, error) {
	f.log.Debug("Creating gRPC connection via factory", map[string]interface{}{
		logger.FieldService: serviceName,
		logger.FieldTarget:  f.cfg.Address,
	})
	return NewClient(f.cfg, f.log, f.opts...)
}
