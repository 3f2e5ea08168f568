package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"

	grpccfg "github.com/Michael--/modular-runtime/grpc"
	"github.com/Michael--/modular-runtime/grpc/interceptor"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/observability"
)

// Option customizes New.
type Option func(*options)

type options struct {
	listener   net.Listener
	metrics    *observability.Metrics
	serverOpts []grpc.ServerOption
}

// WithListener serves on lis instead of binding cfg.Address. Tests pass a
// bufconn listener here.
func WithListener(lis net.Listener) Option {
	return func(o *options) { o.listener = lis }
}

// WithMetrics records request metrics for every unary RPC.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithServerOptions appends raw grpc.ServerOptions.
func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(o *options) { o.serverOpts = append(o.serverOpts, opts...) }
}

// Server is a gRPC server speaking the JSON codec, with recovery and logging
// interceptors installed.
type Server struct {
	grpc     *grpc.Server
	cfg      grpccfg.Config
	log      *logger.Logger
	listener net.Listener

	mu      sync.Mutex
	serving bool
	stopped bool
	done    chan struct{}
}

// New creates a Server. Services are registered with RegisterService before
// Start.
func New(cfg grpccfg.Config, log *logger.Logger, opts ...Option) (*Server, error) {
	cfg.ApplyDefaults()
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.listener == nil {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("grpc server config: %w", err)
		}
	}

	log = log.WithComponent("grpc-server")

	unary := []grpc.UnaryServerInterceptor{interceptor.UnaryServerRecoveryInterceptor(log)}
	if o.metrics != nil {
		unary = append(unary, interceptor.UnaryServerMetricsInterceptor(o.metrics))
	}
	unary = append(unary, interceptor.UnaryServerLoggingInterceptor(log))

	serverOpts := []grpc.ServerOption{
		grpccfg.ServerOption(),
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.Keepalive.Time,
			Timeout: cfg.Keepalive.Timeout,
		}),
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(
			interceptor.StreamServerRecoveryInterceptor(log),
			interceptor.StreamServerLoggingInterceptor(log),
		),
	}

	tlsCfg, err := cfg.TLS.BuildServer()
	if err != nil {
		return nil, fmt.Errorf("grpc server tls: %w", err)
	}
	if tlsCfg != nil {
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}
	serverOpts = append(serverOpts, o.serverOpts...)

	return &Server{
		grpc:     grpc.NewServer(serverOpts...),
		cfg:      cfg,
		log:      log,
		listener: o.listener,
		done:     make(chan struct{}),
	}, nil
}

// RegisterService registers a service implementation. It must be called
// before Start.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl any) {
	s.grpc.RegisterService(desc, impl)
	s.log.Debug("gRPC service registered", map[string]interface{}{
		logger.FieldService: desc.ServiceName,
	})
}

// Start binds the listener and begins serving. It returns once the port is
// bound; serving continues in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serving {
		return nil
	}
	if s.stopped {
		return fmt.Errorf("grpc server already stopped")
	}

	if s.listener == nil {
		var lc net.ListenConfig
		lis, err := lc.Listen(ctx, "tcp", s.cfg.Address)
		if err != nil {
			return fmt.Errorf("grpc server failed to bind %s: %w", s.cfg.Address, err)
		}
		s.listener = lis
	}
	s.serving = true

	lis := s.listener
	go func() {
		defer close(s.done)
		if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			s.log.Error("gRPC server error", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
	}()

	s.log.Info("gRPC server started", map[string]interface{}{
		"addr": lis.Addr().String(),
	})
	return nil
}

// Stop drains in-flight RPCs. When ctx ends first, remaining calls and
// streams are cut off.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	serving := s.serving
	s.serving = false
	s.stopped = s.stopped || serving
	s.mu.Unlock()
	if !serving {
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.log.Warn("gRPC graceful stop timed out, forcing")
		s.grpc.Stop()
		<-stopped
	}
	<-s.done
	s.log.Info("gRPC server stopped")
	return nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address
}

// Serving reports whether Start succeeded and Stop has not run.
func (s *Server) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serving
}
