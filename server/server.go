package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/observability"
	"github.com/Michael--/modular-runtime/server/endpoint"
	"github.com/Michael--/modular-runtime/server/middleware"
)

// Server is an HTTP server backed by Gin.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     Config
	log        *logger.Logger

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// New creates a new Server. The Gin engine is created but no middleware is
// applied yet; call ApplyDefaults or ApplyMiddleware.
func New(cfg Config, log *logger.Logger) *Server {
	cfg.ApplyDefaults()

	switch {
	case gin.Mode() == gin.TestMode:
	case log.GetLogger().GetLevel() <= zerolog.DebugLevel:
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	httpServer := &http.Server{
		Addr:         cfg.Address,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		engine:     engine,
		config:     cfg,
		log:        log.WithComponent("http-server"),
	}
}

// GinEngine returns the underlying Gin engine for route registration.
func (s *Server) GinEngine() *gin.Engine {
	return s.engine
}

// Handler returns the root handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the port and begins serving. It returns once the listener is
// bound so the caller knows the port is ready; serving continues in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	tlsCfg, err := s.config.TLS.BuildServer()
	if err != nil {
		return fmt.Errorf("server tls: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	if tlsCfg != nil {
		listener = tls.NewListener(listener, tlsCfg)
	}
	s.listener = listener
	s.done = make(chan struct{})

	done := s.done
	go func() {
		defer close(done)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Server error", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
	}()

	s.log.Info("HTTP server started", map[string]interface{}{
		"addr": listener.Addr().String(),
		"tls":  tlsCfg != nil,
	})
	return nil
}

// Stop gracefully shuts down the server, waiting at most 5 seconds or until
// ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("Server shutdown error", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return fmt.Errorf("server shutdown error: %w", err)
	}
	<-done

	s.log.Info("HTTP server shut down")
	return nil
}

func (s *Server) bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// ApplyMiddleware applies the standard middleware stack: recovery,
// request-ID, body-size limit, request logging and, when m is non-nil,
// request metrics.
func (s *Server) ApplyMiddleware(serviceName string, m *observability.Metrics) {
	s.engine.Use(middleware.Recovery(s.log))
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.BodySizeLimit(s.config.MaxBodyBytes))
	if m != nil {
		s.engine.Use(middleware.Metrics(serviceName, m))
	}
	s.engine.Use(middleware.RequestLogger(s.log))
}

// RegisterDefaultEndpoints registers /alive and /version.
func (s *Server) RegisterDefaultEndpoints(serviceName string) {
	s.engine.GET("/alive", endpoint.Liveness(serviceName))
	s.engine.GET("/version", endpoint.Version(serviceName))
}

// ApplyDefaults applies the standard middleware stack and registers default endpoints.
func (s *Server) ApplyDefaults(serviceName string, m *observability.Metrics) {
	s.ApplyMiddleware(serviceName, m)
	s.RegisterDefaultEndpoints(serviceName)
}
