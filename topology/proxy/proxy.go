// Package proxy is the topology reporter proxy: an HTTP front for services
// that cannot hold a gRPC stream. Each registered service gets its own
// topology.Client over the streaming transport; the HTTP caller polls.
package proxy

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Michael--/modular-runtime/errors"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/server/endpoint"
	"github.com/Michael--/modular-runtime/topology"
	"github.com/Michael--/modular-runtime/topology/grpcstream"
	"github.com/Michael--/modular-runtime/topology/httpproxy"
)

// ServiceName is how the proxy names itself in logs and health answers.
const ServiceName = "topology-proxy"

// ErrStopped is returned once Stop has run.
var ErrStopped = errors.New("topology proxy: stopped")

// TransportFactory creates the registry transport for one proxied service.
type TransportFactory func() (topology.Transport, error)

// Option customizes New.
type Option func(*Proxy)

// WithTransportFactory replaces the default gRPC streaming transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(p *Proxy) { p.newTransport = f }
}

// Proxy maps HTTP calls onto per-service topology clients.
type Proxy struct {
	template     topology.Config
	log          *logger.Logger
	newTransport TransportFactory

	mu      sync.Mutex
	clients map[string]*topology.Client
	stopped bool
}

// New creates a Proxy. template supplies the registry address, timeouts and
// backoff for every proxied client; its Service and Transport fields are
// ignored.
func New(template topology.Config, log *logger.Logger, opts ...Option) *Proxy {
	template.Transport = topology.TransportGRPC
	template.Disabled = false
	template.ApplyDefaults()

	p := &Proxy{
		template: template,
		log:      log.WithComponent(ServiceName),
		clients:  make(map[string]*topology.Client),
	}
	p.newTransport = func() (topology.Transport, error) {
		return grpcstream.New(grpcstream.Config{
			Address:     p.template.Address,
			CallTimeout: p.template.CallTimeout,
		}, p.log)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Routes registers the proxy endpoints on r.
func (p *Proxy) Routes(r gin.IRouter) {
	r.POST(httpproxy.PathRegister, p.register)
	r.POST(httpproxy.PathHeartbeat, p.heartbeat)
	r.POST(httpproxy.PathActivity, p.activity)
	r.POST(httpproxy.PathUnregister, p.unregister)
	r.GET(httpproxy.PathHealth, endpoint.Health(ServiceName, nil, func(context.Context) map[string]any {
		return map[string]any{"services": p.Services()}
	}))
}

// Services returns how many services the proxy currently holds.
func (p *Proxy) Services() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *Proxy) register(c *gin.Context) {
	var req httpproxy.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Missing required fields")
		return
	}
	desc, ok := req.Descriptor()
	if !ok {
		abort(c, http.StatusBadRequest, "Invalid serviceType or language")
		return
	}

	client, err := p.open(desc)
	if err != nil {
		if errors.Is(err, ErrStopped) {
			abort(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	status, err := client.Register(ctx)
	if status != topology.StatusRegistered {
		_ = client.Shutdown(context.WithoutCancel(ctx))
		msg := "registration not attempted"
		if err != nil {
			msg = err.Error()
		}
		p.log.Warn("Proxied registration failed", logger.Fields(logger.FieldService, desc.ServiceName, logger.FieldError, msg))
		abort(c, http.StatusBadGateway, msg)
		return
	}

	id := client.ServiceID()
	if !p.add(id, client) {
		_ = client.Shutdown(context.WithoutCancel(ctx))
		abort(c, http.StatusServiceUnavailable, ErrStopped.Error())
		return
	}
	if err := client.Start(context.WithoutCancel(ctx)); err != nil {
		p.log.Warn("Proxied client did not start", logger.MergeWithError(logger.Fields(logger.FieldServiceID, id), err))
	}

	p.log.Info("Service registered via proxy", logger.Fields(
		logger.FieldService, desc.ServiceName,
		logger.FieldServiceID, id,
	))
	c.JSON(http.StatusOK, httpproxy.RegisterResponse{
		ServiceID:           id,
		HeartbeatIntervalMs: client.Status().HeartbeatInterval.Milliseconds(),
	})
}

// heartbeat confirms the caller's identity is still live. The proxied
// client heartbeats on its own stream; an identity it has lost is a 404 so
// the caller registers again.
func (p *Proxy) heartbeat(c *gin.Context) {
	var req httpproxy.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reject(c, apperrors.MissingField("serviceId"))
		return
	}
	if _, ok := p.live(req.ServiceID); !ok {
		abort(c, http.StatusNotFound, "Service not found")
		return
	}
	c.JSON(http.StatusOK, httpproxy.StatusResponse{Status: "ok"})
}

func (p *Proxy) activity(c *gin.Context) {
	var req httpproxy.ActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Missing required fields")
		return
	}
	ev, ok := req.Event()
	if !ok {
		abort(c, http.StatusBadRequest, "Invalid activity type")
		return
	}
	client, ok := p.live(req.ServiceID)
	if !ok {
		abort(c, http.StatusNotFound, "Service not found")
		return
	}
	client.Report(ev)
	c.JSON(http.StatusOK, httpproxy.StatusResponse{Status: "ok"})
}

func (p *Proxy) unregister(c *gin.Context) {
	var req httpproxy.UnregisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reject(c, apperrors.MissingField("serviceId"))
		return
	}
	client, ok := p.remove(req.ServiceID)
	if !ok {
		abort(c, http.StatusNotFound, "Service not found")
		return
	}
	if err := client.Shutdown(c.Request.Context()); err != nil {
		p.log.Warn("Proxied client shutdown incomplete", logger.MergeWithError(logger.Fields(logger.FieldServiceID, req.ServiceID), err))
	}
	p.log.Info("Service unregistered via proxy", logger.Fields(logger.FieldServiceID, req.ServiceID))
	c.JSON(http.StatusOK, httpproxy.StatusResponse{Status: "ok"})
}

// Stop shuts down every proxied client in parallel and refuses further
// registrations.
func (p *Proxy) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	clients := p.clients
	p.clients = make(map[string]*topology.Client)
	p.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for id, client := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				p.log.Warn("Proxied client shutdown incomplete", logger.MergeWithError(logger.Fields(logger.FieldServiceID, id), err))
			}
		}()
	}
	wg.Wait()
	p.log.Info("Topology proxy stopped", logger.Fields("services", len(clients)))
	return errors.Join(errs...)
}

func (p *Proxy) open(desc topology.Descriptor) (*topology.Client, error) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return nil, ErrStopped
	}

	t, err := p.newTransport()
	if err != nil {
		return nil, err
	}
	cfg := p.template
	cfg.Service = desc
	client, err := topology.New(cfg, t, p.log)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	return client, nil
}

func (p *Proxy) add(id string, client *topology.Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.clients[id] = client
	return true
}

func (p *Proxy) remove(id string) (*topology.Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	client, ok := p.clients[id]
	delete(p.clients, id)
	return client, ok
}

// live returns the client for id if it still holds that identity. A client
// whose identity moved on is dropped and shut down in the background.
func (p *Proxy) live(id string) (*topology.Client, bool) {
	p.mu.Lock()
	client, ok := p.clients[id]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	if client.ServiceID() == id {
		return client, true
	}

	if stale, removed := p.remove(id); removed {
		p.log.Info("Dropping proxied client with stale identity", logger.Fields(logger.FieldServiceID, id))
		go func() { _ = stale.Shutdown(context.Background()) }()
	}
	return nil, false
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, httpproxy.ErrorResponse{Error: msg})
}

func reject(c *gin.Context, e *apperrors.AppError) {
	abort(c, e.HTTPStatus, e.Message)
}
