package topology

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Michael--/modular-runtime/logger"
)

// Status is a snapshot of a Client.
type Status struct {
	ServiceID         string        `json:"serviceId,omitempty"`
	HeartbeatInterval time.Duration `json:"heartbeatInterval"`
	ActivityEnabled   bool          `json:"activityEnabled"`
	State             string        `json:"state"`
	PendingActivity   int           `json:"pendingActivity"`
}

// Client is what a service embeds: a Session driven by a LivenessLoop, an
// activity Reporter and a ShutdownCoordinator, wired together. A disabled
// Client accepts every call and does nothing.
type Client struct {
	cfg       Config
	log       *logger.Logger
	transport Transport
	session   *Session
	reporter  *Reporter
	loop      *LivenessLoop
	shutdown  *ShutdownCoordinator

	startOnce sync.Once
	// closed stands in for Done when disabled
	closed chan struct{}
}

// New creates a Client for cfg.Service over transport. cfg defaults are
// applied here. transport may be nil when cfg.Disabled is set.
func New(cfg Config, transport Transport, log *logger.Logger, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, log: log.WithComponent("topology"), transport: transport}
	if cfg.Disabled {
		c.closed = make(chan struct{})
		close(c.closed)
		c.log.Info("Topology reporting disabled")
		return c, nil
	}

	base := []Option{
		WithBackoff(cfg.Backoff),
		WithCallTimeout(cfg.CallTimeout),
		WithShutdownTimeouts(cfg.DrainTimeout, cfg.UnregisterTimeout),
	}
	opts = append(base, opts...)

	session, err := NewSession(cfg.Service, transport, log, opts...)
	if err != nil {
		return nil, err
	}
	c.session = session
	c.reporter = NewReporter(session, cfg.Service.ActivityEnabled, log, opts...)
	c.loop = NewLivenessLoop(session, cfg.LivenessInterval, log)
	c.shutdown = NewShutdownCoordinator(session, c.reporter, c.loop, log, opts...)
	c.shutdown.OnStopped(transport.Close)
	return c, nil
}

// Enabled reports whether the client talks to a registry.
func (c *Client) Enabled() bool { return c.session != nil }

// Start launches the activity sender and the liveness loop. It does not
// wait for registration.
func (c *Client) Start(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	if c.shutdown.State() != StateRunning {
		return fmt.Errorf("topology: client already shut down")
	}
	c.startOnce.Do(func() {
		c.reporter.Start()
		c.loop.Start(context.WithoutCancel(ctx))
		c.log.Info("Topology client started", logger.Fields(
			logger.FieldService, c.cfg.Service.ServiceName,
			"transport", c.cfg.Transport,
		))
	})
	return nil
}

// Register makes one registration attempt now, outside the liveness loop.
func (c *Client) Register(ctx context.Context) (RegistrationStatus, error) {
	if !c.Enabled() {
		return StatusNotYetEligible, nil
	}
	return c.session.EnsureRegistered(ctx)
}

// Report queues an activity event. It never blocks.
func (c *Client) Report(ev ActivityEvent) {
	if c.reporter != nil {
		c.reporter.Report(ev)
	}
}

// ServiceID returns the registry identity, or "".
func (c *Client) ServiceID() string {
	if c.session == nil {
		return ""
	}
	return c.session.ServiceID()
}

// SetHealth sets the health attached to subsequent heartbeats.
func (c *Client) SetHealth(h *ApplicationHealth) {
	if c.session != nil {
		c.session.SetHealth(h)
	}
}

// SetMetrics sets the metrics attached to subsequent heartbeats.
func (c *Client) SetMetrics(m map[string]float64) {
	if c.session != nil {
		c.session.SetMetrics(m)
	}
}

// Status returns a snapshot of the client.
func (c *Client) Status() Status {
	if !c.Enabled() {
		return Status{State: StateStopped.String()}
	}
	return Status{
		ServiceID:         c.session.ServiceID(),
		HeartbeatInterval: c.session.HeartbeatInterval(),
		ActivityEnabled:   c.reporter.Enabled(),
		State:             c.shutdown.State().String(),
		PendingActivity:   c.reporter.Pending(),
	}
}

// Watch shuts the client down on SIGINT or SIGTERM.
func (c *Client) Watch(ctx context.Context) {
	if c.Enabled() {
		c.shutdown.Watch(ctx)
	}
}

// Shutdown stops the loop, drains activity, unregisters and closes the
// transport. It is safe to call more than once.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.shutdown.Shutdown(ctx, "shutdown requested")
}

// Done is closed once shutdown has completed.
func (c *Client) Done() <-chan struct{} {
	if !c.Enabled() {
		return c.closed
	}
	return c.shutdown.Done()
}
