package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Michael--/modular-runtime/component"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/resilience"
)

const componentName = "discovery"

// Component owns a discovery backend for the life of a process. When the
// Config carries a Registration it announces it in the background, retrying
// with backoff until the backend accepts it, and withdraws it on Stop.
type Component struct {
	cfg         Config
	providerCfg any
	log         *logger.Logger

	mu         sync.RWMutex
	registry   Registry
	discovery  Discovery
	resolver   *Resolver
	registered bool
	lastErr    error
	cancel     context.CancelFunc
	done       chan struct{}
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a discovery Component. providerCfg holds
// provider-specific configuration (e.g. *consul.Config) and may be nil.
func NewComponent(cfg Config, providerCfg any, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	return &Component{
		cfg:         cfg,
		providerCfg: providerCfg,
		log:         log.WithComponent(componentName),
	}
}

// Name returns the component name.
func (c *Component) Name() string { return componentName }

// Resolver returns the caching resolver, or nil before Start.
func (c *Component) Resolver() *Resolver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolver
}

// Registered reports whether the Registration has been accepted.
func (c *Component) Registered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered
}

// Start builds the backend and begins announcing the Registration. It does
// not wait for the backend to accept it.
func (c *Component) Start(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	reg, disc, err := NewProvider(c.cfg, c.providerCfg, c.log)
	if err != nil {
		return fmt.Errorf("discovery start: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	c.registry = reg
	c.discovery = disc
	c.resolver = NewResolver(disc, c.cfg, c.log)
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	if !c.cfg.Registration.Enabled() {
		close(done)
		c.log.Info("Discovery started", logger.Fields("provider", c.cfg.Provider))
		return nil
	}
	go c.registerLoop(runCtx, reg, done)
	c.log.Info("Discovery started", logger.Fields(
		"provider", c.cfg.Provider,
		"interface", c.cfg.Registration.Interface,
		"address", c.cfg.Registration.Instance().Address(),
	))
	return nil
}

func (c *Component) registerLoop(ctx context.Context, reg Registry, done chan struct{}) {
	defer close(done)
	b := resilience.NewBackoff(c.cfg.Backoff)
	for {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		err := reg.Register(callCtx, c.cfg.Registration)
		cancel()
		if err == nil {
			c.mu.Lock()
			c.registered = true
			c.lastErr = nil
			c.mu.Unlock()
			c.log.Info("Service registered with discovery", logger.Fields(
				"interface", c.cfg.Registration.Interface,
				"role", c.cfg.Registration.Role,
			))
			return
		}
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		delay := b.ScheduleRetry()
		c.log.Warn("Discovery registration failed, retrying", logger.MergeWithError(
			logger.Fields("interface", c.cfg.Registration.Interface, logger.FieldDelay, delay.String()), err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop ends the registration loop, withdraws an accepted Registration and
// closes the backend.
func (c *Component) Stop(ctx context.Context) error {
	c.mu.RLock()
	cancel, done, reg, disc := c.cancel, c.done, c.registry, c.discovery
	c.mu.RUnlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	var errs []error
	if c.Registered() {
		if err := reg.Deregister(ctx, c.cfg.Registration); err != nil {
			c.log.Warn("Failed to deregister on stop", logger.MergeWithError(logger.Fields("interface", c.cfg.Registration.Interface), err))
			errs = append(errs, err)
		}
		c.mu.Lock()
		c.registered = false
		c.mu.Unlock()
	}
	if err := disc.Close(); err != nil {
		errs = append(errs, err)
	}
	if any(reg) != any(disc) {
		if err := reg.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("discovery stop: %w", errs[0])
	}
	return nil
}

// Health reports degraded while a Registration is still pending.
func (c *Component) Health(_ context.Context) component.Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.discovery == nil:
		return component.Health{Name: componentName, Status: component.StatusUnhealthy, Message: "discovery not started"}
	case !c.cfg.Registration.Enabled():
		return component.Health{Name: componentName, Status: component.StatusHealthy, Message: "discovery only"}
	case c.registered:
		return component.Health{Name: componentName, Status: component.StatusHealthy}
	case c.lastErr != nil:
		return component.Health{Name: componentName, Status: component.StatusDegraded, Message: c.lastErr.Error()}
	default:
		return component.Health{Name: componentName, Status: component.StatusDegraded, Message: "registration pending"}
	}
}
