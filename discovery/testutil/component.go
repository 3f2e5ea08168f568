package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/Michael--/modular-runtime/component"
	"github.com/Michael--/modular-runtime/discovery"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/testutil"
)

// Component is an in-memory discovery backend.
type Component struct {
	mu        sync.RWMutex
	instances []discovery.ServiceInstance
	started   bool
	failRegister  error
	registers int
}

var (
	_ component.Component    = (*Component)(nil)
	_ testutil.TestComponent = (*Component)(nil)
	_ discovery.Registry     = (*Component)(nil)
	_ discovery.Discovery    = (*Component)(nil)
)

// NewComponent creates an empty Component.
func NewComponent() *Component {
	return &Component{}
}

// AddInstance seeds an instance. It may be called before Start.
func (c *Component) AddInstance(inst discovery.ServiceInstance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances = append(c.instances, inst)
}

// FailRegister makes Register fail with err until called again with nil.
func (c *Component) FailRegister(err error) {
	c.mu.Lock()
	c.failRegister = err
	c.mu.Unlock()
}

// Registrations returns how many Register calls succeeded.
func (c *Component) Registrations() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registers
}

// Factory returns a discovery.ProviderFactory that always hands out c.
func (c *Component) Factory() discovery.ProviderFactory {
	return func(discovery.Config, any, *logger.Logger) (discovery.Registry, discovery.Discovery, error) {
		return c, c, nil
	}
}

func (c *Component) Name() string { return "discovery-test" }

func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("component already started")
	}
	c.started = true
	return nil
}

func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	return nil
}

func (c *Component) Health(_ context.Context) component.Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.started {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "not started"}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

func (c *Component) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return fmt.Errorf("component not started")
	}
	c.instances = nil
	c.registers = 0
	c.failRegister = nil
	return nil
}

func (c *Component) Snapshot(_ context.Context) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.started {
		return nil, fmt.Errorf("component not started")
	}
	snap := make([]discovery.ServiceInstance, len(c.instances))
	copy(snap, c.instances)
	return snapshot(snap), nil
}

func (c *Component) Restore(_ context.Context, s any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return fmt.Errorf("component not started")
	}
	snap, ok := s.(snapshot)
	if !ok {
		return fmt.Errorf("invalid snapshot type: %T", s)
	}
	c.instances = append([]discovery.ServiceInstance(nil), snap...)
	return nil
}

type snapshot []discovery.ServiceInstance

func (c *Component) Register(_ context.Context, r discovery.Registration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRegister != nil {
		return c.failRegister
	}
	c.registers++
	c.instances = append(c.instances, r.Instance())
	return nil
}

func (c *Component) Deregister(_ context.Context, r discovery.Registration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, inst := range c.instances {
		if inst.Interface == r.Interface && inst.Role == r.Role {
			c.instances = append(c.instances[:i], c.instances[i+1:]...)
			return nil
		}
	}
	return nil
}

func (c *Component) Available(_ context.Context) ([]discovery.ServiceInstance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]discovery.ServiceInstance, len(c.instances))
	copy(out, c.instances)
	return out, nil
}

func (c *Component) Lookup(ctx context.Context, q discovery.Query) (discovery.ServiceInstance, error) {
	list, _ := c.Available(ctx)
	if inst, ok := discovery.Find(list, q); ok {
		return inst, nil
	}
	return discovery.ServiceInstance{}, discovery.ErrServiceNotFound
}

// Watch emits nothing; the channel closes when ctx ends.
func (c *Component) Watch(ctx context.Context) (<-chan discovery.ServiceChange, error) {
	ch := make(chan discovery.ServiceChange)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (c *Component) Close() error { return nil }
