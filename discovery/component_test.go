package discovery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Michael--/modular-runtime/component"
	"github.com/Michael--/modular-runtime/discovery"
	dtest "github.com/Michael--/modular-runtime/discovery/testutil"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/resilience"
	"github.com/Michael--/modular-runtime/testutil"
)

func newComponent(t *testing.T, name string, reg discovery.Registration) (*discovery.Component, *dtest.Component) {
	t.Helper()
	backend := dtest.NewComponent()
	testutil.T(t).Setup(backend)
	discovery.RegisterProviderFactory(name, backend.Factory())

	c := discovery.NewComponent(discovery.Config{
		Provider:     name,
		Registration: reg,
		Backoff:      resilience.BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2},
	}, nil, logger.Nop())
	return c, backend
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestComponent_RegistersAndDeregisters(t *testing.T) {
	reg := discovery.Registration{Interface: calculator, Host: "127.0.0.1", Port: 5556}
	c, backend := newComponent(t, "memory-register", reg)
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "registration", c.Registered)
	if backend.Registrations() != 1 {
		t.Errorf("Registrations = %d", backend.Registrations())
	}
	if h := c.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("health = %+v", h)
	}

	inst, err := c.Resolver().Resolve(ctx, discovery.Query{Interface: calculator})
	if err != nil {
		t.Fatalf("Resolve own registration: %v", err)
	}
	if inst.Role != discovery.DefaultRole {
		t.Errorf("registration role = %q", inst.Role)
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if list, _ := backend.Available(ctx); len(list) != 0 {
		t.Errorf("still registered after Stop: %+v", list)
	}
}

func TestComponent_PendingIsDegraded(t *testing.T) {
	reg := discovery.Registration{Interface: calculator, Host: "127.0.0.1", Port: 5556}
	c, backend := newComponent(t, "memory-pending", reg)
	ctx := context.Background()

	if h := c.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("before Start: %+v", h)
	}

	backend.FailRegister(errors.New("broker down"))
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Stop(ctx) }()

	waitFor(t, "degraded health", func() bool {
		h := c.Health(ctx)
		return h.Status == component.StatusDegraded && h.Message == "broker down"
	})
	backend.FailRegister(nil)
	waitFor(t, "registration after recovery", c.Registered)
}

func TestComponent_DiscoveryOnly(t *testing.T) {
	c, backend := newComponent(t, "memory-only", discovery.Registration{})
	backend.AddInstance(discovery.ServiceInstance{Interface: calculator, Host: "10.0.0.1", Port: 5556})
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Stop(ctx) }()

	if h := c.Health(ctx); h.Status != component.StatusHealthy || h.Message != "discovery only" {
		t.Errorf("health = %+v", h)
	}
	if backend.Registrations() != 0 {
		t.Error("discovery-only component registered")
	}
	if _, err := c.Resolver().Resolve(ctx, discovery.Query{Interface: calculator}); err != nil {
		t.Errorf("Resolve: %v", err)
	}
}

func TestComponent_UnknownProvider(t *testing.T) {
	c := discovery.NewComponent(discovery.Config{Provider: "etcd"}, nil, logger.Nop())
	if err := c.Start(context.Background()); err == nil {
		t.Error("expected error for unregistered provider")
	}
}
