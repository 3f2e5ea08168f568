package topology_test

import (
	"context"
	"testing"
	"time"

	"github.com/Michael--/modular-runtime/component"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/topology"
	"github.com/Michael--/modular-runtime/topology/topologytest"
)

func clientConfig() topology.Config {
	return topology.Config{
		Transport:        topology.TransportHTTP,
		LivenessInterval: 10 * time.Millisecond,
		Backoff:          fastBackoff,
		Service:          testDescriptor(true),
	}
}

func TestNew_Disabled(t *testing.T) {
	c, err := topology.New(topology.Config{Disabled: true}, nil, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Enabled() {
		t.Fatal("disabled client reports enabled")
	}

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Errorf("Start: %v", err)
	}
	c.Report(topology.ActivityEvent{Target: "calculator"})
	c.SetHealth(&topology.ApplicationHealth{State: topology.HealthHealthy})
	c.SetMetrics(map[string]float64{"x": 1})
	if status, err := c.Register(ctx); status != topology.StatusNotYetEligible || err != nil {
		t.Errorf("Register = %v, %v", status, err)
	}
	if c.ServiceID() != "" {
		t.Error("disabled client has an identity")
	}
	if st := c.Status(); st.State != "stopped" {
		t.Errorf("status state = %q", st.State)
	}
	if err := c.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done not closed for disabled client")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	reg := topologytest.NewRegistry()
	cfg := clientConfig()
	cfg.Service.ServiceName = ""
	if _, err := topology.New(cfg, reg.Polling(), logger.Nop()); err == nil {
		t.Error("expected error for missing service name")
	}
}

func TestClient_Lifecycle(t *testing.T) {
	reg := topologytest.NewRegistry()
	c, err := topology.New(clientConfig(), reg.Polling(), logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	eventually(t, "registration", func() bool { return c.ServiceID() != "" })

	st := c.Status()
	if st.ServiceID != c.ServiceID() || !st.ActivityEnabled || st.State != "running" {
		t.Errorf("unexpected status %+v", st)
	}
	if st.HeartbeatInterval != 5*time.Second {
		t.Errorf("heartbeat interval = %v", st.HeartbeatInterval)
	}

	c.Report(topology.ActivityEvent{Target: "calculator", Kind: topology.ActivityRequestSent})
	eventually(t, "activity delivered", func() bool { return len(reg.Activity()) == 1 })

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	<-c.Done()

	if reg.Services() != 0 || reg.UnregisterCalls() != 1 {
		t.Errorf("services %d, unregister calls %d", reg.Services(), reg.UnregisterCalls())
	}
	if reg.CloseCalls() != 1 {
		t.Errorf("transport closed %d times", reg.CloseCalls())
	}
	if err := c.Start(ctx); err == nil {
		t.Error("Start after Shutdown should fail")
	}
}

func TestClient_RegisterNow(t *testing.T) {
	reg := topologytest.NewRegistry()
	c, err := topology.New(clientConfig(), reg.Streaming(), logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Shutdown(context.Background()) }()

	status, err := c.Register(context.Background())
	if status != topology.StatusRegistered || err != nil {
		t.Fatalf("Register = %v, %v", status, err)
	}
	c.SetMetrics(map[string]float64{"inflight": 3})
	if c.ServiceID() == "" {
		t.Error("no identity after Register")
	}
}

func TestComponent_Health(t *testing.T) {
	reg := topologytest.NewRegistry()
	c, err := topology.New(clientConfig(), reg.Polling(), logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	comp := topology.NewComponent(c)
	ctx := context.Background()

	if comp.Name() != "topology" {
		t.Errorf("Name() = %q", comp.Name())
	}
	if h := comp.Health(ctx); h.Status != component.StatusDegraded {
		t.Errorf("health before registration = %v", h.Status)
	}

	if err := comp.Start(ctx); err != nil {
		t.Fatal(err)
	}
	eventually(t, "healthy", func() bool { return comp.Health(ctx).Status == component.StatusHealthy })

	if err := comp.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if h := comp.Health(ctx); h.Status != component.StatusUnhealthy || h.Message != "stopped" {
		t.Errorf("health after stop = %+v", h)
	}
}

func TestComponent_Disabled(t *testing.T) {
	c, err := topology.New(topology.Config{Disabled: true}, nil, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	h := topology.NewComponent(c).Health(context.Background())
	if h.Status != component.StatusHealthy || h.Message != "disabled" {
		t.Errorf("health = %+v", h)
	}
}
