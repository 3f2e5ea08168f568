package grpcstream_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc/test/bufconn"

	grpccfg "github.com/Michael--/modular-runtime/grpc"
	"github.com/Michael--/modular-runtime/grpc/client"
	"github.com/Michael--/modular-runtime/grpc/server"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/resilience"
	"github.com/Michael--/modular-runtime/topology"
	"github.com/Michael--/modular-runtime/topology/grpcstream"
	"github.com/Michael--/modular-runtime/topology/topologytest"
)

func startRegistry(t *testing.T) (*topologytest.Registry, *grpcstream.Transport) {
	t.Helper()
	reg := topologytest.NewRegistry()
	lis := bufconn.Listen(1 << 20)

	srv, err := server.New(grpccfg.Config{}, logger.Nop(), server.WithListener(lis))
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	grpcstream.RegisterTopologyServiceServer(srv, reg.GRPCServer())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	tr, err := grpcstream.New(grpcstream.Config{Address: "bufnet:0", CallTimeout: time.Second}, logger.Nop(),
		client.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("grpcstream.New: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return reg, tr
}

func descriptor() topology.Descriptor {
	return topology.Descriptor{
		ServiceName:     "calculator-client",
		Kind:            topology.KindClient,
		Language:        topology.LanguageGo,
		Version:         "1.2.0",
		Interface:       "calculator.v1.CalculatorService",
		Role:            "default",
		ProgramName:     "calculator-client",
		Metadata:        map[string]string{"zone": "a"},
		ActivityEnabled: true,
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTransport_Register(t *testing.T) {
	reg, tr := startRegistry(t)
	reg.SetHeartbeatInterval(1500 * time.Millisecond)

	handle, err := tr.Register(context.Background(), descriptor())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if handle.HeartbeatInterval != 1500*time.Millisecond || handle.TimeoutMultiplier != 3 {
		t.Errorf("handle = %+v", handle)
	}

	got, ok := reg.Descriptor(handle.ServiceID)
	if !ok {
		t.Fatalf("service %s not registered", handle.ServiceID)
	}
	want := descriptor()
	if got.ServiceName != want.ServiceName || got.Kind != want.Kind || got.Language != want.Language ||
		got.Interface != want.Interface || got.Role != want.Role || got.ProgramName != want.ProgramName ||
		got.Metadata["zone"] != "a" || !got.ActivityEnabled {
		t.Errorf("registry saw %+v", got)
	}

	if err := tr.Unregister(context.Background(), handle.ServiceID); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if reg.IsRegistered(handle.ServiceID) {
		t.Error("still registered after Unregister")
	}
}

func TestTransport_RegisterFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*topologytest.Registry)
		protocol bool
	}{
		{"missing handle", func(r *topologytest.Registry) { r.OmitServiceID(true) }, true},
		{"registry unavailable", func(r *topologytest.Registry) { r.SetUnreachable(true) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, tr := startRegistry(t)
			tt.setup(reg)

			_, err := tr.Register(context.Background(), descriptor())
			if err == nil {
				t.Fatal("expected error")
			}
			if topology.IsProtocol(err) != tt.protocol || topology.IsTransport(err) == tt.protocol {
				t.Errorf("unexpected classification of %v", err)
			}
		})
	}
}

func TestTransport_Unreachable(t *testing.T) {
	tr, err := grpcstream.New(grpcstream.Config{Address: "bufnet:0", CallTimeout: 200 * time.Millisecond}, logger.Nop(),
		client.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tr.Close() }()

	if _, err := tr.Register(context.Background(), descriptor()); !topology.IsTransport(err) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestTransport_HeartbeatStream(t *testing.T) {
	reg, tr := startRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := tr.Register(ctx, descriptor())
	if err != nil {
		t.Fatal(err)
	}
	stream, err := tr.OpenHeartbeatStream(ctx)
	if err != nil {
		t.Fatalf("OpenHeartbeatStream: %v", err)
	}

	for seq := int64(1); seq <= 3; seq++ {
		err := stream.Send(topology.Heartbeat{
			ServiceID: handle.ServiceID,
			Sequence:  seq,
			Health:    &topology.ApplicationHealth{State: topology.HealthDegraded, Message: "warming up"},
			Metrics:   map[string]float64{"inflight": float64(seq)},
		})
		if err != nil {
			t.Fatalf("Send(%d): %v", seq, err)
		}
		ack, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if ack != seq {
			t.Errorf("ack = %d, want %d", ack, seq)
		}
	}

	if got := reg.Heartbeats(handle.ServiceID); len(got) != 3 || got[2] != 3 {
		t.Errorf("registry heartbeats = %v", got)
	}
	last, _ := reg.LastHeartbeat(handle.ServiceID)
	if last.Health == nil || last.Health.State != topology.HealthDegraded || last.Metrics["inflight"] != 3 {
		t.Errorf("last heartbeat = %+v", last)
	}
	if err := stream.CloseSend(); err != nil {
		t.Errorf("CloseSend: %v", err)
	}
}

func TestTransport_HeartbeatUnknownService(t *testing.T) {
	_, tr := startRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := tr.OpenHeartbeatStream(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.Send(topology.Heartbeat{ServiceID: "ghost", Sequence: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := stream.Recv(); !topology.IsProtocol(err) {
		t.Errorf("expected protocol error, got %v", err)
	}
}

func TestTransport_HeartbeatEndedWhileReading(t *testing.T) {
	_, tr := startRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := tr.OpenHeartbeatStream(ctx)
	if err != nil {
		t.Fatal(err)
	}

	recvErr := make(chan error, 1)
	go func() {
		for {
			if _, err := stream.Recv(); err != nil {
				recvErr <- err
				return
			}
		}
	}()

	var sendErr error
	deadline := time.Now().Add(2 * time.Second)
	for seq := int64(1); sendErr == nil && time.Now().Before(deadline); seq++ {
		sendErr = stream.Send(topology.Heartbeat{ServiceID: "ghost", Sequence: seq})
		time.Sleep(time.Millisecond)
	}
	if sendErr != nil && !topology.IsTransport(sendErr) {
		t.Errorf("send after the registry ended the stream = %v, want transport error", sendErr)
	}

	select {
	case err := <-recvErr:
		if !topology.IsProtocol(err) {
			t.Errorf("reader saw %v, want protocol error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader never saw the stream end")
	}
}

func TestTransport_BrokenStream(t *testing.T) {
	reg, tr := startRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := tr.Register(ctx, descriptor())
	if err != nil {
		t.Fatal(err)
	}
	stream, err := tr.OpenHeartbeatStream(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.Send(topology.Heartbeat{ServiceID: handle.ServiceID, Sequence: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Recv(); err != nil {
		t.Fatal(err)
	}

	reg.BreakStreams()
	if _, err := stream.Recv(); !topology.IsTransport(err) {
		t.Errorf("expected transport error after break, got %v", err)
	}
}

func TestTransport_ActivityStream(t *testing.T) {
	reg, tr := startRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := tr.Register(ctx, descriptor())
	if err != nil {
		t.Fatal(err)
	}
	stream, err := tr.OpenActivityStream(ctx)
	if err != nil {
		t.Fatalf("OpenActivityStream: %v", err)
	}

	ts := time.UnixMilli(1700000000000)
	for i := 1; i <= 3; i++ {
		err := stream.Send(handle.ServiceID, topology.ActivityEvent{
			Target:    "calculator-server",
			Kind:      topology.ActivityResponseReceived,
			Timestamp: ts,
			Latency:   topology.Duration(time.Duration(i) * time.Millisecond),
			Success:   topology.Bool(true),
			BatchSize: topology.Int(i),
		})
		if err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	accepted, err := stream.CloseAndRecv()
	if err != nil {
		t.Fatalf("CloseAndRecv: %v", err)
	}
	if accepted != 3 {
		t.Errorf("accepted = %d, want 3", accepted)
	}

	got := reg.Activity()
	if len(got) != 3 {
		t.Fatalf("registry activity = %d events", len(got))
	}
	ev := got[2].Event
	if ev.Kind != topology.ActivityResponseReceived || *ev.BatchSize != 3 || *ev.Latency != 3*time.Millisecond || !ev.Timestamp.Equal(ts) {
		t.Errorf("last event = %+v", ev)
	}
}

func TestTransport_DrivesClient(t *testing.T) {
	reg, tr := startRegistry(t)

	c, err := topology.New(topology.Config{
		Transport:        topology.TransportGRPC,
		LivenessInterval: 10 * time.Millisecond,
		Backoff:          resilience.BackoffConfig{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 2},
		Service:          descriptor(),
	}, tr, logger.Nop())
	if err != nil {
		t.Fatalf("topology.New: %v", err)
	}
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	eventually(t, "registration", func() bool { return c.ServiceID() != "" })
	id := c.ServiceID()
	eventually(t, "first heartbeat", func() bool { return len(reg.Heartbeats(id)) > 0 })

	c.Report(topology.ActivityEvent{Target: "calculator-server", Kind: topology.ActivityRequestSent})
	eventually(t, "activity", func() bool { return len(reg.Activity()) == 1 })

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if reg.IsRegistered(id) || reg.UnregisterCalls() != 1 {
		t.Errorf("registered %v, unregister calls %d", reg.IsRegistered(id), reg.UnregisterCalls())
	}
}
