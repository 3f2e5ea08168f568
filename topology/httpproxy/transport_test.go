package httpproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/topology"
)

// fakeProxy records request bodies by path and answers with canned bodies.
type fakeProxy struct {
	mu      sync.Mutex
	bodies  map[string][]map[string]any
	status  map[string]int
	replies map[string]any
}

func newFakeProxy() *fakeProxy {
	return &fakeProxy{
		bodies: make(map[string][]map[string]any),
		status: make(map[string]int),
		replies: map[string]any{
			PathRegister: RegisterResponse{ServiceID: "svc-1", HeartbeatIntervalMs: 2000},
			PathHealth:   HealthResponse{Status: "healthy", Services: 2},
		},
	}
}

func (p *fakeProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	p.bodies[r.URL.Path] = append(p.bodies[r.URL.Path], body)
	status, reply := p.status[r.URL.Path], p.replies[r.URL.Path]
	p.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	if reply == nil {
		reply = StatusResponse{Status: "ok"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(reply)
}

func (p *fakeProxy) last(path string) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.bodies[path]
	if len(b) == 0 {
		return nil
	}
	return b[len(b)-1]
}

func (p *fakeProxy) set(path string, status int, reply any) {
	p.mu.Lock()
	p.status[path] = status
	p.replies[path] = reply
	p.mu.Unlock()
}

func newTestTransport(t *testing.T) (*Transport, *fakeProxy) {
	t.Helper()
	p := newFakeProxy()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)

	tr, err := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr, p
}

func TestTransport_Register(t *testing.T) {
	tr, p := newTestTransport(t)

	handle, err := tr.Register(context.Background(), topology.Descriptor{
		ServiceName: "calculator-client",
		Kind:        topology.KindClient,
		Language:    topology.LanguageGo,
		Interface:   "calculator.v1.CalculatorService",
		Role:        "default",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if handle.ServiceID != "svc-1" || handle.HeartbeatInterval != 2*time.Second {
		t.Errorf("handle = %+v", handle)
	}

	body := p.last(PathRegister)
	want := map[string]any{
		"serviceName":      "calculator-client",
		"serviceType":      "SERVICE_TYPE_CLIENT",
		"language":         "SERVICE_LANGUAGE_GO",
		"serviceInterface": "calculator.v1.CalculatorService",
		"serviceRole":      "default",
		"enableActivity":   false,
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body[%q] = %v, want %v", k, body[k], v)
		}
	}
}

func TestTransport_RegisterDefaults(t *testing.T) {
	tr, p := newTestTransport(t)
	p.set(PathRegister, http.StatusOK, map[string]any{"serviceId": "svc-2"})

	handle, err := tr.Register(context.Background(), topology.Descriptor{ServiceName: "x", Kind: topology.KindServer})
	if err != nil {
		t.Fatal(err)
	}
	if handle.HeartbeatInterval != topology.DefaultHeartbeatInterval {
		t.Errorf("interval = %v, want default", handle.HeartbeatInterval)
	}
}

func TestTransport_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		reply    any
		protocol bool
	}{
		{"missing service id", http.StatusOK, map[string]any{"heartbeatIntervalMs": 1000}, true},
		{"server error", http.StatusInternalServerError, map[string]any{"error": "boom"}, true},
		{"bad request", http.StatusBadRequest, map[string]any{"error": "missing"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, p := newTestTransport(t)
			p.set(PathRegister, tt.status, tt.reply)

			_, err := tr.Register(context.Background(), topology.Descriptor{ServiceName: "x", Kind: topology.KindClient})
			if err == nil {
				t.Fatal("expected error")
			}
			if topology.IsProtocol(err) != tt.protocol {
				t.Errorf("IsProtocol(%v) = %v", err, !tt.protocol)
			}
		})
	}
}

func TestTransport_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr, err := New(Config{BaseURL: url, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	_, err = tr.Register(context.Background(), topology.Descriptor{ServiceName: "x", Kind: topology.KindClient})
	if !topology.IsTransport(err) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestTransport_HeartbeatAndUnknownService(t *testing.T) {
	tr, p := newTestTransport(t)
	ctx := context.Background()

	if err := tr.Heartbeat(ctx, topology.Heartbeat{ServiceID: "svc-1", Sequence: 7}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	body := p.last(PathHeartbeat)
	if body["serviceId"] != "svc-1" || body["sequence"] != float64(7) {
		t.Errorf("heartbeat body = %v", body)
	}

	p.set(PathHeartbeat, http.StatusNotFound, map[string]any{"error": "Service not found"})
	if err := tr.Heartbeat(ctx, topology.Heartbeat{ServiceID: "gone"}); !topology.IsProtocol(err) {
		t.Errorf("404 should be a protocol error, got %v", err)
	}
}

func TestTransport_ReportActivity(t *testing.T) {
	tr, p := newTestTransport(t)
	ts := time.UnixMilli(1700000000123)

	err := tr.ReportActivity(context.Background(), "svc-1", topology.ActivityEvent{
		Target:    "calculator-server",
		Kind:      topology.ActivityResponseReceived,
		Timestamp: ts,
		Latency:   topology.Duration(42 * time.Millisecond),
		Method:    "Calculate",
		Success:   topology.Bool(true),
	})
	if err != nil {
		t.Fatalf("ReportActivity: %v", err)
	}

	body := p.last(PathActivity)
	want := map[string]any{
		"serviceId":     "svc-1",
		"targetService": "calculator-server",
		"type":          "ACTIVITY_TYPE_RESPONSE_RECEIVED",
		"timestampMs":   float64(1700000000123),
		"latencyMs":     float64(42),
		"method":        "Calculate",
		"success":       true,
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body[%q] = %v, want %v", k, body[k], v)
		}
	}
	if _, ok := body["batchSize"]; ok {
		t.Error("unset batchSize should be omitted")
	}
}

func TestTransport_UnregisterAndHealth(t *testing.T) {
	tr, p := newTestTransport(t)
	ctx := context.Background()

	if err := tr.Unregister(ctx, "svc-1"); err != nil {
		t.Fatal(err)
	}
	if p.last(PathUnregister)["serviceId"] != "svc-1" {
		t.Error("unregister body missing serviceId")
	}

	h, err := tr.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "healthy" || h.Services != 2 {
		t.Errorf("health = %+v", h)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestTransport_DrivesSession(t *testing.T) {
	tr, p := newTestTransport(t)
	s, err := topology.NewSession(topology.Descriptor{ServiceName: "x", Kind: topology.KindClient}, tr, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if s.Streaming() {
		t.Fatal("http transport must be polling")
	}
	status, err := s.EnsureRegistered(context.Background())
	if status != topology.StatusRegistered || err != nil {
		t.Fatalf("EnsureRegistered = %v, %v", status, err)
	}
	if err := s.Unregister(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.last(PathUnregister)["serviceId"] != "svc-1" {
		t.Error("session did not unregister through the proxy")
	}
}

func TestMessages_Decode(t *testing.T) {
	req := RegisterRequest{
		ServiceName: "calc",
		ServiceType: "SERVICE_TYPE_SERVER",
		Language:    "SERVICE_LANGUAGE_RUST",
	}
	d, ok := req.Descriptor()
	if !ok {
		t.Fatal("valid request rejected")
	}
	if d.Kind != topology.KindServer || d.Language != "rust" || !d.ActivityEnabled {
		t.Errorf("descriptor = %+v", d)
	}

	req.ServiceType = "SERVICE_TYPE_DAEMON"
	if _, ok := req.Descriptor(); ok {
		t.Error("unknown service type accepted")
	}

	latency := int64(15)
	ev, ok := ActivityRequest{
		ServiceID:     "svc-1",
		TargetService: "calc",
		Type:          "ACTIVITY_TYPE_REQUEST_SENT",
		TimestampMs:   1000,
		LatencyMs:     &latency,
	}.Event()
	if !ok {
		t.Fatal("valid activity rejected")
	}
	if ev.Kind != topology.ActivityRequestSent || *ev.Latency != 15*time.Millisecond || ev.Timestamp.UnixMilli() != 1000 {
		t.Errorf("event = %+v", ev)
	}
	if _, ok := (ActivityRequest{Type: "ACTIVITY_TYPE_NAP"}).Event(); ok {
		t.Error("unknown activity type accepted")
	}
}
