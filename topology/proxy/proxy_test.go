package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/resilience"
	"github.com/Michael--/modular-runtime/topology"
	"github.com/Michael--/modular-runtime/topology/httpproxy"
	"github.com/Michael--/modular-runtime/topology/topologytest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var template = topology.Config{
	LivenessInterval:  10 * time.Millisecond,
	DrainTimeout:      200 * time.Millisecond,
	UnregisterTimeout: 200 * time.Millisecond,
	Backoff:           resilience.BackoffConfig{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 2},
}

func newTestProxy(t *testing.T) (*Proxy, *topologytest.Registry, http.Handler) {
	t.Helper()
	reg := topologytest.NewRegistry()
	p := New(template, logger.Nop(), WithTransportFactory(func() (topology.Transport, error) {
		return reg.Streaming(), nil
	}))
	engine := gin.New()
	p.Routes(engine)
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return p, reg, engine
}

func post(t *testing.T, h http.Handler, path string, body any) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)

	var out map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	return rr.Code, out
}

func registerBody() map[string]any {
	return map[string]any{
		"serviceName":      "calc-py",
		"serviceType":      "SERVICE_TYPE_CLIENT",
		"language":         "SERVICE_LANGUAGE_PYTHON",
		"serviceInterface": "calculator.v1.CalculatorService",
	}
}

func mustRegister(t *testing.T, h http.Handler) string {
	t.Helper()
	code, body := post(t, h, httpproxy.PathRegister, registerBody())
	if code != http.StatusOK {
		t.Fatalf("register: %d %v", code, body)
	}
	id, _ := body["serviceId"].(string)
	if id == "" {
		t.Fatalf("register returned no id: %v", body)
	}
	return id
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

func TestRegister(t *testing.T) {
	p, reg, h := newTestProxy(t)

	code, body := post(t, h, httpproxy.PathRegister, registerBody())
	if code != http.StatusOK {
		t.Fatalf("status %d, body %v", code, body)
	}
	id := body["serviceId"].(string)
	if body["heartbeatIntervalMs"] != float64(5000) {
		t.Errorf("heartbeatIntervalMs = %v", body["heartbeatIntervalMs"])
	}
	if p.Services() != 1 || !reg.IsRegistered(id) {
		t.Fatalf("proxy holds %d, registry has %v", p.Services(), reg.IsRegistered(id))
	}

	d, _ := reg.Descriptor(id)
	if d.Language != "python" || d.Kind != topology.KindClient || d.Interface != "calculator.v1.CalculatorService" {
		t.Errorf("descriptor = %+v", d)
	}
	if !d.ActivityEnabled {
		t.Error("enableActivity should default to true")
	}
}

func TestRegister_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"serviceType": "SERVICE_TYPE_CLIENT", "language": "SERVICE_LANGUAGE_GO"}},
		{"unknown type", map[string]any{"serviceName": "x", "serviceType": "SERVICE_TYPE_DAEMON", "language": "SERVICE_LANGUAGE_GO"}},
		{"bare language", map[string]any{"serviceName": "x", "serviceType": "SERVICE_TYPE_CLIENT", "language": "GO"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, h := newTestProxy(t)
			code, body := post(t, h, httpproxy.PathRegister, tt.body)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d", code)
			}
			if body["error"] == nil {
				t.Error("missing error field")
			}
			if p.Services() != 0 {
				t.Error("bad request created a client")
			}
		})
	}
}

func TestRegister_RegistryDown(t *testing.T) {
	p, reg, h := newTestProxy(t)
	reg.SetUnreachable(true)

	code, _ := post(t, h, httpproxy.PathRegister, registerBody())
	if code != http.StatusBadGateway {
		t.Errorf("status = %d", code)
	}
	if p.Services() != 0 {
		t.Error("failed registration kept a client")
	}
}

func TestHeartbeat(t *testing.T) {
	_, _, h := newTestProxy(t)
	id := mustRegister(t, h)

	if code, body := post(t, h, httpproxy.PathHeartbeat, map[string]any{"serviceId": id, "sequence": 1}); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("heartbeat: %d %v", code, body)
	}
	code, body := post(t, h, httpproxy.PathHeartbeat, map[string]any{"serviceId": "ghost"})
	if code != http.StatusNotFound || body["error"] != "Service not found" {
		t.Errorf("unknown id: %d %v", code, body)
	}
	if code, _ := post(t, h, httpproxy.PathHeartbeat, map[string]any{}); code != http.StatusBadRequest {
		t.Errorf("missing id: %d", code)
	}
}

func TestHeartbeat_StaleIdentity(t *testing.T) {
	p, reg, h := newTestProxy(t)
	reg.SetHeartbeatInterval(20 * time.Millisecond)
	id := mustRegister(t, h)

	reg.Evict(id)
	eventually(t, "404 for evicted id", func() bool {
		code, _ := post(t, h, httpproxy.PathHeartbeat, map[string]any{"serviceId": id})
		return code == http.StatusNotFound
	})
	if p.Services() != 0 {
		t.Errorf("stale client still held, services = %d", p.Services())
	}
}

func TestActivity(t *testing.T) {
	_, reg, h := newTestProxy(t)
	id := mustRegister(t, h)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing type", map[string]any{"serviceId": id, "targetService": "calc"}, http.StatusBadRequest},
		{"unknown type", map[string]any{"serviceId": id, "targetService": "calc", "type": "ACTIVITY_TYPE_NAP"}, http.StatusBadRequest},
		{"unknown service", map[string]any{"serviceId": "ghost", "targetService": "calc", "type": "ACTIVITY_TYPE_ERROR"}, http.StatusNotFound},
		{"accepted", map[string]any{
			"serviceId":     id,
			"targetService": "calculator-server",
			"type":          "ACTIVITY_TYPE_REQUEST_SENT",
			"latencyMs":     12,
			"success":       true,
		}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := post(t, h, httpproxy.PathActivity, tt.body); code != tt.want {
				t.Errorf("status = %d, want %d (%v)", code, tt.want, body)
			}
		})
	}

	eventually(t, "activity forwarded", func() bool { return len(reg.Activity()) == 1 })
	got := reg.Activity()[0]
	if got.ServiceID != id || got.Event.Target != "calculator-server" || *got.Event.Latency != 12*time.Millisecond {
		t.Errorf("forwarded %+v", got)
	}
}

func TestUnregister(t *testing.T) {
	p, reg, h := newTestProxy(t)
	id := mustRegister(t, h)

	if code, _ := post(t, h, httpproxy.PathUnregister, map[string]any{"serviceId": id}); code != http.StatusOK {
		t.Fatalf("unregister status %d", code)
	}
	if p.Services() != 0 || reg.IsRegistered(id) || reg.UnregisterCalls() != 1 {
		t.Errorf("services %d, registered %v, calls %d", p.Services(), reg.IsRegistered(id), reg.UnregisterCalls())
	}
	if code, _ := post(t, h, httpproxy.PathUnregister, map[string]any{"serviceId": id}); code != http.StatusNotFound {
		t.Errorf("second unregister status %d", code)
	}
}

func TestHealth(t *testing.T) {
	_, _, h := newTestProxy(t)
	mustRegister(t, h)
	mustRegister(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, httpproxy.PathHealth, http.NoBody))
	var body httpproxy.HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if rr.Code != http.StatusOK || body.Status != "healthy" || body.Services != 2 {
		t.Errorf("health: %d %+v", rr.Code, body)
	}
}

func TestStop(t *testing.T) {
	p, reg, h := newTestProxy(t)
	mustRegister(t, h)
	mustRegister(t, h)

	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if reg.Services() != 0 || reg.UnregisterCalls() != 2 {
		t.Errorf("registry services %d, unregister calls %d", reg.Services(), reg.UnregisterCalls())
	}
	if code, _ := post(t, h, httpproxy.PathRegister, registerBody()); code != http.StatusServiceUnavailable {
		t.Errorf("register after stop: %d", code)
	}

	comp := NewComponent(p)
	if comp.Name() != ServiceName || comp.Health(context.Background()).Message != "0 services" {
		t.Errorf("component = %s %+v", comp.Name(), comp.Health(context.Background()))
	}
}

func TestPollingClientThroughProxy(t *testing.T) {
	_, reg, h := newTestProxy(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	tr, err := httpproxy.New(httpproxy.Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	c, err := topology.New(topology.Config{
		Transport:        topology.TransportHTTP,
		LivenessInterval: 10 * time.Millisecond,
		Backoff:          template.Backoff,
		Service: topology.Descriptor{
			ServiceName:     "calc-client",
			Kind:            topology.KindClient,
			ActivityEnabled: true,
		},
	}, tr, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	eventually(t, "registration through proxy", func() bool { return c.ServiceID() != "" })
	id := c.ServiceID()

	c.Report(topology.ActivityEvent{Target: "calculator-server", Kind: topology.ActivityResponseReceived})
	eventually(t, "activity at registry", func() bool { return len(reg.Activity()) == 1 })

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		t.Fatal(err)
	}
	if reg.IsRegistered(id) {
		t.Error("service still registered after client shutdown")
	}
}
