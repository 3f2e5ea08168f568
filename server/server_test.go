package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Michael--/modular-runtime/component"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/server/endpoint"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{Address: "127.0.0.1:8080"}
	cfg.ApplyDefaults()

	if cfg.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.ReadTimeout)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d", cfg.MaxBodyBytes)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{Address: "127.0.0.1:8080"}},
		{name: "missing address", cfg: Config{}, wantErr: true},
		{name: "bad address", cfg: Config{Address: "no-port"}, wantErr: true},
		{name: "negative timeout", cfg: Config{Address: ":8080", ReadTimeout: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServer_DefaultEndpoints(t *testing.T) {
	s := New(Config{Address: "127.0.0.1:0"}, logger.Nop())
	s.ApplyDefaults("test-svc", nil)

	for _, path := range []string{"/alive", "/version"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-Id") == "" {
			t.Errorf("%s: expected request id header", path)
		}
	}
}

func TestServer_HealthExtras(t *testing.T) {
	s := New(Config{Address: "127.0.0.1:0"}, logger.Nop())
	checker := func(context.Context) []component.Health {
		return []component.Health{{Name: "registry", Status: component.StatusHealthy}}
	}
	extra := func(context.Context) map[string]any { return map[string]any{"services": 3} }
	s.GinEngine().GET("/health", endpoint.Health("test-svc", checker, extra))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
	if body["services"] != float64(3) {
		t.Errorf("services = %v", body["services"])
	}
}

func TestServer_HealthUnhealthy(t *testing.T) {
	s := New(Config{Address: "127.0.0.1:0"}, logger.Nop())
	checker := func(context.Context) []component.Health {
		return []component.Health{{Name: "db", Status: component.StatusUnhealthy}}
	}
	s.GinEngine().GET("/health", endpoint.Health("test-svc", checker))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	s := New(Config{Address: "127.0.0.1:0"}, logger.Nop())
	s.RegisterDefaultEndpoints("test-svc")
	c := NewComponent(s)

	if c.Name() != "http-server" {
		t.Fatalf("Name() = %q", c.Name())
	}
	if h := c.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Fatalf("expected unhealthy before start, got %s", h.Status)
	}

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h := c.Health(ctx); h.Status != component.StatusHealthy {
		t.Fatalf("expected healthy after start, got %s", h.Status)
	}

	resp, err := http.Get("http://" + s.Addr() + "/alive")
	if err != nil {
		t.Fatalf("GET /alive: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestServer_StopBeforeStart(t *testing.T) {
	s := New(Config{Address: "127.0.0.1:0"}, logger.Nop())
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
