package middleware_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Michael--/modular-runtime/errors"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/server/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	return r
}

// ---------------------------------------------------------------------------
// Recovery
// ---------------------------------------------------------------------------

func TestRecovery_NoPanic(t *testing.T) {
	r := newEngine(middleware.Recovery(logger.Nop()))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRecovery_Panic(t *testing.T) {
	r := newEngine(middleware.Recovery(logger.Nop()))
	r.GET("/test", func(_ *gin.Context) { panic("test panic") })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	var body apperrors.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body.Error.Code != apperrors.ErrCodeInternal {
		t.Fatalf("unexpected error code: %s", body.Error.Code)
	}
}

// ---------------------------------------------------------------------------
// RequestID
// ---------------------------------------------------------------------------

func TestRequestID_GeneratesID(t *testing.T) {
	r := newEngine(middleware.RequestID())
	r.GET("/", func(c *gin.Context) {
		if c.GetHeader(middleware.HeaderRequestID) == "" {
			t.Error("expected X-Request-Id in request headers")
		}
		if c.GetString(logger.FieldRequestID) == "" {
			t.Error("expected request id in gin context")
		}
		c.Status(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Header().Get(middleware.HeaderRequestID) == "" {
		t.Error("expected X-Request-Id in response headers")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	r := newEngine(middleware.RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(middleware.HeaderRequestID, "custom-id-123")
	r.ServeHTTP(rr, req)

	if got := rr.Header().Get(middleware.HeaderRequestID); got != "custom-id-123" {
		t.Fatalf("expected custom-id-123, got %s", got)
	}
}

// ---------------------------------------------------------------------------
// RequestLogger
// ---------------------------------------------------------------------------

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		logged bool
	}{
		{name: "success", path: "/api/users", status: http.StatusCreated, logged: false},
		{name: "client error", path: "/api/users", status: http.StatusBadRequest, logged: true},
		{name: "server error", path: "/api/users", status: http.StatusBadGateway, logged: true},
		{name: "health skipped", path: "/health", status: http.StatusServiceUnavailable, logged: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf strings.Builder
			log := logger.NewWithWriter(&logger.Config{Level: "info", Format: "json"}, "test", &buf)

			r := newEngine(middleware.RequestLogger(log))
			r.Any(tt.path, func(c *gin.Context) { c.Status(tt.status) })

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tt.path, http.NoBody))

			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rr.Code)
			}
			if got := strings.Contains(buf.String(), "Request completed"); got != tt.logged {
				t.Fatalf("logged = %v, want %v (output %q)", got, tt.logged, buf.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// BodySizeLimit
// ---------------------------------------------------------------------------

func TestBodySizeLimit(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "within limit", body: strings.Repeat("a", 16), wantErr: false},
		{name: "over limit", body: strings.Repeat("a", 64), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(middleware.BodySizeLimit(32))
			r.POST("/upload", func(c *gin.Context) {
				if _, err := io.ReadAll(c.Request.Body); err != nil {
					c.Status(http.StatusRequestEntityTooLarge)
					return
				}
				c.Status(http.StatusOK)
			})

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(tt.body)))

			want := http.StatusOK
			if tt.wantErr {
				want = http.StatusRequestEntityTooLarge
			}
			if rr.Code != want {
				t.Fatalf("expected %d, got %d", want, rr.Code)
			}
		})
	}
}
