package component

import (
	"context"
	"strings"
)

// HealthStatus is a component's self-reported state.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health is one component's entry in a health answer.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

func (h Health) String() string {
	s := h.Name + "=" + string(h.Status)
	if h.Message != "" {
		s += "(" + h.Message + ")"
	}
	return s
}

// Component is anything a service starts and stops with its process.
// Stop must tolerate being called on a component whose Start failed.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Overall folds component health into one status: any unhealthy entry wins,
// then any degraded one. No entries is healthy.
func Overall(hs []Health) HealthStatus {
	overall := StatusHealthy
	for _, h := range hs {
		switch h.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// NotHealthy describes every entry that is not healthy, or "" when all are.
func NotHealthy(hs []Health) string {
	var bad []string
	for _, h := range hs {
		if h.Status != StatusHealthy {
			bad = append(bad, h.String())
		}
	}
	return strings.Join(bad, ", ")
}
