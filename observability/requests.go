package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the request instruments shared by the gRPC and HTTP
// servers.
type Metrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

// NewMetrics creates the request instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter("rpc.requests",
		metric.WithDescription("Requests handled, by service, method and status"))
	if err != nil {
		return nil, fmt.Errorf("creating rpc.requests counter: %w", err)
	}
	duration, err := meter.Float64Histogram("rpc.duration",
		metric.WithDescription("Request duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating rpc.duration histogram: %w", err)
	}
	inflight, err := meter.Int64UpDownCounter("rpc.inflight",
		metric.WithDescription("Requests currently being handled"))
	if err != nil {
		return nil, fmt.Errorf("creating rpc.inflight gauge: %w", err)
	}
	return &Metrics{requests: requests, duration: duration, inflight: inflight}, nil
}

// RecordRequestStart marks a request as in flight.
func (m *Metrics) RecordRequestStart(ctx context.Context) {
	m.inflight.Add(ctx, 1)
}

// RecordRequestEnd counts a finished request and releases its in-flight
// slot.
func (m *Metrics) RecordRequestEnd(ctx context.Context, service, method, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("method", method),
		attribute.String("status", status),
	)
	m.inflight.Add(ctx, -1)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}
