package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Registration outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeDeferred = "deferred"
)

// Activity drop reasons.
const (
	DropDisabled   = "disabled"
	DropNoIdentity = "no_identity"
	DropDraining   = "draining"
	DropStale      = "stale_identity"
	DropSendFailed = "send_failed"
)

// TopologyMetrics counts what the topology client does on behalf of a
// service. The zero value is not usable; NopTopologyMetrics returns one
// that records nothing.
type TopologyMetrics struct {
	registrations   metric.Int64Counter
	heartbeats      metric.Int64Counter
	heartbeatErrors metric.Int64Counter
	activityQueued  metric.Int64Counter
	activitySent    metric.Int64Counter
	activityDropped metric.Int64Counter
	invalidations   metric.Int64Counter
}

// NewTopologyMetrics creates the topology instruments on meter.
func NewTopologyMetrics(meter metric.Meter) (*TopologyMetrics, error) {
	m := &TopologyMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.registrations, "topology.registration.attempts", "Registration attempts by outcome"},
		{&m.heartbeats, "topology.heartbeat.sent", "Heartbeats delivered to the registry"},
		{&m.heartbeatErrors, "topology.heartbeat.failed", "Heartbeats that failed and invalidated the identity"},
		{&m.activityQueued, "topology.activity.enqueued", "Activity events accepted for delivery"},
		{&m.activitySent, "topology.activity.sent", "Activity events delivered to the registry"},
		{&m.activityDropped, "topology.activity.dropped", "Activity events dropped by reason"},
		{&m.invalidations, "topology.invalidations", "Times the registry identity was discarded"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// NopTopologyMetrics returns instruments backed by a no-op meter.
func NopTopologyMetrics() *TopologyMetrics {
	m, _ := NewTopologyMetrics(noop.NewMeterProvider().Meter("topology"))
	return m
}

// RecordRegistration counts one registration attempt.
func (m *TopologyMetrics) RecordRegistration(ctx context.Context, outcome string) {
	m.registrations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordHeartbeat counts one heartbeat, sent or failed.
func (m *TopologyMetrics) RecordHeartbeat(ctx context.Context, err error) {
	if err != nil {
		m.heartbeatErrors.Add(ctx, 1)
		return
	}
	m.heartbeats.Add(ctx, 1)
}

// RecordActivityQueued counts an accepted activity event.
func (m *TopologyMetrics) RecordActivityQueued(ctx context.Context) {
	m.activityQueued.Add(ctx, 1)
}

// RecordActivitySent counts a delivered activity event.
func (m *TopologyMetrics) RecordActivitySent(ctx context.Context) {
	m.activitySent.Add(ctx, 1)
}

// RecordActivityDropped counts a dropped activity event.
func (m *TopologyMetrics) RecordActivityDropped(ctx context.Context, reason string) {
	m.activityDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordInvalidation counts a discarded identity.
func (m *TopologyMetrics) RecordInvalidation(ctx context.Context) {
	m.invalidations.Add(ctx, 1)
}
