package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanTopologyRegister   = "topology.register"
	SpanTopologyUnregister = "topology.unregister"
	SpanDiscoveryResolve   = "discovery.resolve"
)

// Attribute keys.
const (
	AttrServiceName = "service.name"
	AttrServiceID   = "topology.service_id"
	AttrInterface   = "discovery.interface"
	AttrRole        = "discovery.role"
	AttrCacheHit    = "discovery.cache_hit"
)

// StartSpan starts a span on the module's tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer(instrumentationName).Start(ctx, name, opts...)
}

// SetSpanAttribute sets key on the span in ctx. Values of other types than
// string, int, int64, float64, bool and []string are dropped.
func SetSpanAttribute(ctx context.Context, key string, value any) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	var kv attribute.KeyValue
	switch v := value.(type) {
	case string:
		kv = attribute.String(key, v)
	case int:
		kv = attribute.Int(key, v)
	case int64:
		kv = attribute.Int64(key, v)
	case float64:
		kv = attribute.Float64(key, v)
	case bool:
		kv = attribute.Bool(key, v)
	case []string:
		kv = attribute.StringSlice(key, v)
	default:
		return
	}
	span.SetAttributes(kv)
}

// SetSpanError marks the span in ctx as failed with err.
func SetSpanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
