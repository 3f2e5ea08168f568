// Package observability wires OpenTelemetry tracing and metrics for the
// runtime's services.
//
// Until Setup (or InitTracer and InitMeter) runs, the global providers are
// no-ops, so every instrument and span helper here is safe to call.
//
//	stop, err := observability.Setup(ctx, cfg, observability.Service{Name: "calculator-server"})
//	defer stop(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanDiscoveryResolve)
//	defer span.End()
package observability
