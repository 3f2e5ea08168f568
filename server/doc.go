// Package server provides the HTTP server used by the topology proxy and
// other HTTP-facing services, built on Gin.
//
// The server follows the component pattern with lifecycle management,
// health endpoints and a standard middleware stack.
//
// # Middleware
//
// Built-in middleware (server/middleware):
//
//   - Recovery: panic recovery with structured logging
//   - RequestID: request ID generation and propagation
//   - BodySizeLimit: request body size limits
//   - Metrics: OpenTelemetry request metrics
//   - RequestLogger: request logging with duration tracking
//
// # Endpoints
//
// Built-in endpoints (server/endpoint):
//
//   - /health: component health aggregation, with optional extra fields
//   - /alive: liveness probe
//   - /version: build version information and uptime
package server
