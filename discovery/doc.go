// Package discovery finds and announces providers of service interfaces.
//
// A provider is addressed by interface name and role. Backends implement
// Registry and Discovery and register themselves by name:
//
//   - discovery/broker: the runtime broker over gRPC
//   - discovery/consul: HashiCorp Consul
//   - discovery/static: a fixed list, for development and tests
//
// Resolver adds caching and retry on top of a Discovery; Component ties a
// backend and this process's own Registration to the application lifecycle.
package discovery
