// Package version exposes build metadata set through -ldflags:
//
//	go build -ldflags "-X github.com/Michael--/modular-runtime/version.Version=1.2.0" ./cmd/calculator-server
//
// Version is also the default version a service reports when it registers
// with the topology registry.
package version
