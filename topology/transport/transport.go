// Package transport builds the topology transport a Config names.
package transport

import (
	"fmt"

	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/topology"
	"github.com/Michael--/modular-runtime/topology/grpcstream"
	"github.com/Michael--/modular-runtime/topology/httpproxy"
)

// New returns a grpcstream transport for topology.TransportGRPC and an
// httpproxy transport for topology.TransportHTTP. cfg defaults are applied
// first, so a zero Transport means gRPC.
func New(cfg topology.Config, log *logger.Logger) (topology.Transport, error) {
	cfg.ApplyDefaults()
	switch cfg.Transport {
	case topology.TransportGRPC:
		return grpcstream.New(grpcstream.Config{
			Address:     cfg.Address,
			CallTimeout: cfg.CallTimeout,
		}, log)
	case topology.TransportHTTP:
		return httpproxy.New(httpproxy.Config{
			BaseURL: cfg.ProxyAddress,
			Timeout: cfg.CallTimeout,
		})
	default:
		return nil, fmt.Errorf("topology: unknown transport %q", cfg.Transport)
	}
}

// NewClient builds the transport for cfg and a topology.Client over it. A
// disabled config needs no transport.
func NewClient(cfg topology.Config, log *logger.Logger, opts ...topology.Option) (*topology.Client, error) {
	if cfg.Disabled {
		return topology.New(cfg, nil, log, opts...)
	}
	t, err := New(cfg, log)
	if err != nil {
		return nil, err
	}
	c, err := topology.New(cfg, t, log, opts...)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	return c, nil
}
