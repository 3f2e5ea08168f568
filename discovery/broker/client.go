// Package broker implements discovery against the runtime broker, a gRPC
// service that keeps the list of interface providers in memory.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"

	"github.com/Michael--/modular-runtime/discovery"
	grpccfg "github.com/Michael--/modular-runtime/grpc"
	"github.com/Michael--/modular-runtime/grpc/client"
	"github.com/Michael--/modular-runtime/logger"
)

const peerName = "broker"

func init() {
	discovery.RegisterProviderFactory(discovery.ProviderBroker, func(cfg discovery.Config, providerCfg any, log *logger.Logger) (discovery.Registry, discovery.Discovery, error) {
		var opts []client.Option
		if o, ok := providerCfg.([]client.Option); ok {
			opts = o
		}
		p, err := NewProvider(cfg, log, opts...)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	})
}

// Provider implements discovery.Registry and discovery.Discovery over one
// broker connection.
type Provider struct {
	conn           *grpc.ClientConn
	connectTimeout time.Duration
	log            *logger.Logger
}

var (
	_ discovery.Registry  = (*Provider)(nil)
	_ discovery.Discovery = (*Provider)(nil)
)

// NewProvider connects lazily to cfg.BrokerAddress.
func NewProvider(cfg discovery.Config, log *logger.Logger, opts ...client.Option) (*Provider, error) {
	cfg.ApplyDefaults()
	gcfg := grpccfg.Config{
		Address:     cfg.BrokerAddress,
		CallTimeout: cfg.CallTimeout,
	}
	gcfg.ApplyDefaults()

	conn, err := client.NewClient(gcfg, log, opts...)
	if err != nil {
		return nil, err
	}
	return &Provider{
		conn:           conn,
		connectTimeout: gcfg.ConnectTimeout,
		log:            log.WithComponent("broker"),
	}, nil
}

// Register calls RegisterService.
func (p *Provider) Register(ctx context.Context, r discovery.Registration) error {
	if err := p.conn.Invoke(ctx, MethodRegisterService, NewRegisterServiceRequest(r), &RegisterServiceResponse{}); err != nil {
		return fmt.Errorf("broker register %q: %w", r.Interface, grpccfg.FromGRPC(err, peerName))
	}
	return nil
}

// Deregister calls UnregisterService.
func (p *Provider) Deregister(ctx context.Context, r discovery.Registration) error {
	req := &UnregisterServiceRequest{InterfaceName: r.Interface, Role: r.Role}
	if err := p.conn.Invoke(ctx, MethodUnregisterService, req, &UnregisterServiceResponse{}); err != nil {
		return fmt.Errorf("broker unregister %q: %w", r.Interface, grpccfg.FromGRPC(err, peerName))
	}
	return nil
}

// Available calls GetAvailableServices.
func (p *Provider) Available(ctx context.Context) ([]discovery.ServiceInstance, error) {
	var resp GetAvailableServicesResponse
	if err := p.conn.Invoke(ctx, MethodGetAvailableServices, &GetAvailableServicesRequest{}, &resp); err != nil {
		return nil, fmt.Errorf("broker list: %w", grpccfg.FromGRPC(err, peerName))
	}
	now := time.Now()
	out := make([]discovery.ServiceInstance, 0, len(resp.Services))
	for _, s := range resp.Services {
		if inst, ok := s.Instance(); ok {
			inst.LastSeen = now
			out = append(out, inst)
		}
	}
	return out, nil
}

// Lookup calls LookupService. An answer with an error text, no url or no
// port is ErrServiceNotFound.
func (p *Provider) Lookup(ctx context.Context, q discovery.Query) (discovery.ServiceInstance, error) {
	q = q.Normalize()
	var resp LookupServiceResponse
	req := &LookupServiceRequest{InterfaceName: q.Interface, Role: q.Role}
	if err := p.conn.Invoke(ctx, MethodLookupService, req, &resp); err != nil {
		return discovery.ServiceInstance{}, fmt.Errorf("broker lookup %q: %w", q.Interface, grpccfg.FromGRPC(err, peerName))
	}
	if resp.Error != "" || resp.URL == "" || resp.Port <= 0 {
		reason := resp.Error
		if reason == "" {
			reason = "empty address"
		}
		return discovery.ServiceInstance{}, fmt.Errorf("%w: %s (%s)", discovery.ErrServiceNotFound, q.Interface, reason)
	}
	return discovery.ServiceInstance{
		Interface: q.Interface,
		Role:      q.Role,
		Host:      resp.URL,
		Port:      int(resp.Port),
		LastSeen:  time.Now(),
	}, nil
}

// Watch opens NotifyServiceChanges. The channel closes when ctx ends or the
// broker ends the stream.
func (p *Provider) Watch(ctx context.Context) (<-chan discovery.ServiceChange, error) {
	cs, err := client.OpenStreamWithTimeout(ctx, p.connectTimeout, func(ctx context.Context) (grpc.ClientStream, error) {
		return p.conn.NewStream(ctx, &changesStreamDesc, MethodNotifyServiceChanges)
	})
	if err != nil {
		return nil, fmt.Errorf("broker watch: %w", err)
	}
	if err := cs.SendMsg(&NotifyServiceChangesRequest{}); err != nil {
		return nil, fmt.Errorf("broker watch: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, fmt.Errorf("broker watch: %w", err)
	}

	out := make(chan discovery.ServiceChange, 16)
	go func() {
		defer close(out)
		for {
			var msg NotifyServiceChangesResponse
			if err := cs.RecvMsg(&msg); err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					p.log.Warn("Broker change stream ended", logger.MergeWithError(logger.Fields("address", p.conn.Target()), err))
				}
				return
			}
			change, ok := msg.Change()
			if !ok {
				p.log.Debug("Ignoring broker notification", logger.Fields("change_type", msg.ChangeType))
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes the broker connection.
func (p *Provider) Close() error {
	return p.conn.Close()
}
