// Package consul is a discovery backend over HashiCorp Consul. An interface
// is a Consul service name; the role travels as a tag and in metadata.
package consul

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/Michael--/modular-runtime/discovery"
	"github.com/Michael--/modular-runtime/logger"
)

// MetaRole is the service metadata key holding the role.
const MetaRole = "role"

// Provider implements discovery.Registry and discovery.Discovery using Consul.
type Provider struct {
	client     *api.Client
	log        *logger.Logger
	watchWait  time.Duration
	retryDelay time.Duration

	mu         sync.Mutex
	registered map[string]struct{}
}

var (
	_ discovery.Registry  = (*Provider)(nil)
	_ discovery.Discovery = (*Provider)(nil)
)

func init() {
	discovery.RegisterProviderFactory(discovery.ProviderConsul, func(_ discovery.Config, providerCfg any, log *logger.Logger) (discovery.Registry, discovery.Discovery, error) {
		var cfg Config
		if c, ok := providerCfg.(*Config); ok && c != nil {
			cfg = *c
		}
		p, err := NewProvider(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	})
}

// NewProvider creates a Provider from cfg.
func NewProvider(cfg Config, log *logger.Logger) (*Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("consul config: %w", err)
	}

	client, err := api.NewClient(cfg.APIConfig())
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Provider{
		client:     client,
		log:        log.WithComponent("consul"),
		watchWait:  cfg.WatchWait,
		retryDelay: cfg.RetryDelay,
		registered: make(map[string]struct{}),
	}, nil
}

// ServiceID is the Consul service id used for r.
func ServiceID(r discovery.Registration) string {
	return fmt.Sprintf("%s-%s-%s-%d", r.Interface, r.Role, r.Host, r.Port)
}

// Register registers r with the local agent.
func (p *Provider) Register(ctx context.Context, r discovery.Registration) error {
	reg := &api.AgentServiceRegistration{
		ID:      ServiceID(r),
		Name:    r.Interface,
		Address: r.Host,
		Port:    r.Port,
		Meta:    map[string]string{MetaRole: r.Role},
	}
	if r.Role != "" {
		reg.Tags = []string{r.Role}
	}
	opts := api.ServiceRegisterOpts{}.WithContext(ctx)
	if err := p.client.Agent().ServiceRegisterOpts(reg, opts); err != nil {
		return fmt.Errorf("consul register %q: %w", r.Interface, err)
	}

	p.mu.Lock()
	p.registered[reg.ID] = struct{}{}
	p.mu.Unlock()
	p.log.Info("Service registered with consul", logger.Fields("service_id", reg.ID, "address", r.Instance().Address()))
	return nil
}

// Deregister removes r from the local agent.
func (p *Provider) Deregister(ctx context.Context, r discovery.Registration) error {
	id := ServiceID(r)
	opts := (&api.QueryOptions{}).WithContext(ctx)
	if err := p.client.Agent().ServiceDeregisterOpts(id, opts); err != nil {
		return fmt.Errorf("consul deregister %q: %w", id, err)
	}
	p.mu.Lock()
	delete(p.registered, id)
	p.mu.Unlock()
	p.log.Info("Service deregistered from consul", logger.Fields("service_id", id))
	return nil
}

// Available lists the healthy instances of every catalog service.
func (p *Provider) Available(ctx context.Context) ([]discovery.ServiceInstance, error) {
	opts := (&api.QueryOptions{}).WithContext(ctx)
	names, _, err := p.client.Catalog().Services(opts)
	if err != nil {
		return nil, fmt.Errorf("consul catalog: %w", err)
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var out []discovery.ServiceInstance
	for _, name := range sorted {
		insts, err := p.healthy(ctx, name, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, insts...)
	}
	return out, nil
}

// Lookup returns the first healthy instance serving q.
func (p *Provider) Lookup(ctx context.Context, q discovery.Query) (discovery.ServiceInstance, error) {
	insts, err := p.healthy(ctx, q.Interface, nil)
	if err != nil {
		return discovery.ServiceInstance{}, err
	}
	if inst, ok := discovery.Find(insts, q); ok {
		return inst, nil
	}
	return discovery.ServiceInstance{}, fmt.Errorf("%w: %s", discovery.ErrServiceNotFound, q.Interface)
}

// Watch follows the catalog with blocking queries and reports instances
// appearing and disappearing.
func (p *Provider) Watch(ctx context.Context) (<-chan discovery.ServiceChange, error) {
	ch := make(chan discovery.ServiceChange, 16)

	go func() {
		defer close(ch)
		known := make(map[string]discovery.ServiceInstance)
		var lastIndex uint64
		for {
			opts := (&api.QueryOptions{WaitIndex: lastIndex, WaitTime: p.watchWait}).WithContext(ctx)
			_, meta, err := p.client.Catalog().Services(opts)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.log.Warn("Consul watch error", logger.MergeWithError(nil, err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.retryDelay):
				}
				continue
			}
			if meta.LastIndex == lastIndex {
				continue
			}
			lastIndex = meta.LastIndex

			current, err := p.Available(ctx)
			if err != nil {
				continue
			}
			for _, c := range diff(known, current) {
				select {
				case ch <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close is a no-op; the HTTP client does not require explicit closing.
func (p *Provider) Close() error { return nil }

func (p *Provider) healthy(ctx context.Context, name string, opts *api.QueryOptions) ([]discovery.ServiceInstance, error) {
	if opts == nil {
		opts = &api.QueryOptions{}
	}
	entries, _, err := p.client.Health().Service(name, "", true, opts.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("consul health %q: %w", name, err)
	}
	now := time.Now()
	out := make([]discovery.ServiceInstance, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryToInstance(e, now))
	}
	return out, nil
}

func entryToInstance(e *api.ServiceEntry, now time.Time) discovery.ServiceInstance {
	host := e.Service.Address
	if host == "" && e.Node != nil {
		host = e.Node.Address
	}
	return discovery.ServiceInstance{
		Interface: e.Service.Service,
		Role:      e.Service.Meta[MetaRole],
		Host:      host,
		Port:      e.Service.Port,
		Metadata:  e.Service.Meta,
		LastSeen:  now,
	}
}

// diff updates known to current and returns the changes between them.
func diff(known map[string]discovery.ServiceInstance, current []discovery.ServiceInstance) []discovery.ServiceChange {
	seen := make(map[string]discovery.ServiceInstance, len(current))
	for _, inst := range current {
		seen[key(inst)] = inst
	}

	var changes []discovery.ServiceChange
	for k, inst := range seen {
		if _, ok := known[k]; !ok {
			changes = append(changes, discovery.ServiceChange{Kind: discovery.ChangeAdded, Instance: inst})
		}
	}
	for k, inst := range known {
		if _, ok := seen[k]; !ok {
			changes = append(changes, discovery.ServiceChange{Kind: discovery.ChangeRemoved, Instance: inst})
		}
	}
	for k := range known {
		delete(known, k)
	}
	for k, inst := range seen {
		known[k] = inst
	}
	sort.Slice(changes, func(i, j int) bool { return key(changes[i].Instance) < key(changes[j].Instance) })
	return changes
}

func key(inst discovery.ServiceInstance) string {
	return inst.Interface + "|" + inst.Role + "|" + inst.Host + ":" + strconv.Itoa(inst.Port)
}
