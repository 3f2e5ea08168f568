// Package static is a discovery backend over a fixed, in-memory list of
// instances. Registrations made at runtime are added to the list.
package static

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Michael--/modular-runtime/discovery"
	"github.com/Michael--/modular-runtime/logger"
)

// Provider implements discovery.Registry and discovery.Discovery in memory.
type Provider struct {
	mu        sync.RWMutex
	instances []discovery.ServiceInstance
	watchers  map[chan discovery.ServiceChange]struct{}
}

var (
	_ discovery.Registry  = (*Provider)(nil)
	_ discovery.Discovery = (*Provider)(nil)
)

func init() {
	discovery.RegisterProviderFactory(discovery.ProviderStatic, func(cfg discovery.Config, _ any, _ *logger.Logger) (discovery.Registry, discovery.Discovery, error) {
		p := NewProvider(cfg.Static)
		return p, p, nil
	})
}

// NewProvider creates a Provider pre-populated with instances.
func NewProvider(instances []discovery.ServiceInstance) *Provider {
	now := time.Now()
	p := &Provider{watchers: make(map[chan discovery.ServiceChange]struct{})}
	for _, inst := range instances {
		inst.LastSeen = now
		p.instances = append(p.instances, inst)
	}
	return p
}

// Register adds r, replacing an instance with the same interface and role.
func (p *Provider) Register(_ context.Context, r discovery.Registration) error {
	inst := r.Instance()
	inst.LastSeen = time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if i := p.index(r.Interface, r.Role); i >= 0 {
		p.instances[i] = inst
	} else {
		p.instances = append(p.instances, inst)
	}
	p.notify(discovery.ServiceChange{Kind: discovery.ChangeAdded, Instance: inst})
	return nil
}

// Deregister removes r. Removing an unknown registration is not an error.
func (p *Provider) Deregister(_ context.Context, r discovery.Registration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.index(r.Interface, r.Role)
	if i < 0 {
		return nil
	}
	inst := p.instances[i]
	p.instances = append(p.instances[:i], p.instances[i+1:]...)
	p.notify(discovery.ServiceChange{Kind: discovery.ChangeRemoved, Instance: inst})
	return nil
}

// Available returns a copy of the list.
func (p *Provider) Available(_ context.Context) ([]discovery.ServiceInstance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]discovery.ServiceInstance, len(p.instances))
	copy(out, p.instances)
	return out, nil
}

// Lookup returns the first instance serving q.
func (p *Provider) Lookup(ctx context.Context, q discovery.Query) (discovery.ServiceInstance, error) {
	list, _ := p.Available(ctx)
	if inst, ok := discovery.Find(list, q); ok {
		return inst, nil
	}
	return discovery.ServiceInstance{}, fmt.Errorf("%w: %s", discovery.ErrServiceNotFound, q.Interface)
}

// Watch reports runtime registrations until ctx ends.
func (p *Provider) Watch(ctx context.Context) (<-chan discovery.ServiceChange, error) {
	ch := make(chan discovery.ServiceChange, 16)
	p.mu.Lock()
	p.watchers[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.watchers, ch)
		close(ch)
		p.mu.Unlock()
	}()
	return ch, nil
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }

func (p *Provider) notify(c discovery.ServiceChange) {
	for ch := range p.watchers {
		select {
		case ch <- c:
		default:
		}
	}
}

func (p *Provider) index(iface, role string) int {
	for i, inst := range p.instances {
		if inst.Interface == iface && inst.Role == role {
			return i
		}
	}
	return -1
}
