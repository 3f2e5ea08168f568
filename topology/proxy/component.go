package proxy

import (
	"context"
	"fmt"

	"github.com/Michael--/modular-runtime/component"
)

var _ component.Component = (*Component)(nil)

// Component ties a Proxy to the application lifecycle so every proxied
// service is unregistered on stop.
type Component struct {
	proxy *Proxy
}

// NewComponent wraps p.
func NewComponent(p *Proxy) *Component {
	return &Component{proxy: p}
}

// Name returns the component name used for registration.
func (pc *Component) Name() string { return ServiceName }

// Start is a no-op; clients are created per registration.
func (pc *Component) Start(context.Context) error { return nil }

// Stop shuts down every proxied client.
func (pc *Component) Stop(ctx context.Context) error {
	return pc.proxy.Stop(ctx)
}

// Health reports the number of proxied services.
func (pc *Component) Health(context.Context) component.Health {
	return component.Health{
		Name:    ServiceName,
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("%d services", pc.proxy.Services()),
	}
}
