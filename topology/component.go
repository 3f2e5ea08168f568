package topology

import (
	"context"

	"github.com/Michael--/modular-runtime/component"
)

const componentName = "topology"

var _ component.Component = (*Component)(nil)

// Component adapts a Client to the component lifecycle. Start launches the
// liveness loop; Stop runs the shutdown sequence.
type Component struct {
	client *Client
}

// NewComponent wraps c.
func NewComponent(c *Client) *Component {
	return &Component{client: c}
}

// Name returns the component name used for registration.
func (tc *Component) Name() string { return componentName }

// Start starts the client without waiting for registration.
func (tc *Component) Start(ctx context.Context) error {
	return tc.client.Start(ctx)
}

// Stop shuts the client down.
func (tc *Component) Stop(ctx context.Context) error {
	return tc.client.Shutdown(ctx)
}

// Health is healthy while registered. Being unregistered is degraded, not
// unhealthy: the service keeps working without the registry.
func (tc *Component) Health(_ context.Context) component.Health {
	st := tc.client.Status()
	switch {
	case !tc.client.Enabled():
		return component.Health{Name: componentName, Status: component.StatusHealthy, Message: "disabled"}
	case st.State != StateRunning.String():
		return component.Health{Name: componentName, Status: component.StatusUnhealthy, Message: st.State}
	case st.ServiceID == "":
		return component.Health{Name: componentName, Status: component.StatusDegraded, Message: "not registered"}
	default:
		return component.Health{Name: componentName, Status: component.StatusHealthy}
	}
}
