package server

import (
	"context"

	"github.com/Michael--/modular-runtime/component"
)

const componentName = "grpc-server"

var _ component.Component = (*Component)(nil)

// Component wraps Server to implement component.Component.
type Component struct {
	server *Server
}

// NewComponent returns a component.Component backed by s.
func NewComponent(s *Server) *Component {
	return &Component{server: s}
}

// Name returns the component name used for registration.
func (c *Component) Name() string { return componentName }

// Start starts the underlying gRPC server.
func (c *Component) Start(ctx context.Context) error {
	return c.server.Start(ctx)
}

// Stop gracefully stops the underlying gRPC server.
func (c *Component) Stop(ctx context.Context) error {
	return c.server.Stop(ctx)
}

// Health reports healthy while the server is serving.
func (c *Component) Health(_ context.Context) component.Health {
	if c.server.Serving() {
		return component.Health{Name: componentName, Status: component.StatusHealthy}
	}
	return component.Health{
		Name:    componentName,
		Status:  component.StatusUnhealthy,
		Message: "gRPC server not serving",
	}
}
