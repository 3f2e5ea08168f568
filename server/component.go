package server

import (
	"context"

	"github.com/Michael--/modular-runtime/component"
)

const componentName = "http-server"

// Component runs a Server under a component.Registry.
type Component struct {
	*Server
}

var _ component.Component = Component{}

// NewComponent wraps s.
func NewComponent(s *Server) Component { return Component{Server: s} }

// Name implements component.Component.
func (Component) Name() string { return componentName }

// Health is healthy while the listener is bound.
func (c Component) Health(context.Context) component.Health {
	h := component.Health{Name: componentName, Status: component.StatusHealthy, Message: c.Addr()}
	if !c.bound() {
		h.Status, h.Message = component.StatusUnhealthy, "not listening"
	}
	return h
}
