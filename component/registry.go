package component

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Michael--/modular-runtime/logger"
)

// DefaultStopTimeout bounds each component's Stop when the caller's context
// carries no earlier deadline.
const DefaultStopTimeout = 10 * time.Second

type slot struct {
	c       Component
	running bool
}

// Registry owns the components of one process. It starts them in
// registration order and stops them in reverse, so a component may depend
// on anything registered before it.
type Registry struct {
	mu    sync.RWMutex
	slots []*slot
	log   *logger.Logger
}

// NewRegistry creates an empty Registry. A nil log means the global logger.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Registry{log: log.WithComponent("components")}
}

// Register appends c. Names are unique within a registry.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if r.find(name) != nil {
		return fmt.Errorf("component %s already registered", name)
	}
	r.slots = append(r.slots, &slot{c: c})
	r.log.Debug("Component registered", logger.Fields("name", name))
	return nil
}

func (r *Registry) find(name string) *slot {
	for _, s := range r.slots {
		if s.c.Name() == name {
			return s
		}
	}
	return nil
}

// StartAll starts every component not yet running. The first failure
// aborts; whatever started before it keeps running until StopAll.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info("Starting components", logger.Fields("count", len(r.slots)))
	for _, s := range r.slots {
		if s.running {
			continue
		}
		name := s.c.Name()
		began := time.Now()
		if err := s.c.Start(ctx); err != nil {
			r.log.Error("Component failed to start", logger.MergeWithError(logger.Fields("name", name), err))
			return fmt.Errorf("start %s: %w", name, err)
		}
		s.running = true
		r.log.Debug("Component started", logger.Fields("name", name, logger.FieldDuration, time.Since(began).Milliseconds()))
	}
	return nil
}

// StopAll stops running components newest first. Each Stop gets its own
// DefaultStopTimeout budget and a failure does not keep the rest running.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.slots) - 1; i >= 0; i-- {
		s := r.slots[i]
		if !s.running {
			continue
		}
		s.running = false
		if err := r.stop(ctx, s.c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) stop(ctx context.Context, c Component) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultStopTimeout)
	defer cancel()

	name := c.Name()
	if err := c.Stop(ctx); err != nil {
		r.log.Error("Component failed to stop", logger.MergeWithError(logger.Fields("name", name), err))
		return fmt.Errorf("stop %s: %w", name, err)
	}
	r.log.Info("Component stopped", logger.Fields("name", name))
	return nil
}

// HealthAll asks every component for its health, in registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, len(r.slots))
	for i, s := range r.slots {
		out[i] = s.c.Health(ctx)
	}
	return out
}

// Lookup returns the component registered under name.
func (r *Registry) Lookup(name string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s := r.find(name); s != nil {
		return s.c, true
	}
	return nil, false
}

// Len reports how many components are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}
