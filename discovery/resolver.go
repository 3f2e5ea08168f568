package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/observability"
	"github.com/Michael--/modular-runtime/resilience"
)

// Resolver turns a Query into a dial target. It consults the backend's
// full listing first and falls back to a direct lookup, caching the answer
// for the configured TTL.
type Resolver struct {
	disc    Discovery
	ttl     time.Duration
	backoff resilience.BackoffConfig
	log     *logger.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[Query]cachedInstance
}

type cachedInstance struct {
	inst    ServiceInstance
	expires time.Time
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock replaces time.Now for cache expiry.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver over d using cfg's CacheTTL and Backoff.
func NewResolver(d Discovery, cfg Config, log *logger.Logger, opts ...ResolverOption) *Resolver {
	cfg.ApplyDefaults()
	r := &Resolver{
		disc:    d,
		ttl:     cfg.CacheTTL,
		backoff: cfg.Backoff,
		log:     log.WithComponent("resolver"),
		now:     time.Now,
		cache:   make(map[Query]cachedInstance),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns one instance serving q.
func (r *Resolver) Resolve(ctx context.Context, q Query) (ServiceInstance, error) {
	q = q.Normalize()
	ctx, span := observability.StartSpan(ctx, observability.SpanDiscoveryResolve)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrInterface, q.Interface)
	observability.SetSpanAttribute(ctx, observability.AttrRole, q.Role)

	if inst, ok := r.cached(q); ok {
		observability.SetSpanAttribute(ctx, observability.AttrCacheHit, true)
		return inst, nil
	}

	list, err := r.disc.Available(ctx)
	if err != nil {
		r.log.Debug("Listing services failed, falling back to lookup", logger.MergeWithError(
			logger.Fields("interface", q.Interface), err))
	} else if inst, ok := Find(list, q); ok {
		r.store(q, inst)
		return inst, nil
	}

	inst, err := r.disc.Lookup(ctx, q)
	if err != nil {
		observability.SetSpanError(ctx, err)
		return ServiceInstance{}, err
	}
	r.store(q, inst)
	return inst, nil
}

// Await resolves q, retrying with backoff until an instance appears or ctx
// ends.
func (r *Resolver) Await(ctx context.Context, q Query) (ServiceInstance, error) {
	b := resilience.NewBackoff(r.backoff)
	for {
		inst, err := r.Resolve(ctx, q)
		if err == nil {
			return inst, nil
		}
		if ctx.Err() != nil {
			return ServiceInstance{}, ctx.Err()
		}
		delay := b.ScheduleRetry()
		r.log.Info("Service not resolved yet, retrying", logger.Fields(
			"interface", q.Interface,
			"role", q.Normalize().Role,
			logger.FieldDelay, delay.String(),
			logger.FieldError, err.Error(),
		))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ServiceInstance{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// Invalidate drops the cached answer for q.
func (r *Resolver) Invalidate(q Query) {
	r.mu.Lock()
	delete(r.cache, q.Normalize())
	r.mu.Unlock()
}

// Follow invalidates cached answers as the backend reports removals. It
// blocks until ctx ends or the backend closes its change feed.
func (r *Resolver) Follow(ctx context.Context) error {
	changes, err := r.disc.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ch, ok := <-changes:
			if !ok {
				return nil
			}
			if ch.Kind == ChangeRemoved {
				r.evict(ch.Instance)
			}
		}
	}
}

func (r *Resolver) evict(inst ServiceInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for q, c := range r.cache {
		if c.inst.Interface == inst.Interface && (inst.Role == "" || c.inst.Role == inst.Role) {
			delete(r.cache, q)
		}
	}
}

func (r *Resolver) cached(q Query) (ServiceInstance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cache[q]
	if !ok {
		return ServiceInstance{}, false
	}
	if r.now().After(c.expires) {
		delete(r.cache, q)
		return ServiceInstance{}, false
	}
	return c.inst, true
}

func (r *Resolver) store(q Query, inst ServiceInstance) {
	r.mu.Lock()
	r.cache[q] = cachedInstance{inst: inst, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

// IsNotFound reports whether err means no instance serves the query.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrServiceNotFound)
}
