package topology

import (
	"os"
	"os/signal"
	"time"

	"github.com/Michael--/modular-runtime/observability"
	"github.com/Michael--/modular-runtime/resilience"
)

// Option customizes a Session, Reporter, Client or ShutdownCoordinator.
// Each constructor reads only the fields it needs.
type Option func(*options)

type options struct {
	clock        resilience.Clock
	metrics      *observability.TopologyMetrics
	backoff      resilience.BackoffConfig
	callTimeout  time.Duration
	notify       func(c chan<- os.Signal, sig ...os.Signal)
	stopNotify   func(c chan<- os.Signal)
	drainTimeout time.Duration
	unregTimeout time.Duration
}

func defaultOptions() options {
	return options{
		clock:        time.Now,
		backoff:      resilience.DefaultBackoffConfig(),
		callTimeout:  5 * time.Second,
		notify:       signal.Notify,
		stopNotify:   signal.Stop,
		drainTimeout: 2 * time.Second,
		unregTimeout: 2 * time.Second,
	}
}

func resolve(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observability.NopTopologyMetrics()
	}
	o.backoff.ApplyDefaults()
	return o
}

// WithClock replaces time.Now for retry scheduling, heartbeat pacing and
// event timestamps.
func WithClock(clock resilience.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithMetrics records counters on m.
func WithMetrics(m *observability.TopologyMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBackoff sets the registration retry schedule.
func WithBackoff(cfg resilience.BackoffConfig) Option {
	return func(o *options) { o.backoff = cfg }
}

// WithCallTimeout bounds every unary registry call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithShutdownTimeouts bounds the drain and unregister phases of shutdown.
func WithShutdownTimeouts(drain, unregister time.Duration) Option {
	return func(o *options) {
		o.drainTimeout = drain
		o.unregTimeout = unregister
	}
}

// WithSignalNotifier replaces signal.Notify and signal.Stop.
func WithSignalNotifier(notify func(c chan<- os.Signal, sig ...os.Signal), stop func(c chan<- os.Signal)) Option {
	return func(o *options) {
		o.notify = notify
		o.stopNotify = stop
	}
}
