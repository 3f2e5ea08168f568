package topology

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Michael--/modular-runtime/logger"
)

// State is the lifecycle state of a ShutdownCoordinator.
type State int32

// Lifecycle states.
const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ShutdownCoordinator runs the stop sequence exactly once: stop the liveness
// loop, drain activity, unregister, then release resources. Every phase is
// bounded, so shutdown completes even when the registry is unreachable.
type ShutdownCoordinator struct {
	session  *Session
	reporter *Reporter
	loop     *LivenessLoop
	log      *logger.Logger

	drainTimeout time.Duration
	unregTimeout time.Duration
	notify       func(c chan<- os.Signal, sig ...os.Signal)
	stopNotify   func(c chan<- os.Signal)

	state   atomic.Int32
	once    sync.Once
	done    chan struct{}
	closers []func() error
}

// NewShutdownCoordinator wires the parts to stop. reporter and loop may be nil.
func NewShutdownCoordinator(s *Session, reporter *Reporter, loop *LivenessLoop, log *logger.Logger, opts ...Option) *ShutdownCoordinator {
	o := resolve(opts)
	return &ShutdownCoordinator{
		session:      s,
		reporter:     reporter,
		loop:         loop,
		log:          log.WithComponent("topology-shutdown"),
		drainTimeout: o.drainTimeout,
		unregTimeout: o.unregTimeout,
		notify:       o.notify,
		stopNotify:   o.stopNotify,
		done:         make(chan struct{}),
	}
}

// OnStopped registers fn to run after unregistering, before Done closes.
// It must be called before Shutdown.
func (c *ShutdownCoordinator) OnStopped(fn func() error) {
	c.closers = append(c.closers, fn)
}

// State returns the current lifecycle state.
func (c *ShutdownCoordinator) State() State {
	return State(c.state.Load())
}

// Done is closed once the coordinator reaches StateStopped.
func (c *ShutdownCoordinator) Done() <-chan struct{} {
	return c.done
}

// Shutdown starts the stop sequence on first call and waits for it to
// finish or for ctx. Later and concurrent calls only wait.
func (c *ShutdownCoordinator) Shutdown(ctx context.Context, reason string) error {
	c.once.Do(func() {
		c.state.Store(int32(StateDraining))
		c.log.Info("Topology shutdown started", logger.Fields("reason", reason))
		go c.run()
	})

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ShutdownCoordinator) run() {
	start := time.Now()
	defer close(c.done)

	if c.loop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.unregTimeout)
		if err := c.loop.Stop(ctx); err != nil {
			c.log.Warn("Liveness loop did not stop in time", logger.ErrorFields("stop_liveness", err))
		}
		cancel()
	}

	if c.reporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.drainTimeout)
		if err := c.reporter.Drain(ctx); err != nil {
			c.log.Warn("Activity drain incomplete", logger.ErrorFields("drain", err))
		}
		cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.unregTimeout)
	if err := c.session.Unregister(ctx); err != nil {
		c.log.Debug("Unregister skipped", logger.ErrorFields("unregister", err))
	}
	cancel()

	for _, fn := range c.closers {
		if err := fn(); err != nil {
			c.log.Debug("Close failed", logger.ErrorFields("close", err))
		}
	}

	c.state.Store(int32(StateStopped))
	c.log.Info("Topology shutdown complete", logger.DurationFields("shutdown", time.Since(start)))
}

// Watch triggers Shutdown on the first SIGINT or SIGTERM. Later signals
// are ignored. Watching ends with ctx or once shutdown completes.
func (c *ShutdownCoordinator) Watch(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	c.notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer c.stopNotify(sigCh)
		triggered := false
		for {
			select {
			case sig := <-sigCh:
				if triggered {
					c.log.Debug("Signal ignored, shutdown in progress", logger.Fields("signal", sig.String()))
					continue
				}
				triggered = true
				c.log.Info("Received shutdown signal", logger.Fields("signal", sig.String()))
				go func() { _ = c.Shutdown(context.Background(), "signal "+sig.String()) }()
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}
