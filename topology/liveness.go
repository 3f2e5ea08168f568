package topology

import (
	"context"
	"sync"
	"time"

	"github.com/Michael--/modular-runtime/logger"
)

// DefaultLivenessInterval is the tick of the liveness loop. It is independent
// of the heartbeat interval the registry asks for.
const DefaultLivenessInterval = 2 * time.Second

// LivenessLoop drives a Session: it calls EnsureRegistered immediately and
// then on every tick. Failures are logged, never escalated.
type LivenessLoop struct {
	session  *Session
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLivenessLoop creates a loop ticking every interval.
func NewLivenessLoop(s *Session, interval time.Duration, log *logger.Logger) *LivenessLoop {
	if interval <= 0 {
		interval = DefaultLivenessInterval
	}
	return &LivenessLoop{
		session:  s,
		interval: interval,
		log:      log.WithComponent("topology-liveness"),
		done:     make(chan struct{}),
	}
}

// Run ticks until ctx is cancelled. A second call returns immediately.
func (l *LivenessLoop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()
	defer close(l.done)

	l.tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// Start runs the loop on its own goroutine until Stop or parent ends.
func (l *LivenessLoop) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		cancel()
		return
	}
	l.cancel = cancel
	l.mu.Unlock()
	go l.Run(ctx)
}

// Stop cancels the loop and waits for it to exit, or for ctx. The wait is
// bounded by the single EnsureRegistered call that may be in flight.
func (l *LivenessLoop) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel := l.cancel
	started := l.started || cancel != nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if !started {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (l *LivenessLoop) Done() <-chan struct{} {
	return l.done
}

func (l *LivenessLoop) tick(ctx context.Context) {
	status, err := l.session.EnsureRegistered(ctx)
	switch status {
	case StatusRegistered:
	case StatusNotYetEligible:
		l.log.Debug("Registration deferred", logger.Fields(
			"next_retry_at", l.session.Backoff().NextRetryAt().Format(time.RFC3339Nano),
		))
	default:
		if ctx.Err() != nil {
			return
		}
		fields := logger.Fields(logger.FieldStatus, status.String())
		if err != nil {
			fields[logger.FieldError] = err.Error()
		}
		l.log.Debug("Liveness tick failed", fields)
	}
}

// runStreamHeartbeat sends heartbeats for one identity on a fresh stream:
// sequence 1 immediately, then one per interval. Responses are drained and
// ignored. Any send or receive failure invalidates that identity; ctx ends
// the sender.
func runStreamHeartbeat(ctx context.Context, s *Session, id string, interval time.Duration) {
	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		s.metrics.RecordHeartbeat(ctx, err)
		s.invalidateIdentity(id, classify("heartbeat", err))
	}

	stream, err := s.streaming.OpenHeartbeatStream(ctx)
	if err != nil {
		fail(err)
		return
	}
	defer func() { _ = stream.CloseSend() }()

	go func() {
		for {
			if _, err := stream.Recv(); err != nil {
				fail(err)
				return
			}
		}
	}()

	seq := int64(1)
	send := func() bool {
		if err := stream.Send(s.heartbeat(id, seq)); err != nil {
			fail(err)
			return false
		}
		s.metrics.RecordHeartbeat(ctx, nil)
		s.log.Debug("Heartbeat sent", logger.Fields(logger.FieldServiceID, id, logger.FieldSequence, seq))
		seq++
		return true
	}

	if !send() {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}
