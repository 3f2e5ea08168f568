package topology

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/observability"
	"github.com/Michael--/modular-runtime/resilience"
)

// errStaleBinding means an event outlived the stream binding of its identity.
var errStaleBinding = errors.New("topology: activity stream bound to another identity")

type pendingEvent struct {
	serviceID string
	event     ActivityEvent
}

type streamBinding struct {
	id  string
	ctx context.Context
}

// Reporter is the non-blocking activity sink. Report pins each event to the
// current identity and queues it; a single sender goroutine delivers events
// in order, one unary call each on polling transports, or on the activity
// stream the sender opens as soon as an identity is registered.
//
// Events whose identity is gone by the time they are sent are dropped. A
// failed send is not retried; it invalidates that identity.
type Reporter struct {
	session     *Session
	enabled     bool
	log         *logger.Logger
	metrics     *observability.TopologyMetrics
	now         resilience.Clock
	callTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	notify chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	queue    *queue.Queue
	draining bool
	started  bool
	binding  streamBinding
	rebound  bool

	// owned by the sender goroutine
	stream   ActivityStream
	streamID string
}

// NewReporter creates a reporter bound to s. Events are accepted only when
// enabled is true.
func NewReporter(s *Session, enabled bool, log *logger.Logger, opts ...Option) *Reporter {
	o := resolve(opts)
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reporter{
		session:     s,
		enabled:     enabled,
		log:         log.WithComponent("topology-activity"),
		metrics:     o.metrics,
		now:         o.clock,
		callTimeout: o.callTimeout,
		ctx:         ctx,
		cancel:      cancel,
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
		queue:       queue.New(),
	}

	s.mu.Lock()
	s.bindActivity = r.bind
	s.mu.Unlock()
	return r
}

// Enabled reports whether events are accepted at all.
func (r *Reporter) Enabled() bool { return r.enabled }

// Report queues ev for delivery. It never blocks and never fails; events
// are dropped when reporting is disabled, when there is no identity, or
// while draining.
func (r *Reporter) Report(ev ActivityEvent) {
	ctx := context.Background()
	if !r.enabled {
		r.metrics.RecordActivityDropped(ctx, observability.DropDisabled)
		return
	}
	id := r.session.ServiceID()
	if id == "" {
		r.metrics.RecordActivityDropped(ctx, observability.DropNoIdentity)
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}

	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		r.metrics.RecordActivityDropped(ctx, observability.DropDraining)
		return
	}
	r.queue.Add(pendingEvent{serviceID: id, event: ev})
	r.mu.Unlock()

	r.metrics.RecordActivityQueued(ctx)
	r.wake()
}

// Pending returns the number of queued events.
func (r *Reporter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Length()
}

// Start launches the sender goroutine. Calling it again has no effect.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.draining {
		return
	}
	r.started = true
	go r.run()
}

// Drain stops accepting events, delivers what is queued and closes the
// activity stream. When ctx ends first the sender is cancelled and the
// rest of the queue is dropped.
func (r *Reporter) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	started := r.started
	r.mu.Unlock()

	if !started {
		r.dropRemaining()
		r.cancel()
		return nil
	}

	r.wake()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.cancel()
		if n := r.dropRemaining(); n > 0 {
			r.log.Warn("Activity drain timed out", logger.Fields("dropped", n))
		}
		return ctx.Err()
	}
}

func (r *Reporter) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Reporter) dropRemaining() int {
	r.mu.Lock()
	n := r.queue.Length()
	for r.queue.Length() > 0 {
		r.queue.Remove()
	}
	r.mu.Unlock()
	for i := 0; i < n; i++ {
		r.metrics.RecordActivityDropped(context.Background(), observability.DropDraining)
	}
	return n
}

// bind records the stream context of a new identity and asks the sender to
// open its activity stream. The session calls it under its lock before
// publishing the identity, so every event pinned to that identity finds its
// binding.
func (r *Reporter) bind(id string, ctx context.Context) {
	r.mu.Lock()
	r.binding = streamBinding{id: id, ctx: ctx}
	r.rebound = true
	r.mu.Unlock()
	r.wake()
}

func (r *Reporter) run() {
	defer close(r.done)
	defer r.closeStream()

	for {
		p, ok := r.next()
		if !ok {
			return
		}
		r.deliver(p)
	}
}

func (r *Reporter) next() (pendingEvent, bool) {
	for {
		r.mu.Lock()
		if r.rebound && !r.draining {
			r.rebound = false
			b := r.binding
			r.mu.Unlock()
			r.openBound(b)
			continue
		}
		if r.queue.Length() > 0 {
			p := r.queue.Remove().(pendingEvent)
			r.mu.Unlock()
			return p, true
		}
		draining := r.draining
		r.mu.Unlock()

		if draining {
			return pendingEvent{}, false
		}
		select {
		case <-r.notify:
		case <-r.ctx.Done():
			return pendingEvent{}, false
		}
	}
}

func (r *Reporter) deliver(p pendingEvent) {
	if r.ctx.Err() != nil {
		r.metrics.RecordActivityDropped(r.ctx, observability.DropDraining)
		return
	}
	if p.serviceID != r.session.ServiceID() {
		r.metrics.RecordActivityDropped(r.ctx, observability.DropStale)
		return
	}

	var err error
	if r.session.polling != nil {
		ctx, cancel := context.WithTimeout(r.ctx, r.callTimeout)
		err = r.session.polling.ReportActivity(ctx, p.serviceID, p.event)
		cancel()
	} else {
		err = r.sendOnStream(p)
	}

	switch {
	case err == nil:
		r.metrics.RecordActivitySent(r.ctx)
	case errors.Is(err, errStaleBinding):
		r.metrics.RecordActivityDropped(r.ctx, observability.DropStale)
	default:
		r.metrics.RecordActivityDropped(r.ctx, observability.DropSendFailed)
		r.log.Warn("Activity delivery failed", logger.MergeWithError(logger.Fields(
			logger.FieldServiceID, p.serviceID,
			logger.FieldTarget, p.event.Target,
		), err))
		r.session.invalidateIdentity(p.serviceID, classify("activity", err))
		r.closeStream()
	}
}

// openBound opens the activity stream for a freshly registered identity.
// A registry that refuses the stream invalidates that identity right away.
func (r *Reporter) openBound(b streamBinding) {
	if r.stream != nil && r.streamID == b.id {
		return
	}
	r.closeStream()
	if b.ctx == nil || b.ctx.Err() != nil {
		return
	}
	stream, err := r.session.streaming.OpenActivityStream(b.ctx)
	if err != nil {
		r.log.Warn("Activity stream refused", logger.MergeWithError(logger.Fields(logger.FieldServiceID, b.id), err))
		r.session.invalidateIdentity(b.id, classify("activity", err))
		return
	}
	r.stream, r.streamID = stream, b.id
}

func (r *Reporter) sendOnStream(p pendingEvent) error {
	if r.stream == nil || r.streamID != p.serviceID {
		r.closeStream()

		r.mu.Lock()
		b := r.binding
		r.mu.Unlock()
		if b.id != p.serviceID || b.ctx == nil {
			return errStaleBinding
		}

		stream, err := r.session.streaming.OpenActivityStream(b.ctx)
		if err != nil {
			return err
		}
		r.stream, r.streamID = stream, p.serviceID
	}
	return r.stream.Send(p.serviceID, p.event)
}

func (r *Reporter) closeStream() {
	if r.stream == nil {
		return
	}
	accepted, err := r.stream.CloseAndRecv()
	fields := logger.Fields(logger.FieldServiceID, r.streamID, "accepted", accepted)
	if err != nil {
		fields[logger.FieldError] = err.Error()
	}
	r.log.Debug("Activity stream closed", fields)
	r.stream, r.streamID = nil, ""
}
