package topology

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/observability"
	"github.com/Michael--/modular-runtime/resilience"
)

// DefaultHeartbeatInterval applies when the registry does not name one.
const DefaultHeartbeatInterval = 5 * time.Second

// ErrSessionClosed is returned by EnsureRegistered after Unregister.
var ErrSessionClosed = errors.New("topology: session closed")

// RegistrationStatus is the outcome of EnsureRegistered.
type RegistrationStatus int

const (
	// StatusFailed means an attempt was made and failed; a retry is scheduled.
	StatusFailed RegistrationStatus = iota
	// StatusRegistered means the session holds an identity.
	StatusRegistered
	// StatusNotYetEligible means the retry delay has not elapsed. No I/O
	// happened and it is not an error.
	StatusNotYetEligible
)

// String returns the status name.
func (s RegistrationStatus) String() string {
	switch s {
	case StatusRegistered:
		return "registered"
	case StatusNotYetEligible:
		return "not_yet_eligible"
	default:
		return "failed"
	}
}

type registrationState struct {
	serviceID         string
	heartbeatInterval time.Duration
	timeoutMultiplier float64
	lastHeartbeatAt   time.Time
	sequence          int64
}

// identity scopes the background work of one registration. Its context is
// cancelled when that registration is invalidated or unregistered.
type identity struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// Session owns the registry identity of one service.
//
// Register, heartbeat and unregister calls are serialized through a
// one-slot semaphore, so at most one registration is ever outstanding.
// State is guarded by mu; ServiceID is lock-free.
type Session struct {
	desc        Descriptor
	transport   Transport
	polling     PollingTransport
	streaming   StreamingTransport
	backoff     *resilience.Backoff
	log         *logger.Logger
	metrics     *observability.TopologyMetrics
	now         resilience.Clock
	callTimeout time.Duration

	sem       chan struct{}
	serviceID atomic.Pointer[string]
	health    atomic.Pointer[ApplicationHealth]
	values    atomic.Pointer[map[string]float64]

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu           sync.Mutex
	state        registrationState
	current      *identity
	closed       bool
	bindActivity func(id string, ctx context.Context)
}

// NewSession creates a session for desc. The transport must implement
// PollingTransport or StreamingTransport.
func NewSession(desc Descriptor, t Transport, log *logger.Logger, opts ...Option) (*Session, error) {
	if t == nil {
		return nil, fmt.Errorf("topology: transport is required")
	}
	o := resolve(opts)

	s := &Session{
		desc:        desc,
		transport:   t,
		backoff:     resilience.NewBackoff(o.backoff, resilience.WithClock(o.clock)),
		log:         log.WithComponent("topology"),
		metrics:     o.metrics,
		now:         o.clock,
		callTimeout: o.callTimeout,
		sem:         make(chan struct{}, 1),
	}
	if st, ok := isStreaming(t); ok {
		s.streaming = st
	} else if pt, ok := t.(PollingTransport); ok {
		s.polling = pt
	} else {
		return nil, fmt.Errorf("topology: transport %T supports neither polling nor streaming", t)
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	return s, nil
}

// ServiceID returns the current identity, or "" when unregistered. It never
// blocks on registry I/O.
func (s *Session) ServiceID() string {
	if p := s.serviceID.Load(); p != nil {
		return *p
	}
	return ""
}

// Streaming reports whether the session uses a streaming transport.
func (s *Session) Streaming() bool {
	return s.streaming != nil
}

// HeartbeatInterval returns the interval the registry asked for, or zero
// when unregistered.
func (s *Session) HeartbeatInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.heartbeatInterval
}

// Backoff exposes the registration retry schedule for status reporting.
func (s *Session) Backoff() *resilience.Backoff {
	return s.backoff
}

// SetHealth sets the health attached to subsequent heartbeats. nil clears it.
func (s *Session) SetHealth(h *ApplicationHealth) {
	s.health.Store(h)
}

// SetMetrics sets the metrics attached to subsequent heartbeats. nil clears them.
func (s *Session) SetMetrics(m map[string]float64) {
	if m == nil {
		s.values.Store(nil)
		return
	}
	cp := make(map[string]float64, len(m))
	for k, v := range m {
		cp[k] = v
	}
	s.values.Store(&cp)
}

func (s *Session) heartbeat(id string, seq int64) Heartbeat {
	hb := Heartbeat{ServiceID: id, Sequence: seq, Health: s.health.Load()}
	if m := s.values.Load(); m != nil {
		hb.Metrics = *m
	}
	return hb
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() { <-s.sem }

func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

// EnsureRegistered registers when eligible, and for polling transports
// sends a heartbeat once the interval has elapsed.
func (s *Session) EnsureRegistered(ctx context.Context) (RegistrationStatus, error) {
	if err := s.acquire(ctx); err != nil {
		return StatusFailed, err
	}
	defer s.release()

	s.mu.Lock()
	st := s.state
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return StatusFailed, ErrSessionClosed
	}
	if st.serviceID != "" {
		if s.polling != nil && !s.now().Before(st.lastHeartbeatAt.Add(st.heartbeatInterval)) {
			if err := s.pollHeartbeat(ctx, st.serviceID); err != nil {
				return StatusFailed, err
			}
		}
		return StatusRegistered, nil
	}
	if !s.backoff.ShouldRetryNow() {
		s.metrics.RecordRegistration(ctx, observability.OutcomeDeferred)
		return StatusNotYetEligible, nil
	}
	return s.register(ctx)
}

func (s *Session) pollHeartbeat(ctx context.Context, id string) error {
	s.mu.Lock()
	s.state.sequence++
	seq := s.state.sequence
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	err := s.polling.Heartbeat(callCtx, s.heartbeat(id, seq))
	cancel()
	s.metrics.RecordHeartbeat(ctx, err)

	if err != nil {
		terr := classify("heartbeat", err)
		s.invalidateIdentity(id, terr)
		return terr
	}

	s.mu.Lock()
	if s.state.serviceID == id {
		s.state.lastHeartbeatAt = s.now()
	}
	s.mu.Unlock()
	s.log.Debug("Heartbeat sent", logger.Fields(logger.FieldServiceID, id, logger.FieldSequence, seq))
	return nil
}

func (s *Session) register(ctx context.Context) (RegistrationStatus, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanTopologyRegister)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrServiceName, s.desc.ServiceName)

	callCtx, cancel := s.callContext(ctx)
	handle, err := s.transport.Register(callCtx, s.desc)
	cancel()
	if err == nil && handle.ServiceID == "" {
		err = NewProtocolError("register", "response missing service id", nil)
	}
	if err != nil {
		terr := classify("register", err)
		delay := s.backoff.ScheduleRetry()
		s.metrics.RecordRegistration(ctx, observability.OutcomeFailed)
		observability.SetSpanError(ctx, terr)
		s.log.Warn("Topology registration failed", logger.MergeWithError(logger.Fields(
			logger.FieldService, s.desc.ServiceName,
			logger.FieldDelay, delay.String(),
		), terr.ToAppError()))
		return StatusFailed, terr
	}

	interval := handle.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.discardLateRegistration(handle.ServiceID)
		return StatusFailed, ErrSessionClosed
	}
	ident := &identity{id: handle.ServiceID}
	ident.ctx, ident.cancel = context.WithCancel(s.baseCtx)
	s.state = registrationState{
		serviceID:         handle.ServiceID,
		heartbeatInterval: interval,
		timeoutMultiplier: handle.TimeoutMultiplier,
		lastHeartbeatAt:   s.now(),
	}
	s.current = ident
	if s.streaming != nil && s.desc.ActivityEnabled && s.bindActivity != nil {
		s.bindActivity(ident.id, ident.ctx)
	}
	id := handle.ServiceID
	s.serviceID.Store(&id)
	s.mu.Unlock()

	s.backoff.Reset()
	s.metrics.RecordRegistration(ctx, observability.OutcomeSuccess)
	observability.SetSpanAttribute(ctx, observability.AttrServiceID, id)
	s.log.Info("Registered with topology registry", map[string]interface{}{
		logger.FieldService:   s.desc.ServiceName,
		logger.FieldServiceID: id,
		"heartbeat_interval":  interval.String(),
	})

	if s.streaming != nil {
		go runStreamHeartbeat(ident.ctx, s, ident.id, interval)
	}
	return StatusRegistered, nil
}

// discardLateRegistration unregisters a handle that arrived after
// Unregister ran, so the registry does not keep a ghost entry.
func (s *Session) discardLateRegistration(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()
	if err := s.transport.Unregister(ctx, id); err != nil {
		s.log.Debug("Late registration cleanup failed", logger.MergeWithError(logger.Fields(logger.FieldServiceID, id), err))
	}
}

// Invalidate discards the current identity, whatever it is.
func (s *Session) Invalidate(reason error) {
	s.invalidateIdentity(s.ServiceID(), reason)
}

// invalidateIdentity discards the identity only if it is still id. Background
// senders use it so a failure observed on an old registration cannot tear
// down a newer one. It reports whether anything was invalidated.
func (s *Session) invalidateIdentity(id string, reason error) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	if s.state.serviceID != id {
		s.mu.Unlock()
		return false
	}
	ident := s.current
	s.state = registrationState{}
	s.current = nil
	s.serviceID.Store(nil)
	s.mu.Unlock()

	if ident != nil {
		ident.cancel()
	}
	delay := s.backoff.ScheduleRetry()
	s.metrics.RecordInvalidation(context.Background())

	fields := logger.Fields(logger.FieldServiceID, id, logger.FieldDelay, delay.String())
	if reason != nil {
		fields[logger.FieldError] = reason.Error()
	}
	s.log.Warn("Topology identity invalidated", fields)
	return true
}

// Unregister ends the session. With an identity it makes one best-effort
// unregister call; errors are logged and swallowed. Calling it again is a
// no-op. A registration still in flight unregisters itself on completion.
func (s *Session) Unregister(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	defer s.baseCancel()

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	id := s.state.serviceID
	ident := s.current
	s.state = registrationState{}
	s.current = nil
	s.serviceID.Store(nil)
	s.mu.Unlock()

	if ident != nil {
		ident.cancel()
	}
	if id == "" {
		return nil
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanTopologyUnregister)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrServiceID, id)

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.transport.Unregister(callCtx, id); err != nil {
		observability.SetSpanError(ctx, err)
		s.log.Debug("Unregister failed, ignoring", logger.MergeWithError(logger.Fields(logger.FieldServiceID, id), err))
		return nil
	}
	s.log.Info("Unregistered from topology registry", logger.Fields(logger.FieldServiceID, id))
	return nil
}
