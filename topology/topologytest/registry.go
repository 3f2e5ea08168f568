// Package topologytest provides an in-memory topology registry for tests.
// One Registry serves as a polling transport, a streaming transport, or
// both, with failure injection and call counters.
package topologytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Michael--/modular-runtime/topology"
)

// ErrUnreachable is the cause of injected transport failures.
var ErrUnreachable = errors.New("topologytest: registry unreachable")

// Activity is one delivered activity event.
type Activity struct {
	ServiceID string
	Event     topology.ActivityEvent
}

// Registry is an in-memory registry. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	mu       sync.Mutex
	services map[string]topology.Descriptor
	beats    map[string][]int64
	last     map[string]topology.Heartbeat
	activity []Activity
	streams  map[*stream]struct{}

	interval    time.Duration
	unreachable bool
	failReg     int
	failBeat    int
	failAct     int
	missingID   bool
	refuseAct   bool
	blockReg    chan struct{}

	registerCalls   int
	unregisterCalls int
	heartbeatCalls  int
	activityCalls   int
	closeCalls      int
}

// NewRegistry creates an empty registry answering with a 5s heartbeat
// interval.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]topology.Descriptor),
		beats:    make(map[string][]int64),
		last:     make(map[string]topology.Heartbeat),
		streams:  make(map[*stream]struct{}),
		interval: 5 * time.Second,
	}
}

// Polling returns a view of r as a polling transport.
func (r *Registry) Polling() topology.PollingTransport { return &pollingTransport{r: r} }

// Streaming returns a view of r as a streaming transport.
func (r *Registry) Streaming() topology.StreamingTransport { return &streamingTransport{r: r} }

// SetHeartbeatInterval sets the interval returned by Register.
func (r *Registry) SetHeartbeatInterval(d time.Duration) {
	r.mu.Lock()
	r.interval = d
	r.mu.Unlock()
}

// SetUnreachable makes every call fail with a transport error.
func (r *Registry) SetUnreachable(v bool) {
	r.mu.Lock()
	r.unreachable = v
	r.mu.Unlock()
}

// FailRegister makes the next n Register calls fail.
func (r *Registry) FailRegister(n int) {
	r.mu.Lock()
	r.failReg = n
	r.mu.Unlock()
}

// FailHeartbeats makes the next n heartbeats fail.
func (r *Registry) FailHeartbeats(n int) {
	r.mu.Lock()
	r.failBeat = n
	r.mu.Unlock()
}

// FailActivity makes the next n activity deliveries fail.
func (r *Registry) FailActivity(n int) {
	r.mu.Lock()
	r.failAct = n
	r.mu.Unlock()
}

// RefuseActivityStreams makes opening an activity stream fail with a
// protocol error.
func (r *Registry) RefuseActivityStreams(v bool) {
	r.mu.Lock()
	r.refuseAct = v
	r.mu.Unlock()
}

// OmitServiceID makes Register answer without a service id.
func (r *Registry) OmitServiceID(v bool) {
	r.mu.Lock()
	r.missingID = v
	r.mu.Unlock()
}

// BlockRegister holds every Register call until the returned function is
// called or the call's context ends.
func (r *Registry) BlockRegister() (release func()) {
	ch := make(chan struct{})
	r.mu.Lock()
	r.blockReg = ch
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if r.blockReg == ch {
				r.blockReg = nil
			}
			r.mu.Unlock()
			close(ch)
		})
	}
}

// Evict forgets a service, as a restarted registry would.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	delete(r.services, id)
	r.mu.Unlock()
}

// BreakStreams fails every open stream.
func (r *Registry) BreakStreams() {
	r.mu.Lock()
	streams := r.streams
	r.streams = make(map[*stream]struct{})
	r.mu.Unlock()
	for s := range streams {
		s.breakOnce.Do(func() { close(s.broken) })
	}
}

// OpenStreams returns how many streams are open and not broken.
func (r *Registry) OpenStreams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// IsRegistered reports whether id is currently registered.
func (r *Registry) IsRegistered(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.services[id]
	return ok
}

// Services returns the number of registered services.
func (r *Registry) Services() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.services)
}

// Descriptor returns the descriptor registered under id.
func (r *Registry) Descriptor(id string) (topology.Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.services[id]
	return d, ok
}

// Heartbeats returns the sequence numbers received for id.
func (r *Registry) Heartbeats(id string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.beats[id]...)
}

// LastHeartbeat returns the most recent heartbeat received for id.
func (r *Registry) LastHeartbeat(id string) (topology.Heartbeat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hb, ok := r.last[id]
	return hb, ok
}

// Activity returns every delivered activity event in arrival order.
func (r *Registry) Activity() []Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Activity(nil), r.activity...)
}

// RegisterCalls returns the number of Register calls.
func (r *Registry) RegisterCalls() int { return r.count(&r.registerCalls) }

// UnregisterCalls returns the number of Unregister calls.
func (r *Registry) UnregisterCalls() int { return r.count(&r.unregisterCalls) }

// HeartbeatCalls returns the number of heartbeats received.
func (r *Registry) HeartbeatCalls() int { return r.count(&r.heartbeatCalls) }

// ActivityCalls returns the number of activity deliveries attempted.
func (r *Registry) ActivityCalls() int { return r.count(&r.activityCalls) }

// CloseCalls returns the number of transport Close calls.
func (r *Registry) CloseCalls() int { return r.count(&r.closeCalls) }

func (r *Registry) count(n *int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *n
}

// Register records desc and returns a fresh id.
func (r *Registry) Register(ctx context.Context, desc topology.Descriptor) (topology.ServiceHandle, error) {
	r.mu.Lock()
	r.registerCalls++
	block := r.blockReg
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return topology.ServiceHandle{}, topology.NewTransportError("register", ctx.Err())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unreachable {
		return topology.ServiceHandle{}, topology.NewTransportError("register", ErrUnreachable)
	}
	if r.failReg > 0 {
		r.failReg--
		return topology.ServiceHandle{}, topology.NewTransportError("register", ErrUnreachable)
	}
	if r.missingID {
		return topology.ServiceHandle{HeartbeatInterval: r.interval}, nil
	}

	id := ulid.Make().String()
	r.services[id] = desc
	return topology.ServiceHandle{ServiceID: id, HeartbeatInterval: r.interval, TimeoutMultiplier: 3}, nil
}

// Unregister forgets id.
func (r *Registry) Unregister(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterCalls++
	if r.unreachable {
		return topology.NewTransportError("unregister", ErrUnreachable)
	}
	delete(r.services, id)
	return nil
}

// Heartbeat records hb.
func (r *Registry) Heartbeat(_ context.Context, hb topology.Heartbeat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeatCalls++
	if r.unreachable {
		return topology.NewTransportError("heartbeat", ErrUnreachable)
	}
	if r.failBeat > 0 {
		r.failBeat--
		return topology.NewTransportError("heartbeat", ErrUnreachable)
	}
	if _, ok := r.services[hb.ServiceID]; !ok {
		return topology.NewProtocolError("heartbeat", fmt.Sprintf("unknown service %s", hb.ServiceID), nil)
	}
	r.beats[hb.ServiceID] = append(r.beats[hb.ServiceID], hb.Sequence)
	r.last[hb.ServiceID] = hb
	return nil
}

// ReportActivity records ev.
func (r *Registry) ReportActivity(_ context.Context, id string, ev topology.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activityCalls++
	if r.unreachable {
		return topology.NewTransportError("activity", ErrUnreachable)
	}
	if r.failAct > 0 {
		r.failAct--
		return topology.NewTransportError("activity", ErrUnreachable)
	}
	if _, ok := r.services[id]; !ok {
		return topology.NewProtocolError("activity", fmt.Sprintf("unknown service %s", id), nil)
	}
	r.activity = append(r.activity, Activity{ServiceID: id, Event: ev})
	return nil
}

func (r *Registry) close() error {
	r.mu.Lock()
	r.closeCalls++
	r.mu.Unlock()
	return nil
}

type pollingTransport struct{ r *Registry }

func (t *pollingTransport) Register(ctx context.Context, d topology.Descriptor) (topology.ServiceHandle, error) {
	return t.r.Register(ctx, d)
}

func (t *pollingTransport) Unregister(ctx context.Context, id string) error {
	return t.r.Unregister(ctx, id)
}

func (t *pollingTransport) Heartbeat(ctx context.Context, hb topology.Heartbeat) error {
	return t.r.Heartbeat(ctx, hb)
}

func (t *pollingTransport) ReportActivity(ctx context.Context, id string, ev topology.ActivityEvent) error {
	return t.r.ReportActivity(ctx, id, ev)
}

func (t *pollingTransport) Close() error { return t.r.close() }
