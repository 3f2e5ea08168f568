package topologytest

import (
	"context"
	"sync"

	"github.com/Michael--/modular-runtime/topology"
)

// errStreamBroken is returned by streams after BreakStreams.
var errStreamBroken = topology.NewTransportError("stream", ErrUnreachable)

type stream struct {
	r         *Registry
	ctx       context.Context
	broken    chan struct{}
	breakOnce sync.Once
}

func (r *Registry) openStream(ctx context.Context, op string) (*stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unreachable {
		return nil, topology.NewTransportError(op, ErrUnreachable)
	}
	if op == "activity" && r.refuseAct {
		return nil, topology.NewProtocolError(op, "activity stream refused", nil)
	}
	s := &stream{r: r, ctx: ctx, broken: make(chan struct{})}
	r.streams[s] = struct{}{}
	return s, nil
}

func (s *stream) release() {
	s.r.mu.Lock()
	delete(s.r.streams, s)
	s.r.mu.Unlock()
}

func (s *stream) check() error {
	select {
	case <-s.broken:
		return errStreamBroken
	default:
	}
	return s.ctx.Err()
}

type heartbeatStream struct {
	*stream
	acks chan int64
}

func (h *heartbeatStream) Send(hb topology.Heartbeat) error {
	if err := h.check(); err != nil {
		return err
	}
	if err := h.r.Heartbeat(h.ctx, hb); err != nil {
		return err
	}
	select {
	case h.acks <- hb.Sequence:
	default:
	}
	return nil
}

func (h *heartbeatStream) Recv() (int64, error) {
	select {
	case seq := <-h.acks:
		return seq, nil
	case <-h.broken:
		return 0, errStreamBroken
	case <-h.ctx.Done():
		h.release()
		return 0, h.ctx.Err()
	}
}

func (h *heartbeatStream) CloseSend() error {
	h.release()
	return nil
}

type activityStream struct {
	*stream
	accepted int64
}

func (a *activityStream) Send(id string, ev topology.ActivityEvent) error {
	if err := a.check(); err != nil {
		return err
	}
	if err := a.r.ReportActivity(a.ctx, id, ev); err != nil {
		return err
	}
	a.accepted++
	return nil
}

func (a *activityStream) CloseAndRecv() (int64, error) {
	a.release()
	return a.accepted, a.check()
}

type streamingTransport struct{ r *Registry }

func (t *streamingTransport) Register(ctx context.Context, d topology.Descriptor) (topology.ServiceHandle, error) {
	return t.r.Register(ctx, d)
}

func (t *streamingTransport) Unregister(ctx context.Context, id string) error {
	return t.r.Unregister(ctx, id)
}

func (t *streamingTransport) OpenHeartbeatStream(ctx context.Context) (topology.HeartbeatStream, error) {
	s, err := t.r.openStream(ctx, "heartbeat")
	if err != nil {
		return nil, err
	}
	return &heartbeatStream{stream: s, acks: make(chan int64, 16)}, nil
}

func (t *streamingTransport) OpenActivityStream(ctx context.Context) (topology.ActivityStream, error) {
	s, err := t.r.openStream(ctx, "activity")
	if err != nil {
		return nil, err
	}
	return &activityStream{stream: s}, nil
}

func (t *streamingTransport) Close() error { return t.r.close() }
