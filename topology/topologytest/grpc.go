package topologytest

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Michael--/modular-runtime/topology"
	"github.com/Michael--/modular-runtime/topology/grpcstream"
)

// GRPCServer exposes r as a runtime.v1.TopologyService implementation, for
// driving grpcstream transports over bufconn. Injected transport failures
// become Unavailable, unknown ids NotFound.
func (r *Registry) GRPCServer() grpcstream.TopologyServiceServer {
	return &grpcServer{r: r}
}

type grpcServer struct{ r *Registry }

func (g *grpcServer) RegisterService(ctx context.Context, req *grpcstream.RegisterServiceRequest) (*grpcstream.RegisterServiceResponse, error) {
	d, ok := req.Descriptor()
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "bad service type %q or language %q", req.ServiceType, req.Language)
	}
	h, err := g.r.Register(ctx, d)
	if err != nil {
		return nil, toStatus(err)
	}
	if h.ServiceID == "" {
		return &grpcstream.RegisterServiceResponse{}, nil
	}
	return &grpcstream.RegisterServiceResponse{Handle: &grpcstream.ServiceHandle{
		ServiceID:           h.ServiceID,
		HeartbeatIntervalMs: h.HeartbeatInterval.Milliseconds(),
		TimeoutMultiplier:   h.TimeoutMultiplier,
	}}, nil
}

func (g *grpcServer) UnregisterService(ctx context.Context, req *grpcstream.UnregisterServiceRequest) (*grpcstream.UnregisterServiceResponse, error) {
	if err := g.r.Unregister(ctx, req.ServiceID); err != nil {
		return nil, toStatus(err)
	}
	return &grpcstream.UnregisterServiceResponse{}, nil
}

func (g *grpcServer) Heartbeat(srv grpcstream.HeartbeatServer) error {
	s, err := g.r.openStream(srv.Context(), "heartbeat")
	if err != nil {
		return toStatus(err)
	}
	defer s.release()

	in := recvLoop(srv.Context(), srv.Recv)
	for {
		select {
		case <-s.broken:
			return toStatus(errStreamBroken)
		case <-srv.Context().Done():
			return status.FromContextError(srv.Context().Err()).Err()
		case msg := <-in:
			if msg.err != nil {
				if errors.Is(msg.err, io.EOF) {
					return nil
				}
				return msg.err
			}
			hb := msg.v.Heartbeat()
			if err := g.r.Heartbeat(srv.Context(), hb); err != nil {
				return toStatus(err)
			}
			if err := srv.Send(&grpcstream.HeartbeatResponse{Sequence: hb.Sequence, Acknowledged: true}); err != nil {
				return err
			}
		}
	}
}

func (g *grpcServer) ReportActivity(srv grpcstream.ActivityServer) error {
	s, err := g.r.openStream(srv.Context(), "activity")
	if err != nil {
		return toStatus(err)
	}
	defer s.release()

	var accepted int64
	in := recvLoop(srv.Context(), srv.Recv)
	for {
		select {
		case <-s.broken:
			return toStatus(errStreamBroken)
		case <-srv.Context().Done():
			return status.FromContextError(srv.Context().Err()).Err()
		case msg := <-in:
			if msg.err != nil {
				if errors.Is(msg.err, io.EOF) {
					return srv.SendAndClose(&grpcstream.ReportActivityResponse{AcceptedEvents: accepted})
				}
				return msg.err
			}
			ev, ok := msg.v.Event()
			if !ok {
				return status.Errorf(codes.InvalidArgument, "bad activity type %q", msg.v.Type)
			}
			if err := g.r.ReportActivity(srv.Context(), msg.v.ServiceID, ev); err != nil {
				return toStatus(err)
			}
			accepted++
		}
	}
}

type received[T any] struct {
	v   T
	err error
}

// recvLoop moves blocking Recv calls off the handler goroutine so the
// handler can also watch BreakStreams. It stops after the first error.
func recvLoop[T any](ctx context.Context, recv func() (T, error)) <-chan received[T] {
	out := make(chan received[T])
	go func() {
		for {
			v, err := recv()
			select {
			case out <- received[T]{v: v, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

func toStatus(err error) error {
	switch {
	case topology.IsTransport(err):
		return status.Error(codes.Unavailable, err.Error())
	case topology.IsProtocol(err):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
