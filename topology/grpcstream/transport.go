// Package grpcstream is the streaming topology transport. Registration is
// unary; heartbeats run on a bidirectional stream and activity on a
// client stream, both against runtime.v1.TopologyService.
package grpcstream

import (
	"context"
	"errors"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	grpccfg "github.com/Michael--/modular-runtime/grpc"
	"github.com/Michael--/modular-runtime/grpc/client"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/security"
	"github.com/Michael--/modular-runtime/topology"
)

var _ topology.StreamingTransport = (*Transport)(nil)

// Config configures a Transport.
type Config struct {
	Address        string              `yaml:"address" mapstructure:"address"`
	CallTimeout    time.Duration       `yaml:"call_timeout" mapstructure:"call_timeout"`
	ConnectTimeout time.Duration       `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	TLS            *security.TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// Transport implements topology.StreamingTransport over one gRPC
// connection. The connection is established lazily on the first call.
type Transport struct {
	conn           *grpc.ClientConn
	connectTimeout time.Duration
}

// New creates a Transport. An empty Address means topology.DefaultAddress.
func New(cfg Config, log *logger.Logger, opts ...client.Option) (*Transport, error) {
	if cfg.Address == "" {
		cfg.Address = topology.DefaultAddress
	}
	gcfg := grpccfg.Config{
		Address:        cfg.Address,
		CallTimeout:    cfg.CallTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
		TLS:            cfg.TLS,
	}
	gcfg.ApplyDefaults()

	conn, err := client.NewClient(gcfg, log, opts...)
	if err != nil {
		return nil, err
	}
	return &Transport{conn: conn, connectTimeout: gcfg.ConnectTimeout}, nil
}

// Register calls RegisterService. A response without a handle or id is a
// protocol failure; a missing interval means topology.DefaultHeartbeatInterval.
func (t *Transport) Register(ctx context.Context, d topology.Descriptor) (topology.ServiceHandle, error) {
	var resp RegisterServiceResponse
	if err := t.conn.Invoke(ctx, MethodRegisterService, NewRegisterServiceRequest(d), &resp); err != nil {
		return topology.ServiceHandle{}, classify("register", err)
	}
	if resp.Handle == nil || resp.Handle.ServiceID == "" {
		return topology.ServiceHandle{}, topology.NewProtocolError("register", "response missing service handle", nil)
	}
	interval := time.Duration(resp.Handle.HeartbeatIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = topology.DefaultHeartbeatInterval
	}
	return topology.ServiceHandle{
		ServiceID:         resp.Handle.ServiceID,
		HeartbeatInterval: interval,
		TimeoutMultiplier: resp.Handle.TimeoutMultiplier,
	}, nil
}

// Unregister calls UnregisterService.
func (t *Transport) Unregister(ctx context.Context, id string) error {
	var resp UnregisterServiceResponse
	if err := t.conn.Invoke(ctx, MethodUnregisterService, &UnregisterServiceRequest{ServiceID: id}, &resp); err != nil {
		return classify("unregister", err)
	}
	return nil
}

// OpenHeartbeatStream opens the bidirectional heartbeat stream. Only
// establishment is bounded by the connect timeout.
func (t *Transport) OpenHeartbeatStream(ctx context.Context) (topology.HeartbeatStream, error) {
	cs, err := t.open(ctx, &heartbeatStreamDesc, MethodHeartbeat)
	if err != nil {
		return nil, classify("heartbeat", err)
	}
	return &heartbeatStream{cs: cs}, nil
}

// OpenActivityStream opens the client-streaming activity call.
func (t *Transport) OpenActivityStream(ctx context.Context) (topology.ActivityStream, error) {
	cs, err := t.open(ctx, &activityStreamDesc, MethodReportActivity)
	if err != nil {
		return nil, classify("activity", err)
	}
	return &activityStream{cs: cs}, nil
}

func (t *Transport) open(ctx context.Context, desc *grpc.StreamDesc, method string) (grpc.ClientStream, error) {
	return client.OpenStreamWithTimeout(ctx, t.connectTimeout, func(ctx context.Context) (grpc.ClientStream, error) {
		return t.conn.NewStream(ctx, desc, method)
	})
}

// Close closes the connection and every stream on it.
func (t *Transport) Close() error {
	return t.conn.Close()
}

type heartbeatStream struct {
	cs grpc.ClientStream
}

// Send never reads the stream: Recv runs on its own goroutine, and the
// status behind a failed send reaches the caller through it.
func (s *heartbeatStream) Send(hb topology.Heartbeat) error {
	if err := s.cs.SendMsg(NewHeartbeatRequest(hb)); err != nil {
		return topology.NewTransportError("heartbeat", err)
	}
	return nil
}

func (s *heartbeatStream) Recv() (int64, error) {
	var resp HeartbeatResponse
	if err := s.cs.RecvMsg(&resp); err != nil {
		return 0, classify("heartbeat", err)
	}
	return resp.Sequence, nil
}

func (s *heartbeatStream) CloseSend() error {
	return s.cs.CloseSend()
}

type activityStream struct {
	cs grpc.ClientStream
}

func (s *activityStream) Send(id string, ev topology.ActivityEvent) error {
	if err := s.cs.SendMsg(NewReportActivityRequest(id, ev)); err != nil {
		return classify("activity", streamError(s.cs, err))
	}
	return nil
}

func (s *activityStream) CloseAndRecv() (int64, error) {
	if err := s.cs.CloseSend(); err != nil {
		return 0, classify("activity", err)
	}
	var resp ReportActivityResponse
	if err := s.cs.RecvMsg(&resp); err != nil {
		return 0, classify("activity", err)
	}
	return resp.AcceptedEvents, nil
}

// streamError recovers the status behind an io.EOF from SendMsg, which is
// all gRPC reports once the server has ended the stream. Only streams read
// and written from one goroutine may use it.
func streamError(cs grpc.ClientStream, err error) error {
	if !errors.Is(err, io.EOF) {
		return err
	}
	var discard ReportActivityResponse
	if rerr := cs.RecvMsg(&discard); rerr != nil && !errors.Is(rerr, io.EOF) {
		return rerr
	}
	return io.ErrUnexpectedEOF
}

// classify maps gRPC failures onto the topology taxonomy. Unavailable,
// DeadlineExceeded, Canceled and anything without a status mean the
// registry was not reached; every other status is an answer.
func classify(op string, err error) error {
	var te *topology.Error
	if errors.As(err, &te) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok || grpccfg.IsConnectionError(err) {
		return topology.NewTransportError(op, err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return topology.NewTransportError(op, err)
	default:
		return topology.NewProtocolError(op, st.Message(), err)
	}
}
