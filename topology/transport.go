package topology

import "context"

// Transport is the part of the registry protocol every transport speaks.
// A Transport must also implement PollingTransport or StreamingTransport;
// the session picks its strategy once, at construction.
type Transport interface {
	Register(ctx context.Context, desc Descriptor) (ServiceHandle, error)
	Unregister(ctx context.Context, serviceID string) error
	Close() error
}

// PollingTransport delivers heartbeats and activity as unary calls.
type PollingTransport interface {
	Transport
	Heartbeat(ctx context.Context, hb Heartbeat) error
	ReportActivity(ctx context.Context, serviceID string, ev ActivityEvent) error
}

// StreamingTransport delivers heartbeats and activity over long-lived
// streams. Streams live until ctx is cancelled or they are closed.
type StreamingTransport interface {
	Transport
	OpenHeartbeatStream(ctx context.Context) (HeartbeatStream, error)
	OpenActivityStream(ctx context.Context) (ActivityStream, error)
}

// HeartbeatStream is a bidirectional heartbeat stream. Recv returns acked
// sequence numbers; their payload carries no further contract.
type HeartbeatStream interface {
	Send(hb Heartbeat) error
	Recv() (int64, error)
	CloseSend() error
}

// ActivityStream is a client-streaming activity channel.
type ActivityStream interface {
	Send(serviceID string, ev ActivityEvent) error
	// CloseAndRecv flushes the stream and returns the number of events the
	// registry accepted.
	CloseAndRecv() (int64, error)
}

func isStreaming(t Transport) (StreamingTransport, bool) {
	st, ok := t.(StreamingTransport)
	return st, ok
}
