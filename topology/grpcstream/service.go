package grpcstream

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified registry service.
const ServiceName = "runtime.v1.TopologyService"

// Full method names.
const (
	MethodRegisterService   = "/" + ServiceName + "/RegisterService"
	MethodUnregisterService = "/" + ServiceName + "/UnregisterService"
	MethodHeartbeat         = "/" + ServiceName + "/Heartbeat"
	MethodReportActivity    = "/" + ServiceName + "/ReportActivity"
)

// TopologyServiceServer is the server side of the registry protocol.
type TopologyServiceServer interface {
	RegisterService(context.Context, *RegisterServiceRequest) (*RegisterServiceResponse, error)
	UnregisterService(context.Context, *UnregisterServiceRequest) (*UnregisterServiceResponse, error)
	Heartbeat(HeartbeatServer) error
	ReportActivity(ActivityServer) error
}

// HeartbeatServer is the server end of the bidirectional heartbeat stream.
type HeartbeatServer interface {
	Send(*HeartbeatResponse) error
	Recv() (*HeartbeatRequest, error)
	grpc.ServerStream
}

// ActivityServer is the server end of the client-streaming activity call.
type ActivityServer interface {
	SendAndClose(*ReportActivityResponse) error
	Recv() (*ReportActivityRequest, error)
	grpc.ServerStream
}

// RegisterTopologyServiceServer attaches srv to s.
func RegisterTopologyServiceServer(s grpc.ServiceRegistrar, srv TopologyServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var (
	heartbeatStreamDesc = grpc.StreamDesc{StreamName: "Heartbeat", ServerStreams: true, ClientStreams: true}
	activityStreamDesc  = grpc.StreamDesc{StreamName: "ReportActivity", ClientStreams: true}
)

// ServiceDesc describes runtime.v1.TopologyService for the JSON codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TopologyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterService", Handler: registerServiceHandler},
		{MethodName: "UnregisterService", Handler: unregisterServiceHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Heartbeat", Handler: heartbeatHandler, ServerStreams: true, ClientStreams: true},
		{StreamName: "ReportActivity", Handler: reportActivityHandler, ClientStreams: true},
	},
}

func registerServiceHandler(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
	in := new(RegisterServiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TopologyServiceServer).RegisterService(ctx, req.(*RegisterServiceRequest))
	}
	if ic == nil {
		return handler(ctx, in)
	}
	return ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodRegisterService}, handler)
}

func unregisterServiceHandler(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
	in := new(UnregisterServiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TopologyServiceServer).UnregisterService(ctx, req.(*UnregisterServiceRequest))
	}
	if ic == nil {
		return handler(ctx, in)
	}
	return ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodUnregisterService}, handler)
}

func heartbeatHandler(srv any, stream grpc.ServerStream) error {
	return srv.(TopologyServiceServer).Heartbeat(&heartbeatServer{stream})
}

func reportActivityHandler(srv any, stream grpc.ServerStream) error {
	return srv.(TopologyServiceServer).ReportActivity(&activityServer{stream})
}

type heartbeatServer struct{ grpc.ServerStream }

func (s *heartbeatServer) Send(m *HeartbeatResponse) error { return s.SendMsg(m) }

func (s *heartbeatServer) Recv() (*HeartbeatRequest, error) {
	m := new(HeartbeatRequest)
	if err := s.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type activityServer struct{ grpc.ServerStream }

func (s *activityServer) SendAndClose(m *ReportActivityResponse) error { return s.SendMsg(m) }

func (s *activityServer) Recv() (*ReportActivityRequest, error) {
	m := new(ReportActivityRequest)
	if err := s.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
