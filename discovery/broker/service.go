package broker

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified broker service.
const ServiceName = "broker.v1.BrokerService"

// Full method names.
const (
	MethodRegisterService      = "/" + ServiceName + "/RegisterService"
	MethodUnregisterService    = "/" + ServiceName + "/UnregisterService"
	MethodLookupService        = "/" + ServiceName + "/LookupService"
	MethodGetAvailableServices = "/" + ServiceName + "/GetAvailableServices"
	MethodNotifyServiceChanges = "/" + ServiceName + "/NotifyServiceChanges"
)

// BrokerServiceServer is the server side of the broker protocol.
type BrokerServiceServer interface {
	RegisterService(context.Context, *RegisterServiceRequest) (*RegisterServiceResponse, error)
	UnregisterService(context.Context, *UnregisterServiceRequest) (*UnregisterServiceResponse, error)
	LookupService(context.Context, *LookupServiceRequest) (*LookupServiceResponse, error)
	GetAvailableServices(context.Context, *GetAvailableServicesRequest) (*GetAvailableServicesResponse, error)
	NotifyServiceChanges(*NotifyServiceChangesRequest, ChangesServer) error
}

// ChangesServer is the server end of the change notification stream.
type ChangesServer interface {
	Send(*NotifyServiceChangesResponse) error
	grpc.ServerStream
}

// RegisterBrokerServiceServer attaches srv to s.
func RegisterBrokerServiceServer(s grpc.ServiceRegistrar, srv BrokerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var changesStreamDesc = grpc.StreamDesc{StreamName: "NotifyServiceChanges", ServerStreams: true}

// ServiceDesc describes broker.v1.BrokerService for the JSON codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BrokerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterService", Handler: unaryHandler(MethodRegisterService, BrokerServiceServer.RegisterService)},
		{MethodName: "UnregisterService", Handler: unaryHandler(MethodUnregisterService, BrokerServiceServer.UnregisterService)},
		{MethodName: "LookupService", Handler: unaryHandler(MethodLookupService, BrokerServiceServer.LookupService)},
		{MethodName: "GetAvailableServices", Handler: unaryHandler(MethodGetAvailableServices, BrokerServiceServer.GetAvailableServices)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "NotifyServiceChanges", Handler: notifyServiceChangesHandler, ServerStreams: true},
	},
}

func unaryHandler[Req, Resp any](method string, call func(BrokerServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BrokerServiceServer), ctx, req.(*Req))
		}
		if ic == nil {
			return handler(ctx, in)
		}
		return ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: method}, handler)
	}
}

func notifyServiceChangesHandler(srv any, stream grpc.ServerStream) error {
	in := new(NotifyServiceChangesRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BrokerServiceServer).NotifyServiceChanges(in, &changesServer{stream})
}

type changesServer struct{ grpc.ServerStream }

func (s *changesServer) Send(m *NotifyServiceChangesResponse) error { return s.SendMsg(m) }
