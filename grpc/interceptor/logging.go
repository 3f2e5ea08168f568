package interceptor

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/Michael--/modular-runtime/logger"
)

// splitMethod turns "/pkg.Service/Method" into ("pkg.Service", "Method").
func splitMethod(fullMethod string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return "", service
	}
	return service, method
}

// call describes one finished RPC or stream for the log.
type call struct {
	method  string
	target  string
	started time.Time
	err     error
	extra   map[string]interface{}
}

// report logs c at debug on success and at warn on failure. Failures stay
// below error level; the caller decides whether one matters.
func report(log *logger.Logger, c call, ok, failed string) {
	service, method := splitMethod(c.method)
	fields := logger.Fields(
		logger.FieldService, service,
		"method", method,
		logger.FieldDuration, time.Since(c.started).Milliseconds(),
		logger.FieldStatus, status.Code(c.err).String(),
	)
	if c.target != "" {
		fields[logger.FieldTarget] = c.target
	}
	for k, v := range c.extra {
		fields[k] = v
	}
	if c.err == nil {
		log.Debug(ok, fields)
		return
	}
	fields[logger.FieldError] = status.Convert(c.err).Message()
	log.Warn(failed, fields)
}

// UnaryClientLoggingInterceptor logs every outgoing unary call.
func UnaryClientLoggingInterceptor(log *logger.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		started := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		report(log, call{method: method, target: cc.Target(), started: started, err: err},
			"gRPC call completed", "gRPC call failed")
		return err
	}
}

// StreamClientLoggingInterceptor logs stream establishment only; what
// happens on the stream afterwards belongs to its owner.
func StreamClientLoggingInterceptor(log *logger.Logger) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		started := time.Now()
		stream, err := streamer(ctx, desc, cc, method, opts...)
		report(log, call{
			method:  method,
			target:  cc.Target(),
			started: started,
			err:     err,
			extra:   logger.Fields("client_streams", desc.ClientStreams, "server_streams", desc.ServerStreams),
		}, "gRPC stream established", "gRPC stream failed")
		return stream, err
	}
}

// UnaryServerLoggingInterceptor logs each handled unary request.
func UnaryServerLoggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		report(log, call{method: info.FullMethod, started: started, err: err},
			"gRPC request handled", "gRPC request failed")
		return resp, err
	}
}

// StreamServerLoggingInterceptor logs each stream once it ends.
func StreamServerLoggingInterceptor(log *logger.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		started := time.Now()
		err := handler(srv, ss)
		report(log, call{method: info.FullMethod, started: started, err: err},
			"gRPC stream closed", "gRPC stream ended with error")
		return err
	}
}
