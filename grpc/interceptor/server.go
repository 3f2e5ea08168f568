package interceptor

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/observability"
)

// UnaryServerMetricsInterceptor records request count, duration and the
// active gauge for every unary RPC.
func UnaryServerMetricsInterceptor(m *observability.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		m.RecordRequestStart(ctx)
		resp, err := handler(ctx, req)
		service, method := splitMethod(info.FullMethod)
		m.RecordRequestEnd(ctx, service, method, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

// UnaryServerRecoveryInterceptor turns a handler panic into codes.Internal.
func UnaryServerRecoveryInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("gRPC handler panic", map[string]interface{}{
					"method":          info.FullMethod,
					logger.FieldError: fmt.Sprint(r),
				})
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// StreamServerRecoveryInterceptor turns a stream handler panic into
// codes.Internal.
func StreamServerRecoveryInterceptor(log *logger.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("gRPC stream handler panic", map[string]interface{}{
					"method":          info.FullMethod,
					logger.FieldError: fmt.Sprint(r),
				})
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(srv, ss)
	}
}
