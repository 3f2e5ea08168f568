// Package calculator is the demo calculator.v1.CalculatorService: a server
// that announces itself through discovery and a caller that finds it, both
// reporting their traffic to the topology registry.
package calculator

import (
	"context"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	apperrors "github.com/Michael--/modular-runtime/errors"
	grpccfg "github.com/Michael--/modular-runtime/grpc"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/topology"
)

// CallerHeader is the metadata key carrying the calling service's name.
const CallerHeader = "x-caller-service"

// MethodLabel is the method recorded on activity events.
const MethodLabel = "CalculatorService/Calculate"

// ActivityReporter receives activity events. *topology.Client satisfies it.
type ActivityReporter interface {
	Report(ev topology.ActivityEvent)
}

// Server implements CalculatorServiceServer.
type Server struct {
	reporter ActivityReporter
	log      *logger.Logger
}

var _ CalculatorServiceServer = (*Server)(nil)

// NewServer creates a Server. reporter may be nil.
func NewServer(reporter ActivityReporter, log *logger.Logger) *Server {
	return &Server{reporter: reporter, log: log.WithComponent("calculator")}
}

// Calculate applies the requested operation. An unspecified operation is
// InvalidArgument, and so is a result the JSON wire format cannot carry
// (division by zero).
func (s *Server) Calculate(ctx context.Context, req *CalculateRequest) (*CalculateResponse, error) {
	start := time.Now()
	result, ok := req.Operation.Apply(req.Operand1, req.Operand2)
	var appErr *apperrors.AppError
	switch {
	case !ok:
		appErr = apperrors.Validation("Invalid operation").WithDetail("operation", int32(req.Operation))
	case math.IsInf(result, 0) || math.IsNaN(result):
		appErr = apperrors.Validation("Result is not a finite number").WithDetail("expression", formatExpression(req))
	}
	if appErr != nil {
		s.report(ctx, topology.ActivityEvent{
			Kind:         topology.ActivityError,
			Success:      topology.Bool(false),
			ErrorMessage: appErr.Message,
		}, start)
		return nil, grpccfg.ToGRPCStatus(appErr)
	}

	s.log.Debug("Calculated", logger.Fields(
		"expression", formatExpression(req),
		"result", result,
	))
	s.report(ctx, topology.ActivityEvent{
		Kind:    topology.ActivityResponseReceived,
		Success: topology.Bool(true),
	}, start)
	return &CalculateResponse{Result: result}, nil
}

func (s *Server) report(ctx context.Context, ev topology.ActivityEvent, start time.Time) {
	if s.reporter == nil {
		return
	}
	ev.Target = callerOf(ctx)
	ev.Method = MethodLabel
	ev.Latency = topology.Duration(time.Since(start))
	s.reporter.Report(ev)
}

func callerOf(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(CallerHeader); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return "unknown"
}

// CallerInterceptor stamps outgoing calls with the caller's service name.
func CallerInterceptor(name string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, CallerHeader, name)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
