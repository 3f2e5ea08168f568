package calculator

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified calculator service, also the interface
// name it is discovered under.
const ServiceName = "calculator.v1.CalculatorService"

// MethodCalculate is the full Calculate method name.
const MethodCalculate = "/" + ServiceName + "/Calculate"

// CalculatorServiceServer is the server side of the calculator protocol.
type CalculatorServiceServer interface {
	Calculate(context.Context, *CalculateRequest) (*CalculateResponse, error)
}

// CalculatorServiceClient is the client side of the calculator protocol.
type CalculatorServiceClient interface {
	Calculate(ctx context.Context, in *CalculateRequest, opts ...grpc.CallOption) (*CalculateResponse, error)
}

// NewClient wraps cc. Its signature fits client.NewLazyClient.
func NewClient(cc grpc.ClientConnInterface) CalculatorServiceClient {
	return &calculatorClient{cc: cc}
}

type calculatorClient struct {
	cc grpc.ClientConnInterface
}

func (c *calculatorClient) Calculate(ctx context.Context, in *CalculateRequest, opts ...grpc.CallOption) (*CalculateResponse, error) {
	out := new(CalculateResponse)
	if err := c.cc.Invoke(ctx, MethodCalculate, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterCalculatorServiceServer attaches srv to s.
func RegisterCalculatorServiceServer(s grpc.ServiceRegistrar, srv CalculatorServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes calculator.v1.CalculatorService for the JSON codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalculatorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Calculate", Handler: calculateHandler},
	},
}

func calculateHandler(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
	in := new(CalculateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CalculatorServiceServer).Calculate(ctx, req.(*CalculateRequest))
	}
	if ic == nil {
		return handler(ctx, in)
	}
	return ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodCalculate}, handler)
}
