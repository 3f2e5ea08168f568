package calculator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc"

	"github.com/Michael--/modular-runtime/discovery"
	grpccfg "github.com/Michael--/modular-runtime/grpc"
	"github.com/Michael--/modular-runtime/grpc/client"
	"github.com/Michael--/modular-runtime/grpc/interceptor"
	"github.com/Michael--/modular-runtime/logger"
	"github.com/Michael--/modular-runtime/resilience"
	"github.com/Michael--/modular-runtime/topology"
)

// DefaultTarget is the target name recorded on the caller's activity.
const DefaultTarget = "calculator-server"

// CallerConfig configures a Caller.
type CallerConfig struct {
	// Name is the calling service's name, sent as CallerHeader.
	Name string `yaml:"name" mapstructure:"name"`
	// Target is the target name recorded on activity events.
	Target string `yaml:"target" mapstructure:"target"`
	// Role is the provider role to resolve.
	Role string `yaml:"role" mapstructure:"role"`
	// Interval is the cadence of Run.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	// CallTimeout bounds each Calculate call.
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	// Retry governs retries of a failed call.
	Retry resilience.RetryConfig `yaml:"-" mapstructure:"-"`
}

// ApplyDefaults fills unset fields.
func (c *CallerConfig) ApplyDefaults() {
	if c.Target == "" {
		c.Target = DefaultTarget
	}
	if c.Role == "" {
		c.Role = discovery.DefaultRole
	}
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.RetryIf == nil {
		c.Retry.RetryIf = interceptor.IsRetryable
	}
	c.Retry.Backoff.ApplyDefaults()
}

// Caller finds a calculator through discovery and calls it, reporting each
// call as activity.
type Caller struct {
	cfg      CallerConfig
	resolver *discovery.Resolver
	lazy     *client.LazyClient[CalculatorServiceClient]
	reporter ActivityReporter
	log      *logger.Logger
}

// NewCaller creates a Caller. reporter may be nil; dialOpts are passed to
// every connection.
func NewCaller(cfg CallerConfig, resolver *discovery.Resolver, reporter ActivityReporter, log *logger.Logger, dialOpts ...client.Option) *Caller {
	cfg.ApplyDefaults()
	c := &Caller{
		cfg:      cfg,
		resolver: resolver,
		reporter: reporter,
		log:      log.WithComponent("calculator-caller"),
	}
	if cfg.Name != "" {
		dialOpts = append(dialOpts, client.WithUnaryInterceptor(CallerInterceptor(cfg.Name)))
	}
	factory := client.ConnectionFactoryFunc(func(ctx context.Context, _ string) (*grpc.ClientConn, error) {
		inst, err := resolver.Await(ctx, c.query())
		if err != nil {
			return nil, err
		}
		gcfg := grpccfg.Config{Address: inst.Address(), CallTimeout: cfg.CallTimeout}
		gcfg.ApplyDefaults()
		return client.NewClient(gcfg, log, dialOpts...)
	})
	c.lazy = client.NewLazyClient(ServiceName, factory, NewClient, log)
	return c
}

func (c *Caller) query() discovery.Query {
	return discovery.Query{Interface: ServiceName, Role: c.cfg.Role}
}

// Calculate sends req, resolving the server first if needed. Retryable
// failures drop the connection and the cached address before the next
// attempt.
func (c *Caller) Calculate(ctx context.Context, req *CalculateRequest) (*CalculateResponse, error) {
	retry := c.cfg.Retry
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.log.Warn("Calculate failed, retrying", logger.Fields(
			logger.FieldAttempt, attempt,
			logger.FieldDelay, delay.String(),
			logger.FieldError, err.Error(),
		))
		c.forget()
	}

	return resilience.Retry(ctx, retry, func() (*CalculateResponse, error) {
		calc, err := c.lazy.GetClient(ctx)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		c.report(topology.ActivityEvent{Kind: topology.ActivityRequestSent}, start)
		resp, err := calc.Calculate(ctx, req)
		latency := time.Since(start)
		if err != nil {
			c.report(topology.ActivityEvent{
				Kind:         topology.ActivityError,
				Latency:      topology.Duration(latency),
				Success:      topology.Bool(false),
				ErrorMessage: err.Error(),
			}, start)
			return nil, err
		}
		c.report(topology.ActivityEvent{
			Kind:    topology.ActivityResponseReceived,
			Latency: topology.Duration(latency),
			Success: topology.Bool(true),
		}, start)
		return resp, nil
	})
}

// Run calls Calculate with random operands every Interval until ctx ends.
func (c *Caller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		req := RandomRequest()
		resp, err := c.Calculate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			reason, retryable := interceptor.ErrorMapper(err)
			c.log.Error("Calculation failed", logger.MergeWithError(logger.Fields(
				"expression", formatExpression(req),
				"reason", reason,
				logger.FieldRetryable, retryable,
			), err))
			continue
		}
		c.log.Info("Calculated", logger.Fields(
			"expression", formatExpression(req),
			"result", resp.Result,
		))
	}
}

// Close drops the connection.
func (c *Caller) Close() error {
	return c.lazy.Close()
}

func (c *Caller) forget() {
	_ = c.lazy.Reset()
	c.resolver.Invalidate(c.query())
}

func (c *Caller) report(ev topology.ActivityEvent, ts time.Time) {
	if c.reporter == nil {
		return
	}
	ev.Target = c.cfg.Target
	ev.Method = MethodLabel
	ev.Timestamp = ts
	c.reporter.Report(ev)
}

// RandomRequest returns operands in [1, 100) and an operation other than
// OperationUnspecified.
func RandomRequest() *CalculateRequest {
	return &CalculateRequest{
		Operand1:  1 + rand.Float64()*99,
		Operand2:  1 + rand.Float64()*99,
		Operation: Operation(1 + rand.IntN(4)),
	}
}

func formatExpression(req *CalculateRequest) string {
	return fmt.Sprintf("%.6f %s %.6f", req.Operand1, req.Operation.Symbol(), req.Operand2)
}
